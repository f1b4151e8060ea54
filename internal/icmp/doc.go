// Package icmp encodes ICMP echo requests and decodes echo replies.
//
// # Wire format
//
// Every request carries a 16-byte header followed by the caller's payload:
//
//	offset  size  field
//	0       1     type
//	1       1     code
//	2       2     checksum
//	4       2     identifier
//	6       2     sequence
//	8       8     send timestamp (unix nanoseconds)
//
// All multi-byte fields are big-endian. The timestamp travels with the
// request and is echoed back by the peer, so round-trip time is computed
// from the reply alone.
//
// # Outer headers
//
// Raw IPv4 sockets deliver the IP header in front of the ICMP message;
// DecodeReply strips and validates it when asked to. IPv6 sockets never
// include the outer header.
package icmp
