package icmp

import (
	"encoding/binary"
	"net/netip"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/postalsys/muti-ping/internal/status"
)

// HeaderSize is the size of the echo header, timestamp included.
const HeaderSize = 16

// Protocol numbers assigned by IANA.
const (
	ProtocolICMP     = 1
	ProtocolIPv6ICMP = 58
)

const (
	offType      = 0
	offCode      = 1
	offChecksum  = 2
	offIdent     = 4
	offSeq       = 6
	offTimestamp = 8
)

// Family selects the IPv4 or IPv6 flavour of ICMP.
type Family int

const (
	V4 Family = 4
	V6 Family = 6
)

// FamilyOf returns the family matching addr.
func FamilyOf(addr netip.Addr) Family {
	if addr.Is4() || addr.Is4In6() {
		return V4
	}
	return V6
}

// String returns "ipv4" or "ipv6".
func (f Family) String() string {
	if f == V6 {
		return "ipv6"
	}
	return "ipv4"
}

// RequestType is the echo request type for the family.
func (f Family) RequestType() uint8 {
	if f == V6 {
		return uint8(ipv6.ICMPTypeEchoRequest)
	}
	return uint8(ipv4.ICMPTypeEcho)
}

// ReplyType is the echo reply type for the family.
func (f Family) ReplyType() uint8 {
	if f == V6 {
		return uint8(ipv6.ICMPTypeEchoReply)
	}
	return uint8(ipv4.ICMPTypeEchoReply)
}

// Protocol is the IANA protocol number carried by the family.
func (f Family) Protocol() int {
	if f == V6 {
		return ProtocolIPv6ICMP
	}
	return ProtocolICMP
}

// Header is a decoded echo header.
type Header struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Ident    uint16
	Seq      uint16
	Sent     int64 // unix nanoseconds
}

// Timestamp returns the send time embedded in the header.
func (h Header) Timestamp() time.Time {
	return time.Unix(0, h.Sent)
}

// RTT returns the whole milliseconds elapsed between the embedded send time
// and now. Clock steps that would yield a negative value return zero.
func (h Header) RTT(now time.Time) uint32 {
	d := now.Sub(h.Timestamp())
	if d < 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}

// EncodeRequest builds an echo request for payload. The identifier,
// sequence and timestamp are left zero; Stamp fills them in before sending.
func EncodeRequest(f Family, payload []byte, limit int) ([]byte, error) {
	if len(payload) > limit {
		return nil, status.DataSizeTooBig(limit)
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[offType] = f.RequestType()
	buf[offCode] = 0
	copy(buf[HeaderSize:], payload)
	writeChecksum(buf)

	return buf, nil
}

// Stamp writes the identifier, sequence and send time into an encoded
// request and recomputes its checksum.
func Stamp(buf []byte, ident, seq uint16, now time.Time) {
	binary.BigEndian.PutUint16(buf[offIdent:], ident)
	binary.BigEndian.PutUint16(buf[offSeq:], seq)
	binary.BigEndian.PutUint64(buf[offTimestamp:], uint64(now.UnixNano()))
	writeChecksum(buf)
}

func writeChecksum(buf []byte) {
	binary.BigEndian.PutUint16(buf[offChecksum:], 0)
	binary.BigEndian.PutUint16(buf[offChecksum:], Checksum(buf))
}

// EchoPrefixSize covers type, code, checksum, identifier and sequence.
const EchoPrefixSize = 8

// PeekHeader reads type, code, checksum, identifier and sequence from the
// start of b. The timestamp is left zero. It reports false when b is too
// short to carry an identifier.
func PeekHeader(b []byte) (Header, bool) {
	if len(b) < EchoPrefixSize {
		return Header{}, false
	}
	return Header{
		Type:     b[offType],
		Code:     b[offCode],
		Checksum: binary.BigEndian.Uint16(b[offChecksum:]),
		Ident:    binary.BigEndian.Uint16(b[offIdent:]),
		Seq:      binary.BigEndian.Uint16(b[offSeq:]),
	}, true
}

// ParseHeader reads the echo header at the start of b without validating
// type or code.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, status.IPError(status.BadHeader)
	}
	return Header{
		Type:     b[offType],
		Code:     b[offCode],
		Checksum: binary.BigEndian.Uint16(b[offChecksum:]),
		Ident:    binary.BigEndian.Uint16(b[offIdent:]),
		Seq:      binary.BigEndian.Uint16(b[offSeq:]),
		Sent:     int64(binary.BigEndian.Uint64(b[offTimestamp:])),
	}, nil
}

// StripIPv4 validates the outer IPv4 header of a raw datagram and returns
// the ICMP message that follows it.
func StripIPv4(b []byte) ([]byte, error) {
	if len(b) < ipv4.HeaderLen {
		return nil, status.IPError(status.BadHeader)
	}
	h, err := ipv4.ParseHeader(b)
	if err != nil {
		return nil, status.IPError(status.BadHeader)
	}
	if h.Version != ipv4.Version || h.Protocol != ProtocolICMP || h.Len > len(b) {
		return nil, status.IPError(status.BadHeader)
	}
	return b[h.Len:], nil
}

// Message returns the ICMP message inside a received datagram, stripping
// the outer IPv4 header when withIPHeader is set.
func Message(f Family, b []byte, withIPHeader bool) ([]byte, error) {
	if f == V4 && withIPHeader {
		return StripIPv4(b)
	}
	return b, nil
}

// DecodeReply decodes an echo reply. It returns the header and the echoed
// payload, or IPError(BadHeader) when the datagram is not a well-formed
// echo reply of family f.
func DecodeReply(f Family, b []byte, withIPHeader bool) (Header, []byte, error) {
	msg, err := Message(f, b, withIPHeader)
	if err != nil {
		return Header{}, nil, err
	}

	h, err := ParseHeader(msg)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Type != f.ReplyType() || h.Code != 0 {
		return Header{}, nil, status.IPError(status.BadHeader)
	}

	return h, msg[HeaderSize:], nil
}
