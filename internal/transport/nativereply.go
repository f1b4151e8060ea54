package transport

import (
	"encoding/binary"
	"net/netip"

	"github.com/postalsys/muti-ping/internal/status"
)

// ReplyBufferSize is the size of the buffer handed to the Windows echo API.
// It holds the largest datagram plus room for the reply structure.
const ReplyBufferSize = 0xffff + 256

// DontFragmentFlag is the IP_OPTION_INFORMATION flag bit for DF.
const DontFragmentFlag = 0x02

// Layout of ICMP_ECHO_REPLY. Only the leading fixed-size fields are read,
// and those do not depend on pointer width.
const (
	echoReply4Address = 0
	echoReply4Status  = 4
	echoReply4RTT     = 8
	echoReply4Size    = 16
)

// Layout of ICMPV6_ECHO_REPLY_LH. The address is a packed IPV6_ADDRESS_EX
// (port, flow info, address, scope id) followed by status and RTT.
const (
	echoReply6Address = 6
	echoReply6Scope   = 22
	echoReply6Status  = 28
	echoReply6RTT     = 32
	echoReply6Size    = 36
)

// DecodeEchoReply4 decodes the ICMP_ECHO_REPLY at the start of b and
// classifies its status.
func DecodeEchoReply4(b []byte) (Reply, error) {
	if len(b) < echoReply4Size {
		return Reply{}, status.IPError(status.BadHeader)
	}

	var addr [4]byte
	copy(addr[:], b[echoReply4Address:])

	st := binary.LittleEndian.Uint32(b[echoReply4Status:])
	if err := status.Classify(st); err != nil {
		return Reply{}, err
	}

	return Reply{
		Address: netip.AddrFrom4(addr),
		RTT:     binary.LittleEndian.Uint32(b[echoReply4RTT:]),
	}, nil
}

// DecodeEchoReply6 decodes the ICMPV6_ECHO_REPLY_LH at the start of b and
// classifies its status.
func DecodeEchoReply6(b []byte) (Reply, error) {
	if len(b) < echoReply6Size {
		return Reply{}, status.IPError(status.BadHeader)
	}

	var addr [16]byte
	copy(addr[:], b[echoReply6Address:])

	st := binary.LittleEndian.Uint32(b[echoReply6Status:])
	if err := status.Classify(st); err != nil {
		return Reply{}, err
	}

	return Reply{
		Address: netip.AddrFrom16(addr),
		RTT:     binary.LittleEndian.Uint32(b[echoReply6RTT:]),
	}, nil
}
