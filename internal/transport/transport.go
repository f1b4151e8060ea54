// Package transport hands echo requests to the operating system and
// collects the raw replies.
//
// Two mechanisms exist. On Windows the IP Helper echo API sends the request
// and writes the reply into a caller-owned buffer, optionally signalling an
// event object when it finishes. Everywhere else an ICMP socket (datagram or
// raw) is opened per request.
//
// Each request context owns exactly one OS resource and releases it in
// Close. Close is safe to call more than once.
package transport

import (
	"net/netip"
	"os"
	"time"

	"github.com/postalsys/muti-ping/internal/status"
)

// DefaultTTL is used when no options are supplied.
const DefaultTTL = 128

const (
	// MaxSocketPayload is the largest payload accepted on the socket path:
	// a 1500-byte MTU minus the IPv6 header and the echo header.
	MaxSocketPayload = 1444

	// MaxNativePayload is the largest payload the Windows echo API accepts.
	MaxNativePayload = 65500
)

// Options are per-request transmission options.
type Options struct {
	TTL          uint8
	DontFragment bool
}

// Resolve returns opts, or the defaults when opts is nil.
func (o *Options) Resolve() Options {
	if o == nil {
		return Options{TTL: DefaultTTL}
	}
	return *o
}

// Reply is a successful echo exchange.
type Reply struct {
	// Address is the source address of the reply.
	Address netip.Addr

	// RTT is the round-trip time in milliseconds.
	RTT uint32
}

// Mode selects the kind of ICMP socket.
type Mode int

const (
	// ModeDatagram uses an unprivileged SOCK_DGRAM ICMP socket.
	ModeDatagram Mode = iota
	// ModeRaw uses a SOCK_RAW socket and requires privileges.
	ModeRaw
)

// String returns "datagram" or "raw".
func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}
	return "datagram"
}

// ParseMode parses "datagram" (or "dgram", or empty) and "raw".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "datagram", "dgram":
		return ModeDatagram, nil
	case "raw":
		return ModeRaw, nil
	default:
		return ModeDatagram, status.BadParameter("socket_mode")
	}
}

// ValidateTimeout rejects zero and negative timeouts.
func ValidateTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return status.BadParameter("timeout")
	}
	return nil
}

// Ident returns the echo identifier used by this process.
func Ident() uint16 {
	return uint16(os.Getpid())
}
