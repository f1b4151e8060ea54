//go:build unix

package transport

import (
	"net/netip"
	"sync"
	"time"

	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/status"
)

// recvBufferSize fits the largest request plus an IPv4 header with options.
const recvBufferSize = 2048

// endpoint is the socket underneath a request context.
type endpoint interface {
	SendTo(b []byte, dst netip.Addr) error
	RecvFrom(b []byte) (int, netip.Addr, error)

	// WaitReadable blocks until data can be read or timeout elapses.
	WaitReadable(timeout time.Duration) (bool, error)

	// Wake makes a running WaitReadable return false at once.
	Wake() error

	SetReadTimeout(d time.Duration) error
	Close() error
}

type endpointConfig struct {
	family  icmp.Family
	mode    Mode
	options *Options
	timeout time.Duration
	async   bool
}

// SocketConfig describes one echo exchange over an ICMP socket.
type SocketConfig struct {
	Destination netip.Addr
	Timeout     time.Duration
	Payload     []byte
	Options     *Options
	Mode        Mode

	// Async switches the socket to non-blocking mode before any send.
	Async bool

	open func(endpointConfig) (endpoint, error)
}

// Socket is the request context of the socket path.
type Socket struct {
	family icmp.Family
	mode   Mode
	dst    netip.Addr
	ident  uint16
	seq    uint16

	timeout time.Duration
	sentAt  time.Time

	packet []byte
	buf    []byte

	// ipHeader is set when received datagrams start with an IPv4 header.
	ipHeader bool
	// matchIdent is unset when the kernel owns the identifier.
	matchIdent bool

	ep        endpoint
	closeOnce sync.Once
	closeErr  error
}

// OpenSocket validates cfg, encodes the request and opens the socket.
// Nothing is opened when validation fails.
func OpenSocket(cfg SocketConfig) (*Socket, error) {
	if err := ValidateTimeout(cfg.Timeout); err != nil {
		return nil, err
	}
	if !cfg.Destination.IsValid() {
		return nil, status.BadParameter("address")
	}

	dst := cfg.Destination.Unmap()
	family := icmp.FamilyOf(dst)

	packet, err := icmp.EncodeRequest(family, cfg.Payload, MaxSocketPayload)
	if err != nil {
		return nil, err
	}

	open := cfg.open
	if open == nil {
		open = openSystemEndpoint
	}
	ep, err := open(endpointConfig{
		family:  family,
		mode:    cfg.Mode,
		options: cfg.Options,
		timeout: cfg.Timeout,
		async:   cfg.Async,
	})
	if err != nil {
		return nil, status.FromErrno(err)
	}

	raw := cfg.Mode == ModeRaw
	return &Socket{
		family:     family,
		mode:       cfg.Mode,
		dst:        dst,
		ident:      Ident(),
		timeout:    cfg.Timeout,
		packet:     packet,
		buf:        make([]byte, recvBufferSize),
		ipHeader:   family == icmp.V4 && (raw || datagramHasIPHeader),
		matchIdent: raw || !datagramKernelIdent,
		ep:         ep,
	}, nil
}

// Family returns the address family of the destination.
func (s *Socket) Family() icmp.Family { return s.family }

// Sequence returns the sequence number of the last request sent.
func (s *Socket) Sequence() uint16 { return s.seq }

// Deadline returns the time by which a reply must arrive.
func (s *Socket) Deadline() time.Time { return s.sentAt.Add(s.timeout) }

// Send stamps the next sequence number and transmits the request.
func (s *Socket) Send() error {
	s.seq++
	s.sentAt = time.Now()
	icmp.Stamp(s.packet, s.ident, s.seq, s.sentAt)

	if err := s.ep.SendTo(s.packet, s.dst); err != nil {
		err = status.FromErrno(err)
		if status.IsPending(err) {
			return status.OSError(0, "send would block")
		}
		return err
	}
	return nil
}

// Receive reads and decodes one datagram. It returns ErrIOPending when
// nothing is queued or when the datagram belongs to somebody else.
func (s *Socket) Receive() (Reply, error) {
	n, from, err := s.ep.RecvFrom(s.buf)
	if err != nil {
		return Reply{}, status.FromErrno(err)
	}
	return s.decode(s.buf[:n], from, time.Now())
}

func (s *Socket) decode(b []byte, from netip.Addr, now time.Time) (Reply, error) {
	msg, err := icmp.Message(s.family, b, s.ipHeader)
	if err != nil {
		return Reply{}, err
	}

	h, ok := icmp.PeekHeader(msg)
	if !ok || s.foreign(h) {
		return Reply{}, status.ErrIOPending
	}
	// The ICMPv6 checksum covers a pseudo-header and is verified by the
	// kernel.
	if s.family == icmp.V4 && !icmp.Valid(msg) {
		return Reply{}, status.ErrIOPending
	}

	h, _, err = icmp.DecodeReply(s.family, msg, false)
	if err != nil {
		return Reply{}, err
	}

	return Reply{Address: from.Unmap(), RTT: h.RTT(now)}, nil
}

// foreign reports whether a datagram answers some other request: our own
// request looped back on a raw socket, other ICMP traffic seen by a raw
// socket, another process's echo, or a stale sequence number.
func (s *Socket) foreign(h icmp.Header) bool {
	if s.mode == ModeRaw && h.Type != s.family.ReplyType() {
		return true
	}
	if s.matchIdent && h.Ident != s.ident {
		return true
	}
	return h.Seq != s.seq
}

// Exchange sends the request and blocks until the reply arrives or the
// timeout elapses.
func (s *Socket) Exchange() (Reply, error) {
	if err := s.Send(); err != nil {
		return Reply{}, err
	}

	deadline := s.Deadline()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Reply{}, status.ErrTimedOut
		}
		if err := s.ep.SetReadTimeout(remaining); err != nil {
			return Reply{}, status.FromErrno(err)
		}

		reply, err := s.Receive()
		if status.IsPending(err) || status.KindOf(err) == status.KindTimedOut {
			continue
		}
		return reply, err
	}
}

// WaitReadable blocks until a datagram is queued or d elapses.
func (s *Socket) WaitReadable(d time.Duration) (bool, error) {
	ok, err := s.ep.WaitReadable(d)
	if err != nil {
		return false, status.FromErrno(err)
	}
	return ok, nil
}

// Interrupt cuts short a WaitReadable running on another goroutine. It must
// not race with Close.
func (s *Socket) Interrupt() error {
	if err := s.ep.Wake(); err != nil {
		return status.FromErrno(err)
	}
	return nil
}

// Close releases the socket. It is safe to call more than once.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		if err := s.ep.Close(); err != nil {
			s.closeErr = status.FromErrno(err)
		}
	})
	return s.closeErr
}
