// Package ping sends ICMP echo requests and reports the replies.
//
// SendPing blocks until the reply arrives or the timeout elapses.
// SendPingAsync returns a Pending that can be polled with a waker or awaited
// with a context. Both accept IPv4 and IPv6 destinations; IPv4-mapped IPv6
// addresses are sent as IPv4.
//
// Errors are *status.Error values and can be matched with errors.Is against
// status.ErrTimedOut or inspected with errors.As.
package ping

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/postalsys/muti-ping/internal/completion"
	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/metrics"
	"github.com/postalsys/muti-ping/internal/status"
	"github.com/postalsys/muti-ping/internal/transport"
)

// Reply is a successful echo exchange.
type Reply = transport.Reply

// Options are per-request transmission options. A nil *Options means a TTL
// of 128 without the don't-fragment flag.
type Options = transport.Options

// Mode selects the socket kind on platforms that use ICMP sockets.
type Mode = transport.Mode

const (
	ModeDatagram = transport.ModeDatagram
	ModeRaw      = transport.ModeRaw
)

// Waker is woken when a Pending may have made progress.
type Waker = completion.Waker

// Result is the outcome of a completed Pending.
type Result = completion.Result[Reply]

// State is the life-cycle position of a Pending.
type State = completion.State

// MaxPayload is the largest payload accepted on this platform.
const MaxPayload = maxPayload

// Pinger sends echo requests with a shared logger, metrics and socket mode.
// The zero value is not usable; create one with New.
type Pinger struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	mode    Mode
}

// Option configures a Pinger.
type Option func(*Pinger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pinger) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pinger) {
		p.metrics = m
	}
}

// WithSocketMode selects datagram or raw ICMP sockets. It has no effect on
// Windows.
func WithSocketMode(mode Mode) Option {
	return func(p *Pinger) {
		p.mode = mode
	}
}

// New creates a Pinger.
func New(opts ...Option) *Pinger {
	p := &Pinger{
		logger: logging.NopLogger(),
		mode:   ModeDatagram,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String(logging.KeyComponent, "ping"))
	return p
}

var defaultPinger = New()

// SendPing sends one echo request to addr and waits for the reply.
func SendPing(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) (Reply, error) {
	return defaultPinger.SendPing(addr, timeout, payload, opts)
}

// SendPingAsync sends one echo request to addr and returns without waiting.
func SendPingAsync(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) *Pending {
	return defaultPinger.SendPingAsync(addr, timeout, payload, opts)
}

// SendPing sends one echo request to addr and waits for the reply.
func (p *Pinger) SendPing(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) (Reply, error) {
	if err := validate(addr, timeout, payload); err != nil {
		p.reject(addr, err)
		return Reply{}, err
	}

	addr = addr.Unmap()
	family := icmp.FamilyOf(addr).String()
	if p.metrics != nil {
		p.metrics.RecordRequest(family, "sync")
	}

	reply, err := p.exchange(addr, timeout, payload, opts)
	err = surface(err)
	p.observe(request{addr: addr, family: family, path: "sync", size: len(payload)}, reply, err)
	return reply, err
}

// SendPingAsync sends one echo request to addr. The request is issued on the
// first poll of the returned Pending. Validation and transport failures are
// reported through an already completed Pending.
func (p *Pinger) SendPingAsync(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) *Pending {
	if err := validate(addr, timeout, payload); err != nil {
		p.reject(addr, err)
		return p.failed(addr, err)
	}

	addr = addr.Unmap()
	src, err := p.source(addr, timeout, payload, opts)
	if err != nil {
		p.reject(addr, err)
		return p.failed(addr, err)
	}

	family := icmp.FamilyOf(addr).String()
	if p.metrics != nil {
		p.metrics.RecordRequest(family, "async")
	}

	return &Pending{
		future: completion.New[Reply](src),
		pinger: p,
		req:    request{addr: addr, family: family, path: "async", size: len(payload)},
	}
}

func (p *Pinger) failed(addr netip.Addr, err error) *Pending {
	pe := &Pending{
		future: completion.Completed(Reply{}, err),
		pinger: p,
		req:    request{addr: addr},
	}
	// Rejections are accounted for already.
	pe.once.Do(func() {})
	return pe
}

func validate(addr netip.Addr, timeout time.Duration, payload []byte) error {
	if err := transport.ValidateTimeout(timeout); err != nil {
		return err
	}
	if !addr.IsValid() {
		return status.BadParameter("address")
	}
	if len(payload) > maxPayload {
		return status.DataSizeTooBig(maxPayload)
	}
	return nil
}

// surface keeps the internal pending signal from reaching callers.
func surface(err error) error {
	if status.IsPending(err) {
		return status.ErrTimedOut
	}
	return err
}

func (p *Pinger) reject(addr netip.Addr, err error) {
	kind := status.KindOf(err)
	if p.metrics != nil {
		p.metrics.RecordRejected(kind.String())
	}
	p.logger.Debug("echo request rejected",
		logging.KeyAddress, addr.String(),
		logging.KeyError, err)
}

// request describes an accepted echo request for logs and metrics.
type request struct {
	addr   netip.Addr
	family string
	path   string // sync or async
	size   int
}

func (p *Pinger) observe(req request, reply Reply, err error) {
	addr := req.addr
	if err == nil {
		if p.metrics != nil {
			p.metrics.RecordReply(req.family, reply.RTT)
		}
		p.logger.Debug("echo reply",
			logging.KeyAddress, reply.Address.String(),
			logging.KeyFamily, req.family,
			logging.KeyPath, req.path,
			logging.KeySize, req.size,
			logging.KeyRTT, reply.RTT)
		return
	}

	kind := status.KindOf(err)
	if p.metrics != nil {
		label := kind.String()
		if kind == 0 {
			label = "canceled"
		}
		p.metrics.RecordError(label)
	}

	if kind == status.KindOS {
		p.logger.Warn("echo request failed",
			logging.KeyAddress, addr.String(),
			logging.KeyError, err)
		return
	}
	p.logger.Debug("echo request failed",
		logging.KeyAddress, addr.String(),
		logging.KeyFamily, req.family,
		logging.KeyPath, req.path,
		logging.KeyKind, kind.String(),
		logging.KeyError, err)
}

// Pending is an echo request in progress.
type Pending struct {
	future *completion.Future[Reply]
	pinger *Pinger
	req    request
	once   sync.Once
}

// Poll advances the request. It returns the result and true once the
// request has completed; otherwise w is woken when it may have progressed.
func (pe *Pending) Poll(w Waker) (Result, bool) {
	if m := pe.pinger.metrics; m != nil {
		m.RecordAsyncPoll()
	}

	r, ok := pe.future.Poll(w)
	if !ok {
		return Result{}, false
	}

	r.Err = surface(r.Err)
	pe.finish(r.Value, r.Err)
	return r, true
}

// Wait blocks until the request completes. If ctx ends first the request is
// closed and ctx.Err() is returned.
func (pe *Pending) Wait(ctx context.Context) (Reply, error) {
	ch := make(chan struct{}, 1)
	w := completion.WakerFunc(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	for {
		if r, ok := pe.Poll(w); ok {
			return r.Value, r.Err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			pe.Close()
			return Reply{}, ctx.Err()
		}
	}
}

// Close abandons the request and releases its resources. It is safe to call
// after completion and more than once.
func (pe *Pending) Close() error {
	err := pe.future.Close()
	pe.finish(Reply{}, context.Canceled)
	return err
}

// State reports where the request is in its life cycle.
func (pe *Pending) State() State {
	return pe.future.State()
}

func (pe *Pending) finish(reply Reply, err error) {
	pe.once.Do(func() {
		pe.pinger.observe(pe.req, reply, err)
	})
}
