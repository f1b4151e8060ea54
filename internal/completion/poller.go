package completion

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postalsys/muti-ping/internal/recovery"
	"github.com/postalsys/muti-ping/internal/status"
)

// Pollable is a non-blocking request/response endpoint whose readiness can
// be waited on.
type Pollable[T any] interface {
	Send() error

	// Receive returns status.ErrIOPending when nothing is ready yet.
	Receive() (T, error)

	WaitReadable(timeout time.Duration) (bool, error)

	// Interrupt makes a WaitReadable running on another goroutine return
	// at once.
	Interrupt() error

	Close() error
}

// PollSource completes a Pollable by parking one worker goroutine on its
// readiness until the deadline passes.
type PollSource[T any] struct {
	p        Pollable[T]
	timeout  time.Duration
	deadline time.Time
	logger   *slog.Logger

	// armed keeps Arm single-flight.
	armed atomic.Bool

	mu       sync.Mutex
	active   bool
	released bool
}

// NewPollSource returns a source that sends on p and waits at most timeout
// for the response.
func NewPollSource[T any](p Pollable[T], timeout time.Duration) *PollSource[T] {
	return &PollSource[T]{p: p, timeout: timeout}
}

// WithLogger sets the logger that reports a panicking worker.
func (s *PollSource[T]) WithLogger(logger *slog.Logger) *PollSource[T] {
	s.logger = logger
	return s
}

func (s *PollSource[T]) Start() (T, error) {
	if err := s.p.Send(); err != nil {
		var zero T
		return zero, err
	}
	s.deadline = time.Now().Add(s.timeout)
	return s.p.Receive()
}

func (s *PollSource[T]) Check() (T, error) {
	var zero T
	if s.armed.Load() {
		// The worker owns the endpoint from here on.
		return zero, status.ErrIOPending
	}
	if !time.Now().Before(s.deadline) {
		return zero, status.ErrTimedOut
	}
	return s.p.Receive()
}

func (s *PollSource[T]) Arm(n Notifier[T]) error {
	if !s.armed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	go s.work(n)
	return nil
}

func (s *PollSource[T]) work(n Notifier[T]) {
	v, err := s.guardedWait()
	n.Complete(v, err)

	s.mu.Lock()
	s.active = false
	closeNow := s.released
	s.mu.Unlock()

	if closeNow {
		s.p.Close()
	}
}

// guardedWait runs wait and reports a panic as an OS error so the future
// still completes.
func (s *PollSource[T]) guardedWait() (v T, err error) {
	var perr error
	defer func() {
		if perr != nil {
			var zero T
			v, err = zero, status.OSError(0, perr.Error())
		}
	}()
	defer recovery.RecoverInto(s.logger, "poll worker", &perr)

	return s.wait()
}

func (s *PollSource[T]) wait() (T, error) {
	var zero T
	for {
		remaining := time.Until(s.deadline)
		if remaining <= 0 {
			return zero, status.ErrTimedOut
		}

		ready, err := s.p.WaitReadable(remaining)
		if err != nil {
			return zero, err
		}
		if !ready {
			return zero, status.ErrTimedOut
		}

		v, err := s.p.Receive()
		if status.IsPending(err) {
			continue
		}
		return v, err
	}
}

// Release closes the endpoint. While the worker is still waiting it is
// interrupted and the close is handed to it, so the descriptor is never
// closed under a running poll.
func (s *PollSource[T]) Release() error {
	s.mu.Lock()
	s.released = true
	handoff := s.active
	if handoff {
		// The worker cannot close the endpoint before it takes mu.
		s.p.Interrupt()
	}
	s.mu.Unlock()

	if handoff {
		return nil
	}
	return s.p.Close()
}
