// Package completion turns an outstanding echo request into a value that can
// be polled or awaited.
//
// A Future drives a Source through its life cycle. The Source knows how to
// issue the operation, check it without blocking and install a completion
// detector; the Future owns the state machine, the stored result and the
// registered waker. Two sources exist: PollSource parks a worker goroutine
// on socket readiness, and EventSource (windows) lets the kernel thread pool
// signal an event object.
package completion

import (
	"context"
	"sync"

	"github.com/postalsys/muti-ping/internal/status"
)

// State is the life-cycle position of a Future.
type State int32

const (
	StateIdle State = iota
	StateStarted
	StatePending
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Result is the outcome of a completed operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Waker is notified when a pending Future may have made progress.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to Waker.
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

// Notifier is handed to Source.Arm. Wake only prompts the poller to check
// again; Complete stores a final result first.
type Notifier[T any] interface {
	Wake()
	Complete(v T, err error)
}

// Source is an asynchronous operation. Start and Check report an
// outstanding operation with status.ErrIOPending.
type Source[T any] interface {
	// Start issues the operation.
	Start() (T, error)

	// Check tests for completion without blocking.
	Check() (T, error)

	// Arm installs completion detection. It is called at most once.
	Arm(n Notifier[T]) error

	// Release frees everything the source owns. It is called exactly once.
	Release() error
}

var errClosed = status.OSError(0, "operation closed")

// Future is a polled, single-result operation.
type Future[T any] struct {
	mu     sync.Mutex
	src    Source[T]
	state  State
	armed  bool
	closed bool
	result Result[T]
	waker  Waker

	releaseOnce sync.Once
	releaseErr  error
}

// New returns an idle future over src. Nothing is issued until the first
// Poll.
func New[T any](src Source[T]) *Future[T] {
	return &Future[T]{src: src}
}

// Completed returns a future that is already ready with the given result.
func Completed[T any](v T, err error) *Future[T] {
	f := &Future[T]{}
	f.finishLocked(v, err)
	return f
}

// Poll advances the operation. It returns the result and true once the
// operation has completed, or false after registering w to be woken when
// progress is possible. Only the most recently registered waker is kept.
func (f *Future[T]) Poll(w Waker) (Result[T], bool) {
	f.mu.Lock()

	if f.state == StateReady {
		r := f.result
		f.mu.Unlock()
		return r, true
	}
	if f.closed {
		f.mu.Unlock()
		return Result[T]{Err: errClosed}, true
	}

	if f.state == StateIdle {
		v, err := f.src.Start()
		f.state = StateStarted
		if !status.IsPending(err) {
			return f.finishAndRelease(v, err)
		}
	}

	// Register before checking so a completion that lands between the
	// check and the return still finds a waker.
	f.waker = w

	v, err := f.src.Check()
	if !status.IsPending(err) {
		return f.finishAndRelease(v, err)
	}

	if !f.armed {
		f.armed = true
		f.state = StatePending
		if err := f.src.Arm(notifier[T]{f}); err != nil {
			var zero T
			return f.finishAndRelease(zero, err)
		}
	}

	f.mu.Unlock()
	return Result[T]{}, false
}

// finishAndRelease is called with f.mu held and returns with it released.
func (f *Future[T]) finishAndRelease(v T, err error) (Result[T], bool) {
	f.finishLocked(v, err)
	r := f.result
	f.mu.Unlock()

	f.release()
	return r, true
}

func (f *Future[T]) finishLocked(v T, err error) {
	if status.IsPending(err) {
		err = status.ErrTimedOut
	}
	f.state = StateReady
	f.result = Result[T]{Value: v, Err: err}
	f.waker = nil
}

// Wait polls until the operation completes. If ctx ends first the operation
// is closed and ctx.Err() is returned.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	ch := make(chan struct{}, 1)
	w := WakerFunc(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	for {
		if r, ok := f.Poll(w); ok {
			return r.Value, r.Err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			f.Close()
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close abandons the operation and releases its resources. A registered
// waker is woken so that a concurrent Wait returns. Close is idempotent.
func (f *Future[T]) Close() error {
	f.mu.Lock()
	f.closed = true
	w := f.waker
	f.waker = nil
	f.mu.Unlock()

	err := f.release()
	if w != nil {
		w.Wake()
	}
	return err
}

// State returns the current state.
func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// release must be called without f.mu held: a source may block until its
// completion callback has returned, and that callback takes f.mu.
func (f *Future[T]) release() error {
	f.releaseOnce.Do(func() {
		if f.src != nil {
			f.releaseErr = f.src.Release()
		}
	})
	return f.releaseErr
}

func (f *Future[T]) wake() {
	f.mu.Lock()
	w := f.waker
	f.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

type notifier[T any] struct {
	f *Future[T]
}

func (n notifier[T]) Wake() { n.f.wake() }

func (n notifier[T]) Complete(v T, err error) {
	f := n.f

	f.mu.Lock()
	if f.state == StateReady || f.closed {
		f.mu.Unlock()
		return
	}
	w := f.waker
	f.finishLocked(v, err)
	f.mu.Unlock()

	f.release()
	if w != nil {
		w.Wake()
	}
}
