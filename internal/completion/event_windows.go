//go:build windows

package completion

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/postalsys/muti-ping/internal/status"
)

const (
	waitObject0 = 0x00000000
	waitTimeout = 0x00000102
	waitFailed  = 0xFFFFFFFF

	infinite          = 0xFFFFFFFF
	wtExecuteOnlyOnce = 0x00000008
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procRegisterWaitForSingleObject = modkernel32.NewProc("RegisterWaitForSingleObject")
	procUnregisterWaitEx            = modkernel32.NewProc("UnregisterWaitEx")
)

// Thread-pool callbacks carry only an opaque context value, so each armed
// wait is registered under an id and looked up here. Entries live from Arm
// until Release.
var (
	waits  sync.Map // uintptr -> Waker
	waitID atomic.Uintptr

	callbackOnce sync.Once
	callbackPtr  uintptr
)

// waitCallback runs on a thread-pool thread. It never touches the request;
// it only wakes whoever is polling.
func waitCallback(context, timerOrWaitFired uintptr) uintptr {
	if w, ok := waits.Load(context); ok {
		w.(Waker).Wake()
	}
	return 0
}

func callback() uintptr {
	callbackOnce.Do(func() {
		callbackPtr = windows.NewCallback(waitCallback)
	})
	return callbackPtr
}

// EventSender issues a request that signals an event object when done.
type EventSender[T any] interface {
	// Send returns status.ErrIOPending once the request is outstanding.
	Send(event windows.Handle) error

	// Reply decodes the completed request.
	Reply() (T, error)

	Close() error
}

// EventSource completes an EventSender through a manual-reset event and a
// registered thread-pool wait.
type EventSource[T any] struct {
	sender EventSender[T]
	event  windows.Handle
	wait   windows.Handle
	id     uintptr
}

// NewEventSource returns a source over sender. The source owns sender and
// closes it on Release.
func NewEventSource[T any](sender EventSender[T]) *EventSource[T] {
	return &EventSource[T]{sender: sender}
}

func (s *EventSource[T]) Start() (T, error) {
	var zero T

	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return zero, status.FromErrno(err)
	}
	s.event = event

	if err := s.sender.Send(event); err != nil {
		return zero, err
	}
	return s.sender.Reply()
}

func (s *EventSource[T]) Check() (T, error) {
	var zero T

	r, err := windows.WaitForSingleObject(s.event, 0)
	switch r {
	case waitTimeout:
		return zero, status.ErrIOPending
	case waitObject0:
		return s.sender.Reply()
	default:
		if err == nil {
			return zero, status.OSError(r, status.Message(r))
		}
		return zero, status.FromErrno(err)
	}
}

func (s *EventSource[T]) Arm(n Notifier[T]) error {
	s.id = waitID.Add(1)
	waits.Store(s.id, Waker(n))

	r, _, err := procRegisterWaitForSingleObject.Call(
		uintptr(unsafe.Pointer(&s.wait)),
		uintptr(s.event),
		callback(),
		s.id,
		infinite,
		wtExecuteOnlyOnce,
	)
	if r == 0 {
		waits.Delete(s.id)
		s.wait = 0
		return status.FromErrno(err)
	}
	return nil
}

func (s *EventSource[T]) Release() error {
	var errs []error

	if s.wait != 0 {
		// INVALID_HANDLE_VALUE blocks until a running callback returns.
		r, _, err := procUnregisterWaitEx.Call(uintptr(s.wait), uintptr(windows.InvalidHandle))
		if r == 0 {
			errs = append(errs, status.FromErrno(err))
		}
		s.wait = 0
	}
	if s.id != 0 {
		waits.Delete(s.id)
	}

	if s.event != 0 {
		if err := windows.CloseHandle(s.event); err != nil {
			errs = append(errs, status.FromErrno(err))
		}
		s.event = 0
	}

	if err := s.sender.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
