package completion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/postalsys/muti-ping/internal/status"
)

// fakePollable delivers a single value after a delay.
type fakePollable struct {
	delay  time.Duration
	value  int
	err    error
	noisy  int // pending receives before the value
	panics bool
	sendAt time.Time

	mu                 sync.Mutex
	noise              int
	closes             atomic.Int32
	polling            atomic.Bool
	closedWhilePolling atomic.Bool
	interrupted        chan struct{}
	interruptOnce      sync.Once
}

func (p *fakePollable) interruptCh() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interrupted == nil {
		p.interrupted = make(chan struct{})
	}
	return p.interrupted
}

func (p *fakePollable) Interrupt() error {
	ch := p.interruptCh()
	p.interruptOnce.Do(func() { close(ch) })
	return nil
}

func (p *fakePollable) Send() error {
	p.sendAt = time.Now()
	return nil
}

func (p *fakePollable) ready() bool {
	return time.Since(p.sendAt) >= p.delay
}

func (p *fakePollable) Receive() (int, error) {
	if !p.ready() {
		return 0, status.ErrIOPending
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noise < p.noisy {
		p.noise++
		return 0, status.ErrIOPending
	}
	return p.value, p.err
}

func (p *fakePollable) WaitReadable(timeout time.Duration) (bool, error) {
	p.polling.Store(true)
	defer p.polling.Store(false)

	if p.panics {
		panic("readiness poll failed")
	}

	stop := p.interruptCh()
	wait := p.delay - time.Since(p.sendAt)
	if wait > timeout {
		select {
		case <-time.After(timeout):
		case <-stop:
		}
		return false, nil
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-stop:
			return false, nil
		}
	}
	return true, nil
}

func (p *fakePollable) Close() error {
	if p.polling.Load() {
		p.closedWhilePolling.Store(true)
	}
	p.closes.Add(1)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPollSource_ImmediateReply(t *testing.T) {
	p := &fakePollable{value: 3}
	f := New[int](NewPollSource[int](p, time.Second))

	r, ok := f.Poll(&countingWaker{})
	if !ok || r.Value != 3 {
		t.Fatalf("Poll() = %+v, %v; want 3, true", r, ok)
	}
	if p.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", p.closes.Load())
	}
}

func TestPollSource_WorkerCompletes(t *testing.T) {
	p := &fakePollable{value: 11, delay: 20 * time.Millisecond, noisy: 2}
	f := New[int](NewPollSource[int](p, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := f.Wait(ctx)
	if err != nil || v != 11 {
		t.Fatalf("Wait() = %d, %v; want 11, nil", v, err)
	}
	waitFor(t, func() bool { return p.closes.Load() == 1 })
}

func TestPollSource_Timeout(t *testing.T) {
	p := &fakePollable{value: 1, delay: time.Hour}
	f := New[int](NewPollSource[int](p, 30*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := f.Wait(ctx)
	if !errors.Is(err, status.ErrTimedOut) {
		t.Fatalf("Wait() error = %v, want TimedOut", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("timed out after %v", elapsed)
	}
	waitFor(t, func() bool { return p.closes.Load() == 1 })
}

func TestPollSource_ReceiveError(t *testing.T) {
	want := status.IPError(status.BadHeader)
	p := &fakePollable{err: want, delay: 10 * time.Millisecond}
	f := New[int](NewPollSource[int](p, time.Second))

	_, err := f.Wait(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("Wait() error = %v, want %v", err, want)
	}
}

func TestPollSource_CloseHandsOffToWorker(t *testing.T) {
	p := &fakePollable{value: 1, delay: 50 * time.Millisecond}
	f := New[int](NewPollSource[int](p, time.Second))

	if _, ok := f.Poll(&countingWaker{}); ok {
		t.Fatal("Poll() ready before the reply")
	}
	waitFor(t, p.polling.Load)

	f.Close()

	waitFor(t, func() bool { return p.closes.Load() == 1 })
	if p.closedWhilePolling.Load() {
		t.Error("endpoint closed under a running poll")
	}
}

func TestPollSource_CloseInterruptsWorker(t *testing.T) {
	p := &fakePollable{value: 1, delay: time.Hour}
	f := New[int](NewPollSource[int](p, time.Hour))

	if _, ok := f.Poll(&countingWaker{}); ok {
		t.Fatal("Poll() ready before the reply")
	}
	waitFor(t, p.polling.Load)

	start := time.Now()
	f.Close()

	waitFor(t, func() bool { return p.closes.Load() == 1 })
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("endpoint closed %v after Close, want promptly", elapsed)
	}
	if p.closedWhilePolling.Load() {
		t.Error("endpoint closed under a running poll")
	}
}

func TestPollSource_ArmIsSingleFlight(t *testing.T) {
	src := NewPollSource[int](&fakePollable{delay: time.Hour}, 50*time.Millisecond)
	src.Start()

	var completions atomic.Int32
	n := notifierFunc(func() { completions.Add(1) })

	for i := 0; i < 4; i++ {
		if err := src.Arm(n); err != nil {
			t.Fatalf("Arm() error = %v", err)
		}
	}

	waitFor(t, func() bool { return completions.Load() > 0 })
	time.Sleep(20 * time.Millisecond)
	if got := completions.Load(); got != 1 {
		t.Errorf("worker completed %d times, want 1", got)
	}
}

type notifierFunc func()

func (f notifierFunc) Wake()               {}
func (f notifierFunc) Complete(int, error) { f() }

func TestPollSource_WorkerPanic(t *testing.T) {
	p := &fakePollable{delay: time.Hour, panics: true}
	f := New[int](NewPollSource[int](p, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.Wait(ctx)
	if status.KindOf(err) != status.KindOS {
		t.Fatalf("Wait() error = %v, want an OS error", err)
	}
	waitFor(t, func() bool { return p.closes.Load() == 1 })
}
