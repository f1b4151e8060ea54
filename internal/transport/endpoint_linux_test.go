//go:build linux

package transport

import (
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/postalsys/muti-ping/internal/status"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list descriptors: %v", err)
	}
	return len(entries)
}

func openLoopback(t *testing.T, async bool) *Socket {
	t.Helper()
	s, err := OpenSocket(SocketConfig{
		Destination: netip.MustParseAddr("127.0.0.1"),
		Timeout:     time.Second,
		Payload:     []byte("loopback"),
		Options:     &Options{TTL: 64, DontFragment: true},
		Async:       async,
	})
	if status.KindOf(err) == status.KindOS {
		t.Skipf("ICMP datagram sockets unavailable: %v", err)
	}
	if err != nil {
		t.Fatalf("OpenSocket() error = %v", err)
	}
	return s
}

func TestSocket_LoopbackExchange(t *testing.T) {
	s := openLoopback(t, false)
	defer s.Close()

	reply, err := s.Exchange()
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if !reply.Address.IsLoopback() {
		t.Errorf("Address = %v, want loopback", reply.Address)
	}
}

func TestSocket_LoopbackAsync(t *testing.T) {
	s := openLoopback(t, true)
	defer s.Close()

	if err := s.Send(); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for {
		ok, err := s.WaitReadable(time.Until(s.Deadline()))
		if err != nil {
			t.Fatalf("WaitReadable() error = %v", err)
		}
		if !ok {
			t.Fatal("no reply before the deadline")
		}
		_, err = s.Receive()
		if status.IsPending(err) {
			continue
		}
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		return
	}
}

func TestSocket_ReleasesDescriptor(t *testing.T) {
	before := openFDs(t)

	for i := 0; i < 10; i++ {
		s := openLoopback(t, i%2 == 0)
		s.Close()
		s.Close()
	}

	if after := openFDs(t); after != before {
		t.Errorf("descriptor count %d after closing, want %d", after, before)
	}
}

func TestSocket_LoopbackInterrupt(t *testing.T) {
	s := openLoopback(t, true)
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		ok, err := s.WaitReadable(time.Hour)
		if ok {
			err = status.OSError(0, "readable without a request")
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := s.Interrupt(); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitReadable() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReadable() still blocked after Interrupt")
	}
}
