//go:build windows

package transport

import (
	"errors"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/windows"

	"github.com/postalsys/muti-ping/internal/status"
)

func TestNative_LoopbackExchange(t *testing.T) {
	for _, addr := range []string{"127.0.0.1", "::1"} {
		t.Run(addr, func(t *testing.T) {
			n, err := OpenNative(netip.MustParseAddr(addr))
			if err != nil {
				t.Skipf("ICMP handle unavailable: %v", err)
			}
			defer n.Close()

			reply, err := n.Exchange([]byte("loopback"), &Options{TTL: 64}, time.Second)
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			if !reply.Address.IsLoopback() {
				t.Errorf("Address = %v, want loopback", reply.Address)
			}
		})
	}
}

func TestNative_SendValidation(t *testing.T) {
	n, err := OpenNative(netip.MustParseAddr("127.0.0.1"))
	if err != nil {
		t.Skipf("ICMP handle unavailable: %v", err)
	}
	defer n.Close()

	err = n.Send(0, make([]byte, MaxNativePayload+1), nil, time.Second)
	var e *status.Error
	if !errors.As(err, &e) || e.Kind != status.KindDataSizeTooBig || e.Max != MaxNativePayload {
		t.Errorf("oversized Send() error = %v, want DataSizeTooBig(%d)", err, MaxNativePayload)
	}

	if err := n.Send(0, nil, nil, 0); status.KindOf(err) != status.KindBadParameter {
		t.Errorf("zero timeout Send() error = %v, want bad_parameter", err)
	}
}

func TestNative_CloseIsIdempotent(t *testing.T) {
	n, err := OpenNative(netip.MustParseAddr("127.0.0.1"))
	if err != nil {
		t.Skipf("ICMP handle unavailable: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind status.Kind
		code uint32
	}{
		{"no error code", syscall.Errno(0), status.KindTimedOut, 0},
		{"nil", nil, status.KindTimedOut, 0},
		{"ERROR_TIMEOUT", windows.ERROR_TIMEOUT, status.KindTimedOut, 0},
		{"request timed out status", syscall.Errno(status.RequestTimedOut), status.KindIP, status.RequestTimedOut},
		{"out of memory", windows.ERROR_NOT_ENOUGH_MEMORY, status.KindOS, uint32(windows.ERROR_NOT_ENOUGH_MEMORY)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := sendError(tc.err)
			if got := status.KindOf(err); got != tc.kind {
				t.Fatalf("kind = %v, want %v (err %v)", got, tc.kind, err)
			}
			if tc.kind == status.KindTimedOut && !errors.Is(err, status.ErrTimedOut) {
				t.Errorf("error = %v, want ErrTimedOut", err)
			}
			var e *status.Error
			if tc.code != 0 && (!errors.As(err, &e) || e.Code != tc.code) {
				t.Errorf("error = %v, want code %d", err, tc.code)
			}
		})
	}
}
