//go:build !unix && !windows

package status

import (
	"syscall"
	"testing"
)

func TestMessage_Fallback(t *testing.T) {
	if got, want := Message(5), "Ping failed (5)"; got != want {
		t.Errorf("Message(5) = %q, want %q", got, want)
	}
}

func TestFromErrno_Fallback(t *testing.T) {
	if err := FromErrno(syscall.EAGAIN); !IsPending(err) {
		t.Errorf("FromErrno(EAGAIN) = %v, want pending", err)
	}
	if err := FromErrno(syscall.ETIMEDOUT); KindOf(err) != KindTimedOut {
		t.Errorf("FromErrno(ETIMEDOUT) = %v, want timed_out", err)
	}
}
