//go:build unix

package status

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
)

func TestMessage_Unresolvable(t *testing.T) {
	msg := Message(10999)
	if msg == "" {
		t.Fatal("Message returned empty string")
	}
	if strings.HasPrefix(msg, "errno ") {
		t.Errorf("Message(10999) = %q, expected synthesized text", msg)
	}
}

func TestFromErrno(t *testing.T) {
	if FromErrno(nil) != nil {
		t.Error("FromErrno(nil) should be nil")
	}

	if !IsPending(FromErrno(syscall.EAGAIN)) {
		t.Error("EAGAIN should map to pending")
	}

	wrapped := fmt.Errorf("recvfrom: %w", syscall.EAGAIN)
	if !IsPending(FromErrno(wrapped)) {
		t.Error("wrapped EAGAIN should map to pending")
	}

	err := FromErrno(syscall.EACCES)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindOS {
		t.Fatalf("EACCES = %v, want KindOS", err)
	}
	if e.Code != uint32(syscall.EACCES) {
		t.Errorf("Code = %d, want %d", e.Code, uint32(syscall.EACCES))
	}

	plain := FromErrno(errors.New("boom"))
	if KindOf(plain) != KindOS || !strings.Contains(plain.Error(), "boom") {
		t.Errorf("plain error = %v, want KindOS containing boom", plain)
	}

	// Already-typed errors pass through.
	if got := FromErrno(ErrTimedOut); got != ErrTimedOut {
		t.Errorf("FromErrno(ErrTimedOut) = %v", got)
	}
}
