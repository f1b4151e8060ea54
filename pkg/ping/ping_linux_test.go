//go:build linux

package ping

import (
	"context"
	"net/netip"
	"os"
	"testing"
	"time"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list descriptors: %v", err)
	}
	return len(entries)
}

func TestSendPingAsync_CancelReleasesSocket(t *testing.T) {
	before := openFDs(t)

	pe := SendPingAsync(netip.MustParseAddr("192.0.2.1"), 5*time.Second, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := pe.Wait(ctx)
	skipIfUnavailable(t, err)
	pe.Close()

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		after := openFDs(t)
		if after == before {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("descriptor count %d after cancelling, want %d", after, before)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
