package transport

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/postalsys/muti-ping/internal/status"
)

func echoReply4(addr string, st, rtt uint32) []byte {
	b := make([]byte, 40)
	a := netip.MustParseAddr(addr).As4()
	copy(b[echoReply4Address:], a[:])
	binary.LittleEndian.PutUint32(b[echoReply4Status:], st)
	binary.LittleEndian.PutUint32(b[echoReply4RTT:], rtt)
	return b
}

func echoReply6(addr string, st, rtt uint32) []byte {
	b := make([]byte, 40)
	binary.LittleEndian.PutUint16(b[0:], 0)
	binary.LittleEndian.PutUint32(b[2:], 0)
	a := netip.MustParseAddr(addr).As16()
	copy(b[echoReply6Address:], a[:])
	binary.LittleEndian.PutUint32(b[echoReply6Scope:], 0)
	binary.LittleEndian.PutUint32(b[echoReply6Status:], st)
	binary.LittleEndian.PutUint32(b[echoReply6RTT:], rtt)
	return b
}

func TestDecodeEchoReply4(t *testing.T) {
	tests := []struct {
		name    string
		status  uint32
		wantErr error
	}{
		{"success", status.Success, nil},
		{"timed out", status.RequestTimedOut, status.IPError(status.RequestTimedOut)},
		{"ttl expired", status.TTLExpired, status.IPError(status.TTLExpired)},
		{"host unreachable", status.DestinationHostUnreachable, status.IPError(status.DestinationHostUnreachable)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reply, err := DecodeEchoReply4(echoReply4("192.0.2.7", tc.status, 13))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEchoReply4() error = %v", err)
			}
			if reply.Address != netip.MustParseAddr("192.0.2.7") {
				t.Errorf("Address = %v, want 192.0.2.7", reply.Address)
			}
			if reply.RTT != 13 {
				t.Errorf("RTT = %d, want 13", reply.RTT)
			}
		})
	}
}

func TestDecodeEchoReply4_OSStatus(t *testing.T) {
	_, err := DecodeEchoReply4(echoReply4("192.0.2.7", 5, 0))
	if status.KindOf(err) != status.KindOS {
		t.Errorf("kind = %v, want os_error", status.KindOf(err))
	}
}

func TestDecodeEchoReply6(t *testing.T) {
	reply, err := DecodeEchoReply6(echoReply6("2001:db8::1", status.Success, 250))
	if err != nil {
		t.Fatalf("DecodeEchoReply6() error = %v", err)
	}
	if reply.Address != netip.MustParseAddr("2001:db8::1") {
		t.Errorf("Address = %v, want 2001:db8::1", reply.Address)
	}
	if reply.RTT != 250 {
		t.Errorf("RTT = %d, want 250", reply.RTT)
	}

	_, err = DecodeEchoReply6(echoReply6("2001:db8::1", status.DestinationUnreachable, 0))
	if !errors.Is(err, status.IPError(status.DestinationUnreachable)) {
		t.Errorf("error = %v, want DestinationUnreachable", err)
	}
}

func TestDecodeEchoReply_Short(t *testing.T) {
	if _, err := DecodeEchoReply4(make([]byte, echoReply4Size-1)); !errors.Is(err, status.ErrBadHeader) {
		t.Errorf("v4 short error = %v, want BadHeader", err)
	}
	if _, err := DecodeEchoReply6(make([]byte, echoReply6Size-1)); !errors.Is(err, status.ErrBadHeader) {
		t.Errorf("v6 short error = %v, want BadHeader", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeDatagram, false},
		{"datagram", ModeDatagram, false},
		{"dgram", ModeDatagram, false},
		{"raw", ModeRaw, false},
		{"stream", ModeDatagram, true},
	}

	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOptions_Resolve(t *testing.T) {
	var nilOpts *Options
	if got := nilOpts.Resolve(); got.TTL != DefaultTTL || got.DontFragment {
		t.Errorf("nil Resolve() = %+v, want TTL %d", got, DefaultTTL)
	}

	opts := &Options{TTL: 5, DontFragment: true}
	if got := opts.Resolve(); got != *opts {
		t.Errorf("Resolve() = %+v, want %+v", got, *opts)
	}
}

func TestValidateTimeout(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		err := ValidateTimeout(d)
		var e *status.Error
		if !errors.As(err, &e) || e.Kind != status.KindBadParameter || e.Param != "timeout" {
			t.Errorf("ValidateTimeout(%v) = %v, want BadParameter(timeout)", d, err)
		}
	}
	if err := ValidateTimeout(1); err != nil {
		t.Errorf("ValidateTimeout(1ns) = %v", err)
	}
}
