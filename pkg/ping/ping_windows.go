//go:build windows

package ping

import (
	"net/netip"
	"time"

	"golang.org/x/sys/windows"

	"github.com/postalsys/muti-ping/internal/completion"
	"github.com/postalsys/muti-ping/internal/transport"
)

const maxPayload = transport.MaxNativePayload

func (p *Pinger) exchange(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) (Reply, error) {
	n, err := transport.OpenNative(addr)
	if err != nil {
		return Reply{}, err
	}
	defer n.Close()

	return n.Exchange(payload, opts, timeout)
}

func (p *Pinger) source(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) (completion.Source[Reply], error) {
	n, err := transport.OpenNative(addr)
	if err != nil {
		return nil, err
	}
	return completion.NewEventSource[Reply](nativeRequest{
		Native:  n,
		payload: payload,
		opts:    opts,
		timeout: timeout,
	}), nil
}

// nativeRequest binds one request's arguments to an ICMP handle.
type nativeRequest struct {
	*transport.Native
	payload []byte
	opts    *Options
	timeout time.Duration
}

func (r nativeRequest) Send(event windows.Handle) error {
	return r.Native.Send(event, r.payload, r.opts, r.timeout)
}
