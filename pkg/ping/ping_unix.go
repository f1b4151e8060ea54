//go:build unix

package ping

import (
	"net/netip"
	"time"

	"github.com/postalsys/muti-ping/internal/completion"
	"github.com/postalsys/muti-ping/internal/transport"
)

const maxPayload = transport.MaxSocketPayload

func (p *Pinger) socketConfig(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) transport.SocketConfig {
	return transport.SocketConfig{
		Destination: addr,
		Timeout:     timeout,
		Payload:     payload,
		Options:     opts,
		Mode:        p.mode,
	}
}

func (p *Pinger) exchange(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) (Reply, error) {
	s, err := transport.OpenSocket(p.socketConfig(addr, timeout, payload, opts))
	if err != nil {
		return Reply{}, err
	}
	defer s.Close()

	return s.Exchange()
}

func (p *Pinger) source(addr netip.Addr, timeout time.Duration, payload []byte, opts *Options) (completion.Source[Reply], error) {
	cfg := p.socketConfig(addr, timeout, payload, opts)
	cfg.Async = true

	s, err := transport.OpenSocket(cfg)
	if err != nil {
		return nil, err
	}
	return completion.NewPollSource[Reply](s, timeout).WithLogger(p.logger), nil
}
