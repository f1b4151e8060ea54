//go:build !unix && !windows

package ping

import (
	"net/netip"
	"time"

	"github.com/postalsys/muti-ping/internal/completion"
	"github.com/postalsys/muti-ping/internal/status"
	"github.com/postalsys/muti-ping/internal/transport"
)

const maxPayload = transport.MaxSocketPayload

var errUnsupported = status.OSError(0, "icmp echo is not supported on this platform")

func (p *Pinger) exchange(netip.Addr, time.Duration, []byte, *Options) (Reply, error) {
	return Reply{}, errUnsupported
}

func (p *Pinger) source(netip.Addr, time.Duration, []byte, *Options) (completion.Source[Reply], error) {
	return nil, errUnsupported
}
