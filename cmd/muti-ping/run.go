package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/postalsys/muti-ping/internal/status"
	"github.com/postalsys/muti-ping/pkg/ping"
)

var errNoReplies = errors.New("no replies received")

// resolveHost parses host as an address or looks it up. network is "ip",
// "ip4" or "ip6".
func resolveHost(ctx context.Context, network, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if (network == "ip4" && !addr.Is4()) || (network == "ip6" && !addr.Is6()) {
			return netip.Addr{}, fmt.Errorf("%s is not an %s address", host, network)
		}
		return addr, nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, network, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("failed to resolve %s: no addresses", host)
	}
	return addrs[0].Unmap(), nil
}

// runner sends a sequence of echo requests and reports each outcome.
type runner struct {
	pinger  *ping.Pinger
	out     *printer
	host    string
	addr    netip.Addr
	timeout time.Duration
	payload []byte
	opts    *ping.Options
	count   int
	limiter *rate.Limiter
	async   bool
	stats   *stats
}

func (r *runner) run(ctx context.Context) error {
	r.out.header(r.host, r.addr, len(r.payload))

	for seq := 1; r.count == 0 || seq <= r.count; seq++ {
		if err := r.limiter.Wait(ctx); err != nil {
			break
		}

		reply, err := r.send(ctx)
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			break
		}
		r.stats.add(reply, err)
		r.out.result(seq, len(r.payload), reply, err)
	}

	r.out.summary(r.addr, r.stats)
	if r.stats.received == 0 {
		return errNoReplies
	}
	return nil
}

func (r *runner) send(ctx context.Context) (ping.Reply, error) {
	if !r.async {
		return r.pinger.SendPing(r.addr, r.timeout, r.payload, r.opts)
	}

	pe := r.pinger.SendPingAsync(r.addr, r.timeout, r.payload, r.opts)
	defer pe.Close()
	return pe.Wait(ctx)
}

// stats accumulates round-trip statistics.
type stats struct {
	sent     int
	received int
	min, max uint32
	sum      uint64
}

func newStats() *stats {
	return &stats{}
}

func (s *stats) add(reply ping.Reply, err error) {
	s.sent++
	if err != nil {
		return
	}
	if s.received == 0 || reply.RTT < s.min {
		s.min = reply.RTT
	}
	if reply.RTT > s.max {
		s.max = reply.RTT
	}
	s.sum += uint64(reply.RTT)
	s.received++
}

func (s *stats) lost() int {
	return s.sent - s.received
}

// loss returns the lost share in percent.
func (s *stats) loss() int {
	if s.sent == 0 {
		return 0
	}
	return s.lost() * 100 / s.sent
}

func (s *stats) avg() uint32 {
	if s.received == 0 {
		return 0
	}
	return uint32(s.sum / uint64(s.received))
}

// printer writes results, styled when the output is a terminal.
type printer struct {
	w     io.Writer
	color bool

	okStyle   lipgloss.Style
	failStyle lipgloss.Style
	dimStyle  lipgloss.Style
	headStyle lipgloss.Style
}

func newPrinter(f *os.File) *printer {
	return newPrinterWriter(f, term.IsTerminal(int(f.Fd())))
}

func newPrinterWriter(w io.Writer, color bool) *printer {
	return &printer{
		w:         w,
		color:     color,
		okStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		dimStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		headStyle: lipgloss.NewStyle().Bold(true),
	}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *printer) header(host string, addr netip.Addr, size int) {
	target := addr.String()
	if host != target {
		target = fmt.Sprintf("%s [%s]", host, addr)
	}
	fmt.Fprintln(p.w, p.render(p.headStyle,
		fmt.Sprintf("Pinging %s with %s of data:", target, humanize.IBytes(uint64(size)))))
}

func (p *printer) result(seq, size int, reply ping.Reply, err error) {
	if err != nil {
		var msg string
		var e *status.Error
		switch {
		case errors.Is(err, status.ErrTimedOut), errors.As(err, &e) && e.Kind == status.KindIP && e.Code == status.RequestTimedOut:
			msg = "Request timed out."
		case errors.As(err, &e) && e.Kind == status.KindIP && status.StatusName(e.Code) != "":
			msg = capitalize(status.StatusName(e.Code)) + "."
		default:
			msg = fmt.Sprintf("Request failed: %v", err)
		}
		fmt.Fprintln(p.w, p.render(p.failStyle, msg)+p.render(p.dimStyle, fmt.Sprintf(" seq=%d", seq)))
		return
	}

	rtt := fmt.Sprintf("time=%dms", reply.RTT)
	if reply.RTT == 0 {
		rtt = "time<1ms"
	}
	fmt.Fprintf(p.w, "%s: bytes=%d %s%s\n",
		p.render(p.okStyle, "Reply from "+reply.Address.String()),
		size, rtt, p.render(p.dimStyle, fmt.Sprintf(" seq=%d", seq)))
}

func (p *printer) summary(addr netip.Addr, s *stats) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.render(p.headStyle, fmt.Sprintf("Ping statistics for %s:", addr)))

	lost := fmt.Sprintf("Lost = %s (%d%% loss)", humanize.Comma(int64(s.lost())), s.loss())
	if s.lost() > 0 {
		lost = p.render(p.failStyle, lost)
	}
	fmt.Fprintf(p.w, "    Packets: Sent = %s, Received = %s, %s\n",
		humanize.Comma(int64(s.sent)), humanize.Comma(int64(s.received)), lost)

	if s.received == 0 {
		return
	}
	fmt.Fprintln(p.w, "Approximate round trip times in milli-seconds:")
	fmt.Fprintf(p.w, "    Minimum = %dms, Maximum = %dms, Average = %dms\n", s.min, s.max, s.avg())
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
