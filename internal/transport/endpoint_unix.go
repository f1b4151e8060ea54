//go:build linux || darwin

package transport

import (
	"net"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/postalsys/muti-ping/internal/icmp"
)

// fdEndpoint is an ICMP socket driven through raw system calls so that the
// descriptor can be polled from a worker goroutine without the runtime
// netpoller owning it.
type fdEndpoint struct {
	fd     int
	family icmp.Family

	// wake is a pipe polled beside fd on async sockets. A write to wake[1]
	// ends a running WaitReadable. Both ends are -1 on blocking sockets.
	wake [2]int
}

func openSystemEndpoint(cfg endpointConfig) (endpoint, error) {
	domain, proto := unix.AF_INET, unix.IPPROTO_ICMP
	if cfg.family == icmp.V6 {
		domain, proto = unix.AF_INET6, unix.IPPROTO_ICMPV6
	}
	typ := unix.SOCK_DGRAM
	if cfg.mode == ModeRaw {
		typ = unix.SOCK_RAW
	}

	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)

	ep := &fdEndpoint{fd: fd, family: cfg.family, wake: [2]int{-1, -1}}
	if err := ep.configure(cfg); err != nil {
		ep.Close()
		return nil, err
	}
	return ep, nil
}

func (e *fdEndpoint) openWakePipe() error {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return err
	}
	e.wake = p
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			return err
		}
	}
	return nil
}

func (e *fdEndpoint) configure(cfg endpointConfig) error {
	opts := cfg.options.Resolve()

	if e.family == icmp.V6 {
		if err := unix.SetsockoptInt(e.fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, int(opts.TTL)); err != nil {
			return err
		}
	} else {
		if err := unix.SetsockoptInt(e.fd, unix.IPPROTO_IP, unix.IP_TTL, int(opts.TTL)); err != nil {
			return err
		}
	}

	if opts.DontFragment {
		if err := setDontFragment(e.fd, e.family); err != nil {
			return err
		}
	}

	if err := e.SetReadTimeout(cfg.timeout); err != nil {
		return err
	}

	if cfg.async {
		if err := unix.SetNonblock(e.fd, true); err != nil {
			return err
		}
		return e.openWakePipe()
	}
	return nil
}

func (e *fdEndpoint) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if tv.Sec == 0 && tv.Usec == 0 {
		// A zero timeval disables the timeout entirely.
		tv.Usec = 1
	}
	return unix.SetsockoptTimeval(e.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (e *fdEndpoint) SendTo(b []byte, dst netip.Addr) error {
	sa, err := sockaddr(dst)
	if err != nil {
		return err
	}
	for {
		err = unix.Sendto(e.fd, b, 0, sa)
		if err != unix.EINTR {
			return err
		}
	}
}

func (e *fdEndpoint) RecvFrom(b []byte) (int, netip.Addr, error) {
	for {
		n, from, err := unix.Recvfrom(e.fd, b, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, netip.Addr{}, err
		}
		return n, sockaddrAddr(from), nil
	}
}

func (e *fdEndpoint) WaitReadable(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	if e.wake[0] >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(e.wake[0]), Events: unix.POLLIN})
	}
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		ms := int((remaining + time.Millisecond - 1) / time.Millisecond)

		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if len(fds) > 1 && fds[1].Revents != 0 {
			return false, nil
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return false, unix.EBADF
		}
		// POLLERR and POLLHUP are reported as readable so the pending
		// error surfaces from the next receive.
		return true, nil
	}
}

// Wake ends a running WaitReadable. The pipe is left readable, so any later
// wait returns at once as well.
func (e *fdEndpoint) Wake() error {
	if e.wake[1] < 0 {
		return nil
	}
	_, err := unix.Write(e.wake[1], []byte{1})
	if err == unix.EAGAIN {
		// The pipe already holds a wake-up.
		return nil
	}
	return err
}

func (e *fdEndpoint) Close() error {
	for i, fd := range e.wake {
		if fd >= 0 {
			unix.Close(fd)
			e.wake[i] = -1
		}
	}
	return unix.Close(e.fd)
}

func sockaddr(dst netip.Addr) (unix.Sockaddr, error) {
	if dst.Is4() {
		return &unix.SockaddrInet4{Addr: dst.As4()}, nil
	}

	sa := &unix.SockaddrInet6{Addr: dst.As16()}
	if zone := dst.Zone(); zone != "" {
		ifi, err := net.InterfaceByName(zone)
		if err != nil {
			return nil, err
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return sa, nil
}

func sockaddrAddr(sa unix.Sockaddr) netip.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(sa.Addr)
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(sa.Addr)
	default:
		return netip.Addr{}
	}
}
