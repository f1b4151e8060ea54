//go:build darwin

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/postalsys/muti-ping/internal/icmp"
)

const (
	datagramHasIPHeader = true
	datagramKernelIdent = false
)

func setDontFragment(fd int, family icmp.Family) error {
	if family == icmp.V6 {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_DONTFRAG, 1)
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_DONTFRAG, 1)
}
