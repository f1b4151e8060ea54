//go:build linux

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/postalsys/muti-ping/internal/icmp"
)

const (
	// Linux ping sockets deliver only the ICMP message.
	datagramHasIPHeader = false
	// Linux ping sockets rewrite the identifier to the bound port and
	// filter replies by it.
	datagramKernelIdent = true
)

func setDontFragment(fd int, family icmp.Family) error {
	if family == icmp.V6 {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_DONTFRAG, 1)
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
}
