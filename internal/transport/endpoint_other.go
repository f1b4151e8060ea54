//go:build unix && !linux && !darwin

package transport

import (
	"github.com/postalsys/muti-ping/internal/status"
)

const (
	datagramHasIPHeader = false
	datagramKernelIdent = false
)

func openSystemEndpoint(endpointConfig) (endpoint, error) {
	return nil, status.OSError(0, "icmp sockets are not supported on this platform")
}
