//go:build !unix && !windows

package status

import (
	"fmt"
	"syscall"
)

// Message resolves a human-readable description for a native error code.
func Message(code uint32) string {
	return fmt.Sprintf("Ping failed (%d)", code)
}

func isWouldBlock(errno syscall.Errno) bool {
	return errno == syscall.EAGAIN
}

func isTimeout(errno syscall.Errno) bool {
	return errno == syscall.ETIMEDOUT
}
