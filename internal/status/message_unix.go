//go:build unix

package status

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Message resolves a human-readable description for a native error code.
func Message(code uint32) string {
	msg := unix.Errno(code).Error()
	if msg == "" || strings.HasPrefix(msg, "errno ") {
		return fmt.Sprintf("Ping failed (%d)", code)
	}
	return msg
}

func isWouldBlock(errno unix.Errno) bool {
	return errno == unix.EAGAIN || errno == unix.EWOULDBLOCK
}

func isTimeout(errno unix.Errno) bool {
	return errno == unix.ETIMEDOUT
}
