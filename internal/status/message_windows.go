//go:build windows

package status

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	errorTimeout   = syscall.Errno(1460)  // ERROR_TIMEOUT
	wsaWouldBlock  = syscall.Errno(10035) // WSAEWOULDBLOCK
	wsaTimedOut    = syscall.Errno(10060) // WSAETIMEDOUT
	messageBufSize = 512
)

// Message resolves a human-readable description for a native error code
// through the system message table.
func Message(code uint32) string {
	buf := make([]uint16, messageBufSize)
	flags := uint32(windows.FORMAT_MESSAGE_FROM_SYSTEM | windows.FORMAT_MESSAGE_IGNORE_INSERTS)
	n, err := windows.FormatMessage(flags, 0, code, 0, buf, nil)
	if err != nil || n == 0 {
		return fmt.Sprintf("Ping failed (%d)", code)
	}
	msg := strings.TrimRight(windows.UTF16ToString(buf[:n]), "\r\n. ")
	if msg == "" {
		return fmt.Sprintf("Ping failed (%d)", code)
	}
	return msg
}

func isWouldBlock(errno syscall.Errno) bool {
	return errno == windows.ERROR_IO_PENDING || errno == wsaWouldBlock
}

func isTimeout(errno syscall.Errno) bool {
	return errno == errorTimeout || errno == wsaTimedOut
}
