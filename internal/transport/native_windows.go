//go:build windows

package transport

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/status"
)

var (
	modiphlpapi = windows.NewLazySystemDLL("iphlpapi.dll")

	procIcmpCreateFile  = modiphlpapi.NewProc("IcmpCreateFile")
	procIcmp6CreateFile = modiphlpapi.NewProc("Icmp6CreateFile")
	procIcmpCloseHandle = modiphlpapi.NewProc("IcmpCloseHandle")
	procIcmpSendEcho2   = modiphlpapi.NewProc("IcmpSendEcho2")
	procIcmp6SendEcho2  = modiphlpapi.NewProc("Icmp6SendEcho2")
)

// ipOptionInformation mirrors IP_OPTION_INFORMATION.
type ipOptionInformation struct {
	TTL         uint8
	TOS         uint8
	Flags       uint8
	OptionsSize uint8
	OptionsData *byte
}

// Native is the request context of the Windows echo API. It owns one ICMP
// handle and the buffers the API writes into, which stay referenced until
// Close so an outstanding asynchronous call never writes into freed memory.
type Native struct {
	family icmp.Family
	dst    netip.Addr
	handle windows.Handle

	request []byte
	options ipOptionInformation
	reply   []byte

	source6 windows.RawSockaddrInet6
	dest6   windows.RawSockaddrInet6

	closeOnce sync.Once
	closeErr  error
}

// OpenNative opens an ICMP handle for the family of dst.
func OpenNative(dst netip.Addr) (*Native, error) {
	if !dst.IsValid() {
		return nil, status.BadParameter("address")
	}
	dst = dst.Unmap()
	family := icmp.FamilyOf(dst)

	proc := procIcmpCreateFile
	if family == icmp.V6 {
		proc = procIcmp6CreateFile
	}
	if err := proc.Find(); err != nil {
		return nil, status.OSError(0, err.Error())
	}

	r, _, err := proc.Call()
	h := windows.Handle(r)
	if h == windows.InvalidHandle {
		return nil, lastError(err)
	}

	n := &Native{
		family: family,
		dst:    dst,
		handle: h,
		reply:  make([]byte, ReplyBufferSize),
	}
	if family == icmp.V6 {
		n.source6.Family = windows.AF_INET6
		n.dest6.Family = windows.AF_INET6
		n.dest6.Addr = dst.As16()
	}
	return n, nil
}

// Family returns the address family of the destination.
func (n *Native) Family() icmp.Family { return n.family }

// Send issues the echo request. With a zero event the call blocks until the
// reply arrives or timeout elapses, and the reply is then available from
// Reply. With an event the call returns ErrIOPending and the event is
// signalled on completion.
func (n *Native) Send(event windows.Handle, payload []byte, opts *Options, timeout time.Duration) error {
	if err := ValidateTimeout(timeout); err != nil {
		return err
	}
	if len(payload) > MaxNativePayload {
		return status.DataSizeTooBig(MaxNativePayload)
	}

	// The API rejects a nil data pointer even for an empty request.
	n.request = make([]byte, max(len(payload), 1))
	copy(n.request, payload)

	o := opts.Resolve()
	n.options = ipOptionInformation{TTL: o.TTL}
	if o.DontFragment {
		n.options.Flags = DontFragmentFlag
	}

	ms := uint32(timeout.Milliseconds())
	if ms == 0 {
		ms = 1
	}

	var r uintptr
	var err error
	if n.family == icmp.V6 {
		r, _, err = procIcmp6SendEcho2.Call(
			uintptr(n.handle),
			uintptr(event),
			0,
			0,
			uintptr(unsafe.Pointer(&n.source6)),
			uintptr(unsafe.Pointer(&n.dest6)),
			uintptr(unsafe.Pointer(&n.request[0])),
			uintptr(len(payload)),
			uintptr(unsafe.Pointer(&n.options)),
			uintptr(unsafe.Pointer(&n.reply[0])),
			uintptr(len(n.reply)),
			uintptr(ms),
		)
	} else {
		a := n.dst.As4()
		r, _, err = procIcmpSendEcho2.Call(
			uintptr(n.handle),
			uintptr(event),
			0,
			0,
			uintptr(binary.LittleEndian.Uint32(a[:])),
			uintptr(unsafe.Pointer(&n.request[0])),
			uintptr(len(payload)),
			uintptr(unsafe.Pointer(&n.options)),
			uintptr(unsafe.Pointer(&n.reply[0])),
			uintptr(len(n.reply)),
			uintptr(ms),
		)
	}

	if r != 0 {
		return nil
	}
	if event != 0 && errors.Is(err, windows.ERROR_IO_PENDING) {
		return status.ErrIOPending
	}
	return sendError(err)
}

// Reply decodes the reply buffer written by the last Send.
func (n *Native) Reply() (Reply, error) {
	if n.family == icmp.V6 {
		return DecodeEchoReply6(n.reply)
	}
	return DecodeEchoReply4(n.reply)
}

// Exchange sends the request and blocks for the reply.
func (n *Native) Exchange(payload []byte, opts *Options, timeout time.Duration) (Reply, error) {
	if err := n.Send(0, payload, opts, timeout); err != nil {
		return Reply{}, err
	}
	return n.Reply()
}

// Close releases the ICMP handle. It is safe to call more than once.
func (n *Native) Close() error {
	n.closeOnce.Do(func() {
		r, _, err := procIcmpCloseHandle.Call(uintptr(n.handle))
		if r == 0 {
			n.closeErr = lastError(err)
		}
	})
	return n.closeErr
}

// sendError classifies a failed IcmpSendEcho2. ERROR_TIMEOUT, or no replies
// without an error code, means nothing arrived in time.
func sendError(err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) || errno == 0 || errno == windows.ERROR_TIMEOUT {
		return status.ErrTimedOut
	}
	return lastError(err)
}

// lastError classifies the error captured by LazyProc.Call.
func lastError(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		if e := status.Classify(uint32(errno)); e != nil {
			return e
		}
	}
	return status.OSError(0, "Ping failed (0)")
}
