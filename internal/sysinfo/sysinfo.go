// Package sysinfo collects host information reported by the probe server.
package sysinfo

import (
	"net"
	"net/netip"
	"os"
	"runtime"
	"time"
)

// Version is set at build time via ldflags:
// go build -ldflags="-X github.com/postalsys/muti-ping/internal/sysinfo.Version=1.0.0"
var Version = "dev"

var startTime = time.Now()

// maxAddrs caps the addresses reported per host.
const maxAddrs = 10

// Info describes the host running the engine.
type Info struct {
	Hostname  string       `json:"hostname"`
	OS        string       `json:"os"`
	Arch      string       `json:"arch"`
	Version   string       `json:"version"`
	StartTime int64        `json:"start_time"`
	Addresses []netip.Addr `json:"addresses,omitempty"`
}

// Collect gathers local host information.
func Collect() Info {
	hostname, _ := os.Hostname()

	return Info{
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Version:   Version,
		StartTime: startTime.Unix(),
		Addresses: LocalAddrs(),
	}
}

// LocalAddrs returns the non-loopback unicast addresses of this host,
// IPv4 first. Link-local IPv6 addresses are skipped as they need a zone.
func LocalAddrs() []netip.Addr {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	var v4, v6 []netip.Addr
	for _, a := range ifAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsMulticast() {
			continue
		}
		if addr.Is4() {
			v4 = append(v4, addr)
		} else {
			v6 = append(v6, addr)
		}
	}

	addrs := append(v4, v6...)
	if len(addrs) > maxAddrs {
		addrs = addrs[:maxAddrs]
	}
	return addrs
}

// StartTime returns the process start time.
func StartTime() time.Time {
	return startTime
}

// Uptime returns the process uptime.
func Uptime() time.Duration {
	return time.Since(startTime)
}
