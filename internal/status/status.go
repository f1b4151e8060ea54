// Package status classifies ICMP echo outcomes into typed errors.
//
// Native reply codes below IPStatusBase are operating system error numbers;
// codes at or above it describe ICMP-level conditions reported for the
// exchange (unreachable destinations, TTL expiry, malformed replies).
package status

// IPStatus is a numeric echo outcome. Zero is success.
type IPStatus = uint32

// IPStatusBase is the first ICMP-specific status code.
const IPStatusBase IPStatus = 11000

const (
	Success IPStatus = 0

	BufferTooSmall                 IPStatus = IPStatusBase + 1
	DestinationNetworkUnreachable  IPStatus = IPStatusBase + 2
	DestinationHostUnreachable     IPStatus = IPStatusBase + 3
	DestinationProtocolUnreachable IPStatus = IPStatusBase + 4
	DestinationPortUnreachable     IPStatus = IPStatusBase + 5
	NoResources                    IPStatus = IPStatusBase + 6
	BadOption                      IPStatus = IPStatusBase + 7
	HardwareError                  IPStatus = IPStatusBase + 8
	PacketTooBig                   IPStatus = IPStatusBase + 9
	RequestTimedOut                IPStatus = IPStatusBase + 10
	BadRoute                       IPStatus = IPStatusBase + 12
	TTLExpired                     IPStatus = IPStatusBase + 13
	TTLReassemblyTimeExceeded      IPStatus = IPStatusBase + 14
	ParameterProblem               IPStatus = IPStatusBase + 15
	SourceQuench                   IPStatus = IPStatusBase + 16
	BadDestination                 IPStatus = IPStatusBase + 18
	DestinationProhibited          IPStatus = IPStatusBase + 19
	DestinationUnreachable         IPStatus = IPStatusBase + 40
	TimeExceeded                   IPStatus = IPStatusBase + 41
	BadHeader                      IPStatus = IPStatusBase + 42
	UnrecognizedNextHeader         IPStatus = IPStatusBase + 43
	ICMPError                      IPStatus = IPStatusBase + 44
	DestinationScopeMismatch       IPStatus = IPStatusBase + 45

	// GeneralFailure is reported when, for example, no interface can route the request.
	GeneralFailure IPStatus = IPStatusBase + 50
)

var statusNames = map[IPStatus]string{
	Success:                        "success",
	BufferTooSmall:                 "buffer too small",
	DestinationNetworkUnreachable:  "destination network unreachable",
	DestinationHostUnreachable:     "destination host unreachable",
	DestinationProtocolUnreachable: "destination protocol unreachable",
	DestinationPortUnreachable:     "destination port unreachable",
	NoResources:                    "no resources",
	BadOption:                      "bad option",
	HardwareError:                  "hardware error",
	PacketTooBig:                   "packet too big",
	RequestTimedOut:                "request timed out",
	BadRoute:                       "bad route",
	TTLExpired:                     "TTL expired in transit",
	TTLReassemblyTimeExceeded:      "TTL expired during reassembly",
	ParameterProblem:               "parameter problem",
	SourceQuench:                   "source quench",
	BadDestination:                 "bad destination",
	DestinationProhibited:          "destination administratively prohibited",
	DestinationUnreachable:         "destination unreachable",
	TimeExceeded:                   "time exceeded",
	BadHeader:                      "bad header",
	UnrecognizedNextHeader:         "unrecognized next header",
	ICMPError:                      "ICMP error",
	DestinationScopeMismatch:       "destination scope mismatch",
	GeneralFailure:                 "general failure",
}

// StatusName returns a human-readable name for an IP status code.
// Unknown codes are returned as an empty string.
func StatusName(code IPStatus) string {
	return statusNames[code]
}

// Classify turns a raw native status into nil or a typed error.
func Classify(code uint32) error {
	switch {
	case code == Success:
		return nil
	case code < IPStatusBase:
		return OSError(code, Message(code))
	default:
		return IPError(code)
	}
}
