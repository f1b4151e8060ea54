package icmp

// sum16 adds b as a sequence of big-endian 16-bit words and folds the
// carries back into the low 16 bits. An odd trailing byte is the high half
// of a final word.
func sum16(b []byte) uint16 {
	var sum uint32

	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}

	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}

// Checksum calculates the Internet checksum (RFC 1071) of b.
// The checksum field inside b must be zero when building a packet.
func Checksum(b []byte) uint16 {
	return ^sum16(b)
}

// Valid reports whether b, with its transmitted checksum in place, sums to
// all ones. Equivalently, Checksum(b) == 0.
func Valid(b []byte) bool {
	return sum16(b) == 0xffff
}
