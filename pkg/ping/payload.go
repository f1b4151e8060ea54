package ping

const payloadAlphabet = "abcdefghijklmnopqrstuvw"

// Payload returns a size-byte payload filled with the repeating alphabet
// used by the Windows ping utility.
func Payload(size int) []byte {
	if size <= 0 {
		return nil
	}
	b := make([]byte, size)
	for i := range b {
		b[i] = payloadAlphabet[i%len(payloadAlphabet)]
	}
	return b
}
