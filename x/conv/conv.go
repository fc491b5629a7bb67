// Package conv formats numbers into caller buffers without fmt or strconv,
// for MCU log lines.
package conv

const hexd = "0123456789ABCDEF"

// Utoa writes base-10 representation of n into buf and returns the used slice.
// buf should be length >= 20 for uint64.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
	} else {
		for n > 0 && i > 0 {
			i--
			buf[i] = byte('0' + (n % 10))
			n /= 10
		}
	}
	return buf[i:]
}

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// Key formats a preference key as "0x" + 8 hex digits.
func Key(k uint32) string {
	var buf [10]byte
	buf[0], buf[1] = '0', 'x'
	U32Hex(buf[2:], k)
	return string(buf[:])
}
