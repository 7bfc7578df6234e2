package hexconv

// Halfbyte maps an ASCII hex digit into its value. Every other character maps into 0xFF,
// so a single `a|b > 0x0f` check is enough to validate a pair of digits.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = 0xFF
	}

	for c := byte('0'); c <= '9'; c++ {
		table[c] = c - '0'
	}

	for c := byte('a'); c <= 'f'; c++ {
		table[c] = c - 'a' + 10
		table[c-'a'+'A'] = c - 'a' + 10
	}

	return table
}()

// Decode returns the byte encoded by the two hex digits and whether both were valid.
func Decode(hi, lo byte) (byte, bool) {
	a, b := Halfbyte[hi], Halfbyte[lo]
	if a|b > 0x0f {
		return 0, false
	}

	return a<<4 | b, true
}
