package utils

// Alphabet is the fixed symbol order of short codes: digits, then lowercase,
// then uppercase. Changing it changes every code ever issued.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const base = uint64(len(Alphabet))

// Encode maps n to its base62 representation, most significant symbol first
func Encode(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}

	// 11 symbols cover math.MaxUint64
	var buf [11]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// IsValidCode reports whether s could have been produced by Encode
func IsValidCode(s string) bool {
	if s == "" || len(s) > 11 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
