package formula

// Letter returns the formula letter for a 0-based index in bijective
// base-26: 0 is A, 25 is Z, 26 is AA, 701 is ZZ, 702 is AAA.
func Letter(index int) string {
	if index < 0 {
		return ""
	}
	var buf [16]byte
	i := len(buf)
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// LetterIndex is the inverse of Letter. It reports false for anything that
// is not a non-empty run of upper case ASCII letters.
func LetterIndex(s string) (int, bool) {
	if s == "" || len(s) > 12 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			return 0, false
		}
		n = n*26 + int(c-'A') + 1
	}
	return n - 1, true
}

// IsLetter reports whether s matches [A-Z]+.
func IsLetter(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
