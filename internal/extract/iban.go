package extract

import (
	"strings"
)

const (
	minIBANLength = 15
	maxIBANLength = 34
)

// NormalizeIBAN uppercases and strips spaces and hyphens.
func NormalizeIBAN(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidIBAN applies the ISO 7064 MOD 97-10 check: move the first four
// characters to the end, map A-Z to 10-35, and require the resulting
// number mod 97 to equal 1.
func ValidIBAN(s string) bool {
	iban := NormalizeIBAN(s)
	if len(iban) < minIBANLength || len(iban) > maxIBANLength {
		return false
	}

	for i := 0; i < 4; i++ {
		c := iban[i]
		isLetter := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if (i < 2 && !isLetter) || (i >= 2 && !isDigit) {
			return false
		}
	}

	rearranged := iban[4:] + iban[:4]
	remainder := 0
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		switch {
		case c >= '0' && c <= '9':
			remainder = (remainder*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			remainder = (remainder*100 + v) % 97
		default:
			return false
		}
	}

	return remainder == 1
}
