package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a personal or company name for comparison: NFD
// decomposition, combining marks removed, characters other than letters,
// digits and spaces removed, whitespace collapsed, lowercased.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Canonicalize lowercases, collapses runs of whitespace to one space and
// trims.
func Canonicalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ContentHash is the hex SHA-256 of the canonical form of parts joined by
// a space. Inputs differing only in case or whitespace hash equally.
func ContentHash(parts ...string) string {
	sum := sha256.Sum256([]byte(Canonicalize(strings.Join(parts, " "))))
	return hex.EncodeToString(sum[:])
}
