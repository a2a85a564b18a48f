// Package extract finds contact and payment identifiers in free text and
// provides the canonicalisation helpers used for deduplication.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
)

// Confidence scores assigned per pattern.
const (
	ConfidencePhone  = 0.8
	ConfidenceEmail  = 0.95
	ConfidenceIBAN   = 0.95
	ConfidenceCrypto = 0.9
)

var (
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{1,4}\)[\s.-]?)?\d{2,4}[\s.-]\d{3,4}(?:[\s.-]?\d{2,4})?`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}`)
	ibanPattern  = regexp.MustCompile(`(?i)\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`)
	btcPattern   = regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)
	ethPattern   = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// Extractor runs the identifier passes. The zero value is ready to use.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns identifiers found in text, grouped by pass in the order
// phone, email, IBAN, Bitcoin, Ethereum and by position within a pass.
// Phone matches that fall inside an email, IBAN candidate or crypto address
// are discarded. IBAN candidates failing MOD 97-10 are dropped.
func (e *Extractor) Extract(text string) []domain.ExtractedEntity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var claimed []domain.Span

	emails := e.emails(text)
	ibans, ibanSpans := e.ibans(text)
	crypto := e.crypto(text)

	for _, group := range [][]domain.ExtractedEntity{emails, crypto} {
		for _, ent := range group {
			claimed = append(claimed, ent.Span)
		}
	}
	claimed = append(claimed, ibanSpans...)

	phones := e.phones(text, claimed)

	out := make([]domain.ExtractedEntity, 0, len(phones)+len(emails)+len(ibans)+len(crypto))
	out = append(out, phones...)
	out = append(out, emails...)
	out = append(out, ibans...)
	out = append(out, crypto...)
	return out
}

func (e *Extractor) phones(text string, claimed []domain.Span) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		span := domain.Span{Start: loc[0], End: loc[1]}
		if overlapsAny(span, claimed) {
			continue
		}
		value := text[loc[0]:loc[1]]
		normalized := normalizePhone(value)
		digits := strings.TrimPrefix(normalized, "+")
		if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
			continue
		}
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityPhone,
			Value:      value,
			Normalized: normalized,
			Confidence: ConfidencePhone,
			Span:       span,
		})
	}
	return out
}

func (e *Extractor) emails(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityEmail,
			Value:      value,
			Normalized: strings.ToLower(value),
			Confidence: ConfidenceEmail,
			Span:       domain.Span{Start: loc[0], End: loc[1]},
		})
	}
	return out
}

// ibans returns valid IBANs plus the spans of every candidate, valid or not.
func (e *Extractor) ibans(text string) ([]domain.ExtractedEntity, []domain.Span) {
	var (
		out   []domain.ExtractedEntity
		spans []domain.Span
	)
	for _, loc := range ibanPattern.FindAllStringIndex(text, -1) {
		spans = append(spans, domain.Span{Start: loc[0], End: loc[1]})

		candidate := text[loc[0]:loc[1]]
		value, ok := longestValidPrefix(candidate)
		if !ok {
			continue
		}
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityIBAN,
			Value:      value,
			Normalized: NormalizeIBAN(value),
			Confidence: ConfidenceIBAN,
			Span:       domain.Span{Start: loc[0], End: loc[0] + len(value)},
		})
	}
	return out, spans
}

// longestValidPrefix trims trailing space-separated groups until the
// candidate validates. Greedy matching can swallow a following short word.
func longestValidPrefix(candidate string) (string, bool) {
	for {
		if ValidIBAN(candidate) {
			return candidate, true
		}
		idx := strings.LastIndexByte(candidate, ' ')
		if idx < 0 {
			return "", false
		}
		candidate = candidate[:idx]
		if len(NormalizeIBAN(candidate)) < minIBANLength {
			return "", false
		}
	}
}

func (e *Extractor) crypto(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, loc := range btcPattern.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityCrypto,
			Value:      value,
			Normalized: value,
			Confidence: ConfidenceCrypto,
			Span:       domain.Span{Start: loc[0], End: loc[1]},
		})
	}
	for _, loc := range ethPattern.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityCrypto,
			Value:      value,
			Normalized: strings.ToLower(value),
			Confidence: ConfidenceCrypto,
			Span:       domain.Span{Start: loc[0], End: loc[1]},
		})
	}
	return out
}

func normalizePhone(value string) string {
	var b strings.Builder
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func overlapsAny(s domain.Span, spans []domain.Span) bool {
	for _, o := range spans {
		if s.Start < o.End && o.Start < s.End {
			return true
		}
	}
	return false
}

// Dedupe drops entities repeating an earlier (type, normalized) pair and
// returns the rest ordered by position.
func Dedupe(entities []domain.ExtractedEntity) []domain.ExtractedEntity {
	seen := make(map[string]struct{}, len(entities))
	out := make([]domain.ExtractedEntity, 0, len(entities))
	for _, ent := range entities {
		key := string(ent.Type) + "|" + ent.Normalized
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ent)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Span.Start < out[j].Span.Start
	})
	return out
}
