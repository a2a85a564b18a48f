package feed

import "strings"

// DefaultLanguage is used when neither the source nor the feed declares one
// with a known keyword list.
const DefaultLanguage = "en"

var keywordsByLanguage = map[string][]string{
	"en": {
		"fraud", "scam", "money laundering", "laundered", "sanction", "embezzle",
		"bribery", "phishing", "ponzi", "counterfeit", "smuggling", "trafficking",
		"extortion", "ransomware", "terrorist financing", "identity theft", "wanted",
		"indicted", "swindle", "wire transfer",
	},
	"de": {
		"betrug", "betrüger", "geldwäsche", "sanktion", "bestechung", "korruption",
		"phishing", "unterschlagung", "erpressung", "schleuser", "menschenhandel",
		"falschgeld", "fahndung", "identitätsdiebstahl", "schneeballsystem",
	},
	"fr": {
		"fraude", "escroquerie", "arnaque", "blanchiment", "sanction", "corruption",
		"hameçonnage", "phishing", "contrefaçon", "extorsion", "détournement",
		"rançongiciel", "usurpation d'identité", "trafic", "recherché",
	},
}

// Keywords returns the built-in list for lang (a BCP 47 tag such as
// "de-AT"), falling back to English.
func Keywords(lang string) []string {
	if kw, ok := keywordsByLanguage[primaryTag(lang)]; ok {
		return kw
	}
	return keywordsByLanguage[DefaultLanguage]
}

// ResolveLanguage picks the configured language, then the feed's declared
// one, then English. Only the primary subtag is kept.
func ResolveLanguage(configured, declared string) string {
	for _, lang := range []string{configured, declared} {
		if tag := primaryTag(lang); tag != "" {
			return tag
		}
	}
	return DefaultLanguage
}

func primaryTag(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}

// matchesAny reports whether text contains any keyword, case-insensitively.
func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
