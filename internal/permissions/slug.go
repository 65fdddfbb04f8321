package permissions

import (
	"strings"
	"unicode"
)

// DeriveSlug builds the canonical App:Module:Action slug. The first letter of
// every word in each segment is uppercased, the remainder is preserved, so
// deriving twice always yields the same string and word-initial casing of the
// input does not affect the result.
func DeriveSlug(app, module, action string) string {
	return capitalizeWords(app) + ":" + capitalizeWords(module) + ":" + capitalizeWords(action)
}

func capitalizeWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) && !prevLetter {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	return b.String()
}
