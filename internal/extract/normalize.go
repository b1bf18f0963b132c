package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonNameRe    = regexp.MustCompile(`[^\p{L}\s]`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// normalizeText composes accented characters so literal markers such as
// "Arrecadação" match text from extractors that emit decomposed runes.
func normalizeText(text string) string {
	return norm.NFC.String(text)
}

// NormalizeName folds a company name for display and comparison:
// diacritics removed, uppercased, punctuation and digits dropped and
// whitespace collapsed.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToUpper(folded)
	folded = nonNameRe.ReplaceAllString(folded, "")
	folded = multiSpaceRe.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}
