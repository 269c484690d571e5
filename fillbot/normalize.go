package fillbot

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var markupPolicy = bluemonday.StrictPolicy()

// NormalizeText performs Unicode normalization, drops control characters and
// collapses whitespace.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}

// NormalizeLabel cleans a question label scraped from a page: markup is
// stripped, entities decoded and a trailing required marker removed.
func NormalizeLabel(label string) string {
	if strings.ContainsAny(label, "<>&") {
		label = html.UnescapeString(markupPolicy.Sanitize(label))
	}
	label = NormalizeText(label)
	label = strings.TrimSpace(strings.TrimRight(label, "*"))
	return label
}

// foldKey lowercases normalized text for case-insensitive comparisons.
func foldKey(s string) string {
	return strings.ToLower(NormalizeText(s))
}
