package fillbot

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
)

// ResolveOption finds the option for value: an exact case-insensitive match
// on label or value first, then the longest label whose words appear as a
// run inside value's words, or the reverse. Whole words are compared so "no"
// never matches "I don't know".
func ResolveOption(options []Option, value string) (Option, bool) {
	want := foldKey(value)
	if want == "" {
		return Option{}, false
	}
	for _, o := range options {
		if foldKey(o.Label) == want || (o.Value != "" && foldKey(o.Value) == want) {
			return o, true
		}
	}
	wantWords := words(want)
	best, bestLen := -1, 0
	for i, o := range options {
		label := words(foldKey(o.Label))
		if len(label) == 0 {
			continue
		}
		if (containsRun(wantWords, label) || containsRun(label, wantWords)) && len(label) > bestLen {
			best, bestLen = i, len(label)
		}
	}
	if best < 0 {
		return Option{}, false
	}
	return options[best], true
}

// words splits s on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// containsRun reports whether sub occurs as a contiguous run in seq.
func containsRun(seq, sub []string) bool {
	if len(sub) == 0 || len(sub) > len(seq) {
		return false
	}
	for i := 0; i+len(sub) <= len(seq); i++ {
		if slices.Equal(seq[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}

// SplitMultiValue splits a checkbox value on commas and semicolons.
func SplitMultiValue(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// FormatDateValue converts a user supplied date to the YYYY-MM-DD form
// date inputs expect. US month-first order wins for ambiguous slashes.
func FormatDateValue(value string) (string, error) {
	v := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised date %q", ErrInvalidValue, value)
}
