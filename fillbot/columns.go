package fillbot

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnCandidates defines header names recognised when auto-detecting the
// key and value columns of a CSV/TSV data file.
type ColumnCandidates struct {
	Key   []string `json:"key,omitempty" yaml:"key,omitempty"`
	Value []string `json:"value,omitempty" yaml:"value,omitempty"`
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Key:   []string{"key", "field", "label", "name", "question", "項目", "キー"},
		Value: []string{"value", "answer", "data", "値", "回答"},
	}
}

// withDefaults fills nil lists from the built-in defaults so callers can
// override only the parts they need.
func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := DefaultColumnCandidates()
	return ColumnCandidates{
		Key:   pickStrings(c.Key, defaults.Key),
		Value: pickStrings(c.Value, defaults.Value),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

type columnResult struct {
	Index      int
	FromHeader bool
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, cand := range candidates {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

func pickColumn(header []string, explicit string, candidates []string) (columnResult, error) {
	res := columnResult{Index: -1}
	if strings.TrimSpace(explicit) != "" {
		idx, fromHeader, err := matchExplicitColumn(header, explicit)
		if err != nil {
			return res, err
		}
		res.Index = idx
		res.FromHeader = fromHeader
		return res, nil
	}
	if idx := findColumn(header, candidates); idx >= 0 {
		res.Index = idx
		res.FromHeader = true
	}
	return res, nil
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	if trimmed == "" {
		return -1, false, nil
	}
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	if trimmed == "" {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

// resolveDataColumns picks the key and value columns. Without any header
// match the first two columns are used and the first row is data.
func resolveDataColumns(header []string, opts DataParseOptions) (key, value int, skipHeader bool, err error) {
	candidates := opts.Candidates.withDefaults()
	k, err := pickColumn(header, opts.KeyColumn, candidates.Key)
	if err != nil {
		return -1, -1, false, err
	}
	v, err := pickColumn(header, opts.ValueColumn, candidates.Value)
	if err != nil {
		return -1, -1, false, err
	}
	skipHeader = k.FromHeader || v.FromHeader
	if k.Index < 0 {
		k.Index = 0
		if v.Index == 0 {
			k.Index = 1
		}
	}
	if v.Index < 0 {
		v.Index = 1
		if k.Index == 1 {
			v.Index = 0
		}
	}
	if k.Index == v.Index {
		return -1, -1, false, fmt.Errorf("key and value columns must differ (both #%d)", k.Index+1)
	}
	return k.Index, v.Index, skipHeader, nil
}
