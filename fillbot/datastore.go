package fillbot

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UserDataEntry is one key/value pair of the user's data set.
type UserDataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// UserData is the user's flat field→value mapping. Keys are unique and keep
// their declaration order, which is the tie-break order for matching.
type UserData struct {
	keys   []string
	values map[string]string
}

// NewUserData builds a data set from entries in order.
func NewUserData(entries ...UserDataEntry) *UserData {
	d := &UserData{values: make(map[string]string, len(entries))}
	for _, e := range entries {
		d.Set(e.Key, e.Value)
	}
	return d
}

// Set adds or updates key. Redefining a key keeps its original position.
// Blank keys are ignored.
func (d *UserData) Set(key, value string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if d.values == nil {
		d.values = make(map[string]string)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored for key.
func (d *UserData) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the keys in declaration order.
func (d *UserData) Keys() []string {
	if d == nil {
		return nil
	}
	return cloneStrings(d.keys)
}

// Len returns the number of entries.
func (d *UserData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Entries returns every pair in declaration order.
func (d *UserData) Entries() []UserDataEntry {
	if d == nil {
		return nil
	}
	out := make([]UserDataEntry, len(d.keys))
	for i, k := range d.keys {
		out[i] = UserDataEntry{Key: k, Value: d.values[k]}
	}
	return out
}

// DataParseOptions selects columns when reading CSV/TSV data files.
type DataParseOptions struct {
	KeyColumn   string
	ValueColumn string
	Candidates  ColumnCandidates
}

// LoadUserData reads the data file at path. Errors wrap ErrDataLoad.
func LoadUserData(path string) (*UserData, error) {
	return LoadUserDataWithOptions(path, DataParseOptions{})
}

// LoadUserDataWithOptions reads the data file choosing the parser by
// extension: .json, .yaml/.yml, .csv, .tsv, anything else as "key: value" lines.
func LoadUserDataWithOptions(path string, opts DataParseOptions) (*UserData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataLoad, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var parsed *UserData
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parsed, err = parseJSONData(data)
	case ".yaml", ".yml":
		parsed, err = parseYAMLData(data)
	case ".csv":
		parsed, err = parseDelimitedData(data, ',', opts)
	case ".tsv":
		parsed, err = parseDelimitedData(data, '\t', opts)
	default:
		parsed, err = parseLineData(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataLoad, filepath.Base(path), err)
	}
	if parsed.Len() == 0 {
		return nil, fmt.Errorf("%w: %s contains no entries", ErrDataLoad, filepath.Base(path))
	}
	return parsed, nil
}

// parseJSONData walks the top-level object token by token to keep key order.
func parseJSONData(data []byte) (*UserData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("top-level JSON value must be an object")
	}
	out := NewUserData()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		key, _ := keyTok.(string)
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json value for %q: %w", key, err)
		}
		value, err := scalarString(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		if value != "" {
			out.Set(key, value)
		}
	}
	return out, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarString(item)
			if err != nil {
				return "", err
			}
			if _, nested := item.([]any); nested {
				return "", errors.New("nested lists are not supported")
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func parseYAMLData(data []byte) (*UserData, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	out := NewUserData()
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return out, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top-level YAML value must be a mapping")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value, err := yamlScalar(root.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		if value != "" {
			out.Set(key, value)
		}
	}
	return out, nil
}

func yamlScalar(node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return "", nil
		}
		return strings.TrimSpace(node.Value), nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return "", errors.New("nested lists are not supported")
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ", "), nil
	case yaml.AliasNode:
		if node.Alias != nil {
			return yamlScalar(node.Alias)
		}
		return "", nil
	default:
		return "", errors.New("nested mappings are not supported")
	}
}

func parseDelimitedData(data []byte, comma rune, opts DataParseOptions) (*UserData, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return NewUserData(), nil
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	keyCol, valueCol, skipHeader, err := resolveDataColumns(header, opts)
	if err != nil {
		return nil, err
	}
	start := 0
	if skipHeader {
		start = 1
	}
	out := NewUserData()
	for _, row := range rows[start:] {
		if keyCol >= len(row) || valueCol >= len(row) {
			continue
		}
		key := cleanCell(row[keyCol])
		value := cleanCell(row[valueCol])
		if key == "" || value == "" {
			continue
		}
		out.Set(key, value)
	}
	return out, nil
}

// parseLineData reads "key: value" or "key=value" lines; # starts a comment.
func parseLineData(data []byte) (*UserData, error) {
	out := NewUserData()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := cleanCell(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sep := strings.IndexAny(line, ":=")
		if sep <= 0 {
			return nil, fmt.Errorf("line %d: expected \"key: value\"", lineNo)
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if value != "" {
			out.Set(key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return out, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}
