package fillbot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadUserData_JSONKeepsDeclarationOrder(t *testing.T) {
	path := writeFile(t, "data.json", "\xef\xbb\xbf"+`{
  "zip code": 12345,
  "full name": "John Doe",
  "languages": ["English", "French"],
  "newsletter": true,
  "nickname": "",
  "middle name": null
}`)
	data, err := LoadUserData(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"zip code", "full name", "languages", "newsletter"}, data.Keys())

	v, ok := data.Get("zip code")
	assert.True(t, ok)
	assert.Equal(t, "12345", v)
	v, _ = data.Get("languages")
	assert.Equal(t, "English, French", v)
	v, _ = data.Get("newsletter")
	assert.Equal(t, "true", v)
	_, ok = data.Get("nickname")
	assert.False(t, ok, "empty values are dropped")
}

func TestLoadUserData_YAML(t *testing.T) {
	path := writeFile(t, "data.yaml", `
email: john@example.com
full name: John Doe
hobbies:
  - chess
  - running
`)
	data, err := LoadUserData(path)
	require.NoError(t, err)
	assert.Equal(t, []UserDataEntry{
		{Key: "email", Value: "john@example.com"},
		{Key: "full name", Value: "John Doe"},
		{Key: "hobbies", Value: "chess, running"},
	}, data.Entries())
}

func TestLoadUserData_CSVWithHeader(t *testing.T) {
	path := writeFile(t, "data.csv", "note,Question,Answer\nx,full name,John Doe\ny,email,john@example.com\nz,,ignored\n")
	data, err := LoadUserData(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"full name", "email"}, data.Keys())
}

func TestLoadUserData_TSVWithoutHeader(t *testing.T) {
	path := writeFile(t, "data.tsv", "full name\tJohn Doe\nemail\tjohn@example.com\n")
	data, err := LoadUserData(path)
	require.NoError(t, err)
	assert.Equal(t, 2, data.Len())
	v, _ := data.Get("full name")
	assert.Equal(t, "John Doe", v)
}

func TestLoadUserData_CSVExplicitColumns(t *testing.T) {
	path := writeFile(t, "data.csv", "a,b,c\nfull name,ignored,John Doe\n")
	data, err := LoadUserDataWithOptions(path, DataParseOptions{KeyColumn: "#1", ValueColumn: "c"})
	require.NoError(t, err)
	v, _ := data.Get("full name")
	assert.Equal(t, "John Doe", v)
}

func TestLoadUserData_Lines(t *testing.T) {
	path := writeFile(t, "data.txt", "# personal\nfull name: John Doe\nemail = john@example.com\n\nwebsite: https://example.com\n")
	data, err := LoadUserData(path)
	require.NoError(t, err)
	v, _ := data.Get("website")
	assert.Equal(t, "https://example.com", v)
	assert.Equal(t, []string{"full name", "email", "website"}, data.Keys())
}

func TestLoadUserData_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "bad.json", `{"a": `},
		{"json array", "arr.json", `["a"]`},
		{"nested object", "nested.json", `{"a": {"b": "c"}}`},
		{"empty object", "empty.json", `{}`},
		{"yaml list", "list.yaml", "- a\n- b\n"},
		{"bad line", "bad.txt", "no separator here\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadUserData(writeFile(t, tt.file, tt.content))
			assert.ErrorIs(t, err, ErrDataLoad)
		})
	}

	_, err := LoadUserData(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrDataLoad)
}

func TestUserData_RedefinitionKeepsPosition(t *testing.T) {
	data := NewUserData()
	data.Set("a", "1")
	data.Set("b", "2")
	data.Set(" a ", "3")
	data.Set("  ", "ignored")
	assert.Equal(t, []string{"a", "b"}, data.Keys())
	v, _ := data.Get("a")
	assert.Equal(t, "3", v)

	var nilData *UserData
	assert.Zero(t, nilData.Len())
	assert.Nil(t, nilData.Keys())
}
