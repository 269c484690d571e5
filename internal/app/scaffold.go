package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yashubustudio/fillbot/fillbot"
)

var sampleEntries = []fillbot.UserDataEntry{
	{Key: "full name", Value: "Jane Doe"},
	{Key: "email", Value: "jane@example.com"},
	{Key: "phone number", Value: "+1 555 0100"},
	{Key: "date of birth", Value: "03/14/1990"},
	{Key: "country", Value: "Japan"},
	{Key: "languages", Value: "English, Japanese"},
}

// sampleData renders sampleEntries in the format LoadUserData picks for path.
func sampleData(path string) []byte {
	var sb strings.Builder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		sb.WriteString("{\n")
		for i, e := range sampleEntries {
			fmt.Fprintf(&sb, "  %q: %q", e.Key, e.Value)
			if i < len(sampleEntries)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("}\n")
	case ".csv":
		sb.WriteString("key,value\n")
		for _, e := range sampleEntries {
			fmt.Fprintf(&sb, "%s,%q\n", e.Key, e.Value)
		}
	case ".tsv":
		sb.WriteString("key\tvalue\n")
		for _, e := range sampleEntries {
			fmt.Fprintf(&sb, "%s\t%s\n", e.Key, e.Value)
		}
	default:
		sb.WriteString("# Keys are matched by meaning, so write them the way a form would ask.\n")
		for _, e := range sampleEntries {
			fmt.Fprintf(&sb, "%s: %s\n", e.Key, e.Value)
		}
	}
	return []byte(sb.String())
}

// Scaffold writes a default config and a sample data file when they do not
// exist yet. It returns the files it created.
func Scaffold(configPath, dataPath string) ([]string, error) {
	var created []string

	cfg := fillbot.DefaultConfig()
	cfg.DataPath = dataPath
	cfg.History.Path = filepath.Join(filepath.Dir(configPath), "fillbot_history.db")
	ok, err := ensureFile(configPath, func(path string) error {
		return fillbot.SaveConfig(path, cfg)
	})
	if err != nil {
		return created, fmt.Errorf("config: %w", err)
	}
	if ok {
		created = append(created, configPath)
	}

	ok, err = ensureFile(dataPath, func(path string) error {
		return os.WriteFile(path, sampleData(path), 0o644)
	})
	if err != nil {
		return created, fmt.Errorf("data: %w", err)
	}
	if ok {
		created = append(created, dataPath)
	}
	return created, nil
}

// ensureFile runs write when path does not exist yet.
func ensureFile(path string, write func(string) error) (bool, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return false, errors.New("empty path")
	}
	clean = filepath.Clean(clean)
	if _, err := os.Stat(clean); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if dir := filepath.Dir(clean); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}
	if err := write(clean); err != nil {
		return false, err
	}
	return true, nil
}
