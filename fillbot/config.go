package fillbot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "fillbot.yaml"

// EnvEmbedderAPIKey overrides embedder.http.apiKey when set.
const EnvEmbedderAPIKey = "FILLBOT_EMBEDDER_API_KEY"

// Embedder backends.
const (
	BackendONNX = "onnx"
	BackendHTTP = "http"
)

// MatchingConfig controls semantic matching.
type MatchingConfig struct {
	// Threshold is the absolute minimum cosine similarity for a match.
	Threshold float32 `yaml:"threshold" json:"threshold"`
}

// RetryPolicy bounds how often a failing interaction is attempted.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"maxAttempts" json:"maxAttempts"`
	Delay       time.Duration `yaml:"delay" json:"delay"`
}

// FillConfig controls browser interaction timing.
type FillConfig struct {
	WaitTimeout time.Duration `yaml:"waitTimeout" json:"waitTimeout"`
	SettleDelay time.Duration `yaml:"settleDelay" json:"settleDelay"`
	Retry       RetryPolicy   `yaml:"retry" json:"retry"`
}

// HTTPEmbedderConfig configures an OpenAI-compatible embeddings endpoint.
type HTTPEmbedderConfig struct {
	BaseURL string        `yaml:"baseUrl" json:"baseUrl"`
	APIKey  string        `yaml:"apiKey" json:"apiKey"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RedisCacheConfig enables a shared vector cache.
type RedisCacheConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// EmbedderConfig wraps the embedding backend and its caches.
type EmbedderConfig struct {
	Backend         string             `yaml:"backend" json:"backend"`
	OrtDLL          string             `yaml:"ortDll" json:"ortDll"`
	ModelPath       string             `yaml:"modelPath" json:"modelPath"`
	TokenizerPath   string             `yaml:"tokenizerPath" json:"tokenizerPath"`
	MaxSeqLen       int                `yaml:"maxSeqLen" json:"maxSeqLen"`
	OutputName      string             `yaml:"outputName" json:"outputName"`
	UseTokenTypeIDs bool               `yaml:"useTokenTypeIds" json:"useTokenTypeIds"`
	CacheDir        string             `yaml:"cacheDir" json:"cacheDir"`
	ModelID         string             `yaml:"modelId" json:"modelId"`
	HTTP            HTTPEmbedderConfig `yaml:"http" json:"http"`
	Redis           RedisCacheConfig   `yaml:"redis" json:"redis"`
}

// BrowserConfig controls the browser session.
type BrowserConfig struct {
	Headless    bool          `yaml:"headless" json:"headless"`
	ExecPath    string        `yaml:"execPath" json:"execPath"`
	UserDataDir string        `yaml:"userDataDir" json:"userDataDir"`
	LoadDelay   time.Duration `yaml:"loadDelay" json:"loadDelay"`
}

// DataConfig selects the key and value columns of CSV/TSV data files.
// Columns are a header name or a 1-based "#n" index.
type DataConfig struct {
	KeyColumn   string           `yaml:"keyColumn,omitempty" json:"keyColumn,omitempty"`
	ValueColumn string           `yaml:"valueColumn,omitempty" json:"valueColumn,omitempty"`
	Columns     ColumnCandidates `yaml:"columns,omitempty" json:"columns,omitempty"`
}

// ParseOptions converts the section for LoadUserDataWithOptions.
func (c DataConfig) ParseOptions() DataParseOptions {
	return DataParseOptions{
		KeyColumn:   c.KeyColumn,
		ValueColumn: c.ValueColumn,
		Candidates:  c.Columns,
	}
}

// HistoryConfig points at the SQLite run history. Empty disables it.
type HistoryConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config aggregates runtime settings persisted to fillbot.yaml.
type Config struct {
	DataPath string         `yaml:"dataPath" json:"dataPath"`
	Data     DataConfig     `yaml:"data,omitempty" json:"data,omitempty"`
	Matching MatchingConfig `yaml:"matching" json:"matching"`
	Fill     FillConfig     `yaml:"fill" json:"fill"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	History  HistoryConfig  `yaml:"history" json:"history"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// DefaultRetryPolicy allows one retry after half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Delay: 500 * time.Millisecond}
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DataPath == "" {
		c.DataPath = "user_data.json"
	}
	if c.Matching.Threshold <= 0 {
		c.Matching.Threshold = 0.5
	}
	if c.Fill.WaitTimeout <= 0 {
		c.Fill.WaitTimeout = 5 * time.Second
	}
	if c.Fill.SettleDelay < 0 {
		c.Fill.SettleDelay = 0
	}
	if c.Fill.Retry.MaxAttempts <= 0 {
		c.Fill.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if c.Fill.Retry.Delay <= 0 {
		c.Fill.Retry.Delay = DefaultRetryPolicy().Delay
	}
	if c.Embedder.Backend == "" {
		c.Embedder.Backend = BackendONNX
	}
	if c.Embedder.MaxSeqLen == 0 {
		c.Embedder.MaxSeqLen = 256
	}
	if c.Embedder.OutputName == "" {
		c.Embedder.OutputName = "last_hidden_state"
	}
	if c.Embedder.ModelID == "" {
		switch {
		case c.Embedder.Backend == BackendHTTP && c.Embedder.HTTP.Model != "":
			c.Embedder.ModelID = c.Embedder.HTTP.Model
		case c.Embedder.ModelPath != "":
			c.Embedder.ModelID = filepath.Base(filepath.Dir(c.Embedder.ModelPath))
		}
	}
	if c.Embedder.HTTP.Timeout <= 0 {
		c.Embedder.HTTP.Timeout = 30 * time.Second
	}
	if c.Browser.LoadDelay <= 0 {
		c.Browser.LoadDelay = 3 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate rejects settings the run cannot honour.
func (c Config) Validate() error {
	if c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be within (0,1], got %.3f", c.Matching.Threshold)
	}
	switch c.Embedder.Backend {
	case BackendONNX:
		if c.Embedder.ModelPath == "" || c.Embedder.TokenizerPath == "" {
			return errors.New("embedder.modelPath and embedder.tokenizerPath are required for the onnx backend")
		}
	case BackendHTTP:
		if c.Embedder.HTTP.BaseURL == "" {
			return errors.New("embedder.http.baseUrl is required for the http backend")
		}
	default:
		return fmt.Errorf("unknown embedder backend %q", c.Embedder.Backend)
	}
	return nil
}

// LoadConfig loads configuration from the given path or the default fillbot.yaml.
// A missing file yields the defaults. JSON documents are accepted as well.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if key := strings.TrimSpace(os.Getenv(EnvEmbedderAPIKey)); key != "" {
		cfg.Embedder.HTTP.APIKey = key
	}
	cfg.ApplyDefaults()
	if cfg.Embedder.CacheDir != "" {
		if err := os.MkdirAll(cfg.Embedder.CacheDir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
