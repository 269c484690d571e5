package fillbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewHTTPEmbedder embeds through an OpenAI-compatible /v1/embeddings endpoint.
func NewHTTPEmbedder(cfg EmbedderConfig, logger *zap.Logger, caches ...VectorCache) (*CachedEmbedder, error) {
	baseURL := strings.TrimRight(cfg.HTTP.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("embedder.http.baseUrl is required")
	}
	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = cfg.HTTP.Model
	}
	encode := func(ctx context.Context, text string) ([]float32, error) {
		return requestEmbedding(ctx, client, baseURL, cfg.HTTP, text)
	}
	closeFn := func() error {
		client.CloseIdleConnections()
		return nil
	}
	return NewCachedEmbedder(modelID, encode, closeFn, logger, caches...), nil
}

func requestEmbedding(ctx context.Context, client *http.Client, baseURL string, cfg HTTPEmbedderConfig, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Input: []string{text}, Model: cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}
	var parsed embeddingsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}
	src := parsed.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}
