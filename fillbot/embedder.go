package fillbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"yashubustudio/fillbot/emb"
)

// Embedder turns text into fixed-length vectors. Identical input must yield
// identical output.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
	ModelID() string
}

// EncodeFunc computes a vector without any caching.
type EncodeFunc func(ctx context.Context, text string) ([]float32, error)

// CachedEmbedder runs an EncodeFunc behind a chain of vector caches. Earlier
// caches are consulted first and backfilled on a later hit.
type CachedEmbedder struct {
	mu      sync.Mutex
	encode  EncodeFunc
	closeFn func() error
	modelID string
	caches  []VectorCache
	logger  *zap.Logger
	closed  bool
}

// NewCachedEmbedder wraps encode. closeFn may be nil.
func NewCachedEmbedder(modelID string, encode EncodeFunc, closeFn func() error, logger *zap.Logger, caches ...VectorCache) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		encode:  encode,
		closeFn: closeFn,
		modelID: modelID,
		caches:  caches,
		logger:  logger,
	}
}

// NewOrtEmbedder initializes the ONNX encoder.
func NewOrtEmbedder(cfg EmbedderConfig, logger *zap.Logger, caches ...VectorCache) (*CachedEmbedder, error) {
	encoder := &emb.Encoder{}
	if err := encoder.Init(emb.Config{
		OrtDLL:          cfg.OrtDLL,
		ModelPath:       cfg.ModelPath,
		TokenizerPath:   cfg.TokenizerPath,
		MaxSeqLen:       cfg.MaxSeqLen,
		OutputName:      cfg.OutputName,
		UseTokenTypeIDs: cfg.UseTokenTypeIDs,
	}); err != nil {
		return nil, err
	}
	encode := func(_ context.Context, text string) ([]float32, error) {
		return encoder.Encode(text)
	}
	closeFn := func() error {
		encoder.Close()
		return nil
	}
	return NewCachedEmbedder(cfg.ModelID, encode, closeFn, logger, caches...), nil
}

// NewEmbedder builds the configured backend with a memory cache, plus disk
// and Redis caches when configured.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig, logger *zap.Logger) (*CachedEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	caches := []VectorCache{NewMemoryCache()}
	if cfg.CacheDir != "" {
		disk, err := NewDiskCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		caches = append(caches, disk)
	}
	var redisCache *RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := NewRedisCacheFromConfig(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis vector cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			redisCache = rc
			caches = append(caches, rc)
		}
	}

	var (
		e   *CachedEmbedder
		err error
	)
	switch cfg.Backend {
	case BackendONNX, "":
		e, err = NewOrtEmbedder(cfg, logger, caches...)
	case BackendHTTP:
		e, err = NewHTTPEmbedder(cfg, logger, caches...)
	default:
		err = fmt.Errorf("unknown embedder backend %q", cfg.Backend)
	}
	if err != nil {
		if redisCache != nil {
			_ = redisCache.Close()
		}
		return nil, err
	}
	if redisCache != nil {
		inner := e.closeFn
		e.closeFn = func() error {
			var err error
			if inner != nil {
				err = inner()
			}
			return errors.Join(err, redisCache.Close())
		}
	}
	return e, nil
}

// ModelID returns the identifier used for cache keys.
func (e *CachedEmbedder) ModelID() string {
	return e.modelID
}

// EmbedText embeds a single string with caching.
func (e *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed || e.encode == nil {
		return nil, errors.New("embedder is not initialized")
	}
	normalized := NormalizeText(text)
	key := CacheKey(e.modelID, normalized)
	for i, c := range e.caches {
		vec, ok, err := c.Get(ctx, key)
		if err != nil {
			e.logger.Debug("vector cache read failed", zap.Int("layer", i), zap.Error(err))
			continue
		}
		if ok {
			e.store(ctx, key, vec, e.caches[:i])
			return vec, nil
		}
	}
	vec, err := e.encode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding for %q", truncate(normalized, 40))
	}
	e.store(ctx, key, vec, e.caches)
	return cloneVector(vec), nil
}

// EmbedTexts embeds a slice of strings sequentially.
func (e *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Close releases backend resources. Calling it twice is harmless.
func (e *CachedEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.closeFn != nil {
		return e.closeFn()
	}
	return nil
}

func (e *CachedEmbedder) store(ctx context.Context, key string, vec []float32, layers []VectorCache) {
	for i, c := range layers {
		if err := c.Put(ctx, key, vec); err != nil {
			e.logger.Debug("vector cache write failed", zap.Int("layer", i), zap.Error(err))
		}
	}
}

func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}
