package fillbot

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Matcher resolves a question to a data set entry.
type Matcher interface {
	Match(ctx context.Context, question string, candidates *UserData) (MatchResult, error)
}

// MatchField matches field's label and attaches field to the result.
func MatchField(ctx context.Context, m Matcher, field FormField, candidates *UserData) (MatchResult, error) {
	res, err := m.Match(ctx, field.Label, candidates)
	res.Field = field
	return res, err
}

// FieldMatcher picks the candidate key whose embedding is most similar to the
// question. Candidate vectors are indexed once per distinct key set.
type FieldMatcher struct {
	embedder  Embedder
	threshold float32
	logger    *zap.Logger

	mu    sync.Mutex
	index *InMemoryIndex
}

// NewFieldMatcher constructs a matcher accepting similarities ≥ threshold.
func NewFieldMatcher(embedder Embedder, threshold float32, logger *zap.Logger) *FieldMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldMatcher{
		embedder:  embedder,
		threshold: threshold,
		logger:    logger,
		index:     NewInMemoryIndex(),
	}
}

// Threshold returns the acceptance threshold.
func (m *FieldMatcher) Threshold() float32 {
	return m.threshold
}

// Prepare embeds every candidate key. Match calls it lazily; calling it up
// front surfaces embedding failures before the browser is touched.
func (m *FieldMatcher) Prepare(ctx context.Context, candidates *UserData) error {
	_, err := m.candidateIndex(ctx, candidates)
	return err
}

// Match returns the best candidate for question, or an unmatched result when
// the question is blank, there are no candidates, or the best similarity is
// below the threshold. Embedding failures wrap ErrMatchingUnavailable; a done
// ctx is returned as its own error.
func (m *FieldMatcher) Match(ctx context.Context, question string, candidates *UserData) (MatchResult, error) {
	q := NormalizeLabel(question)
	if q == "" || candidates.Len() == 0 {
		return MatchResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}
	idx, err := m.candidateIndex(ctx, candidates)
	if err != nil {
		return MatchResult{}, err
	}
	qvec, err := m.embedder.EmbedText(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return MatchResult{}, ctx.Err()
		}
		return MatchResult{}, fmt.Errorf("%w: embed question: %w", ErrMatchingUnavailable, err)
	}
	best, ok := idx.Best(qvec)
	if !ok {
		return MatchResult{}, nil
	}
	result := MatchResult{Confidence: clamp01(best.Score)}
	if best.Score < m.threshold {
		m.logger.Debug("no candidate above threshold",
			zap.String("question", q),
			zap.String("best", best.Label),
			zap.Float32("score", best.Score),
		)
		return result, nil
	}
	value, _ := candidates.Get(best.Label)
	result.Matched = true
	result.MatchedKey = best.Label
	result.Value = value
	return result, nil
}

func (m *FieldMatcher) candidateIndex(ctx context.Context, candidates *UserData) (*InMemoryIndex, error) {
	keys := candidates.Keys()
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Equal(m.index.Labels(), keys) {
		return m.index, nil
	}
	texts := make([]string, len(keys))
	for i, k := range keys {
		texts[i] = NormalizeLabel(k)
	}
	vecs, err := m.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: embed candidates: %w", ErrMatchingUnavailable, err)
	}
	items := make([]VectorItem, len(keys))
	for i, k := range keys {
		items[i] = VectorItem{Label: k, Vector: vecs[i]}
	}
	m.index.Replace(items)
	m.logger.Debug("indexed candidate keys", zap.Int("count", len(items)))
	return m.index, nil
}
