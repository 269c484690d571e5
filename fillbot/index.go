package fillbot

import (
	"math"
	"sort"
	"sync"
)

// VectorItem represents an entry within a vector index.
type VectorItem struct {
	Label  string
	Vector []float32
}

// Hit is a scored index entry. Position is the entry's insertion order.
type Hit struct {
	Label    string
	Score    float32
	Position int
}

// InMemoryIndex is a brute-force vector index with cosine similarity.
type InMemoryIndex struct {
	mu    sync.RWMutex
	items []VectorItem
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{}
}

// Replace swaps the stored items atomically.
func (idx *InMemoryIndex) Replace(items []VectorItem) {
	copied := make([]VectorItem, len(items))
	for i, it := range items {
		copied[i] = VectorItem{Label: it.Label, Vector: cloneVector(it.Vector)}
	}
	idx.mu.Lock()
	idx.items = copied
	idx.mu.Unlock()
}

// Size returns the current number of vectors stored.
func (idx *InMemoryIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}

// Labels returns the indexed labels in insertion order.
func (idx *InMemoryIndex) Labels() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, len(idx.items))
	for i, it := range idx.items {
		out[i] = it.Label
	}
	return out
}

// Search scores every item and returns the top-k hits. Equal scores keep
// insertion order.
func (idx *InMemoryIndex) Search(vec []float32, k int) []Hit {
	idx.mu.RLock()
	items := idx.items
	idx.mu.RUnlock()
	if len(items) == 0 || len(vec) == 0 || k <= 0 {
		return nil
	}
	hits := make([]Hit, 0, len(items))
	for i, it := range items {
		hits = append(hits, Hit{
			Label:    it.Label,
			Score:    cosineSimilarity(vec, it.Vector),
			Position: i,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Best returns the highest scoring item; the earliest wins a tie.
func (idx *InMemoryIndex) Best(vec []float32) (Hit, bool) {
	hits := idx.Search(vec, 1)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
