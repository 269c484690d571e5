package fillbot

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
)

const fakeDim = 8

// axis returns the i-th unit vector.
func axis(i int) []float32 {
	v := make([]float32, fakeDim)
	v[i] = 1
	return v
}

// blend returns a unit vector whose cosine with axis(i) is cos and whose
// remaining weight sits on axis(j).
func blend(i, j int, cos float64) []float32 {
	v := make([]float32, fakeDim)
	v[i] = float32(cos)
	v[j] = float32(math.Sqrt(1 - cos*cos))
	return v
}

// fakeEmbedder returns fixed vectors for known texts. Unknown texts map to a
// stable hashed direction.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   map[string]int
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{vectors: vectors, calls: map[string]int{}}
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return cloneVector(v), nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(text)))
	return axis(int(h.Sum32() % fakeDim)), nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Close() error    { return nil }
func (f *fakeEmbedder) ModelID() string { return "fake" }

func (f *fakeEmbedder) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// stubMatcher answers from a fixed table keyed by question label.
type stubMatcher struct {
	mu      sync.Mutex
	results map[string]MatchResult
	err     error
	calls   int
}

func (s *stubMatcher) Match(_ context.Context, question string, _ *UserData) (MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return MatchResult{}, s.err
	}
	return s.results[question], nil
}

// matcherFunc adapts a function to Matcher.
type matcherFunc func(ctx context.Context, question string, data *UserData) (MatchResult, error)

func (f matcherFunc) Match(ctx context.Context, question string, data *UserData) (MatchResult, error) {
	return f(ctx, question, data)
}

type driverCall struct {
	Op    string
	Ref   string
	Value string
}

// fakeDriver records interactions. failures[ref] makes the next n
// interactions on ref fail.
type fakeDriver struct {
	mu       sync.Mutex
	fields   []FieldMeta
	listErr  error
	hidden   map[string]bool
	failures map[string]int
	calls    []driverCall
}

func newFakeDriver(fields ...FieldMeta) *fakeDriver {
	return &fakeDriver{
		fields:   fields,
		hidden:   map[string]bool{},
		failures: map[string]int{},
	}
}

func (d *fakeDriver) ListFields(context.Context) ([]FieldMeta, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.fields, nil
}

func (d *fakeDriver) record(op, ref, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, driverCall{Op: op, Ref: ref, Value: value})
	if d.failures[ref] > 0 {
		d.failures[ref]--
		return NewFieldError(op, ref, errors.New("element detached"))
	}
	return nil
}

func (d *fakeDriver) SetText(_ context.Context, ref, value string) error {
	return d.record("set", ref, value)
}

func (d *fakeDriver) SelectOption(_ context.Context, ref, label string) error {
	return d.record("select", ref, label)
}

func (d *fakeDriver) Check(_ context.Context, ref string, on bool) error {
	v := "off"
	if on {
		v = "on"
	}
	return d.record("check", ref, v)
}

func (d *fakeDriver) WaitVisible(_ context.Context, ref string, _ time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.hidden[ref]
}

func (d *fakeDriver) callsFor(ref string) []driverCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []driverCall
	for _, c := range d.calls {
		if c.Ref == ref {
			out = append(out, c)
		}
	}
	return out
}

func fastFillConfig() FillConfig {
	return FillConfig{
		WaitTimeout: 10 * time.Millisecond,
		Retry:       RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond},
	}
}
