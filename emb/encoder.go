// Package emb turns text into sentence embeddings with an ONNX transformer
// model and a HuggingFace tokenizer.json.
package emb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Config describes where the runtime, model and tokenizer live.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int

	// OutputName is the model output holding per-token hidden states.
	OutputName      string
	// UseTokenTypeIDs feeds token_type_ids (BERT-style models such as MiniLM).
	UseTokenTypeIDs bool
}

// Encoder produces mean-pooled, L2-normalized sentence vectors.
type Encoder struct {
	mu        sync.Mutex
	cfg       Config
	tk        *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession
	ownsEnv   bool
	inputs    []string
	initiated bool
}

// Init loads the shared library, the tokenizer and the model session.
func (e *Encoder) Init(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initiated {
		return errors.New("encoder already initialized")
	}
	if cfg.ModelPath == "" {
		return errors.New("model path is required")
	}
	if cfg.TokenizerPath == "" {
		return errors.New("tokenizer path is required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 256
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if cfg.OrtDLL != "" {
			ort.SetSharedLibraryPath(cfg.OrtDLL)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("init onnxruntime: %w", err)
		}
		ownsEnv = true
	}

	inputs := []string{"input_ids", "attention_mask"}
	if cfg.UseTokenTypeIDs {
		inputs = append(inputs, "token_type_ids")
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, []string{cfg.OutputName}, nil)
	if err != nil {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return fmt.Errorf("create session: %w", err)
	}

	e.cfg = cfg
	e.tk = tk
	e.session = session
	e.ownsEnv = ownsEnv
	e.inputs = inputs
	e.initiated = true
	return nil
}

// Encode embeds a single string.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initiated {
		return nil, errors.New("encoder is not initialized")
	}
	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := truncateTokens(toInt64(enc.GetIds()), e.cfg.MaxSeqLen)
	mask := truncateTokens(toInt64(enc.GetAttentionMask()), e.cfg.MaxSeqLen)
	types := truncateTokens(toInt64(enc.GetTypeIds()), e.cfg.MaxSeqLen)
	if len(ids) == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}
	if len(types) != len(ids) {
		types = make([]int64, len(ids))
	}

	shape := ort.NewShape(1, int64(len(ids)))
	values := make([]ort.Value, 0, len(e.inputs))
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, types}[:len(e.inputs)] {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		values = append(values, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	dims := hidden.GetShape()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d", len(dims))
	}
	vec := MeanPool(hidden.GetData(), int(dims[1]), int(dims[2]), mask)
	return Normalize(vec), nil
}

// Close releases the session and, if this encoder created it, the runtime.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initiated {
		return
	}
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	if e.ownsEnv {
		_ = ort.DestroyEnvironment()
	}
	e.initiated = false
}

// MeanPool averages token vectors whose attention mask is set.
func MeanPool(hidden []float32, seqLen, dim int, mask []int64) []float32 {
	out := make([]float32, dim)
	if dim <= 0 || seqLen <= 0 || len(hidden) < seqLen*dim {
		return out
	}
	var count float32
	for t := 0; t < seqLen; t++ {
		if t < len(mask) && mask[t] == 0 {
			continue
		}
		row := hidden[t*dim : (t+1)*dim]
		for i, v := range row {
			out[i] += v
		}
		count++
	}
	if count == 0 {
		return out
	}
	for i := range out {
		out[i] /= count
	}
	return out
}

// Normalize scales vec to unit length in place and returns it.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

// truncateTokens keeps the final (separator) token when cutting.
func truncateTokens(tokens []int64, max int) []int64 {
	if max <= 0 || len(tokens) <= max {
		return tokens
	}
	out := make([]int64, max)
	copy(out, tokens[:max-1])
	out[max-1] = tokens[len(tokens)-1]
	return out
}
