package emb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanPoolIgnoresMaskedTokens(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	out := MeanPool(hidden, 3, 2, []int64{1, 1, 0})
	require.Len(t, out, 2)
	assert.InDelta(t, 2.0, out[0], 1e-6)
	assert.InDelta(t, 3.0, out[1], 1e-6)
}

func TestMeanPoolAllMasked(t *testing.T) {
	out := MeanPool([]float32{1, 1}, 1, 2, []int64{0})
	assert.Equal(t, []float32{0, 0}, out)
}

func TestMeanPoolShortBuffer(t *testing.T) {
	out := MeanPool([]float32{1}, 2, 2, nil)
	assert.Equal(t, []float32{0, 0}, out)
}

func TestNormalize(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestTruncateTokensKeepsSeparator(t *testing.T) {
	assert.Equal(t, []int64{101, 1, 2, 102}, truncateTokens([]int64{101, 1, 2, 3, 4, 102}, 4))
	assert.Equal(t, []int64{1, 2}, truncateTokens([]int64{1, 2}, 4))
}

func TestEncodeRequiresInit(t *testing.T) {
	var e Encoder
	_, err := e.Encode("hello")
	assert.Error(t, err)
	e.Close()
}

func TestInitValidatesPaths(t *testing.T) {
	var e Encoder
	assert.Error(t, e.Init(Config{}))
	assert.Error(t, e.Init(Config{ModelPath: "model.onnx"}))
}
