package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineIdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
}

func TestCosineZeroVector(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{1, 1}
	assert.Equal(t, 0.0, Cosine(a, b))
}

func TestCosineLengthMismatch(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
}

func TestNormalizeUnitNorm(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	var sumSq float64
	for _, x := range n {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, Normalize(v))
}

func TestMeanOfVectors(t *testing.T) {
	vs := [][]float32{{1, 1}, {3, 3}}
	assert.Equal(t, []float32{2, 2}, Mean(vs))
}

func TestMeanEmpty(t *testing.T) {
	assert.Nil(t, Mean(nil))
}

func TestBlendWeighting(t *testing.T) {
	query := []float32{1, 0}
	mean := []float32{0, 1}
	blended := Blend(query, mean, 0.8)
	assert.InDelta(t, 0.8, float64(blended[0]), 1e-6)
	assert.InDelta(t, 0.2, float64(blended[1]), 1e-6)
}

func TestWeightedSumNormalized(t *testing.T) {
	vs := [][]float32{{1, 0}, {0, 1}}
	out := WeightedSum(vs, []float64{2, 1})
	var sumSq float64
	for _, x := range out {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
	assert.Greater(t, out[0], out[1])
}
