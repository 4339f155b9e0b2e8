package pca

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestReduce(t *testing.T) {
	// Points on a line in 3-D, offset from the origin.
	Y := mat.NewDense(5, 3, nil)
	for i := 0; i != 5; i++ {
		s := float64(i) - 2
		Y.Set(i, 0, 1+s)
		Y.Set(i, 1, 2+2*s)
		Y.Set(i, 2, 3-2*s)
	}
	X, err := Reduce(Y, 1)
	require.NoError(t, err)
	r, c := X.Dims()
	require.Equal(t, 5, r)
	require.Equal(t, 1, c)

	col := mat.Col(nil, 0, X)
	assert.InDelta(t, 0, stat.Mean(col, nil), 1e-12)
	// Projection on the leading direction preserves distances
	// along the line, up to the sign.
	for i := range col {
		s := float64(i) - 2
		assert.InDelta(t, 3*math.Abs(s), math.Abs(col[i]), 1e-10)
	}
}

func TestReduceKeepsVarianceOrder(t *testing.T) {
	Y := mat.NewDense(4, 2, []float64{
		-3, 0.1,
		-1, -0.1,
		1, 0.1,
		3, -0.1,
	})
	X, err := Reduce(Y, 2)
	require.NoError(t, err)
	v0 := stat.Variance(mat.Col(nil, 0, X), nil)
	v1 := stat.Variance(mat.Col(nil, 1, X), nil)
	assert.Greater(t, v0, v1)
}

func TestReduceDims(t *testing.T) {
	Y := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 7})
	for _, q := range []int{0, 3} {
		_, err := Reduce(Y, q)
		assert.ErrorIs(t, err, ErrDims, "q=%d", q)
	}
}
