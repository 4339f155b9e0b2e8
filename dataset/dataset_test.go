package dataset

import (
	"bytes"
	"strings"
	"testing"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestNormal(t *testing.T) {
	Y := Normal(20, 5, 999)
	r, c := Y.Dims()
	require.Equal(t, 20, r)
	require.Equal(t, 5, c)
	assert.True(t, mat.Equal(Y, Normal(20, 5, 999)), "same seed, same data")
	assert.False(t, mat.Equal(Y, Normal(20, 5, 1000)), "different seed, different data")

	big := Normal(2000, 1, 1)
	mean, std := stat.MeanStdDev(big.RawMatrix().Data, nil)
	assert.InDelta(t, 0, mean, 0.1)
	assert.InDelta(t, 1, std, 0.1)
}

func TestLinspace(t *testing.T) {
	X := Linspace(-1, 1, 5)
	assert.Equal(t, []float64{-1, -0.5, 0, 0.5, 1}, mat.Col(nil, 0, X))
}

func TestSample(t *testing.T) {
	X := Linspace(0, 5, 30)
	k := kernel.NewSquaredExponential(1, 1)
	Y := must.M1(Sample(X, k, 0.01, 3, 7))
	r, c := Y.Dims()
	require.Equal(t, 30, r)
	require.Equal(t, 3, c)
	assert.True(t, mat.Equal(Y, must.M1(Sample(X, k, 0.01, 3, 7))))

	// Neighbouring points of a smooth function are close.
	for j := 0; j != c; j++ {
		for i := 1; i != r; i++ {
			assert.Less(t, abs(Y.At(i, j)-Y.At(i-1, j)), 1.5)
		}
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestCSV(t *testing.T) {
	Y := mat.NewDense(3, 2, []float64{
		1, 2.5,
		-3, 0.125,
		4, -1,
	})
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Y, []string{"a", "b"}))
	assert.True(t, strings.HasPrefix(buf.String(), "a,b\n"), buf.String())

	Z, names, err := ReadCSV(&buf, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.True(t, mat.EqualApprox(Y, Z, 1e-6))
}

func TestReadCSVWithoutHeader(t *testing.T) {
	Y, names, err := ReadCSV(strings.NewReader("1,2\n3,4\n"), false)
	require.NoError(t, err)
	assert.Len(t, names, 2)
	assert.Equal(t, []float64{1, 2, 3, 4}, Y.RawMatrix().Data)
}

func TestReadCSVErrors(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("1,x\n3,4\n"), false)
	assert.Error(t, err)
}
