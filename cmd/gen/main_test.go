package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"bitbucket.org/dtolpin/gplvm/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	latents := filepath.Join(t.TempDir(), "latents.csv")
	p := &params{n: 15, d: 3, q: 2, seed: 5, noise: 0.01, variance: 1,
		lengthscale: 1, period: 2, seasonal: true, latents: latents}
	var buf bytes.Buffer
	require.NoError(t, generate(p, &buf))

	Y, names, err := dataset.ReadCSV(&buf, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"y1", "y2", "y3"}, names)
	r, c := Y.Dims()
	assert.Equal(t, 15, r)
	assert.Equal(t, 3, c)

	file, err := os.Open(latents)
	require.NoError(t, err)
	defer file.Close()
	X, names, err := dataset.ReadCSV(file, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2"}, names)
	r, c = X.Dims()
	assert.Equal(t, 15, r)
	assert.Equal(t, 2, c)

	p.n = 0
	assert.Error(t, generate(p, &buf))
}
