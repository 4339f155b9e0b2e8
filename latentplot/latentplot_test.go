package latentplot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPlot(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 1,
		1, 0,
		-1, 2,
		0.5, 0.5,
	})
	p, err := Plot("latents", X, []int{0, 1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, "latents", p.Title.Text)
	assert.Equal(t, "latent 2", p.Y.Label.Text)

	p, err = Plot("1-d", mat.NewDense(3, 1, []float64{1, 2, 3}), nil)
	require.NoError(t, err)
	assert.Equal(t, "point", p.X.Label.Text)

	_, err = Plot("bad", X, []int{1})
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latents.png")
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 2, 0})
	require.NoError(t, Save(path, "latents", X, nil))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
