// Package pca reduces observations to a few principal directions,
// used to initialise latent coordinates.
package pca

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrDims     = errors.New("pca: too many latent dimensions")
	ErrNotFound = errors.New("pca: decomposition failed")
)

// Reduce centres the columns of Y and projects the rows onto the
// q leading principal directions. The result is N×q.
func Reduce(Y mat.Matrix, q int) (*mat.Dense, error) {
	n, d := Y.Dims()
	if q < 1 || q > min(n, d) {
		return nil, errors.Wrapf(ErrDims, "q=%d for %d×%d data", q, n, d)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(Y, nil) {
		return nil, ErrNotFound
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	centred := mat.DenseCopyOf(Y)
	col := make([]float64, n)
	for j := 0; j != d; j++ {
		mat.Col(col, j, centred)
		mean := stat.Mean(col, nil)
		for i := range col {
			centred.Set(i, j, col[i]-mean)
		}
	}

	var X mat.Dense
	X.Mul(centred, vecs.Slice(0, d, 0, q))
	return &X, nil
}
