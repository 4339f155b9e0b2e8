// Package dataset generates synthetic data for latent variable
// models and reads and writes data matrices as CSV.
package dataset

import (
	"io"
	"math/rand/v2"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrEmpty     = errors.New("dataset: no data")
	ErrNotPosDef = errors.New("dataset: covariance is not positive definite")
)

// jitter is added to the diagonal of the covariance of a sample.
const jitter = 1e-8

func source(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed)
}

// Normal returns an n×d matrix of independent standard normal
// draws.
func Normal(n, d int, seed uint64) *mat.Dense {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: source(seed)}
	data := make([]float64, n*d)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(n, d, data)
}

// Linspace returns an n×1 column of evenly spaced values from lo
// to hi inclusive.
func Linspace(lo, hi float64, n int) *mat.Dense {
	return mat.NewDense(n, 1, floats.Span(make([]float64, n), lo, hi))
}

// Sample draws d output columns, each an independent sample of a
// zero-mean GP with kernel k at the rows of X, plus Gaussian noise
// of the given variance.
func Sample(X mat.Matrix, k kernel.Kernel, noise float64, d int, seed uint64) (*mat.Dense, error) {
	n, _ := X.Dims()
	K := kernel.Gram(k, X)
	for i := 0; i != n; i++ {
		K.SetSym(i, i, K.At(i, i)+noise+jitter)
	}
	var chol mat.Cholesky
	if !chol.Factorize(K) {
		return nil, ErrNotPosDef
	}
	dist := distmv.NewNormalChol(make([]float64, n), &chol, source(seed))
	Y := mat.NewDense(n, d, nil)
	y := make([]float64, n)
	for j := 0; j != d; j++ {
		dist.Rand(y)
		Y.SetCol(j, y)
	}
	return Y, nil
}

// ReadCSV reads a matrix of floats. Without a header the columns
// are named by gota's defaults.
func ReadCSV(r io.Reader, header bool) (*mat.Dense, []string, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(header),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, nil, errors.Wrap(df.Err, "read csv")
	}
	n, d := df.Dims()
	if n == 0 || d == 0 {
		return nil, nil, ErrEmpty
	}
	names := df.Names()
	Y := mat.NewDense(n, d, nil)
	for j, name := range names {
		col := df.Col(name)
		if col.HasNaN() {
			return nil, nil, errors.Errorf("read csv: column %q has missing or non-numeric values", name)
		}
		Y.SetCol(j, col.Float())
	}
	return Y, names, nil
}

// WriteCSV writes a matrix with a header row of column names. If
// names is nil, the columns are named by gota's defaults.
func WriteCSV(w io.Writer, m mat.Matrix, names []string) error {
	df := dataframe.LoadMatrix(m)
	if names != nil {
		if err := df.SetNames(names...); err != nil {
			return errors.Wrap(err, "write csv")
		}
	}
	return errors.Wrap(df.WriteCSV(w), "write csv")
}
