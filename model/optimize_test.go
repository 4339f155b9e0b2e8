package model_test

import (
	"context"
	"testing"

	"bitbucket.org/dtolpin/gplvm/dataset"
	"bitbucket.org/dtolpin/gplvm/kernel"
	"bitbucket.org/dtolpin/gplvm/model"
	"bitbucket.org/dtolpin/gplvm/optimizer"
	"bitbucket.org/dtolpin/gplvm/pca"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// The fixture: 20 points, 5 outputs, 2 latent dimensions and 10
// inducing inputs.
const (
	N = 20
	D = 5
	Q = 2
	M = 10
)

func fixture() *mat.Dense {
	return dataset.Normal(N, D, 999)
}

func ones(r, c int) *mat.Dense {
	a := mat.NewDense(r, c, nil)
	for i := 0; i != r; i++ {
		for j := 0; j != c; j++ {
			a.Set(i, j, 1)
		}
	}
	return a
}

// improves runs two optimizer iterations and checks that the log
// likelihood grows.
func improves(t *testing.T, m model.Model) {
	t.Helper()
	initial := m.LogLikelihood()
	res, err := optimizer.Minimize(context.Background(), m, optimizer.Options{MaxIter: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Iterations, 2)
	assert.Greater(t, m.LogLikelihood(), initial)
	assert.InDelta(t, initial, res.Initial, 1e-9)
}

func TestGPLVMDefaultKernel(t *testing.T) {
	m := must.M1(model.NewGPLVM(fixture(), Q, nil))
	improves(t, m)
}

func TestGPLVMPeriodicKernel(t *testing.T) {
	m := must.M1(model.NewGPLVM(fixture(), Q, kernel.NewPeriodic(1, 1, 1)))
	improves(t, m)
}

func TestGPLVMSquaredExponentialKernel(t *testing.T) {
	m := must.M1(model.NewGPLVM(fixture(), Q, kernel.NewSquaredExponential(1)))
	improves(t, m)
}

func TestBayesianGPLVM1D(t *testing.T) {
	q := 1
	Z := dataset.Linspace(0, 1, M)
	m := must.M1(model.NewBayesianGPLVM(fixture(),
		mat.NewDense(N, q, nil), ones(N, q),
		kernel.NewSquaredExponential(1), M,
		model.WithInducing(Z)))
	improves(t, m)
}

func TestBayesianGPLVM2D(t *testing.T) {
	Y := fixture()
	mean := must.M1(pca.Reduce(Y, Q))
	m := must.M1(model.NewBayesianGPLVM(Y, mean, ones(N, Q),
		kernel.NewSquaredExponential(1), M))
	r, c := m.Z.Dims()
	require.Equal(t, M, r)
	require.Equal(t, Q, c)
	improves(t, m)

	Xtest := dataset.Normal(10, Q, 1000)
	diag := must.M1(m.PredictF(Xtest, false))
	full := must.M1(m.PredictF(Xtest, true))
	assert.True(t, mat.EqualApprox(diag.Mean, full.Mean, 1e-12))
	for j := 0; j != D; j++ {
		for i := 0; i != 10; i++ {
			assert.InDelta(t, diag.Var.At(i, j), full.Cov[j].At(i, i), 1e-10)
		}
	}
}
