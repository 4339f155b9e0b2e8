package model

import (
	"math"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// priorCov is the prior covariance at the new inputs, or only its
// diagonal.
func priorCov(k kernel.Kernel, Xnew mat.Matrix, fullCov bool) mat.Symmetric {
	if fullCov {
		return kernel.Gram(k, Xnew)
	}
	n, _ := Xnew.Dims()
	return mat.NewDiagDense(n, kernel.Diag(k, Xnew))
}

// addNoise turns a prediction of the latent function into a
// prediction of observations.
func addNoise(p *Prediction, noise float64) {
	if p.Var != nil {
		r, c := p.Var.Dims()
		for i := 0; i != r; i++ {
			for j := 0; j != c; j++ {
				p.Var.Set(i, j, p.Var.At(i, j)+noise)
			}
		}
	}
	for _, cov := range p.Cov {
		n := cov.SymmetricDim()
		for i := 0; i != n; i++ {
			cov.SetSym(i, i, cov.At(i, i)+noise)
		}
	}
}

// logDensity is the elementwise Gaussian log density of Y under
// the marginals of p.
func logDensity(p *Prediction, Y mat.Matrix) (*mat.Dense, error) {
	n, d := p.Mean.Dims()
	if r, c := Y.Dims(); r != n || c != d {
		return nil, errors.Wrapf(ErrShape, "observations are %d×%d, want %d×%d", r, c, n, d)
	}
	lp := mat.NewDense(n, d, nil)
	for i := 0; i != n; i++ {
		for j := 0; j != d; j++ {
			v := p.Variance(i, j)
			if v <= 0 {
				return nil, errors.Wrapf(ErrVariance, "predictive variance %g at (%d, %d)", v, i, j)
			}
			dy := Y.At(i, j) - p.Mean.At(i, j)
			lp.Set(i, j, -0.5*(math.Log(2*math.Pi*v)+dy*dy/v))
		}
	}
	return lp, nil
}

// Variance returns the marginal variance of output j at point i in
// either mode.
func (p *Prediction) Variance(i, j int) float64 {
	if p.Var != nil {
		return p.Var.At(i, j)
	}
	return p.Cov[j].At(i, i)
}
