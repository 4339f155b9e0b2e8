package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// factor computes the Cholesky factorisation of a and its lower
// triangle.
func factor(name string, a mat.Symmetric) (*mat.Cholesky, *mat.TriDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, nil, errors.Wrap(ErrNotPosDef, name)
	}
	var L mat.TriDense
	chol.LTo(&L)
	return &chol, &L, nil
}

// solveLower returns L⁻¹b, or L⁻ᵀb when trans is set.
func solveLower(L *mat.TriDense, trans bool, b mat.Matrix) (*mat.Dense, error) {
	var x mat.Dense
	if err := L.SolveTo(&x, trans, b); err != nil {
		// Ill-conditioning is reported as a Condition error, the
		// solution is still usable.
		if _, ok := err.(mat.Condition); !ok {
			return nil, errors.Wrap(err, "triangular solve")
		}
	}
	return &x, nil
}

// inverse returns the inverse of the factorised matrix.
func inverse(chol *mat.Cholesky) (*mat.SymDense, error) {
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, errors.Wrap(err, "inverse")
		}
	}
	return &inv, nil
}

// addDiag returns a + v I.
func addDiag(a mat.Symmetric, v float64) *mat.SymDense {
	n := a.SymmetricDim()
	b := mat.NewSymDense(n, nil)
	b.CopySym(a)
	for i := 0; i != n; i++ {
		b.SetSym(i, i, b.At(i, i)+v)
	}
	return b
}

// sumSquares returns the sum of squared elements.
func sumSquares(a mat.Matrix) float64 {
	r, c := a.Dims()
	s := 0.
	for i := 0; i != r; i++ {
		for j := 0; j != c; j++ {
			v := a.At(i, j)
			s += v * v
		}
	}
	return s
}

// columnSquares returns the sums of squares of the columns of a.
func columnSquares(a mat.Matrix) []float64 {
	r, c := a.Dims()
	s := make([]float64, c)
	for i := 0; i != r; i++ {
		for j := 0; j != c; j++ {
			v := a.At(i, j)
			s[j] += v * v
		}
	}
	return s
}

// symmetrise returns the symmetric part of a square matrix.
func symmetrise(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i != n; i++ {
		for j := i; j != n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

// predictive assembles a prediction from the mean, the prior
// covariance at the new inputs, and the matrices whose squared
// column norms are added to (plus) and subtracted from (minus) it.
// Without a full covariance only the diagonal is computed.
func predictive(mean *mat.Dense, prior mat.Symmetric, plus, minus mat.Matrix, fullCov bool) *Prediction {
	n, d := mean.Dims()
	if !fullCov {
		pv := columnSquares(minus)
		var av []float64
		if plus != nil {
			av = columnSquares(plus)
		}
		v := mat.NewDense(n, d, nil)
		for i := 0; i != n; i++ {
			vi := prior.At(i, i) - pv[i]
			if av != nil {
				vi += av[i]
			}
			for j := 0; j != d; j++ {
				v.Set(i, j, vi)
			}
		}
		return &Prediction{Mean: mean, Var: v}
	}

	var mm, pp mat.Dense
	mm.Mul(minus.T(), minus)
	if plus != nil {
		pp.Mul(plus.T(), plus)
	}
	cov := make([]*mat.SymDense, d)
	for j := range cov {
		c := mat.NewSymDense(n, nil)
		for a := 0; a != n; a++ {
			for b := a; b != n; b++ {
				v := prior.At(a, b) - mm.At(a, b)
				if plus != nil {
					v += pp.At(a, b)
				}
				c.SetSym(a, b, v)
			}
		}
		cov[j] = c
	}
	return &Prediction{Mean: mean, Cov: cov}
}
