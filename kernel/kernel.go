// Package kernel implements stationary covariance functions over
// latent inputs. Hyperparameters are kept in log space, the
// gradients are with respect to the log-parameters.
package kernel

import (
	"gonum.org/v1/gonum/mat"
)

// Kernel is a stationary covariance function.
type Kernel interface {
	// NTheta is the number of hyperparameters.
	NTheta() int
	// Theta returns the hyperparameters in log space.
	Theta() []float64
	// SetTheta sets the hyperparameters from log space.
	SetTheta(theta []float64)
	// Variance is the prior variance k(x, x).
	Variance() float64
	// Cov returns k(xa, xb).
	Cov(xa, xb []float64) float64
	// Grad returns k(xa, xb), and stores the partial derivatives
	// by the log-parameters in dtheta and by xa in dx. The
	// derivative by xb is -dx.
	Grad(xa, xb, dtheta, dx []float64) float64
}

// Gram computes the covariance matrix of the rows of X.
func Gram(k Kernel, X mat.Matrix) *mat.SymDense {
	n, _ := X.Dims()
	rows := rowsOf(X)
	K := mat.NewSymDense(n, nil)
	for i := 0; i != n; i++ {
		K.SetSym(i, i, k.Variance())
		for j := i + 1; j != n; j++ {
			K.SetSym(i, j, k.Cov(rows[i], rows[j]))
		}
	}
	return K
}

// Cross computes the covariance between the rows of X and the
// rows of Z.
func Cross(k Kernel, X, Z mat.Matrix) *mat.Dense {
	n, _ := X.Dims()
	m, _ := Z.Dims()
	xs, zs := rowsOf(X), rowsOf(Z)
	K := mat.NewDense(n, m, nil)
	for i := 0; i != n; i++ {
		for j := 0; j != m; j++ {
			K.Set(i, j, k.Cov(xs[i], zs[j]))
		}
	}
	return K
}

// Diag returns the prior variances at the rows of X.
func Diag(k Kernel, X mat.Matrix) []float64 {
	n, _ := X.Dims()
	d := make([]float64, n)
	for i := range d {
		d[i] = k.Variance()
	}
	return d
}

// GramGrad accumulates the gradient of a scalar function of the
// Gram matrix K(X, X), given G = dF/dK. Derivatives are added to
// dtheta and, when dX is not nil, to dX.
func GramGrad(k Kernel, X mat.Matrix, G mat.Matrix, dtheta []float64, dX *mat.Dense) {
	n, q := X.Dims()
	rows := rowsOf(X)
	gtheta := make([]float64, k.NTheta())
	gx := make([]float64, q)
	for i := 0; i != n; i++ {
		for j := 0; j != n; j++ {
			w := G.At(i, j)
			if w == 0 {
				continue
			}
			k.Grad(rows[i], rows[j], gtheta, gx)
			for l := range gtheta {
				dtheta[l] += w * gtheta[l]
			}
			if dX == nil || i == j {
				continue
			}
			for l := range gx {
				dX.Set(i, l, dX.At(i, l)+w*gx[l])
				dX.Set(j, l, dX.At(j, l)-w*gx[l])
			}
		}
	}
}

// rowsOf copies the rows of X into slices.
func rowsOf(X mat.Matrix) [][]float64 {
	n, q := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, q)
		mat.Row(rows[i], i, X)
	}
	return rows
}

// lengthscale returns the lengthscale of dimension j, either
// shared or per dimension.
func lengthscale(ls []float64, j int) (l float64, i int) {
	if len(ls) == 1 {
		return ls[0], 0
	}
	return ls[j], j
}
