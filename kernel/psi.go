package kernel

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoExpectations is returned for kernels without closed-form
// expectations under a Gaussian input distribution.
var ErrNoExpectations = errors.New("kernel: no closed-form expectations")

// Expectations is a kernel with closed-form expectations (psi
// statistics) under independent diagonal Gaussian inputs
// q(x_n) = N(mu_n, diag(s_n)):
//
//	psi0 = Σ_n <k(x_n, x_n)>
//	psi1 = <K(X, Z)>,              N×M
//	psi2 = Σ_n <K(Z, x_n)K(x_n, Z)>, M×M
type Expectations interface {
	Kernel
	Psi(mu, s, Z mat.Matrix) (psi0 float64, psi1 *mat.Dense, psi2 *mat.SymDense)
	// PsiGrad accumulates the gradient of a scalar function of the
	// psi statistics given its partial derivatives g0, G1 and G2.
	// ds receives derivatives by the variances, not by their logs.
	PsiGrad(mu, s, Z mat.Matrix, g0 float64, G1, G2 mat.Matrix,
		dtheta []float64, dmu, ds, dZ *mat.Dense)
}

// ExpectationsOf returns the kernel as Expectations if it has
// closed-form psi statistics.
func ExpectationsOf(k Kernel) (Expectations, error) {
	if e, ok := k.(Expectations); ok {
		return e, nil
	}
	return nil, errors.Wrapf(ErrNoExpectations, "%T", k)
}

var _ Expectations = &SquaredExponential{}

func (k *SquaredExponential) Psi(mu, s, Z mat.Matrix) (
	psi0 float64, psi1 *mat.Dense, psi2 *mat.SymDense,
) {
	n, _ := mu.Dims()
	m, _ := Z.Dims()
	psi0 = float64(n) * k.variance

	psi1 = mat.NewDense(n, m, nil)
	psi2 = mat.NewSymDense(m, nil)
	for i := 0; i != n; i++ {
		for j := 0; j != m; j++ {
			psi1.Set(i, j, k.psi1(mu, s, Z, i, j))
		}
		for j := 0; j != m; j++ {
			for jj := j; jj != m; jj++ {
				psi2.SetSym(j, jj, psi2.At(j, jj)+k.psi2(mu, s, Z, i, j, jj))
			}
		}
	}
	return psi0, psi1, psi2
}

// psi1 is <k(x_i, z_j)>.
func (k *SquaredExponential) psi1(mu, s, Z mat.Matrix, i, j int) float64 {
	_, q := mu.Dims()
	logp := math.Log(k.variance)
	for d := 0; d != q; d++ {
		l, _ := lengthscale(k.lengthscales, d)
		l2 := l * l
		u := l2 + s.At(i, d)
		e := mu.At(i, d) - Z.At(j, d)
		logp += 0.5*math.Log(l2/u) - 0.5*e*e/u
	}
	return math.Exp(logp)
}

// psi2 is <k(z_j, x_i)k(x_i, z_jj)>.
func (k *SquaredExponential) psi2(mu, s, Z mat.Matrix, i, j, jj int) float64 {
	_, q := mu.Dims()
	logp := 2 * math.Log(k.variance)
	for d := 0; d != q; d++ {
		l, _ := lengthscale(k.lengthscales, d)
		l2 := l * l
		v := l2 + 2*s.At(i, d)
		dz := Z.At(j, d) - Z.At(jj, d)
		e := mu.At(i, d) - 0.5*(Z.At(j, d)+Z.At(jj, d))
		logp += 0.5*math.Log(l2/v) - 0.25*dz*dz/l2 - e*e/v
	}
	return math.Exp(logp)
}

func (k *SquaredExponential) PsiGrad(mu, s, Z mat.Matrix, g0 float64, G1, G2 mat.Matrix,
	dtheta []float64, dmu, ds, dZ *mat.Dense) {
	n, q := mu.Dims()
	m, _ := Z.Dims()

	dtheta[0] += g0 * float64(n) * k.variance

	add := func(a *mat.Dense, i, j int, v float64) {
		if a != nil {
			a.Set(i, j, a.At(i, j)+v)
		}
	}

	for i := 0; i != n; i++ {
		for j := 0; j != m; j++ {
			w := G1.At(i, j)
			if w == 0 {
				continue
			}
			w *= k.psi1(mu, s, Z, i, j)
			dtheta[0] += w
			for d := 0; d != q; d++ {
				l, il := lengthscale(k.lengthscales, d)
				l2 := l * l
				u := l2 + s.At(i, d)
				e := mu.At(i, d) - Z.At(j, d)
				add(dmu, i, d, -w*e/u)
				add(dZ, j, d, w*e/u)
				add(ds, i, d, w*(-0.5/u+0.5*e*e/(u*u)))
				dtheta[1+il] += w * (1 - l2/u + l2*e*e/(u*u))
			}
		}

		for j := 0; j != m; j++ {
			for jj := 0; jj != m; jj++ {
				w := G2.At(j, jj)
				if w == 0 {
					continue
				}
				w *= k.psi2(mu, s, Z, i, j, jj)
				dtheta[0] += 2 * w
				for d := 0; d != q; d++ {
					l, il := lengthscale(k.lengthscales, d)
					l2 := l * l
					v := l2 + 2*s.At(i, d)
					dz := Z.At(j, d) - Z.At(jj, d)
					e := mu.At(i, d) - 0.5*(Z.At(j, d)+Z.At(jj, d))
					add(dmu, i, d, -2*w*e/v)
					add(ds, i, d, w*(-1/v+2*e*e/(v*v)))
					add(dZ, j, d, w*(-0.5*dz/l2+e/v))
					add(dZ, jj, d, w*(0.5*dz/l2+e/v))
					dtheta[1+il] += w * (1 - l2/v + 0.5*dz*dz/l2 + 2*l2*e*e/(v*v))
				}
			}
		}
	}
}
