package model

import (
	"math"

	"bitbucket.org/dtolpin/gogp/gp"
	"bitbucket.org/dtolpin/gplvm/kernel"
	"bitbucket.org/dtolpin/infergo/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// simil is a kernel as the similarity kernel of a gogp process.
// The process passes the hyperparameters exponentiated, followed
// by the two inputs, and reads the derivatives in the same order.
type simil struct {
	k      kernel.Kernel
	q      int
	theta  []float64
	dtheta []float64
	grad   []float64
}

func newSimil(k kernel.Kernel, q int) *simil {
	nt := k.NTheta()
	return &simil{
		k:      k,
		q:      q,
		theta:  make([]float64, nt),
		dtheta: make([]float64, nt),
		grad:   make([]float64, nt+2*q),
	}
}

func (s *simil) NTheta() int { return s.k.NTheta() }

func (s *simil) Observe(x []float64) float64 {
	nt := s.k.NTheta()
	for i := 0; i != nt; i++ {
		s.theta[i] = math.Log(x[i])
	}
	s.k.SetTheta(s.theta)
	xa, xb := x[nt:nt+s.q], x[nt+s.q:nt+2*s.q]
	dxa := s.grad[nt : nt+s.q]
	c := s.k.Grad(xa, xb, s.dtheta, dxa)
	for i := 0; i != nt; i++ {
		s.grad[i] = s.dtheta[i] / x[i]
	}
	for j, d := range dxa {
		s.grad[nt+s.q+j] = -d
	}
	return c
}

func (s *simil) Gradient() []float64 { return s.grad }

// noise is the likelihood variance as a gogp noise kernel.
type noise struct {
	grad []float64
}

func (*noise) NTheta() int { return 1 }

func (n *noise) Observe(x []float64) float64 {
	if len(n.grad) != len(x) {
		n.grad = make([]float64, len(x))
		n.grad[0] = 1
	}
	return x[0]
}

func (n *noise) Gradient() []float64 { return n.grad }

// exactGrad returns the gradient of Σ_d log N(y_d | 0, K + σ²I) by
// the latent inputs, the kernel log-parameters and the log noise
// variance. Each output is a gogp process over the same inputs,
// with the inputs among the process parameters.
func (m *GPLVM) exactGrad() (dX *mat.Dense, dtheta []float64, dnoise float64, err error) {
	n, d := m.Y.Dims()
	_, q := m.X.Dims()
	nt := m.kernel.NTheta()
	g := &gp.GP{
		NDim:  q,
		Simil: newSimil(m.kernel, q),
		Noise: &noise{},
	}

	// kernel parameters, noise, inputs, outputs
	x := make([]float64, nt+1+n*q+n)
	copy(x, m.kernel.Theta())
	x[nt] = math.Log(m.noise)
	g.X = make([][]float64, n)
	for i := range g.X {
		g.X[i] = mat.Row(nil, i, m.X)
		copy(x[nt+1+i*q:], g.X[i])
	}
	iy := nt + 1 + n*q

	defer func() {
		// undo the exp/log round trip through the process
		m.kernel.SetTheta(x[:nt])
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrNotPosDef, "gp: %v", r)
		}
	}()
	dX = mat.NewDense(n, q, nil)
	dtheta = make([]float64, nt)
	for j := 0; j != d; j++ {
		g.Y = mat.Col(nil, j, m.Y)
		copy(x[iy:], g.Y)
		if ll := g.Observe(x); math.IsNaN(ll) || math.IsInf(ll, 0) {
			return nil, nil, 0, errors.Wrapf(ErrNotPosDef, "gp: output %d", j)
		}
		grad := model.Gradient(g)
		for i := range dtheta {
			dtheta[i] += grad[i]
		}
		dnoise += grad[nt]
		for i := 0; i != n; i++ {
			for l := 0; l != q; l++ {
				dX.Set(i, l, dX.At(i, l)+grad[nt+1+i*q+l])
			}
		}
	}
	return dX, dtheta, dnoise, nil
}
