package kernel

import (
	"math"
)

// SquaredExponential is the squared exponential (RBF) kernel.
// A single lengthscale is shared by all dimensions, otherwise
// there is a lengthscale per dimension (ARD).
type SquaredExponential struct {
	variance     float64
	lengthscales []float64
}

var _ Kernel = &SquaredExponential{}

// NewSquaredExponential creates a squared exponential kernel.
// With no lengthscales given the kernel is isotropic with unit
// lengthscale.
func NewSquaredExponential(variance float64, lengthscales ...float64) *SquaredExponential {
	if len(lengthscales) == 0 {
		lengthscales = []float64{1}
	}
	return &SquaredExponential{
		variance:     variance,
		lengthscales: append([]float64(nil), lengthscales...),
	}
}

// Lengthscales returns a copy of the lengthscales.
func (k *SquaredExponential) Lengthscales() []float64 {
	return append([]float64(nil), k.lengthscales...)
}

func (k *SquaredExponential) NTheta() int { return 1 + len(k.lengthscales) }

func (k *SquaredExponential) Theta() []float64 {
	theta := make([]float64, k.NTheta())
	theta[0] = math.Log(k.variance)
	for i, l := range k.lengthscales {
		theta[1+i] = math.Log(l)
	}
	return theta
}

func (k *SquaredExponential) SetTheta(theta []float64) {
	k.variance = math.Exp(theta[0])
	for i := range k.lengthscales {
		k.lengthscales[i] = math.Exp(theta[1+i])
	}
}

func (k *SquaredExponential) Variance() float64 { return k.variance }

func (k *SquaredExponential) Cov(xa, xb []float64) float64 {
	r2 := 0.
	for j := range xa {
		l, _ := lengthscale(k.lengthscales, j)
		d := (xa[j] - xb[j]) / l
		r2 += d * d
	}
	return k.variance * math.Exp(-0.5*r2)
}

func (k *SquaredExponential) Grad(xa, xb, dtheta, dx []float64) float64 {
	c := k.Cov(xa, xb)
	for i := range dtheta {
		dtheta[i] = 0
	}
	dtheta[0] = c
	for j := range xa {
		l, i := lengthscale(k.lengthscales, j)
		d := xa[j] - xb[j]
		dtheta[1+i] += c * d * d / (l * l)
		dx[j] = -c * d / (l * l)
	}
	return c
}
