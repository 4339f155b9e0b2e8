package kernel

import (
	"math"
)

// Matern52 is the Matérn kernel with ν=5/2.
type Matern52 struct {
	variance     float64
	lengthscales []float64
}

var _ Kernel = &Matern52{}

// NewMatern52 creates a Matérn 5/2 kernel, isotropic unless a
// lengthscale per dimension is given.
func NewMatern52(variance float64, lengthscales ...float64) *Matern52 {
	if len(lengthscales) == 0 {
		lengthscales = []float64{1}
	}
	return &Matern52{
		variance:     variance,
		lengthscales: append([]float64(nil), lengthscales...),
	}
}

// Lengthscales returns a copy of the lengthscales.
func (k *Matern52) Lengthscales() []float64 {
	return append([]float64(nil), k.lengthscales...)
}

func (k *Matern52) NTheta() int { return 1 + len(k.lengthscales) }

func (k *Matern52) Theta() []float64 {
	theta := make([]float64, k.NTheta())
	theta[0] = math.Log(k.variance)
	for i, l := range k.lengthscales {
		theta[1+i] = math.Log(l)
	}
	return theta
}

func (k *Matern52) SetTheta(theta []float64) {
	k.variance = math.Exp(theta[0])
	for i := range k.lengthscales {
		k.lengthscales[i] = math.Exp(theta[1+i])
	}
}

func (k *Matern52) Variance() float64 { return k.variance }

func (k *Matern52) distance(xa, xb []float64) float64 {
	r2 := 0.
	for j := range xa {
		l, _ := lengthscale(k.lengthscales, j)
		d := (xa[j] - xb[j]) / l
		r2 += d * d
	}
	return math.Sqrt(r2)
}

func (k *Matern52) Cov(xa, xb []float64) float64 {
	r := math.Sqrt(5) * k.distance(xa, xb)
	return k.variance * (1 + r + r*r/3) * math.Exp(-r)
}

func (k *Matern52) Grad(xa, xb, dtheta, dx []float64) float64 {
	r := math.Sqrt(5) * k.distance(xa, xb)
	e := math.Exp(-r)
	cov := k.variance * (1 + r + r*r/3) * e
	// -dk/dr divided by r, finite at r = 0
	g := 5. / 3. * k.variance * (1 + r) * e
	for i := range dtheta {
		dtheta[i] = 0
	}
	dtheta[0] = cov
	for j := range xa {
		l, i := lengthscale(k.lengthscales, j)
		d := xa[j] - xb[j]
		dtheta[1+i] += g * d * d / (l * l)
		dx[j] = -g * d / (l * l)
	}
	return cov
}
