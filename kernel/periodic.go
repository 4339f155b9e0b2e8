package kernel

import (
	"math"
)

// Periodic is the periodic kernel built on the squared
// exponential over sines of scaled distances:
//
//	k(xa, xb) = σ² exp(-½ Σ_j sin²(π(xa_j-xb_j)/p) / ℓ²)
type Periodic struct {
	variance    float64
	lengthscale float64
	period      float64
}

var _ Kernel = &Periodic{}

// NewPeriodic creates a periodic kernel.
func NewPeriodic(variance, lengthscale, period float64) *Periodic {
	return &Periodic{
		variance:    variance,
		lengthscale: lengthscale,
		period:      period,
	}
}

// Period returns the period.
func (k *Periodic) Period() float64 { return k.period }

func (k *Periodic) NTheta() int { return 3 }

func (k *Periodic) Theta() []float64 {
	return []float64{
		math.Log(k.variance),
		math.Log(k.lengthscale),
		math.Log(k.period),
	}
}

func (k *Periodic) SetTheta(theta []float64) {
	const (
		c = iota // variance
		l        // length scale
		p        // period
	)
	k.variance = math.Exp(theta[c])
	k.lengthscale = math.Exp(theta[l])
	k.period = math.Exp(theta[p])
}

func (k *Periodic) Variance() float64 { return k.variance }

func (k *Periodic) Cov(xa, xb []float64) float64 {
	s2 := 0.
	for j := range xa {
		s := math.Sin(math.Pi * (xa[j] - xb[j]) / k.period)
		s2 += s * s
	}
	l2 := k.lengthscale * k.lengthscale
	return k.variance * math.Exp(-0.5*s2/l2)
}

func (k *Periodic) Grad(xa, xb, dtheta, dx []float64) float64 {
	l2 := k.lengthscale * k.lengthscale
	s2, scd := 0., 0.
	for j := range xa {
		d := xa[j] - xb[j]
		a := math.Pi * d / k.period
		s, c := math.Sin(a), math.Cos(a)
		s2 += s * s
		scd += s * c * d
		dx[j] = s * c
	}
	cov := k.variance * math.Exp(-0.5*s2/l2)
	dtheta[0] = cov
	dtheta[1] = cov * s2 / l2
	dtheta[2] = cov * math.Pi * scd / (l2 * k.period)
	for j := range dx {
		dx[j] *= -cov * math.Pi / (l2 * k.period)
	}
	return cov
}
