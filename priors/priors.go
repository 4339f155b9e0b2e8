// Package priors holds priors over the hyperparameters of a
// latent variable model: the kernel log-parameters followed by the
// log noise variance.
package priors

import (
	"bitbucket.org/dtolpin/infergo/dist"
	"bitbucket.org/dtolpin/infergo/model"
)

type Priors interface {
	model.Model
	Gradient() []float64
}

// Flat is the improper uniform prior.
type Flat struct {
	grad []float64
}

func (p *Flat) Observe(x []float64) float64 {
	p.grad = make([]float64, len(x))
	return 0
}

func (p *Flat) Gradient() []float64 {
	return p.grad
}

// Normal puts independent normal priors on the log
// hyperparameters. A single Mu or Sigma is shared by all
// hyperparameters.
type Normal struct {
	Mu    []float64
	Sigma []float64
	grad  []float64
}

// NewNormal creates a normal prior with the same location and
// scale for every hyperparameter.
func NewNormal(mu, sigma float64) *Normal {
	return &Normal{
		Mu:    []float64{mu},
		Sigma: []float64{sigma},
	}
}

func (p *Normal) at(i int) (mu, sigma float64) {
	mu, sigma = p.Mu[0], p.Sigma[0]
	if len(p.Mu) > 1 {
		mu = p.Mu[i]
	}
	if len(p.Sigma) > 1 {
		sigma = p.Sigma[i]
	}
	return mu, sigma
}

func (p *Normal) Observe(x []float64) float64 {
	ll := 0.
	p.grad = make([]float64, len(x))
	for i := range x {
		mu, sigma := p.at(i)
		ll += dist.Normal.Logp(mu, sigma, x[i])
		p.grad[i] = -(x[i] - mu) / (sigma * sigma)
	}
	return ll
}

func (p *Normal) Gradient() []float64 {
	return p.grad
}
