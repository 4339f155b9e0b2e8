package model

import (
	"testing"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimil(t *testing.T) {
	for _, c := range []struct {
		name string
		k    kernel.Kernel
		want kernel.Kernel
		x    []float64
	}{
		{
			// variance, two lengthscales, then the two inputs
			name: "se",
			k:    kernel.NewSquaredExponential(1, 1, 1),
			want: kernel.NewSquaredExponential(1.5, 0.7, 1.2),
			x:    []float64{1.5, 0.7, 1.2, 0.1, -0.4, 0.6, 0.3},
		},
		{
			// variance, lengthscale, period
			name: "periodic",
			k:    kernel.NewPeriodic(1, 1, 1),
			want: kernel.NewPeriodic(0.8, 1.1, 2.5),
			x:    []float64{0.8, 1.1, 2.5, 0.2, 1, -0.3, 0.4},
		},
	} {
		s := newSimil(c.k, 2)
		assert.Equal(t, c.k.NTheta(), s.NTheta(), c.name)
		x := c.x
		nt := c.k.NTheta()
		assert.InDelta(t, c.want.Cov(x[nt:nt+2], x[nt+2:]), s.Observe(x), 1e-12, c.name)
		grad := append([]float64(nil), s.Gradient()...)
		require.Len(t, grad, len(x), c.name)
		for j := range x {
			x0 := x[j]
			x[j] = x0 + dx
			up := s.Observe(x)
			x[j] = x0 - dx
			down := s.Observe(x)
			x[j] = x0
			assert.InDelta(t, (up-down)/(2*dx), grad[j], eps, "%s: dk/dx%d", c.name, j)
		}
	}
}

func TestNoise(t *testing.T) {
	n := &noise{}
	assert.Equal(t, 1, n.NTheta())
	assert.Equal(t, 0.3, n.Observe([]float64{0.3, 1, 2}))
	assert.Equal(t, []float64{1, 0, 0}, n.Gradient())
}

func TestExactGradKeepsKernel(t *testing.T) {
	Y := data(6, 2)
	k := kernel.NewSquaredExponential(1.3, 0.8, 1.1)
	m, err := NewGPLVM(Y, 2, k)
	require.NoError(t, err)
	theta := k.Theta()
	_, _, _, err = m.exactGrad()
	require.NoError(t, err)
	assert.InDeltaSlice(t, theta, k.Theta(), 1e-12)
}
