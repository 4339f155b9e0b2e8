package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadratic has the maximum 0 at c.
type quadratic struct {
	c    []float64
	x    []float64
	grad []float64
}

func newQuadratic(c ...float64) *quadratic {
	return &quadratic{c: c, x: make([]float64, len(c))}
}

func (m *quadratic) Observe(x []float64) float64 {
	m.SetParameters(x)
	ll := 0.
	m.grad = make([]float64, len(x))
	for i := range x {
		d := x[i] - m.c[i]
		ll -= d * d * float64(i+1)
		m.grad[i] = -2 * d * float64(i+1)
	}
	return ll
}

func (m *quadratic) Gradient() []float64 { return m.grad }

func (m *quadratic) Parameters() []float64 { return append([]float64(nil), m.x...) }

func (m *quadratic) SetParameters(x []float64) { m.x = append(m.x[:0], x...) }

func TestMinimize(t *testing.T) {
	for _, method := range []string{"", "lbfgs", "bfgs", "cg", "LBFGS"} {
		m := newQuadratic(1, -2, 0.5)
		res, err := Minimize(context.Background(), m, Options{
			Method:            method,
			GradientThreshold: 1e-6,
		})
		require.NoError(t, err, method)
		assert.InDelta(t, -(1 + 2*4 + 3*0.25), res.Initial, 1e-12, method)
		assert.InDelta(t, 0, res.Final, 1e-9, method)
		assert.InDeltaSlice(t, m.c, m.Parameters(), 1e-5, method)
		assert.Greater(t, res.Iterations, 0, method)
		assert.GreaterOrEqual(t, res.Evaluations, res.Iterations, method)
		assert.NoError(t, res.Err, method)
	}
}

func TestMaxIter(t *testing.T) {
	m := newQuadratic(3, -1, 2, 5)
	var iters []int
	res, err := Minimize(context.Background(), m, Options{
		MaxIter: 2,
		Progress: func(iter int, f float64) {
			iters = append(iters, iter)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	assert.Greater(t, res.Final, res.Initial)
	assert.Equal(t, []int{1, 2}, iters)
	assert.InDelta(t, res.Final, m.Observe(m.Parameters()), 1e-12)
}

func TestUnknownMethod(t *testing.T) {
	_, err := Minimize(context.Background(), newQuadratic(1), Options{Method: "newton"})
	assert.ErrorIs(t, err, ErrMethod)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newQuadratic(1, 2)
	_, err := Minimize(ctx, m, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{0, 0}, m.Parameters())
}

func TestNoParameters(t *testing.T) {
	res, err := Minimize(context.Background(), newQuadratic(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0., res.Final)
	assert.Equal(t, 0, res.Iterations)
}
