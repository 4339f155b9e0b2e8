package train

import (
	"context"
	"sync"
	"testing"

	"bitbucket.org/dtolpin/gplvm/config"
	"bitbucket.org/dtolpin/gplvm/dataset"
	"bitbucket.org/dtolpin/gplvm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

// klog flushes from a goroutine started on initialisation.
var ignoreKlog = goleak.IgnoreAnyFunction("k8s.io/klog/v2.(*flushDaemon).run.func1")

func testConfig(kind string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Model = kind
	cfg.Optimizer.MaxIter = 3
	return cfg
}

func TestBuild(t *testing.T) {
	Y := dataset.Normal(20, 5, 999)

	m0, err := Build(testConfig(config.GPLVM), Y, 0)
	require.NoError(t, err)
	require.IsType(t, &model.GPLVM{}, m0)
	r, c := Latent(m0).Dims()
	assert.Equal(t, 20, r)
	assert.Equal(t, 2, c)

	m, err := Build(testConfig(config.Bayesian), Y, 0)
	require.NoError(t, err)
	b := m.(*model.BayesianGPLVM)
	r, c = b.Z.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 2, c)

	// Restarts start from different points.
	m1, err := Build(testConfig(config.GPLVM), Y, 1)
	require.NoError(t, err)
	assert.False(t, mat.EqualApprox(Latent(m1), Latent(m0), 1e-12))
	m2, err := Build(testConfig(config.GPLVM), Y, 0)
	require.NoError(t, err)
	assert.True(t, mat.Equal(Latent(m2), Latent(m0)))

	cfg := testConfig(config.GPLVM)
	cfg.LatentDims = 0
	_, err = Build(cfg, Y, 0)
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreKlog)

	Y := dataset.Normal(20, 5, 999)
	for _, kind := range []string{config.GPLVM, config.Bayesian} {
		t.Run(kind, func(t *testing.T) {
			cfg := testConfig(kind)
			cfg.Restarts = 3

			var (
				mu    sync.Mutex
				calls = map[int]int{}
			)
			res, err := Fit(context.Background(), cfg, Y, func(restart, iter int, f float64) {
				mu.Lock()
				calls[restart]++
				mu.Unlock()
			})
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Greater(t, res.Optimizer.Final, res.Optimizer.Initial)
			assert.LessOrEqual(t, res.Optimizer.Iterations, 3)
			assert.Same(t, Latent(res.Model), res.Latent)
			assert.GreaterOrEqual(t, res.Restart, 0)
			assert.Less(t, res.Restart, 3)
			assert.NotEmpty(t, calls)
		})
	}
}

func TestFitCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreKlog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := testConfig(config.GPLVM)
	cfg.Restarts = 2
	_, err := Fit(ctx, cfg, dataset.Normal(20, 5, 999), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitInvalid(t *testing.T) {
	cfg := testConfig(config.Bayesian)
	cfg.Inducing = 0
	_, err := Fit(context.Background(), cfg, dataset.Normal(20, 5, 999), nil)
	assert.Error(t, err)
}
