package config

import (
	"os"
	"path/filepath"
	"testing"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: gplvm
latent_dims: 1
kernel:
  name: periodic
  variance: 2
  lengthscales: [0.5]
  period: 3
priors:
  mu: 0
  sigma: 2
optimizer:
  max_iter: 5
restarts: 3
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	want := DefaultConfig()
	want.Model = GPLVM
	want.LatentDims = 1
	want.Kernel = KernelConfig{
		Name:         Periodic,
		Variance:     2,
		Lengthscales: []float64{0.5},
		Period:       3,
	}
	want.Priors = &PriorConfig{Mu: 0, Sigma: 2}
	want.Optimizer.MaxIter = 5
	want.Restarts = 3
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := DefaultConfig()
	cfg.Kernel = KernelConfig{
		Name: Sum,
		Parts: []KernelConfig{
			{Name: SquaredExponential, Variance: 1, Lengthscales: []float64{1, 2}},
			{Name: Matern52, Variance: 0.5},
		},
	}
	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "deep"
	cfg.LatentDims = 0
	cfg.NoiseVariance = -1
	cfg.Restarts = 0
	cfg.Optimizer.Method = "newton"
	cfg.Kernel.Name = "linear"
	err := cfg.Validate()
	require.Error(t, err)
	// every problem is reported
	assert.Len(t, multierr.Errors(err), 6)

	cfg = DefaultConfig()
	cfg.Kernel = KernelConfig{Name: Periodic, Variance: 1}
	err = cfg.Validate()
	require.Error(t, err, "bayesian model with a periodic kernel")
	cfg.Model = GPLVM
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Kernel.Lengthscales = []float64{1, 1, 1}
	assert.Error(t, cfg.Validate(), "lengthscales do not match latent dimensions")
}

func TestBuild(t *testing.T) {
	for _, c := range []struct {
		name   string
		kc     KernelConfig
		ntheta int
	}{
		{"se ard", KernelConfig{Name: SquaredExponential, Variance: 1}, 3},
		{"se shared", KernelConfig{Name: SquaredExponential, Variance: 1, Lengthscales: []float64{2}}, 2},
		{"matern", KernelConfig{Name: Matern52, Variance: 1}, 3},
		{"periodic", KernelConfig{Name: Periodic, Variance: 1}, 3},
		{"sum", KernelConfig{Name: Sum, Parts: []KernelConfig{
			{Name: SquaredExponential, Variance: 1},
			{Name: Periodic, Variance: 1, Period: 2},
		}}, 6},
	} {
		t.Run(c.name, func(t *testing.T) {
			k, err := c.kc.Build(2)
			require.NoError(t, err)
			assert.Equal(t, c.ntheta, k.NTheta())
		})
	}

	p, err := (&KernelConfig{Name: Periodic, Variance: 1, Period: 2.5}).Build(1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, p.(*kernel.Periodic).Period())

	_, err = (&KernelConfig{Name: "linear"}).Build(2)
	assert.ErrorIs(t, err, ErrKernel)
}

func TestBuildPriors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.BuildPriors())
	cfg.Priors = &PriorConfig{Mu: 0, Sigma: 1}
	p := cfg.BuildPriors()
	require.NotNil(t, p)
	assert.InDelta(t, 0, p.Observe([]float64{0, 0})+2*0.9189385332046727, 1e-12)
}
