// Package config holds the configuration of a fitting run, read
// from YAML.
package config

import (
	"os"
	"strconv"
	"strings"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"bitbucket.org/dtolpin/gplvm/priors"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Model kinds.
const (
	GPLVM    = "gplvm"
	Bayesian = "bayesian"
)

// Kernel names.
const (
	SquaredExponential = "squared_exponential"
	Periodic           = "periodic"
	Matern52           = "matern52"
	Sum                = "sum"
)

var ErrKernel = errors.New("config: unknown kernel")

// Config is the configuration of a fitting run.
type Config struct {
	Model         string          `yaml:"model"`
	LatentDims    int             `yaml:"latent_dims"`
	Inducing      int             `yaml:"inducing"`
	Kernel        KernelConfig    `yaml:"kernel"`
	NoiseVariance float64         `yaml:"noise_variance"`
	Jitter        float64         `yaml:"jitter"`
	Priors        *PriorConfig    `yaml:"priors,omitempty"`
	Optimizer     OptimizerConfig `yaml:"optimizer"`
	Restarts      int             `yaml:"restarts"`
	Seed          uint64          `yaml:"seed"`
}

// KernelConfig describes a covariance function. Lengthscales may be
// empty for one lengthscale per latent dimension, or hold a single
// shared lengthscale. A sum kernel is given by its parts.
type KernelConfig struct {
	Name         string         `yaml:"name"`
	Variance     float64        `yaml:"variance"`
	Lengthscales []float64      `yaml:"lengthscales,omitempty"`
	Period       float64        `yaml:"period,omitempty"`
	Parts        []KernelConfig `yaml:"parts,omitempty"`
}

// PriorConfig puts a normal prior on the log hyperparameters.
type PriorConfig struct {
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
}

// OptimizerConfig configures the optimizer.
type OptimizerConfig struct {
	Method            string  `yaml:"method"`
	MaxIter           int     `yaml:"max_iter"`
	GradientThreshold float64 `yaml:"gradient_threshold"`
}

// DefaultConfig returns the configuration used when no file is
// given.
func DefaultConfig() *Config {
	return &Config{
		Model:      Bayesian,
		LatentDims: 2,
		Inducing:   10,
		Kernel: KernelConfig{
			Name:     SquaredExponential,
			Variance: 1,
		},
		NoiseVariance: 1,
		Jitter:        1e-6,
		Optimizer: OptimizerConfig{
			Method:  "lbfgs",
			MaxIter: 100,
		},
		Restarts: 1,
		Seed:     1,
	}
}

// Load reads the configuration from a YAML file over the defaults.
// A missing file gives the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write config")
}

// Validate reports all problems of the configuration at once.
func (c *Config) Validate() error {
	var err error
	switch c.Model {
	case GPLVM, Bayesian:
	default:
		err = multierr.Append(err, errors.Errorf("model %q: want %q or %q", c.Model, GPLVM, Bayesian))
	}
	if c.LatentDims < 1 {
		err = multierr.Append(err, errors.Errorf("latent_dims %d: must be positive", c.LatentDims))
	}
	if c.Model == Bayesian && c.Inducing < 1 {
		err = multierr.Append(err, errors.Errorf("inducing %d: must be positive", c.Inducing))
	}
	if c.NoiseVariance <= 0 {
		err = multierr.Append(err, errors.Errorf("noise_variance %g: must be positive", c.NoiseVariance))
	}
	if c.Jitter < 0 {
		err = multierr.Append(err, errors.Errorf("jitter %g: must not be negative", c.Jitter))
	}
	if c.Priors != nil && c.Priors.Sigma <= 0 {
		err = multierr.Append(err, errors.Errorf("priors.sigma %g: must be positive", c.Priors.Sigma))
	}
	switch strings.ToLower(c.Optimizer.Method) {
	case "", "lbfgs", "bfgs", "cg":
	default:
		err = multierr.Append(err, errors.Errorf("optimizer.method %q: want lbfgs, bfgs or cg", c.Optimizer.Method))
	}
	if c.Optimizer.MaxIter < 0 {
		err = multierr.Append(err, errors.Errorf("optimizer.max_iter %d: must not be negative", c.Optimizer.MaxIter))
	}
	if c.Restarts < 1 {
		err = multierr.Append(err, errors.Errorf("restarts %d: must be positive", c.Restarts))
	}
	err = multierr.Append(err, c.Kernel.validate("kernel", c.LatentDims))
	if c.Model == Bayesian && c.Kernel.Name != SquaredExponential {
		err = multierr.Append(err, errors.Errorf("kernel %q: the bayesian model needs %q",
			c.Kernel.Name, SquaredExponential))
	}
	return err
}

func (k *KernelConfig) validate(path string, q int) error {
	var err error
	switch k.Name {
	case SquaredExponential, Periodic, Matern52:
		if k.Variance <= 0 {
			err = multierr.Append(err, errors.Errorf("%s.variance %g: must be positive", path, k.Variance))
		}
		for _, l := range k.Lengthscales {
			if l <= 0 {
				err = multierr.Append(err, errors.Errorf("%s.lengthscales: %g is not positive", path, l))
			}
		}
		if n := len(k.Lengthscales); n > 1 && n != q {
			err = multierr.Append(err, errors.Errorf("%s.lengthscales: %d for %d latent dimensions", path, n, q))
		}
		if k.Name == Periodic {
			if len(k.Lengthscales) > 1 {
				err = multierr.Append(err, errors.Errorf("%s.lengthscales: periodic kernel takes one", path))
			}
			if k.Period < 0 {
				err = multierr.Append(err, errors.Errorf("%s.period %g: must be positive", path, k.Period))
			}
		}
	case Sum:
		if len(k.Parts) == 0 {
			err = multierr.Append(err, errors.Errorf("%s.parts: empty sum", path))
		}
		for i := range k.Parts {
			err = multierr.Append(err, k.Parts[i].validate(path+".parts["+strconv.Itoa(i)+"]", q))
		}
	default:
		err = multierr.Append(err, errors.Wrapf(ErrKernel, "%s.name %q", path, k.Name))
	}
	return err
}

// Build creates the kernel for q latent dimensions.
func (k *KernelConfig) Build(q int) (kernel.Kernel, error) {
	switch k.Name {
	case SquaredExponential:
		return kernel.NewSquaredExponential(k.Variance, k.lengthscales(q)...), nil
	case Matern52:
		return kernel.NewMatern52(k.Variance, k.lengthscales(q)...), nil
	case Periodic:
		l, p := 1., 1.
		if len(k.Lengthscales) > 0 {
			l = k.Lengthscales[0]
		}
		if k.Period > 0 {
			p = k.Period
		}
		return kernel.NewPeriodic(k.Variance, l, p), nil
	case Sum:
		parts := make([]kernel.Kernel, len(k.Parts))
		for i := range k.Parts {
			part, err := k.Parts[i].Build(q)
			if err != nil {
				return nil, err
			}
			parts[i] = part
		}
		return kernel.NewSum(parts...), nil
	default:
		return nil, errors.Wrap(ErrKernel, k.Name)
	}
}

// lengthscales defaults to a unit lengthscale per latent dimension.
func (k *KernelConfig) lengthscales(q int) []float64 {
	if len(k.Lengthscales) > 0 {
		return append([]float64(nil), k.Lengthscales...)
	}
	ls := make([]float64, q)
	for i := range ls {
		ls[i] = 1
	}
	return ls
}

// BuildPriors creates the hyperparameter priors, nil if none are
// configured.
func (c *Config) BuildPriors() priors.Priors {
	if c.Priors == nil {
		return nil
	}
	return priors.NewNormal(c.Priors.Mu, c.Priors.Sigma)
}
