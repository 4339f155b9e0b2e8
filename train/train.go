// Package train fits a latent variable model to data as described
// by a run configuration, optionally from several starting points
// in parallel.
package train

import (
	"context"
	"math"
	"runtime"
	"sync"

	"bitbucket.org/dtolpin/gplvm/config"
	"bitbucket.org/dtolpin/gplvm/dataset"
	"bitbucket.org/dtolpin/gplvm/model"
	"bitbucket.org/dtolpin/gplvm/optimizer"
	"bitbucket.org/dtolpin/gplvm/pca"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// perturbation is the scale of the noise added to the initial
// latent inputs of restarts beyond the first.
const perturbation = 0.1

// Result is a fitted model.
type Result struct {
	Model     model.Model
	Optimizer *optimizer.Result
	// Latent holds the latent inputs, or the means of their
	// posterior, N×Q.
	Latent *mat.Dense
	// Restart is the index of the restart that gave the result.
	Restart int
}

// Progress is called after each optimizer iteration of a restart.
type Progress func(restart, iter int, f float64)

// Latent returns the latent inputs of a GPLVM or the latent
// posterior means of a Bayesian GPLVM.
func Latent(m model.Model) *mat.Dense {
	switch m := m.(type) {
	case *model.GPLVM:
		return m.X
	case *model.BayesianGPLVM:
		return m.Mean
	default:
		return nil
	}
}

// Build creates the model described by cfg for Y. The initial
// latent inputs are the principal components of Y, perturbed with
// seeded noise for restart > 0.
func Build(cfg *config.Config, Y mat.Matrix, restart int) (model.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	q := cfg.LatentDims
	k, err := cfg.Kernel.Build(q)
	if err != nil {
		return nil, err
	}
	X0, err := pca.Reduce(Y, q)
	if err != nil {
		return nil, errors.Wrap(err, "initial latent inputs")
	}
	seed := cfg.Seed + uint64(restart)
	if restart > 0 {
		n, _ := X0.Dims()
		noise := dataset.Normal(n, q, seed)
		noise.Scale(perturbation, noise)
		X0.Add(X0, noise)
	}

	opts := []model.Option{
		model.WithNoiseVariance(cfg.NoiseVariance),
		model.WithJitter(cfg.Jitter),
		model.WithSeed(seed),
	}
	if p := cfg.BuildPriors(); p != nil {
		opts = append(opts, model.WithPriors(p))
	}

	switch cfg.Model {
	case config.GPLVM:
		return model.NewGPLVM(Y, q, k, append(opts, model.WithLatent(X0))...)
	default:
		n, _ := X0.Dims()
		S0 := mat.NewDense(n, q, nil)
		for i := 0; i != n; i++ {
			for j := 0; j != q; j++ {
				S0.Set(i, j, 1)
			}
		}
		return model.NewBayesianGPLVM(Y, X0, S0, k, cfg.Inducing, opts...)
	}
}

// Fit runs cfg.Restarts optimisations concurrently and returns the
// one with the highest final objective. A restart that fails is
// logged and skipped; Fit fails if all restarts fail or the context
// is cancelled.
func Fit(ctx context.Context, cfg *config.Config, Y mat.Matrix, progress Progress) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}

	results := make([]*Result, cfg.Restarts)
	var (
		mu       sync.Mutex
		failures error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for r := 0; r != cfg.Restarts; r++ {
		g.Go(func() error {
			res, err := fitOnce(ctx, cfg, Y, r, progress)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				klog.Warningf("restart %d: %v", r, err)
				mu.Lock()
				failures = multierr.Append(failures, errors.Wrapf(err, "restart %d", r))
				mu.Unlock()
				return nil
			}
			results[r] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "fit")
	}

	var best *Result
	for _, res := range results {
		if res != nil && (best == nil || res.Optimizer.Final > best.Optimizer.Final) {
			best = res
		}
	}
	if best == nil {
		return nil, errors.Wrap(failures, "fit: all restarts failed")
	}
	klog.V(1).Infof("best restart %d: %.6g", best.Restart, best.Optimizer.Final)
	return best, nil
}

func fitOnce(ctx context.Context, cfg *config.Config, Y mat.Matrix, restart int, progress Progress) (*Result, error) {
	m, err := Build(cfg, Y, restart)
	if err != nil {
		return nil, err
	}
	opts := optimizer.Options{
		MaxIter:           cfg.Optimizer.MaxIter,
		Method:            cfg.Optimizer.Method,
		GradientThreshold: cfg.Optimizer.GradientThreshold,
	}
	if progress != nil {
		opts.Progress = func(iter int, f float64) {
			progress(restart, iter, f)
		}
	}
	res, err := optimizer.Minimize(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	if math.IsInf(res.Final, -1) {
		return nil, errors.Errorf("objective is -Inf")
	}
	klog.V(1).Infof("restart %d: %.6g -> %.6g in %d iterations",
		restart, res.Initial, res.Final, res.Iterations)
	return &Result{
		Model:     m,
		Optimizer: res,
		Latent:    Latent(m),
		Restart:   restart,
	}, nil
}
