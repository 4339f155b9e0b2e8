// Package optimizer fits the parameters of a latent variable
// model by minimising its negative log marginal likelihood (or
// bound) with a gonum quasi-Newton method.
package optimizer

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/dtolpin/infergo/infer"
	"bitbucket.org/dtolpin/infergo/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
	"k8s.io/klog/v2"
)

var ErrMethod = errors.New("optimizer: unknown method")

// Model is a differentiable model with a trainable parameter
// vector.
type Model interface {
	model.Model
	Gradient() []float64
	Parameters() []float64
	SetParameters(x []float64)
}

// Options configures Minimize.
type Options struct {
	// MaxIter bounds the number of major iterations after the
	// initial location; zero means until convergence.
	MaxIter int
	// Method is "lbfgs" (default), "bfgs" or "cg".
	Method string
	// GradientThreshold stops the optimisation when the infinity
	// norm of the gradient falls below it.
	GradientThreshold float64
	// Progress, if set, is called after each major iteration with
	// the iteration number and the current objective.
	Progress func(iter int, f float64)
}

// Result summarises an optimisation.
type Result struct {
	// Initial and Final are the log likelihoods (or bounds), plus
	// the log prior, before and after the optimisation.
	Initial     float64
	Final       float64
	Iterations  int
	Evaluations int
	Status      string
	Runtime     time.Duration
	// Err is the optimizer failure, if the optimizer stopped on an
	// error after accepting at least one step.
	Err error
}

func method(name string) (optimize.Method, error) {
	switch strings.ToLower(name) {
	case "", "lbfgs":
		return &optimize.LBFGS{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "cg":
		return &optimize.CG{}, nil
	default:
		return nil, errors.Wrap(ErrMethod, name)
	}
}

// recorder follows the major iterations, stopping the optimisation
// when the context is done.
type recorder struct {
	ctx      context.Context
	progress func(iter int, f float64)
	// iter is the last iteration reported.
	iter int
}

func (r *recorder) Init() error {
	r.iter = 0
	return nil
}

func (r *recorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if op&optimize.MajorIteration == 0 || stats.MajorIterations <= 1 {
		// not an iteration, or the initial location
		return nil
	}
	r.report(stats.MajorIterations-1, loc.F)
	return nil
}

func (r *recorder) report(iter int, f float64) {
	if iter <= r.iter {
		return
	}
	r.iter = iter
	klog.V(1).Infof("iteration %d: objective %.6g", iter, f)
	if r.progress != nil {
		r.progress(iter, f)
	}
}

// Minimize maximises m.Observe starting from m.Parameters() and
// leaves the best parameters found in the model.
//
// We do not need the optimizer to converge: a few iterations
// usually bring most of the improvement. An optimizer error is
// only returned when no step was accepted; otherwise it is
// recorded in the result.
func Minimize(ctx context.Context, m Model, opts Options) (*Result, error) {
	meth, err := method(opts.Method)
	if err != nil {
		return nil, err
	}
	x0 := m.Parameters()
	res := &Result{Initial: m.Observe(x0)}
	if len(x0) == 0 {
		res.Final = res.Initial
		res.Status = optimize.Success.String()
		return res, nil
	}

	Func, Grad := infer.FuncGrad(m)
	p := optimize.Problem{Func: Func, Grad: Grad}
	rec := &recorder{ctx: ctx, progress: opts.Progress}
	settings := &optimize.Settings{
		GradientThreshold: opts.GradientThreshold,
		Recorder:          rec,
	}
	if opts.MaxIter > 0 {
		// The initial location counts as a major iteration.
		settings.MajorIterations = opts.MaxIter + 1
	}

	start := time.Now()
	result, err := optimize.Minimize(p, x0, settings, meth)
	res.Runtime = time.Since(start)
	if result == nil {
		m.SetParameters(x0)
		return nil, errors.Wrap(err, "minimize")
	}
	if result.Stats.MajorIterations > 0 {
		res.Iterations = result.Stats.MajorIterations - 1
	}
	res.Evaluations = result.Stats.FuncEvaluations
	res.Status = result.Status.String()
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			if res.Iterations == 0 {
				m.SetParameters(x0)
			} else {
				m.SetParameters(result.X)
			}
			return nil, errors.Wrap(cerr, "minimize")
		}
		if res.Iterations == 0 {
			// the optimizer stopped on the first iteration
			m.SetParameters(x0)
			return nil, errors.Wrap(err, "minimize")
		}
		klog.Warningf("optimizer stopped after %d iterations: %v", res.Iterations, err)
		res.Err = err
	}
	if res.Iterations == 0 {
		res.Final = m.Observe(x0)
		return res, nil
	}
	rec.report(res.Iterations, result.F)

	res.Final = m.Observe(result.X)
	if res.Final < res.Initial {
		// never leave the model worse than we found it
		res.Final = m.Observe(x0)
	}
	klog.V(1).Infof("optimized in %d iterations, %d evaluations: %.6g -> %.6g",
		res.Iterations, res.Evaluations, res.Initial, res.Final)
	return res, nil
}
