// Package model implements Gaussian process latent variable
// models: the GPLVM, where the latent inputs are point estimates
// optimised together with the kernel hyperparameters, and the
// Bayesian GPLVM, which places a variational Gaussian posterior
// over the latent inputs and uses inducing inputs for a sparse
// bound on the marginal likelihood.
//
// Both models implement the infergo model interface: Observe
// returns the objective to maximise at a flat parameter vector
// and Gradient returns its gradient. Positive quantities are
// parameterised by their logarithms.
package model

import (
	"math"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"bitbucket.org/dtolpin/gplvm/priors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Model is a latent variable model trainable by an optimizer.
type Model interface {
	// Observe sets the trainable parameters from x and returns the
	// log marginal likelihood (or its bound) plus the log prior.
	Observe(x []float64) float64
	// Gradient returns the gradient of the last Observe.
	Gradient() []float64
	// Parameters returns the current trainable parameters.
	Parameters() []float64
	// SetParameters sets the trainable parameters.
	SetParameters(x []float64)
	// LogLikelihood is the log marginal likelihood, or its
	// lower bound, at the current parameters.
	LogLikelihood() float64
	// NegLogMarginalLikelihood is the objective to minimise.
	NegLogMarginalLikelihood() float64
	// PredictF returns the posterior of the latent function
	// at new latent inputs.
	PredictF(Xnew mat.Matrix, fullCov bool) (*Prediction, error)
}

var (
	ErrShape     = errors.New("model: shape mismatch")
	ErrVariance  = errors.New("model: variance must be positive")
	ErrInducing  = errors.New("model: invalid number of inducing inputs")
	ErrNotPosDef = errors.New("model: matrix is not positive definite")
)

// Prediction is the predictive distribution at N* new inputs for
// D outputs. Either Var or Cov is set, depending on whether the
// full covariance was requested.
type Prediction struct {
	// Mean is N*×D.
	Mean *mat.Dense
	// Var holds the marginal variances, N*×D.
	Var *mat.Dense
	// Cov holds an N*×N* covariance per output dimension.
	Cov []*mat.SymDense
}

// Group is a group of model parameters.
type Group int

const (
	// LatentMean is the latent inputs (GPLVM) or the means of
	// their variational posterior (Bayesian GPLVM), N×Q.
	LatentMean Group = iota
	// LatentVariance is the log variances of the latent
	// posterior, N×Q. Only in the Bayesian GPLVM.
	LatentVariance
	// InducingInputs is Z, M×Q. Only in the Bayesian GPLVM.
	InducingInputs
	// Hyperparameters is the kernel log-parameters.
	Hyperparameters
	// NoiseVariance is the log variance of the Gaussian likelihood.
	NoiseVariance
	numGroups
)

var groupNames = [numGroups]string{
	"latent_mean", "latent_variance", "inducing_inputs", "hyperparameters", "noise_variance",
}

func (g Group) String() string {
	if g < 0 || g >= numGroups {
		return "unknown"
	}
	return groupNames[g]
}

// options collects the construction options of both models.
type options struct {
	noise     float64
	jitter    float64
	priors    priors.Priors
	latent    mat.Matrix
	inducing  mat.Matrix
	seed      uint64
	fixed     [numGroups]bool
	priorMean float64
	priorVar  float64
}

func defaultOptions() options {
	return options{
		noise:    1,
		jitter:   1e-6,
		priors:   &priors.Flat{},
		seed:     1,
		priorVar: 1,
	}
}

// Option configures a model.
type Option func(*options)

// WithNoiseVariance sets the initial variance of the likelihood.
func WithNoiseVariance(v float64) Option {
	return func(o *options) { o.noise = v }
}

// WithJitter sets the diagonal jitter added to inducing covariances.
func WithJitter(j float64) Option {
	return func(o *options) { o.jitter = j }
}

// WithPriors sets priors on the kernel log-parameters followed by
// the log noise variance.
func WithPriors(p priors.Priors) Option {
	return func(o *options) { o.priors = p }
}

// WithLatent sets the initial latent inputs of a GPLVM instead of
// the PCA reduction of Y.
func WithLatent(X mat.Matrix) Option {
	return func(o *options) { o.latent = X }
}

// WithInducing sets the initial inducing inputs of a Bayesian
// GPLVM.
func WithInducing(Z mat.Matrix) Option {
	return func(o *options) { o.inducing = Z }
}

// WithSeed seeds the choice of default inducing inputs.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithFixed excludes parameter groups from training.
func WithFixed(groups ...Group) Option {
	return func(o *options) {
		for _, g := range groups {
			o.fixed[g] = true
		}
	}
}

// WithLatentPrior sets the mean and the variance of the Gaussian
// prior over each latent coordinate in the Bayesian GPLVM.
func WithLatentPrior(mean, variance float64) Option {
	return func(o *options) {
		o.priorMean = mean
		o.priorVar = variance
	}
}

// defaultKernel is the squared exponential kernel with unit
// variance and a unit lengthscale per latent dimension.
func defaultKernel(q int) kernel.Kernel {
	ls := make([]float64, q)
	for i := range ls {
		ls[i] = 1
	}
	return kernel.NewSquaredExponential(1, ls...)
}

// checkKernel checks that every lengthscale vector of k is either
// shared or has an entry per latent dimension.
func checkKernel(k kernel.Kernel, q int) error {
	switch k := k.(type) {
	case *kernel.Sum:
		for _, part := range k.Parts() {
			if err := checkKernel(part, q); err != nil {
				return err
			}
		}
	case interface{ Lengthscales() []float64 }:
		if l := len(k.Lengthscales()); l != 1 && l != q {
			return errors.Wrapf(ErrShape, "%d lengthscales for %d latent dimensions", l, q)
		}
	}
	return nil
}

// layout maps the parameter groups of a model onto the flat
// vector of trainable parameters.
type layout struct {
	sizes [numGroups]int
	fixed [numGroups]bool
}

// ntrain is the length of the trainable vector.
func (l *layout) ntrain() int {
	n := 0
	for g, size := range l.sizes {
		if !l.fixed[g] {
			n += size
		}
	}
	return n
}

// pack concatenates the trainable groups.
func (l *layout) pack(groups [numGroups][]float64) []float64 {
	x := make([]float64, 0, l.ntrain())
	for g := range groups {
		if !l.fixed[g] {
			x = append(x, groups[g][:l.sizes[g]]...)
		}
	}
	return x
}

// unpack splits x into the trainable groups; fixed groups are nil.
func (l *layout) unpack(x []float64) (groups [numGroups][]float64) {
	if len(x) != l.ntrain() {
		panic(errors.Wrapf(ErrShape, "%d parameters, want %d", len(x), l.ntrain()))
	}
	offset := 0
	for g, size := range l.sizes {
		if l.fixed[g] {
			continue
		}
		groups[g] = x[offset : offset+size]
		offset += size
	}
	return groups
}

// hyper holds what the two models share: the data, the kernel,
// the likelihood and the priors.
type hyper struct {
	Y      *mat.Dense
	kernel kernel.Kernel
	noise  float64
	priors priors.Priors
	layout layout
	grad   []float64
}

// hyperparameters are the kernel log-parameters followed by the
// log noise variance, as seen by the priors.
func (h *hyper) hyperparameters() []float64 {
	return append(h.kernel.Theta(), math.Log(h.noise))
}

func (h *hyper) setHyperparameters(groups [numGroups][]float64) {
	if theta := groups[Hyperparameters]; theta != nil {
		h.kernel.SetTheta(theta)
	}
	if s := groups[NoiseVariance]; s != nil {
		h.noise = math.Exp(s[0])
	}
}

// logPrior returns the log prior of the hyperparameters and, if
// grads is not nil, adds its gradient to the hyperparameter groups.
func (h *hyper) logPrior(grads *[numGroups][]float64) float64 {
	lp := h.priors.Observe(h.hyperparameters())
	if grads == nil {
		return lp
	}
	g := h.priors.Gradient()
	nt := h.kernel.NTheta()
	for i := 0; i != nt; i++ {
		grads[Hyperparameters][i] += g[i]
	}
	grads[NoiseVariance][0] += g[nt]
	return lp
}

// Gradient returns the gradient of the last call to Observe.
func (h *hyper) Gradient() []float64 {
	return h.grad
}

// Kernel returns the covariance function.
func (h *hyper) Kernel() kernel.Kernel {
	return h.kernel
}

// Noise returns the variance of the Gaussian likelihood.
func (h *hyper) Noise() float64 {
	return h.noise
}

// Trainable reports the number of trainable parameters.
func (h *hyper) Trainable() int {
	return h.layout.ntrain()
}

// denseCopy copies a matrix checking its shape.
func denseCopy(name string, a mat.Matrix, r, c int) (*mat.Dense, error) {
	if ar, ac := a.Dims(); ar != r || ac != c {
		return nil, errors.Wrapf(ErrShape, "%s is %d×%d, want %d×%d", name, ar, ac, r, c)
	}
	return mat.DenseCopyOf(a), nil
}
