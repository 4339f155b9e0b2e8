package model

import (
	"math"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"bitbucket.org/dtolpin/gplvm/pca"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// GPLVM is the Gaussian process latent variable model: each output
// dimension of Y is an independent GP over the latent inputs X, and
// X is optimised together with the hyperparameters.
type GPLVM struct {
	hyper
	X *mat.Dense
}

var _ Model = &GPLVM{}

// NewGPLVM creates a GPLVM for N×D observations Y with q latent
// dimensions. If k is nil, a squared exponential kernel with a
// lengthscale per latent dimension is used. The latent inputs are
// initialised with the principal components of Y unless given by
// WithLatent.
func NewGPLVM(Y mat.Matrix, q int, k kernel.Kernel, opts ...Option) (*GPLVM, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	n, _ := Y.Dims()
	if o.noise <= 0 {
		return nil, errors.Wrapf(ErrVariance, "noise variance %g", o.noise)
	}
	if k == nil {
		k = defaultKernel(q)
	}
	if err := checkKernel(k, q); err != nil {
		return nil, err
	}

	var (
		X   *mat.Dense
		err error
	)
	if o.latent != nil {
		X, err = denseCopy("latent inputs", o.latent, n, q)
	} else {
		X, err = pca.Reduce(Y, q)
	}
	if err != nil {
		return nil, errors.Wrap(err, "initial latent inputs")
	}

	m := &GPLVM{
		hyper: hyper{
			Y:      mat.DenseCopyOf(Y),
			kernel: k,
			noise:  o.noise,
			priors: o.priors,
		},
		X: X,
	}
	m.layout.sizes[LatentMean] = n * q
	m.layout.sizes[Hyperparameters] = k.NTheta()
	m.layout.sizes[NoiseVariance] = 1
	m.layout.fixed = o.fixed
	return m, nil
}

// groups returns the current values of all parameter groups.
func (m *GPLVM) groups() (groups [numGroups][]float64) {
	groups[LatentMean] = append([]float64(nil), m.X.RawMatrix().Data...)
	groups[Hyperparameters] = m.kernel.Theta()
	groups[NoiseVariance] = []float64{math.Log(m.noise)}
	return groups
}

func (m *GPLVM) Parameters() []float64 {
	return m.layout.pack(m.groups())
}

func (m *GPLVM) SetParameters(x []float64) {
	groups := m.layout.unpack(x)
	if xs := groups[LatentMean]; xs != nil {
		n, q := m.X.Dims()
		m.X = mat.NewDense(n, q, append([]float64(nil), xs...))
	}
	m.setHyperparameters(groups)
}

func (m *GPLVM) Observe(x []float64) float64 {
	m.SetParameters(x)
	ll, grads, err := m.bound(true)
	if err != nil {
		klog.V(2).Infof("gplvm: %v", err)
		m.grad = make([]float64, len(x))
		return math.Inf(-1)
	}
	ll += m.logPrior(&grads)
	m.grad = m.layout.pack(grads)
	return ll
}

func (m *GPLVM) LogLikelihood() float64 {
	ll, _, err := m.bound(false)
	if err != nil {
		return math.Inf(-1)
	}
	return ll
}

func (m *GPLVM) NegLogMarginalLikelihood() float64 {
	ll, _, err := m.bound(false)
	if err != nil {
		return math.Inf(1)
	}
	return -(ll + m.logPrior(nil))
}

// posterior factorises K(X, X) + σ²I and solves for Y.
func (m *GPLVM) posterior() (chol *mat.Cholesky, L *mat.TriDense, alpha *mat.Dense, err error) {
	Ky := addDiag(kernel.Gram(m.kernel, m.X), m.noise)
	chol, L, err = factor("K+σ²I", Ky)
	if err != nil {
		return nil, nil, nil, err
	}
	alpha = &mat.Dense{}
	if err = chol.SolveTo(alpha, m.Y); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, nil, nil, errors.Wrap(err, "solve")
		}
	}
	return chol, L, alpha, nil
}

// bound computes the log marginal likelihood
//
//	Σ_d log N(y_d | 0, K + σ²I)
//
// and, with grad set, its gradient by all parameter groups.
func (m *GPLVM) bound(grad bool) (ll float64, grads [numGroups][]float64, err error) {
	n, d := m.Y.Dims()
	chol, _, alpha, err := m.posterior()
	if err != nil {
		return 0, grads, err
	}

	ll = -0.5 * float64(n*d) * math.Log(2*math.Pi)
	ll -= 0.5 * float64(d) * chol.LogDet()
	for j := 0; j != d; j++ {
		ll -= 0.5 * mat.Dot(m.Y.ColView(j), alpha.ColView(j))
	}

	if !grad {
		return ll, grads, nil
	}

	dX, dtheta, dnoise, err := m.exactGrad()
	if err != nil {
		return 0, grads, err
	}
	grads[LatentMean] = dX.RawMatrix().Data
	grads[Hyperparameters] = dtheta
	grads[NoiseVariance] = []float64{dnoise}
	return ll, grads, nil
}

// PredictF returns the GP posterior of the latent function at the
// rows of Xnew.
func (m *GPLVM) PredictF(Xnew mat.Matrix, fullCov bool) (*Prediction, error) {
	_, q := m.X.Dims()
	if _, c := Xnew.Dims(); c != q {
		return nil, errors.Wrapf(ErrShape, "new inputs have %d columns, want %d", c, q)
	}
	_, L, _, err := m.posterior()
	if err != nil {
		return nil, err
	}
	Kmn := kernel.Cross(m.kernel, m.X, Xnew)
	A, err := solveLower(L, false, Kmn)
	if err != nil {
		return nil, err
	}
	V, err := solveLower(L, false, m.Y)
	if err != nil {
		return nil, err
	}
	var mean mat.Dense
	mean.Mul(A.T(), V)
	return predictive(&mean, priorCov(m.kernel, Xnew, fullCov), nil, A, fullCov), nil
}

// PredictY returns the predictive distribution of new observations,
// the latent posterior plus the likelihood noise.
func (m *GPLVM) PredictY(Xnew mat.Matrix, fullCov bool) (*Prediction, error) {
	p, err := m.PredictF(Xnew, fullCov)
	if err != nil {
		return nil, err
	}
	addNoise(p, m.noise)
	return p, nil
}

// PredictLogDensity returns the log predictive density of each
// element of Ynew at the rows of Xnew.
func (m *GPLVM) PredictLogDensity(Xnew, Ynew mat.Matrix) (*mat.Dense, error) {
	p, err := m.PredictY(Xnew, false)
	if err != nil {
		return nil, err
	}
	return logDensity(p, Ynew)
}
