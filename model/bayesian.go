package model

import (
	"math"
	"math/rand/v2"

	"bitbucket.org/dtolpin/gplvm/kernel"
	"bitbucket.org/dtolpin/gplvm/pca"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
	"k8s.io/klog/v2"
)

// BayesianGPLVM is the variational Bayesian GPLVM. The latent
// inputs have the factorised posterior q(x_n) = N(mu_n, diag(s_n))
// and a Gaussian prior; M inducing inputs Z give a lower bound on
// the log marginal likelihood which is tractable for kernels with
// closed-form expectations.
type BayesianGPLVM struct {
	hyper
	psi kernel.Expectations

	// Mean and Var are the parameters of q(X), both N×Q.
	Mean *mat.Dense
	Var  *mat.Dense
	// Z holds the inducing inputs, M×Q.
	Z *mat.Dense

	jitter    float64
	priorMean float64
	priorVar  float64
}

var _ Model = &BayesianGPLVM{}

// NewBayesianGPLVM creates a Bayesian GPLVM for N×D observations Y,
// with the latent posterior initialised at the N×Q mean and
// variance, and numInducing inducing inputs. Unless given by
// WithInducing, the inducing inputs are numInducing rows, chosen at
// random, of the principal components of Y.
func NewBayesianGPLVM(Y, mean, variance mat.Matrix, k kernel.Kernel, numInducing int,
	opts ...Option) (*BayesianGPLVM, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	n, _ := Y.Dims()
	_, q := mean.Dims()
	if k == nil {
		k = defaultKernel(q)
	}
	if err := checkKernel(k, q); err != nil {
		return nil, err
	}
	ek, err := kernel.ExpectationsOf(k)
	if err != nil {
		return nil, err
	}
	if o.noise <= 0 {
		return nil, errors.Wrapf(ErrVariance, "noise variance %g", o.noise)
	}
	if o.priorVar <= 0 {
		return nil, errors.Wrapf(ErrVariance, "latent prior variance %g", o.priorVar)
	}

	mu, err := denseCopy("latent mean", mean, n, q)
	if err != nil {
		return nil, err
	}
	s, err := denseCopy("latent variance", variance, n, q)
	if err != nil {
		return nil, err
	}
	for _, v := range s.RawMatrix().Data {
		if v <= 0 {
			return nil, errors.Wrapf(ErrVariance, "latent variance %g", v)
		}
	}

	var Z *mat.Dense
	if o.inducing != nil {
		Z, err = denseCopy("inducing inputs", o.inducing, numInducing, q)
	} else {
		Z, err = defaultInducing(Y, q, numInducing, o.seed)
	}
	if err != nil {
		return nil, err
	}

	m := &BayesianGPLVM{
		hyper: hyper{
			Y:      mat.DenseCopyOf(Y),
			kernel: k,
			noise:  o.noise,
			priors: o.priors,
		},
		psi:       ek,
		Mean:      mu,
		Var:       s,
		Z:         Z,
		jitter:    o.jitter,
		priorMean: o.priorMean,
		priorVar:  o.priorVar,
	}
	m.layout.sizes[LatentMean] = n * q
	m.layout.sizes[LatentVariance] = n * q
	m.layout.sizes[InducingInputs] = numInducing * q
	m.layout.sizes[Hyperparameters] = k.NTheta()
	m.layout.sizes[NoiseVariance] = 1
	m.layout.fixed = o.fixed
	return m, nil
}

// defaultInducing picks m rows of the q principal components of Y
// in a random order.
func defaultInducing(Y mat.Matrix, q, m int, seed uint64) (*mat.Dense, error) {
	n, _ := Y.Dims()
	if m < 1 || m > n {
		return nil, errors.Wrapf(ErrInducing, "%d inducing inputs for %d observations", m, n)
	}
	X, err := pca.Reduce(Y, q)
	if err != nil {
		return nil, errors.Wrap(err, "default inducing inputs")
	}
	idx := make([]int, m)
	sampleuv.WithoutReplacement(idx, n, rand.NewPCG(seed, seed))
	Z := mat.NewDense(m, q, nil)
	for i, j := range idx {
		Z.SetRow(i, X.RawRowView(j))
	}
	return Z, nil
}

func (m *BayesianGPLVM) groups() (groups [numGroups][]float64) {
	groups[LatentMean] = append([]float64(nil), m.Mean.RawMatrix().Data...)
	logs := make([]float64, len(m.Var.RawMatrix().Data))
	for i, v := range m.Var.RawMatrix().Data {
		logs[i] = math.Log(v)
	}
	groups[LatentVariance] = logs
	groups[InducingInputs] = append([]float64(nil), m.Z.RawMatrix().Data...)
	groups[Hyperparameters] = m.kernel.Theta()
	groups[NoiseVariance] = []float64{math.Log(m.noise)}
	return groups
}

func (m *BayesianGPLVM) Parameters() []float64 {
	return m.layout.pack(m.groups())
}

func (m *BayesianGPLVM) SetParameters(x []float64) {
	groups := m.layout.unpack(x)
	n, q := m.Mean.Dims()
	if mu := groups[LatentMean]; mu != nil {
		m.Mean = mat.NewDense(n, q, append([]float64(nil), mu...))
	}
	if logs := groups[LatentVariance]; logs != nil {
		s := make([]float64, len(logs))
		for i, v := range logs {
			s[i] = math.Exp(v)
		}
		m.Var = mat.NewDense(n, q, s)
	}
	if z := groups[InducingInputs]; z != nil {
		nz, _ := m.Z.Dims()
		m.Z = mat.NewDense(nz, q, append([]float64(nil), z...))
	}
	m.setHyperparameters(groups)
}

func (m *BayesianGPLVM) Observe(x []float64) float64 {
	m.SetParameters(x)
	ll, grads, err := m.bound(true)
	if err != nil {
		klog.V(2).Infof("bayesian gplvm: %v", err)
		m.grad = make([]float64, len(x))
		return math.Inf(-1)
	}
	ll += m.logPrior(&grads)
	m.grad = m.layout.pack(grads)
	return ll
}

func (m *BayesianGPLVM) LogLikelihood() float64 {
	ll, _, err := m.bound(false)
	if err != nil {
		return math.Inf(-1)
	}
	return ll
}

func (m *BayesianGPLVM) NegLogMarginalLikelihood() float64 {
	ll, _, err := m.bound(false)
	if err != nil {
		return math.Inf(1)
	}
	return -(ll + m.logPrior(nil))
}

// sparse holds the factorisations shared by the bound and the
// predictions.
type sparse struct {
	psi0    float64
	psi1    *mat.Dense
	psi2    *mat.SymDense
	Kuu     *mat.SymDense
	cholKuu *mat.Cholesky
	L       *mat.TriDense // chol(Kuu)
	AAT     *mat.Dense    // L⁻¹ψ2L⁻ᵀ/σ²
	cholB   *mat.Cholesky
	LB      *mat.TriDense // chol(I + AAT)
	c       *mat.Dense    // LB⁻¹L⁻¹ψ1ᵀY/σ²
}

func (m *BayesianGPLVM) factorise() (*sparse, error) {
	sp := &sparse{}
	sp.psi0, sp.psi1, sp.psi2 = m.psi.Psi(m.Mean, m.Var, m.Z)
	sp.Kuu = addDiag(kernel.Gram(m.kernel, m.Z), m.jitter)

	var err error
	sp.cholKuu, sp.L, err = factor("Kuu", sp.Kuu)
	if err != nil {
		return nil, err
	}

	// AAT = L⁻¹ψ2L⁻ᵀ/σ²
	tmp, err := solveLower(sp.L, false, sp.psi2)
	if err != nil {
		return nil, err
	}
	sp.AAT, err = solveLower(sp.L, false, tmp.T())
	if err != nil {
		return nil, err
	}
	sp.AAT.Scale(1/m.noise, sp.AAT)

	mdim := sp.Kuu.SymmetricDim()
	B := symmetrise(sp.AAT)
	for i := 0; i != mdim; i++ {
		B.SetSym(i, i, B.At(i, i)+1)
	}
	sp.cholB, sp.LB, err = factor("B", B)
	if err != nil {
		return nil, err
	}

	// c = LB⁻¹L⁻¹ψ1ᵀY/σ²
	var P mat.Dense
	P.Mul(sp.psi1.T(), m.Y)
	tmp, err = solveLower(sp.L, false, &P)
	if err != nil {
		return nil, err
	}
	sp.c, err = solveLower(sp.LB, false, tmp)
	if err != nil {
		return nil, err
	}
	sp.c.Scale(1/m.noise, sp.c)
	return sp, nil
}

// kl is KL[q(X) || p(X)].
func (m *BayesianGPLVM) kl() float64 {
	kl := 0.
	mu, s := m.Mean.RawMatrix().Data, m.Var.RawMatrix().Data
	for i := range mu {
		d := mu[i] - m.priorMean
		kl += 0.5 * (math.Log(m.priorVar) - math.Log(s[i]) - 1 + (d*d+s[i])/m.priorVar)
	}
	return kl
}

// bound computes the variational lower bound on the log marginal
// likelihood,
//
//	-ND/2 log(2πσ²) - D/2 log|B| - tr(YᵀY)/2σ² + ||c||²/2
//	    - D/2 (ψ0/σ² - tr(AAᵀ)) - KL[q(X) || p(X)]
//
// and, with grad set, its gradient by all parameter groups.
func (m *BayesianGPLVM) bound(grad bool) (ll float64, grads [numGroups][]float64, err error) {
	n, d := m.Y.Dims()
	nd := float64(n * d)
	sp, err := m.factorise()
	if err != nil {
		return 0, grads, err
	}
	yy := sumSquares(m.Y)

	ll = -0.5 * nd * math.Log(2*math.Pi*m.noise)
	ll -= 0.5 * float64(d) * sp.cholB.LogDet()
	ll -= 0.5 * yy / m.noise
	ll += 0.5 * sumSquares(sp.c)
	ll -= 0.5 * float64(d) * (sp.psi0/m.noise - mat.Trace(sp.AAT))
	ll -= m.kl()

	if !grad {
		return ll, grads, nil
	}
	grads = m.gradient(sp, yy)
	return ll, grads, nil
}

// gradient differentiates the bound. With β = 1/σ² and
// Σ = Kuu + βψ2 the bound depends on the psi statistics and Kuu
// through
//
//	D/2 (log|Kuu| - log|Σ|) + β²/2 tr(PᵀΣ⁻¹P) + βD/2 tr(Kuu⁻¹ψ2) - βDψ0/2,
//
// where P = ψ1ᵀY.
func (m *BayesianGPLVM) gradient(sp *sparse, yy float64) (grads [numGroups][]float64) {
	n, d := m.Y.Dims()
	_, q := m.Mean.Dims()
	mdim := sp.Kuu.SymmetricDim()
	beta := 1 / m.noise
	fd := float64(d)

	Ki, err := inverse(sp.cholKuu)
	if err != nil {
		panic(err)
	}
	Binv, err := inverse(sp.cholB)
	if err != nil {
		panic(err)
	}
	// Σ⁻¹ = L⁻ᵀB⁻¹L⁻¹
	tmp, err := solveLower(sp.L, true, Binv)
	if err != nil {
		panic(err)
	}
	Si, err := solveLower(sp.L, true, tmp.T())
	if err != nil {
		panic(err)
	}

	var P, SiP mat.Dense
	P.Mul(sp.psi1.T(), m.Y)
	SiP.Mul(Si, &P)

	// dF/dΣ = -D/2 Σ⁻¹ - β²/2 Σ⁻¹PPᵀΣ⁻¹
	var GS mat.Dense
	GS.Mul(&SiP, SiP.T())
	GS.Scale(-0.5*beta*beta, &GS)
	for i := 0; i != mdim; i++ {
		for j := 0; j != mdim; j++ {
			GS.Set(i, j, GS.At(i, j)-0.5*fd*Si.At(i, j))
		}
	}

	// dF/dKuu = D/2 Kuu⁻¹ - βD/2 Kuu⁻¹ψ2Kuu⁻¹ + dF/dΣ
	var KiPsi2Ki mat.Dense
	KiPsi2Ki.Mul(Ki, sp.psi2)
	KiPsi2Ki.Mul(&KiPsi2Ki, Ki)
	GKuu := mat.NewDense(mdim, mdim, nil)
	// dF/dψ2 = βD/2 Kuu⁻¹ + β dF/dΣ
	G2 := mat.NewDense(mdim, mdim, nil)
	for i := 0; i != mdim; i++ {
		for j := 0; j != mdim; j++ {
			GKuu.Set(i, j, 0.5*fd*Ki.At(i, j)-0.5*beta*fd*KiPsi2Ki.At(i, j)+GS.At(i, j))
			G2.Set(i, j, 0.5*beta*fd*Ki.At(i, j)+beta*GS.At(i, j))
		}
	}

	// dF/dψ1 = β² Y (Σ⁻¹P)ᵀ
	var G1 mat.Dense
	G1.Mul(m.Y, SiP.T())
	G1.Scale(beta*beta, &G1)

	// dF/dψ0 = -βD/2
	g0 := -0.5 * beta * fd

	// dF/dβ
	var KiPsi2, GSPsi2 mat.Dense
	KiPsi2.Mul(Ki, sp.psi2)
	GSPsi2.Mul(&GS, sp.psi2)
	ptsp := 0.
	for i := 0; i != mdim; i++ {
		for j := 0; j != d; j++ {
			ptsp += P.At(i, j) * SiP.At(i, j)
		}
	}
	dbeta := 0.5*float64(n*d)/beta - 0.5*yy + beta*ptsp - 0.5*fd*sp.psi0 +
		0.5*fd*mat.Trace(&KiPsi2) + mat.Trace(&GSPsi2)

	dtheta := make([]float64, m.kernel.NTheta())
	dmu := mat.NewDense(n, q, nil)
	ds := mat.NewDense(n, q, nil)
	dZ := mat.NewDense(mdim, q, nil)
	m.psi.PsiGrad(m.Mean, m.Var, m.Z, g0, &G1, G2, dtheta, dmu, ds, dZ)
	kernel.GramGrad(m.kernel, m.Z, GKuu, dtheta, dZ)

	// KL, and the change of variables to log variances.
	dlogs := mat.NewDense(n, q, nil)
	for i := 0; i != n; i++ {
		for j := 0; j != q; j++ {
			mu, s := m.Mean.At(i, j), m.Var.At(i, j)
			dmu.Set(i, j, dmu.At(i, j)-(mu-m.priorMean)/m.priorVar)
			dlogs.Set(i, j, s*(ds.At(i, j)+0.5/s-0.5/m.priorVar))
		}
	}

	grads[LatentMean] = dmu.RawMatrix().Data
	grads[LatentVariance] = dlogs.RawMatrix().Data
	grads[InducingInputs] = dZ.RawMatrix().Data
	grads[Hyperparameters] = dtheta
	grads[NoiseVariance] = []float64{-beta * dbeta}
	return grads
}

// PredictF returns the approximate posterior of the latent function
// at the rows of Xnew, given the inducing inputs.
func (m *BayesianGPLVM) PredictF(Xnew mat.Matrix, fullCov bool) (*Prediction, error) {
	_, q := m.Mean.Dims()
	if _, c := Xnew.Dims(); c != q {
		return nil, errors.Wrapf(ErrShape, "new inputs have %d columns, want %d", c, q)
	}
	sp, err := m.factorise()
	if err != nil {
		return nil, err
	}
	Kus := kernel.Cross(m.kernel, m.Z, Xnew)
	tmp1, err := solveLower(sp.L, false, Kus)
	if err != nil {
		return nil, err
	}
	tmp2, err := solveLower(sp.LB, false, tmp1)
	if err != nil {
		return nil, err
	}
	var mean mat.Dense
	mean.Mul(tmp2.T(), sp.c)
	return predictive(&mean, priorCov(m.kernel, Xnew, fullCov), tmp2, tmp1, fullCov), nil
}

// PredictY returns the predictive distribution of new observations.
func (m *BayesianGPLVM) PredictY(Xnew mat.Matrix, fullCov bool) (*Prediction, error) {
	p, err := m.PredictF(Xnew, fullCov)
	if err != nil {
		return nil, err
	}
	addNoise(p, m.noise)
	return p, nil
}

// PredictLogDensity returns the log predictive density of each
// element of Ynew at the rows of Xnew.
func (m *BayesianGPLVM) PredictLogDensity(Xnew, Ynew mat.Matrix) (*mat.Dense, error) {
	p, err := m.PredictY(Xnew, false)
	if err != nil {
		return nil, err
	}
	return logDensity(p, Ynew)
}
