package kernel

// Sum is the sum of kernels. Hyperparameters of the parts are
// concatenated in order.
type Sum struct {
	parts  []Kernel
	ntheta int
}

var _ Kernel = &Sum{}

// NewSum creates the sum of the kernels; nested sums are
// flattened.
func NewSum(kernels ...Kernel) *Sum {
	parts := make([]Kernel, 0, len(kernels))
	for _, k := range kernels {
		switch k := k.(type) {
		case *Sum:
			parts = append(parts, k.parts...)
		default:
			parts = append(parts, k)
		}
	}
	ntheta := 0
	for _, part := range parts {
		ntheta += part.NTheta()
	}
	return &Sum{
		parts:  parts,
		ntheta: ntheta,
	}
}

// Parts returns the summed kernels.
func (k *Sum) Parts() []Kernel { return k.parts }

func (k *Sum) NTheta() int { return k.ntheta }

func (k *Sum) Theta() []float64 {
	theta := make([]float64, 0, k.ntheta)
	for _, part := range k.parts {
		theta = append(theta, part.Theta()...)
	}
	return theta
}

func (k *Sum) SetTheta(theta []float64) {
	offset := 0
	for _, part := range k.parts {
		part.SetTheta(theta[offset : offset+part.NTheta()])
		offset += part.NTheta()
	}
}

func (k *Sum) Variance() float64 {
	v := 0.
	for _, part := range k.parts {
		v += part.Variance()
	}
	return v
}

func (k *Sum) Cov(xa, xb []float64) float64 {
	c := 0.
	for _, part := range k.parts {
		c += part.Cov(xa, xb)
	}
	return c
}

func (k *Sum) Grad(xa, xb, dtheta, dx []float64) float64 {
	c := 0.
	px := make([]float64, len(dx))
	for j := range dx {
		dx[j] = 0
	}
	offset := 0
	for _, part := range k.parts {
		c += part.Grad(xa, xb, dtheta[offset:offset+part.NTheta()], px)
		for j := range dx {
			dx[j] += px[j]
		}
		offset += part.NTheta()
	}
	return c
}
