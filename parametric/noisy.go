package parametric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opda-dev/opda/random"
)

// Gauss-Legendre node count for the convolution integrals. The
// integrand is smooth in quantile space, so a fixed rule converges
// well past the tolerances the analyses need.
const quadNodes = 257

// Bisection tolerance for inverting the noisy CDF.
const noisyPPFATol = 1e-12

// NoisyQuadraticDistribution is a quadratic score distribution
// convolved with Gaussian evaluation noise of scale o. It models
// random search when each trial's score is measured with noise.
type NoisyQuadraticDistribution struct {
	A      float64
	B      float64
	C      int
	O      float64
	Convex bool
}

// NewNoisyQuadraticDistribution validates the parameters. o == 0
// recovers the noiseless quadratic distribution.
func NewNoisyQuadraticDistribution(a, b float64, c int, o float64, convex bool) (NoisyQuadraticDistribution, error) {
	if _, err := NewQuadraticDistribution(a, b, c, convex); err != nil {
		return NoisyQuadraticDistribution{}, err
	}
	if math.IsNaN(o) || o < 0 {
		return NoisyQuadraticDistribution{}, fmt.Errorf("%w: o=%v", ErrInvalidNoiseScale, o)
	}
	return NoisyQuadraticDistribution{A: a, B: b, C: c, O: o, Convex: convex}, nil
}

func (d NoisyQuadraticDistribution) String() string {
	return fmt.Sprintf(
		"NoisyQuadraticDistribution(a=%v, b=%v, c=%d, o=%v, convex=%v)",
		d.A, d.B, d.C, d.O, d.Convex,
	)
}

func (d NoisyQuadraticDistribution) noiseless() QuadraticDistribution {
	return QuadraticDistribution{A: d.A, B: d.B, C: d.C, Convex: d.Convex}
}

// Mean returns the expected score; the noise is centered so it matches
// the noiseless mean.
func (d NoisyQuadraticDistribution) Mean() float64 {
	return d.noiseless().Mean()
}

// Variance returns the score variance, the noiseless variance plus o^2.
func (d NoisyQuadraticDistribution) Variance() float64 {
	return d.noiseless().Variance() + d.O*d.O
}

// support returns the effective support of the noisy scores. The
// Gaussian tails beyond eight noise scales carry negligible mass.
func (d NoisyQuadraticDistribution) support() (lo, hi float64) {
	return d.A - 8.*d.O, d.B + 8.*d.O
}

// PDF returns the probability density at y, the quadratic density
// convolved with the noise kernel. The convolution is integrated in
// quantile space, which removes the endpoint singularities of the
// quadratic density.
func (d NoisyQuadraticDistribution) PDF(y float64) float64 {
	if d.O == 0 {
		return d.noiseless().PDF(y)
	}

	base := d.noiseless()
	noise := distuv.Normal{Mu: 0, Sigma: d.O}
	return quad.Fixed(func(u float64) float64 {
		return noise.Prob(y - base.PPF(u))
	}, 0, 1, quadNodes, quad.Legendre{}, 0)
}

// CDF returns the cumulative probability at y.
func (d NoisyQuadraticDistribution) CDF(y float64) float64 {
	if d.O == 0 {
		return d.noiseless().CDF(y)
	}

	lo, hi := d.support()
	if y <= lo {
		return 0.
	}
	if y >= hi {
		return 1.
	}

	base := d.noiseless()
	noise := distuv.Normal{Mu: 0, Sigma: d.O}
	return quad.Fixed(func(u float64) float64 {
		return noise.CDF(y - base.PPF(u))
	}, 0, 1, quadNodes, quad.Legendre{}, 0)
}

// PPF returns the q-th quantile by bisecting the CDF over the
// effective support.
func (d NoisyQuadraticDistribution) PPF(q float64) float64 {
	if d.O == 0 {
		return d.noiseless().PPF(q)
	}

	lo, hi := d.support()
	if q <= 0 {
		return lo
	}
	if q >= 1 {
		return hi
	}

	for hi-lo > noisyPPFATol*math.Max(1., math.Abs(hi)+math.Abs(lo)) {
		mid := (lo + hi) / 2.
		if d.CDF(mid) < q {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2.
}

// Sample draws a single score: a noiseless draw plus Gaussian noise.
// A nil generator draws from the package default.
func (d NoisyQuadraticDistribution) Sample(gen *random.Generator) float64 {
	gen = random.Or(gen)
	return d.noiseless().Sample(gen) + d.O*gen.NormFloat64()
}

// SampleN draws n scores.
func (d NoisyQuadraticDistribution) SampleN(n int, gen *random.Generator) []float64 {
	gen = random.Or(gen)
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = d.Sample(gen)
	}
	return ys
}

// QuantileTuningCurve returns the q-th quantile of the best score seen
// across n independent trials. n may be fractional.
func (d NoisyQuadraticDistribution) QuantileTuningCurve(n, q float64, minimize bool) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%v", ErrInvalidTrialCount, n)
	}
	if q < 0 || q > 1 {
		return 0, fmt.Errorf("%w: q=%v", ErrInvalidQuantile, q)
	}

	if minimize {
		return d.PPF(1. - math.Pow(1.-q, 1./n)), nil
	}
	return d.PPF(math.Pow(q, 1./n)), nil
}

// AverageTuningCurve returns the expected best score across n
// independent trials, by numerical integration of the survival (or
// cumulative) function raised to the n over the effective support.
func (d NoisyQuadraticDistribution) AverageTuningCurve(n float64, minimize bool) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%v", ErrInvalidTrialCount, n)
	}
	if d.O == 0 {
		return d.noiseless().AverageTuningCurve(n, minimize)
	}

	lo, hi := d.support()
	if minimize {
		excess := quad.Fixed(func(y float64) float64 {
			return math.Pow(1.-d.CDF(y), n)
		}, lo, hi, quadNodes, quad.Legendre{}, 0)
		return lo + excess, nil
	}
	shortfall := quad.Fixed(func(y float64) float64 {
		return math.Pow(d.CDF(y), n)
	}, lo, hi, quadNodes, quad.Legendre{}, 0)
	return hi - shortfall, nil
}
