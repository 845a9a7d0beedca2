// Package parametric implements parametric score distributions for
// random search and their tuning curves.
//
// A tuning curve maps the number of search trials to the best score
// those trials achieve, either in expectation (average tuning curve)
// or at a quantile (quantile tuning curve).
package parametric

import (
	"errors"
	"fmt"
	"math"

	"github.com/opda-dev/opda/random"
)

var (
	ErrInvalidSupport    = errors.New("parametric: a must be less than or equal to b")
	ErrInvalidDimension  = errors.New("parametric: c must be a positive integer")
	ErrInvalidNoiseScale = errors.New("parametric: o must be nonnegative")
	ErrInvalidQuantile   = errors.New("parametric: q must be between 0 and 1")
	ErrInvalidTrialCount = errors.New("parametric: n must be positive")
	ErrNoSamples         = errors.New("parametric: at least one sample is required")
)

// QuadraticDistribution is the score distribution induced by random
// search on a quadratic surface over c hyperparameters, supported on
// [a, b]. Convex surfaces model losses (lower is better), concave
// surfaces model accuracies.
//
// With k = c/2 the CDF is ((y-a)/(b-a))^k when convex and
// 1 - ((b-y)/(b-a))^k when concave; c = 2 is the uniform distribution.
type QuadraticDistribution struct {
	A      float64
	B      float64
	C      int
	Convex bool
}

// NewQuadraticDistribution validates the parameters. a == b degenerates
// to a point mass at a.
func NewQuadraticDistribution(a, b float64, c int, convex bool) (QuadraticDistribution, error) {
	if math.IsNaN(a) || math.IsNaN(b) || a > b {
		return QuadraticDistribution{}, fmt.Errorf("%w: a=%v, b=%v", ErrInvalidSupport, a, b)
	}
	if c < 1 {
		return QuadraticDistribution{}, fmt.Errorf("%w: c=%d", ErrInvalidDimension, c)
	}
	return QuadraticDistribution{A: a, B: b, C: c, Convex: convex}, nil
}

func (d QuadraticDistribution) String() string {
	return fmt.Sprintf("QuadraticDistribution(a=%v, b=%v, c=%d, convex=%v)", d.A, d.B, d.C, d.Convex)
}

func (d QuadraticDistribution) k() float64 { return float64(d.C) / 2. }

// Mean returns the expected score.
func (d QuadraticDistribution) Mean() float64 {
	c := float64(d.C)
	if d.Convex {
		return d.A + (d.B-d.A)*c/(c+2.)
	}
	return d.B - (d.B-d.A)*c/(c+2.)
}

// Variance returns the score variance.
func (d QuadraticDistribution) Variance() float64 {
	c := float64(d.C)
	spread := d.B - d.A
	return spread * spread * (c/(c+4.) - (c/(c+2.))*(c/(c+2.)))
}

// PDF returns the probability density at y. When a == b the
// distribution is a point mass: the density is +Inf at a and 0
// elsewhere.
func (d QuadraticDistribution) PDF(y float64) float64 {
	if d.A == d.B {
		if y == d.A {
			return math.Inf(1)
		}
		return 0.
	}
	if y < d.A || y > d.B {
		return 0.
	}

	k := d.k()
	spread := d.B - d.A
	var u float64
	if d.Convex {
		u = (y - d.A) / spread
	} else {
		u = (d.B - y) / spread
	}
	return k * math.Pow(u, k-1.) / spread
}

// CDF returns the cumulative probability at y.
func (d QuadraticDistribution) CDF(y float64) float64 {
	if y < d.A {
		return 0.
	}
	if y >= d.B {
		return 1.
	}

	spread := d.B - d.A
	if d.Convex {
		return math.Pow((y-d.A)/spread, d.k())
	}
	return 1. - math.Pow((d.B-y)/spread, d.k())
}

// PPF returns the q-th quantile, the inverse of CDF clamped to the
// support. Values of q outside [0, 1] clamp to the support endpoints.
func (d QuadraticDistribution) PPF(q float64) float64 {
	if q <= 0 {
		return d.A
	}
	if q >= 1 {
		return d.B
	}

	spread := d.B - d.A
	if d.Convex {
		return d.A + spread*math.Pow(q, 1./d.k())
	}
	return d.B - spread*math.Pow(1.-q, 1./d.k())
}

// Sample draws a single score using inverse-transform sampling. A nil
// generator draws from the package default.
func (d QuadraticDistribution) Sample(gen *random.Generator) float64 {
	return d.PPF(random.Or(gen).Float64())
}

// SampleN draws n scores.
func (d QuadraticDistribution) SampleN(n int, gen *random.Generator) []float64 {
	gen = random.Or(gen)
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = d.PPF(gen.Float64())
	}
	return ys
}

// QuantileTuningCurve returns the q-th quantile of the best score seen
// across n independent trials. minimize selects whether the best score
// is the smallest or the largest; the natural direction for a convex
// distribution is minimization. n may be fractional.
func (d QuadraticDistribution) QuantileTuningCurve(n, q float64, minimize bool) (float64, error) {
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
// independent trials. n may be fractional.
func (d QuadraticDistribution) AverageTuningCurve(n float64, minimize bool) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%v", ErrInvalidTrialCount, n)
	}
	if d.A == d.B {
		return d.A, nil
	}

	k := d.k()
	spread := d.B - d.A
	switch {
	case d.Convex && minimize:
		return d.A + spread*minExcessIntegral(n, k), nil
	case d.Convex && !minimize:
		return d.B - spread/(k*n+1.), nil
	case !d.Convex && minimize:
		return d.A + spread/(k*n+1.), nil
	default:
		return d.B - spread*minExcessIntegral(n, k), nil
	}
}

// minExcessIntegral evaluates the integral of (1 - v^k)^n over [0, 1],
// the normalized gap between the expected best of n draws and the
// optimum. In closed form it is Gamma(1/k) Gamma(n+1) / (k Gamma(n+1+1/k)).
func minExcessIntegral(n, k float64) float64 {
	lg1, _ := math.Lgamma(1. / k)
	lg2, _ := math.Lgamma(n + 1.)
	lg3, _ := math.Lgamma(n + 1. + 1./k)
	return math.Exp(lg1+lg2-lg3) / k
}
