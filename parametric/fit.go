package parametric

import (
	"math"
)

// FitBounds brackets the parameters of a quadratic distribution for an
// optimizer seeded with an initial estimate.
type FitBounds struct {
	AMin, AMax float64
	BMin, BMax float64
	CMin, CMax float64
}

// EstimateQuadratic returns a method-of-moments initial estimate of a
// quadratic distribution from observed scores, plus parameter bounds
// for refining the fit.
//
// The support is estimated from the sample extremes widened by one
// inter-extreme gap per sample, and c from the position of the sample
// mean within the support: a convex distribution has normalized mean
// c/(c+2).
func EstimateQuadratic(ys []float64, convex bool) (QuadraticDistribution, FitBounds, error) {
	if len(ys) == 0 {
		return QuadraticDistribution{}, FitBounds{}, ErrNoSamples
	}

	lo, hi := ys[0], ys[0]
	sum := 0.
	for _, y := range ys {
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
		sum += y
	}
	mean := sum / float64(len(ys))

	// Widen the support beyond the observed extremes: the extremes
	// underestimate the true support, more so for small samples.
	margin := (hi - lo) / float64(len(ys))
	a, b := lo-margin, hi+margin

	c := 2
	if b > a {
		r := (mean - a) / (b - a)
		if !convex {
			r = (b - mean) / (b - a)
		}
		// Normalized mean r maps to c via r = c/(c+2).
		if r > 0 && r < 1 {
			c = int(math.Round(2. * r / (1. - r)))
		}
		if c < 1 {
			c = 1
		}
	}

	dist, err := NewQuadraticDistribution(a, b, c, convex)
	if err != nil {
		return QuadraticDistribution{}, FitBounds{}, err
	}

	bounds := FitBounds{
		AMin: a - (hi - lo), AMax: lo,
		BMin: hi, BMax: b + (hi - lo),
		CMin: 1, CMax: math.Max(2.*float64(c), 10.),
	}
	return dist, bounds, nil
}
