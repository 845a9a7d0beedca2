// Package nonparametric implements the empirical score distribution
// and its tuning curves with distribution-free confidence bands.
package nonparametric

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/opda-dev/opda/random"
	"github.com/opda-dev/opda/utils"
)

var (
	ErrNoSamples         = errors.New("nonparametric: at least one sample is required")
	ErrInvalidQuantile   = errors.New("nonparametric: q must be between 0 and 1")
	ErrInvalidTrialCount = errors.New("nonparametric: n must be positive")
	ErrUnknownBandMethod = errors.New("nonparametric: unknown confidence band method")
)

// BandMethod selects how confidence bands for the CDF are constructed.
type BandMethod string

const (
	// BandDKW shifts the empirical CDF by the Dvoretzky-Kiefer-Wolfowitz
	// epsilon, giving a simultaneous band.
	BandDKW BandMethod = "dkw"
	// BandPointwise puts an order-statistic beta interval around the
	// CDF at each observed score, giving a pointwise band.
	BandPointwise BandMethod = "pointwise"
)

// EmpiricalDistribution is the distribution placing mass 1/n on each of
// n observed scores.
type EmpiricalDistribution struct {
	ys []float64
}

// NewEmpiricalDistribution copies and sorts the observed scores.
func NewEmpiricalDistribution(ys []float64) (*EmpiricalDistribution, error) {
	if len(ys) == 0 {
		return nil, ErrNoSamples
	}
	sorted := make([]float64, len(ys))
	copy(sorted, ys)
	sort.Float64s(sorted)
	return &EmpiricalDistribution{ys: sorted}, nil
}

// Len returns the number of observed scores.
func (d *EmpiricalDistribution) Len() int { return len(d.ys) }

// Scores returns the observed scores in ascending order.
func (d *EmpiricalDistribution) Scores() []float64 {
	out := make([]float64, len(d.ys))
	copy(out, d.ys)
	return out
}

// Mean returns the sample mean.
func (d *EmpiricalDistribution) Mean() float64 {
	sum := 0.
	for _, y := range d.ys {
		sum += y
	}
	return sum / float64(len(d.ys))
}

// Variance returns the (biased) sample variance, the variance of the
// empirical distribution itself.
func (d *EmpiricalDistribution) Variance() float64 {
	mean := d.Mean()
	sum := 0.
	for _, y := range d.ys {
		sum += (y - mean) * (y - mean)
	}
	return sum / float64(len(d.ys))
}

// CDF returns the fraction of observed scores at or below y.
func (d *EmpiricalDistribution) CDF(y float64) float64 {
	above := sort.Search(len(d.ys), func(i int) bool { return d.ys[i] > y })
	return float64(above) / float64(len(d.ys))
}

// PPF returns the q-th quantile, the smallest observed score whose CDF
// reaches q. Values of q outside [0, 1] clamp to the extremes.
func (d *EmpiricalDistribution) PPF(q float64) float64 {
	n := len(d.ys)
	if q <= 0 {
		return d.ys[0]
	}
	if q >= 1 {
		return d.ys[n-1]
	}
	idx := int(math.Ceil(q*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return d.ys[idx]
}

// Sample draws one observed score uniformly at random, with
// replacement. A nil generator draws from the package default.
func (d *EmpiricalDistribution) Sample(gen *random.Generator) float64 {
	return d.ys[random.Or(gen).IntN(len(d.ys))]
}

// SampleN draws n scores with replacement.
func (d *EmpiricalDistribution) SampleN(n int, gen *random.Generator) []float64 {
	gen = random.Or(gen)
	out := make([]float64, n)
	for i := range out {
		out[i] = d.ys[gen.IntN(len(d.ys))]
	}
	return out
}

// QuantileTuningCurve returns the q-th quantile of the best observed
// score across n independent draws from the empirical distribution.
// n may be fractional.
func (d *EmpiricalDistribution) QuantileTuningCurve(n, q float64, minimize bool) (float64, error) {
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
// independent draws, computed exactly from the order statistics of the
// empirical distribution. n may be fractional.
func (d *EmpiricalDistribution) AverageTuningCurve(n float64, minimize bool) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%v", ErrInvalidTrialCount, n)
	}

	total := float64(len(d.ys))
	sum := 0.
	if minimize {
		// P(min lands on the i-th order statistic) telescopes over the
		// survival function.
		for i, y := range d.ys {
			upper := math.Pow(1.-float64(i)/total, n)
			lower := math.Pow(1.-float64(i+1)/total, n)
			sum += y * (upper - lower)
		}
	} else {
		for i, y := range d.ys {
			upper := math.Pow(float64(i+1)/total, n)
			lower := math.Pow(float64(i)/total, n)
			sum += y * (upper - lower)
		}
	}
	return sum, nil
}

// ConfidenceBands returns lower and upper bounds on the true CDF at
// each observed score, at the given confidence level. The returned
// slices align with Scores().
func (d *EmpiricalDistribution) ConfidenceBands(confidence float64, method BandMethod) (lo, hi []float64, err error) {
	n := len(d.ys)
	lo = make([]float64, n)
	hi = make([]float64, n)

	switch method {
	case BandDKW:
		eps, err := utils.DKWEpsilon(n, confidence)
		if err != nil {
			return nil, nil, err
		}
		for i := range d.ys {
			cdf := float64(i+1) / float64(n)
			lo[i] = math.Max(cdf-eps, 0.)
			hi[i] = math.Min(cdf+eps, 1.)
		}
	case BandPointwise:
		// The CDF at the i-th order statistic of n draws follows
		// Beta(i, n-i+1).
		for i := range d.ys {
			a := float64(i + 1)
			b := float64(n - i)
			l, h, err := utils.BetaEqualTailedInterval(a, b, confidence)
			if err != nil {
				return nil, nil, err
			}
			lo[i], hi[i] = l, h
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBandMethod, method)
	}
	return lo, hi, nil
}
