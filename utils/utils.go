// Package utils provides the interval and array helpers shared by the
// tuning-curve analyses: Dvoretzky-Kiefer-Wolfowitz bounds, beta
// distribution intervals and coverages, and Clopper-Pearson binomial
// confidence intervals.
package utils

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrShapeMismatch     = errors.New("utils: all slices must have the same length")
	ErrInvalidParameter  = errors.New("utils: invalid parameter")
	ErrNoDensityInterval = errors.New("utils: either a or b must be greater than one to have a highest density interval")
)

// Tolerance for the bisections locating highest density interval
// endpoints.
const hdiATol = 1e-10

// SortByFirst sorts the first slice ascending and applies the same
// permutation to every other slice. The inputs are not modified; sorted
// copies are returned.
func SortByFirst(slices ...[]float64) ([][]float64, error) {
	if len(slices) == 0 {
		return nil, nil
	}
	n := len(slices[0])
	for _, s := range slices {
		if len(s) != n {
			return nil, ErrShapeMismatch
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return slices[0][order[i]] < slices[0][order[j]]
	})

	out := make([][]float64, len(slices))
	for k, s := range slices {
		sorted := make([]float64, n)
		for i, idx := range order {
			sorted[i] = s[idx]
		}
		out[k] = sorted
	}
	return out, nil
}

// DKWEpsilon returns epsilon from the Dvoretzky-Kiefer-Wolfowitz
// inequality: a confidence band for the CDF is the empirical CDF plus
// or minus sqrt(log(2/alpha) / (2n)), where 1 - alpha is the coverage.
func DKWEpsilon(n int, confidence float64) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidParameter, n)
	}
	if confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("%w: confidence must be between 0 and 1, got %v", ErrInvalidParameter, confidence)
	}
	return math.Sqrt(math.Log(2./(1.-confidence)) / (2. * float64(n))), nil
}

// BetaEqualTailedInterval returns the equal-tailed interval containing
// coverage of the probability mass of the beta distribution with
// parameters a and b.
func BetaEqualTailedInterval(a, b, coverage float64) (lo, hi float64, err error) {
	if err := validateBetaParams(a, b); err != nil {
		return 0, 0, err
	}
	if coverage < 0 || coverage > 1 {
		return 0, 0, fmt.Errorf("%w: coverage must be between 0 and 1, got %v", ErrInvalidParameter, coverage)
	}

	beta := distuv.Beta{Alpha: a, Beta: b}
	return beta.Quantile((1. - coverage) / 2.), beta.Quantile((1. + coverage) / 2.), nil
}

// BetaHighestDensityInterval returns the shortest interval containing
// coverage of the probability mass of the beta distribution with
// parameters a and b. The interval only exists when a or b is greater
// than one.
//
// Given the lower endpoint x, the upper endpoint is
// Quantile(CDF(x) + coverage). Below the interval the density at the
// lower endpoint is less than at the upper endpoint, and above the
// interval the reverse holds, so the lower endpoint is found by
// bisection.
func BetaHighestDensityInterval(a, b, coverage float64) (lo, hi float64, err error) {
	if err := validateBetaParams(a, b); err != nil {
		return 0, 0, err
	}
	if coverage < 0 || coverage > 1 {
		return 0, 0, fmt.Errorf("%w: coverage must be between 0 and 1, got %v", ErrInvalidParameter, coverage)
	}
	if a <= 1 && b <= 1 {
		return 0, 0, ErrNoDensityInterval
	}

	beta := distuv.Beta{Alpha: a, Beta: b}
	mode := clip((a-1)/(a+b-2), 0, 1)

	xLo := beta.Quantile(math.Max(beta.CDF(mode)-coverage, 0))
	xHi := math.Min(mode, beta.Quantile(1-coverage))

	// Each iteration halves the bracket, so iterate until the bracket
	// length falls below tolerance, with at least one pass to compute
	// the midpoint and upper endpoint. The count is fixed from the
	// initial bracket before the loop shrinks it.
	iters := bisectIterations(xHi - xLo)
	var x, y float64
	for i := 0; i < iters; i++ {
		x = (xLo + xHi) / 2.
		y = beta.Quantile(clip(beta.CDF(x)+coverage, 0, 1))
		// For small coverages the upper endpoint can round below the
		// lower one.
		y = clip(y, x, 1)

		xDens := betaLogDensity(a, b, x)
		yDens := betaLogDensity(a, b, y)
		if xDens <= yDens {
			xLo = x
		}
		if xDens >= yDens {
			xHi = x
		}
	}
	return x, y, nil
}

// BetaEqualTailedCoverage returns the coverage of the smallest
// equal-tailed interval of the beta distribution containing x.
func BetaEqualTailedCoverage(a, b, x float64) (float64, error) {
	if err := validateBetaParams(a, b); err != nil {
		return 0, err
	}
	beta := distuv.Beta{Alpha: a, Beta: b}
	return 2. * math.Abs(0.5-beta.CDF(x)), nil
}

// BetaHighestDensityCoverage returns the coverage of the smallest
// highest density interval of the beta distribution containing x. The
// interval only exists when a or b is greater than one.
func BetaHighestDensityCoverage(a, b, x float64) (float64, error) {
	if err := validateBetaParams(a, b); err != nil {
		return 0, err
	}
	if a <= 1 && b <= 1 {
		return 0, ErrNoDensityInterval
	}

	beta := distuv.Beta{Alpha: a, Beta: b}
	mode := clip((a-1)/(a+b-2), 0, 1)

	xIsLowerEnd := x < mode
	xDens := betaLogDensity(a, b, x)

	// Bisect for the other endpoint of the interval, on the far side
	// of the mode from x.
	yLo, yHi := 0., mode
	if xIsLowerEnd {
		yLo, yHi = mode, 1.
	}
	iters := bisectIterations(yHi - yLo)
	var y float64
	for i := 0; i < iters; i++ {
		y = (yLo + yHi) / 2.
		if xIsLowerEnd == (xDens < betaLogDensity(a, b, y)) {
			yLo = y
		} else {
			yHi = y
		}
	}

	lo, hi := y, x
	if xIsLowerEnd {
		lo, hi = x, y
	}
	return beta.CDF(hi) - beta.CDF(lo), nil
}

// BinomialConfidenceInterval returns an equal-tailed Clopper-Pearson
// confidence interval for the binomial success probability given
// nSuccesses out of nTotal observations.
//
// The interval does not account for the binomial distribution's
// discreteness, which makes it conservative, especially when the number
// of successes is zero or equals the total.
func BinomialConfidenceInterval(nSuccesses, nTotal int, confidence float64) (lo, hi float64, err error) {
	if nSuccesses < 0 {
		return 0, 0, fmt.Errorf("%w: nSuccesses (%d) must be greater than or equal to 0", ErrInvalidParameter, nSuccesses)
	}
	if nTotal < 1 {
		return 0, 0, fmt.Errorf("%w: nTotal (%d) must be greater than or equal to 1", ErrInvalidParameter, nTotal)
	}
	if confidence < 0 || confidence > 1 {
		return 0, 0, fmt.Errorf("%w: confidence (%v) must be between 0 and 1", ErrInvalidParameter, confidence)
	}
	if nSuccesses > nTotal {
		return 0, 0, fmt.Errorf("%w: nSuccesses (%d) must be less than or equal to nTotal (%d)", ErrInvalidParameter, nSuccesses, nTotal)
	}

	s, n := float64(nSuccesses), float64(nTotal)
	lo, hi = 0., 1.
	if nSuccesses > 0 {
		lo = distuv.Beta{Alpha: s, Beta: n - s + 1}.Quantile((1 - confidence) / 2)
	}
	if nSuccesses < nTotal {
		hi = distuv.Beta{Alpha: s + 1, Beta: n - s}.Quantile(1 - (1-confidence)/2)
	}
	return lo, hi, nil
}

func validateBetaParams(a, b float64) error {
	if a <= 0 {
		return fmt.Errorf("%w: a must be positive, got %v", ErrInvalidParameter, a)
	}
	if b <= 0 {
		return fmt.Errorf("%w: b must be positive, got %v", ErrInvalidParameter, b)
	}
	return nil
}

// betaLogDensity is the unnormalized beta log density. The bisections
// only compare densities, so the normalizing constant is dropped; the
// log form stays monotonic from the boundaries to the mode, which the
// searches rely on.
func betaLogDensity(a, b, x float64) float64 {
	if x < 0 || x > 1 {
		return math.Inf(-1)
	}
	var dens float64
	if a != 1 {
		dens += (a - 1) * math.Log(x)
	}
	if b != 1 {
		dens += (b - 1) * math.Log1p(-x)
	}
	return dens
}

func bisectIterations(bracket float64) int {
	return int(math.Ceil(math.Log2(math.Max(2, bracket/hdiATol))))
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}
