// Package report computes tuning-curve reports for stored studies.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/opda-dev/opda/internal/logging"
	"github.com/opda-dev/opda/internal/observability"
	"github.com/opda-dev/opda/internal/store"
	"github.com/opda-dev/opda/internal/study"
	"github.com/opda-dev/opda/nonparametric"
	"github.com/opda-dev/opda/utils"
)

var ErrNoTrials = errors.New("report: study has no trials")

// CurvePoint is the tuning curve evaluated at one search-budget size,
// with a confidence band around the quantile estimate.
type CurvePoint struct {
	N        int     `json:"n"`
	Quantile float64 `json:"quantile"`
	Lo       float64 `json:"lo"`
	Hi       float64 `json:"hi"`
	Average  float64 `json:"average"`
}

// Report summarizes how a study's best score scales with the number
// of search iterations.
type Report struct {
	Study      string       `json:"study"`
	Direction  string       `json:"direction"`
	Trials     int          `json:"trials"`
	BestScore  float64      `json:"best_score"`
	MeanScore  float64      `json:"mean_score"`
	Quantile   float64      `json:"quantile"`
	Confidence float64      `json:"confidence"`
	Curve      []CurvePoint `json:"curve"`
}

// Analyzer reads trial scores from the store and produces reports.
type Analyzer struct {
	store *store.Store
}

func NewAnalyzer(st *store.Store) *Analyzer {
	return &Analyzer{store: st}
}

// Analyze computes the tuning-curve report for one study. The band at
// each budget n comes from shifting the effective quantile by the
// Dvoretzky-Kiefer-Wolfowitz epsilon before inverting the ECDF.
func (a *Analyzer) Analyze(studyID string, settings study.Analysis) (Report, error) {
	start := time.Now()

	st, err := a.store.GetStudy(studyID)
	if err != nil {
		return Report{}, err
	}
	scores, err := a.store.TrialScores(studyID)
	if err != nil {
		return Report{}, err
	}
	if len(scores) == 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrNoTrials, st.Name)
	}

	dist, err := nonparametric.NewEmpiricalDistribution(scores)
	if err != nil {
		return Report{}, err
	}

	minimize := st.Direction == "minimize"
	eps, err := utils.DKWEpsilon(dist.Len(), settings.Confidence)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Study:      st.Name,
		Direction:  st.Direction,
		Trials:     dist.Len(),
		BestScore:  bestScore(dist, minimize),
		MeanScore:  dist.Mean(),
		Quantile:   settings.Quantile,
		Confidence: settings.Confidence,
	}

	for _, n := range budgets(settings.MaxTrials) {
		point, err := a.curvePoint(dist, n, settings.Quantile, eps, minimize)
		if err != nil {
			return Report{}, err
		}
		report.Curve = append(report.Curve, point)
	}

	observability.RecordAnalysis(st.Name, time.Since(start))
	logger := logging.For("report")
	logger.Info().
		Str("study", st.Name).
		Int("trials", report.Trials).
		Dur("duration", time.Since(start)).
		Msg("analysis complete")
	return report, nil
}

func (a *Analyzer) curvePoint(dist *nonparametric.EmpiricalDistribution, n int, q, eps float64, minimize bool) (CurvePoint, error) {
	quantile, err := dist.QuantileTuningCurve(float64(n), q, minimize)
	if err != nil {
		return CurvePoint{}, err
	}
	average, err := dist.AverageTuningCurve(float64(n), minimize)
	if err != nil {
		return CurvePoint{}, err
	}

	// The q-quantile of the best of n draws is the qEff-quantile of a
	// single draw, so the DKW band transfers by shifting qEff.
	var qEff float64
	if minimize {
		qEff = 1 - math.Pow(1-q, 1/float64(n))
	} else {
		qEff = math.Pow(q, 1/float64(n))
	}
	lo := dist.PPF(clamp01(qEff - eps))
	hi := dist.PPF(clamp01(qEff + eps))

	return CurvePoint{N: n, Quantile: quantile, Lo: lo, Hi: hi, Average: average}, nil
}

// ThresholdProbability estimates the chance a single trial scores
// better than the threshold, with a Clopper-Pearson interval.
func (a *Analyzer) ThresholdProbability(studyID string, threshold, confidence float64) (estimate, lo, hi float64, err error) {
	st, err := a.store.GetStudy(studyID)
	if err != nil {
		return 0, 0, 0, err
	}
	scores, err := a.store.TrialScores(studyID)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(scores) == 0 {
		return 0, 0, 0, fmt.Errorf("%w: %s", ErrNoTrials, st.Name)
	}

	minimize := st.Direction == "minimize"
	successes := 0
	for _, score := range scores {
		if (minimize && score <= threshold) || (!minimize && score >= threshold) {
			successes++
		}
	}

	lo, hi, err = utils.BinomialConfidenceInterval(successes, len(scores), confidence)
	if err != nil {
		return 0, 0, 0, err
	}
	return float64(successes) / float64(len(scores)), lo, hi, nil
}

// RenderText writes the report as an aligned table.
func RenderText(w io.Writer, report Report) error {
	fmt.Fprintf(w, "study: %s (%s)\n", report.Study, report.Direction)
	fmt.Fprintf(w, "trials: %d  best: %.6g  mean: %.6g\n", report.Trials, report.BestScore, report.MeanScore)
	fmt.Fprintf(w, "quantile: %.2g  confidence: %.2g\n\n", report.Quantile, report.Confidence)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "n\tquantile\tlo\thi\taverage")
	for _, point := range report.Curve {
		fmt.Fprintf(tw, "%d\t%.6g\t%.6g\t%.6g\t%.6g\n", point.N, point.Quantile, point.Lo, point.Hi, point.Average)
	}
	return tw.Flush()
}

// budgets returns 1, 2, 4, ... doubling up to and including maxTrials.
func budgets(maxTrials int) []int {
	if maxTrials < 1 {
		maxTrials = 1
	}
	var ns []int
	for n := 1; n < maxTrials; n *= 2 {
		ns = append(ns, n)
	}
	if len(ns) == 0 || ns[len(ns)-1] != maxTrials {
		ns = append(ns, maxTrials)
	}
	return ns
}

func bestScore(dist *nonparametric.EmpiricalDistribution, minimize bool) float64 {
	scores := dist.Scores()
	if minimize {
		return scores[0]
	}
	return scores[len(scores)-1]
}

func clamp01(q float64) float64 {
	return math.Min(1, math.Max(0, q))
}
