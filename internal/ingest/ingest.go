// Package ingest loads trial result files into the store.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opda-dev/opda/internal/logging"
	"github.com/opda-dev/opda/internal/observability"
	"github.com/opda-dev/opda/internal/store"
)

var (
	ErrMissingStudy = errors.New("ingest: result file missing study name")
	ErrNoTrials     = errors.New("ingest: result file has no trials")
)

// TrialResult is one scored evaluation as written by a training job.
type TrialResult struct {
	Score  float64        `json:"score"`
	Params map[string]any `json:"params"`
}

// ResultFile is the on-disk format produced by training jobs.
type ResultFile struct {
	Study     string        `json:"study"`
	Direction string        `json:"direction"`
	Trials    []TrialResult `json:"trials"`
}

// Ingestor scans result files and records their trials.
type Ingestor struct {
	store       *store.Store
	defaultGoal string
}

func NewIngestor(st *store.Store, defaultGoal string) *Ingestor {
	if defaultGoal == "" {
		defaultGoal = "maximize"
	}
	return &Ingestor{store: st, defaultGoal: defaultGoal}
}

// ParseResultFile reads and validates one result file.
func ParseResultFile(path string) (ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ResultFile{}, fmt.Errorf("read result file: %w", err)
	}

	var rf ResultFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return ResultFile{}, fmt.Errorf("parse result file (%s): %w", path, err)
	}
	if strings.TrimSpace(rf.Study) == "" {
		return ResultFile{}, fmt.Errorf("%w: %s", ErrMissingStudy, path)
	}
	if len(rf.Trials) == 0 {
		return ResultFile{}, fmt.Errorf("%w: %s", ErrNoTrials, path)
	}
	switch rf.Direction {
	case "", "minimize", "maximize":
	default:
		return ResultFile{}, fmt.Errorf("parse result file (%s): direction must be minimize or maximize, got %q", path, rf.Direction)
	}
	return rf, nil
}

// IngestFile records the trials of one result file, creating the study
// when it does not exist yet.
func (in *Ingestor) IngestFile(path string) (int, error) {
	rf, err := ParseResultFile(path)
	if err != nil {
		return 0, err
	}

	direction := rf.Direction
	if direction == "" {
		direction = in.defaultGoal
	}
	study, err := in.store.EnsureStudy(rf.Study, direction)
	if err != nil {
		return 0, err
	}

	trials := make([]store.Trial, len(rf.Trials))
	for i, tr := range rf.Trials {
		trials[i] = store.Trial{Score: tr.Score, Params: tr.Params, Source: path}
	}
	if err := in.store.InsertTrials(study.ID, trials); err != nil {
		return 0, err
	}

	observability.RecordIngestedTrials(study.Name, path, len(trials))
	return len(trials), nil
}

// IngestGlobs expands each glob and ingests every match. Files that
// fail are logged and skipped so one bad file cannot block a batch.
func (in *Ingestor) IngestGlobs(globs []string) (int, error) {
	logger := logging.For("ingest")

	total := 0
	for _, glob := range globs {
		matches, err := doublestar.FilepathGlob(glob)
		if err != nil {
			return total, fmt.Errorf("bad glob %q: %w", glob, err)
		}
		for _, match := range matches {
			count, err := in.IngestFile(match)
			if err != nil {
				observability.RecordIngestFailure(failureReason(err))
				logger.Warn().Err(err).Str("path", match).Msg("skipping result file")
				continue
			}
			logger.Info().Str("path", match).Int("trials", count).Msg("ingested result file")
			total += count
		}
	}
	return total, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingStudy):
		return "missing_study"
	case errors.Is(err, ErrNoTrials):
		return "no_trials"
	default:
		return "parse"
	}
}
