package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/opda-dev/opda/internal/study"
)

type prefsFile struct {
	Quantile   float64 `toml:"quantile"`
	Confidence float64 `toml:"confidence"`
	MaxTrials  int     `toml:"max_trials"`
}

func defaultAnalysisSettings() study.Analysis {
	return study.Analysis{Quantile: 0.5, Confidence: 0.8, MaxTrials: 64}
}

// loadAnalysisPrefs overlays an optional preferences file on the
// defaults. Only keys present in the file override, so a partial file
// leaves the rest untouched.
func loadAnalysisPrefs(path string) (study.Analysis, error) {
	settings := defaultAnalysisSettings()
	if path == "" {
		return settings, nil
	}

	var raw prefsFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return study.Analysis{}, fmt.Errorf("load analysis prefs: %w", err)
	}

	if meta.IsDefined("quantile") {
		settings.Quantile = raw.Quantile
	}
	if meta.IsDefined("confidence") {
		settings.Confidence = raw.Confidence
	}
	if meta.IsDefined("max_trials") {
		settings.MaxTrials = raw.MaxTrials
	}

	if settings.Quantile <= 0 || settings.Quantile >= 1 {
		return study.Analysis{}, fmt.Errorf("analysis prefs: quantile must be in (0, 1), got %v", settings.Quantile)
	}
	if settings.Confidence <= 0 || settings.Confidence >= 1 {
		return study.Analysis{}, fmt.Errorf("analysis prefs: confidence must be in (0, 1), got %v", settings.Confidence)
	}
	if settings.MaxTrials < 1 {
		return study.Analysis{}, fmt.Errorf("analysis prefs: max_trials must be at least 1, got %d", settings.MaxTrials)
	}
	return settings, nil
}
