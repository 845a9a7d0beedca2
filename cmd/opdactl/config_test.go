package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opda-dev/opda/internal/testutil/testlog"
)

func writePrefs(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write prefs: %v", err)
	}
	return path
}

func TestLoadAnalysisPrefsEmptyPath(t *testing.T) {
	testlog.Start(t)

	settings, err := loadAnalysisPrefs("")
	if err != nil {
		t.Fatalf("loadAnalysisPrefs: %v", err)
	}
	if settings != defaultAnalysisSettings() {
		t.Errorf("settings = %+v, want defaults", settings)
	}
}

func TestLoadAnalysisPrefsPartialOverride(t *testing.T) {
	testlog.Start(t)

	path := writePrefs(t, "quantile = 0.25\n")
	settings, err := loadAnalysisPrefs(path)
	if err != nil {
		t.Fatalf("loadAnalysisPrefs: %v", err)
	}
	if settings.Quantile != 0.25 {
		t.Errorf("Quantile = %v, want 0.25", settings.Quantile)
	}
	if settings.Confidence != 0.8 || settings.MaxTrials != 64 {
		t.Errorf("unset keys changed: %+v", settings)
	}
}

func TestLoadAnalysisPrefsFullOverride(t *testing.T) {
	testlog.Start(t)

	path := writePrefs(t, "quantile = 0.1\nconfidence = 0.99\nmax_trials = 256\n")
	settings, err := loadAnalysisPrefs(path)
	if err != nil {
		t.Fatalf("loadAnalysisPrefs: %v", err)
	}
	if settings.Quantile != 0.1 || settings.Confidence != 0.99 || settings.MaxTrials != 256 {
		t.Errorf("settings = %+v", settings)
	}
}

func TestLoadAnalysisPrefsValidation(t *testing.T) {
	testlog.Start(t)

	for _, body := range []string{
		"quantile = 1.5\n",
		"confidence = 0.0\n",
		"max_trials = 0\n",
	} {
		path := writePrefs(t, body)
		if _, err := loadAnalysisPrefs(path); err == nil {
			t.Errorf("expected validation error for %q", body)
		}
	}
}

func TestLoadAnalysisPrefsMissingFile(t *testing.T) {
	testlog.Start(t)

	if _, err := loadAnalysisPrefs(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing prefs file")
	}
}
