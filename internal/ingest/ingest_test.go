package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opda-dev/opda/internal/store"
	"github.com/opda-dev/opda/internal/testutil/testlog"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "opda.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeResultFile(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write result file: %v", err)
	}
	return path
}

func TestParseResultFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	path := writeResultFile(t, dir, "run.json", `{
		"study": "bert-sweep",
		"direction": "maximize",
		"trials": [
			{"score": 0.81, "params": {"lr": 0.01}},
			{"score": 0.85, "params": {"lr": 0.001}}
		]
	}`)

	rf, err := ParseResultFile(path)
	if err != nil {
		t.Fatalf("ParseResultFile: %v", err)
	}
	if rf.Study != "bert-sweep" || len(rf.Trials) != 2 {
		t.Errorf("unexpected result file: %+v", rf)
	}
	if rf.Trials[1].Score != 0.85 {
		t.Errorf("Trials[1].Score = %v", rf.Trials[1].Score)
	}
}

func TestParseResultFileErrors(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing study", `{"trials": [{"score": 1}]}`, ErrMissingStudy},
		{"no trials", `{"study": "x", "trials": []}`, ErrNoTrials},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeResultFile(t, dir, tc.name+".json", tc.body)
			if _, err := ParseResultFile(path); !errors.Is(err, tc.want) {
				t.Errorf("ParseResultFile error = %v, want %v", err, tc.want)
			}
		})
	}

	t.Run("bad direction", func(t *testing.T) {
		path := writeResultFile(t, dir, "dir.json", `{"study": "x", "direction": "up", "trials": [{"score": 1}]}`)
		if _, err := ParseResultFile(path); err == nil {
			t.Error("expected direction error")
		}
	})

	t.Run("bad json", func(t *testing.T) {
		path := writeResultFile(t, dir, "bad.json", `{`)
		if _, err := ParseResultFile(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestIngestFileCreatesStudy(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := NewIngestor(s, "maximize")
	dir := t.TempDir()

	path := writeResultFile(t, dir, "run.json", `{
		"study": "resnet-lr",
		"direction": "minimize",
		"trials": [{"score": 0.4}, {"score": 0.3}]
	}`)

	count, err := in.IngestFile(path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	study, err := s.GetStudyByName("resnet-lr")
	if err != nil {
		t.Fatalf("GetStudyByName: %v", err)
	}
	if study.Direction != "minimize" {
		t.Errorf("Direction = %q, want minimize", study.Direction)
	}
	scores, err := s.TrialScores(study.ID)
	if err != nil {
		t.Fatalf("TrialScores: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.4 || scores[1] != 0.3 {
		t.Errorf("scores = %v", scores)
	}
}

func TestIngestFileDefaultDirection(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := NewIngestor(s, "minimize")
	dir := t.TempDir()

	path := writeResultFile(t, dir, "run.json", `{"study": "sweep", "trials": [{"score": 1}]}`)
	if _, err := in.IngestFile(path); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	study, err := s.GetStudyByName("sweep")
	if err != nil {
		t.Fatalf("GetStudyByName: %v", err)
	}
	if study.Direction != "minimize" {
		t.Errorf("Direction = %q, want the ingestor default", study.Direction)
	}
}

func TestIngestGlobsSkipsBadFiles(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := NewIngestor(s, "maximize")
	dir := t.TempDir()

	writeResultFile(t, dir, "results/a/run-1.json", `{"study": "sweep", "trials": [{"score": 1}, {"score": 2}]}`)
	writeResultFile(t, dir, "results/b/run-2.json", `{"study": "sweep", "trials": [{"score": 3}]}`)
	writeResultFile(t, dir, "results/b/broken.json", `not json`)

	total, err := in.IngestGlobs([]string{filepath.Join(dir, "results", "**", "*.json")})
	if err != nil {
		t.Fatalf("IngestGlobs: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	study, err := s.GetStudyByName("sweep")
	if err != nil {
		t.Fatalf("GetStudyByName: %v", err)
	}
	count, err := s.CountTrials(study.ID)
	if err != nil {
		t.Fatalf("CountTrials: %v", err)
	}
	if count != 3 {
		t.Errorf("CountTrials = %d, want 3", count)
	}
}

func TestIngestGlobsRejectsBadPattern(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := NewIngestor(s, "maximize")

	if _, err := in.IngestGlobs([]string{"[bad"}); err == nil {
		t.Error("expected error for malformed glob")
	}
}
