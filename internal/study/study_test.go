package study

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opda-dev/opda/internal/testutil/testlog"
)

func writeDefinition(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	testlog.Start(t)

	path := writeDefinition(t, "study.yaml", "name: bert-sweep\n")
	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.ID == "" {
		t.Error("expected a generated id")
	}
	if def.Direction != "maximize" {
		t.Errorf("Direction = %q, want maximize", def.Direction)
	}
	if def.Analysis.Quantile != 0.5 || def.Analysis.Confidence != 0.8 || def.Analysis.MaxTrials != 64 {
		t.Errorf("analysis defaults not applied: %+v", def.Analysis)
	}
}

func TestLoadFullDefinition(t *testing.T) {
	testlog.Start(t)

	path := writeDefinition(t, "study.yaml", `
id: 6e1f3f76-1fc9-4adf-8a4a-50c6f29f3a61
name: resnet-lr
direction: minimize
globs:
  - results/resnet/**/*.json
remote:
  host: gpu-box
  user: trainer
  key_path: /home/trainer/.ssh/id_ed25519
  dir: /data/results
analysis:
  quantile: 0.25
  confidence: 0.95
  max_trials: 128
`)
	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.ID != "6e1f3f76-1fc9-4adf-8a4a-50c6f29f3a61" {
		t.Errorf("ID = %q", def.ID)
	}
	if def.Direction != "minimize" {
		t.Errorf("Direction = %q, want minimize", def.Direction)
	}
	if def.Remote == nil || def.Remote.Host != "gpu-box" {
		t.Errorf("Remote = %+v", def.Remote)
	}
	if def.Analysis.Quantile != 0.25 || def.Analysis.MaxTrials != 128 {
		t.Errorf("Analysis = %+v", def.Analysis)
	}
}

func TestLoadValidation(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing name", "direction: maximize\n", ErrMissingName},
		{"bad direction", "name: x\ndirection: sideways\n", ErrInvalidDirection},
		{"quantile out of range", "name: x\nanalysis:\n  quantile: 1.5\n", ErrInvalidAnalysis},
		{"confidence out of range", "name: x\nanalysis:\n  confidence: -0.2\n", ErrInvalidAnalysis},
		{"remote without host", "name: x\nremote:\n  user: trainer\n", ErrInvalidAnalysis},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeDefinition(t, "study.yaml", tc.body)
			if _, err := Load(path); !errors.Is(err, tc.want) {
				t.Errorf("Load error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsBadYaml(t *testing.T) {
	testlog.Start(t)

	path := writeDefinition(t, "study.yaml", "name: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadAllRejectsDuplicateNames(t *testing.T) {
	testlog.Start(t)

	a := writeDefinition(t, "a.yaml", "name: dup\n")
	b := writeDefinition(t, "b.yaml", "name: dup\n")
	if _, err := LoadAll([]string{a, b}); err == nil {
		t.Error("expected duplicate-name error")
	}

	defs, err := LoadAll([]string{a})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "dup" {
		t.Errorf("defs = %+v", defs)
	}
}
