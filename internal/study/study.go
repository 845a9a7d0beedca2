// Package study loads study definitions from yaml files.
package study

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingName      = errors.New("study: definition missing name")
	ErrInvalidDirection = errors.New("study: direction must be minimize or maximize")
	ErrInvalidAnalysis  = errors.New("study: invalid analysis settings")
)

// Analysis holds the tuning-curve settings for a study.
type Analysis struct {
	Quantile   float64 `yaml:"quantile"`
	Confidence float64 `yaml:"confidence"`
	MaxTrials  int     `yaml:"max_trials"`
}

// Remote describes where to fetch result files from when they are not
// produced locally.
type Remote struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	KeyPath string `yaml:"key_path"`
	Dir     string `yaml:"dir"`
}

// Definition is one study as declared by the user.
type Definition struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Direction string   `yaml:"direction"`
	Globs     []string `yaml:"globs"`
	Remote    *Remote  `yaml:"remote"`
	Analysis  Analysis `yaml:"analysis"`
}

// Load reads a definition from a yaml file, fills defaults, and
// validates it. A definition without an id gets a fresh uuid.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("study load failed (%s): %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("study parse failed (%s): %w", path, err)
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Direction == "" {
		def.Direction = "maximize"
	}
	if def.Analysis.Quantile == 0 {
		def.Analysis.Quantile = 0.5
	}
	if def.Analysis.Confidence == 0 {
		def.Analysis.Confidence = 0.8
	}
	if def.Analysis.MaxTrials == 0 {
		def.Analysis.MaxTrials = 64
	}

	if err := Validate(def); err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadAll loads every definition from the given paths and rejects
// duplicate names.
func LoadAll(paths []string) ([]Definition, error) {
	seen := make(map[string]string, len(paths))
	defs := make([]Definition, 0, len(paths))
	for _, path := range paths {
		def, err := Load(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("study %q defined in both %s and %s", def.Name, prev, path)
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}
	return defs, nil
}

func Validate(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return ErrMissingName
	}
	switch def.Direction {
	case "minimize", "maximize":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidDirection, def.Direction)
	}
	if def.Analysis.Quantile <= 0 || def.Analysis.Quantile >= 1 {
		return fmt.Errorf("%w: quantile must be in (0, 1), got %v", ErrInvalidAnalysis, def.Analysis.Quantile)
	}
	if def.Analysis.Confidence <= 0 || def.Analysis.Confidence >= 1 {
		return fmt.Errorf("%w: confidence must be in (0, 1), got %v", ErrInvalidAnalysis, def.Analysis.Confidence)
	}
	if def.Analysis.MaxTrials < 1 {
		return fmt.Errorf("%w: max_trials must be at least 1, got %d", ErrInvalidAnalysis, def.Analysis.MaxTrials)
	}
	if def.Remote != nil && strings.TrimSpace(def.Remote.Host) == "" {
		return fmt.Errorf("%w: remote host is required when a remote is set", ErrInvalidAnalysis)
	}
	return nil
}
