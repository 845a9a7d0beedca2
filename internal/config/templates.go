package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "service":
		return serviceTemplate, nil
	case "study":
		return studyTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serviceTemplate = `[service]
name = "opda"
addr = ":9180"
cors_origins = ["http://localhost:3000"]
auth_token = ""

[store]
path = "opda.db"

[ingest]
globs = ["results/**/*.json"]
watch_dirs = ["results"]
debounce_ms = 500
default_goal = "maximize"
`

const studyTemplate = `name: bert-sweep
direction: maximize
globs:
  - results/bert/**/*.json
analysis:
  quantile: 0.5
  confidence: 0.8
  max_trials: 64
`
