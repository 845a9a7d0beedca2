// Package store persists studies and their trial results in sqlite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrStudyNotFound = errors.New("store: study not found")
	ErrDuplicateName = errors.New("store: a study with that name already exists")
)

// Study groups the trials of one hyperparameter search.
type Study struct {
	ID        string
	Name      string
	Direction string
	CreatedAt time.Time
}

// Trial is one scored hyperparameter evaluation.
type Trial struct {
	StudyID    string
	TrialIndex int
	Score      float64
	Params     map[string]any
	Source     string
	IngestedAt time.Time
}

// Store wraps the sqlite database holding studies and trials.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the database file (and parent directory) if needed and
// applies the schema.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	_, _ = s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateStudy inserts a study. An empty id gets a fresh uuid.
func (s *Store) CreateStudy(id, name, direction string) (Study, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}

	var exists int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM studies WHERE name = ?`, name)
	if err := row.Scan(&exists); err != nil {
		return Study{}, fmt.Errorf("create study %q: %w", name, err)
	}
	if exists > 0 {
		return Study{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO studies (id, name, direction, created_at) VALUES (?, ?, ?, ?)`,
		id, name, direction, now,
	)
	if err != nil {
		return Study{}, fmt.Errorf("create study %q: %w", name, err)
	}
	return Study{ID: id, Name: name, Direction: direction, CreatedAt: now}, nil
}

// GetStudy looks a study up by id.
func (s *Store) GetStudy(id string) (Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanStudy(`SELECT id, name, direction, created_at FROM studies WHERE id = ?`, id)
}

// GetStudyByName looks a study up by name.
func (s *Store) GetStudyByName(name string) (Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanStudy(`SELECT id, name, direction, created_at FROM studies WHERE name = ?`, name)
}

// EnsureStudy returns the study with the given name, creating it when
// missing.
func (s *Store) EnsureStudy(name, direction string) (Study, error) {
	study, err := s.GetStudyByName(name)
	if err == nil {
		return study, nil
	}
	if !errors.Is(err, ErrStudyNotFound) {
		return Study{}, err
	}
	return s.CreateStudy("", name, direction)
}

func (s *Store) scanStudy(query string, arg any) (Study, error) {
	var study Study
	var createdAt sql.NullTime
	row := s.db.QueryRow(query, arg)
	if err := row.Scan(&study.ID, &study.Name, &study.Direction, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Study{}, ErrStudyNotFound
		}
		return Study{}, fmt.Errorf("get study: %w", err)
	}
	if createdAt.Valid {
		study.CreatedAt = createdAt.Time
	}
	return study, nil
}

// ListStudies returns every study ordered by creation time.
func (s *Store) ListStudies() ([]Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, direction, created_at FROM studies ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	var studies []Study
	for rows.Next() {
		var study Study
		var createdAt sql.NullTime
		if err := rows.Scan(&study.ID, &study.Name, &study.Direction, &createdAt); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		if createdAt.Valid {
			study.CreatedAt = createdAt.Time
		}
		studies = append(studies, study)
	}
	return studies, rows.Err()
}

// InsertTrials appends trials to a study in one transaction. Trial
// indexes continue from the highest index already stored.
func (s *Store) InsertTrials(studyID string, trials []Trial) error {
	if len(trials) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert trials: %w", err)
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRow(`SELECT COALESCE(MAX(trial_index), -1) + 1 FROM trials WHERE study_id = ?`, studyID)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("next trial index: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO trials (study_id, trial_index, score, params, source, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert trials: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, trial := range trials {
		params := trial.Params
		if params == nil {
			params = map[string]any{}
		}
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode trial params: %w", err)
		}
		if _, err := stmt.Exec(studyID, next+i, trial.Score, string(encoded), trial.Source, now); err != nil {
			return fmt.Errorf("insert trial: %w", err)
		}
	}
	return tx.Commit()
}

// TrialScores returns the scores of a study in trial order.
func (s *Store) TrialScores(studyID string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT score FROM trials WHERE study_id = ? ORDER BY trial_index`, studyID,
	)
	if err != nil {
		return nil, fmt.Errorf("trial scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// Trials returns the full trial records of a study in trial order.
func (s *Store) Trials(studyID string) ([]Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT study_id, trial_index, score, params, source, ingested_at
		 FROM trials WHERE study_id = ? ORDER BY trial_index`, studyID,
	)
	if err != nil {
		return nil, fmt.Errorf("trials: %w", err)
	}
	defer rows.Close()

	var trials []Trial
	for rows.Next() {
		var trial Trial
		var params string
		var ingestedAt sql.NullTime
		if err := rows.Scan(&trial.StudyID, &trial.TrialIndex, &trial.Score, &params, &trial.Source, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &trial.Params); err != nil {
			return nil, fmt.Errorf("decode trial params: %w", err)
		}
		if ingestedAt.Valid {
			trial.IngestedAt = ingestedAt.Time
		}
		trials = append(trials, trial)
	}
	return trials, rows.Err()
}

// CountTrials returns the number of trials stored for a study.
func (s *Store) CountTrials(studyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM trials WHERE study_id = ?`, studyID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count trials: %w", err)
	}
	return count, nil
}
