package store

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS studies (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    direction  TEXT NOT NULL CHECK (direction IN ('minimize', 'maximize')),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trials (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    study_id    TEXT NOT NULL REFERENCES studies(id) ON DELETE CASCADE,
    trial_index INTEGER NOT NULL,
    score       REAL NOT NULL,
    params      TEXT NOT NULL DEFAULT '{}',
    source      TEXT NOT NULL DEFAULT '',
    ingested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (study_id, trial_index)
);

CREATE INDEX IF NOT EXISTS idx_trials_study ON trials(study_id);
`
