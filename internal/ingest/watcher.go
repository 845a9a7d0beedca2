package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/opda-dev/opda/internal/logging"
	"github.com/opda-dev/opda/internal/observability"
)

var ErrNoWatchDirs = errors.New("ingest: no directories to watch")

// Watcher ingests result files as training jobs write them. Writes to
// the same path within the debounce window collapse into one ingest so
// partially written files settle before they are read.
type Watcher struct {
	ingestor *Ingestor
	dirs     []string
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewWatcher(in *Ingestor, dirs []string, debounce time.Duration) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, ErrNoWatchDirs
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		ingestor: in,
		dirs:     dirs,
		debounce: debounce,
		logger:   logging.For("watcher"),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run watches the configured directories until the context is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	for _, dir := range w.dirs {
		if err := addRecursive(fsWatcher, dir); err != nil {
			return err
		}
		w.logger.Info().Str("dir", dir).Msg("watching for result files")
	}

	for {
		select {
		case <-ctx.Done():
			w.drainPending()
			return ctx.Err()

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsWatcher, event)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleEvent(fsWatcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addRecursive(fsWatcher, event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isResultFile(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// schedule resets the debounce timer for a path, so only the last
// write within the window triggers an ingest.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) ingest(path string) {
	count, err := w.ingestor.IngestFile(path)
	if err != nil {
		observability.RecordIngestFailure(failureReason(err))
		w.logger.Warn().Err(err).Str("path", path).Msg("skipping result file")
		return
	}
	w.logger.Info().Str("path", path).Int("trials", count).Msg("ingested result file")
}

func (w *Watcher) drainPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func addRecursive(fsWatcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
			return filepath.SkipDir
		}
		return fsWatcher.Add(path)
	})
}

func isResultFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
