package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opda-dev/opda/internal/store"
	"github.com/opda-dev/opda/internal/testutil/testlog"
)

func TestNewWatcherRequiresDirs(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)

	if _, err := NewWatcher(NewIngestor(s, "maximize"), nil, time.Second); !errors.Is(err, ErrNoWatchDirs) {
		t.Errorf("expected ErrNoWatchDirs, got %v", err)
	}
}

func TestWatcherIngestsNewFiles(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := NewIngestor(s, "maximize")
	dir := t.TempDir()

	w, err := NewWatcher(in, []string{dir}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "run.json")
	if err := os.WriteFile(path, []byte(`{"study": "sweep", "trials": [{"score": 1}]}`), 0o600); err != nil {
		t.Fatalf("write result file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := s.GetStudyByName("sweep"); err == nil {
			break
		} else if !errors.Is(err, store.ErrStudyNotFound) {
			t.Fatalf("GetStudyByName: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the watcher to ingest the file")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestWatcherIgnoresNonResultFiles(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := NewIngestor(s, "maximize")
	dir := t.TempDir()

	w, err := NewWatcher(in, []string{dir}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	studies, err := s.ListStudies()
	if err != nil {
		t.Fatalf("ListStudies: %v", err)
	}
	if len(studies) != 0 {
		t.Errorf("unexpected studies: %+v", studies)
	}

	cancel()
	<-done
}
