package fetch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opda-dev/opda/internal/logging"
	"github.com/opda-dev/opda/internal/study"
)

var ErrMissingRemoteDir = errors.New("fetch: remote dir is required")

// Fetcher mirrors a study's remote result files into a local spool
// directory where the ingest watcher picks them up.
type Fetcher struct {
	runner   Runner
	spoolDir string
}

func NewFetcher(runner Runner, spoolDir string) *Fetcher {
	return &Fetcher{runner: runner, spoolDir: spoolDir}
}

// ForRemote builds a fetcher from a study's remote declaration.
func ForRemote(remote *study.Remote, spoolDir string, timeout time.Duration) (*Fetcher, error) {
	if remote == nil || strings.TrimSpace(remote.Host) == "" {
		return nil, ErrMissingHost
	}
	runner := SSHRunner{
		Host:    remote.Host,
		User:    remote.User,
		KeyPath: remote.KeyPath,
		Timeout: timeout,
	}
	return NewFetcher(runner, spoolDir), nil
}

// ListRemote returns the result file paths under the remote directory.
func (f *Fetcher) ListRemote(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrMissingRemoteDir
	}

	out, err := f.runner.Run("find", dir, "-type", "f", "-name", "*.json")
	if err != nil {
		return nil, fmt.Errorf("list remote results: %w: %s", err, strings.TrimSpace(out))
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// Pull copies every result file under the remote directory into the
// spool directory, flattening the remote layout into unique names.
// Returns the local paths written.
func (f *Fetcher) Pull(dir string) ([]string, error) {
	paths, err := f.ListRemote(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	logger := logging.For("fetch")

	var written []string
	for _, remotePath := range paths {
		localPath := filepath.Join(f.spoolDir, spoolName(dir, remotePath))
		if err := f.pullOne(remotePath, localPath); err != nil {
			logger.Warn().Err(err).Str("remote", remotePath).Msg("failed to pull result file")
			continue
		}
		logger.Info().Str("remote", remotePath).Str("local", localPath).Msg("pulled result file")
		written = append(written, localPath)
	}
	return written, nil
}

func (f *Fetcher) pullOne(remotePath, localPath string) error {
	tmp, err := os.CreateTemp(f.spoolDir, ".pull-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := f.runner.RunStreaming("cat", []string{remotePath}, tmp, nil); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Rename so the ingest watcher never observes a partial file.
	return os.Rename(tmp.Name(), localPath)
}

// spoolName flattens a remote path relative to the fetch root into a
// single collision-free file name.
func spoolName(root, remotePath string) string {
	rel, err := filepath.Rel(root, remotePath)
	if err != nil {
		rel = filepath.Base(remotePath)
	}
	return strings.ReplaceAll(rel, string(filepath.Separator), "__")
}
