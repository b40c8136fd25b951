package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/seantiz/nutristat/internal/model"
)

const tmpSuffix = ".tmp"

// Compile-time interface satisfaction check.
var _ Store = (*FileStore)(nil)

// FileStore implements Store with one JSON file per job in a directory.
// Artifacts are written to a temporary file and renamed into place, so a
// reader sees either nothing or the complete document.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and removes temporary files left by
// an interrupted previous run.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(dir, "*"+tmpSuffix))
	if err != nil {
		return nil, fmt.Errorf("scan results dir: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale temp file: %w", err)
		}
	}

	return &FileStore{dir: dir}, nil
}

// Path returns the artifact path for jobID.
func (s *FileStore) Path(jobID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("job_%d.json", jobID))
}

// Save writes payload as the result of jobID, replacing any artifact left
// by a previous process that issued the same id.
func (s *FileStore) Save(_ context.Context, jobID int64, payload []byte) error {
	final := s.Path(jobID)
	tmp := final + "." + model.NewID() + tmpSuffix

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp result: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write result: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync result: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close result: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// Load reads the result of jobID. A missing or unparsable file yields
// ErrNotReady.
func (s *FileStore) Load(_ context.Context, jobID int64) ([]byte, error) {
	data, err := os.ReadFile(s.Path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 || !json.Valid(data) {
		return nil, ErrNotReady
	}
	return data, nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}
