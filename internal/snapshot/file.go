package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/miradorstack/alert-beacon/internal/models"
)

// FileSink writes each snapshot to a JSON file, replacing it atomically.
type FileSink struct {
	path string
}

// NewFileSink creates the parent directory and resets the file to a clean snapshot.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	sink := &FileSink{path: path}
	if err := sink.Publish(context.Background(), models.Snapshot{Labels: models.LabelMap{}}); err != nil {
		return nil, err
	}
	return sink, nil
}

// Publish writes to a temp file in the same directory and renames it over the target.
func (s *FileSink) Publish(_ context.Context, snap models.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Path returns the target file.
func (s *FileSink) Path() string { return s.path }

// FileSource reads snapshots written by a FileSink.
type FileSource struct {
	path string
}

// NewFileSource reads from path on every Fetch.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch reads and decodes the file.
func (s *FileSource) Fetch(context.Context) (models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}
	return decode(data)
}
