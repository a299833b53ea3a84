// Package store persists the sequence of already-broadcast announcements
// as a single JSON array on disk. The file is replaced atomically on every
// save so a concurrent reader never observes a partial write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"uniherald/internal/domain"
)

const fileMode = 0o644

type Store struct {
	path string
	log  *slog.Logger
}

func New(path string, log *slog.Logger) *Store {
	return &Store{
		path: path,
		log:  log,
	}
}

// Load reads the durable state. A missing file means first run and yields
// an empty sequence. A corrupt file is reset to an empty valid state and
// also yields an empty sequence; this favors availability over
// loss-detection and is surfaced to operators through the log.
func (s *Store) Load(ctx context.Context) ([]domain.PostedRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var records []domain.PostedRecord
	if err = json.Unmarshal(data, &records); err != nil {
		s.log.WarnContext(ctx, "Store file is corrupt so resetting to empty state",
			"error", err,
			"path", s.path,
			"sizeBytes", len(data))

		if saveErr := s.Save(ctx, nil); saveErr != nil {
			return nil, fmt.Errorf("reset corrupt store: %w", saveErr)
		}

		return nil, nil
	}

	return records, nil
}

// Save serializes the full sequence and atomically replaces the prior
// durable state.
func (s *Store) Save(_ context.Context, records []domain.PostedRecord) error {
	if records == nil {
		records = []domain.PostedRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}

	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp store file: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	return nil
}

// Snapshot returns the current on-disk bytes for the remote backup. A
// missing file yields an empty valid array so the first backup still has
// something to push.
func (s *Store) Snapshot(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []byte("[]\n"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	return data, nil
}

// ContainsID reports whether a record with the given id already exists.
func ContainsID(records []domain.PostedRecord, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}

	return false
}
