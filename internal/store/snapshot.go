// Package store provides the persistence backends for the group registry.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/DrctNews/DRCT-NEWS/internal/domain"
	"github.com/DrctNews/DRCT-NEWS/internal/logging"
)

// SnapshotStore persists the registry as a single JSON document keyed by
// stringified chat id, rewritten wholesale on every mutation. Writes land in a
// temp file in the same directory followed by an atomic rename, so a crash
// mid-write never leaves a truncated snapshot behind.
type SnapshotStore struct {
	path   string
	logger *logrus.Entry
}

// NewSnapshotStore constructs a file-backed store at the given path.
func NewSnapshotStore(path string, logger *logrus.Entry) (*SnapshotStore, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &SnapshotStore{
		path:   path,
		logger: logger,
	}, nil
}

// Load reads the snapshot. A missing file is a valid empty state. An
// unparseable file is logged and treated as empty rather than aborting
// startup.
func (s *SnapshotStore) Load(ctx context.Context) ([]domain.GroupRecord, error) {
	if s == nil {
		return nil, errors.New("snapshot store is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.WithFields(logging.Fields{
				"event": "snapshot_missing",
				"path":  s.path,
			}).Info("no snapshot file, starting with empty registry")
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var byID map[string]domain.GroupRecord
	if err := json.Unmarshal(data, &byID); err != nil {
		s.logger.WithFields(logging.Fields{
			"event": "snapshot_corrupt",
			"path":  s.path,
		}).WithError(err).Warn("snapshot unparseable, starting with empty registry")
		return nil, nil
	}

	records := make([]domain.GroupRecord, 0, len(byID))
	for _, rec := range byID {
		records = append(records, rec)
	}

	return records, nil
}

// Save rewrites the whole snapshot atomically.
func (s *SnapshotStore) Save(ctx context.Context, records []domain.GroupRecord) error {
	if s == nil {
		return errors.New("snapshot store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	byID := make(map[string]domain.GroupRecord, len(records))
	for _, rec := range records {
		byID[strconv.FormatInt(rec.ChatID, 10)] = rec
	}

	data, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".groups-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}

// Ping reports whether the snapshot directory is reachable, for the health
// endpoint.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("snapshot store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("snapshot directory: %w", err)
	}

	return nil
}
