// Package registry maintains the authoritative group membership state.
//
// The registry is the single source of truth for broadcast targets. Every
// mutation persists the full record set synchronously through the configured
// store before returning, so a crash immediately after a mutation never loses
// it. A failed persist is logged and the in-memory mutation kept: the process
// keeps serving with state that is merely at risk until the next successful
// save.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DrctNews/DRCT-NEWS/internal/domain"
	"github.com/DrctNews/DRCT-NEWS/internal/logging"
)

// Store persists registry snapshots.
type Store interface {
	Load(ctx context.Context) ([]domain.GroupRecord, error)
	Save(ctx context.Context, records []domain.GroupRecord) error
}

// Registry is the durable mapping from chat id to membership record. Updates
// arrive one at a time from the polling loop, but broadcast workers may call
// Deactivate concurrently, so all access is mutex-guarded.
type Registry struct {
	mu     sync.Mutex
	store  Store
	logger *logrus.Entry
	groups map[int64]domain.GroupRecord

	now func() time.Time
}

// New constructs an empty registry over the given store. Call Load before
// serving updates.
func New(store Store, logger *logrus.Entry) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registry{
		store:  store,
		logger: logger,
		groups: make(map[int64]domain.GroupRecord),
		now:    time.Now,
	}, nil
}

// Load restores the persisted snapshot. Missing or unparseable state is the
// store's concern and surfaces here as an empty record set, not an error.
func (r *Registry) Load(ctx context.Context) error {
	if r == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	records, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.groups = make(map[int64]domain.GroupRecord, len(records))
	for _, rec := range records {
		r.groups[rec.ChatID] = rec
	}

	r.logger.WithFields(logging.Fields{
		"event":  "registry_loaded",
		"groups": len(r.groups),
	}).Info("registry restored from snapshot")

	return nil
}

// Add inserts or overwrites the record for chatID with Active=true and a
// fresh AddedAt, then persists. Re-adding a known id is idempotent by design.
func (r *Registry) Add(ctx context.Context, chatID int64, title, kind string) error {
	if r == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if chatID == 0 {
		return errors.New("chat id is required")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultTitle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.groups[chatID] = domain.GroupRecord{
		ChatID:  chatID,
		Title:   title,
		Kind:    kind,
		Active:  true,
		AddedAt: r.now().UTC().Truncate(time.Millisecond),
	}
	r.persistLocked(ctx)

	r.logger.WithFields(logging.Fields{
		"event":   "group_added",
		"chat_id": chatID,
		"title":   title,
	}).Info("registered group")

	return nil
}

// Remove deletes the record for chatID if present, then persists. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, chatID int64) error {
	if r == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[chatID]; !ok {
		return nil
	}

	delete(r.groups, chatID)
	r.persistLocked(ctx)

	r.logger.WithFields(logging.Fields{
		"event":   "group_removed",
		"chat_id": chatID,
	}).Info("removed group")

	return nil
}

// Deactivate flips Active to false on the existing record for chatID, then
// persists. The record survives, distinguishing "known but unreachable" from
// "never joined". Unknown ids are a no-op.
func (r *Registry) Deactivate(ctx context.Context, chatID int64) error {
	if r == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.groups[chatID]
	if !ok {
		return nil
	}

	rec.Active = false
	r.groups[chatID] = rec
	r.persistLocked(ctx)

	r.logger.WithFields(logging.Fields{
		"event":   "group_deactivated",
		"chat_id": chatID,
		"title":   rec.Title,
	}).Warn("deactivated unreachable group")

	return nil
}

// ActiveGroups returns the ids of all records with Active=true, in ascending
// id order for determinism.
func (r *Registry) ActiveGroups() []int64 {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.groups))
	for id, rec := range r.groups {
		if rec.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Count returns the number of active groups.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, rec := range r.groups {
		if rec.Active {
			count++
		}
	}

	return count
}

// Has reports whether a record exists for chatID, active or not.
func (r *Registry) Has(chatID int64) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.groups[chatID]
	return ok
}

// Describe renders a titled listing of the active groups for operator
// inspection.
func (r *Registry) Describe() string {
	if r == nil {
		return ""
	}

	r.mu.Lock()
	records := r.snapshotLocked()
	r.mu.Unlock()

	active := records[:0]
	for _, rec := range records {
		if rec.Active {
			active = append(active, rec)
		}
	}

	if len(active) == 0 {
		return "📭 No active groups connected"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Active Groups: %d\n\n", len(active))
	for _, rec := range active {
		fmt.Fprintf(&b, "• %s (%s)\n", rec.Title, rec.Kind)
	}

	return b.String()
}

// Snapshot returns a copy of every record, sorted by chat id.
func (r *Registry) Snapshot() []domain.GroupRecord {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []domain.GroupRecord {
	records := make([]domain.GroupRecord, 0, len(r.groups))
	for _, rec := range r.groups {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ChatID < records[j].ChatID })

	return records
}

func (r *Registry) persistLocked(ctx context.Context) {
	if err := r.store.Save(ctx, r.snapshotLocked()); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":  "registry_persist_error",
			"groups": len(r.groups),
		}).WithError(err).Error("failed to persist registry snapshot, in-memory state retained")
	}
}
