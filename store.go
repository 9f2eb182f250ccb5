// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package notekit is a local-first note and article store with two
// interchangeable storage engines, weighted full-text search and pull-based
// remote synchronization. The Store type is the single entry point:
// application code never talks to an engine directly.
package notekit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/storage"
	"github.com/poiesic/notekit/storage/badger"
	"github.com/poiesic/notekit/storage/sqlite"
)

var (
	// ErrUnknownBackendKind is returned when a backend name is not recognized.
	ErrUnknownBackendKind = errors.New("unknown backend kind")

	// ErrRecordInConflict is returned when a mutation targets a record
	// whose conflict has not been resolved yet.
	ErrRecordInConflict = errors.New("record has an unresolved conflict")

	// ErrNotInConflict is returned when conflict resolution targets a
	// record that is not in conflict.
	ErrNotInConflict = errors.New("record is not in conflict")
)

// migrationBatchSize is the number of records per BulkPut during a
// backend switch.
const migrationBatchSize = 128

// Store is the repository facade over the two storage engines. Exactly one
// engine is active at a time; every read and write routes through it.
type Store struct {
	kv  *badger.Backend
	rel *sqlite.Backend

	// activeMu guards the active pointer. It is held only for the instant
	// of a read or the switch-time flip, never across engine I/O.
	activeMu sync.RWMutex
	active   storage.Backend

	// writeMu serializes mutations so read-modify-write cycles on the
	// same id never interleave. Migration runs under it too.
	writeMu sync.Mutex

	clock    func() time.Time
	logger   *slog.Logger
	observer MutationObserver
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClock injects the time source used for record timestamps.
// Default is time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) error {
		if clock == nil {
			clock = time.Now
		}
		s.clock = clock
		return nil
	}
}

// WithObserver registers a mutation observer.
func WithObserver(observer MutationObserver) Option {
	return func(s *Store) error {
		if observer == nil {
			observer = &noopObserver{}
		}
		s.observer = observer
		return nil
	}
}

// Open builds both storage engines and selects the active one from config.
func Open(cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	kv, err := badger.OpenBackend(cfg.Badger.Path, cfg.Badger.InMemory)
	if err != nil {
		return nil, err
	}

	rel, err := sqlite.OpenBackend(cfg.SQLite.Path)
	if err != nil {
		kv.Close()
		return nil, err
	}

	s := &Store{
		kv:       kv,
		rel:      rel,
		clock:    time.Now,
		logger:   slog.Default(),
		observer: &noopObserver{},
	}

	switch cfg.Backend {
	case "", storage.KindKeyValue.String():
		s.active = kv
	case storage.KindRelational.String():
		s.active = rel
	default:
		rel.Close()
		kv.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackendKind, cfg.Backend)
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			rel.Close()
			kv.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close closes both storage engines.
func (s *Store) Close() error {
	if err := s.rel.Close(); err != nil {
		s.logger.Error("error closing relational backend", "err", err)
		return err
	}
	if err := s.kv.Close(); err != nil {
		s.logger.Error("error closing key-value backend", "err", err)
		return err
	}
	return nil
}

// Backend returns the currently active storage engine.
func (s *Store) Backend() storage.Backend {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.active
}

// ActiveKind reports which engine is active.
func (s *Store) ActiveKind() storage.Kind {
	return s.Backend().Kind()
}

// Draft is the caller-supplied content for a new record.
type Draft struct {
	Title    string
	Body     string
	Tags     []string
	Category string
	Favorite bool
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Title    *string
	Body     *string
	Tags     *[]string
	Category *string
	Favorite *bool
	Archived *bool
}

// Create stores a new record from the draft. The record gets a fresh id,
// creation and update timestamps, and starts out local-only.
func (s *Store) Create(ctx context.Context, draft Draft) (*core.Record, error) {
	now := s.clock().UTC().Truncate(time.Microsecond)
	record := &core.Record{
		Id:        core.NewID(),
		Title:     draft.Title,
		Body:      draft.Body,
		Tags:      append([]string(nil), draft.Tags...),
		Category:  draft.Category,
		Favorite:  draft.Favorite,
		CreatedAt: now,
		UpdatedAt: now,
		SyncState: core.SyncLocalOnly,
	}
	if err := core.ValidateRecord(record); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.Backend().Put(ctx, record); err != nil {
		return nil, err
	}

	s.notify(MutationCreate, record)
	return record.Clone(), nil
}

// Update applies a partial update to an existing record, bumps UpdatedAt
// and marks it pending upload (unless it has never been pushed). A record
// in conflict must be resolved before it can be edited again.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*core.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	backend := s.Backend()
	record, err := backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Deleted {
		return nil, storage.ErrNotFound
	}
	if record.SyncState == core.SyncConflict {
		return nil, fmt.Errorf("%w: %s", ErrRecordInConflict, id)
	}

	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Body != nil {
		record.Body = *patch.Body
	}
	if patch.Tags != nil {
		record.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.Category != nil {
		record.Category = *patch.Category
	}
	if patch.Favorite != nil {
		record.Favorite = *patch.Favorite
	}
	if patch.Archived != nil {
		record.Archived = *patch.Archived
	}

	record.UpdatedAt = s.bumped(record.UpdatedAt)
	if record.SyncState != core.SyncLocalOnly {
		record.SyncState = core.SyncPendingPush
	}

	if err := core.ValidateRecord(record); err != nil {
		return nil, err
	}
	if err := backend.Put(ctx, record); err != nil {
		return nil, err
	}

	s.notify(MutationUpdate, record)
	return record.Clone(), nil
}

// Delete tombstones a record so the deletion can propagate on the next
// sync; the data is only erased by Purge. Deleting a missing or already
// tombstoned record is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	backend := s.Backend()
	record, err := backend.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if record.Deleted {
		return nil
	}

	record.Deleted = true
	record.UpdatedAt = s.bumped(record.UpdatedAt)
	// Deleting a conflicted record resolves it in favor of the deletion.
	if record.SyncState != core.SyncLocalOnly {
		record.SyncState = core.SyncPendingPush
	}
	record.Conflict = nil

	if err := backend.Put(ctx, record); err != nil {
		return err
	}

	s.notify(MutationDelete, record)
	return nil
}

// Purge removes a record outright, tombstone included.
func (s *Store) Purge(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	backend := s.Backend()
	record, err := backend.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := backend.Delete(ctx, id); err != nil {
		return err
	}

	s.notify(MutationPurge, record)
	return nil
}

// Get retrieves a record by id. Tombstoned records are returned with the
// Deleted flag set so callers can distinguish "gone" from "never existed".
func (s *Store) Get(ctx context.Context, id string) (*core.Record, error) {
	return s.Backend().Get(ctx, id)
}

// List returns records satisfying the filter, newest first. Corrupt
// records are skipped and logged, not fatal.
func (s *Store) List(ctx context.Context, f storage.Filter) ([]*core.Record, error) {
	rep := &storage.ScanReport{}
	var records []*core.Record
	for record := range s.Backend().ListFiltered(ctx, f, rep) {
		records = append(records, record)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rep.Len() > 0 {
		s.logger.Warn("list skipped corrupt records", "skipped", rep.Len())
	}
	return records, nil
}

// ListFiltered yields records satisfying the filter from the active
// backend. It exists for streaming consumers; most callers want List.
func (s *Store) ListFiltered(ctx context.Context, f storage.Filter, rep *storage.ScanReport) iter.Seq[*core.Record] {
	return s.Backend().ListFiltered(ctx, f, rep)
}

// Tags returns the live tag counts from the active backend.
func (s *Store) Tags(ctx context.Context) (map[string]int, error) {
	return s.Backend().TagCounts(ctx)
}

// Apply writes a record verbatim, preserving its timestamps and sync
// metadata. The synchronizer and backend migration use it; application
// code should use Create and Update.
func (s *Store) Apply(ctx context.Context, record *core.Record) error {
	if err := core.ValidateRecord(record); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.Backend().Put(ctx, record); err != nil {
		return err
	}

	s.notify(MutationApply, record)
	return nil
}

// ResolutionChoice picks a side when resolving a conflict.
type ResolutionChoice int

const (
	// KeepLocal discards the cached remote revision and queues the local
	// content for upload.
	KeepLocal ResolutionChoice = iota + 1
	// TakeRemote replaces the local content with the cached remote revision.
	TakeRemote
)

// ResolveConflict settles a conflicted record one way or the other and
// clears the cached remote revision.
func (s *Store) ResolveConflict(ctx context.Context, id string, choice ResolutionChoice) (*core.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	backend := s.Backend()
	record, err := backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.SyncState != core.SyncConflict || record.Conflict == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInConflict, id)
	}

	switch choice {
	case KeepLocal:
		record.RemoteVersion = record.Conflict.Version
		record.SyncState = core.SyncPendingPush
		record.UpdatedAt = s.bumped(record.UpdatedAt)
	case TakeRemote:
		record.Title = record.Conflict.Title
		record.Body = record.Conflict.Body
		record.RemoteVersion = record.Conflict.Version
		if record.Conflict.UpdatedAt.After(record.UpdatedAt) {
			record.UpdatedAt = record.Conflict.UpdatedAt
		} else {
			record.UpdatedAt = s.bumped(record.UpdatedAt)
		}
		record.SyncState = core.SyncSynced
	default:
		return nil, fmt.Errorf("unknown resolution choice: %d", choice)
	}
	record.Conflict = nil

	if err := backend.Put(ctx, record); err != nil {
		return nil, err
	}

	s.notify(MutationResolve, record)
	return record.Clone(), nil
}

// SwitchBackend migrates every record (tombstones included) from the
// active engine into the target engine, then flips the active pointer.
// On any failure the target is cleared and the active pointer never moves.
func (s *Store) SwitchBackend(ctx context.Context, target storage.Kind) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	source := s.Backend()
	if source.Kind() == target {
		return nil
	}

	var dest storage.Backend
	switch target {
	case storage.KindKeyValue:
		dest = s.kv
	case storage.KindRelational:
		dest = s.rel
	default:
		return fmt.Errorf("%w: %d", ErrUnknownBackendKind, target)
	}

	if err := s.migrate(ctx, source, dest); err != nil {
		if clearErr := dest.Clear(ctx); clearErr != nil {
			s.logger.Error("failed to clear target after aborted migration", "err", clearErr)
		}
		return fmt.Errorf("%w: %w", storage.ErrMigrationFailed, err)
	}

	s.activeMu.Lock()
	s.active = dest
	s.activeMu.Unlock()

	s.logger.Info("switched active backend", "from", source.Kind().String(), "to", target.String())
	return nil
}

// migrate copies the full record set in batches. The target starts empty;
// corrupt source records are skipped and logged, everything readable moves.
func (s *Store) migrate(ctx context.Context, source, dest storage.Backend) error {
	if err := dest.Clear(ctx); err != nil {
		return err
	}

	rep := &storage.ScanReport{}
	batch := make([]*core.Record, 0, migrationBatchSize)
	for record := range source.ListFiltered(ctx, storage.Filter{IncludeDeleted: true}, rep) {
		batch = append(batch, record)
		if len(batch) == migrationBatchSize {
			if err := dest.BulkPut(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := dest.BulkPut(ctx, batch); err != nil {
			return err
		}
	}
	if rep.Len() > 0 {
		s.logger.Warn("migration skipped corrupt records", "skipped", rep.Len())
	}

	return nil
}

// bumped returns the current clock reading, nudged forward when the clock
// has not advanced past the previous timestamp. UpdatedAt never regresses.
func (s *Store) bumped(prev time.Time) time.Time {
	now := s.clock().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
