package syncer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/remote"
	"github.com/poiesic/notekit/storage"
)

// Phase is the synchronizer's position in a sync cycle.
type Phase int32

const (
	// PhaseIdle means no cycle is running.
	PhaseIdle Phase = iota
	// PhaseFetching means the remote record set is being pulled.
	PhaseFetching
	// PhaseDiffing means remote records are being compared against local state.
	PhaseDiffing
	// PhaseReconciling means diff entries are being turned into local writes.
	PhaseReconciling
	// PhaseCommitting means reconciled records are being written back.
	PhaseCommitting
	// PhaseFailed means the last cycle ended in a stage error. The next
	// cycle clears it.
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseDiffing:
		return "diffing"
	case PhaseReconciling:
		return "reconciling"
	case PhaseCommitting:
		return "committing"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// DefaultFetchTimeout bounds a single remote fetch attempt.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultRetryAttempts is the number of fetch attempts per cycle.
	DefaultRetryAttempts = 3

	// DefaultRetryBaseDelay is the initial backoff delay between fetch
	// attempts.
	DefaultRetryBaseDelay = time.Second
)

// Repository is the subset of the store the synchronizer writes through.
type Repository interface {
	// Get retrieves a record by ID, storage.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*core.Record, error)

	// ListFiltered yields records satisfying the filter.
	ListFiltered(ctx context.Context, f storage.Filter, rep *storage.ScanReport) iter.Seq[*core.Record]

	// Apply writes a reconciled record as-is, preserving its sync metadata.
	Apply(ctx context.Context, record *core.Record) error
}

// Result summarizes one sync cycle.
type Result struct {
	New       int           // records created from remote
	Updated   int           // records overwritten from remote
	Deleted   int           // records tombstoned because the remote dropped them
	Conflicts int           // records parked in conflict state
	Failures  []string      // ids whose commit failed; retried next cycle
	Fetched   int           // remote records received
	Duration  time.Duration
}

// Syncer reconciles local records against a remote source. One cycle runs
// at a time; phases are observable via Phase.
type Syncer struct {
	repo    Repository
	source  remote.Source
	pool    *ants.Pool
	logger  *slog.Logger
	clock   func() time.Time
	timeout time.Duration

	retryAttempts int
	retryBase     time.Duration

	phase   atomic.Int32
	running atomic.Bool

	mu       sync.Mutex
	lastSync time.Time // zero until a full cycle has committed cleanly
}

// Option configures a Syncer.
type Option func(*Syncer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClock injects the time source used for tombstone stamps and cycle
// bookkeeping. Default is time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Syncer) error {
		if clock == nil {
			clock = time.Now
		}
		s.clock = clock
		return nil
	}
}

// WithFetchTimeout bounds each remote fetch attempt.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Syncer) error {
		if d <= 0 {
			return fmt.Errorf("fetch timeout must be positive, got %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithRetry sets the fetch retry policy: attempts and the base backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(s *Syncer) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.retryAttempts = attempts
		s.retryBase = baseDelay
		return nil
	}
}

// WithPoolSize sets the commit worker pool size.
// Default is 4, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Syncer) error {
		if size < 1 {
			size = 1
		}
		if s.pool != nil {
			s.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		s.pool = pool
		return nil
	}
}

// NewSyncer creates a synchronizer over the given repository and source.
func NewSyncer(repo Repository, source remote.Source, opts ...Option) (*Syncer, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if source == nil {
		return nil, ErrSourceRequired
	}

	pool, err := ants.NewPool(4)
	if err != nil {
		return nil, err
	}

	s := &Syncer{
		repo:          repo,
		source:        source,
		pool:          pool,
		logger:        slog.Default(),
		clock:         time.Now,
		timeout:       DefaultFetchTimeout,
		retryAttempts: DefaultRetryAttempts,
		retryBase:     DefaultRetryBaseDelay,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			pool.Release()
			return nil, err
		}
	}

	return s, nil
}

// Phase returns the synchronizer's current phase.
func (s *Syncer) Phase() Phase {
	return Phase(s.phase.Load())
}

// Release releases the commit worker pool.
// The syncer should not be used after calling Release.
func (s *Syncer) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Run drives sync cycles on the given interval until the context is
// cancelled. The first cycle starts immediately. Cycle errors are logged
// and do not stop the loop.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if result, err := s.RunCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("sync cycle failed", "err", err)
		} else {
			s.logger.Info("sync cycle complete",
				"fetched", result.Fetched,
				"new", result.New,
				"updated", result.Updated,
				"deleted", result.Deleted,
				"conflicts", result.Conflicts,
				"failures", len(result.Failures))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// diffAction classifies one remote/local pair.
type diffAction int

const (
	actionNew diffAction = iota + 1
	actionUpdate
	actionMetadata // content identical, only version bookkeeping moves
	actionConflict
	actionTombstone
)

type diffEntry struct {
	action diffAction
	local  *core.Record
	remote remote.Record
}

// RunCycle runs one full sync cycle and reports what changed. Only one
// cycle may run at a time; a second concurrent call returns
// ErrCycleInProgress.
func (s *Syncer) RunCycle(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.running.Store(false)

	start := s.clock()

	s.mu.Lock()
	since := s.lastSync
	s.mu.Unlock()

	// Fetching
	s.phase.Store(int32(PhaseFetching))
	fetched, err := s.fetch(ctx, since)
	if err != nil {
		s.phase.Store(int32(PhaseFailed))
		return nil, err
	}

	// Diffing
	s.phase.Store(int32(PhaseDiffing))
	entries, err := s.diff(ctx, fetched, since.IsZero())
	if err != nil {
		s.phase.Store(int32(PhaseFailed))
		return nil, err
	}

	// Reconciling
	s.phase.Store(int32(PhaseReconciling))
	result := &Result{Fetched: len(fetched)}
	commits := s.reconcile(entries, result)

	// Committing
	s.phase.Store(int32(PhaseCommitting))
	result.Failures = s.commit(ctx, commits)
	if err := ctx.Err(); err != nil {
		s.phase.Store(int32(PhaseFailed))
		return nil, err
	}

	// An incomplete commit must not advance the incremental watermark:
	// the failed records have to be fetched again next cycle.
	if len(result.Failures) == 0 {
		s.mu.Lock()
		s.lastSync = start
		s.mu.Unlock()
	}

	result.Duration = s.clock().Sub(start)
	s.phase.Store(int32(PhaseIdle))
	return result, nil
}

// fetch pulls the remote record set, incrementally when a prior cycle
// committed cleanly. Each attempt is bounded by the configured timeout and
// the whole fetch is retried with exponential backoff.
func (s *Syncer) fetch(ctx context.Context, since time.Time) ([]remote.Record, error) {
	var fetched []remote.Record

	operation := func() error {
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var err error
		if since.IsZero() {
			fetched, err = s.source.FetchAll(fctx)
		} else {
			fetched, err = s.source.FetchSince(fctx, since)
		}
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %v", ErrFetchTimeout, s.timeout)
		}
		return err
	}

	if err := RetryWithBackoff(ctx, operation, s.retryAttempts, s.retryBase); err != nil {
		if errors.Is(err, ErrFetchTimeout) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	return fetched, nil
}

// diff compares the fetched records against local state. Remote-deletion
// detection only runs on a full fetch: absence from an incremental fetch
// means unchanged, not gone.
func (s *Syncer) diff(ctx context.Context, fetched []remote.Record, full bool) ([]diffEntry, error) {
	entries := make([]diffEntry, 0, len(fetched))
	remoteIDs := make(map[string]bool, len(fetched))

	for _, rr := range fetched {
		remoteIDs[rr.ID] = true

		local, err := s.repo.Get(ctx, rr.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if rr.Deleted {
				continue
			}
			entries = append(entries, diffEntry{action: actionNew, remote: rr})
			continue
		case err != nil:
			return nil, err
		}

		if rr.Deleted {
			if local.Deleted {
				continue
			}
			entries = append(entries, diffEntry{action: actionTombstone, local: local, remote: rr})
			continue
		}

		if local.SyncState == core.SyncPendingPush {
			if rr.Version != local.RemoteVersion {
				// Both sides moved since the last sync. Park the record;
				// resolution is the caller's call, never ours.
				entries = append(entries, diffEntry{action: actionConflict, local: local, remote: rr})
			}
			// Remote unchanged: the pending local edit wins and will be
			// pushed by the caller's upload path.
			continue
		}

		if local.SyncState == core.SyncConflict {
			// Already parked; don't churn the cached revision.
			continue
		}

		if rr.Version == local.RemoteVersion {
			continue
		}
		if local.Hash() == core.ContentHash(rr.Title, rr.Body) {
			// Content identical, only the version token moved.
			entries = append(entries, diffEntry{action: actionMetadata, local: local, remote: rr})
			continue
		}
		entries = append(entries, diffEntry{action: actionUpdate, local: local, remote: rr})
	}

	if full {
		tombstones, err := s.findRemoteDeleted(ctx, remoteIDs)
		if err != nil {
			return nil, err
		}
		entries = append(entries, tombstones...)
	}

	return entries, nil
}

// findRemoteDeleted scans live local records for ids the full remote set no
// longer contains. Records that never existed remotely, carry unpushed
// edits, or are already parked in conflict are left alone.
func (s *Syncer) findRemoteDeleted(ctx context.Context, remoteIDs map[string]bool) ([]diffEntry, error) {
	var entries []diffEntry

	rep := &storage.ScanReport{}
	for record := range s.repo.ListFiltered(ctx, storage.Filter{}, rep) {
		if remoteIDs[record.Id] {
			continue
		}
		switch record.SyncState {
		case core.SyncLocalOnly, core.SyncPendingPush, core.SyncConflict:
			continue
		}
		entries = append(entries, diffEntry{action: actionTombstone, local: record})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rep.Len() > 0 {
		s.logger.Warn("diff skipped corrupt records", "skipped", rep.Len())
	}

	return entries, nil
}

// reconcile turns diff entries into the records to commit, tallying the
// result as it goes. Conflicts are never merged: the local content stays
// untouched and the remote revision is cached alongside it.
func (s *Syncer) reconcile(entries []diffEntry, result *Result) []*core.Record {
	commits := make([]*core.Record, 0, len(entries))

	for _, entry := range entries {
		switch entry.action {
		case actionNew:
			rr := entry.remote
			commits = append(commits, &core.Record{
				Id:            rr.ID,
				Title:         rr.Title,
				Body:          rr.Body,
				Tags:          append([]string(nil), rr.Tags...),
				Category:      rr.Category,
				CreatedAt:     rr.UpdatedAt,
				UpdatedAt:     rr.UpdatedAt,
				SyncState:     core.SyncSynced,
				RemoteVersion: rr.Version,
			})
			result.New++

		case actionUpdate:
			rr := entry.remote
			rec := entry.local.Clone()
			rec.Title = rr.Title
			rec.Body = rr.Body
			rec.Tags = append([]string(nil), rr.Tags...)
			rec.Category = rr.Category
			if rr.UpdatedAt.After(rec.UpdatedAt) {
				rec.UpdatedAt = rr.UpdatedAt
			}
			rec.SyncState = core.SyncSynced
			rec.RemoteVersion = rr.Version
			rec.Conflict = nil
			commits = append(commits, rec)
			result.Updated++

		case actionMetadata:
			rec := entry.local.Clone()
			rec.SyncState = core.SyncSynced
			rec.RemoteVersion = entry.remote.Version
			commits = append(commits, rec)

		case actionConflict:
			rr := entry.remote
			rec := entry.local.Clone()
			rec.SyncState = core.SyncConflict
			rec.Conflict = &core.RemoteRevision{
				Title:     rr.Title,
				Body:      rr.Body,
				Version:   rr.Version,
				UpdatedAt: rr.UpdatedAt,
			}
			commits = append(commits, rec)
			result.Conflicts++

		case actionTombstone:
			rec := entry.local.Clone()
			rec.Deleted = true
			rec.UpdatedAt = s.clock().UTC()
			rec.SyncState = core.SyncSynced
			if entry.remote.Version != "" {
				rec.RemoteVersion = entry.remote.Version
			}
			rec.Conflict = nil
			commits = append(commits, rec)
			result.Deleted++
		}
	}

	return commits
}

// commit writes each reconciled record through the repository, one Apply
// per record on the worker pool. A failed record keeps its prior state and
// is reported, not fatal; it will be picked up again next cycle.
func (s *Syncer) commit(ctx context.Context, commits []*core.Record) []string {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
	)

	fail := func(id string, err error) {
		s.logger.Warn("failed to commit record", "id", id, "err", err)
		mu.Lock()
		failures = append(failures, id)
		mu.Unlock()
	}

	for _, record := range commits {
		record := record
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if err := s.repo.Apply(ctx, record); err != nil {
				fail(record.Id, err)
			}
		})
		if err != nil {
			wg.Done()
			fail(record.Id, err)
		}
	}
	wg.Wait()

	sort.Strings(failures)
	return failures
}
