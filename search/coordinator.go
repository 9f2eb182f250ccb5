package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/remote"
	"github.com/poiesic/notekit/storage"
)

// Scope selects which sources a search consults.
type Scope int

const (
	// ScopeLocal queries only the active storage backend.
	ScopeLocal Scope = iota + 1
	// ScopeRemote queries only the remote source.
	ScopeRemote
	// ScopeHybrid queries the backend first and supplements with remote
	// results when local hits fall below the configured minimum.
	ScopeHybrid
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeRemote:
		return "remote"
	case ScopeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseScope converts a scope name to a Scope.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "local":
		return ScopeLocal, nil
	case "remote":
		return ScopeRemote, nil
	case "hybrid":
		return ScopeHybrid, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScope, name)
	}
}

const (
	// DefaultMinLocalHits is the local hit count below which a hybrid
	// search consults the remote source.
	DefaultMinLocalHits = 5

	// DefaultLimit caps the number of results returned per search.
	DefaultLimit = 50
)

// BackendProvider hands out the currently active storage backend.
// The repository implements this so the coordinator always queries the
// backend in effect at search time, even across a backend switch.
type BackendProvider interface {
	Backend() storage.Backend
}

// Coordinator runs searches across the local backend and an optional
// remote source.
type Coordinator struct {
	provider     BackendProvider
	source       remote.Source
	logger       *slog.Logger
	minLocalHits int
	limit        int
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithMinLocalHits sets the hybrid threshold: when a hybrid search finds
// fewer local hits than this, the remote source is consulted.
func WithMinLocalHits(n int) Option {
	return func(c *Coordinator) error {
		if n < 0 {
			return fmt.Errorf("min local hits must be non-negative, got %d", n)
		}
		c.minLocalHits = n
		return nil
	}
}

// WithLimit caps the number of results returned per search.
func WithLimit(n int) Option {
	return func(c *Coordinator) error {
		if n <= 0 {
			return fmt.Errorf("limit must be positive, got %d", n)
		}
		c.limit = n
		return nil
	}
}

// NewCoordinator creates a search coordinator. The remote source may be
// nil, in which case only local searches are available.
func NewCoordinator(provider BackendProvider, source remote.Source, opts ...Option) (*Coordinator, error) {
	if provider == nil {
		return nil, ErrBackendProviderRequired
	}

	c := &Coordinator{
		provider:     provider,
		source:       source,
		logger:       slog.Default(),
		minLocalHits: DefaultMinLocalHits,
		limit:        DefaultLimit,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Search runs a query within the given scope.
// Results are ordered by score descending, then UpdatedAt descending,
// then ID ascending.
func (c *Coordinator) Search(ctx context.Context, query string, scope Scope) ([]*storage.Match, error) {
	return c.SearchWithMonitor(ctx, query, scope, nil)
}

// SearchWithMonitor runs a query within the given scope with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (c *Coordinator) SearchWithMonitor(ctx context.Context, query string, scope Scope, monitor SearchMonitor) ([]*storage.Match, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query, scope)

	var (
		results []*storage.Match
		err     error
	)
	switch scope {
	case ScopeLocal:
		results, err = c.searchLocal(ctx, query, monitor)
	case ScopeRemote:
		results, err = c.searchRemote(ctx, query, monitor)
	case ScopeHybrid:
		results, err = c.searchHybrid(ctx, query, monitor)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScope, scope)
	}
	if err != nil {
		return nil, err
	}

	if len(results) > c.limit {
		results = results[:c.limit]
	}
	monitor.Finish(results)

	return results, nil
}

// searchLocal collects matches from the active backend. The backend
// already orders and scores its own results.
func (c *Coordinator) searchLocal(ctx context.Context, query string, monitor SearchMonitor) ([]*storage.Match, error) {
	backend := c.provider.Backend()

	rep := &storage.ScanReport{}
	matches := make([]*storage.Match, 0)
	for match := range backend.Search(ctx, query, rep) {
		matches = append(matches, match)
		monitor.LocalHit(match)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rep.Len() > 0 {
		c.logger.Warn("search skipped corrupt records", "query", query, "skipped", rep.Len())
	}
	monitor.AfterLocalSearch(matches)

	return matches, nil
}

// searchRemote queries the remote source and scores the candidates with
// the shared weighted-term formula.
func (c *Coordinator) searchRemote(ctx context.Context, query string, monitor SearchMonitor) ([]*storage.Match, error) {
	if c.source == nil {
		return nil, ErrNoRemoteSource
	}

	candidates, err := c.source.Search(ctx, query)
	if err != nil {
		c.logger.Error("remote search failed", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterRemoteFetch(candidates)

	terms := storage.Tokenize(query)
	matches := make([]*storage.Match, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Deleted {
			continue
		}
		record := convertRemote(candidate)
		// Score 0 is possible when the server matched on a signal we
		// don't score locally; the hit stays, at the bottom of the ranking.
		match := &storage.Match{
			Record: record,
			Score:  storage.ScoreRecord(record, terms),
			Tier:   storage.TierScan,
		}
		matches = append(matches, match)
		monitor.RemoteHit(match)
	}

	sortMatches(matches)
	return matches, nil
}

// searchHybrid runs the local search and, when it comes up short,
// supplements with remote candidates. Duplicate ids keep the local copy.
// The merged set is re-scored so the two sources rank consistently.
func (c *Coordinator) searchHybrid(ctx context.Context, query string, monitor SearchMonitor) ([]*storage.Match, error) {
	local, err := c.searchLocal(ctx, query, monitor)
	if err != nil {
		return nil, err
	}
	if len(local) >= c.minLocalHits || c.source == nil {
		return local, nil
	}

	candidates, err := c.source.Search(ctx, query)
	if err != nil {
		// Local results are still valid; degrade rather than fail.
		c.logger.Warn("remote supplement failed, returning local results", "query", query, "err", err)
		return local, nil
	}
	monitor.AfterRemoteFetch(candidates)

	seen := make(map[string]bool, len(local))
	terms := storage.Tokenize(query)
	merged := make([]*storage.Match, 0, len(local)+len(candidates))
	for _, match := range local {
		seen[match.Record.Id] = true
		merged = append(merged, &storage.Match{
			Record: match.Record,
			Score:  storage.ScoreRecord(match.Record, terms),
			Tier:   match.Tier,
		})
	}
	for _, candidate := range candidates {
		if candidate.Deleted || seen[candidate.ID] {
			continue
		}
		record := convertRemote(candidate)
		match := &storage.Match{
			Record: record,
			Score:  storage.ScoreRecord(record, terms),
			Tier:   storage.TierScan,
		}
		merged = append(merged, match)
		monitor.RemoteHit(match)
	}

	sortMatches(merged)
	return merged, nil
}

// convertRemote builds a local record view of a remote candidate.
func convertRemote(r remote.Record) *core.Record {
	return &core.Record{
		Id:            r.ID,
		Title:         r.Title,
		Body:          r.Body,
		Tags:          append([]string(nil), r.Tags...),
		Category:      r.Category,
		CreatedAt:     r.UpdatedAt,
		UpdatedAt:     r.UpdatedAt,
		SyncState:     core.SyncSynced,
		RemoteVersion: r.Version,
	}
}

func sortMatches(matches []*storage.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].Record.UpdatedAt.Equal(matches[j].Record.UpdatedAt) {
			return matches[i].Record.UpdatedAt.After(matches[j].Record.UpdatedAt)
		}
		return matches[i].Record.Id < matches[j].Record.Id
	})
}
