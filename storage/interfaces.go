package storage

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/poiesic/notekit/core"
)

// Kind identifies a concrete backend engine.
type Kind int

const (
	// KindKeyValue is the BadgerDB-backed document store.
	KindKeyValue Kind = iota + 1
	// KindRelational is the SQLite-backed store with a full-text index.
	KindRelational
)

// String returns the config/debug name of the kind.
func (k Kind) String() string {
	switch k {
	case KindKeyValue:
		return "badger"
	case KindRelational:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Tier identifies which search strategy served a query.
type Tier int

const (
	// TierScan is the linear-scan substring tier (the key-value backend's
	// only tier, and the relational backend's fallback).
	TierScan Tier = iota + 1
	// TierFullText is the relational backend's FTS index tier.
	TierFullText
)

// String returns the debug name of the tier.
func (t Tier) String() string {
	switch t {
	case TierScan:
		return "scan"
	case TierFullText:
		return "fulltext"
	default:
		return "unknown"
	}
}

// Match is a search hit with its relevance score and the tier that served it.
type Match struct {
	Record *core.Record
	Score  float64
	Tier   Tier
}

// Filter narrows a listing. Zero-value fields do not constrain; a record
// must satisfy every set field. Tombstoned records are excluded unless
// IncludeDeleted is set.
type Filter struct {
	Category       string
	Tags           []string // record must carry all listed tags
	Favorite       *bool
	Archived       *bool
	Since          time.Time // inclusive lower bound on UpdatedAt
	Until          time.Time // exclusive upper bound on UpdatedAt
	IncludeDeleted bool
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r *core.Record) bool {
	if r.Deleted && !f.IncludeDeleted {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	for _, tag := range f.Tags {
		if !r.HasTag(tag) {
			return false
		}
	}
	if f.Favorite != nil && r.Favorite != *f.Favorite {
		return false
	}
	if f.Archived != nil && r.Archived != *f.Archived {
		return false
	}
	if !f.Since.IsZero() && r.UpdatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.UpdatedAt.Before(f.Until) {
		return false
	}
	return true
}

// ScanError records a single record skipped during a scan.
type ScanError struct {
	Key string
	Err error
}

// ScanReport collects per-record errors encountered during ListFiltered and
// Search scans. Corrupt records are skipped and reported here instead of
// aborting the whole scan. Safe for concurrent use; a nil *ScanReport
// discards everything.
type ScanReport struct {
	mu   sync.Mutex
	errs []ScanError
}

// Report records a skipped record. Nil-safe.
func (r *ScanReport) Report(key string, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, ScanError{Key: key, Err: err})
}

// Errs returns the collected errors.
func (r *ScanReport) Errs() []ScanError {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScanError(nil), r.errs...)
}

// Len returns the number of collected errors.
func (r *ScanReport) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// Backend is the uniform contract both storage engines implement. The store
// facade routes all persistence through exactly one active Backend at a time.
//
// Implementations must be thread-safe. Sequences returned by ListFiltered
// and Search are lazy, finite and restartable: each range performs a fresh
// scan.
type Backend interface {
	// Put upserts a record by ID, overwriting any previous version fully.
	Put(ctx context.Context, record *core.Record) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*core.Record, error)

	// Delete removes a record by ID. Idempotent: deleting a missing ID is
	// not an error.
	Delete(ctx context.Context, id string) error

	// BulkPut upserts all records in a single transaction. Either every
	// record is committed or none are; partial application is never
	// observable.
	BulkPut(ctx context.Context, records []*core.Record) error

	// ListFiltered yields records satisfying the filter, ordered by
	// UpdatedAt descending (ties broken by ID ascending). Corrupt records
	// are skipped and reported to rep, which may be nil.
	ListFiltered(ctx context.Context, f Filter, rep *ScanReport) iter.Seq[*core.Record]

	// Search yields scored matches for the query over title, body and tags.
	// Tombstoned records never match. Relevance scoring is backend-specific;
	// each Match reports the tier that produced it.
	Search(ctx context.Context, query string, rep *ScanReport) iter.Seq[*Match]

	// TagCounts returns the number of live records carrying each tag.
	TagCounts(ctx context.Context) (map[string]int, error)

	// Kind identifies the engine.
	Kind() Kind

	// Clear removes every record. Used to roll back a failed migration.
	Clear(ctx context.Context) error

	// Close closes the backend and releases resources.
	Close() error
}
