package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewID generates a new unique record identifier.
// IDs are UUIDv4 strings, assigned once at creation and immutable.
func NewID() string {
	return uuid.NewString()
}

// ContentHash generates a deterministic hash of a record's searchable content
// using BLAKE2b hashing. Two records with identical title and body produce
// identical hashes, which lets the synchronizer skip no-op remote updates.
func ContentHash(title, body string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(title))
	h.Write([]byte{0}) // separator so ("ab","c") != ("a","bc")
	h.Write([]byte(body))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// SyncState tags a record's relationship to the remote source of truth.
// Transitions between states are owned exclusively by the synchronizer;
// the store only ever assigns SyncLocalOnly (create) and SyncPendingPush
// (local mutation).
type SyncState int

const (
	// SyncLocalOnly marks a record that has never been pushed to the remote.
	SyncLocalOnly SyncState = iota + 1
	// SyncSynced marks a record identical to its remote counterpart.
	SyncSynced
	// SyncPendingPush marks a record with local changes awaiting upload.
	SyncPendingPush
	// SyncConflict marks a record whose local and remote versions diverged.
	// The record keeps both contents until explicitly resolved.
	SyncConflict
)

// String returns the wire/debug name of the state.
func (s SyncState) String() string {
	switch s {
	case SyncLocalOnly:
		return "local_only"
	case SyncSynced:
		return "synced"
	case SyncPendingPush:
		return "pending_push"
	case SyncConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// RemoteRevision is the last-known remote content of a record, cached
// alongside the local content while the record is in conflict.
type RemoteRevision struct {
	Title     string
	Body      string
	Version   string
	UpdatedAt time.Time
}

// Record is the stored unit: a note or article with metadata, flags and
// synchronization state. Records survive backend switches intact; the ID is
// the stable identity across both backends.
type Record struct {
	Id       string
	Title    string
	Body     string
	Tags     []string
	Category string

	CreatedAt time.Time
	UpdatedAt time.Time // monotonically non-decreasing across mutations

	Favorite bool
	Archived bool
	Deleted  bool // tombstone; hard purge only after a confirmed sync cycle

	SyncState     SyncState
	RemoteVersion string          // opaque version token from the remote source
	Conflict      *RemoteRevision // non-nil only while SyncState == SyncConflict
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	if r.Conflict != nil {
		rc := *r.Conflict
		c.Conflict = &rc
	}
	return &c
}

// HasTag reports whether the record carries the given tag.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Hash returns the content hash of the record's title and body.
func (r *Record) Hash() uint64 {
	return ContentHash(r.Title, r.Body)
}
