package notekit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/storage"
)

func newTestStore(t *testing.T, backend string, opts ...Option) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = backend
	cfg.Badger.InMemory = true
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store, err := Open(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strptr(s string) *string { return &s }

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "mongodb"
	cfg.Badger.InMemory = true
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	_, err := Open(cfg)
	require.ErrorIs(t, err, ErrUnknownBackendKind)
}

func TestCreateAssignsIdentity(t *testing.T) {
	store := newTestStore(t, "badger")

	record, err := store.Create(context.Background(), Draft{
		Title: "Flutter Notes",
		Body:  "storage patterns",
		Tags:  []string{"dart", "storage"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.Id)
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	assert.Equal(t, core.SyncLocalOnly, record.SyncState)

	got, err := store.Get(context.Background(), record.Id)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestCreateRequiresTitle(t *testing.T) {
	store := newTestStore(t, "badger")

	_, err := store.Create(context.Background(), Draft{Body: "no title"})
	require.ErrorIs(t, err, core.ErrEmptyTitle)
}

func TestUpdatePatchesFields(t *testing.T) {
	store := newTestStore(t, "badger")

	created, err := store.Create(context.Background(), Draft{Title: "before", Body: "body"})
	require.NoError(t, err)

	updated, err := store.Update(context.Background(), created.Id, Patch{Title: strptr("after")})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, "body", updated.Body, "unpatched fields must survive")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, core.SyncLocalOnly, updated.SyncState, "a never-pushed record stays local-only")
}

func TestUpdateMarksSyncedRecordPending(t *testing.T) {
	store := newTestStore(t, "badger")

	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.Record{
		Id:            core.NewID(),
		Title:         "synced",
		CreatedAt:     now,
		UpdatedAt:     now,
		SyncState:     core.SyncSynced,
		RemoteVersion: "5",
	}
	require.NoError(t, store.Apply(context.Background(), record))

	updated, err := store.Update(context.Background(), record.Id, Patch{Body: strptr("edited")})
	require.NoError(t, err)
	assert.Equal(t, core.SyncPendingPush, updated.SyncState)
	assert.Equal(t, "5", updated.RemoteVersion)
}

func TestUpdateMissingRecord(t *testing.T) {
	store := newTestStore(t, "badger")

	_, err := store.Update(context.Background(), "nope", Patch{Title: strptr("x")})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateConflictedRecordRejected(t *testing.T) {
	store := newTestStore(t, "badger")
	id := applyConflicted(t, store)

	_, err := store.Update(context.Background(), id, Patch{Title: strptr("x")})
	require.ErrorIs(t, err, ErrRecordInConflict)
}

func TestDeleteTombstones(t *testing.T) {
	store := newTestStore(t, "badger")

	created, err := store.Create(context.Background(), Draft{Title: "doomed"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), created.Id))
	require.NoError(t, store.Delete(context.Background(), created.Id), "delete must be idempotent")
	require.NoError(t, store.Delete(context.Background(), "never-existed"))

	got, err := store.Get(context.Background(), created.Id)
	require.NoError(t, err, "a tombstone is still readable by id")
	assert.True(t, got.Deleted)

	records, err := store.List(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records, "tombstones are hidden from listings")
}

func TestPurgeErases(t *testing.T) {
	store := newTestStore(t, "badger")

	created, err := store.Create(context.Background(), Draft{Title: "gone for good"})
	require.NoError(t, err)

	require.NoError(t, store.Purge(context.Background(), created.Id))
	require.NoError(t, store.Purge(context.Background(), created.Id))

	_, err = store.Get(context.Background(), created.Id)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTags(t *testing.T) {
	store := newTestStore(t, "badger")

	_, err := store.Create(context.Background(), Draft{Title: "a", Tags: []string{"go", "notes"}})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), Draft{Title: "b", Tags: []string{"go"}})
	require.NoError(t, err)

	counts, err := store.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"go": 2, "notes": 1}, counts)
}

// applyConflicted plants a record parked in conflict state.
func applyConflicted(t *testing.T, store *Store) string {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.Record{
		Id:            core.NewID(),
		Title:         "local title",
		Body:          "local body",
		CreatedAt:     now,
		UpdatedAt:     now,
		SyncState:     core.SyncConflict,
		RemoteVersion: "1",
		Conflict: &core.RemoteRevision{
			Title:     "remote title",
			Body:      "remote body",
			Version:   "2",
			UpdatedAt: now.Add(time.Minute),
		},
	}
	require.NoError(t, store.Apply(context.Background(), record))
	return record.Id
}

func TestResolveConflictKeepLocal(t *testing.T) {
	store := newTestStore(t, "badger")
	id := applyConflicted(t, store)

	resolved, err := store.ResolveConflict(context.Background(), id, KeepLocal)
	require.NoError(t, err)
	assert.Equal(t, "local title", resolved.Title)
	assert.Equal(t, "local body", resolved.Body)
	assert.Equal(t, "2", resolved.RemoteVersion, "resolution acknowledges the remote version")
	assert.Equal(t, core.SyncPendingPush, resolved.SyncState)
	assert.Nil(t, resolved.Conflict)
}

func TestResolveConflictTakeRemote(t *testing.T) {
	store := newTestStore(t, "badger")
	id := applyConflicted(t, store)

	resolved, err := store.ResolveConflict(context.Background(), id, TakeRemote)
	require.NoError(t, err)
	assert.Equal(t, "remote title", resolved.Title)
	assert.Equal(t, "remote body", resolved.Body)
	assert.Equal(t, "2", resolved.RemoteVersion)
	assert.Equal(t, core.SyncSynced, resolved.SyncState)
	assert.Nil(t, resolved.Conflict)
}

func TestResolveNonConflictedRecord(t *testing.T) {
	store := newTestStore(t, "badger")

	created, err := store.Create(context.Background(), Draft{Title: "fine"})
	require.NoError(t, err)

	_, err = store.ResolveConflict(context.Background(), created.Id, KeepLocal)
	require.ErrorIs(t, err, ErrNotInConflict)
}

func TestSwitchBackendPreservesData(t *testing.T) {
	store := newTestStore(t, "badger")
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		record, err := store.Create(ctx, Draft{Title: title, Tags: []string{"keep"}})
		require.NoError(t, err)
		ids = append(ids, record.Id)
	}
	// Tombstones must survive the migration too.
	require.NoError(t, store.Delete(ctx, ids[2]))

	before, err := store.List(ctx, storage.Filter{IncludeDeleted: true})
	require.NoError(t, err)

	require.NoError(t, store.SwitchBackend(ctx, storage.KindRelational))
	assert.Equal(t, storage.KindRelational, store.ActiveKind())

	after, err := store.List(ctx, storage.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i], after[i])
	}

	// And back again.
	require.NoError(t, store.SwitchBackend(ctx, storage.KindKeyValue))
	assert.Equal(t, storage.KindKeyValue, store.ActiveKind())

	back, err := store.List(ctx, storage.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, before, back)
}

func TestSwitchBackendSameKindIsNoop(t *testing.T) {
	store := newTestStore(t, "badger")
	require.NoError(t, store.SwitchBackend(context.Background(), storage.KindKeyValue))
	assert.Equal(t, storage.KindKeyValue, store.ActiveKind())
}

func TestSearchMembershipMatchesAcrossBackends(t *testing.T) {
	ctx := context.Background()
	drafts := []Draft{
		{Title: "Flutter Notes", Body: "storage patterns", Tags: []string{"dart", "storage"}},
		{Title: "Weather demo", Body: "bloc and cubit", Tags: []string{"dart"}},
		{Title: "Storage engines", Body: "badger and sqlite", Tags: []string{"go"}},
	}

	matched := func(backend string) map[string]bool {
		store := newTestStore(t, backend)
		titles := make(map[string]bool)
		for _, draft := range drafts {
			_, err := store.Create(ctx, draft)
			require.NoError(t, err)
		}
		for match := range store.Backend().Search(ctx, "storage", nil) {
			titles[match.Record.Title] = true
		}
		return titles
	}

	assert.Equal(t, matched("badger"), matched("sqlite"),
		"both engines must agree on search membership")
}

type channelObserver struct {
	ch chan Mutation
}

func (o *channelObserver) RecordChanged(op Mutation, _ *core.Record) {
	o.ch <- op
}

func TestObserverNotified(t *testing.T) {
	observer := &channelObserver{ch: make(chan Mutation, 8)}
	store := newTestStore(t, "badger", WithObserver(observer))

	created, err := store.Create(context.Background(), Draft{Title: "watched"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(context.Background(), created.Id))

	seen := make(map[Mutation]bool)
	for len(seen) < 2 {
		select {
		case op := <-observer.ch:
			seen[op] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("observer callbacks missing, saw %v", seen)
		}
	}
	assert.True(t, seen[MutationCreate])
	assert.True(t, seen[MutationDelete])
}

type panickyObserver struct{}

func (panickyObserver) RecordChanged(Mutation, *core.Record) { panic("observer bug") }

func TestPanickingObserverDoesNotAffectMutation(t *testing.T) {
	store := newTestStore(t, "badger", WithObserver(panickyObserver{}))

	record, err := store.Create(context.Background(), Draft{Title: "sturdy"})
	require.NoError(t, err)

	got, err := store.Get(context.Background(), record.Id)
	require.NoError(t, err)
	assert.Equal(t, "sturdy", got.Title)
}
