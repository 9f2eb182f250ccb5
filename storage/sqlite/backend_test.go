package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func makeRecord(title, body string, tags ...string) *core.Record {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &core.Record{
		Id:        core.NewID(),
		Title:     title,
		Body:      body,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
		SyncState: core.SyncLocalOnly,
	}
}

func TestOpenBackend_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	backend, err := OpenBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	assert.Equal(t, storage.KindRelational, backend.Kind())
}

func TestPutGet_RoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	record := makeRecord("Flutter Notes", "storage patterns", "dart", "storage")
	record.Category = "engineering"
	record.Favorite = true
	record.RemoteVersion = "etag-9"
	require.NoError(t, backend.Put(ctx, record))

	got, err := backend.Get(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestPutGet_ConflictCache(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	record := makeRecord("local", "local body")
	record.SyncState = core.SyncConflict
	record.Conflict = &core.RemoteRevision{
		Title:     "remote",
		Body:      "remote body",
		Version:   "v7",
		UpdatedAt: now,
	}
	require.NoError(t, backend.Put(ctx, record))

	got, err := backend.Get(ctx, record.Id)
	require.NoError(t, err)
	require.NotNil(t, got.Conflict)
	assert.Equal(t, record.Conflict, got.Conflict)
}

func TestGet_NotFound(t *testing.T) {
	backend := newTestBackend(t)

	_, err := backend.Get(context.Background(), core.NewID())
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDelete_Idempotent(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	record := makeRecord("to delete", "", "tag")
	require.NoError(t, backend.Put(ctx, record))

	require.NoError(t, backend.Delete(ctx, record.Id))
	require.NoError(t, backend.Delete(ctx, record.Id))
	require.NoError(t, backend.Delete(ctx, core.NewID()))

	_, err := backend.Get(ctx, record.Id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestBulkPut_RollsBackMidway(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	good := makeRecord("good", "")
	// Duplicate tag violates the join table primary key partway through
	bad := makeRecord("bad", "", "dup", "dup")

	err := backend.BulkPut(ctx, []*core.Record{good, bad})
	require.Error(t, err)

	// The whole batch rolled back, including the record written before the
	// failure
	_, err = backend.Get(ctx, good.Id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListFiltered_OrderAndFilter(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	oldest := makeRecord("oldest", "")
	oldest.UpdatedAt = base.Add(-2 * time.Hour)
	middle := makeRecord("middle", "", "keep")
	middle.UpdatedAt = base.Add(-1 * time.Hour)
	newest := makeRecord("newest", "", "keep")
	newest.UpdatedAt = base

	require.NoError(t, backend.BulkPut(ctx, []*core.Record{oldest, middle, newest}))

	var titles []string
	for r := range backend.ListFiltered(ctx, storage.Filter{}, nil) {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"newest", "middle", "oldest"}, titles)

	var tagged []string
	for r := range backend.ListFiltered(ctx, storage.Filter{Tags: []string{"keep"}}, nil) {
		tagged = append(tagged, r.Title)
	}
	assert.Equal(t, []string{"newest", "middle"}, tagged)
}

func TestListFiltered_ExcludesTombstones(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	live := makeRecord("live", "")
	dead := makeRecord("dead", "")
	dead.Deleted = true
	require.NoError(t, backend.BulkPut(ctx, []*core.Record{live, dead}))

	var titles []string
	for r := range backend.ListFiltered(ctx, storage.Filter{}, nil) {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"live"}, titles)
}

func TestSearch_FullTextTier(t *testing.T) {
	backend := newTestBackend(t)
	if !backend.FullTextEnabled() {
		t.Skip("FTS5 not available in this build")
	}
	ctx := context.Background()

	record := makeRecord("Flutter Notes", "storage patterns", "dart", "storage")
	other := makeRecord("Grocery List", "milk and eggs")
	require.NoError(t, backend.BulkPut(ctx, []*core.Record{record, other}))

	var matches []*storage.Match
	for m := range backend.Search(ctx, "storage", nil) {
		matches = append(matches, m)
	}
	require.Len(t, matches, 1)
	assert.Equal(t, record.Id, matches[0].Record.Id)
	assert.Equal(t, storage.TierFullText, matches[0].Tier)
}

func TestSearch_MidWordQueryMatches(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	record := makeRecord("Flutter Notes", "storage patterns", "dart", "storage")
	other := makeRecord("Grocery List", "milk and eggs")
	require.NoError(t, backend.BulkPut(ctx, []*core.Record{record, other}))

	// "torag" hits no token prefix, so the FTS index alone would miss it; the
	// scan tier has to supply it so membership matches the key-value engine.
	var matches []*storage.Match
	for m := range backend.Search(ctx, "torag", nil) {
		matches = append(matches, m)
	}
	require.Len(t, matches, 1)
	assert.Equal(t, record.Id, matches[0].Record.Id)
	assert.Equal(t, storage.TierScan, matches[0].Tier)
}

func TestSearch_FallbackTier(t *testing.T) {
	backend := newTestBackend(t)
	backend.fts = false // simulate a build without FTS5
	ctx := context.Background()

	record := makeRecord("Flutter Notes", "storage patterns", "dart", "storage")
	require.NoError(t, backend.Put(ctx, record))

	var matches []*storage.Match
	for m := range backend.Search(ctx, "storage", nil) {
		matches = append(matches, m)
	}
	require.Len(t, matches, 1)
	assert.Equal(t, storage.TierScan, matches[0].Tier)
	// tag match (2) + body match (1), same formula as the key-value engine
	assert.Equal(t, storage.WeightTags+storage.WeightBody, matches[0].Score)
}

func TestSearch_TitleMatchAppears(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	record := makeRecord("Grocery List", "milk and eggs")
	require.NoError(t, backend.Put(ctx, record))

	found := false
	for m := range backend.Search(ctx, "Grocery List", nil) {
		if m.Record.Id == record.Id {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearch_SkipsTombstones(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	dead := makeRecord("findable", "")
	dead.Deleted = true
	require.NoError(t, backend.Put(ctx, dead))

	count := 0
	for range backend.Search(ctx, "findable", nil) {
		count++
	}
	assert.Equal(t, 0, count)
}

func TestTagCounts(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	r1 := makeRecord("one", "", "go", "notes")
	r2 := makeRecord("two", "", "go")
	dead := makeRecord("three", "", "go")
	dead.Deleted = true
	require.NoError(t, backend.BulkPut(ctx, []*core.Record{r1, r2, dead}))

	counts, err := backend.TagCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"go": 2, "notes": 1}, counts)
}

func TestClear(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, makeRecord("gone", "", "tag")))
	require.NoError(t, backend.Clear(ctx))

	count := 0
	for range backend.ListFiltered(ctx, storage.Filter{IncludeDeleted: true}, nil) {
		count++
	}
	assert.Equal(t, 0, count)

	counts, err := backend.TagCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}
