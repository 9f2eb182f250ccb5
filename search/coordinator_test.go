package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/remote"
	"github.com/poiesic/notekit/remote/mock"
	"github.com/poiesic/notekit/storage"
	"github.com/poiesic/notekit/storage/badger"
)

type staticProvider struct {
	backend storage.Backend
}

func (p *staticProvider) Backend() storage.Backend { return p.backend }

func newTestProvider(t *testing.T) *staticProvider {
	t.Helper()
	backend, err := badger.NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return &staticProvider{backend: backend}
}

func putRecord(t *testing.T, backend storage.Backend, id, title, body string, tags []string, updated time.Time) {
	t.Helper()
	record := &core.Record{
		Id:        id,
		Title:     title,
		Body:      body,
		Tags:      tags,
		CreatedAt: updated,
		UpdatedAt: updated,
		SyncState: core.SyncLocalOnly,
	}
	require.NoError(t, backend.Put(context.Background(), record))
}

func TestNewCoordinatorRequiresProvider(t *testing.T) {
	_, err := NewCoordinator(nil, nil)
	require.ErrorIs(t, err, ErrBackendProviderRequired)
}

func TestParseScope(t *testing.T) {
	for name, want := range map[string]Scope{
		"local":  ScopeLocal,
		"remote": ScopeRemote,
		"hybrid": ScopeHybrid,
	} {
		got, err := ParseScope(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseScope("global")
	require.ErrorIs(t, err, ErrUnknownScope)
}

func TestLocalScope(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	putRecord(t, provider.backend, "n1", "storage patterns", "notes on layout", nil, now)
	putRecord(t, provider.backend, "n2", "weather demo", "sunny outlook", nil, now)

	coordinator, err := NewCoordinator(provider, nil)
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeLocal)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "n1", results[0].Record.Id)
	assert.Equal(t, storage.TierScan, results[0].Tier)
}

func TestRemoteScopeWithoutSource(t *testing.T) {
	coordinator, err := NewCoordinator(newTestProvider(t), nil)
	require.NoError(t, err)

	_, err = coordinator.Search(context.Background(), "anything", ScopeRemote)
	require.ErrorIs(t, err, ErrNoRemoteSource)
}

func TestRemoteScope(t *testing.T) {
	source := mock.NewMockSource(
		remote.Record{ID: "r1", Title: "storage deep dive", Version: "2", UpdatedAt: time.Now()},
		remote.Record{ID: "r2", Title: "storage basics", Deleted: true, UpdatedAt: time.Now()},
	)

	coordinator, err := NewCoordinator(newTestProvider(t), source)
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeRemote)
	require.NoError(t, err)
	require.Len(t, results, 1, "deleted remote records must not surface")
	assert.Equal(t, "r1", results[0].Record.Id)
	assert.Equal(t, core.SyncSynced, results[0].Record.SyncState)
	assert.Equal(t, "2", results[0].Record.RemoteVersion)
	assert.InDelta(t, storage.WeightTitle, results[0].Score, 1e-9)
}

func TestHybridSkipsRemoteWhenLocalSufficient(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	putRecord(t, provider.backend, "n1", "storage alpha", "", nil, now)
	putRecord(t, provider.backend, "n2", "storage beta", "", nil, now)

	source := mock.NewMockSource(
		remote.Record{ID: "r1", Title: "storage remote", UpdatedAt: now},
	)

	coordinator, err := NewCoordinator(provider, source, WithMinLocalHits(2))
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, match := range results {
		assert.NotEqual(t, "r1", match.Record.Id)
	}
}

func TestHybridSupplementsAndDeduplicates(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	putRecord(t, provider.backend, "shared", "storage local copy", "local body", nil, now)

	source := mock.NewMockSource(
		// Same id remotely: the local copy must win.
		remote.Record{ID: "shared", Title: "storage remote copy", UpdatedAt: now.Add(time.Hour)},
		remote.Record{ID: "extra", Title: "storage extra", UpdatedAt: now.Add(-time.Hour)},
	)

	coordinator, err := NewCoordinator(provider, source, WithMinLocalHits(5))
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := make(map[string]*storage.Match, len(results))
	for _, match := range results {
		byID[match.Record.Id] = match
	}
	require.Contains(t, byID, "shared")
	require.Contains(t, byID, "extra")
	assert.Equal(t, "storage local copy", byID["shared"].Record.Title)
}

func TestHybridDegradesOnRemoteFailure(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	putRecord(t, provider.backend, "n1", "storage alpha", "", nil, now)

	source := mock.NewMockSource()
	source.FetchErr = errors.New("remote down")

	coordinator, err := NewCoordinator(provider, source, WithMinLocalHits(5))
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "n1", results[0].Record.Id)
}

func TestDeterministicOrdering(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	// Same score (title hit), same timestamp: id ascending breaks the tie.
	putRecord(t, provider.backend, "b", "storage", "", nil, now)
	putRecord(t, provider.backend, "a", "storage", "", nil, now)
	// Newer record with the same score sorts first.
	putRecord(t, provider.backend, "c", "storage", "", nil, now.Add(time.Minute))

	coordinator, err := NewCoordinator(provider, nil)
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeLocal)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].Record.Id)
	assert.Equal(t, "a", results[1].Record.Id)
	assert.Equal(t, "b", results[2].Record.Id)
}

func TestLimit(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	putRecord(t, provider.backend, "n1", "storage one", "", nil, now)
	putRecord(t, provider.backend, "n2", "storage two", "", nil, now)
	putRecord(t, provider.backend, "n3", "storage three", "", nil, now)

	coordinator, err := NewCoordinator(provider, nil, WithLimit(2))
	require.NoError(t, err)

	results, err := coordinator.Search(context.Background(), "storage", ScopeLocal)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

type recordingMonitor struct {
	started    bool
	scope      Scope
	localHits  int
	remoteHits int
	finished   int
}

func (m *recordingMonitor) Start(_ string, scope Scope)         { m.started = true; m.scope = scope }
func (m *recordingMonitor) AfterLocalSearch(_ []*storage.Match) {}
func (m *recordingMonitor) AfterRemoteFetch(_ []remote.Record)  {}
func (m *recordingMonitor) LocalHit(_ *storage.Match)           { m.localHits++ }
func (m *recordingMonitor) RemoteHit(_ *storage.Match)          { m.remoteHits++ }
func (m *recordingMonitor) Finish(results []*storage.Match)     { m.finished = len(results) }

func TestMonitorCallbacks(t *testing.T) {
	provider := newTestProvider(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	putRecord(t, provider.backend, "n1", "storage local", "", nil, now)

	source := mock.NewMockSource(
		remote.Record{ID: "r1", Title: "storage remote", UpdatedAt: now},
	)

	coordinator, err := NewCoordinator(provider, source, WithMinLocalHits(5))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	results, err := coordinator.SearchWithMonitor(context.Background(), "storage", ScopeHybrid, monitor)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, monitor.started)
	assert.Equal(t, ScopeHybrid, monitor.scope)
	assert.Equal(t, 1, monitor.localHits)
	assert.Equal(t, 1, monitor.remoteHits)
	assert.Equal(t, 2, monitor.finished)
}
