package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord() *model.CrawlRecord {
	rec := model.NewCrawlRecord(1, 2)
	rec.RunID = "run-a"
	rec.Nodes = []model.Node{
		{ID: 1, Depth: 0, Seed: true, Frontier: true, Expanded: true, GroupsFetched: true},
		{ID: 2, Depth: 1, Frontier: true},
		{ID: 3, Depth: 1, Frontier: true, GamesFetched: true, BansFetched: true},
	}
	rec.Profiles[1] = model.ProfileRecord{ID: 1, Label: "alpha, the first", Visibility: model.VisibilityPublic}
	rec.Profiles[3] = model.ProfileRecord{ID: 3, Label: "gamma", Visibility: model.VisibilityPrivate, Banned: true, VACBans: 1, Games: []uint32{10, 440}}
	rec.Groups[1] = []model.ID{700, 500}
	rec.Edges = []model.Edge{
		{Source: 1, Target: 2, Kind: model.EdgeFriend},
		{Source: 1, Target: 3, Kind: model.EdgeFriend},
		{Source: 1, Target: 99, Kind: model.EdgeFriend},
	}
	rec.Queue = []model.QueueEntry{{ID: 2, Depth: 1}, {ID: 3, Depth: 1}}
	rec.Visited = []model.ID{1}
	return rec
}

func TestStorage_CheckpointRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, store.SaveCheckpoint(ctx, rec))

	loaded, err := store.LoadCheckpoint(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "run-a", loaded.RunID)
	assert.Equal(t, 2, loaded.MaxDepth)
	assert.Equal(t, model.StatusRunning, loaded.Status)
	assert.Equal(t, rec.Nodes, loaded.Nodes)
	assert.Equal(t, rec.Profiles, loaded.Profiles)
	assert.Equal(t, []model.ID{500, 700}, loaded.Groups[1])
	assert.Equal(t, rec.Edges, loaded.Edges)
	assert.Equal(t, rec.Queue, loaded.Queue)
	assert.Equal(t, rec.Visited, loaded.Visited)
}

func TestStorage_SaveReplacesPreviousCheckpoint(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCheckpoint(ctx, sampleRecord()))

	next := sampleRecord()
	next.Status = model.StatusCompleted
	next.Queue = nil
	next.Visited = []model.ID{1, 2, 3}
	next.Edges = next.Edges[:1]
	require.NoError(t, store.SaveCheckpoint(ctx, next))

	loaded, err := store.LoadCheckpoint(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	assert.Empty(t, loaded.Queue)
	assert.Len(t, loaded.Edges, 1)
	assert.Equal(t, []model.ID{1, 2, 3}, loaded.Visited)
}

func TestStorage_FailedSaveKeepsPreviousCheckpoint(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.SaveCheckpoint(context.Background(), sampleRecord()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := sampleRecord()
	next.Status = model.StatusCompleted
	assert.Error(t, store.SaveCheckpoint(ctx, next))

	loaded, err := store.LoadCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, loaded.Status)
	assert.Len(t, loaded.Queue, 2)
}

func TestStorage_MissingCheckpoint(t *testing.T) {
	store := newTestStorage(t)

	loaded, err := store.LoadCheckpoint(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStorage_LatestResumableAndDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	info, err := store.LatestResumable(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)

	done := sampleRecord()
	done.Seed = 9
	done.Status = model.StatusCompleted
	require.NoError(t, store.SaveCheckpoint(ctx, done))

	paused := sampleRecord()
	paused.Status = model.StatusPaused
	require.NoError(t, store.SaveCheckpoint(ctx, paused))

	info, err = store.LatestResumable(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "1", info.Seed)
	assert.Equal(t, 3, info.NodeCount)
	assert.Equal(t, 2, info.QueueSize)

	require.NoError(t, store.DeleteCheckpoint(ctx, 1))
	loaded, err := store.LoadCheckpoint(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	info, err = store.LatestResumable(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)
}
