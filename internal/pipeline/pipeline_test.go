package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/crawler"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/alvmarrod/steam-weaver/internal/steam/steamtest"
	"github.com/alvmarrod/steam-weaver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// abcd: A-{B,C}, B-{A,C,D}, C-{A,B}, D private
func abcd() *steamtest.Fake {
	f := steamtest.New()
	f.AddPublic(1, "A", 2, 3)
	f.AddPublic(2, "B", 1, 3, 4)
	f.AddPublic(3, "C", 1, 2)
	f.AddPrivate(4, "D")
	f.Vanity["alpha"] = 1
	return f
}

func setup(t *testing.T, source Source, depth int) (Deps, *storage.Storage) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Depth = depth
	cfg.CheckpointEvery = 1
	cfg.OutputDir = filepath.Join(dir, "outputs")

	store, err := storage.NewStorage(filepath.Join(dir, "weaver.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return Deps{
		Config: cfg,
		Source: source,
		Store:  store,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}, store
}

func TestScan_EndToEnd(t *testing.T) {
	deps, store := setup(t, abcd(), 2)

	res, err := Scan(context.Background(), deps, "alpha")
	require.NoError(t, err)

	assert.Equal(t, model.ID(1), res.Seed)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Nodes)
	assert.Equal(t, 4, res.Edges)
	assert.Equal(t, []model.ID{2}, res.Hubs)
	require.NotEmpty(t, res.Associates)
	assert.Equal(t, model.ID(4), res.Associates[0].Candidate)

	for _, p := range []string{res.Paths.NodesCSV, res.Paths.EdgesCSV, res.Paths.AssociatesCSV, res.Paths.RawJSON} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	stored, err := store.LoadCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, res.RunID, stored.RunID)
}

func TestScan_InterruptedThenResumed(t *testing.T) {
	first := abcd()
	deps, store := setup(t, first, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first.CancelAfter = 1
	first.Bind(cancel)

	res, err := Scan(ctx, deps, "1")
	require.ErrorIs(t, err, crawler.ErrInterrupted)
	require.NotNil(t, res)
	assert.Equal(t, model.StatusPaused, res.Record.Status)

	_, err = os.Stat(deps.Config.OutputDir)
	assert.True(t, os.IsNotExist(err), "an interrupted scan exports nothing")

	info, err := store.LatestResumable(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "1", info.Seed)

	deps.Source = abcd()
	resumed, err := Resume(context.Background(), deps, "")
	require.NoError(t, err)
	assert.Equal(t, res.RunID, resumed.RunID)
	assert.Equal(t, 4, resumed.Nodes)
	assert.Equal(t, []model.ID{2}, resumed.Hubs)

	info, err = store.LatestResumable(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestScan_DepthOneKeepsEdgesBetweenFriends(t *testing.T) {
	triangle := steamtest.New()
	triangle.AddPublic(1, "A", 2, 3)
	triangle.AddPublic(2, "B", 1, 3)
	triangle.AddPublic(3, "C", 1, 2)
	deps, _ := setup(t, triangle, 1)

	res, err := Scan(context.Background(), deps, "1")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Nodes)
	assert.Equal(t, 3, res.Edges)
	assert.Contains(t, res.Record.Edges, model.Edge{Source: 2, Target: 3, Kind: model.EdgeFriend})

	var found bool
	for _, s := range res.Associates {
		if s.Candidate == 2 {
			found = true
			assert.Equal(t, 1, s.Mutual)
			assert.Greater(t, s.Score, 0.0)
		}
	}
	assert.True(t, found, "B is ranked")
}

func TestScan_ReplacesUnfinishedCrawl(t *testing.T) {
	first := abcd()
	deps, store := setup(t, first, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first.CancelAfter = 1
	first.Bind(cancel)

	paused, err := Scan(ctx, deps, "1")
	require.ErrorIs(t, err, crawler.ErrInterrupted)

	deps.Source = abcd()
	fresh, err := Scan(context.Background(), deps, "1")
	require.NoError(t, err)
	assert.NotEqual(t, paused.RunID, fresh.RunID)
	assert.Equal(t, 4, fresh.Nodes)

	info, err := store.LatestResumable(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)

	stored, err := store.LoadCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, fresh.RunID, stored.RunID)
}

func TestResume_DeeperThanCompletedRun(t *testing.T) {
	deps, _ := setup(t, abcd(), 1)

	shallow, err := Scan(context.Background(), deps, "1")
	require.NoError(t, err)
	assert.Equal(t, 3, shallow.Nodes)
	assert.Equal(t, 3, shallow.Edges, "B-C is kept at the boundary")

	deps.Config.Depth = 2
	deep, err := Resume(context.Background(), deps, "1")
	require.NoError(t, err)
	assert.Equal(t, 4, deep.Nodes)
	assert.NotEqual(t, shallow.Paths.Dir, deep.Paths.Dir)
}

func TestResume_NothingStored(t *testing.T) {
	deps, _ := setup(t, abcd(), 2)

	_, err := Resume(context.Background(), deps, "")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	_, err = Resume(context.Background(), deps, "1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRebuild_ReproducesOutputs(t *testing.T) {
	source := abcd()
	deps, _ := setup(t, source, 2)

	scanned, err := Scan(context.Background(), deps, "1")
	require.NoError(t, err)
	fetches := len(source.Calls("GetFriends"))

	rebuilt, err := Rebuild(context.Background(), deps, 1)
	require.NoError(t, err)
	assert.Equal(t, fetches, len(source.Calls("GetFriends")), "rebuild never fetches")
	assert.NotEqual(t, scanned.Paths.Dir, rebuilt.Paths.Dir)

	for _, pick := range []func(r *Result) string{
		func(r *Result) string { return r.Paths.NodesCSV },
		func(r *Result) string { return r.Paths.EdgesCSV },
		func(r *Result) string { return r.Paths.AssociatesCSV },
	} {
		want, err := os.ReadFile(pick(scanned))
		require.NoError(t, err)
		got, err := os.ReadFile(pick(rebuilt))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}

	_, err = Rebuild(context.Background(), deps, 99)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestDryRun_Estimates(t *testing.T) {
	source := abcd()
	deps, _ := setup(t, source, 2)

	est, err := DryRun(context.Background(), deps, "alpha")
	require.NoError(t, err)
	assert.Equal(t, model.ID(1), est.Seed)
	assert.True(t, est.SeedPublic)
	assert.Equal(t, 2, est.SeedFriends)
	assert.Empty(t, source.Calls("GetGroups"))

	_, err = os.Stat(deps.Config.OutputDir)
	assert.True(t, os.IsNotExist(err))
}
