package ranker

import (
	"testing"

	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/graph"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func friend(a, b model.ID) model.Edge { return model.Edge{Source: a, Target: b, Kind: model.EdgeFriend} }

func public(id model.ID, games ...uint32) model.ProfileRecord {
	return model.ProfileRecord{ID: id, Label: id.String(), Visibility: model.VisibilityPublic}.WithGames(games)
}

func build(t *testing.T, rec *model.CrawlRecord) *graph.Snapshot {
	t.Helper()
	snap, err := graph.Build(rec)
	require.NoError(t, err)
	return snap
}

func record(seed model.ID, ids []model.ID, edges ...model.Edge) *model.CrawlRecord {
	rec := model.NewCrawlRecord(seed, 2)
	for _, id := range ids {
		rec.Nodes = append(rec.Nodes, model.Node{ID: id, Seed: id == seed})
	}
	rec.Edges = edges
	return rec
}

func defaultWeights() config.Weights {
	return config.Weights{Mutual: 1, Jaccard: 1, Groups: 0.5, Games: 0}
}

func TestRank_EndToEndScenario(t *testing.T) {
	// A=1 B=2 C=3 D=4
	snap := build(t, record(1, []model.ID{1, 2, 3, 4}, friend(1, 2), friend(1, 3), friend(2, 3), friend(2, 4)))

	scores := New(defaultWeights()).Rank(snap, SeedNeighbors(snap))

	byID := make(map[model.ID]Score)
	for _, s := range scores {
		byID[s.Candidate] = s
	}
	require.Contains(t, byID, model.ID(3))
	assert.Equal(t, 1, byID[3].Mutual)
	// N(C)={A,B}, N(A)={B,C}: intersection {B}, union {A,B,C}
	assert.InDelta(t, 1.0/3.0, byID[3].Jaccard, 1e-9)

	assert.Equal(t, 1, byID[2].Mutual)
	assert.Equal(t, 1, byID[4].Mutual)
}

func TestRank_SortedAndDeterministic(t *testing.T) {
	snap := build(t, record(1, []model.ID{1, 2, 3, 4, 5, 6},
		friend(1, 2), friend(1, 3), friend(1, 4),
		friend(5, 2), friend(5, 3), friend(5, 4),
		friend(6, 2), friend(6, 3),
	))

	r := New(defaultWeights())
	first := r.Rank(snap, SeedNeighbors(snap))
	second := r.Rank(snap, SeedNeighbors(snap))
	assert.Equal(t, first, second)

	require.NotEmpty(t, first)
	assert.Equal(t, model.ID(5), first[0].Candidate)
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Candidate < cur.Candidate))
	}
}

func TestRank_EmptyNeighbourhoodsGiveZeroJaccard(t *testing.T) {
	snap := build(t, record(1, []model.ID{1, 2}))

	scores := New(config.Weights{Jaccard: 1}).Rank(snap, nil)
	assert.Empty(t, scores, "no overlap means no candidates")

	all := New(config.Weights{}).Rank(snap, SeedNeighbors(snap))
	assert.Empty(t, all)
}

func TestRank_SharedContextRequiresPublicProfiles(t *testing.T) {
	rec := record(1, []model.ID{1, 2, 3})
	rec.Profiles[1] = public(1, 10, 20)
	rec.Profiles[2] = public(2, 20, 30)
	rec.Profiles[3] = model.ProfileRecord{ID: 3, Visibility: model.VisibilityPrivate, Games: []uint32{10, 20}}
	rec.Groups[1] = []model.ID{100, 200}
	rec.Groups[2] = []model.ID{200}
	rec.Groups[3] = []model.ID{100, 200}
	snap := build(t, rec)

	scores := New(config.Weights{Groups: 1, Games: 1}).Rank(snap, SeedNeighbors(snap))

	require.Len(t, scores, 1)
	assert.Equal(t, model.ID(2), scores[0].Candidate)
	assert.Equal(t, 1, scores[0].SharedGroups)
	assert.Equal(t, 1, scores[0].SharedGames)
	assert.InDelta(t, 2.0, scores[0].Score, 1e-9)
}

func TestRank_PrivateSeedSharesNothing(t *testing.T) {
	rec := record(1, []model.ID{1, 2})
	rec.Profiles[1] = model.ProfileRecord{ID: 1, Visibility: model.VisibilityPrivate}
	rec.Profiles[2] = public(2)
	rec.Groups[1] = []model.ID{100}
	rec.Groups[2] = []model.ID{100}
	snap := build(t, rec)

	assert.Empty(t, New(config.Weights{Groups: 1}).Rank(snap, SeedNeighbors(snap)))
}

func TestRank_ExcludesSeed(t *testing.T) {
	snap := build(t, record(1, []model.ID{1, 2, 3}, friend(1, 2), friend(2, 3), friend(1, 3)))

	for _, s := range New(defaultWeights()).Rank(snap, SeedNeighbors(snap)) {
		assert.NotEqual(t, model.ID(1), s.Candidate)
	}
}
