package graph

import (
	"errors"
	"testing"

	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func friend(a, b model.ID) model.Edge { return model.Edge{Source: a, Target: b, Kind: model.EdgeFriend} }
func group(a, b model.ID) model.Edge  { return model.Edge{Source: a, Target: b, Kind: model.EdgeGroup} }

func recordWith(seed model.ID, ids []model.ID, edges ...model.Edge) *model.CrawlRecord {
	rec := model.NewCrawlRecord(seed, 2)
	for _, id := range ids {
		rec.Nodes = append(rec.Nodes, model.Node{ID: id, Seed: id == seed})
	}
	rec.Edges = edges
	return rec
}

func TestBuild_CollapsesAndCanonicalises(t *testing.T) {
	rec := recordWith(1, []model.ID{1, 2, 3, 4},
		friend(1, 2), friend(1, 3),
		friend(2, 1), friend(2, 3), friend(2, 4),
		friend(3, 1), friend(3, 2),
		group(3, 2),
	)

	snap, err := Build(rec)
	require.NoError(t, err)

	assert.Equal(t, []model.Edge{
		friend(1, 2), friend(1, 3), friend(2, 3), group(2, 3), friend(2, 4),
	}, snap.Edges())
	assert.Equal(t, []model.ID{1, 3, 4}, snap.Neighbors(2, model.EdgeFriend))
	assert.Equal(t, []model.ID{3}, snap.Neighbors(2, model.EdgeGroup))
	assert.Equal(t, []model.ID{1, 3, 4}, snap.AdjacentIDs(2))
}

func TestBuild_DropsDanglingSelfLoopsAndUnknownKinds(t *testing.T) {
	rec := recordWith(1, []model.ID{1, 2},
		friend(1, 2), friend(1, 99), friend(98, 2), friend(1, 1),
		model.Edge{Source: 1, Target: 2, Kind: "follows"},
	)

	snap, err := Build(rec)
	require.NoError(t, err)

	require.Equal(t, 1, snap.EdgeCount())
	for _, e := range snap.Edges() {
		assert.True(t, snap.HasNode(e.Source))
		assert.True(t, snap.HasNode(e.Target))
	}
	assert.Empty(t, snap.Neighbors(99, model.EdgeFriend))
}

func TestBuild_MissingSeed(t *testing.T) {
	rec := recordWith(1, []model.ID{2, 3}, friend(2, 3))

	_, err := Build(rec)
	var integrityErr *DataIntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, model.ID(1), integrityErr.Seed)
}

func TestBuild_NodesSortedAndDeduplicated(t *testing.T) {
	rec := recordWith(5, []model.ID{5, 3, 9, 3})
	rec.Profiles[3] = model.ProfileRecord{ID: 3, Label: "c", Games: []uint32{1}}
	rec.Profiles[77] = model.ProfileRecord{ID: 77}
	rec.Groups[9] = []model.ID{20, 10}

	snap, err := Build(rec)
	require.NoError(t, err)

	assert.Equal(t, []model.ID{3, 5, 9}, snap.NodeIDs())
	assert.Equal(t, model.ID(5), snap.Seed())
	assert.Equal(t, []model.ID{10, 20}, snap.Groups(9))

	_, ok := snap.Profile(77)
	assert.False(t, ok, "profiles of absent nodes are not carried")

	p, ok := snap.Profile(3)
	require.True(t, ok)
	p.Games[0] = 42
	again, _ := snap.Profile(3)
	assert.Equal(t, uint32(1), again.Games[0], "snapshot is immutable through accessors")
}
