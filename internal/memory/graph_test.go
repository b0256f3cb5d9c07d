package memory

import (
	"testing"

	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGraph_AddNodeKeepsFirstDiscovery(t *testing.T) {
	mg := NewMemoryGraph(1)

	assert.True(t, mg.AddNode(1, 0))
	assert.True(t, mg.AddNode(5, 1))
	assert.False(t, mg.AddNode(5, 2))

	n, ok := mg.GetNode(5)
	require.True(t, ok)
	assert.Equal(t, 1, n.Depth)
	assert.True(t, n.Frontier)
	assert.False(t, n.Seed)

	seed, _ := mg.GetNode(1)
	assert.True(t, seed.Seed)
	assert.Equal(t, []model.ID{1, 5}, mg.NodeIDs())
}

func TestMemoryGraph_UpdateNode(t *testing.T) {
	mg := NewMemoryGraph(1)
	mg.AddNode(1, 0)

	require.NoError(t, mg.UpdateNode(1, func(n *model.Node) { n.Expanded = true }))
	n, _ := mg.GetNode(1)
	assert.True(t, n.Expanded)

	assert.Error(t, mg.UpdateNode(2, func(n *model.Node) {}))
}

func TestMemoryGraph_ReplaceEdges(t *testing.T) {
	mg := NewMemoryGraph(1)
	mg.AddEdges(
		model.Edge{Source: 1, Target: 2, Kind: model.EdgeFriend},
		model.Edge{Source: 1, Target: 3, Kind: model.EdgeGroup},
	)
	mg.ReplaceEdges(model.EdgeGroup, []model.Edge{{Source: 2, Target: 3, Kind: model.EdgeGroup}})

	rec := model.NewCrawlRecord(1, 1)
	mg.Fill(rec)
	assert.Equal(t, []model.Edge{
		{Source: 1, Target: 2, Kind: model.EdgeFriend},
		{Source: 2, Target: 3, Kind: model.EdgeGroup},
	}, rec.Edges)
}

func TestMemoryGraph_Targets(t *testing.T) {
	mg := NewMemoryGraph(1)
	mg.AddEdges(
		model.Edge{Source: 2, Target: 9, Kind: model.EdgeFriend},
		model.Edge{Source: 1, Target: 2, Kind: model.EdgeFriend},
		model.Edge{Source: 2, Target: 3, Kind: model.EdgeFriend},
		model.Edge{Source: 2, Target: 4, Kind: model.EdgeGroup},
	)

	got := mg.Targets(model.EdgeFriend)
	assert.Equal(t, map[model.ID][]model.ID{
		1: {2},
		2: {9, 3},
	}, got)
	assert.Equal(t, map[model.ID][]model.ID{2: {4}}, mg.Targets(model.EdgeGroup))
}

func TestMemoryGraph_FillAndLoadRecord(t *testing.T) {
	mg := NewMemoryGraph(1)
	mg.AddNode(1, 0)
	mg.AddNode(2, 1)
	mg.SetProfile(model.ProfileRecord{ID: 2, Label: "b", Visibility: model.VisibilityPublic})
	mg.SetGroups(2, []model.ID{9, 3})
	mg.AddEdges(model.Edge{Source: 1, Target: 2, Kind: model.EdgeFriend})

	rec := model.NewCrawlRecord(1, 2)
	rec.Queue = []model.QueueEntry{{ID: 2, Depth: 1}}
	mg.Fill(rec)

	assert.Len(t, rec.Nodes, 2)
	assert.Equal(t, []model.ID{3, 9}, rec.Groups[2])
	assert.Len(t, rec.Queue, 1)

	restored, err := LoadRecord(rec)
	require.NoError(t, err)
	nodes, edges := restored.GetStats()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
	p, ok := restored.Profile(2)
	require.True(t, ok)
	assert.Equal(t, "b", p.Label)
}

func TestLoadRecord_RejectsDuplicateNodes(t *testing.T) {
	rec := model.NewCrawlRecord(1, 1)
	rec.Nodes = []model.Node{{ID: 1}, {ID: 1}}

	_, err := LoadRecord(rec)
	assert.Error(t, err)
}
