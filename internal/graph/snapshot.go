// Package graph turns raw crawl records into a clean, closed graph.
//
// The crawler records edges as it sees them: in both directions, more than
// once, and towards profiles that were never admitted because of the node
// cap or the depth bound. Build removes all of that:
//   - edges whose endpoints are not both materialized nodes are dropped
//   - self loops and unknown edge kinds are dropped
//   - parallel edges collapse to one per unordered pair and kind
//
// # Ownership
//
// A Snapshot is immutable after Build returns. Accessors return copies, so
// downstream components can never modify crawler-owned data.
//
// # Ordering
//
// Nodes are sorted by id and edges by (source, target, kind) with
// source < target. Every neighbour list is sorted ascending. Analysis relies
// on this for deterministic iteration.
package graph

import (
	"github.com/alvmarrod/steam-weaver/internal/model"
)

// Snapshot is the cleaned node/edge set handed to analysis
type Snapshot struct {
	seed     model.ID
	nodes    []model.Node
	index    map[model.ID]int
	edges    []model.Edge
	profiles map[model.ID]model.ProfileRecord
	groups   map[model.ID][]model.ID
	adj      map[model.EdgeKind]map[model.ID][]model.ID
	simple   map[model.ID][]model.ID
}

// Seed returns the traversal's starting id
func (s *Snapshot) Seed() model.ID { return s.seed }

// NodeCount returns the number of nodes
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of collapsed edges
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// HasNode reports whether id is in the snapshot
func (s *Snapshot) HasNode(id model.ID) bool {
	_, ok := s.index[id]
	return ok
}

// Node returns the node for id
func (s *Snapshot) Node(id model.ID) (model.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Node{}, false
	}
	return s.nodes[i], true
}

// Nodes returns all nodes sorted by id
func (s *Snapshot) Nodes() []model.Node {
	return append([]model.Node(nil), s.nodes...)
}

// NodeIDs returns all node ids ascending
func (s *Snapshot) NodeIDs() []model.ID {
	ids := make([]model.ID, len(s.nodes))
	for i, n := range s.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Edges returns all edges in canonical order
func (s *Snapshot) Edges() []model.Edge {
	return append([]model.Edge(nil), s.edges...)
}

// Profile returns the fetched record for id, if any
func (s *Snapshot) Profile(id model.ID) (model.ProfileRecord, bool) {
	p, ok := s.profiles[id]
	if ok {
		p.Games = append([]uint32(nil), p.Games...)
	}
	return p, ok
}

// Groups returns the group memberships recorded for id
func (s *Snapshot) Groups(id model.ID) []model.ID {
	return append([]model.ID(nil), s.groups[id]...)
}

// Neighbors returns the ids linked to id by an edge of kind
func (s *Snapshot) Neighbors(id model.ID, kind model.EdgeKind) []model.ID {
	return append([]model.ID(nil), s.adj[kind][id]...)
}

// AdjacentIDs returns the ids linked to id by an edge of any kind
func (s *Snapshot) AdjacentIDs(id model.ID) []model.ID {
	return append([]model.ID(nil), s.simple[id]...)
}
