package memory

import (
	"fmt"
	"sync"

	"github.com/alvmarrod/steam-weaver/internal/model"
)

// MemoryGraph holds the partial crawl graph in memory while the crawler owns it
type MemoryGraph struct {
	seed     model.ID
	order    []model.ID                       // discovery order
	nodes    map[model.ID]*model.Node         // id -> node
	profiles map[model.ID]model.ProfileRecord // id -> latest fetched record
	groups   map[model.ID][]model.ID          // id -> group memberships
	edges    []model.Edge                     // raw edges, possibly dangling
	mu       sync.RWMutex
}

// NewMemoryGraph creates a new in-memory graph
func NewMemoryGraph(seed model.ID) *MemoryGraph {
	return &MemoryGraph{
		seed:     seed,
		nodes:    make(map[model.ID]*model.Node),
		profiles: make(map[model.ID]model.ProfileRecord),
		groups:   make(map[model.ID][]model.ID),
	}
}

// AddNode inserts a node if it is not already present.
// Returns false if the node existed.
func (mg *MemoryGraph) AddNode(id model.ID, depth int) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if _, exists := mg.nodes[id]; exists {
		return false
	}

	mg.nodes[id] = &model.Node{
		ID:       id,
		Depth:    depth,
		Seed:     id == mg.seed,
		Frontier: true,
	}
	mg.order = append(mg.order, id)
	return true
}

// HasNode reports whether id was materialized
func (mg *MemoryGraph) HasNode(id model.ID) bool {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	_, exists := mg.nodes[id]
	return exists
}

// GetNode retrieves a copy of a node
func (mg *MemoryGraph) GetNode(id model.ID) (model.Node, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	if node, exists := mg.nodes[id]; exists {
		return *node, true
	}
	return model.Node{}, false
}

// UpdateNode applies fn to a stored node
func (mg *MemoryGraph) UpdateNode(id model.ID, fn func(*model.Node)) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	node, exists := mg.nodes[id]
	if !exists {
		return fmt.Errorf("node %s not found", id)
	}
	fn(node)
	return nil
}

// NodeIDs returns node ids in discovery order
func (mg *MemoryGraph) NodeIDs() []model.ID {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return append([]model.ID(nil), mg.order...)
}

// SetProfile stores a profile record, replacing any previous one
func (mg *MemoryGraph) SetProfile(p model.ProfileRecord) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.profiles[p.ID] = p
}

// Profile returns the stored record for id
func (mg *MemoryGraph) Profile(id model.ID) (model.ProfileRecord, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	p, ok := mg.profiles[id]
	return p, ok
}

// SetGroups records the group memberships of id
func (mg *MemoryGraph) SetGroups(id model.ID, groups []model.ID) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.groups[id] = model.SortIDs(append([]model.ID(nil), groups...))
}

// Groups returns the recorded group memberships of id
func (mg *MemoryGraph) Groups(id model.ID) []model.ID {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return append([]model.ID(nil), mg.groups[id]...)
}

// AddEdges appends raw edges
func (mg *MemoryGraph) AddEdges(edges ...model.Edge) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.edges = append(mg.edges, edges...)
}

// Targets maps each source to the targets of its raw edges of kind, in
// recorded order
func (mg *MemoryGraph) Targets(kind model.EdgeKind) map[model.ID][]model.ID {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	out := make(map[model.ID][]model.ID)
	for _, e := range mg.edges {
		if e.Kind == kind {
			out[e.Source] = append(out[e.Source], e.Target)
		}
	}
	return out
}

// ReplaceEdges drops every raw edge of kind and appends edges in its place
func (mg *MemoryGraph) ReplaceEdges(kind model.EdgeKind, edges []model.Edge) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	kept := mg.edges[:0]
	for _, e := range mg.edges {
		if e.Kind != kind {
			kept = append(kept, e)
		}
	}
	mg.edges = append(kept, edges...)
}

// GetStats returns current graph statistics
func (mg *MemoryGraph) GetStats() (nodeCount, edgeCount int) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return len(mg.nodes), len(mg.edges)
}

// Fill copies the graph into rec. Frontier fields of rec are left untouched.
func (mg *MemoryGraph) Fill(rec *model.CrawlRecord) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	rec.Seed = mg.seed
	rec.Nodes = make([]model.Node, 0, len(mg.order))
	for _, id := range mg.order {
		rec.Nodes = append(rec.Nodes, *mg.nodes[id])
	}
	rec.Profiles = make(map[model.ID]model.ProfileRecord, len(mg.profiles))
	for id, p := range mg.profiles {
		rec.Profiles[id] = p
	}
	rec.Groups = make(map[model.ID][]model.ID, len(mg.groups))
	for id, g := range mg.groups {
		rec.Groups[id] = append([]model.ID(nil), g...)
	}
	rec.Edges = append([]model.Edge(nil), mg.edges...)
}

// LoadRecord populates an in-memory graph from a stored record (for resume)
func LoadRecord(rec *model.CrawlRecord) (*MemoryGraph, error) {
	mg := NewMemoryGraph(rec.Seed)

	for _, n := range rec.Nodes {
		if _, dup := mg.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node %s in record", n.ID)
		}
		node := n
		mg.nodes[n.ID] = &node
		mg.order = append(mg.order, n.ID)
	}
	for id, p := range rec.Profiles {
		mg.profiles[id] = p
	}
	for id, g := range rec.Groups {
		mg.groups[id] = append([]model.ID(nil), g...)
	}
	mg.edges = append([]model.Edge(nil), rec.Edges...)

	return mg, nil
}
