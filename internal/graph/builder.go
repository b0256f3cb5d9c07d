package graph

import (
	"fmt"
	"sort"

	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/sirupsen/logrus"
)

// DataIntegrityError is returned when cleaning leaves no usable graph,
// i.e. the seed itself was never materialized.
type DataIntegrityError struct {
	Seed model.ID
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("seed %s missing from crawl record", e.Seed)
}

type edgeKey struct {
	a, b model.ID
	kind model.EdgeKind
}

// Build assembles a Snapshot from a crawl record.
// Inconsistencies other than a missing seed are corrected silently.
func Build(rec *model.CrawlRecord) (*Snapshot, error) {
	s := &Snapshot{
		seed:     rec.Seed,
		index:    make(map[model.ID]int, len(rec.Nodes)),
		profiles: make(map[model.ID]model.ProfileRecord),
		groups:   make(map[model.ID][]model.ID),
		adj:      make(map[model.EdgeKind]map[model.ID][]model.ID),
		simple:   make(map[model.ID][]model.ID),
	}

	seen := make(map[model.ID]bool, len(rec.Nodes))
	for _, n := range rec.Nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		s.nodes = append(s.nodes, n)
	}
	sort.Slice(s.nodes, func(i, j int) bool { return s.nodes[i].ID < s.nodes[j].ID })
	for i, n := range s.nodes {
		s.index[n.ID] = i
	}

	if !s.HasNode(rec.Seed) {
		return nil, &DataIntegrityError{Seed: rec.Seed}
	}

	dropped := 0
	keys := make(map[edgeKey]bool, len(rec.Edges))
	for _, e := range rec.Edges {
		if !e.Kind.Valid() || e.Source == e.Target || !s.HasNode(e.Source) || !s.HasNode(e.Target) {
			dropped++
			continue
		}
		k := edgeKey{a: e.Source, b: e.Target, kind: e.Kind}
		if k.a > k.b {
			k.a, k.b = k.b, k.a
		}
		keys[k] = true
	}

	s.edges = make([]model.Edge, 0, len(keys))
	for k := range keys {
		s.edges = append(s.edges, model.Edge{Source: k.a, Target: k.b, Kind: k.kind})
	}
	sort.Slice(s.edges, func(i, j int) bool {
		a, b := s.edges[i], s.edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Kind < b.Kind
	})

	s.indexAdjacency()

	for id, p := range rec.Profiles {
		if s.HasNode(id) {
			s.profiles[id] = p
		}
	}
	for id, g := range rec.Groups {
		if s.HasNode(id) {
			s.groups[id] = model.SortIDs(append([]model.ID(nil), g...))
		}
	}

	logrus.Debugf("Graph built: %d nodes, %d edges (%d raw edges dropped, %d collapsed)",
		len(s.nodes), len(s.edges), dropped, len(rec.Edges)-dropped-len(s.edges))
	return s, nil
}

// indexAdjacency fills the per-kind and collapsed neighbour lists
func (s *Snapshot) indexAdjacency() {
	simpleSeen := make(map[[2]model.ID]bool, len(s.edges))
	for _, e := range s.edges {
		byKind, ok := s.adj[e.Kind]
		if !ok {
			byKind = make(map[model.ID][]model.ID)
			s.adj[e.Kind] = byKind
		}
		byKind[e.Source] = append(byKind[e.Source], e.Target)
		byKind[e.Target] = append(byKind[e.Target], e.Source)

		pair := [2]model.ID{e.Source, e.Target}
		if simpleSeen[pair] {
			continue
		}
		simpleSeen[pair] = true
		s.simple[e.Source] = append(s.simple[e.Source], e.Target)
		s.simple[e.Target] = append(s.simple[e.Target], e.Source)
	}

	for _, byKind := range s.adj {
		for _, ids := range byKind {
			model.SortIDs(ids)
		}
	}
	for _, ids := range s.simple {
		model.SortIDs(ids)
	}
}
