package analysis

import (
	"sort"
)

// gainEpsilon absorbs float noise when comparing modularity gains
const gainEpsilon = 1e-12

// maxSweeps bounds local moving on a single level
const maxSweeps = 100

// wgraph is a weighted undirected graph used across Louvain levels.
// Loops left by aggregation are not listed in nbrs; they only count in k.
type wgraph struct {
	nbrs    [][]int
	weights [][]float64
	k       []float64
	m2      float64
}

func newWGraph(adj [][]int) *wgraph {
	g := &wgraph{
		nbrs:    make([][]int, len(adj)),
		weights: make([][]float64, len(adj)),
		k:       make([]float64, len(adj)),
	}
	for i, ns := range adj {
		for _, j := range ns {
			g.nbrs[i] = append(g.nbrs[i], j)
			g.weights[i] = append(g.weights[i], 1)
			g.k[i]++
		}
		g.m2 += g.k[i]
	}
	return g
}

// louvain partitions the graph by greedy modularity optimisation.
// Nodes are visited in index order, a node only moves on a strict gain, and
// among equal best gains the lowest community index wins. Labels are
// renumbered 0..k-1 in order of each community's smallest member.
func louvain(adj [][]int) ([]int, float64) {
	n := len(adj)
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}
	if n == 0 {
		return membership, 0
	}

	g := newWGraph(adj)
	if g.m2 == 0 {
		return membership, 0
	}

	for {
		comm, moved := localMoving(g)
		if !moved {
			break
		}
		comm, count := renumber(comm)
		for i := range membership {
			membership[i] = comm[membership[i]]
		}
		if count == len(g.nbrs) {
			break
		}
		g = aggregate(g, comm, count)
	}

	membership, _ = renumber(membership)
	return membership, modularity(adj, membership)
}

// localMoving runs sweeps until no node changes community
func localMoving(g *wgraph) ([]int, bool) {
	n := len(g.nbrs)
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := 0; i < n; i++ {
		comm[i] = i
		tot[i] = g.k[i]
	}

	movedAny := false
	for sweep := 0; sweep < maxSweeps; sweep++ {
		moved := false
		for i := 0; i < n; i++ {
			links := make(map[int]float64)
			for x, j := range g.nbrs[i] {
				if j != i {
					links[comm[j]] += g.weights[i][x]
				}
			}

			current := comm[i]
			tot[current] -= g.k[i]

			best := current
			bestGain := links[current] - tot[current]*g.k[i]/g.m2

			candidates := make([]int, 0, len(links))
			for c := range links {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)
			for _, c := range candidates {
				if c == current {
					continue
				}
				gain := links[c] - tot[c]*g.k[i]/g.m2
				if gain > bestGain+gainEpsilon {
					best, bestGain = c, gain
				}
			}

			tot[best] += g.k[i]
			if best != current {
				comm[i] = best
				moved = true
				movedAny = true
			}
		}
		if !moved {
			break
		}
	}
	return comm, movedAny
}

// renumber maps labels to 0..k-1 by first appearance in index order
func renumber(labels []int) ([]int, int) {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		out[i] = id
	}
	return out, len(mapping)
}

// aggregate collapses each community into a single node
func aggregate(g *wgraph, comm []int, count int) *wgraph {
	agg := &wgraph{
		nbrs:    make([][]int, count),
		weights: make([][]float64, count),
		k:       make([]float64, count),
		m2:      g.m2,
	}

	between := make([]map[int]float64, count)
	for c := range between {
		between[c] = make(map[int]float64)
	}
	for i := range g.nbrs {
		ci := comm[i]
		agg.k[ci] += g.k[i]
		for x, j := range g.nbrs[i] {
			cj := comm[j]
			if ci == cj {
				continue
			}
			between[ci][cj] += g.weights[i][x]
		}
	}

	for c, targets := range between {
		keys := make([]int, 0, len(targets))
		for t := range targets {
			keys = append(keys, t)
		}
		sort.Ints(keys)
		for _, t := range keys {
			agg.nbrs[c] = append(agg.nbrs[c], t)
			agg.weights[c] = append(agg.weights[c], targets[t])
		}
	}
	return agg
}

// modularity evaluates Q of a partition on the unweighted graph
func modularity(adj [][]int, comm []int) float64 {
	m2 := 0.0
	for _, ns := range adj {
		m2 += float64(len(ns))
	}
	if m2 == 0 {
		return 0
	}

	k := 0
	for _, c := range comm {
		if c+1 > k {
			k = c + 1
		}
	}
	internal := make([]float64, k)
	degree := make([]float64, k)
	for i, ns := range adj {
		degree[comm[i]] += float64(len(ns))
		for _, j := range ns {
			if comm[i] == comm[j] {
				internal[comm[i]]++
			}
		}
	}

	q := 0.0
	for c := range degree {
		q += internal[c]/m2 - (degree[c]/m2)*(degree[c]/m2)
	}
	return q
}
