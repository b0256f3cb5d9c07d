package crawler

import (
	"context"
	"fmt"
	"math"

	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/sirupsen/logrus"
)

// FriendLister is all a dry run needs from the fetcher
type FriendLister interface {
	GetFriends(ctx context.Context, id model.ID) ([]model.ID, bool, error)
}

// Estimate is the projected size of a crawl. It is never a measurement.
type Estimate struct {
	Seed        model.ID `json:"seed"`
	SeedPublic  bool     `json:"seed_public"`
	SeedFriends int      `json:"seed_friends"`
	Sampled     int      `json:"sampled"`
	Observed    int      `json:"observed"`
	AvgDegree   float64  `json:"avg_degree"`
	Depth       int      `json:"depth"`
	MaxNodes    int      `json:"max_nodes"`
	Nodes       int      `json:"estimated_nodes"`
	Capped      bool     `json:"capped"`
}

func (e *Estimate) String() string {
	capped := ""
	if e.Capped {
		capped = " (capped)"
	}
	return fmt.Sprintf("Estimate: ~%d nodes at depth=%d%s; seed friends=%d, avg friend degree=%.1f over %d/%d sampled",
		e.Nodes, e.Depth, capped, e.SeedFriends, e.AvgDegree, e.Observed, e.Sampled)
}

// DryRun samples the seed's friends and extrapolates the final node count:
// 1 + F * (1 + k + ... + k^(depth-1)), with F the seed's friend count and k
// the average friend count of up to opts.DryRunSample friends (lowest ids).
func DryRun(ctx context.Context, fetcher FriendLister, seed model.ID, opts Options) (*Estimate, error) {
	est := &Estimate{Seed: seed, Depth: opts.MaxDepth, MaxNodes: opts.MaxNodes}

	friends, ok, err := fetcher.GetFriends(ctx, seed)
	if err != nil {
		return nil, err
	}
	if !ok {
		logrus.Warnf("Friend list of %s is unavailable; the crawl will not go past the seed", seed)
		est.Nodes = 1
		return est, nil
	}
	est.SeedPublic = true

	unique := make(map[model.ID]bool, len(friends))
	sample := make([]model.ID, 0, len(friends))
	for _, f := range friends {
		if f != seed && !unique[f] {
			unique[f] = true
			sample = append(sample, f)
		}
	}
	est.SeedFriends = len(sample)
	model.SortIDs(sample)
	if opts.DryRunSample > 0 && len(sample) > opts.DryRunSample {
		sample = sample[:opts.DryRunSample]
	}
	est.Sampled = len(sample)

	total := 0
	for _, f := range sample {
		fl, ok, err := fetcher.GetFriends(ctx, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		est.Observed++
		total += len(fl)
	}
	if est.Observed > 0 {
		est.AvgDegree = float64(total) / float64(est.Observed)
	}

	projected := 1.0
	level := float64(est.SeedFriends)
	for d := 1; d <= opts.MaxDepth; d++ {
		projected += level
		level *= est.AvgDegree
	}

	est.Nodes = opts.MaxNodes
	est.Capped = true
	if projected < float64(opts.MaxNodes) {
		est.Nodes = int(math.Round(projected))
		est.Capped = false
	}
	return est, nil
}
