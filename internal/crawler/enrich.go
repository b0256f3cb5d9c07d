package crawler

import (
	"context"

	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/sirupsen/logrus"
)

// enrich fills in what traversal does not fetch: profiles of nodes never
// dequeued, ban status, group memberships and owned games. Per-node flags
// make it resumable.
func (c *Crawler) enrich(ctx context.Context) error {
	ids := c.graph.NodeIDs()

	missing := make([]model.ID, 0)
	for _, id := range ids {
		if _, ok := c.graph.Profile(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		logrus.Infof("Fetching %d missing profiles", len(missing))
		records, err := c.fetcher.GetProfiles(ctx, missing)
		if err != nil {
			return err
		}
		for _, p := range records {
			c.graph.SetProfile(p)
		}
	}

	if err := c.enrichBans(ctx, ids); err != nil {
		return err
	}

	if c.opts.IncludeGroups {
		if err := c.enrichGroups(ctx, ids); err != nil {
			return err
		}
		c.graph.ReplaceEdges(model.EdgeGroup, c.groupEdges(ids))
	}

	if c.opts.IncludeGames {
		if err := c.enrichGames(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

// enrichBans fetches ban status for every known profile in batched calls.
// Ids the API did not answer stay pending for a later resume.
func (c *Crawler) enrichBans(ctx context.Context, ids []model.ID) error {
	pending := make([]model.ID, 0)
	for _, id := range ids {
		node, _ := c.graph.GetNode(id)
		if _, ok := c.graph.Profile(id); ok && !node.BansFetched {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	logrus.Infof("Fetching ban status for %d profiles", len(pending))
	bans, err := c.fetcher.GetBans(ctx, pending)
	if err != nil {
		return err
	}
	for _, id := range pending {
		b, ok := bans[id]
		if !ok {
			continue
		}
		p, _ := c.graph.Profile(id)
		c.graph.SetProfile(p.WithBans(b))
		if err := c.graph.UpdateNode(id, func(n *model.Node) { n.BansFetched = true }); err != nil {
			return err
		}
	}
	return c.step(ctx)
}

// eligible reports whether contextual data may be requested for id
func (c *Crawler) eligible(id model.ID) bool {
	if !c.opts.SkipPrivate {
		return true
	}
	p, ok := c.graph.Profile(id)
	return ok && p.Public()
}

func (c *Crawler) enrichGroups(ctx context.Context, ids []model.ID) error {
	for _, id := range ids {
		node, _ := c.graph.GetNode(id)
		if node.GroupsFetched || !c.eligible(id) {
			continue
		}

		groups, ok, err := c.fetcher.GetGroups(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			c.graph.SetGroups(id, groups)
		}
		if err := c.graph.UpdateNode(id, func(n *model.Node) { n.GroupsFetched = true }); err != nil {
			return err
		}
		if err := c.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) enrichGames(ctx context.Context, ids []model.ID) error {
	for _, id := range ids {
		node, _ := c.graph.GetNode(id)
		if node.GamesFetched || !c.eligible(id) {
			continue
		}
		profile, hasProfile := c.graph.Profile(id)
		if !hasProfile {
			continue
		}

		games, ok, err := c.fetcher.GetOwnedGames(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			c.graph.SetProfile(profile.WithGames(games))
		}
		if err := c.graph.UpdateNode(id, func(n *model.Node) { n.GamesFetched = true }); err != nil {
			return err
		}
		if err := c.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// groupEdges links every pair of crawled profiles sharing a group
func (c *Crawler) groupEdges(ids []model.ID) []model.Edge {
	members := make(map[model.ID][]model.ID)
	for _, id := range ids {
		for _, g := range c.graph.Groups(id) {
			members[g] = append(members[g], id)
		}
	}

	gids := make([]model.ID, 0, len(members))
	for g := range members {
		gids = append(gids, g)
	}
	model.SortIDs(gids)

	type pair struct{ a, b model.ID }
	seen := make(map[pair]bool)
	edges := make([]model.Edge, 0)
	for _, g := range gids {
		ms := model.SortIDs(members[g])
		for i := 0; i < len(ms); i++ {
			for j := i + 1; j < len(ms); j++ {
				p := pair{ms[i], ms[j]}
				if seen[p] {
					continue
				}
				seen[p] = true
				edges = append(edges, model.Edge{Source: p.a, Target: p.b, Kind: model.EdgeGroup})
			}
		}
	}

	c.tracker.AddEdgesRecorded(len(edges))
	return edges
}
