package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/memory"
	"github.com/alvmarrod/steam-weaver/internal/metrics"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrInterrupted is returned when the run context ends mid-crawl.
// The frontier was checkpointed (if a store is attached) and can be resumed.
var ErrInterrupted = errors.New("crawl interrupted")

// Fetcher is the subset of the Steam client the crawler needs.
// ok == false means the data is unavailable; err is reserved for cancellation.
type Fetcher interface {
	GetProfile(ctx context.Context, id model.ID) (model.ProfileRecord, bool, error)
	GetProfiles(ctx context.Context, ids []model.ID) (map[model.ID]model.ProfileRecord, error)
	GetBans(ctx context.Context, ids []model.ID) (map[model.ID]model.BanStatus, error)
	GetFriends(ctx context.Context, id model.ID) ([]model.ID, bool, error)
	GetGroups(ctx context.Context, id model.ID) ([]model.ID, bool, error)
	GetOwnedGames(ctx context.Context, id model.ID) ([]uint32, bool, error)
}

// Checkpointer persists crawl records atomically
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, rec *model.CrawlRecord) error
}

// State is the crawler lifecycle state
type State int

const (
	StateIdle State = iota
	StateExpanding
	StatePaused
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExpanding:
		return "expanding"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options bound the traversal
type Options struct {
	MaxDepth        int
	MaxNodes        int
	SkipPrivate     bool
	IncludeGroups   bool
	IncludeGames    bool
	CheckpointEvery int
	DryRunSample    int
}

// OptionsFromConfig maps runtime configuration to crawl options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxDepth:        cfg.Depth,
		MaxNodes:        cfg.MaxNodes,
		SkipPrivate:     cfg.SkipPrivate,
		IncludeGroups:   cfg.IncludeGroupLinks,
		IncludeGames:    cfg.IncludeGameOverlap,
		CheckpointEvery: cfg.CheckpointEvery,
		DryRunSample:    cfg.DryRunSample,
	}
}

// Crawler performs a breadth-first traversal of the friend graph
type Crawler struct {
	opts    Options
	fetcher Fetcher
	store   Checkpointer
	tracker *metrics.Tracker

	runID    string
	seed     model.ID
	graph    *memory.MemoryGraph
	frontier *Frontier

	stateMu         sync.RWMutex
	state           State
	sinceCheckpoint int
}

// NewCrawler creates a new crawler instance. store and tracker may be nil.
func NewCrawler(opts Options, fetcher Fetcher, store Checkpointer, tracker *metrics.Tracker) *Crawler {
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	return &Crawler{
		opts:    opts,
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		state:   StateIdle,
	}
}

// Start initialises a fresh frontier holding only the seed
func (c *Crawler) Start(seed model.ID, runID string) error {
	if c.State() != StateIdle || c.graph != nil {
		return fmt.Errorf("crawler already initialised")
	}

	c.runID = runID
	c.seed = seed
	c.graph = memory.NewMemoryGraph(seed)
	c.frontier = NewFrontier()

	c.graph.AddNode(seed, 0)
	c.frontier.Push(model.QueueEntry{ID: seed, Depth: 0})
	c.tracker.AddNodesDiscovered(1)
	return nil
}

// Resume restores frontier and partial graph from a checkpoint.
// The configured depth may be deeper than the checkpoint's, never shallower.
func (c *Crawler) Resume(rec *model.CrawlRecord, runID string) error {
	if c.State() != StateIdle || c.graph != nil {
		return fmt.Errorf("crawler already initialised")
	}
	if rec.MaxDepth > c.opts.MaxDepth {
		return fmt.Errorf("checkpoint depth %d exceeds configured depth %d", rec.MaxDepth, c.opts.MaxDepth)
	}

	graph, err := memory.LoadRecord(rec)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if !graph.HasNode(rec.Seed) {
		return fmt.Errorf("checkpoint for %s does not contain its seed", rec.Seed)
	}

	c.runID = runID
	c.seed = rec.Seed
	c.graph = graph
	c.frontier = RestoreFrontier(rec.Queue, rec.Visited)

	if rec.MaxDepth < c.opts.MaxDepth {
		admitted := c.deepen(rec.MaxDepth)
		logrus.Infof("Depth raised from %d to %d: %d nodes queued past the old boundary", rec.MaxDepth, c.opts.MaxDepth, admitted)
	}

	nodes, edges := graph.GetStats()
	logrus.Infof("Resuming crawl of %s: %d nodes, %d edges, %d queued", rec.Seed, nodes, edges, c.frontier.Size())
	return nil
}

// State returns the current lifecycle state
func (c *Crawler) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Crawler) setState(s State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
}

// Record snapshots frontier state plus the partial graph
func (c *Crawler) Record() *model.CrawlRecord {
	rec := model.NewCrawlRecord(c.seed, c.opts.MaxDepth)
	rec.RunID = c.runID
	rec.Status = statusFor(c.State())
	c.graph.Fill(rec)
	rec.Queue = c.frontier.Entries()
	rec.Visited = c.frontier.VisitedIDs()
	return rec
}

func statusFor(s State) string {
	switch s {
	case StatePaused:
		return model.StatusPaused
	case StateCompleted:
		return model.StatusCompleted
	case StateFailed:
		return model.StatusFailed
	default:
		return model.StatusRunning
	}
}

// Run expands the frontier until a budget is exhausted, then enriches
// crawled profiles. It returns the final record, or ErrInterrupted with the
// paused record when ctx ends first.
func (c *Crawler) Run(ctx context.Context) (*model.CrawlRecord, error) {
	if c.graph == nil {
		return nil, fmt.Errorf("crawler not initialised: call Start or Resume")
	}
	if s := c.State(); s != StateIdle {
		return nil, fmt.Errorf("cannot run crawler in state %s", s)
	}

	log := logrus.WithFields(logrus.Fields{"seed": c.seed.String(), "run": c.runID})
	c.setState(StateExpanding)
	log.Infof("Crawl started (depth=%d, max_nodes=%d)", c.opts.MaxDepth, c.opts.MaxNodes)

	for !c.traversalDone() {
		if ctx.Err() != nil {
			return c.halt(ctx, ctx.Err())
		}
		entry, _ := c.frontier.Peek()
		if err := c.expand(ctx, entry); err != nil {
			return c.halt(ctx, err)
		}
		if err := c.step(ctx); err != nil {
			return c.Record(), err
		}
	}

	log.Info("Traversal finished, enriching profiles")
	if err := c.enrich(ctx); err != nil {
		return c.halt(ctx, err)
	}

	// All work is done; record completion even if ctx ended meanwhile
	c.setState(StateCompleted)
	rec := c.Record()
	if err := c.checkpoint(context.WithoutCancel(ctx), rec); err != nil {
		c.setState(StateFailed)
		return c.Record(), err
	}

	nodes, edges := c.graph.GetStats()
	log.Infof("Crawl completed: %d nodes, %d raw edges, %d still queued", nodes, edges, len(rec.Queue))
	return rec, nil
}

// traversalDone reports whether the queue is drained or the cap is hit.
// Entries at the depth limit are still expanded; they only admit nothing.
func (c *Crawler) traversalDone() bool {
	if c.frontier.IsEmpty() {
		return true
	}
	nodes, _ := c.graph.GetStats()
	return nodes >= c.opts.MaxNodes
}

// expand fetches everything for the head entry first, then applies it and
// pops the entry, so an interruption leaves the entry queued.
func (c *Crawler) expand(ctx context.Context, entry model.QueueEntry) error {
	if c.frontier.IsVisited(entry.ID) {
		logrus.Debugf("Dropping already expanded %s from the queue", entry.ID)
		c.frontier.Pop()
		return nil
	}

	// A record fetched earlier (e.g. by a shallower run's enrichment) is reused
	profile, known := c.graph.Profile(entry.ID)
	hasProfile := known
	if !known {
		var err error
		profile, hasProfile, err = c.fetcher.GetProfile(ctx, entry.ID)
		if err != nil {
			return err
		}
	}

	var friends []model.ID
	friendsOK := false
	if hasProfile && c.opts.SkipPrivate && !profile.Public() {
		logrus.Debugf("Skipping private profile %s", entry.ID)
	} else {
		var err error
		friends, friendsOK, err = c.fetcher.GetFriends(ctx, entry.ID)
		if err != nil {
			return err
		}
	}

	if hasProfile && !known {
		c.graph.SetProfile(profile)
	}
	c.frontier.MarkVisited(entry.ID)
	c.frontier.Pop()

	if err := c.graph.UpdateNode(entry.ID, func(n *model.Node) {
		n.Frontier = false
		n.Expanded = friendsOK
	}); err != nil {
		return err
	}
	if !friendsOK {
		return nil
	}
	c.tracker.IncrementNodesExpanded()

	edges := make([]model.Edge, 0, len(friends))
	seen := make(map[model.ID]bool, len(friends))
	for _, f := range friends {
		if f == entry.ID || seen[f] {
			continue
		}
		seen[f] = true
		edges = append(edges, model.Edge{Source: entry.ID, Target: f, Kind: model.EdgeFriend})
	}
	c.graph.AddEdges(edges...)
	c.tracker.AddEdgesRecorded(len(edges))

	// Boundary entries keep their edges, dangling ones included, so a deeper
	// resume can admit from them without refetching
	admitted := 0
	if entry.Depth < c.opts.MaxDepth {
		admitted = c.admit(entry.ID, entry.Depth, friends)
	}

	logrus.Debugf("Expanded %s (depth=%d): %d friends, %d admitted", entry.ID, entry.Depth, len(friends), admitted)
	return nil
}

// admit queues the unseen friends of parent at depth+1 until the node cap.
// Cap truncation is by id, never by API order.
func (c *Crawler) admit(parent model.ID, depth int, friends []model.ID) int {
	candidates := make([]model.ID, 0, len(friends))
	seen := make(map[model.ID]bool, len(friends))
	for _, f := range friends {
		if f == parent || seen[f] || c.graph.HasNode(f) {
			continue
		}
		seen[f] = true
		candidates = append(candidates, f)
	}
	model.SortIDs(candidates)

	admitted := 0
	for _, f := range candidates {
		if nodes, _ := c.graph.GetStats(); nodes >= c.opts.MaxNodes {
			logrus.Infof("Node cap %d reached while expanding %s", c.opts.MaxNodes, parent)
			break
		}
		if c.graph.AddNode(f, depth+1) {
			c.frontier.Push(model.QueueEntry{ID: f, Depth: depth + 1})
			admitted++
		}
	}
	c.tracker.AddNodesDiscovered(admitted)
	return admitted
}

// deepen admits from nodes expanded at a previous depth limit, using the
// friend edges they already recorded. Discovery order equals expansion
// order in a breadth-first crawl, so this queues exactly what a single pass
// at the new depth would have queued.
func (c *Crawler) deepen(prevDepth int) int {
	friends := c.graph.Targets(model.EdgeFriend)
	admitted := 0
	for _, id := range c.graph.NodeIDs() {
		node, _ := c.graph.GetNode(id)
		if node.Depth != prevDepth || !node.Expanded {
			continue
		}
		admitted += c.admit(id, node.Depth, friends[id])
	}
	return admitted
}

// step counts one unit of progress and checkpoints on cadence
func (c *Crawler) step(ctx context.Context) error {
	c.sinceCheckpoint++
	// A cancelled run is checkpointed once, by halt
	if c.sinceCheckpoint < c.opts.CheckpointEvery || ctx.Err() != nil {
		return nil
	}
	if err := c.checkpoint(ctx, c.Record()); err != nil {
		c.setState(StateFailed)
		return err
	}
	if progress := c.tracker.LogProgress(); progress != "" {
		logrus.Info(progress)
	}
	return nil
}

// halt turns a fetch error into Paused (cancellation) or Failed
func (c *Crawler) halt(ctx context.Context, cause error) (*model.CrawlRecord, error) {
	if ctx.Err() == nil {
		c.setState(StateFailed)
		return c.Record(), cause
	}

	c.setState(StatePaused)
	rec := c.Record()
	if err := c.checkpoint(context.WithoutCancel(ctx), rec); err != nil {
		c.setState(StateFailed)
		return c.Record(), err
	}
	logrus.Warnf("Crawl of %s paused with %d entries queued", c.seed, len(rec.Queue))
	return rec, ErrInterrupted
}

func (c *Crawler) checkpoint(ctx context.Context, rec *model.CrawlRecord) error {
	c.sinceCheckpoint = 0
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveCheckpoint(ctx, rec); err != nil {
		return fmt.Errorf("failed to checkpoint crawl: %w", err)
	}
	c.tracker.IncrementCheckpoints()
	logrus.Debugf("Checkpoint written (status=%s, nodes=%d, queued=%d)", rec.Status, len(rec.Nodes), len(rec.Queue))
	return nil
}
