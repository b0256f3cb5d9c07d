// Package pipeline runs a scan from seed resolution to exported files.
//
// A scan resolves the target, crawls (fresh or from a checkpoint), freezes
// the crawl record into a graph snapshot, computes node metrics, ranks
// probable associates of the seed and writes the output tables. Only the
// crawl touches the network; everything after it is a pure function of the
// crawl record, which is why Rebuild can regenerate outputs offline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/analysis"
	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/crawler"
	"github.com/alvmarrod/steam-weaver/internal/export"
	"github.com/alvmarrod/steam-weaver/internal/graph"
	"github.com/alvmarrod/steam-weaver/internal/metrics"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/alvmarrod/steam-weaver/internal/ranker"
	"github.com/alvmarrod/steam-weaver/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNoCheckpoint is returned when a resume or rebuild finds nothing stored
var ErrNoCheckpoint = errors.New("no stored crawl")

// Source resolves seeds and serves Steam data
type Source interface {
	crawler.Fetcher
	Resolve(ctx context.Context, input string) (model.ID, error)
}

// Store persists crawl records between runs
type Store interface {
	crawler.Checkpointer
	LoadCheckpoint(ctx context.Context, seed model.ID) (*model.CrawlRecord, error)
	LatestResumable(ctx context.Context) (*storage.RunInfo, error)
	DeleteCheckpoint(ctx context.Context, seed model.ID) error
}

// Deps are the collaborators of a pipeline run. Tracker and Now may be nil.
type Deps struct {
	Config  *config.Config
	Source  Source
	Store   Store
	Tracker *metrics.Tracker
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Result describes an exported run
type Result struct {
	RunID      string
	Seed       model.ID
	Record     *model.CrawlRecord
	Paths      export.Paths
	Nodes      int
	Edges      int
	Hubs       []model.ID
	Associates []ranker.Score
}

// Scan crawls target from scratch and exports the result.
// On interruption it returns the paused record with crawler.ErrInterrupted.
func Scan(ctx context.Context, deps Deps, target string) (*Result, error) {
	seed, err := deps.Source.Resolve(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", target, err)
	}

	prev, err := deps.Store.LoadCheckpoint(ctx, seed)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if prev.Status != model.StatusCompleted {
			logrus.Warnf("Discarding unfinished crawl of %s (run %s); use resume to continue it", seed, prev.RunID)
		}
		if err := deps.Store.DeleteCheckpoint(ctx, seed); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	c := crawler.NewCrawler(crawler.OptionsFromConfig(deps.Config), deps.Source, deps.Store, deps.Tracker)
	if err := c.Start(seed, runID); err != nil {
		return nil, err
	}
	return finish(ctx, deps, c, seed, runID)
}

// Resume continues the stored crawl for target, or the most recent
// unfinished one when target is empty. A completed crawl may be resumed with
// a deeper configured depth.
func Resume(ctx context.Context, deps Deps, target string) (*Result, error) {
	var seed model.ID
	if target == "" {
		info, err := deps.Store.LatestResumable(ctx)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, fmt.Errorf("nothing to resume: %w", ErrNoCheckpoint)
		}
		if seed, err = model.ParseID(info.Seed); err != nil {
			return nil, fmt.Errorf("stored run has a bad seed: %w", err)
		}
		logrus.Infof("Resuming latest unfinished run %s (%d nodes, %d queued)", info.RunID, info.NodeCount, info.QueueSize)
	} else {
		var err error
		if seed, err = deps.Source.Resolve(ctx, target); err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", target, err)
		}
	}

	rec, err := deps.Store.LoadCheckpoint(ctx, seed)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("seed %s: %w", seed, ErrNoCheckpoint)
	}

	runID := rec.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	c := crawler.NewCrawler(crawler.OptionsFromConfig(deps.Config), deps.Source, deps.Store, deps.Tracker)
	if err := c.Resume(rec, runID); err != nil {
		return nil, err
	}
	return finish(ctx, deps, c, seed, runID)
}

func finish(ctx context.Context, deps Deps, c *crawler.Crawler, seed model.ID, runID string) (*Result, error) {
	rec, err := c.Run(ctx)
	if err != nil {
		return &Result{RunID: runID, Seed: seed, Record: rec}, err
	}
	return Export(deps, rec)
}

// Rebuild re-exports the stored crawl of seed without fetching anything
func Rebuild(ctx context.Context, deps Deps, seed model.ID) (*Result, error) {
	rec, err := deps.Store.LoadCheckpoint(ctx, seed)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("seed %s: %w", seed, ErrNoCheckpoint)
	}
	if rec.Status != model.StatusCompleted {
		logrus.Warnf("Crawl of %s is %s; exporting the partial graph", seed, rec.Status)
	}
	return Export(deps, rec)
}

// Export builds, analyses, ranks and writes rec under the configured output directory
func Export(deps Deps, rec *model.CrawlRecord) (*Result, error) {
	cfg := deps.Config
	log := logrus.WithFields(logrus.Fields{"seed": rec.Seed.String(), "run": rec.RunID})

	snap, err := graph.Build(rec)
	if err != nil {
		return nil, err
	}
	log.Infof("Graph built: %d nodes, %d edges", snap.NodeCount(), snap.EdgeCount())

	res, err := analysis.Compute(snap, analysis.Options{HubPercentile: cfg.HubPercentile})
	if err != nil {
		return nil, fmt.Errorf("failed to compute metrics: %w", err)
	}
	log.Infof("Metrics computed: %d communities (Q=%.4f), %d hubs", res.Communities, res.Modularity, len(res.Hubs()))

	scores := ranker.New(cfg.Weights).Rank(snap, ranker.SeedNeighbors(snap))

	paths := export.Layout(cfg.OutputDir, rec.Seed, deps.now())
	if err := export.Write(paths, rec, snap, res, scores); err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	log.Infof("Exported %d associates to %s", len(scores), paths.Dir)

	return &Result{
		RunID:      rec.RunID,
		Seed:       rec.Seed,
		Record:     rec,
		Paths:      paths,
		Nodes:      snap.NodeCount(),
		Edges:      snap.EdgeCount(),
		Hubs:       res.Hubs(),
		Associates: scores,
	}, nil
}

// DryRun resolves target and estimates the crawl size without crawling
func DryRun(ctx context.Context, deps Deps, target string) (*crawler.Estimate, error) {
	seed, err := deps.Source.Resolve(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", target, err)
	}
	return crawler.DryRun(ctx, deps.Source, seed, crawler.OptionsFromConfig(deps.Config))
}
