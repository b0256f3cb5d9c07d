package main

import (
	"context"
	"fmt"

	"github.com/alvmarrod/steam-weaver/internal/export"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/alvmarrod/steam-weaver/internal/pipeline"
	"github.com/alvmarrod/steam-weaver/internal/steam"
	"github.com/alvmarrod/steam-weaver/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	depthFlag    int
	maxNodesFlag int
	fromFlag     string
)

var scanCmd = &cobra.Command{
	Use:   "scan TARGET",
	Short: "Crawl from a SteamID64, vanity name or profile URL and export the graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(func(ctx context.Context, deps pipeline.Deps) (*pipeline.Result, error) {
			return pipeline.Scan(ctx, deps, args[0])
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [SEED]",
	Short: "Continue a stored crawl, by default the most recent unfinished one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		return runCrawl(func(ctx context.Context, deps pipeline.Deps) (*pipeline.Result, error) {
			return pipeline.Resume(ctx, deps, target)
		})
	},
}

var dryRunCmd = &cobra.Command{
	Use:   "dry-run TARGET",
	Short: "Estimate how many nodes a scan would reach without crawling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		deps := pipeline.Deps{Config: cfg, Source: steam.NewClient(cfg, nil)}
		est, err := pipeline.DryRun(ctx, deps, args[0])
		if err != nil {
			return err
		}
		fmt.Println(est.String())
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [SEED]",
	Short: "Recompute metrics and re-export a stored crawl without fetching",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if fromFlag == "" && len(args) == 0 {
			return fmt.Errorf("rebuild needs a SEED or --from")
		}

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		deps := pipeline.Deps{Config: cfg}

		var res *pipeline.Result
		if fromFlag != "" {
			rec, err := export.ReadRecord(fromFlag)
			if err != nil {
				return err
			}
			logrus.Infof("Rebuilding %s from %s", rec.Seed, fromFlag)
			res, err = pipeline.Export(deps, rec)
			if err != nil {
				return err
			}
		} else {
			seed, err := model.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("rebuild needs a SteamID64: %w", err)
			}

			store, err := storage.NewStorage(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()
			deps.Store = store

			res, err = pipeline.Rebuild(context.Background(), deps, seed)
			if err != nil {
				return err
			}
		}

		printResult(res)
		return nil
	},
}

func printResult(res *pipeline.Result) {
	fmt.Printf("Seed %s: %d nodes, %d edges, %d hubs\n", res.Seed, res.Nodes, res.Edges, len(res.Hubs))
	top := res.Associates
	if len(top) > 10 {
		top = top[:10]
	}
	for i, s := range top {
		fmt.Printf("%2d. %s  score=%.4f mutual=%d jaccard=%.4f\n", i+1, s.Candidate, s.Score, s.Mutual, s.Jaccard)
	}
	fmt.Printf("Outputs written to %s\n", res.Paths.Dir)
}
