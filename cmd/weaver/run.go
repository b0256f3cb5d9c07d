package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/crawler"
	"github.com/alvmarrod/steam-weaver/internal/metrics"
	"github.com/alvmarrod/steam-weaver/internal/pipeline"
	"github.com/alvmarrod/steam-weaver/internal/steam"
	"github.com/alvmarrod/steam-weaver/internal/storage"
	"github.com/alvmarrod/steam-weaver/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// signalContext is cancelled on the first SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runCrawl wires storage, fetcher and telemetry around a crawling pipeline
// call and shuts everything down in order, whatever the outcome
func runCrawl(do func(ctx context.Context, deps pipeline.Deps) (*pipeline.Result, error)) error {
	logrus.Infof("Steam Weaver v%s starting...", version.Version)

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	// Initialize storage
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	// The tracker is labelled per process; the crawl keeps its own run id
	tracker := metrics.NewTracker(uuid.NewString())
	client := steam.NewClient(cfg, tracker)
	logrus.Debugf("Fetcher: %s", client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal pauses the crawl, the second one exits immediately
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		logrus.Infof("Received signal: %v, pausing crawl (send again to force quit)", sig)
		cancel()

		sig = <-sigChan
		logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
		if err := tracker.WriteToFile(cfg.MetricsPath, "forced_exit"); err != nil {
			logrus.Errorf("Emergency metrics save failed: %v", err)
		}
		os.Exit(1)
	}()

	// Start progress logger
	var wg sync.WaitGroup
	stopProgress := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	deps := pipeline.Deps{Config: cfg, Source: client, Store: store, Tracker: tracker}
	res, runErr := do(ctx, deps)

	reason := "completed"
	switch {
	case errors.Is(runErr, crawler.ErrInterrupted):
		reason = "interrupted"
	case runErr != nil:
		reason = "failed"
	}

	logrus.Info("Initiating shutdown...")
	logrus.Info("Step 1/3: Stopping progress logger...")
	close(stopProgress)

	bgDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(bgDone)
	}()
	select {
	case <-bgDone:
	case <-time.After(5 * time.Second):
		logrus.Warn("Progress logger timeout (5s), continuing with shutdown")
	}

	logrus.Info("Step 2/3: Writing final metrics...")
	logrus.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}
	promPath := strings.TrimSuffix(cfg.MetricsPath, filepath.Ext(cfg.MetricsPath)) + ".prom"
	if err := tracker.WriteTextfile(promPath); err != nil {
		logrus.Errorf("Failed to write metrics textfile: %v", err)
	}

	logrus.Info("Step 3/3: Closing database connection...")

	if reason == "interrupted" && res != nil {
		logrus.Infof("Crawl paused; run `weaver resume %s` to continue", res.Seed)
		return nil
	}
	if runErr != nil {
		return runErr
	}

	printResult(res)
	logrus.Info("Shutdown complete. Goodbye!")
	return nil
}
