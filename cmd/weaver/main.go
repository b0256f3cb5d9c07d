package main

import (
	"fmt"
	"os"

	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:     "weaver",
		Short:   "Map the Steam friend graph around a seed account",
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	configPath string
	verbose    bool
)

func main() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	scanCmd.Flags().IntVar(&depthFlag, "depth", 0, "Override the configured crawl depth")
	scanCmd.Flags().IntVar(&maxNodesFlag, "max-nodes", 0, "Override the configured node cap")
	resumeCmd.Flags().IntVar(&depthFlag, "depth", 0, "Resume to a deeper crawl depth")
	dryRunCmd.Flags().IntVar(&depthFlag, "depth", 0, "Override the configured crawl depth")
	dryRunCmd.Flags().IntVar(&maxNodesFlag, "max-nodes", 0, "Override the configured node cap")
	rebuildCmd.Flags().StringVar(&fromFlag, "from", "", "Rebuild from a scan.json file instead of the database")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(dryRunCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(rebuildCmd)
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(needKey bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if depthFlag > 0 {
		cfg.Depth = depthFlag
	}
	if maxNodesFlag > 0 {
		cfg.MaxNodes = maxNodesFlag
	}
	if needKey {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
	}

	logrus.Infof("Configuration loaded: depth=%d, max_nodes=%d, rate=%d/min, skip_private=%t",
		cfg.Depth, cfg.MaxNodes, cfg.RateLimitRPM, cfg.SkipPrivate)
	return cfg, nil
}
