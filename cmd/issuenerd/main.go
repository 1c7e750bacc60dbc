package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"issuenerd/internal/classify"
	"issuenerd/internal/config"
	"issuenerd/internal/feedback"
	"issuenerd/internal/logging"
	"issuenerd/internal/outcome"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	sinceDays  int

	// Loaded in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "issuenerd",
	Short: "issueNERD - outcome feedback for automated issue resolution",
	Long: `issueNERD records the outcome of automated resolution attempts on
work items, aggregates per-category success metrics, and turns them
into weighting guidance for the work-item generation side.

It also reconciles locally RESOLVED attempts against the review
platform so that merge/close outcomes eventually land in the metrics.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("categorized logging unavailable", zap.Error(err))
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// openStore opens the configured outcome store. Callers own Close.
func openStore() (*outcome.Store, error) {
	store, err := outcome.NewStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome store: %w", err)
	}
	store.SetStrictTerminal(cfg.Store.StrictTerminal)
	return store, nil
}

// openAnalyzer opens the store and wraps it in a configured analyzer.
func openAnalyzer() (*feedback.Analyzer, *outcome.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	analyzer, err := feedback.NewAnalyzer(store, classifier, cfg.Feedback)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return analyzer, store, nil
}

// sinceWindow maps the --since flag to an aggregation lower bound.
// Zero days means the configured default lookback; negative means all
// history.
func sinceWindow() time.Time {
	switch {
	case sinceDays < 0:
		return time.Time{}
	case sinceDays == 0:
		return time.Now().UTC().Add(-config.LookbackWindow)
	default:
		return time.Now().UTC().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	}
}

func defaultClassifier() *classify.Classifier {
	c, err := cfg.Classifier()
	if err != nil {
		return classify.Default()
	}
	return c
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "issuenerd.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for logs")
	rootCmd.PersistentFlags().IntVar(&sinceDays, "since", 0, "lookback window in days (0 = default, -1 = all history)")

	rootCmd.AddCommand(attemptCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(guidanceCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(maintenanceCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
