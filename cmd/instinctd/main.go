// Package main implements the instinctd CLI: event capture, pattern mining,
// promotion, and checkpoint management for agent-session learning state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/checkpoint"
	"github.com/fyrsmithlabs/instinctd/internal/config"
	"github.com/fyrsmithlabs/instinctd/internal/event"
	"github.com/fyrsmithlabs/instinctd/internal/logging"
	"github.com/fyrsmithlabs/instinctd/internal/pattern"
	"github.com/fyrsmithlabs/instinctd/internal/promotion"
	"github.com/fyrsmithlabs/instinctd/internal/state"
	"github.com/fyrsmithlabs/instinctd/internal/telemetry"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	// global flags
	configPath string
	stateRoot  string
	outputJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "instinctd",
	Short: "Learning pipeline for agent sessions",
	Long: `instinctd records notable events from interactive agent sessions, mines
them for recurring patterns, promotes high-confidence patterns into reusable
artifacts, and snapshots the whole learning state as checkpoints.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.config/instinctd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateRoot, "state-root", "", "State directory (default ~/.local/share/instinctd)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output results as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the instinctd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("instinctd %s\n", version)
		},
	})
}

// app bundles the wired components behind every command.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	tel         *telemetry.Telemetry
	root        *state.StateRoot
	recorder    *event.Recorder
	patterns    *pattern.Store
	miner       *pattern.Miner
	promoter    *promotion.Engine
	checkpoints *checkpoint.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if stateRoot != "" {
		cfg.State.Root = stateRoot
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	tel := telemetry.New(ctx, cfg.Telemetry, version)
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn("telemetry degraded", zap.String("reason", reason))
	}

	root, err := state.Open(cfg.State.Root)
	if err != nil {
		return nil, err
	}

	recorder, err := event.NewRecorder(&event.Config{
		RolloverThreshold: cfg.Events.RolloverThreshold,
	}, root, logger)
	if err != nil {
		return nil, err
	}

	patterns, err := pattern.NewStore(root, logger)
	if err != nil {
		return nil, err
	}

	miner, err := pattern.NewMiner(recorder, patterns, logger)
	if err != nil {
		return nil, err
	}

	promoter, err := promotion.NewEngine(patterns, root, logger)
	if err != nil {
		return nil, err
	}

	checkpoints, err := checkpoint.NewStore(recorder, patterns, root, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		tel:         tel,
		root:        root,
		recorder:    recorder,
		patterns:    patterns,
		miner:       miner,
		promoter:    promoter,
		checkpoints: checkpoints,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = logging.Sync(a.logger)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
