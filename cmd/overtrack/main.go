package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"overtrack/internal/config"
	"overtrack/internal/diff"
	"overtrack/internal/manifest"
	"overtrack/internal/override"
	"overtrack/internal/tree"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// exitCheckFailed signals that overrides failed validation or upgrade,
// as opposed to the tool itself erroring out.
const exitCheckFailed = 2

// exitCode is recorded by subcommands and applied only after
// ExecuteContext returns, so logger sync and signal teardown still run.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "overtrack",
	Short: "overtrack - track and reconcile upstream override files",
	Long: `overtrack tracks files in a downstream tree that shadow, patch or extend
an upstream source tree. Each tracked override records the upstream
content hash it was last reconciled against; when the upstream moves,
overtrack detects the drift and brings the override back up to date by
re-copying or three-way merging.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Log.Development {
			zcfg = zap.NewDevelopmentConfig()
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// newEngine loads the manifest and wires the trees configured in cfg.
func newEngine() (*manifest.Engine, *manifest.Manifest, error) {
	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("load manifest: %w", err)
	}
	overrides := tree.NewDirTree(cfg.Trees.OverrideRoot)
	base := tree.NewSnapshotDirTree(cfg.Trees.BaseRoot, cfg.Trees.SnapshotsDir)
	factory := override.NewTreeFactory(base, cfg.Trees.Version)

	eng := manifest.NewEngine(m, overrides, base, factory, logger)
	eng.Concurrency = cfg.Upgrade.Concurrency
	eng.AllowConflicts = cfg.Upgrade.AllowConflicts
	return eng, m, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every tracked override against the current upstream",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		report, err := eng.Validate(cmd.Context())
		if err != nil {
			return err
		}

		failed := 0
		for _, e := range report.Entries {
			if e.OK() {
				fmt.Printf("ok    %s\n", e.Name)
				continue
			}
			failed++
			for _, f := range e.Failures() {
				fmt.Printf("FAIL  %s  [%s] %s\n", e.Name, f.Code, f.Reason)
			}
		}
		fmt.Printf("%d override(s) checked, %d failed\n", len(report.Entries), failed)
		if failed > 0 {
			exitCode = exitCheckFailed
		}
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Bring stale overrides up to date against the current upstream",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, m, err := newEngine()
		if err != nil {
			return err
		}
		report, err := eng.Upgrade(cmd.Context())
		if err != nil {
			return err
		}

		upgraded := 0
		for _, e := range report.Entries {
			switch e.Action {
			case manifest.ActionUpgraded:
				upgraded++
				note := ""
				if e.Normalized {
					note = "  (line endings normalized)"
				}
				fmt.Printf("upgraded    %s%s\n", e.Name, note)
			case manifest.ActionUpToDate:
				fmt.Printf("up-to-date  %s\n", e.Name)
			case manifest.ActionConflicted:
				fmt.Printf("CONFLICT    %s  (%d region(s)) %s\n", e.Name, e.Conflicts, e.Reason)
			case manifest.ActionSkipped:
				fmt.Printf("skipped     %s  %s\n", e.Name, e.Reason)
			case manifest.ActionFailed:
				fmt.Printf("FAILED      %s  %s\n", e.Name, e.Reason)
			}
		}

		if upgraded > 0 {
			if err := manifest.Save(cfg.Manifest, m); err != nil {
				return fmt.Errorf("save manifest: %w", err)
			}
			logger.Info("manifest saved",
				zap.String("path", cfg.Manifest),
				zap.Int("upgraded", upgraded))
		}
		if !report.OK() {
			exitCode = exitCheckFailed
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <override-name>",
	Short: "Show what an override changes relative to its upstream base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		body, err := eng.Diff(cmd.Context(), args[0], diff.Options{
			MaxBytes: cfg.Diff.MaxBytes,
			Context:  cfg.Diff.Context,
		})
		if err != nil {
			return err
		}
		if body == "" {
			fmt.Printf("%s: no differences\n", args[0])
			return nil
		}
		fmt.Print(body)
		return nil
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Manifest maintenance commands",
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Structurally validate the manifest without touching the trees",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return err
		}
		if err := m.Check(); err != nil {
			return err
		}
		fmt.Printf("manifest ok: %d override(s)\n", m.Len())
		return nil
	},
}

var manifestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return err
		}
		for _, rec := range m.Records() {
			name := rec.File
			if rec.Directory != "" {
				name = rec.Directory
			}
			fmt.Printf("%-10s %s\n", rec.Type, name)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "overtrack.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	manifestCmd.AddCommand(manifestCheckCmd, manifestListCmd)
	rootCmd.AddCommand(validateCmd, upgradeCmd, diffCmd, manifestCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "overtrack: %v\n", err)
		exitCode = 1
	}
	stop()
	os.Exit(exitCode)
}
