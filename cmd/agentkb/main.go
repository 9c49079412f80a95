// Command agentkb loads knowledge-base files into the inference engine and
// answers, checks, dumps and watches them from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agentkb/internal/config"
	"agentkb/internal/core"
	"agentkb/internal/kb"
	"agentkb/internal/logging"
	"agentkb/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	kbPaths    []string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	appCfg = config.DefaultConfig()

	// Logger
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "agentkb",
	Short: "agentkb - shared knowledge base and inference engine for agents",
	Long: `agentkb keeps facts about named entities in per-task contexts, closes
them under declared rules, and answers goals with true, false or
indeterminate. Undecided goals come back with the hypotheses that would
settle them.

Knowledge-base files are YAML documents declaring functions, rules, facts
per context, and queries with their expected answers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		appCfg = cfg
		if len(kbPaths) == 0 {
			kbPaths = appCfg.KB.Paths
		}

		// Initialize logger
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose {
			logging.InitializeWith(logger)
		} else if err := logging.Initialize(appCfg.Logging.ToLogging()); err != nil {
			return err
		}
		if f := cmd.Flag("config"); f != nil && f.Changed {
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				logging.BootWarn("Config file %s not found, using defaults", configPath)
			}
		}
		logging.Boot("agentkb starting (kb files: %d)", len(kbPaths))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".agentkb/config.yaml", "Config file")
	rootCmd.PersistentFlags().StringSliceVar(&kbPaths, "kb", nil, "Knowledge-base file (repeatable; default: kb.paths from config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tracesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLoader returns a loader configured from appCfg. When tracing is enabled
// the returned close function closes the trace store.
func newLoader() (*kb.Loader, func(), error) {
	var opts []core.Option
	closeFn := func() {}
	if appCfg.Trace.Enabled {
		ts, err := store.NewTraceStore(appCfg.Trace.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, core.WithTracer(ts))
		closeFn = func() {
			if err := ts.Close(); err != nil {
				logger.Warn("Failed to close trace store", zap.Error(err))
			}
		}
	}
	return kb.NewLoader(appCfg.ToEngine(), opts...), closeFn, nil
}

// loadEngine builds an engine from the --kb files.
func loadEngine(ctx context.Context) (*core.Engine, []*kb.File, func(), error) {
	if len(kbPaths) == 0 {
		return nil, nil, nil, fmt.Errorf("no knowledge-base files: pass --kb or set kb.paths in %s", configPath)
	}
	loader, closeFn, err := newLoader()
	if err != nil {
		return nil, nil, nil, err
	}
	e, files, err := loader.Build(ctx, kbPaths...)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	logger.Debug("Loaded knowledge base", zap.Strings("files", kbPaths), zap.Strings("contexts", e.Contexts()))
	return e, files, closeFn, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, timeout)
}
