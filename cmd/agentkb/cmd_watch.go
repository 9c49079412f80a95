package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentkb/internal/core"
	"agentkb/internal/kb"
)

// watchCmd reloads the knowledge base on change and re-runs its queries
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload the knowledge base on change and re-run its queries",
	Long: `Watches the knowledge-base files. After every change the engine is
rebuilt from scratch and the declared queries are checked again. A change
that fails to load is reported and the previous engine is kept.

Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial load surfaces errors before we start waiting.
	loadCtx, cancel := commandContext(cmd)
	e, files, closeFn, err := loadEngine(loadCtx)
	cancel()
	if err != nil {
		return err
	}
	defer closeFn()
	printReport(cmd, kb.Check(e, files...))

	loader, closeLoader, err := newLoader()
	if err != nil {
		return err
	}
	defer closeLoader()

	out := cmd.OutOrStdout()
	w, err := kb.NewWatcher(loader, kbPaths, appCfg.GetDebounce(), func(ne *core.Engine, nf []*kb.File, err error) {
		if err != nil {
			logger.Warn("Reload failed", zap.Error(err))
			fmt.Fprintf(out, "%s %v\n", falseStyle.Render("reload failed:"), err)
			return
		}
		e, files = ne, nf
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("reloaded %d files", len(files))))
		printReport(cmd, kb.Check(e, files...))
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	logger.Info("Watching knowledge base", zap.Strings("files", w.Paths()))

	<-ctx.Done()
	w.Stop()
	return nil
}
