package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agentkb/internal/store"
	"agentkb/internal/term"
)

var (
	tracesLimit   int
	tracesContext string
	tracesStats   bool
	tracesPrune   time.Duration
)

// tracesCmd lists recorded inferences
var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "List recorded inference traces",
	Long: `Reads the sqlite trace store (trace.database_path in the config) and
prints the most recent inferences, newest first.

Examples:
  agentkb traces --limit 20
  agentkb traces --context task_42
  agentkb traces --stats
  agentkb traces --prune 168h`,
	Args: cobra.NoArgs,
	RunE: runTraces,
}

func init() {
	tracesCmd.Flags().IntVarP(&tracesLimit, "limit", "n", 20, "Maximum number of traces")
	tracesCmd.Flags().StringVarP(&tracesContext, "context", "c", "", "Only traces of this context")
	tracesCmd.Flags().BoolVar(&tracesStats, "stats", false, "Print counts per result instead of traces")
	tracesCmd.Flags().DurationVar(&tracesPrune, "prune", 0, "Delete traces older than this before listing")
}

func runTraces(cmd *cobra.Command, args []string) error {
	ts, err := store.NewTraceStore(appCfg.Trace.DatabasePath)
	if err != nil {
		return err
	}
	defer ts.Close()

	out := cmd.OutOrStdout()
	if tracesPrune > 0 {
		n, err := ts.Cleanup(tracesPrune)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("pruned %d traces", n)))
	}
	if tracesStats {
		stats, err := ts.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d traces, avg %.1fms", stats.Total, stats.AvgMs)))
		results := make([]string, 0, len(stats.ByResult))
		for r := range stats.ByResult {
			results = append(results, r)
		}
		sort.Strings(results)
		for _, r := range results {
			fmt.Fprintf(out, "  %-14s %d\n", r, stats.ByResult[r])
		}
		return nil
	}

	var traces []store.TraceRecord
	if tracesContext != "" {
		traces, err = ts.ByContext(tracesContext, tracesLimit)
	} else {
		traces, err = ts.Recent(tracesLimit)
	}
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no traces"))
		return nil
	}
	for _, tr := range traces {
		v, _ := term.ParseTribool(tr.Result)
		fmt.Fprintf(out, "%s  %-12s %s  %s\n",
			mutedStyle.Render(tr.CreatedAt.Format("2006-01-02 15:04:05")),
			tr.Context, tr.Goal, renderResult(v))
		if len(tr.Hypotheses) > 0 {
			fmt.Fprintf(out, "    hypotheses: %s\n", strings.Join(tr.Hypotheses, "; "))
		}
	}
	return nil
}
