package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentkb/internal/kb"
)

var (
	inferContext string
	inferAll     bool
)

// inferCmd answers a goal
var inferCmd = &cobra.Command{
	Use:   "infer [goal]",
	Short: "Decide a goal against the knowledge base",
	Long: `Loads the knowledge-base files and decides the goal in one context.
Undecided goals are printed with the hypotheses that would prove them.

Examples:
  agentkb infer --kb kb.yaml "less_int(z, 12)"
  agentkb infer --kb kb.yaml --context task_42 "near(a, b)"
  agentkb infer --kb kb.yaml --all "less_int(z, 12)"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfer,
}

// checkCmd runs the queries declared in the KB files
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the queries declared in the knowledge base",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	inferCmd.Flags().StringVarP(&inferContext, "context", "c", "", "Context to reason in (default: engine default context)")
	inferCmd.Flags().BoolVar(&inferAll, "all", false, "List every context in which the goal holds")
}

func runInfer(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, _, closeFn, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	goal := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if inferAll {
		contexts, err := e.InferAll(goal)
		if err != nil {
			return err
		}
		logger.Info("Inferred in all contexts", zap.String("goal", goal), zap.Int("holds_in", len(contexts)))
		if len(contexts) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("no context"))
			return nil
		}
		for _, c := range contexts {
			fmt.Fprintln(out, c)
		}
		return nil
	}

	res, err := e.InferWithHypotheses(goal, inferContext)
	if err != nil {
		return err
	}
	logger.Info("Inferred", zap.String("goal", goal), zap.String("result", res.Value.String()))

	fmt.Fprintln(out, renderResult(res.Value))
	if len(res.Hypotheses) > 0 {
		fmt.Fprintln(out, headerStyle.Render("hypotheses"))
		for _, h := range res.Hypotheses {
			fmt.Fprintf(out, "  %s\n", h)
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, files, closeFn, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rep := kb.Check(e, files...)
	printReport(cmd, rep)
	if !rep.OK() {
		return fmt.Errorf("%d of %d queries failed", len(rep.Mismatches), rep.Total)
	}
	return nil
}

func printReport(cmd *cobra.Command, rep kb.Report) {
	out := cmd.OutOrStdout()
	for _, m := range rep.Mismatches {
		fmt.Fprintf(out, "%s %s\n", falseStyle.Render("FAIL"), m)
	}
	fmt.Fprintf(out, "%d/%d queries passed\n", rep.Passed, rep.Total)
}
