package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentkb/internal/mangle"
)

var (
	dumpContext string
	dumpProgram string
)

// dumpCmd prints a context through the Mangle export
var dumpCmd = &cobra.Command{
	Use:   "dump [predicate]",
	Short: "Dump the facts of a context",
	Long: `Exports a context to a Mangle fact store and prints it. With a
predicate, prints that predicate's rows. With --program, evaluates a Mangle
program over the export first, so derived predicates can be dumped.

Examples:
  agentkb dump --kb kb.yaml
  agentkb dump --kb kb.yaml --context task_42 less_double
  agentkb dump --kb kb.yaml --program views.mg ancestor`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpContext, "context", "c", "", "Context to dump (default: engine default context)")
	dumpCmd.Flags().StringVar(&dumpProgram, "program", "", "Mangle program to evaluate over the export")
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, _, closeFn, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	snap, err := mangle.Export(e, dumpContext)
	if err != nil {
		return err
	}
	if dumpProgram != "" {
		src, err := os.ReadFile(dumpProgram)
		if err != nil {
			return fmt.Errorf("failed to read program: %w", err)
		}
		if err := snap.Eval(string(src)); err != nil {
			return err
		}
	}
	logger.Debug("Exported context", zap.String("context", snap.Context), zap.Int("facts", snap.FactCount()))

	out := cmd.OutOrStdout()
	preds := snap.Predicates()
	if len(args) == 1 {
		preds = []string{args[0]}
	}
	for _, p := range preds {
		rows, err := snap.Query(p)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s (%d)", p, len(rows))))
		for _, row := range rows {
			fmt.Fprintf(out, "  %s%s\n", p, formatRow(row))
		}
	}
	for _, s := range snap.Skipped() {
		fmt.Fprintln(out, mutedStyle.Render("skipped: "+s))
	}
	return nil
}

func formatRow(row []interface{}) string {
	s := "("
	for i, v := range row {
		if i > 0 {
			s += ", "
		}
		if str, ok := v.(string); ok && (len(str) == 0 || str[0] != '/') {
			s += fmt.Sprintf("%q", str)
			continue
		}
		s += fmt.Sprint(v)
	}
	return s + ")"
}
