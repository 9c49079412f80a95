package builtin

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"agentkb/internal/term"
)

// CompileExpr builds an evaluator from an expr-lang boolean expression. The
// expression sees the arguments as `args` (a list) and as `a`, `b`, `c`, `d`
// for the first four positions. The evaluator returns Indeterminate unless
// every argument is a constant and the program yields a bool.
func CompileExpr(src string, arity int) (term.Evaluator, error) {
	prg, err := expr.Compile(src, expr.Env(exprEnv{Args: make([]interface{}, arity)}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile evaluator %q: %w", src, err)
	}
	return func(args []term.Term) term.Tribool {
		values := make([]interface{}, len(args))
		for i, a := range args {
			if !a.IsConstant() {
				return term.Indeterminate
			}
			values[i] = a.Const.Value()
		}
		return runProgram(prg, values)
	}, nil
}

func runProgram(prg *vm.Program, values []interface{}) term.Tribool {
	out, err := expr.Run(prg, newExprEnv(values))
	if err != nil {
		return term.Indeterminate
	}
	b, ok := out.(bool)
	if !ok {
		return term.Indeterminate
	}
	return term.FromBool(b)
}

// exprEnv is the environment evaluator expressions run in. Untyped fields
// let expressions compare and combine values of any constant type.
type exprEnv struct {
	Args []interface{} `expr:"args"`
	A    interface{}   `expr:"a"`
	B    interface{}   `expr:"b"`
	C    interface{}   `expr:"c"`
	D    interface{}   `expr:"d"`
}

func newExprEnv(values []interface{}) exprEnv {
	env := exprEnv{Args: values}
	for i, slot := range []*interface{}{&env.A, &env.B, &env.C, &env.D} {
		if i < len(values) {
			*slot = values[i]
		}
	}
	return env
}
