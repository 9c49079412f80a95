// Package builtin provides the standard predicates every engine starts with:
// the identity predicate and its typed aliases, integer and real orderings,
// arithmetic relations, and the ordering rules that go with them.
package builtin

import (
	"agentkb/internal/term"
)

// RuleSpec is a rule in predicate text form.
type RuleSpec struct {
	ID   string
	If   []string
	Then []string
}

// =============================================================================
// ARGUMENT HELPERS
// =============================================================================

func ints(args []term.Term) ([]int64, bool) {
	out := make([]int64, len(args))
	for i, a := range args {
		if !a.IsConstant() || a.Const.Type != term.ConstInt {
			return nil, false
		}
		out[i] = a.Const.Int
	}
	return out, true
}

// doubles accepts real constants and widens integer constants.
func doubles(args []term.Term) ([]float64, bool) {
	out := make([]float64, len(args))
	for i, a := range args {
		if !a.IsConstant() {
			return nil, false
		}
		switch a.Const.Type {
		case term.ConstDouble:
			out[i] = a.Const.Double
		case term.ConstInt:
			out[i] = float64(a.Const.Int)
		default:
			return nil, false
		}
	}
	return out, true
}

func typed(t term.ConstType) term.Evaluator {
	return func(args []term.Term) term.Tribool {
		a, b := args[0], args[1]
		if !a.IsConstant() || !b.IsConstant() || a.Const.Type != t || b.Const.Type != t {
			return term.Indeterminate
		}
		return term.FromBool(a.Const.Equal(b.Const))
	}
}

func equalAny(args []term.Term) term.Tribool {
	a, b := args[0], args[1]
	if !a.IsConstant() || !b.IsConstant() {
		return term.Indeterminate
	}
	return term.FromBool(a.Const.Equal(b.Const))
}

func intRelation(fn func(v []int64) bool) term.Evaluator {
	return func(args []term.Term) term.Tribool {
		v, ok := ints(args)
		if !ok {
			return term.Indeterminate
		}
		return term.FromBool(fn(v))
	}
}

func doubleRelation(fn func(v []float64) bool) term.Evaluator {
	return func(args []term.Term) term.Tribool {
		v, ok := doubles(args)
		if !ok {
			return term.Indeterminate
		}
		return term.FromBool(fn(v))
	}
}

// =============================================================================
// STANDARD LIBRARY
// =============================================================================

// IdentityName is the canonical identity predicate.
const IdentityName = "equal"

// StandardFunctions lists the built-in predicates in registration order. The
// canonical identity predicate comes first.
func StandardFunctions() []term.FunctionSpec {
	pred := func(name string, arity int, ev term.Evaluator) term.FunctionSpec {
		return term.FunctionSpec{Name: name, Arity: arity, Kind: term.KindPredicate, Evaluator: ev}
	}
	ident := func(name string, ev term.Evaluator) term.FunctionSpec {
		return term.FunctionSpec{Name: name, Arity: 2, Kind: term.KindPredicate, Identity: true, Evaluator: ev}
	}
	return []term.FunctionSpec{
		ident(IdentityName, equalAny),
		ident("equal_int", typed(term.ConstInt)),
		ident("equal_double", typed(term.ConstDouble)),
		ident("equal_string", typed(term.ConstString)),
		ident("equal_bool", typed(term.ConstBool)),

		pred("less_int", 2, intRelation(func(v []int64) bool { return v[0] < v[1] })),
		pred("less_double", 2, doubleRelation(func(v []float64) bool { return v[0] < v[1] })),
		pred("less_equal_int", 2, intRelation(func(v []int64) bool { return v[0] <= v[1] })),
		pred("less_equal_double", 2, doubleRelation(func(v []float64) bool { return v[0] <= v[1] })),
		pred("greater_int", 2, intRelation(func(v []int64) bool { return v[0] > v[1] })),
		pred("greater_double", 2, doubleRelation(func(v []float64) bool { return v[0] > v[1] })),

		pred("plus_int", 3, intRelation(func(v []int64) bool { return v[0]+v[1] == v[2] })),
		pred("plus_double", 3, doubleRelation(func(v []float64) bool { return v[0]+v[1] == v[2] })),
		pred("minus_int", 3, intRelation(func(v []int64) bool { return v[0]-v[1] == v[2] })),
		pred("minus_double", 3, doubleRelation(func(v []float64) bool { return v[0]-v[1] == v[2] })),
		pred("times_int", 3, intRelation(func(v []int64) bool { return v[0]*v[1] == v[2] })),
		pred("times_double", 3, doubleRelation(func(v []float64) bool { return v[0]*v[1] == v[2] })),
	}
}

// StandardRules are the ordering rules loaded after StandardFunctions.
func StandardRules() []RuleSpec {
	return []RuleSpec{
		{
			ID:   "less_int_transitive",
			If:   []string{"less_int(A, B)", "less_int(B, C)"},
			Then: []string{"less_int(A, C)"},
		},
		{
			ID:   "less_double_transitive",
			If:   []string{"less_double(A, B)", "less_double(B, C)"},
			Then: []string{"less_double(A, C)"},
		},
	}
}
