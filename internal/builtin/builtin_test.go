package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentkb/internal/term"
)

func registry(t *testing.T) *term.Registry {
	t.Helper()
	reg := term.NewRegistry()
	for _, spec := range StandardFunctions() {
		_, err := reg.Register(spec)
		require.NoError(t, err, spec.Name)
	}
	return reg
}

func eval(t *testing.T, reg *term.Registry, text string) term.Tribool {
	t.Helper()
	goal := term.MustParse(text, reg)
	e := reg.Entry(goal.Func)
	require.NotNil(t, e.Evaluator, "%s has no evaluator", e.Name)
	return e.Evaluator(goal.Args)
}

func TestStandardFunctionsIdentity(t *testing.T) {
	reg := registry(t)
	id, ok := reg.IdentityPredicate()
	require.True(t, ok)
	assert.Equal(t, IdentityName, reg.Entry(id).Name)

	for _, alias := range []string{"equal_int", "equal_double", "equal_string", "equal_bool"} {
		e, ok := reg.Lookup(alias)
		require.True(t, ok, alias)
		assert.True(t, e.Identity, alias)
	}
}

func TestStandardEvaluators(t *testing.T) {
	reg := registry(t)
	tests := []struct {
		goal string
		want term.Tribool
	}{
		{"equal(1, 1)", term.True},
		{"equal(1, 1.0)", term.False},
		{"equal(x, 1)", term.Indeterminate},
		{"equal_int(1, 2)", term.False},
		{"equal_int(1.0, 1.0)", term.Indeterminate},
		{`equal_string("a", "a")`, term.True},
		{"equal_bool(true, false)", term.False},
		{"less_int(1, 2)", term.True},
		{"less_int(2, 2)", term.False},
		{"less_int(1.5, 2)", term.Indeterminate},
		{"less_double(1.5, 2)", term.True},
		{"less_double(3.0, treshold)", term.Indeterminate},
		{"less_equal_int(2, 2)", term.True},
		{"greater_double(2.5, 2.5)", term.False},
		{"plus_int(2, 3, 5)", term.True},
		{"plus_int(2, 3, 6)", term.False},
		{"minus_double(5.5, 0.5, 5.0)", term.True},
		{"times_int(3, 4, 12)", term.True},
		{"times_double(x, 4.0, 12.0)", term.Indeterminate},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, reg, tt.goal))
		})
	}
}

func TestStandardRulesParse(t *testing.T) {
	reg := registry(t)
	for _, r := range StandardRules() {
		_, err := term.ParseAll(r.If, reg)
		require.NoError(t, err, r.ID)
		_, err = term.ParseAll(r.Then, reg)
		require.NoError(t, err, r.ID)
	}
}

func TestCompileExpr(t *testing.T) {
	ev, err := CompileExpr("args[0] == args[1]", 2)
	require.NoError(t, err)

	c := func(v term.Constant) term.Term { return term.NewConstant(v) }
	assert.Equal(t, term.True, ev([]term.Term{c(term.String("x")), c(term.String("x"))}))
	assert.Equal(t, term.False, ev([]term.Term{c(term.Int(1)), c(term.Int(2))}))
	assert.Equal(t, term.Indeterminate, ev([]term.Term{term.NewIdentity(1), c(term.Int(2))}))

	between, err := CompileExpr("a < b && b < c", 3)
	require.NoError(t, err)
	assert.Equal(t, term.True, between([]term.Term{c(term.Int(1)), c(term.Int(2)), c(term.Int(3))}))
}

func TestCompileExprRejectsBadSource(t *testing.T) {
	_, err := CompileExpr("args[0] ==", 2)
	assert.Error(t, err)
}
