package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"agentkb/internal/logicvar"
	"agentkb/internal/term"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func addFacts(t *testing.T, e *Engine, context string, fs ...string) {
	t.Helper()
	for _, f := range fs {
		require.NoError(t, e.AddFact(f, context), f)
	}
}

func infer(t *testing.T, e *Engine, goal, context string) term.Tribool {
	t.Helper()
	v, err := e.Infer(goal, context)
	require.NoError(t, err, goal)
	return v
}

func strs(ts []term.Term) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

// =============================================================================
// EXAMPLE SCENARIOS
// =============================================================================

func TestScenario_ChainedSubstitutionAndTransitivity(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "",
		"equal_int(x, y)",
		"equal_int(x, 7)",
		"less_int(y, 9)",
		"less_int(z, y)",
	)
	assert.Equal(t, term.True, infer(t, e, "less_int(z, 12)", ""))
	assert.Equal(t, term.True, infer(t, e, "less_int(z, 9)", ""), "forward closure derives it directly")
	assert.Equal(t, term.True, infer(t, e, "less_int(x, 8)", ""), "evaluator on the bound value")
	assert.Equal(t, term.False, infer(t, e, "less_int(y, 3)", ""))
}

func TestScenario_DeclaredInconsistencyRejectsFact(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddRule("irreflexive", []string{"less_int(A, A)"}, nil))

	err := e.AddFact("less_int(h, h)", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistent), "got %v", err)
	assert.Equal(t, term.Indeterminate, infer(t, e, "less_int(h, h)", ""))
}

func TestScenario_HypothesisGeneration(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "distance", Arity: 2, Kind: term.KindFunction}))
	addFacts(t, e, "", "less_double(distance(center, object), 3.0)")

	res, err := e.InferWithHypotheses("less_double(distance(center, object), treshold)", "")
	require.NoError(t, err)
	assert.Equal(t, term.Indeterminate, res.Value)
	if diff := cmp.Diff([]string{"less_double(3.0, treshold)"}, strs(res.Hypotheses)); diff != "" {
		t.Errorf("hypotheses mismatch (-want +got):\n%s", diff)
	}
}

func TestScenario_InferAllDefaultFirst(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "task_b", "less_int(a, b)")
	addFacts(t, e, "", "less_int(a, b)")
	addFacts(t, e, "task_a", "less_int(b, a)")

	got, err := e.InferAll("less_int(a, b)")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "task_b"}, got)
	assert.Equal(t, []string{"default", "task_a", "task_b"}, e.Contexts())
}

// =============================================================================
// IDENTITY AND CONGRUENCE
// =============================================================================

func TestIdentityRelation(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "", "less_int(a, q)", "equal(a, b)", "equal(b, c)")

	tests := []struct {
		goal string
		want term.Tribool
	}{
		{"equal(a, a)", term.True},
		{"equal(b, a)", term.True},
		{"equal(a, c)", term.True},
		{"equal(c, a)", term.True},
		{"equal(a, q)", term.Indeterminate},
		{"equal(zed, zed)", term.Indeterminate},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			assert.Equal(t, tt.want, infer(t, e, tt.goal, ""))
		})
	}
}

func TestPredicateCongruence(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "owns", Arity: 2}))
	addFacts(t, e, "", "owns(alice, car)", "equal(car, vehicle_1)")

	assert.Equal(t, term.True, infer(t, e, "owns(alice, vehicle_1)", ""))
	assert.Contains(t, strs(e.Facts("")), "owns(alice, car)")
}

func TestFunctionCongruence(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "distance", Arity: 2, Kind: term.KindFunction}))
	addFacts(t, e, "",
		"less_double(distance(a, o), 3.0)",
		"equal(a, b)",
	)
	assert.Equal(t, term.True, infer(t, e, "equal(distance(a, o), distance(b, o))", ""))
	assert.Equal(t, term.True, infer(t, e, "less_double(distance(b, o), 3.0)", ""))
}

func TestCongruenceRulesAreGenerated(t *testing.T) {
	e := newEngine(t)
	before := len(e.Rules())
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "between", Arity: 3}))
	assert.Equal(t, before+3, len(e.Rules()))

	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "equal_color", Arity: 2, Identity: true}))
	assert.Equal(t, before+3, len(e.Rules()), "identity aliases get no congruence rules")
}

func TestCongruenceBackfilledWhenIdentityRegisteredLate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StandardLibrary = false
	cfg.StandardRules = false
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "p", Arity: 2}))
	assert.Empty(t, e.Rules())
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "same", Arity: 2, Identity: true}))
	assert.Len(t, e.Rules(), 2)
}

// =============================================================================
// UPDATE DISCIPLINE
// =============================================================================

func TestAddFactIsIdempotent(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "", "less_int(a, b)", "equal(a, 1)")
	n := e.FactCount("")

	require.NoError(t, e.AddFact("less_int(a, b)", ""))
	require.NoError(t, e.AddFact("equal(a, 1)", ""))
	assert.Equal(t, n, e.FactCount(""))
}

func TestAddFactIsAtomic(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "", "equal_int(x, 7)", "less_int(y, x)")
	before := e.Facts("")

	err := e.AddFact("equal_int(x, 8)", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, logicvar.ErrConflictingFacts), "got %v", err)

	err = e.AddFact("less_int(x, 3)", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistent), "got %v", err)

	if diff := cmp.Diff(strs(before), strs(e.Facts(""))); diff != "" {
		t.Errorf("facts changed after rejected updates (-before +after):\n%s", diff)
	}
	assert.Equal(t, term.True, infer(t, e, "equal_int(x, 7)", ""))
	assert.Equal(t, term.True, infer(t, e, "less_int(y, x)", ""))
}

func TestAddRuleClosesExistingContexts(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "parent", Arity: 2}))
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "ancestor", Arity: 2}))
	addFacts(t, e, "", "parent(ann, bob)", "parent(bob, cid)")
	addFacts(t, e, "family", "parent(dan, eve)")

	require.NoError(t, e.AddRule("base", []string{"parent(A, B)"}, []string{"ancestor(A, B)"}))
	require.NoError(t, e.AddRule("step", []string{"ancestor(A, B)", "parent(B, C)"}, []string{"ancestor(A, C)"}))

	assert.Equal(t, term.True, infer(t, e, "ancestor(ann, cid)", ""))
	assert.Equal(t, term.True, infer(t, e, "ancestor(dan, eve)", "family"))
	assert.Equal(t, term.Indeterminate, infer(t, e, "ancestor(cid, ann)", ""))
}

func TestAddRuleRejectedWhenContextBecomesInconsistent(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "other", "less_int(h, h)")
	rules := len(e.Rules())

	err := e.AddRule("irreflexive", []string{"less_int(A, A)"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistent))
	assert.Len(t, e.Rules(), rules)
	assert.Equal(t, term.True, infer(t, e, "less_int(h, h)", "other"))
}

func TestAddRuleDuplicate(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddRule("r", []string{"less_int(A, B)"}, []string{"less_equal_int(A, B)"}))
	err := e.AddRule("r", []string{"less_int(A, B)"}, []string{"less_equal_int(A, B)"})
	assert.True(t, errors.Is(err, ErrDuplicateRule))
}

func TestAddFactsStopsAtFirstFailure(t *testing.T) {
	e := newEngine(t)
	err := e.AddFacts([]string{"less_int(a, b)", "nope(a)", "less_int(b, c)"}, "task_1")
	assert.True(t, errors.Is(err, term.ErrUnknownFunction), "got %v", err)
	assert.Equal(t, term.True, infer(t, e, "less_int(a, b)", "task_1"))
	assert.Equal(t, term.Indeterminate, infer(t, e, "less_int(b, c)", "task_1"))
}

func TestFixpointLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFixpointIterations = 1
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	err = e.AddFact("less_int(a, b)", "")
	require.NoError(t, err, "nothing to derive from a single fact")

	err = e.AddFact("less_int(b, c)", "")
	assert.True(t, errors.Is(err, ErrFixpointDiverged), "got %v", err)
}

func TestFixpointLimitDefaultStopsGenerativeRule(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "p", Arity: 1}))
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "f", Arity: 1, Kind: term.KindFunction}))
	require.NoError(t, e.AddRule("grow", []string{"p(X)"}, []string{"p(f(X))"}))

	start := time.Now()
	err := e.AddFact("p(a)", "")
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, ErrFixpointDiverged), "got %v", err)
	assert.Less(t, elapsed, 30*time.Second, "default limit must stop the closure promptly")
	assert.Equal(t, 0, e.FactCount(""), "diverged update is not committed")
}

// =============================================================================
// PARSING AND IMPORT
// =============================================================================

func TestParseErrorsSurface(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		text string
		want error
	}{
		{"nope(a)", term.ErrUnknownFunction},
		{"less_int(a)", term.ErrArityMismatch},
		{"less_int(a, ", term.ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			err := e.AddFact(tt.text, "")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			_, err = e.Infer(tt.text, "")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Equal(t, 0, e.FactCount(""))
}

func TestAddFactTermFromForeignRegistry(t *testing.T) {
	foreign := term.NewRegistry()
	_, err := foreign.Register(term.FunctionSpec{Name: "pad", Arity: 1})
	require.NoError(t, err)
	_, err = foreign.Register(term.FunctionSpec{Name: "less_int", Arity: 2})
	require.NoError(t, err)

	e := newEngine(t)
	require.NoError(t, e.AddFactTerm(term.MustParse("less_int(a, 3)", foreign), ""))
	assert.Equal(t, term.True, infer(t, e, "less_int(a, 3)", ""))

	err = e.AddFactTerm(term.MustParse("pad(a)", foreign), "")
	assert.True(t, errors.Is(err, term.ErrUnknownFunction))
}

func TestAddFactRejectsFunctions(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterFunction(term.FunctionSpec{Name: "distance", Arity: 2, Kind: term.KindFunction}))
	assert.Error(t, e.AddFact("distance(a, b)", ""))
}

// =============================================================================
// TRACING
// =============================================================================

type recordingTracer struct {
	traces []InferenceTrace
}

func (r *recordingTracer) RecordInference(t InferenceTrace) error {
	r.traces = append(r.traces, t)
	return nil
}

func TestTracerRecordsInferences(t *testing.T) {
	tr := &recordingTracer{}
	e, err := NewEngine(DefaultConfig(), WithTracer(tr))
	require.NoError(t, err)
	addFacts(t, e, "", "less_int(a, 3)")

	_, err = e.Infer("less_int(a, 3)", "")
	require.NoError(t, err)
	_, err = e.Infer("less_int(a, 5)", "task")
	require.NoError(t, err)

	require.Len(t, tr.traces, 2)
	assert.Equal(t, "default", tr.traces[0].Context)
	assert.Equal(t, term.True, tr.traces[0].Result)
	assert.Equal(t, "less_int(a, 3)", tr.traces[0].Goal)
	assert.Equal(t, "task", tr.traces[1].Context)
	assert.Equal(t, term.Indeterminate, tr.traces[1].Result)
}

func TestInferDoesNotMutateContext(t *testing.T) {
	e := newEngine(t)
	addFacts(t, e, "", "less_int(a, 3)")
	n := e.FactCount("")
	_, err := e.InferWithHypotheses("less_int(brand_new, 3)", "")
	require.NoError(t, err)
	assert.Equal(t, n, e.FactCount(""))
	assert.Equal(t, []string{"default"}, e.Contexts())
}
