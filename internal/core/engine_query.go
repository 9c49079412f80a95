package core

import (
	"time"

	"agentkb/internal/logging"
	"agentkb/internal/term"
)

// =============================================================================
// INFERENCE
// =============================================================================

// Result is the outcome of an inference.
type Result struct {
	Value term.Tribool
	// Hypotheses is set when Value is Indeterminate: each term, if it were
	// added as a fact, would complete a proof of the goal. Terms are given in
	// surface form.
	Hypotheses []term.Term
}

// Infer decides goal in a context ("" is the default context).
func (e *Engine) Infer(goal, context string) (term.Tribool, error) {
	res, err := e.InferWithHypotheses(goal, context)
	return res.Value, err
}

// InferWithHypotheses decides goal and, when undecided, reports the
// hypotheses that would make it provable. The only error is a parse error.
func (e *Engine) InferWithHypotheses(goal, context string) (Result, error) {
	t, err := e.Parse(goal)
	if err != nil {
		return Result{}, err
	}
	return e.InferTerm(t, context)
}

// InferTerm is InferWithHypotheses for a built term.
func (e *Engine) InferTerm(goal term.Term, context string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	local, err := e.registry.Revalidate(goal)
	if err != nil {
		return Result{}, err
	}
	name := e.contextName(context)
	res := e.inferLocked(local, name)
	return res, nil
}

func (e *Engine) inferLocked(goal term.Term, name string) Result {
	start := time.Now()

	// Matching mints identities for names the context has never seen, so
	// inference runs on a copy and leaves the context untouched.
	ctx := e.lookupContext(name).Clone()
	dir := ctx.Directory()

	res := Result{Value: ctx.Matches(goal)}
	if res.Value == term.Indeterminate && goal.Kind == term.KindApplication {
		var hyps []term.Term
		res.Value, hyps = e.prove(ctx, dir.Adapt(goal))
		for _, h := range hyps {
			res.Hypotheses = append(res.Hypotheses, dir.DeadaptOne(h))
		}
	}
	elapsed := time.Since(start)
	logging.KernelDebug("Infer %s in %s: %s (%d hypotheses) in %v", goal, name, res.Value, len(res.Hypotheses), elapsed)

	if e.tracer != nil {
		trace := InferenceTrace{
			Context:   name,
			Goal:      goal.String(),
			Result:    res.Value,
			Duration:  elapsed,
			Timestamp: start,
		}
		for _, h := range res.Hypotheses {
			trace.Hypotheses = append(trace.Hypotheses, h.String())
		}
		if err := e.tracer.RecordInference(trace); err != nil {
			logging.KernelWarn("Failed to record inference trace: %v", err)
		}
	}
	return res
}

// InferAll returns every context in which goal holds, default context
// first.
func (e *Engine) InferAll(goal string) ([]string, error) {
	t, err := e.Parse(goal)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []string
	for _, name := range e.contextNamesLocked() {
		if e.inferLocked(t, name).Value == term.True {
			out = append(out, name)
		}
	}
	return out, nil
}
