package core

import (
	"fmt"

	"agentkb/internal/facts"
	"agentkb/internal/logging"
	"agentkb/internal/rules"
	"agentkb/internal/term"
)

// =============================================================================
// FORWARD CHAINING
// =============================================================================

// close saturates ctx under rs and checks it for consistency. ctx must be a
// private copy: on error it is left in an unspecified state.
func (e *Engine) close(ctx *facts.Store, rs []*rules.Rule) error {
	if err := e.saturate(ctx, rs); err != nil {
		return err
	}
	return e.checkConsistency(ctx, rs)
}

// saturate applies rules until a full pass derives nothing. The scan
// restarts from the first rule after every rule that produced a new fact,
// and immediately after an identity merge since the bindings in hand may
// name absorbed identities.
func (e *Engine) saturate(ctx *facts.Store, rs []*rules.Rule) error {
	rounds := 0
	for {
		rounds++
		if rounds > e.cfg.MaxFixpointIterations {
			return fmt.Errorf("%w after %d rounds", ErrFixpointDiverged, e.cfg.MaxFixpointIterations)
		}

		progressed := false
		for _, r := range rs {
			if r.IsInconsistency() || r.Kind == rules.KindFunctionCongruence {
				continue
			}
			added, err := e.applyRule(ctx, r)
			if err != nil {
				return err
			}
			if added {
				progressed = true
				break
			}
		}
		if !progressed {
			logging.ChainingDebug("Fixpoint reached after %d rounds (%d facts)", rounds, ctx.Len())
			return nil
		}
	}
}

// applyRule inserts the instantiated actions of every binding that
// satisfies the rule's conditions. Actions left with unbound variables are
// skipped.
func (e *Engine) applyRule(ctx *facts.Store, r *rules.Rule) (bool, error) {
	added := false
	for _, b := range e.solve(ctx, r.Condition, rules.Binding{}) {
		for _, a := range r.Action {
			inst := a.Substitute(b)
			if !inst.IsGround() {
				continue
			}
			res, err := ctx.Add(inst)
			if err != nil {
				return false, fmt.Errorf("rule %s deriving %s: %w", r.ID, inst, err)
			}
			if res.Added {
				added = true
			}
			if res.Renamed {
				return true, nil
			}
		}
	}
	return added, nil
}

// solve performs conjunctive matching of conditions against ctx, starting
// from binding b. A condition that is ground under a binding is tested with
// Matches so evaluators and the identity relation take part; otherwise it
// is matched against the stored facts of its predicate.
func (e *Engine) solve(ctx *facts.Store, conditions []term.Term, b rules.Binding) []rules.Binding {
	dir := ctx.Directory()
	bs := []rules.Binding{b}
	for _, c := range conditions {
		var next []rules.Binding
		seen := make(map[string]bool)
		keep := func(nb rules.Binding) {
			if k := nb.Key(); !seen[k] {
				seen[k] = true
				next = append(next, nb)
			}
		}

		pattern := e.canonical(c)
		for _, cur := range bs {
			inst := pattern.Substitute(cur)
			if inst.IsGround() {
				if ctx.Matches(e.aliased(c, inst)) == term.True {
					keep(cur)
				}
				continue
			}
			for _, f := range ctx.Facts(inst.Func) {
				for _, nb := range rules.Match(inst, f, cur, dir) {
					keep(nb)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		bs = next
	}
	return bs
}

// canonical rewrites an identity-alias application to the canonical
// identity predicate, which is where identity facts are stored.
func (e *Engine) canonical(t term.Term) term.Term {
	if t.Kind != term.KindApplication || !e.registry.IsIdentity(t.Func) {
		return t
	}
	canon, _ := e.registry.IdentityPredicate()
	if t.Func == canon {
		return t
	}
	return term.NewApplication(canon, e.registry.Entry(canon).Name, t.Args...)
}

// aliased puts the original functor of orig back onto inst so a typed
// identity alias keeps its own evaluator.
func (e *Engine) aliased(orig, inst term.Term) term.Term {
	if orig.Func == inst.Func {
		return inst
	}
	return term.NewApplication(orig.Func, orig.Name, inst.Args...)
}

// checkConsistency fails when an inconsistency rule is satisfiable or a
// stored fact evaluates to False.
func (e *Engine) checkConsistency(ctx *facts.Store, rs []*rules.Rule) error {
	for _, r := range rs {
		if !r.IsInconsistency() {
			continue
		}
		if bs := e.solve(ctx, r.Condition, rules.Binding{}); len(bs) > 0 {
			return fmt.Errorf("%w: rule %s is satisfied", ErrInconsistent, r.ID)
		}
	}
	for _, f := range ctx.All() {
		entry := e.registry.Entry(f.Func)
		if entry.Evaluator == nil {
			continue
		}
		if ctx.Matches(f) == term.False {
			return fmt.Errorf("%w: %s evaluates to false", ErrInconsistent, ctx.Directory().DeadaptOne(f))
		}
	}
	return nil
}
