package core

import (
	"agentkb/internal/facts"
	"agentkb/internal/logging"
	"agentkb/internal/rules"
	"agentkb/internal/term"
)

// =============================================================================
// BACKWARD CHAINING
// =============================================================================

// hypothesisSet keeps adapted hypotheses in discovery order.
type hypothesisSet struct {
	order []term.Term
	seen  map[string]bool
}

func (h *hypothesisSet) add(t term.Term) {
	if h.seen == nil {
		h.seen = make(map[string]bool)
	}
	if k := t.Key(); !h.seen[k] {
		h.seen[k] = true
		h.order = append(h.order, t)
	}
}

// prove searches for a rule whose action unifies with the adapted goal and
// a binding of its remaining variables, drawn from the candidate domains,
// under which every condition matches. It returns True on the first such
// binding. Otherwise it returns Indeterminate together with the conditions
// that were the single missing piece of some otherwise successful binding.
func (e *Engine) prove(ctx *facts.Store, goal term.Term) (term.Tribool, []term.Term) {
	dir := ctx.Directory()
	goal = e.canonical(goal)
	goalKey := goal.Key()
	var hyps hypothesisSet

	for idx, r := range e.rules.Rules() {
		if r.IsInconsistency() {
			continue
		}

		var bindings []rules.Binding
		seen := make(map[string]bool)
		for _, a := range r.Action {
			for _, b := range rules.Match(e.canonical(a), goal, rules.Binding{}, dir) {
				if k := b.Key(); !seen[k] {
					seen[k] = true
					bindings = append(bindings, b)
				}
			}
		}
		if len(bindings) == 0 {
			continue
		}

		domains := e.rules.PossibleExpressions(idx, ctx)
		for _, b := range bindings {
			var (
				free  []string
				doms  [][]term.Term
				empty bool
			)
			for _, v := range r.FreeVars {
				if _, ok := b[v]; ok {
					continue
				}
				d := domains[v]
				if len(d) == 0 {
					empty = true
					break
				}
				free = append(free, v)
				doms = append(doms, d)
			}
			if empty {
				continue
			}
			if e.enumerate(ctx, r, b, free, doms, goalKey, &hyps) {
				logging.ChainingDebug("Proved %s with rule %s", dir.DeadaptOne(goal), r.ID)
				return term.True, nil
			}
		}
	}
	return term.Indeterminate, hyps.order
}

// enumerate walks the Cartesian product of doms with a mixed-radix counter.
// It reports whether some combination satisfied every condition.
func (e *Engine) enumerate(ctx *facts.Store, r *rules.Rule, b rules.Binding, free []string, doms [][]term.Term, goalKey string, hyps *hypothesisSet) bool {
	counter := make([]int, len(free))
	for n := 0; ; n++ {
		if n >= e.cfg.MaxEnumeration {
			logging.ChainingWarn("Rule %s: enumeration capped at %d combinations", r.ID, e.cfg.MaxEnumeration)
			return false
		}

		env := make(rules.Binding, len(b)+len(free))
		for k, v := range b {
			env[k] = v
		}
		for i, v := range free {
			env[v] = doms[i][counter[i]]
		}

		pending, ok := e.evaluate(ctx, r.Condition, env)
		if ok {
			if len(pending) == 0 {
				return true
			}
			if len(pending) == 1 && e.canonical(pending[0]).Key() != goalKey {
				hyps.add(pending[0])
			}
		}

		i := 0
		for ; i < len(counter); i++ {
			counter[i]++
			if counter[i] < len(doms[i]) {
				break
			}
			counter[i] = 0
		}
		if i == len(counter) {
			return false
		}
	}
}

// evaluate instantiates the conditions under env and matches them in order.
// It stops at the first False. Otherwise it returns the conditions that came
// back Indeterminate.
func (e *Engine) evaluate(ctx *facts.Store, conditions []term.Term, env rules.Binding) ([]term.Term, bool) {
	var pending []term.Term
	for _, c := range conditions {
		inst := ctx.Directory().Adapt(c.Substitute(env))
		switch ctx.Matches(inst) {
		case term.False:
			return nil, false
		case term.Indeterminate:
			pending = append(pending, inst)
		}
	}
	return pending, true
}
