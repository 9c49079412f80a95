package core

import (
	"fmt"

	"agentkb/internal/facts"
	"agentkb/internal/logging"
	"agentkb/internal/rules"
	"agentkb/internal/term"
)

// =============================================================================
// FUNCTION REGISTRATION
// =============================================================================

// RegisterFunction registers a predicate or function and adds its
// congruence rules. Registering the first identity predicate adds the
// congruence rules of everything registered before it.
func (e *Engine) RegisterFunction(spec term.FunctionSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerLocked(spec)
}

func (e *Engine) registerLocked(spec term.FunctionSpec) error {
	entry, err := e.registry.Register(spec)
	if err != nil {
		return err
	}
	logging.RulesDebug("Registered %s %s/%d (identity=%v)", entry.Kind, entry.Name, entry.Arity, entry.Identity)

	canon, ok := e.registry.IdentityPredicate()
	if !ok {
		return nil
	}
	targets := []*term.FunctionEntry{entry}
	if entry.Identity {
		if entry.ID != canon {
			return nil
		}
		targets = e.registry.Entries()
	}
	for _, t := range targets {
		if t.Identity {
			continue
		}
		for _, r := range e.congruenceRules(t) {
			if err := e.addRuleLocked(r); err != nil {
				return fmt.Errorf("congruence for %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

// congruenceRules states that the identity relation is substitutive in
// every argument position of fn.
func (e *Engine) congruenceRules(fn *term.FunctionEntry) []*rules.Rule {
	canon, _ := e.registry.IdentityPredicate()
	eq := e.registry.Entry(canon)
	y := term.NewSymbol("Y")

	xs := make([]term.Term, fn.Arity)
	for i := range xs {
		xs[i] = term.NewSymbol(fmt.Sprintf("X%d", i+1))
	}

	out := make([]*rules.Rule, 0, fn.Arity)
	for i := 0; i < fn.Arity; i++ {
		swapped := make([]term.Term, fn.Arity)
		copy(swapped, xs)
		swapped[i] = y
		orig := term.NewApplication(fn.ID, fn.Name, xs...)
		subst := term.NewApplication(fn.ID, fn.Name, swapped...)
		same := term.NewApplication(eq.ID, eq.Name, xs[i], y)

		id := fmt.Sprintf("congruence:%s/%d:%d", fn.Name, fn.Arity, i)
		var (
			r   *rules.Rule
			err error
		)
		if fn.Kind == term.KindFunction {
			r, err = rules.New(id, rules.KindFunctionCongruence,
				[]term.Term{same},
				[]term.Term{term.NewApplication(eq.ID, eq.Name, orig, subst)})
		} else {
			r, err = rules.New(id, rules.KindPredicateCongruence,
				[]term.Term{orig, same},
				[]term.Term{subst})
		}
		if err != nil {
			// Generated terms are well formed by construction.
			panic(err)
		}
		out = append(out, r)
	}
	return out
}

// =============================================================================
// RULE MANAGEMENT
// =============================================================================

// AddRule parses and appends a rule. Every context is closed under the new
// rule list first; if any context would become inconsistent the rule is
// rejected and nothing changes.
func (e *Engine) AddRule(id string, conditions, actions []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addRuleTextLocked(id, rules.KindUser, conditions, actions)
}

func (e *Engine) addRuleTextLocked(id string, kind rules.Kind, conditions, actions []string) error {
	cond, err := term.ParseAll(conditions, e.registry)
	if err != nil {
		return fmt.Errorf("rule %s condition: %w", id, err)
	}
	act, err := term.ParseAll(actions, e.registry)
	if err != nil {
		return fmt.Errorf("rule %s action: %w", id, err)
	}
	r, err := rules.New(id, kind, cond, act)
	if err != nil {
		return err
	}
	return e.addRuleLocked(r)
}

func (e *Engine) addRuleLocked(r *rules.Rule) error {
	timer := logging.StartTimer(logging.CategoryRules, "AddRule")
	defer timer.Stop()

	if e.rules.Has(r.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
	}

	tentative := make([]*rules.Rule, 0, e.rules.Len()+1)
	tentative = append(tentative, e.rules.Rules()...)
	tentative = append(tentative, r)

	updated := make(map[string]*facts.Store, len(e.contexts))
	for name, ctx := range e.contexts {
		if ctx.Len() == 0 {
			continue
		}
		spec := ctx.Clone()
		if err := e.close(spec, tentative); err != nil {
			logging.KernelWarn("AddRule %s rejected in context %s: %v", r.ID, name, err)
			return fmt.Errorf("rule %s in context %s: %w", r.ID, name, err)
		}
		updated[name] = spec
	}

	if err := e.rules.Add(r); err != nil {
		return err
	}
	for name, spec := range updated {
		e.contexts[name] = spec
	}
	logging.RulesDebug("Added rule %s", r)
	return nil
}
