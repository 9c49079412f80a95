package core

import (
	"fmt"

	"agentkb/internal/facts"
	"agentkb/internal/logging"
	"agentkb/internal/term"
)

// =============================================================================
// FACT MANAGEMENT
// =============================================================================

// AddFact parses a fact and adds it to a context ("" is the default
// context). The update is all-or-nothing: the fact is inserted into a
// private copy of the context, the copy is closed under the rules and
// checked for consistency, and only then replaces the original.
func (e *Engine) AddFact(text, context string) error {
	t, err := e.Parse(text)
	if err != nil {
		return err
	}
	return e.AddFactTerm(t, context)
}

// AddFactTerm adds an already built fact. The term is revalidated against
// the engine's registry, so terms built by another agent's registry are
// accepted as long as every function name resolves here.
func (e *Engine) AddFactTerm(t term.Term, context string) error {
	timer := logging.StartTimer(logging.CategoryKernel, "AddFact")
	defer timer.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	local, err := e.registry.Revalidate(t)
	if err != nil {
		return err
	}
	if local.Kind != term.KindApplication || e.registry.Entry(local.Func).Kind != term.KindPredicate {
		return fmt.Errorf("%w: %s", facts.ErrNotPredicate, local)
	}

	name := e.contextName(context)
	ctx, ok := e.contexts[name]
	if !ok {
		ctx = facts.New(e.registry)
		logging.KernelDebug("Creating context %s (store %s)", name, ctx.ID())
	}
	spec := ctx.Clone()
	res, err := spec.Add(local)
	if err != nil {
		logging.KernelDebug("AddFact %s rejected in %s: %v", local, name, err)
		return fmt.Errorf("add %s: %w", local, err)
	}
	if !res.Added && ok {
		logging.KernelDebug("AddFact %s: already known in %s", local, name)
		return nil
	}
	if err := e.close(spec, e.rules.Rules()); err != nil {
		logging.KernelDebug("AddFact %s rejected in %s: %v", local, name, err)
		return fmt.Errorf("add %s: %w", local, err)
	}

	e.contexts[name] = spec
	logging.KernelDebug("AddFact %s in %s: %d -> %d facts", local, name, ctx.Len(), spec.Len())
	return nil
}

// AddFacts adds several facts to one context, stopping at the first
// failure. Facts added before the failure stay.
func (e *Engine) AddFacts(texts []string, context string) error {
	for _, text := range texts {
		if err := e.AddFact(text, context); err != nil {
			return err
		}
	}
	return nil
}
