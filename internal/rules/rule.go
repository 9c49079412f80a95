// Package rules holds inference rules, the per-rule candidate domain memo
// used by backward chaining, and the pattern matcher that binds rule
// variables against adapted facts.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"agentkb/internal/term"
)

var (
	// ErrDuplicateRule is returned when a rule id is already taken.
	ErrDuplicateRule = errors.New("duplicate rule id")
	// ErrInvalidRule is returned for rules that can never be applied.
	ErrInvalidRule = errors.New("invalid rule")
)

// Kind tells user rules apart from generated ones.
type Kind uint8

const (
	KindUser Kind = iota
	KindStandard
	KindPredicateCongruence
	KindFunctionCongruence
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindPredicateCongruence:
		return "predicate_congruence"
	case KindFunctionCongruence:
		return "function_congruence"
	}
	return "user"
}

// Rule is an immutable "conditions imply actions" clause. Every bare
// identifier in a rule term is a variable. A rule without actions declares
// that its conditions must never hold together.
type Rule struct {
	ID        string
	Kind      Kind
	Condition []term.Term
	Action    []term.Term

	// FreeVars is sorted and deduplicated.
	FreeVars []string
	// VarFunctions lists, per variable, the ids of the functions it appears
	// directly under, sorted.
	VarFunctions map[string][]term.FunctionID
}

// New validates the terms and derives the variable tables.
func New(id string, kind Kind, condition, action []term.Term) (*Rule, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if len(condition) == 0 {
		return nil, fmt.Errorf("%w: %s has no conditions", ErrInvalidRule, id)
	}
	r := &Rule{
		ID:           id,
		Kind:         kind,
		Condition:    condition,
		Action:       action,
		VarFunctions: make(map[string][]term.FunctionID),
	}
	for _, t := range append(append([]term.Term{}, condition...), action...) {
		if t.Kind != term.KindApplication {
			return nil, fmt.Errorf("%w: %s: %s is not an application", ErrInvalidRule, id, t)
		}
		if len(t.Identities(nil)) > 0 {
			return nil, fmt.Errorf("%w: %s: %s references an identity", ErrInvalidRule, id, t)
		}
		r.collect(t)
	}
	for v := range r.VarFunctions {
		r.FreeVars = append(r.FreeVars, v)
		fns := r.VarFunctions[v]
		sort.Slice(fns, func(i, j int) bool { return fns[i] < fns[j] })
	}
	sort.Strings(r.FreeVars)
	return r, nil
}

func (r *Rule) collect(app term.Term) {
	for _, a := range app.Args {
		switch a.Kind {
		case term.KindSymbol:
			fns := r.VarFunctions[a.Name]
			found := false
			for _, f := range fns {
				if f == app.Func {
					found = true
					break
				}
			}
			if !found {
				r.VarFunctions[a.Name] = append(fns, app.Func)
			}
		case term.KindApplication:
			r.collect(a)
		}
	}
}

// IsInconsistency reports whether the rule declares an inconsistency.
func (r *Rule) IsInconsistency() bool { return len(r.Action) == 0 }

func (r *Rule) String() string {
	join := func(ts []term.Term) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = t.String()
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s: %s => %s", r.ID, join(r.Condition), join(r.Action))
}
