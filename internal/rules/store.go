package rules

import (
	"fmt"

	"agentkb/internal/term"
)

// DomainSource supplies the sub-term index candidate domains are drawn from.
// *facts.Store implements it.
type DomainSource interface {
	Generation() uint64
	Subterms(fn term.FunctionID) []term.Term
	HasSubterm(fn term.FunctionID, t term.Term) bool
}

type memoEntry struct {
	generation uint64
	domains    map[string][]term.Term
}

// Store is the ordered, append-only rule list of an engine.
type Store struct {
	rules []*Rule
	byID  map[string]int
	memo  map[int]memoEntry
}

// NewStore returns an empty rule store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int), memo: make(map[int]memoEntry)}
}

// Add appends a rule and drops every memoized domain.
func (s *Store) Add(r *Rule) error {
	if _, ok := s.byID[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
	}
	s.byID[r.ID] = len(s.rules)
	s.rules = append(s.rules, r)
	s.memo = make(map[int]memoEntry)
	return nil
}

// Has reports whether a rule id is taken.
func (s *Store) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Rules returns the rules in insertion order. The slice must not be modified.
func (s *Store) Rules() []*Rule { return s.rules }

// Len is the number of rules.
func (s *Store) Len() int { return len(s.rules) }

// PossibleExpressions returns, for every free variable of the rule at index
// idx, the terms it could stand for: the intersection over the functions the
// variable appears under of their sub-term sets. Results are memoized until
// a rule is added or src changes generation.
func (s *Store) PossibleExpressions(idx int, src DomainSource) map[string][]term.Term {
	if e, ok := s.memo[idx]; ok && e.generation == src.Generation() {
		return e.domains
	}
	r := s.rules[idx]
	domains := make(map[string][]term.Term, len(r.FreeVars))
	for _, v := range r.FreeVars {
		domains[v] = Domain(r.VarFunctions[v], src)
	}
	s.memo[idx] = memoEntry{generation: src.Generation(), domains: domains}
	return domains
}

// Domain intersects the sub-term sets of fns, keeping the order of the
// first set.
func Domain(fns []term.FunctionID, src DomainSource) []term.Term {
	if len(fns) == 0 {
		return nil
	}
	var out []term.Term
	for _, t := range src.Subterms(fns[0]) {
		ok := true
		for _, f := range fns[1:] {
			if !src.HasSubterm(f, t) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, t)
		}
	}
	return out
}
