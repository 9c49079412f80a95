package term

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for term construction and function registration.
var (
	ErrSyntax            = errors.New("syntax error")
	ErrUnknownFunction   = errors.New("unknown function name")
	ErrArityMismatch     = errors.New("arity mismatch")
	ErrDuplicateFunction = errors.New("function already registered")
	ErrInvalidFunction   = errors.New("invalid function declaration")
)

// FunctionKind separates truth-valued predicates from value-producing
// functions. The distinction only drives congruence rule generation.
type FunctionKind uint8

const (
	KindPredicate FunctionKind = iota
	KindFunction
)

func (k FunctionKind) String() string {
	if k == KindFunction {
		return "function"
	}
	return "predicate"
}

// Evaluator computes a predicate's truth value directly from its arguments.
// Arguments have bound logic variables already replaced by their constants;
// an evaluator must return Indeterminate when an argument is not a constant
// of the expected type.
type Evaluator func(args []Term) Tribool

// FunctionSpec is what callers hand to Register.
type FunctionSpec struct {
	Name      string
	Arity     int
	Kind      FunctionKind
	Identity  bool
	Evaluator Evaluator
}

// FunctionEntry is a registered function or predicate.
type FunctionEntry struct {
	ID        FunctionID
	Name      string
	Arity     int
	Kind      FunctionKind
	Identity  bool
	Evaluator Evaluator
}

// Registry assigns every function and predicate name a stable integer id.
// Ids start at 0 and are never reused.
type Registry struct {
	entries  []*FunctionEntry
	byName   map[string]FunctionID
	identity FunctionID
	hasIdent bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]FunctionID)}
}

// Register adds a function or predicate. Identity predicates must be binary
// predicates; the first one registered becomes the canonical identity
// predicate and later ones are treated as aliases of it.
func (r *Registry) Register(spec FunctionSpec) (*FunctionEntry, error) {
	if spec.Name == "" || !isIdentStart(rune(spec.Name[0])) {
		return nil, fmt.Errorf("%w: bad name %q", ErrInvalidFunction, spec.Name)
	}
	if spec.Name == "true" || spec.Name == "false" {
		return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidFunction, spec.Name)
	}
	if spec.Arity < 0 {
		return nil, fmt.Errorf("%w: negative arity for %s", ErrInvalidFunction, spec.Name)
	}
	if spec.Identity && (spec.Arity != 2 || spec.Kind != KindPredicate) {
		return nil, fmt.Errorf("%w: identity predicate %s must be a binary predicate", ErrInvalidFunction, spec.Name)
	}
	if _, ok := r.byName[spec.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFunction, spec.Name)
	}

	e := &FunctionEntry{
		ID:        FunctionID(len(r.entries)),
		Name:      spec.Name,
		Arity:     spec.Arity,
		Kind:      spec.Kind,
		Identity:  spec.Identity,
		Evaluator: spec.Evaluator,
	}
	r.entries = append(r.entries, e)
	r.byName[e.Name] = e.ID
	if e.Identity && !r.hasIdent {
		r.identity = e.ID
		r.hasIdent = true
	}
	return e, nil
}

// Lookup finds an entry by name.
func (r *Registry) Lookup(name string) (*FunctionEntry, bool) {
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.entries[id], true
}

// Entry returns the entry for id, or nil.
func (r *Registry) Entry(id FunctionID) *FunctionEntry {
	if id < 0 || int(id) >= len(r.entries) {
		return nil
	}
	return r.entries[id]
}

// Len is the number of registered functions.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns all entries in id order.
func (r *Registry) Entries() []*FunctionEntry {
	out := make([]*FunctionEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IdentityPredicate returns the canonical identity predicate id.
func (r *Registry) IdentityPredicate() (FunctionID, bool) {
	return r.identity, r.hasIdent
}

// IsIdentity reports whether id is the canonical identity predicate or one of
// its aliases.
func (r *Registry) IsIdentity(id FunctionID) bool {
	e := r.Entry(id)
	return e != nil && e.Identity
}

// Apply builds an application of name, checking the arity.
func (r *Registry) Apply(name string, args ...Term) (Term, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return Term{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(args) != e.Arity {
		return Term{}, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrArityMismatch, name, e.Arity, len(args))
	}
	return NewApplication(e.ID, e.Name, args...), nil
}

// MustApply is Apply for statically known names; it panics on error.
func (r *Registry) MustApply(name string, args ...Term) Term {
	t, err := r.Apply(name, args...)
	if err != nil {
		panic(err)
	}
	return t
}

// Revalidate rebuilds a term produced against another registry instance,
// resolving every function name again in r's id space.
func (r *Registry) Revalidate(t Term) (Term, error) {
	switch t.Kind {
	case KindApplication:
		args := make([]Term, len(t.Args))
		for i, a := range t.Args {
			v, err := r.Revalidate(a)
			if err != nil {
				return Term{}, err
			}
			args[i] = v
		}
		return r.Apply(t.Name, args...)
	case KindIdentity:
		return Term{}, fmt.Errorf("%w: identity %s cannot be imported", ErrSyntax, t)
	default:
		return t, nil
	}
}
