// Package facts implements a fact context: a set of adapted ground facts
// bucketed by predicate, a per-function index of the argument sub-terms
// seen so far, and the logic-variable directory the facts are adapted
// against.
package facts

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"agentkb/internal/logging"
	"agentkb/internal/logicvar"
	"agentkb/internal/term"
)

// ErrNotPredicate is returned when a fact is not an application of a
// registered predicate.
var ErrNotPredicate = errors.New("fact is not a predicate application")

// generations hands out store generations. A store gets a fresh generation
// whenever its facts change, so caches keyed by generation never see a
// stale value even across clones.
var generations atomic.Uint64

// AddResult reports what Store.Add changed.
type AddResult struct {
	Added   bool // a new fact was stored or the directory changed
	Renamed bool // existing identities were merged and facts rewritten
}

type termSet struct {
	order []term.Term
	index map[string]struct{}
}

func newTermSet() *termSet {
	return &termSet{index: make(map[string]struct{})}
}

func (s *termSet) add(t term.Term) bool {
	k := t.Key()
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.order = append(s.order, t)
	return true
}

func (s *termSet) has(t term.Term) bool {
	_, ok := s.index[t.Key()]
	return ok
}

func (s *termSet) clone() *termSet {
	c := &termSet{order: make([]term.Term, len(s.order)), index: make(map[string]struct{}, len(s.index))}
	copy(c.order, s.order)
	for k := range s.index {
		c.index[k] = struct{}{}
	}
	return c
}

func (s *termSet) rename(ren map[term.VarID]term.VarID) *termSet {
	out := newTermSet()
	for _, t := range s.order {
		out.add(t.Rename(ren))
	}
	return out
}

type bucket struct {
	facts    *termSet
	subterms *termSet
}

// Store is one fact context. It is not safe for concurrent use; the engine
// serialises access.
type Store struct {
	id         string
	reg        *term.Registry
	dir        *logicvar.Directory
	buckets    []*bucket
	generation uint64
}

// New returns an empty store whose facts are resolved against reg.
func New(reg *term.Registry) *Store {
	return &Store{
		id:         uuid.NewString(),
		reg:        reg,
		dir:        logicvar.NewDirectory(),
		generation: generations.Add(1),
	}
}

// ID is stable across clones, so a speculative copy that replaces its
// origin keeps the origin's identity.
func (s *Store) ID() string { return s.id }

// Generation changes whenever the set of facts or sub-terms changes.
func (s *Store) Generation() uint64 { return s.generation }

// Directory exposes the logic-variable directory of this context.
func (s *Store) Directory() *logicvar.Directory { return s.dir }

// Registry is the function registry facts are resolved against.
func (s *Store) Registry() *term.Registry { return s.reg }

// Clone returns a deep copy that can be modified speculatively.
func (s *Store) Clone() *Store {
	c := &Store{
		id:         s.id,
		reg:        s.reg,
		dir:        s.dir.Clone(),
		buckets:    make([]*bucket, len(s.buckets)),
		generation: s.generation,
	}
	for i, b := range s.buckets {
		if b != nil {
			c.buckets[i] = &bucket{facts: b.facts.clone(), subterms: b.subterms.clone()}
		}
	}
	return c
}

func (s *Store) bucket(fn term.FunctionID) *bucket {
	for int(fn) >= len(s.buckets) {
		s.buckets = append(s.buckets, nil)
	}
	b := s.buckets[fn]
	if b == nil {
		b = &bucket{facts: newTermSet(), subterms: newTermSet()}
		s.buckets[fn] = b
	}
	return b
}

func (s *Store) bump() { s.generation = generations.Add(1) }

// Add adapts and stores a ground predicate application. Identity facts are
// unified in the directory and stored in both orientations under the
// canonical identity predicate; when that merges existing identities every
// stored fact is rewritten.
func (s *Store) Add(t term.Term) (AddResult, error) {
	if t.Kind != term.KindApplication {
		return AddResult{}, fmt.Errorf("%w: %s", ErrNotPredicate, t)
	}
	entry := s.reg.Entry(t.Func)
	if entry == nil {
		return AddResult{}, fmt.Errorf("%w: %s", term.ErrUnknownFunction, t.Name)
	}

	var res AddResult
	if entry.Identity {
		u, err := s.dir.AdaptAndUnify(t)
		if err != nil {
			logging.FactsDebug("Store %s rejected %s: %v", s.id, t, err)
			return AddResult{}, err
		}
		if u.Status == logicvar.StatusRequiresPermutation {
			s.permute(u.Renames)
			res.Renamed = true
		}
		res.Added = u.Changed
		canon, _ := s.reg.IdentityPredicate()
		ce := s.reg.Entry(canon)
		a, b := u.Term.Args[0], u.Term.Args[1]
		if s.insert(term.NewApplication(ce.ID, ce.Name, a, b)) {
			res.Added = true
		}
		if s.insert(term.NewApplication(ce.ID, ce.Name, b, a)) {
			res.Added = true
		}
		if entry.ID != canon && s.insert(u.Term) {
			res.Added = true
		}
	} else {
		if s.insert(s.dir.Adapt(t)) {
			res.Added = true
		}
	}
	if res.Added {
		s.bump()
	}
	return res, nil
}

// insert stores an adapted application and indexes its arguments. Nested
// applications reachable through identity surface forms are stored as facts
// of their own function.
func (s *Store) insert(t term.Term) bool {
	b := s.bucket(t.Func)
	if !b.facts.add(t) {
		return false
	}
	for _, a := range t.Args {
		b.subterms.add(a)
		if a.Kind != term.KindIdentity {
			continue
		}
		for _, surf := range s.dir.Surfaces(a.ID) {
			if surf.Kind == term.KindApplication {
				s.insert(s.dir.Adapt(surf))
			}
		}
	}
	return true
}

func (s *Store) permute(renames []logicvar.Rename) {
	ren := make(map[term.VarID]term.VarID, len(renames))
	for _, r := range renames {
		ren[r.Old] = r.New
	}
	// Chains such as 5->3, 3->1 must land on the final survivor.
	for old := range ren {
		ren[old] = s.dir.Resolve(old)
	}
	for i, b := range s.buckets {
		if b == nil {
			continue
		}
		s.buckets[i] = &bucket{facts: b.facts.rename(ren), subterms: b.subterms.rename(ren)}
	}
	logging.FactsDebug("Store %s merged %d identities, facts rewritten", s.id, len(ren))
}

// Contains reports whether an adapted fact is stored.
func (s *Store) Contains(t term.Term) bool {
	if t.Kind != term.KindApplication || int(t.Func) >= len(s.buckets) || s.buckets[t.Func] == nil {
		return false
	}
	return s.buckets[t.Func].facts.has(s.dir.ResolveTerm(t))
}

// Matches evaluates a fact against the context. Symbols in t are adapted
// first, minting identities for names never seen. An evaluator decides
// first; identity predicates compare their adapted arguments; any other
// predicate is True when stored and Indeterminate otherwise. An identity
// predicate over a name no fact mentions is Indeterminate, even equal(a, a).
func (s *Store) Matches(t term.Term) term.Tribool {
	if t.Kind != term.KindApplication {
		return term.Indeterminate
	}
	entry := s.reg.Entry(t.Func)
	if entry == nil {
		return term.Indeterminate
	}
	mentioned := !entry.Identity || s.mentioned(t.Args)
	adapted := s.dir.Adapt(t)
	if entry.Evaluator != nil {
		args := make([]term.Term, len(adapted.Args))
		for i, a := range adapted.Args {
			args[i] = s.dir.Substitute(a)
		}
		if r := entry.Evaluator(args); r != term.Indeterminate {
			return r
		}
	}
	if entry.Identity {
		if !mentioned {
			return term.Indeterminate
		}
		return s.dir.Equivalent(adapted.Args[0], adapted.Args[1])
	}
	if s.Contains(adapted) || s.Contains(s.identify(adapted)) {
		return term.True
	}
	return term.Indeterminate
}

// mentioned reports whether every non-constant argument is already known
// to the directory. It must run before Adapt mints identities for them.
func (s *Store) mentioned(args []term.Term) bool {
	for _, a := range args {
		if a.Kind == term.KindConstant {
			continue
		}
		if _, ok := s.dir.Lookup(a); !ok {
			return false
		}
	}
	return true
}

// identify replaces constant arguments by the identity bound to them, so a
// goal spelled with a value finds facts stored against the named entity.
func (s *Store) identify(t term.Term) term.Term {
	var args []term.Term
	for i, a := range t.Args {
		if a.Kind != term.KindConstant {
			continue
		}
		id, ok := s.dir.LookupConstant(a.Const)
		if !ok {
			continue
		}
		if args == nil {
			args = make([]term.Term, len(t.Args))
			copy(args, t.Args)
		}
		args[i] = term.NewIdentity(id)
	}
	if args == nil {
		return t
	}
	return term.NewApplication(t.Func, t.Name, args...)
}

// Facts returns the stored facts of one predicate in insertion order. The
// slice must not be modified.
func (s *Store) Facts(fn term.FunctionID) []term.Term {
	if int(fn) >= len(s.buckets) || s.buckets[fn] == nil {
		return nil
	}
	return s.buckets[fn].facts.order
}

// Subterms returns the distinct arguments seen under fn, in insertion order.
func (s *Store) Subterms(fn term.FunctionID) []term.Term {
	if int(fn) >= len(s.buckets) || s.buckets[fn] == nil {
		return nil
	}
	return s.buckets[fn].subterms.order
}

// HasSubterm reports whether t occurred as an argument of fn.
func (s *Store) HasSubterm(fn term.FunctionID, t term.Term) bool {
	if int(fn) >= len(s.buckets) || s.buckets[fn] == nil {
		return false
	}
	return s.buckets[fn].subterms.has(t)
}

// All returns every stored fact, bucket by bucket.
func (s *Store) All() []term.Term {
	var out []term.Term
	for _, b := range s.buckets {
		if b != nil {
			out = append(out, b.facts.order...)
		}
	}
	return out
}

// Len is the total number of stored facts, nested function facts included.
func (s *Store) Len() int {
	n := 0
	for _, b := range s.buckets {
		if b != nil {
			n += len(b.facts.order)
		}
	}
	return n
}
