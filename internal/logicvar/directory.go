// Package logicvar maps the free symbolic names and function applications
// that appear in stored facts to canonical logic-variable identities, and
// unifies identities when an identity predicate such as equal(a, b) is
// asserted.
//
// Adapted terms never contain symbols: every symbol and every nested
// application is replaced by a term.KindIdentity reference. Once two
// identities have been unified, differently spelled mentions of the same
// entity adapt to the same id.
package logicvar

import (
	"errors"
	"fmt"
	"sort"

	"agentkb/internal/term"
)

var (
	// ErrConflictingFacts is returned when unification would bind an identity
	// to two different constants or equate two different constants.
	ErrConflictingFacts = errors.New("conflicting facts")

	// ErrNotIdentityFact is returned when AdaptAndUnify is handed anything
	// other than a binary application.
	ErrNotIdentityFact = errors.New("not a binary identity fact")
)

// Status classifies the outcome of AdaptAndUnify.
type Status uint8

const (
	// StatusOK means no identity that existed before the call was renamed.
	StatusOK Status = iota
	// StatusRequiresPermutation means existing identities were absorbed into
	// others; callers must rewrite everything keyed by the old ids.
	StatusRequiresPermutation
	// StatusConflict is reported together with ErrConflictingFacts.
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRequiresPermutation:
		return "requires_permutation"
	}
	return "conflicting_facts"
}

// Rename records that identity Old was absorbed into New.
type Rename struct {
	Old term.VarID
	New term.VarID
}

// UnifyResult is what AdaptAndUnify reports on success.
type UnifyResult struct {
	Status  Status
	Term    term.Term // the adapted identity fact with all ids resolved
	Renames []Rename
	Changed bool // a binding or merge happened
}

// LogicVariable is one canonical identity.
type LogicVariable struct {
	ID      term.VarID
	Bound   *term.Constant
	Surface []term.Term // distinct surface forms in insertion order; Surface[0] is canonical
}

func (v *LogicVariable) clone() *LogicVariable {
	c := &LogicVariable{ID: v.ID, Surface: make([]term.Term, len(v.Surface))}
	copy(c.Surface, v.Surface)
	if v.Bound != nil {
		b := *v.Bound
		c.Bound = &b
	}
	return c
}

// Directory owns the identities of one fact context. It is not safe for
// concurrent use.
type Directory struct {
	next    term.VarID
	vars    map[term.VarID]*LogicVariable
	index   map[string]term.VarID // normalized surface key -> identity
	forward map[term.VarID]term.VarID
}

// NewDirectory returns an empty directory. Ids start at 1.
func NewDirectory() *Directory {
	return &Directory{
		next:    1,
		vars:    make(map[term.VarID]*LogicVariable),
		index:   make(map[string]term.VarID),
		forward: make(map[term.VarID]term.VarID),
	}
}

// Clone returns an independent copy.
func (d *Directory) Clone() *Directory {
	c := &Directory{
		next:    d.next,
		vars:    make(map[term.VarID]*LogicVariable, len(d.vars)),
		index:   make(map[string]term.VarID, len(d.index)),
		forward: make(map[term.VarID]term.VarID, len(d.forward)),
	}
	for id, v := range d.vars {
		c.vars[id] = v.clone()
	}
	for k, id := range d.index {
		c.index[k] = id
	}
	for from, to := range d.forward {
		c.forward[from] = to
	}
	return c
}

// Len is the number of live identities.
func (d *Directory) Len() int { return len(d.vars) }

// IDs returns the live identity ids in ascending order.
func (d *Directory) IDs() []term.VarID {
	ids := make([]term.VarID, 0, len(d.vars))
	for id := range d.vars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolve follows absorb links so that ids captured before a merge still
// name the surviving identity.
func (d *Directory) Resolve(id term.VarID) term.VarID {
	root := id
	for {
		next, ok := d.forward[root]
		if !ok {
			break
		}
		root = next
	}
	for id != root {
		next := d.forward[id]
		d.forward[id] = root
		id = next
	}
	return root
}

// ResolveTerm rewrites every identity in t to its surviving id.
func (d *Directory) ResolveTerm(t term.Term) term.Term {
	if len(d.forward) == 0 {
		return t
	}
	return t.Map(func(leaf term.Term) term.Term {
		if leaf.Kind == term.KindIdentity {
			if r := d.Resolve(leaf.ID); r != leaf.ID {
				return term.NewIdentity(r)
			}
		}
		return leaf
	})
}

// Variable returns the identity for id, or nil if unknown.
func (d *Directory) Variable(id term.VarID) *LogicVariable {
	return d.vars[d.Resolve(id)]
}

// Bound returns the constant an identity is bound to.
func (d *Directory) Bound(id term.VarID) (term.Constant, bool) {
	v := d.Variable(id)
	if v == nil || v.Bound == nil {
		return term.Constant{}, false
	}
	return *v.Bound, true
}

// Surfaces returns the surface forms of an identity.
func (d *Directory) Surfaces(id term.VarID) []term.Term {
	v := d.Variable(id)
	if v == nil {
		return nil
	}
	return v.Surface
}

// LookupConstant finds the identity bound to c, if any.
func (d *Directory) LookupConstant(c term.Constant) (term.VarID, bool) {
	id, ok := d.index[term.NewConstant(c).Key()]
	return id, ok
}

// Lookup finds the identity a surface term adapts to without minting. It
// fails if any part of t has never been seen.
func (d *Directory) Lookup(t term.Term) (term.VarID, bool) {
	switch t.Kind {
	case term.KindIdentity:
		id := d.Resolve(t.ID)
		_, ok := d.vars[id]
		return id, ok
	case term.KindSymbol:
		id, ok := d.index[d.normKey(t)]
		return id, ok
	case term.KindConstant:
		return d.LookupConstant(t.Const)
	}
	args := make([]term.Term, len(t.Args))
	for i, a := range t.Args {
		if a.Kind == term.KindConstant {
			args[i] = a
			continue
		}
		id, ok := d.Lookup(a)
		if !ok {
			return 0, false
		}
		args[i] = term.NewIdentity(id)
	}
	id, ok := d.index[d.normKey(term.NewApplication(t.Func, t.Name, args...))]
	return id, ok
}

// Substitute replaces identities bound to a constant by that constant.
func (d *Directory) Substitute(t term.Term) term.Term {
	return t.Map(func(leaf term.Term) term.Term {
		if leaf.Kind == term.KindIdentity {
			if c, ok := d.Bound(leaf.ID); ok {
				return term.NewConstant(c)
			}
			if r := d.Resolve(leaf.ID); r != leaf.ID {
				return term.NewIdentity(r)
			}
		}
		return leaf
	})
}

// Equivalent compares two adapted terms under the identity relation: True
// when they are the same identity or carry the same constant, False when
// both carry different constants, Indeterminate otherwise.
func (d *Directory) Equivalent(a, b term.Term) term.Tribool {
	a, b = d.Substitute(a), d.Substitute(b)
	if a.Equal(b) {
		return term.True
	}
	if a.Kind == term.KindConstant && b.Kind == term.KindConstant {
		return term.False
	}
	return term.Indeterminate
}

// normKey keys a surface form with bound identities replaced by their
// constants, so that f(x) and f(7) collide once x is bound to 7.
func (d *Directory) normKey(t term.Term) string {
	return d.Substitute(t).Key()
}

// Adapt replaces every symbol and function-application argument of t by an
// identity, minting identities for terms never seen before. A top-level
// application keeps its functor; anything else adapts to an identity or
// stays a constant. No unification happens.
func (d *Directory) Adapt(t term.Term) term.Term {
	return d.adapt(t, nil)
}

func (d *Directory) adapt(t term.Term, fresh map[term.VarID]struct{}) term.Term {
	if t.Kind != term.KindApplication {
		return d.adaptArg(t, fresh)
	}
	args := make([]term.Term, len(t.Args))
	for i, a := range t.Args {
		args[i] = d.adaptArg(a, fresh)
	}
	return term.NewApplication(t.Func, t.Name, args...)
}

func (d *Directory) adaptArg(t term.Term, fresh map[term.VarID]struct{}) term.Term {
	switch t.Kind {
	case term.KindConstant:
		return t
	case term.KindIdentity:
		return term.NewIdentity(d.Resolve(t.ID))
	case term.KindSymbol:
		return term.NewIdentity(d.intern(t, fresh))
	}
	inner := d.adapt(t, fresh)
	return term.NewIdentity(d.intern(inner, fresh))
}

func (d *Directory) intern(surface term.Term, fresh map[term.VarID]struct{}) term.VarID {
	key := d.normKey(surface)
	if id, ok := d.index[key]; ok {
		return id
	}
	id := d.next
	d.next++
	d.vars[id] = &LogicVariable{ID: id, Surface: []term.Term{surface}}
	d.index[key] = id
	if fresh != nil {
		fresh[id] = struct{}{}
	}
	return id
}

// AdaptAndUnify adapts both arguments of a binary identity fact and unifies
// them. On ErrConflictingFacts the directory may be partially updated;
// callers that need atomicity must work on a Clone.
func (d *Directory) AdaptAndUnify(t term.Term) (UnifyResult, error) {
	if t.Kind != term.KindApplication || len(t.Args) != 2 {
		return UnifyResult{Status: StatusConflict}, fmt.Errorf("%w: %s", ErrNotIdentityFact, t)
	}
	fresh := make(map[term.VarID]struct{})
	a := d.adaptArg(t.Args[0], fresh)
	b := d.adaptArg(t.Args[1], fresh)

	u := &unification{dir: d}
	if err := u.unify(a, b); err != nil {
		return UnifyResult{Status: StatusConflict}, fmt.Errorf("%w: %s", err, t)
	}

	res := UnifyResult{
		Status:  StatusOK,
		Term:    term.NewApplication(t.Func, t.Name, d.ResolveTerm(a), d.ResolveTerm(b)),
		Renames: u.renames,
		Changed: u.changed,
	}
	for _, r := range u.renames {
		if _, ok := fresh[r.Old]; !ok {
			res.Status = StatusRequiresPermutation
			break
		}
	}
	return res, nil
}

type unification struct {
	dir     *Directory
	renames []Rename
	changed bool
}

func (u *unification) unify(a, b term.Term) error {
	d := u.dir
	switch {
	case a.Kind == term.KindConstant && b.Kind == term.KindConstant:
		if !a.Const.Equal(b.Const) {
			return fmt.Errorf("%w: %s differs from %s", ErrConflictingFacts, a, b)
		}
		return nil
	case a.Kind == term.KindIdentity && b.Kind == term.KindConstant:
		return u.bind(d.Resolve(a.ID), b.Const)
	case a.Kind == term.KindConstant && b.Kind == term.KindIdentity:
		return u.bind(d.Resolve(b.ID), a.Const)
	case a.Kind == term.KindIdentity && b.Kind == term.KindIdentity:
		return u.merge([][2]term.VarID{{a.ID, b.ID}})
	}
	return fmt.Errorf("%w: cannot unify %s with %s", ErrNotIdentityFact, a, b)
}

func (u *unification) bind(id term.VarID, c term.Constant) error {
	v := u.dir.vars[id]
	if v.Bound != nil {
		if v.Bound.Equal(c) {
			return nil
		}
		return fmt.Errorf("%w: %s is bound to %s, not %s", ErrConflictingFacts, v.Surface[0], v.Bound, c)
	}
	bound := c
	v.Bound = &bound
	v.Surface = appendSurface(v.Surface, term.NewConstant(c))
	u.changed = true
	return u.merge(u.dir.reindex())
}

// merge absorbs identities pairwise until no two live identities share a
// normalized surface form. Each iteration removes one identity, so the loop
// terminates.
func (u *unification) merge(work [][2]term.VarID) error {
	d := u.dir
	for len(work) > 0 {
		pair := work[0]
		work = work[1:]
		keep, drop := d.Resolve(pair[0]), d.Resolve(pair[1])
		if keep == drop {
			continue
		}
		if drop < keep {
			keep, drop = drop, keep
		}
		kv, dv := d.vars[keep], d.vars[drop]
		if kv.Bound != nil && dv.Bound != nil && !kv.Bound.Equal(*dv.Bound) {
			return fmt.Errorf("%w: %s (%s) and %s (%s)", ErrConflictingFacts,
				kv.Surface[0], kv.Bound, dv.Surface[0], dv.Bound)
		}
		if kv.Bound == nil && dv.Bound != nil {
			kv.Bound = dv.Bound
		}
		for _, s := range dv.Surface {
			kv.Surface = appendSurface(kv.Surface, s)
		}
		delete(d.vars, drop)
		d.forward[drop] = keep
		u.renames = append(u.renames, Rename{Old: drop, New: keep})
		u.changed = true

		ren := map[term.VarID]term.VarID{drop: keep}
		for _, v := range d.vars {
			rewritten := false
			for _, s := range v.Surface {
				if s.Contains(drop) {
					rewritten = true
					break
				}
			}
			if !rewritten {
				continue
			}
			surf := make([]term.Term, 0, len(v.Surface))
			for _, s := range v.Surface {
				surf = appendSurface(surf, s.Rename(ren))
			}
			v.Surface = surf
		}
		work = append(work, d.reindex()...)
	}
	return nil
}

// reindex rebuilds the surface index and returns the pairs of identities
// whose surface forms now collide.
func (d *Directory) reindex() [][2]term.VarID {
	index := make(map[string]term.VarID, len(d.index))
	var collisions [][2]term.VarID
	for _, id := range d.IDs() {
		for _, s := range d.vars[id].Surface {
			k := d.normKey(s)
			if other, ok := index[k]; ok && other != id {
				collisions = append(collisions, [2]term.VarID{other, id})
				continue
			}
			index[k] = id
		}
	}
	d.index = index
	return collisions
}

func appendSurface(list []term.Term, s term.Term) []term.Term {
	for _, e := range list {
		if e.Equal(s) {
			return list
		}
	}
	return append(list, s)
}
