package rules

import (
	"sort"
	"strings"

	"agentkb/internal/term"
)

// Binding maps rule variable names to adapted terms (identities or
// constants).
type Binding map[string]term.Term

// With returns a copy of b extended by name=value.
func (b Binding) With(name string, value term.Term) Binding {
	out := make(Binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[name] = value
	return out
}

// Key is a canonical encoding used to deduplicate bindings.
func (b Binding) Key() string {
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(b[n].Key())
		sb.WriteByte(';')
	}
	return sb.String()
}

// Resolver answers the identity questions the matcher needs.
// *logicvar.Directory implements it.
type Resolver interface {
	Resolve(id term.VarID) term.VarID
	Bound(id term.VarID) (term.Constant, bool)
	Surfaces(id term.VarID) []term.Term
	LookupConstant(c term.Constant) (term.VarID, bool)
}

// Same reports whether two adapted terms denote the same entity: the same
// identity, equal constants, or an identity bound to the constant.
func Same(a, b term.Term, dir Resolver) bool {
	a, b = resolve(a, dir), resolve(b, dir)
	if a.Equal(b) {
		return true
	}
	if a.Kind == term.KindApplication || b.Kind == term.KindApplication {
		if a.Kind != b.Kind || a.Func != b.Func || len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if !Same(a.Args[i], b.Args[i], dir) {
				return false
			}
		}
		return true
	}
	ca, okA := value(a, dir)
	cb, okB := value(b, dir)
	return okA && okB && ca.Equal(cb)
}

func resolve(t term.Term, dir Resolver) term.Term {
	if t.Kind == term.KindIdentity {
		return term.NewIdentity(dir.Resolve(t.ID))
	}
	return t
}

func value(t term.Term, dir Resolver) (term.Constant, bool) {
	switch t.Kind {
	case term.KindConstant:
		return t.Const, true
	case term.KindIdentity:
		return dir.Bound(t.ID)
	}
	return term.Constant{}, false
}

// Match unifies a rule pattern against an adapted term under binding b and
// returns every extended binding that makes them agree. A nested
// application in the pattern matches an identity through the identity's
// application surface forms.
func Match(pattern, value term.Term, b Binding, dir Resolver) []Binding {
	switch pattern.Kind {
	case term.KindSymbol:
		if bound, ok := b[pattern.Name]; ok {
			if Same(bound, value, dir) {
				return []Binding{b}
			}
			return nil
		}
		return []Binding{b.With(pattern.Name, resolve(value, dir))}
	case term.KindConstant, term.KindIdentity:
		if Same(pattern, value, dir) {
			return []Binding{b}
		}
		return nil
	}

	switch value.Kind {
	case term.KindApplication:
		if value.Func != pattern.Func || len(value.Args) != len(pattern.Args) {
			return nil
		}
		bs := []Binding{b}
		for i := range pattern.Args {
			var next []Binding
			for _, cur := range bs {
				next = append(next, Match(pattern.Args[i], value.Args[i], cur, dir)...)
			}
			if len(next) == 0 {
				return nil
			}
			bs = next
		}
		return bs
	case term.KindConstant:
		id, ok := dir.LookupConstant(value.Const)
		if !ok {
			return nil
		}
		value = term.NewIdentity(id)
	}

	var out []Binding
	seen := make(map[string]bool)
	for _, s := range dir.Surfaces(value.ID) {
		if s.Kind != term.KindApplication || s.Func != pattern.Func {
			continue
		}
		for _, nb := range Match(pattern, s, b, dir) {
			if k := nb.Key(); !seen[k] {
				seen[k] = true
				out = append(out, nb)
			}
		}
	}
	return out
}
