// Package term provides the recursive term model shared by the fact store,
// the rule store and the inference engine, together with the function
// registry that gives every predicate and function name a stable id.
package term

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Term.
type Kind uint8

const (
	KindConstant Kind = iota
	KindSymbol
	KindApplication
	KindIdentity // reference to a logic variable, only produced by adaptation
)

// ConstType discriminates the representation of a Constant.
type ConstType uint8

const (
	ConstInt ConstType = iota
	ConstDouble
	ConstString
	ConstBool
)

// Constant is a ground literal value.
type Constant struct {
	Type   ConstType
	Int    int64
	Double float64
	Str    string
	Bool   bool
}

// Int builds an integer constant.
func Int(v int64) Constant { return Constant{Type: ConstInt, Int: v} }

// Double builds a real constant.
func Double(v float64) Constant { return Constant{Type: ConstDouble, Double: v} }

// String builds a string constant.
func String(v string) Constant { return Constant{Type: ConstString, Str: v} }

// Bool builds a boolean constant.
func Bool(v bool) Constant { return Constant{Type: ConstBool, Bool: v} }

// Equal reports structural equality. Constants of different representation
// are never equal.
func (c Constant) Equal(o Constant) bool {
	if c.Type != o.Type {
		return false
	}
	switch c.Type {
	case ConstInt:
		return c.Int == o.Int
	case ConstDouble:
		return c.Double == o.Double
	case ConstString:
		return c.Str == o.Str
	default:
		return c.Bool == o.Bool
	}
}

// Value returns the constant as a plain Go value.
func (c Constant) Value() interface{} {
	switch c.Type {
	case ConstInt:
		return c.Int
	case ConstDouble:
		return c.Double
	case ConstString:
		return c.Str
	default:
		return c.Bool
	}
}

func (c Constant) String() string {
	switch c.Type {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstDouble:
		s := strconv.FormatFloat(c.Double, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case ConstString:
		return strconv.Quote(c.Str)
	default:
		return strconv.FormatBool(c.Bool)
	}
}

// FunctionID is the registry-assigned id of a function or predicate.
type FunctionID int

// VarID identifies a logic variable in a logicvar.Directory.
type VarID int64

// Term is a constant, a free symbolic name, a function application, or (after
// adaptation) a reference to a logic variable. Terms are values; the Args
// slice must not be mutated once the term has been handed out.
type Term struct {
	Kind  Kind
	Const Constant
	Name  string // symbol name or function name
	Func  FunctionID
	ID    VarID
	Args  []Term
}

// NewConstant wraps a constant.
func NewConstant(c Constant) Term { return Term{Kind: KindConstant, Const: c} }

// NewSymbol builds a free symbolic name.
func NewSymbol(name string) Term { return Term{Kind: KindSymbol, Name: name} }

// NewIdentity builds a reference to a logic variable.
func NewIdentity(id VarID) Term { return Term{Kind: KindIdentity, ID: id} }

// NewApplication builds a function application without consulting a
// registry. Use Registry.Apply to get arity checking.
func NewApplication(fn FunctionID, name string, args ...Term) Term {
	return Term{Kind: KindApplication, Func: fn, Name: name, Args: args}
}

func (t Term) IsConstant() bool    { return t.Kind == KindConstant }
func (t Term) IsSymbol() bool      { return t.Kind == KindSymbol }
func (t Term) IsApplication() bool { return t.Kind == KindApplication }
func (t Term) IsIdentity() bool    { return t.Kind == KindIdentity }

// String renders the term in predicate text syntax. Identities render as
// `?N`, which the parser does not accept.
func (t Term) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t Term) write(sb *strings.Builder) {
	switch t.Kind {
	case KindConstant:
		sb.WriteString(t.Const.String())
	case KindSymbol:
		sb.WriteString(t.Name)
	case KindIdentity:
		sb.WriteByte('?')
		sb.WriteString(strconv.FormatInt(int64(t.ID), 10))
	case KindApplication:
		sb.WriteString(t.Name)
		sb.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			a.write(sb)
		}
		sb.WriteByte(')')
	}
}

// Key returns an unambiguous encoding of the term suitable as a map key.
// Two terms have the same key iff they are structurally identical.
func (t Term) Key() string {
	var sb strings.Builder
	t.writeKey(&sb)
	return sb.String()
}

func (t Term) writeKey(sb *strings.Builder) {
	switch t.Kind {
	case KindConstant:
		switch t.Const.Type {
		case ConstInt:
			sb.WriteString("i:")
		case ConstDouble:
			sb.WriteString("d:")
		case ConstString:
			sb.WriteString("s:")
		default:
			sb.WriteString("b:")
		}
		sb.WriteString(t.Const.String())
	case KindSymbol:
		sb.WriteString("y:")
		sb.WriteString(strconv.Quote(t.Name))
	case KindIdentity:
		sb.WriteString("v:")
		sb.WriteString(strconv.FormatInt(int64(t.ID), 10))
	case KindApplication:
		sb.WriteString("f")
		sb.WriteString(strconv.Itoa(int(t.Func)))
		sb.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			a.writeKey(sb)
		}
		sb.WriteByte(')')
	}
}

// Equal reports structural identity.
func (t Term) Equal(o Term) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindConstant:
		return t.Const.Equal(o.Const)
	case KindSymbol:
		return t.Name == o.Name
	case KindIdentity:
		return t.ID == o.ID
	default:
		if t.Func != o.Func || len(t.Args) != len(o.Args) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	}
}

// IsGround reports whether the term contains no free symbolic names.
// Identities count as ground.
func (t Term) IsGround() bool {
	switch t.Kind {
	case KindSymbol:
		return false
	case KindApplication:
		for _, a := range t.Args {
			if !a.IsGround() {
				return false
			}
		}
	}
	return true
}

// Symbols appends the distinct symbol names occurring in t to dst.
func (t Term) Symbols(dst []string) []string {
	switch t.Kind {
	case KindSymbol:
		for _, s := range dst {
			if s == t.Name {
				return dst
			}
		}
		return append(dst, t.Name)
	case KindApplication:
		for _, a := range t.Args {
			dst = a.Symbols(dst)
		}
	}
	return dst
}

// Identities appends the distinct identity ids occurring in t to dst.
func (t Term) Identities(dst []VarID) []VarID {
	switch t.Kind {
	case KindIdentity:
		for _, id := range dst {
			if id == t.ID {
				return dst
			}
		}
		return append(dst, t.ID)
	case KindApplication:
		for _, a := range t.Args {
			dst = a.Identities(dst)
		}
	}
	return dst
}

// Contains reports whether identity id occurs anywhere in t.
func (t Term) Contains(id VarID) bool {
	switch t.Kind {
	case KindIdentity:
		return t.ID == id
	case KindApplication:
		for _, a := range t.Args {
			if a.Contains(id) {
				return true
			}
		}
	}
	return false
}

// Map rebuilds t bottom-up, replacing every leaf (non-application) by fn(leaf).
// Applications are rebuilt only when one of their arguments changed.
func (t Term) Map(fn func(Term) Term) Term {
	if t.Kind != KindApplication {
		return fn(t)
	}
	var args []Term
	for i, a := range t.Args {
		m := a.Map(fn)
		if args == nil && !m.Equal(a) {
			args = make([]Term, len(t.Args))
			copy(args, t.Args[:i])
		}
		if args != nil {
			args[i] = m
		}
	}
	if args == nil {
		return t
	}
	return Term{Kind: KindApplication, Func: t.Func, Name: t.Name, Args: args}
}

// Rename replaces identity ids according to renames.
func (t Term) Rename(renames map[VarID]VarID) Term {
	if len(renames) == 0 {
		return t
	}
	return t.Map(func(leaf Term) Term {
		if leaf.Kind == KindIdentity {
			if to, ok := renames[leaf.ID]; ok {
				return NewIdentity(to)
			}
		}
		return leaf
	})
}

// Substitute replaces symbols with the terms bound in env. Unbound symbols
// are left in place.
func (t Term) Substitute(env map[string]Term) Term {
	if len(env) == 0 {
		return t
	}
	return t.Map(func(leaf Term) Term {
		if leaf.Kind == KindSymbol {
			if v, ok := env[leaf.Name]; ok {
				return v
			}
		}
		return leaf
	})
}

// GoString is used by %#v in test failures.
func (t Term) GoString() string { return fmt.Sprintf("term.Term(%s)", t.String()) }
