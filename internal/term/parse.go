package term

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError reports where predicate text failed to parse. Kind is one of
// ErrSyntax, ErrUnknownFunction or ErrArityMismatch and is what errors.Is
// matches against.
type ParseError struct {
	Kind   error
	Offset int
	Input  string
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v at offset %d in %q: %s", e.Kind, e.Offset, e.Input, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Kind }

// Parse reads a single term in predicate text syntax:
//
//	term  := ident [ "(" [ term { "," term } ] ")" ] | string | number | "true" | "false"
//
// Function names are resolved against reg. A bare identifier that is not
// followed by "(" is a symbol, even if a function of that name exists.
func Parse(text string, reg *Registry) (Term, error) {
	p := &parser{src: text, reg: reg}
	p.skipSpace()
	t, err := p.term()
	if err != nil {
		return Term{}, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return Term{}, p.fail(ErrSyntax, "unexpected trailing input %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParse is Parse for literals in tests and static tables.
func MustParse(text string, reg *Registry) Term {
	t, err := Parse(text, reg)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseAll parses each text in order, stopping at the first failure.
func ParseAll(texts []string, reg *Registry) ([]Term, error) {
	out := make([]Term, 0, len(texts))
	for _, s := range texts {
		t, err := Parse(s, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type parser struct {
	src string
	pos int
	reg *Registry
}

func (p *parser) fail(kind error, format string, args ...interface{}) error {
	return &ParseError{Kind: kind, Offset: p.pos, Input: p.src, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		r, n := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += n
	}
}

func (p *parser) term() (Term, error) {
	r := p.peek()
	switch {
	case r == 0:
		return Term{}, p.fail(ErrSyntax, "unexpected end of input")
	case r == '"':
		return p.quoted()
	case r == '-' || r == '+' || r == '.' || isDigit(r):
		return p.number()
	case isIdentStart(r):
		return p.identOrApplication()
	}
	return Term{}, p.fail(ErrSyntax, "unexpected character %q", r)
}

func (p *parser) quoted() (Term, error) {
	start := p.pos
	p.pos++ // opening quote
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			s, err := strconv.Unquote(p.src[start:p.pos])
			if err != nil {
				p.pos = start
				return Term{}, p.fail(ErrSyntax, "bad string literal: %v", err)
			}
			return NewConstant(String(s)), nil
		}
		p.pos++
	}
	p.pos = start
	return Term{}, p.fail(ErrSyntax, "unterminated string literal")
}

func (p *parser) number() (Term, error) {
	start := p.pos
	if c := p.src[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	digits := 0
	isReal := false
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !isReal:
			isReal = true
		case (c == 'e' || c == 'E') && digits > 0:
			isReal = true
			if p.pos+1 < len(p.src) && (p.src[p.pos+1] == '-' || p.src[p.pos+1] == '+') {
				p.pos++
			}
		default:
			break scan
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if digits == 0 {
		p.pos = start
		return Term{}, p.fail(ErrSyntax, "malformed number %q", lit)
	}
	if isReal {
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			p.pos = start
			return Term{}, p.fail(ErrSyntax, "malformed real %q", lit)
		}
		return NewConstant(Double(v)), nil
	}
	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		p.pos = start
		return Term{}, p.fail(ErrSyntax, "malformed integer %q", lit)
	}
	return NewConstant(Int(v)), nil
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		r, n := utf8.DecodeRuneInString(p.src[p.pos:])
		if !isIdentPart(r) {
			break
		}
		p.pos += n
	}
	return p.src[start:p.pos]
}

func (p *parser) identOrApplication() (Term, error) {
	start := p.pos
	name := p.ident()
	p.skipSpace()
	if p.peek() != '(' {
		switch name {
		case "true":
			return NewConstant(Bool(true)), nil
		case "false":
			return NewConstant(Bool(false)), nil
		}
		return NewSymbol(name), nil
	}
	p.pos++ // (

	var args []Term
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
	} else {
		for {
			p.skipSpace()
			a, err := p.term()
			if err != nil {
				return Term{}, err
			}
			args = append(args, a)
			p.skipSpace()
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case ')':
				p.pos++
			default:
				return Term{}, p.fail(ErrSyntax, "expected ',' or ')' in arguments of %s", name)
			}
			break
		}
	}

	e, ok := p.reg.Lookup(name)
	if !ok {
		end := p.pos
		p.pos = start
		err := p.fail(ErrUnknownFunction, "%s", name)
		p.pos = end
		return Term{}, err
	}
	if len(args) != e.Arity {
		end := p.pos
		p.pos = start
		err := p.fail(ErrArityMismatch, "%s expects %d arguments, got %d", name, e.Arity, len(args))
		p.pos = end
		return Term{}, err
	}
	return NewApplication(e.ID, e.Name, args...), nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

// QuoteIfNeeded renders s as a bare identifier when the parser would read it
// back as the same symbol, and as a quoted string otherwise.
func QuoteIfNeeded(s string) string {
	if s == "" || s == "true" || s == "false" {
		return strconv.Quote(s)
	}
	for i, r := range s {
		if (i == 0 && !isIdentStart(r)) || !isIdentPart(r) {
			return strconv.Quote(s)
		}
	}
	return s
}

// splitTopLevel splits s on commas that are not nested in parentheses or
// string literals.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inStr:
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
		case c == '"':
			inStr = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" || len(parts) > 0 {
		parts = append(parts, tail)
	}
	return parts
}

// ParseList parses a comma separated conjunction such as
// "less_int(A, B), less_int(B, C)".
func ParseList(text string, reg *Registry) ([]Term, error) {
	return ParseAll(splitTopLevel(text), reg)
}
