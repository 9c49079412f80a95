// Package mangle exports a knowledge-base context into a Google Mangle fact
// store so Datalog programs can be evaluated over it.
package mangle

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"agentkb/internal/core"
	"agentkb/internal/logging"
	"agentkb/internal/term"
)

var predicateName = regexp.MustCompile(`^[a-z][A-Za-z0-9_]*$`)

// Snapshot is a frozen copy of one context's facts in Mangle form.
type Snapshot struct {
	Context string

	mu      sync.RWMutex
	store   factstore.FactStore
	skipped []string
}

// Export copies the facts of a context ("" is the default context) into a
// new in-memory Mangle store. Identities are written in surface form; a
// nested function application becomes a string constant.
func Export(e *core.Engine, context string) (*Snapshot, error) {
	timer := logging.StartTimer(logging.CategoryStore, "MangleExport")
	defer timer.Stop()

	if context == "" {
		context = e.DefaultContext()
	}
	s := &Snapshot{Context: context, store: factstore.NewSimpleInMemoryStore()}

	for _, f := range e.Facts(context) {
		if !predicateName.MatchString(f.Name) {
			s.skipped = append(s.skipped, f.String())
			continue
		}
		args := make([]ast.BaseTerm, len(f.Args))
		for i, a := range f.Args {
			args[i] = toBaseTerm(a)
		}
		s.store.Add(ast.NewAtom(f.Name, args...))
	}
	if len(s.skipped) > 0 {
		logging.Get(logging.CategoryStore).Warn("Mangle export of %s skipped %d facts with non-Datalog predicate names", context, len(s.skipped))
	}
	logging.StoreDebug("Exported %d facts of %s to Mangle", s.store.EstimateFactCount(), context)
	return s, nil
}

func toBaseTerm(t term.Term) ast.BaseTerm {
	switch t.Kind {
	case term.KindConstant:
		switch t.Const.Type {
		case term.ConstInt:
			return ast.Number(t.Const.Int)
		case term.ConstDouble:
			return ast.Float64(t.Const.Double)
		case term.ConstBool:
			if t.Const.Bool {
				return ast.TrueConstant
			}
			return ast.FalseConstant
		default:
			return ast.String(t.Const.Str)
		}
	case term.KindSymbol:
		if n, err := ast.Name("/" + t.Name); err == nil {
			return n
		}
		return ast.String(t.Name)
	default:
		return ast.String(t.String())
	}
}

// Skipped lists facts that could not be exported.
func (s *Snapshot) Skipped() []string { return s.skipped }

// FactCount estimates the number of atoms in the store.
func (s *Snapshot) FactCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.EstimateFactCount()
}

// Predicates returns the predicate names present, sorted.
func (s *Snapshot) Predicates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, sym := range s.store.ListPredicates() {
		out = append(out, sym.Symbol)
	}
	sort.Strings(out)
	return out
}

// Eval evaluates a Mangle program over the snapshot, adding every derived
// fact to it. Exported predicates are declared automatically.
func (s *Snapshot) Eval(program string) error {
	timer := logging.StartTimer(logging.CategoryStore, "MangleEval")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var decls strings.Builder
	for _, sym := range s.store.ListPredicates() {
		if strings.Contains(program, "Decl "+sym.Symbol+"(") {
			continue
		}
		vars := make([]string, sym.Arity)
		for i := range vars {
			vars[i] = fmt.Sprintf("X%d", i)
		}
		fmt.Fprintf(&decls, "Decl %s(%s).\n", sym.Symbol, strings.Join(vars, ", "))
	}

	unit, err := parse.Unit(strings.NewReader(decls.String() + "\n" + program))
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("analysis error: %w", err)
	}
	stats, err := mengine.EvalProgramWithStats(programInfo, s.store)
	if err != nil {
		return fmt.Errorf("evaluation error: %w", err)
	}
	logging.StoreDebug("Mangle eval over %s: %d strata", s.Context, len(stats.Strata))
	return nil
}

// Query returns the argument rows of every atom of predicate.
func (s *Snapshot) Query(predicate string) ([][]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var syms []ast.PredicateSym
	for _, sym := range s.store.ListPredicates() {
		if sym.Symbol == predicate {
			syms = append(syms, sym)
		}
	}
	if len(syms) == 0 {
		return nil, fmt.Errorf("predicate %s is not present", predicate)
	}

	var rows [][]interface{}
	for _, sym := range syms {
		err := s.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
			row := make([]interface{}, len(atom.Args))
			for i, arg := range atom.Args {
				row[i] = baseTermToInterface(arg)
			}
			rows = append(rows, row)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func baseTermToInterface(t ast.BaseTerm) interface{} {
	c, ok := t.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", t)
	}
	switch c.Type {
	case ast.NumberType:
		return c.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue))
	case ast.StringType, ast.NameType:
		return c.Symbol
	default:
		return c.String()
	}
}
