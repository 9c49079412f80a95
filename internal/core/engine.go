// Package core is the inference engine: it owns the function registry, the
// rule store and one fact context per reasoning context, keeps every context
// closed under the rules after each update, and answers goals with forward
// lookup followed by backward chaining.
package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentkb/internal/builtin"
	"agentkb/internal/facts"
	"agentkb/internal/logging"
	"agentkb/internal/rules"
	"agentkb/internal/term"
)

var (
	// ErrInconsistent is returned when an update would make a declared
	// inconsistency satisfiable or a stored fact evaluate to false.
	ErrInconsistent = errors.New("inconsistent knowledge base")
	// ErrFixpointDiverged is returned when forward chaining exceeds the
	// configured iteration limit.
	ErrFixpointDiverged = errors.New("forward chaining did not reach a fixpoint")
	// ErrDuplicateRule is returned by AddRule for a rule id already in use.
	ErrDuplicateRule = rules.ErrDuplicateRule
)

// DefaultContextName is used when Config.DefaultContext is empty.
const DefaultContextName = "default"

// Config holds engine limits and bootstrap options.
type Config struct {
	DefaultContext        string
	MaxFixpointIterations int
	MaxEnumeration        int
	StandardLibrary       bool // register builtin.StandardFunctions
	StandardRules         bool // add builtin.StandardRules
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		DefaultContext:        DefaultContextName,
		MaxFixpointIterations: 1000,
		MaxEnumeration:        1000000,
		StandardLibrary:       true,
		StandardRules:         true,
	}
}

// InferenceTrace describes one Infer call.
// Mirrors store.TraceRecord to avoid import cycles.
type InferenceTrace struct {
	Context    string
	Goal       string
	Result     term.Tribool
	Hypotheses []string
	Duration   time.Duration
	Timestamp  time.Time
}

// Tracer receives a record of every inference.
type Tracer interface {
	RecordInference(t InferenceTrace) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine is the knowledge base of one agent. Public methods are serialised;
// each runs to completion before the next starts.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	registry *term.Registry
	rules    *rules.Store
	contexts map[string]*facts.Store
	tracer   Tracer
}

// NewEngine creates an engine with an empty default context.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	timer := logging.StartTimer(logging.CategoryKernel, "NewEngine")
	defer timer.Stop()

	if cfg.DefaultContext == "" {
		cfg.DefaultContext = DefaultContextName
	}
	if cfg.MaxFixpointIterations <= 0 {
		cfg.MaxFixpointIterations = DefaultConfig().MaxFixpointIterations
	}
	if cfg.MaxEnumeration <= 0 {
		cfg.MaxEnumeration = DefaultConfig().MaxEnumeration
	}

	e := &Engine{
		cfg:      cfg,
		registry: term.NewRegistry(),
		rules:    rules.NewStore(),
		contexts: make(map[string]*facts.Store),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.contexts[cfg.DefaultContext] = facts.New(e.registry)

	if cfg.StandardLibrary {
		for _, spec := range builtin.StandardFunctions() {
			if err := e.registerLocked(spec); err != nil {
				return nil, fmt.Errorf("standard library: %w", err)
			}
		}
	}
	if cfg.StandardRules {
		for _, r := range builtin.StandardRules() {
			if err := e.addRuleTextLocked(r.ID, rules.KindStandard, r.If, r.Then); err != nil {
				return nil, fmt.Errorf("standard rules: %w", err)
			}
		}
	}
	logging.Kernel("Engine ready: %d functions, %d rules", e.registry.Len(), e.rules.Len())
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// DefaultContext returns the name of the default context.
func (e *Engine) DefaultContext() string { return e.cfg.DefaultContext }

// Registry exposes the function registry. Callers must not register
// functions on it directly; use RegisterFunction.
func (e *Engine) Registry() *term.Registry { return e.registry }

// Parse parses predicate text against the engine's registry.
func (e *Engine) Parse(text string) (term.Term, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return term.Parse(text, e.registry)
}

// =============================================================================
// CONTEXTS
// =============================================================================

func (e *Engine) contextName(name string) string {
	if name == "" {
		return e.cfg.DefaultContext
	}
	return name
}

// lookupContext returns the named context, or an empty one that is not
// retained when the context does not exist yet.
func (e *Engine) lookupContext(name string) *facts.Store {
	if ctx, ok := e.contexts[name]; ok {
		return ctx
	}
	return facts.New(e.registry)
}

// Contexts returns the context names, default first and the rest sorted.
func (e *Engine) Contexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contextNamesLocked()
}

func (e *Engine) contextNamesLocked() []string {
	names := make([]string, 0, len(e.contexts))
	for n := range e.contexts {
		if n != e.cfg.DefaultContext {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return append([]string{e.cfg.DefaultContext}, names...)
}

// FactCount is the number of adapted facts stored in a context, including
// derived facts and the facts of nested function applications.
func (e *Engine) FactCount(context string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookupContext(e.contextName(context)).Len()
}

// Facts returns the facts of a context re-expressed in surface form (one
// representative each), deduplicated and sorted by their text.
func (e *Engine) Facts(context string) []term.Term {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := e.lookupContext(e.contextName(context))
	dir := ctx.Directory()
	seen := make(map[string]bool)
	var out []term.Term
	for _, f := range ctx.All() {
		if e.registry.Entry(f.Func).Kind != term.KindPredicate {
			continue
		}
		s := dir.DeadaptOne(f)
		if k := s.Key(); !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Deadapt expands the identities of t into every surface form known in the
// context.
func (e *Engine) Deadapt(context string, t term.Term) []term.Term {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookupContext(e.contextName(context)).Directory().Deadapt(t)
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []*rules.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*rules.Rule, e.rules.Len())
	copy(out, e.rules.Rules())
	return out
}
