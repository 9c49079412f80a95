package kb

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"agentkb/internal/builtin"
	"agentkb/internal/core"
	"agentkb/internal/logging"
	"agentkb/internal/term"
)

// maxParallelReads bounds concurrent file decoding.
const maxParallelReads = 8

// Loader builds engines from KB files.
type Loader struct {
	cfg  core.Config
	opts []core.Option
}

// NewLoader returns a loader whose engines use cfg and opts.
func NewLoader(cfg core.Config, opts ...core.Option) *Loader {
	return &Loader{cfg: cfg, opts: opts}
}

// ReadFiles decodes paths concurrently. The result keeps the order of
// paths.
func ReadFiles(ctx context.Context, paths ...string) ([]*File, error) {
	timer := logging.StartTimer(logging.CategoryKB, "ReadFiles")
	defer timer.Stop()

	files := make([]*File, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelReads)
	for i, path := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			f, err := ReadFile(path)
			if err != nil {
				return err
			}
			files[i] = f
			logging.KBDebug("Decoded %s: %d functions, %d rules, %d contexts, %d queries",
				path, len(f.Functions), len(f.Rules), len(f.Facts), len(f.Queries))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logging.KBError("Failed to read KB files: %v", err)
		return nil, err
	}
	return files, nil
}

// Build creates a fresh engine and loads paths into it.
func (l *Loader) Build(ctx context.Context, paths ...string) (*core.Engine, []*File, error) {
	e, err := core.NewEngine(l.cfg, l.opts...)
	if err != nil {
		return nil, nil, err
	}
	files, err := l.LoadFiles(ctx, e, paths...)
	if err != nil {
		return nil, nil, err
	}
	return e, files, nil
}

// LoadFiles reads paths concurrently, then applies them to e one after the
// other in the given order.
func (l *Loader) LoadFiles(ctx context.Context, e *core.Engine, paths ...string) ([]*File, error) {
	files, err := ReadFiles(ctx, paths...)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := Apply(e, f); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// Apply registers the file's functions, then adds its rules, then its facts
// context by context.
func Apply(e *core.Engine, f *File) error {
	timer := logging.StartTimer(logging.CategoryKB, "Apply")
	defer timer.Stop()

	for _, fn := range f.Functions {
		spec, err := functionSpec(fn)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		if err := e.RegisterFunction(spec); err != nil {
			return fmt.Errorf("%s: function %s: %w", f.Path, fn.Name, err)
		}
	}
	for _, r := range f.Rules {
		if err := e.AddRule(r.ID, r.If, r.Then); err != nil {
			return fmt.Errorf("%s: rule %s: %w", f.Path, r.ID, err)
		}
	}

	n := 0
	for _, ctxName := range f.Contexts(e.DefaultContext()) {
		if err := e.AddFacts(f.Facts[ctxName], ctxName); err != nil {
			return fmt.Errorf("%s: context %s: %w", f.Path, ctxName, err)
		}
		n += len(f.Facts[ctxName])
	}
	logging.KB("Loaded %s: %d functions, %d rules, %d facts", f.Path, len(f.Functions), len(f.Rules), n)
	return nil
}

func functionSpec(fn FunctionDecl) (term.FunctionSpec, error) {
	spec := term.FunctionSpec{Name: fn.Name, Arity: fn.Arity, Identity: fn.Identity}
	switch fn.Kind {
	case "", "predicate":
		spec.Kind = term.KindPredicate
	case "function":
		spec.Kind = term.KindFunction
	default:
		return spec, fmt.Errorf("%w: function %s has unknown kind %q", ErrInvalidKB, fn.Name, fn.Kind)
	}
	if fn.Evaluator != "" {
		ev, err := builtin.CompileExpr(fn.Evaluator, fn.Arity)
		if err != nil {
			return spec, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		spec.Evaluator = ev
	}
	return spec, nil
}
