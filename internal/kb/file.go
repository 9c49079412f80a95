// Package kb loads knowledge-base files into an inference engine, runs the
// queries they declare, and reloads them when they change on disk.
package kb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidKB is returned for structurally bad KB documents.
var ErrInvalidKB = errors.New("invalid knowledge base")

// File is one decoded KB document.
type File struct {
	Path      string              `yaml:"-"`
	Functions []FunctionDecl      `yaml:"functions,omitempty"`
	Rules     []RuleDecl          `yaml:"rules,omitempty"`
	Facts     map[string][]string `yaml:"facts,omitempty"`
	Queries   []Query             `yaml:"queries,omitempty"`
}

// FunctionDecl declares a function or predicate. Evaluator is an optional
// expr-lang boolean expression over args (or a, b, c, d).
type FunctionDecl struct {
	Name      string `yaml:"name"`
	Arity     int    `yaml:"arity"`
	Kind      string `yaml:"kind,omitempty"` // predicate (default) or function
	Identity  bool   `yaml:"identity,omitempty"`
	Evaluator string `yaml:"evaluator,omitempty"`
}

// RuleDecl declares a rule. A rule with no actions is an inconsistency
// rule.
type RuleDecl struct {
	ID   string   `yaml:"id"`
	If   []string `yaml:"if"`
	Then []string `yaml:"then,omitempty"`
}

// Query is an expectation checked by Check.
type Query struct {
	Goal    string `yaml:"goal"`
	Context string `yaml:"context,omitempty"`
	Expect  string `yaml:"expect"`
	// Hypotheses, when set, must each appear among the hypotheses reported
	// for an indeterminate goal.
	Hypotheses []string `yaml:"hypotheses,omitempty"`
}

// ReadFile reads and decodes one KB file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data), path)
}

// Decode decodes a KB document. Unknown keys are rejected.
func Decode(r io.Reader, path string) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	f := &File{}
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKB, path, err)
	}
	f.Path = path
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) validate() error {
	for i, fn := range f.Functions {
		if fn.Name == "" {
			return fmt.Errorf("%w: %s: functions[%d] has no name", ErrInvalidKB, f.Path, i)
		}
		switch fn.Kind {
		case "", "predicate", "function":
		default:
			return fmt.Errorf("%w: %s: function %s has unknown kind %q", ErrInvalidKB, f.Path, fn.Name, fn.Kind)
		}
		if fn.Kind == "function" && fn.Evaluator != "" {
			return fmt.Errorf("%w: %s: function %s cannot have an evaluator", ErrInvalidKB, f.Path, fn.Name)
		}
	}
	for i, r := range f.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: %s: rules[%d] has no id", ErrInvalidKB, f.Path, i)
		}
		if len(r.If) == 0 {
			return fmt.Errorf("%w: %s: rule %s has no conditions", ErrInvalidKB, f.Path, r.ID)
		}
	}
	for i, q := range f.Queries {
		if q.Goal == "" {
			return fmt.Errorf("%w: %s: queries[%d] has no goal", ErrInvalidKB, f.Path, i)
		}
	}
	return nil
}

// Contexts returns the fact contexts of the file with defaultName first and
// the rest sorted.
func (f *File) Contexts(defaultName string) []string {
	names := make([]string, 0, len(f.Facts))
	for name := range f.Facts {
		if name != defaultName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := f.Facts[defaultName]; ok {
		names = append([]string{defaultName}, names...)
	}
	return names
}

// Encode writes the file as YAML.
func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}
