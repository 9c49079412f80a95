package kb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentkb/internal/core"
	"agentkb/internal/term"
)

const baseKB = `
functions:
  - {name: distance, arity: 2, kind: function}
  - {name: same_parity, arity: 2, evaluator: "a % 2 == b % 2"}
rules:
  - {id: irreflexive, if: ["less_int(A, A)"]}
facts:
  default:
    - equal_int(x, y)
    - equal_int(x, 7)
    - less_int(y, 9)
    - less_int(z, y)
  task_42:
    - less_double(distance(center, object), 3.0)
queries:
  - {goal: "less_int(z, 12)", expect: "true"}
  - {goal: "less_int(y, 3)", expect: "false"}
  - {goal: "same_parity(x, 9)", expect: "true"}
  - goal: "less_double(distance(center, object), treshold)"
    context: task_42
    expect: indeterminate
    hypotheses: ["less_double(3.0,treshold)"]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDecode(t *testing.T) {
	f, err := Decode(strings.NewReader(baseKB), "base.yaml")
	require.NoError(t, err)
	assert.Equal(t, "base.yaml", f.Path)
	assert.Len(t, f.Functions, 2)
	assert.Equal(t, []string{"default", "task_42"}, f.Contexts("default"))
	assert.Equal(t, []string{"task_42", "default"}, f.Contexts("task_42"))
	assert.Empty(t, f.Rules[0].Then)

	empty, err := Decode(strings.NewReader(""), "empty.yaml")
	require.NoError(t, err)
	assert.Empty(t, empty.Facts)
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "fact: {}\n",
		"bad kind":      "functions: [{name: f, arity: 1, kind: relation}]\n",
		"no name":       "functions: [{arity: 1}]\n",
		"evaluated fn":  "functions: [{name: f, arity: 1, kind: function, evaluator: 'true'}]\n",
		"rule no id":    "rules: [{if: ['p(A)']}]\n",
		"rule no if":    "rules: [{id: r, then: ['p(A)']}]\n",
		"query no goal": "queries: [{expect: 'true'}]\n",
		"not yaml":      "functions: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc), name)
			assert.True(t, errors.Is(err, ErrInvalidKB), "got %v", err)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	f, err := Decode(strings.NewReader(baseKB), "base.yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))
	back, err := Decode(&buf, "base.yaml")
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestLoadAndCheck(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", baseKB)
	extra := writeFile(t, dir, "extra.yaml", `
facts:
  task_42: ["same_parity(4, 6)"]
queries:
  - {goal: "same_parity(4, 6)", context: task_42, expect: "true"}
  - {goal: "less_int(z, 12)", context: task_42, expect: "true"}
`)

	e, files, err := NewLoader(core.DefaultConfig()).Build(context.Background(), base, extra)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, base, files[0].Path)
	assert.Equal(t, []string{"default", "task_42"}, e.Contexts())

	rep := Check(e, files...)
	assert.Equal(t, 6, rep.Total)
	assert.Equal(t, 5, rep.Passed)
	require.Len(t, rep.Mismatches, 1)
	m := rep.Mismatches[0]
	assert.Equal(t, extra, m.File)
	assert.Equal(t, term.Indeterminate, m.Got)
	assert.Contains(t, m.String(), "expected true, got indeterminate")
	assert.False(t, rep.OK())
}

func TestCheckReportsMissingHypotheses(t *testing.T) {
	f, err := Decode(strings.NewReader(`
facts:
  default: ["less_int(a, 3)"]
queries:
  - {goal: "less_int(b, 3)", expect: indeterminate, hypotheses: ["less_int(b, a)", "less_int(b, c)"]}
  - {goal: "less_int(a, 3)", expect: maybe}
  - {goal: "less_int(a", expect: "true"}
`), "q.yaml")
	require.NoError(t, err)
	e, err := core.NewEngine(core.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Apply(e, f))

	rep := Check(e, f)
	require.Len(t, rep.Mismatches, 3)
	assert.Equal(t, []string{"less_int(b, c)"}, rep.Mismatches[0].Missing)
	assert.True(t, errors.Is(rep.Mismatches[1].Err, ErrInvalidKB))
	assert.True(t, errors.Is(rep.Mismatches[2].Err, term.ErrSyntax))
}

func TestApplyErrorsNameTheFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"inconsistent.yaml", "functions: [{name: odd, arity: 1, evaluator: 'a % 2 == 1'}]\nfacts:\n  default: ['odd(4)']\n", core.ErrInconsistent},
		{"unknown.yaml", "facts:\n  default: ['nope(a)']\n", term.ErrUnknownFunction},
		{"dup.yaml", "functions: [{name: less_int, arity: 2}]\n", term.ErrDuplicateFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.doc)
			_, _, err := NewLoader(core.DefaultConfig()).Build(context.Background(), path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Contains(t, err.Error(), tt.name)
		})
	}

	_, err := ReadFiles(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	e, err := core.NewEngine(core.DefaultConfig())
	require.NoError(t, err)

	f := &File{
		Path:      "typo.yaml",
		Functions: []FunctionDecl{{Name: "owner", Arity: 1, Kind: "fuction"}},
	}
	err = Apply(e, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidKB), "got %v", err)
	assert.Contains(t, err.Error(), "typo.yaml")
	_, ok := e.Registry().Lookup("owner")
	assert.False(t, ok, "nothing registered for a rejected declaration")
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kb.yaml", "facts:\n  default: ['less_int(a, 3)']\n")

	type reload struct {
		e   *core.Engine
		err error
	}
	reloads := make(chan reload, 64)
	w, err := NewWatcher(NewLoader(core.DefaultConfig()), []string{path}, 20*time.Millisecond,
		func(e *core.Engine, _ []*File, err error) {
			select {
			case reloads <- reload{e, err}:
			default:
			}
		})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	waitFor := func(desc string, ok func(reload) bool) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case r := <-reloads:
				if ok(r) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", desc)
			}
		}
	}

	writeFile(t, dir, "unrelated.yaml", "facts: {}\n")
	writeFile(t, dir, "kb.yaml", "facts:\n  default: ['less_int(a, 3)', 'less_int(b, a)']\n")
	waitFor("reload with new facts", func(r reload) bool {
		if r.err != nil {
			return false
		}
		v, err := r.e.Infer("less_int(b, 3)", "")
		return err == nil && v == term.True
	})

	writeFile(t, dir, "kb.yaml", "facts:\n  default: ['less_int(a, a']\n")
	waitFor("failed reload", func(r reload) bool {
		return errors.Is(r.err, term.ErrSyntax)
	})

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Reloads, 1)
	assert.GreaterOrEqual(t, stats.Errors, 1)
	assert.Equal(t, path, stats.LastEventPath)
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w, err := NewWatcher(NewLoader(core.DefaultConfig()), []string{"kb.yaml"}, 0, nil)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(w.Paths()[0]))
	w.Stop()
}
