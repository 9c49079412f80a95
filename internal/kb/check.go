package kb

import (
	"fmt"

	"agentkb/internal/core"
	"agentkb/internal/logging"
	"agentkb/internal/term"
)

// Mismatch is a query whose answer differed from its expectation.
type Mismatch struct {
	File  string
	Query Query
	Got   term.Tribool
	// Missing lists expected hypotheses that were not reported.
	Missing []string
	Err     error
}

func (m Mismatch) String() string {
	if m.Err != nil {
		return fmt.Sprintf("%s: %s: %v", m.File, m.Query.Goal, m.Err)
	}
	if len(m.Missing) > 0 {
		return fmt.Sprintf("%s: %s: missing hypotheses %v", m.File, m.Query.Goal, m.Missing)
	}
	return fmt.Sprintf("%s: %s: expected %s, got %s", m.File, m.Query.Goal, m.Query.Expect, m.Got)
}

// Report summarises a Check run.
type Report struct {
	Total      int
	Passed     int
	Mismatches []Mismatch
}

// OK reports whether every query passed.
func (r Report) OK() bool { return len(r.Mismatches) == 0 }

// Check runs the queries of files against e.
func Check(e *core.Engine, files ...*File) Report {
	timer := logging.StartTimer(logging.CategoryKB, "Check")
	defer timer.Stop()

	var rep Report
	for _, f := range files {
		for _, q := range f.Queries {
			rep.Total++
			if m, ok := checkQuery(e, f.Path, q); !ok {
				rep.Mismatches = append(rep.Mismatches, m)
				logging.KBWarn("Query mismatch: %s", m)
				continue
			}
			rep.Passed++
		}
	}
	logging.KB("Checked %d queries: %d passed, %d failed", rep.Total, rep.Passed, len(rep.Mismatches))
	return rep
}

func checkQuery(e *core.Engine, path string, q Query) (Mismatch, bool) {
	m := Mismatch{File: path, Query: q}

	want, ok := term.ParseTribool(q.Expect)
	if !ok {
		m.Err = fmt.Errorf("%w: expect must be true, false or indeterminate, got %q", ErrInvalidKB, q.Expect)
		return m, false
	}
	res, err := e.InferWithHypotheses(q.Goal, q.Context)
	if err != nil {
		m.Err = err
		return m, false
	}
	m.Got = res.Value
	if res.Value != want {
		return m, false
	}

	got := make(map[string]bool, len(res.Hypotheses))
	for _, h := range res.Hypotheses {
		got[h.String()] = true
	}
	for _, h := range q.Hypotheses {
		key := h
		if t, err := e.Parse(h); err == nil {
			key = t.String()
		}
		if !got[key] {
			m.Missing = append(m.Missing, h)
		}
	}
	return m, len(m.Missing) == 0
}
