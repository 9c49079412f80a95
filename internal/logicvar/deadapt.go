package logicvar

import (
	"agentkb/internal/term"
)

// Deadapt expands the identities in an adapted term back into surface
// terms. Every combination of known surface forms is produced once; an
// identity whose every surface form refers back to itself falls back to its
// bound constant, or to the bare identity if it has none.
func (d *Directory) Deadapt(t term.Term) []term.Term {
	return d.deadapt(d.ResolveTerm(t), make(map[term.VarID]bool))
}

// DeadaptOne returns a single representative surface form for t.
func (d *Directory) DeadaptOne(t term.Term) term.Term {
	if alts := d.Deadapt(t); len(alts) > 0 {
		return alts[0]
	}
	return t
}

func (d *Directory) deadapt(t term.Term, visiting map[term.VarID]bool) []term.Term {
	ids := t.Identities(nil)
	if len(ids) == 0 {
		return []term.Term{t}
	}
	for _, id := range ids {
		if visiting[id] {
			return nil
		}
	}

	alts := make([][]term.Term, len(ids))
	pos := make(map[term.VarID]int, len(ids))
	for i, id := range ids {
		pos[id] = i
		v := d.vars[id]
		if v == nil {
			alts[i] = []term.Term{term.NewIdentity(id)}
			continue
		}
		visiting[id] = true
		seen := make(map[string]bool)
		for _, s := range v.Surface {
			for _, e := range d.deadapt(s, visiting) {
				if k := e.Key(); !seen[k] {
					seen[k] = true
					alts[i] = append(alts[i], e)
				}
			}
		}
		delete(visiting, id)
		if len(alts[i]) == 0 {
			if v.Bound != nil {
				alts[i] = []term.Term{term.NewConstant(*v.Bound)}
			} else {
				alts[i] = []term.Term{term.NewIdentity(id)}
			}
		}
	}

	var out []term.Term
	seen := make(map[string]bool)
	counter := make([]int, len(ids))
	for {
		e := t.Map(func(leaf term.Term) term.Term {
			if leaf.Kind == term.KindIdentity {
				if i, ok := pos[leaf.ID]; ok {
					return alts[i][counter[i]]
				}
			}
			return leaf
		})
		if k := e.Key(); !seen[k] {
			seen[k] = true
			out = append(out, e)
		}

		i := 0
		for ; i < len(counter); i++ {
			counter[i]++
			if counter[i] < len(alts[i]) {
				break
			}
			counter[i] = 0
		}
		if i == len(counter) {
			return out
		}
	}
}
