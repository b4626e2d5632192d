// Package emitter converts finalized duplicate groups, together with the
// criteria engine's per-group marks, into a report.Report ready to be
// written in the text format described in §6 of the specification this
// codebase implements.
package emitter

import (
	"sort"

	"github.com/fileops/dupefind/internal/candidate"
	"github.com/fileops/dupefind/internal/criteria"
	"github.com/fileops/dupefind/internal/report"
)

// Build converts duplicate groups into report groups. program may be the
// zero Program (no phrases), in which case every path is left unmarked.
// onlyMixedRoots drops any group whose candidates all share one RootIndex.
func Build(groups candidate.DuplicateGroups, program criteria.Program, onlyMixedRoots bool) report.Report {
	var out report.Report
	for _, dg := range groups.Items() {
		primaries := representatives(dg)
		if onlyMixedRoots && !mixedRoots(primaries) {
			continue
		}
		out.Groups = append(out.Groups, buildGroup(primaries, program))
	}
	return out
}

// representatives flattens a DuplicateGroup's sibling groups into their
// representative candidates, sorted by primary path for stable output.
func representatives(dg candidate.DuplicateGroup) []*candidate.Candidate {
	var reps []*candidate.Candidate
	for _, sg := range dg.Items() {
		reps = append(reps, sg.Items()...)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].Path < reps[j].Path })
	return reps
}

func mixedRoots(cands []*candidate.Candidate) bool {
	if len(cands) == 0 {
		return false
	}
	first := cands[0].RootIndex
	for _, c := range cands[1:] {
		if c.RootIndex != first {
			return true
		}
	}
	return false
}

func buildGroup(cands []*candidate.Candidate, program criteria.Program) report.Group {
	marks := markAll(cands, program)

	size := cands[0].Size
	names := 0
	for _, c := range cands {
		n := len(c.AliasPaths)
		if n == 0 {
			n = 1
		}
		names += n
	}

	g := report.Group{
		Size:      size,
		Instances: len(cands),
		Excess:    size * int64(len(cands)-1),
		Names:     names,
	}
	for _, c := range cands {
		g.Entries = append(g.Entries, report.Entry{Mark: marks[c], Path: c.Path})
	}
	return g
}

// markAll applies the criteria program and assigns the report mark per
// spec: no criteria leaves everyone unmarked; a single surviving
// candidate is preferred; a tie among survivors is ambiguous, whether
// that tie narrowed the group or survived it whole.
func markAll(cands []*candidate.Candidate, program criteria.Program) map[*candidate.Candidate]report.Mark {
	marks := make(map[*candidate.Candidate]report.Mark, len(cands))
	if len(program.Phrases) == 0 {
		return marks
	}

	survivors := criteria.Apply(program, cands)

	mark := report.Ambiguous
	if len(survivors) == 1 {
		mark = report.Preferred
	}
	for _, c := range survivors {
		marks[c] = mark
	}
	return marks
}
