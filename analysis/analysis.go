// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package analysis implements the static source analyser: parsing a
// Python source file into its executable lines and predicted branch
// arcs, the same per-file static analysis coverage.py performs before
// any measurement data exists.
//
// There is no Python-parsing library anywhere in the corpus this
// module was grown from, so this package hand-rolls a line-oriented
// tokenizer (token.go) feeding a small recursive-descent statement
// parser (block.go); both are deliberately shallow, tracking only what
// branch-arc prediction needs (statement boundaries, indentation,
// compound-statement headers) rather than a full grammar.
package analysis

import (
	"strings"

	"github.com/nedbat/covcore"
)

// Analyse parses Python source and predicts its static coverage shape.
func Analyse(source []byte, opts ...Option) (*covcore.FileAnalysis, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	src := string(source)
	if strings.TrimSpace(src) == "" {
		return nil, &covcore.NoSourceError{Path: o.path}
	}

	lines := tokenizeLogicalLines(src)
	top := parseModule(lines)
	top = pruneDeadConditionals(top, o.excludeMainGuard)

	srcLines := strings.Split(src, "\n")
	excluded := func(start, end int) bool { return linesMatchAny(srcLines, o.excludeRe, start, end) }

	exclusionRanges := toIntervals(excludedRanges(top, excluded))
	pruned := pruneExcluded(top, excluded)

	b := newCFGBuilder()
	b.buildCodeObject(1, pruned)

	noBranchLines := map[int]struct{}{}
	var noBranchRanges []covcore.LineInterval
	for i, text := range srcLines {
		for _, re := range o.noBranchRe {
			if re.MatchString(text) {
				noBranchLines[i+1] = struct{}{}
				noBranchRanges = append(noBranchRanges, covcore.LineInterval{Start: i + 1, End: i + 1})
			}
		}
	}
	applyNoBranch(b.arcs, noBranchLines)

	docRanges := collectDocstrings(pruned)
	docLineSet := map[int]struct{}{}
	for _, r := range docRanges {
		for ln := r.Start; ln <= r.End; ln++ {
			docLineSet[ln] = struct{}{}
		}
	}

	execLines := covcore.NewLineSet()
	for ln := range b.execLines {
		if _, isDoc := docLineSet[ln]; isDoc {
			continue
		}
		execLines.Add(ln)
	}

	predictedArcs := covcore.NewArcSet()
	for a := range b.arcs {
		predictedArcs.Add(covcore.Arc{From: a.From, To: a.To})
	}

	var decoratorPairs [][2]int
	for _, pair := range b.decoratorPairs {
		if execLines.Has(pair[0]) && execLines.Has(pair[1]) {
			decoratorPairs = append(decoratorPairs, pair)
		}
	}

	return &covcore.FileAnalysis{
		ExecutableLines: execLines,
		PredictedArcs:   predictedArcs,
		ExclusionRanges: exclusionRanges,
		NoBranchRanges:  noBranchRanges,
		DocstringRanges: docRanges,
		DecoratorPairs:  decoratorPairs,
	}, nil
}

func toIntervals(in []covcoreInterval) []covcore.LineInterval {
	out := make([]covcore.LineInterval, 0, len(in))
	for _, r := range in {
		out = append(out, covcore.LineInterval{Start: r.Start, End: r.End})
	}
	return out
}

// applyNoBranch strips all but one outgoing arc from any line the
// caller has flagged as a no-branch pragma line, so it no longer
// qualifies as a branch (fewer than two distinct successors).
func applyNoBranch(arcs map[codeArc]struct{}, noBranchLines map[int]struct{}) {
	if len(noBranchLines) == 0 {
		return
	}
	byFrom := map[int][]codeArc{}
	for a := range arcs {
		byFrom[a.From] = append(byFrom[a.From], a)
	}
	for from, list := range byFrom {
		if _, ok := noBranchLines[from]; !ok || len(list) < 2 {
			continue
		}
		keep := list[0]
		for _, a := range list {
			if a == keep {
				continue
			}
			delete(arcs, a)
		}
	}
}

// collectDocstrings finds the leading string-literal statement of the
// module body and of every nested def/class body; Python only treats a
// string literal as a docstring in exactly those positions.
func collectDocstrings(moduleBody []*stmt) []covcore.LineInterval {
	var out []covcore.LineInterval
	checkFirst := func(body []*stmt) {
		if len(body) == 0 {
			return
		}
		if first := body[0]; first.docstring {
			out = append(out, covcore.LineInterval{Start: first.firstLine, End: first.lastLine})
		}
	}
	var walk func(body []*stmt)
	walk = func(body []*stmt) {
		for _, s := range body {
			if s.kind == kindDef || s.kind == kindClass {
				checkFirst(s.body)
			}
			walk(s.body)
			for _, c := range s.clauses {
				walk(c.body)
			}
		}
	}
	checkFirst(moduleBody)
	walk(moduleBody)
	return out
}
