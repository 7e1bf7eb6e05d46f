// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package reconcile implements the arc/branch Reconciler (spec §4.5):
// joining a FileAnalysis's static prediction with a session's observed
// lines or arcs to produce the authoritative per-file coverage result.
package reconcile

import (
	"math"

	"github.com/nedbat/covcore"
)

// observedMode distinguishes the two Observed variants.
type observedMode int

const (
	lineMode observedMode = iota
	arcMode
)

// Observed is a small tagged union: either a set of observed lines (line
// mode) or a set of observed arcs (arc mode), matching whichever
// measurement kind the session ran in.
type Observed struct {
	lines covcore.LineSet
	arcs  covcore.ArcSet
	mode  observedMode
}

// FromLines builds an Observed for a line-mode measurement.
func FromLines(lines covcore.LineSet) Observed {
	return Observed{lines: lines, mode: lineMode}
}

// FromArcs builds an Observed for an arc-mode measurement.
func FromArcs(arcs covcore.ArcSet) Observed {
	return Observed{arcs: arcs, mode: arcMode}
}

// Result is the Reconciler's authoritative per-file output.
type Result struct {
	MissingLines     covcore.LineSet
	MissingArcs      covcore.ArcSet
	PartialBranches  covcore.LineSet
	NBranches        int
	NMissingBranches int

	executableCount int
	executedCount   int
}

// Percent computes the coverage percentage, rounded to precision
// decimal digits, under spec §4.5's exact edge-case rules: 100% only
// when every executable line and branch was hit, 0% only when nothing
// was, and otherwise never rounded to either extreme.
func (r *Result) Percent(precision int) float64 {
	numerator := r.executedCount + (r.NBranches - r.NMissingBranches)
	denominator := r.executableCount + r.NBranches
	return percentage(numerator, denominator, precision)
}

func percentage(numerator, denominator, precision int) float64 {
	if denominator == 0 {
		return 100.0
	}
	if numerator == denominator {
		return 100.0
	}
	if numerator == 0 {
		return 0.0
	}
	mul := math.Pow(10, float64(precision))
	pct := float64(numerator) / float64(denominator) * 100.0
	rounded := math.Round(pct*mul) / mul
	if rounded >= 100.0 {
		rounded = 100.0 - 1.0/mul
	}
	if rounded <= 0.0 {
		rounded = 1.0 / mul
	}
	return rounded
}

// Reconcile joins a FileAnalysis with a session's observations.
func Reconcile(a *covcore.FileAnalysis, obs Observed) (*Result, error) {
	switch obs.mode {
	case lineMode:
		return reconcileLines(a, obs.lines), nil
	case arcMode:
		return reconcileArcs(a, obs.arcs), nil
	default:
		return nil, &covcore.ConfigurationError{Reason: "reconcile: Observed has no recognised mode"}
	}
}

func reconcileLines(a *covcore.FileAnalysis, observed covcore.LineSet) *Result {
	missing := a.ExecutableLines.Difference(observed)
	applyDecoratorEquivalence(a, observed, missing)
	return &Result{
		MissingLines:    missing,
		MissingArcs:     covcore.NewArcSet(),
		PartialBranches: covcore.NewLineSet(),
		executableCount: len(a.ExecutableLines),
		executedCount:   len(a.ExecutableLines) - len(missing),
	}
}

// applyDecoratorEquivalence tolerates the compiler quirk where only one
// member of a (decoratorLine, defLine) pair fires a trace event: if
// observed (directly, or via the set of lines a reconcileArcs call has
// already derived from observed arcs) covers either member, the other
// is dropped from missing rather than reported as a false-negative gap
// (spec §4.1's "compiler quirk compensation").
func applyDecoratorEquivalence(a *covcore.FileAnalysis, observed covcore.LineSet, missing covcore.LineSet) {
	for _, pair := range a.DecoratorPairs {
		decoratorLine, defLine := pair[0], pair[1]
		if observed.Has(decoratorLine) || observed.Has(defLine) {
			delete(missing, decoratorLine)
			delete(missing, defLine)
		}
	}
}

func reconcileArcs(a *covcore.FileAnalysis, observed covcore.ArcSet) *Result {
	executedLines := covcore.NewLineSet()
	for arc := range observed {
		if arc.To > 0 {
			executedLines.Add(arc.To)
		}
		if arc.From > 0 {
			executedLines.Add(arc.From)
		}
	}
	missingLines := a.ExecutableLines.Difference(executedLines)
	applyDecoratorEquivalence(a, executedLines, missingLines)

	branchFroms := a.Branches() // from -> count of predicted successors
	successors := make(map[int][]covcore.Arc, len(branchFroms))
	for arc := range a.PredictedArcs {
		if _, ok := branchFroms[arc.From]; ok {
			successors[arc.From] = append(successors[arc.From], arc)
		}
	}

	missingArcs := covcore.NewArcSet()
	nBranches := 0
	partial := covcore.NewLineSet()
	for from, arcs := range successors {
		taken := 0
		total := 0
		for _, arc := range arcs {
			if inNoBranchRange(a, arc) {
				continue
			}
			total++
			nBranches++
			if observed.Has(arc) {
				taken++
			} else {
				missingArcs.Add(arc)
			}
		}
		if total > 0 && taken > 0 && taken < total {
			partial.Add(from)
		}
	}

	return &Result{
		MissingLines:     missingLines,
		MissingArcs:      missingArcs,
		PartialBranches:  partial,
		NBranches:        nBranches,
		NMissingBranches: len(missingArcs),
		executableCount:  len(a.ExecutableLines),
		executedCount:    len(a.ExecutableLines) - len(missingLines),
	}
}

func inNoBranchRange(a *covcore.FileAnalysis, arc covcore.Arc) bool {
	return a.InNoBranchRange(absLine(arc.From)) || a.InNoBranchRange(absLine(arc.To))
}

func absLine(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
