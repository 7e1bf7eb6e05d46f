// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedbat/covcore"
)

func TestReconcile_LineMode_MissingLines(t *testing.T) {
	a := &covcore.FileAnalysis{
		ExecutableLines: covcore.NewLineSet(1, 2, 3, 4),
	}
	r, err := Reconcile(a, FromLines(covcore.NewLineSet(1, 2, 4)))
	require.NoError(t, err)
	assert.Equal(t, covcore.NewLineSet(3), r.MissingLines)
}

// S-arc-1 (spec §8 worked scenario): a branch with one taken, one
// missing successor reports a partial branch and the missing arc, with
// no missing lines since every executable line was hit some way.
func TestReconcile_ArcMode_PartialBranch(t *testing.T) {
	a := &covcore.FileAnalysis{
		ExecutableLines: covcore.NewLineSet(1, 2, 3, 4, 5),
		PredictedArcs: covcore.NewArcSet(
			covcore.Arc{From: -1, To: 1},
			covcore.Arc{From: 1, To: 5},
			covcore.Arc{From: 5, To: -1},
			covcore.Arc{From: -1, To: 2},
			covcore.Arc{From: 2, To: 3},
			covcore.Arc{From: 2, To: 4},
			covcore.Arc{From: 3, To: 4},
			covcore.Arc{From: 4, To: -1},
		),
	}
	observed := covcore.NewArcSet(
		covcore.Arc{From: -1, To: 1},
		covcore.Arc{From: 1, To: 5},
		covcore.Arc{From: 5, To: -1},
		covcore.Arc{From: -1, To: 2},
		covcore.Arc{From: 2, To: 3},
		covcore.Arc{From: 3, To: 4},
		covcore.Arc{From: 4, To: -1},
	)
	r, err := Reconcile(a, FromArcs(observed))
	require.NoError(t, err)

	assert.Empty(t, r.MissingLines)
	assert.Equal(t, covcore.NewArcSet(covcore.Arc{From: 2, To: 4}), r.MissingArcs)
	assert.Equal(t, covcore.NewLineSet(2), r.PartialBranches)
}

// A decorated def's trace event lands on only one of the two lines
// the static analysis marked executable (the compiler-quirk pair); the
// other must not be reported as missing.
func TestReconcile_LineMode_DecoratorPairEitherMemberSatisfies(t *testing.T) {
	a := &covcore.FileAnalysis{
		ExecutableLines: covcore.NewLineSet(1, 2, 3),
		DecoratorPairs:  [][2]int{{1, 2}},
	}
	r, err := Reconcile(a, FromLines(covcore.NewLineSet(2, 3)))
	require.NoError(t, err)
	assert.Empty(t, r.MissingLines, "observing the def line should also satisfy the paired decorator line")
	assert.Equal(t, 3, r.executedCount)
}

func TestReconcile_ArcMode_DecoratorPairEitherMemberSatisfies(t *testing.T) {
	a := &covcore.FileAnalysis{
		ExecutableLines: covcore.NewLineSet(1, 2, 3),
		PredictedArcs: covcore.NewArcSet(
			covcore.Arc{From: -1, To: 1},
			covcore.Arc{From: 2, To: 3},
			covcore.Arc{From: 3, To: -1},
		),
		DecoratorPairs: [][2]int{{1, 2}},
	}
	observed := covcore.NewArcSet(covcore.Arc{From: 2, To: 3}, covcore.Arc{From: 3, To: -1})
	r, err := Reconcile(a, FromArcs(observed))
	require.NoError(t, err)
	assert.Empty(t, r.MissingLines, "observing line 2 via an arc should also satisfy the paired decorator line 1")
}

func TestReconcile_LineMode_DecoratorPairBothUnobservedStillMissing(t *testing.T) {
	a := &covcore.FileAnalysis{
		ExecutableLines: covcore.NewLineSet(1, 2, 3),
		DecoratorPairs:  [][2]int{{1, 2}},
	}
	r, err := Reconcile(a, FromLines(covcore.NewLineSet(3)))
	require.NoError(t, err)
	assert.Equal(t, covcore.NewLineSet(1, 2), r.MissingLines, "an unreachable decorated def should still be reported missing")
}

func TestReconcile_ArcMode_NoBranchRangeExcludesArcs(t *testing.T) {
	a := &covcore.FileAnalysis{
		ExecutableLines: covcore.NewLineSet(1, 2, 3),
		PredictedArcs: covcore.NewArcSet(
			covcore.Arc{From: -1, To: 2},
			covcore.Arc{From: 2, To: 3},
			covcore.Arc{From: 2, To: -1},
		),
		NoBranchRanges: []covcore.LineInterval{{Start: 2, End: 2}},
	}
	observed := covcore.NewArcSet(covcore.Arc{From: -1, To: 2}, covcore.Arc{From: 2, To: 3})
	r, err := Reconcile(a, FromArcs(observed))
	require.NoError(t, err)

	assert.Zero(t, r.NBranches, "line 2's arcs should be excluded from branch accounting by the no-branch range")
	assert.Empty(t, r.MissingArcs)
	assert.Empty(t, r.PartialBranches)
}

func TestPercent_FullCoverageIsExactly100(t *testing.T) {
	r := &Result{executableCount: 10, executedCount: 10, NBranches: 4, NMissingBranches: 0}
	assert.Equal(t, 100.0, r.Percent(2))
}

func TestPercent_ZeroCoverageIsExactlyZero(t *testing.T) {
	r := &Result{executableCount: 10, executedCount: 0, NBranches: 0, NMissingBranches: 0}
	assert.Equal(t, 0.0, r.Percent(2))
}

func TestPercent_NearCompleteNeverRoundsTo100(t *testing.T) {
	r := &Result{executableCount: 1000, executedCount: 999, NBranches: 0, NMissingBranches: 0}
	pct := r.Percent(0)
	assert.Less(t, pct, 100.0)
}

func TestPercent_NearEmptyNeverRoundsTo0(t *testing.T) {
	r := &Result{executableCount: 1000, executedCount: 1, NBranches: 0, NMissingBranches: 0}
	pct := r.Percent(0)
	assert.Greater(t, pct, 0.0)
}

func TestPercent_NoExecutableLinesIs100(t *testing.T) {
	r := &Result{executableCount: 0, executedCount: 0, NBranches: 0, NMissingBranches: 0}
	assert.Equal(t, 100.0, r.Percent(2))
}
