// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package analysis

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedbat/covcore"
	"github.com/nedbat/covcore/ext"
)

func mustExclude(t *testing.T, patterns ...string) []*regexp.Regexp {
	t.Helper()
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		require.NoError(t, err)
		out = append(out, re)
	}
	return out
}

// S1: an always-true conditional still predicts both branch arcs, and
// the implicit false branch falls to the statement after the if.
func TestAnalyse_IfWithoutElseBranches(t *testing.T) {
	src := "def f():\n" +
		"    if True:\n" +
		"        x = 10\n" +
		"    return x\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)

	assert.True(t, fa.ExecutableLines.Has(2))
	assert.True(t, fa.ExecutableLines.Has(3))
	assert.True(t, fa.ExecutableLines.Has(4))

	assert.True(t, fa.PredictedArcs.Has(covcore.Arc{From: 2, To: 3}))
	assert.True(t, fa.PredictedArcs.Has(covcore.Arc{From: 2, To: 4}))

	branches := fa.Branches()
	assert.Equal(t, 2, branches[2])
}

// S2: excluding a method body via a pragma on its header removes the
// entire block and its lines stop being executable.
func TestAnalyse_ExcludeWholeMethod(t *testing.T) {
	src := "class C:\n" +
		"    def __repr__(self):  # pragma: no cover\n" +
		"        return 'C()'\n" +
		"    def other(self):\n" +
		"        return 1\n"
	fa, err := Analyse([]byte(src), WithExcludeRegexes(mustExclude(t, ext.DefaultExcludePattern)))
	require.NoError(t, err)

	assert.False(t, fa.ExecutableLines.Has(2))
	assert.False(t, fa.ExecutableLines.Has(3))
	assert.True(t, fa.ExecutableLines.Has(4))
	assert.True(t, fa.ExecutableLines.Has(5))
	assert.True(t, fa.InExclusionRange(2))
	assert.True(t, fa.InExclusionRange(3))
}

// S5: a try/finally whose try body always completes predicts exactly
// one outgoing arc from the finally line, so it is not a branch.
func TestAnalyse_TryFinallySingleArc(t *testing.T) {
	src := "def f():\n" +
		"    try:\n" +
		"        x = 1\n" +
		"    finally:\n" +
		"        y = 2\n" +
		"    return x\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)

	branches := fa.Branches()
	_, isBranch := branches[5]
	assert.False(t, isBranch, "finally line should not be reported as a branch")
	assert.True(t, fa.PredictedArcs.Has(covcore.Arc{From: 5, To: 6}))
}

// S8: excluding a compound statement's header removes the whole block,
// reconnecting surrounding flow around the gap.
func TestAnalyse_ExcludeIfBlockReconnectsFlow(t *testing.T) {
	src := "def f():\n" +
		"    a = 1\n" +
		"    if DEBUG:  # pragma: no cover\n" +
		"        log(a)\n" +
		"    b = 2\n" +
		"    return b\n"
	fa, err := Analyse([]byte(src), WithExcludeRegexes(mustExclude(t, ext.DefaultExcludePattern)))
	require.NoError(t, err)

	assert.False(t, fa.ExecutableLines.Has(3))
	assert.False(t, fa.ExecutableLines.Has(4))
	assert.True(t, fa.PredictedArcs.Has(covcore.Arc{From: 2, To: 5}))
}

// A straight-line function with no branches at all has zero entries in
// Branches(), matching the "no branches" invariant.
func TestAnalyse_NoBranches(t *testing.T) {
	src := "def f():\n" +
		"    a = 1\n" +
		"    b = 2\n" +
		"    return a + b\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)
	assert.Empty(t, fa.Branches())
}

func TestAnalyse_ModuleDocstringExcludedFromExecutableLines(t *testing.T) {
	src := "\"\"\"Module doc.\"\"\"\n" +
		"x = 1\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)
	assert.False(t, fa.ExecutableLines.Has(1))
	assert.True(t, fa.ExecutableLines.Has(2))
	require.Len(t, fa.DocstringRanges, 1)
	assert.Equal(t, 1, fa.DocstringRanges[0].Start)
}

func TestAnalyse_NoSourceError(t *testing.T) {
	_, err := Analyse([]byte("   \n\n"), WithPath("empty.py"))
	require.Error(t, err)
	var nse *covcore.NoSourceError
	assert.ErrorAs(t, err, &nse)
	assert.Equal(t, "empty.py", nse.Path)
}

func TestAnalyse_NoBranchPragmaSuppressesBranch(t *testing.T) {
	src := "def f():\n" +
		"    if x:  # no branch\n" +
		"        a = 1\n" +
		"    return a\n"
	fa, err := Analyse([]byte(src), WithNoBranchRegexes(mustExclude(t, `# no branch`)))
	require.NoError(t, err)
	assert.Empty(t, fa.Branches())
}

func TestAnalyse_ForElseConvergesOnNormalCompletion(t *testing.T) {
	src := "def f(items):\n" +
		"    for x in items:\n" +
		"        if x:\n" +
		"            break\n" +
		"    else:\n" +
		"        y = 1\n" +
		"    return y\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)
	assert.True(t, fa.PredictedArcs.Has(covcore.Arc{From: 2, To: 6}))
	assert.True(t, fa.PredictedArcs.Has(covcore.Arc{From: 4, To: 7}), "break should skip the else clause")
}

func TestAnalyse_StaticallyFalseIfIsNotExecutable(t *testing.T) {
	src := "def f():\n" +
		"    if False:\n" +
		"        debug_only()\n" +
		"    return 1\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)
	assert.False(t, fa.ExecutableLines.Has(2))
	assert.False(t, fa.ExecutableLines.Has(3))
	assert.True(t, fa.ExecutableLines.Has(4))
}

func TestAnalyse_DecoratedDefRecordsEquivalencePair(t *testing.T) {
	src := "@decorator\n" +
		"def f():\n" +
		"    return 1\n"
	fa, err := Analyse([]byte(src))
	require.NoError(t, err)
	assert.True(t, fa.ExecutableLines.Has(1))
	assert.True(t, fa.ExecutableLines.Has(2))
	require.Len(t, fa.DecoratorPairs, 1)
	assert.Equal(t, [2]int{1, 2}, fa.DecoratorPairs[0])
}

func TestAnalyse_MainGuardExcludedWhenConfigured(t *testing.T) {
	src := "def f():\n" +
		"    return 1\n" +
		"if __name__ == \"__main__\":\n" +
		"    f()\n"
	fa, err := Analyse([]byte(src), WithExcludeMainGuard(true))
	require.NoError(t, err)
	assert.False(t, fa.ExecutableLines.Has(3))
	assert.False(t, fa.ExecutableLines.Has(4))
}
