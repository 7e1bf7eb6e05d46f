// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package datastore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedbat/covcore"
)

func openTemp(t *testing.T, hasArcs bool) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, ".coverage"), hasArcs)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddAndQueryLines(t *testing.T) {
	s := openTemp(t, false)
	require.NoError(t, s.AddLines("src/a.py", "", covcore.NewLineSet(1, 2, 3)))

	lines, err := s.Lines("src/a.py", "")
	require.NoError(t, err)
	assert.Equal(t, covcore.NewLineSet(1, 2, 3), lines)

	files, err := s.MeasuredFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.py"}, files)
}

func TestStore_AddLinesIsIdempotent(t *testing.T) {
	s := openTemp(t, false)
	require.NoError(t, s.AddLines("src/a.py", "", covcore.NewLineSet(1, 2)))
	require.NoError(t, s.AddLines("src/a.py", "", covcore.NewLineSet(2, 3)))

	lines, err := s.Lines("src/a.py", "")
	require.NoError(t, err)
	assert.Equal(t, covcore.NewLineSet(1, 2, 3), lines)
}

func TestStore_AddAndQueryArcs(t *testing.T) {
	s := openTemp(t, true)
	arcs := covcore.NewArcSet(covcore.Arc{From: 1, To: 2}, covcore.Arc{From: 2, To: 3})
	require.NoError(t, s.AddArcs("src/a.py", "", arcs))
	require.NoError(t, s.AddArcs("src/a.py", "", arcs)) // re-add is a no-op

	got, err := s.Arcs("src/a.py", "")
	require.NoError(t, err)
	assert.Equal(t, arcs, got)
}

func TestStore_MixingLinesAndArcsIsIncompatible(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".coverage")
	s, err := Open(path, false)
	require.NoError(t, err)
	s.Close()

	_, err = Open(path, true)
	require.Error(t, err)
	var ide *covcore.IncompatibleDataError
	assert.ErrorAs(t, err, &ide)
}

func TestStore_ContextsByLine(t *testing.T) {
	s := openTemp(t, false)
	require.NoError(t, s.AddLines("src/a.py", "linux", covcore.NewLineSet(1, 2)))
	require.NoError(t, s.AddLines("src/a.py", "windows", covcore.NewLineSet(2, 3)))

	byLine, err := s.ContextsByLine("src/a.py")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"linux"}, byLine[1])
	assert.ElementsMatch(t, []string{"linux", "windows"}, byLine[2])
	assert.ElementsMatch(t, []string{"windows"}, byLine[3])
}

func TestStore_SetTracerConflictIsError(t *testing.T) {
	s := openTemp(t, false)
	require.NoError(t, s.SetTracer("templates/base.html", "jinja2"))
	err := s.SetTracer("templates/base.html", "mako")
	require.Error(t, err)
	var ide *covcore.IncompatibleDataError
	assert.ErrorAs(t, err, &ide)
}

func TestParallelFileName_IsUniquePerCall(t *testing.T) {
	a := ParallelFileName(".coverage", "host1", 123)
	b := ParallelFileName(".coverage", "host1", 123)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, ".coverage.host1.123.")
}

func TestUpdateFrom_MergesIntoDestination(t *testing.T) {
	dest := openTemp(t, false)
	src := openTemp(t, false)
	require.NoError(t, src.AddLines("src/a.py", "", covcore.NewLineSet(1, 2)))
	require.NoError(t, dest.AddLines("src/a.py", "", covcore.NewLineSet(2, 3)))

	require.NoError(t, dest.UpdateFrom(src))

	lines, err := dest.Lines("src/a.py", "")
	require.NoError(t, err)
	assert.Equal(t, covcore.NewLineSet(1, 2, 3), lines)
}
