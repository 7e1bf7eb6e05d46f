// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyInterner_ReturnsSamePointerForSameKey(t *testing.T) {
	in := newKeyInterner()
	a := in.line("a.py", "", 10)
	b := in.line("a.py", "", 10)
	assert.Same(t, a, b)

	c := in.arc("a.py", "", 1, 2)
	d := in.arc("a.py", "", 1, 2)
	assert.Same(t, c, d)
}

func TestObservationBuffer_DrainGroupsByPathAndContext(t *testing.T) {
	in := newKeyInterner()
	buf := newObservationBuffer()

	buf.addLine(in.line("a.py", "linux", 1))
	buf.addLine(in.line("a.py", "linux", 2))
	buf.addLine(in.line("a.py", "windows", 1))
	buf.addArc(in.arc("a.py", "linux", 1, 2))

	lines, arcs := buf.drain()
	assert.ElementsMatch(t, []int{1, 2}, lines["a.py"]["linux"].Sorted())
	assert.ElementsMatch(t, []int{1}, lines["a.py"]["windows"].Sorted())
	assert.Len(t, arcs["a.py"]["linux"], 1)

	// Drain clears the buffer.
	lines2, arcs2 := buf.drain()
	assert.Empty(t, lines2)
	assert.Empty(t, arcs2)
}
