// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package tracer

import (
	"sync"

	"github.com/nedbat/covcore"
)

// observationBuffer is the transient in-memory store the tracer
// accumulates into on the hot path; Flush hands its contents to the
// Data Store and clears it (spec §3 "Tracer... on shutdown/flush hands
// them to the Data Store").
type observationBuffer struct {
	mu    sync.Mutex
	lines map[*lineKey]struct{}
	arcs  map[*arcKey]struct{}
}

func newObservationBuffer() *observationBuffer {
	return &observationBuffer{
		lines: make(map[*lineKey]struct{}),
		arcs:  make(map[*arcKey]struct{}),
	}
}

func (b *observationBuffer) addLine(k *lineKey) {
	b.mu.Lock()
	b.lines[k] = struct{}{}
	b.mu.Unlock()
}

func (b *observationBuffer) addArc(k *arcKey) {
	b.mu.Lock()
	b.arcs[k] = struct{}{}
	b.mu.Unlock()
}

// drain groups the buffered observations by (path, context) and clears
// the buffer, returning what it held.
func (b *observationBuffer) drain() (lines map[string]map[string]covcore.LineSet, arcs map[string]map[string]covcore.ArcSet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines = make(map[string]map[string]covcore.LineSet)
	for k := range b.lines {
		byCtx, ok := lines[k.path]
		if !ok {
			byCtx = make(map[string]covcore.LineSet)
			lines[k.path] = byCtx
		}
		set, ok := byCtx[k.context]
		if !ok {
			set = covcore.NewLineSet()
			byCtx[k.context] = set
		}
		set.Add(k.line)
	}

	arcs = make(map[string]map[string]covcore.ArcSet)
	for k := range b.arcs {
		byCtx, ok := arcs[k.path]
		if !ok {
			byCtx = make(map[string]covcore.ArcSet)
			arcs[k.path] = byCtx
		}
		set, ok := byCtx[k.context]
		if !ok {
			set = covcore.NewArcSet()
			byCtx[k.context] = set
		}
		set.Add(covcore.Arc{From: k.from, To: k.to})
	}

	b.lines = make(map[*lineKey]struct{})
	b.arcs = make(map[*arcKey]struct{})
	return lines, arcs
}
