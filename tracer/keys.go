// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package tracer

import "sync"

// lineKey identifies a single (file, line) observation.
type lineKey struct {
	path, context string
	line          int
}

// arcKey identifies a single (file, from, to) observation.
type arcKey struct {
	path, context string
	from, to      int
}

// keyInterner caches the canonical instance of each distinct lineKey
// and arcKey observed this session, so the hot path looks up an
// already-allocated key rather than building and discarding a fresh one
// on every LINE/RETURN event for a line or arc the tracer has already
// seen (spec §4.2, §9).
type keyInterner struct {
	mu    sync.Mutex
	lines map[lineKey]*lineKey
	arcs  map[arcKey]*arcKey
}

func newKeyInterner() *keyInterner {
	return &keyInterner{
		lines: make(map[lineKey]*lineKey),
		arcs:  make(map[arcKey]*arcKey),
	}
}

func (t *keyInterner) line(path, context string, line int) *lineKey {
	k := lineKey{path: path, context: context, line: line}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.lines[k]; ok {
		return existing
	}
	stored := k
	t.lines[k] = &stored
	return &stored
}

func (t *keyInterner) arc(path, context string, from, to int) *arcKey {
	k := arcKey{path: path, context: context, from: from, to: to}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.arcs[k]; ok {
		return existing
	}
	stored := k
	t.arcs[k] = &stored
	return &stored
}
