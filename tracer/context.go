// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package tracer

import "github.com/nedbat/covcore"

// frameRecord is one data-stack entry: the tracer's per-frame state
// (spec §4.2's "{file_data_ref, file_tracer?, last_line=-1,
// started_context}").
type frameRecord struct {
	active           bool // false when this frame's file was Skip-decided
	path             string
	fileTracer       covcore.FileTracer
	dynamicFilename  bool
	lastLine         int
	startedContext   bool
	prevContext      string
	firstLine        int
	exceptionPending bool
	// frameID mirrors covcore.FrameInfo.FrameID for the call this
	// record tracks, letting the tracer tell "this frame is still
	// running" apart from "control passed to a different frame" when
	// exceptionPending is set.
	frameID uint64
}

// dataStack is one concurrency context's independent call stack (spec
// §3, §4.2's "Scheduling model").
type dataStack struct {
	frames  []*frameRecord
	context string
	// externallySet marks a context set via Tracer.SetDynamicContext,
	// which CALL-driven ShouldStartContext nominations must not
	// silently override (spec §4.2's conflict-detection requirement).
	externallySet bool
}

func newDataStack(staticContext string) *dataStack {
	return &dataStack{context: staticContext}
}

func (s *dataStack) push(f *frameRecord) { s.frames = append(s.frames, f) }

func (s *dataStack) top() *frameRecord {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *dataStack) pop() *frameRecord {
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// belowTop returns the frame directly beneath the top of the stack
// (the frame that would become top after a pop), or nil if there are
// fewer than two frames.
func (s *dataStack) belowTop() *frameRecord {
	if len(s.frames) < 2 {
		return nil
	}
	return s.frames[len(s.frames)-2]
}
