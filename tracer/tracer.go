// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package tracer implements the Tracer (spec §4.2): the per-frame event
// handler that maintains one data stack per concurrency context,
// classifies frames through the Disposition Cache, and accumulates line
// or arc observations into a transient buffer the Lifecycle Controller
// flushes to the Data Store.
package tracer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nedbat/covcore"
	"github.com/nedbat/covcore/config"
	"github.com/nedbat/covcore/datastore"
	"github.com/nedbat/covcore/disposition"
	"github.com/nedbat/covcore/ext"
	"github.com/nedbat/covcore/internal/log"
)

// Tracer is the installed per-event hook. Its zero value is not usable;
// construct with NewTracer.
type Tracer struct {
	store *datastore.Store
	cache *disposition.Cache
	cfg   *config.Config

	intern *keyInterner
	buffer *observationBuffer

	mu     sync.Mutex
	stacks map[string]*dataStack

	otherEvents int64

	warnedConflict int32 // 0/1, guards the once-per-session dynamic-conflict warning

	uninstalled int32
}

// NewTracer builds a Tracer bound to store for flushes and cache for
// per-file disposition decisions.
func NewTracer(store *datastore.Store, cache *disposition.Cache, cfg *config.Config) *Tracer {
	return &Tracer{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		intern: newKeyInterner(),
		buffer: newObservationBuffer(),
		stacks: make(map[string]*dataStack),
	}
}

func (t *Tracer) stackFor(id string) *dataStack {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stacks[id]
	if !ok {
		s = newDataStack(t.cfg.StaticContext)
		t.stacks[id] = s
	}
	return s
}

// SetDynamicContext lets a host integration (e.g. a per-test-function
// hook) set the dynamic context for a concurrency identity directly,
// bypassing the CALL-driven ShouldStartContext nomination. If a
// CALL-driven nomination later tries to override a context set this
// way before the overriding frame returns, the tracer logs
// ext.WarnDynamicConflict exactly once per session and keeps the
// externally set value (spec §4.2 "Context switching").
func (t *Tracer) SetDynamicContext(concurrencyID, label string) {
	s := t.stackFor(concurrencyID)
	t.mu.Lock()
	s.context = covcore.Context{Static: t.cfg.StaticContext, Dynamic: label}.Combined()
	s.externallySet = true
	t.mu.Unlock()
}

// Event processes a single interpreter hook invocation. A panic
// recovered here uninstalls the tracer, flushes whatever has been
// buffered, and is reported as a *covcore.TracerError rather than
// propagating into the measured program (spec §4.2 failure semantics).
func (t *Tracer) Event(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.Uninstall()
			if ferr := t.Flush(); ferr != nil {
				log.Error("tracer: flush after panic failed: %v", ferr)
			}
			err = &covcore.TracerError{Err: fmt.Errorf("recovered panic: %v", r)}
		}
	}()

	if atomic.LoadInt32(&t.uninstalled) != 0 {
		return nil
	}

	id := ""
	if t.cfg.ConcurrencyID != nil {
		id = t.cfg.ConcurrencyID(ev.Frame)
	}
	stack := t.stackFor(id)

	// A pending exception is resolved one of two ways: the frame that
	// raised it catches it itself (the next event still belongs to
	// that same frame, e.g. a LINE in the except block), or it
	// propagates and control passes to the calling frame without an
	// intervening RETURN. Only the latter is a missed return; checking
	// the event's kind alone can't tell them apart, since a same-frame
	// catch's next LINE event isn't a RETURN either.
	if top := stack.top(); top != nil && top.exceptionPending {
		if ev.Frame.FrameID == top.frameID {
			top.exceptionPending = false
		} else if parent := stack.belowTop(); parent == nil || ev.Frame.FrameID == parent.frameID {
			stack.pop()
			t.finishFrame(stack, top, false)
		}
	}

	switch ev.Kind {
	case CallEvent:
		return t.onCall(stack, ev.Frame)
	case LineEvent:
		return t.onLine(stack, ev.Frame)
	case ReturnEvent:
		return t.onReturn(stack, ev.Frame)
	case ExceptionEvent:
		return t.onException(stack, ev.Frame)
	default:
		atomic.AddInt64(&t.otherEvents, 1)
		return nil
	}
}

func (t *Tracer) onCall(stack *dataStack, frame covcore.FrameInfo) error {
	decision, err := t.cache.Decide(frame.Path)
	if err != nil {
		return err
	}

	rec := &frameRecord{
		active:          decision.Kind == covcore.Trace,
		path:            decision.CanonicalPath,
		fileTracer:      decision.FileTracer,
		dynamicFilename: decision.DynamicFilename,
		lastLine:        -1,
		firstLine:       frame.FirstLine,
		frameID:         frame.FrameID,
	}
	if frame.InstructionOffset != 0 {
		// Generator re-entry: the frame resumes mid-body rather than at
		// its header, so arc continuity must start from its current
		// line instead of the sentinel -1.
		rec.lastLine = frame.Line
	}

	if rec.active && rec.dynamicFilename {
		if dyn, ok := rec.fileTracer.(covcore.DynamicFileTracer); ok {
			if derived, derr := dyn.DynamicSourceFilename(frame); derr == nil && derived != "" {
				redecision, rerr := t.cache.Decide(derived)
				if rerr == nil {
					rec.path = derived
					if redecision.Kind != covcore.Trace {
						// Demoted for this frame's lifetime only; the
						// original path's cache entry is untouched.
						rec.active = false
					}
				}
			}
		}
	}

	if t.cfg.ShouldStartContext != nil {
		if label, starts := t.cfg.ShouldStartContext(frame); starts {
			if stack.externallySet {
				if atomic.CompareAndSwapInt32(&t.warnedConflict, 0, 1) {
					log.WarnOnce(ext.WarnDynamicConflict, rec.path, "dynamic context already set externally for %s", rec.path)
				}
			} else {
				rec.prevContext = stack.context
				rec.startedContext = true
				stack.context = covcore.Context{Static: t.cfg.StaticContext, Dynamic: label}.Combined()
			}
		}
	}

	stack.push(rec)
	return nil
}

func (t *Tracer) onLine(stack *dataStack, frame covcore.FrameInfo) error {
	top := stack.top()
	if top == nil || !top.active {
		return nil
	}

	from, to := frame.Line, frame.Line
	if top.fileTracer != nil {
		f, tt, err := top.fileTracer.LineNumberRange(frame)
		if err != nil {
			log.WarnOnce(ext.WarnCouldntParse, top.path, "file tracer line-number range failed for %s: %v", top.path, err)
			top.fileTracer = nil
		} else {
			from, to = f, tt
		}
	}

	if t.cfg.Branch {
		t.recordArc(top.path, stack.context, top.lastLine, from)
		top.lastLine = to
		return nil
	}
	for ln := from; ln <= to; ln++ {
		t.recordLine(top.path, stack.context, ln)
	}
	return nil
}

func (t *Tracer) onReturn(stack *dataStack, frame covcore.FrameInfo) error {
	top := stack.pop()
	if top == nil {
		return nil
	}
	t.finishFrame(stack, top, frame.Yield)
	return nil
}

func (t *Tracer) onException(stack *dataStack, frame covcore.FrameInfo) error {
	if top := stack.top(); top != nil {
		top.exceptionPending = true
	}
	return nil
}

// finishFrame synthesises the frame's exit arc (unless it yielded
// rather than truly returning) and restores the enclosing dynamic
// context if this frame had started one.
func (t *Tracer) finishFrame(stack *dataStack, top *frameRecord, yield bool) {
	if top.active && t.cfg.Branch && !yield {
		t.recordArc(top.path, stack.context, top.lastLine, -top.firstLine)
	}
	if top.startedContext {
		stack.context = top.prevContext
	}
}

func (t *Tracer) recordLine(path, context string, line int) {
	t.buffer.addLine(t.intern.line(path, context, line))
}

func (t *Tracer) recordArc(path, context string, from, to int) {
	t.buffer.addArc(t.intern.arc(path, context, from, to))
}

// Uninstall marks the tracer inactive; subsequent Event calls are
// no-ops. Idempotent.
func (t *Tracer) Uninstall() {
	atomic.StoreInt32(&t.uninstalled, 1)
}

// OtherEventCount returns the number of OTHER events observed, for
// startup/shutdown diagnostics only.
func (t *Tracer) OtherEventCount() int64 { return atomic.LoadInt64(&t.otherEvents) }

// Flush drains the transient buffer into the Data Store.
func (t *Tracer) Flush() error {
	lines, arcs := t.buffer.drain()
	for path, byCtx := range lines {
		for context, set := range byCtx {
			if err := t.store.AddLines(path, context, set); err != nil {
				return err
			}
		}
	}
	for path, byCtx := range arcs {
		for context, set := range byCtx {
			if err := t.store.AddArcs(path, context, set); err != nil {
				return err
			}
		}
	}
	return nil
}
