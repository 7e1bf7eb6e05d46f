// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package covcore

import "sort"

// FileIdentity is a normalised, absolute reference to a source file: the
// path has had symlinks resolved and case folded on case-insensitive
// filesystems, and may carry an alias class used by combine to unify
// paths observed on different machines. Two identities are equal iff
// they resolve to the same alias class.
type FileIdentity struct {
	// CanonicalPath is the resolved absolute path.
	CanonicalPath string
	// AliasClass groups paths that should be treated as the same file
	// across machines during combine (empty means "no alias", compare
	// on CanonicalPath alone).
	AliasClass string
}

// Key returns the value FileIdentity compares equal on.
func (f FileIdentity) Key() string {
	if f.AliasClass != "" {
		return f.AliasClass
	}
	return f.CanonicalPath
}

// Context is a label grouping observations. The empty string is the
// default context. A static context is fixed for a measurement session;
// a dynamic context may change mid-run. When both are set the effective
// recorded label is Combined().
type Context struct {
	Static  string
	Dynamic string
}

// Combined returns the label under which observations should be stored.
func (c Context) Combined() string {
	switch {
	case c.Static == "" && c.Dynamic == "":
		return ""
	case c.Dynamic == "":
		return c.Static
	case c.Static == "":
		return c.Dynamic
	default:
		return c.Static + "|" + c.Dynamic
	}
}

// LineSet is a set of positive line numbers. The zero value (nil) is an
// empty set that can be read, but Add on it panics; build a writable
// set with NewLineSet.
type LineSet map[int]struct{}

// NewLineSet builds a LineSet from the given line numbers.
func NewLineSet(lines ...int) LineSet {
	s := make(LineSet, len(lines))
	for _, l := range lines {
		s[l] = struct{}{}
	}
	return s
}

// Add inserts line into the set.
func (s LineSet) Add(line int) { s[line] = struct{}{} }

// Has reports whether line is a member of the set.
func (s LineSet) Has(line int) bool {
	_, ok := s[line]
	return ok
}

// Union returns a new LineSet containing every line in s or other.
func (s LineSet) Union(other LineSet) LineSet {
	out := make(LineSet, len(s)+len(other))
	for l := range s {
		out[l] = struct{}{}
	}
	for l := range other {
		out[l] = struct{}{}
	}
	return out
}

// Difference returns the lines in s that are not in other.
func (s LineSet) Difference(other LineSet) LineSet {
	out := make(LineSet, len(s))
	for l := range s {
		if !other.Has(l) {
			out[l] = struct{}{}
		}
	}
	return out
}

// Sorted returns the set's members in ascending order.
func (s LineSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Arc is an ordered pair (From, To) indicating control transferred from
// one source line to another. A negative endpoint denotes the entry (From
// negative) or exit (To negative) of the code object whose first line
// is the endpoint's absolute value.
type Arc struct {
	From, To int
}

// IsEntry reports whether a is a code-object entry arc.
func (a Arc) IsEntry() bool { return a.From < 0 }

// IsExit reports whether a is a code-object exit arc.
func (a Arc) IsExit() bool { return a.To < 0 }

// ArcSet is a set of Arc values.
type ArcSet map[Arc]struct{}

// NewArcSet builds an ArcSet from the given arcs.
func NewArcSet(arcs ...Arc) ArcSet {
	s := make(ArcSet, len(arcs))
	for _, a := range arcs {
		s[a] = struct{}{}
	}
	return s
}

// Add inserts arc into the set.
func (s ArcSet) Add(arc Arc) { s[arc] = struct{}{} }

// Has reports whether arc is a member of the set.
func (s ArcSet) Has(arc Arc) bool {
	_, ok := s[arc]
	return ok
}

// Union returns a new ArcSet containing every arc in s or other.
func (s ArcSet) Union(other ArcSet) ArcSet {
	out := make(ArcSet, len(s)+len(other))
	for a := range s {
		out[a] = struct{}{}
	}
	for a := range other {
		out[a] = struct{}{}
	}
	return out
}

// Difference returns the arcs in s that are not in other.
func (s ArcSet) Difference(other ArcSet) ArcSet {
	out := make(ArcSet, len(s))
	for a := range s {
		if !other.Has(a) {
			out[a] = struct{}{}
		}
	}
	return out
}

// LineInterval is an inclusive [Start, End] line-number range, used for
// exclusion regions and no-branch regions.
type LineInterval struct {
	Start, End int
}

// Contains reports whether line falls within the interval.
func (r LineInterval) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// FileAnalysis is the static-analysis result for one source file.
type FileAnalysis struct {
	ExecutableLines LineSet
	PredictedArcs   ArcSet
	ExclusionRanges []LineInterval
	NoBranchRanges  []LineInterval
	DocstringRanges []LineInterval
	PluginName      string

	// DecoratorPairs lists each (decoratorLine, defLine) pair produced
	// by a decorated def/class. Both lines are executable, but which
	// one the interpreter actually fires a trace event on is a
	// compiler quirk that varies by interpreter version; the
	// Reconciler must accept either as satisfying the pair (spec
	// §4.1's "compiler quirk compensation").
	DecoratorPairs [][2]int
}

// InExclusionRange reports whether line falls inside any exclusion
// range recorded during analysis.
func (fa *FileAnalysis) InExclusionRange(line int) bool {
	for _, r := range fa.ExclusionRanges {
		if r.Contains(line) {
			return true
		}
	}
	return false
}

// InNoBranchRange reports whether line falls inside any no-branch
// range recorded during analysis.
func (fa *FileAnalysis) InNoBranchRange(line int) bool {
	for _, r := range fa.NoBranchRanges {
		if r.Contains(line) {
			return true
		}
	}
	return false
}

// Branches returns the set of "from" lines that have two or more
// predicted outgoing arcs, i.e. the file's branches.
func (fa *FileAnalysis) Branches() map[int]int {
	counts := make(map[int]int)
	for a := range fa.PredictedArcs {
		if a.From > 0 {
			counts[a.From]++
		}
	}
	out := make(map[int]int)
	for from, n := range counts {
		if n >= 2 {
			out[from] = n
		}
	}
	return out
}

// FileTracer is implemented by plugins that compute line-number ranges,
// and optionally a dynamic canonical filename, for frames whose real
// source is not plain Python (e.g. a templating engine).
type FileTracer interface {
	// SourceFilename returns the canonical path events from this frame
	// should be attributed to.
	SourceFilename(frame FrameInfo) (string, error)
	// LineNumberRange returns the [from, to] line range a LINE event at
	// the frame's current instruction offset corresponds to.
	LineNumberRange(frame FrameInfo) (from, to int, err error)
}

// DynamicFileTracer is implemented by FileTracer plugins whose canonical
// filename can change from call to call (HasDynamicFilename).
type DynamicFileTracer interface {
	FileTracer
	DynamicSourceFilename(frame FrameInfo) (string, error)
}

// FrameInfo is the minimal per-frame state the tracer exposes to
// plugins and disposition decisions. A real interpreter integration
// populates this from its own frame representation.
type FrameInfo struct {
	Path              string
	Line              int
	InstructionOffset int
	FirstLine         int
	CodeName          string
	// Yield marks a RETURN event that is actually a generator
	// suspension (a yield) rather than the code object's true exit;
	// the interpreter integration is responsible for setting it, since
	// only it can distinguish the two at the bytecode level. The
	// tracer must not synthesise an exit arc for a yielding RETURN.
	Yield bool
	// FrameID is a stable identity for this call activation, assigned
	// by the interpreter integration (e.g. CPython's id(frame), or a
	// monotonic counter minted on CALL and held for the activation's
	// lifetime). Two events carry the same FrameID iff they belong to
	// the same call; the tracer uses this to tell "control returned to
	// this frame's own continuation" apart from "control transferred to
	// a different frame" when an exception was pending.
	FrameID uint64
}

// TraceDecisionKind distinguishes the two TraceDecision variants.
type TraceDecisionKind int

const (
	// Trace means events from the file should be recorded.
	Trace TraceDecisionKind = iota
	// Skip means events from the file are never recorded.
	Skip
)

// SkipReason is a short machine-readable tag explaining a Skip decision.
type SkipReason string

const (
	SkipStdlib      SkipReason = "stdlib"
	SkipThirdParty  SkipReason = "third_party"
	SkipNotInSource SkipReason = "not_in_source"
	SkipOmitPattern SkipReason = "omit_pattern"
	SkipNoSource    SkipReason = "no_source"
)

// TraceDecision is the Disposition Cache's memoised decision for a file:
// either Trace (with an optional FileTracer plugin) or Skip (with a
// reason tag).
type TraceDecision struct {
	Kind TraceDecisionKind

	// Set when Kind == Trace.
	CanonicalPath    string
	FileTracer       FileTracer
	DynamicFilename  bool

	// Set when Kind == Skip.
	Reason SkipReason
}
