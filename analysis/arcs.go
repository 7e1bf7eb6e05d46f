// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package analysis

// codeArc is one predicted transfer, using the spec's sign convention:
// a negative line number is the "-first_line" sentinel for a code
// object's entry/exit, never a real source line.
type codeArc struct {
	From, To int
}

// loopCtx carries the targets that break/continue resolve to for the
// loop currently being walked. A nil ctx means break/continue appear
// outside of any loop the walker is tracking (malformed source, or a
// break/continue inside a nested def/class body that this walker
// never follows since each code object gets its own ctx).
type loopCtx struct {
	breakTo, continueTo int
}

type cfgBuilder struct {
	arcs      map[codeArc]struct{}
	execLines map[int]struct{}
	docLines  map[int]struct{}

	// decoratorPairs records each (decoratorLine, defLine) pair a
	// decorated def/class produced, so the Reconciler can treat either
	// member as satisfying the other (spec §4.1's compiler-quirk
	// tolerance: some interpreter versions fire the trace event on the
	// decorator line, others on the def line).
	decoratorPairs [][2]int
}

func newCFGBuilder() *cfgBuilder {
	return &cfgBuilder{
		arcs:      map[codeArc]struct{}{},
		execLines: map[int]struct{}{},
		docLines:  map[int]struct{}{},
	}
}

func (b *cfgBuilder) addArc(from, to int) {
	if from == 0 || to == 0 {
		return
	}
	b.arcs[codeArc{from, to}] = struct{}{}
}

func (b *cfgBuilder) mark(line int) {
	if line != 0 {
		b.execLines[line] = struct{}{}
	}
}

// entryOf returns the line flow enters when starting a suite: the
// header line of its first statement (or the decorator line, if it
// has one and is a def/class).
func entryOf(body []*stmt) int {
	if len(body) == 0 {
		return 0
	}
	s := body[0]
	if s.decoratorLine != 0 {
		return s.decoratorLine
	}
	return s.firstLine
}

// buildCodeObject walks one code object's top-level suite (module,
// function or class body), wiring its entry/exit sentinel arcs, and
// recurses into any nested def/class as a fresh code object.
func (b *cfgBuilder) buildCodeObject(entryLine int, body []*stmt) {
	exit := -entryLine
	if e := entryOf(body); e != 0 {
		b.addArc(exit, e)
	}
	b.walkSuite(body, exit, nil, exit)
}

// walkSuite wires sequential flow through body. afterLine is the
// target when control falls off the end of the suite; ctx carries the
// enclosing loop's break/continue targets (nil outside a loop);
// codeExit is this code object's exit sentinel, the target for
// return/raise.
func (b *cfgBuilder) walkSuite(body []*stmt, afterLine int, ctx *loopCtx, codeExit int) {
	for i, s := range body {
		next := afterLine
		if i+1 < len(body) {
			next = entryLineOf(body[i+1])
		}
		b.walkStmt(s, next, ctx, codeExit)
	}
}

// entryLineOf is like entryOf for a single statement (its own header,
// or decorator line if it has one).
func entryLineOf(s *stmt) int {
	if s.decoratorLine != 0 {
		return s.decoratorLine
	}
	return s.firstLine
}

func (b *cfgBuilder) walkStmt(s *stmt, next int, ctx *loopCtx, codeExit int) {
	if s.decoratorLine != 0 {
		b.mark(s.decoratorLine)
		b.decoratorPairs = append(b.decoratorPairs, [2]int{s.decoratorLine, s.firstLine})
	}
	b.mark(s.firstLine)
	if s.docstring {
		b.docLines[s.firstLine] = struct{}{}
	}

	switch s.kind {
	case kindSimple:
		switch s.terminal {
		case "return", "raise":
			b.addArc(s.firstLine, codeExit)
		case "break":
			if ctx != nil {
				b.addArc(s.firstLine, ctx.breakTo)
			} else {
				b.addArc(s.firstLine, next)
			}
		case "continue":
			if ctx != nil {
				b.addArc(s.firstLine, ctx.continueTo)
			} else {
				b.addArc(s.firstLine, next)
			}
		default:
			b.addArc(s.firstLine, next)
		}

	case kindIf:
		b.addArc(s.firstLine, entryOf(s.body))
		b.walkSuite(s.body, next, ctx, codeExit)
		hasElse := false
		for _, c := range s.clauses {
			b.addArc(s.firstLine, entryOf(c.body))
			b.walkSuite(c.body, next, ctx, codeExit)
			if c.keyword == "else" {
				hasElse = true
			}
		}
		if !hasElse {
			b.addArc(s.firstLine, next)
		}

	case kindWhile, kindFor:
		var elseClause *clause
		for _, c := range s.clauses {
			if c.keyword == "else" {
				elseClause = c
			}
		}
		normalCompletion := next
		if elseClause != nil {
			normalCompletion = entryOf(elseClause.body)
		}
		b.addArc(s.firstLine, entryOf(s.body))
		b.addArc(s.firstLine, normalCompletion)
		innerCtx := &loopCtx{breakTo: next, continueTo: s.firstLine}
		b.walkSuite(s.body, s.firstLine, innerCtx, codeExit)
		if elseClause != nil {
			b.walkSuite(elseClause.body, next, ctx, codeExit)
		}

	case kindTry:
		var elseClause, finallyClause *clause
		var exceptClauses []*clause
		for _, c := range s.clauses {
			switch c.keyword {
			case "else":
				elseClause = c
			case "finally":
				finallyClause = c
			case "except":
				exceptClauses = append(exceptClauses, c)
			}
		}
		afterTry := next
		if finallyClause != nil {
			afterTry = entryOf(finallyClause.body)
		}
		tryNormal := afterTry
		if elseClause != nil {
			tryNormal = entryOf(elseClause.body)
		}

		b.addArc(s.firstLine, entryOf(s.body))
		b.walkSuite(s.body, tryNormal, ctx, codeExit)
		if elseClause != nil {
			b.walkSuite(elseClause.body, afterTry, ctx, codeExit)
		}
		for _, ec := range exceptClauses {
			b.addArc(s.firstLine, entryOf(ec.body))
			b.walkSuite(ec.body, afterTry, ctx, codeExit)
		}
		if finallyClause != nil {
			b.walkSuite(finallyClause.body, next, ctx, codeExit)
		}

	case kindWith:
		b.addArc(s.firstLine, entryOf(s.body))
		b.walkSuite(s.body, next, ctx, codeExit)

	case kindMatch:
		hasWildcard := false
		for _, c := range s.clauses {
			b.addArc(s.firstLine, entryOf(c.body))
			b.walkSuite(c.body, next, ctx, codeExit)
			if c.isWildcard {
				hasWildcard = true
			}
		}
		if !hasWildcard {
			b.addArc(s.firstLine, next)
		}

	case kindDef, kindClass:
		b.addArc(s.firstLine, next)
		b.buildCodeObject(entryLineOf(s), s.body)
	}
}

// branchLines returns, for every statement line with two or more
// distinct outgoing arcs, the number of successors (spec's branch
// definition: arcs grouped by From, kept only when len(successors)>=2).
func (b *cfgBuilder) branchLines() map[int]int {
	out := map[int]int{}
	succ := map[int]map[int]struct{}{}
	for a := range b.arcs {
		if a.From < 0 {
			continue
		}
		if succ[a.From] == nil {
			succ[a.From] = map[int]struct{}{}
		}
		succ[a.From][a.To] = struct{}{}
	}
	for from, s := range succ {
		if len(s) >= 2 {
			out[from] = len(s)
		}
	}
	return out
}
