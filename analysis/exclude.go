// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package analysis

import (
	"regexp"
	"strings"
)

// excludePredicate reports whether a line range (a statement's own
// header span, not its nested suite) matches any exclusion regex.
type excludePredicate func(startLine, endLine int) bool

func linesMatchAny(source []string, regs []*regexp.Regexp, startLine, endLine int) bool {
	if len(regs) == 0 {
		return false
	}
	for ln := startLine; ln <= endLine; ln++ {
		if ln-1 < 0 || ln-1 >= len(source) {
			continue
		}
		text := source[ln-1]
		for _, re := range regs {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// pruneExcluded returns a copy of body with any statement (and its
// entire nested suite) removed when its own header span matches
// excluded, so the surviving statements' natural sequencing reconnects
// flow around the gap exactly as if the excluded statement had never
// been written. Statements that survive still have their own nested
// suites pruned recursively.
func pruneExcluded(body []*stmt, excluded excludePredicate) []*stmt {
	var out []*stmt
	for _, s := range body {
		if excluded(s.firstLine, s.headerEndLine) {
			continue
		}
		cp := *s
		cp.body = pruneExcluded(s.body, excluded)
		if len(s.clauses) > 0 {
			cp.clauses = make([]*clause, 0, len(s.clauses))
			for _, c := range s.clauses {
				if excluded(c.headerLine, c.headerEndLine) {
					continue
				}
				ccp := *c
				ccp.body = pruneExcluded(c.body, excluded)
				cp.clauses = append(cp.clauses, &ccp)
			}
		}
		cp.lastLine = cp.maxLine()
		out = append(out, &cp)
	}
	return out
}

// excludedRanges walks original, the tree as parsed before exclusion
// pruning, collecting the line ranges that a NoSourceError-free
// analysis reports as excluded, for FileAnalysis.ExclusionRanges, so
// the full removed span (header plus its whole suite) is reported.
func excludedRanges(original []*stmt, excluded excludePredicate) []covcoreInterval {
	var out []covcoreInterval
	var walk func(body []*stmt)
	walk = func(body []*stmt) {
		for _, s := range body {
			if excluded(s.firstLine, s.headerEndLine) {
				out = append(out, covcoreInterval{s.firstLine, s.maxLine()})
				continue
			}
			walk(s.body)
			for _, c := range s.clauses {
				if excluded(c.headerLine, c.headerEndLine) {
					out = append(out, covcoreInterval{c.headerLine, lastStmtLine(c.body)})
					continue
				}
				walk(c.body)
			}
		}
	}
	walk(original)
	return out
}

// covcoreInterval mirrors covcore.LineInterval without importing the
// root package from this file (analysis.go does the conversion).
type covcoreInterval struct {
	Start, End int
}

// isStaticallyFalseIf reports whether an `if` statement's condition is
// a constant the interpreter would never take ("if 0:", "if False:"),
// or, when mainGuardExcluded is set, the `__main__` guard.
func isStaticallyFalseIf(s *stmt, mainGuardExcluded bool) bool {
	if s.kind != kindIf {
		return false
	}
	h := afterColonHeader(s.headerText)
	cond := strings.TrimSuffix(strings.TrimSpace(h), ":")
	cond = strings.TrimSpace(strings.TrimPrefix(cond, "if"))
	switch cond {
	case "0", "False":
		return true
	}
	if mainGuardExcluded && isMainGuardCondition(cond) {
		return true
	}
	return false
}

func isMainGuardCondition(cond string) bool {
	cond = strings.Join(strings.Fields(cond), " ")
	switch cond {
	case `__name__ == "__main__"`, `__name__ == '__main__'`,
		`"__main__" == __name__`, `'__main__' == __name__`:
		return true
	}
	return false
}

// pruneDeadConditionals removes the body of any `if` whose condition is
// statically false, along with its branch arc: when an else clause
// exists the if vanishes and the else body takes its place directly;
// otherwise the whole statement contributes nothing.
func pruneDeadConditionals(body []*stmt, mainGuardExcluded bool) []*stmt {
	var out []*stmt
	for _, s := range body {
		if isStaticallyFalseIf(s, mainGuardExcluded) {
			var elseClause *clause
			for _, c := range s.clauses {
				if c.keyword == "else" {
					elseClause = c
				}
			}
			if elseClause != nil {
				out = append(out, pruneDeadConditionals(elseClause.body, mainGuardExcluded)...)
			}
			continue
		}
		cp := *s
		cp.body = pruneDeadConditionals(s.body, mainGuardExcluded)
		if len(s.clauses) > 0 {
			cp.clauses = make([]*clause, 0, len(s.clauses))
			for _, c := range s.clauses {
				ccp := *c
				ccp.body = pruneDeadConditionals(c.body, mainGuardExcluded)
				cp.clauses = append(cp.clauses, &ccp)
			}
		}
		cp.lastLine = cp.maxLine()
		out = append(out, &cp)
	}
	return out
}
