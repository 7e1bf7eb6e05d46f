// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package pathmatch implements the shell-style glob matching the
// Disposition Cache uses for include/omit patterns (spec §4.3): "*"
// does not cross a directory separator, "**" matches zero or more
// nested directories, "?" matches a single non-separator character,
// both "/" and "\" match either separator, and a pattern with no
// separator matches the basename anywhere in the path.
//
// Per-segment matching (the "*"/"?" part) is delegated to
// github.com/tidwall/match, the same glob matcher the corpus already
// depends on transitively through tidwall/buntdb and tidwall/gjson;
// only the directory-separator-aware "**" traversal is this package's
// own code, since match.Match treats the whole string as one segment.
package pathmatch

import (
	"strings"

	"github.com/tidwall/match"
)

// normalize rewrites backslashes to slashes and splits on "/", so a
// pattern or path written with either separator compares the same way.
func normalize(s string) []string {
	s = strings.ReplaceAll(s, `\`, `/`)
	return strings.Split(s, "/")
}

// Match reports whether path satisfies pattern under the rules above.
// A pattern containing no separator is matched against every path
// component (basename-anywhere semantics).
func Match(pattern, path string) bool {
	patSegs := normalize(pattern)
	if len(patSegs) == 1 {
		pathSegs := normalize(path)
		for _, seg := range pathSegs {
			if match.Match(seg, patSegs[0]) {
				return true
			}
		}
		return false
	}
	return matchSegs(patSegs, normalize(path))
}

// matchSegs walks pattern and path segments in lockstep, expanding "**"
// to consume zero or more path segments.
func matchSegs(pat, path []string) bool {
	switch {
	case len(pat) == 0:
		return len(path) == 0
	case pat[0] == "**":
		if matchSegs(pat[1:], path) {
			return true
		}
		for i := range path {
			if matchSegs(pat[1:], path[i+1:]) {
				return true
			}
		}
		return false
	case len(path) == 0:
		return false
	case !match.Match(path[0], pat[0]):
		return false
	default:
		return matchSegs(pat[1:], path[1:])
	}
}

// MatchAny reports whether path matches any of patterns.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Match(p, path) {
			return true
		}
	}
	return false
}
