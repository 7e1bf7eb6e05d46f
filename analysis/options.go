// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package analysis

import "regexp"

// options collects Analyse's optional settings, supplied via Option.
type options struct {
	path              string
	excludeRe         []*regexp.Regexp
	noBranchRe        []*regexp.Regexp
	excludeMainGuard  bool
}

// Option configures a single Analyse call.
type Option func(*options)

// WithPath sets the source path used in error messages.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithExcludeRegexes sets the compiled "pragma: no cover"-style
// exclusion patterns (spec §6). Typically sourced from a
// config.Config's ExcludeRegexes().
func WithExcludeRegexes(re []*regexp.Regexp) Option {
	return func(o *options) { o.excludeRe = re }
}

// WithNoBranchRegexes sets the compiled partial-branch suppression
// patterns. Typically sourced from a config.Config's NoBranchRegexes().
func WithNoBranchRegexes(re []*regexp.Regexp) Option {
	return func(o *options) { o.noBranchRe = re }
}

// WithExcludeMainGuard excludes `if __name__ == "__main__":` blocks
// from executable lines, mirroring config.Config.ExcludeMainGuard.
func WithExcludeMainGuard(enabled bool) Option {
	return func(o *options) { o.excludeMainGuard = enabled }
}
