// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package config assembles a measurement session's configuration from
// environment variables and functional options, in the same
// newConfig(opts ...StartOption) idiom the corpus uses for its tracer
// configuration: environment variables seed defaults, and any Option
// passed by the caller overrides them.
package config

import (
	"os"
	"regexp"

	"github.com/nedbat/covcore"
	"github.com/nedbat/covcore/ext"
	"github.com/nedbat/covcore/internal/log"
)

// Config holds the resolved settings a measurement session runs with.
type Config struct {
	// Sources are paths (directories, or single files) that are always
	// traced, regardless of include/omit (spec §4.3 step 1). Entries are
	// compared as paths only; importable module names are not resolved.
	Sources []string
	// Include and Omit are glob pattern lists (spec §4.3 step 2).
	Include []string
	Omit    []string

	// CoverStdlib, when false, skips files under the interpreter's
	// standard library directory (spec §4.3 step 3).
	CoverStdlib bool
	// StdlibDir is the standard library directory used for the step-3
	// check. Left empty, no file is treated as stdlib.
	StdlibDir string
	// ThirdPartyDirs lists installation directories treated as
	// third-party for step 4 (e.g. site-packages equivalents).
	ThirdPartyDirs []string

	// Branch selects arc (branch) measurement over plain line
	// measurement: the tracer records (from, to) transitions instead of
	// bare line numbers (spec §4.2, §4.4's measured_kind).
	Branch bool

	// ExcludeAlso and ExcludeLines implement spec §6's "also exclude"
	// (additive to the default pragma) vs "exclude lines" (overriding)
	// precedence. Both are raw regex source strings.
	ExcludeAlso  []string
	ExcludeLines []string
	// PartialBranchPatterns marks lines whose outgoing arcs should not
	// be reported as partial (spec §4.1).
	PartialBranchPatterns []string
	// ExcludeMainGuard excludes `if __name__ == "__main__":` blocks.
	ExcludeMainGuard bool

	// DataFile is the path to the persisted data file (spec §6).
	DataFile string
	// ParallelMode, when true, writes to a process-unique data file
	// instead of DataFile directly (spec §4.4).
	ParallelMode bool
	// Keep, when true, preserves combine's input files instead of
	// deleting them (spec §4.4).
	Keep bool

	// StaticContext is the fixed context label for this session
	// (spec §3).
	StaticContext string

	// ConcurrencyID returns the concurrency identity a frame's data
	// stack belongs to (e.g. a thread or lightweight-task id). Nil
	// means every frame shares a single stack.
	ConcurrencyID func(covcore.FrameInfo) string

	// ShouldStartContext nominates the beginning of a new dynamic
	// context on a CALL event (spec §4.2's "context switching"). It
	// returns the new context label and whether this frame starts one.
	ShouldStartContext func(covcore.FrameInfo) (label string, starts bool)

	// Debug enables verbose diagnostic logging.
	Debug bool
	// DebugFacilities lists the facility names given in COVERAGE_DEBUG;
	// the lifecycle controller logs its startup line when one is "config".
	DebugFacilities []string

	// IgnoreErrors allows analyser NoSourceError/UnparsableError to be
	// surfaced per-file instead of aborting the run (spec §4.1, §7).
	IgnoreErrors bool

	// resolved regex objects, compiled by compileRegexes.
	excludeRe       []*regexp.Regexp
	noBranchRe      []*regexp.Regexp
}

// ExcludeRegexes returns the compiled exclusion patterns, honoring the
// "also exclude" (additive to the default pragma) vs "exclude lines"
// (overriding) precedence from spec §6.
func (c *Config) ExcludeRegexes() []*regexp.Regexp { return c.excludeRe }

// NoBranchRegexes returns the compiled partial-branch suppression
// patterns.
func (c *Config) NoBranchRegexes() []*regexp.Regexp { return c.noBranchRe }

// Option configures a Config. Modeled on the corpus's StartOption
// pattern: a function closing over the field(s) it sets.
type Option func(*Config)

// WithSourceDirs sets the always-traced source list (spec §4.3 step 1).
func WithSourceDirs(dirs ...string) Option {
	return func(c *Config) { c.Sources = dirs }
}

// WithInclude sets the include glob patterns (spec §4.3 step 2).
func WithInclude(patterns ...string) Option {
	return func(c *Config) { c.Include = patterns }
}

// WithOmit sets the omit glob patterns (spec §4.3 step 2).
func WithOmit(patterns ...string) Option {
	return func(c *Config) { c.Omit = patterns }
}

// WithCoverStdlib controls whether standard-library files are traced
// (spec §4.3 step 3).
func WithCoverStdlib(enabled bool) Option {
	return func(c *Config) { c.CoverStdlib = enabled }
}

// WithStdlibDir sets the directory treated as the standard library.
func WithStdlibDir(dir string) Option {
	return func(c *Config) { c.StdlibDir = dir }
}

// WithThirdPartyDirs sets the directories treated as third-party
// installs (spec §4.3 step 4).
func WithThirdPartyDirs(dirs ...string) Option {
	return func(c *Config) { c.ThirdPartyDirs = dirs }
}

// WithBranch enables arc (branch) measurement instead of plain line
// measurement.
func WithBranch(enabled bool) Option {
	return func(c *Config) { c.Branch = enabled }
}

// WithExcludeAlso adds patterns on top of the default pragma exclusion
// (spec §6's "also exclude" key).
func WithExcludeAlso(patterns ...string) Option {
	return func(c *Config) { c.ExcludeAlso = patterns }
}

// WithExcludeLines replaces the default pragma exclusion entirely
// (spec §6's "exclude lines" key).
func WithExcludeLines(patterns ...string) Option {
	return func(c *Config) { c.ExcludeLines = patterns }
}

// WithPartialBranchPatterns sets the no-branch region patterns
// (spec §4.1).
func WithPartialBranchPatterns(patterns ...string) Option {
	return func(c *Config) { c.PartialBranchPatterns = patterns }
}

// WithExcludeMainGuard controls exclusion of
// `if __name__ == "__main__":` blocks (spec §4.1).
func WithExcludeMainGuard(enabled bool) Option {
	return func(c *Config) { c.ExcludeMainGuard = enabled }
}

// WithDataFile overrides the persisted data file path.
func WithDataFile(path string) Option {
	return func(c *Config) { c.DataFile = path }
}

// WithParallelMode enables per-process data file naming (spec §4.4).
func WithParallelMode(enabled bool) Option {
	return func(c *Config) { c.ParallelMode = enabled }
}

// WithKeep controls whether combine deletes its input files afterward.
func WithKeep(enabled bool) Option {
	return func(c *Config) { c.Keep = enabled }
}

// WithStaticContext sets the fixed context label for the session
// (spec §3).
func WithStaticContext(label string) Option {
	return func(c *Config) { c.StaticContext = label }
}

// WithConcurrencyID sets the per-frame concurrency identity function
// the tracer uses to pick a frame's data stack.
func WithConcurrencyID(fn func(covcore.FrameInfo) string) Option {
	return func(c *Config) { c.ConcurrencyID = fn }
}

// WithShouldStartContext sets the predicate that nominates dynamic
// context boundaries on CALL events (spec §4.2).
func WithShouldStartContext(fn func(covcore.FrameInfo) (string, bool)) Option {
	return func(c *Config) { c.ShouldStartContext = fn }
}

// WithDebugMode enables verbose diagnostic logging.
func WithDebugMode(enabled bool) Option {
	return func(c *Config) { c.Debug = enabled }
}

// WithIgnoreErrors allows per-file analyser errors to be tolerated
// instead of aborting the run.
func WithIgnoreErrors(enabled bool) Option {
	return func(c *Config) { c.IgnoreErrors = enabled }
}

// New renders a Config from environment-variable defaults and the
// given options, in that precedence order (an explicit Option always
// wins over the environment), mirroring the corpus's newConfig.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		DataFile:    ext.DefaultDataFileBase,
		CoverStdlib: false,
	}

	if v := os.Getenv(ext.EnvDataFile); v != "" {
		c.DataFile = v
	}
	if v := os.Getenv(ext.EnvDebug); v != "" {
		c.Debug = true
		c.DebugFacilities = splitNonEmpty(v, ',')
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.Debug {
		log.SetLevel(log.LevelDebug)
	}

	if err := c.compileRegexes(); err != nil {
		return nil, err
	}

	log.Debug("resolved configuration: sources=%d include=%d omit=%d parallel=%v data_file=%s",
		len(c.Sources), len(c.Include), len(c.Omit), c.ParallelMode, c.DataFile)

	return c, nil
}

func (c *Config) compileRegexes() error {
	var patterns []string
	if len(c.ExcludeLines) > 0 {
		patterns = c.ExcludeLines
	} else {
		patterns = append([]string{ext.DefaultExcludePattern}, c.ExcludeAlso...)
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return &covcore.ConfigurationError{Reason: "invalid exclude pattern " + p + ": " + err.Error()}
		}
		c.excludeRe = append(c.excludeRe, re)
	}
	for _, p := range c.PartialBranchPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return &covcore.ConfigurationError{Reason: "invalid partial-branch pattern " + p + ": " + err.Error()}
		}
		c.noBranchRe = append(c.noBranchRe, re)
	}
	return nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
