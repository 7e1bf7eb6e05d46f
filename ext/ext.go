// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package ext holds the string constants shared across covcore's
// packages: warning nicknames, the environment variable names the
// lifecycle controller reads, and the default exclusion pattern. It
// plays the same role ddtrace/ext plays for the tracer packages in the
// corpus this module follows: a leaf package of names, imported
// everywhere, depending on nothing.
package ext

// Warning nicknames (spec §7). Each is emitted at most once per
// (nickname, file) pair by internal/log.WarnOnce.
const (
	WarnTraceChanged      = "trace-changed"
	WarnModuleNotPython   = "module-not-python"
	WarnModuleNotImported = "module-not-imported"
	WarnNoDataCollected   = "no-data-collected"
	WarnModuleNotMeasured = "module-not-measured"
	WarnAlreadyImported   = "already-imported"
	WarnIncludeIgnored    = "include-ignored"
	WarnDynamicConflict   = "dynamic-conflict"
	WarnCouldntParse      = "couldnt-parse"
)

// Environment variables (spec §6).
const (
	EnvDataFile       = "COVERAGE_FILE"
	EnvRCFile         = "COVERAGE_RCFILE"
	EnvDebug          = "COVERAGE_DEBUG"
	EnvDebugFile      = "COVERAGE_DEBUG_FILE"
	EnvProcessStart   = "COVERAGE_PROCESS_START"
	EnvRun            = "COVERAGE_RUN"
)

// DefaultDataFileBase is the default base name of the persisted data
// file (spec §6).
const DefaultDataFileBase = ".coverage"

// DefaultExcludePattern is the exclusion regex present by default
// (spec §6); configuration may add to it ("also exclude") or replace it
// ("exclude lines").
const DefaultExcludePattern = `#\s*pragma:\s*no\s*cover`

// SchemaVersion is the current on-disk schema version written to the
// data store's meta table (spec §4.4, §6).
const SchemaVersion = 1
