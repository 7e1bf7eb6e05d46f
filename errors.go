// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package covcore

import "fmt"

// NoSourceError is returned by the analyser when a file cannot be
// located or read.
type NoSourceError struct {
	Path string
	Err  error
}

func (e *NoSourceError) Error() string {
	return fmt.Sprintf("no source for %s: %v", e.Path, e.Err)
}

func (e *NoSourceError) Unwrap() error { return e.Err }

// Position is a line/column pair, used to locate parse failures.
type Position struct {
	Line, Column int
}

// UnparsableError reports a lexing or parsing failure at a position.
// analysis.Analyse does not return it: its line scanner reports no
// parse failures, and its only error is NoSourceError.
type UnparsableError struct {
	Path string
	At   Position
	Err  error
}

func (e *UnparsableError) Error() string {
	return fmt.Sprintf("%s:%d:%d: unparsable: %v", e.Path, e.At.Line, e.At.Column, e.Err)
}

func (e *UnparsableError) Unwrap() error { return e.Err }

// IncompatibleDataError is returned by the data store when a combine
// operation would mix lines-only and arcs data for the same file, or
// mix schema versions it does not understand.
type IncompatibleDataError struct {
	Path   string
	Reason string
}

func (e *IncompatibleDataError) Error() string {
	return fmt.Sprintf("incompatible data for %s: %s", e.Path, e.Reason)
}

// DataFormatError is returned when an on-disk data file fails an
// integrity check.
type DataFormatError struct {
	Path string
	Err  error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("bad data file %s: %v", e.Path, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// PluginError is returned when a file-tracer plugin raises or returns
// malformed data. The plugin is disabled for the remainder of the
// session and a warning is emitted by the caller.
type PluginError struct {
	PluginName string
	Err        error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed: %v", e.PluginName, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// TracerError indicates the hook invocation itself failed. Measurement
// is aborted for the session; it never propagates past what the host
// interpreter integration already surfaces.
type TracerError struct {
	Err error
}

func (e *TracerError) Error() string { return fmt.Sprintf("tracer error: %v", e.Err) }

func (e *TracerError) Unwrap() error { return e.Err }

// ConfigurationError indicates an invalid regex or contradictory
// settings, raised before any measurement begins.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "invalid configuration: " + e.Reason }
