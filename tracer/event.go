// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package tracer

import "github.com/nedbat/covcore"

// EventKind is the interpreter hook event kind spec §4.2 defines the
// tracer's per-event contract over.
type EventKind int

const (
	CallEvent EventKind = iota
	LineEvent
	ReturnEvent
	ExceptionEvent
	OtherEvent
)

func (k EventKind) String() string {
	switch k {
	case CallEvent:
		return "call"
	case LineEvent:
		return "line"
	case ReturnEvent:
		return "return"
	case ExceptionEvent:
		return "exception"
	default:
		return "other"
	}
}

// Event is a single interpreter hook invocation, carrying the frame
// state the tracer needs to classify and record it.
type Event struct {
	Kind  EventKind
	Frame covcore.FrameInfo
}
