// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package covcore defines the shared data model for the coverage
// measurement core: the file identities, line/arc sets, trace decisions
// and file analyses that the tracer, disposition cache, data store and
// reconciler packages all operate on.
//
// covcore does not itself observe a running program or parse source; it
// is the vocabulary the other packages share, kept here to avoid import
// cycles between them (the same role ddtrace plays for the tracer
// packages in the dd-trace-go corpus this module's conventions are
// modeled on).
package covcore
