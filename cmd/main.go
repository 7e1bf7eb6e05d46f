// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Command covcore-debug is a minimal inspection CLI for a covcore data
// file: dumping its measured files with their default-context line or
// arc counts, or running
// a manual combine of several parallel-mode files into one. It is
// diagnostic tooling for the core packages, not a coverage report
// renderer.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/nedbat/covcore/datastore"
)

var (
	dump    string
	combine string
)

func main() {
	flag.StringVar(&dump, "dump", "", "path to a data file to summarize")
	flag.StringVar(&combine, "combine", "", "path to write a combined data file to")
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "covcore-debug:", err)
		os.Exit(1)
	}
}

func run() error {
	switch {
	case dump != "":
		return runDump(dump)
	case combine != "":
		return runCombine(combine, flag.Args())
	default:
		fmt.Fprintln(os.Stderr, "usage: covcore-debug -dump <datafile> | -combine <out> <in...>")
		return nil
	}
}

func runDump(path string) error {
	hasArcs, err := peekHasArcs(path)
	if err != nil {
		return err
	}
	store, err := datastore.Open(path, hasArcs)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer store.Close()

	files, err := store.MeasuredFiles()
	if err != nil {
		return fmt.Errorf("measured files: %w", err)
	}
	fmt.Printf("%s: %d measured file(s), arcs=%v\n", path, len(files), hasArcs)
	for _, f := range files {
		if err := dumpFile(store, f, hasArcs); err != nil {
			return err
		}
	}
	return nil
}

func dumpFile(store *datastore.Store, path string, hasArcs bool) error {
	contexts, err := store.ContextsByLine(path)
	if err != nil {
		return fmt.Errorf("contexts for %s: %w", path, err)
	}

	if hasArcs {
		arcs, err := store.Arcs(path, "")
		if err != nil {
			return fmt.Errorf("arcs for %s: %w", path, err)
		}
		traced := map[int]struct{}{}
		for a := range arcs {
			if a.From > 0 {
				traced[a.From] = struct{}{}
			}
			if a.To > 0 {
				traced[a.To] = struct{}{}
			}
		}
		fmt.Printf("  %s: %d arc(s), %d traced line(s)\n", path, len(arcs), len(traced))
		return nil
	}

	lines, err := store.Lines(path, "")
	if err != nil {
		return fmt.Errorf("lines for %s: %w", path, err)
	}
	fmt.Printf("  %s: %d line(s), %d with context detail\n", path, len(lines), len(contexts))
	return nil
}

func runCombine(out string, inputs []string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("combine requires at least one input data file")
	}
	hasArcs, err := peekHasArcs(inputs[0])
	if err != nil {
		return err
	}
	dest, err := datastore.Open(out, hasArcs)
	if err != nil {
		return fmt.Errorf("open %s: %w", out, err)
	}
	defer dest.Close()

	alias := func(path string) string { return path }
	if err := datastore.Combine(dest, inputs, alias, true); err != nil {
		return fmt.Errorf("combine: %w", err)
	}
	fmt.Printf("combined %d file(s) into %s\n", len(inputs), out)
	return nil
}

// peekHasArcs reads the has_arcs meta value directly rather than going
// through datastore.Open, since Open's own mismatch check would reject
// the very call meant to discover which kind a file already holds.
func peekHasArcs(path string) (bool, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'has_arcs'`).Scan(&v); err != nil {
		return false, fmt.Errorf("read has_arcs from %s: %w", path, err)
	}
	return v == "1", nil
}
