// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package datastore

import (
	"github.com/nedbat/covcore/internal/log"
)

// AliasFunc remaps an observed path to the canonical path it should be
// combined under, letting Combine unify paths recorded on different
// machines (spec §4.4's path aliasing).
type AliasFunc func(path string) string

// Combine merges every data file named in paths into dest: unions
// context rows, ORs numbits byte-wise, unions arc rows, and unifies
// tracer claims per file (spec §4.4). It is commutative and
// associative: combining the same set of compatible files in any order
// yields the same resulting lines/arcs/contexts_by_line.
//
// hasArcs mismatches, schema-version mismatches, or two different
// plugins claiming the same file are surfaced as
// covcore.IncompatibleDataError. Input files are removed once merged
// unless keep is true.
func Combine(dest *Store, paths []string, alias AliasFunc, keep bool) error {
	destArcs, err := dest.HasArcs()
	if err != nil {
		return err
	}
	if alias == nil {
		alias = func(p string) string { return p }
	}

	for _, path := range paths {
		src, err := Open(path, destArcs)
		if err != nil {
			return err
		}
		if mergeErr := mergeStore(dest, src, alias); mergeErr != nil {
			src.Close()
			return mergeErr
		}
		src.Close()
		if !keep {
			if err := RemoveFile(path); err != nil {
				log.Warn("combine: could not remove %s: %v", path, err)
			}
		}
	}
	return nil
}

func mergeStore(dest, src *Store, alias AliasFunc) error {
	files, err := src.MeasuredFiles()
	if err != nil {
		return err
	}
	for _, srcPath := range files {
		destPath := alias(srcPath)

		srcTracer, hasTracer, err := src.tracerFor(srcPath)
		if err != nil {
			return err
		}
		if hasTracer {
			if err := dest.SetTracer(destPath, srcTracer); err != nil {
				return err
			}
		}

		contexts, err := src.contextsForFile(srcPath)
		if err != nil {
			return err
		}
		for _, ctx := range contexts {
			lines, err := src.Lines(srcPath, ctx)
			if err != nil {
				return err
			}
			if err := dest.AddLines(destPath, ctx, lines); err != nil {
				return err
			}
			arcs, err := src.Arcs(srcPath, ctx)
			if err != nil {
				return err
			}
			if err := dest.AddArcs(destPath, ctx, arcs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) tracerFor(path string) (name string, ok bool, err error) {
	row := s.db.QueryRow(`
		SELECT t.tracer FROM tracer t
		JOIN file f ON f.id = t.file_id
		WHERE f.path = ?`, path)
	if scanErr := row.Scan(&name); scanErr != nil {
		return "", false, nil
	}
	return name, true, nil
}
