// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package datastore implements the Data Store (spec §4.4): a
// concurrency-safe, append-friendly persistent store of per-file line
// and arc sets, keyed by (file, context), backed by SQLite through
// github.com/mattn/go-sqlite3 the same way the corpus's own
// contrib/database/sql package demonstrates driving that driver
// directly through database/sql.
package datastore

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nedbat/covcore"
	"github.com/nedbat/covcore/ext"
	"github.com/nedbat/covcore/internal/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
CREATE TABLE IF NOT EXISTS file (
	id INTEGER PRIMARY KEY,
	path TEXT UNIQUE NOT NULL,
	tracer TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS context (
	id INTEGER PRIMARY KEY,
	context TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS line_bits (
	file_id INTEGER NOT NULL,
	context_id INTEGER NOT NULL,
	numbits BLOB NOT NULL,
	PRIMARY KEY (file_id, context_id)
);
CREATE TABLE IF NOT EXISTS arc (
	file_id INTEGER NOT NULL,
	context_id INTEGER NOT NULL,
	fromno INTEGER NOT NULL,
	tono INTEGER NOT NULL,
	PRIMARY KEY (file_id, context_id, fromno, tono)
);
CREATE TABLE IF NOT EXISTS tracer (
	file_id INTEGER PRIMARY KEY,
	tracer TEXT NOT NULL
);
`

// Store wraps a SQLite-backed coverage data file, implementing the
// add/combine/query contract of spec §4.4.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if absent) and opens the data file at path, applying
// the schema and recording schema_version/has_arcs meta keys on first
// creation.
func Open(path string, hasArcs bool) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, &covcore.DataFormatError{Path: path, Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &covcore.DataFormatError{Path: path, Err: err}
	}
	s := &Store{db: db, path: path}
	if err := s.ensureMeta(hasArcs); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("opened data file %s (arcs=%v)", path, hasArcs)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureMeta(hasArcs bool) error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(ext.SchemaVersion)); err != nil {
			return &covcore.DataFormatError{Path: s.path, Err: err}
		}
		if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('has_arcs', ?)`, boolString(hasArcs)); err != nil {
			return &covcore.DataFormatError{Path: s.path, Err: err}
		}
		return nil
	}
	if err != nil {
		return &covcore.DataFormatError{Path: s.path, Err: err}
	}
	if version != fmt.Sprint(ext.SchemaVersion) {
		return &covcore.IncompatibleDataError{Path: s.path, Reason: "unsupported schema_version " + version}
	}
	existingArcs, err := s.HasArcs()
	if err != nil {
		return err
	}
	if existingArcs != hasArcs {
		return &covcore.IncompatibleDataError{Path: s.path, Reason: "cannot mix lines-only and arcs measurement in one data file"}
	}
	return nil
}

// HasArcs reports the store's measured_kind: whether it holds arc data
// (branch coverage) rather than plain line data.
func (s *Store) HasArcs() (bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'has_arcs'`).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &covcore.DataFormatError{Path: s.path, Err: err}
	}
	return v == "1", nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// withWriteTx runs fn inside a BEGIN IMMEDIATE transaction, serialising
// writers while letting readers proceed concurrently (spec §4.4). Open
// sets the driver's _txlock=immediate DSN option, so db.Begin itself
// issues BEGIN IMMEDIATE.
func (s *Store) withWriteTx(fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return &covcore.DataFormatError{Path: s.path, Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &covcore.DataFormatError{Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) fileID(tx *sql.Tx, path string) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO file (path) VALUES (?)`, path); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM file WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) contextID(tx *sql.Tx, context string) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO context (context) VALUES (?)`, context); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM context WHERE context = ?`, context).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AddLines records every line in lines as observed for (path, context).
// Re-adding an already-present line is a no-op (idempotent).
func (s *Store) AddLines(path, context string, lines covcore.LineSet) error {
	if len(lines) == 0 {
		return nil
	}
	return s.withWriteTx(func(tx *sql.Tx) error {
		fid, err := s.fileID(tx, path)
		if err != nil {
			return err
		}
		cid, err := s.contextID(tx, context)
		if err != nil {
			return err
		}
		return s.mergeNumbits(tx, fid, cid, lines)
	})
}

func (s *Store) mergeNumbits(tx *sql.Tx, fid, cid int64, lines covcore.LineSet) error {
	var existing []byte
	err := tx.QueryRow(`SELECT numbits FROM line_bits WHERE file_id = ? AND context_id = ?`, fid, cid).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`INSERT INTO line_bits (file_id, context_id, numbits) VALUES (?, ?, ?)`,
			fid, cid, encodeNumbits(lines))
		return err
	case err != nil:
		return err
	}
	merged := orNumbits(existing, encodeNumbits(lines))
	_, err = tx.Exec(`UPDATE line_bits SET numbits = ? WHERE file_id = ? AND context_id = ?`, merged, fid, cid)
	return err
}

// AddArcs records every arc in arcs as observed for (path, context).
// Re-adding an already-present arc is a no-op (idempotent, via INSERT
// OR IGNORE on the arc table's primary key).
func (s *Store) AddArcs(path, context string, arcs covcore.ArcSet) error {
	if len(arcs) == 0 {
		return nil
	}
	return s.withWriteTx(func(tx *sql.Tx) error {
		fid, err := s.fileID(tx, path)
		if err != nil {
			return err
		}
		cid, err := s.contextID(tx, context)
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO arc (file_id, context_id, fromno, tono) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for a := range arcs {
			if _, err := stmt.Exec(fid, cid, a.From, a.To); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetTracer records the file-tracer plugin name claiming path, erroring
// if a different plugin had already claimed it (spec §4.4 step 5 of
// Combine applies the same unification rule).
func (s *Store) SetTracer(path, tracerName string) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		fid, err := s.fileID(tx, path)
		if err != nil {
			return err
		}
		var existing string
		err = tx.QueryRow(`SELECT tracer FROM tracer WHERE file_id = ?`, fid).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(`INSERT INTO tracer (file_id, tracer) VALUES (?, ?)`, fid, tracerName)
			return err
		case err != nil:
			return err
		case existing != tracerName:
			return &covcore.IncompatibleDataError{Path: path, Reason: fmt.Sprintf("file already claimed by tracer %q, cannot reclaim as %q", existing, tracerName)}
		}
		return nil
	})
}

// UpdateFrom merges every (path, context) line and arc observation from
// other into s, without consuming other's rows (unlike Combine, which
// deletes its input files).
func (s *Store) UpdateFrom(other *Store) error {
	files, err := other.MeasuredFiles()
	if err != nil {
		return err
	}
	for _, path := range files {
		contexts, err := other.contextsForFile(path)
		if err != nil {
			return err
		}
		for _, ctx := range contexts {
			lines, err := other.Lines(path, ctx)
			if err != nil {
				return err
			}
			if err := s.AddLines(path, ctx, lines); err != nil {
				return err
			}
			arcs, err := other.Arcs(path, ctx)
			if err != nil {
				return err
			}
			if err := s.AddArcs(path, ctx, arcs); err != nil {
				return err
			}
		}
	}
	return nil
}

// MeasuredFiles returns every path that has a file row, in path order.
// A path recorded only through SetTracer is included.
func (s *Store) MeasuredFiles() ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM file ORDER BY path`)
	if err != nil {
		return nil, &covcore.DataFormatError{Path: s.path, Err: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) contextsForFile(path string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT c.context FROM context c
		JOIN line_bits lb ON lb.context_id = c.id
		JOIN file f ON f.id = lb.file_id
		WHERE f.path = ?
		UNION
		SELECT DISTINCT c.context FROM context c
		JOIN arc a ON a.context_id = c.id
		JOIN file f ON f.id = a.file_id
		WHERE f.path = ?`, path, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Lines returns the observed lines for (path, context). An empty
// context string selects the default context; a context of "" passed
// alongside context=nil-equivalent callers wanting every context should
// instead aggregate via contextsForFile and call Lines per context.
func (s *Store) Lines(path, context string) (covcore.LineSet, error) {
	row := s.db.QueryRow(`
		SELECT lb.numbits FROM line_bits lb
		JOIN file f ON f.id = lb.file_id
		JOIN context c ON c.id = lb.context_id
		WHERE f.path = ? AND c.context = ?`, path, context)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return covcore.NewLineSet(), nil
		}
		return nil, &covcore.DataFormatError{Path: s.path, Err: err}
	}
	return decodeNumbits(blob), nil
}

// Arcs returns the observed arcs for (path, context).
func (s *Store) Arcs(path, context string) (covcore.ArcSet, error) {
	rows, err := s.db.Query(`
		SELECT a.fromno, a.tono FROM arc a
		JOIN file f ON f.id = a.file_id
		JOIN context c ON c.id = a.context_id
		WHERE f.path = ? AND c.context = ?`, path, context)
	if err != nil {
		return nil, &covcore.DataFormatError{Path: s.path, Err: err}
	}
	defer rows.Close()
	out := covcore.NewArcSet()
	for rows.Next() {
		var from, to int
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out.Add(covcore.Arc{From: from, To: to})
	}
	return out, rows.Err()
}

// ContextsByLine maps each line in path's line data to the set of
// context labels that recorded it. Only line_bits rows are read; arc
// rows are not, so a file measured in arc mode yields an empty map.
func (s *Store) ContextsByLine(path string) (map[int][]string, error) {
	rows, err := s.db.Query(`
		SELECT c.context, lb.numbits FROM line_bits lb
		JOIN file f ON f.id = lb.file_id
		JOIN context c ON c.id = lb.context_id
		WHERE f.path = ?`, path)
	if err != nil {
		return nil, &covcore.DataFormatError{Path: s.path, Err: err}
	}
	defer rows.Close()
	out := map[int][]string{}
	for rows.Next() {
		var ctx string
		var blob []byte
		if err := rows.Scan(&ctx, &blob); err != nil {
			return nil, err
		}
		for line := range decodeNumbits(blob) {
			out[line] = append(out[line], ctx)
		}
	}
	return out, rows.Err()
}

// ParallelFileName builds the process-unique data file name spec §4.4's
// parallel mode uses: <base>.<host>.<pid>.<8-hex-rand>, with the random
// component drawn from a UUID the same way the corpus identifies spans
// and trace payloads.
func ParallelFileName(base, host string, pid int) string {
	rand := uuid.New().String()
	rand = rand[:8]
	return fmt.Sprintf("%s.%s.%d.%s", base, host, pid, rand)
}

// RemoveFile deletes the data file at path, used by Combine once its
// inputs have been merged (unless keep was requested).
func RemoveFile(path string) error {
	return os.Remove(path)
}
