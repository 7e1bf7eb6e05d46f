// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package disposition

import (
	"os"

	"github.com/tinylib/msgp/msgp"

	"github.com/nedbat/covcore"
)

// snapshotEntry is the msgpack-portable projection of one memoised
// TraceDecision. A plugin-backed decision (FileTracer set) cannot be
// serialised meaningfully across a process boundary, so it is left out
// of every Snapshot; a subprocess re-resolves those paths itself on
// its first CALL event.
type snapshotEntry struct {
	Path            string
	Kind            covcore.TraceDecisionKind
	CanonicalPath   string
	DynamicFilename bool
	Reason          covcore.SkipReason
}

// Snapshot is the warm-start payload that WriteSnapshotFile writes and
// ReadSnapshotFile loads, so a cache does not have to re-run the full
// six-step precedence for every path another cache had already
// resolved. No package in this module writes or reads one on
// subprocess start-up.
type Snapshot struct {
	Entries []snapshotEntry
}

// EncodeMsg implements msgp.Encodable, following the same
// hand-written-rather-than-generated shape the corpus uses for its
// span payloads.
func (z *Snapshot) EncodeMsg(en *msgp.Writer) (err error) {
	if err = en.WriteArrayHeader(uint32(len(z.Entries))); err != nil {
		return err
	}
	for _, e := range z.Entries {
		if err = en.WriteMapHeader(5); err != nil {
			return err
		}
		if err = writeField(en, "path", e.Path); err != nil {
			return err
		}
		if err = en.WriteString("kind"); err != nil {
			return err
		}
		if err = en.WriteInt(int(e.Kind)); err != nil {
			return err
		}
		if err = writeField(en, "canonical_path", e.CanonicalPath); err != nil {
			return err
		}
		if err = en.WriteString("dynamic_filename"); err != nil {
			return err
		}
		if err = en.WriteBool(e.DynamicFilename); err != nil {
			return err
		}
		if err = writeField(en, "reason", string(e.Reason)); err != nil {
			return err
		}
	}
	return nil
}

func writeField(en *msgp.Writer, key, value string) error {
	if err := en.WriteString(key); err != nil {
		return err
	}
	return en.WriteString(value)
}

// DecodeMsg implements msgp.Decodable.
func (z *Snapshot) DecodeMsg(dc *msgp.Reader) (err error) {
	var arrSz uint32
	if arrSz, err = dc.ReadArrayHeader(); err != nil {
		return err
	}
	z.Entries = make([]snapshotEntry, 0, arrSz)
	for i := uint32(0); i < arrSz; i++ {
		var mapSz uint32
		if mapSz, err = dc.ReadMapHeader(); err != nil {
			return err
		}
		var e snapshotEntry
		for j := uint32(0); j < mapSz; j++ {
			var key string
			if key, err = dc.ReadString(); err != nil {
				return err
			}
			switch key {
			case "path":
				e.Path, err = dc.ReadString()
			case "kind":
				var k int
				k, err = dc.ReadInt()
				e.Kind = covcore.TraceDecisionKind(k)
			case "canonical_path":
				e.CanonicalPath, err = dc.ReadString()
			case "dynamic_filename":
				e.DynamicFilename, err = dc.ReadBool()
			case "reason":
				var r string
				r, err = dc.ReadString()
				e.Reason = covcore.SkipReason(r)
			default:
				err = dc.Skip()
			}
			if err != nil {
				return err
			}
		}
		z.Entries = append(z.Entries, e)
	}
	return nil
}

// Snapshot builds a warm-start Snapshot from every currently-memoised,
// non-plugin decision.
func (c *Cache) Snapshot() *Snapshot {
	snap := &Snapshot{}
	c.decisions.Range(func(k, v any) bool {
		d := v.(covcore.TraceDecision)
		if d.FileTracer != nil {
			return true
		}
		snap.Entries = append(snap.Entries, snapshotEntry{
			Path:            k.(string),
			Kind:            d.Kind,
			CanonicalPath:   d.CanonicalPath,
			DynamicFilename: d.DynamicFilename,
			Reason:          d.Reason,
		})
		return true
	})
	return snap
}

// LoadSnapshot warm-starts the cache from a previously written
// Snapshot, so a subprocess started via COVERAGE_PROCESS_START does not
// re-run the precedence for paths its parent already resolved.
func (c *Cache) LoadSnapshot(snap *Snapshot) {
	for _, e := range snap.Entries {
		c.decisions.Store(e.Path, covcore.TraceDecision{
			Kind:            e.Kind,
			CanonicalPath:   e.CanonicalPath,
			DynamicFilename: e.DynamicFilename,
			Reason:          e.Reason,
		})
	}
}

// WriteSnapshotFile msgpack-encodes the cache's current decisions to
// path, for a subprocess to pick up via ReadSnapshotFile.
func (c *Cache) WriteSnapshotFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return msgp.Encode(f, c.Snapshot())
}

// ReadSnapshotFile decodes a Snapshot previously written by
// WriteSnapshotFile and loads it into the cache.
func (c *Cache) ReadSnapshotFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap Snapshot
	if err := msgp.Decode(f, &snap); err != nil {
		return err
	}
	c.LoadSnapshot(&snap)
	return nil
}
