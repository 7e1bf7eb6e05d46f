// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package datastore

import "github.com/nedbat/covcore"

// encodeNumbits packs lines into the blob format spec §4.4 describes:
// byte k holds line numbers 8k..8k+7, bit i set iff line 8k+i is a
// member. Line numbers are 1-based; bit 0 of byte 0 represents line 0,
// which is never set since line numbers start at 1.
func encodeNumbits(lines covcore.LineSet) []byte {
	if len(lines) == 0 {
		return nil
	}
	max := 0
	for l := range lines {
		if l > max {
			max = l
		}
	}
	out := make([]byte, max/8+1)
	for l := range lines {
		out[l/8] |= 1 << uint(l%8)
	}
	return out
}

// decodeNumbits unpacks a numbits blob back into a LineSet, the inverse
// of encodeNumbits.
func decodeNumbits(blob []byte) covcore.LineSet {
	lines := covcore.NewLineSet()
	for k, b := range blob {
		if b == 0 {
			continue
		}
		for i := 0; i < 8; i++ {
			if b&(1<<uint(i)) != 0 {
				lines.Add(k*8 + i)
			}
		}
	}
	return lines
}

// orNumbits merges two numbits blobs byte-wise, the operation combine
// uses to union per-(file,context) line sets without decoding either
// side to a LineSet.
func orNumbits(a, b []byte) []byte {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := make([]byte, len(a))
	copy(out, a)
	for i, bb := range b {
		out[i] |= bb
	}
	return out
}
