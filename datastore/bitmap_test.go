// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nedbat/covcore"
)

func TestNumbits_RoundTrip(t *testing.T) {
	lines := covcore.NewLineSet(1, 2, 3, 8, 9, 100, 255, 256)
	blob := encodeNumbits(lines)
	got := decodeNumbits(blob)
	assert.Equal(t, lines, got)
}

func TestNumbits_EmptyRoundTrip(t *testing.T) {
	lines := covcore.NewLineSet()
	blob := encodeNumbits(lines)
	assert.Nil(t, blob)
	assert.Empty(t, decodeNumbits(blob))
}

func TestOrNumbits_UnionsDifferentLengths(t *testing.T) {
	a := encodeNumbits(covcore.NewLineSet(1, 2, 3))
	b := encodeNumbits(covcore.NewLineSet(100))
	merged := orNumbits(a, b)
	got := decodeNumbits(merged)
	assert.Equal(t, covcore.NewLineSet(1, 2, 3, 100), got)
}

func TestOrNumbits_IsCommutative(t *testing.T) {
	a := encodeNumbits(covcore.NewLineSet(1, 5, 40))
	b := encodeNumbits(covcore.NewLineSet(2, 5, 41))
	ab := decodeNumbits(orNumbits(a, b))
	ba := decodeNumbits(orNumbits(b, a))
	assert.Equal(t, ab, ba)
}
