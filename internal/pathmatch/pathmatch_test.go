// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*.py", "app/models.py", true}, // basename-anywhere, no separator in pattern
		{"*.py", "models.py", true},
		{"*.py", "models.pyc", false},
		{"app/*.py", "app/models.py", true},
		{"app/*.py", "app/sub/models.py", false}, // * does not cross a separator
		{"app/**/models.py", "app/sub/deep/models.py", true},
		{"app/**/models.py", "app/models.py", true}, // ** matches zero directories
		{"app\\**\\models.py", "app/sub/models.py", true}, // backslash pattern, forward-slash path
		{"te?t.py", "test.py", true},
		{"te?t.py", "te/t.py", false}, // ? does not cross a separator
		{"**/test_*.py", "pkg/sub/test_foo.py", true},
	}
	for _, c := range cases {
		t.Run(c.pattern+" vs "+c.path, func(t *testing.T) {
			assert.Equal(t, c.want, Match(c.pattern, c.path))
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"*/vendor/*", "*_test.py"}
	assert.True(t, MatchAny(patterns, "pkg/vendor/lib.py"))
	assert.True(t, MatchAny(patterns, "models_test.py"))
	assert.False(t, MatchAny(patterns, "models.py"))
}
