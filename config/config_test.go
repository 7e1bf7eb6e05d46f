// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedbat/covcore"
	"github.com/nedbat/covcore/ext"
)

func TestNewDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, ext.DefaultDataFileBase, c.DataFile)
	assert.False(t, c.CoverStdlib)
	require.Len(t, c.ExcludeRegexes(), 1, "default pragma exclusion should be present")
	assert.True(t, c.ExcludeRegexes()[0].MatchString("x = 1  # pragma: no cover"))
}

func TestWithExcludeAlsoIsAdditive(t *testing.T) {
	c, err := New(WithExcludeAlso(`def __repr__`))
	require.NoError(t, err)
	require.Len(t, c.ExcludeRegexes(), 2)
}

func TestWithExcludeLinesOverrides(t *testing.T) {
	c, err := New(WithExcludeLines(`def __repr__`))
	require.NoError(t, err)
	require.Len(t, c.ExcludeRegexes(), 1)
	assert.False(t, c.ExcludeRegexes()[0].MatchString("# pragma: no cover"))
}

func TestEnvDataFile(t *testing.T) {
	t.Setenv(ext.EnvDataFile, "/tmp/custom.coverage")
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.coverage", c.DataFile)
}

func TestOptionOverridesEnv(t *testing.T) {
	t.Setenv(ext.EnvDataFile, "/tmp/custom.coverage")
	c, err := New(WithDataFile("/tmp/explicit.coverage"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit.coverage", c.DataFile)
}

func TestInvalidRegexIsConfigurationError(t *testing.T) {
	_, err := New(WithExcludeAlso(`(unterminated`))
	require.Error(t, err)
	var ce *covcore.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
