// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package log

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements a mock Logger that records every line.
type testLogger struct {
	mu    sync.RWMutex
	lines []string
}

var _ Logger = &testLogger{}

func (tp *testLogger) Log(msg string) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.lines = append(tp.lines, msg)
}

func (tp *testLogger) Lines() []string {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	out := make([]string, len(tp.lines))
	copy(out, tp.lines)
	return out
}

func (tp *testLogger) Reset() {
	tp.mu.Lock()
	tp.lines = tp.lines[:0]
	tp.mu.Unlock()
}

func TestLog(t *testing.T) {
	defer UseLogger(logger)()
	tp := &testLogger{}
	defer UseLogger(tp)()

	t.Run("Warn", func(t *testing.T) {
		tp.Reset()
		Warn("message %d", 1)
		assert.Contains(t, tp.Lines()[0], "message 1")
		assert.Contains(t, tp.Lines()[0], "WARN")
	})

	t.Run("Debug", func(t *testing.T) {
		t.Run("off by default", func(t *testing.T) {
			tp.Reset()
			assert.False(t, DebugEnabled())
			Debug("message %d", 2)
			assert.Len(t, tp.Lines(), 0)
		})

		t.Run("on", func(t *testing.T) {
			tp.Reset()
			defer func(old Level) { SetLevel(old) }(GetLevel())
			SetLevel(LevelDebug)
			assert.True(t, DebugEnabled())

			Debug("message %d", 3)
			assert.Contains(t, tp.Lines()[0], "message 3")
		})
	})

	t.Run("Error rate limiting", func(t *testing.T) {
		defer func(old time.Duration) { errrate = old }(errrate)
		defer resetErrorWindows()
		errrate = 10 * time.Hour // never elapses within the test

		tp.Reset()
		Error("a message %d", 1)
		Error("a message %d", 2)
		Error("b message")

		require.Len(t, tp.Lines(), 2, "the second occurrence of 'a message' should be suppressed, not a fresh key")
		assert.Contains(t, tp.Lines()[0], "a message 1")
		assert.Contains(t, tp.Lines()[1], "b message")
	})

	t.Run("Error instant", func(t *testing.T) {
		defer func(old time.Duration) { errrate = old }(errrate)
		defer resetErrorWindows()
		errrate = 0

		tp.Reset()
		Error("instant message")
		Error("instant message")
		assert.Len(t, tp.Lines(), 2, "a rate of 0 never suppresses")
	})

	t.Run("Error reports suppressed count once the window elapses", func(t *testing.T) {
		defer func(old time.Duration) { errrate = old }(errrate)
		defer resetErrorWindows()
		errrate = time.Millisecond

		tp.Reset()
		Error("throttled message")
		Error("throttled message")
		time.Sleep(2 * time.Millisecond)
		Error("throttled message")

		require.Len(t, tp.Lines(), 2)
		assert.Contains(t, tp.Lines()[1], "1 more suppressed")
	})
}

func TestWarnOnce(t *testing.T) {
	defer UseLogger(logger)()
	tp := &testLogger{}
	defer UseLogger(tp)()
	defer ResetWarnings()

	WarnOnce("dynamic-conflict", "a.py", "switched context mid-call")
	WarnOnce("dynamic-conflict", "a.py", "switched context mid-call")
	WarnOnce("dynamic-conflict", "b.py", "switched context mid-call")

	assert.Len(t, tp.Lines(), 2)
}

func TestSetLoggingRate(t *testing.T) {
	defer func(old time.Duration) { errrate = old }(errrate)

	setLoggingRate("5")
	assert.Equal(t, 5*time.Second, errrate)

	setLoggingRate("not-a-number")
	assert.Equal(t, 5*time.Second, errrate, "invalid value should be ignored")

	setLoggingRate("-1")
	assert.Equal(t, 5*time.Second, errrate, "negative value should be ignored")
}
