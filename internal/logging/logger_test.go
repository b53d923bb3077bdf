package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(&Config{Level: zapcore.InfoLevel, Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, log)

	assert.True(t, log.Enabled(zapcore.InfoLevel))
	assert.False(t, log.Enabled(zapcore.DebugLevel))
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	_, err := NewLogger(&Config{Level: zapcore.InfoLevel, Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"trace", TraceLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := LevelFromString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFromStringInvalid(t *testing.T) {
	_, err := LevelFromString("loud")
	assert.Error(t, err)
}

func TestTraceLevelBelowDebug(t *testing.T) {
	assert.Less(t, TraceLevel, zapcore.DebugLevel)
}

func TestLoggerLevels(t *testing.T) {
	log := NewTestLogger()

	log.Trace("trace msg")
	log.Debug("debug msg")
	log.Info("info msg")
	log.Warn("warn msg")
	log.Error("error msg")

	entries := log.All()
	require.Len(t, entries, 5)
	assert.Equal(t, TraceLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[4].Level)
}

func TestLoggerNamedAndWith(t *testing.T) {
	log := NewTestLogger()

	child := log.Named("planner").With(zap.String("repo", "alice/solver"))
	child.Info("search complete")

	entries := log.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "planner", entries[0].LoggerName)
	require.Len(t, entries[0].Context, 1)
	assert.Equal(t, "repo", entries[0].Context[0].Key)
}

func TestTestLoggerAssertions(t *testing.T) {
	log := NewTestLogger()
	log.Warn("budget running low")

	log.AssertLogged(t, zapcore.WarnLevel, "budget")
	log.AssertNotLogged(t, zapcore.ErrorLevel, "budget")

	assert.Equal(t, 1, log.FilterMessage("budget running low").Len())

	log.Reset()
	assert.Empty(t, log.All())
}
