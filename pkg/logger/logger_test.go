package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"DEBUG":   DEBUG,
		" warn ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"info":    INFO,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestToZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, toZapLevel(DEBUG))
	assert.Equal(t, zapcore.InfoLevel, toZapLevel(INFO))
	assert.Equal(t, zapcore.WarnLevel, toZapLevel(WARN))
	assert.Equal(t, zapcore.ErrorLevel, toZapLevel(ERROR))
	assert.Equal(t, zapcore.FatalLevel, toZapLevel(FATAL))
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.Infow("event", "key", "value")
		log.Error("failed: %v", assert.AnError)
		log.With("component", "test").Debugw("child")
	})
	assert.NotNil(t, log.Zap())
}
