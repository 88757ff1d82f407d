package log

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"testing"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	assert.Nil(t, err)
	assert.Equal(t, DebugLevel, level)

	level, err = ParseLevel("")
	assert.Nil(t, err)
	assert.Equal(t, InfoLevel, level)

	_, err = ParseLevel("loud")
	assert.NotNil(t, err)
}

func TestGlobalIsUsableBeforeSetup(t *testing.T) {
	assert.NotPanics(t, func() {
		Global().Infow("not configured yet", "key", "value")
	})
}

func TestNamedKeepsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).Named("index").Named("hash")
	l.Debugw("resized", "capacity", 8)

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "index.hash", entries[0].LoggerName)
	assert.Equal(t, int64(8), entries[0].ContextMap()["capacity"])
}

func TestNewWithOptions(t *testing.T) {
	l := New(DefaultOptions().WithLevel(WarnLevel).WithNamed("state").
		WithOutputEncoder(ParseOutputEncoder("console")).WithCallerEncoder(ShortCallerEncoder))
	assert.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Debug("dropped")
		_ = l.Sync()
	})
}

func TestOutputsSplitByLevel(t *testing.T) {
	info, warn := &bytes.Buffer{}, &bytes.Buffer{}
	l := New(DefaultOptions().WithOutputs(info, warn).WithFields("backend", "memory"))
	l.Infow("checkpoint completed.", "epoch", 1)
	l.Warnw("checkpoint aborted.", "epoch", 2)
	assert.Contains(t, info.String(), `"backend":"memory"`)
	assert.Contains(t, info.String(), "checkpoint completed.")
	assert.NotContains(t, info.String(), "aborted")
	assert.Contains(t, warn.String(), "checkpoint aborted.")
	assert.Contains(t, warn.String(), `"epoch":2`)
}
