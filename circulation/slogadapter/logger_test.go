package slogadapter_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openlibra/circulation-engine/circulation/slogadapter"
)

func newBufferedLogger() (*slogadapter.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slogadapter.NewWithHandler(handler), buf
}

func Test_Logger_WritesAllLevels(t *testing.T) {
	// arrange
	logger, buf := newBufferedLogger()

	// act
	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	// assert
	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func Test_Logger_ContextVariantsWrite(t *testing.T) {
	// arrange
	logger, buf := newBufferedLogger()
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "ctx debug")
	logger.InfoContext(ctx, "ctx info")
	logger.WarnContext(ctx, "ctx warn")
	logger.ErrorContext(ctx, "ctx error")

	// assert
	output := buf.String()
	assert.Contains(t, output, "ctx debug")
	assert.Contains(t, output, "ctx info")
	assert.Contains(t, output, "ctx warn")
	assert.Contains(t, output, "ctx error")
}

func Test_New_FallsBackToDefaultLogger_WhenNil(t *testing.T) {
	// act
	logger := slogadapter.New(nil)

	// assert
	assert.NotNil(t, logger)
}
