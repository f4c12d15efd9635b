package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewReturnsUsableLogger(t *testing.T) {
	logger := New("debug")
	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)

	child := logger.With("component", "test")
	assert.NotNil(t, child)
}

func TestDefault(t *testing.T) {
	assert.NotNil(t, Default())
}
