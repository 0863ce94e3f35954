package main

import (
	"log/slog"
	"testing"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"
)

func TestLogHandler_JSONSelectsJSONHandler(t *testing.T) {
	h := logHandler(slog.LevelWarn, true)
	_, ok := h.(*slog.JSONHandler)
	require.True(t, ok)
}

func TestLogHandler_DefaultSelectsTintHandler(t *testing.T) {
	h := logHandler(slog.LevelInfo, false)
	_, ok := h.(*tint.Handler)
	require.True(t, ok)
}
