package plog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf, Level: "debug", Component: "sched"})
	require.NoError(t, err)

	logger.Info("task started", "node", 3)
	out := buf.String()
	require.Contains(t, out, "task started")
	require.Contains(t, out, "component=sched")
	require.Contains(t, out, "node=3")
}

func TestLoggerWithIsAdditive(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf, Level: "info", Component: "sched"})
	require.NoError(t, err)

	child := logger.WithRequest("req-42")
	child.Warn("slow pipe")

	out := buf.String()
	require.Contains(t, out, "request_id=req-42")
	require.Contains(t, out, "component=sched")
	require.True(t, strings.Contains(out, "WARN") || strings.Contains(out, "warn"))
}

func TestNopDiscardsOutput(t *testing.T) {
	logger := Nop()
	require.NotPanics(t, func() {
		logger.Info("noop")
		logger.With("x", 1).Error("still noop")
	})
}
