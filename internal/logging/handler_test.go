package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminalHandlerFormatsTaggedLine(t *testing.T) {
	var buf bytes.Buffer
	log := New("backfill", NewTerminalHandler(&buf))
	log.Info("archive page failed", "chainId", 3, "kind", "persistence")

	line := buf.String()
	require.Contains(t, line, "[INFO]")
	require.Contains(t, line, "[backfill]")
	require.Contains(t, line, "[persistence]")
	require.Contains(t, line, "archive page failed")
	require.Contains(t, line, "chainId=3")
}

func TestTerminalHandlerOmitsEmptyTags(t *testing.T) {
	var buf bytes.Buffer
	h := NewTerminalHandler(&buf)
	log := New("", h)
	log.Warn("no area or kind set")

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "[WARN]"))
}

func TestLevelLabelCoversAllFiveLevels(t *testing.T) {
	require.Equal(t, "TRACE", levelLabel(levelTrace))
	require.Equal(t, "DEBUG", levelLabel(slog.LevelDebug))
	require.Equal(t, "INFO", levelLabel(slog.LevelInfo))
	require.Equal(t, "WARN", levelLabel(slog.LevelWarn))
	require.Equal(t, "ERROR", levelLabel(slog.LevelError))
}

func TestGlogHandlerGatesBelowVerbosityFloor(t *testing.T) {
	var buf bytes.Buffer
	glog := NewGlogHandler(NewTerminalHandler(&buf))
	glog.Verbosity(slog.LevelWarn)

	log := New("gapfill", glog)
	log.Info("should be suppressed")
	require.Empty(t, buf.String())

	log.Warn("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestGlogHandlerVerbosityIsAdjustableAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	glog := NewGlogHandler(NewTerminalHandler(&buf))
	log := New("streamer", glog)

	log.Debug("suppressed at default info level")
	require.Empty(t, buf.String())

	glog.Verbosity(levelTrace)
	log.Debug("now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestNewChildLoggerMergesStaticContext(t *testing.T) {
	var buf bytes.Buffer
	root := New("root", NewTerminalHandler(&buf))
	child := root.New("network", "mainnet01")
	child.Info("cut fetched")

	require.Contains(t, buf.String(), "network=mainnet01")
}
