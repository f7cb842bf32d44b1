package logger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("session")
	require.NoError(t, err)
	assert.Equal(t, CategorySession, c)

	_, err = ParseCategory("download")
	assert.Error(t, err)
}

func TestMultiLoggerWritesReadableEntries(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogSessionEvent("foreground_entered", zap.String("session_id", "abc"), zap.Int("active", 2))
	ml.LogSessionEvent("background_entered", zap.String("session_id", "abc"))
	ml.LogAppError("storage_failed", zap.String("error", "disk full"))
	require.NoError(t, ml.Sync())

	reader := NewLogReader(dir)
	entries, err := reader.ReadTodayLogs(CategorySession, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "foreground_entered", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "abc", entries[0].Fields["session_id"])
	assert.NotEmpty(t, entries[0].Timestamp)

	last, err := reader.ReadTodayLogs(CategorySession, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "background_entered", last[0].Message)

	found, err := reader.SearchLogs(CategoryError, time.Now(), "DISK", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "storage_failed", found[0].Message)
}

func TestReadLogsMissingFile(t *testing.T) {
	entries, err := NewLogReader(t.TempDir()).ReadLogs(CategorySession, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadLogsPlainLine(t *testing.T) {
	dir := t.TempDir()
	reader := NewLogReader(dir)
	require.NoError(t, os.WriteFile(reader.GetTodayLogPath(CategoryError), []byte("not json\n"), 0644))

	entries, err := reader.ReadTodayLogs(CategoryError, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "not json", entries[0].Message)
	assert.Equal(t, "error", entries[0].Category)
}

func TestTailLogs(t *testing.T) {
	dir := t.TempDir()
	reader := NewLogReader(dir)
	path := reader.GetTodayLogPath(CategorySession)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- reader.TailLogs(ctx, CategorySession, out) }()

	// The tailer waits for the file and then seeks to its end.
	require.NoError(t, os.WriteFile(path, nil, 0644))
	time.Sleep(3 * tailPollInterval)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"level":"info","ts":"2026-01-01T00:00:00Z","msg":"tick"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case entry := <-out:
		assert.Equal(t, "tick", entry.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry tailed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tailer did not stop")
	}
}
