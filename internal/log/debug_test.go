package log

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedOutputFlushesOnSetFile(t *testing.T) {
	l := &debugLogger{}
	logger := log.New(l, "", 0)

	logger.Println("before file")

	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, l.setFile(path))
	logger.Println("after file")
	require.NoError(t, l.close())

	data, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, "before file\nafter file\n", string(data))
	assert.Nil(t, l.buffer, "flushed buffer must be released")
}

func TestEmptyPathDiscardsOutput(t *testing.T) {
	l := &debugLogger{}
	logger := log.New(l, "", 0)

	logger.Println("buffered")
	require.NoError(t, l.setFile(""))
	logger.Println("dropped")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.True(t, l.discard)
	assert.Nil(t, l.buffer)
	assert.Nil(t, l.file)
}

func TestSetFileFailureSwitchesToDiscard(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	l := &debugLogger{}
	logger := log.New(l, "", 0)
	logger.Println("buffered")

	err := l.setFile(filepath.Join(dir, "debug.log"))
	require.Error(t, err)

	// Writes keep succeeding; they just go nowhere.
	n, werr := l.Write([]byte("dropped"))
	assert.NoError(t, werr)
	assert.Equal(t, len("dropped"), n)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.True(t, l.discard)
	assert.Nil(t, l.buffer)
}

func TestCloseWithoutFile(t *testing.T) {
	l := &debugLogger{}
	assert.NoError(t, l.close())
}

func TestSetFileReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	l := &debugLogger{}
	logger := log.New(l, "", 0)

	require.NoError(t, l.setFile(first))
	logger.Println("one")
	require.NoError(t, l.setFile(second))
	logger.Println("two")
	require.NoError(t, l.close())

	firstData, err := os.ReadFile(first) //nolint:gosec
	require.NoError(t, err)
	secondData, err := os.ReadFile(second) //nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(firstData))
	assert.Equal(t, "two\n", string(secondData))
}
