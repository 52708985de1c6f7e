// Package log provides an opt-in debug logger writing to a file.
package log

import (
	"log"
	"os"
	"sync"
)

// debugLogger buffers debug output until a destination file is chosen.
// It implements io.Writer so it can back a standard log.Logger.
type debugLogger struct {
	mu      sync.Mutex
	file    *os.File
	buffer  []byte
	discard bool
}

var (
	globalDebugLogger = &debugLogger{}
	stdLogger         = log.New(globalDebugLogger, "", log.LstdFlags|log.Lmicroseconds)
)

// Write implements io.Writer. Output goes to the file when one is set,
// otherwise it is buffered so early messages survive until SetFile runs.
func (l *debugLogger) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.discard {
		return len(p), nil
	}

	if l.file != nil {
		n, err = l.file.Write(p)
		// Sync so messages survive a crash; sync errors are not worth failing for.
		_ = l.file.Sync()
		return n, err
	}

	b := make([]byte, len(p))
	copy(b, p)
	l.buffer = append(l.buffer, b...)
	return len(p), nil
}

// setFile directs output to path, flushing anything buffered so far. An
// empty path discards buffered and future output.
func (l *debugLogger) setFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	if path == "" {
		l.discard = true
		l.buffer = nil
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		l.discard = true
		l.buffer = nil
		return err
	}

	l.file = f
	l.discard = false

	if len(l.buffer) > 0 {
		_, _ = f.Write(l.buffer)
		_ = f.Sync()
		l.buffer = nil
	}

	return nil
}

// close closes the destination file if one is open.
func (l *debugLogger) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	return err
}

// SetFile directs debug output to path, flushing anything buffered so far.
// An empty path discards buffered and future output.
func SetFile(path string) error {
	return globalDebugLogger.setFile(path)
}

// Printf writes a formatted debug message.
func Printf(format string, args ...any) {
	stdLogger.Printf(format, args...)
}

// Println writes a debug message.
func Println(v ...any) {
	stdLogger.Println(v...)
}

// Close closes the debug log file if open.
func Close() error {
	return globalDebugLogger.close()
}
