package log

import (
	"bytes"
	"os"
	"sync"
)

// FileLogger appends protocol events to a .xlog file. Events are encoded
// to a scratch buffer first so a failed encode never leaves a partial
// record in the file; a reader can always resume at a record boundary.
//
// Safe for concurrent use, though the engine logs from a single goroutine.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	scratch bytes.Buffer
	closed  bool
}

// NewFileLogger opens path for appending, creating it if needed. Reopening
// an existing log continues the event stream where it left off.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f}, nil
}

// Log appends one event. Errors are swallowed: protocol capture must
// never take the gateway down with it.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.scratch.Reset()
	if err := NewEncoder(&l.scratch).Encode(event); err != nil {
		return
	}
	_, _ = l.file.Write(l.scratch.Bytes())
}

// Close closes the log file. Further Log calls are silently dropped, and
// repeated Close calls are no-ops.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
