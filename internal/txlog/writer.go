package txlog

import (
	"fmt"
	"io"
	"sync"
)

// Writer appends frames to an underlying writer, typically a log file opened
// with O_APPEND. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer that appends to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes tx and emits it with a single call to the underlying writer.
func (w *Writer) Write(tx Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = AppendFrame(w.buf[:0], tx)
	n, err := w.w.Write(w.buf)
	if err != nil {
		return fmt.Errorf("txlog: write frame: %w", err)
	}
	if n != len(w.buf) {
		return fmt.Errorf("txlog: write frame: %w", io.ErrShortWrite)
	}
	return nil
}
