package testutil

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// LogBuilder accumulates transactions and encodes them as a log.
type LogBuilder struct {
	Clock     *DeterministicClock
	Interface string
	PID       int32
	UID       uint32

	txs []txlog.Transaction
}

// NewLogBuilder returns a builder stamping records with iface.
func NewLogBuilder(iface string) *LogBuilder {
	return &LogBuilder{
		Clock:     NewDeterministicClock(),
		Interface: iface,
		PID:       4242,
		UID:       1000,
	}
}

// Add appends a two-way call with JSON or raw payloads.
func (b *LogBuilder) Add(code uint32, data, reply string, status txlog.Status) *LogBuilder {
	return b.AddTx(txlog.Transaction{
		Code:      code,
		Status:    status,
		DataSize:  uint64(len(data)),
		ReplySize: uint64(len(reply)),
		Data:      []byte(data),
		Reply:     []byte(reply),
	})
}

// AddOneway appends a one-way call; it has no reply.
func (b *LogBuilder) AddOneway(code uint32, data string) *LogBuilder {
	return b.AddTx(txlog.Transaction{
		Code:     code,
		Flags:    txlog.FlagOneway,
		DataSize: uint64(len(data)),
		Data:     []byte(data),
	})
}

// AddTx appends tx, filling metadata the caller left zero.
func (b *LogBuilder) AddTx(tx txlog.Transaction) *LogBuilder {
	if tx.Interface == "" {
		tx.Interface = b.Interface
	}
	if tx.PID == 0 {
		tx.PID = b.PID
	}
	if tx.UID == 0 {
		tx.UID = b.UID
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = b.Clock.Next()
	}
	b.txs = append(b.txs, tx)
	return b
}

// Transactions returns the records added so far.
func (b *LogBuilder) Transactions() []txlog.Transaction {
	return append([]txlog.Transaction(nil), b.txs...)
}

// Bytes encodes every record as consecutive frames.
func (b *LogBuilder) Bytes() []byte {
	var buf []byte
	for _, tx := range b.txs {
		buf = txlog.AppendFrame(buf, tx)
	}
	return buf
}

// WriteFile writes the encoded log to path.
func (b *LogBuilder) WriteFile(t testing.TB, path string) {
	t.Helper()
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write log %s: %v", path, err)
	}
}

// GrowingLog is an io.ReaderAt whose contents can be appended to while a
// reader is polling it, standing in for a file another process writes.
type GrowingLog struct {
	mu   sync.Mutex
	data []byte
}

// ReadAt implements io.ReaderAt.
func (g *GrowingLog) ReadAt(p []byte, off int64) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return bytes.NewReader(g.data).ReadAt(p, off)
}

// Append adds b to the end of the log.
func (g *GrowingLog) Append(b []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data = append(g.data, b...)
}

// Len returns the current size of the log.
func (g *GrowingLog) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.data)
}
