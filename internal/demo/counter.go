// Package demo hosts a small JSON service used to try out recording and
// replay end to end.
package demo

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// CounterInterface is the descriptor served by Counter.
const CounterInterface = "demo.ICounter"

// Method codes of demo.ICounter.
const (
	CodeAdd   uint32 = 1 // {"delta": n} -> {"value": v}
	CodeGet   uint32 = 2 // -> {"value": v}
	CodeReset uint32 = 3 // oneway
)

// Counter is an in-memory counter. Negative deltas are rejected with
// BAD_VALUE so replay has a deterministic failure to observe.
type Counter struct {
	Logger *slog.Logger

	mu    sync.Mutex
	value int64
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Transact implements ipc.Handler.
func (c *Counter) Transact(ctx context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch code {
	case CodeAdd:
		if !gjson.ValidBytes(data) {
			return errorReply("invalid JSON"), txlog.StatusBadValue
		}
		delta := gjson.GetBytes(data, "delta")
		if delta.Type != gjson.Number {
			return errorReply("delta must be a number"), txlog.StatusBadValue
		}
		if delta.Int() < 0 {
			return errorReply("negative delta"), txlog.StatusBadValue
		}
		c.value += delta.Int()
		c.logger().Debug("counter add", "delta", delta.Int(), "value", c.value)
		return valueReply(c.value), txlog.StatusOK

	case CodeGet:
		return valueReply(c.value), txlog.StatusOK

	case CodeReset:
		c.value = 0
		c.logger().Debug("counter reset")
		return nil, txlog.StatusOK

	default:
		return nil, txlog.StatusUnknownTransaction
	}
}

func (c *Counter) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func valueReply(v int64) []byte {
	b, _ := sjson.SetBytes(nil, "value", v)
	return b
}

func errorReply(msg string) []byte {
	b, _ := sjson.SetBytes(nil, "error", msg)
	return b
}

// CounterDefinition is the CUE interface definition matching Counter.
const CounterDefinition = `interface: "demo.ICounter": {
	encoding: "json"
	method: add: code: 1
	method: get: code: 2
	method: reset: {
		code:   3
		oneway: true
	}
}
`
