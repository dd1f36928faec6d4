// Package tail follows a log that another process is still appending to.
package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// DefaultInterval is how long the tailer sleeps when no complete frame is
// available.
const DefaultInterval = time.Second

// Tailer prints records as they are appended to a log. It only renders; it
// never replays and never stops the recording that feeds the log.
type Tailer struct {
	Reader   *txlog.Reader
	Analyzer analyzer.Analyzer
	Out      io.Writer
	Interval time.Duration
	Logger   *slog.Logger
}

func (t *Tailer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Run prints records until ctx is cancelled and returns how many it printed.
// Cancellation is a clean stop. A malformed frame or a read error ends the
// loop with that error; records already printed stay printed.
func (t *Tailer) Run(ctx context.Context) (int, error) {
	if t.Reader == nil || t.Analyzer == nil || t.Out == nil {
		return 0, fmt.Errorf("tail: reader, analyzer and output are required")
	}
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	timer := time.NewTimer(interval)
	timer.Stop()
	defer timer.Stop()

	printed := 0
	for {
		if ctx.Err() != nil {
			return printed, nil
		}

		tx, err := t.Reader.Next()
		switch {
		case err == nil:
			printed++
			analyzer.Print(t.Out, t.Analyzer, t.Reader.Count(), tx)
			continue
		case errors.Is(err, txlog.ErrNotYetAvailable):
			// fall through to the wait below
		default:
			t.logger().Error("tail stopped", "offset", t.Reader.Offset(), "error", err)
			return printed, err
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return printed, nil
		case <-timer.C:
		}
	}
}
