// Package replay re-issues recorded transactions against a live service and
// checks that each one returns the status it returned when recorded.
//
// Equivalence is status-only: reply payloads are not compared. Calls are
// replayed strictly in log order, one at a time, since later calls may depend
// on side effects of earlier ones. A mismatch never stops the run.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Transactor issues one call on a live service.
type Transactor interface {
	Transact(ctx context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status, error)
}

// Result is the verdict for one replayed record.
type Result struct {
	Index    int          `json:"index"` // 1-based position in the log
	Code     uint32       `json:"code"`
	Flags    uint32       `json:"flags"`
	Expected txlog.Status `json:"expected"`
	Actual   txlog.Status `json:"actual"`

	// Error is set when the call could not be issued at all.
	Error   string `json:"error,omitempty"`
	Matched bool   `json:"matched"`
}

// Report aggregates the verdicts of one replay run.
type Report struct {
	Results    []Result `json:"results"`
	AllMatched bool     `json:"all_matched"`
}

// Mismatches returns the results that did not match.
func (r *Report) Mismatches() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Matched {
			out = append(out, res)
		}
	}
	return out
}

// Verifier replays a log against Service.
type Verifier struct {
	Service  Transactor
	Analyzer analyzer.Analyzer
	Out      io.Writer
	Logger   *slog.Logger
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// Run replays every complete record from the reader's cursor. The report is
// returned even when err is non-nil: a malformed frame, a read failure or a
// cancelled context ends the run with the records replayed so far.
func (v *Verifier) Run(ctx context.Context, r *txlog.Reader) (*Report, error) {
	if v.Service == nil || v.Analyzer == nil || v.Out == nil {
		return nil, fmt.Errorf("replay: service, analyzer and output are required")
	}

	report := &Report{AllMatched: true}
	for {
		if err := ctx.Err(); err != nil {
			report.AllMatched = false
			return report, err
		}

		tx, err := r.Next()
		if errors.Is(err, txlog.ErrNotYetAvailable) {
			break
		}
		if err != nil {
			report.AllMatched = false
			return report, fmt.Errorf("replay record %d: %w", r.Count()+1, err)
		}

		res := v.replayOne(ctx, r.Count(), tx)
		report.Results = append(report.Results, res)
		if !res.Matched {
			report.AllMatched = false
		}
	}

	if report.AllMatched {
		fmt.Fprintln(v.Out, "All transactions replayed correctly.")
	} else {
		fmt.Fprintln(v.Out, "Some or all transactions failed to replay correctly. See logs for details.")
	}
	return report, nil
}

func (v *Verifier) replayOne(ctx context.Context, n int, tx txlog.Transaction) Result {
	fmt.Fprintf(v.Out, "Replaying Transaction %d:\n", n)
	v.Analyzer.Render(v.Out, tx.Code, tx.Data, tx.Reply)

	res := Result{
		Index:    n,
		Code:     tx.Code,
		Flags:    tx.Flags,
		Expected: tx.Status,
	}

	_, status, err := v.Service.Transact(ctx, tx.Code, tx.Request(), tx.Flags)
	res.Actual = status
	switch {
	case err != nil:
		res.Error = err.Error()
		v.logger().Warn("replay call failed", "index", n, "code", tx.Code, "error", err)
		fmt.Fprintf(v.Out, "Failure: Expected status %s but the call failed: %v\n\n", tx.Status, err)
	case status != tx.Status:
		v.logger().Debug("replay mismatch", "index", n, "expected", tx.Status, "actual", status)
		fmt.Fprintf(v.Out, "Failure: Expected status %s but received status %s\n\n", tx.Status, status)
	default:
		res.Matched = true
		fmt.Fprint(v.Out, "Transaction replayed correctly.\n\n")
	}
	return res
}
