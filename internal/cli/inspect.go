package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/inspect"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// RecordSummary is one record in JSON inspect output. Payloads are not
// included; use the text format to see them decoded.
type RecordSummary struct {
	Index     int          `json:"index"`
	Code      uint32       `json:"code"`
	Oneway    bool         `json:"oneway,omitempty"`
	Status    txlog.Status `json:"status"`
	Outcome   string       `json:"outcome"`
	Interface string       `json:"interface,omitempty"`
	PID       int32        `json:"pid"`
	UID       uint32       `json:"uid"`
	Timestamp time.Time    `json:"timestamp"`
	DataSize  uint64       `json:"data_size"`
	ReplySize uint64       `json:"reply_size"`
}

// InspectResult is the JSON payload of inspect.
type InspectResult struct {
	File    string          `json:"file"`
	Records []RecordSummary `json:"records"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <interface> <file>",
		Short: "Print the transactions in a recording",
		Long: `Print every complete transaction in <file> through the analyzer for
<interface>, with the status each call returned.

<file> is relative to the recordings directory unless absolute; for a
recording made with 'start' it is the service name with '/' replaced by '.'.

Examples:
  ipcrecord inspect demo.ICounter demo.counter
  ipcrecord inspect raw /tmp/capture.log`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd, args[0], args[1])
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command, iface, file string) error {
	w := cmd.OutOrStdout()
	a, err := opts.lookupAnalyzer(w, iface)
	if err != nil {
		return err
	}

	path := opts.logPath(file)
	f, closeLog, err := openLog(path)
	if err != nil {
		return err
	}
	defer closeLog()

	if opts.Format == "json" {
		records, err := summarize(txlog.NewReader(f))
		if err != nil {
			return WrapExitError(ExitCommandError, "malformed recording "+path, err)
		}
		return writeOK(w, InspectResult{File: path, Records: records})
	}

	insp := &inspect.Inspector{Analyzer: a, Out: w}
	n, err := insp.Run(txlog.NewReader(f))
	if err != nil {
		return WrapExitError(ExitCommandError, "malformed recording "+path, err)
	}
	opts.Logger.Debug("inspect finished", "file", path, "records", n)
	return nil
}

// summarize reads every complete record from r.
func summarize(r *txlog.Reader) ([]RecordSummary, error) {
	records := []RecordSummary{}
	for {
		tx, err := r.Next()
		if errors.Is(err, txlog.ErrNotYetAvailable) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("record %d: %w", r.Count()+1, err)
		}
		records = append(records, RecordSummary{
			Index:     r.Count(),
			Code:      tx.Code,
			Oneway:    tx.Oneway(),
			Status:    tx.Status,
			Outcome:   tx.Status.String(),
			Interface: tx.Interface,
			PID:       tx.PID,
			UID:       tx.UID,
			Timestamp: tx.Timestamp,
			DataSize:  tx.DataSize,
			ReplySize: tx.ReplySize,
		})
	}
}

// openLog opens a recording for reading, mapping failures to
// ExitCommandError.
func openLog(path string) (io.ReaderAt, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "Failed to open recording file", err)
	}
	return f, f.Close, nil
}
