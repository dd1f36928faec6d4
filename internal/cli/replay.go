package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/replay"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/store"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string // optional - persist the run
}

// ReplayResult is the JSON payload of replay.
type ReplayResult struct {
	RunID      string          `json:"run_id,omitempty"`
	Service    string          `json:"service"`
	Interface  string          `json:"interface"`
	LogPath    string          `json:"log_path"`
	Total      int             `json:"total"`
	Mismatched int             `json:"mismatched"`
	AllMatched bool            `json:"all_matched"`
	Results    []replay.Result `json:"results"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <service> <interface> <file>",
		Short: "Replay a recording against a live service",
		Long: `Re-issue every transaction in <file> against <service>, in order, and
check that each returns the status it returned when recorded. Reply payloads
are not compared. A mismatch does not stop the replay.

With --db the run and its per-transaction results are saved to a SQLite
database; see 'history'.

Exit codes:
  0 - All transactions replayed correctly
  1 - At least one transaction returned a different status or failed
  2 - Command error (unknown service or interface, unreadable recording)

Examples:
  ipcrecord replay demo/counter demo.ICounter demo.counter
  ipcrecord replay demo/counter demo.ICounter demo.counter --db ./runs.db
  ipcrecord replay demo/counter raw demo.counter --format json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, service, iface, file string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	a, err := opts.lookupAnalyzer(w, iface)
	if err != nil {
		return err
	}

	client, err := opts.checkService(ctx, service)
	if err != nil {
		return err
	}
	defer client.Close()

	path := opts.logPath(file)
	f, closeLog, err := openLog(path)
	if err != nil {
		return err
	}
	defer closeLog()

	// Per-transaction text would corrupt JSON output.
	var out io.Writer = w
	if opts.Format == "json" {
		out = io.Discard
	}

	started := time.Now()
	v := &replay.Verifier{Service: client, Analyzer: a, Out: out, Logger: opts.Logger}
	report, runErr := v.Run(ctx, txlog.NewReader(f))
	finished := time.Now()
	if report == nil {
		return WrapExitError(ExitCommandError, "replay failed", runErr)
	}

	result := ReplayResult{
		Service:    service,
		Interface:  iface,
		LogPath:    path,
		Total:      len(report.Results),
		Mismatched: len(report.Mismatches()),
		AllMatched: report.AllMatched,
		Results:    report.Results,
	}
	if result.Results == nil {
		result.Results = []replay.Result{}
	}

	if opts.Database != "" {
		run := store.RunFromReport(store.Run{
			Service:     service,
			Interface:   iface,
			LogPath:     path,
			SpecHash:    specHash(a),
			ToolVersion: ir.ToolVersion,
			StartedAt:   started,
			FinishedAt:  finished,
		}, report)
		result.RunID, err = saveRun(cmd, opts.Database, run, report.Results)
		if err != nil {
			return err
		}
		opts.Logger.Info("replay run saved", "db", opts.Database, "run_id", result.RunID)
	}

	if runErr != nil {
		return WrapExitError(ExitCommandError, "malformed recording "+path, runErr)
	}

	if opts.Format == "json" {
		return outputReplayJSON(w, result)
	}
	if !result.AllMatched {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d transactions failed to replay", result.Mismatched, result.Total))
	}
	return nil
}

// specHash identifies the interface definition a run was rendered with.
// The raw analyzer has none.
func specHash(a analyzer.Analyzer) string {
	sa, ok := a.(*analyzer.SpecAnalyzer)
	if !ok {
		return ""
	}
	h, err := ir.SpecHash(sa.Spec())
	if err != nil {
		return ""
	}
	return h
}

func saveRun(cmd *cobra.Command, dbPath string, run store.Run, results []replay.Result) (string, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	id, err := st.WriteRun(cmd.Context(), run, results)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to save replay run", err)
	}
	return id, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(w io.Writer, result ReplayResult) error {
	if result.AllMatched {
		return writeOK(w, result)
	}
	if err := writeFailure(w, "E_MISMATCH", "some or all transactions failed to replay correctly", result); err != nil {
		return err
	}
	// Mismatch = exit code 1
	return NewExitError(ExitFailure, "some or all transactions failed to replay correctly")
}
