package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/replay"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/store"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ExportResult is the JSON payload of export.
type ExportResult struct {
	LogPath string `json:"log_path"`
	Records int    `json:"records"`
}

// RunDetail is the JSON payload of history --run.
type RunDetail struct {
	Run     store.Run       `json:"run"`
	Results []replay.Result `json:"results"`
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Copy a recording's transactions into a SQLite database",
		Long: `Decode every complete transaction in <file> and store it in the
transactions table of the database, replacing any previous export of the
same file. Payloads are stored as blobs.

Example:
  ipcrecord export demo.counter --db ./recordings.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, dbPath, args[0])
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var (
		dbPath     string
		runID      string
		mismatched bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show replay runs saved with 'replay --db'",
		Long: `Without --run, list saved replay runs, most recent first. With --run,
show the per-transaction results of one run.

Examples:
  ipcrecord history --db ./runs.db
  ipcrecord history --db ./runs.db --run 01890a5d-ac96-774b-bcce-b302099a8057 --mismatched`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return runHistoryList(opts, cmd, dbPath)
			}
			return runHistoryShow(opts, cmd, dbPath, runID, mismatched)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&runID, "run", "", "show results of this run")
	cmd.Flags().BoolVar(&mismatched, "mismatched", false, "with --run, only show failed transactions")

	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, dbPath, file string) error {
	path := opts.logPath(file)
	f, closeLog, err := openLog(path)
	if err != nil {
		return err
	}
	defer closeLog()

	txs, err := txlog.ReadAll(f)
	if err != nil {
		return WrapExitError(ExitCommandError, "malformed recording "+path, err)
	}

	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ImportLog(cmd.Context(), path, txs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to export recording", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeOK(w, ExportResult{LogPath: path, Records: n})
	}
	fmt.Fprintf(w, "Exported %d transaction(s) from %s\n", n, path)
	return nil
}

func runHistoryList(opts *RootOptions, cmd *cobra.Command, dbPath string) error {
	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list replay runs", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeOK(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No replay runs found in database.")
		return nil
	}
	for _, run := range runs {
		writeRunLine(w, run)
	}
	return nil
}

func runHistoryShow(opts *RootOptions, cmd *cobra.Command, dbPath, runID string, mismatchedOnly bool) error {
	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, "unknown replay run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read replay run", err)
	}
	results, err := st.ReadResults(ctx, runID, mismatchedOnly)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read replay results", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeOK(w, RunDetail{Run: run, Results: results})
	}

	writeRunLine(w, run)
	fmt.Fprintln(w)
	for _, res := range results {
		switch {
		case res.Error != "":
			fmt.Fprintf(w, "  #%d code %d: expected %s, call failed: %s\n", res.Index, res.Code, res.Expected, res.Error)
		case !res.Matched:
			fmt.Fprintf(w, "  #%d code %d: expected %s, received %s\n", res.Index, res.Code, res.Expected, res.Actual)
		default:
			fmt.Fprintf(w, "  #%d code %d: %s\n", res.Index, res.Code, res.Actual)
		}
	}
	return nil
}

func writeRunLine(w io.Writer, run store.Run) {
	mark := "✓"
	if !run.AllMatched {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s  %s  %s %s  %d/%d matched  %s\n",
		mark,
		run.ID,
		run.StartedAt.Local().Format(time.DateTime),
		run.Service,
		run.Interface,
		run.Total-run.Mismatched,
		run.Total,
		run.LogPath,
	)
}

func openStore(dbPath string) (*store.Store, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
