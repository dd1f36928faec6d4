package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/tail"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ListenResult is the JSON payload of listen: every record in the log once
// the recording has stopped.
type ListenResult struct {
	Service string          `json:"service"`
	LogPath string          `json:"log_path"`
	Records []RecordSummary `json:"records"`
}

// NewListenCommand creates the listen command.
func NewListenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen <interface> <service>",
		Short: "Record a service and print its transactions as they happen",
		Long: `Start recording <service>, print each transaction through the analyzer
for <interface> as it is appended, and stop recording on Ctrl-C.

The interface names the analyzer; the service names what is recorded. They
are usually the descriptor and the registered name of the same service.

If stopping hangs, pressing Ctrl-C more than interrupt_limit times exits
immediately with status 130. The remote recording may then still be running;
stop it with 'ipcrecord stop <service>'.

Example:
  ipcrecord listen demo.ICounter demo/counter`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd, args[0], args[1])
		},
	}
}

func runListen(opts *RootOptions, cmd *cobra.Command, iface, service string) error {
	w := cmd.OutOrStdout()
	a, err := opts.lookupAnalyzer(w, iface)
	if err != nil {
		return err
	}

	client, err := opts.checkService(cmd.Context(), service)
	if err != nil {
		return err
	}
	defer client.Close()

	// Interrupts are watched from before the recording starts so that a
	// hang anywhere below can be escaped.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	signals, release := opts.interrupts()
	defer release()
	stopWatching := tail.WatchInterrupts(signals, cancel, opts.interruptPolicy(cmd.ErrOrStderr()))
	defer stopWatching()

	ctrl := opts.controller()
	path := ctrl.LogPath(service)
	if err := startRecording(ctx, ctrl, client, path); err != nil {
		return err
	}
	if opts.Format == "text" {
		fmt.Fprintln(w, "Recording started successfully.")
	}

	// Stopping must run even after the listen context is cancelled.
	stopCtx := context.WithoutCancel(cmd.Context())

	f, closeLog, err := openLog(path)
	if err != nil {
		return withStopError(err, stopRecording(stopCtx, ctrl, client))
	}
	defer closeLog()

	// JSON output is one envelope written after the recording stops, so the
	// tailer only watches for a malformed log.
	out := io.Discard
	if opts.Format == "text" {
		fmt.Fprintln(w, "Starting to listen:")
		out = w
	}
	t := &tail.Tailer{
		Reader:   txlog.NewReader(f),
		Analyzer: a,
		Out:      out,
		Interval: opts.Config.PollInterval,
		Logger:   opts.Logger,
	}
	n, tailErr := t.Run(ctx)
	opts.Logger.Debug("listen finished", "records", n)

	if tailErr != nil {
		tailErr = WrapExitError(ExitCommandError, "malformed recording "+path, tailErr)
	}
	if err := withStopError(tailErr, stopRecording(stopCtx, ctrl, client)); err != nil {
		return err
	}

	if opts.Format == "json" {
		records, err := summarize(txlog.NewReader(f))
		if err != nil {
			return WrapExitError(ExitCommandError, "malformed recording "+path, err)
		}
		return writeOK(w, ListenResult{Service: service, LogPath: path, Records: records})
	}
	fmt.Fprintln(w, "Recording stopped successfully.")
	return nil
}

// withStopError adds a failure to stop the recording to err. The exit code
// stays the one carried by err when there is one.
func withStopError(err, stopErr error) error {
	if err == nil {
		return stopErr
	}
	return errors.Join(err, stopErr)
}
