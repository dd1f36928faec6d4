package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/session"
)

// RecordingStatus is the JSON payload of start and stop.
type RecordingStatus struct {
	Service   string `json:"service"`
	LogPath   string `json:"log_path,omitempty"`
	Recording bool   `json:"recording"`
}

// NewStartCommand creates the start command.
func NewStartCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <service>",
		Short: "Start recording transactions from a service",
		Long: `Start recording every transaction handled by <service>.

The log is appended to <recordings-dir>/<service>, with '/' in the service
name replaced by '.'. The recordings directory is created if needed.

Examples:
  ipcrecord start demo/counter
  ipcrecord start demo/counter --recordings-dir /tmp/rec`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(opts, cmd, args[0])
		},
	}
}

// NewStopCommand creates the stop command.
func NewStopCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <service>",
		Short: "Stop recording transactions from a service (see 'start')",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(opts, cmd, args[0])
		},
	}
}

func runStart(opts *RootOptions, cmd *cobra.Command, service string) error {
	ctx := cmd.Context()
	client, err := opts.checkService(ctx, service)
	if err != nil {
		return err
	}
	defer client.Close()

	ctrl := opts.controller()
	path := ctrl.LogPath(service)
	if err := startRecording(ctx, ctrl, client, path); err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), RecordingStatus{Service: service, LogPath: path, Recording: true})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Recording started successfully.")
	return nil
}

func runStop(opts *RootOptions, cmd *cobra.Command, service string) error {
	ctx := cmd.Context()
	client, err := opts.checkService(ctx, service)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := stopRecording(ctx, opts.controller(), client); err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), RecordingStatus{Service: service})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Recording stopped successfully.")
	return nil
}

// checkService connects to service, mapping lookup failures to
// ExitCommandError.
func (o *RootOptions) checkService(ctx context.Context, service string) (*ipc.Client, error) {
	client, err := o.directory().CheckService(ctx, service)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to find service "+service, err)
	}
	return client, nil
}

// startRecording maps local resource failures to ExitCommandError and
// remote failures to ExitFailure.
func startRecording(ctx context.Context, ctrl *session.Controller, rec session.Recorder, path string) error {
	err := ctrl.Start(ctx, rec, path)
	if err == nil {
		return nil
	}
	var resErr *session.ResourceError
	if errors.As(err, &resErr) {
		return WrapExitError(ExitCommandError, "Failed to prepare recording", err)
	}
	return WrapExitError(ExitFailure, "Failed to start recording", err)
}

func stopRecording(ctx context.Context, ctrl *session.Controller, rec session.Recorder) error {
	if err := ctrl.Stop(ctx, rec); err != nil {
		return WrapExitError(ExitFailure, "Failed to stop recording", err)
	}
	return nil
}
