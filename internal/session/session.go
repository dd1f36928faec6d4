// Package session starts and stops recording on a live service.
//
// A recording is Idle or Recording; the only local state is the log file
// itself. Start hands the remote service a write descriptor to the log and
// Stop asks it to close that descriptor. Neither keeps anything in memory
// between process invocations.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
)

// DefaultDir is the well-known recordings directory.
const DefaultDir = "/data/local/recordings"

const (
	dirMode  = 0o777
	fileMode = 0o666

	// openFlags never truncate: a log is only ever appended to.
	openFlags = os.O_WRONLY | os.O_CREATE | os.O_APPEND | unix.O_CLOEXEC
)

// Recorder is the recording surface of a live service.
type Recorder interface {
	// StartRecording asks the service to append every transaction to f.
	// The service keeps its own duplicate of the descriptor.
	StartRecording(ctx context.Context, f *os.File) error

	// StopRecording asks the service to stop appending and release its
	// descriptor. Stopping a service that is not recording is an error.
	StopRecording(ctx context.Context) error
}

// ResourceError reports a local filesystem failure while preparing a
// recording.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Controller starts and stops recordings into Dir.
type Controller struct {
	Dir    string
	Logger *slog.Logger
}

// New returns a controller for dir. An empty dir means DefaultDir.
func New(dir string, logger *slog.Logger) *Controller {
	if dir == "" {
		dir = DefaultDir
	}
	return &Controller{Dir: dir, Logger: logger}
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// LogPath returns the log file for service: Dir joined with the service
// identifier, NFC-normalised and with '/' replaced by '.'.
func (c *Controller) LogPath(service string) string {
	return filepath.Join(c.Dir, ir.SafeName(service))
}

// EnsureDir creates Dir. A directory that already exists is not an error.
func (c *Controller) EnsureDir() error {
	if err := os.MkdirAll(c.Dir, dirMode); err != nil {
		return &ResourceError{Op: "create recordings directory", Path: c.Dir, Err: err}
	}
	return nil
}

// Start opens path for appending and hands it to svc. The local descriptor
// is closed before returning whatever the outcome; on a remote failure the
// possibly empty file is left in place.
func (c *Controller) Start(ctx context.Context, svc Recorder, path string) error {
	if err := c.EnsureDir(); err != nil {
		return err
	}

	f, err := os.OpenFile(path, openFlags, fileMode)
	if err != nil {
		return &ResourceError{Op: "open recording file", Path: path, Err: err}
	}
	defer f.Close()

	c.logger().Debug("starting recording", "path", path)
	if err := svc.StartRecording(ctx, f); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	c.logger().Info("recording started", "path", path)
	return nil
}

// Stop asks svc to stop recording. Remote errors are returned unchanged in
// meaning; stopping twice is an error from the service.
func (c *Controller) Stop(ctx context.Context, svc Recorder) error {
	if err := svc.StopRecording(ctx); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	c.logger().Info("recording stopped")
	return nil
}
