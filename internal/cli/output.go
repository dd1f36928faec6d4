package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/tail"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0                   // Successful execution
	ExitFailure      = 1                   // Replay mismatch, remote start/stop failure
	ExitCommandError = 2                   // Usage, unknown interface or service, local I/O
	ExitInterrupted  = tail.ForcedExitCode // Forced exit after repeated interrupts
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitCommandError for errors that carry no code, which are usage
// errors reported by cobra itself.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// CLIResponse is the JSON envelope written with --format json.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_MISMATCH", "E_COMMAND", ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// writeJSON encodes resp indented on w.
func writeJSON(w io.Writer, resp CLIResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// writeOK writes a successful response carrying data.
func writeOK(w io.Writer, data any) error {
	return writeJSON(w, CLIResponse{Status: "ok", Data: data})
}

// writeFailure writes an error response that still carries data, such as a
// replay report with mismatches.
func writeFailure(w io.Writer, code, message string, data any) error {
	return writeJSON(w, CLIResponse{
		Status: "error",
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	})
}

// ReportError prints err for the user in the configured format. Used by
// main after Execute fails.
func ReportError(w io.Writer, format string, err error) {
	if format == "json" {
		_ = writeJSON(w, CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: errorCode(err), Message: err.Error()},
		})
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func errorCode(err error) string {
	switch GetExitCode(err) {
	case ExitFailure:
		return "E_FAILURE"
	case ExitInterrupted:
		return "E_INTERRUPTED"
	default:
		return "E_COMMAND"
	}
}
