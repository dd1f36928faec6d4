package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitCommandError},
		{"failure", NewExitError(ExitFailure, "mismatch"), ExitFailure},
		{"wrapped", fmt.Errorf("outer: %w", NewExitError(ExitInterrupted, "forced")), ExitInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
	assert.Equal(t, 130, ExitInterrupted)
}

func TestExitErrorMessage(t *testing.T) {
	inner := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "Failed to open recording file", inner)
	assert.Equal(t, "Failed to open recording file: no such file", err.Error())
	assert.ErrorIs(t, err, inner)

	assert.Equal(t, "mismatch", NewExitError(ExitFailure, "mismatch").Error())
}

func TestReportErrorText(t *testing.T) {
	var buf bytes.Buffer
	ReportError(&buf, "text", NewExitError(ExitFailure, "1 of 2 transactions failed to replay"))
	assert.Equal(t, "Error: 1 of 2 transactions failed to replay\n", buf.String())
}

func TestReportErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	ReportError(&buf, "json", NewExitError(ExitCommandError, "unknown interface"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_COMMAND", resp.Error.Code)
	assert.Equal(t, "unknown interface", resp.Error.Message)
}

func TestWriteFailureKeepsData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFailure(&buf, "E_MISMATCH", "mismatch", map[string]int{"total": 2}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, map[string]any{"total": float64(2)}, resp.Data)
	assert.Equal(t, "E_MISMATCH", resp.Error.Code)
}
