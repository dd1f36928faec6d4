package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/demo"
)

func TestListenUntilInterrupted(t *testing.T) {
	e := newTestEnv(t)
	signals := make(chan os.Signal, 1)
	out := &syncBuffer{}
	opts := &RootOptions{
		Interrupts: signals,
		ForceExit:  func(int) { t.Error("listen should stop without forcing") },
	}

	done := make(chan error, 1)
	cmd := e.command(opts, out, "listen", demo.CounterInterface, counterService)
	go func() { done <- cmd.Execute() }()

	waitForOutput(t, out, "Starting to listen:\n")
	assert.True(t, e.server.Recording())

	e.call(t, demo.CodeAdd, `{"delta":5}`)
	waitForOutput(t, out, "Transaction 1:\n  Method: add (code 1)\n")
	e.call(t, demo.CodeReset, `{}`)
	waitForOutput(t, out, "Transaction 2:\n  Method: reset (code 3, oneway)\n")

	signals <- os.Interrupt
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not stop after interrupt")
	}

	got := out.String()
	assert.Contains(t, got, "Found matching analyzer for interface: demo.ICounter\nRecording started successfully.\nStarting to listen:\n")
	assert.Contains(t, got, "Recording stopped successfully.\n")
	assert.NotContains(t, got, "Transaction 3:")
	assert.False(t, e.server.Recording())
}

func TestListenJSON(t *testing.T) {
	e := newTestEnv(t)
	signals := make(chan os.Signal, 1)
	out := &syncBuffer{}
	opts := &RootOptions{
		Interrupts: signals,
		ForceExit:  func(int) { t.Error("listen should stop without forcing") },
	}

	done := make(chan error, 1)
	cmd := e.command(opts, out, "--format", "json", "listen", demo.CounterInterface, counterService)
	go func() { done <- cmd.Execute() }()

	require.Eventually(t, e.server.Recording, 5*time.Second, 5*time.Millisecond)
	e.call(t, demo.CodeAdd, `{"delta":5}`)
	e.call(t, demo.CodeReset, `{}`)

	signals <- os.Interrupt
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not stop after interrupt")
	}

	var resp struct {
		Status string       `json:"status"`
		Data   ListenResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, counterService, resp.Data.Service)
	assert.Equal(t, filepath.Join(e.recordingsDir, "demo.counter"), resp.Data.LogPath)
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, demo.CodeAdd, resp.Data.Records[0].Code)
	assert.True(t, resp.Data.Records[1].Oneway)
	assert.False(t, e.server.Recording())
}

func TestListenUnknownInterfaceDoesNotRecord(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run(t, "listen", "demo.INope", counterService)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, e.server.Recording())
}

func TestWithStopError(t *testing.T) {
	stopErr := WrapExitError(ExitFailure, "Failed to stop recording", errors.New("connection reset"))
	tailErr := WrapExitError(ExitCommandError, "malformed recording demo.counter", errors.New("bad END checksum"))

	assert.NoError(t, withStopError(nil, nil))

	err := withStopError(nil, stopErr)
	assert.Same(t, stopErr, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	err = withStopError(tailErr, nil)
	assert.ErrorIs(t, err, tailErr)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	err = withStopError(tailErr, stopErr)
	assert.ErrorIs(t, err, tailErr)
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad END checksum")
	assert.Contains(t, err.Error(), "connection reset")
}
