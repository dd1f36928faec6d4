package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ipcrecord", cmd.Use)
	assert.Contains(t, cmd.Long, "replays logs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	cmd.InitDefaultHelpCmd()
	commands := []string{"start", "stop", "inspect", "listen", "replay", "list", "services", "export", "history", "help"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "recordings-dir", "services-dir", "analyzers-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	replayCmd, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)

	dbFlag := replayCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	var stderr bytes.Buffer
	code := Execute([]string{"--format", "xml", "list"}, &bytes.Buffer{}, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), `invalid format "xml"`)
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Execute([]string{"frobnicate"}, &bytes.Buffer{}, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestExecuteWrongArgCount(t *testing.T) {
	code := Execute([]string{"start"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, ExitCommandError, code)
}

func TestExecuteSuccess(t *testing.T) {
	var stdout bytes.Buffer
	code := Execute([]string{"--analyzers-dir", t.TempDir(), "list"}, &stdout, &bytes.Buffer{})
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Available Interfaces (1):\n  raw\n", stdout.String())
}

func TestConfigFileAndFlagOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ipcrecord.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
recordings_dir: /from/config
services_dir: /from/config/svc
analyzers_dir: `+dir+`
poll_interval: 20ms
`), 0o644))

	opts := &RootOptions{Logger: quietLogger()}
	cmd := newRootCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--recordings-dir", "/from/flag", "list"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "/from/flag", opts.Config.RecordingsDir)
	assert.Equal(t, "/from/config/svc", opts.Config.ServicesDir)
	assert.Equal(t, 20*time.Millisecond, opts.Config.PollInterval)
	assert.Equal(t, config.DefaultInterruptLimit, opts.Config.InterruptLimit)
}

func TestInvalidConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("interrupt_limit: -1\n"), 0o644))

	var stderr bytes.Buffer
	code := Execute([]string{"--config", cfgPath, "list"}, &bytes.Buffer{}, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "failed to load config")
}

func TestLogPathResolution(t *testing.T) {
	opts := &RootOptions{Config: &config.Config{RecordingsDir: "/data/local/recordings"}}
	assert.Equal(t, "/data/local/recordings/demo.counter", opts.logPath("demo.counter"))
	assert.Equal(t, "/data/local/recordings/sub/x", opts.logPath("sub/x"))
	assert.Equal(t, "/tmp/x.log", opts.logPath("/tmp/x.log"))
}
