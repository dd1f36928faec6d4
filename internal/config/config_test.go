package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultRecordingsDir, cfg.RecordingsDir)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.InterruptLimit)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipcrecord.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recordings_dir: /tmp/rec
services_dir: /tmp/svc
proto_paths:
  - /usr/share/proto
poll_interval: 250ms
interrupt_limit: 5
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		RecordingsDir:  "/tmp/rec",
		ServicesDir:    "/tmp/svc",
		AnalyzersDir:   DefaultAnalyzersDir,
		ProtoPaths:     []string{"/usr/share/proto"},
		PollInterval:   250 * time.Millisecond,
		InterruptLimit: 5,
		LogLevel:       "debug",
	}, cfg)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadShippedExample(t *testing.T) {
	cfg, err := Load("../../examples/ipcrecord.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/share/ipcrecord/proto"}, cfg.ProtoPaths)
	assert.Equal(t, DefaultRecordingsDir, cfg.RecordingsDir)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse("empty.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "unknown field",
			input:   "recording_dir: /tmp\n",
			wantErr: "recording_dir",
		},
		{
			name:    "bad log level",
			input:   "log_level: loud\n",
			wantErr: "log_level",
		},
		{
			name:    "zero interrupt limit",
			input:   "interrupt_limit: 0\n",
			wantErr: "interrupt_limit",
		},
		{
			name:    "malformed duration",
			input:   "poll_interval: soon\n",
			wantErr: "poll_interval",
		},
		{
			name:    "empty directory",
			input:   "services_dir: \"\"\n",
			wantErr: "services_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLevelFallsBackToInfo(t *testing.T) {
	cfg := &Config{LogLevel: "chatty"}
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
