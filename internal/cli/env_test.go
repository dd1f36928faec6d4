package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/demo"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

const counterService = "demo/counter"

// testEnv is a recordings directory, an analyzers directory holding the
// demo.ICounter definition, and a live counter service.
type testEnv struct {
	root          string
	recordingsDir string
	servicesDir   string
	analyzersDir  string
	configPath    string
	server        *ipc.Server
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// Socket paths must stay under the sun_path limit.
	root, err := os.MkdirTemp("", "cli")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	e := &testEnv{
		root:          root,
		recordingsDir: filepath.Join(root, "rec"),
		servicesDir:   filepath.Join(root, "svc"),
		analyzersDir:  filepath.Join(root, "analyzers"),
		configPath:    filepath.Join(root, "ipcrecord.yaml"),
	}
	require.NoError(t, os.MkdirAll(e.analyzersDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.analyzersDir, "counter.cue"), []byte(demo.CounterDefinition), 0o644))
	require.NoError(t, os.WriteFile(e.configPath, []byte("poll_interval: 10ms\n"), 0o644))

	dir := ipc.Directory{Root: e.servicesDir}
	l, err := dir.Listen(counterService)
	require.NoError(t, err)

	e.server = &ipc.Server{
		Descriptor: demo.CounterInterface,
		Handler:    &demo.Counter{Logger: quietLogger()},
		Logger:     quietLogger(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.server.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return e
}

// command returns a root command bound to the environment's directories.
func (e *testEnv) command(opts *RootOptions, out io.Writer, args ...string) *cobra.Command {
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{
		"--config", e.configPath,
		"--recordings-dir", e.recordingsDir,
		"--services-dir", e.servicesDir,
		"--analyzers-dir", e.analyzersDir,
	}, args...))
	return cmd
}

// run executes one command and returns its stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := e.command(&RootOptions{}, &out, args...).Execute()
	return out.String(), err
}

// call issues one transaction on the counter service.
func (e *testEnv) call(t *testing.T, code uint32, data string) txlog.Status {
	t.Helper()
	ctx := context.Background()
	c, err := ipc.Directory{Root: e.servicesDir}.CheckService(ctx, counterService)
	require.NoError(t, err)
	defer c.Close()

	_, status, err := c.Transact(ctx, code, []byte(data), 0)
	require.NoError(t, err)
	return status
}

// syncBuffer is a bytes.Buffer safe for a command writing in one goroutine
// while the test reads in another.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(b.String(), want)
	}, 5*time.Second, 5*time.Millisecond, "output never contained %q", want)
}
