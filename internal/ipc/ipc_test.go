package ipc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// shortTempDir keeps socket paths under the 108-byte sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoHandler replies with the request prefixed by the code, and returns
// BAD_VALUE for code 9.
var echoHandler = HandlerFunc(func(_ context.Context, code uint32, data []byte, _ uint32) ([]byte, txlog.Status) {
	if code == 9 {
		return nil, txlog.StatusBadValue
	}
	return append([]byte{byte(code)}, data...), txlog.StatusOK
})

type harness struct {
	dir    Directory
	server *Server
	done   chan error
}

func startService(t *testing.T, name string, h Handler) *harness {
	t.Helper()
	dir := Directory{Root: shortTempDir(t)}
	l, err := dir.Listen(name)
	require.NoError(t, err)

	srv := &Server{
		Descriptor: "demo.IEcho",
		Handler:    h,
		Logger:     quietLogger(),
		Now:        func() time.Time { return time.Unix(1700000000, 0).UTC() },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return &harness{dir: dir, server: srv, done: done}
}

func (h *harness) client(t *testing.T, name string) *Client {
	t.Helper()
	c, err := h.dir.CheckService(context.Background(), name)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSocketPath(t *testing.T) {
	d := Directory{Root: "/run/x"}
	assert.Equal(t, "/run/x/demo.counter.sock", d.SocketPath("demo/counter"))
	assert.Equal(t, DefaultRoot+"/svc.sock", Directory{}.SocketPath("svc"))
}

func TestTransactAndDescribe(t *testing.T) {
	h := startService(t, "echo", echoHandler)
	c := h.client(t, "echo")
	ctx := context.Background()

	reply, status, err := c.Transact(ctx, 7, []byte("hi"), 0)
	require.NoError(t, err)
	assert.Equal(t, txlog.StatusOK, status)
	assert.Equal(t, []byte{7, 'h', 'i'}, reply)

	_, status, err = c.Transact(ctx, 9, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, txlog.StatusBadValue, status)

	desc, err := c.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo.IEcho", desc)
}

func TestRecordingRoundTrip(t *testing.T) {
	h := startService(t, "echo", echoHandler)
	c := h.client(t, "echo")
	ctx := context.Background()

	logPath := filepath.Join(shortTempDir(t), "echo")
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	require.NoError(t, err)
	require.NoError(t, c.StartRecording(ctx, f))
	require.NoError(t, f.Close(), "the service holds its own descriptor")
	assert.True(t, h.server.Recording())

	_, _, err = c.Transact(ctx, 1, []byte("a"), 0)
	require.NoError(t, err)
	_, _, err = c.Transact(ctx, 9, []byte("b"), 0)
	require.NoError(t, err)
	_, _, err = c.Transact(ctx, 2, []byte("c"), txlog.FlagOneway)
	require.NoError(t, err)

	require.NoError(t, c.StopRecording(ctx))
	assert.False(t, h.server.Recording())

	// Not recorded: recording has stopped.
	_, _, err = c.Transact(ctx, 3, nil, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	txs, err := txlog.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, uint32(1), txs[0].Code)
	assert.Equal(t, "a", string(txs[0].Data))
	assert.Equal(t, []byte{1, 'a'}, txs[0].Reply)
	assert.Equal(t, "demo.IEcho", txs[0].Interface)
	assert.Equal(t, int32(os.Getpid()), txs[0].PID)
	assert.Equal(t, uint32(os.Getuid()), txs[0].UID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), txs[0].Timestamp)

	assert.Equal(t, txlog.StatusBadValue, txs[1].Status)

	assert.True(t, txs[2].Oneway())
	assert.Empty(t, txs[2].Reply)
}

func TestRecordingStateErrors(t *testing.T) {
	h := startService(t, "echo", echoHandler)
	c := h.client(t, "echo")
	ctx := context.Background()

	err := c.StopRecording(ctx)
	require.Error(t, err)
	status, ok := RemoteStatus(err)
	require.True(t, ok)
	assert.Equal(t, txlog.StatusInvalidOperation, status)

	f, err := os.CreateTemp(shortTempDir(t), "log")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, c.StartRecording(ctx, f))
	err = c.StartRecording(ctx, f)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "start recording", re.Op)
	assert.Equal(t, txlog.StatusInvalidOperation, re.Status)
	assert.Equal(t, "start recording failed with status INVALID_OPERATION", re.Error())

	require.NoError(t, c.StopRecording(ctx))
}

func TestStartRecordingWithoutDescriptor(t *testing.T) {
	h := startService(t, "echo", echoHandler)
	c := h.client(t, "echo")

	status, _, err := c.call(context.Background(), OpStartRecording, 0, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, txlog.StatusBadValue, status)
	assert.False(t, h.server.Recording())
}

func TestUnknownOp(t *testing.T) {
	h := startService(t, "echo", echoHandler)
	c := h.client(t, "echo")

	status, _, err := c.call(context.Background(), 99, 0, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, txlog.StatusUnknownTransaction, status)
}

func TestTransactHonoursContext(t *testing.T) {
	release := make(chan struct{})
	slow := HandlerFunc(func(context.Context, uint32, []byte, uint32) ([]byte, txlog.Status) {
		<-release
		return nil, txlog.StatusOK
	})
	h := startService(t, "slow", slow)
	c := h.client(t, "slow")
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, status, err := c.Transact(ctx, 1, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, txlog.StatusDeadObject, status)
}

func TestCheckServiceNotFound(t *testing.T) {
	d := Directory{Root: shortTempDir(t)}
	_, err := d.CheckService(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = d.CheckService(context.Background(), "")
	require.Error(t, err)
}

func TestListenRejectsLiveDuplicate(t *testing.T) {
	h := startService(t, "echo", echoHandler)
	_, err := h.dir.Listen("echo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestListenReplacesStaleSocket(t *testing.T) {
	d := Directory{Root: shortTempDir(t)}
	l, err := d.Listen("svc")
	require.NoError(t, err)
	l.SetUnlinkOnClose(false)
	require.NoError(t, l.Close())

	l, err = d.Listen("svc")
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestList(t *testing.T) {
	h := startService(t, "b.echo", echoHandler)

	l, err := h.dir.Listen("a/other")
	require.NoError(t, err)
	other := &Server{Descriptor: "demo.IOther", Handler: echoHandler, Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- other.Serve(ctx, l) }()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, os.WriteFile(filepath.Join(h.dir.Root, "notes.txt"), nil, 0o644))

	services, err := h.dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "a.other", services[0].Name)
	assert.Equal(t, "demo.IOther", services[0].Descriptor)
	assert.Equal(t, "b.echo", services[1].Name)
	assert.Equal(t, "demo.IEcho", services[1].Descriptor)
	assert.Empty(t, services[1].Error)
}

func TestListMissingRoot(t *testing.T) {
	services, err := Directory{Root: filepath.Join(shortTempDir(t), "none")}.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestServerStopReleasesRecording(t *testing.T) {
	dir := Directory{Root: shortTempDir(t)}
	l, err := dir.Listen("echo")
	require.NoError(t, err)

	srv := &Server{Descriptor: "demo.IEcho", Handler: echoHandler, Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	c, err := dir.CheckService(context.Background(), "echo")
	require.NoError(t, err)
	defer c.Close()

	f, err := os.CreateTemp(shortTempDir(t), "log")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, c.StartRecording(context.Background(), f))

	cancel()
	require.NoError(t, <-done)
	assert.False(t, srv.Recording())

	_, err = os.Stat(dir.SocketPath("echo"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "socket is unlinked on close")
}
