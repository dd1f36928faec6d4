package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecorder writes a marker through the descriptor it is handed, the way a
// real service appends frames.
type fakeRecorder struct {
	startErr error
	stopErr  error
	started  int
	stopped  int
	paths    []string
}

func (f *fakeRecorder) StartRecording(_ context.Context, file *os.File) error {
	f.started++
	f.paths = append(f.paths, file.Name())
	if f.startErr != nil {
		return f.startErr
	}
	_, err := file.Write([]byte("frame"))
	return err
}

func (f *fakeRecorder) StopRecording(context.Context) error {
	f.stopped++
	return f.stopErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogPath(t *testing.T) {
	c := New("/data/local/recordings", nil)

	tests := []struct {
		service string
		want    string
	}{
		{"demo.ICounter", "/data/local/recordings/demo.ICounter"},
		{"android.hardware.foo/default", "/data/local/recordings/android.hardware.foo.default"},
		{"a/b/c", "/data/local/recordings/a.b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			assert.Equal(t, tt.want, c.LogPath(tt.service))
		})
	}
}

func TestNewDefaultsDir(t *testing.T) {
	assert.Equal(t, DefaultDir, New("", nil).Dir)
}

func TestStartCreatesDirAndAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	c := New(dir, quietLogger())
	rec := &fakeRecorder{}
	path := c.LogPath("demo/counter")

	require.NoError(t, c.Start(context.Background(), rec, path))
	require.NoError(t, c.Stop(context.Background(), rec))

	// Directory already exists on the second start.
	require.NoError(t, c.Start(context.Background(), rec, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "frameframe", string(data), "start must append, never truncate")
	assert.Equal(t, 2, rec.started)
	assert.Equal(t, []string{path, path}, rec.paths)
}

func TestStartDirectoryIsFile(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "recordings")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	c := New(blocker, quietLogger())
	err := c.Start(context.Background(), &fakeRecorder{}, c.LogPath("svc"))
	require.Error(t, err)

	var resErr *ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, blocker, resErr.Path)
}

func TestStartOpenFailure(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, quietLogger())
	rec := &fakeRecorder{}

	// A directory in place of the log file cannot be opened for writing.
	path := filepath.Join(dir, "svc")
	require.NoError(t, os.Mkdir(path, 0755))

	err := c.Start(context.Background(), rec, path)
	var resErr *ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, 0, rec.started)
}

func TestStartRemoteFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, quietLogger())
	remote := errors.New("permission denied by service")
	rec := &fakeRecorder{startErr: remote}

	path := c.LogPath("svc")
	err := c.Start(context.Background(), rec, path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote))

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, int64(0), info.Size())
}

func TestStopPropagatesRemoteError(t *testing.T) {
	c := New(t.TempDir(), quietLogger())
	remote := errors.New("not recording")
	rec := &fakeRecorder{stopErr: remote}

	err := c.Stop(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote))
	assert.Equal(t, 1, rec.stopped)
}
