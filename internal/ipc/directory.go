package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
)

// DefaultRoot is the well-known services directory.
const DefaultRoot = "/run/ipcrecord/services"

const socketSuffix = ".sock"

// Directory maps service names to sockets under Root.
type Directory struct {
	Root string
}

// ServiceInfo describes one registered service.
type ServiceInfo struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor,omitempty"`
	Path       string `json:"path"`
	Error      string `json:"error,omitempty"`
}

func (d Directory) root() string {
	if d.Root == "" {
		return DefaultRoot
	}
	return d.Root
}

// SocketPath returns the socket for service.
func (d Directory) SocketPath(service string) string {
	return filepath.Join(d.root(), ir.SafeName(service)+socketSuffix)
}

// CheckService connects to service. A service with no socket is
// ErrServiceNotFound.
func (d Directory) CheckService(ctx context.Context, service string) (*Client, error) {
	if err := ir.ValidateServiceName(service); err != nil {
		return nil, err
	}
	path := d.SocketPath(service)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	if err != nil {
		return nil, fmt.Errorf("check service %s: %w", service, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return nil, fmt.Errorf("check service %s: %s is not a socket", service, path)
	}
	return Dial(ctx, path)
}

// Listen registers service and returns its listener. A stale socket left by
// a previous process is replaced.
func (d Directory) Listen(service string) (*net.UnixListener, error) {
	if err := ir.ValidateServiceName(service); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.root(), 0o755); err != nil {
		return nil, fmt.Errorf("create services directory: %w", err)
	}

	path := d.SocketPath(service)
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&fs.ModeSocket == 0 {
			return nil, fmt.Errorf("listen %s: %s exists and is not a socket", service, path)
		}
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return nil, fmt.Errorf("listen %s: service already registered", service)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", service, err)
	}
	l.SetUnlinkOnClose(true)
	return l, nil
}

// List returns every registered service, sorted by name, with its
// descriptor. Services that cannot be reached are listed with an error.
func (d Directory) List(ctx context.Context) ([]ServiceInfo, error) {
	entries, err := os.ReadDir(d.root())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	var services []ServiceInfo
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), socketSuffix)
		if !ok || e.IsDir() {
			continue
		}
		info := ServiceInfo{Name: name, Path: filepath.Join(d.root(), e.Name())}

		client, err := Dial(ctx, info.Path)
		if err != nil {
			info.Error = err.Error()
			services = append(services, info)
			continue
		}
		info.Descriptor, err = client.Describe(ctx)
		if err != nil {
			info.Error = err.Error()
		}
		client.Close()
		services = append(services, info)
	}

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}
