package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Client is a connection to one service. Calls are serialized; each waits
// for its reply before the next is sent.
type Client struct {
	mu   sync.Mutex
	conn *net.UnixConn
}

// Dial connects to the service socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn.(*net.UnixConn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Transact issues one call. A transport failure is returned as an error with
// DEAD_OBJECT status; otherwise the service's status and reply are returned.
func (c *Client) Transact(ctx context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status, error) {
	status, reply, err := c.call(ctx, OpTransact, code, flags, data, nil)
	if err != nil {
		return nil, txlog.StatusDeadObject, err
	}
	return reply, status, nil
}

// StartRecording passes f to the service, which appends every subsequent
// transaction to it. The service keeps its own duplicate of the descriptor.
func (c *Client) StartRecording(ctx context.Context, f *os.File) error {
	rights := unix.UnixRights(int(f.Fd()))
	return c.control(ctx, OpStartRecording, rights)
}

// StopRecording asks the service to stop recording.
func (c *Client) StopRecording(ctx context.Context) error {
	return c.control(ctx, OpStopRecording, nil)
}

// Describe returns the interface descriptor the service implements.
func (c *Client) Describe(ctx context.Context) (string, error) {
	status, payload, err := c.call(ctx, OpDescribe, 0, 0, nil, nil)
	if err != nil {
		return "", err
	}
	if !status.OK() {
		return "", &RemoteError{Op: "describe", Status: status}
	}
	return string(payload), nil
}

func (c *Client) control(ctx context.Context, op uint32, oob []byte) error {
	status, _, err := c.call(ctx, op, 0, 0, nil, oob)
	if err != nil {
		return err
	}
	if !status.OK() {
		return &RemoteError{Op: opLabel(op), Status: status}
	}
	return nil
}

func opLabel(op uint32) string {
	switch op {
	case OpStartRecording:
		return "start recording"
	case OpStopRecording:
		return "stop recording"
	default:
		return opName(op)
	}
}

func (c *Client) call(ctx context.Context, op, code, flags uint32, payload, oob []byte) (txlog.Status, []byte, error) {
	if len(payload) > int(MaxPayload) {
		return 0, nil, fmt.Errorf("%s: payload of %d bytes exceeds %d", opName(op), len(payload), MaxPayload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return 0, nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		// Unblock any pending read or write.
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	msg := appendRequestHeader(make([]byte, 0, requestHeaderSize+len(payload)), op, code, flags, len(payload))
	msg = append(msg, payload...)

	var err error
	if oob != nil {
		_, _, err = c.conn.WriteMsgUnix(msg, oob, nil)
	} else {
		_, err = c.conn.Write(msg)
	}
	if err != nil {
		return 0, nil, c.wrapErr(ctx, op, err)
	}

	status, reply, err := readReply(c.conn)
	if err != nil {
		return 0, nil, c.wrapErr(ctx, op, err)
	}
	return status, reply, nil
}

func (c *Client) wrapErr(ctx context.Context, op uint32, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", opName(op), ctxErr)
	}
	return fmt.Errorf("%s: %w", opName(op), err)
}
