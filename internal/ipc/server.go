package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Handler implements the methods of a service.
type Handler interface {
	Transact(ctx context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status)

// Transact implements Handler.
func (f HandlerFunc) Transact(ctx context.Context, code uint32, data []byte, flags uint32) ([]byte, txlog.Status) {
	return f(ctx, code, data, flags)
}

// Server hosts one service. Transactions from all connections are handled
// one at a time, so the recorded order is the order of execution.
type Server struct {
	Descriptor string
	Handler    Handler
	Logger     *slog.Logger

	// Now stamps recorded transactions. Defaults to time.Now.
	Now func() time.Time

	mu  sync.Mutex
	rec *recording
}

type recording struct {
	file *os.File
	w    *txlog.Writer
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Recording reports whether a recording is in progress.
func (s *Server) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

// Serve accepts connections on l until ctx is cancelled, then closes l and
// every open connection and releases any recording descriptor.
func (s *Server) Serve(ctx context.Context, l *net.UnixListener) error {
	if s.Handler == nil {
		return fmt.Errorf("serve %s: handler is required", s.Descriptor)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[*net.UnixConn]struct{})
	)

	stop := context.AfterFunc(ctx, func() {
		l.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	})
	defer stop()

	s.logger().Info("service listening", "descriptor", s.Descriptor, "addr", l.Addr().String())

	var acceptErr error
	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				conn.Close()
			}()
			s.serveConn(ctx, conn)
		}()
	}

	// Close remaining connections when Serve ends for a reason other than
	// cancellation.
	mu.Lock()
	for c := range conns {
		c.Close()
	}
	mu.Unlock()
	wg.Wait()

	s.mu.Lock()
	s.stopRecording()
	s.mu.Unlock()

	s.logger().Info("service stopped", "descriptor", s.Descriptor)
	return acceptErr
}

func (s *Server) serveConn(ctx context.Context, conn *net.UnixConn) {
	pid, uid := peerCredentials(conn)
	log := s.logger().With("pid", pid, "uid", uid)
	log.Debug("client connected")

	for {
		req, fds, err := readRequest(conn)
		if err != nil {
			closeFDs(fds)
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn("read request failed", "error", err)
			}
			return
		}

		status, payload := s.dispatch(ctx, req, fds, pid, uid)
		if _, err := conn.Write(encodeReply(status, payload)); err != nil {
			if ctx.Err() == nil {
				log.Warn("write reply failed", "error", err)
			}
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request, fds []int, pid int32, uid uint32) (txlog.Status, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Op != OpStartRecording {
		closeFDs(fds)
	}

	switch req.Op {
	case OpTransact:
		return s.transact(ctx, req, pid, uid)
	case OpStartRecording:
		return s.startRecording(fds), nil
	case OpStopRecording:
		if s.rec == nil {
			return txlog.StatusInvalidOperation, nil
		}
		s.stopRecording()
		s.logger().Info("recording stopped", "descriptor", s.Descriptor)
		return txlog.StatusOK, nil
	case OpDescribe:
		return txlog.StatusOK, []byte(s.Descriptor)
	default:
		return txlog.StatusUnknownTransaction, nil
	}
}

func (s *Server) transact(ctx context.Context, req request, pid int32, uid uint32) (txlog.Status, []byte) {
	reply, status := s.Handler.Transact(ctx, req.Code, req.Payload, req.Flags)
	if req.Flags&txlog.FlagOneway != 0 {
		reply = nil
	}

	if s.rec != nil {
		tx := txlog.Transaction{
			Code:      req.Code,
			Flags:     req.Flags,
			Status:    status,
			PID:       pid,
			UID:       uid,
			Timestamp: s.now(),
			Interface: s.Descriptor,
			DataSize:  uint64(len(req.Payload)),
			ReplySize: uint64(len(reply)),
			Data:      req.Payload,
			Reply:     reply,
		}
		if err := s.rec.w.Write(tx); err != nil {
			// A broken log ends the recording; the call itself succeeded.
			s.logger().Error("recording write failed, stopping recording", "error", err)
			s.stopRecording()
		}
	}
	return status, reply
}

func (s *Server) startRecording(fds []int) txlog.Status {
	if len(fds) != 1 {
		closeFDs(fds)
		return txlog.StatusBadValue
	}
	if s.rec != nil {
		closeFDs(fds)
		return txlog.StatusInvalidOperation
	}
	f := os.NewFile(uintptr(fds[0]), "recording")
	s.rec = &recording{file: f, w: txlog.NewWriter(f)}
	s.logger().Info("recording started", "descriptor", s.Descriptor)
	return txlog.StatusOK
}

// stopRecording releases the recording descriptor. Caller holds s.mu.
func (s *Server) stopRecording() {
	if s.rec == nil {
		return
	}
	if err := s.rec.file.Close(); err != nil {
		s.logger().Warn("close recording", "error", err)
	}
	s.rec = nil
}

// readRequest reads one request and any descriptors sent with its header.
func readRequest(conn *net.UnixConn) (request, []int, error) {
	hdr := make([]byte, requestHeaderSize)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := conn.ReadMsgUnix(hdr, oob)
	if err != nil {
		return request{}, nil, err
	}
	if n == 0 {
		return request{}, nil, io.EOF
	}

	fds, err := parseRights(oob[:oobn])
	if err != nil {
		return request{}, fds, err
	}

	if n < requestHeaderSize {
		if _, err := io.ReadFull(conn, hdr[n:]); err != nil {
			return request{}, fds, fmt.Errorf("read request header: %w", err)
		}
	}

	req, size := decodeRequestHeader(hdr)
	req.Payload, err = readPayload(conn, size)
	if err != nil {
		return request{}, fds, fmt.Errorf("read %s payload: %w", opName(req.Op), err)
	}
	return req, fds, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
