package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// Operations.
const (
	OpTransact       uint32 = 1
	OpStartRecording uint32 = 2
	OpStopRecording  uint32 = 3
	OpDescribe       uint32 = 4
)

const (
	requestHeaderSize = 16
	replyHeaderSize   = 8

	// MaxPayload bounds a request or reply payload.
	MaxPayload = txlog.MaxChunkSize
)

func opName(op uint32) string {
	switch op {
	case OpTransact:
		return "TRANSACT"
	case OpStartRecording:
		return "START_RECORDING"
	case OpStopRecording:
		return "STOP_RECORDING"
	case OpDescribe:
		return "DESCRIBE"
	default:
		return fmt.Sprintf("op(%d)", op)
	}
}

type request struct {
	Op      uint32
	Code    uint32
	Flags   uint32
	Payload []byte
}

func appendRequestHeader(dst []byte, op, code, flags uint32, n int) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, op)
	dst = binary.LittleEndian.AppendUint32(dst, code)
	dst = binary.LittleEndian.AppendUint32(dst, flags)
	return binary.LittleEndian.AppendUint32(dst, uint32(n))
}

func decodeRequestHeader(hdr []byte) (request, uint32) {
	return request{
		Op:    binary.LittleEndian.Uint32(hdr[0:]),
		Code:  binary.LittleEndian.Uint32(hdr[4:]),
		Flags: binary.LittleEndian.Uint32(hdr[8:]),
	}, binary.LittleEndian.Uint32(hdr[12:])
}

func encodeReply(status txlog.Status, payload []byte) []byte {
	buf := make([]byte, 0, replyHeaderSize+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(status))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func readReply(r io.Reader) (txlog.Status, []byte, error) {
	var hdr [replyHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("read reply header: %w", err)
	}
	status := txlog.Status(int32(binary.LittleEndian.Uint32(hdr[0:])))
	payload, err := readPayload(r, binary.LittleEndian.Uint32(hdr[4:]))
	if err != nil {
		return 0, nil, fmt.Errorf("read reply: %w", err)
	}
	return status, payload, nil
}

func readPayload(r io.Reader, n uint32) ([]byte, error) {
	if n > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", n, MaxPayload)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
