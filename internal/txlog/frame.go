package txlog

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FormatVersion is written into every HEADER chunk.
const FormatVersion uint32 = 1

// MaxChunkSize bounds a single chunk payload. Larger declared sizes are
// treated as corruption rather than waited for.
const MaxChunkSize uint32 = 64 << 20

const (
	chunkHeaderSize = 8
	headerBodySize  = 48
	endBodySize     = 8
)

// Chunk types.
const (
	chunkHeader    uint32 = 1
	chunkInterface uint32 = 2
	chunkData      uint32 = 3
	chunkReply     uint32 = 4
	chunkEnd       uint32 = 0x00FFFFFF
)

// chunkRank gives the required position of a chunk within a frame.
func chunkRank(typ uint32) (int, bool) {
	switch typ {
	case chunkHeader:
		return 0, true
	case chunkInterface:
		return 1, true
	case chunkData:
		return 2, true
	case chunkReply:
		return 3, true
	case chunkEnd:
		return 4, true
	}
	return 0, false
}

func chunkName(typ uint32) string {
	switch typ {
	case chunkHeader:
		return "HEADER"
	case chunkInterface:
		return "INTERFACE"
	case chunkData:
		return "DATA"
	case chunkReply:
		return "REPLY"
	case chunkEnd:
		return "END"
	}
	return fmt.Sprintf("%#x", typ)
}

func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// AppendFrame encodes tx as one frame and appends it to dst.
// Optional chunks are omitted when their payload is empty.
func AppendFrame(dst []byte, tx Transaction) []byte {
	start := len(dst)

	var hdr [headerBodySize]byte
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], tx.Code)
	le.PutUint32(hdr[4:], tx.Flags)
	le.PutUint32(hdr[8:], uint32(tx.Status))
	le.PutUint32(hdr[12:], uint32(tx.PID))
	le.PutUint32(hdr[16:], tx.UID)
	le.PutUint32(hdr[20:], FormatVersion)
	le.PutUint64(hdr[24:], tx.DataSize)
	le.PutUint64(hdr[32:], tx.ReplySize)
	if !tx.Timestamp.IsZero() {
		le.PutUint64(hdr[40:], uint64(tx.Timestamp.UnixNano()))
	}

	dst = appendChunk(dst, chunkHeader, hdr[:])
	if tx.Interface != "" {
		dst = appendChunk(dst, chunkInterface, []byte(tx.Interface))
	}
	if len(tx.Data) > 0 {
		dst = appendChunk(dst, chunkData, tx.Data)
	}
	if len(tx.Reply) > 0 {
		dst = appendChunk(dst, chunkReply, tx.Reply)
	}

	var sum [endBodySize]byte
	le.PutUint64(sum[:], xxhash.Sum64(dst[start:]))
	return appendChunk(dst, chunkEnd, sum[:])
}

func appendChunk(dst []byte, typ uint32, body []byte) []byte {
	var h [chunkHeaderSize]byte
	binary.LittleEndian.PutUint32(h[0:], typ)
	binary.LittleEndian.PutUint32(h[4:], uint32(len(body)))
	dst = append(dst, h[:]...)
	dst = append(dst, body...)
	for pad := align8(uint32(len(body))) - uint32(len(body)); pad > 0; pad-- {
		dst = append(dst, 0)
	}
	return dst
}

// decodeHeader fills the fixed fields of tx from a HEADER chunk body.
func decodeHeader(body []byte, tx *Transaction) error {
	if len(body) != headerBodySize {
		return fmt.Errorf("header chunk is %d bytes, want %d", len(body), headerBodySize)
	}
	le := binary.LittleEndian
	if v := le.Uint32(body[20:]); v != FormatVersion {
		return fmt.Errorf("unsupported format version %d", v)
	}
	tx.Code = le.Uint32(body[0:])
	tx.Flags = le.Uint32(body[4:])
	tx.Status = Status(int32(le.Uint32(body[8:])))
	tx.PID = int32(le.Uint32(body[12:]))
	tx.UID = le.Uint32(body[16:])
	tx.DataSize = le.Uint64(body[24:])
	tx.ReplySize = le.Uint64(body[32:])
	if ns := int64(le.Uint64(body[40:])); ns != 0 {
		tx.Timestamp = time.Unix(0, ns).UTC()
	}
	return nil
}
