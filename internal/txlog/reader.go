package txlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Reader decodes frames sequentially from a log that may still be growing.
//
// The cursor only advances past frames that decoded completely, so a Reader
// can be polled indefinitely against a file another process is appending to.
// A Reader is not safe for concurrent use.
type Reader struct {
	src    io.ReaderAt
	offset int64
	count  int
}

// NewReader returns a Reader positioned at the start of src.
func NewReader(src io.ReaderAt) *Reader {
	return &Reader{src: src}
}

// NewReaderAt returns a Reader that resumes at offset, which must be a frame
// boundary previously reported by Offset.
func NewReaderAt(src io.ReaderAt, offset int64) *Reader {
	return &Reader{src: src, offset: offset}
}

// Offset returns the byte offset just past the last decoded frame.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Count returns the number of frames decoded by this Reader.
func (r *Reader) Count() int {
	return r.count
}

// Next decodes the frame at the cursor.
//
// It returns ErrNotYetAvailable if the frame is incomplete and a *FrameError
// if it can never decode; in both cases the cursor is unchanged. Other errors
// come from the underlying source.
func (r *Reader) Next() (Transaction, error) {
	tx, n, err := r.decode(r.offset)
	if err != nil {
		return Transaction{}, err
	}
	r.offset += n
	r.count++
	return tx, nil
}

// decode reads one frame starting at start and returns its encoded length.
func (r *Reader) decode(start int64) (Transaction, int64, error) {
	var (
		tx    Transaction
		frame []byte
		pos   = start
		last  = -1
	)

	malformed := func(format string, args ...any) error {
		return &FrameError{Offset: start, Reason: fmt.Sprintf(format, args...)}
	}

	for {
		var hdr [chunkHeaderSize]byte
		if err := r.readAt(hdr[:], pos); err != nil {
			return Transaction{}, 0, err
		}
		typ := binary.LittleEndian.Uint32(hdr[0:])
		size := binary.LittleEndian.Uint32(hdr[4:])

		rank, ok := chunkRank(typ)
		switch {
		case !ok:
			return Transaction{}, 0, malformed("unknown chunk type %#x at offset %d", typ, pos)
		case last < 0 && typ != chunkHeader:
			return Transaction{}, 0, malformed("frame starts with %s chunk", chunkName(typ))
		case rank <= last:
			return Transaction{}, 0, malformed("%s chunk out of order", chunkName(typ))
		case size > MaxChunkSize:
			return Transaction{}, 0, malformed("%s chunk declares %d bytes (max %d)", chunkName(typ), size, MaxChunkSize)
		}

		body := make([]byte, align8(size))
		if err := r.readAt(body, pos+chunkHeaderSize); err != nil {
			return Transaction{}, 0, err
		}
		payload := body[:size]
		next := pos + chunkHeaderSize + int64(len(body))

		if typ == chunkEnd {
			if size != endBodySize {
				return Transaction{}, 0, malformed("END chunk is %d bytes, want %d", size, endBodySize)
			}
			want := binary.LittleEndian.Uint64(payload)
			if got := xxhash.Sum64(frame); got != want {
				return Transaction{}, 0, malformed("checksum mismatch: recorded %#x, computed %#x", want, got)
			}
			return tx, next - start, nil
		}

		frame = append(frame, hdr[:]...)
		frame = append(frame, body...)

		switch typ {
		case chunkHeader:
			if err := decodeHeader(payload, &tx); err != nil {
				return Transaction{}, 0, malformed("%v", err)
			}
		case chunkInterface:
			tx.Interface = string(payload)
		case chunkData:
			tx.Data = payload
		case chunkReply:
			tx.Reply = payload
		}

		pos = next
		last = rank
	}
}

// readAt fills buf from off. Any short read means the writer has not caught up.
func (r *Reader) readAt(buf []byte, off int64) error {
	n, err := r.src.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNotYetAvailable
	}
	return fmt.Errorf("txlog: read at offset %d: %w", off, err)
}

// ReadAll decodes every complete frame in src. Trailing bytes that do not
// form a complete frame are ignored; malformed frames are an error.
func ReadAll(src io.ReaderAt) ([]Transaction, error) {
	r := NewReader(src)
	var txs []Transaction
	for {
		tx, err := r.Next()
		if errors.Is(err, ErrNotYetAvailable) {
			return txs, nil
		}
		if err != nil {
			return txs, err
		}
		txs = append(txs, tx)
	}
}
