package txlog

import "time"

// FlagOneway marks a call whose caller does not wait for a reply.
const FlagOneway uint32 = 0x01

// Transaction is one recorded request/response exchange.
//
// DataSize and ReplySize are the sizes declared by the recorder and are
// carried independently of the payload chunks: a frame may declare a size
// without carrying the bytes, or carry more bytes than it declares.
type Transaction struct {
	Code      uint32
	Flags     uint32
	Status    Status
	PID       int32
	UID       uint32
	Timestamp time.Time

	// Interface is the descriptor of the service that handled the call.
	// Empty when the recorder did not emit one.
	Interface string

	DataSize  uint64
	ReplySize uint64
	Data      []byte
	Reply     []byte
}

// Request returns the request payload limited to the declared DataSize.
// A zero DataSize means no size was declared. If fewer bytes were recorded
// than declared, all recorded bytes are returned.
func (t Transaction) Request() []byte {
	if t.DataSize > 0 && t.DataSize < uint64(len(t.Data)) {
		return t.Data[:t.DataSize]
	}
	return t.Data
}

// Oneway reports whether FlagOneway is set.
func (t Transaction) Oneway() bool {
	return t.Flags&FlagOneway != 0
}
