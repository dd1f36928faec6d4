// Package txlog implements the on-disk transaction log written by a recording
// service and read by the inspect, listen and replay commands.
//
// A log is a plain concatenation of frames with no file header or footer, so
// any prefix that ends on a frame boundary is itself a valid log. Each frame is
// a sequence of 8-byte aligned chunks:
//
//	HEADER      code, flags, status, pid, uid, version, sizes, timestamp
//	INTERFACE   interface descriptor (optional)
//	DATA        request payload (optional)
//	REPLY       reply payload (optional)
//	END         xxhash64 of every preceding byte of the frame
//
// # Tailing
//
// The writer is a different process and nothing signals the reader when a
// frame lands. Reader therefore distinguishes two outcomes that a naive
// decoder would conflate:
//
//   - ErrNotYetAvailable: the bytes for the next frame are not all there yet.
//     The cursor does not move; calling Next again later resumes at the same
//     offset.
//   - ErrMalformed: the bytes are there but can never decode (bad chunk type,
//     absurd size, checksum mismatch).
//
// Writer emits each frame with a single write call so that a concurrent reader
// observes either a prefix of the frame or all of it.
package txlog
