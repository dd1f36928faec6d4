// Package ipc binds the live service handle to unix stream sockets.
//
// Each service listens on its own socket in a services directory. A client
// sends one request at a time and waits for its reply:
//
//	request: op u32 | code u32 | flags u32 | len u32 | payload
//	reply:   status i32 | len u32 | payload
//
// All integers are little endian. START_RECORDING carries the log file
// descriptor as SCM_RIGHTS ancillary data on the request header; the server
// appends every subsequent transaction to it with txlog.Writer until
// STOP_RECORDING.
package ipc
