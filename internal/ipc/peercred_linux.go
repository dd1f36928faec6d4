//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials returns the pid and uid of the process on the other end
// of conn, or zeros if they cannot be read.
func peerCredentials(conn *net.UnixConn) (int32, uint32) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0
	}
	var cred *unix.Ucred
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, err = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil || err != nil || cred == nil {
		return 0, 0
	}
	return cred.Pid, cred.Uid
}
