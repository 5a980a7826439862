//go:build linux
// +build linux

package node

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: bind %s failed, port used? %v", ErrCouldNotStart, addr, err)
	}
	return ln, nil
}

// dupListener returns a new non-blocking fd for the socket behind ln. Every
// reactor accepts on its own dup; closing it leaves ln untouched.
func dupListener(ln net.Listener) (int, error) {
	sc, ok := ln.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("listener %T has no raw fd", ln)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}

	newFD := -1
	var dupErr error
	if err := raw.Control(func(fd uintptr) {
		newFD, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return -1, err
	}
	if dupErr != nil {
		return -1, fmt.Errorf("dup listener: %w", dupErr)
	}
	if err := unix.SetNonblock(newFD, true); err != nil {
		unix.Close(newFD)
		return -1, fmt.Errorf("set nonblock error for fd %d: %w", newFD, err)
	}
	return newFD, nil
}
