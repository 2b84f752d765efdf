package transport

import "syscall"

// listenControl applies setSocketOptions before the socket is bound.
func listenControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	if err := c.Control(func(fd uintptr) {
		opErr = setSocketOptions(fd)
	}); err != nil {
		return err
	}
	return opErr
}
