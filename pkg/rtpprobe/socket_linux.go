//go:build linux

package rtpprobe

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket выставляет опции сокета слушателя до bind
func controlSocket(c syscall.RawConn, reusePort bool) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		// больше буфер приема, чтобы не терять пакеты при подсчете
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20)
		if reusePort {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// setDSCP маркирует исходящие пакеты. DSCP занимает старшие 6 бит TOS.
func setDSCP(c syscall.RawConn, dscp int) error {
	tos := dscp << 2
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
		if sockErr != nil {
			// сокет IPv6
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
