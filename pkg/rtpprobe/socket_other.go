//go:build !linux

package rtpprobe

import (
	"errors"
	"syscall"
)

func controlSocket(_ syscall.RawConn, reusePort bool) error {
	if reusePort {
		return errors.New("SO_REUSEPORT поддерживается только на Linux")
	}
	return nil
}

func setDSCP(_ syscall.RawConn, _ int) error { return nil }
