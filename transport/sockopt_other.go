//go:build !unix && !windows

package transport

import (
	"net/netip"
	"time"
)

const bootstrapKick = false

func setHeaderIncluded(uintptr, bool) error {
	return ErrUnsupported
}

func recvFrom(uintptr, []byte) (int, netip.Addr, error) {
	return 0, netip.Addr{}, ErrUnsupported
}

func isWouldBlock(error) bool {
	return false
}

func setReceiveTimeout(uintptr, time.Duration) error {
	return ErrUnsupported
}
