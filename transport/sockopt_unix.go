//go:build unix

package transport

import (
	"errors"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

const bootstrapKick = false

func setHeaderIncluded(fd uintptr, on bool) error {
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_HDRINCL, boolint(on))
}

func recvFrom(fd uintptr, b []byte) (int, netip.Addr, error) {
	n, from, err := unix.Recvfrom(int(fd), b, 0)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	var src netip.Addr
	if sa, ok := from.(*unix.SockaddrInet4); ok {
		src = netip.AddrFrom4(sa.Addr)
	}
	return n, src, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Reads go through the runtime poller, so read deadlines already bound
// them.
func setReceiveTimeout(uintptr, time.Duration) error {
	return nil
}
