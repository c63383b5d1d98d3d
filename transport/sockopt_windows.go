//go:build windows

package transport

import (
	"errors"
	"net/netip"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// The Windows raw socket driver starts delivering inbound datagrams only
// after the socket has sent one.
const bootstrapKick = true

// Option and error values from ws2def.h, ws2ipdef.h and winerror.h.
const (
	ipHdrIncl    = 2
	soRcvTimeo   = 0x1006
	wsaETimedOut = windows.Errno(10060)
)

func setHeaderIncluded(fd uintptr, on bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IP, ipHdrIncl, boolint(on))
}

// setReceiveTimeout sets SO_RCVTIMEO. Reads on raw sockets are blocking
// recvfrom calls that hold the socket open, so Close can only complete
// once one of them returns.
func setReceiveTimeout(fd uintptr, d time.Duration) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, soRcvTimeo, int(d.Milliseconds()))
}

func recvFrom(fd uintptr, b []byte) (int, netip.Addr, error) {
	n, from, err := windows.Recvfrom(windows.Handle(fd), b, 0)
	if err != nil {
		return 0, netip.Addr{}, recvError(err)
	}
	var src netip.Addr
	if sa, ok := from.(*windows.SockaddrInet4); ok {
		src = netip.AddrFrom4(sa.Addr)
	}
	return n, src, nil
}

// recvError reports an expired SO_RCVTIMEO as a deadline, which the read
// loops treat as a poll tick.
func recvError(err error) error {
	if errors.Is(err, wsaETimedOut) {
		return os.ErrDeadlineExceeded
	}
	return err
}

// Windows sockets stay in blocking mode, so recvfrom never reports
// WSAEWOULDBLOCK.
func isWouldBlock(error) bool {
	return false
}
