package transport

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// RawSocket is the part of a raw IPv4 socket the raw transport drives.
// ReadFrom must return the datagram with its IPv4 header.
type RawSocket interface {
	ReadFrom(b []byte) (int, netip.Addr, error)
	WriteTo(b []byte, dst netip.Addr) (int, error)
	SetHeaderIncluded(on bool) error
	SetReadDeadline(t time.Time) error
	Close() error
}

var loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// ipSocket is a RawSocket over an "ip4:<proto>" IPConn. Reads bypass
// IPConn.ReadFrom, which strips the IPv4 header the transport needs.
type ipSocket struct {
	conn *net.IPConn
	rc   syscall.RawConn
}

var _ RawSocket = (*ipSocket)(nil)

// socketOptions selects what openRawSocket configures.
type socketOptions struct {
	ttl           int
	receiveBuffer int // 0 leaves SO_RCVBUF alone
	sendBuffer    int // 0 leaves SO_SNDBUF alone
}

// openRawSocket opens and configures a raw IPv4 socket for proto.
func openRawSocket(proto int, opts socketOptions) (*ipSocket, error) {
	network := fmt.Sprintf("ip4:%d", proto)
	pc, err := net.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return nil, newOpError("listen", network, err)
	}
	conn := pc.(*net.IPConn)

	if err := configureRawSocket(conn, opts); err != nil {
		conn.Close()
		return nil, newOpError("setsockopt", network, err)
	}
	rc, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, newOpError("listen", network, err)
	}
	s := &ipSocket{conn: conn, rc: rc}

	if err := s.setReceiveTimeout(readPollInterval); err != nil {
		conn.Close()
		return nil, newOpError("setsockopt", network, fmt.Errorf("SO_RCVTIMEO: %w", err))
	}

	if bootstrapKick {
		// This driver delivers nothing until the socket has sent once.
		if _, err := s.WriteTo(nil, loopback); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "openRawSocket",
				"network":  network,
				"error":    err.Error(),
			}).Warn("Bootstrap datagram failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "openRawSocket",
		"network":  network,
		"ttl":      opts.ttl,
	}).Info("Raw socket opened")
	return s, nil
}

func configureRawSocket(conn *net.IPConn, opts socketOptions) error {
	if err := ipv4.NewPacketConn(conn).SetTTL(opts.ttl); err != nil {
		return fmt.Errorf("IP_TTL: %w", err)
	}
	if opts.receiveBuffer > 0 {
		if err := conn.SetReadBuffer(opts.receiveBuffer); err != nil {
			return fmt.Errorf("SO_RCVBUF: %w", err)
		}
	}
	if opts.sendBuffer > 0 {
		if err := conn.SetWriteBuffer(opts.sendBuffer); err != nil {
			return fmt.Errorf("SO_SNDBUF: %w", err)
		}
	}
	return nil
}

// ReadFrom reads one datagram, IPv4 header included.
func (s *ipSocket) ReadFrom(b []byte) (int, netip.Addr, error) {
	var (
		n    int
		src  netip.Addr
		rerr error
	)
	err := s.rc.Read(func(fd uintptr) bool {
		n, src, rerr = recvFrom(fd, b)
		return !isWouldBlock(rerr)
	})
	if err != nil {
		return 0, netip.Addr{}, err
	}
	return n, src, rerr
}

// WriteTo sends b to dst. Whether b starts with an IPv4 header depends on
// the last SetHeaderIncluded call.
func (s *ipSocket) WriteTo(b []byte, dst netip.Addr) (int, error) {
	return s.conn.WriteToIP(b, &net.IPAddr{IP: dst.AsSlice()})
}

// SetHeaderIncluded toggles IP_HDRINCL.
func (s *ipSocket) SetHeaderIncluded(on bool) error {
	var serr error
	err := s.rc.Control(func(fd uintptr) {
		serr = setHeaderIncluded(fd, on)
	})
	if err != nil {
		return err
	}
	return serr
}

// setReceiveTimeout bounds each blocking recvfrom on platforms where read
// deadlines cannot interrupt it.
func (s *ipSocket) setReceiveTimeout(d time.Duration) error {
	var serr error
	err := s.rc.Control(func(fd uintptr) {
		serr = setReceiveTimeout(fd, d)
	})
	if err != nil {
		return err
	}
	return serr
}

func (s *ipSocket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *ipSocket) Close() error {
	return s.conn.Close()
}

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}
