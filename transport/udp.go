package transport

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sctptransport/limits"
	"github.com/opd-ai/sctptransport/sctp"
)

// udpReadBufferSize fits the largest UDP payload.
const udpReadBufferSize = 64 * 1024

// UDPTransport carries SCTP inside UDP datagrams on a socket owned by the
// caller. The transport reads the socket but never closes it; when the
// socket goes away the transport closes every endpoint registered on it.
type UDPTransport struct {
	conn    DatagramConn
	codec   sctp.Codec
	pool    *PortPool
	onClose func()

	received atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	// prev is the transport that read conn before this one. Its reader
	// must stop before this one starts.
	prev *UDPTransport

	readerMu      sync.Mutex
	readerStopped bool
	interrupted   bool
	stopped       chan struct{}
}

var _ Transport = (*UDPTransport)(nil)

// readDeadliner is implemented by sockets whose blocked reads can be
// interrupted, such as *net.UDPConn.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// udpReaders tracks the latest transport reading each socket, so a
// transport created for a socket after an earlier one was closed does
// not race the earlier reader for datagrams.
var udpReaders = struct {
	sync.Mutex
	last map[DatagramConn]*UDPTransport
}{last: make(map[DatagramConn]*UDPTransport)}

// NewUDPTransport starts reading conn. onClose runs once after the
// transport has torn itself down and may be nil. A nil codec selects
// sctp.GopacketCodec.
func NewUDPTransport(conn DatagramConn, codec sctp.Codec, onClose func()) *UDPTransport {
	if codec == nil {
		codec = sctp.GopacketCodec{}
	}
	t := &UDPTransport{
		conn:    conn,
		codec:   codec,
		pool:    NewPortPool("udp"),
		onClose: onClose,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	udpReaders.Lock()
	t.prev = udpReaders.last[conn]
	udpReaders.last[conn] = t
	udpReaders.Unlock()

	go t.processPackets()

	return t
}

// Pool returns the port pool of the transport.
func (t *UDPTransport) Pool() *PortPool {
	return t.pool
}

// Register assigns a port to ep.
func (t *UDPTransport) Register(ep Endpoint) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.pool.Register(ep)
}

// Unallocate releases port.
func (t *UDPTransport) Unallocate(port uint16) {
	t.pool.Unallocate(port)
}

// Received returns the number of datagrams read from the socket.
func (t *UDPTransport) Received() uint64 {
	return t.received.Load()
}

// Send encodes pkt and writes it to the socket as is. The socket's peer
// binding carries the addressing, so src and dst are ignored.
func (t *UDPTransport) Send(pkt *sctp.Packet, _, _ netip.Addr) (int, error) {
	if t.closed.Load() {
		return 0, ErrTransportClosed
	}
	data, err := t.codec.Encode(pkt)
	if err != nil {
		return 0, newOpError("encode", "", err)
	}
	n, err := t.conn.Write(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.Send",
			"size":     len(data),
			"error":    err.Error(),
		}).Error("Failed to send encapsulated SCTP packet")
		return n, newOpError("write", "", err)
	}
	return n, nil
}

// Close tears the transport down as if the socket had closed: every
// registered endpoint is closed and onClose runs. The socket itself is
// left open; if it supports read deadlines the reader is woken and the
// deadline is cleared again once it has stopped. Close must not be called
// from an endpoint callback.
func (t *UDPTransport) Close() error {
	t.interruptReader()
	t.handleClose()
	return nil
}

// interruptReader stops the read loop without letting it consume another
// datagram. Sockets without read deadlines keep the reader blocked until
// the next datagram, which is then dropped.
func (t *UDPTransport) interruptReader() {
	t.closed.Store(true)

	d, ok := t.conn.(readDeadliner)
	if !ok {
		return
	}
	t.readerMu.Lock()
	defer t.readerMu.Unlock()
	if t.readerStopped {
		return
	}
	t.interrupted = true
	if err := d.SetReadDeadline(time.Now()); err != nil {
		t.interrupted = false
	}
}

// stopReader records that the read loop has exited and restores the
// socket's read deadline if Close moved it.
func (t *UDPTransport) stopReader() {
	t.readerMu.Lock()
	t.readerStopped = true
	if t.interrupted {
		_ = t.conn.(readDeadliner).SetReadDeadline(time.Time{})
	}
	t.readerMu.Unlock()
	close(t.stopped)

	udpReaders.Lock()
	if udpReaders.last[t.conn] == t {
		delete(udpReaders.last, t.conn)
	}
	udpReaders.Unlock()
}

// awaitReader waits for the read loop of t to exit if it was interrupted.
// A reader that cannot be interrupted is not waited for.
func (t *UDPTransport) awaitReader() {
	t.readerMu.Lock()
	interrupted := t.interrupted
	t.readerMu.Unlock()
	if interrupted {
		<-t.stopped
	}
}

// Done is closed once the transport has torn down.
func (t *UDPTransport) Done() <-chan struct{} {
	return t.done
}

// processPackets reads the socket until it reports a terminal error or
// the transport is closed.
func (t *UDPTransport) processPackets() {
	defer t.stopReader()
	if t.prev != nil {
		t.prev.awaitReader()
		t.prev = nil
	}
	buffer := make([]byte, udpReadBufferSize)

	for !t.closed.Load() {
		n, err := t.conn.Read(buffer)
		if t.closed.Load() {
			return
		}
		if err != nil {
			if t.handleReadError(err) {
				t.handleClose()
				return
			}
			continue
		}
		t.handleMessage(buffer[:n])
	}
}

// handleReadError reports whether err means the socket is gone.
func (t *UDPTransport) handleReadError(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.processPackets",
		"error":    err.Error(),
	}).Warn("UDP socket read failed")
	return false
}

// handleMessage decodes one datagram and dispatches it. UDP gives the
// transport no IP metadata, so the addresses passed on are zero.
func (t *UDPTransport) handleMessage(b []byte) {
	t.received.Add(1)

	if len(b) < limits.MinUDPDatagram {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.handleMessage",
			"size":     len(b),
		}).Debug("Dropping short datagram")
		return
	}

	pkt, err := t.codec.Decode(b)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.handleMessage",
			"error":    err.Error(),
		}).Debug("Dropping undecodable SCTP packet")
		return
	}
	t.pool.ReceivePacket(pkt, netip.Addr{}, netip.Addr{})
}

// handleClose closes every endpoint, empties the pool and deregisters the
// transport. It runs once.
func (t *UDPTransport) handleClose() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)

		// Endpoint notifications never overlap, including this last one.
		t.pool.deliverMu.Lock()
		eps := t.pool.Drain()
		for _, ep := range eps {
			if err := ep.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "UDPTransport.handleClose",
					"port":     ep.LocalPort(),
					"error":    err.Error(),
				}).Warn("Endpoint close failed")
			}
		}
		t.pool.deliverMu.Unlock()
		if t.onClose != nil {
			t.onClose()
		}

		logrus.WithFields(logrus.Fields{
			"function":  "UDPTransport.handleClose",
			"endpoints": len(eps),
		}).Info("UDP transport closed")
		close(t.done)
	})
}
