package transport

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sctptransport/iphdr"
	"github.com/opd-ai/sctptransport/limits"
	"github.com/opd-ai/sctptransport/sctp"
)

// readPollInterval bounds how long a read loop blocks before it rechecks
// for shutdown.
const readPollInterval = 100 * time.Millisecond

// SocketOpener opens a raw IPv4 socket. The ICMP socket of a
// RawTransport is opened through one on EnableICMP.
type SocketOpener func() (RawSocket, error)

// RawTransport sends and receives SCTP directly over IPv4 (protocol 132)
// and correlates ICMP Destination Unreachable errors with the endpoints
// whose packets caused them.
type RawTransport struct {
	pool  *PortPool
	codec sctp.Codec
	cfg   Config

	sock     RawSocket
	openICMP SocketOpener

	// sendMu keeps the IP_HDRINCL toggle and the write it applies to
	// together.
	sendMu sync.Mutex

	mu     sync.Mutex
	icmp   RawSocket
	closed bool

	received atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Transport = (*RawTransport)(nil)

// NewRawTransport opens the SCTP raw socket described by cfg and starts
// receiving on it. ICMP stays off until EnableICMP is called. A nil codec
// selects sctp.GopacketCodec.
func NewRawTransport(cfg Config, codec sctp.Codec) (*RawTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sock, err := openRawSocket(iphdr.ProtocolSCTP, socketOptions{
		ttl:           cfg.TTL,
		receiveBuffer: cfg.ReceiveBuffer,
		sendBuffer:    cfg.SendBuffer,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewRawTransport",
			"error":    err.Error(),
		}).Error("Failed to open SCTP raw socket")
		return nil, err
	}
	openICMP := func() (RawSocket, error) {
		s, err := openRawSocket(iphdr.ProtocolICMP, socketOptions{ttl: cfg.TTL})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return NewRawTransportWithSocket(cfg, codec, sock, openICMP), nil
}

// NewRawTransportWithSocket builds a RawTransport around an already open
// socket and starts receiving on it. openICMP is used by EnableICMP and
// may be nil, in which case ICMP cannot be enabled.
func NewRawTransportWithSocket(cfg Config, codec sctp.Codec, sock RawSocket, openICMP SocketOpener) *RawTransport {
	if codec == nil {
		codec = sctp.GopacketCodec{}
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = limits.ReadBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &RawTransport{
		pool:     NewPortPool("raw"),
		codec:    codec,
		cfg:      cfg,
		sock:     sock,
		openICMP: openICMP,
		ctx:      ctx,
		cancel:   cancel,
	}

	t.wg.Add(1)
	go t.processPackets(sock, "sctp", t.handleDatagram)

	logrus.WithFields(logrus.Fields{
		"function":      "NewRawTransportWithSocket",
		"length_format": cfg.LengthFormat.String(),
	}).Info("Raw SCTP transport started")
	return t
}

// EnableICMP opens the ICMP socket and starts correlating Destination
// Unreachable errors. Calling it again after success is a no-op.
func (t *RawTransport) EnableICMP() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.icmp != nil {
		return nil
	}
	if t.openICMP == nil {
		return ErrUnsupported
	}

	sock, err := t.openICMP()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.EnableICMP",
			"error":    err.Error(),
		}).Warn("Failed to open ICMP raw socket")
		return err
	}
	t.icmp = sock

	t.wg.Add(1)
	go t.processPackets(sock, "icmp", t.handleICMP)

	logrus.WithFields(logrus.Fields{
		"function": "RawTransport.EnableICMP",
	}).Info("ICMP correlation enabled")
	return nil
}

// ICMPEnabled reports whether the ICMP socket is open.
func (t *RawTransport) ICMPEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.icmp != nil
}

// Pool returns the port pool of the transport.
func (t *RawTransport) Pool() *PortPool {
	return t.pool
}

// Register assigns a port to ep.
func (t *RawTransport) Register(ep Endpoint) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	return t.pool.Register(ep)
}

// Unallocate releases port.
func (t *RawTransport) Unallocate(port uint16) {
	t.pool.Unallocate(port)
}

// Received returns the number of datagrams read from the SCTP socket.
func (t *RawTransport) Received() uint64 {
	return t.received.Load()
}

// Send encodes pkt and writes it to dst. With a valid src the transport
// builds the IPv4 header itself (so src and pkt.TTL are honoured);
// otherwise the kernel supplies the header. The datagram is written once,
// without retry.
func (t *RawTransport) Send(pkt *sctp.Packet, src, dst netip.Addr) (int, error) {
	if t.isClosed() {
		return 0, ErrTransportClosed
	}
	if !dst.Is4() {
		return 0, newOpError("write", dst.String(), ErrNotIPv4)
	}

	payload, err := t.codec.Encode(pkt)
	if err != nil {
		return 0, newOpError("encode", dst.String(), err)
	}

	datagram := payload
	withHeader := src.IsValid()
	if withHeader {
		hdr, err := iphdr.Build(src, dst, len(payload), pkt.TTL, iphdr.ProtocolSCTP, t.cfg.LengthFormat)
		if err != nil {
			return 0, newOpError("write", dst.String(), err)
		}
		datagram = append(hdr, payload...)
	}

	n, err := t.writeDatagram(datagram, dst, withHeader)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.Send",
			"dst":      dst.String(),
			"size":     len(datagram),
			"error":    err.Error(),
		}).Error("Failed to send SCTP datagram")
		return n, err
	}
	return n, nil
}

func (t *RawTransport) writeDatagram(b []byte, dst netip.Addr, withHeader bool) (int, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := t.sock.SetHeaderIncluded(withHeader); err != nil {
		return 0, newOpError("setsockopt", dst.String(), err)
	}
	n, err := t.sock.WriteTo(b, dst)
	if err != nil {
		return n, newOpError("write", dst.String(), err)
	}
	return n, nil
}

// Close stops both read loops and closes both sockets. Registered
// endpoints are left alone.
func (t *RawTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	icmpSock := t.icmp
	t.mu.Unlock()

	t.cancel()
	errs := []error{t.sock.Close()}
	if icmpSock != nil {
		errs = append(errs, icmpSock.Close())
	}
	t.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "RawTransport.Close",
	}).Info("Raw SCTP transport closed")
	return errors.Join(errs...)
}

func (t *RawTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// processPackets reads from sock until the transport shuts down and hands
// every datagram to handle.
func (t *RawTransport) processPackets(sock RawSocket, name string, handle func([]byte, netip.Addr)) {
	defer t.wg.Done()
	buffer := make([]byte, t.cfg.ReadBufferSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = sock.SetReadDeadline(time.Now().Add(readPollInterval))
		n, src, err := sock.ReadFrom(buffer)
		if err != nil {
			if t.handleReadError(name, err) {
				return
			}
			continue
		}
		handle(buffer[:n], src)
	}
}

// handleReadError logs unexpected read errors and reports whether the
// loop should stop.
func (t *RawTransport) handleReadError(name string, err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
		return true
	}
	logrus.WithFields(logrus.Fields{
		"function": "RawTransport.processPackets",
		"socket":   name,
		"error":    err.Error(),
	}).Warn("Raw socket read failed")
	return false
}

// handleDatagram parses one datagram from the SCTP socket and dispatches
// it to the pool.
func (t *RawTransport) handleDatagram(b []byte, src netip.Addr) {
	t.received.Add(1)

	if len(b) < limits.MinRawDatagram {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.handleDatagram",
			"size":     len(b),
		}).Debug("Dropping short datagram")
		return
	}

	h, err := iphdr.Parse(b, t.cfg.LengthFormat)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.handleDatagram",
			"src":      src.String(),
			"error":    err.Error(),
		}).Debug("Dropping datagram with bad IPv4 header")
		return
	}

	pkt, err := t.codec.Decode(b[h.Len:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.handleDatagram",
			"src":      src.String(),
			"error":    err.Error(),
		}).Debug("Dropping undecodable SCTP packet")
		return
	}
	if !src.IsValid() {
		src = h.Src
	}
	t.pool.ReceivePacket(pkt, src, h.Dst)
}
