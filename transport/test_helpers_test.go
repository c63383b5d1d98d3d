package transport

import (
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/opd-ai/sctptransport/sctp"
)

// delivery records one OnPacket or OnICMP call.
type delivery struct {
	pkt  *sctp.Packet
	src  netip.Addr
	dst  netip.Addr
	code uint8
}

// recordingEndpoint is an Endpoint that remembers everything it was told.
type recordingEndpoint struct {
	mu      sync.Mutex
	port    uint16
	packets []delivery
	icmps   []delivery
	closed  int

	notify chan struct{}
}

func newRecordingEndpoint(port uint16) *recordingEndpoint {
	return &recordingEndpoint{port: port, notify: make(chan struct{}, 64)}
}

func (e *recordingEndpoint) LocalPort() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

func (e *recordingEndpoint) SetLocalPort(port uint16) {
	e.mu.Lock()
	e.port = port
	e.mu.Unlock()
}

func (e *recordingEndpoint) OnPacket(pkt *sctp.Packet, src, dst netip.Addr) {
	e.mu.Lock()
	e.packets = append(e.packets, delivery{pkt: pkt, src: src, dst: dst})
	e.mu.Unlock()
	e.signal()
}

func (e *recordingEndpoint) OnICMP(pkt *sctp.Packet, src, dst netip.Addr, code uint8) {
	e.mu.Lock()
	e.icmps = append(e.icmps, delivery{pkt: pkt, src: src, dst: dst, code: code})
	e.mu.Unlock()
	e.signal()
}

func (e *recordingEndpoint) Close() error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	e.signal()
	return nil
}

func (e *recordingEndpoint) signal() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// wait blocks until the endpoint is notified or the timeout passes.
func (e *recordingEndpoint) wait(timeout time.Duration) bool {
	select {
	case <-e.notify:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (e *recordingEndpoint) snapshot() (packets, icmps []delivery, closed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]delivery(nil), e.packets...), append([]delivery(nil), e.icmps...), e.closed
}

// inbound is one datagram queued on a fakeRawSocket.
type inbound struct {
	data []byte
	src  netip.Addr
}

// written is one datagram written to a fakeRawSocket.
type written struct {
	data       []byte
	dst        netip.Addr
	withHeader bool
}

// fakeRawSocket is an in-memory RawSocket. Inject queues datagrams for
// ReadFrom; writes are recorded with the IP_HDRINCL state they went out
// with.
type fakeRawSocket struct {
	in     chan inbound
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	deadline   time.Time
	hdrIncl    bool
	writes     []written
	writeErr   error
	closeCalls int
}

var _ RawSocket = (*fakeRawSocket)(nil)

func newFakeRawSocket() *fakeRawSocket {
	return &fakeRawSocket{
		in:     make(chan inbound, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeRawSocket) Inject(data []byte, src netip.Addr) {
	s.in <- inbound{data: data, src: src}
}

func (s *fakeRawSocket) ReadFrom(b []byte) (int, netip.Addr, error) {
	s.mu.Lock()
	wait := time.Until(s.deadline)
	s.mu.Unlock()
	if wait <= 0 {
		wait = time.Millisecond
	}

	select {
	case <-s.closed:
		return 0, netip.Addr{}, net.ErrClosed
	case d := <-s.in:
		return copy(b, d.data), d.src, nil
	case <-time.After(wait):
		return 0, netip.Addr{}, os.ErrDeadlineExceeded
	}
}

func (s *fakeRawSocket) WriteTo(b []byte, dst netip.Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, written{
		data:       append([]byte(nil), b...),
		dst:        dst,
		withHeader: s.hdrIncl,
	})
	return len(b), nil
}

func (s *fakeRawSocket) SetHeaderIncluded(on bool) error {
	s.mu.Lock()
	s.hdrIncl = on
	s.mu.Unlock()
	return nil
}

func (s *fakeRawSocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *fakeRawSocket) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeRawSocket) Writes() []written {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]written(nil), s.writes...)
}

// chanConn is an in-memory DatagramConn. Close makes pending and future
// reads fail with net.ErrClosed.
type chanConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out [][]byte
}

func newChanConn() *chanConn {
	return &chanConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *chanConn) Read(b []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	case d := <-c.in:
		return copy(b, d), nil
	}
}

func (c *chanConn) Write(b []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.mu.Lock()
	c.out = append(c.out, append([]byte(nil), b...))
	c.mu.Unlock()
	return len(b), nil
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *chanConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.out...)
}

var (
	testLocal  = netip.MustParseAddr("10.0.0.1")
	testRemote = netip.MustParseAddr("10.0.0.2")
	testRouter = netip.MustParseAddr("192.0.2.1")
)

// testPacket returns a one-chunk DATA packet between the given ports.
func testPacket(src, dst uint16) *sctp.Packet {
	return &sctp.Packet{
		SrcPort:         src,
		DstPort:         dst,
		VerificationTag: 0xdeadbeef,
		Chunks: []sctp.Chunk{{
			Type:  sctp.ChunkData,
			Flags: 0x03,
			Value: []byte("0123456789abcdef"),
		}},
	}
}
