package transport

import (
	"net/netip"

	"github.com/opd-ai/sctptransport/sctp"
)

// Endpoint is the SCTP endpoint a transport delivers to. Endpoints are owned
// by the caller; a transport keeps a reference keyed by LocalPort only while
// the endpoint is registered.
type Endpoint interface {
	// LocalPort returns the requested or assigned port. 0 requests an
	// ephemeral port.
	LocalPort() uint16

	// SetLocalPort records the port assigned on registration.
	SetLocalPort(port uint16)

	// OnPacket delivers an inbound packet addressed to LocalPort.
	OnPacket(pkt *sctp.Packet, src, dst netip.Addr)

	// OnICMP delivers an ICMP error about a packet this endpoint sent. pkt
	// holds only the quoted SCTP header; src and dst are the addresses of the
	// original datagram.
	OnICMP(pkt *sctp.Packet, src, dst netip.Addr, code uint8)

	// Close tears the endpoint down after its transport went away.
	Close() error
}

// DatagramConn is a caller-owned, connected datagram socket used for UDP
// encapsulation. The dynamic type must be comparable (a pointer such as
// *net.UDPConn) because it identifies the shared transport.
type DatagramConn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
}

// UDPEndpoint is an Endpoint that carries its own UDP socket and is
// therefore served by a UDPTransport instead of the raw transport.
type UDPEndpoint interface {
	Endpoint

	// UDPConn returns the socket SCTP is encapsulated in.
	UDPConn() DatagramConn
}

// Transport defines the interface shared by the raw IP and UDP transports.
type Transport interface {
	// Register allocates LocalPort (or an ephemeral port) for ep.
	Register(ep Endpoint) error

	// Unallocate releases port. Releasing a free port is a no-op.
	Unallocate(port uint16)

	// Send encodes pkt and writes it to dst. src selects header synthesis
	// on the raw transport and is ignored by UDP.
	Send(pkt *sctp.Packet, src, dst netip.Addr) (int, error)

	// Close shuts down the transport.
	Close() error
}
