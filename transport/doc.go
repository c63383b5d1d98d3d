// Package transport moves SCTP packets between endpoints and the network,
// either directly over IPv4 (protocol 132) on a raw socket or encapsulated
// in UDP on a socket the caller owns.
//
// # Architecture
//
// Both transports satisfy the Transport interface and own one PortPool,
// which maps local SCTP ports to the Endpoint registered on them:
//
//	type Transport interface {
//	    Register(ep Endpoint) error
//	    Unallocate(port uint16)
//	    Send(pkt *sctp.Packet, src, dst netip.Addr) (int, error)
//	    Close() error
//	}
//
// Inbound packets are dispatched by destination port; a packet for a port
// nobody registered is out of the blue and dropped. Endpoint callbacks run
// without the pool lock, one at a time per transport, so an endpoint may
// call back into its transport from OnPacket or OnICMP.
//
// # Port Allocation
//
// A registration asking for a port in (0, 65535) gets that port or fails
// with ErrPortInUse. Port 0 (and 65535) asks for an ephemeral port from
// [0xC000, 0xFFFF], tried in turn from a cursor that persists across calls:
//
//	if err := t.Register(ep); err != nil { // ep.LocalPort() == 0
//	    // ErrPortsExhausted
//	}
//	port := ep.LocalPort() // 49152 on a fresh pool
//
// # Raw Transport
//
// RawTransport owns the SCTP raw socket:
//
//	rt, err := transport.NewRawTransport(transport.ConfigFromEnv(), nil)
//	if err != nil {
//	    return err // usually a missing CAP_NET_RAW
//	}
//	defer rt.Close()
//	if err := rt.EnableICMP(); err != nil {
//	    log.Printf("ICMP errors will not be reported: %v", err)
//	}
//
// Sending with a valid source address makes the transport build the IPv4
// header itself (IP_HDRINCL on), which is how endpoints pick their source
// address and per-packet TTL. Without one the kernel builds the header.
//
// Received datagrams carry their IPv4 header. How the kernel reports the
// total-length field differs between platforms; Config.LengthFormat holds
// the rule for the running platform and can be overridden with
// SCTP_IP_LENGTH_ORDER and SCTP_IP_LENGTH_INCLUDES_HEADER.
//
// # ICMP Correlation
//
// Once EnableICMP succeeds, Destination Unreachable errors with code 2
// (protocol unreachable) or 4 (fragmentation needed) that quote an SCTP
// packet are delivered to the endpoint whose port is the quoted source
// port, with the quoted addresses.
//
// # UDP Transport
//
// UDPTransport reads a connected DatagramConn and never closes it. When a
// read reports that the socket is gone, every registered endpoint is closed
// and the onClose hook runs:
//
//	conn, _ := net.DialUDP("udp", nil, peer)
//	ut := transport.NewUDPTransport(conn, nil, func() { log.Print("gone") })
//	_ = ut.Register(ep)
//	conn.Close() // ep.Close is called, then the hook
//
// # Configuration
//
// ConfigFromEnv starts from DefaultConfig and applies:
//
//   - SCTP_IP_TTL: TTL of both raw sockets
//   - SCTP_SOCKET_BUFFER: SO_RCVBUF and SO_SNDBUF of the SCTP socket
//   - SCTP_ENABLE_ICMP: whether a registry enables ICMP correlation
//   - SCTP_IP_LENGTH_ORDER, SCTP_IP_LENGTH_INCLUDES_HEADER: LengthFormat
//
// Invalid values are logged and ignored.
package transport
