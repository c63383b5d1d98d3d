// Package sctptransport is the transport layer of a user-space SCTP stack.
//
// SCTP endpoints reach the network through one of two transports from the
// transport package: a raw IPv4 transport that owns the protocol 132 and
// ICMP raw sockets, or a UDP transport that encapsulates SCTP on a socket
// the caller owns. A Registry decides which transport serves an endpoint
// and creates transports on demand.
//
// # Getting Started
//
//	reg := sctptransport.NewRegistry(transport.ConfigFromEnv())
//	defer reg.Close()
//
//	t, err := reg.Register(ep) // ep.LocalPort() == 0 picks an ephemeral port
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_, err = t.Send(pkt, localAddr, remoteAddr)
//
// Endpoints implementing transport.UDPEndpoint are bound to the
// UDPTransport of their socket; every endpoint on the same socket shares
// it. All other endpoints share the raw transport, which needs
// CAP_NET_RAW (or root) to open.
//
// # Packages
//
//   - transport: port pools, the raw and UDP transports, configuration
//   - sctp: packet model and the gopacket-backed codec
//   - iphdr: IPv4 header synthesis, parsing and checksums
//   - limits: size floors and ceilings shared by all of the above
package sctptransport
