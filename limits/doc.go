// Package limits provides centralized size constants and validation functions
// for the SCTP transport layer. This package ensures consistent length
// enforcement across the header helpers, the codec and both transports.
//
// # Size Floors
//
// Inbound buffers below these floors are dropped without further parsing:
//
//   - MinRawDatagram (36 bytes): IPv4 header plus the SCTP common header and
//     the first chunk header, as delivered by the raw SCTP socket.
//
//   - MinICMPDatagram (42 bytes): the smallest ICMP error delivered by the raw
//     ICMP socket that is worth re-parsing.
//
//   - MinUDPDatagram (20 bytes): the smallest UDP-encapsulated SCTP packet.
//
// # Size Ceilings
//
// The IPv4 total length is a 16-bit field, so a synthesized header plus its
// SCTP payload can never exceed MaxIPv4Packet:
//
//	if err := limits.ValidatePayloadSize(len(payload)); err != nil {
//	    // ErrPacketEmpty or ErrPacketTooLarge
//	}
//
// # Socket Sizing
//
// ReadBufferSize is the chunk used by raw socket read loops and
// SocketBufferSize is applied to SO_RCVBUF and SO_SNDBUF.
package limits
