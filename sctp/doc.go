// Package sctp defines the SCTP packet model and the codec the transport
// layer uses to turn wire bytes into packets and back.
//
// The transport depends only on the Codec interface. GopacketCodec is the
// default implementation; it decodes with github.com/google/gopacket/layers,
// verifies the CRC32c checksum and never panics on arbitrary input:
//
//	var codec sctp.GopacketCodec
//	pkt, err := codec.Decode(buf)
//	if err != nil {
//	    // malformed input, drop it
//	}
//
// DecodeHeader recovers only the ports and verification tag. It is used for
// the 64 bits of the original datagram quoted inside ICMP errors.
package sctp
