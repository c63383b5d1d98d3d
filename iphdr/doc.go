// Package iphdr builds and parses the minimal IPv4 headers exchanged with
// raw sockets.
//
// Raw sockets do not agree across kernels on how the total-length field is
// reported. Some kernels hand back the field in host (little-endian) order
// with the header length already subtracted; others deliver the header
// untouched in network order. The difference is captured by LengthFormat,
// which is resolved once per process by Platform and then passed explicitly
// to Build and Parse:
//
//	f := iphdr.Platform()
//	hdr, err := iphdr.Build(src, dst, len(payload), 0, iphdr.ProtocolSCTP, f)
//
// Checksum implements the RFC 791 one's-complement header checksum. A header
// produced by Build always checksums to zero.
package iphdr
