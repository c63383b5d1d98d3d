package iphdr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/opd-ai/sctptransport/limits"
)

// IP protocol numbers carried by the transport's raw sockets.
const (
	// ProtocolICMP is the IANA protocol number for ICMPv4.
	ProtocolICMP = 1
	// ProtocolSCTP is the IANA protocol number for SCTP.
	ProtocolSCTP = 132
)

// Field offsets within an IPv4 header.
const (
	offTotalLength = 2
	offTTL         = 8
	offProtocol    = 9
	offChecksum    = 10
	offSource      = 12
	offDestination = 16
)

var (
	// ErrShortBuffer is returned when a buffer cannot hold an IPv4 header.
	ErrShortBuffer = errors.New("buffer too short for IPv4 header")

	// ErrBadHeaderLength is returned when the IHL nibble is out of range.
	ErrBadHeaderLength = errors.New("invalid IPv4 header length")

	// ErrLengthMismatch is returned when the delivered buffer length does not
	// agree with the total-length field.
	ErrLengthMismatch = errors.New("IPv4 total length mismatch")

	// ErrNotIPv4 is returned when an address given to Build is not IPv4.
	ErrNotIPv4 = errors.New("address is not IPv4")
)

// Header holds the IPv4 header fields the transport cares about.
type Header struct {
	Len         int // header length in bytes (IHL * 4)
	TotalLength int // total length as reported, in the reporting format
	TTL         uint8
	Protocol    uint8
	Src         netip.Addr
	Dst         netip.Addr
}

// Build synthesizes a 20-byte IPv4 header for a payload of payloadLen bytes.
// ttl overrides the default TTL when it is in [1, 254]. The total length is
// written in f's byte order and the checksum is computed last.
func Build(src, dst netip.Addr, payloadLen int, ttl uint8, proto uint8, f LengthFormat) ([]byte, error) {
	if !src.Is4() || !dst.Is4() {
		return nil, fmt.Errorf("%w: %v -> %v", ErrNotIPv4, src, dst)
	}
	if err := limits.ValidatePayloadSize(payloadLen); err != nil {
		return nil, err
	}

	buf := make([]byte, limits.IPv4HeaderLen)
	buf[0] = 0x45 // version 4, IHL 5
	f.PutTotalLength(buf, uint16(limits.IPv4HeaderLen+payloadLen))
	buf[offTTL] = limits.DefaultTTL
	if limits.ValidateTTL(int(ttl)) == nil {
		buf[offTTL] = ttl
	}
	buf[offProtocol] = proto
	s, d := src.As4(), dst.As4()
	copy(buf[offSource:offSource+4], s[:])
	copy(buf[offDestination:offDestination+4], d[:])

	binary.BigEndian.PutUint16(buf[offChecksum:offChecksum+2], Checksum(buf))
	return buf, nil
}

// Checksum computes the RFC 791 internet checksum of b. Running it over a
// header that already carries a valid checksum yields zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	i := 0
	for n >= 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
		n -= 2
		i += 2
	}
	if n == 1 {
		sum += uint32(b[i]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(^sum)
}

// Parse reads the IPv4 header at the front of a buffer delivered by a raw
// socket and checks the buffer length against the total-length field.
func Parse(b []byte, f LengthFormat) (Header, error) {
	h, err := ParseEmbedded(b)
	if err != nil {
		return Header{}, err
	}
	h.TotalLength = int(f.TotalLength(b))
	if !f.Consistent(len(b), h.Len, uint16(h.TotalLength)) {
		return Header{}, fmt.Errorf("%w: buffer %d, header %d, reported %d (%v)",
			ErrLengthMismatch, len(b), h.Len, h.TotalLength, f)
	}
	return h, nil
}

// ParseEmbedded reads an IPv4 header quoted inside an ICMP error. Quoted
// headers are copied off the wire untouched, so no length check applies.
func ParseEmbedded(b []byte) (Header, error) {
	if len(b) < limits.IPv4HeaderLen {
		return Header{}, ErrShortBuffer
	}
	hl := int(b[0]&0x0f) << 2
	if hl < limits.IPv4HeaderLen || hl > len(b) {
		return Header{}, fmt.Errorf("%w: %d", ErrBadHeaderLength, hl)
	}
	return Header{
		Len:         hl,
		TotalLength: int(binary.BigEndian.Uint16(b[offTotalLength : offTotalLength+2])),
		TTL:         b[offTTL],
		Protocol:    b[offProtocol],
		Src:         netip.AddrFrom4([4]byte(b[offSource : offSource+4])),
		Dst:         netip.AddrFrom4([4]byte(b[offDestination : offDestination+4])),
	}, nil
}
