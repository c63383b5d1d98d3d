package sctp

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates bytes that do not form an SCTP packet
	ErrMalformed = errors.New("malformed SCTP packet")

	// ErrChecksum indicates a CRC32c mismatch
	ErrChecksum = errors.New("SCTP checksum mismatch")

	// ErrNilPacket indicates Encode was called without a packet
	ErrNilPacket = errors.New("nil SCTP packet")
)

// Chunk type values used by the transport and its tests (RFC 4960 section 3.2).
const (
	ChunkData             uint8 = 0
	ChunkInit             uint8 = 1
	ChunkInitAck          uint8 = 2
	ChunkSack             uint8 = 3
	ChunkHeartbeat        uint8 = 4
	ChunkHeartbeatAck     uint8 = 5
	ChunkAbort            uint8 = 6
	ChunkShutdown         uint8 = 7
	ChunkShutdownAck      uint8 = 8
	ChunkError            uint8 = 9
	ChunkCookieEcho       uint8 = 10
	ChunkCookieAck        uint8 = 11
	ChunkShutdownComplete uint8 = 14
)

// Chunk is one SCTP chunk. Value excludes the 4-byte chunk header and any
// trailing padding.
type Chunk struct {
	Type  uint8
	Flags uint8
	Value []byte
}

// Len returns the chunk length as written in its header.
func (c Chunk) Len() int {
	return 4 + len(c.Value)
}

// Packet is a decoded SCTP packet.
type Packet struct {
	SrcPort         uint16
	DstPort         uint16
	VerificationTag uint32
	Checksum        uint32

	// TTL overrides the IP TTL for raw sends when it is in [1, 254].
	TTL uint8

	Chunks []Chunk

	// Payload holds the chunk region as received.
	Payload []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf("SCTP %d -> %d tag=%#08x chunks=%d", p.SrcPort, p.DstPort, p.VerificationTag, len(p.Chunks))
}

// Codec converts between wire bytes and packets. Decode must treat malformed
// input as an ordinary error and never panic.
type Codec interface {
	// Decode parses a complete SCTP packet.
	Decode(b []byte) (*Packet, error)

	// DecodeHeader recovers the ports and verification tag from the first
	// 8 bytes of a packet. Chunks are not parsed.
	DecodeHeader(b []byte) (*Packet, error)

	// Encode serializes a packet, computing its checksum.
	Encode(p *Packet) ([]byte, error)
}
