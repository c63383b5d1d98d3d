package sctp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/opd-ai/sctptransport/limits"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// GopacketCodec is the default Codec, backed by gopacket's SCTP layers.
// The zero value verifies checksums.
type GopacketCodec struct {
	// SkipChecksum disables CRC32c verification on Decode, for links
	// that offload or strip the checksum.
	SkipChecksum bool
}

var _ Codec = GopacketCodec{}

// Decode parses b as a complete SCTP packet.
func (c GopacketCodec) Decode(b []byte) (*Packet, error) {
	if len(b) < limits.SCTPCommonHeaderLen+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	if !c.SkipChecksum {
		if want, got := binary.LittleEndian.Uint32(b[8:12]), Checksum(b); want != got {
			return nil, fmt.Errorf("%w: header %#08x, computed %#08x", ErrChecksum, want, got)
		}
	}

	// Only the common header is taken from gopacket; its chunk layers split
	// DATA user data into a separate payload layer, so chunks are walked here.
	gp := gopacket.NewPacket(b, layers.LayerTypeSCTP, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	hdr, ok := gp.Layer(layers.LayerTypeSCTP).(*layers.SCTP)
	if !ok {
		return nil, fmt.Errorf("%w: no SCTP common header", ErrMalformed)
	}

	chunks, err := splitChunks(hdr.LayerPayload())
	if err != nil {
		return nil, err
	}
	return &Packet{
		SrcPort:         uint16(hdr.SrcPort),
		DstPort:         uint16(hdr.DstPort),
		VerificationTag: hdr.VerificationTag,
		Checksum:        binary.LittleEndian.Uint32(b[8:12]),
		Chunks:          chunks,
		Payload:         append([]byte(nil), hdr.LayerPayload()...),
	}, nil
}

// DecodeHeader recovers ports and verification tag from at least 8 bytes.
// gopacket's SCTP layer needs the full 12-byte common header, which ICMP
// quotes do not guarantee, so the fields are read directly.
func (GopacketCodec) DecodeHeader(b []byte) (*Packet, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: header fragment of %d bytes", ErrMalformed, len(b))
	}
	return &Packet{
		SrcPort:         binary.BigEndian.Uint16(b[0:2]),
		DstPort:         binary.BigEndian.Uint16(b[2:4]),
		VerificationTag: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Encode serializes p and seals its CRC32c.
func (GopacketCodec) Encode(p *Packet) ([]byte, error) {
	if p == nil {
		return nil, ErrNilPacket
	}
	ls := make([]gopacket.SerializableLayer, 0, 1+len(p.Chunks))
	ls = append(ls, &layers.SCTP{
		SrcPort:         layers.SCTPPort(p.SrcPort),
		DstPort:         layers.SCTPPort(p.DstPort),
		VerificationTag: p.VerificationTag,
	})
	for _, ch := range p.Chunks {
		if ch.Len() > 0xFFFF {
			return nil, fmt.Errorf("chunk type %d: value of %d bytes does not fit", ch.Type, len(ch.Value))
		}
		ls = append(ls, rawChunk(ch))
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, ls...); err != nil {
		return nil, fmt.Errorf("serialize SCTP packet: %w", err)
	}
	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[8:12], Checksum(out))
	return out, nil
}

// Checksum computes the CRC32c of an SCTP packet with its checksum field
// treated as zero. It returns 0 for buffers shorter than the common header.
func Checksum(b []byte) uint32 {
	if len(b) < limits.SCTPCommonHeaderLen {
		return 0
	}
	var zero [4]byte
	crc := crc32.Update(0, castagnoli, b[:8])
	crc = crc32.Update(crc, castagnoli, zero[:])
	return crc32.Update(crc, castagnoli, b[12:])
}

// splitChunks walks the chunk region. Every chunk but the last must be
// padded to a 4-byte boundary.
func splitChunks(b []byte) ([]Chunk, error) {
	var chunks []Chunk
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: trailing %d bytes", ErrMalformed, len(b))
		}
		n := int(binary.BigEndian.Uint16(b[2:4]))
		if n < 4 || n > len(b) {
			return nil, fmt.Errorf("%w: chunk length %d in %d bytes", ErrMalformed, n, len(b))
		}
		chunks = append(chunks, Chunk{
			Type:  b[0],
			Flags: b[1],
			Value: append([]byte(nil), b[4:n]...),
		})
		padded := (n + 3) &^ 3
		if padded > len(b) {
			padded = len(b)
		}
		b = b[padded:]
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrMalformed)
	}
	return chunks, nil
}

// rawChunk serializes a Chunk verbatim, padded to a 4-byte boundary.
type rawChunk Chunk

func (rawChunk) LayerType() gopacket.LayerType { return layers.LayerTypeSCTPUnknownChunkType }

func (c rawChunk) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	n := Chunk(c).Len()
	padded := (n + 3) &^ 3
	bytes, err := b.PrependBytes(padded)
	if err != nil {
		return err
	}
	bytes[0] = c.Type
	bytes[1] = c.Flags
	binary.BigEndian.PutUint16(bytes[2:4], uint16(n))
	copy(bytes[4:n], c.Value)
	for i := n; i < padded; i++ {
		bytes[i] = 0
	}
	return nil
}
