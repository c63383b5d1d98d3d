package limits

import (
	"errors"
	"fmt"
)

const (
	// IPv4HeaderLen is the length of an IPv4 header without options.
	IPv4HeaderLen = 20

	// MaxIPv4HeaderLen is the largest header an IHL nibble can describe (15 words).
	MaxIPv4HeaderLen = 60

	// MaxIPv4Packet is the largest value the 16-bit total length field can hold.
	MaxIPv4Packet = 0xFFFF

	// MaxSCTPPayload is the largest SCTP packet that fits behind a synthesized header.
	MaxSCTPPayload = MaxIPv4Packet - IPv4HeaderLen

	// SCTPCommonHeaderLen is the fixed SCTP header: ports, verification tag, checksum.
	SCTPCommonHeaderLen = 12

	// ICMPHeaderLen is the fixed ICMPv4 header preceding the original datagram (RFC 792).
	ICMPHeaderLen = 8

	// MinRawDatagram is the floor for the raw SCTP socket: IPv4 header + SCTP
	// common header + one chunk header.
	MinRawDatagram = 36

	// MinICMPDatagram is the floor for the raw ICMP socket.
	MinICMPDatagram = 42

	// MinUDPDatagram is the floor for UDP-encapsulated SCTP.
	MinUDPDatagram = 20

	// ReadBufferSize is the buffer chunk used by raw socket read loops.
	ReadBufferSize = 4 * 1024

	// SocketBufferSize is the SO_RCVBUF/SO_SNDBUF size requested for raw sockets.
	SocketBufferSize = 256 * 1024

	// MinSocketBufferSize and MaxSocketBufferSize bound configured socket buffers.
	MinSocketBufferSize = 4 * 1024
	MaxSocketBufferSize = 16 * 1024 * 1024

	// DefaultTTL is the IP TTL used for outgoing datagrams.
	DefaultTTL = 64
)

var (
	// ErrPacketEmpty indicates an empty payload was provided
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooLarge indicates the payload cannot be carried in one IPv4 datagram
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrInvalidTTL indicates a TTL outside the range a datagram may carry
	ErrInvalidTTL = errors.New("invalid TTL")
)

// ValidatePayloadSize checks that an SCTP payload of n bytes fits behind a
// synthesized IPv4 header. Returns an error with context including the
// actual and maximum sizes.
func ValidatePayloadSize(n int) error {
	if n <= 0 {
		return ErrPacketEmpty
	}
	if n > MaxSCTPPayload {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrPacketTooLarge, n, MaxSCTPPayload)
	}
	return nil
}

// ValidateTTL checks a TTL override. Overrides must be in [1, 254]; 0 and 255
// are reserved for "use the default".
func ValidateTTL(ttl int) error {
	if ttl < 1 || ttl > 254 {
		return fmt.Errorf("%w: %d not in [1, 254]", ErrInvalidTTL, ttl)
	}
	return nil
}

// ValidateSocketBuffer checks a configured SO_RCVBUF/SO_SNDBUF size.
func ValidateSocketBuffer(size int) error {
	if size < MinSocketBufferSize || size > MaxSocketBufferSize {
		return fmt.Errorf("socket buffer %d not in [%d, %d]", size, MinSocketBufferSize, MaxSocketBufferSize)
	}
	return nil
}
