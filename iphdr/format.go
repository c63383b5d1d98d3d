package iphdr

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ByteOrder is the encoding a raw socket uses for the IPv4 total-length field.
type ByteOrder uint8

const (
	// NetworkOrder is standard big-endian encoding.
	NetworkOrder ByteOrder = iota
	// HostLittleEndian is the kernel-normalized little-endian encoding.
	HostLittleEndian
)

func (o ByteOrder) String() string {
	switch o {
	case NetworkOrder:
		return "network"
	case HostLittleEndian:
		return "host"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}

func (o ByteOrder) binary() binary.ByteOrder {
	if o == HostLittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// ParseByteOrder converts a configuration string to a ByteOrder.
// Accepted values are "network", "big", "host" and "little".
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "network", "big", "big-endian":
		return NetworkOrder, nil
	case "host", "little", "little-endian":
		return HostLittleEndian, nil
	}
	return 0, fmt.Errorf("unknown byte order %q", s)
}

// LengthFormat describes how the local raw socket reports and expects the
// IPv4 total-length field.
type LengthFormat struct {
	// Order is the encoding of the total-length field at offset 2.
	Order ByteOrder
	// ExcludesHeader is set when the reported total length does not count
	// the header, so a delivered buffer is header length + reported length.
	ExcludesHeader bool
}

// Standard is the RFC 791 behaviour: network order, delivered buffer length
// equals the total length.
var Standard = LengthFormat{Order: NetworkOrder}

// HostNormalized is the behaviour of kernels that rewrite the received
// header into host order and subtract the header length.
var HostNormalized = LengthFormat{Order: HostLittleEndian, ExcludesHeader: true}

// Platform returns the format of the running kernel. The value is fixed at
// build time for the target OS.
func Platform() LengthFormat {
	return platformFormat
}

// TotalLength reads the total-length field of the header in b.
func (f LengthFormat) TotalLength(b []byte) uint16 {
	return f.Order.binary().Uint16(b[2:4])
}

// PutTotalLength writes n into the total-length field of the header in b.
func (f LengthFormat) PutTotalLength(b []byte, n uint16) {
	f.Order.binary().PutUint16(b[2:4], n)
}

// Consistent reports whether a delivered buffer of bufLen bytes agrees with
// its header length and reported total length.
func (f LengthFormat) Consistent(bufLen, headerLen int, reported uint16) bool {
	if f.ExcludesHeader {
		return bufLen == headerLen+int(reported)
	}
	return bufLen == int(reported)
}

func (f LengthFormat) String() string {
	if f.ExcludesHeader {
		return f.Order.String() + "/header-excluded"
	}
	return f.Order.String() + "/header-included"
}
