package transport

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sctptransport/iphdr"
	"github.com/opd-ai/sctptransport/limits"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvTTL               = "SCTP_IP_TTL"
	EnvSocketBuffer      = "SCTP_SOCKET_BUFFER"
	EnvEnableICMP        = "SCTP_ENABLE_ICMP"
	EnvLengthOrder       = "SCTP_IP_LENGTH_ORDER"
	EnvLengthIncludesHdr = "SCTP_IP_LENGTH_INCLUDES_HEADER"
)

const (
	minTTL = 1
	maxTTL = 255
)

// Config holds the socket settings of the raw transport.
type Config struct {
	// TTL is the IP_TTL socket option on both raw sockets.
	TTL int

	// ReceiveBuffer and SendBuffer size SO_RCVBUF and SO_SNDBUF.
	ReceiveBuffer int
	SendBuffer    int

	// ReadBufferSize is the buffer each raw read loop reads into.
	ReadBufferSize int

	// EnableICMP asks the registry to open the ICMP socket after the raw
	// transport is built.
	EnableICMP bool

	// LengthFormat is how the kernel reports the IPv4 total length.
	LengthFormat iphdr.LengthFormat
}

// DefaultConfig returns the standard raw socket settings for this platform.
//
// Default Value Rationale:
//   - TTL: 64 - the common initial TTL for host stacks
//   - ReceiveBuffer/SendBuffer: 256 KiB - absorbs bursts without an application queue
//   - ReadBufferSize: 4 KiB - one raw datagram per read at common MTUs
//   - EnableICMP: true - Destination Unreachable is needed for path MTU and protocol errors
func DefaultConfig() Config {
	return Config{
		TTL:            limits.DefaultTTL,
		ReceiveBuffer:  limits.SocketBufferSize,
		SendBuffer:     limits.SocketBufferSize,
		ReadBufferSize: limits.ReadBufferSize,
		EnableICMP:     true,
		LengthFormat:   iphdr.Platform(),
	}
}

// ConfigFromEnv returns DefaultConfig with SCTP_* environment overrides
// applied. Invalid values are logged and ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	applyEnvironmentOverrides(&cfg)
	logConfigurationInfo(cfg)
	return cfg
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.TTL < minTTL || c.TTL > maxTTL {
		return fmt.Errorf("TTL %d not in [%d, %d]", c.TTL, minTTL, maxTTL)
	}
	if err := limits.ValidateSocketBuffer(c.ReceiveBuffer); err != nil {
		return fmt.Errorf("receive buffer: %w", err)
	}
	if err := limits.ValidateSocketBuffer(c.SendBuffer); err != nil {
		return fmt.Errorf("send buffer: %w", err)
	}
	if c.ReadBufferSize < limits.MinRawDatagram || c.ReadBufferSize > limits.MaxIPv4Packet {
		return fmt.Errorf("read buffer size %d not in [%d, %d]", c.ReadBufferSize, limits.MinRawDatagram, limits.MaxIPv4Packet)
	}
	return nil
}

// applyEnvironmentOverrides updates configuration based on environment variables.
func applyEnvironmentOverrides(cfg *Config) {
	parseTTLSetting(cfg)
	parseSocketBufferSetting(cfg)
	parseICMPSetting(cfg)
	parseLengthOrderSetting(cfg)
	parseLengthHeaderSetting(cfg)
}

func warnEnv(function, name, value string, err error, using interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    function,
		"env_var":     name,
		"value":       value,
		"error":       err.Error(),
		"using_value": using,
	}).Warn("Failed to parse environment variable, using default")
}

// parseTTLSetting updates TTL from SCTP_IP_TTL, bounded to [1, 255].
func parseTTLSetting(cfg *Config) {
	s := os.Getenv(EnvTTL)
	if s == "" {
		return
	}
	ttl, err := strconv.Atoi(s)
	if err == nil && (ttl < minTTL || ttl > maxTTL) {
		err = fmt.Errorf("value out of bounds [%d, %d]", minTTL, maxTTL)
	}
	if err != nil {
		warnEnv("parseTTLSetting", EnvTTL, s, err, cfg.TTL)
		return
	}
	cfg.TTL = ttl
}

// parseSocketBufferSetting updates both socket buffers from SCTP_SOCKET_BUFFER.
func parseSocketBufferSetting(cfg *Config) {
	s := os.Getenv(EnvSocketBuffer)
	if s == "" {
		return
	}
	size, err := strconv.Atoi(s)
	if err == nil {
		err = limits.ValidateSocketBuffer(size)
	}
	if err != nil {
		warnEnv("parseSocketBufferSetting", EnvSocketBuffer, s, err, cfg.ReceiveBuffer)
		return
	}
	cfg.ReceiveBuffer = size
	cfg.SendBuffer = size
}

// parseICMPSetting updates EnableICMP from SCTP_ENABLE_ICMP.
func parseICMPSetting(cfg *Config) {
	s := os.Getenv(EnvEnableICMP)
	if s == "" {
		return
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		warnEnv("parseICMPSetting", EnvEnableICMP, s, err, cfg.EnableICMP)
		return
	}
	cfg.EnableICMP = on
}

// parseLengthOrderSetting overrides the detected byte order from SCTP_IP_LENGTH_ORDER.
func parseLengthOrderSetting(cfg *Config) {
	s := os.Getenv(EnvLengthOrder)
	if s == "" {
		return
	}
	order, err := iphdr.ParseByteOrder(s)
	if err != nil {
		warnEnv("parseLengthOrderSetting", EnvLengthOrder, s, err, cfg.LengthFormat.Order.String())
		return
	}
	cfg.LengthFormat.Order = order
}

// parseLengthHeaderSetting overrides the detected header rule from SCTP_IP_LENGTH_INCLUDES_HEADER.
func parseLengthHeaderSetting(cfg *Config) {
	s := os.Getenv(EnvLengthIncludesHdr)
	if s == "" {
		return
	}
	included, err := strconv.ParseBool(s)
	if err != nil {
		warnEnv("parseLengthHeaderSetting", EnvLengthIncludesHdr, s, err, !cfg.LengthFormat.ExcludesHeader)
		return
	}
	cfg.LengthFormat.ExcludesHeader = !included
}

// logConfigurationInfo logs the final configuration settings for debugging purposes.
func logConfigurationInfo(cfg Config) {
	logrus.WithFields(logrus.Fields{
		"function":       "ConfigFromEnv",
		"ttl":            cfg.TTL,
		"receive_buffer": cfg.ReceiveBuffer,
		"send_buffer":    cfg.SendBuffer,
		"read_buffer":    cfg.ReadBufferSize,
		"enable_icmp":    cfg.EnableICMP,
		"length_format":  cfg.LengthFormat.String(),
	}).Info("Resolved raw transport configuration")
}
