package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/sctptransport/iphdr"
	"github.com/opd-ai/sctptransport/limits"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 64, cfg.TTL)
	assert.Equal(t, 256*1024, cfg.ReceiveBuffer)
	assert.Equal(t, 256*1024, cfg.SendBuffer)
	assert.Equal(t, 4096, cfg.ReadBufferSize)
	assert.True(t, cfg.EnableICMP)
	assert.Equal(t, iphdr.Platform(), cfg.LengthFormat)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvTTL, "32")
	t.Setenv(EnvSocketBuffer, "65536")
	t.Setenv(EnvEnableICMP, "false")
	t.Setenv(EnvLengthOrder, "little-endian")
	t.Setenv(EnvLengthIncludesHdr, "false")

	cfg := ConfigFromEnv()

	assert.Equal(t, 32, cfg.TTL)
	assert.Equal(t, 65536, cfg.ReceiveBuffer)
	assert.Equal(t, 65536, cfg.SendBuffer)
	assert.False(t, cfg.EnableICMP)
	assert.Equal(t, iphdr.HostNormalized, cfg.LengthFormat)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"ttl not a number", EnvTTL, "abc"},
		{"ttl zero", EnvTTL, "0"},
		{"ttl too large", EnvTTL, "256"},
		{"buffer too small", EnvSocketBuffer, "16"},
		{"buffer not a number", EnvSocketBuffer, "big"},
		{"icmp not a bool", EnvEnableICMP, "sometimes"},
		{"unknown order", EnvLengthOrder, "middle"},
		{"header flag not a bool", EnvLengthIncludesHdr, "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			assert.Equal(t, DefaultConfig(), ConfigFromEnv())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"ttl zero", func(c *Config) { c.TTL = 0 }},
		{"ttl too large", func(c *Config) { c.TTL = 300 }},
		{"receive buffer too small", func(c *Config) { c.ReceiveBuffer = limits.MinSocketBufferSize - 1 }},
		{"send buffer too large", func(c *Config) { c.SendBuffer = limits.MaxSocketBufferSize + 1 }},
		{"read buffer below raw floor", func(c *Config) { c.ReadBufferSize = limits.MinRawDatagram - 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
