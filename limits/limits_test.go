package limits

import (
	"errors"
	"testing"
)

// TestFloorsAreConsistent verifies that the drop floors agree with the header sizes
// they are derived from.
func TestFloorsAreConsistent(t *testing.T) {
	if MinRawDatagram != IPv4HeaderLen+SCTPCommonHeaderLen+4 {
		t.Errorf("MinRawDatagram = %d, want IPv4 header + SCTP common header + chunk header", MinRawDatagram)
	}
	if MinICMPDatagram < IPv4HeaderLen+ICMPHeaderLen {
		t.Errorf("MinICMPDatagram = %d is below IPv4 + ICMP header", MinICMPDatagram)
	}
	if MaxSCTPPayload+IPv4HeaderLen != MaxIPv4Packet {
		t.Errorf("MaxSCTPPayload + header = %d, want %d", MaxSCTPPayload+IPv4HeaderLen, MaxIPv4Packet)
	}
}

func TestValidatePayloadSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, ErrPacketEmpty},
		{"negative", -1, ErrPacketEmpty},
		{"minimum", 1, nil},
		{"common header", SCTPCommonHeaderLen, nil},
		{"at limit", MaxSCTPPayload, nil},
		{"over limit", MaxSCTPPayload + 1, ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayloadSize(tt.size)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePayloadSize(%d) = %v, want %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTTL(t *testing.T) {
	for _, ttl := range []int{1, 64, 254} {
		if err := ValidateTTL(ttl); err != nil {
			t.Errorf("ValidateTTL(%d) unexpected error: %v", ttl, err)
		}
	}
	for _, ttl := range []int{-1, 0, 255, 256} {
		if err := ValidateTTL(ttl); !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("ValidateTTL(%d) = %v, want ErrInvalidTTL", ttl, err)
		}
	}
}

func TestValidateSocketBuffer(t *testing.T) {
	if err := ValidateSocketBuffer(SocketBufferSize); err != nil {
		t.Errorf("default socket buffer rejected: %v", err)
	}
	if err := ValidateSocketBuffer(MinSocketBufferSize - 1); err == nil {
		t.Error("Expected error for undersized buffer")
	}
	if err := ValidateSocketBuffer(MaxSocketBufferSize + 1); err == nil {
		t.Error("Expected error for oversized buffer")
	}
}
