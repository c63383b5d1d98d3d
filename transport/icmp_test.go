package transport

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/opd-ai/sctptransport/iphdr"
)

// icmpError builds the datagram a router at reporter sends back when
// the quoted datagram cannot be delivered. Only the first 8 bytes of the
// quoted payload are kept, as RFC 792 requires.
func icmpError(t *testing.T, typ icmp.Type, code int, reporter netip.Addr, quoted []byte) []byte {
	t.Helper()
	return icmpErrorIn(t, iphdr.Standard, typ, code, reporter, quoted)
}

// icmpErrorIn is icmpError with the outer header in format f, as the
// kernel hands it to a raw ICMP socket.
func icmpErrorIn(t *testing.T, f iphdr.LengthFormat, typ icmp.Type, code int, reporter netip.Addr, quoted []byte) []byte {
	t.Helper()
	hl := int(quoted[0]&0x0f) * 4
	if len(quoted) > hl+8 {
		quoted = quoted[:hl+8]
	}

	var body icmp.MessageBody = &icmp.DstUnreach{Data: quoted}
	if typ == ipv4.ICMPTypeTimeExceeded {
		body = &icmp.TimeExceeded{Data: quoted}
	}
	msg, err := (&icmp.Message{Type: typ, Code: code, Body: body}).Marshal(nil)
	require.NoError(t, err)

	hdr, err := iphdr.Build(reporter, testLocal, len(msg), 0, iphdr.ProtocolICMP, f)
	require.NoError(t, err)
	if f.ExcludesHeader {
		f.PutTotalLength(hdr, uint16(len(msg)))
	}
	return append(hdr, msg...)
}

// sentDatagram is an SCTP datagram the local endpoint on port 5000 sent.
func sentDatagram(t *testing.T) []byte {
	return rawDatagram(t, iphdr.Standard, testPacket(5000, 7000), testLocal, testRemote)
}

func newICMPTestTransport(t *testing.T) (*fakeRawSocket, *recordingEndpoint) {
	t.Helper()
	rt, _, icmpSock := newTestRawTransport(t, testConfig(iphdr.Standard))
	require.NoError(t, rt.EnableICMP())
	ep := newRecordingEndpoint(5000)
	require.NoError(t, rt.Register(ep))
	return icmpSock, ep
}

func TestICMPDispatch(t *testing.T) {
	for _, code := range []uint8{ICMPCodeProtocolUnreachable, ICMPCodeFragmentationNeeded} {
		icmpSock, ep := newICMPTestTransport(t)

		icmpSock.Inject(icmpError(t, ipv4.ICMPTypeDestinationUnreachable, int(code), testRouter, sentDatagram(t)), testRouter)
		require.True(t, ep.wait(deliveryTimeout), "code %d not delivered", code)

		_, icmps, _ := ep.snapshot()
		require.Len(t, icmps, 1)
		got := icmps[0]
		assert.Equal(t, code, got.code)
		assert.Equal(t, testLocal, got.src)
		assert.Equal(t, testRemote, got.dst)
		assert.Equal(t, uint16(5000), got.pkt.SrcPort)
		assert.Equal(t, uint16(7000), got.pkt.DstPort)
		assert.Equal(t, uint32(0xdeadbeef), got.pkt.VerificationTag)
		assert.Empty(t, got.pkt.Chunks)
	}
}

func TestICMPHostNormalizedFormat(t *testing.T) {
	f := iphdr.HostNormalized
	rt, _, icmpSock := newTestRawTransport(t, testConfig(f))
	require.NoError(t, rt.EnableICMP())
	ep := newRecordingEndpoint(5000)
	require.NoError(t, rt.Register(ep))

	// The quoted datagram keeps network order; only the outer header
	// follows the host rule.
	icmpSock.Inject(icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 4, testRouter, sentDatagram(t)), testRouter)
	icmpSock.Inject(icmpErrorIn(t, f, ipv4.ICMPTypeDestinationUnreachable, 2, testRouter, sentDatagram(t)), testRouter)
	require.True(t, ep.wait(deliveryTimeout), "ICMP error not delivered")

	_, icmps, _ := ep.snapshot()
	require.Len(t, icmps, 1)
	got := icmps[0]
	assert.Equal(t, ICMPCodeProtocolUnreachable, got.code)
	assert.Equal(t, testLocal, got.src)
	assert.Equal(t, testRemote, got.dst)
	assert.Equal(t, uint16(5000), got.pkt.SrcPort)
}

func TestICMPIgnored(t *testing.T) {
	notSCTP := sentDatagram(t)
	notSCTP[9] = 17

	unknownPort := rawDatagram(t, iphdr.Standard, testPacket(5999, 7000), testLocal, testRemote)

	tests := []struct {
		name     string
		datagram []byte
		src      netip.Addr
	}{
		{
			name:     "net unreachable",
			datagram: icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 0, testRouter, sentDatagram(t)),
			src:      testRouter,
		},
		{
			name:     "port unreachable",
			datagram: icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 3, testRouter, sentDatagram(t)),
			src:      testRouter,
		},
		{
			name:     "time exceeded",
			datagram: icmpError(t, ipv4.ICMPTypeTimeExceeded, 0, testRouter, sentDatagram(t)),
			src:      testRouter,
		},
		{
			name:     "quoted datagram not SCTP",
			datagram: icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 2, testRouter, notSCTP),
			src:      testRouter,
		},
		{
			name:     "quoted source port not registered",
			datagram: icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 2, testRouter, unknownPort),
			src:      testRouter,
		},
		{
			name:     "loopback reporter",
			datagram: icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 2, testRouter, sentDatagram(t)),
			src:      netip.MustParseAddr("127.0.0.1"),
		},
		{
			name:     "short datagram",
			datagram: icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 2, testRouter, sentDatagram(t))[:41],
			src:      testRouter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			icmpSock, ep := newICMPTestTransport(t)

			// Reads are handled in order, so once the valid error behind
			// the ignored one is delivered the ignored one has been seen.
			icmpSock.Inject(tt.datagram, tt.src)
			icmpSock.Inject(icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 4, testRouter, sentDatagram(t)), testRouter)
			require.True(t, ep.wait(deliveryTimeout))

			_, icmps, _ := ep.snapshot()
			require.Len(t, icmps, 1)
			assert.Equal(t, ICMPCodeFragmentationNeeded, icmps[0].code)
		})
	}
}

func TestICMPNotEnabledByDefault(t *testing.T) {
	rt, sock, icmpSock := newTestRawTransport(t, testConfig(iphdr.Standard))
	ep := newRecordingEndpoint(5000)
	require.NoError(t, rt.Register(ep))

	icmpSock.Inject(icmpError(t, ipv4.ICMPTypeDestinationUnreachable, 2, testRouter, sentDatagram(t)), testRouter)
	sock.Inject(rawDatagram(t, iphdr.Standard, testPacket(7000, 5000), testRemote, testLocal), testRemote)
	require.True(t, ep.wait(deliveryTimeout))

	packets, icmps, _ := ep.snapshot()
	assert.Len(t, packets, 1)
	assert.Empty(t, icmps)
	assert.Len(t, icmpSock.in, 1, "ICMP socket must not be read before EnableICMP")
}
