package transport

import (
	"net/netip"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/opd-ai/sctptransport/iphdr"
	"github.com/opd-ai/sctptransport/limits"
)

// ICMP Destination Unreachable codes passed to Endpoint.OnICMP.
const (
	ICMPCodeProtocolUnreachable uint8 = 2
	ICMPCodeFragmentationNeeded uint8 = 4
)

// handleICMP matches a Destination Unreachable error against the SCTP
// packet it quotes and notifies the endpoint that sent it.
func (t *RawTransport) handleICMP(b []byte, src netip.Addr) {
	if src.IsLoopback() {
		return
	}
	if len(b) < limits.MinICMPDatagram {
		return
	}

	outer, err := iphdr.Parse(b, t.cfg.LengthFormat)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.handleICMP",
			"src":      src.String(),
			"error":    err.Error(),
		}).Debug("Dropping ICMP datagram with bad IPv4 header")
		return
	}

	msg, err := icmp.ParseMessage(iphdr.ProtocolICMP, b[outer.Len:])
	if err != nil {
		return
	}
	if msg.Type != ipv4.ICMPTypeDestinationUnreachable {
		return
	}
	code := uint8(msg.Code)
	if code != ICMPCodeProtocolUnreachable && code != ICMPCodeFragmentationNeeded {
		return
	}
	body, ok := msg.Body.(*icmp.DstUnreach)
	if !ok {
		return
	}

	inner, err := iphdr.ParseEmbedded(body.Data)
	if err != nil || inner.Protocol != iphdr.ProtocolSCTP {
		return
	}
	pkt, err := t.codec.DecodeHeader(body.Data[inner.Len:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RawTransport.handleICMP",
			"src":      src.String(),
			"error":    err.Error(),
		}).Debug("ICMP error quotes too little of the SCTP header")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "RawTransport.handleICMP",
		"reporter": src.String(),
		"dst":      inner.Dst.String(),
		"code":     code,
	}).Debug("Destination unreachable for SCTP packet")
	t.pool.ReceiveICMP(pkt, inner.Src, inner.Dst, code)
}
