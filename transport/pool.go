package transport

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sctptransport/sctp"
)

// Ephemeral port range used for automatic allocation.
const (
	PoolStart uint16 = 0xC000
	PoolEnd   uint16 = 0xFFFF

	// PoolSize bounds the number of ports one automatic allocation tries.
	PoolSize = int(PoolEnd - PoolStart)
)

// PortPool maps local ports to endpoints and dispatches decoded packets.
// Each transport owns exactly one pool. It is safe for concurrent use;
// endpoint callbacks run without the pool lock held, one at a time.
type PortPool struct {
	name string

	mu     sync.RWMutex
	ports  map[uint16]Endpoint
	cursor uint16

	// deliverMu serializes endpoint notifications.
	deliverMu sync.Mutex
}

// NewPortPool creates an empty pool. name labels log entries.
func NewPortPool(name string) *PortPool {
	return &PortPool{
		name:   name,
		ports:  make(map[uint16]Endpoint),
		cursor: PoolStart,
	}
}

// Allocate reports which port a registration asking for desired would get.
// A desired port in (0, 65535) is returned only if it is free. 0 and 65535
// select an ephemeral port by probing from the rolling cursor.
func (p *PortPool) Allocate(desired uint16) (uint16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocateLocked(desired)
}

func (p *PortPool) allocateLocked(desired uint16) (uint16, bool) {
	if desired > 0 && desired < PoolEnd {
		if _, taken := p.ports[desired]; taken {
			return 0, false
		}
		return desired, true
	}

	attempt := 0
	for {
		if _, taken := p.ports[p.cursor]; !taken {
			return p.cursor, true
		}
		attempt++
		if attempt > PoolSize {
			return 0, false
		}
		if p.cursor == PoolEnd {
			p.cursor = PoolStart
		} else {
			p.cursor++
		}
	}
}

// Register assigns a port to ep and adds it to the pool. On failure ep is
// left untouched.
func (p *PortPool) Register(ep Endpoint) error {
	if ep == nil {
		return ErrNilEndpoint
	}
	desired := ep.LocalPort()

	p.mu.Lock()
	port, ok := p.allocateLocked(desired)
	if ok {
		p.ports[port] = ep
	}
	p.mu.Unlock()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":  "PortPool.Register",
			"transport": p.name,
			"desired":   desired,
		}).Debug("Port allocation failed")
		if desired > 0 && desired < PoolEnd {
			return fmt.Errorf("%w: %d", ErrPortInUse, desired)
		}
		return ErrPortsExhausted
	}

	ep.SetLocalPort(port)
	logrus.WithFields(logrus.Fields{
		"function":  "PortPool.Register",
		"transport": p.name,
		"port":      port,
	}).Debug("Endpoint registered")
	return nil
}

// Unallocate removes port from the pool. It is a no-op for free ports.
func (p *PortPool) Unallocate(port uint16) {
	p.mu.Lock()
	delete(p.ports, port)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "PortPool.Unallocate",
		"transport": p.name,
		"port":      port,
	}).Debug("Port released")
}

// Lookup returns the endpoint registered on port, or nil.
func (p *PortPool) Lookup(port uint16) Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ports[port]
}

// Len returns the number of registered endpoints.
func (p *PortPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ports)
}

// Drain empties the pool and returns the endpoints it held.
func (p *PortPool) Drain() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	eps := make([]Endpoint, 0, len(p.ports))
	for port, ep := range p.ports {
		eps = append(eps, ep)
		delete(p.ports, port)
	}
	return eps
}

// ReceivePacket hands pkt to the endpoint registered on its destination
// port. A nil packet (failed decode) is ignored; a packet for an unknown
// port is out of the blue and dropped.
func (p *PortPool) ReceivePacket(pkt *sctp.Packet, src, dst netip.Addr) {
	if pkt == nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "PortPool.ReceivePacket",
		"src":      fmt.Sprintf("%v:%d", src, pkt.SrcPort),
		"dst":      fmt.Sprintf("%v:%d", dst, pkt.DstPort),
		"chunks":   len(pkt.Chunks),
	}).Debug("Packet received")

	ep := p.Lookup(pkt.DstPort)
	if ep == nil {
		logrus.WithFields(logrus.Fields{
			"function":  "PortPool.ReceivePacket",
			"transport": p.name,
			"port":      pkt.DstPort,
		}).Debug("Out of the blue packet dropped")
		return
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	ep.OnPacket(pkt, src, dst)
}

// ReceiveICMP hands an ICMP error to the endpoint that sent the quoted
// packet, found by its source port. Unmatched errors are dropped.
func (p *PortPool) ReceiveICMP(pkt *sctp.Packet, src, dst netip.Addr, code uint8) {
	if pkt == nil {
		return
	}
	ep := p.Lookup(pkt.SrcPort)
	if ep == nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "PortPool.ReceiveICMP",
		"port":     pkt.SrcPort,
		"dst":      dst.String(),
		"code":     code,
	}).Debug("ICMP error matched endpoint")

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	ep.OnICMP(pkt, src, dst, code)
}
