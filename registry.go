package sctptransport

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sctptransport/sctp"
	"github.com/opd-ai/sctptransport/transport"
)

// RawOpener builds the raw transport of a Registry.
type RawOpener func(cfg transport.Config, codec sctp.Codec) (*transport.RawTransport, error)

// Option configures a Registry.
type Option func(*Registry)

// WithCodec sets the packet codec handed to every transport the registry
// creates. The default is sctp.GopacketCodec.
func WithCodec(codec sctp.Codec) Option {
	return func(r *Registry) {
		r.codec = codec
	}
}

// WithRawOpener replaces the function that opens the raw transport.
func WithRawOpener(open RawOpener) Option {
	return func(r *Registry) {
		r.openRaw = open
	}
}

// Registry binds endpoints to transports. Endpoints that carry a UDP
// socket share one UDPTransport per socket; all others share a single
// RawTransport, opened on first use.
type Registry struct {
	mu      sync.Mutex
	cfg     transport.Config
	codec   sctp.Codec
	openRaw RawOpener

	raw *transport.RawTransport
	udp map[transport.DatagramConn]*transport.UDPTransport
}

// NewRegistry creates an empty registry. No socket is opened until the
// first Register.
func NewRegistry(cfg transport.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:     cfg,
		codec:   sctp.GopacketCodec{},
		openRaw: transport.NewRawTransport,
		udp:     make(map[transport.DatagramConn]*transport.UDPTransport),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register selects the transport for ep, creating it if needed, and
// allocates ep's port on it. It returns the transport ep is bound to.
func (r *Registry) Register(ep transport.Endpoint) (transport.Transport, error) {
	if ep == nil {
		return nil, transport.ErrNilEndpoint
	}

	var (
		t   transport.Transport
		err error
	)
	if uep, ok := ep.(transport.UDPEndpoint); ok && uep.UDPConn() != nil {
		t = r.udpTransport(uep.UDPConn())
	} else {
		t, err = r.rawTransport()
		if err != nil {
			return nil, err
		}
	}

	if err := t.Register(ep); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Registry.Register",
			"port":     ep.LocalPort(),
			"error":    err.Error(),
		}).Warn("Endpoint registration failed")
		return nil, err
	}
	return t, nil
}

// udpTransport returns the transport of conn, creating it on first use.
// The transport removes itself from the registry when it closes.
func (r *Registry) udpTransport(conn transport.DatagramConn) *transport.UDPTransport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ut, ok := r.udp[conn]; ok {
		return ut
	}

	var ut *transport.UDPTransport
	ut = transport.NewUDPTransport(conn, r.codec, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.udp[conn] == ut {
			delete(r.udp, conn)
		}
	})
	r.udp[conn] = ut

	logrus.WithFields(logrus.Fields{
		"function":   "Registry.udpTransport",
		"transports": len(r.udp),
	}).Debug("UDP transport created")
	return ut
}

// rawTransport returns the raw transport, opening it and enabling ICMP on
// first use. A failed open is not cached.
func (r *Registry) rawTransport() (*transport.RawTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.raw != nil {
		return r.raw, nil
	}
	rt, err := r.openRaw(r.cfg, r.codec)
	if err != nil {
		return nil, err
	}
	if r.cfg.EnableICMP {
		if err := rt.EnableICMP(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Registry.rawTransport",
				"error":    err.Error(),
			}).Warn("ICMP errors will not be reported")
		}
	}
	r.raw = rt
	return rt, nil
}

// Transports returns the number of live transports.
func (r *Registry) Transports() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.udp)
	if r.raw != nil {
		n++
	}
	return n
}

// Close closes the raw transport. UDP transports end with their sockets,
// which belong to the caller.
func (r *Registry) Close() error {
	r.mu.Lock()
	rt := r.raw
	r.raw = nil
	r.mu.Unlock()

	if rt == nil {
		return nil
	}
	return rt.Close()
}
