package server

import (
	"context"
	"net"
	"time"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
	"github.com/nimbusdns/nimbus/internal/dns/resolver"
	"github.com/nimbusdns/nimbus/internal/dns/zone"
)

// ZoneHandler adapts a *zone.Zone (which already knows its own origin and
// ignores the caller's source address) to the generic Handler interface, so
// authoritative zones and the handler-composition types below can be mixed
// freely in a Server's zone table.
type ZoneHandler struct {
	Zone *zone.Zone
}

func (h *ZoneHandler) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket {
	return h.Zone.Handle(ctx, q, pkt, internal)
}

// Chain tries each handler in order and returns the first non-nil response,
// the Go counterpart of ldd/server.py's chain class.
type Chain struct {
	Handlers []Handler
}

func (c *Chain) Add(h Handler) {
	c.Handlers = append(c.Handlers, h)
}

func (c *Chain) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket {
	for _, h := range c.Handlers {
		if resp := h.Handle(ctx, q, pkt, origin, src, internal); resp != nil {
			return resp
		}
	}
	return nil
}

// Recurser delegates to a resolver.Resolver, the Go counterpart of
// ldd/server.py's recurser class.
type Recurser struct {
	Resolver resolver.Resolver
}

func (r *Recurser) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket {
	resp, err := r.Resolver.Resolve(pkt)
	if err != nil {
		return nil
	}
	return resp
}

// Forwarder proxies a query verbatim to a single upstream nameserver over a
// fresh UDP socket, retrying up to Retries times before giving up. Ported
// from ldd/server.py's forwarder class; select.poll(timeout) becomes a
// read deadline on the Go socket.
type Forwarder struct {
	Nameserver string
	Timeout    time.Duration
	Retries    int
}

func (f *Forwarder) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return 2 * time.Second
}

func (f *Forwarder) retries() int {
	if f.Retries > 0 {
		return f.Retries
	}
	return 3
}

func (f *Forwarder) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket {
	conn, err := net.Dial("udp", f.Nameserver)
	if err != nil {
		return nil
	}
	defer conn.Close()

	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	buf.HasNames = true
	if err := pkt.Write(buf); err != nil {
		return nil
	}
	out := buf.Buf[:buf.Position()]

	respBuf := make([]byte, 65536)
	for i := 0; i < f.retries(); i++ {
		if _, err := conn.Write(out); err != nil {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.timeout()))
		n, err := conn.Read(respBuf)
		if err != nil {
			continue
		}
		pb := packet.GetBuffer()
		pb.Load(respBuf[:n])
		resp := packet.NewDNSPacket()
		if err := resp.FromBuffer(pb); err != nil {
			packet.PutBuffer(pb)
			continue
		}
		packet.PutBuffer(pb)
		return resp
	}
	return nil
}

// addrMatch pairs a CIDR prefix with the handler that serves source
// addresses falling inside it.
type addrMatch struct {
	network *net.IPNet
	prefLen int
	handler Handler
}

// AddrFilter dispatches to a sub-handler by the longest-matching CIDR
// prefix of the query's source address, falling back to Default when no
// matcher applies. Ported from ldd/filters.py's addrfilter class.
type AddrFilter struct {
	Default  Handler
	matchers []addrMatch
}

// AddMatcher registers handler for source addresses inside cidr, e.g.
// "10.0.0.0/8".
func (a *AddrFilter) AddMatcher(cidr string, handler Handler) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return err
	}
	ones, _ := network.Mask.Size()
	a.matchers = append(a.matchers, addrMatch{network: network, prefLen: ones, handler: handler})
	return nil
}

func (a *AddrFilter) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket {
	host, _, err := net.SplitHostPort(src.String())
	if err != nil {
		host = src.String()
	}
	ip := net.ParseIP(host)

	matchLen := -1
	match := a.Default
	if ip != nil {
		for _, m := range a.matchers {
			if m.network.Contains(ip) && m.prefLen > matchLen {
				matchLen = m.prefLen
				match = m.handler
			}
		}
	}
	if match == nil {
		return nil
	}
	return match.Handle(ctx, q, pkt, origin, src, internal)
}
