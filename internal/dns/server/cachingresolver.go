package server

import (
	"github.com/nimbusdns/nimbus/internal/dns/cache"
	"github.com/nimbusdns/nimbus/internal/dns/packet"
	"github.com/nimbusdns/nimbus/internal/dns/resolver"
)

// CachingResolver adapts a cache.Cache sitting in front of an upstream
// resolver.Resolver into the resolver.Resolver shape a Recurser needs,
// wiring the TTL-based positive/negative cache into the server's handler
// composition instead of only its standalone recursion path.
type CachingResolver struct {
	Cache    *cache.Cache
	Upstream resolver.Resolver
}

func (c *CachingResolver) Resolve(pkt *packet.DNSPacket) (*packet.DNSPacket, error) {
	upstream := cache.LookuperFunc(c.Upstream.SQuery)
	return c.Cache.Resolve(pkt, upstream), nil
}

func (c *CachingResolver) SQuery(name string, rtype packet.QueryType) (*packet.DNSPacket, error) {
	req := packet.NewDNSPacket()
	req.Header.RecursionDesired = true
	req.Questions = append(req.Questions, *packet.NewDNSQuestion(name, rtype))
	return c.Resolve(req)
}
