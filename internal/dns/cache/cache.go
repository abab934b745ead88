// Package cache implements the response cache sitting in front of the
// iterative resolver: a single map from domain name to either a positive
// list of cached RRs or a negative (NXDOMAIN) mark, guarded by one mutex
// held for the duration of each read or read-modify-write sequence.
package cache

import (
	"sync"
	"time"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
	"github.com/nimbusdns/nimbus/internal/infrastructure/metrics"
)

const defaultNegativeTTL = 300

// negativeMark records an NXDOMAIN result: an expiry time and the
// authority-section SOA the upstream response carried.
type negativeMark struct {
	expire int64
	auth   []packet.DNSRecord
}

// positiveEntry is one cached RR together with the NS set of the response
// that delivered it, used to attach authority+glue on a cache hit.
type positiveEntry struct {
	expire int64
	rtype  packet.QueryType
	rr     packet.DNSRecord
	authNS []packet.DNSRecord
}

// Cache is a single-mutex name-keyed response cache.
type Cache struct {
	mu    sync.Mutex
	store map[string]interface{} // negativeMark or []positiveEntry
	now   func() int64
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{store: make(map[string]interface{}), now: unixNow}
}

func unixNow() int64 { return time.Now().Unix() }

// Entry is a cache hit: the RR with its remaining TTL substituted in, and
// the NS set that accompanied it when it was stored.
type Entry struct {
	RR     packet.DNSRecord
	AuthNS []packet.DNSRecord
}

// LookupResult is the outcome of a Lookup call.
type LookupResult struct {
	Negative bool
	Auth     []packet.DNSRecord // valid when Negative
	Entries  []Entry
}

// Lookup returns the cached entries for name matching rtype. rtype may be
// packet.ANY to match every cached type, or a specific type. Expired
// positive entries are dropped during filtering; an expired negative mark
// is deleted and reported as an empty (non-negative) result.
func (c *Cache) Lookup(name string, rtype packet.QueryType) LookupResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store[name]
	if !ok {
		return LookupResult{}
	}
	now := c.now()

	if mark, ok := v.(negativeMark); ok {
		if mark.expire < now {
			delete(c.store, name)
			return LookupResult{}
		}
		return LookupResult{Negative: true, Auth: mark.auth}
	}

	entries := v.([]positiveEntry)
	var res LookupResult
	for _, e := range entries {
		if e.expire <= now {
			continue
		}
		if rtype != packet.ANY && e.rtype != rtype {
			continue
		}
		rr := e.rr
		rr.TTL = uint32(e.expire - now)
		res.Entries = append(res.Entries, Entry{RR: rr, AuthNS: e.authNS})
	}
	return res
}

// Evict drops every cached entry for name, positive or negative. Used when
// an external event (a DDNS update applied on another node, signalled over
// the cache-invalidation channel) makes the cached data stale.
func (c *Cache) Evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, name)
}

// StoreNegative records an NXDOMAIN result for name, expiring after ttl
// seconds (the response's SOA minimum, or 300 if the response carried no
// SOA).
func (c *Cache) StoreNegative(name string, ttl uint32, auth []packet.DNSRecord) {
	if ttl == 0 {
		ttl = defaultNegativeTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[name] = negativeMark{expire: c.now() + int64(ttl), auth: auth}
}

// StorePositive records every RR carried by resp (answers, authorities and
// additionals) into the cache, first invalidating any previously cached
// entries of a type the response freshly supersedes for each name it
// touches.
func (c *Cache) StorePositive(resp *packet.DNSPacket) {
	all := resp.AllRRs()
	if len(all) == 0 {
		return
	}

	var nsSet []packet.DNSRecord
	for _, rr := range resp.Authorities {
		if rr.Type == packet.NS {
			nsSet = append(nsSet, rr)
		}
	}

	touchedTypes := make(map[packet.QueryType]bool)
	touchedNames := make(map[string]bool)
	for _, rr := range all {
		touchedTypes[rr.Type] = true
		touchedNames[rr.Name] = true
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for name := range touchedNames {
		existing, ok := c.store[name]
		if !ok {
			continue
		}
		entries, ok := existing.([]positiveEntry)
		if !ok {
			continue // a negative mark is superseded wholesale below via overwrite path
		}
		kept := entries[:0:0]
		for _, e := range entries {
			if !touchedTypes[e.rtype] {
				kept = append(kept, e)
			}
		}
		c.store[name] = kept
	}

	for _, rr := range all {
		existing, _ := c.store[rr.Name].([]positiveEntry)
		existing = append(existing, positiveEntry{
			expire: now + int64(rr.TTL),
			rtype:  rr.Type,
			rr:     rr,
			authNS: nsSet,
		})
		c.store[rr.Name] = existing
	}
}

// Lookuper performs an upstream query for (name, rtype) when the cache
// cannot answer locally, returning ErrServFail or ErrUnreachable (or
// wrapping them) for transient upstream failures, which Resolve swallows.
type Lookuper interface {
	Lookup(name string, rtype packet.QueryType) (*packet.DNSPacket, error)
}

// LookuperFunc adapts a plain function to Lookuper.
type LookuperFunc func(name string, rtype packet.QueryType) (*packet.DNSPacket, error)

// Lookup implements Lookuper.
func (f LookuperFunc) Lookup(name string, rtype packet.QueryType) (*packet.DNSPacket, error) {
	return f(name, rtype)
}

func soaMinTTL(rrs []packet.DNSRecord) uint32 {
	for _, rr := range rrs {
		if rr.Type == packet.SOA {
			return rr.Minimum
		}
	}
	return defaultNegativeTTL
}

func addCached(res *packet.DNSPacket, entries []Entry, c *Cache) {
	for _, e := range entries {
		res.AddAnswer(e.RR)
		for _, ns := range e.AuthNS {
			res.AddAuthority(ns)
			glue := c.Lookup(ns.Host, packet.ANY)
			for _, g := range glue.Entries {
				if g.RR.Type == packet.A || g.RR.Type == packet.AAAA {
					res.AddResource(g.RR)
				}
			}
		}
	}
}

// Resolve answers req using cached data where possible, calling upstream
// for cache misses. It mirrors the original resolver's per-question loop:
// a CNAME found in cache is chased locally before going upstream; a
// negative (NXDOMAIN) cache hit short-circuits only for single-question
// packets, matching the documented "multi-question NXDOMAIN silently
// continues" quirk.
func (c *Cache) Resolve(req *packet.DNSPacket, upstream Lookuper) *packet.DNSPacket {
	res := packet.ResponseFor(req, packet.RcodeNoError)
	single := len(req.Questions) == 1

	for _, q := range req.Questions {
		name := q.Name
		rtype := q.QType

		var cis LookupResult
		first := true
		for {
			cis = c.Lookup(name, rtype)
			if first {
				first = false
				if cis.Negative || len(cis.Entries) > 0 {
					metrics.CacheOperations.WithLabelValues("L1", "hit").Inc()
				} else {
					metrics.CacheOperations.WithLabelValues("L1", "miss").Inc()
				}
			}
			if cis.Negative {
				if single {
					res.Header.ResCode = packet.RcodeNxDomain
					res.Authorities = cis.Auth
					return res
				}
				break
			}
			if len(cis.Entries) == 0 {
				cnameHit := c.Lookup(name, packet.CNAME)
				if cnameHit.Negative {
					break
				}
				if len(cnameHit.Entries) > 0 {
					addCached(res, cnameHit.Entries, c)
					name = cnameHit.Entries[0].RR.Host
					continue
				}
			}
			break
		}

		if cis.Negative || len(cis.Entries) == 0 {
			tres, err := upstream.Lookup(name, rtype)
			if err != nil {
				tres = nil
			}
			if tres == nil {
				if single {
					res.Header.ResCode = packet.RcodeServFail
					return res
				}
				continue
			}
			if tres.Header.ResCode == packet.RcodeNxDomain {
				c.StoreNegative(name, soaMinTTL(tres.Authorities), tres.Authorities)
				if single {
					res.Header.ResCode = packet.RcodeNxDomain
					res.Authorities = tres.Authorities
					return res
				}
				continue
			}
			if tres.Header.ResCode == packet.RcodeNoError {
				c.StorePositive(tres)
				res.Answers = append(res.Answers, tres.Answers...)
				res.Authorities = append(res.Authorities, tres.Authorities...)
				res.Resources = append(res.Resources, tres.Resources...)
			}
		} else {
			addCached(res, cis.Entries, c)
		}
	}
	return res
}
