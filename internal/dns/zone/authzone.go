package zone

import (
	"context"
	"strings"

	"github.com/nimbusdns/nimbus/internal/core/domain"
	"github.com/nimbusdns/nimbus/internal/dns/packet"
	"github.com/nimbusdns/nimbus/internal/dns/resolver"
)

// Question is the (name, rtype) pair an inner zone handler answers —
// narrower than packet.DNSQuestion since class is implicitly IN.
type Question struct {
	Name  string
	RType packet.QueryType
}

// within reports whether name is origin itself or a strict descendant of
// it, comparing labels case-insensitively per RFC1035 §2.3.3 via
// domain.Name's label-wise Contains.
func within(name, origin string) bool {
	return domain.NewName(origin).Contains(domain.NewName(name))
}

// subtractOrigin strips origin from the tail of name, returning the
// unrooted (no trailing dot) remainder used as a store key for records
// held relative to their zone's apex. The apex itself subtracts to "".
func subtractOrigin(name, origin string) string {
	sub, ok := domain.NewName(name).Sub(domain.NewName(origin))
	if !ok || len(sub.Labels) == 0 {
		return ""
	}
	return sub.String()
}

// rootify qualifies any unrooted (no trailing dot) name carried by rrset
// against origin, in place: the head name itself, and any domain-typed
// data field (NS/CNAME/PTR/MX/SRV target, SOA mname/rname).
func rootify(rrset []packet.DNSRecord, origin string) {
	originName := domain.NewName(origin)
	qualify := func(relative string) string {
		if relative == "" || strings.HasSuffix(relative, ".") {
			return relative
		}
		rel := domain.NewName(relative)
		full := domain.Name{Labels: append(append([]string{}, rel.Labels...), originName.Labels...), Rooted: true}
		return full.String()
	}

	for i := range rrset {
		rr := &rrset[i]
		rr.Name = qualify(rr.Name)
		switch rr.Type {
		case packet.NS, packet.CNAME, packet.PTR, packet.MX, packet.SRV:
			rr.Host = qualify(rr.Host)
		case packet.SOA:
			rr.MName = qualify(rr.MName)
			rr.RName = qualify(rr.RName)
		}
	}
}

// AuthHandler answers a single (name, rtype) question directly from a
// Store: the query-side half of the RFC 2136 combined handler.
type AuthHandler struct {
	Store Store
}

// Handle looks up q.Name in the store, falling back to the name stored
// relative to origin, rootifies the result, and filters it to RRs
// matching q.RType or CNAME. ok is false only when the name itself has no
// stored RRset — an existing name with no matching rtype still reports
// ok=true with an empty rrset, matching the query side of the original
// combined handler exactly.
func (h *AuthHandler) Handle(ctx context.Context, q Question, origin string) (rrset []packet.DNSRecord, ok bool) {
	stored, ok, err := h.Store.Lookup(ctx, q.Name)
	if err != nil {
		return nil, false
	}
	if !ok && within(q.Name, origin) {
		stored, ok, err = h.Store.Lookup(ctx, subtractOrigin(q.Name, origin))
		if err != nil {
			return nil, false
		}
	}
	if !ok {
		return nil, false
	}

	cp := make([]packet.DNSRecord, len(stored))
	copy(cp, stored)
	rootify(cp, origin)

	var out []packet.DNSRecord
	for _, rr := range cp {
		if rr.Type == q.RType || rr.Type == packet.CNAME {
			out = append(out, rr)
		}
	}
	return out, true
}

// Zone is an authoritative zone: a query-answering Inner handler wrapped
// with CNAME-chasing and NS/glue attachment, plus an optional DDNS update
// handler. It is the Go counterpart of ldd/server.py's authzone wrapped
// around a dbhandler.
type Zone struct {
	Origin   string
	Inner    *AuthHandler
	CNAMERes resolver.Resolver // consulted to chase CNAMEs and resolve NS glue; nil disables both
	DDNS     *DDNSHandler      // nil refuses UPDATE requests with NotImp
}

// NewZone builds a Zone backed by store, using cnameRes (typically the
// server's recursive resolver) for CNAME chases and NS glue.
func NewZone(origin string, store Store, cnameRes resolver.Resolver) *Zone {
	return &Zone{Origin: origin, Inner: &AuthHandler{Store: store}, CNAMERes: cnameRes}
}

// Handle answers a full packet addressed to this zone. internal marks
// packets synthesized by in-process handlers, which skip CNAME chase,
// NS/glue attachment and NXDOMAIN+SOA synthesis (the caller already knows
// what it's asking for) and return nil outright on a lookup miss.
func (z *Zone) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, internal bool) *packet.DNSPacket {
	if pkt.Header.Opcode == packet.OpcodeUpdate {
		if z.DDNS == nil {
			resp := packet.ResponseFor(pkt, packet.RcodeNotImp)
			return resp
		}
		return z.DDNS.Handle(ctx, pkt, z.Origin)
	}
	return z.handleQuery(ctx, q, pkt, internal)
}

func (z *Zone) handleQuery(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, internal bool) *packet.DNSPacket {
	rrset, ok := z.Inner.Handle(ctx, Question{Name: q.Name, RType: q.QType}, z.Origin)

	var resp *packet.DNSPacket
	if ok {
		resp = packet.ResponseFor(pkt, packet.RcodeNoError)
		for _, rr := range rrset {
			resp.AddAnswer(rr)
		}
	}

	if !internal {
		if resp == nil {
			resp = packet.ResponseFor(pkt, packet.RcodeNxDomain)
			if soaSet, soaOK := z.Inner.Handle(ctx, Question{Name: z.Origin, RType: packet.SOA}, z.Origin); soaOK {
				for _, rr := range soaSet {
					resp.AddAuthority(rr)
				}
			}
		} else {
			resolver.ResolveCNAMEs(resp, z.CNAMERes)
			if nsSet, nsOK := z.Inner.Handle(ctx, Question{Name: z.Origin, RType: packet.NS}, z.Origin); nsOK {
				for _, rr := range nsSet {
					resp.AddAuthority(rr)
					resolver.ResolveAdditional(resp, rr, z.CNAMERes)
				}
			}
		}
	} else if resp == nil {
		return nil
	}

	resp.Header.AuthoritativeAnswer = true
	return resp
}
