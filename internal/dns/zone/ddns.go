package zone

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// AuthPolicy controls whether a zone's DDNS handler accepts UPDATE
// requests at all, and if so, whether TSIG authentication is required.
type AuthPolicy int

const (
	// AuthDisabled refuses every UPDATE with REFUSED.
	AuthDisabled AuthPolicy = iota
	// AuthOpen accepts updates with no TSIG requirement.
	AuthOpen
	// AuthAllowList requires a valid TSIG context whose key is in Keys.
	AuthAllowList
)

// Invalidator is notified of every name an UPDATE changes, so a cache
// sitting in front of the zone (in-process or shared across a fleet) can
// drop what it had. Satisfied by *server.RedisCache.
type Invalidator interface {
	InvalidateQuery(ctx context.Context, name string, qtype packet.QueryType) error
}

// DDNSHandler implements the RFC 2136 UPDATE opcode: prerequisite
// checking, authorization, update precheck and apply, against a Store.
// Ported from ldd/dbzone.py's dbhandler.handle UPDATE branch.
type DDNSHandler struct {
	Store       Store
	Policy      AuthPolicy
	Keys        map[string]bool // TSIG key names allowed to update, used only when Policy == AuthAllowList
	Logger      *slog.Logger
	Invalidator Invalidator // optional; nil disables invalidation

	// mu spans prerequisite-check and apply for one update so the two
	// phases act as a single atomic operation against the store.
	mu sync.Mutex
}

// hasData reports whether rr carries a non-empty RDATA payload for its
// type, the Go equivalent of the source's "rr.data is not None" checks on
// prerequisite and precheck RRs (ANY/NONE-class RRs must carry none).
func hasData(rr packet.DNSRecord) bool {
	switch rr.Type {
	case packet.A, packet.AAAA:
		return rr.IP != nil
	case packet.NS, packet.CNAME, packet.PTR, packet.MX, packet.SRV:
		return rr.Host != ""
	case packet.TXT:
		return rr.Txt != ""
	case packet.SOA:
		return rr.MName != "" || rr.RName != ""
	default:
		return len(rr.Data) > 0
	}
}

// Handle validates and applies an UPDATE packet against origin, returning
// the reply packet. Every validation failure sets a rescode and returns
// immediately, matching the source's early-exit validation order exactly:
// question shape, prerequisites, authorization, update precheck, apply.
func (h *DDNSHandler) Handle(ctx context.Context, pkt *packet.DNSPacket, origin string) *packet.DNSPacket {
	resp := packet.ResponseFor(pkt, packet.RcodeNoError)

	if len(pkt.Questions) != 1 || pkt.Questions[0].QType != packet.SOA {
		resp.Header.ResCode = packet.RcodeFormErr
		return resp
	}
	if !strings.EqualFold(pkt.Questions[0].Name, origin) {
		resp.Header.ResCode = packet.RcodeNotAuth
		return resp
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if rescode := h.checkPrerequisites(ctx, pkt, origin); rescode != packet.RcodeNoError {
		resp.Header.ResCode = rescode
		return resp
	}

	if rescode := h.authorize(pkt); rescode != packet.RcodeNoError {
		resp.Header.ResCode = rescode
		return resp
	}

	if rescode := h.checkPrecheck(pkt, origin); rescode != packet.RcodeNoError {
		resp.Header.ResCode = rescode
		return resp
	}

	h.apply(ctx, pkt, origin)
	return resp
}

func (h *DDNSHandler) checkPrerequisites(ctx context.Context, pkt *packet.DNSPacket, origin string) uint8 {
	for _, rr := range pkt.Answers {
		if rr.TTL != 0 {
			return packet.RcodeFormErr
		}
		if !within(rr.Name, origin) {
			return packet.RcodeNotZone
		}
		myname := subtractOrigin(rr.Name, origin)
		rrset, ok, err := h.Store.Lookup(ctx, myname)
		if err != nil {
			return packet.RcodeServFail
		}

		switch rr.Class {
		case packet.ClassANY:
			if hasData(rr) {
				return packet.RcodeFormErr
			}
			if rr.Type == packet.ANY {
				if !ok {
					return packet.RcodeNxDomain
				}
				continue
			}
			if !hasRType(rrset, rr.Type) {
				return packet.RcodeNxRRSet
			}
		case packet.ClassNONE:
			if hasData(rr) {
				return packet.RcodeFormErr
			}
			if rr.Type == packet.ANY {
				if ok {
					return packet.RcodeYxDomain
				}
				continue
			}
			if hasRType(rrset, rr.Type) {
				return packet.RcodeYxRRSet
			}
		case packet.ClassIN:
			if !hasExactRR(rrset, rr) {
				return packet.RcodeNxRRSet
			}
		default:
			return packet.RcodeFormErr
		}
	}
	return packet.RcodeNoError
}

func (h *DDNSHandler) authorize(pkt *packet.DNSPacket) uint8 {
	switch h.Policy {
	case AuthDisabled:
		return packet.RcodeRefused
	case AuthAllowList:
		if pkt.TSIGCtx == nil {
			return packet.RcodeRefused
		}
		if pkt.TSIGCtx.Error != 0 {
			return packet.RcodeNotAuth
		}
		if !h.Keys[pkt.TSIGCtx.Key.Name] {
			return packet.RcodeRefused
		}
	case AuthOpen:
		// no TSIG requirement
	}
	return packet.RcodeNoError
}

func (h *DDNSHandler) checkPrecheck(pkt *packet.DNSPacket, origin string) uint8 {
	for _, rr := range pkt.Authorities {
		if !within(rr.Name, origin) {
			return packet.RcodeNotZone
		}
		switch rr.Class {
		case packet.ClassIN:
			if rr.Type == packet.ANY || !hasData(rr) {
				return packet.RcodeFormErr
			}
		case packet.ClassANY:
			if hasData(rr) {
				return packet.RcodeFormErr
			}
		case packet.ClassNONE:
			if rr.Type == packet.ANY || rr.TTL != 0 || !hasData(rr) {
				return packet.RcodeFormErr
			}
		default:
			return packet.RcodeFormErr
		}
	}
	return packet.RcodeNoError
}

func (h *DDNSHandler) apply(ctx context.Context, pkt *packet.DNSPacket, origin string) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, rr := range pkt.Authorities {
		myname := subtractOrigin(rr.Name, origin)
		changed := false
		switch rr.Class {
		case packet.ClassIN:
			logger.Info("ddns: adding rr", "name", rr.Name, "type", rr.Type)
			if err := h.Store.AddRR(ctx, myname, rr); err != nil {
				logger.Error("ddns: add rr failed", "name", rr.Name, "error", err)
			} else {
				changed = true
			}
		case packet.ClassANY:
			if rr.Type == packet.ANY {
				logger.Info("ddns: removing rrset", "name", rr.Name)
				if _, err := h.Store.Remove(ctx, myname); err != nil {
					logger.Error("ddns: remove rrset failed", "name", rr.Name, "error", err)
				} else {
					changed = true
				}
			} else {
				logger.Info("ddns: removing rrset", "name", rr.Name, "type", rr.Type)
				if _, err := h.Store.RemoveRType(ctx, myname, rr.Type); err != nil {
					logger.Error("ddns: remove rtype failed", "name", rr.Name, "error", err)
				} else {
					changed = true
				}
			}
		case packet.ClassNONE:
			logger.Info("ddns: removing rr", "name", rr.Name, "type", rr.Type)
			// Class NONE only marks the delete; the stored RR is class IN.
			target := rr
			target.Class = packet.ClassIN
			if _, err := h.Store.RemoveRR(ctx, myname, target); err != nil {
				logger.Error("ddns: remove rr failed", "name", rr.Name, "error", err)
			} else {
				changed = true
			}
		}

		if changed && h.Invalidator != nil {
			if err := h.Invalidator.InvalidateQuery(ctx, rr.Name, rr.Type); err != nil {
				logger.Warn("ddns: cache invalidation publish failed", "name", rr.Name, "error", err)
			}
		}
	}
}

func hasRType(rrset []packet.DNSRecord, rtype packet.QueryType) bool {
	for _, rr := range rrset {
		if rr.Type == rtype {
			return true
		}
	}
	return false
}

func hasExactRR(rrset []packet.DNSRecord, want packet.DNSRecord) bool {
	for _, rr := range rrset {
		if rr.Type == want.Type && rrEqual(rr, want) {
			return true
		}
	}
	return false
}
