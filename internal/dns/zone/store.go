// Package zone implements authoritative zone serving: a name-keyed RRset
// store, the query-side handler that answers from it, and the RFC 2136
// dynamic update handler that mutates it under TSIG-gated authorization.
package zone

import (
	"context"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// Store is the backing contract an authoritative zone reads and writes
// through. Implementations must be internally safe for concurrent
// get/put/delete; the zone-wide DDNS lock (DDNSHandler.mu) is the only
// coordination layered on top, spanning prerequisite-check and apply.
type Store interface {
	// Lookup returns the RRset stored at name, or ok=false if none exists.
	Lookup(ctx context.Context, name string) (rrset []packet.DNSRecord, ok bool, err error)
	// Set replaces the entire RRset stored at name.
	Set(ctx context.Context, name string, rrset []packet.DNSRecord) error
	// Has reports whether any RR is stored at name.
	Has(ctx context.Context, name string) (bool, error)
	// Remove deletes every RR stored at name, reporting whether anything
	// was present.
	Remove(ctx context.Context, name string) (bool, error)
	// RemoveRType deletes every RR of rtype stored at name, reporting
	// whether anything was present.
	RemoveRType(ctx context.Context, name string, rtype packet.QueryType) (bool, error)
	// AddRR appends a single RR to the RRset stored at name, creating the
	// name's entry if it doesn't exist.
	AddRR(ctx context.Context, name string, rr packet.DNSRecord) error
	// RemoveRR deletes the single RR matching (name, head, data) exactly,
	// reporting whether it was present. Used by DDNS NONE-class deletes.
	RemoveRR(ctx context.Context, name string, rr packet.DNSRecord) (bool, error)
	// ListNames returns every name with at least one stored RR.
	ListNames(ctx context.Context) ([]string, error)
}

// rrEqual reports whether two RRs carry the same (head, data): same name,
// rtype, class and rdata, ignoring TTL, matching the exact-match semantics
// DDNS prerequisites and NONE-class deletes require.
func rrEqual(a, b packet.DNSRecord) bool {
	if a.Name != b.Name || a.Type != b.Type || a.Class != b.Class {
		return false
	}
	switch a.Type {
	case packet.A, packet.AAAA:
		return a.IP.Equal(b.IP)
	case packet.NS, packet.CNAME, packet.PTR:
		return a.Host == b.Host
	case packet.MX:
		return a.Priority == b.Priority && a.Host == b.Host
	case packet.SRV:
		return a.Priority == b.Priority && a.Weight == b.Weight && a.Port == b.Port && a.Host == b.Host
	case packet.TXT:
		return a.Txt == b.Txt
	case packet.SOA:
		return a.MName == b.MName && a.RName == b.RName && a.Serial == b.Serial &&
			a.Refresh == b.Refresh && a.Retry == b.Retry && a.Expire == b.Expire && a.Minimum == b.Minimum
	default:
		return string(a.Data) == string(b.Data)
	}
}
