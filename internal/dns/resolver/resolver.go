// Package resolver implements the iterative DNS resolver: a recursive
// walk from a starting nameserver through NS delegations with cycle
// avoidance, a weighted multi-resolver load balancer, and a resolv.conf
// style system resolver.
package resolver

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// ErrServFail is raised when an upstream nameserver answers SERVFAIL.
var ErrServFail = errors.New("servfail")

// ErrUnreachable is raised when a nameserver cannot be reached within
// retries*timeout.
var ErrUnreachable = errors.New("unreachable")

// NameServer identifies a UDP endpoint to query, tagged with its address
// family so the right socket family is opened.
type NameServer struct {
	Network string // "udp4" or "udp6"
	IP      string
	Port    int
}

func (ns NameServer) String() string {
	return net.JoinHostPort(ns.IP, fmt.Sprintf("%d", ns.Port))
}

// Resolver answers a full packet or a simple (name, rtype) short query.
type Resolver interface {
	Resolve(pkt *packet.DNSPacket) (*packet.DNSPacket, error)
	SQuery(name string, rtype packet.QueryType) (*packet.DNSPacket, error)
}

func newTransactionID() uint16 {
	var id uint16
	_ = binary.Read(rand.Reader, binary.BigEndian, &id)
	return id
}

// Resolve performs one iterative resolution step against nameserver and,
// on a non-authoritative, answer-less delegation, recurses into the
// referred nameservers up to 30 hops deep, never revisiting an entry in
// visited. cnameRes is consulted to look up CNAME targets and missing NS
// glue; it may be nil to disable that enrichment.
func Resolve(pkt *packet.DNSPacket, nameserver NameServer, recurse bool, retries int, timeoutMS int, hops int, visited map[NameServer]bool, cnameRes Resolver) (*packet.DNSPacket, error) {
	if visited == nil {
		visited = make(map[NameServer]bool)
	}
	visited[nameserver] = true

	resp, err := sendQuery(pkt, nameserver, retries, timeoutMS)
	if err != nil {
		return nil, err
	}

	if resp.Header.ResCode != packet.RcodeNoError {
		switch resp.Header.ResCode {
		case packet.RcodeServFail:
			return nil, ErrServFail
		case packet.RcodeNxDomain:
			return resp, nil
		default:
			return nil, fmt.Errorf("non-successful response (%d)", resp.Header.ResCode)
		}
	}

	if recurse {
		resolveCNAMEs(resp, cnameRes)
	}
	if !recurse || resp.HasAnswers() {
		return resp, nil
	}
	if !resp.HasAnswers() && resp.Header.AuthoritativeAnswer {
		return resp, nil
	}
	if hops > 30 {
		return nil, errors.New("too many levels deep")
	}

	for _, rr := range resp.Authorities {
		if rr.Type != packet.NS {
			continue
		}
		addrs := extractAddrInfo(resp, rr.Host)
		if len(addrs) == 0 {
			resolveAdditional(resp, rr, cnameRes)
			addrs = extractAddrInfo(resp, rr.Host)
		}
		for _, addr := range addrs {
			candidate := NameServer{Network: addr.network, IP: addr.ip, Port: 53}
			if visited[candidate] {
				continue
			}
			resp2, err := Resolve(pkt, candidate, recurse, retries, timeoutMS, hops+1, visited, cnameRes)
			if err != nil {
				if errors.Is(err, ErrUnreachable) {
					continue
				}
				return nil, err
			}
			if resp2 != nil && resp2.HasAnswers() {
				return resp2, nil
			}
			if resp2 != nil && !resp2.HasAnswers() && resp2.Header.AuthoritativeAnswer {
				return resp2, nil
			}
		}
	}
	return nil, nil
}

func sendQuery(pkt *packet.DNSPacket, ns NameServer, retries, timeoutMS int) (*packet.DNSPacket, error) {
	conn, err := net.DialTimeout(ns.Network, ns.String(), time.Duration(timeoutMS)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = conn.Close() }()

	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	if err := pkt.Write(buf); err != nil {
		return nil, err
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	var raw []byte
	for i := 0; i < retries; i++ {
		if _, err := conn.Write(buf.Buf[:buf.Position()]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		tmp := make([]byte, packet.MaxPacketSize)
		n, err := conn.Read(tmp)
		if err != nil {
			continue
		}
		raw = tmp[:n]
		break
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, ns)
	}

	respBuf := packet.GetBuffer()
	defer packet.PutBuffer(respBuf)
	respBuf.Load(raw)

	resp := packet.NewDNSPacket()
	if err := resp.FromBuffer(respBuf); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if resp.Header.ID != pkt.Header.ID {
		return nil, errors.New("got response with wrong qid")
	}
	if !resp.Header.Response {
		return nil, errors.New("got query in response")
	}
	return resp, nil
}

type addrInfo struct {
	network string
	ip      string
}

func extractAddrInfo(resp *packet.DNSPacket, name string) []addrInfo {
	var out []addrInfo
	for _, rr := range resp.Answers {
		if rr.Name != name {
			continue
		}
		switch rr.Type {
		case packet.A:
			out = append(out, addrInfo{"udp4", rr.IP.String()})
		case packet.AAAA:
			out = append(out, addrInfo{"udp6", rr.IP.String()})
		}
	}
	for _, rr := range resp.Resources {
		if rr.Name != name {
			continue
		}
		switch rr.Type {
		case packet.A:
			out = append(out, addrInfo{"udp4", rr.IP.String()})
		case packet.AAAA:
			out = append(out, addrInfo{"udp6", rr.IP.String()})
		}
	}
	return out
}

// resolveCNAMEs fills in the final A/AAAA answer for any CNAME already
// present in resp's answer section whose target isn't yet answered,
// by querying cnameRes directly.
func resolveCNAMEs(resp *packet.DNSPacket, cnameRes Resolver) {
	if cnameRes == nil {
		return
	}
	for _, q := range resp.Questions {
		cn := resp.GetAnswer(q.Name, packet.CNAME)
		if cn == nil {
			continue
		}
		if resp.GetAnswer(cn.Host, q.QType) != nil {
			continue
		}
		r, err := cnameRes.SQuery(cn.Host, q.QType)
		if err != nil || r == nil {
			continue
		}
		an := r.GetAnswer(cn.Host, q.QType)
		if an == nil {
			continue
		}
		resp.AddAnswer(*an)
	}
}

// resolveAdditional looks up missing glue for an NS referral via cnameRes
// and attaches any A/AAAA found to resp's additional section.
func resolveAdditional(resp *packet.DNSPacket, ns packet.DNSRecord, cnameRes Resolver) {
	if cnameRes == nil {
		return
	}
	for _, rtype := range []packet.QueryType{packet.A, packet.AAAA} {
		if resp.GetAnswer(ns.Host, rtype) != nil {
			continue
		}
		r, err := cnameRes.SQuery(ns.Host, rtype)
		if err != nil || r == nil {
			continue
		}
		an := r.GetAnswer(ns.Host, rtype)
		if an == nil {
			continue
		}
		resp.AddResource(*an)
	}
}

// ResolveCNAMEs fills in the final A/AAAA answer for any CNAME already
// present in resp's answer section, querying cnameRes for the target. It
// is exported so authoritative-zone handlers can reuse the same chase
// logic used internally during iterative resolution.
func ResolveCNAMEs(resp *packet.DNSPacket, cnameRes Resolver) {
	resolveCNAMEs(resp, cnameRes)
}

// ResolveAdditional looks up missing A/AAAA glue for an NS record via
// cnameRes and attaches it to resp's additional section. Exported for
// reuse by authoritative-zone handlers answering NS referrals.
func ResolveAdditional(resp *packet.DNSPacket, ns packet.DNSRecord, cnameRes Resolver) {
	resolveAdditional(resp, ns, cnameRes)
}

// NSResolver is a Resolver bound to a single fixed nameserver.
type NSResolver struct {
	NameServer NameServer
	Recurse    bool
	NSRecurse  bool // whether squery-built queries set the recursion-desired bit
	Retries    int
	TimeoutMS  int
	CNAMERes   Resolver // consulted for CNAME/glue lookups during recursion; nil disables
}

// NewNSResolver returns an NSResolver with the teacher's defaults: 3
// retries, a 2s per-attempt timeout, and recursion-desired queries.
func NewNSResolver(ns NameServer, recurse bool) *NSResolver {
	return &NSResolver{NameServer: ns, Recurse: recurse, NSRecurse: true, Retries: 3, TimeoutMS: 2000}
}

// Resolve implements Resolver.
func (r *NSResolver) Resolve(pkt *packet.DNSPacket) (*packet.DNSPacket, error) {
	return Resolve(pkt, r.NameServer, r.Recurse, r.Retries, r.TimeoutMS, 0, nil, r.CNAMERes)
}

// SQuery implements Resolver.
func (r *NSResolver) SQuery(name string, rtype packet.QueryType) (*packet.DNSPacket, error) {
	pkt := packet.NewDNSPacket()
	pkt.Header.ID = newTransactionID()
	pkt.Header.RecursionDesired = r.NSRecurse
	pkt.Questions = append(pkt.Questions, *packet.NewDNSQuestion(name, rtype))
	return r.Resolve(pkt)
}
