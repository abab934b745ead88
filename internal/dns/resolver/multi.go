package resolver

import (
	"math/rand"
	"sync"
	"time"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

const (
	scoreWindow    = 10
	pruneInterval  = 60 * time.Second
	outcomeMaxAge  = 1800 * time.Second
)

type outcome struct {
	at time.Time
	ok bool
}

type scoredEntry struct {
	res Resolver
	qs  []outcome
}

// MultiResolver load-balances queries across a set of resolvers, weighting
// the random pick by each peer's rolling recent success rate (most recent
// 10 outcomes; entries older than 30 minutes are pruned at most once a
// minute).
type MultiResolver struct {
	mu        sync.Mutex
	entries   []*scoredEntry
	lastClean time.Time
	// #nosec G404 -- load-balancing jitter, not security sensitive
	rng *rand.Rand
}

// NewMultiResolver wraps resolvers for weighted round-robin selection.
func NewMultiResolver(resolvers []Resolver) *MultiResolver {
	entries := make([]*scoredEntry, len(resolvers))
	for i, r := range resolvers {
		entries[i] = &scoredEntry{res: r}
	}
	return &MultiResolver{
		entries:   entries,
		lastClean: time.Now(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MultiResolver) clean() {
	now := time.Now()
	if now.Sub(m.lastClean) < pruneInterval {
		return
	}
	m.lastClean = now
	for _, e := range m.entries {
		var kept []outcome
		for _, q := range e.qs {
			if now.Sub(q.at) < outcomeMaxAge {
				kept = append(kept, q)
			}
		}
		e.qs = kept
	}
}

func (e *scoredEntry) score() float64 {
	if len(e.qs) == 0 {
		return 1.0
	}
	var sum float64
	for _, q := range e.qs {
		if q.ok {
			sum++
		}
	}
	return sum / float64(len(e.qs))
}

// pick must be called with m.mu held.
func (m *MultiResolver) pick() *scoredEntry {
	var total float64
	scores := make([]float64, len(m.entries))
	for i, e := range m.entries {
		scores[i] = e.score()
		total += scores[i]
	}
	c := m.rng.Float64() * total
	for i, e := range m.entries {
		c -= scores[i]
		if c <= 0 {
			return e
		}
	}
	panic("resolver: weighted selection reached the sentinel, impossible for a positive total")
}

func (e *scoredEntry) record(ok bool) {
	e.qs = append(e.qs, outcome{at: time.Now(), ok: ok})
	if len(e.qs) > scoreWindow {
		e.qs = e.qs[len(e.qs)-scoreWindow:]
	}
}

// Resolve implements Resolver, picking a peer weighted by its recent
// success rate and recording the outcome.
func (m *MultiResolver) Resolve(pkt *packet.DNSPacket) (*packet.DNSPacket, error) {
	m.mu.Lock()
	m.clean()
	e := m.pick()
	m.mu.Unlock()

	resp, err := e.res.Resolve(pkt)

	m.mu.Lock()
	e.record(err == nil)
	m.mu.Unlock()

	return resp, err
}

// SQuery implements Resolver by building a recursion-desired query and
// delegating to Resolve.
func (m *MultiResolver) SQuery(name string, rtype packet.QueryType) (*packet.DNSPacket, error) {
	pkt := packet.NewDNSPacket()
	pkt.Header.ID = newTransactionID()
	pkt.Header.RecursionDesired = true
	pkt.Questions = append(pkt.Questions, *packet.NewDNSQuestion(name, rtype))
	return m.Resolve(pkt)
}
