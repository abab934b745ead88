package resolver

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// fakeServer answers every received query with whatever respond returns,
// echoing the qid. It closes its socket when the test ends.
type fakeServer struct {
	conn *net.UDPConn
	addr NameServer
}

func startFakeServer(t *testing.T, respond func(q *packet.DNSPacket) *packet.DNSPacket) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port

	fs := &fakeServer{conn: conn, addr: NameServer{Network: "udp4", IP: "127.0.0.1", Port: port}}

	go func() {
		buf := make([]byte, packet.MaxPacketSize)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			rb := packet.NewBytePacketBuffer()
			rb.Load(buf[:n])
			q := packet.NewDNSPacket()
			if err := q.FromBuffer(rb); err != nil {
				continue
			}
			resp := respond(q)
			if resp == nil {
				continue
			}
			wb := packet.NewBytePacketBuffer()
			if err := resp.Write(wb); err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(wb.Buf[:wb.Position()], remote)
		}
	}()

	t.Cleanup(func() { _ = conn.Close() })
	return fs
}

func TestResolveDirectAnswer(t *testing.T) {
	fs := startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		resp := packet.ResponseFor(q, packet.RcodeNoError)
		resp.AddAnswer(packet.DNSRecord{Name: "a.example.com.", Type: packet.A, TTL: 300, IP: net.ParseIP("3.3.3.3")})
		return resp
	})

	req := packet.NewDNSPacket()
	req.Header.ID = 0xABCD
	req.Questions = append(req.Questions, *packet.NewDNSQuestion("a.example.com.", packet.A))

	resp, err := Resolve(req, fs.addr, true, 3, 500, 0, nil, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resp.HasAnswers() || len(resp.Answers) != 1 {
		t.Fatalf("expected one answer, got %+v", resp.Answers)
	}
	if !resp.Answers[0].IP.Equal(net.ParseIP("3.3.3.3")) {
		t.Errorf("unexpected answer: %+v", resp.Answers[0])
	}
}

func TestResolveDelegationAndFinalAnswerLegs(t *testing.T) {
	// Resolve always dials the delegated nameserver on port 53 (per the
	// spec's "add port 53" step), which test processes can't bind to, so
	// the two legs of a real referral walk are exercised independently
	// here rather than as one Resolve call that actually follows the
	// referral on the wire.
	final := startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		resp := packet.ResponseFor(q, packet.RcodeNoError)
		resp.Header.AuthoritativeAnswer = true
		resp.AddAnswer(packet.DNSRecord{Name: "a.example.com.", Type: packet.A, TTL: 300, IP: net.ParseIP("5.5.5.5")})
		return resp
	})

	root := startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		resp := packet.ResponseFor(q, packet.RcodeNoError)
		resp.AddAuthority(packet.DNSRecord{Name: "example.com.", Type: packet.NS, TTL: 300, Host: "ns1.example.com."})
		resp.AddResource(packet.DNSRecord{Name: "ns1.example.com.", Type: packet.A, TTL: 300, IP: net.ParseIP("127.0.0.1")})
		return resp
	})

	req := packet.NewDNSPacket()
	req.Header.ID = 0x1234
	req.Header.RecursionDesired = true
	req.Questions = append(req.Questions, *packet.NewDNSQuestion("a.example.com.", packet.A))

	resp, err := Resolve(req, root.addr, false, 3, 500, 0, nil, nil)
	if err != nil {
		t.Fatalf("root resolve failed: %v", err)
	}
	if resp.HasAnswers() {
		t.Fatalf("expected a delegation with no answers, got %+v", resp.Answers)
	}
	if len(resp.Authorities) != 1 || resp.Authorities[0].Type != packet.NS {
		t.Fatalf("expected one NS referral, got %+v", resp.Authorities)
	}

	resp2, err := Resolve(req, final.addr, true, 3, 500, 0, nil, nil)
	if err != nil {
		t.Fatalf("final resolve failed: %v", err)
	}
	if !resp2.HasAnswers() || !resp2.Answers[0].IP.Equal(net.ParseIP("5.5.5.5")) {
		t.Fatalf("expected final answer, got %+v", resp2.Answers)
	}
}

func TestResolveServFailPropagates(t *testing.T) {
	fs := startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		return packet.ResponseFor(q, packet.RcodeServFail)
	})
	req := packet.NewDNSPacket()
	req.Header.ID = 7
	req.Questions = append(req.Questions, *packet.NewDNSQuestion("a.example.com.", packet.A))

	_, err := Resolve(req, fs.addr, true, 3, 500, 0, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "servfail") {
		t.Fatalf("expected servfail error, got %v", err)
	}
}

func TestResolveUnreachableAfterRetries(t *testing.T) {
	// a port nothing listens on
	ns := NameServer{Network: "udp4", IP: "127.0.0.1", Port: 1}
	req := packet.NewDNSPacket()
	req.Header.ID = 9
	req.Questions = append(req.Questions, *packet.NewDNSQuestion("a.example.com.", packet.A))

	start := time.Now()
	_, err := Resolve(req, ns, false, 1, 50, 0, nil, nil)
	if err == nil {
		t.Fatalf("expected an error for a closed port")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("resolve took too long: %v", time.Since(start))
	}
}

func TestMultiResolverPicksAllPeers(t *testing.T) {
	var fsA, fsB *fakeServer
	fsA = startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		resp := packet.ResponseFor(q, packet.RcodeNoError)
		resp.AddAnswer(packet.DNSRecord{Name: q.Questions[0].Name, Type: packet.A, TTL: 60, IP: net.ParseIP("1.1.1.1")})
		return resp
	})
	fsB = startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		resp := packet.ResponseFor(q, packet.RcodeNoError)
		resp.AddAnswer(packet.DNSRecord{Name: q.Questions[0].Name, Type: packet.A, TTL: 60, IP: net.ParseIP("2.2.2.2")})
		return resp
	})

	mr := NewMultiResolver([]Resolver{
		NewNSResolver(fsA.addr, false),
		NewNSResolver(fsB.addr, false),
	})

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		resp, err := mr.SQuery("x.example.com.", packet.A)
		if err != nil {
			t.Fatalf("SQuery failed: %v", err)
		}
		if len(resp.Answers) != 1 {
			t.Fatalf("expected one answer, got %+v", resp.Answers)
		}
		seen[resp.Answers[0].IP.String()] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both peers to be used over 50 tries, saw %v", seen)
	}
}

func TestMultiResolverDemotesFailingPeer(t *testing.T) {
	good := startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		return packet.ResponseFor(q, packet.RcodeNoError)
	})
	badNS := NameServer{Network: "udp4", IP: "127.0.0.1", Port: 1}
	badRes := NewNSResolver(badNS, false)
	badRes.Retries = 1
	badRes.TimeoutMS = 30

	mr := NewMultiResolver([]Resolver{
		NewNSResolver(good.addr, false),
		badRes,
	})

	for i := 0; i < 10; i++ {
		_, _ = mr.SQuery("x.example.com.", packet.A)
	}

	mr.mu.Lock()
	goodScore := mr.entries[0].score()
	badScore := mr.entries[1].score()
	mr.mu.Unlock()

	if badScore >= goodScore {
		t.Errorf("expected the failing peer's score (%v) to drop below the healthy peer's (%v)", badScore, goodScore)
	}
}

func TestLoadSystemResolverParsesNameserversAndSuffixes(t *testing.T) {
	conf := "nameserver 8.8.8.8\nnameserver ::1\ndomain example.com\nsearch corp.example.com.\n"
	sr, err := LoadSystemResolver(strings.NewReader(conf))
	if err != nil {
		t.Fatalf("LoadSystemResolver failed: %v", err)
	}
	if len(sr.inner.entries) != 2 {
		t.Fatalf("expected 2 nameservers, got %d", len(sr.inner.entries))
	}
	if len(sr.suffixes) != 2 || sr.suffixes[0] != "example.com." || sr.suffixes[1] != "corp.example.com." {
		t.Errorf("unexpected suffixes: %v", sr.suffixes)
	}
}

func TestSystemResolverSQueryTriesSuffixesThenRoot(t *testing.T) {
	var gotNames []string
	fs := startFakeServer(t, func(q *packet.DNSPacket) *packet.DNSPacket {
		gotNames = append(gotNames, q.Questions[0].Name)
		if q.Questions[0].Name == "host.example.com." {
			return packet.ResponseFor(q, packet.RcodeNoError)
		}
		return packet.ResponseFor(q, packet.RcodeNxDomain)
	})

	sr := &SystemResolver{
		inner:    NewMultiResolver([]Resolver{NewNSResolver(fs.addr, false)}),
		suffixes: []string{"example.com."},
	}

	resp, err := sr.SQuery("host", packet.A)
	if err != nil {
		t.Fatalf("SQuery failed: %v", err)
	}
	if resp.Header.ResCode != packet.RcodeNoError {
		t.Fatalf("expected success on the suffixed name, got rcode %d", resp.Header.ResCode)
	}
	if len(gotNames) != 1 || gotNames[0] != "host.example.com." {
		t.Fatalf("expected exactly one query for the suffixed name, got %v", gotNames)
	}
}

func TestNameServerString(t *testing.T) {
	ns := NameServer{Network: "udp4", IP: "192.0.2.1", Port: 53}
	if ns.String() != net.JoinHostPort("192.0.2.1", strconv.Itoa(53)) {
		t.Errorf("unexpected NameServer.String(): %s", ns.String())
	}
}
