package packet

import (
	"net"
	"testing"
)

func roundTrip(t *testing.T, pkt *DNSPacket) *DNSPacket {
	t.Helper()
	buf := NewBytePacketBuffer()
	buf.HasNames = true
	if err := pkt.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	wire := make([]byte, buf.Position())
	copy(wire, buf.Buf[:buf.Position()])

	in := NewBytePacketBuffer()
	in.Load(wire)

	out := NewDNSPacket()
	if err := out.FromBuffer(in); err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	return out
}

func TestHeaderFlagRoundTrip(t *testing.T) {
	h := DNSHeader{
		ID:                  0xBEEF,
		RecursionDesired:    true,
		TruncatedMessage:    false,
		AuthoritativeAnswer: true,
		Opcode:              OpcodeQuery,
		Response:            true,
		ResCode:             RcodeNxDomain,
		CheckingDisabled:    true,
		AuthedData:          false,
		Z:                   false,
		RecursionAvailable:  true,
	}

	buf := NewBytePacketBuffer()
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf.Seek(0)

	var got DNSHeader
	if err := got.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != h {
		t.Errorf("header round-trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.Header.ID = 1
	pkt.Header.RecursionDesired = true
	pkt.Questions = append(pkt.Questions, *NewDNSQuestion("example.com.", A))

	out := roundTrip(t, pkt)
	if len(out.Questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(out.Questions))
	}
	q := out.Questions[0]
	if q.Name != "example.com." || q.QType != A || q.QClass != ClassIN {
		t.Errorf("question mismatch: %+v", q)
	}
}

func TestARecordRoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.Header.ID = 2
	pkt.AddAnswer(DNSRecord{
		Name: "host.example.com.", Type: A, Class: ClassIN, TTL: 300,
		IP: net.ParseIP("93.184.216.34").To4(),
	})

	out := roundTrip(t, pkt)
	if len(out.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(out.Answers))
	}
	rr := out.Answers[0]
	if rr.Type != A || !rr.IP.Equal(net.ParseIP("93.184.216.34")) || rr.TTL != 300 {
		t.Errorf("A record mismatch: %+v", rr)
	}
}

func TestAAAARecordRoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	ip := net.ParseIP("2001:db8::1")
	pkt.AddAnswer(DNSRecord{Name: "v6.example.com.", Type: AAAA, Class: ClassIN, TTL: 60, IP: ip})

	out := roundTrip(t, pkt)
	if !out.Answers[0].IP.Equal(ip) {
		t.Errorf("AAAA mismatch: got %v want %v", out.Answers[0].IP, ip)
	}
}

func TestCNAMERoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAnswer(DNSRecord{Name: "alias.example.com.", Type: CNAME, Class: ClassIN, TTL: 60, Host: "target.example.com."})

	out := roundTrip(t, pkt)
	if out.Answers[0].Host != "target.example.com." {
		t.Errorf("CNAME target mismatch: %q", out.Answers[0].Host)
	}
}

func TestMXRoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAnswer(DNSRecord{Name: "example.com.", Type: MX, Class: ClassIN, TTL: 3600, Priority: 10, Host: "mail.example.com."})

	out := roundTrip(t, pkt)
	rr := out.Answers[0]
	if rr.Priority != 10 || rr.Host != "mail.example.com." {
		t.Errorf("MX mismatch: %+v", rr)
	}
}

func TestTXTRoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAnswer(DNSRecord{Name: "example.com.", Type: TXT, Class: ClassIN, TTL: 60, Txt: "v=spf1 -all"})

	out := roundTrip(t, pkt)
	if out.Answers[0].Txt != "v=spf1 -all" {
		t.Errorf("TXT mismatch: %q", out.Answers[0].Txt)
	}
}

func TestSOARoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAuthority(DNSRecord{
		Name: "example.com.", Type: SOA, Class: ClassIN, TTL: 3600,
		MName: "ns1.example.com.", RName: "hostmaster.example.com.",
		Serial: 2024010100, Refresh: 7200, Retry: 3600, Expire: 1209600, Minimum: 300,
	})

	out := roundTrip(t, pkt)
	rr := out.Authorities[0]
	if rr.MName != "ns1.example.com." || rr.Serial != 2024010100 || rr.Minimum != 300 {
		t.Errorf("SOA mismatch: %+v", rr)
	}
}

func TestNSRoundTripWithGlue(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAuthority(DNSRecord{Name: "example.com.", Type: NS, Class: ClassIN, TTL: 3600, Host: "ns1.example.com."})
	pkt.AddResource(DNSRecord{Name: "ns1.example.com.", Type: A, Class: ClassIN, TTL: 3600, IP: net.ParseIP("192.0.2.1").To4()})

	out := roundTrip(t, pkt)
	if out.Authorities[0].Host != "ns1.example.com." {
		t.Errorf("NS host mismatch: %q", out.Authorities[0].Host)
	}
	if !out.Resources[0].IP.Equal(net.ParseIP("192.0.2.1")) {
		t.Errorf("glue A mismatch: %v", out.Resources[0].IP)
	}
}

func TestClassANYDeletesAllData(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.Authorities = append(pkt.Authorities, DNSRecord{
		Name: "example.com.", Type: A, Class: ClassANY, TTL: 0,
	})

	buf := NewBytePacketBuffer()
	if err := pkt.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	in := NewBytePacketBuffer()
	in.Load(buf.Buf[:buf.Position()])
	out := NewDNSPacket()
	if err := out.FromBuffer(in); err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if out.Authorities[0].Class != ClassANY {
		t.Errorf("class mismatch: %d", out.Authorities[0].Class)
	}
}

func TestAddAnswerDeduplicates(t *testing.T) {
	pkt := NewDNSPacket()
	ip := net.ParseIP("192.0.2.1").To4()
	pkt.AddAnswer(DNSRecord{Name: "host.example.com.", Type: A, Class: ClassIN, TTL: 60, IP: ip})
	pkt.AddAnswer(DNSRecord{Name: "host.example.com.", Type: A, Class: ClassIN, TTL: 60, IP: ip})

	if len(pkt.Answers) != 1 {
		t.Errorf("got %d answers, want 1 after de-duplication", len(pkt.Answers))
	}
}

func TestHasAnswersFollowsCNAME(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.Questions = append(pkt.Questions, *NewDNSQuestion("alias.example.com.", A))
	pkt.AddAnswer(DNSRecord{Name: "alias.example.com.", Type: CNAME, Class: ClassIN, TTL: 60, Host: "target.example.com."})
	pkt.AddAnswer(DNSRecord{Name: "target.example.com.", Type: A, Class: ClassIN, TTL: 60, IP: net.ParseIP("192.0.2.1").To4()})

	if !pkt.HasAnswers() {
		t.Error("expected HasAnswers true when CNAME chase resolves to an A record")
	}
}

func TestResponseForEchoesQuestion(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.Header.ID = 77
	pkt.Header.Opcode = OpcodeQuery
	pkt.Questions = append(pkt.Questions, *NewDNSQuestion("example.com.", A))

	resp := ResponseFor(pkt, RcodeNxDomain)
	if resp.Header.ID != 77 || !resp.Header.Response || resp.Header.ResCode != RcodeNxDomain {
		t.Errorf("response header mismatch: %+v", resp.Header)
	}
	if len(resp.Questions) != 1 || resp.Questions[0].Name != "example.com." {
		t.Errorf("response question mismatch: %+v", resp.Questions)
	}
}

func TestUnknownTypeOpaquePassthrough(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAnswer(DNSRecord{Name: "example.com.", Type: QueryType(99), Class: ClassIN, TTL: 60, Data: []byte{1, 2, 3, 4}})

	out := roundTrip(t, pkt)
	if string(out.Answers[0].Data) != "\x01\x02\x03\x04" {
		t.Errorf("opaque data mismatch: %v", out.Answers[0].Data)
	}
}

func TestQueryTypeString(t *testing.T) {
	cases := map[QueryType]string{A: "A", SRV: "SRV", TSIG: "TSIG", ANY: "ANY", QueryType(999): "TYPE999"}
	for qt, want := range cases {
		if got := qt.String(); got != want {
			t.Errorf("QueryType(%d).String() = %q, want %q", qt, got, want)
		}
	}
}
