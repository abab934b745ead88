package packet

import "testing"

func TestSRVRoundTrip(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAnswer(DNSRecord{
		Name: "_sip._tcp.example.com.", Type: SRV, Class: ClassIN, TTL: 3600,
		Priority: 10, Weight: 20, Port: 5060, Host: "sipserver.example.com.",
	})

	out := roundTrip(t, pkt)
	if len(out.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(out.Answers))
	}
	rr := out.Answers[0]
	if rr.Type != SRV {
		t.Fatalf("type = %v, want SRV", rr.Type)
	}
	if rr.Priority != 10 || rr.Weight != 20 || rr.Port != 5060 {
		t.Errorf("SRV priority/weight/port mismatch: %+v", rr)
	}
	if rr.Host != "sipserver.example.com." {
		t.Errorf("SRV target mismatch: %q", rr.Host)
	}
}

func TestSRVTargetCompresses(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.Questions = append(pkt.Questions, *NewDNSQuestion("example.com.", SRV))
	pkt.AddAnswer(DNSRecord{
		Name: "_sip._tcp.example.com.", Type: SRV, Class: ClassIN, TTL: 60,
		Priority: 1, Weight: 1, Port: 443, Host: "example.com.",
	})

	buf := NewBytePacketBuffer()
	buf.HasNames = true
	if err := pkt.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// The SRV target repeats "example.com." already seen in the question,
	// so it should compress down to a 2-byte pointer rather than being
	// spelled out again.
	if buf.Position() > 80 {
		t.Errorf("expected compressed SRV target, wire size was %d bytes", buf.Position())
	}
}

func TestSRVZeroPriorityAndWeight(t *testing.T) {
	pkt := NewDNSPacket()
	pkt.AddAnswer(DNSRecord{
		Name: "_https._tcp.example.com.", Type: SRV, Class: ClassIN, TTL: 60,
		Priority: 0, Weight: 0, Port: 443, Host: "only.example.com.",
	})

	out := roundTrip(t, pkt)
	rr := out.Answers[0]
	if rr.Priority != 0 || rr.Weight != 0 || rr.Port != 443 {
		t.Errorf("zero-value SRV fields not preserved: %+v", rr)
	}
}
