package resolver

import (
	"bufio"
	"io"
	"net"
	"strings"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// SystemResolver parses a resolv.conf-style configuration (nameserver and
// domain/search lines) and resolves short queries by trying each
// configured suffix before the root.
type SystemResolver struct {
	inner    *MultiResolver
	suffixes []string
}

// LoadSystemResolver reads r as a resolv.conf-style file.
func LoadSystemResolver(r io.Reader) (*SystemResolver, error) {
	scanner := bufio.NewScanner(r)
	var nameservers []NameServer
	var suffixes []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "nameserver":
			ip := fields[1]
			if parsed := net.ParseIP(ip); parsed != nil {
				network := "udp4"
				if parsed.To4() == nil {
					network = "udp6"
				}
				nameservers = append(nameservers, NameServer{Network: network, IP: ip, Port: 53})
			}
		case "domain", "search":
			for _, s := range fields[1:] {
				if !strings.HasSuffix(s, ".") {
					s += "."
				}
				suffixes = append(suffixes, s)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	resolvers := make([]Resolver, len(nameservers))
	for i, ns := range nameservers {
		resolvers[i] = NewNSResolver(ns, false)
	}
	return &SystemResolver{inner: NewMultiResolver(resolvers), suffixes: suffixes}, nil
}

// Resolve implements Resolver.
func (s *SystemResolver) Resolve(pkt *packet.DNSPacket) (*packet.DNSPacket, error) {
	return s.inner.Resolve(pkt)
}

// SQuery tries name qualified by each configured suffix in turn, then the
// bare root, returning the first response with rescode 0 (else the last
// one tried). A name already ending in "." is tried as-is.
func (s *SystemResolver) SQuery(name string, rtype packet.QueryType) (*packet.DNSPacket, error) {
	var candidates []string
	if strings.HasSuffix(name, ".") {
		candidates = []string{name}
	} else {
		for _, suf := range s.suffixes {
			candidates = append(candidates, name+"."+suf)
		}
		candidates = append(candidates, name+".")
	}

	var lastResp *packet.DNSPacket
	var lastErr error
	for _, cand := range candidates {
		pkt := packet.NewDNSPacket()
		pkt.Header.ID = newTransactionID()
		pkt.Header.RecursionDesired = true
		pkt.Questions = append(pkt.Questions, *packet.NewDNSQuestion(cand, rtype))

		resp, err := s.Resolve(pkt)
		lastResp, lastErr = resp, err
		if err == nil && resp != nil && resp.Header.ResCode == packet.RcodeNoError {
			return resp, nil
		}
	}
	return lastResp, lastErr
}
