package resolver

// RootHints maps letter-ordered root server IPv4 addresses, used to seed
// iterative resolution.
var RootHints = []string{
	"198.41.0.4",     // a.root-servers.net
	"170.247.170.2",  // b.root-servers.net
	"192.33.4.12",    // c.root-servers.net
	"199.7.91.13",    // d.root-servers.net
	"192.203.230.10", // e.root-servers.net
	"192.5.5.241",    // f.root-servers.net
	"192.112.36.4",   // g.root-servers.net
	"198.97.190.53",  // h.root-servers.net
	"192.36.148.17",  // i.root-servers.net
	"192.58.128.30",  // j.root-servers.net
	"193.0.14.129",   // k.root-servers.net
	"199.7.83.42",    // l.root-servers.net
	"202.12.27.33",   // m.root-servers.net
}

// NewRootResolver builds a MultiResolver over the root hint table. Root
// queries are non-recursive (the roots only ever delegate) and use
// cnameRes, typically a SystemResolver, to resolve missing NS glue.
func NewRootResolver(cnameRes Resolver) *MultiResolver {
	resolvers := make([]Resolver, len(RootHints))
	for i, ip := range RootHints {
		ns := NewNSResolver(NameServer{Network: "udp4", IP: ip, Port: 53}, true)
		ns.NSRecurse = false
		ns.CNAMERes = cnameRes
		resolvers[i] = ns
	}
	return NewMultiResolver(resolvers)
}
