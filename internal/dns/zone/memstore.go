package zone

import (
	"context"
	"sync"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// MemStore is an in-memory Store backed by a map guarded by one mutex,
// used by tests and as the default when no database is configured.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]packet.DNSRecord
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]packet.DNSRecord)}
}

func (s *MemStore) Lookup(_ context.Context, name string) ([]packet.DNSRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rrset, ok := s.data[name]
	if !ok {
		return nil, false, nil
	}
	out := make([]packet.DNSRecord, len(rrset))
	copy(out, rrset)
	return out, true, nil
}

func (s *MemStore) Set(_ context.Context, name string, rrset []packet.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]packet.DNSRecord, len(rrset))
	copy(cp, rrset)
	s.data[name] = cp
	return nil
}

func (s *MemStore) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[name]
	return ok, nil
}

func (s *MemStore) Remove(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[name]
	delete(s.data, name)
	return ok, nil
}

func (s *MemStore) RemoveRType(_ context.Context, name string, rtype packet.QueryType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rrset, ok := s.data[name]
	if !ok {
		return false, nil
	}
	var kept []packet.DNSRecord
	removed := false
	for _, rr := range rrset {
		if rr.Type == rtype {
			removed = true
			continue
		}
		kept = append(kept, rr)
	}
	if len(kept) == 0 {
		delete(s.data, name)
	} else {
		s.data[name] = kept
	}
	return removed, nil
}

func (s *MemStore) AddRR(_ context.Context, name string, rr packet.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append(s.data[name], rr)
	return nil
}

func (s *MemStore) RemoveRR(_ context.Context, name string, rr packet.DNSRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rrset, ok := s.data[name]
	if !ok {
		return false, nil
	}
	for i, existing := range rrset {
		if rrEqual(existing, rr) {
			s.data[name] = append(rrset[:i], rrset[i+1:]...)
			if len(s.data[name]) == 0 {
				delete(s.data, name)
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	return names, nil
}
