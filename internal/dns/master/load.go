package master

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nimbusdns/nimbus/internal/adapters/repository"
	"github.com/nimbusdns/nimbus/internal/dns/zone"
)

// LoadIntoStore parses a BIND-style master file from r and writes every
// record it contains into store, grouped by owner name relative to origin
// the way zone.Store expects. Used to bootstrap a zone.MemStore or
// zone.PostgresStore from a static zone file at startup.
func LoadIntoStore(ctx context.Context, r io.Reader, origin string, store zone.Store) error {
	p := NewMasterParser()
	p.Origin = origin
	data, err := p.Parse(r)
	if err != nil {
		return fmt.Errorf("master: parse failed: %w", err)
	}

	for _, rec := range data.Records {
		rr, err := repository.ConvertDomainToPacketRecord(rec)
		if err != nil {
			return fmt.Errorf("master: converting %s %s: %w", rec.Name, rec.Type, err)
		}
		name := relativeName(rec.Name, origin)
		if err := store.AddRR(ctx, name, rr); err != nil {
			return fmt.Errorf("master: storing %s: %w", rec.Name, err)
		}
	}
	return nil
}

// relativeName strips origin from a fully-qualified name the way
// zone.Store keys its entries, leaving "" for the apex itself.
func relativeName(name, origin string) string {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	origin = strings.ToLower(strings.TrimSuffix(origin, "."))
	if name == origin {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, origin), ".")
}
