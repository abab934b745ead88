package repository

import (
	"testing"

	"github.com/nimbusdns/nimbus/internal/core/domain"
)

func TestConvertDomainToPacketRecord_MalformedSOA(t *testing.T) {
	_, err := ConvertDomainToPacketRecord(domain.Record{Type: domain.TypeSOA, Content: "ns1.com admin.com NaN 3600 600 1209600 300"})
	if err == nil {
		t.Errorf("Expected error for malformed SOA serial")
	}
}
