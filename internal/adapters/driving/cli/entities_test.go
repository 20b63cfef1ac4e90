package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

func sampleVehicles() []domain.CanonicalEntity {
	return []domain.CanonicalEntity{
		{
			Type:         domain.EntityVehicles,
			NaturalKey:   "42",
			ConnectionID: "conn-1",
			Fields:       &domain.Vehicle{UnitNumber: "T-042", Make: "Kenworth", Model: "T680", HasLiftgate: true},
		},
		{
			Type:         domain.EntityVehicles,
			NaturalKey:   "43",
			ConnectionID: "conn-1",
			Fields:       &domain.Vehicle{UnitNumber: "T-043"},
		},
	}
}

func TestEntitiesCmd_Validation(t *testing.T) {
	withServices(t, Services{})
	_, err := execute(t, "entities", "list", "vehicles", "--org", "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity reader not configured")

	withServices(t, Services{Reader: &mockEntityReader{}})
	_, err = execute(t, "entities", "list", "vehicles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--org is required")

	_, err = execute(t, "entities", "list", "boats", "--org", "org-1")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestEntitiesList(t *testing.T) {
	reader := &mockEntityReader{items: sampleVehicles()}
	withServices(t, Services{Reader: reader})

	out, err := execute(t, "entities", "list", "vehicles",
		"--org", "org-1", "--connection", "conn-1", "--limit", "10", "--offset", "20")
	require.NoError(t, err)
	assert.Equal(t, driving.Scope{OrganizationID: "org-1", ConnectionID: "conn-1"}, reader.lastScope)
	assert.Equal(t, driving.PageRequest{Limit: 10, Offset: 20}, reader.lastPage)
	assert.Equal(t, domain.EntityVehicles, reader.lastType)
	assert.Contains(t, out, "42  T-042 | Kenworth T680 | liftgate")
	assert.Contains(t, out, "2 entities")

	reader.items = nil
	out, err = execute(t, "entities", "list", "vehicles", "--org", "org-1")
	require.NoError(t, err)
	assert.Equal(t, driving.PageRequest{Limit: 25}, reader.lastPage)
	assert.Contains(t, out, "No entities found.")
}

func TestEntitiesList_JSON(t *testing.T) {
	withServices(t, Services{Reader: &mockEntityReader{items: sampleVehicles()}})

	out, err := execute(t, "entities", "list", "vehicles", "--org", "org-1", "--json")
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "42", decoded[0]["NaturalKey"])
}

func TestEntitiesGet(t *testing.T) {
	reader := &mockEntityReader{entity: &domain.CanonicalEntity{
		Type:        domain.EntityInvoices,
		NaturalKey:  "INV-1",
		Fields:      &domain.Invoice{Number: "2026-0001", Status: "open", AmountCents: 123456},
		SyncVersion: 3,
		Checksum:    "abc",
	}}
	withServices(t, Services{Reader: reader})

	out, err := execute(t, "entities", "get", "invoices", "INV-1", "--org", "org-1", "--connection", "conn-1")
	require.NoError(t, err)
	assert.Contains(t, out, "INV-1  2026-0001 | open | USD 1,234.56")
	assert.Contains(t, out, "version:     3")
	assert.Contains(t, out, "checksum:    abc")

	reader.err = domain.ErrConnectionRequired
	_, err = execute(t, "entities", "get", "invoices", "INV-1", "--org", "org-1")
	assert.ErrorIs(t, err, domain.ErrConnectionRequired)
}

func TestEntitiesStats(t *testing.T) {
	reader := &mockEntityReader{stats: &domain.EntityStats{
		Type:         domain.EntityInvoices,
		Total:        1250,
		ByStatus:     map[string]int{"open": 1000, "paid": 250},
		ByConnection: map[string]int{"conn-1": 1250},
	}}
	withServices(t, Services{Reader: reader})

	out, err := execute(t, "entities", "stats", "invoices", "--org", "org-1")
	require.NoError(t, err)
	assert.Contains(t, out, "invoices for org-1")
	assert.Contains(t, out, "Total:       1,250")
	assert.Contains(t, out, "By status:")
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "conn-1")
}

func TestEntitiesQueries(t *testing.T) {
	reader := &mockEntityReader{items: []domain.CanonicalEntity{{
		Type:       domain.EntityTruckers,
		NaturalKey: "D-1",
		Fields: &domain.Trucker{
			FirstName: "Ana",
			LastName:  "Lopez",
			Documents: []domain.TruckerDocument{{Kind: "cdl", ExpiresAt: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)}},
		},
	}}}
	withServices(t, Services{Reader: reader})

	out, err := execute(t, "entities", "expiring", "--org", "org-1", "--within", "72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, reader.lastWithin)
	assert.Contains(t, out, "Ana Lopez | cdl expires 2026-11-01")

	_, err = execute(t, "entities", "expiring", "--org", "org-1")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, reader.lastWithin)

	_, err = execute(t, "entities", "liftgate", "--org", "org-2")
	require.NoError(t, err)
	assert.Equal(t, "org-2", reader.lastScope.OrganizationID)

	_, err = execute(t, "entities", "unpaid", "--org", "org-3", "--connection", "conn-9")
	require.NoError(t, err)
	assert.Equal(t, driving.Scope{OrganizationID: "org-3", ConnectionID: "conn-9"}, reader.lastScope)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		fields domain.EntityFields
		want   string
	}{
		{"address", &domain.Address{Name: "Dallas Terminal", Line1: "1 Main St", City: "Dallas", State: "TX"}, "Dallas Terminal | 1 Main St | Dallas | TX"},
		{"carrier", &domain.Carrier{Name: "Roadrunner", MCNumber: "123456", Status: "approved"}, "Roadrunner | 123456 | approved"},
		{"fuel", &domain.FuelTransaction{
			TransactionAt: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
			VehicleUnit:   "42",
			Gallons:       101.5,
			TotalCents:    39575,
		}, "2026-05-03 | 42 | 101.5 gal | USD 395.75"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.fields))
		})
	}
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "a | c", joinNonEmpty([]string{"a", "", "c"}))
	assert.Empty(t, joinNonEmpty([]string{"", ""}))
}
