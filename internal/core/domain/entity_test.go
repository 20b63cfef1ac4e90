package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	for _, et := range AllEntityTypes() {
		got, err := ParseEntityType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}

	_, err := ParseEntityType("loads")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNewFields_MatchesType(t *testing.T) {
	for _, et := range AllEntityTypes() {
		f, err := NewFields(et)
		require.NoError(t, err)
		assert.Equal(t, et, f.EntityType())
	}

	_, err := NewFields("bogus")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDecodeFields(t *testing.T) {
	t.Run("vehicle", func(t *testing.T) {
		f, err := DecodeFields(EntityVehicles, []byte(`{"unitNumber":"T-100","hasLiftgate":true}`))
		require.NoError(t, err)

		v, ok := f.(*Vehicle)
		require.True(t, ok)
		assert.Equal(t, "T-100", v.UnitNumber)
		assert.True(t, v.HasLiftgate)
	})

	t.Run("empty payload", func(t *testing.T) {
		f, err := DecodeFields(EntityCarriers, nil)
		require.NoError(t, err)
		assert.IsType(t, &Carrier{}, f)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeFields(EntityInvoices, []byte(`{`))
		assert.Error(t, err)
	})
}

func TestTrucker_ExpiringWithin(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tr := Trucker{Documents: []TruckerDocument{
		{Kind: "cdl", ExpiresAt: now.Add(10 * 24 * time.Hour)},
		{Kind: "medical", ExpiresAt: now.Add(90 * 24 * time.Hour)},
		{Kind: "hazmat", ExpiresAt: now.Add(-24 * time.Hour)},
		{Kind: "twic"},
	}}

	got := tr.ExpiringWithin(now, 30*24*time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, "cdl", got[0].Kind)
	assert.Equal(t, "hazmat", got[1].Kind)
}

func TestInvoice_Outstanding(t *testing.T) {
	assert.True(t, (&Invoice{Status: InvoiceStatusOpen}).Outstanding())
	assert.True(t, (&Invoice{Status: InvoiceStatusOverdue}).Outstanding())
	assert.False(t, (&Invoice{Status: InvoiceStatusPaid}).Outstanding())
	assert.False(t, (&Invoice{Status: InvoiceStatusVoid}).Outstanding())
	assert.False(t, (&Invoice{Status: "sent", PaidAt: time.Now()}).Outstanding())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, "active", StatusOf(&Vehicle{Status: "active"}))
	assert.Equal(t, "paid", StatusOf(&Invoice{Status: "paid"}))
	assert.Empty(t, StatusOf(&Address{}))
}
