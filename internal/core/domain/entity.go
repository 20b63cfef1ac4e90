package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies a canonical collection in the data lake.
type EntityType string

const (
	EntityVehicles         EntityType = "vehicles"
	EntityTruckers         EntityType = "truckers"
	EntityAddresses        EntityType = "addresses"
	EntityInvoices         EntityType = "invoices"
	EntityCarriers         EntityType = "carriers"
	EntityFuelTransactions EntityType = "fuel_transactions"
)

// AllEntityTypes returns every canonical entity type in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityVehicles,
		EntityTruckers,
		EntityAddresses,
		EntityInvoices,
		EntityCarriers,
		EntityFuelTransactions,
	}
}

// IsValid returns true if the entity type is recognised.
func (t EntityType) IsValid() bool {
	for _, et := range AllEntityTypes() {
		if et == t {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (t EntityType) String() string {
	return string(t)
}

// ParseEntityType converts user input into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: entity type %q", ErrUnsupportedType, s)
	}
	return t, nil
}

// UpsertResult reports what the writer did with an entity.
type UpsertResult string

const (
	UpsertInserted  UpsertResult = "inserted"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// CanonicalEntity is one normalised record in the tenant data lake.
// Identity is (Type, ConnectionID, NaturalKey); OrganizationID partitions every query.
type CanonicalEntity struct {
	// Type is the canonical collection.
	Type EntityType

	// NaturalKey is the provider's identifier, unique per connection.
	NaturalKey string

	// OrganizationID is the owning tenant.
	OrganizationID string

	// ConnectionID is the connection the record was synced from.
	ConnectionID string

	// RawPayload is the provider's item as received.
	RawPayload json.RawMessage

	// Fields holds the typed, provider-independent fields.
	Fields EntityFields

	// SourceUpdatedAt is the provider's last-modified time, when reported.
	SourceUpdatedAt time.Time

	// SyncedAt is when the record was last seen by a sync run.
	SyncedAt time.Time

	// SyncVersion increases only when the checksum changes.
	SyncVersion int64

	// Checksum is the hash of the semantically relevant fields.
	Checksum string
}

// EntityFields is implemented by each typed field struct.
type EntityFields interface {
	EntityType() EntityType
}

// NewFields returns an empty typed field struct for the entity type.
func NewFields(t EntityType) (EntityFields, error) {
	switch t {
	case EntityVehicles:
		return &Vehicle{}, nil
	case EntityTruckers:
		return &Trucker{}, nil
	case EntityAddresses:
		return &Address{}, nil
	case EntityInvoices:
		return &Invoice{}, nil
	case EntityCarriers:
		return &Carrier{}, nil
	case EntityFuelTransactions:
		return &FuelTransaction{}, nil
	default:
		return nil, fmt.Errorf("%w: entity type %q", ErrUnsupportedType, t)
	}
}

// DecodeFields unmarshals stored JSON into the typed field struct.
func DecodeFields(t EntityType, data []byte) (EntityFields, error) {
	fields, err := NewFields(t)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", t, err)
	}
	return fields, nil
}

// Vehicle is a tractor, trailer or straight truck.
type Vehicle struct {
	UnitNumber  string `json:"unitNumber"`
	VIN         string `json:"vin,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Year        int    `json:"year,omitempty"`
	PlateNumber string `json:"plateNumber,omitempty"`
	PlateState  string `json:"plateState,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Status      string `json:"status,omitempty"`
	HasLiftgate bool   `json:"hasLiftgate"`
	CapacityLbs int    `json:"capacityLbs,omitempty"`
}

// EntityType implements EntityFields.
func (*Vehicle) EntityType() EntityType { return EntityVehicles }

// Trucker is a driver with compliance documents.
type Trucker struct {
	FirstName     string            `json:"firstName"`
	LastName      string            `json:"lastName"`
	Email         string            `json:"email,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	LicenseNumber string            `json:"licenseNumber,omitempty"`
	LicenseState  string            `json:"licenseState,omitempty"`
	Status        string            `json:"status,omitempty"`
	Documents     []TruckerDocument `json:"documents,omitempty"`
}

// EntityType implements EntityFields.
func (*Trucker) EntityType() EntityType { return EntityTruckers }

// TruckerDocument is a licence, medical card or similar expiring document.
type TruckerDocument struct {
	Kind      string    `json:"kind"`
	Number    string    `json:"number,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExpiringWithin returns the documents that expire in [now, now+within].
// Already expired documents are included since they need attention first.
func (t *Trucker) ExpiringWithin(now time.Time, within time.Duration) []TruckerDocument {
	deadline := now.Add(within)
	var out []TruckerDocument
	for _, d := range t.Documents {
		if d.ExpiresAt.IsZero() {
			continue
		}
		if !d.ExpiresAt.After(deadline) {
			out = append(out, d)
		}
	}
	return out
}

// Address is a customer, shipper or terminal location.
type Address struct {
	Name       string  `json:"name,omitempty"`
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postalCode,omitempty"`
	Country    string  `json:"country,omitempty"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
	Kind       string  `json:"kind,omitempty"`
}

// EntityType implements EntityFields.
func (*Address) EntityType() EntityType { return EntityAddresses }

// Invoice status values recognised by the readers.
const (
	InvoiceStatusDraft   = "draft"
	InvoiceStatusOpen    = "open"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusVoid    = "void"
	InvoiceStatusOverdue = "overdue"
)

// Invoice is a customer invoice for a load.
type Invoice struct {
	Number       string    `json:"number"`
	CustomerName string    `json:"customerName,omitempty"`
	LoadNumber   string    `json:"loadNumber,omitempty"`
	Status       string    `json:"status"`
	Currency     string    `json:"currency,omitempty"`
	AmountCents  int64     `json:"amountCents"`
	IssuedAt     time.Time `json:"issuedAt,omitempty"`
	DueAt        time.Time `json:"dueAt,omitempty"`
	PaidAt       time.Time `json:"paidAt,omitempty"`
}

// EntityType implements EntityFields.
func (*Invoice) EntityType() EntityType { return EntityInvoices }

// Outstanding reports whether the invoice still awaits payment.
func (i *Invoice) Outstanding() bool {
	switch i.Status {
	case InvoiceStatusPaid, InvoiceStatusVoid, InvoiceStatusDraft:
		return false
	default:
		return i.PaidAt.IsZero()
	}
}

// Carrier is a trucking company loads can be assigned to.
type Carrier struct {
	Name               string    `json:"name"`
	MCNumber           string    `json:"mcNumber,omitempty"`
	DOTNumber          string    `json:"dotNumber,omitempty"`
	SCAC               string    `json:"scac,omitempty"`
	Status             string    `json:"status,omitempty"`
	Email              string    `json:"email,omitempty"`
	Phone              string    `json:"phone,omitempty"`
	InsuranceExpiresAt time.Time `json:"insuranceExpiresAt,omitempty"`
}

// EntityType implements EntityFields.
func (*Carrier) EntityType() EntityType { return EntityCarriers }

// FuelTransaction is a fuel-card purchase.
type FuelTransaction struct {
	CardLast4           string    `json:"cardLast4,omitempty"`
	TransactionAt       time.Time `json:"transactionAt"`
	VehicleUnit         string    `json:"vehicleUnit,omitempty"`
	DriverName          string    `json:"driverName,omitempty"`
	MerchantName        string    `json:"merchantName,omitempty"`
	City                string    `json:"city,omitempty"`
	State               string    `json:"state,omitempty"`
	FuelType            string    `json:"fuelType,omitempty"`
	Gallons             float64   `json:"gallons"`
	PricePerGallonCents int64     `json:"pricePerGallonCents,omitempty"`
	TotalCents          int64     `json:"totalCents"`
}

// EntityType implements EntityFields.
func (*FuelTransaction) EntityType() EntityType { return EntityFuelTransactions }

// EntityQuery selects canonical entities. OrganizationID is mandatory.
type EntityQuery struct {
	OrganizationID string
	ConnectionID   string
	Type           EntityType
	Limit          int
	Offset         int
}

// EntityStats summarises one entity type for a tenant.
type EntityStats struct {
	Type         EntityType
	Total        int
	ByStatus     map[string]int
	ByConnection map[string]int
	LastSyncedAt time.Time
}

// StatusOf returns the "status" field for types that have one.
func StatusOf(fields EntityFields) string {
	switch f := fields.(type) {
	case *Vehicle:
		return f.Status
	case *Trucker:
		return f.Status
	case *Invoice:
		return f.Status
	case *Carrier:
		return f.Status
	default:
		return ""
	}
}
