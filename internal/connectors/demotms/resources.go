package demotms

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/custodia-labs/fleetsync/internal/connectors"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// resources maps canonical types to demoTMS collection paths.
var resources = map[domain.EntityType]string{
	domain.EntityVehicles:  "vehicles",
	domain.EntityTruckers:  "drivers",
	domain.EntityAddresses: "locations",
	domain.EntityInvoices:  "invoices",
	domain.EntityCarriers:  "carriers",
}

func resourceFor(t domain.EntityType) (string, bool) {
	r, ok := resources[t]
	return r, ok
}

type mapperFunc func(item json.RawMessage) (*domain.CanonicalEntity, error)

var mappers = map[domain.EntityType]mapperFunc{
	domain.EntityVehicles:  mapVehicle,
	domain.EntityTruckers:  mapDriver,
	domain.EntityAddresses: mapLocation,
	domain.EntityInvoices:  mapInvoice,
	domain.EntityCarriers:  mapCarrier,
}

// ==================== Vehicles ====================

type tmsVehicle struct {
	ID           connectors.FlexString `json:"id"`
	UnitNumber   string                `json:"unitNumber"`
	VIN          string                `json:"vin"`
	Make         string                `json:"make"`
	Model        string                `json:"model"`
	Year         int                   `json:"year"`
	Type         string                `json:"type"`
	Status       string                `json:"status"`
	HasLiftgate  bool                  `json:"hasLiftgate"`
	CapacityLbs  int                   `json:"capacityLbs"`
	LicensePlate struct {
		Number string `json:"number"`
		State  string `json:"state"`
	} `json:"licensePlate"`
	UpdatedAt string `json:"updatedAt"`
}

func mapVehicle(item json.RawMessage) (*domain.CanonicalEntity, error) {
	var v tmsVehicle
	if err := connectors.DecodeItem(domain.EntityVehicles, item, &v); err != nil {
		return nil, err
	}
	if v.ID == "" {
		return nil, connectors.MappingError(domain.EntityVehicles, "missing id")
	}
	if v.UnitNumber == "" {
		return nil, connectors.MappingError(domain.EntityVehicles, "vehicle %s has no unit number", v.ID)
	}
	updated, err := parseTime(domain.EntityVehicles, "updatedAt", v.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &domain.CanonicalEntity{
		NaturalKey: v.ID.String(),
		Fields: &domain.Vehicle{
			UnitNumber:  v.UnitNumber,
			VIN:         strings.ToUpper(v.VIN),
			Make:        v.Make,
			Model:       v.Model,
			Year:        v.Year,
			PlateNumber: v.LicensePlate.Number,
			PlateState:  strings.ToUpper(v.LicensePlate.State),
			Kind:        lower(v.Type),
			Status:      lower(v.Status),
			HasLiftgate: v.HasLiftgate,
			CapacityLbs: v.CapacityLbs,
		},
		SourceUpdatedAt: updated,
	}, nil
}

// ==================== Drivers ====================

type tmsDocument struct {
	Number    string `json:"number"`
	State     string `json:"state"`
	ExpiresAt string `json:"expiresAt"`
}

type tmsDriver struct {
	ID          connectors.FlexString `json:"id"`
	FirstName   string                `json:"firstName"`
	LastName    string                `json:"lastName"`
	Email       string                `json:"email"`
	Phone       string                `json:"phone"`
	Status      string                `json:"status"`
	License     *tmsDocument          `json:"license"`
	MedicalCard *tmsDocument          `json:"medicalCard"`
	Hazmat      *tmsDocument          `json:"hazmatEndorsement"`
	UpdatedAt   string                `json:"updatedAt"`
}

func mapDriver(item json.RawMessage) (*domain.CanonicalEntity, error) {
	var d tmsDriver
	if err := connectors.DecodeItem(domain.EntityTruckers, item, &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, connectors.MappingError(domain.EntityTruckers, "missing id")
	}
	updated, err := parseTime(domain.EntityTruckers, "updatedAt", d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	trucker := &domain.Trucker{
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     strings.ToLower(d.Email),
		Phone:     d.Phone,
		Status:    lower(d.Status),
	}
	if d.License != nil {
		trucker.LicenseNumber = d.License.Number
		trucker.LicenseState = strings.ToUpper(d.License.State)
	}

	docs := []struct {
		kind string
		doc  *tmsDocument
	}{
		{"cdl", d.License},
		{"medical_card", d.MedicalCard},
		{"hazmat", d.Hazmat},
	}
	for _, entry := range docs {
		if entry.doc == nil {
			continue
		}
		expires, err := parseTime(domain.EntityTruckers, entry.kind+".expiresAt", entry.doc.ExpiresAt)
		if err != nil {
			return nil, err
		}
		trucker.Documents = append(trucker.Documents, domain.TruckerDocument{
			Kind:      entry.kind,
			Number:    entry.doc.Number,
			ExpiresAt: expires,
		})
	}

	return &domain.CanonicalEntity{
		NaturalKey:      d.ID.String(),
		Fields:          trucker,
		SourceUpdatedAt: updated,
	}, nil
}

// ==================== Locations ====================

type tmsLocation struct {
	ID        connectors.FlexString `json:"id"`
	Name      string                `json:"name"`
	Address1  string                `json:"address1"`
	Address2  string                `json:"address2"`
	City      string                `json:"city"`
	State     string                `json:"state"`
	Zip       connectors.FlexString `json:"zip"`
	Country   string                `json:"country"`
	Lat       float64               `json:"lat"`
	Lng       float64               `json:"lng"`
	Type      string                `json:"type"`
	UpdatedAt string                `json:"updatedAt"`
}

func mapLocation(item json.RawMessage) (*domain.CanonicalEntity, error) {
	var l tmsLocation
	if err := connectors.DecodeItem(domain.EntityAddresses, item, &l); err != nil {
		return nil, err
	}
	if l.ID == "" {
		return nil, connectors.MappingError(domain.EntityAddresses, "missing id")
	}
	updated, err := parseTime(domain.EntityAddresses, "updatedAt", l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	country := strings.ToUpper(l.Country)
	if country == "" {
		country = "US"
	}
	return &domain.CanonicalEntity{
		NaturalKey: l.ID.String(),
		Fields: &domain.Address{
			Name:       l.Name,
			Line1:      l.Address1,
			Line2:      l.Address2,
			City:       l.City,
			State:      strings.ToUpper(l.State),
			PostalCode: l.Zip.String(),
			Country:    country,
			Latitude:   l.Lat,
			Longitude:  l.Lng,
			Kind:       lower(l.Type),
		},
		SourceUpdatedAt: updated,
	}, nil
}

// ==================== Invoices ====================

type tmsInvoice struct {
	ID            connectors.FlexString `json:"id"`
	InvoiceNumber string                `json:"invoiceNumber"`
	Customer      struct {
		Name string `json:"name"`
	} `json:"customer"`
	LoadNumber string      `json:"loadNumber"`
	Status     string      `json:"status"`
	Currency   string      `json:"currency"`
	Total      json.Number `json:"total"`
	IssuedDate string      `json:"issuedDate"`
	DueDate    string      `json:"dueDate"`
	PaidDate   string      `json:"paidDate"`
	UpdatedAt  string      `json:"updatedAt"`
}

func mapInvoice(item json.RawMessage) (*domain.CanonicalEntity, error) {
	var inv tmsInvoice
	if err := connectors.DecodeItem(domain.EntityInvoices, item, &inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		return nil, connectors.MappingError(domain.EntityInvoices, "missing id")
	}
	cents, err := connectors.Cents(inv.Total)
	if err != nil {
		return nil, connectors.MappingError(domain.EntityInvoices, "invoice %s: %v", inv.ID, err)
	}

	var issued, due, paid, updated time.Time
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Time
	}{
		{"issuedDate", inv.IssuedDate, &issued},
		{"dueDate", inv.DueDate, &due},
		{"paidDate", inv.PaidDate, &paid},
		{"updatedAt", inv.UpdatedAt, &updated},
	} {
		t, err := parseTime(domain.EntityInvoices, f.name, f.value)
		if err != nil {
			return nil, err
		}
		*f.dst = t
	}

	currency := strings.ToUpper(inv.Currency)
	if currency == "" {
		currency = "USD"
	}
	number := inv.InvoiceNumber
	if number == "" {
		number = inv.ID.String()
	}

	return &domain.CanonicalEntity{
		NaturalKey: inv.ID.String(),
		Fields: &domain.Invoice{
			Number:       number,
			CustomerName: inv.Customer.Name,
			LoadNumber:   inv.LoadNumber,
			Status:       canonicalInvoiceStatus(inv.Status),
			Currency:     currency,
			AmountCents:  cents,
			IssuedAt:     issued,
			DueAt:        due,
			PaidAt:       paid,
		},
		SourceUpdatedAt: updated,
	}, nil
}

// canonicalInvoiceStatus maps demoTMS invoice states onto the canonical set.
func canonicalInvoiceStatus(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DRAFT":
		return domain.InvoiceStatusDraft
	case "PAID":
		return domain.InvoiceStatusPaid
	case "VOID", "VOIDED", "CANCELLED", "CANCELED":
		return domain.InvoiceStatusVoid
	case "OVERDUE", "PAST_DUE":
		return domain.InvoiceStatusOverdue
	case "OPEN", "SENT", "PARTIALLY_PAID":
		return domain.InvoiceStatusOpen
	default:
		return lower(s)
	}
}

// providerInvoiceStatus is the inverse of canonicalInvoiceStatus for write-back.
func providerInvoiceStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case domain.InvoiceStatusDraft:
		return "DRAFT"
	case domain.InvoiceStatusPaid:
		return "PAID"
	case domain.InvoiceStatusVoid:
		return "VOID"
	case domain.InvoiceStatusOverdue:
		return "PAST_DUE"
	case domain.InvoiceStatusOpen:
		return "OPEN"
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}

// ==================== Carriers ====================

type tmsCarrier struct {
	ID        connectors.FlexString `json:"id"`
	Name      string                `json:"name"`
	MCNumber  connectors.FlexString `json:"mcNumber"`
	DOTNumber connectors.FlexString `json:"dotNumber"`
	SCAC      string                `json:"scac"`
	Status    string                `json:"status"`
	Contact   struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"contact"`
	InsuranceExpiration string `json:"insuranceExpiration"`
	UpdatedAt           string `json:"updatedAt"`
}

func mapCarrier(item json.RawMessage) (*domain.CanonicalEntity, error) {
	var c tmsCarrier
	if err := connectors.DecodeItem(domain.EntityCarriers, item, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, connectors.MappingError(domain.EntityCarriers, "missing id")
	}
	if c.Name == "" {
		return nil, connectors.MappingError(domain.EntityCarriers, "carrier %s has no name", c.ID)
	}
	insurance, err := parseTime(domain.EntityCarriers, "insuranceExpiration", c.InsuranceExpiration)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(domain.EntityCarriers, "updatedAt", c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &domain.CanonicalEntity{
		NaturalKey: c.ID.String(),
		Fields: &domain.Carrier{
			Name:               c.Name,
			MCNumber:           c.MCNumber.String(),
			DOTNumber:          c.DOTNumber.String(),
			SCAC:               strings.ToUpper(c.SCAC),
			Status:             lower(c.Status),
			Email:              strings.ToLower(c.Contact.Email),
			Phone:              c.Contact.Phone,
			InsuranceExpiresAt: insurance,
		},
		SourceUpdatedAt: updated,
	}, nil
}

// ==================== Helpers ====================

func parseTime(t domain.EntityType, field, value string) (time.Time, error) {
	parsed, err := connectors.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, connectors.MappingError(t, "%s: %v", field, err)
	}
	return parsed, nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
