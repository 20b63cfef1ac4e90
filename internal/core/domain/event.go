package domain

import (
	"fmt"
	"time"
)

// Event names the bridge knows how to translate.
const (
	EventCarrierAssigned      = "carrier.assigned"
	EventCarrierUnassigned    = "carrier.unassigned"
	EventInvoiceStatusChanged = "invoice.status_changed"
)

// Payload keys used by the event translators and the idempotency key.
const (
	PayloadOrderID      = "orderId"
	PayloadCarrierID    = "carrierId"
	PayloadInvoiceID    = "invoiceId"
	PayloadStatus       = "status"
	PayloadConnectionID = "connectionId"
)

// DomainEvent is an internal state change that may be pushed to a provider.
type DomainEvent struct {
	Name           string         `json:"name"`
	OrganizationID string         `json:"organizationId"`
	Payload        map[string]any `json:"payload"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

// Validate checks the fields every event must carry.
func (e *DomainEvent) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}
	if e.OrganizationID == "" {
		return fmt.Errorf("%w: event organization is required", ErrInvalidInput)
	}
	return nil
}

// PayloadString returns a payload value as a string, or "" if absent.
func (e *DomainEvent) PayloadString(key string) string {
	v, ok := e.Payload[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// DeliveryStatus is the ledger state of an event.
type DeliveryStatus string

const (
	DeliveryPending      DeliveryStatus = "pending"
	DeliverySucceeded    DeliveryStatus = "succeeded"
	DeliveryDeadLettered DeliveryStatus = "dead_lettered"
)

// IsValid returns true if the status is recognised.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliverySucceeded, DeliveryDeadLettered:
		return true
	default:
		return false
	}
}

// EventDelivery is the idempotency ledger entry for one event.
type EventDelivery struct {
	// Key is the idempotency key derived from the event.
	Key string

	EventName      string
	OrganizationID string

	// ConnectionID is the connection the event was pushed to, once resolved.
	ConnectionID string

	Payload map[string]any
	Status  DeliveryStatus

	// Attempts counts PushUpdate calls across all deliveries of this event.
	Attempts int

	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt time.Time
}

// Event rebuilds the domain event stored in the ledger.
func (d *EventDelivery) Event() DomainEvent {
	return DomainEvent{
		Name:           d.EventName,
		OrganizationID: d.OrganizationID,
		Payload:        d.Payload,
		ReceivedAt:     d.CreatedAt,
	}
}

// DeltaOperation is the write-back action a provider performs.
type DeltaOperation string

const (
	DeltaAssignCarrier   DeltaOperation = "assign_carrier"
	DeltaUnassignCarrier DeltaOperation = "unassign_carrier"
	DeltaUpdateStatus    DeltaOperation = "update_status"
)

// EntityDelta is one change pushed back to a provider.
type EntityDelta struct {
	EntityType EntityType
	NaturalKey string
	Operation  DeltaOperation
	Fields     map[string]any
}

// PushAck is the provider's acknowledgement of a delta.
type PushAck struct {
	ExternalID string
	Status     string
}
