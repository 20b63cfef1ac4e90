package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored values.
const (
	DomainEntity = "fleetsync/entity/v1"
	DomainEvent  = "fleetsync/event/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data) as hex.
func hashWithDomain(domainPrefix string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domainPrefix))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Compute returns the checksum of an entity's semantically relevant content:
// type, natural key and typed fields. SyncedAt, SyncVersion, SourceUpdatedAt
// and the raw payload are excluded.
func Compute(e *domain.CanonicalEntity) (string, error) {
	if e == nil || e.Fields == nil {
		return "", fmt.Errorf("%w: entity has no fields", domain.ErrInvalidInput)
	}
	obj := struct {
		Type       domain.EntityType   `json:"type"`
		NaturalKey string              `json:"naturalKey"`
		Fields     domain.EntityFields `json:"fields"`
	}{
		Type:       e.Type,
		NaturalKey: e.NaturalKey,
		Fields:     e.Fields,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("checksum %s/%s: %w", e.Type, e.NaturalKey, err)
	}
	return hashWithDomain(DomainEntity, canonical), nil
}

// EventKey returns the idempotency key of a domain event within an
// organization. When the payload names an order or a carrier the key is
// derived from (event name, orderId, carrierId) so retried publishes with
// extra volatile fields still collapse. Otherwise the whole payload is hashed.
func EventKey(organizationID, name string, payload map[string]any) (string, error) {
	orderID, hasOrder := payload[domain.PayloadOrderID]
	carrierID, hasCarrier := payload[domain.PayloadCarrierID]

	var obj map[string]any
	if hasOrder || hasCarrier {
		obj = map[string]any{
			"org":       organizationID,
			"event":     name,
			"orderId":   orderID,
			"carrierId": carrierID,
		}
		// Invoice transitions share an order id across statuses.
		if status, ok := payload[domain.PayloadStatus]; ok {
			obj["status"] = status
		}
	} else {
		obj = map[string]any{
			"org":     organizationID,
			"event":   name,
			"payload": payload,
		}
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("event key %s: %w", name, err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
