package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Ensure EventLedger implements the interface.
var _ driven.EventLedger = (*EventLedger)(nil)

// EventLedger is an in-memory implementation of driven.EventLedger.
type EventLedger struct {
	mu      sync.RWMutex
	entries map[string]domain.EventDelivery
}

// NewEventLedger creates a new in-memory event ledger.
func NewEventLedger() *EventLedger {
	return &EventLedger{entries: make(map[string]domain.EventDelivery)}
}

// Reserve creates a pending entry unless the key already exists.
func (l *EventLedger) Reserve(_ context.Context, d domain.EventDelivery) (*domain.EventDelivery, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.entries[d.Key]; ok {
		e := cloneDelivery(existing)
		return &e, false, nil
	}
	l.entries[d.Key] = cloneDelivery(d)
	e := cloneDelivery(d)
	return &e, true, nil
}

// Save updates an existing entry.
func (l *EventLedger) Save(_ context.Context, d domain.EventDelivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[d.Key]; !ok {
		return domain.ErrNotFound
	}
	l.entries[d.Key] = cloneDelivery(d)
	return nil
}

// Get retrieves an entry by key.
func (l *EventLedger) Get(_ context.Context, key string) (*domain.EventDelivery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e := cloneDelivery(d)
	return &e, nil
}

// ListByStatus returns entries in a status, oldest first.
func (l *EventLedger) ListByStatus(
	_ context.Context,
	organizationID string,
	status domain.DeliveryStatus,
) ([]domain.EventDelivery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []domain.EventDelivery
	for _, d := range l.entries {
		if d.Status != status {
			continue
		}
		if organizationID != "" && d.OrganizationID != organizationID {
			continue
		}
		result = append(result, cloneDelivery(d))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Key < result[j].Key
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneDelivery(d domain.EventDelivery) domain.EventDelivery {
	if d.Payload != nil {
		p := make(map[string]any, len(d.Payload))
		for k, v := range d.Payload {
			p[k] = v
		}
		d.Payload = p
	}
	return d
}
