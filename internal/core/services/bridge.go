package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/checksum"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// Ensure EventBridge implements the interface.
var _ driving.EventBridge = (*EventBridge)(nil)

// DefaultPendingLease is how long a pending delivery may go untouched before
// RedriveAll treats it as abandoned.
const DefaultPendingLease = 5 * time.Minute

// EventBridge translates internal events into provider deltas and pushes
// them once per idempotency key. Exhausted or untranslatable events are
// parked as dead letters.
type EventBridge struct {
	ledger      driven.EventLedger
	connections driven.ConnectionStore
	factory     driven.ConnectorFactory
	retry       *RetryPolicy
	now         func() time.Time

	// PendingLease overrides DefaultPendingLease when positive.
	PendingLease time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewEventBridge creates an event bridge. retry bounds PushUpdate calls per delivery.
func NewEventBridge(
	ledger driven.EventLedger,
	connections driven.ConnectionStore,
	factory driven.ConnectorFactory,
	retry *RetryPolicy,
) *EventBridge {
	return &EventBridge{
		ledger:      ledger,
		connections: connections,
		factory:     factory,
		retry:       retry,
		now:         time.Now,
		inflight:    make(map[string]struct{}),
	}
}

// Handle delivers an event at most once per idempotency key.
// Delivery failures are reported through the returned entry's status.
// Ledger failures are returned as errors, and so is cancellation: the entry
// stays pending and the next delivery of the same event resumes it.
func (b *EventBridge) Handle(ctx context.Context, event domain.DomainEvent) (*domain.EventDelivery, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	key, err := checksum.EventKey(event.OrganizationID, event.Name, event.Payload)
	if err != nil {
		return nil, err
	}

	now := b.now()
	stored, created, err := b.ledger.Reserve(ctx, domain.EventDelivery{
		Key:            key,
		EventName:      event.Name,
		OrganizationID: event.OrganizationID,
		Payload:        event.Payload,
		Status:         domain.DeliveryPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("reserve event: %w", err)
	}
	if !created && stored.Status != domain.DeliveryPending {
		logger.Debug("duplicate event ignored",
			zap.String("event", event.Name),
			zap.String("key", key),
			zap.String("status", string(stored.Status)),
		)
		metrics.EventDeliveries.WithLabelValues(event.Name, "duplicate").Inc()
		return stored, nil
	}
	if !created {
		logger.Info("resuming pending event",
			zap.String("event", event.Name),
			zap.String("key", key),
		)
	}

	d, err := b.deliverOnce(ctx, stored)
	if err != nil {
		return d, err
	}
	if d.Status == domain.DeliveryPending {
		if cerr := ctx.Err(); cerr != nil {
			return d, fmt.Errorf("deliver event %s: %w", key, cerr)
		}
	}
	return d, nil
}

// DeadLetters lists parked deliveries.
func (b *EventBridge) DeadLetters(ctx context.Context, organizationID string) ([]domain.EventDelivery, error) {
	return b.ledger.ListByStatus(ctx, organizationID, domain.DeliveryDeadLettered)
}

// Redrive re-attempts one dead-lettered or stuck pending delivery.
func (b *EventBridge) Redrive(ctx context.Context, key string) (*domain.EventDelivery, error) {
	d, err := b.ledger.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if d.Status == domain.DeliverySucceeded {
		return d, nil
	}
	return b.deliverOnce(ctx, d)
}

// RedriveAll re-attempts every dead letter and every pending delivery left
// untouched for longer than the pending lease. Returns how many succeeded.
func (b *EventBridge) RedriveAll(ctx context.Context) (int, error) {
	parked, err := b.ledger.ListByStatus(ctx, "", domain.DeliveryDeadLettered)
	if err != nil {
		return 0, err
	}
	pending, err := b.ledger.ListByStatus(ctx, "", domain.DeliveryPending)
	if err != nil {
		return 0, err
	}
	cutoff := b.now().Add(-b.pendingLease())
	for i := range pending {
		if pending[i].UpdatedAt.Before(cutoff) {
			parked = append(parked, pending[i])
		}
	}

	delivered := 0
	for i := range parked {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		d, err := b.deliverOnce(ctx, &parked[i])
		if err != nil {
			return delivered, err
		}
		if d.Status == domain.DeliverySucceeded {
			delivered++
		}
	}
	return delivered, nil
}

func (b *EventBridge) pendingLease() time.Duration {
	if b.PendingLease > 0 {
		return b.PendingLease
	}
	return DefaultPendingLease
}

// deliverOnce runs deliver unless the key is already being delivered by
// this bridge, in which case the entry is returned untouched.
func (b *EventBridge) deliverOnce(ctx context.Context, d *domain.EventDelivery) (*domain.EventDelivery, error) {
	b.mu.Lock()
	if _, busy := b.inflight[d.Key]; busy {
		b.mu.Unlock()
		metrics.EventDeliveries.WithLabelValues(d.EventName, "in_flight").Inc()
		return d, nil
	}
	b.inflight[d.Key] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.inflight, d.Key)
		b.mu.Unlock()
	}()
	return b.deliver(ctx, d)
}

// deliver pushes a ledger entry and records the outcome.
func (b *EventBridge) deliver(ctx context.Context, d *domain.EventDelivery) (*domain.EventDelivery, error) {
	event := d.Event()
	log := logger.With(
		zap.String("event", d.EventName),
		zap.String("key", d.Key),
		zap.String("organization_id", d.OrganizationID),
	)

	pushErr := b.push(ctx, d, event)

	d.UpdatedAt = b.now()
	if pushErr == nil {
		d.Status = domain.DeliverySucceeded
		d.LastError = ""
		d.DeliveredAt = d.UpdatedAt
		log.Info("event delivered", zap.String("connection_id", d.ConnectionID), zap.Int("attempts", d.Attempts))
	} else {
		if errors.Is(pushErr, context.Canceled) || errors.Is(pushErr, context.DeadlineExceeded) {
			d.Status = domain.DeliveryPending
		} else {
			d.Status = domain.DeliveryDeadLettered
		}
		d.LastError = pushErr.Error()
		log.Warn("event not delivered",
			zap.String("status", string(d.Status)),
			zap.String("kind", domain.Classify(pushErr).String()),
			zap.Int("attempts", d.Attempts),
			zap.Error(pushErr),
		)
	}
	metrics.EventDeliveries.WithLabelValues(d.EventName, string(d.Status)).Inc()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := b.ledger.Save(saveCtx, *d); err != nil {
		return nil, fmt.Errorf("save event delivery: %w", err)
	}
	return d, nil
}

// push resolves the target connection and applies every delta.
func (b *EventBridge) push(ctx context.Context, d *domain.EventDelivery, event domain.DomainEvent) error {
	deltas, err := TranslateEvent(event)
	if err != nil {
		return err
	}

	conn, err := b.resolveConnection(ctx, event)
	if err != nil {
		return err
	}
	d.ConnectionID = conn.ID

	connector, err := b.factory.Create(ctx, *conn)
	if err != nil {
		return fmt.Errorf("create connector: %w", err)
	}
	defer connector.Close()

	var session *driven.Session
	if err := b.retry.Do(ctx, func(ctx context.Context) error {
		s, err := connector.Authenticate(ctx, conn.Credentials)
		session = s
		return err
	}, nil); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	reauth := func(ctx context.Context) error {
		s, err := connector.Authenticate(ctx, conn.Credentials)
		if err != nil {
			return err
		}
		session = s
		return nil
	}

	for _, delta := range deltas {
		err := b.retry.Do(ctx, func(ctx context.Context) error {
			d.Attempts++
			_, err := connector.PushUpdate(ctx, session, delta)
			return err
		}, reauth)
		if err != nil {
			return fmt.Errorf("push %s %s: %w", delta.Operation, delta.NaturalKey, err)
		}
	}
	return nil
}

// resolveConnection picks the write-back target. An explicit connectionId in
// the payload wins; otherwise the first healthy write-back connection of the
// organization is used.
func (b *EventBridge) resolveConnection(ctx context.Context, event domain.DomainEvent) (*domain.Connection, error) {
	if id := event.PayloadString(domain.PayloadConnectionID); id != "" {
		conn, err := b.connections.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: connection %s", domain.ErrNoWriteBackConnection, id)
		}
		if err != nil {
			return nil, err
		}
		if conn.OrganizationID != event.OrganizationID {
			return nil, fmt.Errorf("%w: connection %s", domain.ErrNoWriteBackConnection, id)
		}
		if err := conn.CheckSyncable(); err != nil {
			return nil, fmt.Errorf("%w: connection %s: %v", domain.ErrNoWriteBackConnection, id, err)
		}
		if !b.supportsWriteBack(conn.ProviderType) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWriteBackUnsupported, conn.ProviderType)
		}
		return conn, nil
	}

	conns, err := b.connections.List(ctx, domain.ConnectionFilter{
		OrganizationID: event.OrganizationID,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].CheckSyncable() == nil && b.supportsWriteBack(conns[i].ProviderType) {
			return &conns[i], nil
		}
	}
	return nil, domain.ErrNoWriteBackConnection
}

func (b *EventBridge) supportsWriteBack(providerType string) bool {
	desc, err := b.factory.Describe(providerType)
	return err == nil && desc.SupportsWriteBack
}

// TranslateEvent maps a domain event to provider deltas.
func TranslateEvent(event domain.DomainEvent) ([]domain.EntityDelta, error) {
	require := func(keys ...string) error {
		for _, k := range keys {
			if event.PayloadString(k) == "" {
				return fmt.Errorf("%w: %s requires %s", domain.ErrInvalidInput, event.Name, k)
			}
		}
		return nil
	}

	switch event.Name {
	case domain.EventCarrierAssigned:
		if err := require(domain.PayloadOrderID, domain.PayloadCarrierID); err != nil {
			return nil, err
		}
		return []domain.EntityDelta{{
			EntityType: domain.EntityCarriers,
			NaturalKey: event.PayloadString(domain.PayloadCarrierID),
			Operation:  domain.DeltaAssignCarrier,
			Fields:     map[string]any{domain.PayloadOrderID: event.PayloadString(domain.PayloadOrderID)},
		}}, nil

	case domain.EventCarrierUnassigned:
		if err := require(domain.PayloadOrderID); err != nil {
			return nil, err
		}
		return []domain.EntityDelta{{
			EntityType: domain.EntityCarriers,
			NaturalKey: event.PayloadString(domain.PayloadCarrierID),
			Operation:  domain.DeltaUnassignCarrier,
			Fields:     map[string]any{domain.PayloadOrderID: event.PayloadString(domain.PayloadOrderID)},
		}}, nil

	case domain.EventInvoiceStatusChanged:
		if err := require(domain.PayloadInvoiceID, domain.PayloadStatus); err != nil {
			return nil, err
		}
		return []domain.EntityDelta{{
			EntityType: domain.EntityInvoices,
			NaturalKey: event.PayloadString(domain.PayloadInvoiceID),
			Operation:  domain.DeltaUpdateStatus,
			Fields:     map[string]any{domain.PayloadStatus: event.PayloadString(domain.PayloadStatus)},
		}}, nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedEvent, event.Name)
	}
}
