package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

// Ensure ConnectionService implements the interface.
var _ driving.ConnectionService = (*ConnectionService)(nil)

// ConnectionService manages the lifecycle of tenant connections.
type ConnectionService struct {
	connections driven.ConnectionStore
	states      driven.SyncStateStore
	factory     driven.ConnectorFactory

	// registerMu serialises the duplicate check with the insert.
	registerMu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewConnectionService creates a new connection service.
func NewConnectionService(
	connections driven.ConnectionStore,
	states driven.SyncStateStore,
	factory driven.ConnectorFactory,
) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		states:      states,
		factory:     factory,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Register creates a new active connection.
func (s *ConnectionService) Register(ctx context.Context, req driving.RegisterConnectionRequest) (*domain.Connection, error) {
	if req.OrganizationID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	if req.ProviderType == "" {
		return nil, fmt.Errorf("%w: provider type is required", domain.ErrInvalidInput)
	}

	desc, err := s.factory.Describe(req.ProviderType)
	if err != nil {
		return nil, err
	}

	creds := applyCredentialDefaults(desc, req.Credentials)
	if missing := desc.MissingCredentials(creds); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing credentials: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}

	syncCfg, err := normaliseSyncConfig(req.SyncConfig, desc)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = desc.Name
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	existing, err := s.connections.List(ctx, domain.ConnectionFilter{
		OrganizationID: req.OrganizationID,
		ProviderType:   req.ProviderType,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	for _, c := range existing {
		if !req.MultiHomed || !c.MultiHomed {
			return nil, fmt.Errorf("%w: %s already connected as %s", domain.ErrDuplicateConnection, req.ProviderType, c.ID)
		}
	}

	now := s.now()
	conn := domain.Connection{
		ID:             s.newID(),
		OrganizationID: req.OrganizationID,
		ProviderType:   req.ProviderType,
		Name:           name,
		Credentials:    creds,
		SyncConfig:     syncCfg,
		MultiHomed:     req.MultiHomed,
		IsActive:       true,
		Status:         domain.ConnectionDisconnected,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.connections.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	logger.Info("connection registered",
		zap.String("connection_id", conn.ID),
		zap.String("organization_id", conn.OrganizationID),
		zap.String("provider", conn.ProviderType),
	)
	return &conn, nil
}

// Update changes the name, credentials or sync configuration.
func (s *ConnectionService) Update(ctx context.Context, req driving.UpdateConnectionRequest) (*domain.Connection, error) {
	conn, err := s.connections.Get(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	desc, err := s.factory.Describe(conn.ProviderType)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		conn.Name = *req.Name
	}
	if req.Credentials != nil {
		merged := make(map[string]string, len(conn.Credentials)+len(req.Credentials))
		for k, v := range conn.Credentials {
			merged[k] = v
		}
		for k, v := range req.Credentials {
			merged[k] = v
		}
		if missing := desc.MissingCredentials(merged); len(missing) > 0 {
			return nil, fmt.Errorf("%w: missing credentials: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
		}
		conn.Credentials = merged
	}
	if req.SyncConfig != nil {
		cfg, err := normaliseSyncConfig(*req.SyncConfig, desc)
		if err != nil {
			return nil, err
		}
		conn.SyncConfig = cfg
	}

	conn.UpdatedAt = s.now()
	if err := s.connections.Save(ctx, *conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	return conn, nil
}

// Get retrieves a connection by ID.
func (s *ConnectionService) Get(ctx context.Context, id string) (*domain.Connection, error) {
	return s.connections.Get(ctx, id)
}

// List returns the connections of an organization.
func (s *ConnectionService) List(ctx context.Context, organizationID string) ([]domain.Connection, error) {
	if organizationID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	return s.connections.List(ctx, domain.ConnectionFilter{OrganizationID: organizationID})
}

// Deactivate stops further syncs. Data already synced stays readable.
func (s *ConnectionService) Deactivate(ctx context.Context, id string) error {
	conn, err := s.connections.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	if !conn.IsActive {
		return nil
	}
	conn.IsActive = false
	conn.Status = domain.ConnectionDisconnected
	conn.UpdatedAt = s.now()
	if err := s.connections.Save(ctx, *conn); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	logger.Info("connection deactivated", zap.String("connection_id", id))
	return nil
}

// Reset clears the error state so a suspended connection syncs again.
func (s *ConnectionService) Reset(ctx context.Context, id string) error {
	conn, err := s.connections.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	if conn.Status == domain.ConnectionError {
		conn.Status = domain.ConnectionDisconnected
	}
	conn.LastError = ""
	conn.UpdatedAt = s.now()
	if err := s.connections.Save(ctx, *conn); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	logger.Info("connection reset", zap.String("connection_id", id))
	return nil
}

// Health returns status, last sync and last error for a connection.
// A connection outside the organization is reported as not found.
func (s *ConnectionService) Health(ctx context.Context, organizationID, connectionID string) (*domain.ConnectionHealth, error) {
	if organizationID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.OrganizationID != organizationID {
		return nil, domain.ErrNotFound
	}

	states, err := s.states.List(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("list sync states: %w", err)
	}

	return &domain.ConnectionHealth{
		ConnectionID:   conn.ID,
		OrganizationID: conn.OrganizationID,
		ProviderType:   conn.ProviderType,
		IsActive:       conn.IsActive,
		Status:         conn.Status,
		LastSyncAt:     conn.LastSyncAt,
		LastError:      conn.LastError,
		EntityStates:   states,
	}, nil
}

// Providers lists the provider types that can be registered.
func (s *ConnectionService) Providers() []domain.ProviderDescriptor {
	var out []domain.ProviderDescriptor
	for _, t := range s.factory.SupportedTypes() {
		if desc, err := s.factory.Describe(t); err == nil {
			out = append(out, *desc)
		}
	}
	return out
}

func applyCredentialDefaults(desc *domain.ProviderDescriptor, creds map[string]string) map[string]string {
	out := make(map[string]string, len(creds))
	for k, v := range creds {
		out[k] = v
	}
	for _, k := range desc.CredentialKeys {
		if out[k.Key] == "" && k.Default != "" {
			out[k.Key] = k.Default
		}
	}
	return out
}

// normaliseSyncConfig fills unset intervals and rejects entity types the provider lacks.
func normaliseSyncConfig(cfg domain.SyncConfig, desc *domain.ProviderDescriptor) (domain.SyncConfig, error) {
	if cfg.IncrementalInterval < 0 || cfg.PeriodicInterval < 0 || cfg.FullSyncInterval < 0 || cfg.PageSize < 0 {
		return cfg, fmt.Errorf("%w: sync intervals and page size must not be negative", domain.ErrInvalidInput)
	}
	if cfg.IncrementalInterval == 0 && cfg.PeriodicInterval == 0 && cfg.FullSyncInterval == 0 {
		d := domain.DefaultSyncConfig()
		cfg.IncrementalInterval = d.IncrementalInterval
		cfg.PeriodicInterval = d.PeriodicInterval
		cfg.FullSyncInterval = d.FullSyncInterval
	}
	for _, t := range cfg.EntityTypes {
		offered := false
		for _, et := range desc.EntityTypes {
			if et == t {
				offered = true
				break
			}
		}
		if !offered {
			return cfg, fmt.Errorf("%w: %s does not expose %s", domain.ErrUnsupportedType, desc.ID, t)
		}
	}
	return cfg, nil
}
