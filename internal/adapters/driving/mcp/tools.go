package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// defaultExpiryWindowDays is used when expiring_documents gets no window.
const defaultExpiryWindowDays = 30

// ScopeInput selects the tenant and optionally one connection.
type ScopeInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"the organization whose data is queried"`
	ConnectionID   string `json:"connection_id,omitempty" jsonschema:"restrict results to one connection"`
}

// ListEntitiesInput is the input schema for the list_entities tool.
type ListEntitiesInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"the organization whose data is queried"`
	ConnectionID   string `json:"connection_id,omitempty" jsonschema:"restrict results to one connection"`
	EntityType     string `json:"entity_type" jsonschema:"one of vehicles, truckers, addresses, invoices, carriers, fuel_transactions"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of entities to return (default 100, max 1000)"`
	Offset         int    `json:"offset,omitempty" jsonschema:"number of entities to skip"`
}

// GetEntityInput is the input schema for the get_entity tool.
type GetEntityInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"the organization whose data is queried"`
	ConnectionID   string `json:"connection_id,omitempty" jsonschema:"restrict results to one connection"`
	EntityType     string `json:"entity_type" jsonschema:"the entity type"`
	NaturalKey     string `json:"natural_key" jsonschema:"the provider identifier of the entity"`
}

// ExpiringDocumentsInput is the input schema for the expiring_documents tool.
type ExpiringDocumentsInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"the organization whose data is queried"`
	ConnectionID   string `json:"connection_id,omitempty" jsonschema:"restrict results to one connection"`
	WithinDays     int    `json:"within_days,omitempty" jsonschema:"look-ahead window in days (default 30)"`
}

// EntityStatsInput is the input schema for the entity_stats tool.
type EntityStatsInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"the organization whose data is queried"`
	ConnectionID   string `json:"connection_id,omitempty" jsonschema:"restrict results to one connection"`
	EntityType     string `json:"entity_type" jsonschema:"the entity type to summarise"`
}

// ConnectionStatusInput is the input schema for the connection_status tool.
type ConnectionStatusInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"the organization owning the connection"`
	ConnectionID   string `json:"connection_id" jsonschema:"the connection to inspect"`
}

// EntityOutput represents a single canonical entity.
type EntityOutput struct {
	Type            string         `json:"type"`
	NaturalKey      string         `json:"natural_key"`
	ConnectionID    string         `json:"connection_id"`
	SyncVersion     int64          `json:"sync_version"`
	SyncedAt        string         `json:"synced_at,omitempty"`
	SourceUpdatedAt string         `json:"source_updated_at,omitempty"`
	Fields          map[string]any `json:"fields,omitempty"`
}

// EntitiesOutput is the output schema for the listing tools.
type EntitiesOutput struct {
	Entities []EntityOutput `json:"entities"`
	Count    int            `json:"count"`
}

// StatsOutput is the output schema for the entity_stats tool.
type StatsOutput struct {
	Type         string         `json:"type"`
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status,omitempty"`
	ByConnection map[string]int `json:"by_connection,omitempty"`
	LastSyncedAt string         `json:"last_synced_at,omitempty"`
}

// EntityStateOutput is the sync state of one entity type.
type EntityStateOutput struct {
	EntityType        string `json:"entity_type"`
	LastIncrementalAt string `json:"last_incremental_at,omitempty"`
	LastFullSyncAt    string `json:"last_full_sync_at,omitempty"`
	PendingWalk       bool   `json:"pending_walk"`
	LastError         string `json:"last_error,omitempty"`
}

// ConnectionStatusOutput is the output schema for the connection_status tool.
type ConnectionStatusOutput struct {
	ConnectionID string              `json:"connection_id"`
	ProviderType string              `json:"provider_type"`
	Active       bool                `json:"active"`
	Status       string              `json:"status"`
	LastSyncAt   string              `json:"last_sync_at,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
	EntityStates []EntityStateOutput `json:"entity_states,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_entities",
		Description: "List synced entities of one type for an organization",
	}, s.handleListEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_entity",
		Description: "Fetch one entity by its provider identifier",
	}, s.handleGetEntity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vehicles_with_liftgate",
		Description: "List vehicles equipped with a liftgate",
	}, s.handleVehiclesWithLiftgate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "expiring_documents",
		Description: "List truckers with licences or medical cards expiring soon or already expired",
	}, s.handleExpiringDocuments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "unpaid_invoices",
		Description: "List invoices still awaiting payment",
	}, s.handleUnpaidInvoices)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "entity_stats",
		Description: "Count entities of one type by status and connection",
	}, s.handleEntityStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "connection_status",
		Description: "Show the health and sync progress of a connection",
	}, s.handleConnectionStatus)
}

func (s *Server) handleListEntities(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListEntitiesInput,
) (*mcp.CallToolResult, EntitiesOutput, error) {
	et, err := domain.ParseEntityType(input.EntityType)
	if err != nil {
		return nil, EntitiesOutput{}, err
	}

	entities, err := s.ports.Reader.GetAll(ctx, scopeOf(input.OrganizationID, input.ConnectionID), et, driving.PageRequest{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	return nil, toEntitiesOutput(entities), nil
}

func (s *Server) handleGetEntity(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetEntityInput,
) (*mcp.CallToolResult, EntityOutput, error) {
	et, err := domain.ParseEntityType(input.EntityType)
	if err != nil {
		return nil, EntityOutput{}, err
	}

	entity, err := s.ports.Reader.GetByNaturalKey(ctx, scopeOf(input.OrganizationID, input.ConnectionID), et, input.NaturalKey)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	return nil, toEntityOutput(entity), nil
}

func (s *Server) handleVehiclesWithLiftgate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ScopeInput,
) (*mcp.CallToolResult, EntitiesOutput, error) {
	entities, err := s.ports.Reader.VehiclesWithLiftgate(ctx, scopeOf(input.OrganizationID, input.ConnectionID))
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	return nil, toEntitiesOutput(entities), nil
}

func (s *Server) handleExpiringDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExpiringDocumentsInput,
) (*mcp.CallToolResult, EntitiesOutput, error) {
	days := input.WithinDays
	if days <= 0 {
		days = defaultExpiryWindowDays
	}

	within := time.Duration(days) * 24 * time.Hour
	entities, err := s.ports.Reader.TruckersWithExpiringDocuments(ctx, scopeOf(input.OrganizationID, input.ConnectionID), within)
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	return nil, toEntitiesOutput(entities), nil
}

func (s *Server) handleUnpaidInvoices(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ScopeInput,
) (*mcp.CallToolResult, EntitiesOutput, error) {
	entities, err := s.ports.Reader.UnpaidInvoices(ctx, scopeOf(input.OrganizationID, input.ConnectionID))
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	return nil, toEntitiesOutput(entities), nil
}

func (s *Server) handleEntityStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EntityStatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	et, err := domain.ParseEntityType(input.EntityType)
	if err != nil {
		return nil, StatsOutput{}, err
	}

	stats, err := s.ports.Reader.GetStats(ctx, scopeOf(input.OrganizationID, input.ConnectionID), et)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		Type:         string(stats.Type),
		Total:        stats.Total,
		ByStatus:     stats.ByStatus,
		ByConnection: stats.ByConnection,
		LastSyncedAt: formatTime(stats.LastSyncedAt),
	}, nil
}

func (s *Server) handleConnectionStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ConnectionStatusInput,
) (*mcp.CallToolResult, ConnectionStatusOutput, error) {
	if s.ports.Connections == nil {
		return nil, ConnectionStatusOutput{}, ErrMissingConnectionService
	}

	health, err := s.ports.Connections.Health(ctx, input.OrganizationID, input.ConnectionID)
	if err != nil {
		return nil, ConnectionStatusOutput{}, err
	}

	output := ConnectionStatusOutput{
		ConnectionID: health.ConnectionID,
		ProviderType: health.ProviderType,
		Active:       health.IsActive,
		Status:       string(health.Status),
		LastSyncAt:   formatTime(health.LastSyncAt),
		LastError:    health.LastError,
		EntityStates: make([]EntityStateOutput, len(health.EntityStates)),
	}
	for i := range health.EntityStates {
		st := &health.EntityStates[i]
		output.EntityStates[i] = EntityStateOutput{
			EntityType:        string(st.EntityType),
			LastIncrementalAt: formatTime(st.LastIncrementalAt),
			LastFullSyncAt:    formatTime(st.LastFullSyncAt),
			PendingWalk:       st.HasPendingWalk(),
			LastError:         st.LastError,
		}
	}
	return nil, output, nil
}

func scopeOf(organizationID, connectionID string) driving.Scope {
	return driving.Scope{
		OrganizationID: organizationID,
		ConnectionID:   connectionID,
	}
}

func toEntitiesOutput(entities []domain.CanonicalEntity) EntitiesOutput {
	output := EntitiesOutput{
		Entities: make([]EntityOutput, len(entities)),
		Count:    len(entities),
	}
	for i := range entities {
		output.Entities[i] = toEntityOutput(&entities[i])
	}
	return output
}

func toEntityOutput(e *domain.CanonicalEntity) EntityOutput {
	return EntityOutput{
		Type:            string(e.Type),
		NaturalKey:      e.NaturalKey,
		ConnectionID:    e.ConnectionID,
		SyncVersion:     e.SyncVersion,
		SyncedAt:        formatTime(e.SyncedAt),
		SourceUpdatedAt: formatTime(e.SourceUpdatedAt),
		Fields:          fieldsMap(e.Fields),
	}
}

// fieldsMap flattens typed fields into the generic object the tool schema expects.
func fieldsMap(fields domain.EntityFields) map[string]any {
	if fields == nil {
		return nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("encode fields: %v", err)}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"error": fmt.Sprintf("decode fields: %v", err)}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
