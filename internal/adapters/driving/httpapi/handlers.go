package httpapi

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// healthTimeout bounds each dependency probe.
const healthTimeout = 5 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// ConnectionDTO is a connection without its credentials.
type ConnectionDTO struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	ProviderType   string `json:"provider_type"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
	Status         string `json:"status"`
	LastSyncAt     string `json:"last_sync_at,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// EntityStateDTO is the resume point of one entity type.
type EntityStateDTO struct {
	EntityType        string `json:"entity_type"`
	PendingCursor     string `json:"pending_cursor,omitempty"`
	PendingCadence    string `json:"pending_cadence,omitempty"`
	LastIncrementalAt string `json:"last_incremental_at,omitempty"`
	LastPeriodicAt    string `json:"last_periodic_at,omitempty"`
	LastFullSyncAt    string `json:"last_full_sync_at,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// ActiveRunDTO is live progress of a run in flight.
type ActiveRunDTO struct {
	EntityType        string `json:"entity_type"`
	Cadence           string `json:"cadence"`
	StartedAt         string `json:"started_at"`
	PagesProcessed    int    `json:"pages_processed"`
	EntitiesUpserted  int    `json:"entities_upserted"`
	EntitiesUnchanged int    `json:"entities_unchanged"`
	ErrorCount        int    `json:"error_count"`
}

// ConnectionStatusResponse is the body of GET /connections/:id/status.
type ConnectionStatusResponse struct {
	ConnectionID string           `json:"connection_id"`
	ProviderType string           `json:"provider_type"`
	Active       bool             `json:"active"`
	Status       string           `json:"status"`
	LastSyncAt   string           `json:"last_sync_at,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	EntityStates []EntityStateDTO `json:"entity_states"`
	ActiveRuns   []ActiveRunDTO   `json:"active_runs"`
}

// SyncRequest is the body of POST /connections/:id/sync. An empty entity
// type syncs every type of the connection.
type SyncRequest struct {
	EntityType string `json:"entity_type"`
	Cadence    string `json:"cadence"`
}

// RunDTO is one run log entry.
type RunDTO struct {
	ID                string   `json:"id"`
	EntityType        string   `json:"entity_type"`
	Cadence           string   `json:"cadence"`
	Status            string   `json:"status"`
	Resumed           bool     `json:"resumed"`
	FullWalk          bool     `json:"full_walk"`
	StartedAt         string   `json:"started_at"`
	FinishedAt        string   `json:"finished_at,omitempty"`
	PagesProcessed    int      `json:"pages_processed"`
	EntitiesUpserted  int      `json:"entities_upserted"`
	EntitiesUnchanged int      `json:"entities_unchanged"`
	EntitiesFailed    int      `json:"entities_failed"`
	Errors            []string `json:"errors,omitempty"`
}

// RunsResponse wraps a list of runs.
type RunsResponse struct {
	Runs []RunDTO `json:"runs"`
}

// DeliveryDTO is one event ledger entry.
type DeliveryDTO struct {
	Key            string         `json:"key"`
	EventName      string         `json:"event_name"`
	OrganizationID string         `json:"organization_id"`
	ConnectionID   string         `json:"connection_id,omitempty"`
	Status         string         `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      string         `json:"created_at"`
	DeliveredAt    string         `json:"delivered_at,omitempty"`
}

// DeliveriesResponse wraps a list of ledger entries.
type DeliveriesResponse struct {
	Deliveries []DeliveryDTO `json:"deliveries"`
}

// RedriveRequest is the body of POST /events/redrive. An empty key
// redrives every dead letter.
type RedriveRequest struct {
	Key string `json:"key"`
}

// RedriveAllResponse reports a bulk redrive.
type RedriveAllResponse struct {
	Redriven int `json:"redriven"`
}

// EntityDTO is one canonical entity.
type EntityDTO struct {
	Type            string              `json:"type"`
	NaturalKey      string              `json:"natural_key"`
	ConnectionID    string              `json:"connection_id"`
	SyncVersion     int64               `json:"sync_version"`
	SyncedAt        string              `json:"synced_at,omitempty"`
	SourceUpdatedAt string              `json:"source_updated_at,omitempty"`
	Fields          domain.EntityFields `json:"fields"`
}

// EntitiesResponse is the body of GET /entities/:type.
type EntitiesResponse struct {
	Entities []EntityDTO `json:"entities"`
	HasMore  bool        `json:"has_more"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	services := make(map[string]string, len(s.ports.Health))
	status := "healthy"

	for _, hc := range s.ports.Health {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		err := hc.Check(ctx)
		cancel()
		if err != nil {
			services[hc.Name] = "unhealthy: " + err.Error()
			status = "unhealthy"
			continue
		}
		services[hc.Name] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Services:  services,
	}
	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}

func (s *Server) handleProviders(c *fiber.Ctx) error {
	return c.JSON(s.ports.Connections.Providers())
}

func (s *Server) handleListConnections(c *fiber.Ctx) error {
	orgID := c.Query("org_id")
	if orgID == "" {
		return badRequest("org_id query parameter is required")
	}

	conns, err := s.ports.Connections.List(c.UserContext(), orgID)
	if err != nil {
		return err
	}

	out := make([]ConnectionDTO, len(conns))
	for i := range conns {
		out[i] = toConnectionDTO(&conns[i])
	}
	return c.JSON(out)
}

func (s *Server) handleConnectionStatus(c *fiber.Ctx) error {
	orgID := c.Query("org_id")
	if orgID == "" {
		return badRequest("org_id query parameter is required")
	}

	health, err := s.ports.Connections.Health(c.UserContext(), orgID, c.Params("id"))
	if err != nil {
		return err
	}

	response := ConnectionStatusResponse{
		ConnectionID: health.ConnectionID,
		ProviderType: health.ProviderType,
		Active:       health.IsActive,
		Status:       string(health.Status),
		LastSyncAt:   formatTime(health.LastSyncAt),
		LastError:    health.LastError,
		EntityStates: make([]EntityStateDTO, len(health.EntityStates)),
		ActiveRuns:   []ActiveRunDTO{},
	}
	for i := range health.EntityStates {
		st := &health.EntityStates[i]
		response.EntityStates[i] = EntityStateDTO{
			EntityType:        string(st.EntityType),
			PendingCursor:     st.LastCursor,
			PendingCadence:    string(st.CursorCadence),
			LastIncrementalAt: formatTime(st.LastIncrementalAt),
			LastPeriodicAt:    formatTime(st.LastPeriodicAt),
			LastFullSyncAt:    formatTime(st.LastFullSyncAt),
			LastError:         st.LastError,
		}
	}

	if s.ports.Sync != nil {
		active, err := s.ports.Sync.Status(c.UserContext(), health.ConnectionID)
		if err != nil {
			return err
		}
		for i := range active {
			response.ActiveRuns = append(response.ActiveRuns, ActiveRunDTO{
				EntityType:        string(active[i].EntityType),
				Cadence:           string(active[i].Cadence),
				StartedAt:         formatTime(active[i].StartedAt),
				PagesProcessed:    active[i].PagesProcessed,
				EntitiesUpserted:  active[i].EntitiesUpserted,
				EntitiesUnchanged: active[i].EntitiesUnchanged,
				ErrorCount:        active[i].ErrorCount,
			})
		}
	}
	return c.JSON(response)
}

// handleSync runs a sync and waits for it to finish. Failed runs are
// reported in the body since they are already in the run log.
func (s *Server) handleSync(c *fiber.Ctx) error {
	if s.ports.Sync == nil {
		return notConfigured("sync")
	}

	var req SyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
	}

	cadence := domain.CadenceIncremental
	if req.Cadence != "" {
		parsed, err := domain.ParseCadence(req.Cadence)
		if err != nil {
			return err
		}
		cadence = parsed
	}

	connID := c.Params("id")
	if req.EntityType == "" {
		runs, err := s.ports.Sync.RunConnection(c.UserContext(), connID, cadence)
		if err != nil && len(runs) == 0 {
			return err
		}
		return c.JSON(RunsResponse{Runs: toRunDTOs(runs)})
	}

	et, err := domain.ParseEntityType(req.EntityType)
	if err != nil {
		return err
	}
	run, err := s.ports.Sync.Run(c.UserContext(), domain.RunRequest{
		ConnectionID: connID,
		EntityType:   et,
		Cadence:      cadence,
	})
	if run == nil {
		return err
	}
	return c.JSON(RunsResponse{Runs: toRunDTOs([]domain.SyncRun{*run})})
}

func (s *Server) handleRuns(c *fiber.Ctx) error {
	if s.ports.Sync == nil {
		return notConfigured("sync")
	}

	limit, err := queryInt(c, "limit", 20)
	if err != nil || limit <= 0 {
		return badRequest("limit must be a positive integer")
	}

	runs, err := s.ports.Sync.History(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(RunsResponse{Runs: toRunDTOs(runs)})
}

// handleEvent bridges one domain event. The response carries the ledger
// entry; a dead-lettered delivery is still a 200 since it was recorded.
func (s *Server) handleEvent(c *fiber.Ctx) error {
	if s.ports.Bridge == nil {
		return notConfigured("event bridge")
	}

	var event domain.DomainEvent
	if err := c.BodyParser(&event); err != nil {
		return badRequest("invalid event body")
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}

	delivery, err := s.ports.Bridge.Handle(c.UserContext(), event)
	if err != nil {
		return err
	}
	return c.JSON(toDeliveryDTO(delivery))
}

func (s *Server) handleDeadLetters(c *fiber.Ctx) error {
	if s.ports.Bridge == nil {
		return notConfigured("event bridge")
	}

	deliveries, err := s.ports.Bridge.DeadLetters(c.UserContext(), c.Query("org_id"))
	if err != nil {
		return err
	}

	out := DeliveriesResponse{Deliveries: make([]DeliveryDTO, len(deliveries))}
	for i := range deliveries {
		out.Deliveries[i] = toDeliveryDTO(&deliveries[i])
	}
	return c.JSON(out)
}

func (s *Server) handleRedrive(c *fiber.Ctx) error {
	if s.ports.Bridge == nil {
		return notConfigured("event bridge")
	}

	var req RedriveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
	}

	if req.Key == "" {
		n, err := s.ports.Bridge.RedriveAll(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(RedriveAllResponse{Redriven: n})
	}

	delivery, err := s.ports.Bridge.Redrive(c.UserContext(), req.Key)
	if err != nil {
		return err
	}
	return c.JSON(toDeliveryDTO(delivery))
}

// handleEntities lists entities of one type. One extra row is fetched to
// report has_more.
func (s *Server) handleEntities(c *fiber.Ctx) error {
	if s.ports.Reader == nil {
		return notConfigured("entity reader")
	}

	et, err := domain.ParseEntityType(c.Params("type"))
	if err != nil {
		return err
	}

	limit, err := queryInt(c, "limit", 25)
	if err != nil || limit <= 0 {
		return badRequest("limit must be a positive integer")
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return badRequest("offset must be a non-negative integer")
	}

	scope := driving.Scope{
		OrganizationID: c.Query("org_id"),
		ConnectionID:   c.Query("connection_id"),
	}
	entities, err := s.ports.Reader.GetAll(c.UserContext(), scope, et, driving.PageRequest{
		Limit:  limit + 1,
		Offset: offset,
	})
	if err != nil {
		return err
	}

	hasMore := len(entities) > limit
	if hasMore {
		entities = entities[:limit]
	}

	out := EntitiesResponse{Entities: make([]EntityDTO, len(entities)), HasMore: hasMore}
	for i := range entities {
		e := &entities[i]
		out.Entities[i] = EntityDTO{
			Type:            string(e.Type),
			NaturalKey:      e.NaturalKey,
			ConnectionID:    e.ConnectionID,
			SyncVersion:     e.SyncVersion,
			SyncedAt:        formatTime(e.SyncedAt),
			SourceUpdatedAt: formatTime(e.SourceUpdatedAt),
			Fields:          e.Fields,
		}
	}
	return c.JSON(out)
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func toConnectionDTO(conn *domain.Connection) ConnectionDTO {
	return ConnectionDTO{
		ID:             conn.ID,
		OrganizationID: conn.OrganizationID,
		ProviderType:   conn.ProviderType,
		Name:           conn.Name,
		Active:         conn.IsActive,
		Status:         string(conn.Status),
		LastSyncAt:     formatTime(conn.LastSyncAt),
		LastError:      conn.LastError,
	}
}

func toRunDTOs(runs []domain.SyncRun) []RunDTO {
	out := make([]RunDTO, len(runs))
	for i := range runs {
		r := &runs[i]
		out[i] = RunDTO{
			ID:                r.ID,
			EntityType:        string(r.EntityType),
			Cadence:           string(r.Cadence),
			Status:            string(r.Status),
			Resumed:           r.Resumed,
			FullWalk:          r.FullWalk,
			StartedAt:         formatTime(r.StartedAt),
			FinishedAt:        formatTime(r.FinishedAt),
			PagesProcessed:    r.PagesProcessed,
			EntitiesUpserted:  r.EntitiesUpserted,
			EntitiesUnchanged: r.EntitiesUnchanged,
			EntitiesFailed:    r.EntitiesFailed,
			Errors:            r.Errors,
		}
	}
	return out
}

func toDeliveryDTO(d *domain.EventDelivery) DeliveryDTO {
	return DeliveryDTO{
		Key:            d.Key,
		EventName:      d.EventName,
		OrganizationID: d.OrganizationID,
		ConnectionID:   d.ConnectionID,
		Status:         string(d.Status),
		Attempts:       d.Attempts,
		LastError:      d.LastError,
		Payload:        d.Payload,
		CreatedAt:      formatTime(d.CreatedAt),
		DeliveredAt:    formatTime(d.DeliveredAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
