package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// execute runs rootCmd with args after resetting flag state left by earlier tests.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	verbose = false
	connOrg, connProvider, connName = "", "", ""
	connCreds = map[string]string{}
	connEntityTypes = nil
	connMultiHomed = false
	connIncremental, connPeriodic, connFull = 0, 0, 0
	connPageSize = 0
	syncEntityType = ""
	syncCadence = string(domain.CadenceIncremental)
	syncLimit = 10
	entOrg, entConnection = "", ""
	entLimit, entOffset = 25, 0
	entWithin = 30 * 24 * time.Hour
	entJSON = false
	eventData, eventFile, eventOrg = "", "", ""
	serveAddr = ""
	tuiOrg = ""

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// withServices swaps the service vars for the duration of a test.
func withServices(t *testing.T, s Services) {
	t.Helper()
	old := Services{
		Connections: connectionService,
		Sync:        syncOrchestrator,
		Reader:      entityReader,
		Bridge:      eventBridge,
		Retention:   retentionService,
		Settings:    settingsService,
		Scheduler:   scheduler,
		Background:  backgroundTasks,
		Health:      healthChecks,
	}
	SetServices(s)
	t.Cleanup(func() { SetServices(old) })
}

type mockConnectionService struct {
	conns     []domain.Connection
	providers []domain.ProviderDescriptor
	health    *domain.ConnectionHealth
	err       error

	lastRegister driving.RegisterConnectionRequest
	lastUpdate   driving.UpdateConnectionRequest
	deactivated  string
	reset        string
}

func (m *mockConnectionService) Register(_ context.Context, req driving.RegisterConnectionRequest) (*domain.Connection, error) {
	m.lastRegister = req
	if m.err != nil {
		return nil, m.err
	}
	cfg := req.SyncConfig
	def := domain.DefaultSyncConfig()
	if cfg.IncrementalInterval == 0 {
		cfg.IncrementalInterval = def.IncrementalInterval
	}
	if cfg.PeriodicInterval == 0 {
		cfg.PeriodicInterval = def.PeriodicInterval
	}
	if cfg.FullSyncInterval == 0 {
		cfg.FullSyncInterval = def.FullSyncInterval
	}
	return &domain.Connection{
		ID:             "conn-new",
		OrganizationID: req.OrganizationID,
		ProviderType:   req.ProviderType,
		Name:           req.Name,
		SyncConfig:     cfg,
		IsActive:       true,
		Status:         domain.ConnectionDisconnected,
	}, nil
}

func (m *mockConnectionService) Update(_ context.Context, req driving.UpdateConnectionRequest) (*domain.Connection, error) {
	m.lastUpdate = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Connection{ID: req.ID}, nil
}

func (m *mockConnectionService) Get(_ context.Context, id string) (*domain.Connection, error) {
	for i := range m.conns {
		if m.conns[i].ID == id {
			c := m.conns[i]
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockConnectionService) List(_ context.Context, _ string) ([]domain.Connection, error) {
	return m.conns, m.err
}

func (m *mockConnectionService) Deactivate(_ context.Context, id string) error {
	m.deactivated = id
	return m.err
}

func (m *mockConnectionService) Reset(_ context.Context, id string) error {
	m.reset = id
	return m.err
}

func (m *mockConnectionService) Health(_ context.Context, _, _ string) (*domain.ConnectionHealth, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

func (m *mockConnectionService) Providers() []domain.ProviderDescriptor {
	return m.providers
}

type mockSyncOrchestrator struct {
	run     *domain.SyncRun
	runs    []domain.SyncRun
	status  []driving.SyncStatus
	history []domain.SyncRun
	err     error

	lastReq     domain.RunRequest
	lastCadence domain.Cadence
	lastLimit   int
}

func (m *mockSyncOrchestrator) Run(_ context.Context, req domain.RunRequest) (*domain.SyncRun, error) {
	m.lastReq = req
	return m.run, m.err
}

func (m *mockSyncOrchestrator) RunConnection(_ context.Context, _ string, cadence domain.Cadence) ([]domain.SyncRun, error) {
	m.lastCadence = cadence
	return m.runs, m.err
}

func (m *mockSyncOrchestrator) Status(_ context.Context, _ string) ([]driving.SyncStatus, error) {
	return m.status, nil
}

func (m *mockSyncOrchestrator) History(_ context.Context, _ string, limit int) ([]domain.SyncRun, error) {
	m.lastLimit = limit
	return m.history, m.err
}

type mockEntityReader struct {
	items  []domain.CanonicalEntity
	entity *domain.CanonicalEntity
	stats  *domain.EntityStats
	err    error

	lastScope  driving.Scope
	lastType   domain.EntityType
	lastPage   driving.PageRequest
	lastWithin time.Duration
}

func (m *mockEntityReader) GetAll(_ context.Context, scope driving.Scope, et domain.EntityType, page driving.PageRequest) ([]domain.CanonicalEntity, error) {
	m.lastScope, m.lastType, m.lastPage = scope, et, page
	return m.items, m.err
}

func (m *mockEntityReader) GetByNaturalKey(_ context.Context, scope driving.Scope, et domain.EntityType, _ string) (*domain.CanonicalEntity, error) {
	m.lastScope, m.lastType = scope, et
	if m.err != nil {
		return nil, m.err
	}
	return m.entity, nil
}

func (m *mockEntityReader) VehiclesWithLiftgate(_ context.Context, scope driving.Scope) ([]domain.CanonicalEntity, error) {
	m.lastScope = scope
	return m.items, m.err
}

func (m *mockEntityReader) TruckersWithExpiringDocuments(_ context.Context, scope driving.Scope, within time.Duration) ([]domain.CanonicalEntity, error) {
	m.lastScope, m.lastWithin = scope, within
	return m.items, m.err
}

func (m *mockEntityReader) UnpaidInvoices(_ context.Context, scope driving.Scope) ([]domain.CanonicalEntity, error) {
	m.lastScope = scope
	return m.items, m.err
}

func (m *mockEntityReader) GetStats(_ context.Context, scope driving.Scope, et domain.EntityType) (*domain.EntityStats, error) {
	m.lastScope, m.lastType = scope, et
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

type mockEventBridge struct {
	delivery    *domain.EventDelivery
	deliveries  []domain.EventDelivery
	redriven    int
	err         error
	lastEvent   domain.DomainEvent
	lastRedrive string
	lastOrg     string
}

func (m *mockEventBridge) Handle(_ context.Context, event domain.DomainEvent) (*domain.EventDelivery, error) {
	m.lastEvent = event
	if m.err != nil {
		return nil, m.err
	}
	return m.delivery, nil
}

func (m *mockEventBridge) DeadLetters(_ context.Context, org string) ([]domain.EventDelivery, error) {
	m.lastOrg = org
	return m.deliveries, m.err
}

func (m *mockEventBridge) Redrive(_ context.Context, key string) (*domain.EventDelivery, error) {
	m.lastRedrive = key
	if m.err != nil {
		return nil, m.err
	}
	return m.delivery, nil
}

func (m *mockEventBridge) RedriveAll(_ context.Context) (int, error) {
	return m.redriven, m.err
}

type mockRetentionService struct {
	report *driving.CleanupReport
	err    error
}

func (m *mockRetentionService) Cleanup(_ context.Context) (*driving.CleanupReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

type mockSettingsService struct {
	settings    domain.AppSettings
	setKey      string
	setValue    any
	setErr      error
	validateErr error
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key string, value any) error {
	m.setKey, m.setValue = key, value
	return m.setErr
}

func (m *mockSettingsService) Validate(_ *domain.AppSettings) error {
	return m.validateErr
}

func demoProvider() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:   "demotms",
		Name: "demoTMS",
		CredentialKeys: []domain.CredentialKey{
			{Key: "api_key", Label: "API Key", Required: true, Secret: true},
			{Key: "base_url", Label: "Base URL", Default: "https://api.demotms.example"},
		},
		EntityTypes:       []domain.EntityType{domain.EntityVehicles, domain.EntityTruckers},
		SupportsWriteBack: true,
	}
}
