package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/adapters/driven/amqp"
	"github.com/custodia-labs/fleetsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/fleetsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fleetsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/fleetsync/internal/connectors/builtin"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/services"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	defer logger.Sync()

	configStore, err := file.NewConfigStore(os.Getenv("FLEETSYNC_HOME"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open config: %v\n", err)
		return err
	}
	settingsSvc := services.NewSettingsService(configStore)
	settings, err := settingsSvc.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		return err
	}
	if err := logger.Init(settings.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		return err
	}

	st, err := openStores(ctx, settings.Store)
	if err != nil {
		logger.Error("failed to open store", zap.String("driver", settings.Store.Driver.String()), zap.Error(err))
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error("error closing store", zap.Error(err))
		}
	}()

	cli.SetVersion(version)
	cli.SetServices(buildServices(settings, settingsSvc, configStore, st))
	return cli.Execute(ctx)
}

// stores bundles the driven ports of one persistence backend.
type stores struct {
	connections driven.ConnectionStore
	states      driven.SyncStateStore
	entities    driven.EntityStore
	runs        driven.RunLogStore
	ledger      driven.EventLedger
	ping        func(ctx context.Context) error
	close       func() error
}

func openStores(ctx context.Context, cfg domain.StoreSettings) (*stores, error) {
	var (
		store *sqlite.Store
		err   error
	)
	switch cfg.Driver {
	case domain.StoreMemory:
		return &stores{
			connections: memory.NewConnectionStore(),
			states:      memory.NewSyncStateStore(),
			entities:    memory.NewEntityStore(),
			runs:        memory.NewRunLogStore(),
			ledger:      memory.NewEventLedger(),
			ping:        func(context.Context) error { return nil },
			close:       func() error { return nil },
		}, nil
	case domain.StorePostgres:
		store, err = sqlite.NewPostgresStore(ctx, cfg.DSN)
	case domain.StoreSQLite, "":
		store, err = sqlite.NewStore(cfg.DataDir)
	default:
		return nil, fmt.Errorf("%w: store driver %q", domain.ErrInvalidInput, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", zap.String("path", store.Path()))
	return &stores{
		connections: store.ConnectionStore(),
		states:      store.SyncStateStore(),
		entities:    store.EntityStore(),
		runs:        store.RunLogStore(),
		ledger:      store.EventLedger(),
		ping:        store.Ping,
		close:       store.Close,
	}, nil
}

func buildServices(
	settings *domain.AppSettings,
	settingsSvc *services.SettingsService,
	configStore *file.ConfigStore,
	st *stores,
) cli.Services {
	factory := builtin.NewFactory(builtin.Options{UserAgent: "fleetsync/" + version})
	retry := services.NewRetryPolicy(settings.Retry)

	bridgeRetry := settings.Retry
	bridgeRetry.MaxAttempts = settings.Bridge.MaxAttempts

	reader := services.NewEntityReader(st.entities)
	connSvc := services.NewConnectionService(st.connections, st.states, factory)
	syncOrch := services.NewSyncOrchestrator(
		st.connections, st.states, st.runs, factory,
		services.NewWriter(st.entities), retry,
		services.SyncOptions{
			PageSize:      settings.Sync.PageSize,
			MaxConcurrent: settings.Scheduler.MaxConcurrency,
		},
	)
	bridge := services.NewEventBridge(st.ledger, st.connections, factory, services.NewRetryPolicy(bridgeRetry))
	retention := services.NewRetentionService(st.connections, st.states, st.entities, st.runs, settings.Retention)

	svcs := cli.Services{
		Connections: connSvc,
		Sync:        syncOrch,
		Reader:      reader,
		Bridge:      bridge,
		Retention:   retention,
		Settings:    settingsSvc,
		Health:      []cli.HealthCheck{{Name: "store", Check: st.ping}},
	}

	if settings.Scheduler.Enabled {
		opts := services.SchedulerOptions{
			Config:          settings.Scheduler,
			Bridge:          bridge,
			RedriveInterval: settings.Bridge.RedriveInterval,
		}
		if settings.Retention.Enabled {
			opts.Retention = retention
			opts.RetentionInterval = settings.Retention.Interval
		}
		svcs.Scheduler = services.NewScheduler(opts, st.connections, st.states, factory, syncOrch)
	}

	configStore.OnChange(func() {
		updated, err := settingsSvc.Get()
		if err != nil {
			logger.Warn("reloaded config is unreadable", zap.Error(err))
			return
		}
		if err := logger.Init(updated.LogLevel); err != nil {
			logger.Warn("failed to apply log level", zap.Error(err))
		}
		logger.Info("config reloaded", zap.String("path", configStore.Path()))
	})
	svcs.Background = append(svcs.Background, cli.BackgroundTask{Name: "config-watcher", Run: configStore.Watch})

	if settings.AMQP.URL != "" {
		consumer, err := amqp.NewConsumer(amqp.Config{
			URL:      settings.AMQP.URL,
			Queue:    settings.AMQP.Queue,
			Prefetch: settings.AMQP.Prefetch,
		}, bridge)
		if err != nil {
			logger.Warn("amqp consumer disabled", zap.Error(err))
		} else {
			svcs.Background = append(svcs.Background, cli.BackgroundTask{Name: "amqp-consumer", Run: consumer.Run})
			svcs.Health = append(svcs.Health, cli.HealthCheck{Name: "amqp", Check: func(context.Context) error {
				if !consumer.IsHealthy() {
					return fmt.Errorf("amqp consumer disconnected")
				}
				return nil
			}})
		}
	}
	return svcs
}
