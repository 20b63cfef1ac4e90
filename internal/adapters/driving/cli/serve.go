package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, event consumer and HTTP API",
	Long: `Run fleetsync as a long-lived service.

The scheduler triggers incremental, periodic and full syncs as they fall
due, runs retention and redrives dead letters. The HTTP API exposes health,
metrics, connection status and event delivery. Configured background
tasks such as the AMQP event consumer and the config watcher run alongside.

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default: http.addr setting)")
	rootCmd.AddCommand(serveCmd)
}

// serveTask is one component run by serve.
type serveTask struct {
	name string
	run  func(ctx context.Context) error
}

func runServe(cmd *cobra.Command, _ []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}

	addr := serveAddr
	if addr == "" && settingsService != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		addr = settings.HTTP.Addr
	}

	checks := make([]httpapi.HealthCheck, len(healthChecks))
	for i, h := range healthChecks {
		checks[i] = httpapi.HealthCheck{Name: h.Name, Check: h.Check}
	}

	var tasks []serveTask
	if addr != "" {
		api, err := httpapi.NewServer(&httpapi.Ports{
			Connections: connectionService,
			Sync:        syncOrchestrator,
			Bridge:      eventBridge,
			Reader:      entityReader,
			Health:      checks,
		})
		if err != nil {
			return fmt.Errorf("failed to create http api: %w", err)
		}
		tasks = append(tasks, serveTask{name: "http", run: func(ctx context.Context) error {
			return api.Listen(ctx, addr)
		}})
	}
	if scheduler != nil {
		tasks = append(tasks, serveTask{name: "scheduler", run: scheduler.Start})
	}
	for _, bg := range backgroundTasks {
		tasks = append(tasks, serveTask{name: bg.Name, run: bg.Run})
	}
	if len(tasks) == 0 {
		return errors.New("nothing to serve")
	}

	cmd.Printf("fleetsync %s serving", version)
	if addr != "" {
		cmd.Printf(" on %s", addr)
	}
	cmd.Println()

	return runTasks(cmd.Context(), tasks)
}

// runTasks runs every task until ctx is cancelled or one fails, then
// cancels the rest and waits for them.
func runTasks(parent context.Context, tasks []serveTask) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	errCh := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t serveTask) {
			defer wg.Done()
			err := t.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("task failed", zap.String("task", t.name), zap.Error(err))
				errCh <- fmt.Errorf("%s: %w", t.name, err)
				cancel()
				return
			}
			logger.Debug("task stopped", zap.String("task", t.name))
		}(t)
	}

	wg.Wait()
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}

	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
