// Package cli implements the fleetsync command line on top of the driving ports.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

// Services wired by main. Commands report "not configured" for nil ports.
var (
	connectionService driving.ConnectionService
	syncOrchestrator  driving.SyncOrchestrator
	entityReader      driving.EntityReader
	eventBridge       driving.EventBridge
	retentionService  driving.RetentionService
	settingsService   driving.SettingsService
	scheduler         driving.Scheduler
	backgroundTasks   []BackgroundTask
	healthChecks      []HealthCheck
)

// BackgroundTask is a long-running component started by serve, such as the
// config watcher or the queue consumer. Run blocks until ctx is cancelled.
type BackgroundTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// HealthCheck probes one dependency for the serve health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services holds everything the commands need.
type Services struct {
	Connections driving.ConnectionService
	Sync        driving.SyncOrchestrator
	Reader      driving.EntityReader
	Bridge      driving.EventBridge
	Retention   driving.RetentionService
	Settings    driving.SettingsService
	Scheduler   driving.Scheduler
	Background  []BackgroundTask
	Health      []HealthCheck
}

// SetServices injects the services used by the commands.
func SetServices(s Services) {
	connectionService = s.Connections
	syncOrchestrator = s.Sync
	entityReader = s.Reader
	eventBridge = s.Bridge
	retentionService = s.Retention
	settingsService = s.Settings
	scheduler = s.Scheduler
	backgroundTasks = s.Background
	healthChecks = s.Health
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "fleetsync",
	Short: "Synchronise fleet and TMS data into a tenant data lake",
	Long: `fleetsync pulls vehicles, truckers, addresses, invoices, carriers and
fuel transactions from external fleet and TMS providers into a canonical,
tenant-partitioned store, and pushes internal domain events back to them.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
