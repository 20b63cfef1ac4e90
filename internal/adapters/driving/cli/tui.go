package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

var tuiOrg string

// runApp starts the dashboard program. Replaced in tests.
var runApp = func(app *tui.App) error {
	return app.Run()
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive connection dashboard",
	Long: `Launch the interactive terminal dashboard for one organization.

The dashboard lists connections with their status, shows per-entity-type
sync state and recent runs, and can trigger syncs, resets and deactivation.
When the scheduler is enabled it runs in the background while the dashboard
is open.

Controls:
  ↑/k, ↓/j - Navigate connections
  Enter    - Open connection
  s / f    - Incremental / full sync
  x / d    - Reset / deactivate
  Esc      - Back
  ?        - Toggle help
  q        - Quit`,
	Example: `  fleetsync tui --org acme`,
	RunE:    runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&tuiOrg, "org", "", "organization ID (required)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
		}
	}()

	if connectionService == nil || syncOrchestrator == nil {
		return errors.New("connection service not configured")
	}
	if tuiOrg == "" {
		return errors.New("--org is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if scheduler != nil {
		schedulerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			if err := scheduler.Start(schedulerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("scheduler stopped", zap.Error(err))
			}
		}()

		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("scheduler stop failed", zap.Error(err))
			}
		}()
	}

	app, err := tui.NewApp(&tui.Ports{
		Connections: connectionService,
		Sync:        syncOrchestrator,
	}, tuiOrg)
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	app.WithContext(ctx)

	if err := runApp(app); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
