package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [connection-id]",
	Short: "Synchronise entities from a connection",
	Long: `Runs a sync for a connection immediately.
If --type is given, only that entity type is synchronised.
Otherwise, every entity type the connection syncs is run in turn.
An interrupted walk resumes from its saved cursor.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history [connection-id]",
	Short: "Show recent sync runs for a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncHistory,
}

var (
	syncEntityType string
	syncCadence    string
	syncLimit      int
)

func init() {
	syncCmd.Flags().StringVarP(&syncEntityType, "type", "t", "", "entity type to sync (default: all)")
	syncCmd.Flags().StringVarP(&syncCadence, "cadence", "c", string(domain.CadenceIncremental), "incremental, periodic or full")
	syncHistoryCmd.Flags().IntVarP(&syncLimit, "limit", "n", 10, "number of runs to show")
	syncCmd.AddCommand(syncHistoryCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errors.New("sync service not configured")
	}

	cadence, err := domain.ParseCadence(syncCadence)
	if err != nil {
		return err
	}
	connectionID := args[0]
	ctx := cmd.Context()

	if syncEntityType != "" {
		et, err := domain.ParseEntityType(syncEntityType)
		if err != nil {
			return err
		}
		cmd.Printf("Synchronising %s for %s (%s)...\n", et, connectionID, cadence)

		run, err := syncOrchestrator.Run(ctx, domain.RunRequest{
			ConnectionID: connectionID,
			EntityType:   et,
			Cadence:      cadence,
		})
		if run != nil {
			printRun(cmd, run)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	}

	cmd.Printf("Synchronising all entity types for %s (%s)...\n", connectionID, cadence)
	runs, err := syncOrchestrator.RunConnection(ctx, connectionID, cadence)
	for i := range runs {
		printRun(cmd, &runs[i])
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	failed := 0
	for i := range runs {
		if runs[i].Status == domain.RunFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("sync failed: %d of %d entity types failed", failed, len(runs))
	}
	cmd.Println("Connection synchronised successfully.")
	return nil
}

func runSyncHistory(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errors.New("sync service not configured")
	}

	runs, err := syncOrchestrator.History(cmd.Context(), args[0], syncLimit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}
	for i := range runs {
		printRun(cmd, &runs[i])
	}
	return nil
}

func printRun(cmd *cobra.Command, run *domain.SyncRun) {
	walk := string(run.Cadence)
	if run.Resumed {
		walk += ", resumed"
	}
	cmd.Printf("  %-18s %s (%s) %s\n", run.EntityType, renderRunStatus(run.Status), walk, formatTime(run.StartedAt))
	cmd.Printf("  %-18s %d pages, %d upserted, %d unchanged, %d failed in %s\n", "",
		run.PagesProcessed, run.EntitiesUpserted, run.EntitiesUnchanged, run.EntitiesFailed, run.Duration().Round(time.Millisecond))
	for _, e := range run.Errors {
		cmd.Printf("  %-18s %s\n", "", errorStyle.Render(e))
	}
}
