package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records no longer present at the provider",
	Long: `Delete canonical entities that were not seen by a completed full walk
and are older than retention.stale_after, then prune the run log.
Entity types that have never completed a full walk are skipped.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if retentionService == nil {
		return errors.New("retention service not configured")
	}

	report, err := retentionService.Cleanup(cmd.Context())
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	cmd.Printf("Deleted %d stale entities.\n", report.EntitiesDeleted)
	types := make([]string, 0, len(report.ByType))
	for t := range report.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		cmd.Printf("  %-18s %d\n", t, report.ByType[t])
	}
	if report.Skipped > 0 {
		cmd.Println(warningStyle.Render(fmt.Sprintf(
			"Skipped %d entity types without a completed full walk.", report.Skipped)))
	}
	return nil
}
