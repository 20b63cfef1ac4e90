package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Query the synced data lake",
	Long: `Read canonical entities for one organization. Every query is scoped to
--org and may be narrowed to one --connection.`,
}

var entitiesListCmd = &cobra.Command{
	Use:   "list [entity-type]",
	Short: "List entities of one type",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntitiesList,
}

var entitiesGetCmd = &cobra.Command{
	Use:   "get [entity-type] [natural-key]",
	Short: "Show one entity by its provider key",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntitiesGet,
}

var entitiesStatsCmd = &cobra.Command{
	Use:   "stats [entity-type]",
	Short: "Summarise one entity type",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntitiesStats,
}

var entitiesLiftgateCmd = &cobra.Command{
	Use:   "liftgate",
	Short: "List vehicles equipped with a liftgate",
	RunE:  runEntitiesLiftgate,
}

var entitiesExpiringCmd = &cobra.Command{
	Use:   "expiring",
	Short: "List truckers with documents expiring soon",
	RunE:  runEntitiesExpiring,
}

var entitiesUnpaidCmd = &cobra.Command{
	Use:   "unpaid",
	Short: "List outstanding invoices",
	RunE:  runEntitiesUnpaid,
}

var (
	entOrg        string
	entConnection string
	entLimit      int
	entOffset     int
	entWithin     time.Duration
	entJSON       bool
)

var amountPrinter = message.NewPrinter(language.English)

func init() {
	for _, c := range []*cobra.Command{
		entitiesListCmd, entitiesGetCmd, entitiesStatsCmd,
		entitiesLiftgateCmd, entitiesExpiringCmd, entitiesUnpaidCmd,
	} {
		c.Flags().StringVar(&entOrg, "org", "", "organization ID (required)")
		c.Flags().StringVar(&entConnection, "connection", "", "limit to one connection")
		c.Flags().BoolVar(&entJSON, "json", false, "print JSON")
		entitiesCmd.AddCommand(c)
	}
	entitiesListCmd.Flags().IntVar(&entLimit, "limit", 25, "maximum entities to return")
	entitiesListCmd.Flags().IntVar(&entOffset, "offset", 0, "entities to skip")
	entitiesExpiringCmd.Flags().DurationVar(&entWithin, "within", 30*24*time.Hour, "expiry window")
	rootCmd.AddCommand(entitiesCmd)
}

func entityScope() (driving.Scope, error) {
	if entityReader == nil {
		return driving.Scope{}, errors.New("entity reader not configured")
	}
	if entOrg == "" {
		return driving.Scope{}, errors.New("--org is required")
	}
	return driving.Scope{OrganizationID: entOrg, ConnectionID: entConnection}, nil
}

func runEntitiesList(cmd *cobra.Command, args []string) error {
	scope, err := entityScope()
	if err != nil {
		return err
	}
	et, err := domain.ParseEntityType(args[0])
	if err != nil {
		return err
	}

	items, err := entityReader.GetAll(cmd.Context(), scope, et, driving.PageRequest{Limit: entLimit, Offset: entOffset})
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}
	return printEntities(cmd, items)
}

func runEntitiesGet(cmd *cobra.Command, args []string) error {
	scope, err := entityScope()
	if err != nil {
		return err
	}
	et, err := domain.ParseEntityType(args[0])
	if err != nil {
		return err
	}

	e, err := entityReader.GetByNaturalKey(cmd.Context(), scope, et, args[1])
	if err != nil {
		return fmt.Errorf("failed to get entity: %w", err)
	}
	if entJSON {
		return printJSON(cmd, e)
	}
	printEntity(cmd, e)
	cmd.Printf("  %-12s %s\n", "synced:", formatTime(e.SyncedAt))
	cmd.Printf("  %-12s %d\n", "version:", e.SyncVersion)
	cmd.Printf("  %-12s %s\n", "checksum:", e.Checksum)
	return nil
}

func runEntitiesStats(cmd *cobra.Command, args []string) error {
	scope, err := entityScope()
	if err != nil {
		return err
	}
	et, err := domain.ParseEntityType(args[0])
	if err != nil {
		return err
	}

	stats, err := entityReader.GetStats(cmd.Context(), scope, et)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	if entJSON {
		return printJSON(cmd, stats)
	}

	cmd.Println(titleStyle.Render(fmt.Sprintf("%s for %s", stats.Type, entOrg)))
	cmd.Printf("  Total:       %s\n", amountPrinter.Sprintf("%d", stats.Total))
	cmd.Printf("  Last synced: %s\n", formatTime(stats.LastSyncedAt))
	printCounts(cmd, "By status", stats.ByStatus)
	printCounts(cmd, "By connection", stats.ByConnection)
	return nil
}

func runEntitiesLiftgate(cmd *cobra.Command, _ []string) error {
	scope, err := entityScope()
	if err != nil {
		return err
	}
	items, err := entityReader.VehiclesWithLiftgate(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("failed to list vehicles: %w", err)
	}
	return printEntities(cmd, items)
}

func runEntitiesExpiring(cmd *cobra.Command, _ []string) error {
	scope, err := entityScope()
	if err != nil {
		return err
	}
	items, err := entityReader.TruckersWithExpiringDocuments(cmd.Context(), scope, entWithin)
	if err != nil {
		return fmt.Errorf("failed to list truckers: %w", err)
	}
	return printEntities(cmd, items)
}

func runEntitiesUnpaid(cmd *cobra.Command, _ []string) error {
	scope, err := entityScope()
	if err != nil {
		return err
	}
	items, err := entityReader.UnpaidInvoices(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("failed to list invoices: %w", err)
	}
	return printEntities(cmd, items)
}

func printEntities(cmd *cobra.Command, items []domain.CanonicalEntity) error {
	if entJSON {
		return printJSON(cmd, items)
	}
	if len(items) == 0 {
		cmd.Println("No entities found.")
		return nil
	}
	for i := range items {
		printEntity(cmd, &items[i])
	}
	cmd.Println(mutedStyle.Render(fmt.Sprintf("%d entities", len(items))))
	return nil
}

func printEntity(cmd *cobra.Command, e *domain.CanonicalEntity) {
	cmd.Printf("%s  %s  %s\n", e.NaturalKey, summarize(e.Fields), mutedStyle.Render(e.ConnectionID))
}

// summarize renders the identifying fields of an entity on one line.
func summarize(fields domain.EntityFields) string {
	switch f := fields.(type) {
	case *domain.Vehicle:
		parts := []string{f.UnitNumber, strings.TrimSpace(f.Make + " " + f.Model)}
		if f.HasLiftgate {
			parts = append(parts, "liftgate")
		}
		return joinNonEmpty(parts)
	case *domain.Trucker:
		parts := []string{strings.TrimSpace(f.FirstName + " " + f.LastName)}
		for _, d := range f.Documents {
			if !d.ExpiresAt.IsZero() {
				parts = append(parts, fmt.Sprintf("%s expires %s", d.Kind, d.ExpiresAt.Format("2006-01-02")))
			}
		}
		return joinNonEmpty(parts)
	case *domain.Address:
		return joinNonEmpty([]string{f.Name, f.Line1, f.City, f.State})
	case *domain.Invoice:
		parts := []string{f.Number, f.CustomerName, f.Status, formatCents(f.AmountCents, f.Currency)}
		if !f.DueAt.IsZero() {
			parts = append(parts, "due "+f.DueAt.Format("2006-01-02"))
		}
		return joinNonEmpty(parts)
	case *domain.Carrier:
		return joinNonEmpty([]string{f.Name, f.MCNumber, f.Status})
	case *domain.FuelTransaction:
		return joinNonEmpty([]string{
			f.TransactionAt.Format("2006-01-02"), f.VehicleUnit, f.MerchantName,
			amountPrinter.Sprintf("%.1f gal", f.Gallons), formatCents(f.TotalCents, "USD"),
		})
	default:
		return ""
	}
}

func formatCents(cents int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return amountPrinter.Sprintf("%s %.2f", currency, float64(cents)/100)
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " | ")
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cmd.Printf("  %s:\n", title)
	for _, k := range keys {
		label := k
		if label == "" {
			label = "(none)"
		}
		cmd.Printf("    %-20s %d\n", label, counts[k])
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
