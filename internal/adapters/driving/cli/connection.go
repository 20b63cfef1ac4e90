package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn"},
	Short:   "Manage provider connections",
	Long: `Register, inspect and control the connections between organizations
and external providers. Connections are never deleted; deactivate them instead.`,
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new connection",
	Long: `Register a connection for an organization.

Credentials are passed as --cred key=value. Required credentials that are
missing are prompted for when running in a terminal; secrets are not echoed.

Example:
  fleetsync connection add --org org-1 --provider demotms --name "Main TMS" \
    --cred api_key=KEY --entity-types vehicles,truckers`,
	RunE: runConnectionAdd,
}

var connectionUpdateCmd = &cobra.Command{
	Use:   "update [connection-id]",
	Short: "Update a connection's name, credentials or schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionUpdate,
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the connections of an organization",
	RunE:  runConnectionList,
}

var connectionStatusCmd = &cobra.Command{
	Use:   "status [connection-id]",
	Short: "Show connection health and per-entity sync progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionStatus,
}

var connectionDeactivateCmd = &cobra.Command{
	Use:   "deactivate [connection-id]",
	Short: "Stop syncing a connection",
	Long:  `Deactivate a connection. Runs in flight stop after their current page.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionDeactivate,
}

var connectionResetCmd = &cobra.Command{
	Use:   "reset [connection-id]",
	Short: "Clear the error state of a suspended connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionReset,
}

var connectionProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the provider types connections can be registered for",
	RunE:  runConnectionProviders,
}

// Flags for connection commands.
var (
	connOrg         string
	connProvider    string
	connName        string
	connCreds       map[string]string
	connEntityTypes []string
	connMultiHomed  bool
	connIncremental time.Duration
	connPeriodic    time.Duration
	connFull        time.Duration
	connPageSize    int
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

func init() {
	connectionAddCmd.Flags().StringVar(&connOrg, "org", "", "organization ID (required)")
	connectionAddCmd.Flags().StringVar(&connProvider, "provider", "", "provider type, see 'connection providers'")
	connectionAddCmd.Flags().StringVar(&connName, "name", "", "display name")
	connectionAddCmd.Flags().StringToStringVar(&connCreds, "cred", nil, "credential key=value (repeatable)")
	connectionAddCmd.Flags().StringSliceVar(&connEntityTypes, "entity-types", nil, "entity types to sync (default: all)")
	connectionAddCmd.Flags().BoolVar(&connMultiHomed, "multi-homed", false, "allow several active connections for the provider")
	addScheduleFlags(connectionAddCmd)

	connectionUpdateCmd.Flags().StringVar(&connName, "name", "", "new display name")
	connectionUpdateCmd.Flags().StringToStringVar(&connCreds, "cred", nil, "credential key=value to change (repeatable)")
	connectionUpdateCmd.Flags().StringSliceVar(&connEntityTypes, "entity-types", nil, "entity types to sync")
	addScheduleFlags(connectionUpdateCmd)

	connectionListCmd.Flags().StringVar(&connOrg, "org", "", "organization ID (required)")
	connectionStatusCmd.Flags().StringVar(&connOrg, "org", "", "organization ID (required)")

	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionUpdateCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionStatusCmd)
	connectionCmd.AddCommand(connectionDeactivateCmd)
	connectionCmd.AddCommand(connectionResetCmd)
	connectionCmd.AddCommand(connectionProvidersCmd)
	rootCmd.AddCommand(connectionCmd)
}

func addScheduleFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&connIncremental, "incremental", 0, "incremental sync interval (0 = default)")
	cmd.Flags().DurationVar(&connPeriodic, "periodic", 0, "periodic reconciliation interval (0 = default)")
	cmd.Flags().DurationVar(&connFull, "full", 0, "full re-walk interval (0 = default)")
	cmd.Flags().IntVar(&connPageSize, "page-size", 0, "page size override (0 = default)")
}

func runConnectionAdd(cmd *cobra.Command, _ []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}
	if connOrg == "" {
		return errors.New("--org is required")
	}
	if connProvider == "" {
		if !isTerminal() {
			return errors.New("--provider is required")
		}
		connProvider = chooseProvider(cmd)
	}

	desc, err := findProvider(connProvider)
	if err != nil {
		return err
	}

	creds := make(map[string]string, len(connCreds))
	for k, v := range connCreds {
		creds[k] = v
	}
	if err := promptMissingCredentials(cmd, desc, creds); err != nil {
		return err
	}

	syncCfg, err := syncConfigFromFlags()
	if err != nil {
		return err
	}

	name := connName
	if name == "" {
		name = desc.Name
	}

	conn, err := connectionService.Register(cmd.Context(), driving.RegisterConnectionRequest{
		OrganizationID: connOrg,
		ProviderType:   connProvider,
		Name:           name,
		Credentials:    creds,
		SyncConfig:     syncCfg,
		MultiHomed:     connMultiHomed,
	})
	if err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}

	cmd.Printf("Connection registered: %s\n", conn.ID)
	cmd.Printf("  Provider: %s\n", conn.ProviderType)
	cmd.Printf("  Schedule: incremental %s, periodic %s, full %s\n",
		conn.SyncConfig.IncrementalInterval, conn.SyncConfig.PeriodicInterval, conn.SyncConfig.FullSyncInterval)
	return nil
}

func runConnectionUpdate(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}

	req := driving.UpdateConnectionRequest{ID: args[0]}
	if cmd.Flags().Changed("name") {
		name := connName
		req.Name = &name
	}
	if len(connCreds) > 0 {
		req.Credentials = connCreds
	}

	scheduleChanged := false
	for _, f := range []string{"incremental", "periodic", "full", "page-size", "entity-types"} {
		if cmd.Flags().Changed(f) {
			scheduleChanged = true
		}
	}
	if scheduleChanged {
		current, err := connectionService.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		cfg := current.SyncConfig
		if cmd.Flags().Changed("incremental") {
			cfg.IncrementalInterval = connIncremental
		}
		if cmd.Flags().Changed("periodic") {
			cfg.PeriodicInterval = connPeriodic
		}
		if cmd.Flags().Changed("full") {
			cfg.FullSyncInterval = connFull
		}
		if cmd.Flags().Changed("page-size") {
			cfg.PageSize = connPageSize
		}
		if cmd.Flags().Changed("entity-types") {
			types, err := parseEntityTypes(connEntityTypes)
			if err != nil {
				return err
			}
			cfg.EntityTypes = types
		}
		req.SyncConfig = &cfg
	}

	if req.Name == nil && req.Credentials == nil && req.SyncConfig == nil {
		return errors.New("nothing to update")
	}

	conn, err := connectionService.Update(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	cmd.Printf("Connection %s updated.\n", conn.ID)
	return nil
}

func runConnectionList(cmd *cobra.Command, _ []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}
	if connOrg == "" {
		return errors.New("--org is required")
	}

	conns, err := connectionService.List(cmd.Context(), connOrg)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	if len(conns) == 0 {
		cmd.Println("No connections configured.")
		return nil
	}

	cmd.Println(titleStyle.Render(fmt.Sprintf("Connections for %s", connOrg)))
	for i := range conns {
		c := &conns[i]
		active := "active"
		if !c.IsActive {
			active = "inactive"
		}
		cmd.Printf("  %s  %-10s %-20s %s (%s)\n", c.ID, c.ProviderType, c.Name,
			renderConnectionStatus(c.Status), active)
		if c.LastError != "" {
			cmd.Printf("      %s\n", mutedStyle.Render("last error: "+c.LastError))
		}
	}
	return nil
}

func runConnectionStatus(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}
	if connOrg == "" {
		return errors.New("--org is required")
	}

	health, err := connectionService.Health(cmd.Context(), connOrg, args[0])
	if err != nil {
		return fmt.Errorf("failed to get connection status: %w", err)
	}

	cmd.Println(titleStyle.Render("Connection " + health.ConnectionID))
	cmd.Printf("  Provider:  %s\n", health.ProviderType)
	cmd.Printf("  Active:    %t\n", health.IsActive)
	cmd.Printf("  Status:    %s\n", renderConnectionStatus(health.Status))
	cmd.Printf("  Last sync: %s\n", formatTime(health.LastSyncAt))
	if health.LastError != "" {
		cmd.Printf("  Error:     %s\n", errorStyle.Render(health.LastError))
	}

	if len(health.EntityStates) > 0 {
		cmd.Println()
		cmd.Println(titleStyle.Render("Entity types"))
	}
	for i := range health.EntityStates {
		st := &health.EntityStates[i]
		cmd.Printf("  %-18s incremental %s  full %s\n", st.EntityType,
			formatTime(st.LastIncrementalAt), formatTime(st.LastFullSyncAt))
		if st.HasPendingWalk() {
			cmd.Printf("  %-18s %s\n", "", warningStyle.Render(fmt.Sprintf(
				"resumes %s walk at cursor %s", st.CursorCadence, st.LastCursor)))
		}
		if st.LastError != "" {
			cmd.Printf("  %-18s %s\n", "", errorStyle.Render(st.LastError))
		}
	}

	if syncOrchestrator != nil {
		active, err := syncOrchestrator.Status(cmd.Context(), health.ConnectionID)
		if err == nil && len(active) > 0 {
			cmd.Println()
			cmd.Println(titleStyle.Render("Running"))
			for i := range active {
				cmd.Printf("  %-18s %s: %d pages, %d upserted, %d unchanged, %d errors\n",
					active[i].EntityType, active[i].Cadence, active[i].PagesProcessed,
					active[i].EntitiesUpserted, active[i].EntitiesUnchanged, active[i].ErrorCount)
			}
		}
	}
	return nil
}

func runConnectionDeactivate(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}
	if err := connectionService.Deactivate(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}
	cmd.Printf("Connection %s deactivated.\n", args[0])
	return nil
}

func runConnectionReset(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}
	if err := connectionService.Reset(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to reset connection: %w", err)
	}
	cmd.Printf("Connection %s reset; syncing resumes on the next tick.\n", args[0])
	return nil
}

func runConnectionProviders(cmd *cobra.Command, _ []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}

	for _, p := range connectionService.Providers() {
		cmd.Println(titleStyle.Render(p.ID) + "  " + p.Name)
		if p.Description != "" {
			cmd.Printf("  %s\n", mutedStyle.Render(p.Description))
		}
		types := make([]string, len(p.EntityTypes))
		for i, et := range p.EntityTypes {
			types[i] = string(et)
		}
		cmd.Printf("  Entity types: %s\n", strings.Join(types, ", "))
		cmd.Printf("  Write-back:   %t\n", p.SupportsWriteBack)
		for _, k := range p.CredentialKeys {
			req := "optional"
			if k.Required {
				req = "required"
			}
			line := fmt.Sprintf("  --cred %s  (%s, %s)", k.Key, k.Label, req)
			if k.Default != "" {
				line += " default " + k.Default
			}
			cmd.Println(line)
		}
		cmd.Println()
	}
	return nil
}

// chooseProvider prompts for a provider from a numbered list.
func chooseProvider(cmd *cobra.Command) string {
	providers := connectionService.Providers()
	if len(providers) == 0 {
		return ""
	}
	cmd.Println("Select provider:")
	for i := range providers {
		cmd.Printf("  %d. %s (%s)\n", i+1, providers[i].Name, providers[i].ID)
	}
	cmd.Printf("Choice [1]: ")
	choice := parseChoice(readLine(bufio.NewReader(stdin)), len(providers), 1)
	return providers[choice-1].ID
}

func findProvider(providerType string) (*domain.ProviderDescriptor, error) {
	providers := connectionService.Providers()
	ids := make([]string, 0, len(providers))
	for i := range providers {
		if providers[i].ID == providerType {
			return &providers[i], nil
		}
		ids = append(ids, providers[i].ID)
	}
	sort.Strings(ids)
	return nil, fmt.Errorf("unknown provider %q (available: %s)", providerType, strings.Join(ids, ", "))
}

// promptMissingCredentials asks for required credentials that were not
// passed as flags. Outside a terminal it fails instead.
func promptMissingCredentials(cmd *cobra.Command, desc *domain.ProviderDescriptor, creds map[string]string) error {
	missing := desc.MissingCredentials(creds)
	if len(missing) == 0 {
		return nil
	}
	if !isTerminal() {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}

	reader := bufio.NewReader(stdin)
	for _, k := range desc.CredentialKeys {
		if !contains(missing, k.Key) {
			continue
		}
		cmd.Printf("%s: ", k.Label)
		var value string
		if k.Secret {
			value = readPassword(reader)
			cmd.Println()
		} else {
			value = readLine(reader)
		}
		if value == "" {
			return fmt.Errorf("%s is required", k.Key)
		}
		creds[k.Key] = value
	}
	return nil
}

func syncConfigFromFlags() (domain.SyncConfig, error) {
	types, err := parseEntityTypes(connEntityTypes)
	if err != nil {
		return domain.SyncConfig{}, err
	}
	return domain.SyncConfig{
		IncrementalInterval: connIncremental,
		PeriodicInterval:    connPeriodic,
		FullSyncInterval:    connFull,
		EntityTypes:         types,
		PageSize:            connPageSize,
	}, nil
}

func parseEntityTypes(values []string) ([]domain.EntityType, error) {
	var out []domain.EntityType //nolint:prealloc
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		et, err := domain.ParseEntityType(v)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
