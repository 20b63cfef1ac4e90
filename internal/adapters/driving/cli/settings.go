package cli

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change store, scheduler, retry, retention, event bridge and
transport settings. Values are stored in ~/.fleetsync/config.toml and may be
overridden with FLEETSYNC_* environment variables.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set one setting",
	Long: `Set one setting by dot-notation key.

Booleans, integers and floats are detected automatically; durations are
stored as strings such as "15m" or "24h".

Example:
  fleetsync settings set scheduler.tick_interval 30s
  fleetsync settings set store.driver postgres`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Store]")
	cmd.Printf("  Driver: %s\n", settings.Store.Driver)
	if settings.Store.DSN != "" {
		cmd.Printf("  DSN: %s\n", maskURL(settings.Store.DSN))
	}
	if settings.Store.DataDir != "" {
		cmd.Printf("  Data dir: %s\n", settings.Store.DataDir)
	}
	cmd.Println()

	cmd.Println("[Scheduler]")
	cmd.Printf("  Enabled: %s\n", yesNo(settings.Scheduler.Enabled))
	cmd.Printf("  Tick interval: %s\n", settings.Scheduler.TickInterval)
	cmd.Printf("  Max concurrency: %d\n", settings.Scheduler.MaxConcurrency)
	cmd.Printf("  Page size: %d\n", settings.Sync.PageSize)
	cmd.Println()

	cmd.Println("[Retry]")
	cmd.Printf("  Max attempts: %d\n", settings.Retry.MaxAttempts)
	cmd.Printf("  Delay: %s to %s (x%g)\n", settings.Retry.BaseDelay, settings.Retry.MaxDelay, settings.Retry.Multiplier)
	cmd.Println()

	cmd.Println("[Retention]")
	cmd.Printf("  Enabled: %s\n", yesNo(settings.Retention.Enabled))
	cmd.Printf("  Stale after: %s\n", settings.Retention.StaleAfter)
	cmd.Printf("  Interval: %s\n", settings.Retention.Interval)
	cmd.Printf("  Runs kept: %d\n", settings.Retention.KeepRuns)
	cmd.Println()

	cmd.Println("[Event Bridge]")
	cmd.Printf("  Max attempts: %d\n", settings.Bridge.MaxAttempts)
	cmd.Printf("  Redrive interval: %s\n", durationOrOff(settings.Bridge.RedriveInterval))
	if settings.AMQP.URL != "" {
		cmd.Printf("  AMQP: %s queue %s (prefetch %d)\n", maskURL(settings.AMQP.URL), settings.AMQP.Queue, settings.AMQP.Prefetch)
	} else {
		cmd.Println("  AMQP: (not set)")
	}
	cmd.Println()

	cmd.Println("[HTTP]")
	cmd.Printf("  Address: %s\n", settings.HTTP.Addr)
	cmd.Printf("  Log level: %s\n", settings.LogLevel)
	cmd.Println()

	if err := settingsService.Validate(settings); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, raw := args[0], args[1]
	if err := settingsService.Set(key, parseSettingValue(raw)); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if err := settingsService.Validate(settings); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}

	cmd.Printf("%s updated.\n", key)
	return nil
}

// parseSettingValue converts CLI text to the TOML type it most resembles.
func parseSettingValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassword reads without echo when stdin is a terminal.
func readPassword(reader *bufio.Reader) string {
	if stdin == os.Stdin && isTerminal() {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskURL hides the password of a connection URL.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
