package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Deliver domain events to providers",
	Long: `Push internal domain events (carrier assignments, invoice status
changes) to the providers that accept write-back, and manage the
dead-letter queue of deliveries that exhausted their retries.`,
}

var eventsDeliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Deliver one event",
	Long: `Deliver one domain event given as JSON.

The event is read from --data, from --file, or from stdin. Delivering the
same event twice reports the recorded result without calling the provider.

Example:
  fleetsync events deliver --data '{"name":"carrier.assigned",
    "organizationId":"org-1","payload":{"orderId":"L-7","carrierId":"C-9"}}'`,
	RunE: runEventsDeliver,
}

var eventsDeadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List dead-lettered deliveries",
	RunE:  runEventsDeadLetters,
}

var eventsRedriveCmd = &cobra.Command{
	Use:   "redrive [key]",
	Short: "Retry dead-lettered deliveries",
	Long:  `Retry one dead-lettered delivery by key, or all of them when no key is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEventsRedrive,
}

var (
	eventData string
	eventFile string
	eventOrg  string
)

func init() {
	eventsDeliverCmd.Flags().StringVar(&eventData, "data", "", "event JSON")
	eventsDeliverCmd.Flags().StringVarP(&eventFile, "file", "f", "", "read event JSON from file")
	eventsDeadLettersCmd.Flags().StringVar(&eventOrg, "org", "", "organization ID (default: all)")

	eventsCmd.AddCommand(eventsDeliverCmd)
	eventsCmd.AddCommand(eventsDeadLettersCmd)
	eventsCmd.AddCommand(eventsRedriveCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsDeliver(cmd *cobra.Command, _ []string) error {
	if eventBridge == nil {
		return errors.New("event bridge not configured")
	}

	data, err := readEventData()
	if err != nil {
		return err
	}

	var event domain.DomainEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("invalid event JSON: %w", err)
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	d, err := eventBridge.Handle(cmd.Context(), event)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	printDelivery(cmd, d)
	if d.Status == domain.DeliveryDeadLettered {
		return fmt.Errorf("event %s was dead-lettered", d.Key)
	}
	return nil
}

func readEventData() ([]byte, error) {
	switch {
	case eventData != "":
		return []byte(eventData), nil
	case eventFile != "":
		data, err := os.ReadFile(eventFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", eventFile, err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, errors.New("no event given: use --data, --file or stdin")
		}
		return data, nil
	}
}

func runEventsDeadLetters(cmd *cobra.Command, _ []string) error {
	if eventBridge == nil {
		return errors.New("event bridge not configured")
	}

	deliveries, err := eventBridge.DeadLetters(cmd.Context(), eventOrg)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}
	if len(deliveries) == 0 {
		cmd.Println("No dead-lettered deliveries.")
		return nil
	}
	for i := range deliveries {
		printDelivery(cmd, &deliveries[i])
	}
	return nil
}

func runEventsRedrive(cmd *cobra.Command, args []string) error {
	if eventBridge == nil {
		return errors.New("event bridge not configured")
	}

	if len(args) == 1 {
		d, err := eventBridge.Redrive(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("redrive failed: %w", err)
		}
		printDelivery(cmd, d)
		return nil
	}

	n, err := eventBridge.RedriveAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("redrive failed: %w", err)
	}
	cmd.Printf("Redelivered %d events.\n", n)
	return nil
}

func printDelivery(cmd *cobra.Command, d *domain.EventDelivery) {
	cmd.Printf("%s  %s  %s\n", d.Key, d.EventName, renderDeliveryStatus(d.Status))
	cmd.Printf("  org %s", d.OrganizationID)
	if d.ConnectionID != "" {
		cmd.Printf(", connection %s", d.ConnectionID)
	}
	cmd.Printf(", %d attempts\n", d.Attempts)
	if d.LastError != "" {
		cmd.Printf("  %s\n", errorStyle.Render(d.LastError))
	}
}
