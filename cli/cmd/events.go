package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripdesk/syncbridge/cli/pkg/output"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event store inspection",
	Long:  "List ingested events, inspect their processing logs and requeue failures",
}

var eventsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List events",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		integration, _ := cmd.Flags().GetString("integration")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := apiClient(cmd).ListEvents(status, integration, limit)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(list.Events)
		}

		if len(list.Events) == 0 {
			output.Info("No events found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Source", "Entity", "Type", "Status", "Created At"})
		for _, ev := range list.Events {
			table.AddRow([]string{
				ev.ID,
				ev.Source,
				ev.EntityType,
				ev.EventType,
				ev.Status,
				ev.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		table.Render()
		output.Info("\nShowing %d event(s)", len(list.Events))
		return nil
	},
}

var eventsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one event with its processing log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := apiClient(cmd).GetEvent(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch event: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(ev)
		}

		output.Info("ID:              %s", ev.ID)
		output.Info("Integration:     %s", ev.IntegrationID)
		output.Info("Source:          %s", ev.Source)
		output.Info("Idempotency key: %s", ev.IdempotencyKey)
		output.Info("Entity / type:   %s / %s", ev.EntityType, ev.EventType)
		output.Info("External ID:     %s", ev.ExternalID)
		output.Info("Status:          %s", ev.Status)
		output.Info("Created at:      %s", ev.CreatedAt.Format("2006-01-02 15:04:05"))
		if len(ev.ProcessingLog) > 0 {
			output.Info("Processing log:")
			for _, line := range ev.ProcessingLog {
				output.Info("  - %s", line)
			}
		}
		return nil
	},
}

var eventsReprocessCmd = &cobra.Command{
	Use:   "reprocess [id]",
	Short: "Requeue a failed event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).ReprocessEvent(args[0]); err != nil {
			return fmt.Errorf("failed to reprocess event: %w", err)
		}
		output.Success("Event %s requeued", args[0])
		return nil
	},
}

func init() {
	eventsListCmd.Flags().String("status", "", "filter by status (pending, processed, failed, ...)")
	eventsListCmd.Flags().String("integration", "", "filter by integration id")
	eventsListCmd.Flags().Int("limit", 50, "maximum events to return")

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsGetCmd)
	eventsCmd.AddCommand(eventsReprocessCmd)
	rootCmd.AddCommand(eventsCmd)
}
