package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tripdesk/syncbridge/cli/pkg/output"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Send a payload file through the webhook ingress",
	Long: `Reads a JSON file (single object or array) and posts it to the ingest
endpoint as the given provider. Useful for replaying captured webhooks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		if provider == "" {
			return fmt.Errorf("--provider is required")
		}

		payload, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}

		result, err := apiClient(cmd).Ingest(provider, payload)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(result)
		}

		output.Info("Received:   %d", result.EventsReceived)
		output.Info("Inserted:   %d", result.EventsInserted)
		output.Info("Duplicated: %d", result.EventsDuplicated)
		for _, e := range result.Errors {
			output.Warn("%s", e)
		}
		if result.EventsInserted > 0 {
			output.Success("Ingested %d event(s)", result.EventsInserted)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("provider", "", "provider name (chatpro, echo, activecampaign)")
	rootCmd.AddCommand(ingestCmd)
}
