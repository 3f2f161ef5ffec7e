package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripdesk/syncbridge/cli/pkg/output"
)

var pollCmd = &cobra.Command{
	Use:   "poll [pipeline-id]",
	Short: "Reconcile one CRM pipeline against the event store",
	Long: `Pages through the pipeline's deals on the external CRM and inserts an
event for every deal the store has not seen. Requires sync_secret in the
config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipelineID := ""
		if len(args) > 0 {
			pipelineID = args[0]
		}
		dealID, _ := cmd.Flags().GetString("deal")
		limit, _ := cmd.Flags().GetInt("limit")
		force, _ := cmd.Flags().GetBool("force")

		if pipelineID == "" && dealID == "" {
			return fmt.Errorf("a pipeline id or --deal is required")
		}

		result, err := apiClient(cmd).Poll(pipelineID, dealID, limit, force)
		if err != nil {
			return fmt.Errorf("poll failed: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(result)
		}

		output.Info("Deals fetched:   %d", result.DealsFetched)
		output.Info("Already synced:  %d", result.AlreadySynced)
		output.Info("New events:      %d", result.NewEventsCreated)
		if result.Error != "" {
			output.Warn("Partial failure: %s", result.Error)
			return nil
		}
		output.Success("Pipeline %s reconciled", result.PipelineID)
		return nil
	},
}

func init() {
	pollCmd.Flags().String("deal", "", "reconcile a single deal id instead of a full pipeline")
	pollCmd.Flags().Int("limit", 0, "cap the number of deals fetched")
	pollCmd.Flags().Bool("force", false, "salt idempotency keys to force reprocessing of every deal")
	rootCmd.AddCommand(pollCmd)
}
