package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripdesk/syncbridge/cli/pkg/output"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Drain one batch of pending events",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient(cmd).Process()
		if err != nil {
			return fmt.Errorf("process batch failed: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(result)
		}

		if result.Processed == 0 {
			output.Info("No pending events")
			return nil
		}
		table := output.NewTable([]string{"ID", "Status", "Error"})
		for _, r := range result.Results {
			table.AddRow([]string{r.ID, r.Status, r.Error})
		}
		table.Render()
		output.Success("Processed %d event(s)", result.Processed)
		return nil
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one outbound dispatch sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient(cmd).Dispatch()
		if err != nil {
			return fmt.Errorf("dispatch sweep failed: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(result)
		}

		if result.Processed == 0 {
			output.Info("Outbound queue is empty")
			return nil
		}
		table := output.NewTable([]string{"ID", "Status", "Error"})
		for _, r := range result.Results {
			table.AddRow([]string{r.ID, r.Status, r.Error})
		}
		table.Render()
		output.Success("Processed %d, sent %d, failed %d", result.Processed, result.Sent, result.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(dispatchCmd)
}
