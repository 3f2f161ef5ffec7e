package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tripdesk/syncbridge/cli/internal/client"
	"github.com/tripdesk/syncbridge/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sbctl",
	Short: "syncbridge CLI",
	Long: `sbctl is the command-line interface for the syncbridge integration
engine.

Inspect ingested events, requeue failures, trigger processing and
dispatch sweeps, and reconcile CRM pipelines from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.sbctl/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "syncbridge server URL (overrides config)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// apiClient builds a client from the config, honoring the --server override.
func apiClient(cmd *cobra.Command) *client.Client {
	serverURL := cfg.ServerURL
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		serverURL = v
	}
	return client.New(serverURL, cfg.SyncSecret)
}
