// Command ingressd runs the webhook ingestion server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	settings   Settings
	configFile string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "ingressd <command>",
	Short:         "Verify, deduplicate and route inbound webhooks",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := LoadSettings()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("config") {
			loaded.ConfigFile = configFile
		}
		settings = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "endpoint config file (yaml or toml), overrides INGRESS_CONFIG")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(providersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ingressd:", err)
		os.Exit(1)
	}
}
