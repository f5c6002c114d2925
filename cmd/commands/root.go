package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"holders-backend/config"
	"holders-backend/internal/printer"
	"holders-backend/internal/utils"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "holders",
	Short: "Holders - live token holder count tracker",
	Long: `Holders polls a Solana token's accounts through the Helius RPC API,
counts the distinct owners with a positive balance and streams the resulting
time series to WebSocket clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() error {
	// Errors are printed by the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "holders.yml", "Path to the YAML config file")
}

// loadConfig reads the config file and initializes logging from it
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s or the environment overrides", configPath)},
		)
	}
	utils.InitializeComponentLoggers(cfg.Log.Level)
	return cfg, nil
}
