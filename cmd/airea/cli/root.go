package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/airea/airea/internal/config"
)

var cfgFile string

// Build metadata, set in Execute.
var (
	appVersion string
	appCommit  string
	appDate    string
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion, appCommit, appDate = version, commit, date
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airea",
		Short: "Device gateway for headless cough-detection sensors",
		Long: `airea issues and verifies device credentials and ingests cough detections.

Devices exchange a long-lived API key for a short-lived session token, then
report events over a rate-limited, authenticated REST API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initConfig()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./airea.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.airea)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDeviceCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("airea")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.airea")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("AIREA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

// loadSettings decodes the effective configuration.
func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}
