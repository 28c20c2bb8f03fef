package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/raysh454/a11yscan/internal/app"
	"github.com/raysh454/a11yscan/internal/logging"
)

type rootFlags struct {
	config   string
	logLevel string
}

var rootOpts rootFlags

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "a11yscan",
	Short: "Accessibility report server and scanner",
	Long: `a11yscan scans web pages for accessibility problems.

"serve" runs the report API (GraphQL, REST and WebSocket) with its job store
and two-tier result cache. "scan" starts a report through a running server and
polls it until the job completes.`,
	Version:       versionString(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command. It is called by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.config, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&rootOpts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// loadConfig layers the config file, .env, A11Y_* variables and the
// persistent flags.
func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig(rootOpts.config)
	if err != nil {
		return nil, err
	}
	if rootOpts.logLevel != "" {
		cfg.LogLevel = rootOpts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg *app.Config, component string) logging.Logger {
	return logging.NewWriterLogger(os.Stderr, component, cfg.LogLevel)
}
