package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the dayplanner application
var rootCmd = &cobra.Command{
	Use:   "dayplanner",
	Short: "Plans your day from Google Calendar and Google Tasks",
	Long: `dayplanner combines Google Calendar events, Google Tasks and ICS
subscriptions into one view of a day: conflicts, free time, due and overdue
tasks.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants (default)
  - A CLI that prints the overview of a day`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(envFile)
	},
}

// version will be set by main
var version = "dev"

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dayplanner version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads KEY=value pairs from path into the environment. Variables
// that are already set win. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (.yaml or .toml). Default: $XDG_CONFIG_HOME/dayplanner/config.yaml. Can also use DAYPLANNER_CONFIG env var.")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides the config file)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newOverviewCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
