package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	rootDir      string
	settingsFile string
	manifestFile string
	logLevel     string
	jsonOutput   bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "shardctl",
		Short: "shardctl - microservices management CLI",
		Long: `shardctl clones, builds and runs a set of independently versioned services
that are integrated with docker compose.

Services are declared in a manifest (services.yml by default):
  - repositories are cloned into the services directory by 'setup'
  - build sections are run by 'build-service'
  - compose commands are forwarded with the configured files and profile`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&settingsFile, "config", "c", "", "settings file path (default: <root>/shardctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&manifestFile, "manifest", "m", "", "service manifest path (default: services.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSetupCommand())
	rootCmd.AddCommand(newBuildServiceCommand())
	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDoctorCommand())

	rootCmd.AddCommand(newUpCommand())
	rootCmd.AddCommand(newDownCommand())
	rootCmd.AddCommand(newPsCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newRestartCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newPullCommand())
	rootCmd.AddCommand(newExecCommand())
	rootCmd.AddCommand(newShellCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newComposeCommand())

	return rootCmd
}
