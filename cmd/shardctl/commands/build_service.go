package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newBuildServiceCommand() *cobra.Command {
	var (
		all          bool
		docker       bool
		listOnly     bool
		streamOutput bool
	)

	cmd := &cobra.Command{
		Use:   "build-service [SERVICE...]",
		Short: "Build services using their configured build commands",
		Long: `Run the build command of each named service in its working directory
(<services_dir>/<working_directory or name>). With --docker the docker build
command is run instead.

Services are built one after another. A failing build does not stop the
remaining ones; the command exits non-zero if any build failed.`,
		Example: `  # Build one service
  shardctl build-service api

  # Build its Docker image instead
  shardctl build-service api --docker

  # Build everything with a build section
  shardctl build-service --all --timeout 10m

  # List services with build configurations
  shardctl build-service --list`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !listOnly && !all && len(args) == 0 {
				return fmt.Errorf("SERVICE argument is required (use --all to build every service, or --list to see them)")
			}
			if all && len(args) > 0 {
				return fmt.Errorf("--all cannot be combined with service names")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			m, _, err := a.loadManifest(ctx, "build")
			if err != nil {
				return err
			}

			if listOnly {
				entries := buildList(m)
				if jsonOutput {
					return writeJSON(a.out, entries)
				}
				return renderBuildList(a.out, entries)
			}

			var output io.Writer
			if streamOutput {
				output = cmd.OutOrStdout()
				if jsonOutput {
					output = cmd.ErrOrStderr()
				}
			}

			report, err := a.builder(output).Build(ctx, m, a.settings.ServicesRoot(), args, docker)
			if err != nil {
				a.tel.Metrics.RecordFailure(err)
				return err
			}
			return a.finish(ctx, report)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "build every service with a build configuration")
	cmd.Flags().BoolVarP(&docker, "docker", "d", false, "build the Docker image instead of the regular build")
	cmd.Flags().BoolVarP(&listOnly, "list", "l", false, "list all services with build configurations")
	cmd.Flags().BoolVar(&streamOutput, "output", true, "stream build output while building")
	cmd.Flags().Duration("timeout", 0, "per-service build timeout (0 means no limit)")

	return cmd
}
