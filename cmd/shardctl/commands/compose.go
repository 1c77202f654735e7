package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shardctl/shardctl/pkg/compose"
)

// runCompose checks the environment, builds the compose manager and runs fn.
func runCompose(cmd *cobra.Command, fn func(ctx context.Context, a *app, mgr *compose.Manager) error) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(&err)

	mgr, err := a.composeManager(cmd)
	if err != nil {
		return err
	}
	if err := requireTools(mgr.Tools()...); err != nil {
		return err
	}
	return fn(cmd.Context(), a, mgr)
}

func addProfileFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("profile", "p", "", "compose profile (dev/prod)")
}

func progress(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func newUpCommand() *cobra.Command {
	var opts compose.UpOptions

	cmd := &cobra.Command{
		Use:   "up [SERVICE...]",
		Short: "Start services (detached by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				progress(cmd, "Starting services...")
				if err := mgr.Up(ctx, args, opts); err != nil {
					return err
				}
				progress(cmd, "Services started successfully")
				return nil
			})
		},
	}

	addProfileFlag(cmd)
	cmd.Flags().BoolVarP(&opts.Foreground, "foreground", "f", false, "run in foreground")
	cmd.Flags().BoolVarP(&opts.Build, "build", "b", false, "build images before starting")

	return cmd
}

func newDownCommand() *cobra.Command {
	var opts compose.DownOptions

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				progress(cmd, "Stopping services...")
				if err := mgr.Down(ctx, opts); err != nil {
					return err
				}
				progress(cmd, "Services stopped successfully")
				return nil
			})
		},
	}

	addProfileFlag(cmd)
	cmd.Flags().BoolVarP(&opts.Volumes, "volumes", "v", false, "remove named volumes")
	cmd.Flags().BoolVar(&opts.KeepOrphans, "keep-orphans", false, "keep orphan containers")

	return cmd
}

func newPsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps [SERVICE...]",
		Short: "List containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				return mgr.Ps(ctx, args)
			})
		},
	}

	addProfileFlag(cmd)

	return cmd
}

func newLogsCommand() *cobra.Command {
	var opts compose.LogsOptions

	cmd := &cobra.Command{
		Use:   "logs [SERVICE...]",
		Short: "View service logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				return mgr.Logs(ctx, args, opts)
			})
		},
	}

	addProfileFlag(cmd)
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "follow log output")
	cmd.Flags().IntVarP(&opts.Tail, "tail", "n", 0, "number of lines to show from the end of the logs")

	return cmd
}

func newRestartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart [SERVICE...]",
		Short: "Restart services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				progress(cmd, "Restarting services...")
				if err := mgr.Restart(ctx, args); err != nil {
					return err
				}
				progress(cmd, "Services restarted successfully")
				return nil
			})
		},
	}

	addProfileFlag(cmd)

	return cmd
}

func newBuildCommand() *cobra.Command {
	var opts compose.BuildOptions

	cmd := &cobra.Command{
		Use:   "build [SERVICE...]",
		Short: "Build or rebuild service images with compose",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				progress(cmd, "Building services...")
				if err := mgr.Build(ctx, args, opts); err != nil {
					return err
				}
				progress(cmd, "Build completed successfully")
				return nil
			})
		},
	}

	addProfileFlag(cmd)
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "do not use cache when building")

	return cmd
}

func newPullCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull [SERVICE...]",
		Short: "Pull service images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				progress(cmd, "Pulling service images...")
				if err := mgr.Pull(ctx, args); err != nil {
					return err
				}
				progress(cmd, "Images pulled successfully")
				return nil
			})
		},
	}

	addProfileFlag(cmd)

	return cmd
}

func newExecCommand() *cobra.Command {
	var opts compose.ExecOptions

	cmd := &cobra.Command{
		Use:   "exec SERVICE COMMAND [ARG...]",
		Short: "Execute a command in a running service container",
		Example: `  shardctl exec api ls -la
  shardctl exec -T api env`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				return mgr.ExecWith(ctx, args[0], args[1:], opts)
			})
		},
	}

	// Everything after SERVICE belongs to the command.
	cmd.Flags().SetInterspersed(false)
	addProfileFlag(cmd)
	cmd.Flags().BoolVarP(&opts.NoTTY, "no-tty", "T", false, "disable pseudo-TTY allocation")

	return cmd
}

func newShellCommand() *cobra.Command {
	var shell string

	cmd := &cobra.Command{
		Use:   "shell SERVICE",
		Short: "Open an interactive shell in a running service container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				progress(cmd, "Opening shell in %s...", args[0])
				return mgr.Shell(ctx, args[0], shell)
			})
		},
	}

	addProfileFlag(cmd)
	cmd.Flags().StringVarP(&shell, "shell", "s", compose.DefaultShell, "shell to use")

	return cmd
}

func newStatusCommand() *cobra.Command {
	var fromDaemon bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display service status in a table",
		Long: `Display the containers of the compose project with their state and
published ports.

By default the compose binary is asked (ps --format json). With --daemon the
Docker engine API is queried directly for containers labelled with the
project name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				var (
					statuses []compose.ContainerStatus
					err      error
				)
				if fromDaemon {
					statuses, err = daemonStatus(ctx, mgr)
				} else {
					statuses, err = mgr.Status(ctx)
				}
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeJSON(a.out, statuses)
				}
				return renderStatus(a.out, statuses)
			})
		},
	}

	addProfileFlag(cmd)
	cmd.Flags().BoolVar(&fromDaemon, "daemon", false, "query the Docker daemon instead of the compose binary")

	return cmd
}

func daemonStatus(ctx context.Context, mgr *compose.Manager) ([]compose.ContainerStatus, error) {
	project, err := mgr.Project(ctx)
	if err != nil {
		return nil, err
	}
	d, err := compose.NewDaemon()
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.ProjectContainers(ctx, project.Name)
}

func newComposeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose ARG...",
		Short: "Run any compose command with the configured files and profile",
		Example: `  shardctl compose config --services
  shardctl compose -p dev top api`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, func(ctx context.Context, a *app, mgr *compose.Manager) error {
				return mgr.Custom(ctx, args)
			})
		},
	}

	cmd.Flags().SetInterspersed(false)
	addProfileFlag(cmd)

	return cmd
}
