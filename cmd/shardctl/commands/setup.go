package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shardctl/shardctl/pkg/manifest"
	"github.com/shardctl/shardctl/pkg/vcs"
)

func newSetupCommand() *cobra.Command {
	var (
		force        bool
		createConfig bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Clone all service repositories into the services directory",
		Long: `Clone every repository listed in the manifest into <services_dir>/<name>.

Existing working copies are skipped. With --force they are removed and cloned
again. Each service becomes an independent git repository that is ignored by
the parent integration repository.

With --create-config an example manifest is written instead.`,
		Example: `  # Clone everything that is missing
  shardctl setup

  # Re-clone everything, four at a time
  shardctl setup --force --parallel 4

  # Write an example services.yml
  shardctl setup --create-config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			if createConfig {
				path := a.settings.ManifestPath()
				err := manifest.Scaffold(path, force)
				if errors.Is(err, manifest.ErrManifestExists) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file already exists at %s\nUse --force to overwrite\n", path)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Created example configuration at %s\n", path)
				return nil
			}

			m, _, err := a.loadManifest(ctx, "setup")
			if err != nil {
				return err
			}
			if len(m.Repositories()) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No service repositories configured.\nRun 'shardctl setup --create-config' to create an example configuration.")
				return nil
			}

			// A missing git still runs the sync so each repository gets its
			// own CloneFailed outcome.
			if vcs.Backend(a.settings.Clone.Backend) == vcs.BackendGit {
				if missing := vcs.Missing(vcs.CheckTools("git")); len(missing) > 0 {
					a.logger.Warn().Strs("missing", missing).Msg("Required tools not found on PATH")
				}
			}

			syncer, err := a.syncer()
			if err != nil {
				return err
			}

			a.logger.Info().
				Str("root", a.settings.ServicesRoot()).
				Int("repositories", len(m.Repositories())).
				Bool("force", force).
				Int("parallel", a.settings.Parallel).
				Msg("Setting up service repositories")

			report, err := syncer.Sync(ctx, m, a.settings.ServicesRoot(), force)
			if err != nil {
				a.tel.Metrics.RecordFailure(err)
				return err
			}
			return a.finish(ctx, report)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove existing service directories before cloning")
	cmd.Flags().BoolVar(&createConfig, "create-config", false, "create an example services.yml configuration file")
	cmd.Flags().IntP("parallel", "j", 1, "number of repositories cloned at once")
	cmd.Flags().String("clone-backend", "git", "clone backend (git, go-git)")
	cmd.Flags().Int("depth", 0, "create shallow clones with this depth")

	return cmd
}
