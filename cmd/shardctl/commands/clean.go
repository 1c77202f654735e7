package commands

import (
	"github.com/spf13/cobra"
)

func newCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [SERVICE...]",
		Short: "Remove service working copies",
		Long: `Remove the working copies of the named services, or of every repository in
the manifest when no service is given. Services without a working copy are
reported as skipped.`,
		Example: `  # Remove every working copy
  shardctl clean

  # Remove one working copy
  shardctl clean api`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			m, _, err := a.loadManifest(ctx, "clean")
			if err != nil {
				return err
			}

			syncer, err := a.syncer()
			if err != nil {
				return err
			}

			a.logger.Info().
				Str("root", a.settings.ServicesRoot()).
				Strs("services", args).
				Msg("Removing working copies")

			report, err := syncer.Clean(ctx, m, a.settings.ServicesRoot(), args)
			if err != nil {
				a.tel.Metrics.RecordFailure(err)
				return err
			}
			return a.finish(ctx, report)
		},
	}

	return cmd
}
