package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shardctl/shardctl/pkg/manifest"
	"github.com/shardctl/shardctl/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the service manifest",
		Long: `Validate the service manifest and evaluate policies against it.

This command checks:
  - manifest syntax (YAML, TOML or CUE)
  - service names, repository URLs and working directories
  - duplicate build sections
  - policy compliance (built-in and configured Rego policies)

With --watch the manifest is validated again every time it changes.`,
		Example: `  # Validate services.yml in the current directory
  shardctl validate

  # Keep validating while editing
  shardctl validate --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			pe, err := a.policies(ctx)
			if err != nil {
				return err
			}
			path := a.settings.ManifestPath()

			if !watch {
				m, err := manifest.Load(path)
				if err != nil {
					return err
				}
				return validateOnce(ctx, a.out, pe, m)
			}

			go func() {
				if err := a.tel.Metrics.Serve(ctx); err != nil {
					a.logger.Error().Err(err).Msg("Metrics endpoint stopped")
				}
			}()

			a.logger.Info().Str("manifest", path).Msg("Watching manifest for changes")
			if m, err := manifest.Load(path); err != nil {
				reportInvalid(a, err)
			} else if err := validateOnce(ctx, a.out, pe, m); err != nil {
				reportInvalid(a, err)
			}

			return manifest.Watch(ctx, path, manifest.DefaultDebounce, func(m *manifest.Manifest, err error) {
				if err == nil {
					err = validateOnce(ctx, a.out, pe, m)
				}
				if err != nil {
					reportInvalid(a, err)
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "validate again whenever the manifest changes")

	return cmd
}

// validateOnce evaluates the policies and prints the result.
func validateOnce(ctx context.Context, w io.Writer, pe *policy.Engine, m *manifest.Manifest) error {
	result, err := pe.Check(ctx, m, "validate")
	if err != nil {
		return err
	}
	v := newValidation(m, result)
	if jsonOutput {
		return writeJSON(w, v)
	}
	return renderValidation(w, v)
}

func reportInvalid(a *app, err error) {
	a.tel.Metrics.RecordFailure(err)
	fmt.Fprintf(a.out, "invalid: %v\n", err)
}
