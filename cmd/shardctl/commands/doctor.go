package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardctl/shardctl/pkg/compose"
	"github.com/shardctl/shardctl/pkg/vcs"
)

func newDoctorCommand() *cobra.Command {
	var skipDaemon bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment shardctl depends on",
		Long: `Check that everything shardctl needs is in place:
  - git and the compose binary on PATH
  - a reachable Docker daemon
  - policy files that compile
  - a valid manifest that passes all policies
  - loadable compose files
  - a usable run history database`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			checks := toolChecks(vcs.CheckTools(requiredTools(a)...))
			if !skipDaemon && a.settings.Compose.Binary != "podman" {
				checks = append(checks, daemonCheck(ctx))
			}
			checks = append(checks, policyCheck(ctx, a), manifestCheck(ctx, a), composeCheck(ctx, cmd, a), historyCheck(ctx, a))

			if jsonOutput {
				if err := writeJSON(a.out, checks); err != nil {
					return err
				}
			} else if err := renderChecks(a.out, checks); err != nil {
				return err
			}

			var failing []string
			for _, c := range checks {
				if !c.OK {
					failing = append(failing, c.Name)
				}
			}
			if len(failing) > 0 {
				return &reportedError{msg: "failing checks: " + strings.Join(failing, ", "), code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipDaemon, "skip-daemon", false, "do not contact the Docker daemon")

	return cmd
}

// requiredTools lists the executables the configured backends need.
func requiredTools(a *app) []string {
	var tools []string
	if vcs.Backend(a.settings.Clone.Backend) == vcs.BackendGit {
		tools = append(tools, "git")
	}
	return append(tools, a.settings.Compose.Binary)
}

func daemonCheck(ctx context.Context) check {
	c := check{Name: "docker daemon"}

	d, err := compose.NewDaemon()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	info, err := d.Ping(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%s (API %s, %s/%s)", info.Version, info.APIVersion, info.OS, info.Arch)
	return c
}

func policyCheck(ctx context.Context, a *app) check {
	c := check{Name: "policies"}
	pe, err := a.policies(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	var enabled, disabled []string
	for _, p := range pe.ListPolicies() {
		if p.Enabled {
			enabled = append(enabled, p.Name)
		} else {
			disabled = append(disabled, p.Name)
		}
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%d enabled (%s)", len(enabled), strings.Join(enabled, ", "))
	if len(disabled) > 0 {
		c.Detail += fmt.Sprintf(", %d disabled (%s)", len(disabled), strings.Join(disabled, ", "))
	}
	return c
}

func manifestCheck(ctx context.Context, a *app) check {
	c := check{Name: "manifest"}
	m, result, err := a.loadManifest(ctx, "validate")
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	v := newValidation(m, result)
	c.Detail = fmt.Sprintf("%s: %d services, %d warnings", v.Manifest, v.Services, len(v.Warnings))
	if m.IsEmpty() {
		c.Detail = fmt.Sprintf("%s: no services configured", v.Manifest)
	}
	return c
}

func composeCheck(ctx context.Context, cmd *cobra.Command, a *app) check {
	c := check{Name: "compose files"}
	mgr, err := a.composeManager(cmd)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	services, err := mgr.Services(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%d services (%s)", len(services), strings.Join(a.settings.Compose.Files, ", "))
	return c
}

func historyCheck(ctx context.Context, a *app) check {
	c := check{Name: "history"}
	store, err := a.history(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if store == nil {
		c.OK = true
		c.Detail = "disabled"
		return c
	}
	if err := store.HealthCheck(ctx); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = a.settings.HistoryPath()
	return c
}
