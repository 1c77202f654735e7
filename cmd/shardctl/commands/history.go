package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardctl/shardctl/pkg/engine"
	"github.com/shardctl/shardctl/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		phase   string
		service string
		failed  bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recorded setup, build and clean runs",
		Long: `List recorded runs, newest first, or show the outcomes of one run.

A run ID may be abbreviated to any unique prefix.`,
		Example: `  # Last 20 runs
  shardctl history

  # Failed builds of one service
  shardctl history --phase build --service api --failed

  # Outcomes of one run
  shardctl history 3f2a9c1b`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if phase != "" {
				if err := engine.Phase(phase).Validate(); err != nil {
					return err
				}
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := store.ResolveRunID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				run, err := store.GetRun(ctx, id)
				if err != nil {
					return err
				}
				outcomes, err := store.ListOutcomes(ctx, id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(a.out, struct {
						*stores.Run
						Outcomes []*stores.OutcomeRecord `json:"outcomes"`
					}{run, outcomes})
				}
				return renderRun(a.out, run, outcomes)
			}

			runs, err := store.ListRuns(ctx, stores.RunFilter{
				Phase:   engine.Phase(phase),
				Service: service,
				Failed:  failed,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a.out, runs)
			}
			return renderRuns(a.out, runs)
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "only show runs of this phase (sync, build, clean)")
	cmd.Flags().StringVarP(&service, "service", "s", "", "only show runs that touched this service")
	cmd.Flags().BoolVar(&failed, "failed", false, "only show failed runs")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")

	cmd.AddCommand(newHistoryLastCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// lastOutcome is the most recent outcome of a service in one phase.
type lastOutcome struct {
	Phase engine.Phase `json:"phase"`
	*stores.OutcomeRecord
}

func newHistoryLastCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "last SERVICE",
		Short: "Show the most recent sync, build and clean outcome of a service",
		Example: `  # When did api last build, and did it succeed?
  shardctl history last api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}

			var last []lastOutcome
			for _, phase := range []engine.Phase{engine.PhaseSync, engine.PhaseBuild, engine.PhaseClean} {
				o, err := store.LastOutcome(ctx, args[0], phase)
				if errors.Is(err, stores.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				last = append(last, lastOutcome{Phase: phase, OutcomeRecord: o})
			}
			if len(last) == 0 {
				return fmt.Errorf("no recorded outcomes for %s", args[0])
			}

			if jsonOutput {
				return writeJSON(a.out, last)
			}
			return renderLastOutcomes(a.out, last)
		},
	}
	return cmd
}

func newHistoryDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete one recorded run and its outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}
			id, err := store.ResolveRunID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			if err := store.DeleteRun(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted run %s\n", shortID(id))
			return nil
		},
	}
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete recorded runs older than a given age",
		Example: `  # Keep the last 30 days
  shardctl history prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(&err)
			ctx := cmd.Context()

			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}

			n, err := store.PruneRuns(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			a.logger.Info().Int64("runs", n).Dur("older_than", olderThan).Msg("Pruned run history")
			fmt.Fprintf(a.out, "Deleted %d run(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete runs started before now minus this duration")

	return cmd
}
