package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/control/pkg/stores"
)

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs from the journal",
		Long: `History lists recent runs recorded in the run journal, newest first.
Given a run ID it lists that run's actions instead.`,
		Example: `  control history --limit 5
  control history 3f0c6a52-58f4-4d3c-9a55-0d5b0c1c8e21`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.JournalEnabled() {
				return usageError(errors.New("the run journal is disabled"))
			}
			store, err := stores.Open(cmd.Context(), a.cfg.Journal)
			if err != nil {
				return usageError(err)
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				return a.printRun(cmd, store, args[0])
			}
			return a.printRuns(cmd, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func (a *app) printRuns(cmd *cobra.Command, store stores.Journal, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit, 0)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tHOST\tPROVIDER\tSTATUS\tEXIT\tSCRIPT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Host, r.Provider, r.Status, r.ExitCode, r.ScriptPath)
	}
	return tw.Flush()
}

func (a *app) printRun(cmd *cobra.Command, store stores.Journal, id string) error {
	run, err := store.GetRun(cmd.Context(), id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return usageError(err)
		}
		return err
	}
	records, err := store.ListActions(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "run %s on %s (%s): %s, exit %d\n", run.ID, run.Host, run.Provider, run.Status, run.ExitCode)
	if run.Error != nil {
		fmt.Fprintf(a.out, "error: %s\n", *run.Error)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tKIND\tSTATUS\tDURATION")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", rec.Index, rec.Kind, rec.Status, rec.Duration)
	}
	return tw.Flush()
}
