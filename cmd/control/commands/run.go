package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/engine"
	"github.com/openfroyo/control/pkg/stores"
	"github.com/openfroyo/control/pkg/telemetry"
	"github.com/openfroyo/control/pkg/transports"
)

type runOptions struct {
	retry  bool
	dryRun bool
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run an action script against its host",
		Long: `Run loads a script, connects to its host, checks the optional system
validation constraint and runs every action in order, stopping at the
first failure.`,
		Example: `  # Run a script
  control run web.yaml

  # Retry the connection while the host boots
  control run --retry web.yaml

  # Print the commands without connecting
  control run --dry-run web.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScript(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.retry, "retry", "r", false, "retry failed connections")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "record commands instead of connecting")

	return cmd
}

func (a *app) runScript(ctx context.Context, path string, opts runOptions) error {
	script, err := actions.LoadFile(path)
	if err != nil {
		return usageError(err)
	}

	tel, err := telemetry.New(a.cfg.Telemetry(a.version))
	if err != nil {
		return usageError(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	mopts := engine.Options{
		Dialer:      a.dial(),
		Credentials: a.resolver(),
		Retry:       a.cfg.RetryPolicy(opts.retry),
		Telemetry:   tel,
		DryRun:      opts.dryRun,
	}

	if store := a.openJournal(ctx); store != nil {
		defer func() { _ = store.Close() }()
		mopts.Journal = store
	}

	report, err := engine.NewManager(mopts).Run(ctx, script)
	a.printReport(report)
	if err != nil {
		return &exitError{code: engine.ExitCode(err), err: err}
	}
	return nil
}

// openJournal opens the configured journal. A journal that cannot be
// opened is logged and skipped; it never blocks a run.
func (a *app) openJournal(ctx context.Context) *stores.SQLiteStore {
	if !a.cfg.JournalEnabled() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.Journal), 0o755); err != nil {
		log.Warn().Err(err).Str("path", a.cfg.Journal).Msg("Journal disabled")
		return nil
	}
	store, err := stores.Open(ctx, a.cfg.Journal)
	if err != nil {
		log.Warn().Err(err).Str("path", a.cfg.Journal).Msg("Journal disabled")
		return nil
	}
	return store
}

func (a *app) printReport(r *engine.Report) {
	if r == nil {
		return
	}
	if r.DryRun {
		for _, c := range r.Commands {
			fmt.Fprintln(a.out, c)
		}
		for _, w := range r.Writes {
			fmt.Fprintf(a.out, "write %s (mode %s, %d bytes)\n", w.Path, transports.FormatMode(w.Mode), len(w.Contents))
		}
	}

	status := "succeeded"
	if !r.Succeeded() {
		status = "failed"
	}
	fmt.Fprintf(a.out, "run %s %s: %d/%d actions completed on %s (%s) in %s\n",
		r.RunID, status, r.Completed(), r.Total, r.Host, r.Provider, r.Duration.Round(time.Millisecond))
}
