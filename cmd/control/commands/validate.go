package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/providers"
)

func newValidateCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate <script>",
		Short: "Check a script without connecting",
		Long: `Validate loads a script and checks that every action is known, the
provider exists and the system validation constraint parses. With --watch
the script is checked again every time it changes.`,
		Example: `  control validate web.yaml
  control validate --watch web.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			err := a.validateScript(path)
			if !watch {
				return usageError(err)
			}

			w, werr := newFileWatcher(path)
			if werr != nil {
				return usageError(werr)
			}
			log.Info().Str("path", path).Msg("Watching script for changes")
			return w.run(cmd.Context(), 300*time.Millisecond, func() {
				_ = a.validateScript(path)
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate whenever the script changes")

	return cmd
}

func (a *app) validateScript(path string) error {
	script, err := actions.LoadFile(path)
	if err == nil {
		_, err = providers.New(script.Provider, providers.Options{})
	}
	if err != nil {
		fmt.Fprintf(a.out, "%s: invalid: %v\n", path, err)
		return err
	}

	constraint := "none"
	if script.Validation != nil && script.Validation.NeedsChecking() {
		constraint = script.Validation.String()
	}
	fmt.Fprintf(a.out, "%s: ok: %d actions for %s via %s (%s), validation %s\n",
		path, len(script.Actions), script.Address(), script.Provider, script.Transport, constraint)
	return nil
}

// fileWatcher reports changes to one file. It watches the parent directory
// so editors that replace the file on save are still seen.
type fileWatcher struct {
	path    string
	watcher *fsnotify.Watcher
}

func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &fileWatcher{path: abs, watcher: watcher}, nil
}

// run calls onChange once per burst of writes, after debounce of quiet,
// until ctx is done.
func (w *fileWatcher) run(ctx context.Context, debounce time.Duration, onChange func()) error {
	defer func() { _ = w.watcher.Close() }()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Script changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			pending = timer.C

		case <-pending:
			pending = nil
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
