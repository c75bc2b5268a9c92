package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfroyo/control/pkg/config"
	"github.com/openfroyo/control/pkg/engine"
	"github.com/openfroyo/control/pkg/telemetry"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	cfg        *config.Config
	configFile string
	version    string

	out    io.Writer
	errOut io.Writer

	// credentials overrides the terminal prompter, for tests.
	credentials engine.CredentialResolver
	// dialer overrides the SSH dialer, for tests.
	dialer engine.Dialer
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, version, commit, buildDate string) int {
	a := newApp(version)
	root := newRootCommand(a, fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate))
	root.SetArgs(normalizeArgs(args))
	return a.exitCode(root.ExecuteContext(ctx))
}

// normalizeArgs accepts the single-dash "-retry" spelling, which pflag would
// otherwise read as a cluster of shorthands. Arguments after "--" are left
// alone.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i, arg := range out {
		if arg == "--" {
			break
		}
		if arg == "-retry" || strings.HasPrefix(arg, "-retry=") {
			out[i] = "-" + arg
		}
	}
	return out
}

func newApp(version string) *app {
	return &app{
		v:       viper.New(),
		version: version,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
}

func (a *app) exitCode(err error) int {
	if err == nil {
		return engine.ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			log.Error().Err(ee.err).Msg("Command failed")
		}
		return ee.code
	}
	log.Error().Err(err).Msg("Command failed")
	return engine.ExitCode(err)
}

func newRootCommand(a *app, version string) *cobra.Command {
	var (
		retry     bool
		adHoc     bool
		adHocUser string
	)

	rootCmd := &cobra.Command{
		Use:   "control [-r|--retry] <script>",
		Short: "Control - remote host configuration over SSH",
		Long: `Control connects to a host over SSH and runs a declarative script of
configuration actions against it: packages, users and groups, files,
firewall rules, services and sshd settings.

Actions run in order and the run stops at the first failure.

Exit codes:
  0  success
  1  an action failed
  2  invalid script, configuration or usage
  3  connection or authentication failure
  4  system validation failed`,
		Version:       version,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if adHoc {
				if len(args) != 2 {
					return usageError(errors.New("--command needs <host> <command>"))
				}
				return a.runAdHoc(cmd.Context(), adHocOptions{host: args[0], command: args[1], user: adHocUser, port: 22})
			}
			if len(args) != 1 {
				_ = cmd.Help()
				return &exitError{code: engine.ExitUsage}
			}
			return a.runScript(cmd.Context(), args[0], runOptions{retry: retry})
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file path (default ~/.config/control/config.yaml)")
	if err := config.RegisterFlags(a.v, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	rootCmd.Flags().BoolVarP(&retry, "retry", "r", false, "retry failed connections (-retry is also accepted)")
	rootCmd.Flags().BoolVar(&adHoc, "command", false, "run one command: control --command <host> <command>")
	rootCmd.Flags().StringVar(&adHocUser, "user", os.Getenv("USER"), "login user for --command")

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newCommandCommand(a))
	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))
	rootCmd.AddCommand(newVersionCommand(a))

	return rootCmd
}

// setup loads configuration and installs the global logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return usageError(err)
	}
	a.cfg = cfg

	if err := telemetry.Setup(telemetry.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	}); err != nil {
		return usageError(err)
	}
	return nil
}

func usageError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: engine.ExitUsage, err: err}
}

func (a *app) resolver() engine.CredentialResolver {
	if a.credentials != nil {
		return a.credentials
	}
	return engine.NewTerminalPrompter()
}

func (a *app) dial() engine.Dialer {
	if a.dialer != nil {
		return a.dialer
	}
	return engine.NewDialer(a.cfg.SSHSettings())
}
