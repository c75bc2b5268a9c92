package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/engine"
)

type adHocOptions struct {
	host     string
	command  string
	user     string
	port     int
	key      string
	provider string
	sudo     bool
	retry    bool
}

func newCommandCommand(a *app) *cobra.Command {
	opts := adHocOptions{port: actions.DefaultPort, provider: "debian"}

	cmd := &cobra.Command{
		Use:   "command <host> <command>",
		Short: "Run one command on a host",
		Long: `Command connects to a host and runs a single command. The password is
prompted for unless --key is given. Stdout and stderr are printed and the
process exits with the remote exit code.`,
		Example: `  control command --user admin web-01 'uptime'
  control command --key ~/.ssh/id_ed25519 --sudo web-01 'systemctl status nginx'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.host = args[0]
			opts.command = args[1]
			return a.runAdHoc(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", os.Getenv("USER"), "login user")
	cmd.Flags().IntVarP(&opts.port, "port", "p", opts.port, "SSH port")
	cmd.Flags().StringVar(&opts.key, "key", "", "private key path (default: prompt for a password)")
	cmd.Flags().StringVar(&opts.provider, "provider", opts.provider, "provider used for command post-processing")
	cmd.Flags().BoolVar(&opts.sudo, "sudo", false, "run the command with sudo")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "retry failed connections")

	return cmd
}

func (a *app) runAdHoc(ctx context.Context, opts adHocOptions) error {
	if opts.provider == "" {
		opts.provider = "debian"
	}
	script := &actions.Script{
		Provider:  opts.provider,
		Transport: actions.TransportSSH,
		Host:      opts.host,
		Port:      opts.port,
		Sudo:      opts.sudo,
		Auth: actions.Auth{
			Type:     actions.AuthUserPass,
			Username: opts.user,
			Password: actions.PromptSentinel,
		},
	}
	if opts.key != "" {
		script.Auth.Type = actions.AuthPublicKey
		script.Auth.Password = ""
		script.Auth.PrivateKeyPath = opts.key
	}
	if err := script.Validate(); err != nil {
		return usageError(err)
	}

	m := engine.NewManager(engine.Options{
		Dialer:      a.dial(),
		Credentials: a.resolver(),
		Retry:       a.cfg.RetryPolicy(opts.retry),
	})

	result, err := m.Exec(ctx, script, opts.command)
	if err != nil {
		return &exitError{code: engine.ExitCode(err), err: err}
	}

	fmt.Fprint(a.out, result.Stdout)
	if result.Stderr != "" {
		fmt.Fprint(a.errOut, result.Stderr)
	}
	if result.ExitCodeAvailable && result.ExitCode != 0 {
		return &exitError{code: result.ExitCode}
	}
	if !result.ExitCodeAvailable && result.HadStderr() {
		return &exitError{code: engine.ExitActionFailed}
	}
	return nil
}
