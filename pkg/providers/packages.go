package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/params"
	"github.com/openfroyo/control/pkg/transports"
)

// packageManager holds the command templates of a distribution's package
// tool. Package names are appended to install and remove.
type packageManager struct {
	update  string
	install string
	remove  string

	// lockCheck prints the pids of running package manager processes.
	// Empty when the distribution needs no lock wait.
	lockCheck string
}

// packageList normalizes the package/packages parameters.
func packageList(b params.Bag) ([]string, error) {
	var (
		raw []string
		err error
	)
	switch {
	case b.Has("packages"):
		raw, err = b.GetStringList("packages")
	case b.Has("package"):
		var one string
		one, err = b.GetString("package")
		raw = []string{one}
	default:
		return nil, invalidParams("either package or packages is required")
	}
	if err != nil {
		return nil, paramError(err)
	}

	pkgs := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			pkgs = append(pkgs, p)
		}
	}
	if len(pkgs) == 0 {
		return nil, invalidParams("package list is empty")
	}
	return pkgs, nil
}

// waitForPackageLock polls until no package manager process is running.
// First-boot images often run one automatically.
func (l *linux) waitForPackageLock(ctx context.Context, sess *transports.RemoteSession) error {
	if l.pkg.lockCheck == "" {
		return nil
	}

	attempts := l.opts.LockPollAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := l.run(ctx, sess, l.pkg.lockCheck)
		if err != nil {
			return err
		}
		if !result.HadOutput() {
			return nil
		}

		log.Info().
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Str("pids", strings.TrimSpace(result.Stdout)).
			Msg("Package manager busy, waiting")

		if attempt == attempts {
			break
		}
		if err := l.opts.Sleep(ctx, l.opts.LockPollInterval); err != nil {
			return failedOther("waiting for package manager", err)
		}
	}
	return failedOther(fmt.Sprintf("package manager still running after %d checks", attempts), nil)
}

func (l *linux) updatePackageIndex(ctx context.Context, sess *transports.RemoteSession) error {
	_, err := l.runChecked(ctx, sess, "updating package index", l.pkg.update)
	return err
}

// InstallPackages installs packages, by default waiting for the package
// manager lock and updating the index first.
func (l *linux) InstallPackages(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	pkgs, err := packageList(a.Params)
	if err != nil {
		return err
	}
	update, err := a.Params.GetBoolOr("update", true)
	if err != nil {
		return paramError(err)
	}
	waitForLock, err := a.Params.GetBoolOr("waitForLock", true)
	if err != nil {
		return paramError(err)
	}

	if waitForLock {
		if err := l.waitForPackageLock(ctx, sess); err != nil {
			return err
		}
	}
	if update {
		if err := l.updatePackageIndex(ctx, sess); err != nil {
			return err
		}
	}

	cmd := l.pkg.install + " " + transports.QuoteAll(pkgs)
	if _, err := l.runChecked(ctx, sess, "installing packages", cmd); err != nil {
		return err
	}
	log.Info().Strs("packages", pkgs).Msg("Packages installed")
	return nil
}

// RemovePackages removes packages. With ignoreFailure a failing remove is
// logged and the action succeeds.
func (l *linux) RemovePackages(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	pkgs, err := packageList(a.Params)
	if err != nil {
		return err
	}
	waitForLock, err := a.Params.GetBoolOr("waitForLock", true)
	if err != nil {
		return paramError(err)
	}
	ignoreFailure, err := a.Params.GetBoolOr("ignoreFailure", false)
	if err != nil {
		return paramError(err)
	}

	if waitForLock {
		if err := l.waitForPackageLock(ctx, sess); err != nil {
			return err
		}
	}

	cmd := l.pkg.remove + " " + transports.QuoteAll(pkgs)
	result, err := l.run(ctx, sess, cmd)
	if err != nil {
		return err
	}
	if result.ExitedWithError() {
		if ignoreFailure {
			log.Warn().Strs("packages", pkgs).Int("exit_code", result.ExitCode).Msg("Package removal failed, ignoring")
			return nil
		}
		return failedCommand("removing packages", cmd, result)
	}
	return nil
}
