package providers

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/fileedit"
	"github.com/openfroyo/control/pkg/transports"
)

// traits are the per-distribution switches the shared layers consult.
type traits struct {
	name string

	// sshService is the unit restarted after sshd_config changes.
	sshService string

	// firewallEnableFirst enables ufw before rules are applied.
	firewallEnableFirst bool

	pkg  packageManager
	opts Options
}

// posix holds behaviour common to every POSIX-like target: filesystem
// commands, passthrough commands, file transfer and sshd configuration.
type posix struct {
	Unimplemented
	traits
}

// Name returns the registry name of the provider.
func (p *posix) Name() string {
	return p.name
}

// PostProcessCommand prefixes sudo when the session elevates and a leading
// space when it hides shell history.
func (p *posix) PostProcessCommand(sess *transports.RemoteSession, cmd string) string {
	if sess.Elevate {
		cmd = "sudo " + cmd
	}
	if sess.HideHistory {
		cmd = " " + cmd
	}
	return cmd
}

// run post-processes and issues cmd, returning the raw result. Only
// transport failures become errors.
func (p *posix) run(ctx context.Context, sess *transports.RemoteSession, cmd string) (*transports.CommandResult, error) {
	return p.runLogged(ctx, sess, cmd, cmd)
}

// runLogged is run with a separate string for logs, used when cmd carries
// secrets.
func (p *posix) runLogged(ctx context.Context, sess *transports.RemoteSession, cmd, logged string) (*transports.CommandResult, error) {
	full := p.PostProcessCommand(sess, cmd)
	start := time.Now()

	result, err := sess.Transport.Run(ctx, full)
	if err != nil {
		log.Debug().
			Str("command", logged).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Remote command failed to run")
		return nil, fromTransport("running command "+strconv.Quote(logged), err)
	}

	log.Debug().
		Str("command", logged).
		Int("exit_code", result.ExitCode).
		Int("stdout_len", len(result.Stdout)).
		Int("stderr_len", len(result.Stderr)).
		Dur("duration", result.Duration).
		Msg("Remote command finished")
	return result, nil
}

// runChecked runs cmd and turns a failure signal into FailedCommand.
func (p *posix) runChecked(ctx context.Context, sess *transports.RemoteSession, detail, cmd string) (*transports.CommandResult, error) {
	result, err := p.run(ctx, sess, cmd)
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		return result, failedCommand(detail, cmd, result)
	}
	return result, nil
}

// readText fetches a remote text file. Elevated sessions read through cat
// so that root-only files are reachable.
func (p *posix) readText(ctx context.Context, sess *transports.RemoteSession, filePath string) (string, error) {
	if sess.Elevate {
		result, err := p.runChecked(ctx, sess, "reading "+filePath, "cat "+transports.ShellQuote(filePath))
		if err != nil {
			return "", err
		}
		return result.Stdout, nil
	}

	contents, err := sess.Transport.ReadTextFile(ctx, filePath)
	if err != nil {
		return "", fromTransport("reading "+filePath, err)
	}
	return contents, nil
}

// writeText pushes a text file with mode. File transfer runs as the login
// user, so elevated sessions stage the file in /tmp and move it into place.
func (p *posix) writeText(ctx context.Context, sess *transports.RemoteSession, filePath string, mode uint32, contents string) error {
	if !sess.Elevate {
		if err := sess.Transport.WriteTextFile(ctx, filePath, mode, contents); err != nil {
			return fromTransport("writing "+filePath, err)
		}
		return nil
	}

	staging := stagingPath()
	if err := sess.Transport.WriteTextFile(ctx, staging, mode, contents); err != nil {
		return fromTransport("staging "+filePath, err)
	}
	return p.moveIntoPlace(ctx, sess, staging, filePath, mode)
}

func (p *posix) moveIntoPlace(ctx context.Context, sess *transports.RemoteSession, staging, filePath string, mode uint32) error {
	target := transports.ShellQuote(filePath)
	if _, err := p.runChecked(ctx, sess, "moving "+filePath+" into place",
		"mv "+transports.ShellQuote(staging)+" "+target); err != nil {
		return err
	}
	_, err := p.runChecked(ctx, sess, "setting mode of "+filePath,
		"chmod "+transports.FormatMode(mode)+" "+target)
	return err
}

func stagingPath() string {
	return "/tmp/control-" + uuid.NewString()
}

// statInfo runs stat on filePath and parses its human-readable output.
func (p *posix) statInfo(ctx context.Context, sess *transports.RemoteSession, filePath string) (fileedit.StatInfo, error) {
	result, err := p.runChecked(ctx, sess, "inspecting "+filePath, "stat "+transports.ShellQuote(filePath))
	if err != nil {
		return fileedit.StatInfo{}, err
	}
	return fileedit.ParseStat(result.Stdout)
}

// statMode recovers the permission bits of filePath, falling back to 0644
// when stat output cannot be parsed.
func (p *posix) statMode(ctx context.Context, sess *transports.RemoteSession, filePath string) (uint32, error) {
	info, err := p.statInfo(ctx, sess, filePath)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return 0, err
		}
		log.Warn().Str("path", filePath).Err(err).Msg("Could not read file mode, using default")
		return fileedit.DefaultMode, nil
	}
	return info.Mode(), nil
}

// applyAttributes runs chmod, chown and chgrp as requested.
func (p *posix) applyAttributes(ctx context.Context, sess *transports.RemoteSession, target, permissions, owner, group string, recursive bool) error {
	flag := ""
	if recursive {
		flag = "-R "
	}
	quoted := transports.ShellQuote(target)

	if permissions != "" {
		mode, err := parseMode(permissions)
		if err != nil {
			return err
		}
		if _, err := p.runChecked(ctx, sess, "setting permissions on "+target,
			"chmod "+flag+transports.FormatMode(mode)+" "+quoted); err != nil {
			return err
		}
	}
	if owner != "" {
		if _, err := p.runChecked(ctx, sess, "setting owner of "+target,
			"chown "+flag+transports.ShellQuote(owner)+" "+quoted); err != nil {
			return err
		}
	}
	if group != "" {
		if _, err := p.runChecked(ctx, sess, "setting group of "+target,
			"chgrp "+flag+transports.ShellQuote(group)+" "+quoted); err != nil {
			return err
		}
	}
	return nil
}

// parseMode reads an octal permission string such as "644", "0755" or
// "0o755".
func parseMode(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	digits := s
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'o' || digits[1] == 'O') {
		digits = digits[2:]
	}
	mode, err := strconv.ParseUint(digits, 8, 32)
	if err != nil || mode > 0o7777 {
		return 0, invalidParams("invalid permissions %q", s)
	}
	return uint32(mode), nil
}

// extractCommand picks unzip or tar from the archive name.
func extractCommand(archive, dir string) (string, error) {
	lower := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return fmt.Sprintf("unzip -o %s -d %s", transports.ShellQuote(archive), transports.ShellQuote(dir)), nil
	case strings.HasSuffix(lower, ".tar"),
		strings.HasSuffix(lower, ".tar.gz"),
		strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.bz2"),
		strings.HasSuffix(lower, ".tar.xz"):
		return fmt.Sprintf("tar -xf %s -C %s", transports.ShellQuote(archive), transports.ShellQuote(dir)), nil
	}
	return "", invalidParams("cannot extract %s: unknown archive type", path.Base(archive))
}
