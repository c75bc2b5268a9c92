package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/fileedit"
	"github.com/openfroyo/control/pkg/transports"
)

// linux adds user, service, firewall and system settings management shared
// by Linux distributions.
type linux struct {
	posix
}

// DistroDetails asks lsb_release, falling back to /etc/os-release on hosts
// without it.
func (l *linux) DistroDetails(ctx context.Context, sess *transports.RemoteSession) (string, string, error) {
	result, err := l.run(ctx, sess, "lsb_release -a")
	if err != nil {
		return "", "", err
	}
	if !result.ExitedWithError() {
		if id, release := fileedit.ParseLSBRelease(result.Stdout); id != "" {
			return id, release, nil
		}
	}

	log.Debug().Msg("lsb_release unavailable, reading /etc/os-release")
	result, err = l.runChecked(ctx, sess, "reading /etc/os-release", "cat /etc/os-release")
	if err != nil {
		return "", "", err
	}
	id, release := fileedit.ParseOSRelease(result.Stdout)
	if id == "" {
		return "", "", failedOther("could not determine distribution", nil)
	}
	return id, release, nil
}

// AddUser creates a user with useradd when missing, then sets the password
// and supplementary groups.
func (l *linux) AddUser(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	username, err := a.Params.GetString("username")
	if err != nil {
		return paramError(err)
	}
	password, err := a.Params.GetStringOr("password", "")
	if err != nil {
		return paramError(err)
	}
	shell, err := a.Params.GetStringOr("shell", "")
	if err != nil {
		return paramError(err)
	}
	createHome, err := a.Params.GetBoolOr("createHome", true)
	if err != nil {
		return paramError(err)
	}
	system, err := a.Params.GetBoolOr("system", false)
	if err != nil {
		return paramError(err)
	}
	var groups []string
	if a.Params.Has("groups") {
		if groups, err = a.Params.GetStringList("groups"); err != nil {
			return paramError(err)
		}
	}

	exists, err := l.exists(ctx, sess, "id -u "+transports.ShellQuote(username))
	if err != nil {
		return err
	}
	if exists {
		log.Info().Str("user", username).Msg("User already exists")
	} else {
		args := []string{"useradd"}
		if createHome {
			args = append(args, "-m")
		} else {
			args = append(args, "-M")
		}
		if system {
			args = append(args, "-r")
		}
		if shell != "" {
			args = append(args, "-s", shell)
		}
		args = append(args, username)
		if _, err := l.runChecked(ctx, sess, "adding user "+username, transports.QuoteAll(args)); err != nil {
			return err
		}
	}

	if password != "" {
		inner := "echo " + transports.ShellQuote(username+":"+password) + " | chpasswd"
		cmd := "sh -c " + transports.ShellQuote(inner)
		logged := "sh -c 'echo " + username + ":<redacted> | chpasswd'"
		result, err := l.runLogged(ctx, sess, cmd, logged)
		if err != nil {
			return err
		}
		if result.Failed() {
			return failedCommand("setting password for "+username, logged, result)
		}
	}

	if len(groups) > 0 {
		cmd := "usermod -aG " + transports.ShellQuote(strings.Join(groups, ",")) + " " + transports.ShellQuote(username)
		if _, err := l.runChecked(ctx, sess, "adding "+username+" to groups", cmd); err != nil {
			return err
		}
	}
	return nil
}

// AddGroup runs groupadd unless the group already exists.
func (l *linux) AddGroup(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	name, err := a.Params.GetString("name")
	if err != nil {
		return paramError(err)
	}
	gid, err := a.Params.GetTextOr("gid", "")
	if err != nil {
		return paramError(err)
	}
	system, err := a.Params.GetBoolOr("system", false)
	if err != nil {
		return paramError(err)
	}

	exists, err := l.exists(ctx, sess, "getent group "+transports.ShellQuote(name))
	if err != nil {
		return err
	}
	if exists {
		log.Info().Str("group", name).Msg("Group already exists")
		return nil
	}

	args := []string{"groupadd"}
	if system {
		args = append(args, "-r")
	}
	if gid != "" {
		args = append(args, "-g", gid)
	}
	args = append(args, name)
	_, err = l.runChecked(ctx, sess, "adding group "+name, transports.QuoteAll(args))
	return err
}

// exists runs a lookup command and reports whether it found something.
func (l *linux) exists(ctx context.Context, sess *transports.RemoteSession, cmd string) (bool, error) {
	result, err := l.run(ctx, sess, cmd)
	if err != nil {
		return false, err
	}
	if result.ExitCodeAvailable {
		return result.ExitCode == 0, nil
	}
	return result.HadOutput() && !result.HadStderr(), nil
}

var systemctlActions = map[string]bool{
	"start":         true,
	"stop":          true,
	"restart":       true,
	"reload":        true,
	"enable":        true,
	"disable":       true,
	"daemon-reload": true,
	"mask":          true,
	"unmask":        true,
}

// SystemCtl runs systemctl <action> <service>.
func (l *linux) SystemCtl(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	action, err := a.Params.GetString("action")
	if err != nil {
		return paramError(err)
	}
	action = strings.ToLower(action)
	if !systemctlActions[action] {
		return invalidParams("unsupported systemctl action %q", action)
	}

	if action == "daemon-reload" {
		_, err := l.runChecked(ctx, sess, "reloading systemd", "systemctl daemon-reload")
		return err
	}

	service, err := a.Params.GetString("service")
	if err != nil {
		return paramError(err)
	}
	cmd := fmt.Sprintf("systemctl %s %s", action, transports.ShellQuote(service))
	_, err = l.runChecked(ctx, sess, action+" "+service, cmd)
	return err
}

// Firewall drives ufw. Distributions that need ufw enabled before rules are
// accepted enable it first; others enable it once rules are in place.
func (l *linux) Firewall(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	var (
		enabled    bool
		hasEnabled = a.Params.Has("enabled")
		rules      []string
		err        error
	)
	if hasEnabled {
		if enabled, err = a.Params.GetBool("enabled"); err != nil {
			return paramError(err)
		}
	}
	if a.Params.Has("rules") {
		if rules, err = a.Params.GetStringList("rules"); err != nil {
			return paramError(err)
		}
	}
	reset, err := a.Params.GetBoolOr("reset", false)
	if err != nil {
		return paramError(err)
	}
	if !hasEnabled && len(rules) == 0 && !reset {
		return invalidParams("firewall needs enabled, rules or reset")
	}

	if reset {
		if _, err := l.runChecked(ctx, sess, "resetting firewall", "ufw --force reset"); err != nil {
			return err
		}
	}

	enable := func() error {
		_, err := l.runChecked(ctx, sess, "enabling firewall", "ufw --force enable")
		return err
	}

	if hasEnabled && enabled && l.firewallEnableFirst {
		if err := enable(); err != nil {
			return err
		}
	}

	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if _, err := l.runChecked(ctx, sess, "applying firewall rule", "ufw "+rule); err != nil {
			return err
		}
	}

	switch {
	case hasEnabled && enabled && !l.firewallEnableFirst:
		return enable()
	case hasEnabled && !enabled:
		_, err := l.runChecked(ctx, sess, "disabling firewall", "ufw disable")
		return err
	}
	return nil
}

// SetTimeZone runs timedatectl set-timezone.
func (l *linux) SetTimeZone(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	tz, err := a.Params.GetString("timezone")
	if err != nil {
		return paramError(err)
	}
	_, err = l.runChecked(ctx, sess, "setting time zone", "timedatectl set-timezone "+transports.ShellQuote(tz))
	return err
}

// SetHostname runs hostnamectl set-hostname.
func (l *linux) SetHostname(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	name, err := a.Params.GetString("hostname")
	if err != nil {
		return paramError(err)
	}
	_, err = l.runChecked(ctx, sess, "setting hostname", "hostnamectl set-hostname "+transports.ShellQuote(name))
	return err
}
