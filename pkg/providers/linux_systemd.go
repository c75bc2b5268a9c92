package providers

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/params"
	"github.com/openfroyo/control/pkg/transports"
)

const systemdUnitDir = "/etc/systemd/system"

// unitConfig is the parameter set of a generated service unit.
type unitConfig struct {
	Name             string
	Description      string
	ExecStart        string
	User             string
	Group            string
	WorkingDirectory string
	Restart          string
	After            string
	WantedBy         string
	Environment      map[string]string
}

func unitConfigFrom(b params.Bag) (unitConfig, error) {
	var (
		u   unitConfig
		err error
	)
	if u.Name, err = b.GetString("name"); err != nil {
		return u, paramError(err)
	}
	u.Name = strings.TrimSuffix(u.Name, ".service")
	if u.Name == "" || strings.ContainsAny(u.Name, "/ ") {
		return u, invalidParams("invalid service name %q", u.Name)
	}
	if u.ExecStart, err = b.GetString("execStart"); err != nil {
		return u, paramError(err)
	}

	optional := []struct {
		key  string
		def  string
		dest *string
	}{
		{"description", u.Name + " service", &u.Description},
		{"user", "", &u.User},
		{"group", "", &u.Group},
		{"workingDirectory", "", &u.WorkingDirectory},
		{"restart", "on-failure", &u.Restart},
		{"after", "network.target", &u.After},
		{"wantedBy", "multi-user.target", &u.WantedBy},
	}
	for _, o := range optional {
		if *o.dest, err = b.GetTextOr(o.key, o.def); err != nil {
			return u, paramError(err)
		}
	}

	if b.Has("environment") {
		env, err := b.GetMap("environment")
		if err != nil {
			return u, paramError(err)
		}
		u.Environment = make(map[string]string, len(env))
		for _, k := range env.Keys() {
			v, err := env.GetText(k)
			if err != nil {
				return u, paramError(err)
			}
			u.Environment[k] = v
		}
	}
	return u, nil
}

// render produces the unit file text. Environment entries are sorted.
func (u unitConfig) render() string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", u.Description)
	if u.After != "" {
		fmt.Fprintf(&b, "After=%s\n", u.After)
	}

	b.WriteString("\n[Service]\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", u.ExecStart)
	if u.User != "" {
		fmt.Fprintf(&b, "User=%s\n", u.User)
	}
	if u.Group != "" {
		fmt.Fprintf(&b, "Group=%s\n", u.Group)
	}
	if u.WorkingDirectory != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", u.WorkingDirectory)
	}
	for _, k := range sortedKeys(u.Environment) {
		fmt.Fprintf(&b, "Environment=%q\n", k+"="+u.Environment[k])
	}
	if u.Restart != "" {
		fmt.Fprintf(&b, "Restart=%s\n", u.Restart)
	}

	b.WriteString("\n[Install]\n")
	fmt.Fprintf(&b, "WantedBy=%s\n", u.WantedBy)
	return b.String()
}

func (u unitConfig) path() string {
	return path.Join(systemdUnitDir, u.Name+".service")
}

// CreateSystemdService writes a unit file, reloads systemd and optionally
// enables and starts the service.
func (l *linux) CreateSystemdService(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	unit, err := unitConfigFrom(a.Params)
	if err != nil {
		return err
	}
	enable, err := a.Params.GetBoolOr("enable", true)
	if err != nil {
		return paramError(err)
	}
	start, err := a.Params.GetBoolOr("start", false)
	if err != nil {
		return paramError(err)
	}

	if err := l.writeText(ctx, sess, unit.path(), 0o644, unit.render()); err != nil {
		return err
	}
	if _, err := l.runChecked(ctx, sess, "reloading systemd", "systemctl daemon-reload"); err != nil {
		return err
	}

	service := transports.ShellQuote(unit.Name)
	if enable {
		if _, err := l.runChecked(ctx, sess, "enabling "+unit.Name, "systemctl enable "+service); err != nil {
			return err
		}
	}
	if start {
		if _, err := l.runChecked(ctx, sess, "starting "+unit.Name, "systemctl start "+service); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
