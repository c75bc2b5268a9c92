package providers

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/transports"
)

const aptEnv = "DEBIAN_FRONTEND=noninteractive "

// Debian serves Debian and Ubuntu hosts through apt-get and ufw.
type Debian struct {
	linux
}

var _ Provider = (*Debian)(nil)

// NewDebian returns a Debian-like provider registered as name.
func NewDebian(name string, opts Options) *Debian {
	d := &Debian{}
	d.traits = traits{
		name:       name,
		sshService: "ssh",
		pkg: packageManager{
			update:    aptEnv + "apt-get update",
			install:   aptEnv + "apt-get install -y",
			remove:    aptEnv + "apt-get remove -y",
			lockCheck: "pidof apt apt-get dpkg",
		},
		opts: opts.withDefaults(),
	}
	return d
}

// AddPackageRepo adds a third-party apt repository. Only the manualURL
// method is supported: a signing key is fetched and dearmored into
// /usr/share/keyrings and a sources list is fetched into
// /etc/apt/sources.list.d.
func (d *Debian) AddPackageRepo(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	name, err := a.Params.GetString("name")
	if err != nil {
		return paramError(err)
	}
	if name == "" || strings.ContainsAny(name, "/ ") {
		return invalidParams("invalid repository name %q", name)
	}
	method, err := a.Params.GetStringOr("method", "manualURL")
	if err != nil {
		return paramError(err)
	}
	if !strings.EqualFold(method, "manualURL") {
		return invalidParams("unsupported repository method %q", method)
	}
	keyURL, err := a.Params.GetString("keyURL")
	if err != nil {
		return paramError(err)
	}
	sourcesURL, err := a.Params.GetString("sourcesURL")
	if err != nil {
		return paramError(err)
	}
	update, err := a.Params.GetBoolOr("update", true)
	if err != nil {
		return paramError(err)
	}

	if err := d.waitForPackageLock(ctx, sess); err != nil {
		return err
	}
	if _, err := d.runChecked(ctx, sess, "installing repository prerequisites",
		d.pkg.install+" gnupg ca-certificates curl"); err != nil {
		return err
	}

	keyring := "/usr/share/keyrings/" + name + "-archive-keyring.gpg"
	fetchKey := "curl -fsSL " + transports.ShellQuote(keyURL) +
		" | gpg --dearmor --yes -o " + transports.ShellQuote(keyring)
	if _, err := d.runChecked(ctx, sess, "installing repository key",
		"sh -c "+transports.ShellQuote(fetchKey)); err != nil {
		return err
	}

	// curl gives no dependable signal here, so the result is judged by the
	// size of the file it leaves behind.
	sources := "/etc/apt/sources.list.d/" + name + ".list"
	if _, err := d.run(ctx, sess, "curl -sSL -o "+transports.ShellQuote(sources)+" "+transports.ShellQuote(sourcesURL)); err != nil {
		return err
	}
	info, err := d.statInfo(ctx, sess, sources)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return err
		}
		return failedOther("checking "+sources, err)
	}
	if info.Size == 0 {
		return failedOther("downloaded sources list "+sources+" is empty", nil)
	}
	log.Info().Str("repository", name).Int64("size", info.Size).Msg("Repository added")

	if update {
		return d.updatePackageIndex(ctx, sess)
	}
	return nil
}
