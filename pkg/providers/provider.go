// Package providers turns abstract actions into concrete remote commands.
//
// Each OS family is a Provider with one method per action kind. Behaviour
// shared by POSIX systems and by Linux systems lives in two layers that the
// Debian-like and Fedora-like providers build on by embedding; distribution
// differences are expressed as traits rather than overridden methods.
package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/transports"
)

// Provider is the capability set of one OS family.
type Provider interface {
	// Name returns the provider's registry name.
	Name() string

	// PostProcessCommand applies session-wide prefixes (sudo, history
	// hiding) to cmd. Every command a provider issues passes through it.
	PostProcessCommand(sess *transports.RemoteSession, cmd string) string

	// DistroDetails returns the distribution id and release of the host.
	DistroDetails(ctx context.Context, sess *transports.RemoteSession) (id, release string, err error)

	GenericCommand(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	AddUser(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	AddGroup(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	CreateDirectory(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	RemoveDirectory(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	RemoveFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	CopyPath(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	CreateSymlink(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	CreateFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	EditFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	DownloadFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	TransmitFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	ReceiveFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	InstallPackages(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	RemovePackages(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	AddPackageRepo(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	SystemCtl(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	Firewall(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	SetTimeZone(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	SetHostname(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	DisableSwap(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	CreateSystemdService(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
	ConfigureSSH(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error
}

// Dispatch calls the provider method matching a's kind.
func Dispatch(ctx context.Context, p Provider, sess *transports.RemoteSession, a actions.Action) error {
	switch a.Kind {
	case actions.KindGenericCommand:
		return p.GenericCommand(ctx, sess, a)
	case actions.KindAddUser:
		return p.AddUser(ctx, sess, a)
	case actions.KindAddGroup:
		return p.AddGroup(ctx, sess, a)
	case actions.KindCreateDirectory:
		return p.CreateDirectory(ctx, sess, a)
	case actions.KindRemoveDirectory:
		return p.RemoveDirectory(ctx, sess, a)
	case actions.KindRemoveFile:
		return p.RemoveFile(ctx, sess, a)
	case actions.KindCopyPath:
		return p.CopyPath(ctx, sess, a)
	case actions.KindCreateSymlink:
		return p.CreateSymlink(ctx, sess, a)
	case actions.KindCreateFile:
		return p.CreateFile(ctx, sess, a)
	case actions.KindEditFile:
		return p.EditFile(ctx, sess, a)
	case actions.KindDownloadFile:
		return p.DownloadFile(ctx, sess, a)
	case actions.KindTransmitFile:
		return p.TransmitFile(ctx, sess, a)
	case actions.KindReceiveFile:
		return p.ReceiveFile(ctx, sess, a)
	case actions.KindInstallPackages:
		return p.InstallPackages(ctx, sess, a)
	case actions.KindRemovePackages:
		return p.RemovePackages(ctx, sess, a)
	case actions.KindAddPackageRepo:
		return p.AddPackageRepo(ctx, sess, a)
	case actions.KindSystemCtl:
		return p.SystemCtl(ctx, sess, a)
	case actions.KindFirewall:
		return p.Firewall(ctx, sess, a)
	case actions.KindSetTimeZone:
		return p.SetTimeZone(ctx, sess, a)
	case actions.KindSetHostname:
		return p.SetHostname(ctx, sess, a)
	case actions.KindDisableSwap:
		return p.DisableSwap(ctx, sess, a)
	case actions.KindCreateSystemdService:
		return p.CreateSystemdService(ctx, sess, a)
	case actions.KindConfigureSSH:
		return p.ConfigureSSH(ctx, sess, a)
	}
	return invalidParams("action kind %s cannot be executed", a.Kind)
}

// Options tunes provider behaviour that depends on timing.
type Options struct {
	// LockPollAttempts is how often a Debian-like provider checks for a
	// running package manager before giving up.
	LockPollAttempts int

	// LockPollInterval is the wait between lock checks.
	LockPollInterval time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the production settings: 20 lock checks, 20
// seconds apart.
func DefaultOptions() Options {
	return Options{
		LockPollAttempts: 20,
		LockPollInterval: 20 * time.Second,
		Sleep:            sleepContext,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LockPollAttempts <= 0 {
		o.LockPollAttempts = d.LockPollAttempts
	}
	if o.LockPollInterval < 0 {
		o.LockPollInterval = d.LockPollInterval
	}
	if o.Sleep == nil {
		o.Sleep = d.Sleep
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var registry = map[string]func(Options) Provider{
	"debian": func(o Options) Provider { return NewDebian("debian", o) },
	"ubuntu": func(o Options) Provider { return NewDebian("ubuntu", o) },
	"fedora": func(o Options) Provider { return NewFedora("fedora", o) },
}

// New returns the provider registered under name (case-insensitive).
func New(name string, opts Options) (Provider, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(opts.withDefaults()), nil
}

// Names returns the registered provider names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
