package providers

import (
	"context"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/transports"
)

// Unimplemented answers every action with NotImplemented. Providers embed it
// and override what they support.
type Unimplemented struct{}

func (Unimplemented) GenericCommand(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindGenericCommand)
}

func (Unimplemented) AddUser(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindAddUser)
}

func (Unimplemented) AddGroup(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindAddGroup)
}

func (Unimplemented) CreateDirectory(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindCreateDirectory)
}

func (Unimplemented) RemoveDirectory(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindRemoveDirectory)
}

func (Unimplemented) RemoveFile(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindRemoveFile)
}

func (Unimplemented) CopyPath(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindCopyPath)
}

func (Unimplemented) CreateSymlink(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindCreateSymlink)
}

func (Unimplemented) CreateFile(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindCreateFile)
}

func (Unimplemented) EditFile(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindEditFile)
}

func (Unimplemented) DownloadFile(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindDownloadFile)
}

func (Unimplemented) TransmitFile(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindTransmitFile)
}

func (Unimplemented) ReceiveFile(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindReceiveFile)
}

func (Unimplemented) InstallPackages(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindInstallPackages)
}

func (Unimplemented) RemovePackages(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindRemovePackages)
}

func (Unimplemented) AddPackageRepo(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindAddPackageRepo)
}

func (Unimplemented) SystemCtl(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindSystemCtl)
}

func (Unimplemented) Firewall(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindFirewall)
}

func (Unimplemented) SetTimeZone(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindSetTimeZone)
}

func (Unimplemented) SetHostname(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindSetHostname)
}

func (Unimplemented) DisableSwap(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindDisableSwap)
}

func (Unimplemented) CreateSystemdService(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindCreateSystemdService)
}

func (Unimplemented) ConfigureSSH(context.Context, *transports.RemoteSession, actions.Action) error {
	return notImplemented(actions.KindConfigureSSH)
}
