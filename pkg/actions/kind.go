// Package actions defines the declarative action model: the closed set of
// action kinds, the Action and Script types, and the YAML document loader.
package actions

import "github.com/openfroyo/control/pkg/params"

// Kind identifies an action. The zero value is KindNotSet.
type Kind int

const (
	// KindNotSet marks an action that was never assigned a kind.
	KindNotSet Kind = iota
	// KindUnrecognised marks an action name the loader did not know.
	KindUnrecognised

	KindGenericCommand
	KindAddUser
	KindCreateDirectory
	KindRemoveDirectory
	KindInstallPackages
	KindRemovePackages
	KindSystemCtl
	KindFirewall
	KindEditFile
	KindCopyPath
	KindRemoveFile
	KindDownloadFile
	KindTransmitFile
	KindReceiveFile
	KindCreateSymlink
	KindSetTimeZone
	KindDisableSwap
	KindCreateFile
	KindAddGroup
	KindSetHostname
	KindCreateSystemdService
	KindConfigureSSH
	KindAddPackageRepo
)

var kindNames = map[Kind]string{
	KindGenericCommand:       "genericCommand",
	KindAddUser:              "addUser",
	KindCreateDirectory:      "createDirectory",
	KindRemoveDirectory:      "removeDirectory",
	KindInstallPackages:      "installPackages",
	KindRemovePackages:       "removePackages",
	KindSystemCtl:            "systemCtl",
	KindFirewall:             "firewall",
	KindEditFile:             "editFile",
	KindCopyPath:             "copyPath",
	KindRemoveFile:           "removeFile",
	KindDownloadFile:         "downloadFile",
	KindTransmitFile:         "transmitFile",
	KindReceiveFile:          "receiveFile",
	KindCreateSymlink:        "createSymlink",
	KindSetTimeZone:          "setTimeZone",
	KindDisableSwap:          "disableSwap",
	KindCreateFile:           "createFile",
	KindAddGroup:             "addGroup",
	KindSetHostname:          "setHostname",
	KindCreateSystemdService: "createSystemdService",
	KindConfigureSSH:         "configureSSH",
	KindAddPackageRepo:       "addPackageRepo",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// ParseKind maps a document action name to its Kind. Unknown names return
// KindUnrecognised and false.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	if !ok {
		return KindUnrecognised, false
	}
	return k, true
}

// String returns the document name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotSet:
		return "notSet"
	case KindUnrecognised:
		return "unrecognised"
	}
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Executable reports whether k names a real action.
func (k Kind) Executable() bool {
	_, ok := kindNames[k]
	return ok
}

// Kinds returns every executable kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindGenericCommand; k <= KindAddPackageRepo; k++ {
		out = append(out, k)
	}
	return out
}

// Action is one configuration step: a kind plus its parameters.
type Action struct {
	Kind   Kind
	Params params.Bag
}

// New returns an Action with an empty parameter bag when p is nil.
func New(kind Kind, p params.Bag) Action {
	if p == nil {
		p = params.Bag{}
	}
	return Action{Kind: kind, Params: p}
}
