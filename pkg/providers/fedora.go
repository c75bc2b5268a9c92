package providers

// Fedora serves Fedora-like hosts through dnf. ufw on these systems must be
// enabled before rules are accepted.
type Fedora struct {
	linux
}

var _ Provider = (*Fedora)(nil)

// NewFedora returns a Fedora-like provider registered as name.
func NewFedora(name string, opts Options) *Fedora {
	f := &Fedora{}
	f.traits = traits{
		name:                name,
		sshService:          "sshd",
		firewallEnableFirst: true,
		pkg: packageManager{
			update:  "dnf makecache",
			install: "dnf install -y",
			remove:  "dnf remove -y",
		},
		opts: opts.withDefaults(),
	}
	return f
}
