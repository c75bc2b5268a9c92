package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/params"
	"github.com/openfroyo/control/pkg/transports"
	"github.com/openfroyo/control/pkg/transports/debug"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newTestProvider(t *testing.T, name string) (Provider, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	p, err := New(name, Options{LockPollAttempts: 3, LockPollInterval: time.Second, Sleep: rec.sleep})
	require.NoError(t, err)
	return p, rec
}

func newSession(tr *debug.Transport) *transports.RemoteSession {
	return &transports.RemoteSession{Transport: tr, Host: "target", Port: 22, User: "admin"}
}

func act(kind actions.Kind, kv map[string]params.Value) actions.Action {
	return actions.New(kind, params.Bag(kv))
}

func strs(items ...string) params.Value {
	vals := make([]params.Value, len(items))
	for i, s := range items {
		vals[i] = params.String(s)
	}
	return params.Array(vals...)
}

func TestNew(t *testing.T) {
	for _, name := range []string{"debian", "Ubuntu", " fedora "} {
		p, err := New(name, Options{})
		require.NoError(t, err, name)
		assert.Equal(t, strings.ToLower(strings.TrimSpace(name)), p.Name())
	}

	_, err := New("plan9", Options{})
	assert.ErrorContains(t, err, "unknown provider")
	assert.Equal(t, []string{"debian", "fedora", "ubuntu"}, Names())
}

func TestPostProcessCommand(t *testing.T) {
	p, _ := newTestProvider(t, "debian")

	tests := []struct {
		name    string
		elevate bool
		hide    bool
		want    string
	}{
		{"plain", false, false, "uptime"},
		{"sudo", true, false, "sudo uptime"},
		{"hidden", false, true, " uptime"},
		{"sudo hidden", true, true, " sudo uptime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &transports.RemoteSession{Elevate: tt.elevate, HideHistory: tt.hide}
			assert.Equal(t, tt.want, p.PostProcessCommand(sess, "uptime"))
		})
	}
}

func TestEveryCommandIsPostProcessed(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	sess := newSession(tr)
	sess.Elevate = true
	sess.HideHistory = true

	err := Dispatch(context.Background(), p, sess, act(actions.KindInstallPackages, map[string]params.Value{
		"package": params.String("curl"),
	}))
	require.NoError(t, err)
	require.NotEmpty(t, tr.Commands)
	for _, c := range tr.Commands {
		assert.True(t, strings.HasPrefix(c, " sudo "), c)
	}
}

func TestPackageList(t *testing.T) {
	tests := []struct {
		name    string
		bag     params.Bag
		want    []string
		invalid bool
	}{
		{"single", params.Bag{"package": params.String("foo")}, []string{"foo"}, false},
		{"list", params.Bag{"packages": strs("foo")}, []string{"foo"}, false},
		{"list as string", params.Bag{"packages": params.String("foo")}, []string{"foo"}, false},
		{"blank entries dropped", params.Bag{"packages": strs("foo", " ", "bar")}, []string{"foo", "bar"}, false},
		{"neither", params.Bag{}, nil, true},
		{"empty list", params.Bag{"packages": params.Array()}, nil, true},
		{"wrong type", params.Bag{"package": params.Bool(true)}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := packageList(tt.bag)
			if tt.invalid {
				assert.True(t, IsInvalidParams(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSingleAndListPackageEquivalent(t *testing.T) {
	run := func(a actions.Action) []string {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		require.NoError(t, Dispatch(context.Background(), p, newSession(tr), a))
		return tr.Commands
	}

	single := run(act(actions.KindInstallPackages, map[string]params.Value{"package": params.String("foo")}))
	list := run(act(actions.KindInstallPackages, map[string]params.Value{"packages": strs("foo")}))
	assert.Equal(t, single, list)
}

func TestInstallThenCreateFile(t *testing.T) {
	script := []actions.Action{
		act(actions.KindInstallPackages, map[string]params.Value{"packages": strs("curl", "git")}),
		act(actions.KindCreateFile, map[string]params.Value{"path": params.String("/tmp/x"), "content": params.String("hi")}),
	}

	t.Run("success", func(t *testing.T) {
		p, rec := newTestProvider(t, "debian")
		tr := debug.New()
		sess := newSession(tr)
		for _, a := range script {
			require.NoError(t, Dispatch(context.Background(), p, sess, a))
		}

		assert.Equal(t, []string{
			"pidof apt apt-get dpkg",
			"DEBIAN_FRONTEND=noninteractive apt-get update",
			"DEBIAN_FRONTEND=noninteractive apt-get install -y curl git",
		}, tr.Commands)
		assert.Empty(t, rec.calls)
		assert.Equal(t, []debug.Write{{Path: "/tmp/x", Mode: 0o644, Contents: "hi"}}, tr.Writes)
	})

	t.Run("install failure", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("apt-get install", debug.Response{ExitCode: 100, Stderr: "E: Unable to locate package git"})
		sess := newSession(tr)

		err := Dispatch(context.Background(), p, sess, script[0])
		require.Error(t, err)
		assert.True(t, IsFailedCommand(err))

		var ae *ActionError
		require.ErrorAs(t, err, &ae)
		assert.Contains(t, ae.Command, "apt-get install")
		assert.Contains(t, ae.Stderr, "Unable to locate")
		assert.Contains(t, ae.Detail, "exit code 100")
	})
}

func TestPackageLockPolling(t *testing.T) {
	t.Run("waits until free", func(t *testing.T) {
		p, rec := newTestProvider(t, "ubuntu")
		tr := debug.New()
		tr.On("pidof", debug.Response{Stdout: "812\n"}, debug.Response{Stdout: "812\n"}, debug.Response{})

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindInstallPackages, map[string]params.Value{
			"package": params.String("nginx"),
		}))
		require.NoError(t, err)
		assert.Len(t, tr.CommandsMatching("pidof"), 3)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		p, rec := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("pidof", debug.Response{Stdout: "812\n"})

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindInstallPackages, map[string]params.Value{
			"package": params.String("nginx"),
		}))
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, FailedOther, kind)
		assert.Len(t, tr.CommandsMatching("pidof"), 3)
		assert.Len(t, rec.calls, 2)
		assert.Empty(t, tr.CommandsMatching("apt-get install"))
	})

	t.Run("opt out", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindInstallPackages, map[string]params.Value{
			"package":     params.String("nginx"),
			"waitForLock": params.Bool(false),
			"update":      params.Bool(false),
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"DEBIAN_FRONTEND=noninteractive apt-get install -y nginx"}, tr.Commands)
	})

	t.Run("fedora has no lock wait", func(t *testing.T) {
		p, _ := newTestProvider(t, "fedora")
		tr := debug.New()
		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindInstallPackages, map[string]params.Value{
			"package": params.String("nginx"),
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"dnf makecache", "dnf install -y nginx"}, tr.Commands)
	})
}

func TestRemovePackages(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	a := func(ignore bool) actions.Action {
		return act(actions.KindRemovePackages, map[string]params.Value{
			"package":       params.String("telnet"),
			"ignoreFailure": params.Bool(ignore),
		})
	}

	tr := debug.New()
	tr.On("apt-get remove", debug.Response{ExitCode: 100})
	assert.True(t, IsFailedCommand(Dispatch(context.Background(), p, newSession(tr), a(false))))
	assert.NoError(t, Dispatch(context.Background(), p, newSession(tr), a(true)))
}

const procSwaps = `Filename				Type		Size		Used		Priority
/swapfile                               file		2097148		0		-2
/dev/sda2                               partition	1048572		0		-3
`

const fstab = `UUID=abc / ext4 defaults 0 1
/swapfile none swap sw 0 0
/dev/sda2 none swap sw 0 0
`

const statFstab = `  File: /etc/fstab
  Size: 92        	Blocks: 8          IO Block: 4096   regular file
Access: (0600/-rw-------)  Uid: (    0/    root)   Gid: (    0/    root)
`

func TestDisableSwap(t *testing.T) {
	t.Run("already disabled", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("cat /proc/swaps", debug.Response{Stdout: "Filename\tType\tSize\tUsed\tPriority\n"})
		tr.Files["/etc/fstab"] = "UUID=abc / ext4 defaults 0 1\n"

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindDisableSwap, map[string]params.Value{
			"filename": params.String("*"),
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"cat /proc/swaps"}, tr.Commands)
		assert.Empty(t, tr.Writes)
	})

	t.Run("all", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("cat /proc/swaps", debug.Response{Stdout: procSwaps})
		tr.On("stat", debug.Response{Stdout: statFstab})
		tr.Files["/etc/fstab"] = fstab

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindDisableSwap, map[string]params.Value{
			"filename": params.String("*"),
		}))
		require.NoError(t, err)

		assert.Equal(t, []string{
			"cat /proc/swaps",
			"swapoff -a",
			"stat /etc/fstab",
			"rm -f /swapfile",
		}, tr.Commands)
		require.Len(t, tr.Writes, 1)
		assert.Equal(t, uint32(0o600), tr.Writes[0].Mode)
		assert.Equal(t, "UUID=abc / ext4 defaults 0 1\n#/swapfile none swap sw 0 0\n#/dev/sda2 none swap sw 0 0\n", tr.Writes[0].Contents)
	})

	t.Run("inactive file still in fstab", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("cat /proc/swaps", debug.Response{Stdout: "Filename\tType\tSize\tUsed\tPriority\n"})
		tr.On("stat", debug.Response{Stdout: statFstab})
		tr.Files["/etc/fstab"] = fstab

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindDisableSwap, map[string]params.Value{
			"filename": params.String("/swapfile"),
		}))
		require.NoError(t, err)

		assert.Equal(t, []string{"cat /proc/swaps", "stat /etc/fstab"}, tr.Commands)
		require.Len(t, tr.Writes, 1)
		assert.Equal(t, "UUID=abc / ext4 defaults 0 1\n#/swapfile none swap sw 0 0\n/dev/sda2 none swap sw 0 0\n", tr.Writes[0].Contents)
	})

	t.Run("single file with unparseable stat", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("cat /proc/swaps", debug.Response{Stdout: procSwaps})
		tr.On("stat", debug.Response{Stdout: "stat: unrecognised output"})
		tr.Files["/etc/fstab"] = fstab

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindDisableSwap, map[string]params.Value{
			"filename": params.String("/swapfile"),
		}))
		require.NoError(t, err)

		assert.Contains(t, tr.Commands, "swapoff /swapfile")
		require.Len(t, tr.Writes, 1)
		assert.Equal(t, uint32(0o644), tr.Writes[0].Mode)
		assert.Equal(t, "UUID=abc / ext4 defaults 0 1\n#/swapfile none swap sw 0 0\n/dev/sda2 none swap sw 0 0\n", tr.Writes[0].Contents)
	})
}

func TestConfigureSSH(t *testing.T) {
	t.Run("updates and restarts", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.Files[defaultSSHDConfig] = "PermitRootLogin yes\nPasswordAuthentication yes\n"

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindConfigureSSH, map[string]params.Value{
			"permitRootLogin":        params.String("prohibit-password"),
			"passwordAuthentication": params.Bool(false),
			"backup":                 params.Bool(true),
		}))
		require.NoError(t, err)

		assert.Equal(t,
			"PermitRootLogin prohibit-password\n#PermitRootLogin yes\nPasswordAuthentication no\n#PasswordAuthentication yes\n",
			tr.Files[defaultSSHDConfig])
		assert.Equal(t, []string{
			"cp -p /etc/ssh/sshd_config /etc/ssh/sshd_config.bak",
			"stat /etc/ssh/sshd_config",
			"systemctl restart ssh",
		}, tr.Commands)
	})

	t.Run("fedora service name and no restart", func(t *testing.T) {
		p, _ := newTestProvider(t, "fedora")
		tr := debug.New()
		tr.Files[defaultSSHDConfig] = ""

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindConfigureSSH, map[string]params.Value{
			"port":           params.Int(2222),
			"restartService": params.Bool(false),
		}))
		require.NoError(t, err)
		assert.Equal(t, "Port 2222\n", tr.Files[defaultSSHDConfig])
		assert.Empty(t, tr.CommandsMatching("systemctl"))
	})

	t.Run("unchanged still restarts", func(t *testing.T) {
		p, _ := newTestProvider(t, "fedora")
		tr := debug.New()
		tr.Files[defaultSSHDConfig] = "PubkeyAuthentication yes\n"

		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindConfigureSSH, map[string]params.Value{
			"pubkeyAuthentication": params.Bool(true),
		}))
		require.NoError(t, err)
		assert.Empty(t, tr.Writes)
		assert.Equal(t, []string{"systemctl restart sshd"}, tr.Commands)
	})

	invalid := map[string]map[string]params.Value{
		"no settings":       {"backup": params.Bool(true)},
		"port out of range": {"port": params.Int(70000)},
		"bad root login":    {"permitRootLogin": params.String("maybe")},
		"wrong type":        {"passwordAuthentication": params.String("off")},
	}
	for name, kv := range invalid {
		t.Run(name, func(t *testing.T) {
			p, _ := newTestProvider(t, "debian")
			tr := debug.New()
			tr.Files[defaultSSHDConfig] = ""
			err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindConfigureSSH, kv))
			assert.True(t, IsInvalidParams(err), "got %v", err)
			assert.Empty(t, tr.Commands)
		})
	}
}

func TestFirewallOrdering(t *testing.T) {
	a := act(actions.KindFirewall, map[string]params.Value{
		"enabled": params.Bool(true),
		"rules":   strs("allow 22/tcp", "allow 443/tcp"),
	})

	tests := []struct {
		provider string
		want     []string
	}{
		{"debian", []string{"ufw allow 22/tcp", "ufw allow 443/tcp", "ufw --force enable"}},
		{"fedora", []string{"ufw --force enable", "ufw allow 22/tcp", "ufw allow 443/tcp"}},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, _ := newTestProvider(t, tt.provider)
			tr := debug.New()
			require.NoError(t, Dispatch(context.Background(), p, newSession(tr), a))
			assert.Equal(t, tt.want, tr.Commands)
		})
	}

	t.Run("disable and reset", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindFirewall, map[string]params.Value{
			"enabled": params.Bool(false),
			"reset":   params.Bool(true),
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"ufw --force reset", "ufw disable"}, tr.Commands)
	})

	t.Run("nothing to do", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		err := Dispatch(context.Background(), p, newSession(debug.New()), act(actions.KindFirewall, nil))
		assert.True(t, IsInvalidParams(err))
	})
}

func TestAddPackageRepo(t *testing.T) {
	repo := act(actions.KindAddPackageRepo, map[string]params.Value{
		"name":       params.String("docker"),
		"keyURL":     params.String("https://download.example.com/gpg"),
		"sourcesURL": params.String("https://download.example.com/docker.list"),
	})

	t.Run("success", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("stat", debug.Response{Stdout: "  Size: 120\nAccess: (0644/-rw-r--r--)  Uid: (0/root)   Gid: (0/root)\n"})

		require.NoError(t, Dispatch(context.Background(), p, newSession(tr), repo))
		require.Len(t, tr.CommandsMatching("gpg --dearmor"), 1)
		assert.Contains(t, tr.CommandsMatching("gpg --dearmor")[0], "/usr/share/keyrings/docker-archive-keyring.gpg")
		assert.Contains(t, tr.Commands, "curl -sSL -o /etc/apt/sources.list.d/docker.list https://download.example.com/docker.list")
		assert.Equal(t, "DEBIAN_FRONTEND=noninteractive apt-get update", tr.Commands[len(tr.Commands)-1])
	})

	t.Run("empty sources list", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("stat", debug.Response{Stdout: "  Size: 0\nAccess: (0644/-rw-r--r--)  Uid: (0/root)   Gid: (0/root)\n"})

		err := Dispatch(context.Background(), p, newSession(tr), repo)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, FailedOther, kind)
		assert.Empty(t, tr.CommandsMatching("apt-get update"))
	})

	t.Run("key failure", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("gpg --dearmor", debug.Response{ExitCode: 2})

		err := Dispatch(context.Background(), p, newSession(tr), repo)
		assert.True(t, IsFailedCommand(err))
		assert.Empty(t, tr.CommandsMatching("sources.list.d"))
	})

	t.Run("unsupported method", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		a := act(actions.KindAddPackageRepo, map[string]params.Value{
			"name":   params.String("docker"),
			"method": params.String("ppa"),
		})
		assert.True(t, IsInvalidParams(Dispatch(context.Background(), p, newSession(debug.New()), a)))
	})

	t.Run("fedora", func(t *testing.T) {
		p, _ := newTestProvider(t, "fedora")
		assert.True(t, IsNotImplemented(Dispatch(context.Background(), p, newSession(debug.New()), repo)))
	})
}

func TestGenericCommand(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	tr.On("false", debug.Response{ExitCode: 1})
	tr.On("noisy", debug.Response{Stderr: "warning"})
	sess := newSession(tr)

	run := func(cmd string, onExit, onStderr bool) error {
		return Dispatch(context.Background(), p, sess, act(actions.KindGenericCommand, map[string]params.Value{
			"command":         params.String(cmd),
			"errorOnExitCode": params.Bool(onExit),
			"errorOnStdErr":   params.Bool(onStderr),
		}))
	}

	assert.NoError(t, run("false", false, false))
	assert.True(t, IsFailedCommand(run("false", true, false)))
	assert.NoError(t, run("noisy", true, false))
	assert.True(t, IsFailedCommand(run("noisy", false, true)))

	err := Dispatch(context.Background(), p, sess, act(actions.KindGenericCommand, nil))
	assert.True(t, IsInvalidParams(err))
	assert.ErrorIs(t, err, params.ErrMissing)
}

func TestTransportErrorsAreClassified(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	tr.On("uptime", debug.Response{Err: transports.NewError("execute", transports.ConnectionError, errors.New("reset by peer"))})

	err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindGenericCommand, map[string]params.Value{
		"command": params.String("uptime"),
	}))
	assert.ErrorIs(t, err, ErrCantConnect)
	assert.Equal(t, transports.ConnectionError, transports.KindOf(err))
}

func TestAddUser(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	tr.On("id -u", debug.Response{ExitCode: 1, Stderr: "id: 'deploy': no such user"})

	err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindAddUser, map[string]params.Value{
		"username": params.String("deploy"),
		"password": params.String("s3cret"),
		"shell":    params.String("/bin/bash"),
		"groups":   strs("sudo", "docker"),
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"id -u deploy",
		"useradd -m -s /bin/bash deploy",
		"sh -c 'echo deploy:s3cret | chpasswd'",
		"usermod -aG sudo,docker deploy",
	}, tr.Commands)
}

func TestAddUserExisting(t *testing.T) {
	p, _ := newTestProvider(t, "fedora")
	tr := debug.New()
	tr.On("id -u", debug.Response{Stdout: "1001\n"})

	err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindAddUser, map[string]params.Value{
		"username": params.String("deploy"),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"id -u deploy"}, tr.Commands)
}

func TestAddGroup(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	tr.On("getent group", debug.Response{ExitCode: 2})

	err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindAddGroup, map[string]params.Value{
		"name":   params.String("ops"),
		"gid":    params.Int(1500),
		"system": params.Bool(true),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"getent group ops", "groupadd -r -g 1500 ops"}, tr.Commands)
}

func TestEditFile(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	tr.Files["/etc/app.conf"] = "listen 80\n# workers\nworkers 2\n"

	a := act(actions.KindEditFile, map[string]params.Value{
		"path": params.String("/etc/app.conf"),
		"replaceLine": params.Map(map[string]params.Value{
			"match":     params.String("listen"),
			"replace":   params.String("listen 8080"),
			"matchType": params.String("startsWith"),
		}),
		"insertLine": params.Array(params.Map(map[string]params.Value{
			"match":    params.String("workers 2"),
			"insert":   params.String("timeout 30"),
			"position": params.String("below"),
		})),
	})

	require.NoError(t, Dispatch(context.Background(), p, newSession(tr), a))
	assert.Equal(t, "listen 8080\n# workers\nworkers 2\ntimeout 30\n", tr.Files["/etc/app.conf"])

	// A second run finds nothing to change.
	writes := len(tr.Writes)
	require.NoError(t, Dispatch(context.Background(), p, newSession(tr), a))
	assert.Len(t, tr.Writes, writes)

	err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindEditFile, map[string]params.Value{
		"path": params.String("/etc/app.conf"),
	}))
	assert.True(t, IsInvalidParams(err))
}

func TestElevatedWriteIsStaged(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()
	sess := newSession(tr)
	sess.Elevate = true

	err := Dispatch(context.Background(), p, sess, act(actions.KindCreateFile, map[string]params.Value{
		"path":        params.String("/etc/motd"),
		"content":     params.String("welcome\n"),
		"permissions": params.Int(600),
	}))
	require.NoError(t, err)

	require.Len(t, tr.Writes, 1)
	staging := tr.Writes[0].Path
	assert.True(t, strings.HasPrefix(staging, "/tmp/control-"), staging)
	assert.Equal(t, uint32(0o600), tr.Writes[0].Mode)
	assert.Equal(t, []string{
		"sudo mv " + staging + " /etc/motd",
		"sudo chmod 600 /etc/motd",
	}, tr.Commands)
}

func TestFilesystemCommands(t *testing.T) {
	tests := []struct {
		name string
		a    actions.Action
		want []string
	}{
		{
			"mkdir with attributes",
			act(actions.KindCreateDirectory, map[string]params.Value{
				"path":        params.String("/srv/app data"),
				"permissions": params.String("0750"),
				"owner":       params.String("deploy"),
			}),
			[]string{"mkdir -p '/srv/app data'", "chmod 750 '/srv/app data'", "chown deploy '/srv/app data'"},
		},
		{
			"rmdir",
			act(actions.KindRemoveDirectory, map[string]params.Value{"path": params.String("/srv/old")}),
			[]string{"rmdir /srv/old"},
		},
		{
			"rm -r",
			act(actions.KindRemoveDirectory, map[string]params.Value{"path": params.String("/srv/old"), "recursive": params.Bool(true)}),
			[]string{"rm -r /srv/old"},
		},
		{
			"rm -f",
			act(actions.KindRemoveFile, map[string]params.Value{"path": params.String("/tmp/x"), "force": params.Bool(true)}),
			[]string{"rm -f /tmp/x"},
		},
		{
			"cp",
			act(actions.KindCopyPath, map[string]params.Value{"source": params.String("/a"), "dest": params.String("/b"), "recursive": params.Bool(true), "group": params.String("ops")}),
			[]string{"cp -p -r /a /b", "chgrp -R ops /b"},
		},
		{
			"ln",
			act(actions.KindCreateSymlink, map[string]params.Value{"target": params.String("/opt/app/bin/app"), "link": params.String("/usr/local/bin/app"), "force": params.Bool(true)}),
			[]string{"ln -sf /opt/app/bin/app /usr/local/bin/app"},
		},
		{
			"download and extract",
			act(actions.KindDownloadFile, map[string]params.Value{
				"url":           params.String("https://example.com/app.tar.gz"),
				"path":          params.String("/tmp/app.tar.gz"),
				"extractDir":    params.String("/opt/app"),
				"deleteArchive": params.Bool(true),
			}),
			[]string{
				"curl -fsSL -o /tmp/app.tar.gz https://example.com/app.tar.gz",
				"mkdir -p /opt/app",
				"tar -xf /tmp/app.tar.gz -C /opt/app",
				"rm -f /tmp/app.tar.gz",
			},
		},
		{
			"download zip",
			act(actions.KindDownloadFile, map[string]params.Value{
				"url":        params.String("https://example.com/app.zip"),
				"path":       params.String("/tmp/app.zip"),
				"extractDir": params.String("/opt/app"),
			}),
			[]string{
				"curl -fsSL -o /tmp/app.zip https://example.com/app.zip",
				"mkdir -p /opt/app",
				"unzip -o /tmp/app.zip -d /opt/app",
			},
		},
		{
			"systemctl",
			act(actions.KindSystemCtl, map[string]params.Value{"service": params.String("nginx"), "action": params.String("restart")}),
			[]string{"systemctl restart nginx"},
		},
		{
			"daemon-reload",
			act(actions.KindSystemCtl, map[string]params.Value{"action": params.String("daemon-reload")}),
			[]string{"systemctl daemon-reload"},
		},
		{
			"timezone",
			act(actions.KindSetTimeZone, map[string]params.Value{"timezone": params.String("Europe/Amsterdam")}),
			[]string{"timedatectl set-timezone Europe/Amsterdam"},
		},
		{
			"hostname",
			act(actions.KindSetHostname, map[string]params.Value{"hostname": params.String("web-01")}),
			[]string{"hostnamectl set-hostname web-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, "debian")
			tr := debug.New()
			require.NoError(t, Dispatch(context.Background(), p, newSession(tr), tt.a))
			assert.Equal(t, tt.want, tr.Commands)
		})
	}
}

func TestInvalidFilesystemParams(t *testing.T) {
	tests := map[string]actions.Action{
		"bad permissions":  act(actions.KindCreateDirectory, map[string]params.Value{"path": params.String("/x"), "permissions": params.String("rwx")}),
		"unknown archive":  act(actions.KindDownloadFile, map[string]params.Value{"url": params.String("u"), "path": params.String("/tmp/a.rar"), "extractDir": params.String("/x")}),
		"root rm":          act(actions.KindRemoveDirectory, map[string]params.Value{"path": params.String("/"), "recursive": params.Bool(true)}),
		"systemctl action": act(actions.KindSystemCtl, map[string]params.Value{"service": params.String("x"), "action": params.String("explode")}),
		"missing link":     act(actions.KindCreateSymlink, map[string]params.Value{"target": params.String("/a")}),
	}

	for name, a := range tests {
		t.Run(name, func(t *testing.T) {
			p, _ := newTestProvider(t, "debian")
			tr := debug.New()
			assert.True(t, IsInvalidParams(Dispatch(context.Background(), p, newSession(tr), a)))
			assert.Empty(t, tr.Commands)
		})
	}
}

func TestCreateSystemdService(t *testing.T) {
	p, _ := newTestProvider(t, "debian")
	tr := debug.New()

	err := Dispatch(context.Background(), p, newSession(tr), act(actions.KindCreateSystemdService, map[string]params.Value{
		"name":      params.String("app.service"),
		"execStart": params.String("/opt/app/bin/app --serve"),
		"user":      params.String("deploy"),
		"environment": params.Map(map[string]params.Value{
			"PORT": params.Int(8080),
			"ENV":  params.String("prod"),
		}),
		"start": params.Bool(true),
	}))
	require.NoError(t, err)

	want := `[Unit]
Description=app service
After=network.target

[Service]
ExecStart=/opt/app/bin/app --serve
User=deploy
Environment="ENV=prod"
Environment="PORT=8080"
Restart=on-failure

[Install]
WantedBy=multi-user.target
`
	require.Len(t, tr.Writes, 1)
	assert.Equal(t, "/etc/systemd/system/app.service", tr.Writes[0].Path)
	assert.Equal(t, uint32(0o644), tr.Writes[0].Mode)
	assert.Equal(t, want, tr.Writes[0].Contents)
	assert.Equal(t, []string{"systemctl daemon-reload", "systemctl enable app", "systemctl start app"}, tr.Commands)
}

func TestDistroDetails(t *testing.T) {
	t.Run("lsb_release", func(t *testing.T) {
		p, _ := newTestProvider(t, "debian")
		tr := debug.New()
		tr.On("lsb_release", debug.Response{Stdout: "Distributor ID:\tDebian\nDescription:\tDebian GNU/Linux 12 (bookworm)\nRelease:\t12\nCodename:\tbookworm\n"})

		id, release, err := p.DistroDetails(context.Background(), newSession(tr))
		require.NoError(t, err)
		assert.Equal(t, "Debian", id)
		assert.Equal(t, "12", release)
	})

	t.Run("os-release fallback", func(t *testing.T) {
		p, _ := newTestProvider(t, "fedora")
		tr := debug.New()
		tr.On("lsb_release", debug.Response{ExitCode: 127, Stderr: "lsb_release: command not found"})
		tr.On("os-release", debug.Response{Stdout: "NAME=\"Fedora Linux\"\nID=fedora\nVERSION_ID=40\n"})

		id, release, err := p.DistroDetails(context.Background(), newSession(tr))
		require.NoError(t, err)
		assert.Equal(t, "fedora", id)
		assert.Equal(t, "40", release)
	})
}

func TestUnimplementedAndDispatchSentinels(t *testing.T) {
	var u Unimplemented
	err := u.Firewall(context.Background(), nil, actions.Action{})
	assert.True(t, IsNotImplemented(err))
	assert.Contains(t, err.Error(), "firewall")

	p, _ := newTestProvider(t, "debian")
	err = Dispatch(context.Background(), p, newSession(debug.New()), actions.Action{Kind: actions.KindUnrecognised})
	assert.True(t, IsInvalidParams(err))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]uint32{"644": 0o644, "0755": 0o755, "0o600": 0o600, " 4755 ": 0o4755} {
		got, err := parseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"0x1A4", "rwx", "0o", "17777"} {
		_, err := parseMode(in)
		assert.True(t, IsInvalidParams(err), in)
	}
}
