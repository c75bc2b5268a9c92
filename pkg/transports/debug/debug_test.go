package debug

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/control/pkg/transports"
)

func TestScriptedResponses(t *testing.T) {
	tr := New()
	tr.On("pidof", Response{Stdout: "123\n"}, Response{})
	tr.OnPrefix("apt-get install", Response{ExitCode: 100, Stderr: "E: broken"})
	ctx := context.Background()

	r, err := tr.Run(ctx, "pidof apt apt-get dpkg")
	require.NoError(t, err)
	assert.True(t, r.HadOutput())

	r, err = tr.Run(ctx, "pidof apt apt-get dpkg")
	require.NoError(t, err)
	assert.False(t, r.HadOutput())

	// The last response repeats once exhausted.
	r, err = tr.Run(ctx, "pidof apt apt-get dpkg")
	require.NoError(t, err)
	assert.False(t, r.HadOutput())

	r, err = tr.Run(ctx, "apt-get install -y curl")
	require.NoError(t, err)
	assert.True(t, r.Failed())
	assert.Equal(t, "E: broken", r.Stderr)

	r, err = tr.Run(ctx, "uptime")
	require.NoError(t, err)
	assert.False(t, r.Failed())

	assert.Len(t, tr.Commands, 5)
	assert.Len(t, tr.CommandsMatching("pidof"), 3)
}

func TestLaterRulesWin(t *testing.T) {
	tr := New()
	tr.On("cat", Response{Stdout: "first"})
	tr.On("cat /proc/swaps", Response{Stdout: "second"})

	r, err := tr.Run(context.Background(), "cat /proc/swaps")
	require.NoError(t, err)
	assert.Equal(t, "second", r.Stdout)
}

func TestTransportErrorResponse(t *testing.T) {
	tr := New()
	boom := transports.NewError("execute", transports.ConnectionError, errors.New("reset"))
	tr.On("x", Response{Err: boom})

	_, err := tr.Run(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestFiles(t *testing.T) {
	tr := New()
	ctx := context.Background()

	require.NoError(t, tr.WriteTextFile(ctx, "/etc/motd", 0o644, "hi"))
	got, err := tr.ReadTextFile(ctx, "/etc/motd")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
	assert.Equal(t, []Write{{Path: "/etc/motd", Mode: 0o644, Contents: "hi"}}, tr.Writes)

	_, err = tr.ReadTextFile(ctx, "/nope")
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir := t.TempDir()
	local := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(local, []byte("data"), 0o600))
	require.NoError(t, tr.SendFile(ctx, local, "/opt/payload", 0o755))
	assert.Equal(t, uint32(0o755), tr.Modes["/opt/payload"])

	back := filepath.Join(dir, "back")
	require.NoError(t, tr.ReceiveFile(ctx, "/opt/payload", back))
	data, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	assert.Equal(t, []string{"/etc/motd", "/opt/payload"}, tr.Paths())
}

func TestPermissiveFiles(t *testing.T) {
	tr := New()
	tr.Permissive = true
	ctx := context.Background()

	got, err := tr.ReadTextFile(ctx, "/etc/ssh/sshd_config")
	require.NoError(t, err)
	assert.Empty(t, got)

	local := filepath.Join(t.TempDir(), "fetched")
	require.NoError(t, tr.ReceiveFile(ctx, "/var/log/syslog", local))
	assert.NoFileExists(t, local)
	assert.Equal(t, []Transfer{{Local: local, Remote: "/var/log/syslog"}}, tr.Received)
}

func TestClose(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Close())
	assert.True(t, tr.Closed())

	_, err := tr.Run(context.Background(), "true")
	assert.Error(t, err)
}
