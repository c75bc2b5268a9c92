package providers

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/transports"
)

// RunCommand post-processes cmd for p and runs it, returning the raw result.
func RunCommand(ctx context.Context, p Provider, sess *transports.RemoteSession, cmd string) (*transports.CommandResult, error) {
	result, err := sess.Transport.Run(ctx, p.PostProcessCommand(sess, cmd))
	if err != nil {
		return nil, fromTransport("running command", err)
	}
	return result, nil
}

// GenericCommand runs a caller-supplied command. By default its result is
// not inspected; errorOnExitCode and errorOnStdErr opt into failure checks.
func (p *posix) GenericCommand(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	cmd, err := a.Params.GetString("command")
	if err != nil {
		return paramError(err)
	}
	onStderr, err := a.Params.GetBoolOr("errorOnStdErr", false)
	if err != nil {
		return paramError(err)
	}
	onExit, err := a.Params.GetBoolOr("errorOnExitCode", false)
	if err != nil {
		return paramError(err)
	}

	result, err := p.run(ctx, sess, cmd)
	if err != nil {
		return err
	}

	if onExit && result.ExitedWithError() {
		return failedCommand("command exited with an error", cmd, result)
	}
	if onStderr && result.HadStderr() {
		return failedCommand("command wrote to stderr", cmd, result)
	}

	if result.HadOutput() {
		log.Info().Str("command", cmd).Msg(strings.TrimRight(result.Stdout, "\n"))
	}
	return nil
}

// CreateDirectory runs mkdir and applies the requested attributes.
func (p *posix) CreateDirectory(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	dir, err := a.Params.GetString("path")
	if err != nil {
		return paramError(err)
	}
	recursive, err := a.Params.GetBoolOr("recursive", true)
	if err != nil {
		return paramError(err)
	}
	attrs, err := attributesFrom(a)
	if err != nil {
		return err
	}

	cmd := "mkdir " + transports.ShellQuote(dir)
	if recursive {
		cmd = "mkdir -p " + transports.ShellQuote(dir)
	}
	if _, err := p.runChecked(ctx, sess, "creating directory "+dir, cmd); err != nil {
		return err
	}
	return p.applyAttributes(ctx, sess, dir, attrs.permissions, attrs.owner, attrs.group, false)
}

// RemoveDirectory runs rmdir, or rm -r when recursive.
func (p *posix) RemoveDirectory(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	dir, err := a.Params.GetString("path")
	if err != nil {
		return paramError(err)
	}
	if strings.TrimRight(dir, "/") == "" {
		return invalidParams("refusing to remove %q", dir)
	}
	recursive, err := a.Params.GetBoolOr("recursive", false)
	if err != nil {
		return paramError(err)
	}

	cmd := "rmdir " + transports.ShellQuote(dir)
	if recursive {
		cmd = "rm -r " + transports.ShellQuote(dir)
	}
	_, err = p.runChecked(ctx, sess, "removing directory "+dir, cmd)
	return err
}

// RemoveFile runs rm.
func (p *posix) RemoveFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	file, err := a.Params.GetString("path")
	if err != nil {
		return paramError(err)
	}
	force, err := a.Params.GetBoolOr("force", false)
	if err != nil {
		return paramError(err)
	}

	cmd := "rm " + transports.ShellQuote(file)
	if force {
		cmd = "rm -f " + transports.ShellQuote(file)
	}
	_, err = p.runChecked(ctx, sess, "removing file "+file, cmd)
	return err
}

// CopyPath runs cp -p and applies the requested attributes to the copy.
func (p *posix) CopyPath(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	src, err := a.Params.GetString("source")
	if err != nil {
		return paramError(err)
	}
	dest, err := a.Params.GetString("dest")
	if err != nil {
		return paramError(err)
	}
	recursive, err := a.Params.GetBoolOr("recursive", false)
	if err != nil {
		return paramError(err)
	}
	attrs, err := attributesFrom(a)
	if err != nil {
		return err
	}

	flags := "-p"
	if recursive {
		flags = "-p -r"
	}
	cmd := "cp " + flags + " " + transports.ShellQuote(src) + " " + transports.ShellQuote(dest)
	if _, err := p.runChecked(ctx, sess, "copying "+src, cmd); err != nil {
		return err
	}
	return p.applyAttributes(ctx, sess, dest, attrs.permissions, attrs.owner, attrs.group, recursive)
}

// CreateSymlink runs ln -s.
func (p *posix) CreateSymlink(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	target, err := a.Params.GetString("target")
	if err != nil {
		return paramError(err)
	}
	link, err := a.Params.GetString("link")
	if err != nil {
		return paramError(err)
	}
	force, err := a.Params.GetBoolOr("force", false)
	if err != nil {
		return paramError(err)
	}

	flags := "-s"
	if force {
		flags = "-sf"
	}
	cmd := "ln " + flags + " " + transports.ShellQuote(target) + " " + transports.ShellQuote(link)
	_, err = p.runChecked(ctx, sess, "linking "+link, cmd)
	return err
}

// CreateFile writes content to path with the requested mode.
func (p *posix) CreateFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	file, err := a.Params.GetString("path")
	if err != nil {
		return paramError(err)
	}
	content, err := a.Params.GetStringOr("content", "")
	if err != nil {
		return paramError(err)
	}
	perms, err := a.Params.GetTextOr("permissions", "644")
	if err != nil {
		return paramError(err)
	}
	mode, err := parseMode(perms)
	if err != nil {
		return err
	}
	attrs, err := attributesFrom(a)
	if err != nil {
		return err
	}

	if err := p.writeText(ctx, sess, file, mode, content); err != nil {
		return err
	}
	return p.applyAttributes(ctx, sess, file, "", attrs.owner, attrs.group, false)
}

// DownloadFile fetches url to path on the target with curl, optionally
// extracting it afterwards.
func (p *posix) DownloadFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	url, err := a.Params.GetString("url")
	if err != nil {
		return paramError(err)
	}
	file, err := a.Params.GetString("path")
	if err != nil {
		return paramError(err)
	}
	extractDir, err := a.Params.GetStringOr("extractDir", "")
	if err != nil {
		return paramError(err)
	}
	deleteArchive, err := a.Params.GetBoolOr("deleteArchive", false)
	if err != nil {
		return paramError(err)
	}
	perms, err := a.Params.GetTextOr("permissions", "")
	if err != nil {
		return paramError(err)
	}

	var extract string
	if extractDir != "" {
		if extract, err = extractCommand(file, extractDir); err != nil {
			return err
		}
	}

	cmd := "curl -fsSL -o " + transports.ShellQuote(file) + " " + transports.ShellQuote(url)
	if _, err := p.runChecked(ctx, sess, "downloading "+url, cmd); err != nil {
		return err
	}
	if err := p.applyAttributes(ctx, sess, file, perms, "", "", false); err != nil {
		return err
	}

	if extract == "" {
		return nil
	}
	if _, err := p.runChecked(ctx, sess, "creating directory "+extractDir,
		"mkdir -p "+transports.ShellQuote(extractDir)); err != nil {
		return err
	}
	if _, err := p.runChecked(ctx, sess, "extracting "+file, extract); err != nil {
		return err
	}
	if deleteArchive {
		_, err = p.runChecked(ctx, sess, "removing archive "+file, "rm -f "+transports.ShellQuote(file))
	}
	return err
}

// TransmitFile pushes a local file to the target.
func (p *posix) TransmitFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	local, err := a.Params.GetString("localPath")
	if err != nil {
		return paramError(err)
	}
	remote, err := a.Params.GetString("remotePath")
	if err != nil {
		return paramError(err)
	}
	perms, err := a.Params.GetTextOr("permissions", "644")
	if err != nil {
		return paramError(err)
	}
	mode, err := parseMode(perms)
	if err != nil {
		return err
	}

	if !sess.Elevate {
		if err := sess.Transport.SendFile(ctx, local, remote, mode); err != nil {
			return fromTransport("sending "+local, err)
		}
		return nil
	}

	staging := stagingPath()
	if err := sess.Transport.SendFile(ctx, local, staging, mode); err != nil {
		return fromTransport("sending "+local, err)
	}
	return p.moveIntoPlace(ctx, sess, staging, remote, mode)
}

// ReceiveFile pulls a remote file to the local machine.
func (p *posix) ReceiveFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	remote, err := a.Params.GetString("remotePath")
	if err != nil {
		return paramError(err)
	}
	local, err := a.Params.GetString("localPath")
	if err != nil {
		return paramError(err)
	}

	if err := sess.Transport.ReceiveFile(ctx, remote, local); err != nil {
		return fromTransport("receiving "+remote, err)
	}
	return nil
}

type attributes struct {
	permissions string
	owner       string
	group       string
}

func attributesFrom(a actions.Action) (attributes, error) {
	var (
		attrs attributes
		err   error
	)
	if attrs.permissions, err = a.Params.GetTextOr("permissions", ""); err != nil {
		return attrs, paramError(err)
	}
	if attrs.owner, err = a.Params.GetTextOr("owner", ""); err != nil {
		return attrs, paramError(err)
	}
	if attrs.group, err = a.Params.GetTextOr("group", ""); err != nil {
		return attrs, paramError(err)
	}
	if attrs.permissions != "" {
		if _, err := parseMode(attrs.permissions); err != nil {
			return attrs, err
		}
	}
	return attrs, nil
}
