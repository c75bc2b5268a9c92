package providers

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/fileedit"
	"github.com/openfroyo/control/pkg/transports"
)

const fstabPath = "/etc/fstab"

// DisableSwap turns off swap areas, comments them out of /etc/fstab and
// deletes active swap files. A filename of "*" selects every active area and
// every swap entry in fstab.
func (l *linux) DisableSwap(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	filename, err := a.Params.GetString("filename")
	if err != nil {
		return paramError(err)
	}
	if filename == "" {
		return invalidParams("filename must name a swap file or be \"*\"")
	}

	result, err := l.runChecked(ctx, sess, "listing swap areas", "cat /proc/swaps")
	if err != nil {
		return err
	}
	selected := fileedit.SelectSwaps(fileedit.ParseProcSwaps(result.Stdout), filename)

	if len(selected) == 0 {
		log.Info().Str("filename", filename).Msg("Swap area not active")
	} else {
		cmd := "swapoff " + transports.ShellQuote(filename)
		if filename == "*" {
			cmd = "swapoff -a"
		}
		if _, err := l.runChecked(ctx, sess, "disabling swap", cmd); err != nil {
			return err
		}
	}

	// fstab is cleaned even when nothing was active.
	fstab, err := l.readText(ctx, sess, fstabPath)
	if err != nil {
		return err
	}
	var updated string
	var changed bool
	if filename == "*" {
		updated, changed = fileedit.CommentOutAllSwapEntries(fstab)
	} else {
		updated, changed = fileedit.CommentOutSwapEntries(fstab, []string{filename})
	}
	if changed {
		if err := l.replaceFile(ctx, sess, fstabPath, updated, false); err != nil {
			return err
		}
	}

	for _, e := range selected {
		if !e.IsFile() {
			continue
		}
		if _, err := l.runChecked(ctx, sess, "removing swap file "+e.Filename,
			"rm -f "+transports.ShellQuote(e.Filename)); err != nil {
			return err
		}
	}
	return nil
}
