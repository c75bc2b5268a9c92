// Package fileedit holds the text transformations applied to remote files:
// the rule-based line editor, the sshd_config key setter, the fstab swap
// commenter, and parsers for the human-readable output of stat,
// /proc/swaps and lsb_release.
//
// Every transformation is a pure function of its input so that it can be
// tested without a remote host.
package fileedit

import "strings"

// splitLines splits contents into lines and reports whether it ended with a
// newline.
func splitLines(contents string) ([]string, bool) {
	if contents == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(contents, "\n")
	if trailing {
		contents = contents[:len(contents)-1]
	}
	return strings.Split(contents, "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}
