package fileedit

import "strings"

// SetSSHDValue sets key to value in sshd_config-style contents.
//
// Every active line assigning key is commented out with '#', keeping the old
// value visible. The new "key value" line is inserted at the first line that
// mentions key, commented or not, or at the top of the file when key does not
// appear. Keys are case-sensitive and must match a whole token.
func SetSSHDValue(contents, key, value string) string {
	lines, trailing := splitLines(contents)
	anchor := -1

	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		commented := strings.HasPrefix(trimmed, "#")
		body := trimmed
		if commented {
			body = strings.TrimLeft(strings.TrimLeft(trimmed, "#"), " \t")
		}
		if !hasKey(body, key) {
			continue
		}
		if anchor < 0 {
			anchor = i
		}
		if !commented {
			lines[i] = "#" + line
		}
	}

	if anchor < 0 {
		anchor = 0
	}
	entry := key + " " + value

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:anchor]...)
	out = append(out, entry)
	out = append(out, lines[anchor:]...)

	// A file that was empty gains a trailing newline like any sshd_config.
	if len(lines) == 0 {
		trailing = true
	}
	return joinLines(out, trailing)
}

// GetSSHDValue returns the value of the first active assignment of key.
func GetSSHDValue(contents, key string) (string, bool) {
	lines, _ := splitLines(contents)
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "#") || !hasKey(trimmed, key) {
			continue
		}
		return strings.TrimSpace(trimmed[len(key):]), true
	}
	return "", false
}

// hasKey reports whether s starts with key as a whole token.
func hasKey(s, key string) bool {
	if !strings.HasPrefix(s, key) {
		return false
	}
	if len(s) == len(key) {
		return true
	}
	next := s[len(key)]
	return next == ' ' || next == '\t'
}
