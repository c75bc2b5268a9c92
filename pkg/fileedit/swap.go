package fileedit

import "strings"

// SwapEntry is one row of /proc/swaps.
type SwapEntry struct {
	Filename string
	Type     string
}

// IsFile reports whether the swap area is a regular file rather than a
// partition.
func (e SwapEntry) IsFile() bool {
	return e.Type == "file"
}

// ParseProcSwaps parses the contents of /proc/swaps. The header line is
// skipped; an output holding only the header yields no entries.
func ParseProcSwaps(output string) []SwapEntry {
	var entries []SwapEntry
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "Filename" {
			continue
		}
		entries = append(entries, SwapEntry{Filename: fields[0], Type: fields[1]})
	}
	return entries
}

// SelectSwaps returns the entries named filename, or all entries for "*".
func SelectSwaps(entries []SwapEntry, filename string) []SwapEntry {
	if filename == "*" {
		return entries
	}
	var out []SwapEntry
	for _, e := range entries {
		if e.Filename == filename {
			out = append(out, e)
		}
	}
	return out
}

// CommentOutSwapEntries comments out fstab lines whose first field is one of
// filenames and reports whether anything changed. Lines are never deleted.
func CommentOutSwapEntries(fstab string, filenames []string) (string, bool) {
	want := make(map[string]bool, len(filenames))
	for _, f := range filenames {
		want[f] = true
	}
	return commentOutFstab(fstab, func(fields []string) bool { return want[fields[0]] })
}

// CommentOutAllSwapEntries comments out every fstab line of type swap.
func CommentOutAllSwapEntries(fstab string) (string, bool) {
	return commentOutFstab(fstab, func(fields []string) bool {
		return len(fields) >= 3 && fields[2] == "swap"
	})
}

func commentOutFstab(fstab string, match func(fields []string) bool) (string, bool) {
	lines, trailing := splitLines(fstab)
	changed := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if match(strings.Fields(trimmed)) {
			lines[i] = "#" + line
			changed = true
		}
	}
	return joinLines(lines, trailing), changed
}
