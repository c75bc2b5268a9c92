package fileedit

import "strings"

// ParseLSBRelease extracts the distributor id and release from the output of
// "lsb_release -a" (or "-is -rs", which prints the two values on separate
// lines).
func ParseLSBRelease(output string) (id, release string) {
	var bare []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			bare = append(bare, line)
			continue
		}
		switch strings.TrimSpace(key) {
		case "Distributor ID":
			id = strings.TrimSpace(value)
		case "Release":
			release = strings.TrimSpace(value)
		}
	}
	if id == "" && release == "" && len(bare) >= 2 {
		return bare[0], bare[1]
	}
	return id, release
}

// ParseOSRelease extracts ID and VERSION_ID from /etc/os-release, for hosts
// without lsb_release.
func ParseOSRelease(contents string) (id, release string) {
	for _, line := range strings.Split(contents, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "ID":
			id = value
		case "VERSION_ID":
			release = value
		}
	}
	return id, release
}
