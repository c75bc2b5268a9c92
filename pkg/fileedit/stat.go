package fileedit

import (
	"errors"
	"strconv"
	"strings"
)

// DefaultMode is used when a file's permissions cannot be recovered.
const DefaultMode uint32 = 0o644

// ErrUnparseableStat is returned when stat output lacks the expected fields.
var ErrUnparseableStat = errors.New("unparseable stat output")

// StatInfo holds the fields extracted from the default output of stat(1).
type StatInfo struct {
	Size int64
	// Permissions is the octal mode without leading zeros, e.g. "664".
	Permissions string
	Owner       string
	Group       string
}

// Mode returns Permissions as a file mode, or DefaultMode if it does not
// parse.
func (s StatInfo) Mode() uint32 {
	if s.Permissions == "" {
		return DefaultMode
	}
	m, err := strconv.ParseUint(s.Permissions, 8, 32)
	if err != nil {
		return DefaultMode
	}
	return uint32(m)
}

// ParseStat extracts size, permissions, owner and group from the
// human-readable output of stat(1), for example:
//
//	  Size: 71231369  	Blocks: 139128     IO Block: 4096   regular file
//	Access: (0664/-rw-rw-r--)  Uid: ( 1000/   peter)   Gid: ( 1000/   peter)
//
// The format depends on the remote coreutils version and locale. Fields that
// are missing are left empty and ErrUnparseableStat is returned when neither
// size nor permissions were found.
func ParseStat(output string) (StatInfo, error) {
	var info StatInfo
	foundSize, foundAccess := false, false

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "Size:") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					info.Size = n
					foundSize = true
				}
			}
			continue
		}

		if strings.HasPrefix(trimmed, "Access:") && strings.Contains(trimmed, "Uid:") {
			groups := bracketContents(trimmed)
			if len(groups) >= 1 {
				mode, _, _ := strings.Cut(groups[0], "/")
				info.Permissions = trimMode(mode)
				foundAccess = true
			}
			if len(groups) >= 2 {
				info.Owner = afterSlash(groups[1])
			}
			if len(groups) >= 3 {
				info.Group = afterSlash(groups[2])
			}
		}
	}

	if !foundSize && !foundAccess {
		return info, ErrUnparseableStat
	}
	return info, nil
}

// bracketContents returns the text inside each top-level "(...)" group.
func bracketContents(s string) []string {
	var out []string
	for {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			return out
		}
		end := strings.IndexByte(s[open:], ')')
		if end < 0 {
			return out
		}
		out = append(out, s[open+1:open+end])
		s = s[open+end+1:]
	}
}

func afterSlash(s string) string {
	_, after, found := strings.Cut(s, "/")
	if !found {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(after)
}

func trimMode(mode string) string {
	mode = strings.TrimLeft(strings.TrimSpace(mode), "0")
	if mode == "" {
		return "0"
	}
	return mode
}
