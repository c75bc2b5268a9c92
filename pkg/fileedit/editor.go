package fileedit

import (
	"fmt"
	"strings"
)

// MatchType selects how a rule's match string is compared with a line.
type MatchType int

const (
	// Contains matches when the line contains the match string.
	Contains MatchType = iota
	// Matches requires the whole line to equal the match string.
	Matches
	// StartsWith matches a line prefix.
	StartsWith
	// EndsWith matches a line suffix.
	EndsWith
)

// ParseMatchType reads a match type name. An empty name is Contains.
func ParseMatchType(s string) (MatchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contains":
		return Contains, nil
	case "matches", "exact":
		return Matches, nil
	case "startswith":
		return StartsWith, nil
	case "endswith":
		return EndsWith, nil
	}
	return Contains, fmt.Errorf("unknown match type %q", s)
}

// String returns the document name of the match type.
func (m MatchType) String() string {
	switch m {
	case Matches:
		return "matches"
	case StartsWith:
		return "startsWith"
	case EndsWith:
		return "endsWith"
	default:
		return "contains"
	}
}

// Match reports whether line matches pattern under m.
func (m MatchType) Match(line, pattern string) bool {
	switch m {
	case Matches:
		return line == pattern
	case StartsWith:
		return strings.HasPrefix(line, pattern)
	case EndsWith:
		return strings.HasSuffix(line, pattern)
	default:
		return strings.Contains(line, pattern)
	}
}

// Position places an inserted line relative to its matched line.
type Position int

const (
	Below Position = iota
	Above
)

// ParsePosition reads "above" or "below". An empty name is Below.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "below", "after":
		return Below, nil
	case "above", "before":
		return Above, nil
	}
	return Below, fmt.Errorf("unknown position %q", s)
}

// ReplaceRule replaces every matching line with Replace.
type ReplaceRule struct {
	Match     string
	Replace   string
	MatchType MatchType
}

// InsertRule adds Insert above or below every matching line.
type InsertRule struct {
	Position  Position
	Match     string
	Insert    string
	MatchType MatchType
}

// CommentRule prefixes every matching line with CommentChar.
type CommentRule struct {
	Match       string
	CommentChar string
	MatchType   MatchType
}

// Rules is the full set of directives for one edit.
type Rules struct {
	Replace []ReplaceRule
	Insert  []InsertRule
	Comment []CommentRule
}

// Empty reports whether no directives are present.
func (r Rules) Empty() bool {
	return len(r.Replace) == 0 && len(r.Insert) == 0 && len(r.Comment) == 0
}

// Apply runs the rules over every line of contents and reports whether
// anything changed.
//
// For each line the last matching rule of each category is considered.
// Replace wins over comment, and either wins over insert: when a line is
// consumed by a replace or comment rule, a matching insert rule for that line
// is dropped. Overlapping rules are not otherwise reconciled.
//
// Re-running the same rules is a no-op: lines already equal to their
// replacement or already commented are left alone, and an insert is skipped
// when the neighbouring line already holds the inserted text.
func Apply(contents string, rules Rules) (string, bool) {
	lines, trailing := splitLines(contents)
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		if r, ok := lastReplace(rules.Replace, line); ok {
			out = append(out, r.Replace)
			continue
		}

		if c, ok := lastComment(rules.Comment, line); ok {
			char := c.CommentChar
			if char == "" {
				char = "#"
			}
			if strings.HasPrefix(strings.TrimLeft(line, " \t"), char) {
				out = append(out, line)
			} else {
				out = append(out, char+line)
			}
			continue
		}

		ins, ok := lastInsert(rules.Insert, line)
		if !ok || line == ins.Insert {
			out = append(out, line)
			continue
		}

		switch ins.Position {
		case Above:
			if len(out) == 0 || out[len(out)-1] != ins.Insert {
				out = append(out, ins.Insert)
			}
			out = append(out, line)
		default:
			out = append(out, line)
			if i+1 >= len(lines) || lines[i+1] != ins.Insert {
				out = append(out, ins.Insert)
			}
		}
	}

	result := joinLines(out, trailing)
	return result, result != contents
}

func lastReplace(rules []ReplaceRule, line string) (ReplaceRule, bool) {
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].MatchType.Match(line, rules[i].Match) {
			return rules[i], true
		}
	}
	return ReplaceRule{}, false
}

func lastComment(rules []CommentRule, line string) (CommentRule, bool) {
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].MatchType.Match(line, rules[i].Match) {
			return rules[i], true
		}
	}
	return CommentRule{}, false
}

func lastInsert(rules []InsertRule, line string) (InsertRule, bool) {
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].MatchType.Match(line, rules[i].Match) {
			return rules[i], true
		}
	}
	return InsertRule{}, false
}
