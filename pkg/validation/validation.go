// Package validation matches a target host's discovered distribution against
// an expected constraint before any action runs.
//
// Constraints are written in a compact grammar:
//
//	Debian          distribution id only
//	12              release equal to 12
//	<12             release comparison (=, ==, <, <=, >, >=)
//	(>=12,Debian)   release comparison and distribution id
//
// Release comparison is integer-only. Dotted versions such as "20.04" are
// rejected when parsing a constraint and fail validation when reported by a
// host.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Comparison is the operator applied to a release version.
type Comparison int

const (
	None Comparison = iota
	Equal
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
)

// String returns the operator symbol.
func (c Comparison) String() string {
	switch c {
	case Equal:
		return "="
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	default:
		return ""
	}
}

var (
	// ErrEmpty is returned when the constraint string is blank.
	ErrEmpty = errors.New("empty system validation constraint")

	// ErrUnbalanced is returned for mismatched parentheses.
	ErrUnbalanced = errors.New("unbalanced parentheses")

	// ErrMissingVersion is returned when an operator is not followed by digits.
	ErrMissingVersion = errors.New("missing version after operator")

	// ErrDottedVersion is returned for versions containing a decimal point.
	ErrDottedVersion = errors.New("dotted versions are not supported")

	// ErrInvalidVersion is returned when a version is not an integer.
	ErrInvalidVersion = errors.New("version must be an integer")
)

// ReleaseConstraint is a comparison against a release version.
type ReleaseConstraint struct {
	Op      Comparison
	Version string
}

// IsVersionOkay reports whether actual satisfies the constraint. A None
// constraint accepts anything. Non-integer actual versions never satisfy a
// real constraint.
func (r ReleaseConstraint) IsVersionOkay(actual string) bool {
	if r.Op == None {
		return true
	}

	actual = strings.TrimSpace(actual)
	if strings.Contains(actual, ".") {
		log.Warn().
			Str("version", actual).
			Msg("Dotted release versions cannot be compared")
		return false
	}

	want, err := strconv.Atoi(r.Version)
	if err != nil {
		return false
	}
	got, err := strconv.Atoi(actual)
	if err != nil {
		log.Warn().Str("version", actual).Msg("Release version is not an integer")
		return false
	}

	switch r.Op {
	case Equal:
		return got == want
	case LessThan:
		return got < want
	case LessThanOrEqual:
		return got <= want
	case GreaterThan:
		return got > want
	case GreaterThanOrEqual:
		return got >= want
	}
	return false
}

// String renders the constraint as written in the grammar.
func (r ReleaseConstraint) String() string {
	if r.Op == None {
		return ""
	}
	return r.Op.String() + r.Version
}

// SystemValidation holds the expected distribution id and release constraint.
type SystemValidation struct {
	// DistroID is compared case-insensitively. Empty means any distribution.
	DistroID string
	Release  ReleaseConstraint
}

// NeedsChecking reports whether any constraint is configured.
func (s SystemValidation) NeedsChecking() bool {
	return s.DistroID != "" || s.Release.Op != None
}

// CheckActualDistroValues reports whether the discovered id and release
// satisfy every configured constraint.
func (s SystemValidation) CheckActualDistroValues(id, release string) bool {
	if s.DistroID != "" && !strings.EqualFold(strings.TrimSpace(id), s.DistroID) {
		return false
	}
	return s.Release.IsVersionOkay(release)
}

// String renders the constraint in the grammar accepted by Parse.
func (s SystemValidation) String() string {
	switch {
	case s.DistroID != "" && s.Release.Op != None:
		return "(" + s.Release.String() + "," + s.DistroID + ")"
	case s.DistroID != "":
		return s.DistroID
	default:
		return s.Release.String()
	}
}

// Parse reads a constraint string.
func Parse(input string) (SystemValidation, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return SystemValidation{}, ErrEmpty
	}

	open := strings.HasPrefix(s, "(")
	closed := strings.HasSuffix(s, ")")
	if open != closed || strings.Count(s, "(") != strings.Count(s, ")") {
		return SystemValidation{}, fmt.Errorf("%q: %w", input, ErrUnbalanced)
	}
	if open {
		s = strings.TrimSpace(s[1 : len(s)-1])
		if strings.ContainsAny(s, "()") {
			return SystemValidation{}, fmt.Errorf("%q: %w", input, ErrUnbalanced)
		}
	}

	var out SystemValidation
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return SystemValidation{}, fmt.Errorf("%q: empty term", input)
		}

		if isReleaseTerm(part) {
			if out.Release.Op != None {
				return SystemValidation{}, fmt.Errorf("%q: more than one release constraint", input)
			}
			rc, err := parseRelease(part)
			if err != nil {
				return SystemValidation{}, fmt.Errorf("%q: %w", input, err)
			}
			out.Release = rc
			continue
		}

		if out.DistroID != "" {
			return SystemValidation{}, fmt.Errorf("%q: more than one distribution id", input)
		}
		out.DistroID = part
	}

	return out, nil
}

func isReleaseTerm(s string) bool {
	c := s[0]
	return c == '<' || c == '>' || c == '=' || (c >= '0' && c <= '9')
}

func parseRelease(s string) (ReleaseConstraint, error) {
	op, rest := splitOperator(s)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ReleaseConstraint{}, ErrMissingVersion
	}
	if strings.Contains(rest, ".") {
		return ReleaseConstraint{}, fmt.Errorf("%s: %w", rest, ErrDottedVersion)
	}
	if _, err := strconv.Atoi(rest); err != nil {
		return ReleaseConstraint{}, fmt.Errorf("%s: %w", rest, ErrInvalidVersion)
	}
	return ReleaseConstraint{Op: op, Version: rest}, nil
}

func splitOperator(s string) (Comparison, string) {
	switch {
	case strings.HasPrefix(s, "<="):
		return LessThanOrEqual, s[2:]
	case strings.HasPrefix(s, ">="):
		return GreaterThanOrEqual, s[2:]
	case strings.HasPrefix(s, "=="):
		return Equal, s[2:]
	case strings.HasPrefix(s, "<"):
		return LessThan, s[1:]
	case strings.HasPrefix(s, ">"):
		return GreaterThan, s[1:]
	case strings.HasPrefix(s, "="):
		return Equal, s[1:]
	default:
		return Equal, s
	}
}
