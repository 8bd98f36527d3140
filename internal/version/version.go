// Package version provides semantic version arithmetic: bump severities,
// version increments, snapshot templating, and prerelease numbering.
package version

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Bump is the severity of a version change.
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

// String returns the lowercase name of the bump.
func (b Bump) String() string {
	switch b {
	case BumpNone:
		return "none"
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return fmt.Sprintf("bump(%d)", int(b))
	}
}

// ParseBump parses a bump name ("none", "patch", "minor", "major").
func ParseBump(s string) (Bump, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return BumpNone, nil
	case "patch":
		return BumpPatch, nil
	case "minor":
		return BumpMinor, nil
	case "major":
		return BumpMajor, nil
	default:
		return BumpNone, fmt.Errorf("unknown bump level: %q (use major, minor, patch, or none)", s)
	}
}

// Max returns the higher of two bump severities.
func Max(a, b Bump) Bump {
	if a > b {
		return a
	}
	return b
}

// MarshalYAML serializes the bump as its name.
func (b Bump) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// UnmarshalYAML parses a bump name from YAML.
func (b *Bump) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseBump(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// InvalidVersionError indicates a version string that is not valid semver.
type InvalidVersionError struct {
	PackageID string
	Version   string
	Err       error
}

func (e *InvalidVersionError) Error() string {
	if e.PackageID != "" {
		return fmt.Sprintf("invalid version %q for package %s: %v", e.Version, e.PackageID, e.Err)
	}
	return fmt.Sprintf("invalid version %q: %v", e.Version, e.Err)
}

func (e *InvalidVersionError) Unwrap() error { return e.Err }

// Parse parses a semantic version string.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, &InvalidVersionError{Version: s, Err: err}
	}
	return v, nil
}

// Apply increments a version by the given bump severity.
// Major zeroes minor and patch, minor zeroes patch, patch increments patch only.
// BumpNone returns the version unchanged.
func Apply(current string, b Bump) (string, error) {
	v, err := Parse(current)
	if err != nil {
		return "", err
	}
	switch b {
	case BumpNone:
		return v.String(), nil
	case BumpPatch:
		next := v.IncPatch()
		return next.String(), nil
	case BumpMinor:
		next := v.IncMinor()
		return next.String(), nil
	case BumpMajor:
		next := v.IncMajor()
		return next.String(), nil
	default:
		return "", fmt.Errorf("unknown bump severity: %d", int(b))
	}
}

// Compare orders two version strings per semver precedence.
// Returns -1, 0, or 1. Unparseable versions sort first.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil && errB != nil {
		return strings.Compare(a, b)
	}
	if errA != nil {
		return -1
	}
	if errB != nil {
		return 1
	}
	return va.Compare(vb)
}

// SnapshotContext carries the substitution values for a snapshot template.
type SnapshotContext struct {
	Version   string
	Branch    string
	Commit    string
	Timestamp time.Time
}

// DefaultSnapshotTemplate matches the common branch-preview layout.
const DefaultSnapshotTemplate = "{version}-{branch}.{short_commit}"

// FormatSnapshot substitutes {version}, {branch}, {commit}, {short_commit},
// and {timestamp} placeholders. The branch name is sanitized first.
func FormatSnapshot(template string, ctx SnapshotContext) string {
	short := ctx.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	r := strings.NewReplacer(
		"{version}", ctx.Version,
		"{branch}", SanitizeBranch(ctx.Branch),
		"{commit}", ctx.Commit,
		"{short_commit}", short,
		"{timestamp}", fmt.Sprintf("%d", ctx.Timestamp.Unix()),
	)
	return r.Replace(template)
}

// SanitizeBranch replaces every character outside [A-Za-z0-9_-] with '-',
// so branch names like "feature/new-api" are safe inside version strings.
func SanitizeBranch(branch string) string {
	var sb strings.Builder
	sb.Grow(len(branch))
	for _, c := range branch {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			sb.WriteRune(c)
		default:
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// FormatPrerelease appends "-{tag}.{n}" to a base version.
func FormatPrerelease(base, tag string, n int) string {
	return fmt.Sprintf("%s-%s.%d", base, tag, n)
}
