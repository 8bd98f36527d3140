// Package changeset defines the changeset record: a developer-authored
// intent to bump one or more packages, tied to a branch.
package changeset

import (
	"fmt"
	"time"

	"lukechampine.com/blake3"

	"verso/internal/version"
)

// Status is the lifecycle state of a changeset.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApplied   Status = "applied"
	StatusArchived  Status = "archived"
	StatusCancelled Status = "cancelled"
)

// Changeset is one version-bump intent. Exactly one pending changeset may
// exist per branch.
type Changeset struct {
	ID           string       `yaml:"id"`
	Branch       string       `yaml:"branch"`
	Bump         version.Bump `yaml:"bump"`
	Packages     []string     `yaml:"packages,omitempty"`
	Environments []string     `yaml:"environments,omitempty"`
	Commits      []string     `yaml:"commits,omitempty"`
	Message      string       `yaml:"message,omitempty"`
	Status       Status       `yaml:"status"`
	CreatedAt    int64        `yaml:"createdAt"`
	UpdatedAt    int64        `yaml:"updatedAt"`
}

// ReleaseInfo is the release metadata attached when a changeset is archived.
type ReleaseInfo struct {
	Version    string `yaml:"version"`
	Tag        string `yaml:"tag,omitempty"`
	ReleasedAt int64  `yaml:"releasedAt"`
}

// Archived is a changeset moved into the history store.
type Archived struct {
	Changeset `yaml:",inline"`
	Release   ReleaseInfo `yaml:"release"`
}

// Spec is the caller-supplied content for a new changeset.
type Spec struct {
	Branch       string
	Bump         version.Bump
	Packages     []string
	Environments []string
	Commits      []string
	Message      string
}

// Patch is a partial update. Packages and Commits are appended (set union,
// order preserving); Bump, Environments, and Message replace the stored
// value only when set.
type Patch struct {
	Bump         *version.Bump
	Packages     []string
	Commits      []string
	Environments []string
	Message      *string
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Branch  string
	Status  Status
	Package string
}

// Matches reports whether a changeset satisfies the filter.
func (f Filter) Matches(cs *Changeset) bool {
	if f.Branch != "" && cs.Branch != f.Branch {
		return false
	}
	if f.Status != "" && cs.Status != f.Status {
		return false
	}
	if f.Package != "" {
		found := false
		for _, p := range cs.Packages {
			if p == f.Package {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// NowMs returns the current time in milliseconds since epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NewID derives a short content hash for a changeset from its branch and
// creation time.
func NewID(branch string, createdAt int64) string {
	h := blake3.New(32, nil)
	h.Write([]byte(branch))
	h.Write([]byte(fmt.Sprintf("\n%d", createdAt)))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// unionAppend appends the values of add not already present in base,
// preserving order on both sides.
func unionAppend(base, add []string) []string {
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range add {
		if !seen[v] {
			seen[v] = true
			base = append(base, v)
		}
	}
	return base
}
