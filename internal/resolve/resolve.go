// Package resolve computes target versions for workspace packages from
// pending changesets under a versioning strategy, including propagation to
// internal dependents, snapshot formatting, and prerelease numbering.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"verso/internal/changeset"
	"verso/internal/pkggraph"
	"verso/internal/plan"
	"verso/internal/version"
)

// Sequencer issues prerelease numbers per (tag, base version).
// *cache.PrereleaseLog satisfies it.
type Sequencer interface {
	Next(tag, base string) (int, error)
}

// SnapshotOptions formats computed versions as branch-specific snapshot
// versions. Snapshots are never archived as releases.
type SnapshotOptions struct {
	Template  string
	Branch    string
	Commit    string
	Timestamp time.Time
}

// PrereleaseOptions appends "-{tag}.{n}" to computed versions, with n taken
// from the sequencer.
type PrereleaseOptions struct {
	Tag      string
	Sequence Sequencer
}

// Override pins a package to an explicit target version.
type Override struct {
	PackageID string
	Version   string
}

// Options is the immutable parameter object for one resolution pass.
type Options struct {
	Strategy   plan.Strategy
	Propagate  bool
	Overrides  []Override
	Snapshot   *SnapshotOptions
	Prerelease *PrereleaseOptions
}

// UnknownPackageError indicates a changeset or override targets a package
// absent from the workspace graph.
type UnknownPackageError struct {
	PackageID   string
	ChangesetID string
}

func (e *UnknownPackageError) Error() string {
	if e.ChangesetID != "" {
		return fmt.Sprintf("changeset %s targets unknown package %s", e.ChangesetID, e.PackageID)
	}
	return fmt.Sprintf("unknown package: %s", e.PackageID)
}

// ConflictError indicates incompatible explicit targets for one package.
type ConflictError struct {
	PackageID string
	Versions  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting version targets for %s: %s",
		e.PackageID, strings.Join(e.Versions, " vs "))
}

// target accumulates the effective bump decision for one package.
type target struct {
	bump    version.Bump
	reason  plan.Reason
	sources []string
}

// Resolve computes a versioning plan. It is all-or-nothing: any graph or
// version error aborts the whole pass with the offending package attached.
func Resolve(opts Options, sets []*changeset.Changeset, g *pkggraph.Graph) (*plan.Plan, error) {
	if opts.Snapshot != nil && opts.Prerelease != nil {
		return nil, fmt.Errorf("snapshot and prerelease formatting are mutually exclusive")
	}

	pending := make([]*changeset.Changeset, 0, len(sets))
	for _, cs := range sets {
		if cs.Status == changeset.StatusPending {
			pending = append(pending, cs)
		}
	}

	switch opts.Strategy {
	case plan.StrategyIndependent:
		return resolveIndependent(opts, pending, g)
	case plan.StrategyUnified:
		return resolveUnified(opts, pending, g)
	default:
		return nil, fmt.Errorf("unknown strategy: %q", opts.Strategy)
	}
}

func resolveIndependent(opts Options, pending []*changeset.Changeset, g *pkggraph.Graph) (*plan.Plan, error) {
	targets := make(map[string]*target)

	// Direct bumps: effective severity is the max across a package's
	// changesets.
	for _, cs := range pending {
		for _, id := range cs.Packages {
			if !g.Has(id) {
				return nil, &UnknownPackageError{PackageID: id, ChangesetID: cs.ID}
			}
			t := targets[id]
			if t == nil {
				t = &target{reason: plan.ReasonDirect}
				targets[id] = t
			}
			t.bump = version.Max(t.bump, cs.Bump)
			t.sources = appendUnique(t.sources, cs.ID)
		}
	}

	// Cyclic groups version as one unit: the unit's max severity applies to
	// every member atomically.
	for _, group := range g.DetectCycles() {
		unitBump := version.BumpNone
		var unitSources []string
		touched := false
		for _, id := range group {
			if t, ok := targets[id]; ok && t.reason == plan.ReasonDirect {
				touched = true
				unitBump = version.Max(unitBump, t.bump)
				for _, s := range t.sources {
					unitSources = appendUnique(unitSources, s)
				}
			}
		}
		if !touched {
			continue
		}
		for _, id := range group {
			t := targets[id]
			if t == nil {
				targets[id] = &target{bump: unitBump, reason: plan.ReasonPropagated, sources: unitSources}
				continue
			}
			t.bump = version.Max(t.bump, unitBump)
		}
	}

	// Single-hop propagation: direct dependents of bumped packages pick up
	// a patch bump unless they already carry an equal or higher severity.
	if opts.Propagate {
		bumped := make([]string, 0, len(targets))
		for id, t := range targets {
			if t.bump > version.BumpNone {
				bumped = append(bumped, id)
			}
		}
		sort.Strings(bumped)
		for _, id := range bumped {
			origin := targets[id]
			for _, dep := range g.DirectDependentsOf(id) {
				if t, ok := targets[dep]; ok {
					if t.bump >= version.BumpPatch {
						continue // direct always wins
					}
					t.bump = version.BumpPatch
					t.reason = plan.ReasonPropagated
					for _, s := range origin.sources {
						t.sources = appendUnique(t.sources, s)
					}
					continue
				}
				targets[dep] = &target{
					bump:    version.BumpPatch,
					reason:  plan.ReasonPropagated,
					sources: append([]string(nil), origin.sources...),
				}
			}
		}
	}

	overrides, err := collectOverrides(opts.Overrides, g)
	if err != nil {
		return nil, err
	}

	p := plan.New(plan.StrategyIndependent)
	for _, id := range g.PackageIDs() {
		pkg := g.Package(id)
		change := plan.Change{
			PackageID:  id,
			OldVersion: pkg.Version,
			NewVersion: pkg.Version,
		}

		switch {
		case overrides[id] != "":
			b, err := classifyBump(pkg.Version, overrides[id])
			if err != nil {
				return nil, err
			}
			change.NewVersion = overrides[id]
			change.Bump = b
			change.Reason = plan.ReasonDirect
			change.WillBump = true
		default:
			t := targets[id]
			if t != nil && t.bump > version.BumpNone {
				next, err := version.Apply(pkg.Version, t.bump)
				if err != nil {
					return nil, withPackage(err, id)
				}
				change.NewVersion = next
				change.Bump = t.bump
				change.Reason = t.reason
				change.WillBump = true
				change.SourceChangesets = t.sources
			}
		}

		if change.WillBump {
			formatted, err := formatVersion(opts, change.NewVersion)
			if err != nil {
				return nil, withPackage(err, id)
			}
			change.NewVersion = formatted
		}
		p.Add(change)
	}

	collectChangesetIDs(p, pending)
	logrus.WithFields(logrus.Fields{
		"strategy": p.Strategy,
		"bumped":   len(p.Bumped()),
		"packages": len(p.Changes),
	}).Debug("plan resolved")
	return p, nil
}

func resolveUnified(opts Options, pending []*changeset.Changeset, g *pkggraph.Graph) (*plan.Plan, error) {
	if len(opts.Overrides) > 0 {
		return nil, fmt.Errorf("explicit version overrides are not supported under the unified strategy")
	}

	p := plan.New(plan.StrategyUnified)

	// The unified bump is the max severity across all pending changesets,
	// regardless of which packages they target.
	unifiedBump := version.BumpNone
	var sources []string
	for _, cs := range pending {
		unifiedBump = version.Max(unifiedBump, cs.Bump)
		sources = appendUnique(sources, cs.ID)
	}

	if unifiedBump == version.BumpNone {
		// No pending work: a valid empty plan, every package untouched.
		for _, id := range g.PackageIDs() {
			pkg := g.Package(id)
			p.Add(plan.Change{PackageID: id, OldVersion: pkg.Version, NewVersion: pkg.Version})
		}
		return p, nil
	}

	// Base version: the highest current version across the workspace, so
	// the computation needs no release history.
	base := ""
	for _, id := range g.PackageIDs() {
		pkg := g.Package(id)
		if _, err := version.Parse(pkg.Version); err != nil {
			return nil, withPackage(err, id)
		}
		if base == "" || version.Compare(pkg.Version, base) > 0 {
			base = pkg.Version
		}
	}
	if base == "" {
		return p, nil
	}

	unifiedVersion, err := version.Apply(base, unifiedBump)
	if err != nil {
		return nil, err
	}
	unifiedVersion, err = formatVersion(opts, unifiedVersion)
	if err != nil {
		return nil, err
	}

	for _, id := range g.PackageIDs() {
		pkg := g.Package(id)
		p.Add(plan.Change{
			PackageID:        id,
			OldVersion:       pkg.Version,
			NewVersion:       unifiedVersion,
			Bump:             unifiedBump,
			Reason:           plan.ReasonUnified,
			WillBump:         pkg.Version != unifiedVersion,
			SourceChangesets: sources,
		})
	}

	collectChangesetIDs(p, pending)
	return p, nil
}

// collectOverrides validates explicit targets; two differing targets for one
// package are incompatible.
func collectOverrides(overrides []Override, g *pkggraph.Graph) (map[string]string, error) {
	out := make(map[string]string, len(overrides))
	for _, o := range overrides {
		if !g.Has(o.PackageID) {
			return nil, &UnknownPackageError{PackageID: o.PackageID}
		}
		if _, err := version.Parse(o.Version); err != nil {
			return nil, withPackage(err, o.PackageID)
		}
		if prev, ok := out[o.PackageID]; ok && prev != o.Version {
			return nil, &ConflictError{PackageID: o.PackageID, Versions: []string{prev, o.Version}}
		}
		out[o.PackageID] = o.Version
	}
	return out, nil
}

// classifyBump infers the severity of an explicit old -> new transition.
func classifyBump(old, next string) (version.Bump, error) {
	vo, err := version.Parse(old)
	if err != nil {
		return version.BumpNone, err
	}
	vn, err := version.Parse(next)
	if err != nil {
		return version.BumpNone, err
	}
	switch {
	case vn.Major() != vo.Major():
		return version.BumpMajor, nil
	case vn.Minor() != vo.Minor():
		return version.BumpMinor, nil
	case vn.Patch() != vo.Patch():
		return version.BumpPatch, nil
	default:
		return version.BumpNone, nil
	}
}

// formatVersion applies snapshot or prerelease formatting to a computed
// canonical version.
func formatVersion(opts Options, computed string) (string, error) {
	if opts.Snapshot != nil {
		s := opts.Snapshot
		ts := s.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		return version.FormatSnapshot(s.Template, version.SnapshotContext{
			Version:   computed,
			Branch:    s.Branch,
			Commit:    s.Commit,
			Timestamp: ts,
		}), nil
	}
	if opts.Prerelease != nil {
		n, err := opts.Prerelease.Sequence.Next(opts.Prerelease.Tag, computed)
		if err != nil {
			return "", fmt.Errorf("issuing prerelease number: %w", err)
		}
		return version.FormatPrerelease(computed, opts.Prerelease.Tag, n), nil
	}
	return computed, nil
}

// withPackage attaches a package id to InvalidVersionError values bubbling
// out of version arithmetic.
func withPackage(err error, id string) error {
	var ive *version.InvalidVersionError
	if errors.As(err, &ive) && ive.PackageID == "" {
		return &version.InvalidVersionError{PackageID: id, Version: ive.Version, Err: ive.Err}
	}
	return err
}

func collectChangesetIDs(p *plan.Plan, pending []*changeset.Changeset) {
	for _, cs := range pending {
		p.ChangesetIDs = appendUnique(p.ChangesetIDs, cs.ID)
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
