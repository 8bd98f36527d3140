// Package release orchestrates change detection, changeset selection, and
// version resolution into a topologically ordered versioning plan.
package release

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"verso/internal/changeset"
	"verso/internal/config"
	"verso/internal/detect"
	"verso/internal/manifest"
	"verso/internal/pkggraph"
	"verso/internal/plan"
	"verso/internal/resolve"
)

// GitSource extends the detector's git surface with branch lookup.
// *gitio.Repository satisfies it.
type GitSource interface {
	detect.GitSource
	CurrentBranch() (string, error)
}

// Planner wires the pipeline together for one process invocation.
type Planner struct {
	ws    *manifest.Workspace
	graph *pkggraph.Graph
	git   GitSource
	store *changeset.Store
	cfg   config.Config
	log   *logrus.Logger
}

// NewPlanner creates a planner over an already-loaded workspace.
func NewPlanner(ws *manifest.Workspace, graph *pkggraph.Graph, git GitSource, store *changeset.Store, cfg config.Config, log *logrus.Logger) *Planner {
	if log == nil {
		log = logrus.New()
	}
	return &Planner{ws: ws, graph: graph, git: git, store: store, cfg: cfg, log: log}
}

// Request selects what to plan. An empty SinceRef skips change detection
// and considers every pending changeset. Strategy falls back to the
// configured one when empty.
type Request struct {
	SinceRef   string
	UntilRef   string
	Strategy   plan.Strategy
	Overrides  []resolve.Override
	Snapshot   *resolve.SnapshotOptions
	Prerelease *resolve.PrereleaseOptions
}

// Plan runs the pipeline: detector -> store -> resolver -> topological
// ordering. Any graph or version error aborts the whole computation;
// partial plans are never returned.
func (pl *Planner) Plan(req Request) (*plan.Plan, error) {
	strategy := req.Strategy
	if strategy == "" {
		parsed, err := plan.ParseStrategy(pl.cfg.Strategy)
		if err != nil {
			return nil, err
		}
		strategy = parsed
	}

	if err := pl.graph.Validate(pl.cfg.FailOnCycles); err != nil {
		return nil, err
	}

	var analysis *detect.Analysis
	if req.SinceRef != "" {
		detector := detect.NewDetector(pl.git, pl.ws, pl.graph, pl.log)
		a, err := detector.DetectSince(req.SinceRef, req.UntilRef)
		if err != nil {
			return nil, err
		}
		analysis = a
	}

	sets, err := pl.selectChangesets(analysis)
	if err != nil {
		return nil, err
	}

	p, err := resolve.Resolve(resolve.Options{
		Strategy:   strategy,
		Propagate:  pl.cfg.Propagate,
		Overrides:  req.Overrides,
		Snapshot:   req.Snapshot,
		Prerelease: req.Prerelease,
	}, sets, pl.graph)
	if err != nil {
		return nil, err
	}

	p.Sort(pl.graph)
	pl.log.WithFields(logrus.Fields{
		"plan":       p.ID,
		"strategy":   p.Strategy,
		"changesets": len(p.ChangesetIDs),
		"bumped":     len(p.Bumped()),
	}).Debug("plan computed")
	return p, nil
}

// selectChangesets lists the pending changesets relevant to the analysis.
// Without an analysis every pending changeset participates. A changeset
// with no explicit packages picks up the directly affected set.
func (pl *Planner) selectChangesets(analysis *detect.Analysis) ([]*changeset.Changeset, error) {
	sets, err := pl.store.List(changeset.Filter{Status: changeset.StatusPending})
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return sets, nil
	}

	branch, err := pl.git.CurrentBranch()
	if err != nil {
		return nil, err
	}

	affected := make(map[string]bool)
	for _, id := range analysis.AffectedPackages() {
		affected[id] = true
	}

	var selected []*changeset.Changeset
	for _, cs := range sets {
		if len(cs.Packages) == 0 {
			// Auto-detected targets; the stored record stays untouched.
			copied := *cs
			copied.Packages = append([]string(nil), analysis.DirectlyAffected...)
			selected = append(selected, &copied)
			continue
		}
		if cs.Branch == branch {
			selected = append(selected, cs)
			continue
		}
		for _, id := range cs.Packages {
			if affected[id] {
				selected = append(selected, cs)
				break
			}
		}
	}
	return selected, nil
}

// Tags renders the tag strings for a plan using the configured templates.
func (pl *Planner) Tags(p *plan.Plan) []string {
	return p.Tags(pl.cfg.TagTemplate, pl.cfg.UnifiedTagTemplate)
}

// Apply writes the plan's new versions into the package manifests and
// archives the consumed changesets with their release metadata. Manifests
// are updated in plan order, dependencies first.
func (pl *Planner) Apply(p *plan.Plan) error {
	released := make(map[string]changeset.ReleaseInfo)
	for _, c := range p.Bumped() {
		pkg := pl.ws.Package(c.PackageID)
		if pkg == nil {
			return fmt.Errorf("plan references unknown package %s", c.PackageID)
		}
		dir := filepath.Join(pl.ws.Root, filepath.FromSlash(pkg.Path))
		if err := manifest.WriteVersion(dir, c.NewVersion); err != nil {
			return fmt.Errorf("updating %s: %w", c.PackageID, err)
		}

		tag := pl.tagFor(p, c)
		for _, id := range c.SourceChangesets {
			if _, ok := released[id]; !ok {
				released[id] = changeset.ReleaseInfo{Version: c.NewVersion, Tag: tag}
			}
		}
	}

	for _, id := range p.ChangesetIDs {
		info, ok := released[id]
		if !ok {
			continue
		}
		if _, err := pl.store.Archive(id, info); err != nil {
			return fmt.Errorf("archiving changeset %s: %w", id, err)
		}
	}
	return nil
}

func (pl *Planner) tagFor(p *plan.Plan, c plan.Change) string {
	if p.Strategy == plan.StrategyUnified {
		tags := p.Tags(pl.cfg.TagTemplate, pl.cfg.UnifiedTagTemplate)
		if len(tags) > 0 {
			return tags[0]
		}
		return ""
	}
	one := plan.Plan{Strategy: p.Strategy, Changes: []plan.Change{c}}
	tags := one.Tags(pl.cfg.TagTemplate, pl.cfg.UnifiedTagTemplate)
	if len(tags) > 0 {
		return tags[0]
	}
	return ""
}
