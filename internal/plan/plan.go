// Package plan defines the versioning plan: the ordered set of package
// version changes produced by one resolution pass.
package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"verso/internal/pkggraph"
	"verso/internal/version"
)

// Strategy selects how target versions are computed. The set is closed:
// exactly Independent and Unified exist, and every switch over it carries
// an error default.
type Strategy string

const (
	StrategyIndependent Strategy = "independent"
	StrategyUnified     Strategy = "unified"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "independent", "":
		return StrategyIndependent, nil
	case "unified":
		return StrategyUnified, nil
	default:
		return "", fmt.Errorf("unknown strategy: %q (use independent or unified)", s)
	}
}

// Reason explains why a package's version changes.
type Reason string

const (
	ReasonDirect     Reason = "direct"
	ReasonPropagated Reason = "propagated"
	ReasonUnified    Reason = "unified"
)

// Change is one package's version transition within a plan.
type Change struct {
	PackageID        string       `json:"package" yaml:"package"`
	OldVersion       string       `json:"oldVersion" yaml:"oldVersion"`
	NewVersion       string       `json:"newVersion" yaml:"newVersion"`
	Bump             version.Bump `json:"-" yaml:"-"`
	BumpName         string       `json:"bump" yaml:"bump"`
	Reason           Reason       `json:"reason" yaml:"reason"`
	WillBump         bool         `json:"willBump" yaml:"willBump"`
	SourceChangesets []string     `json:"sourceChangesets,omitempty" yaml:"sourceChangesets,omitempty"`
}

// Plan is the complete, immutable result of one resolution pass. A plan
// never mixes strategies and never lists a package twice.
type Plan struct {
	ID           string   `json:"id" yaml:"id"`
	Strategy     Strategy `json:"strategy" yaml:"strategy"`
	Changes      []Change `json:"changes" yaml:"changes"`
	ChangesetIDs []string `json:"changesetIds,omitempty" yaml:"changesetIds,omitempty"`
	ComputedAt   int64    `json:"computedAt" yaml:"computedAt"`
}

// New creates an empty plan for a strategy.
func New(strategy Strategy) *Plan {
	return &Plan{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		ComputedAt: time.Now().UnixMilli(),
	}
}

// Add appends a change, keeping BumpName in sync.
func (p *Plan) Add(c Change) {
	c.BumpName = c.Bump.String()
	p.Changes = append(p.Changes, c)
}

// Bumped returns only the changes that will actually bump.
func (p *Plan) Bumped() []Change {
	var out []Change
	for _, c := range p.Changes {
		if c.WillBump {
			out = append(out, c)
		}
	}
	return out
}

// Sort orders the changes topologically over the graph: dependencies before
// dependents, cyclic groups kept together and internally ascending, so a
// manifest writer always updates a dependency before anything referencing
// its new version.
func (p *Plan) Sort(g *pkggraph.Graph) {
	byID := make(map[string]Change, len(p.Changes))
	ids := make([]string, 0, len(p.Changes))
	for _, c := range p.Changes {
		byID[c.PackageID] = c
		ids = append(ids, c.PackageID)
	}

	order := g.TopoSort(ids)
	ordered := make([]Change, 0, len(p.Changes))
	placed := make(map[string]bool, len(order))
	for _, id := range order {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
			placed[id] = true
		}
	}
	// Changes for packages outside the graph keep a stable tail position.
	var tail []string
	for _, id := range ids {
		if !placed[id] {
			tail = append(tail, id)
		}
	}
	sort.Strings(tail)
	for _, id := range tail {
		ordered = append(ordered, byID[id])
	}
	p.Changes = ordered
}

// Tags renders the tag strings to create for the plan's bumped packages.
// Independent plans produce one tag per bumped package from template
// (placeholders {name}, {version}); unified plans produce a single tag from
// unifiedTemplate (placeholder {version}).
func (p *Plan) Tags(template, unifiedTemplate string) []string {
	switch p.Strategy {
	case StrategyUnified:
		bumped := p.Bumped()
		if len(bumped) == 0 {
			return nil
		}
		return []string{strings.ReplaceAll(unifiedTemplate, "{version}", bumped[0].NewVersion)}
	default:
		var tags []string
		for _, c := range p.Bumped() {
			tag := strings.NewReplacer(
				"{name}", c.PackageID,
				"{version}", c.NewVersion,
			).Replace(template)
			tags = append(tags, tag)
		}
		return tags
	}
}
