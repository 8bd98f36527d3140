// Package detect maps changed files in a git ref range to the workspace
// packages they affect, directly and through internal dependents.
package detect

import (
	"sort"

	"github.com/sirupsen/logrus"

	"verso/internal/gitio"
	"verso/internal/manifest"
	"verso/internal/pkggraph"
)

// GitSource is the slice of repository behavior the detector consumes.
// *gitio.Repository satisfies it.
type GitSource interface {
	DiffFiles(sinceRef, untilRef string) ([]string, error)
	CommitsBetween(sinceRef, untilRef string) ([]gitio.CommitInfo, error)
	CommitFiles(hash string) ([]string, error)
}

// PackageChange records what changed inside one package.
type PackageChange struct {
	PackageID string   `json:"package"`
	Files     []string `json:"files"`
	Commits   []string `json:"commits"`
}

// Analysis is the result of change detection over a ref range. All package
// lists are in ascending id order for reproducible output.
type Analysis struct {
	SinceRef           string           `json:"sinceRef"`
	UntilRef           string           `json:"untilRef"`
	ChangedFiles       []string         `json:"changedFiles"`
	DirectlyAffected   []string         `json:"directlyAffected"`
	DependentsAffected []string         `json:"dependentsAffected"`
	Changes            []*PackageChange `json:"changes"`
}

// AffectedPackages returns the union of directly- and dependents-affected
// ids, ascending.
func (a *Analysis) AffectedPackages() []string {
	seen := make(map[string]bool)
	for _, id := range a.DirectlyAffected {
		seen[id] = true
	}
	for _, id := range a.DependentsAffected {
		seen[id] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Detector resolves ref ranges into affected package sets.
type Detector struct {
	git   GitSource
	ws    *manifest.Workspace
	graph *pkggraph.Graph
	log   *logrus.Logger
}

// NewDetector creates a detector. A nil logger falls back to a default one.
func NewDetector(git GitSource, ws *manifest.Workspace, graph *pkggraph.Graph, log *logrus.Logger) *Detector {
	if log == nil {
		log = logrus.New()
	}
	return &Detector{git: git, ws: ws, graph: graph, log: log}
}

// DetectSince computes the change analysis between two refs. An empty
// untilRef means HEAD. An empty diff yields a valid empty analysis.
func (d *Detector) DetectSince(sinceRef, untilRef string) (*Analysis, error) {
	files, err := d.git.DiffFiles(sinceRef, untilRef)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		SinceRef:     sinceRef,
		UntilRef:     untilRef,
		ChangedFiles: files,
	}

	filesByPkg := make(map[string][]string)
	for _, f := range files {
		owner := d.ws.OwnerOf(f)
		if owner == "" {
			continue
		}
		filesByPkg[owner] = append(filesByPkg[owner], f)
	}

	direct := make([]string, 0, len(filesByPkg))
	for id := range filesByPkg {
		direct = append(direct, id)
	}
	sort.Strings(direct)
	analysis.DirectlyAffected = direct

	dependents := make(map[string]bool)
	for _, id := range direct {
		for _, dep := range d.graph.DependentsOf(id) {
			dependents[dep] = true
		}
	}
	for _, id := range direct {
		delete(dependents, id)
	}
	depList := make([]string, 0, len(dependents))
	for id := range dependents {
		depList = append(depList, id)
	}
	sort.Strings(depList)
	analysis.DependentsAffected = depList

	commitsByPkg, err := d.commitsByPackage(sinceRef, untilRef)
	if err != nil {
		return nil, err
	}
	for _, id := range direct {
		analysis.Changes = append(analysis.Changes, &PackageChange{
			PackageID: id,
			Files:     filesByPkg[id],
			Commits:   commitsByPkg[id],
		})
	}

	d.log.WithFields(logrus.Fields{
		"since":      sinceRef,
		"files":      len(files),
		"direct":     len(direct),
		"dependents": len(depList),
	}).Debug("change detection complete")

	return analysis, nil
}

// commitsByPackage attributes each commit in the range to the packages whose
// files it touched, preserving range order (oldest first).
func (d *Detector) commitsByPackage(sinceRef, untilRef string) (map[string][]string, error) {
	commits, err := d.git.CommitsBetween(sinceRef, untilRef)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string)
	for _, c := range commits {
		files, err := d.git.CommitFiles(c.Hash)
		if err != nil {
			return nil, err
		}
		touched := make(map[string]bool)
		for _, f := range files {
			owner := d.ws.OwnerOf(f)
			if owner != "" {
				touched[owner] = true
			}
		}
		for id := range touched {
			out[id] = append(out[id], c.Hash)
		}
	}
	return out, nil
}
