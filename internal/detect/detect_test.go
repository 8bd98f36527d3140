package detect

import (
	"reflect"
	"testing"

	"verso/internal/gitio"
	"verso/internal/manifest"
	"verso/internal/pkggraph"
)

// fakeGit serves canned diffs and commits.
type fakeGit struct {
	diff    []string
	commits []gitio.CommitInfo
	byHash  map[string][]string
}

func (f *fakeGit) DiffFiles(sinceRef, untilRef string) ([]string, error) {
	return f.diff, nil
}

func (f *fakeGit) CommitsBetween(sinceRef, untilRef string) ([]gitio.CommitInfo, error) {
	return f.commits, nil
}

func (f *fakeGit) CommitFiles(hash string) ([]string, error) {
	return f.byHash[hash], nil
}

func testWorkspace(t *testing.T) (*manifest.Workspace, *pkggraph.Graph) {
	t.Helper()
	pkgs := []*manifest.Package{
		{ID: "@acme/core", Version: "1.2.3", Path: "packages/core"},
		{ID: "@acme/utils", Version: "2.0.1", Path: "packages/utils", Internal: []string{"@acme/core"}},
		{ID: "@acme/app", Version: "0.5.0", Path: "apps/app", Internal: []string{"@acme/utils"}},
	}
	g, err := pkggraph.Build(pkgs)
	if err != nil {
		t.Fatal(err)
	}
	return &manifest.Workspace{Root: "/repo", Packages: pkgs}, g
}

func TestDetectSince(t *testing.T) {
	ws, g := testWorkspace(t)
	git := &fakeGit{
		diff: []string{
			"packages/core/src/index.ts",
			"packages/core/src/util.ts",
			"docs/README.md",
		},
		commits: []gitio.CommitInfo{
			{Hash: "aaa111", Message: "feat: core change"},
			{Hash: "bbb222", Message: "docs: readme"},
		},
		byHash: map[string][]string{
			"aaa111": {"packages/core/src/index.ts"},
			"bbb222": {"docs/README.md"},
		},
	}

	d := NewDetector(git, ws, g, nil)
	analysis, err := d.DetectSince("main", "HEAD")
	if err != nil {
		t.Fatalf("DetectSince: %v", err)
	}

	if !reflect.DeepEqual(analysis.DirectlyAffected, []string{"@acme/core"}) {
		t.Errorf("DirectlyAffected = %v", analysis.DirectlyAffected)
	}
	// Transitive dependents: utils depends on core, app depends on utils.
	if !reflect.DeepEqual(analysis.DependentsAffected, []string{"@acme/app", "@acme/utils"}) {
		t.Errorf("DependentsAffected = %v", analysis.DependentsAffected)
	}
	if len(analysis.Changes) != 1 {
		t.Fatalf("Changes = %v", analysis.Changes)
	}
	change := analysis.Changes[0]
	if change.PackageID != "@acme/core" {
		t.Errorf("PackageID = %s", change.PackageID)
	}
	if len(change.Files) != 2 {
		t.Errorf("Files = %v", change.Files)
	}
	// Only the commit touching the package is attributed to it.
	if !reflect.DeepEqual(change.Commits, []string{"aaa111"}) {
		t.Errorf("Commits = %v", change.Commits)
	}
}

func TestDetectSince_MultiplePackages(t *testing.T) {
	ws, g := testWorkspace(t)
	git := &fakeGit{
		diff: []string{
			"packages/utils/lib.ts",
			"apps/app/main.ts",
		},
	}

	d := NewDetector(git, ws, g, nil)
	analysis, err := d.DetectSince("v1.0.0", "")
	if err != nil {
		t.Fatalf("DetectSince: %v", err)
	}

	if !reflect.DeepEqual(analysis.DirectlyAffected, []string{"@acme/app", "@acme/utils"}) {
		t.Errorf("DirectlyAffected = %v", analysis.DirectlyAffected)
	}
	// utils' only dependent is app, which is already direct.
	if len(analysis.DependentsAffected) != 0 {
		t.Errorf("DependentsAffected = %v, direct packages must not repeat", analysis.DependentsAffected)
	}

	affected := analysis.AffectedPackages()
	if !reflect.DeepEqual(affected, []string{"@acme/app", "@acme/utils"}) {
		t.Errorf("AffectedPackages = %v", affected)
	}
}

func TestDetectSince_EmptyDiff(t *testing.T) {
	ws, g := testWorkspace(t)
	d := NewDetector(&fakeGit{}, ws, g, nil)

	analysis, err := d.DetectSince("main", "HEAD")
	if err != nil {
		t.Fatalf("DetectSince: %v", err)
	}
	if len(analysis.DirectlyAffected) != 0 || len(analysis.DependentsAffected) != 0 || len(analysis.Changes) != 0 {
		t.Errorf("analysis = %+v, expected empty", analysis)
	}
}

func TestDetectSince_UnownedFilesIgnored(t *testing.T) {
	ws, g := testWorkspace(t)
	git := &fakeGit{diff: []string{".github/workflows/ci.yaml", "Makefile"}}
	d := NewDetector(git, ws, g, nil)

	analysis, err := d.DetectSince("main", "HEAD")
	if err != nil {
		t.Fatalf("DetectSince: %v", err)
	}
	if len(analysis.DirectlyAffected) != 0 {
		t.Errorf("DirectlyAffected = %v, repo-level files own no package", analysis.DirectlyAffected)
	}
	if !reflect.DeepEqual(analysis.ChangedFiles, git.diff) {
		t.Errorf("ChangedFiles = %v, raw file list must be preserved", analysis.ChangedFiles)
	}
}
