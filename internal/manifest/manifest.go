// Package manifest loads package manifests (package.json) and workspace
// layouts, and writes version fields back without disturbing the rest of
// the document.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"verso/internal/fsio"
)

// Kind identifies the package manager in use.
type Kind string

const (
	KindNpm     Kind = "npm"
	KindYarn    Kind = "yarn"
	KindPnpm    Kind = "pnpm"
	KindUnknown Kind = "unknown"
)

// Package is one workspace package, loaded fresh from its manifest at the
// start of an invocation and immutable afterwards.
type Package struct {
	ID              string
	Version         string
	Path            string // slash-separated path relative to the workspace root; "." for the root
	Dependencies    map[string]string
	DevDependencies map[string]string
	Internal        []string // ids of workspace-internal deps (regular and dev), ascending
	Manager         Kind
}

// ReadPackage parses the package.json in dir.
func ReadPackage(dir string) (*Package, error) {
	manifestPath := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parsing %s: invalid JSON", manifestPath)
	}

	doc := gjson.ParseBytes(data)
	name := doc.Get("name").String()
	if name == "" {
		return nil, fmt.Errorf("manifest %s has no name", manifestPath)
	}

	pkg := &Package{
		ID:              name,
		Version:         doc.Get("version").String(),
		Dependencies:    depMap(doc.Get("dependencies")),
		DevDependencies: depMap(doc.Get("devDependencies")),
		Manager:         DetectManager(dir),
	}
	return pkg, nil
}

func depMap(result gjson.Result) map[string]string {
	if !result.IsObject() {
		return nil
	}
	deps := make(map[string]string)
	result.ForEach(func(key, value gjson.Result) bool {
		deps[key.String()] = value.String()
		return true
	})
	return deps
}

// DetectManager infers the package manager from lockfiles in dir.
func DetectManager(dir string) Kind {
	switch {
	case exists(filepath.Join(dir, "pnpm-lock.yaml")):
		return KindPnpm
	case exists(filepath.Join(dir, "yarn.lock")):
		return KindYarn
	case exists(filepath.Join(dir, "package-lock.json")):
		return KindNpm
	default:
		return KindUnknown
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Workspace is the set of packages under one repository root.
type Workspace struct {
	Root     string
	Packages []*Package
}

// pnpmWorkspaceConfig mirrors pnpm-workspace.yaml.
type pnpmWorkspaceConfig struct {
	Packages []string `yaml:"packages"`
}

// DiscoverWorkspace loads all packages under root. Monorepo globs come from
// the root package.json "workspaces" field (array or {packages: []}) or from
// pnpm-workspace.yaml. A root with no workspace globs is a single-package
// project.
func DiscoverWorkspace(root string) (*Workspace, error) {
	patterns, err := workspacePatterns(root)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{Root: root}

	if len(patterns) == 0 {
		pkg, err := ReadPackage(root)
		if err != nil {
			return nil, err
		}
		pkg.Path = "."
		ws.Packages = []*Package{pkg}
		classifyInternal(ws.Packages)
		return ws, nil
	}

	seen := make(map[string]bool)
	rootManager := DetectManager(root)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("expanding workspace glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			if !exists(filepath.Join(match, "package.json")) {
				continue
			}
			rel, err := filepath.Rel(root, match)
			if err != nil {
				return nil, fmt.Errorf("computing package path: %w", err)
			}
			rel = filepath.ToSlash(rel)
			if seen[rel] {
				continue
			}
			seen[rel] = true

			pkg, err := ReadPackage(match)
			if err != nil {
				return nil, fmt.Errorf("loading package at %s: %w", rel, err)
			}
			pkg.Path = rel
			if pkg.Manager == KindUnknown {
				pkg.Manager = rootManager
			}
			ws.Packages = append(ws.Packages, pkg)
		}
	}

	sort.Slice(ws.Packages, func(i, j int) bool {
		return ws.Packages[i].ID < ws.Packages[j].ID
	})
	classifyInternal(ws.Packages)
	return ws, nil
}

// workspacePatterns returns the monorepo globs, or nil for single-package roots.
func workspacePatterns(root string) ([]string, error) {
	pnpmPath := filepath.Join(root, "pnpm-workspace.yaml")
	if exists(pnpmPath) {
		data, err := os.ReadFile(pnpmPath)
		if err != nil {
			return nil, fmt.Errorf("reading pnpm-workspace.yaml: %w", err)
		}
		var cfg pnpmWorkspaceConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing pnpm-workspace.yaml: %w", err)
		}
		return cfg.Packages, nil
	}

	manifestPath := filepath.Join(root, "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading root manifest: %w", err)
	}
	field := gjson.GetBytes(data, "workspaces")
	switch {
	case field.IsArray():
		return stringArray(field), nil
	case field.IsObject():
		return stringArray(field.Get("packages")), nil
	default:
		return nil, nil
	}
}

func stringArray(result gjson.Result) []string {
	var out []string
	for _, v := range result.Array() {
		out = append(out, v.String())
	}
	return out
}

// classifyInternal fills each package's Internal list: declared deps
// (regular and dev) whose name is another workspace package.
func classifyInternal(pkgs []*Package) {
	names := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		names[p.ID] = true
	}
	for _, p := range pkgs {
		set := make(map[string]bool)
		for dep := range p.Dependencies {
			if names[dep] && dep != p.ID {
				set[dep] = true
			}
		}
		for dep := range p.DevDependencies {
			if names[dep] && dep != p.ID {
				set[dep] = true
			}
		}
		internal := make([]string, 0, len(set))
		for dep := range set {
			internal = append(internal, dep)
		}
		sort.Strings(internal)
		p.Internal = internal
	}
}

// Package returns the workspace package with the given id, or nil.
func (w *Workspace) Package(id string) *Package {
	for _, p := range w.Packages {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// WriteVersion rewrites the version field of the package.json in dir,
// preserving every other byte of the document. The write is atomic.
func WriteVersion(dir, newVersion string) error {
	manifestPath := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	updated, err := sjson.SetBytes(data, "version", newVersion)
	if err != nil {
		return fmt.Errorf("setting version field: %w", err)
	}
	if err := fsio.WriteFileAtomic(manifestPath, updated, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// OwnerOf maps a slash-separated file path to the package owning it by
// longest-path-prefix match. Returns "" when no package owns the file.
func (w *Workspace) OwnerOf(file string) string {
	file = strings.TrimPrefix(filepath.ToSlash(file), "./")
	best := ""
	bestLen := -1
	for _, p := range w.Packages {
		switch {
		case p.Path == "." || p.Path == "":
			if bestLen < 0 {
				best = p.ID
				bestLen = 0
			}
		case file == p.Path || strings.HasPrefix(file, p.Path+"/"):
			if len(p.Path) > bestLen {
				best = p.ID
				bestLen = len(p.Path)
			}
		}
	}
	return best
}
