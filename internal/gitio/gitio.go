// Package gitio provides Git repository I/O operations using go-git.
package gitio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// NotARepositoryError indicates the path is not inside a Git repository.
type NotARepositoryError struct {
	Path string
}

func (e *NotARepositoryError) Error() string {
	return fmt.Sprintf("not a git repository: %s", e.Path)
}

// RefNotFoundError indicates a reference could not be resolved to a commit.
type RefNotFoundError struct {
	Ref string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("git ref not found: %s", e.Ref)
}

// CommitInfo describes one commit in a range.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	Timestamp time.Time
}

// Repository wraps a go-git repository.
type Repository struct {
	repo *git.Repository
	path string
}

// Open opens an existing Git repository.
func Open(repoPath string) (*Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, &NotARepositoryError{Path: repoPath}
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repository{repo: repo, path: repoPath}, nil
}

// ResolveRef resolves a branch name, tag, or commit hash to a commit.
func (r *Repository) ResolveRef(refName string) (*object.Commit, error) {
	if refName == "" || refName == "HEAD" {
		return r.headCommit()
	}

	// Try as a branch first
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(refName), true)
	if err == nil {
		return r.commitAt(ref.Hash())
	}

	// Try as a tag
	ref, err = r.repo.Reference(plumbing.NewTagReferenceName(refName), true)
	if err == nil {
		return r.commitAt(ref.Hash())
	}

	// Try as a commit hash or revision expression
	hash, err := r.repo.ResolveRevision(plumbing.Revision(refName))
	if err == nil {
		return r.commitAt(*hash)
	}

	return nil, &RefNotFoundError{Ref: refName}
}

func (r *Repository) commitAt(hash plumbing.Hash) (*object.Commit, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", hash, err)
	}
	return commit, nil
}

func (r *Repository) headCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, &RefNotFoundError{Ref: "HEAD"}
	}
	return r.commitAt(head.Hash())
}

// CurrentBranch returns the short name of the checked-out branch, or the
// short commit hash when HEAD is detached.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return head.Hash().String()[:7], nil
}

// BranchExists reports whether a local branch with the given name exists.
func (r *Repository) BranchExists(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("checking branch %s: %w", name, err)
}

// DiffFiles returns the paths of files that differ between two refs,
// deduplicated and sorted ascending. Deleted paths come from the base side,
// added and modified paths from the head side. An empty untilRef means HEAD.
func (r *Repository) DiffFiles(sinceRef, untilRef string) ([]string, error) {
	base, err := r.ResolveRef(sinceRef)
	if err != nil {
		return nil, err
	}
	head, err := r.ResolveRef(untilRef)
	if err != nil {
		return nil, err
	}

	baseTree, err := base.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting base tree: %w", err)
	}
	headTree, err := head.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting head tree: %w", err)
	}

	changes, err := baseTree.Diff(headTree)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}

	seen := make(map[string]bool)
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert, merkletrie.Modify:
			seen[change.To.Name] = true
		case merkletrie.Delete:
			seen[change.From.Name] = true
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// CommitsBetween returns the commits reachable from untilRef back to
// sinceRef, oldest first, excluding sinceRef itself. When sinceRef is not
// an ancestor of untilRef the walk stops at their merge base instead, so a
// diverged base never yields the head's entire history.
func (r *Repository) CommitsBetween(sinceRef, untilRef string) ([]CommitInfo, error) {
	base, err := r.ResolveRef(sinceRef)
	if err != nil {
		return nil, err
	}
	head, err := r.ResolveRef(untilRef)
	if err != nil {
		return nil, err
	}

	stop := map[plumbing.Hash]bool{base.Hash: true}
	if bases, err := base.MergeBase(head); err == nil {
		for _, b := range bases {
			stop[b.Hash] = true
		}
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if stop[c.Hash] {
			return storer.ErrStop
		}
		commits = append(commits, CommitInfo{
			Hash:      c.Hash.String(),
			Message:   c.Message,
			Author:    c.Author.Name,
			Timestamp: c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("walking commits: %w", err)
	}

	// Log order is newest first; callers record commit history oldest first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// CommitFiles returns the paths touched by a single commit (diff against
// its first parent; the full tree for a root commit), sorted ascending.
func (r *Repository) CommitFiles(hash string) ([]string, error) {
	commit, err := r.ResolveRef(hash)
	if err != nil {
		return nil, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}

	if commit.NumParents() == 0 {
		var paths []string
		err := tree.Files().ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("listing root tree: %w", err)
		}
		sort.Strings(paths)
		return paths, nil
	}

	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("getting parent: %w", err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting parent tree: %w", err)
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, fmt.Errorf("computing commit diff: %w", err)
	}

	seen := make(map[string]bool)
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert, merkletrie.Modify:
			seen[change.To.Name] = true
		case merkletrie.Delete:
			seen[change.From.Name] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// MergeBase returns the hash of the best common ancestor of two refs.
func (r *Repository) MergeBase(a, b string) (string, error) {
	ca, err := r.ResolveRef(a)
	if err != nil {
		return "", err
	}
	cb, err := r.ResolveRef(b)
	if err != nil {
		return "", err
	}

	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", fmt.Errorf("computing merge base: %w", err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("no common ancestor between %s and %s", a, b)
	}
	return bases[0].Hash.String(), nil
}
