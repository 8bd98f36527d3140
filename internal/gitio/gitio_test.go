package gitio

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	return dir, repo
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content, message string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("adding %s: %v", name, err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("committing: %v", err)
	}
	return hash.String()
}

func TestOpen(t *testing.T) {
	dir, _ := initRepo(t)

	if _, err := Open(dir); err != nil {
		t.Errorf("Open on a repository: %v", err)
	}

	_, err := Open(t.TempDir())
	var notRepo *NotARepositoryError
	if !errors.As(err, &notRepo) {
		t.Errorf("Open on a plain dir = %v, expected NotARepositoryError", err)
	}
}

func TestResolveRef(t *testing.T) {
	dir, repo := initRepo(t)
	first := commitFile(t, repo, dir, "a.txt", "one", "first")
	second := commitFile(t, repo, dir, "b.txt", "two", "second")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("HEAD", func(t *testing.T) {
		c, err := r.ResolveRef("HEAD")
		if err != nil {
			t.Fatalf("ResolveRef(HEAD): %v", err)
		}
		if c.Hash.String() != second {
			t.Errorf("HEAD = %s, expected %s", c.Hash, second)
		}
	})

	t.Run("empty means HEAD", func(t *testing.T) {
		c, err := r.ResolveRef("")
		if err != nil {
			t.Fatalf("ResolveRef(\"\"): %v", err)
		}
		if c.Hash.String() != second {
			t.Errorf("resolved %s", c.Hash)
		}
	})

	t.Run("commit hash", func(t *testing.T) {
		c, err := r.ResolveRef(first)
		if err != nil {
			t.Fatalf("ResolveRef(hash): %v", err)
		}
		if c.Hash.String() != first {
			t.Errorf("resolved %s, expected %s", c.Hash, first)
		}
	})

	t.Run("unknown ref", func(t *testing.T) {
		_, err := r.ResolveRef("does-not-exist")
		var notFound *RefNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("expected RefNotFoundError, got %v", err)
		}
	})
}

func TestCurrentBranch(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, repo, dir, "a.txt", "one", "first")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "master" && branch != "main" {
		t.Errorf("CurrentBranch = %s", branch)
	}

	ok, err := r.BranchExists(branch)
	if err != nil || !ok {
		t.Errorf("BranchExists(%s) = %v, %v", branch, ok, err)
	}
	ok, err = r.BranchExists("nope")
	if err != nil || ok {
		t.Errorf("BranchExists(nope) = %v, %v", ok, err)
	}
}

func TestDiffFiles(t *testing.T) {
	dir, repo := initRepo(t)
	base := commitFile(t, repo, dir, "packages/core/index.ts", "v1", "core v1")
	commitFile(t, repo, dir, "packages/core/index.ts", "v2", "core v2")
	commitFile(t, repo, dir, "packages/utils/lib.ts", "new", "add utils")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	files, err := r.DiffFiles(base, "HEAD")
	if err != nil {
		t.Fatalf("DiffFiles: %v", err)
	}
	expected := []string{"packages/core/index.ts", "packages/utils/lib.ts"}
	if !reflect.DeepEqual(files, expected) {
		t.Errorf("DiffFiles = %v, expected %v", files, expected)
	}
}

func TestDiffFiles_NoChanges(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, repo, dir, "a.txt", "one", "first")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	files, err := r.DiffFiles("HEAD", "HEAD")
	if err != nil {
		t.Fatalf("DiffFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("DiffFiles = %v, expected empty", files)
	}
}

func TestCommitsBetween(t *testing.T) {
	dir, repo := initRepo(t)
	base := commitFile(t, repo, dir, "a.txt", "1", "first")
	second := commitFile(t, repo, dir, "b.txt", "2", "second")
	third := commitFile(t, repo, dir, "c.txt", "3", "third")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	commits, err := r.CommitsBetween(base, "HEAD")
	if err != nil {
		t.Fatalf("CommitsBetween: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, expected 2", len(commits))
	}
	// Oldest first, base excluded.
	if commits[0].Hash != second || commits[1].Hash != third {
		t.Errorf("order = %s, %s", commits[0].Hash, commits[1].Hash)
	}
	if commits[0].Author != "tester" {
		t.Errorf("Author = %s", commits[0].Author)
	}
}

func TestCommitsBetween_DivergedBase(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, repo, dir, "a.txt", "1", "fork point")

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	main, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}

	// Commit on a side branch, then diverge master past the fork point.
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("side"),
		Create: true,
	}); err != nil {
		t.Fatalf("creating side branch: %v", err)
	}
	commitFile(t, repo, dir, "side.txt", "s", "side work")

	if err := wt.Checkout(&git.CheckoutOptions{Branch: main.Name()}); err != nil {
		t.Fatalf("checking out %s: %v", main.Name().Short(), err)
	}
	afterFork := commitFile(t, repo, dir, "b.txt", "2", "main work")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	commits, err := r.CommitsBetween("side", "HEAD")
	if err != nil {
		t.Fatalf("CommitsBetween: %v", err)
	}
	// "side" is not an ancestor of HEAD; the walk must stop at the fork
	// point rather than returning the whole history.
	if len(commits) != 1 || commits[0].Hash != afterFork {
		t.Errorf("commits = %v, expected only the post-fork commit %s", commits, afterFork)
	}
}

func TestCommitFiles(t *testing.T) {
	dir, repo := initRepo(t)
	root := commitFile(t, repo, dir, "a.txt", "1", "first")
	second := commitFile(t, repo, dir, "packages/core/index.ts", "x", "core")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("regular commit diffs against parent", func(t *testing.T) {
		files, err := r.CommitFiles(second)
		if err != nil {
			t.Fatalf("CommitFiles: %v", err)
		}
		if !reflect.DeepEqual(files, []string{"packages/core/index.ts"}) {
			t.Errorf("files = %v", files)
		}
	})

	t.Run("root commit lists the full tree", func(t *testing.T) {
		files, err := r.CommitFiles(root)
		if err != nil {
			t.Fatalf("CommitFiles: %v", err)
		}
		if !reflect.DeepEqual(files, []string{"a.txt"}) {
			t.Errorf("files = %v", files)
		}
	})
}

func TestMergeBase(t *testing.T) {
	dir, repo := initRepo(t)
	base := commitFile(t, repo, dir, "a.txt", "1", "first")
	tip := commitFile(t, repo, dir, "b.txt", "2", "second")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.MergeBase(base, tip)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if got != base {
		t.Errorf("MergeBase = %s, expected %s", got, base)
	}
}
