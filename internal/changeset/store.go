package changeset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"verso/internal/fsio"
	"verso/internal/version"
)

// DuplicateForBranchError indicates a pending changeset already exists for
// the branch.
type DuplicateForBranchError struct {
	Branch     string
	ExistingID string
}

func (e *DuplicateForBranchError) Error() string {
	return fmt.Sprintf("a pending changeset already exists for branch %s (id %s)", e.Branch, e.ExistingID)
}

// NotFoundError indicates no changeset matched an id or branch.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("changeset not found: %s", e.Key)
}

// ValidationError indicates a changeset spec or patch is malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid changeset %s: %s", e.Field, e.Reason)
}

// AtomicWriteError indicates a store write could not be committed.
type AtomicWriteError struct {
	Path string
	Err  error
}

func (e *AtomicWriteError) Error() string {
	return fmt.Sprintf("atomic write failed for %s: %v", e.Path, e.Err)
}

func (e *AtomicWriteError) Unwrap() error { return e.Err }

const historyDir = "history"

// Store persists one YAML file per active changeset under dir, keyed by a
// branch-derived name, and one file per archived changeset under
// dir/history. The backing directory is re-read on every operation so each
// process invocation sees the current state; writes are temp-file + rename.
type Store struct {
	dir string
	log *logrus.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{dir: dir, log: log}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) activePath(branch string) string {
	name := fmt.Sprintf("%s-%s.yaml", version.SanitizeBranch(branch), branchHash(branch))
	return filepath.Join(s.dir, name)
}

// branchHash disambiguates branches that sanitize to the same file name
// (e.g. "feature/x" and "feature-x"), so one can never overwrite the other.
func branchHash(branch string) string {
	sum := blake3.Sum256([]byte(branch))
	return fmt.Sprintf("%x", sum[:4])
}

func (s *Store) historyPath(cs *Changeset) string {
	name := fmt.Sprintf("%s-%s.yaml", version.SanitizeBranch(cs.Branch), cs.ID)
	return filepath.Join(s.dir, historyDir, name)
}

// Create stores a new pending changeset. Exactly one pending changeset per
// branch is allowed; the uniqueness check runs against the active directory
// at create time.
func (s *Store) Create(spec Spec) (*Changeset, error) {
	if spec.Branch == "" {
		return nil, &ValidationError{Field: "branch", Reason: "must not be empty"}
	}

	existing, err := s.findByBranch(spec.Branch)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateForBranchError{Branch: spec.Branch, ExistingID: existing.ID}
	}

	now := NowMs()
	cs := &Changeset{
		ID:           NewID(spec.Branch, now),
		Branch:       spec.Branch,
		Bump:         spec.Bump,
		Packages:     spec.Packages,
		Environments: spec.Environments,
		Commits:      spec.Commits,
		Message:      spec.Message,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.write(s.activePath(cs.Branch), cs); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": cs.ID, "branch": cs.Branch}).Debug("changeset created")
	return cs, nil
}

// Get returns the active changeset matching an id or branch name.
func (s *Store) Get(idOrBranch string) (*Changeset, error) {
	all, err := s.readActive()
	if err != nil {
		return nil, err
	}
	for _, cs := range all {
		if cs.ID == idOrBranch || cs.Branch == idOrBranch {
			return cs, nil
		}
	}
	return nil, &NotFoundError{Key: idOrBranch}
}

// Update applies a patch to an active changeset. Commits and Packages are
// append-only unions; Bump, Environments, and Message replace only when the
// patch sets them.
func (s *Store) Update(idOrBranch string, patch Patch) (*Changeset, error) {
	cs, err := s.Get(idOrBranch)
	if err != nil {
		return nil, err
	}

	cs.Packages = unionAppend(cs.Packages, patch.Packages)
	cs.Commits = unionAppend(cs.Commits, patch.Commits)
	if patch.Bump != nil {
		cs.Bump = *patch.Bump
	}
	if patch.Environments != nil {
		cs.Environments = patch.Environments
	}
	if patch.Message != nil {
		cs.Message = *patch.Message
	}
	cs.UpdatedAt = NowMs()

	if err := s.write(s.activePath(cs.Branch), cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// List returns active changesets matching the filter, ordered by branch.
func (s *Store) List(f Filter) ([]*Changeset, error) {
	all, err := s.readActive()
	if err != nil {
		return nil, err
	}
	var out []*Changeset
	for _, cs := range all {
		if f.Matches(cs) {
			out = append(out, cs)
		}
	}
	return out, nil
}

// Delete removes an active changeset by id or branch.
func (s *Store) Delete(idOrBranch string) error {
	cs, err := s.Get(idOrBranch)
	if err != nil {
		return err
	}
	if err := os.Remove(s.activePath(cs.Branch)); err != nil {
		return fmt.Errorf("removing changeset file: %w", err)
	}
	s.log.WithField("id", cs.ID).Debug("changeset deleted")
	return nil
}

// Archive moves a changeset into the history store with release metadata.
// The history entry is written before the active record is removed, so a
// crash between the two steps duplicates rather than loses data. Archiving
// is irreversible.
func (s *Store) Archive(idOrBranch string, release ReleaseInfo) (*Archived, error) {
	cs, err := s.Get(idOrBranch)
	if err != nil {
		return nil, err
	}
	if release.ReleasedAt == 0 {
		release.ReleasedAt = NowMs()
	}

	archived := &Archived{Changeset: *cs, Release: release}
	archived.Status = StatusArchived
	archived.UpdatedAt = NowMs()

	if err := s.write(s.historyPath(cs), archived); err != nil {
		return nil, err
	}
	if err := os.Remove(s.activePath(cs.Branch)); err != nil {
		return nil, fmt.Errorf("removing active changeset after archive: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"id":      cs.ID,
		"version": release.Version,
		"tag":     release.Tag,
	}).Debug("changeset archived")
	return archived, nil
}

// History returns all archived changesets, ordered by file name.
func (s *Store) History() ([]*Archived, error) {
	dir := filepath.Join(s.dir, historyDir)
	names, err := fsio.ListFiles(dir, ".yaml")
	if err != nil {
		return nil, err
	}
	var out []*Archived
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading history entry %s: %w", name, err)
		}
		var a Archived
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parsing history entry %s: %w", name, err)
		}
		out = append(out, &a)
	}
	return out, nil
}

// findByBranch returns the active changeset for a branch, or nil.
func (s *Store) findByBranch(branch string) (*Changeset, error) {
	all, err := s.readActive()
	if err != nil {
		return nil, err
	}
	for _, cs := range all {
		if cs.Branch == branch {
			return cs, nil
		}
	}
	return nil, nil
}

// readActive loads every active changeset file. No handles are cached; the
// directory is the source of truth for each operation.
func (s *Store) readActive() ([]*Changeset, error) {
	names, err := fsio.ListFiles(s.dir, ".yaml")
	if err != nil {
		return nil, err
	}
	var out []*Changeset
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading changeset %s: %w", name, err)
		}
		var cs Changeset
		if err := yaml.Unmarshal(data, &cs); err != nil {
			return nil, fmt.Errorf("parsing changeset %s: %w", name, err)
		}
		out = append(out, &cs)
	}
	return out, nil
}

func (s *Store) write(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &AtomicWriteError{Path: path, Err: err}
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling changeset: %w", err)
	}
	if err := fsio.WriteFileAtomic(path, data, 0644); err != nil {
		return &AtomicWriteError{Path: path, Err: err}
	}
	return nil
}
