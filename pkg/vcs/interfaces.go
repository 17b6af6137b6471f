// Package vcs provides the contract between the content synchronization core
// and a version control working copy.
//
// The core never talks to git (or any other backend) directly. It drives a
// Repository, which wraps a single working copy on disk together with the
// remote it tracks. Implementations are not required to be thread-safe;
// callers serialize access to one working copy.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoRevision is returned by Repository.Revision when the current
	// branch has no commits yet, e.g. right after an orphan checkout.
	ErrNoRevision = errors.New("no revision")

	// ErrNothingToCommit is returned by Repository.Commit when no change is
	// staged.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrUncommittedChanges is returned by Repository.Update when the remote
	// branch moved while tracked files of the working copy carry local
	// modifications. The working copy stays on its previous revision.
	ErrUncommittedChanges = errors.New("working copy has uncommitted changes")
)

// PushRejectedError is returned by Repository.Commit when the remote did not
// accept the commit because its branch moved in the meantime. The local commit
// has been rolled back when it is returned.
type PushRejectedError struct {
	Branch   string
	Revision string // Revision of the remote branch.
	Err      error
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push of %s rejected, remote is at %s: %v", e.Branch, e.Revision, e.Err)
}

func (e *PushRejectedError) Unwrap() error {
	return e.Err
}

// CheckoutOptions select what Repository.Checkout does. An empty Branch on a
// missing working copy means "clone the remote default branch".
type CheckoutOptions struct {
	Branch string
	Orphan bool // Create Branch without history instead of switching to it.
}

// UpdateOptions select what Repository.Update pulls.
type UpdateOptions struct {
	Branch string // Branch to pull. Ignored when All is set.
	Remote string // Remote name, the implementation default when empty.
	All    bool   // Fetch every remote branch and fast-forward the current one.
}

// Commit describes one entry of the repository history.
type Commit struct {
	Revision string    `json:"revision"`
	Author   string    `json:"author"`
	Email    string    `json:"email"`
	Date     time.Time `json:"date"`
	Message  string    `json:"message"`
}

// Repository defines the operations the synchronization core needs from a
// version control backend.
type Repository interface {
	// URL returns the remote URL. An empty URL means the repository is not
	// configured.
	URL() string

	// Branch returns the branch the working copy is on, including an unborn
	// branch created by an orphan checkout.
	Branch() (string, error)

	// Revision returns the revision of the working copy. It returns
	// ErrNoRevision when the current branch has no commits.
	Revision() (string, error)

	// IsCreated reports whether the working copy exists on disk.
	IsCreated() bool

	// HasBranch reports whether the branch exists locally or on the remote.
	HasBranch(name string) (bool, error)

	Checkout(ctx context.Context, opts CheckoutOptions) error

	// Create initializes an empty working copy tracking URL.
	Create(ctx context.Context) error

	// Update pulls the remote into the working copy. A failed update leaves
	// the working copy on the revision it had before.
	Update(ctx context.Context, opts UpdateOptions) error

	// Add stages every change of the working copy, including removals.
	Add(ctx context.Context) error

	// Commit records the staged changes and publishes them to the remote
	// when the implementation is configured to do so. A commit the remote
	// does not accept is rolled back, with a *PushRejectedError when the
	// remote branch moved.
	Commit(ctx context.Context, message string) error

	// Remove deletes a path, relative to the working copy root, from disk
	// and from the staging area.
	Remove(ctx context.Context, path string) error

	// Reset moves the working copy back to the given revision, discarding
	// anything newer.
	Reset(ctx context.Context, revision string) error

	// Commits lists at most limit commits starting at from, or at the
	// current revision when from is empty.
	Commits(ctx context.Context, from string, limit int) ([]Commit, error)

	WorkingCopy() WorkingCopy
}

// WorkingCopy gives file level access to the working copy directory.
type WorkingCopy interface {
	// Path returns the working copy root on disk.
	Path() string

	// List returns the names of the top-level entries, VCS metadata included.
	List() ([]string, error)

	// CopyTo copies the whole working copy, VCS metadata included, into dir.
	CopyTo(dir string) error

	// Clear deletes every top-level entry for which keep returns false.
	Clear(keep func(name string) bool) error

	// WriteFile writes data to a path relative to the root, creating parent
	// directories as needed.
	WriteFile(path string, data []byte) error
}
