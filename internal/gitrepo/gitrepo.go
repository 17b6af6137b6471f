// gitrepo package implements the version control gateway on top of go-git. It maintains a single working
// copy on disk and the remote it tracks. This package implements no locking, it is expected that the caller
// serializes every operation against one working copy. The Repository is not thread-safe.
package gitrepo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/logging"
	"github.com/content-control-plane/ccp/pkg/vcs"
)

func init() {
	// For Azure DevOps compatibility. More details: https://github.com/go-git/go-git/issues/64
	transport.UnsupportedCapabilities = []capability.Capability{
		capability.ThinPack,
	}
}

var _ vcs.Repository = (*Repository)(nil)

type Repository struct {
	path   string
	config *config.Repository
	gh     github
	log    *logging.Logger
	wc     *workingCopy
}

// New creates a new Repository for the configured working copy. Nothing is read or written until the first
// operation. If the path does not exist, the first Checkout or Create creates it.
func New(cfg *config.Repository) *Repository {
	path := filepath.Clean(cfg.Path)
	return &Repository{
		path:   path,
		config: cfg,
		log:    logging.NewNop(),
		wc:     newWorkingCopy(path),
	}
}

func (r *Repository) WithLogger(log *logging.Logger) *Repository {
	r.log = log
	return r
}

func (r *Repository) URL() string {
	return r.config.URL
}

func (r *Repository) WorkingCopy() vcs.WorkingCopy {
	return r.wc
}

func (r *Repository) IsCreated() bool {
	_, err := git.PlainOpen(r.path)
	return err == nil
}

// Branch returns the branch HEAD points at. Unborn branches are reported too.
func (r *Repository) Branch() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", err
	}

	if head.Type() != plumbing.SymbolicReference {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash())
	}

	return head.Target().Short(), nil
}

func (r *Repository) Revision() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", vcs.ErrNoRevision
	} else if err != nil {
		return "", err
	}

	return head.Hash().String(), nil
}

// HasBranch reports whether the branch exists locally or as a remote-tracking branch of the configured remote.
func (r *Repository) HasBranch(name string) (bool, error) {
	repo, err := r.open()
	if err != nil {
		return false, err
	}

	for _, ref := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewRemoteReferenceName(r.config.RemoteName(), name),
	} {
		_, err := repo.Reference(ref, true)
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, plumbing.ErrReferenceNotFound):
			return false, err
		}
	}

	return false, nil
}

// Checkout clones the remote when the working copy does not exist yet. Otherwise it switches to the branch,
// creating a local tracking branch from the remote one if needed, or points HEAD at a new unborn branch when
// Orphan is set.
func (r *Repository) Checkout(ctx context.Context, opts vcs.CheckoutOptions) error {
	if !r.IsCreated() {
		return r.clone(ctx, opts.Branch)
	}

	if opts.Branch == "" {
		return errors.New("checkout: branch is required on an existing working copy")
	}

	repo, err := r.open()
	if err != nil {
		return err
	}

	branchRef := plumbing.NewBranchReferenceName(opts.Branch)

	if opts.Orphan {
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
			return err
		}

		// Nothing of the previous branch is staged on the new one.
		if err := repo.Storer.SetIndex(&index.Index{Version: 2}); err != nil {
			return err
		}

		r.log.Debugf("checked out orphan branch %q", opts.Branch)
		return nil
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	co := &git.CheckoutOptions{
		Branch: branchRef,
		Force:  true, // Discard any local changes
	}

	if _, err := repo.Reference(branchRef, true); errors.Is(err, plumbing.ErrReferenceNotFound) {
		remote := r.config.RemoteName()
		remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, opts.Branch), true)
		if err != nil {
			return fmt.Errorf("branch %q: %w", opts.Branch, err)
		}

		co.Create = true
		co.Hash = remoteRef.Hash()

		if err := repo.CreateBranch(&gitconfig.Branch{Name: opts.Branch, Remote: remote, Merge: branchRef}); err != nil && !errors.Is(err, git.ErrBranchExists) {
			return err
		}
	} else if err != nil {
		return err
	}

	if err := w.Checkout(co); err != nil {
		return err
	}

	r.log.Debugf("checked out branch %q", opts.Branch)
	return nil
}

func (r *Repository) clone(ctx context.Context, branch string) error {
	authMethod, err := r.auth(ctx)
	if err != nil {
		return err
	}

	opts := &git.CloneOptions{
		URL:        r.config.URL,
		Auth:       authMethod,
		RemoteName: r.config.RemoteName(),
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	if _, err := git.PlainCloneContext(ctx, r.path, false, opts); err != nil {
		return err
	}

	r.log.Debugf("cloned %s into %s", r.config.URL, r.path)
	return nil
}

// Create initializes an empty working copy with the configured remote.
func (r *Repository) Create(context.Context) error {
	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return err
	}

	repo, err := git.PlainInit(r.path, false)
	if err != nil {
		return err
	}

	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: r.config.RemoteName(),
		URLs: []string{r.config.URL},
	}); err != nil {
		return err
	}

	r.log.Debugf("created empty working copy in %s", r.path)
	return nil
}

// Update pulls the given branch into the current one. With All set, every remote branch is fetched first and
// the current branch is fast-forwarded to its remote counterpart. A remote without the branch, or without any
// commit at all, is not an error. A failed pull leaves the branch on its previous revision; when the remote moved
// while tracked files carry local modifications the error wraps vcs.ErrUncommittedChanges.
func (r *Repository) Update(ctx context.Context, opts vcs.UpdateOptions) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	authMethod, err := r.auth(ctx)
	if err != nil {
		return err
	}

	remote := cmp.Or(opts.Remote, r.config.RemoteName())
	branch := opts.Branch

	if opts.All {
		err := repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: remote,
			Auth:       authMethod,
			Force:      true,
			RefSpecs: []gitconfig.RefSpec{
				gitconfig.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remote)),
			},
		})
		if err != nil && !ignorable(err) {
			return err
		}
		branch = ""
	}

	if branch == "" {
		if branch, err = r.Branch(); err != nil {
			return err
		}
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	// A pull moves the branch before it updates the worktree, so a failing
	// pull can leave HEAD ahead of the files on disk.
	head, before, err := headTarget(repo)
	if err != nil {
		return err
	}

	err = w.PullContext(ctx, &git.PullOptions{
		RemoteName:    remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Auth:          authMethod,
	})
	if err != nil && !ignorable(err) {
		discard := before != nil && !errors.Is(err, git.ErrUnstagedChanges)
		if rerr := r.restore(repo, w, head, before, discard); rerr != nil {
			return fmt.Errorf("failed to restore %s after failed pull: %w", head.Short(), errors.Join(err, rerr))
		}
		if errors.Is(err, git.ErrUnstagedChanges) {
			return fmt.Errorf("pull %s: %w", branch, vcs.ErrUncommittedChanges)
		}
		return err
	}

	r.log.Debugf("updated branch %q from %s", branch, remote)
	return nil
}

// headTarget returns the branch HEAD points at and its reference, nil for an unborn branch.
func headTarget(repo *git.Repository) (plumbing.ReferenceName, *plumbing.Reference, error) {
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", nil, err
	}

	if head.Type() != plumbing.SymbolicReference {
		return "", nil, fmt.Errorf("HEAD is detached at %s", head.Hash())
	}

	ref, err := repo.Storer.Reference(head.Target())
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return head.Target(), nil, nil
	} else if err != nil {
		return "", nil, err
	}

	return head.Target(), ref, nil
}

// restore points the branch back at ref, or makes it unborn again when ref is nil. Nothing happens when the
// branch did not move. With discard set, the index and the worktree are reset to ref too, or emptied for an
// unborn branch.
func (r *Repository) restore(repo *git.Repository, w *git.Worktree, name plumbing.ReferenceName, ref *plumbing.Reference, discard bool) error {
	current, err := repo.Storer.Reference(name)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		current = nil
	} else if err != nil {
		return err
	}

	switch {
	case current == nil && ref == nil:
		return nil
	case current != nil && ref != nil && current.Hash() == ref.Hash():
		return nil
	}

	if ref == nil {
		r.log.Warnf("rolling back unborn branch %q from %s", name.Short(), current.Hash())
		if err := repo.Storer.RemoveReference(name); err != nil {
			return err
		}
		if !discard {
			return nil
		}
		if err := repo.Storer.SetIndex(&index.Index{Version: 2}); err != nil {
			return err
		}
		return r.wc.Clear(func(entry string) bool { return entry == git.GitDirName })
	}

	r.log.Warnf("rolling back branch %q to %s", name.Short(), ref.Hash())

	if !discard {
		return repo.Storer.SetReference(plumbing.NewHashReference(name, ref.Hash()))
	}

	return w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()})
}

// ignorable reports the fetch and pull outcomes that leave nothing to do.
func ignorable(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.Is(err, git.NoErrAlreadyUpToDate) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.As(err, &noMatch)
}

func (r *Repository) Add(context.Context) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	status, err := w.Status()
	if err != nil {
		return err
	}

	for path, s := range status {
		switch s.Worktree {
		case git.Unmodified:
		case git.Deleted:
			if _, err := w.Remove(path); err != nil {
				return fmt.Errorf("failed to stage removal of %s: %w", path, err)
			}
		default:
			if _, err := w.Add(path); err != nil {
				return fmt.Errorf("failed to stage %s: %w", path, err)
			}
		}
	}

	return nil
}

// Commit commits the staged changes and pushes the current branch when pushing is enabled.
func (r *Repository) Commit(ctx context.Context, message string) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	head, parent, err := headTarget(repo)
	if err != nil {
		return err
	}

	author := r.config.Author
	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.NameOrDefault(),
			Email: author.EmailOrDefault(),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return vcs.ErrNothingToCommit
	} else if err != nil {
		return err
	}

	r.log.Debugf("committed %s: %s", hash, message)

	if !r.config.PushEnabled() {
		return nil
	}

	branch := head.Short()

	authMethod, err := r.auth(ctx)
	if err == nil {
		err = repo.PushContext(ctx, &git.PushOptions{
			RemoteName: r.config.RemoteName(),
			Auth:       authMethod,
			RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", head, head))},
		})
	}
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}

	// The local branch never holds commits the remote did not accept.
	if rerr := r.restore(repo, w, head, parent, true); rerr != nil {
		return fmt.Errorf("failed to push %s: %w", branch, errors.Join(err, rerr))
	}

	var expected string
	if parent != nil {
		expected = parent.Hash().String()
	}

	revision, ferr := r.remoteRevision(ctx, repo, branch)
	if ferr != nil {
		r.log.Debugf("failed to fetch %q after rejected push: %v", branch, ferr)
	} else if revision != "" && revision != expected {
		return &vcs.PushRejectedError{Branch: branch, Revision: revision, Err: err}
	}

	return fmt.Errorf("failed to push %s: %w", branch, err)
}

// remoteRevision fetches branch and returns the revision the remote has for it, "" when the remote does not
// have the branch.
func (r *Repository) remoteRevision(ctx context.Context, repo *git.Repository, branch string) (string, error) {
	authMethod, err := r.auth(ctx)
	if err != nil {
		return "", err
	}

	remote := r.config.RemoteName()
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		Auth:       authMethod,
		Force:      true,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remote, branch)),
		},
	})
	if err != nil && !ignorable(err) {
		return "", err
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return ref.Hash().String(), nil
}

// Remove deletes the path from the index and from disk. Untracked and missing paths are tolerated.
func (r *Repository) Remove(_ context.Context, path string) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	path = filepath.ToSlash(filepath.Clean(path))

	if _, err := w.Remove(path); err == nil {
		return nil
	} else if !errors.Is(err, index.ErrEntryNotFound) {
		return err
	}

	if err := w.Filesystem.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (r *Repository) Reset(_ context.Context, revision string) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	return w.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: plumbing.NewHash(revision),
	})
}

// Commits walks the history from the given revision, or from HEAD when from is empty. A branch without
// commits has an empty history.
func (r *Repository) Commits(_ context.Context, from string, limit int) ([]vcs.Commit, error) {
	repo, err := r.open()
	if err != nil {
		return nil, err
	}

	if from == "" {
		from, err = r.Revision()
		if errors.Is(err, vcs.ErrNoRevision) {
			return nil, nil
		} else if err != nil {
			return nil, err
		}
	}

	iter, err := repo.Log(&git.LogOptions{From: plumbing.NewHash(from)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var commits []vcs.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return storer.ErrStop
		}

		commits = append(commits, vcs.Commit{
			Revision: c.Hash.String(),
			Author:   c.Author.Name,
			Email:    c.Author.Email,
			Date:     c.Author.When,
			Message:  c.Message,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return commits, nil
}

func (r *Repository) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(r.path)
	if err != nil {
		return nil, fmt.Errorf("working copy %s: %w", r.path, err)
	}
	return repo, nil
}
