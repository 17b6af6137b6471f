// Package vcsfake provides an in-memory vcs.Repository for tests.
package vcsfake

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/content-control-plane/ccp/pkg/vcs"
)

// Repository is an in-memory vcs.Repository. Histories are lists of
// revisions, oldest first. Every commit is pushed.
//
// Cloning requires a "master" branch on the remote. Commit fails with
// vcs.ErrNothingToCommit unless a file was written or removed since the last
// commit. UpdateErr is returned by a branch update after the branch was
// pulled, like a backend failing halfway. Every call except URL and IsCreated
// is appended to Calls.
type Repository struct {
	RemoteURL  string
	Created    bool
	Current    string
	Local      map[string][]string
	Remote     map[string][]string
	Files      map[string][]byte
	CloneFiles []string
	Dirty      bool

	CheckoutErr error
	UpdateErr   error
	CommitsErr  error
	CommitErr   error

	Calls    []string
	Messages []string
	Backups  []string

	next int
}

var _ vcs.Repository = (*Repository)(nil)

// New returns a repository whose remote holds the given branch histories.
func New(remote map[string][]string) *Repository {
	if remote == nil {
		remote = map[string][]string{}
	}
	return &Repository{
		RemoteURL: "https://example.com/content.git",
		Local:     map[string][]string{},
		Remote:    remote,
		Files:     map[string][]byte{},
	}
}

func (f *Repository) call(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// Push adds a revision to a remote branch, as another editor would.
func (f *Repository) Push(branch string) string {
	rev := f.nextRevision()
	f.Remote[branch] = append(f.Remote[branch], rev)
	return rev
}

func (f *Repository) nextRevision() string {
	f.next++
	return fmt.Sprintf("r%d", f.next)
}

func (f *Repository) URL() string {
	return f.RemoteURL
}

func (f *Repository) Branch() (string, error) {
	f.call("branch")
	if !f.Created {
		return "", errors.New("not created")
	}
	return f.Current, nil
}

func (f *Repository) Revision() (string, error) {
	f.call("revision")
	history := f.Local[f.Current]
	if len(history) == 0 {
		return "", vcs.ErrNoRevision
	}
	return history[len(history)-1], nil
}

func (f *Repository) IsCreated() bool {
	return f.Created
}

func (f *Repository) HasBranch(name string) (bool, error) {
	f.call("has-branch %s", name)
	_, local := f.Local[name]
	_, remote := f.Remote[name]
	return local || remote, nil
}

func (f *Repository) Checkout(_ context.Context, opts vcs.CheckoutOptions) error {
	f.call("checkout %s orphan=%t", opts.Branch, opts.Orphan)

	if !f.Created {
		if f.CheckoutErr != nil {
			return f.CheckoutErr
		}
		if _, ok := f.Remote["master"]; !ok {
			return errors.New("remote has no default branch")
		}
		f.Created = true
		f.Current = "master"
		f.Files[".git/HEAD"] = nil
		for _, p := range f.CloneFiles {
			f.Files[p] = nil
		}
		for b, h := range f.Remote {
			f.Local[b] = slices.Clone(h)
		}
		return nil
	}

	f.Current = opts.Branch
	if opts.Orphan {
		return nil
	}

	if _, ok := f.Local[opts.Branch]; !ok {
		f.Local[opts.Branch] = slices.Clone(f.Remote[opts.Branch])
	}
	return nil
}

func (f *Repository) Create(context.Context) error {
	f.call("create")
	f.Created = true
	f.Current = "master"
	f.Files[".git/HEAD"] = nil
	return nil
}

func (f *Repository) Update(_ context.Context, opts vcs.UpdateOptions) error {
	if opts.All {
		f.call("update all")
		for b, h := range f.Remote {
			f.Local[b] = slices.Clone(h)
		}
		return nil
	}

	f.call("update %s", opts.Branch)
	if h, ok := f.Remote[opts.Branch]; ok {
		f.Local[opts.Branch] = slices.Clone(h)
	}
	return f.UpdateErr
}

func (f *Repository) Add(context.Context) error {
	f.call("add")
	return nil
}

func (f *Repository) Commit(_ context.Context, message string) error {
	f.call("commit %s", message)
	if f.CommitErr != nil {
		return f.CommitErr
	}
	if !f.Dirty {
		return vcs.ErrNothingToCommit
	}
	f.Dirty = false
	f.Messages = append(f.Messages, message)

	f.Local[f.Current] = append(f.Local[f.Current], f.nextRevision())
	f.Remote[f.Current] = slices.Clone(f.Local[f.Current])
	return nil
}

func (f *Repository) Remove(_ context.Context, path string) error {
	f.call("remove %s", path)
	if _, ok := f.Files[path]; ok {
		delete(f.Files, path)
		f.Dirty = true
	}
	return nil
}

func (f *Repository) Reset(_ context.Context, revision string) error {
	f.call("reset %s", revision)
	history := f.Local[f.Current]
	i := slices.Index(history, revision)
	if i < 0 {
		return fmt.Errorf("unknown revision %s", revision)
	}
	f.Local[f.Current] = history[:i+1]
	return nil
}

func (f *Repository) Commits(_ context.Context, from string, limit int) ([]vcs.Commit, error) {
	f.call("commits %s %d", from, limit)
	if f.CommitsErr != nil {
		return nil, f.CommitsErr
	}

	history := f.Local[f.Current]
	i := len(history) - 1
	if from != "" {
		i = slices.Index(history, from)
		if i < 0 {
			return nil, fmt.Errorf("unknown revision %s", from)
		}
	}

	var commits []vcs.Commit
	for ; i >= 0 && len(commits) < limit; i-- {
		commits = append(commits, vcs.Commit{Revision: history[i], Message: "commit " + history[i]})
	}
	return commits, nil
}

func (f *Repository) WorkingCopy() vcs.WorkingCopy {
	return (*workingCopy)(f)
}

type workingCopy Repository

func (*workingCopy) Path() string {
	return "/srv/content"
}

func (wc *workingCopy) List() ([]string, error) {
	names := map[string]bool{}
	for p := range wc.Files {
		top, _, _ := strings.Cut(p, "/")
		names[top] = true
	}
	return slices.Sorted(maps.Keys(names)), nil
}

func (wc *workingCopy) CopyTo(dir string) error {
	wc.Backups = append(wc.Backups, dir)
	return nil
}

func (wc *workingCopy) Clear(keep func(string) bool) error {
	for p := range wc.Files {
		top, _, _ := strings.Cut(p, "/")
		if !keep(top) {
			delete(wc.Files, p)
		}
	}
	return nil
}

func (wc *workingCopy) WriteFile(path string, data []byte) error {
	wc.Files[path] = slices.Clone(data)
	wc.Dirty = true
	return nil
}
