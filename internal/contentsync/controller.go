// Package contentsync keeps the content tree in sync with its repository. The
// Controller makes sure the working copy exists and is on the content branch,
// rejects edits made against an outdated revision, and folds the changes of one
// operation into a single commit.
//
// A Controller is not safe for concurrent use. Callers serialize every
// operation against one working copy.
package contentsync

import (
	"cmp"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/journal"
	"github.com/content-control-plane/ccp/internal/logging"
	"github.com/content-control-plane/ccp/internal/metrics"
	"github.com/content-control-plane/ccp/internal/operation"
	"github.com/content-control-plane/ccp/pkg/vcs"
)

const (
	// DefaultDescription describes a change recorded without a description.
	DefaultDescription = "Updated content"

	// CommitPriority is the post-operation priority of the batch commit.
	CommitPriority = 1
)

// Recorder receives an entry for every commit.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

type Controller struct {
	repo    vcs.Repository
	branch  string
	backup  config.Backup
	journal Recorder
	commits *commitCache
	log     *logging.Logger
	now     func() time.Time
}

// New returns a controller keeping the content tree of repo on branch. A nil
// repo, or one without URL, makes a controller that is not valid.
func New(repo vcs.Repository, branch string) *Controller {
	return &Controller{
		repo:    repo,
		branch:  branch,
		commits: newCommitCache(),
		log:     logging.NewNop(),
		now:     time.Now,
	}
}

func (c *Controller) WithLogger(log *logging.Logger) *Controller {
	c.log = log
	return c
}

func (c *Controller) WithBackup(backup config.Backup) *Controller {
	c.backup = backup
	return c
}

func (c *Controller) WithJournal(r Recorder) *Controller {
	c.journal = r
	return c
}

func (c *Controller) Branch() string {
	return c.branch
}

// IsValid reports whether a repository with a URL is configured.
func (c *Controller) IsValid() bool {
	return c.repo != nil && c.repo.URL() != ""
}

// EnsureExists makes sure the working copy exists and is checked out on
// branch, or on the configured branch when branch is empty.
//
// A missing working copy is cloned; if that fails an empty working copy is
// created and every remote branch fetched into it. A branch that exists
// locally or on the remote is checked out, one that does not is created
// without history. Before switching, the working copy is backed up and cleared
// if it holds anything besides VCS metadata.
func (c *Controller) EnsureExists(ctx context.Context, branch string) (err error) {
	if !c.IsValid() {
		return notConfigured("ensure")
	}

	branch = cmp.Or(branch, c.branch)
	if branch == "" {
		return &ConfigurationError{Op: "ensure", Reason: ErrNoBranch}
	}

	defer func(start time.Time) {
		metrics.ObserveSync("ensure", start, err)
	}(time.Now())

	if !c.repo.IsCreated() {
		if err := c.repo.Checkout(ctx, vcs.CheckoutOptions{}); err != nil {
			c.log.Infof("checkout of %s failed, creating an empty working copy: %v", c.repo.URL(), err)

			if err := c.repo.Create(ctx); err != nil {
				return backend("create", err)
			}
			if err := c.repo.Update(ctx, vcs.UpdateOptions{All: true}); err != nil {
				return backend("update", err)
			}
		}
	}

	current, err := c.repo.Branch()
	if err != nil {
		return backend("branch", err)
	}

	if current == branch {
		return nil
	}

	exists, err := c.repo.HasBranch(branch)
	if err != nil {
		return backend("branch", err)
	}

	if err := c.prepareSwitch(current); err != nil {
		return err
	}

	if err := c.repo.Checkout(ctx, vcs.CheckoutOptions{Branch: branch, Orphan: !exists}); err != nil {
		return backend("checkout", err)
	}

	metrics.BranchSwitchCount.Inc()
	c.log.Infof("switched working copy from branch %q to %q (new: %t)", current, branch, !exists)

	return nil
}

// Update pulls the configured branch. When updateURL is set and the pull moved
// the branch, the working copy is reset to the revision it had before and a
// *StaleContentError carrying updateURL is returned. A branch without commits
// cannot be stale.
func (c *Controller) Update(ctx context.Context, updateURL string) (err error) {
	if !c.IsValid() {
		return notConfigured("update")
	}

	if err := c.EnsureExists(ctx, c.branch); err != nil {
		return err
	}

	defer func(start time.Time) {
		metrics.ObserveSync("update", start, err)
	}(time.Now())

	old, err := c.revision()
	if err != nil {
		return err
	}

	if err := c.repo.Update(ctx, vcs.UpdateOptions{Branch: c.branch}); err != nil {
		return c.failedUpdate(ctx, old, updateURL, err)
	}

	if old == "" {
		return nil
	}

	updated, err := c.revision()
	if err != nil {
		return err
	}

	if updateURL == "" || updated == old {
		return nil
	}

	if err := c.repo.Reset(ctx, old); err != nil {
		return backend("reset", err)
	}

	metrics.StaleContentCount.Inc()
	c.log.Infof("branch %q moved from %s to %s, rejecting change", c.branch, old, updated)

	return &StaleContentError{UpdateURL: updateURL, Old: old, New: updated}
}

// failedUpdate makes sure a failed pull did not leave the working copy on
// another revision than old. A working copy that moved anyway is reset, and
// reported stale when updateURL is set.
func (c *Controller) failedUpdate(ctx context.Context, old, updateURL string, cause error) error {
	current, err := c.revision()
	if err != nil || old == "" || current == old {
		return backend("update", cause)
	}

	if err := c.repo.Reset(ctx, old); err != nil {
		return backend("reset", errors.Join(cause, err))
	}

	c.log.Warnf("failed update left branch %q on %s, reset to %s: %v", c.branch, current, old, cause)

	if updateURL == "" {
		return backend("update", cause)
	}

	metrics.StaleContentCount.Inc()
	return &StaleContentError{UpdateURL: updateURL, Old: old, New: current}
}

// RecordChange adds a change to the batch of op. The first change of an
// operation updates the working copy against op's referring URL and schedules
// the batch commit for after the operation. Removed paths are deleted from the
// working copy right away. Without a valid repository nothing happens.
func (c *Controller) RecordChange(ctx context.Context, op *operation.Operation, description string, removedPaths ...string) error {
	if !c.IsValid() {
		return nil
	}

	batch := op.Batch()
	first := !batch.Scheduled()

	batch.Add(cmp.Or(strings.TrimSpace(description), DefaultDescription))

	if first {
		if err := c.Update(ctx, op.ReferURL()); err != nil {
			return err
		}
	}

	for _, path := range removedPaths {
		if err := c.repo.Remove(ctx, path); err != nil {
			return backend("remove", err)
		}
	}

	if first {
		op.RegisterPostOperation(func(ctx context.Context) error {
			return c.commitBatch(ctx, batch, op.ReferURL())
		}, CommitPriority)
		batch.MarkScheduled()
	}

	return nil
}

// CommitBatch stages every change of the working copy and commits it with the
// descriptions of batch. Failures are not retried. A commit the remote
// rejects because its branch moved is rolled back by the repository.
func (c *Controller) CommitBatch(ctx context.Context, batch *operation.Batch) error {
	return c.commitBatch(ctx, batch, "")
}

// commitBatch commits batch. A rejected push is reported as stale content
// when updateURL is set.
func (c *Controller) commitBatch(ctx context.Context, batch *operation.Batch, updateURL string) error {
	if !c.IsValid() {
		return notConfigured("commit")
	}

	if batch.Len() == 0 {
		return nil
	}

	message := batch.Message()

	old, err := c.revision()
	if err != nil {
		return err
	}

	if err := c.repo.Add(ctx); err != nil {
		metrics.CommitFailed.Inc()
		return backend("add", err)
	}

	var rejected *vcs.PushRejectedError
	if err := c.repo.Commit(ctx, message); errors.Is(err, vcs.ErrNothingToCommit) {
		c.log.Debugf("nothing to commit for %q", message)
		return nil
	} else if errors.As(err, &rejected) && updateURL != "" {
		metrics.CommitFailed.Inc()
		metrics.StaleContentCount.Inc()
		c.log.Infof("branch %q moved from %s to %s, rejecting commit %q", c.branch, old, rejected.Revision, message)
		return &StaleContentError{UpdateURL: updateURL, Old: old, New: rejected.Revision}
	} else if err != nil {
		metrics.CommitFailed.Inc()
		return backend("commit", err)
	}

	metrics.CommitCount.Inc()
	metrics.CommitBatchSize.Observe(float64(batch.Len()))
	c.log.Infof("committed %q", message)

	if c.journal != nil {
		revision, err := c.revision()
		if err == nil {
			err = c.journal.Record(ctx, journal.Entry{
				Revision:    revision,
				Branch:      c.branch,
				Message:     message,
				CommittedAt: c.now(),
			})
		}
		if err != nil {
			c.log.Warnf("failed to record commit %q in journal: %v", message, err)
		}
	}

	return nil
}

// RecentCommits lists at most limit commits of the content branch, newest
// first. Any failure yields an empty list.
func (c *Controller) RecentCommits(ctx context.Context, limit int) []vcs.Commit {
	commits, err := c.recentCommits(ctx, limit)
	if err != nil {
		c.log.Warnf("failed to list recent commits: %v", err)
		return []vcs.Commit{}
	}
	return commits
}

func (c *Controller) recentCommits(ctx context.Context, limit int) ([]vcs.Commit, error) {
	if err := c.EnsureExists(ctx, ""); err != nil {
		return nil, err
	}

	revision, err := c.revision()
	if err != nil || revision == "" {
		return []vcs.Commit{}, err
	}

	if commits, ok := c.commits.get(revision, limit); ok {
		return commits, nil
	}

	commits, err := c.repo.Commits(ctx, revision, limit)
	if err != nil {
		return nil, backend("commits", err)
	}
	if commits == nil {
		commits = []vcs.Commit{}
	}

	c.commits.add(revision, limit, commits)
	return commits, nil
}

// revision returns the current revision, or "" for a branch without commits.
func (c *Controller) revision() (string, error) {
	revision, err := c.repo.Revision()
	if errors.Is(err, vcs.ErrNoRevision) {
		return "", nil
	} else if err != nil {
		return "", backend("revision", err)
	}
	return revision, nil
}
