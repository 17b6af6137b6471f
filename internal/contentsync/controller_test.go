package contentsync_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/contentsync"
	"github.com/content-control-plane/ccp/internal/journal"
	"github.com/content-control-plane/ccp/internal/operation"
	"github.com/content-control-plane/ccp/internal/test/vcsfake"
	"github.com/content-control-plane/ccp/pkg/vcs"
)

// onContent returns a controller whose working copy is cloned and on the
// content branch at revision c1.
func onContent(t *testing.T) (*vcsfake.Repository, *contentsync.Controller) {
	t.Helper()

	repo := vcsfake.New(map[string][]string{"master": {"m1"}, "content": {"c1"}})
	c := contentsync.New(repo, "content")

	if err := c.EnsureExists(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	repo.Calls = nil
	return repo, c
}

func count(calls []string, call string) int {
	n := 0
	for _, c := range calls {
		if c == call {
			n++
		}
	}
	return n
}

func TestIsValid(t *testing.T) {
	if contentsync.New(nil, "content").IsValid() {
		t.Fatal("expected controller without repository to be invalid")
	}

	repo := vcsfake.New(nil)
	repo.RemoteURL = ""
	if contentsync.New(repo, "content").IsValid() {
		t.Fatal("expected controller without URL to be invalid")
	}

	if !contentsync.New(vcsfake.New(nil), "content").IsValid() {
		t.Fatal("expected controller to be valid")
	}
}

func TestNotConfigured(t *testing.T) {
	ctx := t.Context()

	empty := vcsfake.New(nil)
	empty.RemoteURL = ""

	for name, c := range map[string]*contentsync.Controller{
		"no repository": contentsync.New(nil, "content"),
		"no url":        contentsync.New(empty, "content"),
	} {
		t.Run(name, func(t *testing.T) {
			var cfgErr *contentsync.ConfigurationError

			if err := c.EnsureExists(ctx, ""); !errors.As(err, &cfgErr) || !errors.Is(err, contentsync.ErrNotConfigured) {
				t.Fatalf("ensure: expected configuration error, got %v", err)
			}

			if err := c.Update(ctx, "/update"); !errors.As(err, &cfgErr) || !errors.Is(err, contentsync.ErrNotConfigured) {
				t.Fatalf("update: expected configuration error, got %v", err)
			}

			op := operation.New("/nodes/1")
			if err := c.RecordChange(ctx, op, "Saved node 1", "root/1.ini"); err != nil {
				t.Fatalf("record: expected no-op, got %v", err)
			}
			if op.Batch().Len() != 0 || op.Batch().Scheduled() {
				t.Fatal("record: expected batch to stay untouched")
			}

			if err := c.CommitBatch(ctx, op.Batch()); !errors.Is(err, contentsync.ErrNotConfigured) {
				t.Fatalf("commit: expected configuration error, got %v", err)
			}

			if commits := c.RecentCommits(ctx, 10); commits == nil || len(commits) != 0 {
				t.Fatalf("expected empty commit list, got %v", commits)
			}
		})
	}

	if len(empty.Calls) != 0 {
		t.Fatalf("expected the backend not to be touched, got %v", empty.Calls)
	}
}

func TestEnsureExistsNoBranch(t *testing.T) {
	repo := vcsfake.New(map[string][]string{"master": {"m1"}})
	c := contentsync.New(repo, "")

	err := c.EnsureExists(t.Context(), "")
	if !errors.Is(err, contentsync.ErrNoBranch) {
		t.Fatalf("expected no branch error, got %v", err)
	}

	if err := c.Update(t.Context(), ""); !errors.Is(err, contentsync.ErrNoBranch) {
		t.Fatalf("expected no branch error from update, got %v", err)
	}

	if len(repo.Calls) != 0 {
		t.Fatalf("expected the backend not to be touched, got %v", repo.Calls)
	}
}

func TestEnsureExistsSwitchWithBackup(t *testing.T) {
	ctx := t.Context()
	repo := vcsfake.New(map[string][]string{"master": {"m1"}, "content": {"c1"}})
	repo.CloneFiles = []string{"README.md", "root/1.ini"}

	c := contentsync.New(repo, "content").WithBackup(config.Backup{Directory: "/backup"})

	if err := c.EnsureExists(ctx, ""); err != nil {
		t.Fatal(err)
	}

	exp := []string{
		"checkout  orphan=false",
		"branch",
		"has-branch content",
		"checkout content orphan=false",
	}
	if diff := cmp.Diff(exp, repo.Calls); diff != "" {
		t.Fatalf("unexpected calls (-want,+got):\n%s", diff)
	}

	if len(repo.Backups) != 1 || !strings.HasPrefix(repo.Backups[0], "/backup/master-") {
		t.Fatalf("expected exactly one backup of master, got %v", repo.Backups)
	}

	if names, _ := repo.WorkingCopy().List(); !slices.Equal(names, []string{".git"}) {
		t.Fatalf("expected only metadata before checkout, got %v", names)
	}

	if repo.Current != "content" {
		t.Fatalf("expected content branch, got %q", repo.Current)
	}

	// Idempotent: nothing to switch, nothing to back up.
	repo.Calls = nil
	if err := c.EnsureExists(ctx, "content"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"branch"}, repo.Calls); diff != "" {
		t.Fatalf("unexpected calls on second ensure (-want,+got):\n%s", diff)
	}
	if len(repo.Backups) != 1 {
		t.Fatalf("expected no additional backup, got %v", repo.Backups)
	}
}

func TestEnsureExistsMetadataPatterns(t *testing.T) {
	repo := vcsfake.New(map[string][]string{"master": {"m1"}, "content": {"c1"}})
	repo.CloneFiles = []string{".gitignore", ".gitattributes"}

	c := contentsync.New(repo, "content").WithBackup(config.Backup{Metadata: config.StringSet{".git*"}})

	if err := c.EnsureExists(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	if len(repo.Backups) != 0 {
		t.Fatalf("expected no backup when only metadata is present, got %v", repo.Backups)
	}
}

func TestEnsureExistsDefaultBackupDirectory(t *testing.T) {
	repo := vcsfake.New(map[string][]string{"master": {"m1"}, "content": {"c1"}})
	repo.CloneFiles = []string{".gitignore"}

	c := contentsync.New(repo, "content")

	if err := c.EnsureExists(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	// Only ".git" counts as metadata by default.
	if len(repo.Backups) != 1 || !strings.HasPrefix(repo.Backups[0], "/srv/content.backup/master-") {
		t.Fatalf("expected one backup next to the working copy, got %v", repo.Backups)
	}
}

func TestEnsureExistsBackupInsideWorkingCopy(t *testing.T) {
	repo := vcsfake.New(map[string][]string{"master": {"m1"}, "content": {"c1"}})
	repo.CloneFiles = []string{"README.md"}

	c := contentsync.New(repo, "content").WithBackup(config.Backup{Directory: "/srv/content/backups"})

	err := c.EnsureExists(t.Context(), "")

	var cfgErr *contentsync.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Op != "backup" {
		t.Fatalf("expected backup configuration error, got %v", err)
	}

	if len(repo.Backups) != 0 || repo.Current != "master" {
		t.Fatalf("expected working copy untouched, got backups %v on %q", repo.Backups, repo.Current)
	}

	if _, ok := repo.Files["README.md"]; !ok {
		t.Fatal("expected content to be kept")
	}
}

func TestEnsureExistsOrphan(t *testing.T) {
	ctx := t.Context()
	repo := vcsfake.New(map[string][]string{"master": {"m1"}})
	c := contentsync.New(repo, "content")

	if err := c.EnsureExists(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if !slices.Contains(repo.Calls, "checkout content orphan=true") {
		t.Fatalf("expected orphan checkout, got %v", repo.Calls)
	}

	if len(repo.Backups) != 0 {
		t.Fatalf("expected no backup, got %v", repo.Backups)
	}

	if branch, _ := repo.Branch(); branch != "content" {
		t.Fatalf("expected content branch, got %q", branch)
	}

	if _, err := repo.Revision(); !errors.Is(err, vcs.ErrNoRevision) {
		t.Fatalf("expected orphan branch without history, got %v", err)
	}
}

func TestEnsureExistsFallbackCreate(t *testing.T) {
	repo := vcsfake.New(map[string][]string{"master": {"m1"}, "content": {"c1"}})
	repo.CheckoutErr = errors.New("clone failed")

	c := contentsync.New(repo, "content")

	if err := c.EnsureExists(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	exp := []string{
		"checkout  orphan=false",
		"create",
		"update all",
		"branch",
		"has-branch content",
		"checkout content orphan=false",
	}
	if diff := cmp.Diff(exp, repo.Calls); diff != "" {
		t.Fatalf("unexpected calls (-want,+got):\n%s", diff)
	}

	if rev, _ := repo.Revision(); rev != "c1" {
		t.Fatalf("expected remote content history, got %q", rev)
	}
}

func TestEnsureExistsEmptyRemote(t *testing.T) {
	repo := vcsfake.New(nil)
	c := contentsync.New(repo, "content")

	if err := c.EnsureExists(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	exp := []string{
		"checkout  orphan=false",
		"create",
		"update all",
		"branch",
		"has-branch content",
		"checkout content orphan=true",
	}
	if diff := cmp.Diff(exp, repo.Calls); diff != "" {
		t.Fatalf("unexpected calls (-want,+got):\n%s", diff)
	}
}

func TestEnsureExistsExplicitBranch(t *testing.T) {
	repo, c := onContent(t)

	if err := c.EnsureExists(t.Context(), "preview"); err != nil {
		t.Fatal(err)
	}

	if repo.Current != "preview" {
		t.Fatalf("expected preview branch, got %q", repo.Current)
	}

	if !slices.Contains(repo.Calls, "checkout preview orphan=true") {
		t.Fatalf("expected orphan checkout of preview, got %v", repo.Calls)
	}
}

func TestUpdateStale(t *testing.T) {
	repo, c := onContent(t)
	remote := repo.Push("content")

	err := c.Update(t.Context(), "/cms/v1/repository/update?referer=%2Fcms%2Fnodes")

	var stale *contentsync.StaleContentError
	if !errors.As(err, &stale) {
		t.Fatalf("expected stale content error, got %v", err)
	}

	exp := &contentsync.StaleContentError{
		UpdateURL: "/cms/v1/repository/update?referer=%2Fcms%2Fnodes",
		Old:       "c1",
		New:       remote,
	}
	if diff := cmp.Diff(exp, stale); diff != "" {
		t.Fatalf("unexpected error (-want,+got):\n%s", diff)
	}

	if !errors.Is(err, contentsync.ErrStaleContent) {
		t.Fatal("expected error to match ErrStaleContent")
	}

	if rev, _ := repo.Revision(); rev != "c1" {
		t.Fatalf("expected rollback to c1, got %q", rev)
	}
}

func TestUpdateUnchanged(t *testing.T) {
	repo, c := onContent(t)

	if err := c.Update(t.Context(), "/update"); err != nil {
		t.Fatal(err)
	}

	if count(repo.Calls, "update content") != 1 {
		t.Fatalf("expected a branch scoped pull, got %v", repo.Calls)
	}

	for _, call := range repo.Calls {
		if strings.HasPrefix(call, "reset") {
			t.Fatalf("expected no reset, got %v", repo.Calls)
		}
	}
}

func TestUpdateWithoutURL(t *testing.T) {
	repo, c := onContent(t)
	remote := repo.Push("content")

	if err := c.Update(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	if rev, _ := repo.Revision(); rev != remote {
		t.Fatalf("expected working copy at %s, got %s", remote, rev)
	}
}

func TestUpdateFreshBranch(t *testing.T) {
	ctx := t.Context()
	repo := vcsfake.New(map[string][]string{"master": {"m1"}})
	c := contentsync.New(repo, "content")

	if err := c.EnsureExists(ctx, ""); err != nil {
		t.Fatal(err)
	}

	// Someone else published the branch in the meantime.
	remote := repo.Push("content")

	if err := c.Update(ctx, "/update"); err != nil {
		t.Fatalf("expected a branch without commits never to be stale, got %v", err)
	}

	if rev, _ := repo.Revision(); rev != remote {
		t.Fatalf("expected pulled revision %s, got %s", remote, rev)
	}
}

func TestUpdateFailureMovedWorkingCopy(t *testing.T) {
	ctx := t.Context()

	t.Run("with update url", func(t *testing.T) {
		repo, c := onContent(t)
		remote := repo.Push("content")
		repo.UpdateErr = errors.New("worktree contains unstaged changes")

		err := c.Update(ctx, "/update")

		var stale *contentsync.StaleContentError
		if !errors.As(err, &stale) {
			t.Fatalf("expected stale content error, got %v", err)
		}

		exp := &contentsync.StaleContentError{UpdateURL: "/update", Old: "c1", New: remote}
		if diff := cmp.Diff(exp, stale); diff != "" {
			t.Fatalf("unexpected error (-want,+got):\n%s", diff)
		}

		if rev, _ := repo.Revision(); rev != "c1" {
			t.Fatalf("expected reset to c1, got %q", rev)
		}
	})

	t.Run("without update url", func(t *testing.T) {
		repo, c := onContent(t)
		repo.Push("content")
		repo.UpdateErr = errors.New("worktree contains unstaged changes")

		err := c.Update(ctx, "")

		var backendErr *contentsync.BackendError
		if !errors.As(err, &backendErr) || backendErr.Op != "update" || !errors.Is(err, repo.UpdateErr) {
			t.Fatalf("expected backend error from update, got %v", err)
		}

		if rev, _ := repo.Revision(); rev != "c1" {
			t.Fatalf("expected reset to c1, got %q", rev)
		}
	})
}

func TestUpdateFailureUnmoved(t *testing.T) {
	repo, c := onContent(t)
	repo.UpdateErr = errors.New("connection refused")

	err := c.Update(t.Context(), "/update")

	var backendErr *contentsync.BackendError
	if !errors.As(err, &backendErr) || backendErr.Op != "update" || !errors.Is(err, repo.UpdateErr) {
		t.Fatalf("expected backend error from update, got %v", err)
	}

	for _, call := range repo.Calls {
		if strings.HasPrefix(call, "reset") {
			t.Fatalf("expected no reset, got %v", repo.Calls)
		}
	}
}

func TestRecordChangeBatchesOneCommit(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)
	repo.Files["root/5.ini"] = []byte("title=B")

	op := operation.New("/cms/nodes/5")
	err := operation.Run(ctx, op, func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Added page A"); err != nil {
			return err
		}
		if err := c.RecordChange(ctx, op, "Added page A"); err != nil {
			return err
		}
		if err := c.RecordChange(ctx, op, "Removed page B", "root/5.ini"); err != nil {
			return err
		}

		if _, ok := repo.Files["root/5.ini"]; ok {
			t.Error("expected removal to happen inline")
		}
		if len(repo.Messages) != 0 {
			t.Error("expected commit to be deferred")
		}
		if !op.Batch().Scheduled() {
			t.Error("expected batch to be scheduled")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"Added page A, Removed page B"}, repo.Messages); diff != "" {
		t.Fatalf("unexpected commits (-want,+got):\n%s", diff)
	}

	if n := count(repo.Calls, "update content"); n != 1 {
		t.Fatalf("expected one update per operation, got %d", n)
	}

	if i, j := slices.Index(repo.Calls, "remove root/5.ini"), slices.Index(repo.Calls, "add"); i < 0 || j < i {
		t.Fatalf("expected removal before staging, got %v", repo.Calls)
	}
}

func TestRecordChangeDefaultDescription(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)

	err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "   "); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("root/1.ini", []byte("title=Home"))
	})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{contentsync.DefaultDescription}, repo.Messages); diff != "" {
		t.Fatalf("unexpected commits (-want,+got):\n%s", diff)
	}
}

func TestRecordChangeStale(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)
	repo.Push("content")

	op := operation.New("/cms/nodes/1")
	err := operation.Run(ctx, op, func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node 1"); err != nil {
			return err
		}
		t.Error("expected the change to be rejected")
		return nil
	})

	var stale *contentsync.StaleContentError
	if !errors.As(err, &stale) || stale.UpdateURL != "/cms/nodes/1" {
		t.Fatalf("expected stale content error for the referring URL, got %v", err)
	}

	if op.Batch().Scheduled() || len(repo.Messages) != 0 {
		t.Fatal("expected no commit to be scheduled")
	}
}

func TestRecordChangeAbortedOperation(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)
	errAbort := errors.New("validation failed")

	err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node 1"); err != nil {
			return err
		}
		if err := repo.WorkingCopy().WriteFile("root/1.ini", nil); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if count(repo.Calls, "add") != 0 || len(repo.Messages) != 0 {
		t.Fatalf("expected no commit after an aborted operation, got %v", repo.Calls)
	}

	// The uncommitted change is picked up by the next operation.
	err = operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		return c.RecordChange(ctx, op, "Saved node 2")
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Saved node 2"}, repo.Messages); diff != "" {
		t.Fatalf("unexpected commits (-want,+got):\n%s", diff)
	}
}

func TestCommitBatchNothingToCommit(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)

	err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		return c.RecordChange(ctx, op, "Saved node 1")
	})
	if err != nil {
		t.Fatalf("expected an empty commit to be a no-op, got %v", err)
	}

	if count(repo.Calls, "commit Saved node 1") != 1 || len(repo.Messages) != 0 {
		t.Fatalf("unexpected commit activity: %v", repo.Calls)
	}
}

func TestCommitBatchFailure(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)
	repo.CommitErr = errors.New("push rejected")

	err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		return c.RecordChange(ctx, op, "Saved node 1")
	})

	var backendErr *contentsync.BackendError
	if !errors.As(err, &backendErr) || backendErr.Op != "commit" || !errors.Is(err, repo.CommitErr) {
		t.Fatalf("expected backend error from commit, got %v", err)
	}

	if count(repo.Calls, "commit Saved node 1") != 1 {
		t.Fatalf("expected exactly one commit attempt, got %v", repo.Calls)
	}
}

func TestCommitBatchPushRejected(t *testing.T) {
	ctx := t.Context()
	rejected := &vcs.PushRejectedError{Branch: "content", Revision: "r9", Err: errors.New("non-fast-forward update")}

	t.Run("stale with update url", func(t *testing.T) {
		repo, c := onContent(t)
		repo.CommitErr = rejected

		err := operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
			if err := c.RecordChange(ctx, op, "Saved node 1"); err != nil {
				return err
			}
			return repo.WorkingCopy().WriteFile("root/1.ini", []byte("v1"))
		})

		var stale *contentsync.StaleContentError
		if !errors.As(err, &stale) {
			t.Fatalf("expected stale content error, got %v", err)
		}

		exp := &contentsync.StaleContentError{UpdateURL: "/update", Old: "c1", New: "r9"}
		if diff := cmp.Diff(exp, stale); diff != "" {
			t.Fatalf("unexpected error (-want,+got):\n%s", diff)
		}
	})

	t.Run("backend error without update url", func(t *testing.T) {
		repo, c := onContent(t)
		repo.CommitErr = rejected

		err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
			return c.RecordChange(ctx, op, "Saved node 1")
		})

		var backendErr *contentsync.BackendError
		if !errors.As(err, &backendErr) || backendErr.Op != "commit" {
			t.Fatalf("expected backend error from commit, got %v", err)
		}

		var got *vcs.PushRejectedError
		if !errors.As(err, &got) || got != rejected {
			t.Fatalf("expected rejected push to be wrapped, got %v", err)
		}
	})
}

type recorder struct {
	entries []journal.Entry
	err     error
}

func (r *recorder) Record(_ context.Context, e journal.Entry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func TestCommitBatchJournal(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)
	rec := &recorder{}
	c.WithJournal(rec)

	err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node 1"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("root/1.ini", nil)
	})
	if err != nil {
		t.Fatal(err)
	}

	rev, _ := repo.Revision()
	if len(rec.entries) != 1 {
		t.Fatalf("expected one journal entry, got %v", rec.entries)
	}

	e := rec.entries[0]
	if e.Revision != rev || e.Branch != "content" || e.Message != "Saved node 1" || e.CommittedAt.IsZero() {
		t.Fatalf("unexpected journal entry: %+v", e)
	}

	// Journal failures do not fail the operation.
	rec.err = errors.New("database is locked")
	err = operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node 2"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("root/2.ini", nil)
	})
	if err != nil {
		t.Fatalf("expected journal failure to be ignored, got %v", err)
	}
	if len(repo.Messages) != 2 {
		t.Fatalf("expected both commits, got %v", repo.Messages)
	}
}

func TestRecentCommits(t *testing.T) {
	ctx := t.Context()
	repo, c := onContent(t)

	commits := c.RecentCommits(ctx, 10)
	if diff := cmp.Diff([]vcs.Commit{{Revision: "c1", Message: "commit c1"}}, commits); diff != "" {
		t.Fatalf("unexpected commits (-want,+got):\n%s", diff)
	}

	// Served from the cache while the revision is unchanged.
	c.RecentCommits(ctx, 10)
	if n := count(repo.Calls, "commits c1 10"); n != 1 {
		t.Fatalf("expected one listing, got %d", n)
	}

	err := operation.Run(ctx, operation.New(""), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node 1"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("root/1.ini", nil)
	})
	if err != nil {
		t.Fatal(err)
	}

	commits = c.RecentCommits(ctx, 1)
	if len(commits) != 1 || commits[0].Revision == "c1" {
		t.Fatalf("expected the new head, got %v", commits)
	}
}

func TestRecentCommitsFailure(t *testing.T) {
	repo, c := onContent(t)
	repo.CommitsErr = errors.New("corrupt object")

	commits := c.RecentCommits(t.Context(), 10)
	if commits == nil || len(commits) != 0 {
		t.Fatalf("expected empty list, got %v", commits)
	}
}

func TestRecentCommitsEmptyBranch(t *testing.T) {
	repo := vcsfake.New(map[string][]string{"master": {"m1"}})
	c := contentsync.New(repo, "content")

	if commits := c.RecentCommits(t.Context(), 10); commits == nil || len(commits) != 0 {
		t.Fatalf("expected empty list, got %v", commits)
	}
}
