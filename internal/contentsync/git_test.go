package contentsync_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/contentsync"
	"github.com/content-control-plane/ccp/internal/gitrepo"
	"github.com/content-control-plane/ccp/internal/operation"
	"github.com/content-control-plane/ccp/pkg/vcs"
)

// newGitRemote creates a bare repository whose master branch holds the given files.
func newGitRemote(t *testing.T, files map[string]string) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("the go-git file transport requires a git binary")
	}

	dir := t.TempDir()
	remote := filepath.Join(dir, "remote.git")
	if _, err := git.PlainInit(remote, true); err != nil {
		t.Fatal(err)
	}

	seed := filepath.Join(dir, "seed")
	repo, err := git.PlainInit(seed, false)
	if err != nil {
		t.Fatal(err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	for path, content := range files {
		writeGitFile(t, filepath.Join(seed, path), content)
		if _, err := w.Add(path); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := w.Commit("seed", &git.CommitOptions{Author: &object.Signature{Name: "seed", Email: "seed@localhost", When: time.Now()}}); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}}); err != nil {
		t.Fatal(err)
	}

	if err := repo.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []gitconfig.RefSpec{"refs/heads/master:refs/heads/master"}}); err != nil {
		t.Fatal(err)
	}

	return remote
}

func writeGitFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readGitFile(t *testing.T, repo vcs.Repository, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(repo.WorkingCopy().Path(), path))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// gitController returns a controller with its own working copy of remote, checked out on branch.
func gitController(t *testing.T, remote, branch string, backup config.Backup) (*gitrepo.Repository, *contentsync.Controller) {
	t.Helper()

	repo := gitrepo.New(&config.Repository{
		URL:    remote,
		Path:   filepath.Join(t.TempDir(), "content"),
		Branch: branch,
		Author: config.Author{Name: "Editor", Email: "editor@example.com"},
		Backup: backup,
	})

	c := contentsync.New(repo, branch).WithBackup(backup)
	if err := c.EnsureExists(t.Context(), ""); err != nil {
		t.Fatal(err)
	}

	return repo, c
}

// pushEdit commits a change to branch of remote from another working copy, as a second editor would, and
// returns the new revision.
func pushEdit(t *testing.T, remote, branch, path, content string) string {
	t.Helper()
	ctx := t.Context()

	other := gitrepo.New(&config.Repository{
		URL:    remote,
		Path:   filepath.Join(t.TempDir(), "other"),
		Author: config.Author{Name: "Other", Email: "other@example.com"},
	})

	if err := other.Checkout(ctx, vcs.CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}
	if current, _ := other.Branch(); current != branch {
		if err := other.Checkout(ctx, vcs.CheckoutOptions{Branch: branch}); err != nil {
			t.Fatal(err)
		}
	}

	if err := other.WorkingCopy().WriteFile(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := other.Add(ctx); err != nil {
		t.Fatal(err)
	}
	if err := other.Commit(ctx, "Saved "+path); err != nil {
		t.Fatal(err)
	}

	revision, err := other.Revision()
	if err != nil {
		t.Fatal(err)
	}
	return revision
}

func TestGitUpdateStale(t *testing.T) {
	ctx := t.Context()
	remote := newGitRemote(t, map[string]string{"a.ini": "a1", "b.ini": "b1"})
	repo, c := gitController(t, remote, "master", config.Backup{})

	old, err := repo.Revision()
	if err != nil {
		t.Fatal(err)
	}

	moved := pushEdit(t, remote, "master", "b.ini", "b2")

	err = operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node a"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("a.ini", []byte("a2"))
	})

	var stale *contentsync.StaleContentError
	if !errors.As(err, &stale) || stale.Old != old || stale.New != moved {
		t.Fatalf("expected stale content error from %s to %s, got %v", old, moved, err)
	}

	if rev, _ := repo.Revision(); rev != old {
		t.Fatalf("expected rollback to %s, got %s", old, rev)
	}

	if got := readGitFile(t, repo, "b.ini"); got != "b1" {
		t.Fatalf("expected b.ini of the previous revision, got %q", got)
	}

	if err := c.Update(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if got := readGitFile(t, repo, "b.ini"); got != "b2" {
		t.Fatalf("expected b.ini of the other editor, got %q", got)
	}
}

func TestGitUpdateWithLocalChanges(t *testing.T) {
	ctx := t.Context()
	remote := newGitRemote(t, map[string]string{"a.ini": "a1", "b.ini": "b1"})
	repo, c := gitController(t, remote, "master", config.Backup{})

	old, err := repo.Revision()
	if err != nil {
		t.Fatal(err)
	}

	pushEdit(t, remote, "master", "b.ini", "b2")
	writeGitFile(t, filepath.Join(repo.WorkingCopy().Path(), "a.ini"), "a-local")

	// Every attempt fails the same way and leaves the branch where it was.
	for range 2 {
		err := operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
			return c.RecordChange(ctx, op, "Saved node a")
		})
		if !errors.Is(err, vcs.ErrUncommittedChanges) {
			t.Fatalf("expected uncommitted changes error, got %v", err)
		}

		if rev, _ := repo.Revision(); rev != old {
			t.Fatalf("expected branch to stay on %s, got %s", old, rev)
		}

		if got := readGitFile(t, repo, "a.ini"); got != "a-local" {
			t.Fatalf("expected local edit to be kept, got %q", got)
		}
	}

	writeGitFile(t, filepath.Join(repo.WorkingCopy().Path(), "a.ini"), "a1")

	if err := c.Update(ctx, ""); err != nil {
		t.Fatal(err)
	}

	err = operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node a"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("a.ini", []byte("a2"))
	})
	if err != nil {
		t.Fatal(err)
	}

	check := gitrepo.New(&config.Repository{URL: remote, Path: filepath.Join(t.TempDir(), "check")})
	if err := check.Checkout(ctx, vcs.CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}

	if a, b := readGitFile(t, check, "a.ini"), readGitFile(t, check, "b.ini"); a != "a2" || b != "b2" {
		t.Fatalf("expected both edits on the remote, got a.ini=%q b.ini=%q", a, b)
	}
}

func TestGitPushRace(t *testing.T) {
	ctx := t.Context()
	remote := newGitRemote(t, map[string]string{"a.ini": "a1"})
	repo, c := gitController(t, remote, "master", config.Backup{})

	old, err := repo.Revision()
	if err != nil {
		t.Fatal(err)
	}

	var moved string
	err = operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node a"); err != nil {
			return err
		}
		moved = pushEdit(t, remote, "master", "b.ini", "b2")
		return repo.WorkingCopy().WriteFile("a.ini", []byte("a2"))
	})

	var stale *contentsync.StaleContentError
	if !errors.As(err, &stale) || stale.Old != old || stale.New != moved {
		t.Fatalf("expected stale content error from %s to %s, got %v", old, moved, err)
	}

	if rev, _ := repo.Revision(); rev != old {
		t.Fatalf("expected local commit to be rolled back to %s, got %s", old, rev)
	}

	if got := readGitFile(t, repo, "a.ini"); got != "a1" {
		t.Fatalf("expected rejected edit to be discarded, got %q", got)
	}

	if err := c.Update(ctx, ""); err != nil {
		t.Fatalf("expected working copy to recover, got %v", err)
	}

	if rev, _ := repo.Revision(); rev != moved {
		t.Fatalf("expected %s after update, got %s", moved, rev)
	}

	err = operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node a"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("a.ini", []byte("a3"))
	})
	if err != nil {
		t.Fatal(err)
	}

	commits := c.RecentCommits(ctx, 3)
	messages := make([]string, 0, len(commits))
	for _, commit := range commits {
		messages = append(messages, strings.TrimSpace(commit.Message))
	}
	if exp := []string{"Saved node a", "Saved b.ini", "seed"}; !slices.Equal(exp, messages) {
		t.Fatalf("expected history %v, got %v", exp, messages)
	}
}

func TestGitBackupOnSwitch(t *testing.T) {
	ctx := t.Context()
	remote := newGitRemote(t, map[string]string{"README.md": "# site"})
	backup := filepath.Join(t.TempDir(), "backup")

	repo, c := gitController(t, remote, "content", config.Backup{Directory: backup})

	entries, err := os.ReadDir(backup)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "master-") {
		t.Fatalf("expected one backup of master, got %v", entries)
	}

	data, err := os.ReadFile(filepath.Join(backup, entries[0].Name(), "README.md"))
	if err != nil || string(data) != "# site" {
		t.Fatalf("expected README.md in backup, got %q (err: %v)", data, err)
	}

	if names, _ := repo.WorkingCopy().List(); !slices.Equal(names, []string{".git"}) {
		t.Fatalf("expected only metadata on the new branch, got %v", names)
	}

	if branch, _ := repo.Branch(); branch != "content" {
		t.Fatalf("expected content branch, got %q", branch)
	}

	err = operation.Run(ctx, operation.New("/update"), func(ctx context.Context, op *operation.Operation) error {
		if err := c.RecordChange(ctx, op, "Saved node 1"); err != nil {
			return err
		}
		return repo.WorkingCopy().WriteFile("root/1.ini", []byte("v1"))
	})
	if err != nil {
		t.Fatal(err)
	}

	check := gitrepo.New(&config.Repository{URL: remote, Path: filepath.Join(t.TempDir(), "check")})
	if err := check.Checkout(ctx, vcs.CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := check.Checkout(ctx, vcs.CheckoutOptions{Branch: "content"}); err != nil {
		t.Fatal(err)
	}

	if got := readGitFile(t, check, "root/1.ini"); got != "v1" {
		t.Fatalf("expected content branch on the remote, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(check.WorkingCopy().Path(), "README.md")); !os.IsNotExist(err) {
		t.Fatalf("expected content branch without master files, got %v", err)
	}
}
