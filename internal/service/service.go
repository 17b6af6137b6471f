// Package service wires the content repository, its sync controller, the
// commit journal and the background refresh together. Every operation against
// the working copy goes through the service, which runs them one at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/contentsync"
	"github.com/content-control-plane/ccp/internal/gitrepo"
	"github.com/content-control-plane/ccp/internal/journal"
	"github.com/content-control-plane/ccp/internal/logging"
	"github.com/content-control-plane/ccp/internal/operation"
	"github.com/content-control-plane/ccp/internal/pool"
	"github.com/content-control-plane/ccp/pkg/vcs"
)

const refreshTask = "refresh"

var ErrInvalidNode = errors.New("invalid node reference")

var shutdownTimeout = 10 * time.Second

type Service struct {
	config  *config.Root
	log     *logging.Logger
	repo    vcs.Repository
	sync    *contentsync.Controller
	journal *journal.Journal

	// mu serializes every operation against the working copy, deferred
	// commits included.
	mu sync.Mutex
}

func New() *Service {
	return &Service{config: &config.Root{}, log: logging.NewNop()}
}

func (s *Service) WithConfig(cfg *config.Root) *Service {
	s.config = cfg
	return s
}

func (s *Service) WithLogger(log *logging.Logger) *Service {
	s.log = log
	return s
}

// WithRepository overrides the git working copy built from the configuration.
func (s *Service) WithRepository(repo vcs.Repository) *Service {
	s.repo = repo
	return s
}

// Init opens the journal and builds the sync controller. A configuration
// without repository yields a service whose operations fail as not configured.
func (s *Service) Init(ctx context.Context) error {
	cfg := s.config.Repository

	if s.repo == nil && cfg != nil {
		s.repo = gitrepo.New(cfg).WithLogger(s.log.With("repository", cfg.URL))
	}

	db := s.config.JournalDatabase()
	if s.config.Database == nil && db != nil {
		s.log.Infof("no database configured, keeping the journal in %s", db.SQL.DSN)
		if err := os.MkdirAll(filepath.Dir(db.SQL.DSN), 0o755); err != nil {
			return err
		}
	}

	s.journal = journal.New().WithConfig(db).WithLogger(s.log.With("component", "journal"))
	if err := s.journal.Init(ctx); err != nil {
		return err
	}

	var branch string
	var backup config.Backup
	if cfg != nil {
		branch, backup = cfg.Branch, cfg.Backup
	}

	s.sync = contentsync.New(s.repo, branch).
		WithBackup(backup).
		WithJournal(s.journal).
		WithLogger(s.log.With("branch", branch))

	return nil
}

// Run serves srv and refreshes the working copy in the background until ctx
// is done. srv may be nil.
func (s *Service) Run(ctx context.Context, srv *http.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	p := pool.New(ctx, 1)
	defer p.Stop()

	if interval := s.refreshInterval(); interval > 0 {
		if err := p.Add(refreshTask, s.refresh(interval)); err != nil {
			return err
		}
	}

	if srv != nil {
		g.Go(func() error {
			s.log.Infof("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

func (s *Service) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

func (s *Service) Config() *config.Root {
	return s.config
}

func (s *Service) Journal() *journal.Journal {
	return s.journal
}

// CommitLimit is the default number of commits listed.
func (s *Service) CommitLimit() int {
	if s.config.Repository == nil {
		return config.DefaultCommitLimit
	}
	return s.config.Repository.Limit()
}

func (s *Service) refreshInterval() time.Duration {
	if s.config.Repository == nil {
		return 0
	}
	return time.Duration(s.config.Repository.RefreshInterval)
}

// refresh returns the task pulling the content branch every interval.
func (s *Service) refresh(interval time.Duration) pool.Task {
	return func(ctx context.Context) time.Time {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.sync.Update(ctx, ""); err != nil {
			if errors.Is(err, contentsync.ErrNotConfigured) {
				var zero time.Time
				return zero
			}
			s.log.Warnf("failed to refresh working copy: %v", err)
		}

		return time.Now().Add(interval)
	}
}

// Do runs fn as one operation requested from referURL, holding the working
// copy for the whole operation including its deferred commit.
func (s *Service) Do(ctx context.Context, referURL string, fn func(context.Context, *operation.Operation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return operation.Run(ctx, operation.New(referURL), fn)
}

// Ensure makes sure the working copy is checked out on branch, or on the
// configured branch when branch is empty.
func (s *Service) Ensure(ctx context.Context, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sync.EnsureExists(ctx, branch)
}

// Update pulls the content branch. It never reports stale content.
func (s *Service) Update(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sync.Update(ctx, "")
}

func (s *Service) RecentCommits(ctx context.Context, limit int) []vcs.Commit {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sync.RecentCommits(ctx, limit)
}

// Record adds a change made directly to the working copy to op.
func (s *Service) Record(ctx context.Context, op *operation.Operation, description string, removedPaths ...string) error {
	if !s.sync.IsValid() {
		return &contentsync.ConfigurationError{Op: "record", Reason: contentsync.ErrNotConfigured}
	}
	return s.sync.RecordChange(ctx, op, description, removedPaths...)
}

// Change is one content edit of a batch.
type Change struct {
	Action string `json:"action"` // "save" or "remove"
	Root   string `json:"root"`
	ID     string `json:"id"`
	Body   string `json:"body,omitempty"`
}

// Apply records and applies changes as part of op.
func (s *Service) Apply(ctx context.Context, op *operation.Operation, changes ...Change) error {
	for _, c := range changes {
		var err error
		switch c.Action {
		case "save":
			err = s.saveNode(ctx, op, c.Root, c.ID, []byte(c.Body))
		case "remove":
			err = s.removeNode(ctx, op, c.Root, c.ID)
		default:
			err = fmt.Errorf("%w: unknown action %q", ErrInvalidNode, c.Action)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveNode(ctx context.Context, op *operation.Operation, root, id string, body []byte) error {
	file, err := nodeFile(root, id)
	if err != nil {
		return err
	}

	if !s.sync.IsValid() {
		return &contentsync.ConfigurationError{Op: "save", Reason: contentsync.ErrNotConfigured}
	}

	if err := s.sync.RecordChange(ctx, op, "Saved node "+id); err != nil {
		return err
	}

	if err := s.repo.WorkingCopy().WriteFile(file, body); err != nil {
		return &contentsync.BackendError{Op: "write", Err: err}
	}

	return nil
}

func (s *Service) removeNode(ctx context.Context, op *operation.Operation, root, id string) error {
	file, err := nodeFile(root, id)
	if err != nil {
		return err
	}

	if !s.sync.IsValid() {
		return &contentsync.ConfigurationError{Op: "remove", Reason: contentsync.ErrNotConfigured}
	}

	return s.sync.RecordChange(ctx, op, "Removed node "+id, file)
}

// nodeFile returns the working copy path holding node id of root.
func nodeFile(root, id string) (string, error) {
	for _, part := range []string{root, id} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidNode, part)
		}
	}
	return path.Join(root, id+".ini"), nil
}
