package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for the content control plane.

const (
	DefaultRemote      = "origin"
	DefaultCommitLimit = 10
	DefaultAddr        = ":8282"
)

// DefaultMetadata names the top-level working copy entries that belong to
// the version control system rather than to the content tree.
var DefaultMetadata = StringSet{".git"}

// Root is the top-level configuration structure.
type Root struct {
	Repository *Repository        `json:"repository,omitempty"`
	Secrets    map[string]*Secret `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.
	Database   *Database          `json:"database,omitempty"`
	Service    *Service           `json:"service,omitempty"`
}

// UnmarshalYAML implements the yaml.BytesUnmarshaler interface for the Root
// struct. It is used to inject the secret store into each secret reference so
// that internal callers can resolve secret values as needed.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Secrets {
		r.Secrets[name] = cmp.Or(r.Secrets[name], &Secret{})
		r.Secrets[name].Name = name
	}

	if r.Repository != nil {
		if r.Repository.Credentials != nil {
			r.Repository.Credentials.value = r.Secrets[r.Repository.Credentials.Name]
		}
		if err := r.Repository.validate(); err != nil {
			return err
		}
	}

	return nil
}

// JournalDatabase returns the configured database. Without one, the journal
// is kept in a SQLite file next to the working copy, or in memory when no
// working copy is configured either.
func (r *Root) JournalDatabase() *Database {
	if r.Database != nil || r.Repository == nil || r.Repository.Path == "" {
		return r.Database
	}
	return &Database{SQL: &SQLDatabase{Driver: "sqlite", DSN: r.Repository.JournalFile()}}
}

func (r *Root) SortedSecrets() iter.Seq2[int, *Secret] {
	return iterator(r.Secrets, func(s *Secret) string { return s.Name })
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

// Repository defines the content repository: the remote, where its working
// copy lives, and the branch the content tree is kept on.
type Repository struct {
	URL             string     `json:"url"`
	Path            string     `json:"path"`
	Branch          string     `json:"branch"`
	Remote          string     `json:"remote,omitempty"`
	Push            *bool      `json:"push,omitempty"`
	// If nil, use the default SSH authentication mechanisms available or no
	// authentication for public repos. Note, JSON schema validation overrides
	// this to string type.
	Credentials     *SecretRef `json:"credentials,omitempty"`
	Author          Author     `json:"author,omitzero"`
	Backup          Backup     `json:"backup,omitzero"`
	RefreshInterval Duration   `json:"refresh_interval,omitzero"`
	CommitLimit     int        `json:"commit_limit,omitempty" minimum:"0"`

	_ struct{} `additionalProperties:"false"`
}

func (r *Repository) RemoteName() string {
	return cmp.Or(r.Remote, DefaultRemote)
}

// PushEnabled reports whether commits are pushed to the remote. Pushing is on
// unless explicitly disabled.
func (r *Repository) PushEnabled() bool {
	return r.Push == nil || *r.Push
}

// JournalFile is the default journal database of the working copy.
func (r *Repository) JournalFile() string {
	return filepath.Clean(r.Path) + ".journal.db"
}

func (r *Repository) Limit() int {
	return cmp.Or(r.CommitLimit, DefaultCommitLimit)
}

func (r *Repository) Equal(other *Repository) bool {
	return fastEqual(r, other, func(r, other *Repository) bool {
		return r.URL == other.URL &&
			r.Path == other.Path &&
			r.Branch == other.Branch &&
			r.RemoteName() == other.RemoteName() &&
			r.PushEnabled() == other.PushEnabled() &&
			r.Credentials.Equal(other.Credentials) &&
			r.Author == other.Author &&
			r.Backup.Equal(&other.Backup) &&
			r.RefreshInterval == other.RefreshInterval &&
			r.Limit() == other.Limit()
	})
}

func (r *Repository) validate() error {
	if err := r.Backup.validate(); err != nil {
		return err
	}
	return r.Backup.ValidateDirectory(r.Path)
}

// Author is the identity recorded on content commits.
type Author struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (a Author) NameOrDefault() string {
	return cmp.Or(a.Name, "Content Control Plane")
}

func (a Author) EmailOrDefault() string {
	return cmp.Or(a.Email, "ccp@localhost")
}

// Backup controls the copy taken of the working copy before it is cleared for
// a branch switch.
type Backup struct {
	Directory string    `json:"directory,omitempty"` // Defaults to "<path>.backup".
	Metadata  StringSet `json:"metadata,omitempty"`  // Glob patterns of VCS metadata entries, defaults to [".git"].

	_ struct{} `additionalProperties:"false"`
}

func (b *Backup) DirectoryFor(path string) string {
	if b.Directory != "" {
		return b.Directory
	}
	return filepath.Clean(path) + ".backup"
}

// MetadataPatterns returns the compiled metadata patterns.
func (b *Backup) MetadataPatterns() ([]glob.Glob, error) {
	patterns := b.Metadata
	if len(patterns) == 0 {
		patterns = DefaultMetadata
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile metadata pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// ValidateDirectory rejects a backup directory inside the working copy at
// path, which a backup would copy into itself.
func (b *Backup) ValidateDirectory(path string) error {
	if path == "" || b.Directory == "" {
		return nil
	}

	wc, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(b.Directory)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(wc, dir)
	if err != nil {
		return nil
	}

	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("backup directory %s is inside the working copy %s", b.Directory, path)
	}

	return nil
}

func (b *Backup) Equal(other *Backup) bool {
	return fastEqual(b, other, func(b, other *Backup) bool {
		return b.Directory == other.Directory && b.Metadata.Equal(other.Metadata)
	})
}

func (b *Backup) validate() error {
	_, err := b.MetadataPatterns()
	return err
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func (a StringSet) Add(value string) StringSet {
	i := sort.Search(len(a), func(i int) bool { return a[i] >= value })
	if i < len(a) && a[i] == value {
		return a
	}

	return slices.Insert(a, i, value)
}

// Database configures the commit journal. Without one, the journal is kept in
// "<path>.journal.db" next to the working copy, see Root.JournalDatabase.
type Database struct {
	SQL *SQLDatabase `json:"sql,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type SQLDatabase struct {
	Driver string `json:"driver" enum:"sqlite,sqlite3,postgres,pgx,mysql"`
	DSN    string `json:"dsn"`

	_ struct{} `additionalProperties:"false"`
}

type Service struct {
	// Addr is the listen address of the HTTP server.
	Addr string `json:"addr,omitempty"`
	// ApiPrefix prefixes all endpoints (including health and metrics) with its value. It is important to start with `/` and not end with `/`.
	// For example `/my/path` will make health endpoint be accessible under `/my/path/health`
	ApiPrefix string   `json:"api_prefix,omitempty" pattern:"^/([^/].*[^/])?$"`
	_         struct{} `additionalProperties:"false"`
}

func (s *Service) ListenAddr() string {
	if s == nil {
		return DefaultAddr
	}
	return cmp.Or(s.Addr, DefaultAddr)
}

func (s *Service) Prefix() string {
	if s == nil {
		return ""
	}
	return s.ApiPrefix
}

func fastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}
