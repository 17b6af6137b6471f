// Package journal keeps an SQL audit trail of the content commits made through
// the control plane.
package journal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/achille-roussel/sqlrange"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib" // database/sql compatible driver for pgx
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	moderncsqlite "modernc.org/sqlite"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/logging"
)

const (
	sqlite = iota
	postgres
	mysql
)

const SQLiteMemoryOnlyDSN = "file::memory:?cache=shared"

var ErrNotInitialized = errors.New("journal not initialized")

// Entry is one committed operation.
type Entry struct {
	ID          int64     `json:"id"`
	Revision    string    `json:"revision"`
	Branch      string    `json:"branch"`
	Message     string    `json:"message"`
	CommittedAt time.Time `json:"committed_at"`
}

type row struct {
	ID          int64  `sql:"id"`
	Revision    string `sql:"revision"`
	Branch      string `sql:"branch"`
	Message     string `sql:"message"`
	CommittedAt int64  `sql:"committed_at"`
}

// Journal hides the differences between the supported SQL databases from the rest of the codebase.
type Journal struct {
	db     *sql.DB
	config *config.Database
	kind   int
	log    *logging.Logger
}

func New() *Journal {
	return &Journal{log: logging.NewNop()}
}

func (j *Journal) WithConfig(config *config.Database) *Journal {
	j.config = config
	return j
}

func (j *Journal) WithLogger(log *logging.Logger) *Journal {
	j.log = log
	return j
}

// Init opens the database and applies the schema migrations. Without a
// configured database the journal lives in a memory-only SQLite database.
func (j *Journal) Init(ctx context.Context) error {
	var (
		dsn string
		drv driver.Driver
	)

	switch {
	case j.config == nil || j.config.SQL == nil:
		j.kind, dsn, drv = sqlite, SQLiteMemoryOnlyDSN, &moderncsqlite.Driver{}

	case j.config.SQL.Driver == "sqlite3" || j.config.SQL.Driver == "sqlite":
		j.kind, dsn, drv = sqlite, os.ExpandEnv(j.config.SQL.DSN), &moderncsqlite.Driver{}
		if dsn == "" {
			dsn = SQLiteMemoryOnlyDSN
		}

	case j.config.SQL.Driver == "postgres" || j.config.SQL.Driver == "pgx":
		j.kind, dsn, drv = postgres, os.ExpandEnv(j.config.SQL.DSN), stdlib.GetDefaultDriver()

	case j.config.SQL.Driver == "mysql":
		dsn = os.ExpandEnv(j.config.SQL.DSN)
		if _, err := mysqldriver.ParseDSN(dsn); err != nil {
			return err
		}
		j.kind, drv = mysql, &mysqldriver.MySQLDriver{}

	default:
		return fmt.Errorf("unsupported database driver: %s", j.config.SQL.Driver)
	}

	j.db = sqldblogger.OpenDriver(dsn, drv, zerologadapter.New(j.log.Zerolog()),
		sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
	)

	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to journal database: %w", err)
	}

	if err := j.migrate(); err != nil {
		return fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return nil
}

func (j *Journal) migrate() error {
	var (
		instance database.Driver
		name     string
		err      error
	)

	switch j.kind {
	case sqlite:
		name = "sqlite"
		instance, err = migratesqlite.WithInstance(j.db, &migratesqlite.Config{})
	case postgres:
		name = "pgx"
		instance, err = migratepgx.WithInstance(j.db, &migratepgx.Config{})
	case mysql:
		name = "mysql"
		instance, err = migratemysql.WithInstance(j.db, &migratemysql.Config{})
	}
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS(j.kind), ".")
	if err != nil {
		return err
	}

	// The migrate instance is not closed: that would close the shared database handle.
	m, err := migrate.NewWithInstance("iofs", src, name, instance)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends an entry. A zero CommittedAt is replaced by the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j.db == nil {
		return ErrNotInitialized
	}

	if e.CommittedAt.IsZero() {
		e.CommittedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO commits (revision, branch, message, committed_at) VALUES (`+j.arg(0)+`, `+j.arg(1)+`, `+j.arg(2)+`, `+j.arg(3)+`)`,
		e.Revision, e.Branch, e.Message, e.CommittedAt.UnixMilli())
	return err
}

// List returns at most limit entries, newest first. A limit of zero or less lists everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrNotInitialized
	}

	query := `SELECT id, revision, branch, message, committed_at FROM commits ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ` + j.arg(0)
		args = append(args, limit)
	}

	var entries []Entry
	for r, err := range sqlrange.QueryContext[row](ctx, j.db, query, args...) {
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{
			ID:          r.ID,
			Revision:    r.Revision,
			Branch:      r.Branch,
			Message:     r.Message,
			CommittedAt: time.UnixMilli(r.CommittedAt).UTC(),
		})
	}

	return entries, nil
}

func (j *Journal) arg(i int) string {
	if j.kind == postgres {
		return "$" + strconv.Itoa(i+1)
	}
	return "?"
}
