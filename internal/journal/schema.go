package journal

import (
	"fmt"
	"io/fs"
	"strings"
	"testing/fstest"
)

// Schema statements are generated per dialect so the same table definition
// holds for sqlite, postgres and mysql.

type sqlType interface {
	SQL(kind int) string
}

type sqlInteger struct{}

type sqlBigInt struct{}

type sqlText struct{}

type sqlVarChar struct{}

func (sqlInteger) SQL(kind int) string {
	if kind == mysql {
		return "INT"
	}
	return "INTEGER"
}

func (sqlBigInt) SQL(kind int) string {
	if kind == sqlite {
		return "INTEGER"
	}
	return "BIGINT"
}

func (sqlText) SQL(int) string {
	return "TEXT"
}

func (sqlVarChar) SQL(kind int) string {
	if kind == sqlite {
		return "TEXT"
	}
	return "VARCHAR(255)"
}

type sqlColumn struct {
	Name                    string
	Type                    sqlType
	NotNull                 bool
	AutoIncrementPrimaryKey bool
}

func (c sqlColumn) SQL(kind int) string {
	var parts []string

	if c.AutoIncrementPrimaryKey {
		switch kind {
		case sqlite:
			parts = append(parts, c.Name, sqlInteger{}.SQL(kind))
		case postgres:
			parts = append(parts, c.Name, "SERIAL")
		case mysql:
			parts = append(parts, c.Name, sqlInteger{}.SQL(kind), "AUTO_INCREMENT")
		}
	} else {
		parts = append(parts, c.Name, c.Type.SQL(kind))
		if c.NotNull {
			parts = append(parts, "NOT NULL")
		}
	}

	return strings.Join(parts, " ")
}

type sqlTable struct {
	name      string
	columns   []sqlColumn
	iteration string // prefix for constraints
}

func createSQLTable(name string) *sqlTable {
	return &sqlTable{name: name, iteration: "ccp_v1"}
}

func (t *sqlTable) IntegerPrimaryKeyAutoincrementColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlInteger{}, AutoIncrementPrimaryKey: true})
	return t
}

func (t *sqlTable) VarCharNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlVarChar{}, NotNull: true})
	return t
}

func (t *sqlTable) TextNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlText{}, NotNull: true})
	return t
}

func (t *sqlTable) BigIntNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlBigInt{}, NotNull: true})
	return t
}

func (t *sqlTable) SQL(kind int) string {
	c := make([]string, len(t.columns))
	for i := range t.columns {
		c[i] = t.columns[i].SQL(kind)
	}

	// Constraint names are ours so later migrations can refer to them on every database.
	for i := range t.columns {
		if t.columns[i].AutoIncrementPrimaryKey {
			c = append(c, fmt.Sprintf("CONSTRAINT %[1]s_%[2]s_%[3]s_pkey PRIMARY KEY (%[3]s)", t.iteration, t.name, t.columns[i].Name))
		}
	}

	return `CREATE TABLE IF NOT EXISTS ` + t.name + ` (` + strings.Join(c, ", ") + `)`
}

var commitsTable = createSQLTable("commits").
	IntegerPrimaryKeyAutoincrementColumn("id").
	VarCharNonNullColumn("revision").
	VarCharNonNullColumn("branch").
	TextNonNullColumn("message").
	BigIntNonNullColumn("committed_at")

// migrationsFS returns the migrations for the given database kind, named the
// way golang-migrate expects them.
func migrationsFS(kind int) fs.FS {
	return mapFS(map[string]string{
		"001_create_commits.up.sql": commitsTable.SQL(kind),
	})
}

func mapFS(m map[string]string) fs.FS {
	m0 := make(map[string]*fstest.MapFile, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: []byte(f)}
	}
	return fstest.MapFS(m0)
}
