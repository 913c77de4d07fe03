// Package postgres runs the same point lookup against a PostgreSQL server. The
// binary protocol goes through pgx; --force-text-format switches to lib/pq with
// binary parameters disabled.
package postgres

import (
	"fmt"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/lib/pq"

	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/targets/constants"
)

const (
	pgxDriver = "pgx"
	pqDriver  = "postgres"
)

var dbNameParam = regexp.MustCompile(`(dbname)=\S*\b`)

type target struct {
	opts    targets.Options
	connStr string
}

func NewTarget(opts targets.Options) targets.ImplementedTarget {
	return &target{opts: opts, connStr: connectString(opts)}
}

func connectString(opts targets.Options) string {
	connStr := strings.TrimSpace(dbNameParam.ReplaceAllString(opts.PostgresConnect, ""))
	if opts.DBName != "" {
		connStr = fmt.Sprintf("dbname=%s %s", opts.DBName, connStr)
	}
	if opts.ForceTextFormat {
		connStr = fmt.Sprintf("%s disable_prepared_binary_result=yes binary_parameters=no", connStr)
	}
	return strings.TrimSpace(connStr)
}

func (t *target) TargetName() string { return constants.FormatPostgres }

func (t *target) DriverName() string {
	if t.opts.ForceTextFormat {
		return pqDriver
	}
	return pgxDriver
}

func (t *target) ReaderDSN() string { return t.connStr }

func (t *target) WriterDSN() string { return t.connStr }

// SessionStatements make the session read only and relax commit durability.
// Page cache and mmap sizes are server settings in PostgreSQL, so those
// tunables do not apply here.
func (t *target) SessionStatements() []string {
	return []string{
		"SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY",
		"SET synchronous_commit = off",
	}
}

func (t *target) LookupQuery() string {
	return targets.LookupSQL("$1")
}

func (t *target) InsertQuery() string {
	return targets.InsertSQL([5]string{"$1", "$2", "$3", "$4", "$5"})
}

func (t *target) DBCreator() targets.DBCreator {
	return &dbCreator{driver: t.DriverName(), connStr: t.connStr}
}
