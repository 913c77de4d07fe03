package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/timescale/sqlreadbench/pkg/targets"
)

var sideFileSuffixes = []string{"-wal", "-shm", "-journal"}

type dbCreator struct {
	driver string
	path   string
	dsn    string
}

func (d *dbCreator) Init() error {
	if d.path == "" {
		return errors.New("sqlite target needs a database path")
	}
	dir := filepath.Dir(d.path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "could not make directory %s for sqlite db", dir)
		}
	}
	return nil
}

func (d *dbCreator) DBExists() (bool, error) {
	_, err := os.Stat(d.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// RemoveOldDB deletes the database file together with any WAL, shared memory or
// rollback journal left behind by an earlier run.
func (d *dbCreator) RemoveOldDB() error {
	for _, p := range append([]string{d.path}, sidePaths(d.path)...) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}

func (d *dbCreator) CreateDB(createIndex bool) error {
	db, err := sqlx.Connect(d.driver, d.dsn)
	if err != nil {
		return errors.Wrapf(err, "create %s", d.path)
	}
	defer db.Close()

	var mode string
	if err := db.Get(&mode, "PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL")
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY,
			x  INTEGER NOT NULL,
			a  TEXT,
			b  TEXT,
			c  TEXT,
			d  TEXT
		)`, targets.TableName),
	}
	if createIndex {
		stmts = append(stmts, targets.CreateIndexSQL())
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return errors.Wrapf(err, "exec %q", s)
		}
	}
	return nil
}

func sidePaths(path string) []string {
	out := make([]string, 0, len(sideFileSuffixes))
	for _, s := range sideFileSuffixes {
		out = append(out, path+s)
	}
	return out
}
