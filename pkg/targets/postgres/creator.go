package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/timescale/sqlreadbench/pkg/targets"
)

type dbCreator struct {
	driver  string
	connStr string
	db      *sqlx.DB
}

func (d *dbCreator) Init() error {
	db, err := sqlx.Connect(d.driver, d.connStr)
	if err != nil {
		return errors.Wrap(err, "connect to postgres")
	}
	d.db = db
	return nil
}

func (d *dbCreator) DBExists() (bool, error) {
	var exists bool
	err := d.db.Get(&exists, "SELECT to_regclass($1) IS NOT NULL", targets.TableName)
	return exists, err
}

func (d *dbCreator) RemoveOldDB() error {
	_, err := d.db.Exec("DROP TABLE IF EXISTS " + targets.TableName)
	return err
}

func (d *dbCreator) CreateDB(createIndex bool) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id BIGSERIAL PRIMARY KEY,
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
		if _, err := d.db.Exec(s); err != nil {
			return errors.Wrapf(err, "exec %q", s)
		}
	}
	return nil
}

func (d *dbCreator) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
