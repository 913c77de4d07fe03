package targets

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Reader is a single private connection with the point lookup prepared on it.
// It is not safe for concurrent use; every execution unit opens its own.
type Reader struct {
	db   *sql.DB
	conn *sql.Conn
	stmt *sql.Stmt

	a, b, c, d sql.RawBytes
}

// OpenReader opens one connection to the target, applies the session statements
// and prepares the lookup. Failures here are connection failures: nothing has
// been measured yet.
func OpenReader(ctx context.Context, t ImplementedTarget) (*Reader, error) {
	db, err := sql.Open(t.DriverName(), t.ReaderDSN())
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", t.TargetName())
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect to %s", t.TargetName())
	}

	r := &Reader{db: db, conn: conn}
	for _, s := range t.SessionStatements() {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "apply %q", s)
		}
	}

	r.stmt, err = conn.PrepareContext(ctx, t.LookupQuery())
	if err != nil {
		r.Close()
		return nil, errors.Wrap(err, "prepare lookup")
	}
	return r, nil
}

// Lookup runs the prepared query for key, scans and discards every row and
// returns the number of rows seen. It deliberately takes no context: a
// cancellable context makes some drivers start a watcher per query, which
// would be measured as part of the lookup.
func (r *Reader) Lookup(key int64) (int, error) {
	rows, err := r.stmt.Query(key)
	if err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		if err := rows.Scan(&r.a, &r.b, &r.c, &r.d); err != nil {
			rows.Close()
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return n, err
	}
	return n, rows.Close()
}

func (r *Reader) Close() error {
	var firstErr error
	if r.stmt != nil {
		if err := r.stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
