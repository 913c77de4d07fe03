package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timescale/sqlreadbench/pkg/targets"
)

func TestConnectString(t *testing.T) {
	cases := []struct {
		name string
		opts targets.Options
		want string
	}{
		{
			name: "db name replaces the one in the connect string",
			opts: targets.Options{PostgresConnect: "host=pg dbname=other user=postgres sslmode=disable", DBName: "benchmark"},
			want: "dbname=benchmark host=pg  user=postgres sslmode=disable",
		},
		{
			name: "no db name",
			opts: targets.Options{PostgresConnect: "host=pg user=postgres"},
			want: "host=pg user=postgres",
		},
		{
			name: "text format",
			opts: targets.Options{PostgresConnect: "host=pg", ForceTextFormat: true},
			want: "host=pg disable_prepared_binary_result=yes binary_parameters=no",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, connectString(c.opts))
		})
	}
}

func TestDriverSelection(t *testing.T) {
	assert.Equal(t, "pgx", NewTarget(targets.Options{}).DriverName())
	assert.Equal(t, "postgres", NewTarget(targets.Options{ForceTextFormat: true}).DriverName())
}

func TestQueries(t *testing.T) {
	tg := NewTarget(targets.Options{PostgresConnect: "host=pg"})
	assert.Equal(t, "SELECT a, b, c, d FROM table1 WHERE x = $1", tg.LookupQuery())
	assert.Equal(t, "INSERT INTO table1 (x, a, b, c, d) VALUES ($1, $2, $3, $4, $5)", tg.InsertQuery())
	assert.Equal(t, tg.ReaderDSN(), tg.WriterDSN())
	assert.Contains(t, tg.SessionStatements(), "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY")
}
