// Package load builds the benchmark fixture: a freshly created table holding an
// exact number of rows whose lookup keys are drawn uniformly at random.
package load

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/workload"
)

const defaultBatchSize = 10000

type FixtureConfig struct {
	Rows            uint64
	XRange          int64
	BatchSize       uint
	CreateIndex     bool
	ReportingPeriod time.Duration
}

type FixtureSummary struct {
	Rows uint64
	Took time.Duration
}

func (s FixtureSummary) RowRate() float64 {
	if s.Took <= 0 {
		return 0
	}
	return float64(s.Rows) / s.Took.Seconds()
}

type row struct {
	x    int64
	text string
}

// FixtureBuilder inserts rows with a single writer; batches are produced one
// step ahead of it.
type FixtureBuilder struct {
	FixtureConfig
	target targets.ImplementedTarget
	log    *logrus.Entry
	rowCnt uint64
}

func NewFixtureBuilder(config FixtureConfig, target targets.ImplementedTarget, log *logrus.Entry) *FixtureBuilder {
	if config.BatchSize == 0 {
		config.BatchSize = defaultBatchSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FixtureBuilder{FixtureConfig: config, target: target, log: log.WithField("target", target.TargetName())}
}

// BuildFixture is a convenience wrapper around NewFixtureBuilder and Build.
func BuildFixture(ctx context.Context, target targets.ImplementedTarget, config FixtureConfig, log *logrus.Entry) (FixtureSummary, error) {
	return NewFixtureBuilder(config, target, log).Build(ctx)
}

// Build destroys any previous fixture, creates the schema and inserts exactly
// Rows rows. The row count is checked before Build returns.
func (l *FixtureBuilder) Build(ctx context.Context) (FixtureSummary, error) {
	if l.Rows == 0 {
		return FixtureSummary{}, errors.New("fixture needs at least one row")
	}
	if l.XRange < 1 {
		return FixtureSummary{}, errors.Errorf("key range must be positive, got %d", l.XRange)
	}

	closeFn, err := l.useDBCreator(l.target.DBCreator())
	if err != nil {
		return FixtureSummary{}, err
	}
	defer closeFn()

	db, err := sqlx.Connect(l.target.DriverName(), l.target.WriterDSN())
	if err != nil {
		return FixtureSummary{}, errors.Wrap(err, "connect writer")
	}
	defer db.Close()

	start := time.Now()
	stopReport := l.report(l.ReportingPeriod)

	batches := make(chan []row, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return l.scan(gctx, batches)
	})
	g.Go(func() error {
		return l.work(gctx, db, batches)
	})
	err = g.Wait()
	stopReport()
	if err != nil {
		return FixtureSummary{}, err
	}
	took := time.Since(start)

	if err := l.verify(db); err != nil {
		return FixtureSummary{}, err
	}

	summary := FixtureSummary{Rows: atomic.LoadUint64(&l.rowCnt), Took: took}
	l.log.WithFields(logrus.Fields{
		"rows":    summary.Rows,
		"took":    took.Round(time.Millisecond),
		"rowRate": fmt.Sprintf("%0.2f", summary.RowRate()),
	}).Info("fixture loaded")
	return summary, nil
}

// useDBCreator always removes the previous fixture.
func (l *FixtureBuilder) useDBCreator(dbc targets.DBCreator) (func(), error) {
	closeFn := func() {}
	if err := dbc.Init(); err != nil {
		return closeFn, errors.Wrap(err, "init store")
	}
	if dbcc, ok := dbc.(targets.DBCreatorCloser); ok {
		closeFn = func() {
			if err := dbcc.Close(); err != nil {
				l.log.WithError(err).Debug("closing db creator")
			}
		}
	}

	exists, err := dbc.DBExists()
	if err != nil {
		closeFn()
		return func() {}, errors.Wrap(err, "check for existing fixture")
	}
	if exists {
		l.log.Info("removing existing fixture")
	}
	if err := dbc.RemoveOldDB(); err != nil {
		closeFn()
		return func() {}, errors.Wrap(err, "remove existing fixture")
	}
	if err := dbc.CreateDB(l.CreateIndex); err != nil {
		closeFn()
		return func() {}, errors.Wrap(err, "create schema")
	}
	return closeFn, nil
}

// scan generates the rows batch by batch.
func (l *FixtureBuilder) scan(ctx context.Context, out chan<- []row) error {
	src, err := workload.NewKeySource(workload.DistributionUniform, l.XRange)
	if err != nil {
		return err
	}
	r := workload.NewRand()

	batch := make([]row, 0, l.BatchSize)
	for i := uint64(0); i < l.Rows; i++ {
		batch = append(batch, row{x: src.Next(r), text: fmt.Sprintf("v%d", i)})
		if len(batch) == int(l.BatchSize) || i == l.Rows-1 {
			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			batch = make([]row, 0, l.BatchSize)
		}
	}
	return nil
}

// work inserts every batch in its own transaction.
func (l *FixtureBuilder) work(ctx context.Context, db *sqlx.DB, in <-chan []row) error {
	insert := l.target.InsertQuery()
	for batch := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := insertBatch(db, insert, batch); err != nil {
			return err
		}
		atomic.AddUint64(&l.rowCnt, uint64(len(batch)))
	}
	return nil
}

func insertBatch(db *sqlx.DB, insert string, batch []row) error {
	tx, err := db.Beginx()
	if err != nil {
		return errors.Wrap(err, "begin insert transaction")
	}
	stmt, err := tx.Preparex(insert)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare insert")
	}
	for _, r := range batch {
		if _, err := stmt.Exec(r.x, r.text, r.text, r.text, r.text); err != nil {
			stmt.Close()
			tx.Rollback()
			return errors.Wrap(err, "insert row")
		}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "close insert statement")
	}
	return errors.Wrap(tx.Commit(), "commit insert transaction")
}

func (l *FixtureBuilder) verify(db *sqlx.DB) error {
	var count uint64
	if err := db.Get(&count, "SELECT COUNT(*) FROM "+targets.TableName); err != nil {
		return errors.Wrap(err, "count fixture rows")
	}
	if count != l.Rows {
		return errors.Errorf("fixture has %d rows, expected %d", count, l.Rows)
	}
	return nil
}

// report logs insert progress every period until the returned func is called.
func (l *FixtureBuilder) report(period time.Duration) func() {
	if period <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		start := time.Now()
		prevTime := start
		prevRowCount := uint64(0)
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				rCount := atomic.LoadUint64(&l.rowCnt)
				took := now.Sub(prevTime)
				l.log.WithFields(logrus.Fields{
					"rows":        rCount,
					"periodRate":  fmt.Sprintf("%0.2f", float64(rCount-prevRowCount)/took.Seconds()),
					"overallRate": fmt.Sprintf("%0.2f", float64(rCount)/now.Sub(start).Seconds()),
				}).Info("loading fixture")
				prevRowCount = rCount
				prevTime = now
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
