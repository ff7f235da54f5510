// Package sqlite archives every fetched candle snapshot to a local
// database. The archive is write-behind: the controller hands batches
// to an in-memory queue and a single writer goroutine commits them in
// transactions, so a slow disk never stalls a chart switch.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chartsync/internal/metrics"
	"chartsync/internal/model"
)

const (
	defaultQueueCap   = 64
	defaultFlushDelay = 200 * time.Millisecond
)

// ArchiveConfig configures the candle archive.
type ArchiveConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"

	// Metrics, when set, records rows written and flush latency.
	Metrics *metrics.Metrics
}

// Archive is a single-goroutine SQLite writer with transaction batching.
type Archive struct {
	db    *sql.DB
	queue chan archiveJob
	met   *metrics.Metrics
}

type archiveJob struct {
	sel     model.SeriesSelector
	candles []model.Candle
}

// DB returns the underlying sql.DB for health checks.
func (a *Archive) DB() *sql.DB { return a.db }

// New creates an Archive, initializing the database with WAL mode and
// the candle schema.
func New(cfg ArchiveConfig) (*Archive, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened archive at %s", cfg.DBPath)
	return &Archive{
		db:    db,
		queue: make(chan archiveJob, defaultQueueCap),
		met:   cfg.Metrics,
	}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    INTEGER,
			PRIMARY KEY (symbol, timeframe, ts)
		);
	`)
	return err
}

// Archive queues a snapshot's bars for storage. Never blocks; when the
// queue is full the batch is dropped with a log line.
func (a *Archive) Archive(sel model.SeriesSelector, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	job := archiveJob{sel: sel, candles: append([]model.Candle(nil), candles...)}
	select {
	case a.queue <- job:
	default:
		log.Printf("[sqlite] archive queue full, dropping %d bars for %s", len(candles), sel.Key())
	}
}

// Run commits queued batches until ctx is cancelled. Batches are
// coalesced: everything queued when the flush timer fires goes into
// one transaction.
func (a *Archive) Run(ctx context.Context) {
	var pending []archiveJob
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		start := time.Now()
		rows, err := a.insertJobs(pending)
		if err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", rows, time.Since(start))
			if a.met != nil {
				a.met.ArchiveRows.Add(float64(rows))
				a.met.ArchiveFlushes.Observe(time.Since(start).Seconds())
			}
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case job := <-a.queue:
			pending = append(pending, job)
			// Drain whatever else is queued before deciding to flush.
			n := len(a.queue)
			for i := 0; i < n; i++ {
				pending = append(pending, <-a.queue)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertJobs writes all jobs in a single transaction. Returns rows written.
func (a *Archive) insertJobs(jobs []archiveJob) (int, error) {
	tx, err := a.db.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	rows := 0
	for _, job := range jobs {
		for _, c := range job.candles {
			_, err := stmt.Exec(job.sel.Symbol, string(job.sel.Timeframe), c.Time.Unix(),
				c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				tx.Rollback()
				return 0, err
			}
			rows++
		}
	}

	return rows, tx.Commit()
}

// LastTimestamp returns the newest archived bar time for a series, or
// the zero time when nothing is stored.
func (a *Archive) LastTimestamp(sel model.SeriesSelector) (time.Time, error) {
	var ts sql.NullInt64
	err := a.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe = ?`,
		sel.Symbol, string(sel.Timeframe),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// LoadRange reads archived bars for a series in [from, to], oldest
// first. Backs the gateway's archive endpoint.
func (a *Archive) LoadRange(ctx context.Context, sel model.SeriesSelector, from, to time.Time) ([]model.Candle, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC
	`, sel.Symbol, string(sel.Timeframe), from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var ts int64
		var c model.Candle
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Time = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
