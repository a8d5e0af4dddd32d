// Package store is the optional Alert Audit Store: a Postgres sink
// for alert history, enabled only when a database URL is configured.
package store

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsewatch/model"
)

type DB struct {
	pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT PRIMARY KEY,
			service     TEXT NOT NULL,
			type        TEXT NOT NULL,
			severity    TEXT NOT NULL,
			message     TEXT NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_service ON alerts(service, triggered_at DESC);
		CREATE INDEX IF NOT EXISTS idx_alerts_triggered_at ON alerts(triggered_at DESC);
	`)
	return err
}

// InsertAlert records one alert for long-term audit, beyond the
// bounded in-memory ring the alert manager keeps for the Read API.
func (db *DB) InsertAlert(ctx context.Context, a model.Alert) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO alerts (id, service, type, severity, message, triggered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Service, a.Type, a.Severity, a.Message, a.Timestamp,
	)
	return err
}

type AlertFilter struct {
	Service string
	Since   time.Time
	Limit   int
}

// ListAlerts queries the audit table, most recent first.
func (db *DB) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	switch {
	case f.Service != "":
		rows, err = db.pool.Query(ctx,
			`SELECT id, service, type, severity, message, triggered_at
			 FROM alerts WHERE service = $1 AND triggered_at >= $2
			 ORDER BY triggered_at DESC LIMIT $3`,
			f.Service, f.Since, limit,
		)
	default:
		rows, err = db.pool.Query(ctx,
			`SELECT id, service, type, severity, message, triggered_at
			 FROM alerts WHERE triggered_at >= $1
			 ORDER BY triggered_at DESC LIMIT $2`,
			f.Since, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.Service, &a.Type, &a.Severity, &a.Message, &a.Timestamp); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// PruneAlerts removes audit rows older than retention, mirroring the
// Log Store's own rotation policy.
func (db *DB) PruneAlerts(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM alerts WHERE triggered_at < now() - $1::interval`,
		retention.String(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RunPruneSchedule blocks, pruning at the next local midnight and
// every 24 hours thereafter, until stop is closed. Runs alongside
// logstore's own rotation schedule so the durable audit table ages
// out on the same cadence as the on-disk log files.
func (db *DB) RunPruneSchedule(retention time.Duration, stop <-chan struct{}) {
	for {
		wait := timeUntilNextMidnight()
		select {
		case <-stop:
			return
		case <-time.After(wait):
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := db.PruneAlerts(ctx, retention)
			cancel()
			if err != nil {
				log.Printf("store: prune alerts: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("store: pruned %d alert(s) older than %s", n, retention)
			}
		}
	}
}

func timeUntilNextMidnight() time.Duration {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return midnight.Sub(now)
}
