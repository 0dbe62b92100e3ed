// Package postgres archives session samples and alerts in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/and161185/biasmeter/internal/utils"
	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS bias_samples (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	male_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
	female_rate DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS bias_samples_session_ts ON bias_samples (session_id, ts);
CREATE TABLE IF NOT EXISTS bias_alerts (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	severity   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS bias_alerts_session_ts ON bias_alerts (session_id, ts);`

const (
	insertSample = `INSERT INTO bias_samples (session_id, ts, value, male_rate, female_rate) VALUES ($1, $2, $3, $4, $5)`
	insertAlert  = `INSERT INTO bias_alerts (session_id, ts, title, message, severity) VALUES ($1, $2, $3, $4, $5)`
	selectSample = `SELECT ts, value, male_rate, female_rate FROM bias_samples WHERE session_id = $1 ORDER BY ts DESC, id DESC LIMIT $2`
	selectAlert  = `SELECT ts, title, message, severity FROM bias_alerts WHERE session_id = $1 ORDER BY ts DESC, id DESC LIMIT $2`
)

type PostgresStorage struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Open connects with the pgx driver and creates the tables if needed.
func Open(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := New(db)
	if err := store.Bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Bootstrap creates the archive tables.
func (store *PostgresStorage) Bootstrap(ctx context.Context) error {
	err := utils.WithRetry(ctx, func() error {
		_, err := store.db.ExecContext(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (store *PostgresStorage) SaveSample(ctx context.Context, sessionID string, s model.Sample) error {
	err := utils.WithRetry(ctx, func() error {
		_, err := store.db.ExecContext(ctx, insertSample, sessionID, s.Timestamp, s.Value, s.MaleRate, s.FemaleRate)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (store *PostgresStorage) SaveAlert(ctx context.Context, sessionID string, ev model.AlertEvent) error {
	err := utils.WithRetry(ctx, func() error {
		_, err := store.db.ExecContext(ctx, insertAlert, sessionID, ev.Timestamp, ev.Title, ev.Message, string(ev.Severity))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (store *PostgresStorage) Samples(ctx context.Context, sessionID string, limit int) ([]model.Sample, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	rows, err := store.db.QueryContext(ctx, selectSample, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	out := []model.Sample{}
	for rows.Next() {
		var s model.Sample
		if err := rows.Scan(&s.Timestamp, &s.Value, &s.MaleRate, &s.FemaleRate); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (store *PostgresStorage) Alerts(ctx context.Context, sessionID string, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	rows, err := store.db.QueryContext(ctx, selectAlert, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := []model.AlertEvent{}
	for rows.Next() {
		var (
			ev  model.AlertEvent
			sev string
		)
		if err := rows.Scan(&ev.Timestamp, &ev.Title, &ev.Message, &sev); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		ev.Severity = model.Severity(sev)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.PingContext(ctx)
}

func (store *PostgresStorage) Close() error {
	return store.db.Close()
}

var _ storage.Archive = (*PostgresStorage)(nil)
