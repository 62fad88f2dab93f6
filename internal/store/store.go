// Package store persists tower readings and ingest runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get when no reading has the requested ID.
var ErrNotFound = errors.New("reading not found")

// tsLayout is fixed width so that text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// Store is a SQLite-backed reading repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path, applies pragmas and
// runs pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies all embedded migrations that have not run yet.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m is not closed: that would close the shared *sql.DB.
	m.Log = &migrateLogger{logger: s.logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SaveBatch upserts readings by ID and bumps the dataset version in one
// transaction. An empty batch is a no-op.
func (s *Store) SaveBatch(ctx context.Context, readings []domain.TowerReading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (id, tower_id, ts, operator, network_type, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tower_id = excluded.tower_id,
			ts = excluded.ts,
			operator = excluded.operator,
			network_type = excluded.network_type,
			payload = excluded.payload,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := domain.Now().UTC().Format(tsLayout)
	for i := range readings {
		r := &readings[i]
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal reading %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.TowerID, r.Timestamp.UTC().Format(tsLayout), r.Operator, r.NetworkType, string(payload), now,
		); err != nil {
			return fmt.Errorf("upsert reading %s: %w", r.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE dataset_version SET version = version + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump dataset version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListAll returns every stored reading ordered by time, then ID.
func (s *Store) ListAll(ctx context.Context) ([]domain.TowerReading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM readings ORDER BY ts, id`)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []domain.TowerReading
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		var r domain.TowerReading
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns a single reading by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.TowerReading, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM readings WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TowerReading{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.TowerReading{}, fmt.Errorf("query reading: %w", err)
	}

	var r domain.TowerReading
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return domain.TowerReading{}, fmt.Errorf("decode reading: %w", err)
	}
	return r, nil
}

// Version returns a counter that increases with every stored batch.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM dataset_version WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("query dataset version: %w", err)
	}
	return v, nil
}

// RecordRun stores an ingest run summary, assigning a UUID when ID is empty.
func (s *Store) RecordRun(ctx context.Context, run domain.IngestRun) (domain.IngestRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, source, started_at, finished_at, read_count, written_count, failed_count, anomaly_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source,
		run.StartedAt.UTC().Format(tsLayout), run.FinishedAt.UTC().Format(tsLayout),
		run.Read, run.Written, run.Failed, run.Anomalies,
	)
	if err != nil {
		return run, fmt.Errorf("insert ingest run: %w", err)
	}
	return run, nil
}

// Runs returns the most recent ingest runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, read_count, written_count, failed_count, anomaly_count
		FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	defer rows.Close()

	var out []domain.IngestRun
	for rows.Next() {
		var run domain.IngestRun
		var started, finished string
		if err := rows.Scan(&run.ID, &run.Source, &started, &finished,
			&run.Read, &run.Written, &run.Failed, &run.Anomalies); err != nil {
			return nil, fmt.Errorf("scan ingest run: %w", err)
		}
		run.StartedAt, _ = time.Parse(tsLayout, started)
		run.FinishedAt, _ = time.Parse(tsLayout, finished)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateLogger routes golang-migrate output through slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l *migrateLogger) Verbose() bool {
	return false
}
