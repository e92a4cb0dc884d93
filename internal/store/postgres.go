package store

import (
	"context"
	"fmt"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores attendance in a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logger.Info("Attendance database ready", logger.LoggerOptions{Key: "dsn", Data: redact(connString)})
	return &Postgres{pool: pool}, nil
}

// initSchema creates the attendance table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS attendance (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			recorded_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS attendance_id_date_idx ON attendance (id, date);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func (s *Postgres) Append(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (id, name, date, time)
		VALUES ($1, $2, $3, $4)
	`, r.ID, r.Name, r.Date, r.Time)
	return err
}

func (s *Postgres) List(ctx context.Context, date string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, date, time FROM attendance
		WHERE $1::text = '' OR date = $1
		ORDER BY seq
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Date, &r.Time); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Postgres) Exists(ctx context.Context, id, date string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM attendance WHERE id = $1 AND date = $2)`, id, date).Scan(&exists)
	return exists, err
}

// Reset drops the attendance table and recreates it empty.
func (s *Postgres) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS attendance CASCADE`); err != nil {
		return err
	}
	return initSchema(ctx, s.pool)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
