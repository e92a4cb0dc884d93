package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andresmejia3/checkpoint/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores attendance in a local SQLite database.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite opens the database at path and ensures the schema is initialized.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{conn: conn}
	if err := s.createTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Attendance database ready", logger.LoggerOptions{Key: "path", Data: path})
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS attendance (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS attendance_id_date_idx ON attendance (id, date);
	`
	_, err := s.conn.ExecContext(ctx, query)
	return err
}

func (s *SQLite) Append(ctx context.Context, r Record) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO attendance (id, name, date, time) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, r.Date, r.Time)
	return err
}

func (s *SQLite) List(ctx context.Context, date string) ([]Record, error) {
	query := `SELECT id, name, date, time FROM attendance ORDER BY seq`
	args := []any{}
	if date != "" {
		query = `SELECT id, name, date, time FROM attendance WHERE date = ? ORDER BY seq`
		args = append(args, date)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
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

func (s *SQLite) Exists(ctx context.Context, id, date string) (bool, error) {
	var exists bool
	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM attendance WHERE id = ? AND date = ?)`, id, date).Scan(&exists)
	return exists, err
}

func (s *SQLite) Reset(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM attendance`)
	return err
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}
