package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Layouts of the Date and Time columns.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// DefaultDSN is the spreadsheet the checkpoint has always written.
const DefaultDSN = "attendance.xlsx"

// ErrUnsupportedDSN is returned by Open for a DSN no backend recognises.
var ErrUnsupportedDSN = errors.New("unsupported attendance store")

// columns is the header row of file-backed stores.
var columns = []string{"ID", "Name", "Date", "Time"}

// Record is one confirmed arrival.
type Record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// NewRecord stamps id and name with the local date and time of at.
func NewRecord(id, name string, at time.Time) Record {
	return Record{
		ID:   id,
		Name: name,
		Date: at.Format(DateLayout),
		Time: at.Format(TimeLayout),
	}
}

// Store persists attendance records. Records are append-only; List returns
// them in insertion order.
type Store interface {
	Append(ctx context.Context, r Record) error
	// List returns every record, or only those of date when it is not empty.
	List(ctx context.Context, date string) ([]Record, error)
	Exists(ctx context.Context, id, date string) (bool, error)
	// Reset removes every record.
	Reset(ctx context.Context) error
	Close() error
}

// Open picks a backend from dsn:
//
//	*.xlsx                  spreadsheet (default attendance.xlsx)
//	*.csv                   comma separated file
//	sqlite://path           SQLite database
//	postgres://...          PostgreSQL
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	scheme, rest, hasScheme := strings.Cut(dsn, "://")
	if hasScheme {
		switch strings.ToLower(scheme) {
		case "sqlite", "sqlite3":
			return NewSQLite(ctx, rest)
		case "postgres", "postgresql":
			return NewPostgres(ctx, dsn)
		case "file":
			dsn = rest
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, dsn)
		}
	}

	switch strings.ToLower(filepath.Ext(dsn)) {
	case ".xlsx":
		return NewXLSX(dsn)
	case ".csv":
		return NewCSV(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, dsn)
	}
}

// filter keeps the records of date, or all of them when date is empty.
func filter(records []Record, date string) []Record {
	if date == "" {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out
}

// redact hides credentials in a DSN before it is logged.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return dsn
	}
	return scheme + "://***@" + rest[at+1:]
}
