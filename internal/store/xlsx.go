package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

// XLSX keeps attendance in a spreadsheet with the columns ID, Name, Date, Time.
// Every append rewrites the whole workbook through a temporary file so a
// crash never leaves a half-written sheet behind.
type XLSX struct {
	path  string
	mutex sync.Mutex
}

// NewXLSX opens path, creating the workbook with a header row if it is missing.
func NewXLSX(path string) (*XLSX, error) {
	s := &XLSX{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
		logger.Info("Created attendance workbook", logger.LoggerOptions{Key: "path", Data: path})
	} else if err != nil {
		return nil, err
	} else if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *XLSX) read() ([]Record, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		var r Record
		cells := []*string{&r.ID, &r.Name, &r.Date, &r.Time}
		for j := range cells {
			if j < len(row) {
				*cells[j] = row[j]
			}
		}
		if r == (Record{}) {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *XLSX) write(records []Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(sheetName, "A1", &columns); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []string{r.ID, r.Name, r.Date, r.Time}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".attendance-*.xlsx")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// CreateTemp makes 0600 files; keep the workbook readable by other tools
	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *XLSX) Append(ctx context.Context, r Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	if err := s.write(append(records, r)); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.path, err)
	}
	return nil
}

func (s *XLSX) List(ctx context.Context, date string) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	return filter(records, date), nil
}

func (s *XLSX) Exists(ctx context.Context, id, date string) (bool, error) {
	records, err := s.List(ctx, date)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *XLSX) Reset(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.write(nil)
}

func (s *XLSX) Close() error { return nil }
