package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// CSV appends attendance rows to a comma separated file with a header row.
type CSV struct {
	path  string
	mutex sync.Mutex
}

// NewCSV opens path, writing the header if the file is missing or empty.
func NewCSV(path string) (*CSV, error) {
	s := &CSV{path: path}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0):
		if err := s.truncate(); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
	case err != nil:
		return nil, err
	}
	return s, nil
}

func (s *CSV) truncate() error {
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write(columns)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *CSV) Append(ctx context.Context, r Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	w := csv.NewWriter(f)
	w.Write([]string{r.ID, r.Name, r.Date, r.Time})
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", s.path, err)
	}
	return f.Close()
}

func (s *CSV) List(ctx context.Context, date string) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records []Record
	for line := 0; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
		}
		if line == 0 {
			continue // header
		}
		var r Record
		cells := []*string{&r.ID, &r.Name, &r.Date, &r.Time}
		for j := range cells {
			if j < len(row) {
				*cells[j] = row[j]
			}
		}
		records = append(records, r)
	}
	return filter(records, date), nil
}

func (s *CSV) Exists(ctx context.Context, id, date string) (bool, error) {
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

func (s *CSV) Reset(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.truncate()
}

func (s *CSV) Close() error { return nil }
