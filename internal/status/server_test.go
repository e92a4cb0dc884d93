package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andresmejia3/checkpoint/internal/checkpoint"
	"github.com/andresmejia3/checkpoint/internal/store"
)

type fakeStats checkpoint.Stats

func (f fakeStats) Stats() checkpoint.Stats { return checkpoint.Stats(f) }

type fakeLister struct {
	records []store.Record
	err     error
	gotDate string
}

func (f *fakeLister) List(ctx context.Context, date string) ([]store.Record, error) {
	f.gotDate = date
	return f.records, f.err
}

func TestHealthz(t *testing.T) {
	srv := NewServer(":0", nil, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	stats := fakeStats{Claims: 3, Verified: 2, Rejected: 1, LastOutcome: "verified", LastName: "alice", LastAt: at}
	srv := NewServer(":0", stats, nil, 5)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := map[string]any{
		"claims":       float64(3),
		"verified":     float64(2),
		"rejected":     float64(1),
		"last_outcome": "verified",
		"last_name":    "alice",
		"last_at":      "2024-03-01T09:00:00Z",
		"gallery_size": float64(5),
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
}

func TestAttendance(t *testing.T) {
	records := []store.Record{{ID: "42", Name: "alice", Date: "2024-03-01", Time: "08:59:01"}}

	tests := []struct {
		name     string
		url      string
		lister   *fakeLister
		wantCode int
		wantDate string
		wantLen  int
	}{
		{name: "all", url: "/attendance", lister: &fakeLister{records: records}, wantCode: 200, wantLen: 1},
		{name: "by date", url: "/attendance?date=2024-03-01", lister: &fakeLister{records: records}, wantCode: 200, wantDate: "2024-03-01", wantLen: 1},
		{name: "empty", url: "/attendance", lister: &fakeLister{}, wantCode: 200, wantLen: 0},
		{name: "bad date", url: "/attendance?date=01/03/2024", lister: &fakeLister{}, wantCode: 400},
		{name: "store error", url: "/attendance", lister: &fakeLister{err: errors.New("locked")}, wantCode: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(":0", nil, tt.lister, 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != 200 {
				return
			}
			if tt.lister.gotDate != tt.wantDate {
				t.Errorf("store asked for date %q, want %q", tt.lister.gotDate, tt.wantDate)
			}
			var got []store.Record
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
			}
			if got == nil || len(got) != tt.wantLen {
				t.Errorf("expected a %d-element array, got %q", tt.wantLen, rec.Body.String())
			}
		})
	}
}

func TestReadOnly(t *testing.T) {
	srv := NewServer(":0", nil, &fakeLister{}, 0)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/attendance", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rec.Code)
	}
}
