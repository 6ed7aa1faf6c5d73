package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

// Store is an in-memory storage.BucketStore. Data is lost on restart.
// It backs unit tests and local development; the mutex gives Upsert the
// same atomicity the postgres adapter gets from its conditional statement.
type Store struct {
	mu      sync.Mutex
	records map[bucket.Key]storage.Record
}

// New creates an empty in-memory bucket store.
func New() *Store {
	return &Store{
		records: make(map[bucket.Key]storage.Record),
	}
}

// Upsert folds a reading into the bucket under the store lock.
func (s *Store) Upsert(_ context.Context, key bucket.Key, seriesName string, value float64, bucketPolicy string) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := decimal.NewFromFloat(value)

	rec, ok := s.records[key]
	if !ok {
		rec = storage.Record{Key: key, Sum: decimal.Zero, Count: 0}
	}

	if bucketPolicy == bucket.PolicyLastValue {
		rec.Sum = incoming
		rec.Count = 1
	} else {
		rec.Sum = rec.Sum.Add(incoming)
		rec.Count++
	}
	rec.SeriesName = seriesName
	rec.UpdatedAt = time.Now().UTC()

	s.records[key] = rec
	return rec, nil
}

// Get fetches one record by key. Returns storage.ErrNotFound when absent.
func (s *Store) Get(_ context.Context, key bucket.Key) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

// RecordsForDate returns every bucket of one civil date, ordered by anchor.
func (s *Store) RecordsForDate(_ context.Context, date time.Time) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []storage.Record
	for _, rec := range s.records {
		if rec.Key.Date.Equal(date) {
			records = append(records, rec)
		}
	}
	sortRecords(records)
	return records, nil
}

// DailyRange returns daily buckets with from <= date < to, ordered by date.
func (s *Store) DailyRange(_ context.Context, from, to time.Time) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []storage.Record
	for _, rec := range s.records {
		if rec.Key.HasAnchor() {
			continue
		}
		if rec.Key.Date.Before(from) || !rec.Key.Date.Before(to) {
			continue
		}
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}

// PreviousDateWithData returns the latest date strictly before date with data.
func (s *Store) PreviousDateWithData(_ context.Context, date time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best time.Time
	var found bool
	for key := range s.records {
		if key.Date.Before(date) && (!found || key.Date.After(best)) {
			best = key.Date
			found = true
		}
	}
	return best, found, nil
}

// NextDateWithData returns the earliest date strictly after date with data.
func (s *Store) NextDateWithData(_ context.Context, date time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best time.Time
	var found bool
	for key := range s.records {
		if key.Date.After(date) && (!found || key.Date.Before(best)) {
			best = key.Date
			found = true
		}
	}
	return best, found, nil
}

// PreviousAnchorWithData returns the latest sub-day anchor strictly before
// anchor for the series, skipping sentinel rows.
func (s *Store) PreviousAnchorWithData(_ context.Context, seriesName string, anchor time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best time.Time
	var found bool
	for _, rec := range s.records {
		if rec.SeriesName != seriesName || !rec.Key.HasAnchor() {
			continue
		}
		if rec.Key.Anchor.Before(anchor) && (!found || rec.Key.Anchor.After(best)) {
			best = rec.Key.Anchor
			found = true
		}
	}
	return best, found, nil
}

// NextAnchorWithData is the forward counterpart of PreviousAnchorWithData.
func (s *Store) NextAnchorWithData(_ context.Context, seriesName string, anchor time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best time.Time
	var found bool
	for _, rec := range s.records {
		if rec.SeriesName != seriesName || !rec.Key.HasAnchor() {
			continue
		}
		if rec.Key.Anchor.After(anchor) && (!found || rec.Key.Anchor.Before(best)) {
			best = rec.Key.Anchor
			found = true
		}
	}
	return best, found, nil
}

func sortRecords(records []storage.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Key, records[j].Key
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.Anchor.Equal(b.Anchor) {
			return a.Anchor.Before(b.Anchor)
		}
		return a.Topic < b.Topic
	})
}
