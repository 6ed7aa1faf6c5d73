package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
)

// ErrNotFound is returned by point lookups when no record exists for the key.
var ErrNotFound = errors.New("bucket record not found")

// Record is one persisted aggregate bucket.
// SeriesName is denormalized from the matching policy at write time and is
// overwritten by every upsert — last write wins for that field only.
type Record struct {
	Key        bucket.Key
	SeriesName string
	Sum        decimal.Decimal
	Count      int64
	UpdatedAt  time.Time
}

// Mean returns Sum/Count as a float for presentation.
// Count is >= 1 for any record that exists; a record is never created
// with a zero count.
func (r Record) Mean() float64 {
	if r.Count == 0 {
		return 0
	}
	mean, _ := r.Sum.Div(decimal.NewFromInt(r.Count)).Float64()
	return mean
}

// BucketStore is the persistence contract for aggregate buckets.
//
// Upsert is the linearizability point of the whole engine: concurrent
// upserts for the same key must not lose updates, so implementations
// perform the insert-or-update as one atomic operation, never as a
// separate read followed by a write.
type BucketStore interface {
	// Upsert folds a reading into the bucket identified by key and returns
	// the post-image. bucketPolicy selects the combine step:
	// last_value overwrites {sum=value, count=1}; interval_average
	// accumulates {sum+=value, count+=1}.
	Upsert(ctx context.Context, key bucket.Key, seriesName string, value float64, bucketPolicy string) (Record, error)

	// Get fetches one record by key. Returns ErrNotFound when absent.
	Get(ctx context.Context, key bucket.Key) (Record, error)

	// RecordsForDate returns every bucket of one civil date, ordered by
	// anchor ascending.
	RecordsForDate(ctx context.Context, date time.Time) ([]Record, error)

	// DailyRange returns daily buckets (anchor = NilAnchor) with
	// from <= date < to, ordered by date ascending.
	DailyRange(ctx context.Context, from, to time.Time) ([]Record, error)

	// PreviousDateWithData returns the latest civil date strictly before
	// date holding at least one record of any series; ok is false when
	// no such date exists.
	PreviousDateWithData(ctx context.Context, date time.Time) (prev time.Time, ok bool, err error)

	// NextDateWithData is the forward counterpart of PreviousDateWithData.
	NextDateWithData(ctx context.Context, date time.Time) (next time.Time, ok bool, err error)

	// PreviousAnchorWithData returns the latest sub-day anchor strictly
	// before anchor for the series, excluding NilAnchor sentinel rows.
	PreviousAnchorWithData(ctx context.Context, seriesName string, anchor time.Time) (prev time.Time, ok bool, err error)

	// NextAnchorWithData is the forward counterpart of PreviousAnchorWithData.
	NextAnchorWithData(ctx context.Context, seriesName string, anchor time.Time) (next time.Time, ok bool, err error)
}
