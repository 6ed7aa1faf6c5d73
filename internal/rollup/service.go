package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

// Point is one ephemeral rollup data point: a period label and the
// combined value of that period's base buckets.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// SourceRollup groups the rollup points of one source topic.
type SourceRollup struct {
	Topic  string  `json:"topic"`
	Points []Point `json:"points"`
}

// SeriesRollup is the rollup output for one chart series.
type SeriesRollup struct {
	SeriesName string         `json:"series_name"`
	Unit       string         `json:"unit"`
	Sources    []SourceRollup `json:"sources"`
}

// Service folds daily base buckets into day/month/year rollup points and
// answers gap-tolerant previous/next navigation. All operations are
// read-only and may run concurrently with ingestion.
type Service struct {
	store    storage.BucketStore
	policies []bucket.SeriesPolicy
}

// NewService creates a rollup service over the given store and policies.
func NewService(store storage.BucketStore, policies []bucket.SeriesPolicy) *Service {
	return &Service{
		store:    store,
		policies: policies,
	}
}

// DayRollups folds one month of daily buckets into per-day points,
// labeled by day of month.
func (s *Service) DayRollups(ctx context.Context, year int, month time.Month) ([]SeriesRollup, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return s.rollupRange(ctx, from, from.AddDate(0, 1, 0), func(date time.Time) string {
		return strconv.Itoa(date.Day())
	})
}

// MonthRollups folds one year of daily buckets into per-month points,
// labeled by month name.
func (s *Service) MonthRollups(ctx context.Context, year int) ([]SeriesRollup, error) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return s.rollupRange(ctx, from, from.AddDate(1, 0, 0), func(date time.Time) string {
		return date.Month().String()
	})
}

// rollupRange fetches daily buckets in [from, to) and groups them by
// series, then source topic, then period label. Series whose rollup
// policy is "none" are suppressed entirely; periods without records
// contribute no point.
func (s *Service) rollupRange(ctx context.Context, from, to time.Time, label func(time.Time) string) ([]SeriesRollup, error) {
	records, err := s.store.DailyRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily buckets: %w", err)
	}

	var out []SeriesRollup
	seriesIdx := make(map[string]int)
	// Per series name, source topics in first-appearance order with their
	// chronologically grouped records.
	type sourceGroup struct {
		topics  []string
		records map[string][]storage.Record
	}
	groups := make(map[string]*sourceGroup)
	policies := make(map[string]bucket.SeriesPolicy)

	for _, rec := range records {
		name := rec.SeriesName

		if _, ok := seriesIdx[name]; !ok {
			policy, matched := bucket.Match(s.policies, rec.Key.Topic)
			if !matched {
				// Historical data for a series no longer configured.
				slog.Warn("[Rollup] No policy for stored topic, skipping series",
					"series", name, "topic", rec.Key.Topic)
				seriesIdx[name] = -1
				continue
			}
			if policy.RollupPolicy == bucket.RollupNone {
				// Intentional suppression, e.g. instantaneous power.
				seriesIdx[name] = -1
				continue
			}
			seriesIdx[name] = len(out)
			out = append(out, SeriesRollup{SeriesName: name, Unit: policy.Unit})
			groups[name] = &sourceGroup{records: make(map[string][]storage.Record)}
			policies[name] = policy
		}
		if seriesIdx[name] < 0 {
			continue
		}

		g := groups[name]
		topic := rec.Key.Topic
		if _, ok := g.records[topic]; !ok {
			g.topics = append(g.topics, topic)
		}
		// DailyRange returns records in chronological order, which the
		// "last" combine policy depends on.
		g.records[topic] = append(g.records[topic], rec)
	}

	for name, g := range groups {
		idx := seriesIdx[name]
		policy := policies[name]
		for _, topic := range g.topics {
			out[idx].Sources = append(out[idx].Sources, foldPeriods(g.records[topic], policy.RollupPolicy, label))
		}
	}

	return out, nil
}

// foldPeriods splits one topic's chronologically ordered records into
// period groups (same label) and combines each group into a point.
func foldPeriods(records []storage.Record, rollupPolicy string, label func(time.Time) string) SourceRollup {
	if len(records) == 0 {
		return SourceRollup{}
	}

	sr := SourceRollup{Topic: records[0].Key.Topic}

	var period []storage.Record
	currentLabel := label(records[0].Key.Date)
	flush := func() {
		sr.Points = append(sr.Points, Point{Label: currentLabel, Value: combine(period, rollupPolicy)})
	}

	for _, rec := range records {
		l := label(rec.Key.Date)
		if l != currentLabel {
			flush()
			period = period[:0]
			currentLabel = l
		}
		period = append(period, rec)
	}
	flush()

	return sr
}

// PreviousDay returns the latest date strictly before anchor holding any
// stored bucket; ok is false when there is no earlier data. Sentinel
// boundaries never surface as navigation results.
func (s *Service) PreviousDay(ctx context.Context, anchor time.Time) (time.Time, bool, error) {
	return guardSentinel(s.store.PreviousDateWithData(ctx, anchor))
}

// NextDay is the forward counterpart of PreviousDay.
func (s *Service) NextDay(ctx context.Context, anchor time.Time) (time.Time, bool, error) {
	return guardSentinel(s.store.NextDateWithData(ctx, anchor))
}

// PreviousSlot returns the latest sub-day anchor strictly before anchor
// holding data for the series.
func (s *Service) PreviousSlot(ctx context.Context, seriesName string, anchor time.Time) (time.Time, bool, error) {
	return guardSentinel(s.store.PreviousAnchorWithData(ctx, seriesName, anchor))
}

// NextSlot is the forward counterpart of PreviousSlot.
func (s *Service) NextSlot(ctx context.Context, seriesName string, anchor time.Time) (time.Time, bool, error) {
	return guardSentinel(s.store.NextAnchorWithData(ctx, seriesName, anchor))
}

func guardSentinel(t time.Time, ok bool, err error) (time.Time, bool, error) {
	if err != nil {
		return time.Time{}, false, err
	}
	if !ok || t.Equal(bucket.NilAnchor) || t.IsZero() {
		return time.Time{}, false, nil
	}
	return t, true, nil
}
