package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
	"github.com/sunmeter-lab/sunmeter/internal/rollup"
)

const dateLayout = "2006-01-02"

// Metric is a single scalar reading shown on the daily view, one per
// last_value series and source topic.
type Metric struct {
	SeriesName string  `json:"series_name"`
	Topic      string  `json:"topic"`
	Unit       string  `json:"unit"`
	Value      float64 `json:"value"`
}

// Chart is one intraday line chart, one per interval_average series.
type Chart struct {
	SeriesName string    `json:"series_name"`
	Unit       string    `json:"unit"`
	DataSets   []DataSet `json:"datasets"`
}

// DailyView is the response body of the daily dashboard endpoint.
type DailyView struct {
	Date     string   `json:"date"`
	Metrics  []Metric `json:"metrics"`
	Charts   []Chart  `json:"charts"`
	Previous *string  `json:"previous"`
	Next     *string  `json:"next"`
	Up       string   `json:"up"`
}

// PeriodView is the response body of the monthly and yearly endpoints:
// rollup bar charts plus links into the sub-periods that hold data.
type PeriodView struct {
	Period   string                `json:"period"`
	Rollups  []rollup.SeriesRollup `json:"rollups"`
	Links    []string              `json:"links"`
	Previous string                `json:"previous"`
	Next     string                `json:"next"`
	Up       string                `json:"up,omitempty"`
}

// Service assembles dashboard views from stored buckets and rollups.
type Service struct {
	store    storage.BucketStore
	rollups  *rollup.Service
	policies []bucket.SeriesPolicy
	loc      *time.Location
}

// NewService creates a dashboard service. loc is the display location used
// for chart axis labels.
func NewService(store storage.BucketStore, rollups *rollup.Service, policies []bucket.SeriesPolicy, loc *time.Location) *Service {
	return &Service{
		store:    store,
		rollups:  rollups,
		policies: policies,
		loc:      loc,
	}
}

// Daily builds the view for one civil date: scalar metrics for last_value
// series, line charts for interval_average series, plus gap-tolerant
// previous/next date links.
func (s *Service) Daily(ctx context.Context, date time.Time) (DailyView, error) {
	view := DailyView{
		Date: date.Format(dateLayout),
		Up:   monthlyPath(date.Year(), date.Month()),
	}

	records, err := s.store.RecordsForDate(ctx, date)
	if err != nil {
		return DailyView{}, fmt.Errorf("query records for date: %w", err)
	}

	// Interval records grouped per series, anchor order preserved.
	var chartSeries []string
	chartRecords := make(map[string][]storage.Record)
	units := make(map[string]string)

	for _, rec := range records {
		policy, ok := bucket.Match(s.policies, rec.Key.Topic)
		if !ok {
			slog.Warn("[Dashboard] No policy for stored topic, skipping record",
				"topic", rec.Key.Topic, "series", rec.SeriesName)
			continue
		}

		if policy.BucketPolicy == bucket.PolicyLastValue {
			view.Metrics = append(view.Metrics, Metric{
				SeriesName: rec.SeriesName,
				Topic:      rec.Key.Topic,
				Unit:       policy.Unit,
				Value:      rec.Mean(),
			})
			continue
		}

		if _, seen := chartRecords[rec.SeriesName]; !seen {
			chartSeries = append(chartSeries, rec.SeriesName)
			units[rec.SeriesName] = policy.Unit
		}
		chartRecords[rec.SeriesName] = append(chartRecords[rec.SeriesName], rec)
	}

	for _, name := range chartSeries {
		view.Charts = append(view.Charts, Chart{
			SeriesName: name,
			Unit:       units[name],
			DataSets:   toDataSets(chartRecords[name], s.loc),
		})
	}

	if prev, ok, err := s.rollups.PreviousDay(ctx, date); err != nil {
		return DailyView{}, fmt.Errorf("previous date: %w", err)
	} else if ok {
		view.Previous = dateStringPtr(prev)
	}
	if next, ok, err := s.rollups.NextDay(ctx, date); err != nil {
		return DailyView{}, fmt.Errorf("next date: %w", err)
	} else if ok {
		view.Next = dateStringPtr(next)
	}

	return view, nil
}

// Monthly builds the view for one month: per-day rollup points plus links
// to the days of the month that hold data.
func (s *Service) Monthly(ctx context.Context, year int, month time.Month) (PeriodView, error) {
	rollups, err := s.rollups.DayRollups(ctx, year, month)
	if err != nil {
		return PeriodView{}, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	links, err := s.dailyLinks(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return PeriodView{}, err
	}

	prevYear, prevMonth := from.AddDate(0, -1, 0).Year(), from.AddDate(0, -1, 0).Month()
	nextYear, nextMonth := from.AddDate(0, 1, 0).Year(), from.AddDate(0, 1, 0).Month()

	return PeriodView{
		Period:   fmt.Sprintf("%04d-%02d", year, int(month)),
		Rollups:  rollups,
		Links:    links,
		Previous: monthlyPath(prevYear, prevMonth),
		Next:     monthlyPath(nextYear, nextMonth),
		Up:       yearlyPath(year),
	}, nil
}

// Yearly builds the view for one year: per-month rollup points plus links
// to the months of the year that hold data.
func (s *Service) Yearly(ctx context.Context, year int) (PeriodView, error) {
	rollups, err := s.rollups.MonthRollups(ctx, year)
	if err != nil {
		return PeriodView{}, err
	}

	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	links, err := s.monthlyLinks(ctx, from, from.AddDate(1, 0, 0))
	if err != nil {
		return PeriodView{}, err
	}

	return PeriodView{
		Period:   fmt.Sprintf("%04d", year),
		Rollups:  rollups,
		Links:    links,
		Previous: yearlyPath(year - 1),
		Next:     yearlyPath(year + 1),
	}, nil
}

// dailyLinks returns one daily view link per distinct date with daily
// buckets in [from, to), ascending.
func (s *Service) dailyLinks(ctx context.Context, from, to time.Time) ([]string, error) {
	records, err := s.store.DailyRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily buckets: %w", err)
	}

	var links []string
	var last time.Time
	for _, rec := range records {
		if !rec.Key.Date.Equal(last) {
			links = append(links, dailyPath(rec.Key.Date))
			last = rec.Key.Date
		}
	}
	return links, nil
}

// monthlyLinks is the month-granularity counterpart of dailyLinks.
func (s *Service) monthlyLinks(ctx context.Context, from, to time.Time) ([]string, error) {
	records, err := s.store.DailyRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily buckets: %w", err)
	}

	var links []string
	lastMonth := time.Month(0)
	for _, rec := range records {
		if rec.Key.Date.Month() != lastMonth {
			links = append(links, monthlyPath(rec.Key.Date.Year(), rec.Key.Date.Month()))
			lastMonth = rec.Key.Date.Month()
		}
	}
	return links, nil
}

func dailyPath(date time.Time) string {
	return "/v1/dashboard/daily/" + date.Format(dateLayout)
}

func monthlyPath(year int, month time.Month) string {
	return fmt.Sprintf("/v1/dashboard/monthly/%d/%d", year, int(month))
}

func yearlyPath(year int) string {
	return fmt.Sprintf("/v1/dashboard/yearly/%d", year)
}

func dateStringPtr(t time.Time) *string {
	s := t.Format(dateLayout)
	return &s
}
