package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

func dayKey(date time.Time, topic string) bucket.Key {
	return bucket.Key{Date: date, Anchor: bucket.NilAnchor, Topic: topic}
}

func TestStore_UpsertLastValueOverwrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := dayKey(time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC), "inverter/hm800/0/YieldTotal")

	rec, err := store.Upsert(ctx, key, "Yield Total", 100.0, bucket.PolicyLastValue)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.Count)
	require.Equal(t, 100.0, rec.Mean())

	rec, err = store.Upsert(ctx, key, "Yield Total", 250.5, bucket.PolicyLastValue)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.Count)
	require.Equal(t, 250.5, rec.Mean())
}

func TestStore_UpsertIntervalAverageAccumulates(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := bucket.Key{
		Date:   time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Anchor: time.Date(2026, 7, 14, 12, 2, 30, 0, time.UTC),
		Topic:  "inverter/hm800/0/P_AC",
	}

	_, err := store.Upsert(ctx, key, "Power", 10.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)

	rec, err := store.Upsert(ctx, key, "Power", 20.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.Count)
	require.Equal(t, 15.0, rec.Mean())
}

func TestStore_GetNotFound(t *testing.T) {
	store := New()
	_, err := store.Get(context.Background(), dayKey(time.Now().UTC(), "nope"))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_RecordsForDateOrderedByAnchor(t *testing.T) {
	store := New()
	ctx := context.Background()
	date := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

	late := bucket.Key{Date: date, Anchor: date.Add(14*time.Hour + 150*time.Second), Topic: "b"}
	early := bucket.Key{Date: date, Anchor: date.Add(9*time.Hour + 150*time.Second), Topic: "a"}

	_, err := store.Upsert(ctx, late, "Power", 2.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, early, "Power", 1.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, dayKey(date.AddDate(0, 0, 1), "a"), "Power", 9.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)

	records, err := store.RecordsForDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, early, records[0].Key)
	require.Equal(t, late, records[1].Key)
}

func TestStore_DailyRangeSkipsAnchoredBuckets(t *testing.T) {
	store := New()
	ctx := context.Background()
	date := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

	_, err := store.Upsert(ctx, dayKey(date, "inverter/hm800/0/YieldDay"), "Yield Today", 500.0, bucket.PolicyLastValue)
	require.NoError(t, err)
	anchored := bucket.Key{Date: date, Anchor: date.Add(12 * time.Hour), Topic: "inverter/hm800/0/P_AC"}
	_, err = store.Upsert(ctx, anchored, "Power", 42.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)

	records, err := store.DailyRange(ctx, date, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Yield Today", records[0].SeriesName)

	// Half-open range: to is exclusive.
	records, err = store.DailyRange(ctx, date.AddDate(0, 0, -1), date)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStore_DateNavigationToleratesGaps(t *testing.T) {
	store := New()
	ctx := context.Background()

	days := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		_, err := store.Upsert(ctx, dayKey(day, "inverter/hm800/0/YieldDay"), "Yield Today", 1.0, bucket.PolicyLastValue)
		require.NoError(t, err)
	}

	probe := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	prev, ok, err := store.PreviousDateWithData(ctx, probe)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, days[1], prev)

	next, ok, err := store.NextDateWithData(ctx, probe)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, days[2], next)

	_, ok, err = store.PreviousDateWithData(ctx, days[0])
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.NextDateWithData(ctx, days[2])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_AnchorNavigationScopedToSeries(t *testing.T) {
	store := New()
	ctx := context.Background()
	date := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

	a1 := bucket.Key{Date: date, Anchor: date.Add(12*time.Hour + 150*time.Second), Topic: "inverter/hm800/0/P_AC"}
	a2 := bucket.Key{Date: date, Anchor: date.Add(12*time.Hour + 450*time.Second), Topic: "inverter/hm800/0/P_AC"}
	_, err := store.Upsert(ctx, a1, "Power", 1.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, a2, "Power", 2.0, bucket.PolicyIntervalAverage)
	require.NoError(t, err)
	// Daily bucket of another series must never appear as an anchor.
	_, err = store.Upsert(ctx, dayKey(date, "inverter/hm800/0/YieldDay"), "Yield Today", 3.0, bucket.PolicyLastValue)
	require.NoError(t, err)

	prev, ok, err := store.PreviousAnchorWithData(ctx, "Power", a2.Anchor)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a1.Anchor, prev)

	next, ok, err := store.NextAnchorWithData(ctx, "Power", a1.Anchor)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a2.Anchor, next)

	_, ok, err = store.PreviousAnchorWithData(ctx, "Power", a1.Anchor)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.PreviousAnchorWithData(ctx, "Yield Today", date.Add(24*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_ConcurrentUpsertsLoseNoUpdate(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := bucket.Key{
		Date:   time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Anchor: time.Date(2026, 7, 14, 12, 2, 30, 0, time.UTC),
		Topic:  "inverter/hm800/0/P_AC",
	}

	const n = 1000
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Upsert(ctx, key, "Power", 1.0, bucket.PolicyIntervalAverage)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(n), rec.Count)
	require.Equal(t, "1000", rec.Sum.String())
	require.Equal(t, 1.0, rec.Mean())
}
