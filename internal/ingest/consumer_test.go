package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/config"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage/memory"
)

func TestConsumer_SubscriptionsDeduplicateFilters(t *testing.T) {
	policies := []bucket.SeriesPolicy{
		{SeriesName: "Power", TopicFilter: "inverter/+/+/P_AC", BucketPolicy: bucket.PolicyIntervalAverage},
		{SeriesName: "Power", TopicFilter: "inverter/+/+/P_DC", BucketPolicy: bucket.PolicyIntervalAverage},
		{SeriesName: "Power Again", TopicFilter: "inverter/+/+/P_AC", BucketPolicy: bucket.PolicyIntervalAverage},
	}

	c := NewConsumer(config.MQTTConfig{QoS: 1}, policies, nil)

	subs := c.subscriptions()
	require.Len(t, subs, 2)
	require.Equal(t, "inverter/+/+/P_AC", subs[0].Topic)
	require.Equal(t, "inverter/+/+/P_DC", subs[1].Topic)
	require.Equal(t, byte(1), subs[0].QoS)
}

func TestConsumer_HandleMessage(t *testing.T) {
	store := memory.New()
	policies := bucket.DefaultPolicies()
	agg := NewAggregator(store, policies, time.UTC)

	c := NewConsumer(config.MQTTConfig{}, policies, agg)
	at := time.Date(2026, 7, 14, 12, 1, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return at }

	ctx := context.Background()

	// Valid reading lands in the store.
	c.handleMessage(ctx, "inverter/hm800/0/P_AC", []byte("150.0"))

	key := bucket.ComputeKey(at, policies[2], "inverter/hm800/0/P_AC", time.UTC)
	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 150.0, rec.Mean())

	// Unparseable and unmatched readings are discarded without panicking.
	c.handleMessage(ctx, "inverter/hm800/0/P_AC", []byte("online"))
	c.handleMessage(ctx, "weather/outdoor/temp", []byte("21.5"))

	rec, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.Count)
}
