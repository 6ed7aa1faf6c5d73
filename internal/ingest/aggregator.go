package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

// ErrBadPayload marks readings whose payload is not a decimal number.
// The reading is discarded; the same value will not reappear, so there is
// no retry.
var ErrBadPayload = errors.New("payload is not a decimal number")

// Aggregator folds readings into their buckets. It holds no state across
// calls beyond the immutable policy list, so it is safe for concurrent use;
// same-key races are resolved by the store's atomic upsert.
type Aggregator struct {
	store    storage.BucketStore
	policies []bucket.SeriesPolicy
	loc      *time.Location
}

// NewAggregator creates an aggregator over the given store and policies.
// loc is the reference location for civil dates.
func NewAggregator(store storage.BucketStore, policies []bucket.SeriesPolicy, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		store:    store,
		policies: policies,
		loc:      loc,
	}
}

// Ingest processes one reading: matches the topic to a policy, computes the
// bucket key and upserts the record. Returns nil, nil when no configured
// series claims the topic — subscriptions may be broader than the policy
// list, so that is not an error.
func (a *Aggregator) Ingest(ctx context.Context, topic string, payload []byte, at time.Time) (*storage.Record, error) {
	policy, ok := bucket.Match(a.policies, topic)
	if !ok {
		slog.Debug("[Ingest] No series policy for topic, reading ignored", "topic", topic)
		return nil, nil
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: topic %s payload %q", ErrBadPayload, topic, truncatePayload(payload))
	}

	key := bucket.ComputeKey(at, policy, topic, a.loc)

	rec, err := a.store.Upsert(ctx, key, policy.SeriesName, value, policy.BucketPolicy)
	if err != nil {
		return nil, fmt.Errorf("upsert bucket for topic %s: %w", topic, err)
	}

	return &rec, nil
}

// truncatePayload keeps log lines bounded when a broker delivers garbage.
func truncatePayload(payload []byte) string {
	const max = 64
	if len(payload) <= max {
		return string(payload)
	}
	return string(payload[:max]) + "..."
}
