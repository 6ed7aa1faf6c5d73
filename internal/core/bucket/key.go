package bucket

import "time"

// NilAnchor is the sentinel instant marking a bucket with no sub-day anchor
// (one bucket per day). The store's primary key cannot hold NULL, so the
// epoch-zero instant stands in for "absent".
var NilAnchor = time.Unix(0, 0).UTC()

// Key uniquely identifies one aggregate bucket.
// (Date, Anchor, Topic) is the store's primary key.
type Key struct {
	// Date is the civil date the bucket belongs to, at midnight UTC.
	Date time.Time

	// Anchor is the midpoint of the containing fixed interval for
	// interval_average series, or NilAnchor for last_value series.
	Anchor time.Time

	// Topic is the source identifier exactly as received.
	Topic string
}

// HasAnchor reports whether the key carries a real sub-day anchor.
func (k Key) HasAnchor() bool {
	return !k.Anchor.Equal(NilAnchor)
}

// ComputeKey maps a reading's event time to its stable bucket identity.
//
// For interval_average series the anchor is centered at the interval
// midpoint: a reading at epoch second E with interval I lands on anchor
// E − E%I + I/2. Centering makes bucket identity independent of where in
// the interval the reading arrives, and readings exactly on a boundary
// round down before the half-interval offset is added, so there are no ties.
//
// The civil date is derived in loc, the configured reference location.
// The anchor itself is a UTC instant.
func ComputeKey(at time.Time, policy SeriesPolicy, topic string, loc *time.Location) Key {
	if loc == nil {
		loc = time.UTC
	}

	anchor := NilAnchor
	if policy.BucketPolicy == PolicyIntervalAverage {
		interval := policy.IntervalSeconds
		if interval <= 0 {
			interval = DefaultIntervalSeconds
		}
		epoch := at.Unix()
		anchor = time.Unix(epoch-epoch%interval+interval/2, 0).UTC()
	}

	return Key{
		Date:   CivilDate(at, loc),
		Anchor: anchor,
		Topic:  topic,
	}
}

// CivilDate returns the calendar date of t in loc, normalized to midnight UTC.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
