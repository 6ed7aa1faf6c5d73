package rollup

import (
	"github.com/shopspring/decimal"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

// combine folds the means of a chronologically ordered record group into
// one value per the series' rollup policy. Sum is order-independent;
// last takes the final record's mean, or 0.0 for an empty group.
func combine(records []storage.Record, rollupPolicy string) float64 {
	switch rollupPolicy {
	case bucket.RollupLast:
		if len(records) == 0 {
			return 0.0
		}
		return records[len(records)-1].Mean()
	case bucket.RollupSum:
		total := decimal.Zero
		for _, rec := range records {
			total = total.Add(meanDecimal(rec))
		}
		value, _ := total.Float64()
		return value
	default:
		return 0.0
	}
}

// meanDecimal computes the record mean in exact arithmetic so sums of
// means do not accumulate float error.
func meanDecimal(rec storage.Record) decimal.Decimal {
	if rec.Count == 0 {
		return decimal.Zero
	}
	return rec.Sum.Div(decimal.NewFromInt(rec.Count))
}
