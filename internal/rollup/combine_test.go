package rollup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

func rec(sum string, count int64) storage.Record {
	return storage.Record{Sum: decimal.RequireFromString(sum), Count: count}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		records []storage.Record
		policy  string
		want    float64
	}{
		{"sum of means", []storage.Record{rec("10", 1), rec("45", 3)}, bucket.RollupSum, 25.0},
		{"sum exact decimal", []storage.Record{rec("0.1", 1), rec("0.1", 1), rec("0.1", 1)}, bucket.RollupSum, 0.3},
		{"sum empty", nil, bucket.RollupSum, 0.0},
		{"last takes final mean", []storage.Record{rec("10", 1), rec("45", 3)}, bucket.RollupLast, 15.0},
		{"last empty", nil, bucket.RollupLast, 0.0},
		{"none yields zero", []storage.Record{rec("10", 1)}, bucket.RollupNone, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, combine(tc.records, tc.policy))
		})
	}
}
