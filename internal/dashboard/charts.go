package dashboard

import (
	"time"

	"github.com/sunmeter-lab/sunmeter/internal/core/storage"
)

// DataPoint is one chart point: an axis label and a value.
type DataPoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// DataSet is one plotted line, labeled by its source topic.
type DataSet struct {
	Label string      `json:"label"`
	Data  []DataPoint `json:"data"`
}

// slotLabelLayout renders a sub-day slot anchor as a wall-clock label.
const slotLabelLayout = "15:04"

// toDataSets groups interval records by source topic into chart datasets.
// Records must already be ordered by anchor ascending; within a topic that
// order is preserved. Anchors are stored as UTC instants and converted to
// the display location exactly once, here.
func toDataSets(records []storage.Record, loc *time.Location) []DataSet {
	var out []DataSet
	idx := make(map[string]int)

	for _, rec := range records {
		topic := rec.Key.Topic
		i, ok := idx[topic]
		if !ok {
			i = len(out)
			idx[topic] = i
			out = append(out, DataSet{Label: topic})
		}
		out[i].Data = append(out[i].Data, DataPoint{
			X: rec.Key.Anchor.In(loc).Format(slotLabelLayout),
			Y: rec.Mean(),
		})
	}

	return out
}
