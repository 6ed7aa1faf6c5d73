package bucket

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bucket policies decide how readings landing in the same base bucket combine.
const (
	PolicyLastValue       = "last_value"       // one bucket per day, newest reading wins
	PolicyIntervalAverage = "interval_average" // fixed-interval bucket, running mean
)

// Rollup policies decide how daily base buckets fold into day/month/year points.
const (
	RollupLast = "last"
	RollupSum  = "sum"
	RollupNone = "none" // series is excluded from rollup output entirely
)

// DefaultIntervalSeconds is the sub-day bucket width for interval_average series.
const DefaultIntervalSeconds = 300

// SeriesPolicy describes one logical chart series: which topics feed it and
// how its readings combine. Policies are loaded once at startup and treated
// as immutable for the process lifetime.
type SeriesPolicy struct {
	SeriesName      string `yaml:"series_name"`
	TopicFilter     string `yaml:"topic_filter"`
	BucketPolicy    string `yaml:"bucket_policy"`
	IntervalSeconds int64  `yaml:"interval_seconds"`
	Unit            string `yaml:"unit"`
	RollupPolicy    string `yaml:"rollup_policy"`
}

// Validate checks that the policy is well-formed.
func (p SeriesPolicy) Validate() error {
	if strings.TrimSpace(p.SeriesName) == "" {
		return fmt.Errorf("series_name must not be empty")
	}
	if strings.TrimSpace(p.TopicFilter) == "" {
		return fmt.Errorf("series %q: topic_filter must not be empty", p.SeriesName)
	}
	switch p.BucketPolicy {
	case PolicyLastValue, PolicyIntervalAverage:
	default:
		return fmt.Errorf("series %q: unsupported bucket_policy %q", p.SeriesName, p.BucketPolicy)
	}
	switch p.RollupPolicy {
	case RollupLast, RollupSum, RollupNone:
	default:
		return fmt.Errorf("series %q: unsupported rollup_policy %q", p.SeriesName, p.RollupPolicy)
	}
	if p.BucketPolicy == PolicyIntervalAverage && p.IntervalSeconds <= 0 {
		return fmt.Errorf("series %q: interval_seconds must be > 0", p.SeriesName)
	}
	return nil
}

// MatchTopic reports whether an incoming topic name belongs to this series.
// The filter uses MQTT wildcard syntax: "+" matches one level, "#" (final
// level only) matches any remainder.
func (p SeriesPolicy) MatchTopic(topic string) bool {
	filters := strings.Split(p.TopicFilter, "/")
	names := strings.Split(topic, "/")

	for i, filter := range filters {
		if filter == "#" {
			return i == len(filters)-1
		}
		if filter == "+" {
			continue
		}
		if i >= len(names) || filter != names[i] {
			return false
		}
	}
	return len(filters) == len(names)
}

// Match returns the first policy whose filter matches topic, or false when
// no configured series claims it. Subscriptions may be broader than the
// configured series, so a miss is not an error.
func Match(policies []SeriesPolicy, topic string) (SeriesPolicy, bool) {
	for _, p := range policies {
		if p.MatchTopic(topic) {
			return p, true
		}
	}
	return SeriesPolicy{}, false
}

// DefaultPolicies returns the built-in inverter series used when no policy
// files are configured: daily yield totals plus 5-minute power averages.
func DefaultPolicies() []SeriesPolicy {
	return []SeriesPolicy{
		{SeriesName: "Yield Total", TopicFilter: "inverter/+/+/YieldTotal", BucketPolicy: PolicyLastValue, Unit: "kWh", RollupPolicy: RollupLast},
		{SeriesName: "Yield Today", TopicFilter: "inverter/+/+/YieldDay", BucketPolicy: PolicyLastValue, Unit: "Wh", RollupPolicy: RollupSum},
		{SeriesName: "Power", TopicFilter: "inverter/+/+/P_AC", BucketPolicy: PolicyIntervalAverage, IntervalSeconds: DefaultIntervalSeconds, Unit: "W", RollupPolicy: RollupNone},
		{SeriesName: "Power", TopicFilter: "inverter/+/+/P_DC", BucketPolicy: PolicyIntervalAverage, IntervalSeconds: DefaultIntervalSeconds, Unit: "W", RollupPolicy: RollupNone},
	}
}

// rawPolicy is the on-disk YAML shape. interval_seconds and rollup_policy
// are optional; they default to 300 and "none".
type rawPolicy struct {
	SeriesName      string `yaml:"series_name"`
	TopicFilter     string `yaml:"topic_filter"`
	BucketPolicy    string `yaml:"bucket_policy"`
	IntervalSeconds int64  `yaml:"interval_seconds"`
	Unit            string `yaml:"unit"`
	RollupPolicy    string `yaml:"rollup_policy"`
}

// LoadPolicyDir reads every *.yaml / *.yml file in dir, one policy per file,
// and returns the policies in file-name order. A missing directory yields
// zero policies, which is valid (the caller decides whether to fall back to
// DefaultPolicies).
func LoadPolicyDir(dir string) ([]SeriesPolicy, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("series policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("series policy path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading series policy dir: %w", err)
	}

	var policies []SeriesPolicy
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading policy file %s: %w", path, err)
		}

		var raw rawPolicy
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
		}
		if raw.SeriesName == "" {
			continue // skip empty / comment-only files
		}

		policy := SeriesPolicy{
			SeriesName:      raw.SeriesName,
			TopicFilter:     raw.TopicFilter,
			BucketPolicy:    raw.BucketPolicy,
			IntervalSeconds: raw.IntervalSeconds,
			Unit:            raw.Unit,
			RollupPolicy:    raw.RollupPolicy,
		}
		if policy.RollupPolicy == "" {
			policy.RollupPolicy = RollupNone
		}
		if policy.BucketPolicy == PolicyIntervalAverage && policy.IntervalSeconds == 0 {
			policy.IntervalSeconds = DefaultIntervalSeconds
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy file %s: %w", path, err)
		}

		policies = append(policies, policy)
	}
	return policies, nil
}
