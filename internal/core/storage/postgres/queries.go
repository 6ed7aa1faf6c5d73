package postgres

// The upsert is the single conditional statement the ingest path relies on:
// insert-or-update in one round trip, combine step selected by the bucket
// policy carried with the write. Concurrent upserts for the same key are
// serialized by the database row lock, so no read-modify-write race exists.
const (
	queryUpsertDataPoint = `
		INSERT INTO data_points (
			date, slot_anchor, topic, series_name, bucket_policy,
			value_sum, value_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (date, slot_anchor, topic)
		DO UPDATE SET
			value_sum = CASE EXCLUDED.bucket_policy
				WHEN 'last_value' THEN EXCLUDED.value_sum
				ELSE data_points.value_sum + EXCLUDED.value_sum
			END,
			value_count = CASE EXCLUDED.bucket_policy
				WHEN 'last_value' THEN 1
				ELSE data_points.value_count + 1
			END,
			series_name   = EXCLUDED.series_name,
			bucket_policy = EXCLUDED.bucket_policy,
			updated_at    = EXCLUDED.updated_at
		RETURNING series_name, value_sum, value_count, updated_at
	`

	queryGetDataPoint = `
		SELECT series_name, value_sum, value_count, updated_at
		FROM data_points
		WHERE date = $1 AND slot_anchor = $2 AND topic = $3
	`

	queryRecordsForDate = `
		SELECT date, slot_anchor, topic, series_name, value_sum, value_count, updated_at
		FROM data_points
		WHERE date = $1
		ORDER BY slot_anchor ASC, topic ASC
	`

	queryDailyRange = `
		SELECT date, slot_anchor, topic, series_name, value_sum, value_count, updated_at
		FROM data_points
		WHERE slot_anchor = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC, topic ASC
	`

	queryPreviousDate = `
		SELECT date FROM data_points
		WHERE date < $1
		ORDER BY date DESC
		LIMIT 1
	`

	queryNextDate = `
		SELECT date FROM data_points
		WHERE date > $1
		ORDER BY date ASC
		LIMIT 1
	`

	queryPreviousAnchor = `
		SELECT slot_anchor FROM data_points
		WHERE series_name = $1 AND slot_anchor < $2 AND slot_anchor <> $3
		ORDER BY slot_anchor DESC
		LIMIT 1
	`

	queryNextAnchor = `
		SELECT slot_anchor FROM data_points
		WHERE series_name = $1 AND slot_anchor > $2 AND slot_anchor <> $3
		ORDER BY slot_anchor ASC
		LIMIT 1
	`
)
