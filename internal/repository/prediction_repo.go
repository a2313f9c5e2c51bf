package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"triage-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const insertPredictionQuery = `
	INSERT INTO predictions (
		"timestamp", input_type, disaster_type, danger_score,
		confidence, tags, input_preview
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id
`

const maxWindowHours = int64(math.MaxInt64 / int64(time.Hour))

// PredictionRepository is the append-only prediction log.
type PredictionRepository struct {
	db      *sqlx.DB
	dialect Dialect
	clock   clockwork.Clock
	logger  *zap.Logger
}

// Option configures a PredictionRepository.
type Option func(*PredictionRepository)

// WithClock overrides the clock used for timestamps and windows.
func WithClock(c clockwork.Clock) Option {
	return func(r *PredictionRepository) {
		r.clock = c
	}
}

// NewPredictionRepository creates a new repository over an open database.
func NewPredictionRepository(db *sqlx.DB, dialect Dialect, logger *zap.Logger, opts ...Option) *PredictionRepository {
	r := &PredictionRepository{
		db:      db,
		dialect: dialect,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type predictionRow struct {
	ID           int64   `db:"id"`
	Timestamp    string  `db:"timestamp"`
	InputType    string  `db:"input_type"`
	DisasterType string  `db:"disaster_type"`
	DangerScore  int     `db:"danger_score"`
	Confidence   float64 `db:"confidence"`
	Tags         string  `db:"tags"`
	InputPreview string  `db:"input_preview"`
}

func (row predictionRow) record() (models.PredictionRecord, error) {
	ts, err := time.ParseInLocation(models.TimestampLayout, row.Timestamp, time.UTC)
	if err != nil {
		return models.PredictionRecord{}, fmt.Errorf("failed to parse timestamp of prediction %d: %w", row.ID, err)
	}
	tags := []string{}
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return models.PredictionRecord{}, fmt.Errorf("failed to decode tags of prediction %d: %w", row.ID, err)
	}
	return models.PredictionRecord{
		ID:           row.ID,
		Timestamp:    ts,
		InputType:    models.InputType(row.InputType),
		Category:     models.ParseCategory(row.DisasterType),
		DangerScore:  row.DangerScore,
		Confidence:   row.Confidence,
		Tags:         tags,
		InputPreview: row.InputPreview,
	}, nil
}

type countRow struct {
	Name  string `db:"name"`
	Total int    `db:"total"`
}

func toOrderedCounts(rows []countRow) models.OrderedCounts {
	counts := make(models.OrderedCounts, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, models.CountEntry{Key: row.Name, Count: row.Total})
	}
	return counts
}

// Append stores a record and sets its ID. A zero timestamp is taken from
// the repository clock.
func (r *PredictionRepository) Append(ctx context.Context, rec *models.PredictionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.clock.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Microsecond)
	rec.InputPreview = models.TruncatePreview(rec.InputPreview)

	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var id int64
	err = conn.QueryRowxContext(ctx, r.db.Rebind(insertPredictionQuery),
		rec.Timestamp.Format(models.TimestampLayout),
		string(rec.InputType),
		rec.Category.String(),
		rec.DangerScore,
		rec.Confidence,
		string(tagsJSON),
		rec.InputPreview,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	rec.ID = id
	r.logger.Debug("Prediction saved",
		zap.Int64("id", id),
		zap.String("disaster_type", rec.Category.String()))
	return nil
}

// Statistics aggregates the predictions of the trailing windowDays days.
func (r *PredictionRepository) Statistics(ctx context.Context, windowDays int) (models.AggregateStats, error) {
	if windowDays < 0 {
		windowDays = 0
	}
	stats := models.AggregateStats{
		ByCategory:  models.OrderedCounts{},
		ByInputType: models.OrderedCounts{},
		WindowDays:  windowDays,
	}
	cutoff := r.cutoff(daysToHours(windowDays))

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var totals struct {
		Total     int     `db:"total"`
		AvgDanger float64 `db:"avg_danger"`
		AvgConf   float64 `db:"avg_confidence"`
	}
	query := r.db.Rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(AVG(danger_score), 0) AS avg_danger,
		       COALESCE(AVG(confidence), 0) AS avg_confidence
		FROM predictions
		WHERE "timestamp" >= ?
	`)
	if err := conn.GetContext(ctx, &totals, query, cutoff); err != nil {
		return stats, fmt.Errorf("failed to get prediction totals: %w", err)
	}

	var byCategory []countRow
	query = r.db.Rebind(`
		SELECT disaster_type AS name, COUNT(*) AS total
		FROM predictions
		WHERE "timestamp" >= ?
		GROUP BY disaster_type
		ORDER BY total DESC, name ASC
	`)
	if err := conn.SelectContext(ctx, &byCategory, query, cutoff); err != nil {
		return stats, fmt.Errorf("failed to get category distribution: %w", err)
	}

	var byInputType []countRow
	query = r.db.Rebind(`
		SELECT input_type AS name, COUNT(*) AS total
		FROM predictions
		WHERE "timestamp" >= ?
		GROUP BY input_type
		ORDER BY total DESC, name ASC
	`)
	if err := conn.SelectContext(ctx, &byInputType, query, cutoff); err != nil {
		return stats, fmt.Errorf("failed to get input type distribution: %w", err)
	}

	stats.Total = totals.Total
	stats.AvgDangerScore = round(totals.AvgDanger, 2)
	stats.AvgConfidence = round(totals.AvgConf, 3)
	stats.ByCategory = toOrderedCounts(byCategory)
	stats.ByInputType = toOrderedCounts(byInputType)
	return stats, nil
}

// Recent returns the newest records, newest first.
func (r *PredictionRepository) Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	records := []models.PredictionRecord{}
	if limit <= 0 {
		return records, nil
	}

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var rows []predictionRow
	query := r.db.Rebind(`
		SELECT id, "timestamp", input_type, disaster_type, danger_score,
		       confidence, tags, input_preview
		FROM predictions
		ORDER BY id DESC
		LIMIT ?
	`)
	if err := conn.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}

	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Hourly buckets the trailing windowHours hours by hour, oldest first.
func (r *PredictionRepository) Hourly(ctx context.Context, windowHours int) ([]models.HourlyStat, error) {
	if windowHours < 0 {
		windowHours = 0
	}
	cutoff := r.cutoff(int64(windowHours))

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	stats := []models.HourlyStat{}
	if err := conn.SelectContext(ctx, &stats, r.hourlyQuery(), cutoff); err != nil {
		return nil, fmt.Errorf("failed to query hourly stats: %w", err)
	}

	for i := range stats {
		stats[i].AvgDangerScore = round(stats[i].AvgDangerScore, 2)
	}
	return stats, nil
}

// Ping checks that the database answers.
func (r *PredictionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *PredictionRepository) Close() error {
	return r.db.Close()
}

// cutoff formats the start of a trailing window of the given hours. Windows
// longer than a time.Duration can hold start at the zero time.
func (r *PredictionRepository) cutoff(hours int64) string {
	if hours > maxWindowHours {
		return time.Time{}.Format(models.TimestampLayout)
	}
	return r.clock.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(models.TimestampLayout)
}

func daysToHours(days int) int64 {
	if int64(days) > maxWindowHours/24 {
		return maxWindowHours + 1
	}
	return int64(days) * 24
}

func (r *PredictionRepository) hourlyQuery() string {
	return r.db.Rebind(fmt.Sprintf(`
		SELECT %s AS hour, COUNT(*) AS count, AVG(danger_score) AS avg_danger
		FROM predictions
		WHERE "timestamp" >= ?
		GROUP BY hour
		ORDER BY hour ASC
	`, r.hourBucket()))
}

func (r *PredictionRepository) hourBucket() string {
	if r.dialect == DialectPostgres {
		return `to_char("timestamp"::timestamp, 'YYYY-MM-DD HH24:00')`
	}
	return `strftime('%Y-%m-%d %H:00', "timestamp")`
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
