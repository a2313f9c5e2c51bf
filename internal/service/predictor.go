package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"triage-service/internal/classifier"
	"triage-service/internal/events"
	"triage-service/internal/metrics"
	"triage-service/internal/models"
	"triage-service/internal/taxonomy"

	"go.uber.org/zap"
)

var (
	// ErrMissingInput is returned when a request carries no text or file.
	ErrMissingInput = errors.New("no input provided")
	// ErrInvalidType is returned for an unknown input type.
	ErrInvalidType = errors.New("invalid input type")
	// ErrNotAvailable is returned for operations the profile does not serve.
	ErrNotAvailable = errors.New("not available in this profile")
)

// Classifier produces triage results
type Classifier interface {
	Profile() classifier.Profile
	Capabilities() classifier.Capabilities
	ClassifyText(ctx context.Context, text string) models.PredictionResult
	ClassifyImage(ctx context.Context, path string) models.PredictionResult
	ClassifyAudio(ctx context.Context, path string) models.PredictionResult
}

// PredictionStore is the append-only prediction log
type PredictionStore interface {
	Append(ctx context.Context, rec *models.PredictionRecord) error
	Statistics(ctx context.Context, windowDays int) (models.AggregateStats, error)
	Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error)
	Hourly(ctx context.Context, windowHours int) ([]models.HourlyStat, error)
	Ping(ctx context.Context) error
}

// Request is a single prediction request. File is read for image and audio.
type Request struct {
	Type     models.InputType
	Text     string
	Filename string
	File     io.Reader
}

// SelfTestResult is one canned input and its prediction
type SelfTestResult struct {
	Text       string                  `json:"text"`
	Prediction models.PredictionResult `json:"prediction"`
}

// Health describes what the service can currently do
type Health struct {
	Profile      classifier.Profile
	Capabilities classifier.Capabilities
}

// Predictor handles prediction business logic
type Predictor struct {
	engine    Classifier
	store     PredictionStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewPredictor creates a new predictor service
func NewPredictor(
	engine Classifier,
	store PredictionStore,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Predictor {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Predictor{
		engine:    engine,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Profile returns the deployment profile
func (p *Predictor) Profile() classifier.Profile {
	return p.engine.Profile()
}

// Predict dispatches a request by input type
func (p *Predictor) Predict(ctx context.Context, req Request) (models.PredictionResult, error) {
	switch req.Type {
	case models.InputText, "":
		return p.PredictText(ctx, req.Text)
	case models.InputImage:
		return p.PredictImage(ctx, req.Filename, req.File)
	case models.InputAudio:
		return p.PredictAudio(ctx, req.Filename, req.File)
	default:
		return models.PredictionResult{}, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
}

// PredictText classifies a text report and logs it
func (p *Predictor) PredictText(ctx context.Context, text string) (models.PredictionResult, error) {
	if text == "" {
		return models.PredictionResult{}, ErrMissingInput
	}

	result := p.engine.ClassifyText(ctx, text)
	if err := p.record(ctx, models.InputText, result, text); err != nil {
		return models.PredictionResult{}, err
	}
	return result, nil
}

// PredictImage classifies an uploaded image and logs it
func (p *Predictor) PredictImage(ctx context.Context, filename string, file io.Reader) (models.PredictionResult, error) {
	return p.predictUpload(ctx, models.InputImage, filename, file, p.engine.ClassifyImage)
}

// PredictAudio classifies an uploaded audio clip and logs it
func (p *Predictor) PredictAudio(ctx context.Context, filename string, file io.Reader) (models.PredictionResult, error) {
	return p.predictUpload(ctx, models.InputAudio, filename, file, p.engine.ClassifyAudio)
}

func (p *Predictor) predictUpload(
	ctx context.Context,
	inputType models.InputType,
	filename string,
	file io.Reader,
	classify func(context.Context, string) models.PredictionResult,
) (models.PredictionResult, error) {
	if file == nil || filename == "" {
		return models.PredictionResult{}, ErrMissingInput
	}

	path, err := saveTemp(filename, file)
	if err != nil {
		return models.PredictionResult{}, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("Failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	result := classify(ctx, path)
	if err := p.record(ctx, inputType, result, uploadPreview(inputType, filename)); err != nil {
		return models.PredictionResult{}, err
	}
	return result, nil
}

func saveTemp(filename string, file io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return tmp.Name(), nil
}

func uploadPreview(inputType models.InputType, filename string) string {
	if inputType == models.InputAudio {
		return "Audio: " + filename
	}
	return "Image: " + filename
}

// record logs a result and publishes it. Store failures are fatal to the
// request only in the full profile.
func (p *Predictor) record(ctx context.Context, inputType models.InputType, result models.PredictionResult, preview string) error {
	p.metrics.Predictions.WithLabelValues(string(inputType), result.Category.String()).Inc()

	rec := models.NewPredictionRecord(inputType, result, preview)
	if err := p.store.Append(ctx, rec); err != nil {
		p.metrics.StoreFailures.Inc()
		if p.engine.Profile() == classifier.ProfileFull {
			return fmt.Errorf("failed to save prediction: %w", err)
		}
		p.logger.Error("Failed to save prediction", zap.Error(err))
		return nil
	}

	if err := p.publisher.Publish(ctx, *rec); err != nil {
		p.metrics.PublishFailures.Inc()
		p.logger.Warn("Failed to publish prediction",
			zap.Int64("id", rec.ID),
			zap.Error(err))
	}

	p.logger.Info("Prediction made",
		zap.Int64("id", rec.ID),
		zap.String("input_type", string(inputType)),
		zap.String("disaster_type", result.Category.String()),
		zap.Int("danger_score", result.DangerScore))
	return nil
}

// Statistics returns aggregate statistics over the trailing window
func (p *Predictor) Statistics(ctx context.Context, windowDays int) (models.AggregateStats, error) {
	stats, err := p.store.Statistics(ctx, windowDays)
	if err != nil {
		return models.AggregateStats{}, fmt.Errorf("failed to get statistics: %w", err)
	}
	return stats, nil
}

// Recent returns the newest predictions
func (p *Predictor) Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	records, err := p.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent predictions: %w", err)
	}
	return records, nil
}

// Hourly returns hourly prediction buckets over the trailing window
func (p *Predictor) Hourly(ctx context.Context, windowHours int) ([]models.HourlyStat, error) {
	stats, err := p.store.Hourly(ctx, windowHours)
	if err != nil {
		return nil, fmt.Errorf("failed to get hourly statistics: %w", err)
	}
	return stats, nil
}

// SelfTest classifies the canned smoke-test reports without logging them
func (p *Predictor) SelfTest(ctx context.Context) ([]SelfTestResult, error) {
	if p.engine.Profile() != classifier.ProfileLite {
		return nil, ErrNotAvailable
	}
	results := make([]SelfTestResult, 0, len(taxonomy.SmokeTestInputs))
	for _, text := range taxonomy.SmokeTestInputs {
		results = append(results, SelfTestResult{
			Text:       text,
			Prediction: p.engine.ClassifyText(ctx, text),
		})
	}
	return results, nil
}

// Health reports the profile and loaded models
func (p *Predictor) Health() Health {
	return Health{
		Profile:      p.engine.Profile(),
		Capabilities: p.engine.Capabilities(),
	}
}

// Ready checks that the store answers
func (p *Predictor) Ready(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}
