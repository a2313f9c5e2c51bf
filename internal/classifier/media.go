package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"triage-service/internal/models"
	"triage-service/internal/taxonomy"

	"go.uber.org/zap"
)

const (
	imagePlaceholderScore = 70
	audioPlaceholderScore = 75
	placeholderConfidence = 0.5

	imageSevereBoost = 10
	audioSevereBoost = 15
)

// ClassifyImage scores an image file with the upstream image model.
func (e *Engine) ClassifyImage(ctx context.Context, path string) models.PredictionResult {
	var predict func(context.Context) (models.Distribution, error)
	if e.image != nil {
		predict = func(ctx context.Context) (models.Distribution, error) {
			return e.image.PredictImage(ctx, path)
		}
	}
	return e.classifyMedia(ctx, models.InputImage, predict)
}

// ClassifyAudio scores an audio file with the upstream audio model.
func (e *Engine) ClassifyAudio(ctx context.Context, path string) models.PredictionResult {
	var predict func(context.Context) (models.Distribution, error)
	if e.audio != nil {
		predict = func(ctx context.Context) (models.Distribution, error) {
			return e.audio.PredictAudio(ctx, path)
		}
	}
	return e.classifyMedia(ctx, models.InputAudio, predict)
}

func (e *Engine) classifyMedia(
	ctx context.Context,
	modality models.InputType,
	predict func(context.Context) (models.Distribution, error),
) (result models.PredictionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Media classification panicked",
				zap.String("modality", string(modality)),
				zap.Any("panic", r))
			result = mediaPlaceholder(modality, "error")
			e.observer.ObserveTier(modality, TierError)
		}
	}()

	if predict == nil {
		e.observer.ObserveTier(modality, TierPlaceholder)
		return mediaPlaceholder(modality, "unclassified")
	}

	verdict, err := mediaVerdict(ctx, predict)
	if err != nil {
		e.logger.Warn("Media model failed",
			zap.String("modality", string(modality)),
			zap.Error(err))
		e.observer.ObserveTier(modality, TierError)
		return mediaPlaceholder(modality, "error")
	}

	e.observer.ObserveTier(modality, TierModel)
	return ScoreMediaVerdict(modality, verdict)
}

func mediaVerdict(ctx context.Context, predict func(context.Context) (models.Distribution, error)) (models.ModelVerdict, error) {
	dist, err := predict(ctx)
	if err != nil {
		return models.ModelVerdict{}, fmt.Errorf("predict: %w", err)
	}
	return dist.Verdict()
}

// ScoreMediaVerdict turns an image or audio verdict into a result.
func ScoreMediaVerdict(modality models.InputType, v models.ModelVerdict) models.PredictionResult {
	p := clampConfidence(v.Probability)
	label := strings.ToLower(strings.TrimSpace(v.Label))

	danger := capScore(int(math.Trunc(p*100)), 100)
	switch {
	case modality == models.InputImage && taxonomy.SevereImage[label]:
		danger = capScore(danger+imageSevereBoost, maxScore)
	case modality == models.InputAudio && taxonomy.SevereAudio[label]:
		danger = capScore(danger+audioSevereBoost, maxScore)
	}

	return models.PredictionResult{
		Category:    models.ParseCategory(label),
		DangerScore: danger,
		Confidence:  p,
		Tags:        []string{string(modality), label},
	}
}

func mediaPlaceholder(modality models.InputType, reason string) models.PredictionResult {
	danger := imagePlaceholderScore
	if modality == models.InputAudio {
		danger = audioPlaceholderScore
	}
	return models.PredictionResult{
		Category:    models.Unknown,
		DangerScore: danger,
		Confidence:  placeholderConfidence,
		Tags:        []string{string(modality), reason},
	}
}
