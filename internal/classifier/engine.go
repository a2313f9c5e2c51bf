// Package classifier turns disaster reports into triage results. Text goes
// through a keyword tier, an optional upstream model and a last-resort
// fallback; image and audio are scored from an upstream model distribution.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"triage-service/internal/models"
	"triage-service/internal/taxonomy"

	"go.uber.org/zap"
)

// Profile selects the taxonomy and the cascade a deployment runs.
type Profile string

const (
	ProfileFull Profile = "full"
	ProfileLite Profile = "lite"
)

// ParseProfile validates a profile name from configuration.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileFull, ProfileLite:
		return Profile(s), nil
	default:
		return "", fmt.Errorf("unknown profile %q", s)
	}
}

// Tiers reported to the Observer.
const (
	TierFastPath    = "keyword_fast_path"
	TierKeyword     = "keyword"
	TierGeneric     = "generic"
	TierModel       = "model"
	TierFallback    = "fallback"
	TierPlaceholder = "placeholder"
	TierError       = "error"
)

// TextModel is an upstream text classifier.
type TextModel interface {
	PredictText(ctx context.Context, text string) (models.Distribution, error)
}

// ImageModel is an upstream image classifier reading a file on disk.
type ImageModel interface {
	PredictImage(ctx context.Context, path string) (models.Distribution, error)
}

// AudioModel is an upstream audio classifier reading a file on disk.
type AudioModel interface {
	PredictAudio(ctx context.Context, path string) (models.Distribution, error)
}

// Observer is told which tier produced each result.
type Observer interface {
	ObserveTier(modality models.InputType, tier string)
}

type nopObserver struct{}

func (nopObserver) ObserveTier(models.InputType, string) {}

// Options configures an Engine. Nil models mean the capability is absent.
type Options struct {
	Profile  Profile
	Text     TextModel
	Image    ImageModel
	Audio    AudioModel
	Observer Observer
	Logger   *zap.Logger
}

// Capabilities reports which upstream models an Engine will consult.
type Capabilities struct {
	Text  bool
	Image bool
	Audio bool
}

// Any reports whether at least one model is available.
func (c Capabilities) Any() bool {
	return c.Text || c.Image || c.Audio
}

// Engine classifies inputs. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	profile  Profile
	table    []models.CategoryProfile
	text     TextModel
	image    ImageModel
	audio    AudioModel
	observer Observer
	logger   *zap.Logger
}

// New creates an engine for the given profile.
func New(opts Options) (*Engine, error) {
	if _, err := ParseProfile(string(opts.Profile)); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	e := &Engine{
		profile:  opts.Profile,
		text:     opts.Text,
		image:    opts.Image,
		audio:    opts.Audio,
		observer: observer,
		logger:   logger,
	}

	switch opts.Profile {
	case ProfileFull:
		e.table = taxonomy.Full
	case ProfileLite:
		e.table = taxonomy.Lite
		if opts.Text != nil || opts.Image != nil || opts.Audio != nil {
			logger.Warn("Lite profile ignores upstream models")
		}
		e.text, e.image, e.audio = nil, nil, nil
	}

	return e, nil
}

// Profile returns the deployment profile.
func (e *Engine) Profile() Profile {
	return e.profile
}

// Capabilities returns the models this engine consults.
func (e *Engine) Capabilities() Capabilities {
	return Capabilities{
		Text:  e.text != nil,
		Image: e.image != nil,
		Audio: e.audio != nil,
	}
}

// ClassifyText runs the text cascade. It always produces a result.
func (e *Engine) ClassifyText(ctx context.Context, text string) (result models.PredictionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Text classification panicked", zap.Any("panic", r))
			result = Fallback(text)
			e.observer.ObserveTier(models.InputText, TierFallback)
		}
	}()

	result, tier := e.classifyText(ctx, text)
	e.observer.ObserveTier(models.InputText, tier)
	return result
}

func (e *Engine) classifyText(ctx context.Context, text string) (models.PredictionResult, string) {
	normalized := normalize(text)

	if e.profile == ProfileLite {
		if result, ok := scoreKeywords(normalized, e.table); ok {
			return result, TierKeyword
		}
		return scoreGeneric(normalized), TierGeneric
	}

	if result, ok := fastPath(normalized, e.table); ok {
		return result, TierFastPath
	}

	verdict, err := e.textVerdict(ctx, text)
	if err != nil {
		if !errors.Is(err, errNoModel) {
			e.logger.Warn("Text model failed, using fallback", zap.Error(err))
		}
		return Fallback(text), TierFallback
	}
	return ScoreVerdict(verdict), TierModel
}

var errNoModel = errors.New("model not loaded")

func (e *Engine) textVerdict(ctx context.Context, text string) (models.ModelVerdict, error) {
	if e.text == nil {
		return models.ModelVerdict{}, errNoModel
	}
	dist, err := e.text.PredictText(ctx, text)
	if err != nil {
		return models.ModelVerdict{}, fmt.Errorf("text model: %w", err)
	}
	return dist.Verdict()
}

// ScoreText is the pure form of ClassifyText: verdict, when non-nil, stands
// in for the upstream model.
func (e *Engine) ScoreText(text string, verdict *models.ModelVerdict) models.PredictionResult {
	normalized := normalize(text)

	if e.profile == ProfileLite {
		if result, ok := scoreKeywords(normalized, e.table); ok {
			return result
		}
		return scoreGeneric(normalized)
	}

	if result, ok := fastPath(normalized, e.table); ok {
		return result
	}
	if verdict != nil {
		return ScoreVerdict(*verdict)
	}
	return Fallback(text)
}
