package classifier

import (
	"context"
	"errors"
	"testing"

	"triage-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassifyImage(t *testing.T) {
	t.Run("severe label boosted and capped", func(t *testing.T) {
		model := &fakeModel{dist: models.Distribution{
			Labels:        []string{"wildfire", "flood", "normal"},
			Probabilities: []float64{0.879, 0.1, 0.021},
		}}
		e := newEngine(t, Options{Profile: ProfileFull, Image: model})

		assert.Equal(t, models.PredictionResult{
			Category: models.Fire, DangerScore: 95, Confidence: 0.879,
			Tags: []string{"image", "wildfire"},
		}, e.ClassifyImage(context.Background(), "/tmp/x.jpg"))
	})

	t.Run("probability truncated", func(t *testing.T) {
		model := &fakeModel{dist: models.Distribution{
			Labels:        []string{"landslide", "normal"},
			Probabilities: []float64{0.619, 0.381},
		}}
		e := newEngine(t, Options{Profile: ProfileFull, Image: model})

		result := e.ClassifyImage(context.Background(), "/tmp/x.jpg")
		assert.Equal(t, 61, result.DangerScore)
		assert.Equal(t, models.Landslide, result.Category)
	})

	t.Run("no model", func(t *testing.T) {
		e := newEngine(t, Options{Profile: ProfileFull})

		assert.Equal(t, models.PredictionResult{
			Category: models.Unknown, DangerScore: 70, Confidence: 0.5,
			Tags: []string{"image", "unclassified"},
		}, e.ClassifyImage(context.Background(), "/tmp/x.jpg"))
	})

	t.Run("model error", func(t *testing.T) {
		e := newEngine(t, Options{Profile: ProfileFull, Image: &fakeModel{err: errors.New("bad image")}})

		assert.Equal(t, models.PredictionResult{
			Category: models.Unknown, DangerScore: 70, Confidence: 0.5,
			Tags: []string{"image", "error"},
		}, e.ClassifyImage(context.Background(), "/tmp/x.jpg"))
	})
}

func TestClassifyAudio(t *testing.T) {
	t.Run("explosion boosted", func(t *testing.T) {
		obs := &recordingObserver{}
		model := &fakeModel{dist: models.Distribution{
			Labels:        []string{"explosion", "siren"},
			Probabilities: []float64{0.5, 0.5},
		}}
		e := newEngine(t, Options{Profile: ProfileFull, Audio: model, Observer: obs})

		assert.Equal(t, models.PredictionResult{
			Category: models.Unknown, DangerScore: 65, Confidence: 0.5,
			Tags: []string{"audio", "explosion"},
		}, e.ClassifyAudio(context.Background(), "/tmp/x.wav"))
		assert.Equal(t, []string{TierModel}, obs.tiers)
	})

	t.Run("panic recovered", func(t *testing.T) {
		obs := &recordingObserver{}
		e := newEngine(t, Options{Profile: ProfileFull, Audio: &fakeModel{panic: true}, Observer: obs})

		assert.Equal(t, models.PredictionResult{
			Category: models.Unknown, DangerScore: 75, Confidence: 0.5,
			Tags: []string{"audio", "error"},
		}, e.ClassifyAudio(context.Background(), "/tmp/x.wav"))
		assert.Equal(t, []string{TierError}, obs.tiers)
	})

	t.Run("lite placeholder", func(t *testing.T) {
		e := newEngine(t, Options{Profile: ProfileLite, Audio: &fakeModel{}})

		assert.Equal(t, []string{"audio", "unclassified"}, e.ClassifyAudio(context.Background(), "/tmp/x.wav").Tags)
	})
}

func TestScoreMediaVerdictBoostsAreModalitySpecific(t *testing.T) {
	// explosion is only severe for audio
	image := ScoreMediaVerdict(models.InputImage, models.ModelVerdict{Label: "explosion", Probability: 0.5})
	audio := ScoreMediaVerdict(models.InputAudio, models.ModelVerdict{Label: "explosion", Probability: 0.5})
	assert.Equal(t, 50, image.DangerScore)
	assert.Equal(t, 65, audio.DangerScore)
}
