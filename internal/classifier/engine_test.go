package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"triage-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	dist  models.Distribution
	err   error
	panic bool
	calls int
}

func (f *fakeModel) predict() (models.Distribution, error) {
	f.calls++
	if f.panic {
		panic("model crashed")
	}
	return f.dist, f.err
}

func (f *fakeModel) PredictText(context.Context, string) (models.Distribution, error) {
	return f.predict()
}

func (f *fakeModel) PredictImage(context.Context, string) (models.Distribution, error) {
	return f.predict()
}

func (f *fakeModel) PredictAudio(context.Context, string) (models.Distribution, error) {
	return f.predict()
}

type recordingObserver struct {
	mu    sync.Mutex
	tiers []string
}

func (r *recordingObserver) ObserveTier(_ models.InputType, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers = append(r.tiers, tier)
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func TestNewRejectsUnknownProfile(t *testing.T) {
	_, err := New(Options{Profile: "medium"})
	require.Error(t, err)
}

func TestLiteIgnoresModels(t *testing.T) {
	m := &fakeModel{}
	e := newEngine(t, Options{Profile: ProfileLite, Text: m, Image: m, Audio: m})

	assert.False(t, e.Capabilities().Any())
	e.ClassifyText(context.Background(), "something happened")
	assert.Zero(t, m.calls)
}

func TestLiteKeywordPolicy(t *testing.T) {
	e := newEngine(t, Options{Profile: ProfileLite})

	tests := []struct {
		name     string
		text     string
		expected models.PredictionResult
	}{
		{
			name: "single keyword",
			text: "There is a massive flood in the city, people are trapped",
			expected: models.PredictionResult{
				Category: models.Flood, DangerScore: 85, Confidence: 0.75,
				Tags: []string{"flood", "keyword_match"},
			},
		},
		{
			name: "keyword and urgent boosts",
			text: "Building collapsed after earthquake",
			expected: models.PredictionResult{
				Category: models.Earthquake, DangerScore: 98, Confidence: 0.95,
				Tags: []string{"earthquake", "keyword_match", "urgent"},
			},
		},
		{
			name: "empty input",
			text: "",
			expected: models.PredictionResult{
				Category: models.Emergency, DangerScore: 60, Confidence: 0.65,
				Tags: []string{"general", "unclassified"},
			},
		},
		{
			name: "generic with urgency vocabulary",
			text: "HELP, this is urgent",
			expected: models.PredictionResult{
				Category: models.Emergency, DangerScore: 80, Confidence: 0.65,
				Tags: []string{"general", "unclassified"},
			},
		},
		{
			name: "general urgency boosts a matched category",
			text: "gas leak, urgent help needed",
			expected: models.PredictionResult{
				Category: models.Chemical, DangerScore: 98, Confidence: 0.85,
				Tags: []string{"chemical", "keyword_match", "urgent"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.ClassifyText(context.Background(), tt.text))
		})
	}
}

func TestLiteTieGoesToFirstDeclared(t *testing.T) {
	e := newEngine(t, Options{Profile: ProfileLite})

	// "debris" (landslide) and "gale" (cyclone) each score 10
	result := e.ClassifyText(context.Background(), "debris after the gale")
	assert.Equal(t, models.Landslide, result.Category)
}

func TestFullFastPath(t *testing.T) {
	e := newEngine(t, Options{Profile: ProfileFull, Text: &fakeModel{err: errors.New("unused")}})

	t.Run("urgent above 80", func(t *testing.T) {
		result := e.ClassifyText(context.Background(), "flood water in the river")
		assert.Equal(t, models.Flood, result.Category)
		assert.Equal(t, 0.90, result.Confidence)
		assert.Equal(t, 85, result.DangerScore)
		assert.Equal(t, []string{"flood", "urgent"}, result.Tags)
	})

	t.Run("two matches", func(t *testing.T) {
		result := e.ClassifyText(context.Background(), "fire and smoke")
		assert.Equal(t, models.Fire, result.Category)
		assert.Equal(t, 80, result.DangerScore)
		assert.Equal(t, []string{"fire"}, result.Tags)
	})

	t.Run("capped at 95", func(t *testing.T) {
		result := e.ClassifyText(context.Background(), "smoke, flame, fire, blaze, burn, wildfire")
		assert.Equal(t, 95, result.DangerScore)
	})
}

func TestFullModelTier(t *testing.T) {
	model := &fakeModel{dist: models.Distribution{
		Labels:        []string{"fire", "flood"},
		Probabilities: []float64{0.3, 0.6},
	}}
	obs := &recordingObserver{}
	e := newEngine(t, Options{Profile: ProfileFull, Text: model, Observer: obs})

	result := e.ClassifyText(context.Background(), "the situation is bad")
	assert.Equal(t, models.PredictionResult{
		Category: models.Flood, DangerScore: 75, Confidence: 0.6,
		Tags: []string{"flood", "ml_classified"},
	}, result)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, []string{TierModel}, obs.tiers)
}

func TestFullModelNotConsultedOnFastPath(t *testing.T) {
	model := &fakeModel{}
	e := newEngine(t, Options{Profile: ProfileFull, Text: model})

	e.ClassifyText(context.Background(), "fire and smoke")
	assert.Zero(t, model.calls)
}

func TestFullFallbackTier(t *testing.T) {
	tests := []struct {
		name  string
		model TextModel
	}{
		{"no model", nil},
		{"model error", &fakeModel{err: errors.New("connection refused")}},
		{"model panic", &fakeModel{panic: true}},
		{"malformed distribution", &fakeModel{dist: models.Distribution{Labels: []string{"fire"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			e := newEngine(t, Options{Profile: ProfileFull, Text: tt.model, Observer: obs})

			result := e.ClassifyText(context.Background(), "my house is on fire")
			assert.Equal(t, models.PredictionResult{
				Category: models.Fire, DangerScore: 85, Confidence: 0.75,
				Tags: []string{"fire", "keyword"},
			}, result)
			assert.Equal(t, []string{TierFallback}, obs.tiers)

			generic := e.ClassifyText(context.Background(), "hello")
			assert.Equal(t, models.PredictionResult{
				Category: models.Emergency, DangerScore: 75, Confidence: 0.60,
				Tags: []string{"general", "keyword"},
			}, generic)
		})
	}
}

func TestFallbackOrder(t *testing.T) {
	// fire is checked before flood
	assert.Equal(t, models.Fire, Fallback("smoke over the flood water").Category)
	assert.Equal(t, models.Earthquake, Fallback("walls collapse").Category)
	assert.Equal(t, models.Accident, Fallback("CRASH on the road").Category)
}

func TestScoreVerdict(t *testing.T) {
	t.Run("boosted label capped", func(t *testing.T) {
		result := ScoreVerdict(models.ModelVerdict{Label: "Earthquake", Probability: 0.9})
		assert.Equal(t, 95, result.DangerScore)
		assert.Equal(t, models.Earthquake, result.Category)
		assert.Equal(t, []string{"earthquake", "ml_classified"}, result.Tags)
	})

	t.Run("unknown label", func(t *testing.T) {
		result := ScoreVerdict(models.ModelVerdict{Label: "volcano", Probability: 0.456})
		assert.Equal(t, models.Unknown, result.Category)
		assert.Equal(t, 46, result.DangerScore)
	})

	t.Run("probability clamped", func(t *testing.T) {
		result := ScoreVerdict(models.ModelVerdict{Label: "storm", Probability: 1.7})
		assert.Equal(t, 1.0, result.Confidence)
		assert.Equal(t, 100, result.DangerScore)
	})
}

func TestScoreTextMatchesClassifyText(t *testing.T) {
	verdict := &models.ModelVerdict{Label: "tsunami", Probability: 0.5}
	full := newEngine(t, Options{Profile: ProfileFull})

	result := full.ScoreText("strange noises", verdict)
	assert.Equal(t, models.Tsunami, result.Category)
	assert.Equal(t, 65, result.DangerScore)

	assert.Equal(t, Fallback("strange noises"), full.ScoreText("strange noises", nil))

	lite := newEngine(t, Options{Profile: ProfileLite})
	assert.Equal(t,
		lite.ClassifyText(context.Background(), "Car accident on highway"),
		lite.ScoreText("Car accident on highway", verdict))
}

func TestResultsStayInBounds(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"\t\n",
		"наводнение в городе",
		"🔥🔥🔥",
		strings.Repeat("flood fire earthquake trapped urgent help sos ", 50),
		"tsunami tidal wave sea wave ocean surge coastal flooding trapped dead severe critical",
		"gas leak toxic radiation chemical fumes poison dying casualties",
	}

	for _, profile := range []Profile{ProfileFull, ProfileLite} {
		e := newEngine(t, Options{Profile: profile})
		for _, in := range inputs {
			result := e.ClassifyText(context.Background(), in)
			assert.GreaterOrEqual(t, result.DangerScore, 0, in)
			assert.LessOrEqual(t, result.DangerScore, 100, in)
			assert.GreaterOrEqual(t, result.Confidence, 0.0, in)
			assert.LessOrEqual(t, result.Confidence, 1.0, in)
			assert.NotEmpty(t, result.Tags, in)

			// deterministic
			assert.Equal(t, result, e.ClassifyText(context.Background(), in))
		}
	}
}

func TestConcurrentClassify(t *testing.T) {
	e := newEngine(t, Options{Profile: ProfileLite})
	want := e.ClassifyText(context.Background(), "Fire emergency - smoke everywhere")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, e.ClassifyText(context.Background(), "Fire emergency - smoke everywhere"))
		}()
	}
	wg.Wait()
}
