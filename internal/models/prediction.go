package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// InputType is the modality a prediction was made from.
type InputType string

const (
	InputText  InputType = "text"
	InputImage InputType = "image"
	InputAudio InputType = "audio"
)

// ParseInputType validates a modality received from a client.
func ParseInputType(s string) (InputType, bool) {
	switch InputType(s) {
	case InputText, InputImage, InputAudio:
		return InputType(s), true
	default:
		return "", false
	}
}

const (
	// PreviewLimit is the maximum number of characters kept from an input.
	PreviewLimit = 100

	// TimestampLayout is the fixed-width UTC ISO-8601 form used for storage,
	// so window filters can compare timestamps as strings.
	TimestampLayout = "2006-01-02T15:04:05.000000"
)

// PredictionResult is the triage signal returned for a single input.
type PredictionResult struct {
	Category    DisasterCategory `json:"disaster_type"`
	DangerScore int              `json:"danger_score"`
	Confidence  float64          `json:"confidence"`
	Tags        []string         `json:"tags"`
}

// PredictionRecord is an immutable row of the prediction log.
type PredictionRecord struct {
	ID           int64            `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	InputType    InputType        `json:"input_type"`
	Category     DisasterCategory `json:"disaster_type"`
	DangerScore  int              `json:"danger_score"`
	Confidence   float64          `json:"confidence"`
	Tags         []string         `json:"tags"`
	InputPreview string           `json:"input_preview"`
}

// NewPredictionRecord builds the record logged for a result. ID and
// Timestamp are assigned by the store.
func NewPredictionRecord(inputType InputType, result PredictionResult, preview string) *PredictionRecord {
	tags := make([]string, len(result.Tags))
	copy(tags, result.Tags)
	return &PredictionRecord{
		InputType:    inputType,
		Category:     result.Category,
		DangerScore:  result.DangerScore,
		Confidence:   result.Confidence,
		Tags:         tags,
		InputPreview: TruncatePreview(preview),
	}
}

// TruncatePreview cuts s to PreviewLimit characters without splitting runes.
func TruncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLimit])
}

// ModelVerdict is the arg-max label of an upstream model and its probability.
type ModelVerdict struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ErrMalformedDistribution is returned for empty or inconsistent model output.
var ErrMalformedDistribution = errors.New("malformed probability distribution")

// Distribution is the per-label output of an upstream classifier.
type Distribution struct {
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

// Verdict returns the highest-probability label. The first label wins ties.
func (d Distribution) Verdict() (ModelVerdict, error) {
	if len(d.Labels) == 0 || len(d.Labels) != len(d.Probabilities) {
		return ModelVerdict{}, fmt.Errorf("%w: %d labels, %d probabilities",
			ErrMalformedDistribution, len(d.Labels), len(d.Probabilities))
	}
	best := 0
	for i, p := range d.Probabilities {
		if p > d.Probabilities[best] {
			best = i
		}
	}
	return ModelVerdict{Label: d.Labels[best], Probability: d.Probabilities[best]}, nil
}

// CountEntry is one key of an ordered distribution.
type CountEntry struct {
	Key   string
	Count int
}

// OrderedCounts is a distribution that keeps its order when encoded as a
// JSON object.
type OrderedCounts []CountEntry

func (o OrderedCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", e.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Map returns the distribution as a plain map.
func (o OrderedCounts) Map() map[string]int {
	m := make(map[string]int, len(o))
	for _, e := range o {
		m[e.Key] = e.Count
	}
	return m
}

// AggregateStats summarises the predictions of a trailing window.
type AggregateStats struct {
	Total          int           `json:"total_predictions"`
	ByCategory     OrderedCounts `json:"disaster_distribution"`
	ByInputType    OrderedCounts `json:"input_type_distribution"`
	AvgDangerScore float64       `json:"average_danger_score"`
	AvgConfidence  float64       `json:"average_confidence"`
	WindowDays     int           `json:"period_days"`
}

// HourlyStat is one hour bucket of the hourly rollup.
type HourlyStat struct {
	Hour           string  `json:"hour" db:"hour"`
	Count          int     `json:"count" db:"count"`
	AvgDangerScore float64 `json:"avg_danger_score" db:"avg_danger"`
}
