package classifier

import (
	"math"
	"strings"

	"triage-service/internal/models"
	"triage-service/internal/taxonomy"
)

const (
	maxScore       = 95 // ceiling for routine boosts
	maxUrgentScore = 98 // urgent reports may exceed the routine ceiling

	fastPathMinMatches = 2
	fastPathConfidence = 0.90

	genericBaseScore  = 60
	genericConfidence = 0.65

	fallbackScore      = 75
	fallbackConfidence = 0.60
)

// match is the keyword evidence collected for one taxonomy entry.
type match struct {
	profile        models.CategoryProfile
	keywordMatches int
	urgentMatches  int
}

func (m match) score() int {
	return m.keywordMatches*10 + m.urgentMatches*20
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func countContained(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func collectMatches(text string, table []models.CategoryProfile) []match {
	matches := make([]match, 0, len(table))
	for _, p := range table {
		matches = append(matches, match{
			profile:        p,
			keywordMatches: countContained(text, p.Keywords),
			urgentMatches:  countContained(text, p.UrgentKeywords),
		})
	}
	return matches
}

// fastPath applies the single-best-match rule of the full profile: the entry
// with the most keyword hits wins outright once it has at least two.
func fastPath(text string, table []models.CategoryProfile) (models.PredictionResult, bool) {
	var best *match
	for _, m := range collectMatches(text, table) {
		if best == nil || m.keywordMatches > best.keywordMatches {
			m := m
			best = &m
		}
	}
	if best == nil || best.keywordMatches < fastPathMinMatches {
		return models.PredictionResult{}, false
	}

	danger := capScore(70+best.keywordMatches*5, maxScore)
	tags := []string{best.profile.Category.Tag()}
	if danger > 80 {
		tags = append(tags, "urgent")
	}
	return models.PredictionResult{
		Category:    best.profile.Category,
		DangerScore: danger,
		Confidence:  fastPathConfidence,
		Tags:        tags,
	}, true
}

// scoreKeywords applies the richer policy of the lite profile. It reports
// false when no entry had a single keyword hit.
func scoreKeywords(text string, table []models.CategoryProfile) (models.PredictionResult, bool) {
	var best *match
	for _, m := range collectMatches(text, table) {
		if m.keywordMatches == 0 {
			continue
		}
		if best == nil || m.score() > best.score() {
			m := m
			best = &m
		}
	}
	if best == nil {
		return models.PredictionResult{}, false
	}

	danger := capScore(best.profile.BaseScore, 100)
	if best.keywordMatches >= 3 {
		danger = capScore(danger+5, maxScore)
	}
	if best.urgentMatches > 0 {
		danger = capScore(danger+best.urgentMatches*5, maxUrgentScore)
	}
	if countContained(text, taxonomy.UrgencyVocabulary) >= 2 {
		danger = capScore(danger+5, maxUrgentScore)
	}

	confidence := math.Min(0.95, 0.70+float64(best.keywordMatches)*0.05+float64(best.urgentMatches)*0.10)

	tags := []string{best.profile.Category.Tag(), "keyword_match"}
	if best.urgentMatches > 0 {
		tags = append(tags, "urgent")
	}
	return models.PredictionResult{
		Category:    best.profile.Category,
		DangerScore: danger,
		Confidence:  round(clampConfidence(confidence), 2),
		Tags:        tags,
	}, true
}

// scoreGeneric handles reports that named no category at all.
func scoreGeneric(text string) models.PredictionResult {
	urgency := countContained(text, taxonomy.UrgencyVocabulary)
	return models.PredictionResult{
		Category:    models.Emergency,
		DangerScore: capScore(genericBaseScore+urgency*10, maxScore),
		Confidence:  genericConfidence,
		Tags:        []string{"general", "unclassified"},
	}
}

// ScoreVerdict turns an upstream text model verdict into a result.
func ScoreVerdict(v models.ModelVerdict) models.PredictionResult {
	p := clampConfidence(v.Probability)
	label := strings.ToLower(strings.TrimSpace(v.Label))

	danger := capScore(int(math.Round(p*100)), 100)
	if taxonomy.HighLethalityText[label] {
		danger = capScore(danger+15, maxScore)
	}
	return models.PredictionResult{
		Category:    models.ParseCategory(label),
		DangerScore: danger,
		Confidence:  p,
		Tags:        []string{label, "ml_classified"},
	}
}

// Fallback is the last-resort classifier. It never fails.
func Fallback(text string) models.PredictionResult {
	lower := strings.ToLower(text)
	for _, rule := range taxonomy.Fallback {
		if countContained(lower, rule.Keywords) > 0 {
			return models.PredictionResult{
				Category:    rule.Category,
				DangerScore: rule.DangerScore,
				Confidence:  rule.Confidence,
				Tags:        []string{rule.Category.Tag(), "keyword"},
			}
		}
	}
	return models.PredictionResult{
		Category:    models.Emergency,
		DangerScore: fallbackScore,
		Confidence:  fallbackConfidence,
		Tags:        []string{"general", "keyword"},
	}
}

func capScore(score, ceiling int) int {
	if score > ceiling {
		score = ceiling
	}
	if score < 0 {
		return 0
	}
	return score
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
