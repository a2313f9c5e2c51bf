// Package taxonomy holds the hand-tuned keyword tables used to triage
// disaster reports. Tables are read-only; the order of entries is the
// tie-break order of the classifier.
//
// Full backs the model-assisted profile and is only consulted by the keyword
// fast path. Lite backs the keyword-only profile and carries base scores and
// urgent vocabularies.
package taxonomy

import "triage-service/internal/models"

// Full is the seven-category table of the model-backed deployment. Base
// scores mirror Lite where the categories overlap; the fast path derives its
// danger score from the match count and does not read them.
var Full = []models.CategoryProfile{
	{
		Category:  models.Flood,
		Keywords:  []string{"submerged", "underwater", "flooded", "flood", "water", "river", "rain", "overflow"},
		BaseScore: 85,
	},
	{
		Category:  models.Earthquake,
		Keywords:  []string{"building", "collapse", "crack", "shake", "tremor", "seismic", "quake"},
		BaseScore: 95,
	},
	{
		Category:  models.Fire,
		Keywords:  []string{"smoke", "burn", "flame", "fire", "blaze", "wildfire"},
		BaseScore: 90,
	},
	{
		Category:  models.Hurricane,
		Keywords:  []string{"wind", "storm", "hurricane", "cyclone", "typhoon"},
		BaseScore: 85,
	},
	{
		Category:  models.Landslide,
		Keywords:  []string{"slide", "mud", "rock", "slope", "debris", "avalanche"},
		BaseScore: 80,
	},
	{
		Category:  models.Tsunami,
		Keywords:  []string{"wave", "tsunami", "sea", "ocean", "coastal"},
		BaseScore: 95,
	},
	{
		Category:  models.Accident,
		Keywords:  []string{"crash", "collision", "accident", "vehicle", "train"},
		BaseScore: 70,
	},
}

// Lite is the nine-category table of the keyword-only deployment.
var Lite = []models.CategoryProfile{
	{
		Category: models.Flood,
		Keywords: []string{"flood", "flooded", "submerged", "underwater", "water", "river overflow",
			"inundated", "waterlogged", "drowning", "dam burst", "heavy rain"},
		UrgentKeywords: []string{"submerged", "drowning", "underwater", "dam burst"},
		BaseScore:      85,
	},
	{
		Category: models.Fire,
		Keywords: []string{"fire", "burn", "burning", "smoke", "flame", "blaze", "wildfire",
			"inferno", "combustion", "explosion"},
		UrgentKeywords: []string{"explosion", "wildfire", "trapped", "burning"},
		BaseScore:      90,
	},
	{
		Category: models.Earthquake,
		Keywords: []string{"earthquake", "quake", "tremor", "shake", "shaking", "building collapse",
			"crack", "seismic", "aftershock", "rubble"},
		UrgentKeywords: []string{"collapse", "trapped", "rubble", "casualties"},
		BaseScore:      95,
	},
	{
		Category: models.Landslide,
		Keywords: []string{"landslide", "mudslide", "rockfall", "avalanche", "slope failure",
			"debris", "mud", "rock slide"},
		UrgentKeywords: []string{"buried", "trapped", "avalanche"},
		BaseScore:      80,
	},
	{
		Category:       models.Tsunami,
		Keywords:       []string{"tsunami", "tidal wave", "sea wave", "ocean surge", "coastal flooding"},
		UrgentKeywords: []string{"tsunami", "tidal wave"},
		BaseScore:      95,
	},
	{
		Category: models.Cyclone,
		Keywords: []string{"cyclone", "hurricane", "typhoon", "storm", "tornado", "wind",
			"tempest", "gale"},
		UrgentKeywords: []string{"cyclone", "hurricane", "tornado"},
		BaseScore:      85,
	},
	{
		Category: models.Accident,
		Keywords: []string{"accident", "crash", "collision", "vehicle", "car", "train",
			"derailment", "wreck", "injured"},
		UrgentKeywords: []string{"casualties", "injured", "trapped", "explosion"},
		BaseScore:      70,
	},
	{
		Category: models.MedicalEmergency,
		Keywords: []string{"medical", "ambulance", "heart attack", "unconscious", "bleeding",
			"injury", "sick", "emergency"},
		UrgentKeywords: []string{"unconscious", "bleeding", "heart attack"},
		BaseScore:      75,
	},
	{
		Category:       models.Chemical,
		Keywords:       []string{"gas leak", "chemical", "toxic", "poison", "fumes", "radiation"},
		UrgentKeywords: []string{"gas leak", "toxic", "radiation"},
		BaseScore:      88,
	},
}

// UrgencyVocabulary is the cross-category escalation vocabulary.
var UrgencyVocabulary = []string{
	"urgent", "emergency", "help", "sos", "immediate", "critical",
	"dying", "trapped", "casualties", "dead", "severe",
}

// FallbackRule is one entry of the minimal classifier used when everything
// else failed.
type FallbackRule struct {
	Category    models.DisasterCategory
	Keywords    []string
	DangerScore int
	Confidence  float64
}

// Fallback rules are checked in order; the first rule with any keyword wins.
var Fallback = []FallbackRule{
	{Category: models.Fire, Keywords: []string{"fire", "burn", "smoke", "flame"}, DangerScore: 85, Confidence: 0.75},
	{Category: models.Flood, Keywords: []string{"flood", "water", "submerged", "underwater"}, DangerScore: 90, Confidence: 0.80},
	{Category: models.Earthquake, Keywords: []string{"earthquake", "shake", "tremor", "collapse"}, DangerScore: 95, Confidence: 0.85},
	{Category: models.Accident, Keywords: []string{"accident", "crash", "collision"}, DangerScore: 70, Confidence: 0.70},
}

// Labels that earn a severity boost when predicted by an upstream model.
var (
	HighLethalityText = map[string]bool{"fire": true, "earthquake": true, "tsunami": true, "flood": true}
	SevereImage       = map[string]bool{"wildfire": true, "earthquake": true, "tsunami": true, "flood": true}
	SevereAudio       = map[string]bool{"explosion": true, "fire": true, "earthquake": true}
)

// SmokeTestInputs are the canned reports served by the lite /test endpoint.
var SmokeTestInputs = []string{
	"There is a massive flood in the city, people are trapped",
	"Building collapsed after earthquake",
	"Fire emergency - smoke everywhere",
	"Car accident on highway",
}
