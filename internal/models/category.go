package models

import (
	"encoding/json"
	"strings"
)

// DisasterCategory is the closed set of categories a report can be triaged into.
type DisasterCategory int

const (
	Unknown DisasterCategory = iota
	Flood
	Fire
	Earthquake
	Hurricane
	Cyclone
	Landslide
	Tsunami
	Accident
	MedicalEmergency
	Chemical
	Emergency // generic, used when no specific category matched
)

// CategoryNames maps categories to the display names returned to clients
// and stored in the disaster_type column.
var CategoryNames = map[DisasterCategory]string{
	Unknown:          "Unknown",
	Flood:            "Flood",
	Fire:             "Fire",
	Earthquake:       "Earthquake",
	Hurricane:        "Hurricane",
	Cyclone:          "Cyclone",
	Landslide:        "Landslide",
	Tsunami:          "Tsunami",
	Accident:         "Accident",
	MedicalEmergency: "Medical Emergency",
	Chemical:         "Chemical",
	Emergency:        "Emergency",
}

// categoryTags are the lower snake case identifiers used in result tags.
var categoryTags = map[DisasterCategory]string{
	Unknown:          "unknown",
	Flood:            "flood",
	Fire:             "fire",
	Earthquake:       "earthquake",
	Hurricane:        "hurricane",
	Cyclone:          "cyclone",
	Landslide:        "landslide",
	Tsunami:          "tsunami",
	Accident:         "accident",
	MedicalEmergency: "medical_emergency",
	Chemical:         "chemical",
	Emergency:        "emergency",
}

// labelAliases resolves model labels that name a known category differently.
var labelAliases = map[string]DisasterCategory{
	"wildfire": Fire,
	"quake":    Earthquake,
	"medical":  MedicalEmergency,
	"general":  Emergency,
}

func (c DisasterCategory) String() string {
	if name, ok := CategoryNames[c]; ok {
		return name
	}
	return CategoryNames[Unknown]
}

// Tag returns the identifier used for this category inside result tags.
func (c DisasterCategory) Tag() string {
	if tag, ok := categoryTags[c]; ok {
		return tag
	}
	return categoryTags[Unknown]
}

// ParseCategory resolves a display name, tag or model label to a category.
// Anything it cannot name becomes Unknown.
func ParseCategory(label string) DisasterCategory {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.ReplaceAll(key, " ", "_")
	if key == "" {
		return Unknown
	}
	for c, tag := range categoryTags {
		if tag == key {
			return c
		}
	}
	if c, ok := labelAliases[key]; ok {
		return c
	}
	return Unknown
}

func (c DisasterCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *DisasterCategory) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*c = ParseCategory(name)
	return nil
}

// CategoryProfile is one row of a keyword taxonomy.
type CategoryProfile struct {
	Category       DisasterCategory
	Keywords       []string
	UrgentKeywords []string
	BaseScore      int // inherent hazard of the category, 0-100
}
