// internal/workflow/formschema/normalize.go
package formschema

import (
	"strings"

	"admitbridge/internal/models"
)

// levelAliases maps free-form and legacy level strings to the canonical enum.
var levelAliases = map[string]models.EducationLevel{
	"high_school":   models.LevelHighSchool,
	"high school":   models.LevelHighSchool,
	"highschool":    models.LevelHighSchool,
	"secondary":     models.LevelHighSchool,
	"12th":          models.LevelHighSchool,
	"diploma":       models.LevelDiploma,
	"associate":     models.LevelDiploma,
	"bachelor":      models.LevelBachelor,
	"bachelors":     models.LevelBachelor,
	"bachelor's":    models.LevelBachelor,
	"undergraduate": models.LevelBachelor,
	"ug":            models.LevelBachelor,
	"master":        models.LevelMaster,
	"masters":       models.LevelMaster,
	"master's":      models.LevelMaster,
	"postgraduate":  models.LevelMaster,
	"pg":            models.LevelMaster,
	"phd":           models.LevelPhD,
	"ph.d":          models.LevelPhD,
	"doctorate":     models.LevelPhD,
	"doctoral":      models.LevelPhD,
}

// NormalizeEducationLevel maps a raw level string to the canonical enum.
// Unknown input yields the empty level, never an error.
func NormalizeEducationLevel(raw string) models.EducationLevel {
	key := strings.ToLower(strings.TrimSpace(raw))
	if level, ok := levelAliases[key]; ok {
		return level
	}
	return ""
}

// SlotCompatibility is the fixed map from application document slots to the
// student-document types accepted as a reusable source for that slot.
var SlotCompatibility = map[models.DocumentType][]string{
	models.DocTranscript: {"transcript", "degree_certificate"},
	models.DocPassport:   {"passport"},
	models.DocIELTS:      {"ielts", "toefl", "language_test"},
	models.DocSOP:        {"sop", "statement_of_purpose"},
}
