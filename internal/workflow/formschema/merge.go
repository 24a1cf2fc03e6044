// internal/workflow/formschema/merge.go
package formschema

import (
	"strconv"
	"strings"

	"admitbridge/internal/models"

	"github.com/google/uuid"
)

// MergeLegacyFormData merges a legacy draft blob of unknown shape into the
// current form, field by field. A field is copied only when it is present and
// of the expected type; everything else is ignored. This is the single entry
// point for absorbing data persisted by older clients and must never panic.
func MergeLegacyFormData(current *models.ApplicationForm, legacy map[string]interface{}) *models.ApplicationForm {
	if current == nil {
		current = &models.ApplicationForm{EducationHistory: []models.EducationRecord{}}
	}
	merged := *current
	merged.EducationHistory = append([]models.EducationRecord(nil), current.EducationHistory...)
	if legacy == nil {
		return &merged
	}

	if pi, ok := asObject(legacy["personalInfo"]); ok {
		copyString(pi, &merged.PersonalInfo.FullName, "fullName", "full_name", "name")
		copyString(pi, &merged.PersonalInfo.Email, "email")
		copyString(pi, &merged.PersonalInfo.Phone, "phone")
		copyString(pi, &merged.PersonalInfo.BirthDate, "birthDate", "date_of_birth", "dob")
		copyString(pi, &merged.PersonalInfo.Nationality, "nationality")
		copyString(pi, &merged.PersonalInfo.PassportNumber, "passportNumber", "passport_number")
		copyString(pi, &merged.PersonalInfo.Country, "country")
		copyString(pi, &merged.PersonalInfo.Address, "address")
	}

	if rawHistory, ok := legacy["educationHistory"].([]interface{}); ok {
		var history []models.EducationRecord
		for _, raw := range rawHistory {
			if rec, ok := legacyEducationRecord(raw); ok {
				history = append(history, rec)
			}
		}
		if history != nil {
			merged.EducationHistory = history
		}
	}

	if ps, ok := asObject(legacy["programSelection"]); ok {
		copyString(ps, &merged.ProgramSelection.ProgramID, "programId", "program_id")
		copyString(ps, &merged.ProgramSelection.IntakeID, "intakeId", "intake_id")
		if year, ok := asInt(ps["intakeYear"]); ok {
			merged.ProgramSelection.IntakeYear = year
		} else if year, ok := asInt(ps["intake_year"]); ok {
			merged.ProgramSelection.IntakeYear = year
		}
		if month, ok := asInt(ps["intakeMonth"]); ok {
			merged.ProgramSelection.IntakeMonth = month
		} else if month, ok := asInt(ps["intake_month"]); ok {
			merged.ProgramSelection.IntakeMonth = month
		}
	}

	if notes, ok := legacy["notes"].(string); ok && notes != "" {
		merged.Notes = notes
	}

	return &merged
}

// legacyEducationRecord validates one history entry. An entry survives when it
// is an object carrying at least an institution or a recognizable level;
// a missing id gets a synthetic one.
func legacyEducationRecord(raw interface{}) (models.EducationRecord, bool) {
	obj, ok := asObject(raw)
	if !ok {
		return models.EducationRecord{}, false
	}

	var rec models.EducationRecord
	copyString(obj, &rec.ID, "id")
	copyString(obj, &rec.Institution, "institution", "school")
	copyString(obj, &rec.Country, "country")
	copyString(obj, &rec.StartDate, "startDate", "start_date")
	copyString(obj, &rec.EndDate, "endDate", "end_date")
	copyString(obj, &rec.GPA, "gpa", "grade")
	copyString(obj, &rec.GradeScale, "gradeScale", "grade_scale")

	if lvl, ok := obj["level"].(string); ok {
		rec.Level = NormalizeEducationLevel(lvl)
	}

	if rec.Institution == "" && rec.Level == "" {
		return models.EducationRecord{}, false
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return rec, true
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

// copyString writes the first present, non-empty string among keys into dst.
func copyString(obj map[string]interface{}, dst *string, keys ...string) {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			*dst = s
			return
		}
	}
}

// asInt accepts the shapes a JSON round trip can produce for a number.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}
