// internal/models/form.go
package models

// EducationLevel is the canonical education level enum. The empty value means
// the level is unset or could not be recognized.
type EducationLevel string

const (
	LevelHighSchool EducationLevel = "high_school"
	LevelDiploma    EducationLevel = "diploma"
	LevelBachelor   EducationLevel = "bachelor"
	LevelMaster     EducationLevel = "master"
	LevelPhD        EducationLevel = "phd"
)

// DocumentType is one of the 4 fixed document slots an application requires.
type DocumentType string

const (
	DocTranscript DocumentType = "transcript"
	DocPassport   DocumentType = "passport"
	DocIELTS      DocumentType = "ielts"
	DocSOP        DocumentType = "sop"
)

// DocumentTypes lists the slots in the order the submission loop walks them.
var DocumentTypes = []DocumentType{DocTranscript, DocPassport, DocIELTS, DocSOP}

type PersonalInfo struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	BirthDate      string `json:"birthDate"`
	Nationality    string `json:"nationality"`
	PassportNumber string `json:"passportNumber"`
	Country        string `json:"country"`
	Address        string `json:"address"`
}

type EducationRecord struct {
	ID          string         `json:"id"`
	Level       EducationLevel `json:"level"`
	Institution string         `json:"institution"`
	Country     string         `json:"country"`
	StartDate   string         `json:"startDate"`
	EndDate     string         `json:"endDate"`
	GPA         string         `json:"gpa"`
	GradeScale  string         `json:"gradeScale"`
}

type ProgramSelection struct {
	ProgramID   string `json:"programId"`
	IntakeYear  int    `json:"intakeYear"`
	IntakeMonth int    `json:"intakeMonth"`
	IntakeID    string `json:"intakeId,omitempty"`
}

// ApplicationForm is the in-memory application form. Document slots are
// session-scoped and are never serialized into a draft; a draft only remembers
// the other fields.
type ApplicationForm struct {
	PersonalInfo     PersonalInfo      `json:"personalInfo"`
	EducationHistory []EducationRecord `json:"educationHistory"`
	ProgramSelection ProgramSelection  `json:"programSelection"`
	Notes            string            `json:"notes"`
}

// NewApplicationForm returns an empty form, pre-filled from the acting
// identity's profile fields where available.
func NewApplicationForm(id Identity) *ApplicationForm {
	return &ApplicationForm{
		PersonalInfo: PersonalInfo{
			FullName: id.FullName,
			Email:    id.Email,
			Phone:    id.Phone,
		},
		EducationHistory: []EducationRecord{},
	}
}
