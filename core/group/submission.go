package group

import (
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/formify/core"
)

const domainOther = "Other"

// FileRef points to an uploaded file.
type FileRef struct {
	OriginalName string `json:"original_name"`
	Filename     string `json:"filename"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
	Path         string `json:"path"`
}

// Files holds the optional uploads attached to a submission.
type Files struct {
	Synopsis     *FileRef
	Presentation *FileRef
}

func (f Files) IsEmpty() bool { return f.Synopsis == nil && f.Presentation == nil }

// Submission is a student's latest project form for a group.
// A submission without GroupID is an orphan kept for admin review.
type Submission struct {
	ID                 string    `json:"id"`
	StudentID          string    `json:"student_id"`
	GroupID            string    `json:"group_id,omitempty"`
	Name               string    `json:"name"`
	UniversityRollNo   string    `json:"university_roll_no"`
	Mobile             string    `json:"mobile"`
	Member1Roll        string    `json:"member1_roll"`
	Member1Name        string    `json:"member1_name"`
	Member2Roll        string    `json:"member2_roll"`
	Member2Name        string    `json:"member2_name"`
	ProjectDomain      string    `json:"project_domain"`
	ProjectDomainOther string    `json:"project_domain_other,omitempty"`
	Title              string    `json:"tentative_project_title"`
	Description        string    `json:"project_description"`
	TechStack          string    `json:"technology_stack"`
	ExpectedOutcomes   string    `json:"expected_outcomes"`
	PreviousExperience string    `json:"previous_experience,omitempty"`
	Agreement          bool      `json:"agreement"`
	SDGMapping         string    `json:"sdg_mapping"`
	TeacherPreferences []string  `json:"teacher_preferences"`
	Comments           string    `json:"comments,omitempty"`
	SynopsisFile       *FileRef  `json:"synopsis_file,omitempty"`
	PresentationFile   *FileRef  `json:"presentation_file,omitempty"`
	SubmittedAt        time.Time `json:"submitted_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsReal reports whether the submission carries form content.
func (s Submission) IsReal() bool { return s.Name != "" }

// SubmissionFilter applies AND on its set fields.
// Results are ordered by submission date then creation date, newest first.
type SubmissionFilter struct {
	GroupID   string
	StudentID string
	// RealOnly skips rows without form content.
	RealOnly bool
	// OrphansOnly selects rows without a group; GroupID is then ignored.
	OrphansOnly bool
	ExcludeID   string
}

func (f SubmissionFilter) IsEmpty() bool {
	return f.GroupID == "" && f.StudentID == "" && !f.OrphansOnly
}

// SubmissionForm is the project form filled in by a student.
type SubmissionForm struct {
	Name               string `json:"name" form:"name" validate:"required"`
	UniversityRollNo   string `json:"university_roll_no" form:"university_roll_no" validate:"required"`
	Mobile             string `json:"mobile" form:"mobile" validate:"mobile"`
	Member1Roll        string `json:"member1_roll" form:"member1_roll" validate:"required"`
	Member2Roll        string `json:"member2_roll" form:"member2_roll" validate:"required"`
	Member1Name        string `json:"member1_name" form:"member1_name" validate:"required"`
	Member2Name        string `json:"member2_name" form:"member2_name" validate:"required"`
	ProjectDomain      string `json:"project_domain" form:"project_domain" validate:"required"`
	ProjectDomainOther string `json:"project_domain_other" form:"project_domain_other"`
	Title              string `json:"tentative_project_title" form:"tentative_project_title" validate:"required"`
	Description        string `json:"project_description" form:"project_description" validate:"required"`
	TechStack          string `json:"technology_stack" form:"technology_stack" validate:"required"`
	ExpectedOutcomes   string `json:"expected_outcomes" form:"expected_outcomes" validate:"required"`
	PreviousExperience string `json:"previous_experience" form:"previous_experience"`
	Agreement          bool   `json:"agreement" form:"agreement" validate:"agreed"`
	SDGMapping         string `json:"sdg_mapping" form:"sdg_mapping" validate:"required"`
	Pref1              string `json:"pref1" form:"pref1" validate:"required"`
	Pref2              string `json:"pref2" form:"pref2" validate:"required"`
	Pref3              string `json:"pref3" form:"pref3" validate:"required"`
	Comments           string `json:"comments" form:"comments"`
}

// Validate cleans the form and checks it is complete.
// Teacher preferences are only checked for distinctness here; the service checks they exist.
func (sf *SubmissionForm) Validate(validate *validator.Validate) error {
	sf.Name = core.CleanString(sf.Name)
	sf.UniversityRollNo = core.NormalizeRoll(sf.UniversityRollNo)
	sf.Mobile = digitsOnly(sf.Mobile)
	sf.Member1Roll = core.NormalizeRoll(sf.Member1Roll)
	sf.Member2Roll = core.NormalizeRoll(sf.Member2Roll)
	sf.Member1Name = core.CleanString(sf.Member1Name)
	sf.Member2Name = core.CleanString(sf.Member2Name)
	sf.ProjectDomain = core.CleanString(sf.ProjectDomain)
	sf.ProjectDomainOther = core.CleanString(sf.ProjectDomainOther)
	if sf.ProjectDomain != domainOther {
		sf.ProjectDomainOther = ""
	}
	sf.Title = core.CleanString(sf.Title)
	sf.Description = core.CleanString(sf.Description)
	sf.TechStack = core.CleanString(sf.TechStack)
	sf.ExpectedOutcomes = core.CleanString(sf.ExpectedOutcomes)
	sf.PreviousExperience = core.CleanString(sf.PreviousExperience)
	sf.SDGMapping = core.CleanString(sf.SDGMapping)
	sf.Pref1 = core.CleanString(sf.Pref1)
	sf.Pref2 = core.CleanString(sf.Pref2)
	sf.Pref3 = core.CleanString(sf.Pref3)
	sf.Comments = core.CleanString(sf.Comments)

	return validate.Struct(sf)
}

// Partners returns the normalized, deduplicated teammate roll numbers.
func (sf SubmissionForm) Partners() []string {
	return core.UniqueRolls(sf.Member1Roll, sf.Member2Roll)
}

// Preferences returns the ranked teacher ids.
func (sf SubmissionForm) Preferences() []string {
	return []string{sf.Pref1, sf.Pref2, sf.Pref3}
}

// DomainValue is the domain locked onto a group: the free-text detail when "Other" was picked.
func (sf SubmissionForm) DomainValue() string {
	if sf.ProjectDomain == domainOther {
		if sf.ProjectDomainOther != "" {
			return sf.ProjectDomainOther
		}
		return domainOther
	}
	return sf.ProjectDomain
}

func (sf SubmissionForm) project() Project {
	return Project{
		Title:            sf.Title,
		Domain:           sf.DomainValue(),
		DomainOther:      sf.ProjectDomainOther,
		TechStack:        sf.TechStack,
		Description:      sf.Description,
		ExpectedOutcomes: sf.ExpectedOutcomes,
		SDGMapping:       sf.SDGMapping,
	}
}

// submission maps the form onto a new Submission row for the student and group (empty for orphans).
func (sf SubmissionForm) submission(studentID, groupID string, files Files) Submission {
	now := time.Now().UTC()
	return Submission{
		ID:                 uuid.NewString(),
		StudentID:          studentID,
		GroupID:            groupID,
		Name:               sf.Name,
		UniversityRollNo:   sf.UniversityRollNo,
		Mobile:             sf.Mobile,
		Member1Roll:        sf.Member1Roll,
		Member1Name:        sf.Member1Name,
		Member2Roll:        sf.Member2Roll,
		Member2Name:        sf.Member2Name,
		ProjectDomain:      sf.ProjectDomain,
		ProjectDomainOther: sf.ProjectDomainOther,
		Title:              sf.Title,
		Description:        sf.Description,
		TechStack:          sf.TechStack,
		ExpectedOutcomes:   sf.ExpectedOutcomes,
		PreviousExperience: sf.PreviousExperience,
		Agreement:          true,
		SDGMapping:         sf.SDGMapping,
		TeacherPreferences: sf.Preferences(),
		Comments:           sf.Comments,
		SynopsisFile:       files.Synopsis,
		PresentationFile:   files.Presentation,
		SubmittedAt:        now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
