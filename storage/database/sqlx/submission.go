package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/formify/core/group"
)

const submissionColumns = `id, student_id, group_id, name, university_roll_no, mobile,
	member1_roll, member1_name, member2_roll, member2_name, project_domain, project_domain_other,
	title, description, tech_stack, expected_outcomes, previous_experience, agreement, sdg_mapping,
	teacher_preferences, comments, synopsis_file, presentation_file, submitted_at, created_at, updated_at`

const submissionValues = `:id, :student_id, :group_id, :name, :university_roll_no, :mobile,
	:member1_roll, :member1_name, :member2_roll, :member2_name, :project_domain, :project_domain_other,
	:title, :description, :tech_stack, :expected_outcomes, :previous_experience, :agreement, :sdg_mapping,
	:teacher_preferences, :comments, :synopsis_file, :presentation_file, :submitted_at, :created_at, :updated_at`

type submissionRecord struct {
	ID                 string         `db:"id"`
	StudentID          string         `db:"student_id"`
	GroupID            null.String    `db:"group_id"`
	Name               string         `db:"name"`
	UniversityRollNo   string         `db:"university_roll_no"`
	Mobile             string         `db:"mobile"`
	Member1Roll        string         `db:"member1_roll"`
	Member1Name        string         `db:"member1_name"`
	Member2Roll        string         `db:"member2_roll"`
	Member2Name        string         `db:"member2_name"`
	ProjectDomain      string         `db:"project_domain"`
	ProjectDomainOther string         `db:"project_domain_other"`
	Title              string         `db:"title"`
	Description        string         `db:"description"`
	TechStack          string         `db:"tech_stack"`
	ExpectedOutcomes   string         `db:"expected_outcomes"`
	PreviousExperience string         `db:"previous_experience"`
	Agreement          bool           `db:"agreement"`
	SDGMapping         string         `db:"sdg_mapping"`
	TeacherPreferences pq.StringArray `db:"teacher_preferences"`
	Comments           string         `db:"comments"`
	SynopsisFile       null.JSON      `db:"synopsis_file"`
	PresentationFile   null.JSON      `db:"presentation_file"`
	SubmittedAt        time.Time      `db:"submitted_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ group.SubmissionRepository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func marshalFile(ref *group.FileRef) (null.JSON, error) {
	if ref == nil {
		return null.JSON{}, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return null.JSON{}, errors.Wrap(err, "marshalling file")
	}
	return null.JSONFrom(b), nil
}

func unmarshalFile(j null.JSON) (*group.FileRef, error) {
	if !j.Valid || len(j.JSON) == 0 {
		return nil, nil
	}
	ref := new(group.FileRef)
	if err := json.Unmarshal(j.JSON, ref); err != nil {
		return nil, errors.Wrap(err, "unmarshalling file")
	}
	return ref, nil
}

func (repo submissionRepository) marshal(sub group.Submission) (submissionRecord, error) {
	synopsis, err := marshalFile(sub.SynopsisFile)
	if err != nil {
		return submissionRecord{}, err
	}
	presentation, err := marshalFile(sub.PresentationFile)
	if err != nil {
		return submissionRecord{}, err
	}
	return submissionRecord{
		ID:                 sub.ID,
		StudentID:          sub.StudentID,
		GroupID:            null.NewString(sub.GroupID, sub.GroupID != ""),
		Name:               sub.Name,
		UniversityRollNo:   sub.UniversityRollNo,
		Mobile:             sub.Mobile,
		Member1Roll:        sub.Member1Roll,
		Member1Name:        sub.Member1Name,
		Member2Roll:        sub.Member2Roll,
		Member2Name:        sub.Member2Name,
		ProjectDomain:      sub.ProjectDomain,
		ProjectDomainOther: sub.ProjectDomainOther,
		Title:              sub.Title,
		Description:        sub.Description,
		TechStack:          sub.TechStack,
		ExpectedOutcomes:   sub.ExpectedOutcomes,
		PreviousExperience: sub.PreviousExperience,
		Agreement:          sub.Agreement,
		SDGMapping:         sub.SDGMapping,
		TeacherPreferences: stringArray(sub.TeacherPreferences),
		Comments:           sub.Comments,
		SynopsisFile:       synopsis,
		PresentationFile:   presentation,
		SubmittedAt:        sub.SubmittedAt.UTC(),
		CreatedAt:          sub.CreatedAt.UTC(),
		UpdatedAt:          sub.UpdatedAt.UTC(),
	}, nil
}

func (repo submissionRepository) unmarshal(rec submissionRecord) (group.Submission, error) {
	synopsis, err := unmarshalFile(rec.SynopsisFile)
	if err != nil {
		return group.Submission{}, err
	}
	presentation, err := unmarshalFile(rec.PresentationFile)
	if err != nil {
		return group.Submission{}, err
	}
	return group.Submission{
		ID:                 rec.ID,
		StudentID:          rec.StudentID,
		GroupID:            rec.GroupID.String,
		Name:               rec.Name,
		UniversityRollNo:   rec.UniversityRollNo,
		Mobile:             rec.Mobile,
		Member1Roll:        rec.Member1Roll,
		Member1Name:        rec.Member1Name,
		Member2Roll:        rec.Member2Roll,
		Member2Name:        rec.Member2Name,
		ProjectDomain:      rec.ProjectDomain,
		ProjectDomainOther: rec.ProjectDomainOther,
		Title:              rec.Title,
		Description:        rec.Description,
		TechStack:          rec.TechStack,
		ExpectedOutcomes:   rec.ExpectedOutcomes,
		PreviousExperience: rec.PreviousExperience,
		Agreement:          rec.Agreement,
		SDGMapping:         rec.SDGMapping,
		TeacherPreferences: []string(rec.TeacherPreferences),
		Comments:           rec.Comments,
		SynopsisFile:       synopsis,
		PresentationFile:   presentation,
		SubmittedAt:        rec.SubmittedAt.UTC(),
		CreatedAt:          rec.CreatedAt.UTC(),
		UpdatedAt:          rec.UpdatedAt.UTC(),
	}, nil
}

func (repo submissionRepository) insert(ctx context.Context, q string, sub group.Submission) (group.Submission, error) {
	rec, err := repo.marshal(sub)
	if err != nil {
		return group.Submission{}, err
	}
	q, args, err := sqlx.Named(q, rec)
	if err != nil {
		return group.Submission{}, errors.Wrap(err, "binding submission")
	}
	exec := getExec(ctx, repo.db)

	var saved submissionRecord
	if err = sqlx.GetContext(ctx, exec, &saved, exec.Rebind(q), args...); err != nil {
		return group.Submission{}, errors.Wrap(err, "writing submission")
	}
	return repo.unmarshal(saved)
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub group.Submission) (group.Submission, error) {
	return repo.insert(ctx, `INSERT INTO submissions (`+submissionColumns+`) VALUES (`+submissionValues+`)
		RETURNING `+submissionColumns, sub)
}

// UpsertSubmission keeps the id and created_at of an existing row.
func (repo submissionRepository) UpsertSubmission(ctx context.Context, sub group.Submission) (group.Submission, error) {
	if sub.GroupID == "" {
		return repo.CreateSubmission(ctx, sub)
	}
	return repo.insert(ctx, `INSERT INTO submissions (`+submissionColumns+`) VALUES (`+submissionValues+`)
		ON CONFLICT (group_id, student_id) WHERE group_id IS NOT NULL DO UPDATE SET
			name = EXCLUDED.name,
			university_roll_no = EXCLUDED.university_roll_no,
			mobile = EXCLUDED.mobile,
			member1_roll = EXCLUDED.member1_roll,
			member1_name = EXCLUDED.member1_name,
			member2_roll = EXCLUDED.member2_roll,
			member2_name = EXCLUDED.member2_name,
			project_domain = EXCLUDED.project_domain,
			project_domain_other = EXCLUDED.project_domain_other,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			tech_stack = EXCLUDED.tech_stack,
			expected_outcomes = EXCLUDED.expected_outcomes,
			previous_experience = EXCLUDED.previous_experience,
			agreement = EXCLUDED.agreement,
			sdg_mapping = EXCLUDED.sdg_mapping,
			teacher_preferences = EXCLUDED.teacher_preferences,
			comments = EXCLUDED.comments,
			synopsis_file = EXCLUDED.synopsis_file,
			presentation_file = EXCLUDED.presentation_file,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = EXCLUDED.updated_at
		RETURNING `+submissionColumns, sub)
}

func (repo submissionRepository) where(filter group.SubmissionFilter) where {
	var w where
	if filter.OrphansOnly {
		w.add("group_id IS NULL")
	} else if filter.GroupID != "" {
		w.add("group_id = ?", filter.GroupID)
	}
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.RealOnly {
		w.add("name <> ''")
	}
	if filter.ExcludeID != "" && isUUID(filter.ExcludeID) {
		w.add("id <> ?", filter.ExcludeID)
	}
	return w
}

// validFilter reports whether the ids of the filter can match anything.
func validFilter(filter group.SubmissionFilter) bool {
	return (filter.GroupID == "" || filter.OrphansOnly || isUUID(filter.GroupID)) &&
		(filter.StudentID == "" || isUUID(filter.StudentID))
}

const submissionOrder = ` ORDER BY submitted_at DESC, created_at DESC, id DESC`

func (repo submissionRepository) GetLatestSubmission(ctx context.Context, filter group.SubmissionFilter) (group.Submission, error) {
	if !validFilter(filter) {
		return group.Submission{}, group.ErrSubmissionNotFound
	}
	w := repo.where(filter)

	var rec submissionRecord
	q := `SELECT ` + submissionColumns + ` FROM submissions` + w.String() + submissionOrder + ` LIMIT 1`
	if err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, q, w.args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return group.Submission{}, group.ErrSubmissionNotFound
		}
		return group.Submission{}, errors.Wrap(err, "selecting latest submission")
	}
	return repo.unmarshal(rec)
}

func (repo submissionRepository) FilterSubmissions(ctx context.Context, filter group.SubmissionFilter) ([]group.Submission, error) {
	if !validFilter(filter) {
		return []group.Submission{}, nil
	}
	w := repo.where(filter)

	var recs []submissionRecord
	q := `SELECT ` + submissionColumns + ` FROM submissions` + w.String() + submissionOrder
	if err := sqlx.SelectContext(ctx, getExec(ctx, repo.db), &recs, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting submissions")
	}
	subs := make([]group.Submission, 0, len(recs))
	for _, rec := range recs {
		sub, err := repo.unmarshal(rec)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (repo submissionRepository) UpdateSubmissionFiles(ctx context.Context, id string, files group.Files) (group.Submission, error) {
	const q = `UPDATE submissions SET
			synopsis_file = COALESCE($2, synopsis_file),
			presentation_file = COALESCE($3, presentation_file),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + submissionColumns

	if !isUUID(id) {
		return group.Submission{}, group.ErrSubmissionNotFound
	}
	synopsis, err := marshalFile(files.Synopsis)
	if err != nil {
		return group.Submission{}, err
	}
	presentation, err := marshalFile(files.Presentation)
	if err != nil {
		return group.Submission{}, err
	}

	var rec submissionRecord
	if err = sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, q, id, synopsis, presentation, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return group.Submission{}, group.ErrSubmissionNotFound
		}
		return group.Submission{}, errors.Wrap(err, "updating submission files")
	}
	return repo.unmarshal(rec)
}

func (repo submissionRepository) DeleteSubmissions(ctx context.Context, filter group.SubmissionFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, errors.New("refusing to delete submissions without a filter")
	}
	if !validFilter(filter) {
		return 0, nil
	}
	w := repo.where(filter)

	res, err := getExec(ctx, repo.db).ExecContext(ctx, `DELETE FROM submissions`+w.String(), w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting submissions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted rows")
	}
	return int(n), nil
}
