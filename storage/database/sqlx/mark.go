package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/group"
)

type studentMarkRecord struct {
	GroupID   string    `db:"group_id"`
	StudentID string    `db:"student_id"`
	TeacherID string    `db:"teacher_id"`
	Marks     float64   `db:"marks"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type groupMarkRecord struct {
	GroupID   string    `db:"group_id"`
	TeacherID string    `db:"teacher_id"`
	Marks     float64   `db:"marks"`
	Remarks   string    `db:"remarks"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (rec studentMarkRecord) mark() group.StudentMark {
	return group.StudentMark{
		GroupID:   rec.GroupID,
		StudentID: rec.StudentID,
		TeacherID: rec.TeacherID,
		Marks:     rec.Marks,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

func (rec groupMarkRecord) mark() group.GroupMark {
	return group.GroupMark{
		GroupID:   rec.GroupID,
		TeacherID: rec.TeacherID,
		Marks:     rec.Marks,
		Remarks:   rec.Remarks,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

type markRepository struct {
	db *sqlx.DB
}

var _ group.MarkRepository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(db *sqlx.DB) *markRepository {
	return &markRepository{db: db}
}

func (repo markRepository) UpsertStudentMark(ctx context.Context, mark group.StudentMark) (group.StudentMark, error) {
	const q = `INSERT INTO student_marks (group_id, student_id, teacher_id, marks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, student_id, teacher_id) DO UPDATE SET marks = EXCLUDED.marks, updated_at = EXCLUDED.updated_at
		RETURNING group_id, student_id, teacher_id, marks, created_at, updated_at`

	var rec studentMarkRecord
	err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, q,
		mark.GroupID, mark.StudentID, mark.TeacherID, mark.Marks, mark.CreatedAt.UTC(), mark.UpdatedAt.UTC())
	if err != nil {
		return group.StudentMark{}, errors.Wrap(err, "upserting student mark")
	}
	return rec.mark(), nil
}

func (repo markRepository) FilterStudentMarks(ctx context.Context, groupID, teacherID string) ([]group.StudentMark, error) {
	if !isUUID(groupID) || (teacherID != "" && !isUUID(teacherID)) {
		return []group.StudentMark{}, nil
	}
	var w where
	w.add("group_id = ?", groupID)
	if teacherID != "" {
		w.add("teacher_id = ?", teacherID)
	}

	var recs []studentMarkRecord
	q := `SELECT group_id, student_id, teacher_id, marks, created_at, updated_at FROM student_marks` + w.String() + ` ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, getExec(ctx, repo.db), &recs, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting student marks")
	}
	marks := make([]group.StudentMark, 0, len(recs))
	for _, rec := range recs {
		marks = append(marks, rec.mark())
	}
	return marks, nil
}

func (repo markRepository) UpsertGroupMark(ctx context.Context, mark group.GroupMark) (group.GroupMark, error) {
	const q = `INSERT INTO group_marks (group_id, teacher_id, marks, remarks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, teacher_id) DO UPDATE SET
			marks = EXCLUDED.marks, remarks = EXCLUDED.remarks, updated_at = EXCLUDED.updated_at
		RETURNING group_id, teacher_id, marks, remarks, created_at, updated_at`

	var rec groupMarkRecord
	err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, q,
		mark.GroupID, mark.TeacherID, mark.Marks, mark.Remarks, mark.CreatedAt.UTC(), mark.UpdatedAt.UTC())
	if err != nil {
		return group.GroupMark{}, errors.Wrap(err, "upserting group mark")
	}
	return rec.mark(), nil
}

func (repo markRepository) GetGroupMark(ctx context.Context, groupID, teacherID string) (group.GroupMark, bool, error) {
	const q = `SELECT group_id, teacher_id, marks, remarks, created_at, updated_at FROM group_marks
		WHERE group_id = $1 AND teacher_id = $2`

	if !isUUID(groupID) || !isUUID(teacherID) {
		return group.GroupMark{}, false, nil
	}
	var rec groupMarkRecord
	if err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, q, groupID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return group.GroupMark{}, false, nil
		}
		return group.GroupMark{}, false, errors.Wrap(err, "selecting group mark")
	}
	return rec.mark(), true, nil
}

func (repo markRepository) DeleteStudentMarks(ctx context.Context, groupID string) error {
	return repo.deleteByGroup(ctx, "student_marks", groupID)
}

func (repo markRepository) DeleteGroupMarks(ctx context.Context, groupID string) error {
	return repo.deleteByGroup(ctx, "group_marks", groupID)
}

func (repo markRepository) deleteByGroup(ctx context.Context, table, groupID string) error {
	if !isUUID(groupID) {
		return nil
	}
	if _, err := getExec(ctx, repo.db).ExecContext(ctx, `DELETE FROM `+table+` WHERE group_id = $1`, groupID); err != nil {
		return errors.Wrapf(err, "deleting %s", table)
	}
	return nil
}
