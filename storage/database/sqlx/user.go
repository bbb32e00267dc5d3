package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/user"
)

const userColumns = `id, roll_number, name, role, password_hash, teacher_capacity, assigned_groups_count, created_at, updated_at`

type userRecord struct {
	ID                  string    `db:"id"`
	RollNumber          string    `db:"roll_number"`
	Name                string    `db:"name"`
	Role                string    `db:"role"`
	PasswordHash        []byte    `db:"password_hash"`
	TeacherCapacity     int       `db:"teacher_capacity"`
	AssignedGroupsCount int       `db:"assigned_groups_count"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) marshal(usr user.User) userRecord {
	return userRecord{
		ID:                  usr.ID,
		RollNumber:          usr.RollNumber,
		Name:                usr.Name,
		Role:                usr.Role,
		PasswordHash:        usr.PasswordHash,
		TeacherCapacity:     usr.TeacherCapacity,
		AssignedGroupsCount: usr.AssignedGroupsCount,
		CreatedAt:           usr.CreatedAt.UTC(),
		UpdatedAt:           usr.UpdatedAt.UTC(),
	}
}

func (repo userRepository) unmarshal(rec userRecord) user.User {
	return user.User{
		ID:                  rec.ID,
		RollNumber:          rec.RollNumber,
		Name:                rec.Name,
		Role:                rec.Role,
		PasswordHash:        rec.PasswordHash,
		TeacherCapacity:     rec.TeacherCapacity,
		AssignedGroupsCount: rec.AssignedGroupsCount,
		CreatedAt:           rec.CreatedAt.UTC(),
		UpdatedAt:           rec.UpdatedAt.UTC(),
	}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :roll_number, :name, :role, :password_hash, :teacher_capacity, :assigned_groups_count, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, getExec(ctx, repo.db), q, repo.marshal(usr)); err != nil {
		if isUniqueViolation(err, "users_roll_number_key") {
			return user.User{}, user.ErrRollNumberExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.RollNumber != "":
		w.add("roll_number = ?", filter.RollNumber)
	default:
		return user.User{}, user.ErrNotFound
	}

	var rec userRecord
	if err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, `SELECT `+userColumns+` FROM users`+w.String(), w.args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return repo.unmarshal(rec), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	var w where
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if filter.IDs != nil {
		ids := uuids(filter.IDs)
		if len(ids) == 0 {
			return []user.User{}, nil
		}
		w.add("id = ANY(?)", pq.StringArray(ids))
	}
	order := " ORDER BY roll_number"
	if filter.OrderBy == "name" {
		order = " ORDER BY name, roll_number"
	}

	var recs []userRecord
	if err := sqlx.SelectContext(ctx, getExec(ctx, repo.db), &recs, `SELECT `+userColumns+` FROM users`+w.String()+order, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, repo.unmarshal(rec))
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `UPDATE users
		SET name = $2, roll_number = $3, password_hash = $4, teacher_capacity = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + userColumns

	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	var rec userRecord
	err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, q,
		usr.ID, usr.RollNumber, usr.Name, usr.PasswordHash, usr.TeacherCapacity, usr.UpdatedAt.UTC())
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return user.User{}, user.ErrNotFound
		case isUniqueViolation(err, "users_roll_number_key"):
			return user.User{}, user.ErrRollNumberExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.unmarshal(rec), nil
}

func (repo userRepository) DeleteUser(ctx context.Context, id string) error {
	if !isUUID(id) {
		return nil
	}
	if _, err := getExec(ctx, repo.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return nil
}

func (repo userRepository) IncrementAssignedCount(ctx context.Context, teacherID string, checkCapacity bool) (bool, error) {
	if !isUUID(teacherID) {
		return false, nil
	}
	q := `UPDATE users SET assigned_groups_count = assigned_groups_count + 1, updated_at = now()
		WHERE id = $1 AND role = 'Teacher'`
	if checkCapacity {
		q += ` AND assigned_groups_count < teacher_capacity`
	}

	res, err := getExec(ctx, repo.db).ExecContext(ctx, q, teacherID)
	if err != nil {
		return false, errors.Wrap(err, "incrementing assigned groups count")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting updated rows")
	}
	return n == 1, nil
}

func (repo userRepository) DecrementAssignedCount(ctx context.Context, teacherID string) error {
	const q = `UPDATE users SET assigned_groups_count = GREATEST(0, assigned_groups_count - 1), updated_at = now()
		WHERE id = $1 AND role = 'Teacher'`

	if !isUUID(teacherID) {
		return nil
	}
	if _, err := getExec(ctx, repo.db).ExecContext(ctx, q, teacherID); err != nil {
		return errors.Wrap(err, "decrementing assigned groups count")
	}
	return nil
}

func (repo userRepository) SetAssignedCount(ctx context.Context, teacherID string, count int) error {
	if !isUUID(teacherID) {
		return user.ErrNotFound
	}
	res, err := getExec(ctx, repo.db).ExecContext(ctx,
		`UPDATE users SET assigned_groups_count = $2, updated_at = now() WHERE id = $1`, teacherID, count)
	if err != nil {
		return errors.Wrap(err, "setting assigned groups count")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "counting updated rows")
	} else if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
