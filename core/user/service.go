package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
)

var (
	// errors
	ErrNotFound          = errors.New("user not found")
	ErrTeacherNotFound   = errors.New("Teacher not found")
	ErrStudentNotFound   = errors.New("Student not found")
	ErrRollNumberExists  = errors.New("rollNumber already exists")
	ErrInvalidSeedKey    = errors.New("Invalid seed key")
	ErrInvalidCapacity   = core.NewFieldError("teacher_capacity", "Invalid capacity")
	errNoFieldsToUpdate  = core.NewValidationError(errors.New("No valid fields to update"))
	errMissingCredential = core.NewValidationError(errors.New("rollNumber and password are required"))
	ErrInvalidCredential = errors.New("Invalid credentials")
)

type (
	Repository interface {
		// CreateUser fails with ErrRollNumberExists when the roll number is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		// UpdateUser saves the name, roll number, password hash, capacity and updated_at of `usr`.
		// The assigned groups count is never written through it.
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUser(ctx context.Context, id string) error

		// IncrementAssignedCount adds one to a teacher's assigned groups count in a single conditional update.
		// With checkCapacity, the update only applies while the count is below the capacity.
		// Returns whether a row was updated.
		IncrementAssignedCount(ctx context.Context, teacherID string, checkCapacity bool) (bool, error)
		// DecrementAssignedCount subtracts one from a teacher's assigned groups count, never going below 0.
		DecrementAssignedCount(ctx context.Context, teacherID string) error
		// SetAssignedCount overwrites a teacher's assigned groups count.
		SetAssignedCount(ctx context.Context, teacherID string, count int) error
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:              uuid.NewString(),
		RollNumber:      core.NormalizeRoll(nu.RollNumber),
		Name:            nu.Name,
		Role:            nu.Role,
		TeacherCapacity: nu.TeacherCapacity,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByRollNumber(ctx context.Context, roll string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{RollNumber: core.NormalizeRoll(roll)})
}

// GetTeacher returns the user with the given id only if they are a Teacher.
func (svc *Service) GetTeacher(ctx context.Context, id string) (User, error) {
	return svc.getWithRole(ctx, id, RoleTeacher, ErrTeacherNotFound)
}

// GetStudent returns the user with the given id only if they are a Student.
func (svc *Service) GetStudent(ctx context.Context, id string) (User, error) {
	return svc.getWithRole(ctx, id, RoleStudent, ErrStudentNotFound)
}

func (svc *Service) getWithRole(ctx context.Context, id, role string, notFound error) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, notFound
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.Role != role {
		return User{}, notFound
	}
	return usr, nil
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter)
}

// ListTeachers returns all teachers ordered by `orderBy` ("roll_number" or "name").
func (svc *Service) ListTeachers(ctx context.Context, orderBy string) ([]User, error) {
	return svc.repo.FilterUsers(ctx, QueryFilter{Role: RoleTeacher, OrderBy: orderBy})
}

func (svc *Service) ListStudents(ctx context.Context) ([]User, error) {
	return svc.repo.FilterUsers(ctx, QueryFilter{Role: RoleStudent})
}

// GetTeachers returns the teachers matching `ids`, in the order of `ids`.
// Unknown ids and non-teachers are skipped.
func (svc *Service) GetTeachers(ctx context.Context, ids ...string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := svc.repo.FilterUsers(ctx, QueryFilter{Role: RoleTeacher, IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "filtering teachers")
	}
	byID := make(map[string]User, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	teachers := make([]User, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			teachers = append(teachers, t)
		}
	}
	return teachers, nil
}

// Update applies a validated UpdateUser to the user with the given id and role.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if err := uu.Apply(&usr); err != nil {
		return User{}, errors.Wrap(err, "applying update")
	}
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

// UpdateTeacherCapacity sets a teacher's capacity. The assigned count is left as is,
// so lowering the capacity below it only prevents new allocations.
func (svc *Service) UpdateTeacherCapacity(ctx context.Context, teacherID string, capacity int) (User, error) {
	if capacity < 0 {
		return User{}, ErrInvalidCapacity
	}
	teacher, err := svc.GetTeacher(ctx, teacherID)
	if err != nil {
		return User{}, err
	}
	teacher.TeacherCapacity = capacity
	teacher.UpdatedAt = time.Now().UTC()
	teacher, err = svc.repo.UpdateUser(ctx, teacher)
	if err != nil {
		return User{}, errors.Wrap(err, "updating teacher capacity")
	}
	return teacher, nil
}

// Delete removes the user record only; group teardown is done by the group lifecycle.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteUser(ctx, id)
}

// Authenticate checks the credentials of the user with the given roll number.
func (svc *Service) Authenticate(ctx context.Context, roll, pwd string) (User, error) {
	roll = core.NormalizeRoll(roll)
	if roll == "" || pwd == "" {
		return User{}, errMissingCredential
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{RollNumber: roll})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredential
		}
		return User{}, errors.Wrap(err, "finding user by roll number")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredential
	}
	return usr, nil
}

// SeedAdmin creates the bootstrap admin account described by `conf` if it does not exist yet.
// It returns whether a new account was created.
func (svc *Service) SeedAdmin(ctx context.Context, seedKey string, conf core.AdminConfig) (User, bool, error) {
	if conf.SeedKey == "" || seedKey != conf.SeedKey {
		return User{}, false, ErrInvalidSeedKey
	}

	usr, err := svc.GetByRollNumber(ctx, conf.Roll)
	if err == nil {
		return usr, false, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return User{}, false, errors.Wrap(err, "finding admin")
	}

	usr, err = svc.Create(ctx, NewUser{
		RollNumber: conf.Roll,
		Name:       conf.Name,
		Password:   conf.Password,
		Role:       RoleAdmin,
	})
	if err != nil {
		return User{}, false, err
	}
	svc.logger.Info("admin seeded", map[string]interface{}{"roll_number": usr.RollNumber})
	return usr, true, nil
}
