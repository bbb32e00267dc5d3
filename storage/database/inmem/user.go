package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) rollTaken(roll, excludedID string) bool {
	for _, u := range repo.db.table {
		if u.RollNumber == roll && u.ID != excludedID {
			return true
		}
	}
	return false
}

func cloneUser(u *user.User) user.User {
	usr := *u
	usr.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return usr
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.RollNumber = core.NormalizeRoll(usr.RollNumber)
	if repo.rollTaken(usr.RollNumber, "") {
		return user.User{}, user.ErrRollNumberExists
	}
	u := cloneUser(&usr)
	repo.db.table[usr.ID] = &u
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if u, ok := repo.db.table[filter.ID]; ok {
			return cloneUser(u), nil
		}
	case filter.RollNumber != "":
		roll := core.NormalizeRoll(filter.RollNumber)
		for _, u := range repo.db.table {
			if u.RollNumber == roll {
				return cloneUser(u), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, u := range repo.db.table {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if len(filter.IDs) > 0 && !core.ContainsString(filter.IDs, u.ID) {
			continue
		}
		users = append(users, cloneUser(u))
	}

	if filter.OrderBy == "name" {
		sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	} else {
		sort.Slice(users, func(i, j int) bool { return users[i].RollNumber < users[j].RollNumber })
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	roll := core.NormalizeRoll(usr.RollNumber)
	if repo.rollTaken(roll, usr.ID) {
		return user.User{}, user.ErrRollNumberExists
	}
	orig.Name = usr.Name
	orig.RollNumber = roll
	if usr.PasswordHash != nil {
		orig.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	orig.TeacherCapacity = usr.TeacherCapacity
	orig.UpdatedAt = usr.UpdatedAt
	return cloneUser(orig), nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.table, id)
	return nil
}

func (repo *userRepository) IncrementAssignedCount(_ context.Context, teacherID string, checkCapacity bool) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	u, ok := repo.db.table[teacherID]
	if !ok || u.Role != user.RoleTeacher {
		return false, nil
	}
	if checkCapacity && u.AssignedGroupsCount >= u.TeacherCapacity {
		return false, nil
	}
	u.AssignedGroupsCount++
	return true, nil
}

func (repo *userRepository) DecrementAssignedCount(_ context.Context, teacherID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if u, ok := repo.db.table[teacherID]; ok && u.AssignedGroupsCount > 0 {
		u.AssignedGroupsCount--
	}
	return nil
}

func (repo *userRepository) SetAssignedCount(_ context.Context, teacherID string, count int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	u, ok := repo.db.table[teacherID]
	if !ok {
		return user.ErrNotFound
	}
	if count < 0 {
		count = 0
	}
	u.AssignedGroupsCount = count
	return nil
}
