package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/formify/core/group"
)

type markRepository struct {
	students *studentMarkTable
	groups   *groupMarkTable
}

var _ group.MarkRepository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(db *DB) *markRepository {
	return &markRepository{students: db.studentMark, groups: db.groupMark}
}

func (repo *markRepository) UpsertStudentMark(_ context.Context, mark group.StudentMark) (group.StudentMark, error) {
	repo.students.mutex.Lock()
	defer repo.students.mutex.Unlock()

	key := studentMarkKey{mark.GroupID, mark.StudentID, mark.TeacherID}
	if orig, ok := repo.students.table[key]; ok {
		mark.CreatedAt = orig.CreatedAt
	}
	m := mark
	repo.students.table[key] = &m
	return mark, nil
}

func (repo *markRepository) FilterStudentMarks(_ context.Context, groupID, teacherID string) ([]group.StudentMark, error) {
	repo.students.mutex.RLock()
	defer repo.students.mutex.RUnlock()

	marks := make([]group.StudentMark, 0)
	for k, m := range repo.students.table {
		if k.groupID == groupID && (teacherID == "" || k.teacherID == teacherID) {
			marks = append(marks, *m)
		}
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].StudentID < marks[j].StudentID })
	return marks, nil
}

func (repo *markRepository) UpsertGroupMark(_ context.Context, mark group.GroupMark) (group.GroupMark, error) {
	repo.groups.mutex.Lock()
	defer repo.groups.mutex.Unlock()

	key := groupMarkKey{mark.GroupID, mark.TeacherID}
	if orig, ok := repo.groups.table[key]; ok {
		mark.CreatedAt = orig.CreatedAt
	}
	m := mark
	repo.groups.table[key] = &m
	return mark, nil
}

func (repo *markRepository) GetGroupMark(_ context.Context, groupID, teacherID string) (group.GroupMark, bool, error) {
	repo.groups.mutex.RLock()
	defer repo.groups.mutex.RUnlock()

	if m, ok := repo.groups.table[groupMarkKey{groupID, teacherID}]; ok {
		return *m, true, nil
	}
	return group.GroupMark{}, false, nil
}

func (repo *markRepository) DeleteStudentMarks(_ context.Context, groupID string) error {
	repo.students.mutex.Lock()
	defer repo.students.mutex.Unlock()

	for k := range repo.students.table {
		if k.groupID == groupID {
			delete(repo.students.table, k)
		}
	}
	return nil
}

func (repo *markRepository) DeleteGroupMarks(_ context.Context, groupID string) error {
	repo.groups.mutex.Lock()
	defer repo.groups.mutex.Unlock()

	for k := range repo.groups.table {
		if k.groupID == groupID {
			delete(repo.groups.table, k)
		}
	}
	return nil
}
