package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
)

type groupRepository struct {
	db *groupTable
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) *groupRepository {
	return &groupRepository{db: db.group}
}

func cloneGroup(g *group.Group) group.Group {
	grp := *g
	grp.Members = copyStrings(g.Members)
	grp.MemberRollNumbers = copyStrings(g.MemberRollNumbers)
	grp.ExpectedPartnerRollNumbers = copyStrings(g.ExpectedPartnerRollNumbers)
	grp.TeacherPreferences = copyStrings(g.TeacherPreferences)
	return grp
}

func (repo *groupRepository) groupIDTaken(groupID, excludedID string) bool {
	for _, g := range repo.db.table {
		if g.GroupID == groupID && g.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *groupRepository) CreateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.groupIDTaken(grp.GroupID, "") {
		return group.Group{}, group.ErrDuplicateGroupID
	}
	g := cloneGroup(&grp)
	repo.db.table[grp.ID] = &g
	return cloneGroup(&g), nil
}

func (repo *groupRepository) GetGroup(_ context.Context, filter group.GetFilter) (group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if g, ok := repo.db.table[filter.ID]; ok {
			return cloneGroup(g), nil
		}
	case filter.GroupID != "":
		for _, g := range repo.db.table {
			if g.GroupID == filter.GroupID {
				return cloneGroup(g), nil
			}
		}
	}
	return group.Group{}, group.ErrNotFound
}

func matchGroup(g *group.Group, filter group.QueryFilter) bool {
	if len(filter.AnyRoll) > 0 {
		var hit bool
		for _, r := range filter.AnyRoll {
			if core.ContainsString(g.MemberRollNumbers, r) || core.ContainsString(g.ExpectedPartnerRollNumbers, r) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if filter.MemberRoll != "" && !core.ContainsString(g.MemberRollNumbers, filter.MemberRoll) {
		return false
	}
	if filter.SupervisorID != "" && g.Supervisor() != filter.SupervisorID {
		return false
	}
	if filter.PreferenceID != "" && !core.ContainsString(g.TeacherPreferences, filter.PreferenceID) {
		return false
	}
	if filter.FlaggedOnly && !g.State.Flagged() {
		return false
	}
	return true
}

func (repo *groupRepository) FilterGroups(_ context.Context, filter group.QueryFilter) ([]group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grps := make([]group.Group, 0)
	for _, g := range repo.db.table {
		if matchGroup(g, filter) {
			grps = append(grps, cloneGroup(g))
		}
	}
	sort.SliceStable(grps, func(i, j int) bool {
		if grps[i].CreatedAt.Equal(grps[j].CreatedAt) {
			return grps[i].ID < grps[j].ID
		}
		return grps[i].CreatedAt.Before(grps[j].CreatedAt)
	})
	return grps, nil
}

func (repo *groupRepository) UpdateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[grp.ID]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	if repo.groupIDTaken(grp.GroupID, grp.ID) {
		return group.Group{}, group.ErrDuplicateGroupID
	}
	g := cloneGroup(&grp)
	g.CreatedAt = orig.CreatedAt
	repo.db.table[grp.ID] = &g
	return cloneGroup(&g), nil
}

func (repo *groupRepository) DeleteGroup(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.table, id)
	return nil
}

func (repo *groupRepository) RemovePreference(_ context.Context, teacherID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, g := range repo.db.table {
		g.TeacherPreferences = core.RemoveString(g.TeacherPreferences, teacherID)
	}
	return nil
}

func (repo *groupRepository) CountBySupervisor(context.Context) (map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[string]int)
	for _, g := range repo.db.table {
		if s := g.Supervisor(); s != "" {
			counts[s]++
		}
	}
	return counts, nil
}
