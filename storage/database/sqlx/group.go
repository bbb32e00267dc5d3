package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/formify/core/group"
)

const groupColumns = `id, group_id, leader_id, members, member_roll_numbers, expected_partner_roll_numbers,
	project_title, project_domain, project_domain_other, tech_stack, project_description, expected_outcomes, sdg_mapping,
	teacher_preferences, assigned_supervisor, status, flagged_for_admin, flag_reason, created_at, updated_at`

type groupRecord struct {
	ID                         string         `db:"id"`
	GroupID                    string         `db:"group_id"`
	LeaderID                   null.String    `db:"leader_id"`
	Members                    pq.StringArray `db:"members"`
	MemberRollNumbers          pq.StringArray `db:"member_roll_numbers"`
	ExpectedPartnerRollNumbers pq.StringArray `db:"expected_partner_roll_numbers"`
	ProjectTitle               string         `db:"project_title"`
	ProjectDomain              string         `db:"project_domain"`
	ProjectDomainOther         string         `db:"project_domain_other"`
	TechStack                  string         `db:"tech_stack"`
	ProjectDescription         string         `db:"project_description"`
	ExpectedOutcomes           string         `db:"expected_outcomes"`
	SDGMapping                 string         `db:"sdg_mapping"`
	TeacherPreferences         pq.StringArray `db:"teacher_preferences"`
	AssignedSupervisor         null.String    `db:"assigned_supervisor"`
	Status                     string         `db:"status"`
	FlaggedForAdmin            bool           `db:"flagged_for_admin"`
	FlagReason                 string         `db:"flag_reason"`
	CreatedAt                  time.Time      `db:"created_at"`
	UpdatedAt                  time.Time      `db:"updated_at"`
}

type groupRepository struct {
	db *sqlx.DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *sqlx.DB) *groupRepository {
	return &groupRepository{db: db}
}

func stringArray(s []string) pq.StringArray {
	if s == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(s)
}

func (repo groupRepository) marshal(grp group.Group) groupRecord {
	return groupRecord{
		ID:                         grp.ID,
		GroupID:                    grp.GroupID,
		LeaderID:                   null.NewString(grp.LeaderID, grp.LeaderID != ""),
		Members:                    stringArray(grp.Members),
		MemberRollNumbers:          stringArray(grp.MemberRollNumbers),
		ExpectedPartnerRollNumbers: stringArray(grp.ExpectedPartnerRollNumbers),
		ProjectTitle:               grp.Project.Title,
		ProjectDomain:              grp.Project.Domain,
		ProjectDomainOther:         grp.Project.DomainOther,
		TechStack:                  grp.Project.TechStack,
		ProjectDescription:         grp.Project.Description,
		ExpectedOutcomes:           grp.Project.ExpectedOutcomes,
		SDGMapping:                 grp.Project.SDGMapping,
		TeacherPreferences:         stringArray(grp.TeacherPreferences),
		AssignedSupervisor:         null.NewString(grp.Supervisor(), grp.Supervisor() != ""),
		Status:                     string(grp.State.Status()),
		FlaggedForAdmin:            grp.State.Flagged(),
		FlagReason:                 grp.State.FlagReason(),
		CreatedAt:                  grp.CreatedAt.UTC(),
		UpdatedAt:                  grp.UpdatedAt.UTC(),
	}
}

func (repo groupRepository) unmarshal(rec groupRecord) (group.Group, error) {
	state, err := group.RestoreState(group.Status(rec.Status), rec.AssignedSupervisor.String, rec.FlaggedForAdmin, rec.FlagReason)
	if err != nil {
		return group.Group{}, errors.Wrapf(err, "restoring group %s", rec.GroupID)
	}
	return group.Group{
		ID:                         rec.ID,
		GroupID:                    rec.GroupID,
		LeaderID:                   rec.LeaderID.String,
		Members:                    []string(rec.Members),
		MemberRollNumbers:          []string(rec.MemberRollNumbers),
		ExpectedPartnerRollNumbers: []string(rec.ExpectedPartnerRollNumbers),
		Project: group.Project{
			Title:            rec.ProjectTitle,
			Domain:           rec.ProjectDomain,
			DomainOther:      rec.ProjectDomainOther,
			TechStack:        rec.TechStack,
			Description:      rec.ProjectDescription,
			ExpectedOutcomes: rec.ExpectedOutcomes,
			SDGMapping:       rec.SDGMapping,
		},
		TeacherPreferences: []string(rec.TeacherPreferences),
		State:              state,
		CreatedAt:          rec.CreatedAt.UTC(),
		UpdatedAt:          rec.UpdatedAt.UTC(),
	}, nil
}

func (repo groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	const q = `INSERT INTO groups (` + groupColumns + `)
		VALUES (:id, :group_id, :leader_id, :members, :member_roll_numbers, :expected_partner_roll_numbers,
			:project_title, :project_domain, :project_domain_other, :tech_stack, :project_description, :expected_outcomes, :sdg_mapping,
			:teacher_preferences, :assigned_supervisor, :status, :flagged_for_admin, :flag_reason, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, getExec(ctx, repo.db), q, repo.marshal(grp)); err != nil {
		if isUniqueViolation(err, "groups_group_id_key") {
			return group.Group{}, group.ErrDuplicateGroupID
		}
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return grp, nil
}

func (repo groupRepository) GetGroup(ctx context.Context, filter group.GetFilter) (group.Group, error) {
	var w where
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return group.Group{}, group.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.GroupID != "":
		w.add("group_id = ?", filter.GroupID)
	default:
		return group.Group{}, group.ErrNotFound
	}

	var rec groupRecord
	if err := sqlx.GetContext(ctx, getExec(ctx, repo.db), &rec, `SELECT `+groupColumns+` FROM groups`+w.String(), w.args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, errors.Wrap(err, "selecting group")
	}
	return repo.unmarshal(rec)
}

func (repo groupRepository) FilterGroups(ctx context.Context, filter group.QueryFilter) ([]group.Group, error) {
	var w where
	if len(filter.AnyRoll) > 0 {
		rolls := pq.StringArray(filter.AnyRoll)
		w.add("(member_roll_numbers && ? OR expected_partner_roll_numbers && ?)", rolls, rolls)
	}
	if filter.MemberRoll != "" {
		w.add("? = ANY(member_roll_numbers)", filter.MemberRoll)
	}
	if filter.SupervisorID != "" {
		if !isUUID(filter.SupervisorID) {
			return []group.Group{}, nil
		}
		w.add("assigned_supervisor = ?", filter.SupervisorID)
	}
	if filter.PreferenceID != "" {
		w.add("? = ANY(teacher_preferences)", filter.PreferenceID)
	}
	if filter.FlaggedOnly {
		w.add("flagged_for_admin")
	}

	var recs []groupRecord
	q := `SELECT ` + groupColumns + ` FROM groups` + w.String() + ` ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, getExec(ctx, repo.db), &recs, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting groups")
	}
	grps := make([]group.Group, 0, len(recs))
	for _, rec := range recs {
		grp, err := repo.unmarshal(rec)
		if err != nil {
			return nil, err
		}
		grps = append(grps, grp)
	}
	return grps, nil
}

func (repo groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	const q = `UPDATE groups SET
			leader_id = :leader_id,
			members = :members,
			member_roll_numbers = :member_roll_numbers,
			expected_partner_roll_numbers = :expected_partner_roll_numbers,
			teacher_preferences = :teacher_preferences,
			assigned_supervisor = :assigned_supervisor,
			status = :status,
			flagged_for_admin = :flagged_for_admin,
			flag_reason = :flag_reason,
			updated_at = :updated_at
		WHERE id = :id`

	if !isUUID(grp.ID) {
		return group.Group{}, group.ErrNotFound
	}
	res, err := sqlx.NamedExecContext(ctx, getExec(ctx, repo.db), q, repo.marshal(grp))
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating group")
	}
	if n, err := res.RowsAffected(); err != nil {
		return group.Group{}, errors.Wrap(err, "counting updated rows")
	} else if n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	return repo.GetGroup(ctx, group.GetFilter{ID: grp.ID})
}

func (repo groupRepository) DeleteGroup(ctx context.Context, id string) error {
	if !isUUID(id) {
		return nil
	}
	if _, err := getExec(ctx, repo.db).ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return nil
}

func (repo groupRepository) RemovePreference(ctx context.Context, teacherID string) error {
	const q = `UPDATE groups SET teacher_preferences = array_remove(teacher_preferences, $1), updated_at = now()
		WHERE $1 = ANY(teacher_preferences)`

	if _, err := getExec(ctx, repo.db).ExecContext(ctx, q, teacherID); err != nil {
		return errors.Wrap(err, "removing teacher preference")
	}
	return nil
}

func (repo groupRepository) CountBySupervisor(ctx context.Context) (map[string]int, error) {
	const q = `SELECT assigned_supervisor, count(*) AS n FROM groups
		WHERE assigned_supervisor IS NOT NULL
		GROUP BY assigned_supervisor`

	var rows []struct {
		Supervisor string `db:"assigned_supervisor"`
		N          int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, getExec(ctx, repo.db), &rows, q); err != nil {
		return nil, errors.Wrap(err, "counting groups by supervisor")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Supervisor] = r.N
	}
	return counts, nil
}
