package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/formify/core/group"
)

type (
	projectDoc struct {
		Title            string `bson:"title"`
		Domain           string `bson:"domain"`
		DomainOther      string `bson:"domain_other,omitempty"`
		TechStack        string `bson:"tech_stack"`
		Description      string `bson:"description"`
		ExpectedOutcomes string `bson:"expected_outcomes"`
		SDGMapping       string `bson:"sdg_mapping"`
	}

	groupDoc struct {
		ID                         string     `bson:"_id"`
		GroupID                    string     `bson:"group_id"`
		LeaderID                   string     `bson:"leader_id,omitempty"`
		Members                    []string   `bson:"members"`
		MemberRollNumbers          []string   `bson:"member_roll_numbers"`
		ExpectedPartnerRollNumbers []string   `bson:"expected_partner_roll_numbers"`
		Project                    projectDoc `bson:"project"`
		TeacherPreferences         []string   `bson:"teacher_preferences"`
		AssignedSupervisor         string     `bson:"assigned_supervisor,omitempty"`
		Status                     string     `bson:"status"`
		FlaggedForAdmin            bool       `bson:"flagged_for_admin"`
		FlagReason                 string     `bson:"flag_reason,omitempty"`
		CreatedAt                  time.Time  `bson:"created_at"`
		UpdatedAt                  time.Time  `bson:"updated_at"`
	}
)

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func newGroupDoc(grp group.Group) groupDoc {
	p := grp.Project
	return groupDoc{
		ID:                         grp.ID,
		GroupID:                    grp.GroupID,
		LeaderID:                   grp.LeaderID,
		Members:                    orEmpty(grp.Members),
		MemberRollNumbers:          orEmpty(grp.MemberRollNumbers),
		ExpectedPartnerRollNumbers: orEmpty(grp.ExpectedPartnerRollNumbers),
		Project: projectDoc{
			Title:            p.Title,
			Domain:           p.Domain,
			DomainOther:      p.DomainOther,
			TechStack:        p.TechStack,
			Description:      p.Description,
			ExpectedOutcomes: p.ExpectedOutcomes,
			SDGMapping:       p.SDGMapping,
		},
		TeacherPreferences: orEmpty(grp.TeacherPreferences),
		AssignedSupervisor: grp.Supervisor(),
		Status:             string(grp.State.Status()),
		FlaggedForAdmin:    grp.State.Flagged(),
		FlagReason:         grp.State.FlagReason(),
		CreatedAt:          grp.CreatedAt.UTC(),
		UpdatedAt:          grp.UpdatedAt.UTC(),
	}
}

func (d groupDoc) group() (group.Group, error) {
	state, err := group.RestoreState(group.Status(d.Status), d.AssignedSupervisor, d.FlaggedForAdmin, d.FlagReason)
	if err != nil {
		return group.Group{}, errors.Wrapf(err, "restoring group %s", d.GroupID)
	}
	return group.Group{
		ID:                         d.ID,
		GroupID:                    d.GroupID,
		LeaderID:                   d.LeaderID,
		Members:                    d.Members,
		MemberRollNumbers:          d.MemberRollNumbers,
		ExpectedPartnerRollNumbers: d.ExpectedPartnerRollNumbers,
		Project: group.Project{
			Title:            d.Project.Title,
			Domain:           d.Project.Domain,
			DomainOther:      d.Project.DomainOther,
			TechStack:        d.Project.TechStack,
			Description:      d.Project.Description,
			ExpectedOutcomes: d.Project.ExpectedOutcomes,
			SDGMapping:       d.Project.SDGMapping,
		},
		TeacherPreferences: d.TeacherPreferences,
		State:              state,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}, nil
}

type groupRepository struct {
	coll *mongo.Collection
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *mongo.Database) *groupRepository {
	return &groupRepository{coll: db.Collection(groupsCollection)}
}

func (repo groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	if _, err := repo.coll.InsertOne(ctx, newGroupDoc(grp)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return group.Group{}, group.ErrDuplicateGroupID
		}
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return grp, nil
}

func (repo groupRepository) GetGroup(ctx context.Context, filter group.GetFilter) (group.Group, error) {
	var f bson.M
	switch {
	case filter.ID != "":
		f = bson.M{"_id": filter.ID}
	case filter.GroupID != "":
		f = bson.M{"group_id": filter.GroupID}
	default:
		return group.Group{}, group.ErrNotFound
	}

	var doc groupDoc
	if err := repo.coll.FindOne(ctx, f).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, errors.Wrap(err, "finding group")
	}
	return doc.group()
}

func (repo groupRepository) FilterGroups(ctx context.Context, filter group.QueryFilter) ([]group.Group, error) {
	f := bson.M{}
	if len(filter.AnyRoll) > 0 {
		f["$or"] = bson.A{
			bson.M{"member_roll_numbers": bson.M{"$in": filter.AnyRoll}},
			bson.M{"expected_partner_roll_numbers": bson.M{"$in": filter.AnyRoll}},
		}
	}
	if filter.MemberRoll != "" {
		f["member_roll_numbers"] = filter.MemberRoll
	}
	if filter.SupervisorID != "" {
		f["assigned_supervisor"] = filter.SupervisorID
	}
	if filter.PreferenceID != "" {
		f["teacher_preferences"] = filter.PreferenceID
	}
	if filter.FlaggedOnly {
		f["flagged_for_admin"] = true
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := repo.coll.Find(ctx, f, opts)
	if err != nil {
		return nil, errors.Wrap(err, "finding groups")
	}
	docs, err := decodeAll[groupDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	grps := make([]group.Group, 0, len(docs))
	for _, d := range docs {
		grp, err := d.group()
		if err != nil {
			return nil, err
		}
		grps = append(grps, grp)
	}
	return grps, nil
}

func (repo groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	opts := options.FindOneAndReplace().SetReturnDocument(options.After)

	var doc groupDoc
	if err := repo.coll.FindOneAndReplace(ctx, bson.M{"_id": grp.ID}, newGroupDoc(grp), opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, errors.Wrap(err, "replacing group")
	}
	return doc.group()
}

func (repo groupRepository) DeleteGroup(ctx context.Context, id string) error {
	if _, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return nil
}

func (repo groupRepository) RemovePreference(ctx context.Context, teacherID string) error {
	update := bson.M{
		"$pull": bson.M{"teacher_preferences": teacherID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	if _, err := repo.coll.UpdateMany(ctx, bson.M{"teacher_preferences": teacherID}, update); err != nil {
		return errors.Wrap(err, "removing teacher preference")
	}
	return nil
}

func (repo groupRepository) CountBySupervisor(ctx context.Context) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"assigned_supervisor": bson.M{"$exists": true}}}},
		{{Key: "$group", Value: bson.M{"_id": "$assigned_supervisor", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := repo.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "counting groups by supervisor")
	}
	rows, err := decodeAll[struct {
		Supervisor string `bson:"_id"`
		N          int    `bson:"n"`
	}](ctx, cur)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Supervisor] = r.N
	}
	return counts, nil
}
