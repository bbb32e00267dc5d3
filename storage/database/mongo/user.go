package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/formify/core/user"
)

type userDoc struct {
	ID                  string    `bson:"_id"`
	RollNumber          string    `bson:"roll_number"`
	Name                string    `bson:"name"`
	Role                string    `bson:"role"`
	PasswordHash        []byte    `bson:"password_hash"`
	TeacherCapacity     int       `bson:"teacher_capacity"`
	AssignedGroupsCount int       `bson:"assigned_groups_count"`
	CreatedAt           time.Time `bson:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at"`
}

func (d userDoc) user() user.User {
	return user.User{
		ID:                  d.ID,
		RollNumber:          d.RollNumber,
		Name:                d.Name,
		Role:                d.Role,
		PasswordHash:        d.PasswordHash,
		TeacherCapacity:     d.TeacherCapacity,
		AssignedGroupsCount: d.AssignedGroupsCount,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *mongo.Database) *userRepository {
	return &userRepository{coll: db.Collection(usersCollection)}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc := userDoc{
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
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrRollNumberExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return doc.user(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var f bson.M
	switch {
	case filter.ID != "":
		f = bson.M{"_id": filter.ID}
	case filter.RollNumber != "":
		f = bson.M{"roll_number": filter.RollNumber}
	default:
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, f).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return doc.user(), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	f := bson.M{}
	if filter.Role != "" {
		f["role"] = filter.Role
	}
	if filter.IDs != nil {
		f["_id"] = bson.M{"$in": filter.IDs}
	}
	sort := bson.D{{Key: "roll_number", Value: 1}}
	if filter.OrderBy == "name" {
		sort = bson.D{{Key: "name", Value: 1}, {Key: "roll_number", Value: 1}}
	}

	cur, err := repo.coll.Find(ctx, f, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "finding users")
	}
	docs, err := decodeAll[userDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	users := make([]user.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	update := bson.M{"$set": bson.M{
		"name":             usr.Name,
		"roll_number":      usr.RollNumber,
		"password_hash":    usr.PasswordHash,
		"teacher_capacity": usr.TeacherCapacity,
		"updated_at":       usr.UpdatedAt.UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	if err := repo.coll.FindOneAndUpdate(ctx, bson.M{"_id": usr.ID}, update, opts).Decode(&doc); err != nil {
		switch {
		case err == mongo.ErrNoDocuments:
			return user.User{}, user.ErrNotFound
		case mongo.IsDuplicateKeyError(err):
			return user.User{}, user.ErrRollNumberExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return doc.user(), nil
}

func (repo userRepository) DeleteUser(ctx context.Context, id string) error {
	if _, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return nil
}

func (repo userRepository) IncrementAssignedCount(ctx context.Context, teacherID string, checkCapacity bool) (bool, error) {
	f := bson.M{"_id": teacherID, "role": user.RoleTeacher}
	if checkCapacity {
		f["$expr"] = bson.M{"$lt": bson.A{"$assigned_groups_count", "$teacher_capacity"}}
	}
	update := bson.M{
		"$inc": bson.M{"assigned_groups_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := repo.coll.UpdateOne(ctx, f, update)
	if err != nil {
		return false, errors.Wrap(err, "incrementing assigned groups count")
	}
	return res.MatchedCount == 1, nil
}

func (repo userRepository) DecrementAssignedCount(ctx context.Context, teacherID string) error {
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"assigned_groups_count": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$assigned_groups_count", 1}}}},
		"updated_at":            time.Now().UTC(),
	}}}}
	if _, err := repo.coll.UpdateOne(ctx, bson.M{"_id": teacherID, "role": user.RoleTeacher}, pipeline); err != nil {
		return errors.Wrap(err, "decrementing assigned groups count")
	}
	return nil
}

func (repo userRepository) SetAssignedCount(ctx context.Context, teacherID string, count int) error {
	update := bson.M{"$set": bson.M{"assigned_groups_count": count, "updated_at": time.Now().UTC()}}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"_id": teacherID}, update)
	if err != nil {
		return errors.Wrap(err, "setting assigned groups count")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}
