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
	studentMarkDoc struct {
		GroupID   string    `bson:"group_id"`
		StudentID string    `bson:"student_id"`
		TeacherID string    `bson:"teacher_id"`
		Marks     float64   `bson:"marks"`
		CreatedAt time.Time `bson:"created_at"`
		UpdatedAt time.Time `bson:"updated_at"`
	}

	groupMarkDoc struct {
		GroupID   string    `bson:"group_id"`
		TeacherID string    `bson:"teacher_id"`
		Marks     float64   `bson:"marks"`
		Remarks   string    `bson:"remarks"`
		CreatedAt time.Time `bson:"created_at"`
		UpdatedAt time.Time `bson:"updated_at"`
	}
)

func (d studentMarkDoc) mark() group.StudentMark {
	return group.StudentMark{
		GroupID:   d.GroupID,
		StudentID: d.StudentID,
		TeacherID: d.TeacherID,
		Marks:     d.Marks,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (d groupMarkDoc) mark() group.GroupMark {
	return group.GroupMark{
		GroupID:   d.GroupID,
		TeacherID: d.TeacherID,
		Marks:     d.Marks,
		Remarks:   d.Remarks,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type markRepository struct {
	studentMarks *mongo.Collection
	groupMarks   *mongo.Collection
}

var _ group.MarkRepository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(db *mongo.Database) *markRepository {
	return &markRepository{
		studentMarks: db.Collection(studentMarksCollection),
		groupMarks:   db.Collection(groupMarksCollection),
	}
}

var upsertAfter = options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

func (repo markRepository) UpsertStudentMark(ctx context.Context, mark group.StudentMark) (group.StudentMark, error) {
	f := bson.M{"group_id": mark.GroupID, "student_id": mark.StudentID, "teacher_id": mark.TeacherID}
	update := bson.M{
		"$set":         bson.M{"marks": mark.Marks, "updated_at": mark.UpdatedAt.UTC()},
		"$setOnInsert": bson.M{"created_at": mark.CreatedAt.UTC()},
	}

	var doc studentMarkDoc
	if err := repo.studentMarks.FindOneAndUpdate(ctx, f, update, upsertAfter).Decode(&doc); err != nil {
		return group.StudentMark{}, errors.Wrap(err, "upserting student mark")
	}
	return doc.mark(), nil
}

func (repo markRepository) FilterStudentMarks(ctx context.Context, groupID, teacherID string) ([]group.StudentMark, error) {
	f := bson.M{"group_id": groupID}
	if teacherID != "" {
		f["teacher_id"] = teacherID
	}
	cur, err := repo.studentMarks.Find(ctx, f, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "finding student marks")
	}
	docs, err := decodeAll[studentMarkDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	marks := make([]group.StudentMark, 0, len(docs))
	for _, d := range docs {
		marks = append(marks, d.mark())
	}
	return marks, nil
}

func (repo markRepository) UpsertGroupMark(ctx context.Context, mark group.GroupMark) (group.GroupMark, error) {
	f := bson.M{"group_id": mark.GroupID, "teacher_id": mark.TeacherID}
	update := bson.M{
		"$set":         bson.M{"marks": mark.Marks, "remarks": mark.Remarks, "updated_at": mark.UpdatedAt.UTC()},
		"$setOnInsert": bson.M{"created_at": mark.CreatedAt.UTC()},
	}

	var doc groupMarkDoc
	if err := repo.groupMarks.FindOneAndUpdate(ctx, f, update, upsertAfter).Decode(&doc); err != nil {
		return group.GroupMark{}, errors.Wrap(err, "upserting group mark")
	}
	return doc.mark(), nil
}

func (repo markRepository) GetGroupMark(ctx context.Context, groupID, teacherID string) (group.GroupMark, bool, error) {
	var doc groupMarkDoc
	if err := repo.groupMarks.FindOne(ctx, bson.M{"group_id": groupID, "teacher_id": teacherID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return group.GroupMark{}, false, nil
		}
		return group.GroupMark{}, false, errors.Wrap(err, "finding group mark")
	}
	return doc.mark(), true, nil
}

func (repo markRepository) DeleteStudentMarks(ctx context.Context, groupID string) error {
	if _, err := repo.studentMarks.DeleteMany(ctx, bson.M{"group_id": groupID}); err != nil {
		return errors.Wrap(err, "deleting student marks")
	}
	return nil
}

func (repo markRepository) DeleteGroupMarks(ctx context.Context, groupID string) error {
	if _, err := repo.groupMarks.DeleteMany(ctx, bson.M{"group_id": groupID}); err != nil {
		return errors.Wrap(err, "deleting group marks")
	}
	return nil
}
