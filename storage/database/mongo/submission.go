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
	fileDoc struct {
		OriginalName string `bson:"original_name"`
		Filename     string `bson:"filename"`
		Mimetype     string `bson:"mimetype"`
		Size         int64  `bson:"size"`
		Path         string `bson:"path"`
	}

	submissionDoc struct {
		ID                 string    `bson:"_id"`
		StudentID          string    `bson:"student_id"`
		GroupID            string    `bson:"group_id,omitempty"`
		Name               string    `bson:"name"`
		UniversityRollNo   string    `bson:"university_roll_no"`
		Mobile             string    `bson:"mobile"`
		Member1Roll        string    `bson:"member1_roll"`
		Member1Name        string    `bson:"member1_name"`
		Member2Roll        string    `bson:"member2_roll"`
		Member2Name        string    `bson:"member2_name"`
		ProjectDomain      string    `bson:"project_domain"`
		ProjectDomainOther string    `bson:"project_domain_other"`
		Title              string    `bson:"title"`
		Description        string    `bson:"description"`
		TechStack          string    `bson:"tech_stack"`
		ExpectedOutcomes   string    `bson:"expected_outcomes"`
		PreviousExperience string    `bson:"previous_experience"`
		Agreement          bool      `bson:"agreement"`
		SDGMapping         string    `bson:"sdg_mapping"`
		TeacherPreferences []string  `bson:"teacher_preferences"`
		Comments           string    `bson:"comments"`
		SynopsisFile       *fileDoc  `bson:"synopsis_file,omitempty"`
		PresentationFile   *fileDoc  `bson:"presentation_file,omitempty"`
		SubmittedAt        time.Time `bson:"submitted_at"`
		CreatedAt          time.Time `bson:"created_at"`
		UpdatedAt          time.Time `bson:"updated_at"`
	}
)

func newFileDoc(ref *group.FileRef) *fileDoc {
	if ref == nil {
		return nil
	}
	return &fileDoc{OriginalName: ref.OriginalName, Filename: ref.Filename, Mimetype: ref.Mimetype, Size: ref.Size, Path: ref.Path}
}

func (d *fileDoc) ref() *group.FileRef {
	if d == nil {
		return nil
	}
	return &group.FileRef{OriginalName: d.OriginalName, Filename: d.Filename, Mimetype: d.Mimetype, Size: d.Size, Path: d.Path}
}

func newSubmissionDoc(sub group.Submission) submissionDoc {
	return submissionDoc{
		ID:                 sub.ID,
		StudentID:          sub.StudentID,
		GroupID:            sub.GroupID,
		Name:               sub.Name,
		UniversityRollNo:   sub.UniversityRollNo,
		Mobile:             sub.Mobile,
		Member1Roll:        sub.Member1Roll,
		Member1Name:        sub.Member1Name,
		Member2Roll:        sub.Member2Roll,
		Member2Name:        sub.Member2Name,
		ProjectDomain:      sub.ProjectDomain,
		ProjectDomainOther: sub.ProjectDomainOther,
		Title:              sub.Title,
		Description:        sub.Description,
		TechStack:          sub.TechStack,
		ExpectedOutcomes:   sub.ExpectedOutcomes,
		PreviousExperience: sub.PreviousExperience,
		Agreement:          sub.Agreement,
		SDGMapping:         sub.SDGMapping,
		TeacherPreferences: orEmpty(sub.TeacherPreferences),
		Comments:           sub.Comments,
		SynopsisFile:       newFileDoc(sub.SynopsisFile),
		PresentationFile:   newFileDoc(sub.PresentationFile),
		SubmittedAt:        sub.SubmittedAt.UTC(),
		CreatedAt:          sub.CreatedAt.UTC(),
		UpdatedAt:          sub.UpdatedAt.UTC(),
	}
}

func (d submissionDoc) submission() group.Submission {
	return group.Submission{
		ID:                 d.ID,
		StudentID:          d.StudentID,
		GroupID:            d.GroupID,
		Name:               d.Name,
		UniversityRollNo:   d.UniversityRollNo,
		Mobile:             d.Mobile,
		Member1Roll:        d.Member1Roll,
		Member1Name:        d.Member1Name,
		Member2Roll:        d.Member2Roll,
		Member2Name:        d.Member2Name,
		ProjectDomain:      d.ProjectDomain,
		ProjectDomainOther: d.ProjectDomainOther,
		Title:              d.Title,
		Description:        d.Description,
		TechStack:          d.TechStack,
		ExpectedOutcomes:   d.ExpectedOutcomes,
		PreviousExperience: d.PreviousExperience,
		Agreement:          d.Agreement,
		SDGMapping:         d.SDGMapping,
		TeacherPreferences: d.TeacherPreferences,
		Comments:           d.Comments,
		SynopsisFile:       d.SynopsisFile.ref(),
		PresentationFile:   d.PresentationFile.ref(),
		SubmittedAt:        d.SubmittedAt.UTC(),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

type submissionRepository struct {
	coll *mongo.Collection
}

var _ group.SubmissionRepository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *mongo.Database) *submissionRepository {
	return &submissionRepository{coll: db.Collection(submissionsCollection)}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub group.Submission) (group.Submission, error) {
	doc := newSubmissionDoc(sub)
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		return group.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return doc.submission(), nil
}

// UpsertSubmission keeps the id and created_at of an existing document.
func (repo submissionRepository) UpsertSubmission(ctx context.Context, sub group.Submission) (group.Submission, error) {
	if sub.GroupID == "" {
		return repo.CreateSubmission(ctx, sub)
	}

	raw, err := bson.Marshal(newSubmissionDoc(sub))
	if err != nil {
		return group.Submission{}, errors.Wrap(err, "marshalling submission")
	}
	var set bson.M
	if err = bson.Unmarshal(raw, &set); err != nil {
		return group.Submission{}, errors.Wrap(err, "unmarshalling submission")
	}
	delete(set, "_id")
	delete(set, "created_at")
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": sub.ID, "created_at": sub.CreatedAt.UTC()},
	}
	// absent files must be cleared too
	unset := bson.M{}
	if sub.SynopsisFile == nil {
		unset["synopsis_file"] = ""
	}
	if sub.PresentationFile == nil {
		unset["presentation_file"] = ""
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc submissionDoc
	err = repo.coll.FindOneAndUpdate(ctx, bson.M{"group_id": sub.GroupID, "student_id": sub.StudentID}, update, opts).Decode(&doc)
	if err != nil {
		return group.Submission{}, errors.Wrap(err, "upserting submission")
	}
	return doc.submission(), nil
}

func (repo submissionRepository) filter(filter group.SubmissionFilter) bson.M {
	f := bson.M{}
	if filter.OrphansOnly {
		f["group_id"] = bson.M{"$exists": false}
	} else if filter.GroupID != "" {
		f["group_id"] = filter.GroupID
	}
	if filter.StudentID != "" {
		f["student_id"] = filter.StudentID
	}
	if filter.RealOnly {
		f["name"] = bson.M{"$ne": ""}
	}
	if filter.ExcludeID != "" {
		f["_id"] = bson.M{"$ne": filter.ExcludeID}
	}
	return f
}

var submissionSort = bson.D{{Key: "submitted_at", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (repo submissionRepository) GetLatestSubmission(ctx context.Context, filter group.SubmissionFilter) (group.Submission, error) {
	var doc submissionDoc
	err := repo.coll.FindOne(ctx, repo.filter(filter), options.FindOne().SetSort(submissionSort)).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return group.Submission{}, group.ErrSubmissionNotFound
		}
		return group.Submission{}, errors.Wrap(err, "finding latest submission")
	}
	return doc.submission(), nil
}

func (repo submissionRepository) FilterSubmissions(ctx context.Context, filter group.SubmissionFilter) ([]group.Submission, error) {
	cur, err := repo.coll.Find(ctx, repo.filter(filter), options.Find().SetSort(submissionSort))
	if err != nil {
		return nil, errors.Wrap(err, "finding submissions")
	}
	docs, err := decodeAll[submissionDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	subs := make([]group.Submission, 0, len(docs))
	for _, d := range docs {
		subs = append(subs, d.submission())
	}
	return subs, nil
}

func (repo submissionRepository) UpdateSubmissionFiles(ctx context.Context, id string, files group.Files) (group.Submission, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if files.Synopsis != nil {
		set["synopsis_file"] = newFileDoc(files.Synopsis)
	}
	if files.Presentation != nil {
		set["presentation_file"] = newFileDoc(files.Presentation)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc submissionDoc
	if err := repo.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return group.Submission{}, group.ErrSubmissionNotFound
		}
		return group.Submission{}, errors.Wrap(err, "updating submission files")
	}
	return doc.submission(), nil
}

func (repo submissionRepository) DeleteSubmissions(ctx context.Context, filter group.SubmissionFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, errors.New("refusing to delete submissions without a filter")
	}
	res, err := repo.coll.DeleteMany(ctx, repo.filter(filter))
	if err != nil {
		return 0, errors.Wrap(err, "deleting submissions")
	}
	return int(res.DeletedCount), nil
}
