package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/group"
)

var errEmptyFilter = errors.New("refusing to delete submissions without a filter")

type submissionRepository struct {
	db *submissionTable
}

var _ group.SubmissionRepository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) *submissionRepository {
	return &submissionRepository{db: db.submission}
}

func copyFile(f *group.FileRef) *group.FileRef {
	if f == nil {
		return nil
	}
	ref := *f
	return &ref
}

func cloneSubmission(s *group.Submission) group.Submission {
	sub := *s
	sub.TeacherPreferences = copyStrings(s.TeacherPreferences)
	sub.SynopsisFile = copyFile(s.SynopsisFile)
	sub.PresentationFile = copyFile(s.PresentationFile)
	return sub
}

func matchSubmission(s *group.Submission, filter group.SubmissionFilter) bool {
	if filter.OrphansOnly {
		if s.GroupID != "" {
			return false
		}
	} else if filter.GroupID != "" && s.GroupID != filter.GroupID {
		return false
	}
	if filter.StudentID != "" && s.StudentID != filter.StudentID {
		return false
	}
	if filter.RealOnly && !s.IsReal() {
		return false
	}
	if filter.ExcludeID != "" && s.ID == filter.ExcludeID {
		return false
	}
	return true
}

// query returns the matching submissions, newest first.
func (repo *submissionRepository) query(filter group.SubmissionFilter) []group.Submission {
	subs := make([]group.Submission, 0)
	for _, s := range repo.db.table {
		if matchSubmission(s, filter) {
			subs = append(subs, cloneSubmission(s))
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
		}
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].ID > subs[j].ID
	})
	return subs
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub group.Submission) (group.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s := cloneSubmission(&sub)
	repo.db.table[sub.ID] = &s
	return cloneSubmission(&s), nil
}

func (repo *submissionRepository) UpsertSubmission(_ context.Context, sub group.Submission) (group.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if existing := repo.query(group.SubmissionFilter{GroupID: sub.GroupID, StudentID: sub.StudentID}); len(existing) > 0 && sub.GroupID != "" {
		sub.ID = existing[0].ID
		sub.CreatedAt = existing[0].CreatedAt
	}
	s := cloneSubmission(&sub)
	repo.db.table[sub.ID] = &s
	return cloneSubmission(&s), nil
}

func (repo *submissionRepository) GetLatestSubmission(_ context.Context, filter group.SubmissionFilter) (group.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if subs := repo.query(filter); len(subs) > 0 {
		return subs[0], nil
	}
	return group.Submission{}, group.ErrSubmissionNotFound
}

func (repo *submissionRepository) FilterSubmissions(_ context.Context, filter group.SubmissionFilter) ([]group.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(filter), nil
}

func (repo *submissionRepository) UpdateSubmissionFiles(_ context.Context, id string, files group.Files) (group.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.table[id]
	if !ok {
		return group.Submission{}, group.ErrSubmissionNotFound
	}
	if files.Synopsis != nil {
		s.SynopsisFile = copyFile(files.Synopsis)
	}
	if files.Presentation != nil {
		s.PresentationFile = copyFile(files.Presentation)
	}
	return cloneSubmission(s), nil
}

func (repo *submissionRepository) DeleteSubmissions(_ context.Context, filter group.SubmissionFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, errEmptyFilter
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for id, s := range repo.db.table {
		if matchSubmission(s, filter) {
			delete(repo.db.table, id)
			n++
		}
	}
	return n, nil
}
