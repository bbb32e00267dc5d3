package group_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/storage/database/inmem"
	"github.com/trezcool/formify/tests"
)

func inmemMarks(f *fixture) group.MarkRepository {
	return inmemdb.NewMarkRepository(f.DB)
}

func TestMyGroup(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")

	grp, err := f.Groups.MyGroup(ctx, s1)
	require.NoError(t, err)
	assert.Nil(t, grp)
	sub, err := f.Groups.LatestSubmission(ctx, s1)
	require.NoError(t, err)
	assert.Nil(t, sub)

	res, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)

	grp, err = f.Groups.MyGroup(ctx, s1)
	require.NoError(t, err)
	require.NotNil(t, grp)
	assert.Equal(t, res.Group.ID, grp.ID)
	assert.Equal(t, s1.Summary(), *grp.Leader)
	assert.Equal(t, []user.Summary{s1.Summary()}, grp.MemberDetails)
	assert.Equal(t, f.t1.Summary(), *grp.SupervisorRef)
	assert.Equal(t, []user.Summary{f.t1.Summary(), f.t2.Summary(), f.t3.Summary()}, grp.Preferences)

	sub, err = f.Groups.LatestSubmission(ctx, s1)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, res.SubmissionID, sub.ID)
}

func TestAttachFiles(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	synopsis := &group.FileRef{Filename: "syn.pdf"}
	slides := &group.FileRef{Filename: "slides.pptx"}

	_, err := f.Groups.AttachFiles(ctx, s1, group.Files{Synopsis: synopsis})
	assert.ErrorIs(t, err, group.ErrNoGroupForStudent)

	res, err := f.submit(t, s1, "S2", "S3", group.Files{Synopsis: synopsis})
	require.NoError(t, err)

	_, err = f.Groups.AttachFiles(ctx, s1, group.Files{})
	assert.True(t, core.IsValidationError(err))

	sub, err := f.Groups.AttachFiles(ctx, s1, group.Files{Presentation: slides})
	require.NoError(t, err)
	assert.Equal(t, res.SubmissionID, sub.ID)
	assert.Equal(t, synopsis, sub.SynopsisFile)
	assert.Equal(t, slides, sub.PresentationFile)

	subs, err := f.Groups.GroupSubmissions(ctx, res.Group.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1, "no file-only row is created")
}

func TestAttachFiles_noSubmission(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	s2 := testutil.CreateStudent(t, f.UserRepo, "S2")
	res, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)

	// S2 is a member without a submission of their own
	grp := res.Group
	grp.Join(s2.ID, "S2", nil)
	_, err = inmemdb.NewGroupRepository(f.DB).UpdateGroup(ctx, grp)
	require.NoError(t, err)

	_, err = f.Groups.AttachFiles(ctx, s2, group.Files{Synopsis: &group.FileRef{Filename: "x"}})
	assert.ErrorIs(t, err, group.ErrNoSubmissionToAttach)
}

func TestTeacherViews(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	s2 := testutil.CreateStudent(t, f.UserRepo, "S2")
	res, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)
	_, err = f.submit(t, s2, "S1", "S3")
	require.NoError(t, err)

	t.Run("supervised groups", func(t *testing.T) {
		grps, err := f.Groups.ListSupervisedGroups(ctx, f.t1)
		require.NoError(t, err)
		require.Len(t, grps, 1)
		assert.Equal(t, res.Group.ID, grps[0].ID)

		grps, err = f.Groups.ListSupervisedGroups(ctx, f.t2)
		require.NoError(t, err)
		assert.Empty(t, grps)
	})

	t.Run("not the supervisor", func(t *testing.T) {
		_, err := f.Groups.LatestGroupSubmission(ctx, f.t2, res.Group.ID)
		assert.ErrorIs(t, err, group.ErrNotSupervisor)
		_, err = f.Groups.SupervisedGroupSubmissions(ctx, f.t2, res.Group.ID)
		assert.ErrorIs(t, err, group.ErrNotSupervisor)
		_, err = f.Groups.GroupMarks(ctx, f.t2, res.Group.ID)
		assert.ErrorIs(t, err, group.ErrNotSupervisor)
		_, err = f.Groups.UpsertGroupMark(ctx, f.t2, res.Group.ID, 50, "")
		assert.ErrorIs(t, err, group.ErrNotSupervisor)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := f.Groups.GroupMarks(ctx, f.t1, "nope")
		assert.ErrorIs(t, err, group.ErrNotFound)
	})

	t.Run("submissions", func(t *testing.T) {
		latest, err := f.Groups.LatestGroupSubmission(ctx, f.t1, res.Group.GroupID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, s2.ID, latest.StudentID)

		subs, err := f.Groups.SupervisedGroupSubmissions(ctx, f.t1, res.Group.ID)
		require.NoError(t, err)
		assert.Len(t, subs, 2)
	})

	t.Run("marks", func(t *testing.T) {
		tests := []struct {
			name      string
			studentID string
			marks     float64
			wantErr   error
		}{
			{name: "too high", studentID: s1.ID, marks: 101},
			{name: "negative", studentID: s1.ID, marks: -1},
			{name: "not a member", studentID: f.t3.ID, marks: 50, wantErr: group.ErrNotMember},
			{name: "valid", studentID: s1.ID, marks: 80},
			{name: "overwrite", studentID: s1.ID, marks: 85.5},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.Groups.UpsertStudentMark(ctx, f.t1, res.Group.ID, tt.studentID, tt.marks)
				switch {
				case tt.marks < 0 || tt.marks > 100:
					assert.True(t, core.IsValidationError(err))
				case tt.wantErr != nil:
					assert.ErrorIs(t, err, tt.wantErr)
				default:
					assert.NoError(t, err)
				}
			})
		}

		_, err = f.Groups.UpsertGroupMark(ctx, f.t1, res.Group.ID, 200, "")
		assert.True(t, core.IsValidationError(err))
		_, err = f.Groups.UpsertGroupMark(ctx, f.t1, res.Group.ID, 70, " solid ")
		require.NoError(t, err)

		view, err := f.Groups.GroupMarks(ctx, f.t1, res.Group.ID)
		require.NoError(t, err)
		require.Len(t, view.Students, 2)
		assert.Equal(t, s1.ID, view.Students[0].Student.ID)
		require.NotNil(t, view.Students[0].Marks)
		assert.Equal(t, 85.5, *view.Students[0].Marks)
		assert.Nil(t, view.Students[1].Marks)
		require.NotNil(t, view.GroupMark)
		assert.Equal(t, 70.0, view.GroupMark.Marks)
		assert.Equal(t, "solid", view.GroupMark.Remarks)
	})
}

func TestAllSubmissions(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	s2 := testutil.CreateStudent(t, f.UserRepo, "S2")
	_, err := f.submit(t, s1, "A1", "A2")
	require.NoError(t, err)
	_, err = f.submit(t, s2, "B1", "B2")
	require.NoError(t, err)
	_, err = f.submit(t, s1, "A1", "A2")
	require.NoError(t, err)

	subs, err := f.Groups.AllSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, s1.ID, subs[0].StudentID, "newest first")
	assert.Equal(t, s2.ID, subs[1].StudentID)
}
