package group_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/tests"
)

var ctx = context.Background()

type fixture struct {
	*testutil.App
	t1, t2, t3 user.User
}

func setup(t *testing.T, capacities ...int) *fixture {
	app := testutil.NewApp(t)
	caps := []int{2, 2, 2}
	copy(caps, capacities)
	return &fixture{
		App: app,
		t1:  testutil.CreateTeacher(t, app.UserRepo, "T1", caps[0]),
		t2:  testutil.CreateTeacher(t, app.UserRepo, "T2", caps[1]),
		t3:  testutil.CreateTeacher(t, app.UserRepo, "T3", caps[2]),
	}
}

func (f *fixture) submit(t *testing.T, student user.User, member1, member2 string, files ...group.Files) (group.SubmitResult, error) {
	t.Helper()
	var fs group.Files
	if len(files) > 0 {
		fs = files[0]
	}
	return f.Groups.Submit(ctx, student, testutil.Form(student.RollNumber, member1, member2, f.t1, f.t2, f.t3), fs)
}

func (f *fixture) count(t *testing.T, teacher user.User) int {
	t.Helper()
	return testutil.Reload(t, f.UserRepo, teacher).AssignedGroupsCount
}

func (f *fixture) allGroups(t *testing.T) []group.GroupView {
	t.Helper()
	grps, err := f.Groups.ListGroups(ctx)
	require.NoError(t, err)
	return grps
}

// assertDisjointMembers checks that no roll number is a confirmed member of two groups.
func assertDisjointMembers(t *testing.T, grps []group.GroupView) {
	t.Helper()
	seen := make(map[string]string)
	for _, g := range grps {
		for _, r := range g.MemberRollNumbers {
			if other, ok := seen[r]; ok {
				t.Errorf("roll %s is a member of both %s and %s", r, other, g.GroupID)
			}
			seen[r] = g.GroupID
		}
	}
}

func TestSubmit_newGroupSkipsFullTeacher(t *testing.T) {
	f := setup(t, 1, 2, 2)
	// fill T1
	other := testutil.CreateStudent(t, f.UserRepo, "X1")
	_, err := f.submit(t, other, "X2", "X3")
	require.NoError(t, err)
	require.Equal(t, 1, f.count(t, f.t1))

	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	res, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)

	assert.Equal(t, f.t2.ID, res.Group.Supervisor())
	assert.Equal(t, group.StatusAllocated, res.Group.State.Status())
	assert.False(t, res.Group.State.Flagged())
	assert.Equal(t, 1, f.count(t, f.t2))
	assert.Equal(t, 1, f.count(t, f.t1))
	assert.Equal(t, []string{"S1"}, res.Group.MemberRollNumbers)
	assert.Equal(t, []string{"S2", "S3"}, res.Group.ExpectedPartnerRollNumbers)
	assert.Equal(t, s1.ID, res.Group.LeaderID)
	assert.Equal(t, []string{f.t1.ID, f.t2.ID, f.t3.ID}, res.Group.TeacherPreferences)
	assert.Equal(t, "Project of S1", res.Group.Project.Title)
	assert.NotEmpty(t, res.SubmissionID)
}

func TestSubmit_joinThroughSharedRoll(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	s2 := testutil.CreateStudent(t, f.UserRepo, "S2")

	first, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)

	res, err := f.submit(t, s2, "s1", "S4")
	require.NoError(t, err)

	assert.Equal(t, first.Group.ID, res.Group.ID)
	assert.Equal(t, []string{s1.ID, s2.ID}, res.Group.Members)
	assert.Equal(t, []string{"S1", "S2"}, res.Group.MemberRollNumbers)
	assert.Equal(t, []string{"S3", "S4"}, res.Group.ExpectedPartnerRollNumbers)
	assert.Len(t, f.allGroups(t), 1)
	assert.Equal(t, 1, f.count(t, f.t1), "joining never allocates")
}

func TestSubmit_ambiguousMatch(t *testing.T) {
	f := setup(t)
	s5 := testutil.CreateStudent(t, f.UserRepo, "S5")
	s6 := testutil.CreateStudent(t, f.UserRepo, "S6")
	s7 := testutil.CreateStudent(t, f.UserRepo, "S7")

	_, err := f.submit(t, s5, "S7", "A1")
	require.NoError(t, err)
	_, err = f.submit(t, s6, "S7", "B1")
	require.NoError(t, err)
	before := f.allGroups(t)

	res, err := f.submit(t, s7, "C1", "C2", group.Files{Synopsis: &group.FileRef{Filename: "s7.pdf"}})
	assert.ErrorIs(t, err, group.ErrAmbiguousMatch)
	require.NotEmpty(t, res.SubmissionID)

	assert.Equal(t, before, f.allGroups(t), "no group is mutated")
	orphans, err := f.Groups.OrphanedSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, s7.ID, orphans[0].StudentID)
	assert.Empty(t, orphans[0].GroupID)
	assert.Equal(t, res.SubmissionID, orphans[0].ID)
	assert.Equal(t, "s7.pdf", orphans[0].SynopsisFile.Filename)
}

func TestSubmit_changedTeammates(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")

	_, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)

	// the submitter's own roll always matches their group, so dropping every teammate still resolves to it
	res, err := f.submit(t, s1, "Z1", "Z2")
	require.NoError(t, err)
	assert.Equal(t, []string{"S2", "S3", "Z1", "Z2"}, res.Group.ExpectedPartnerRollNumbers)
}

func TestSubmit_validation(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	student := testutil.CreateStudent(t, f.UserRepo, "S9")

	t.Run("self reference", func(t *testing.T) {
		_, err := f.submit(t, s1, "s1 ", "S2")
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
		assert.EqualError(t, err, "Group member roll numbers cannot include your own roll number")
	})

	t.Run("preference is not a teacher", func(t *testing.T) {
		form := testutil.Form("S1", "S2", "S3", f.t1, f.t2, student)
		_, err := f.Groups.Submit(ctx, s1, form, group.Files{})
		assert.EqualError(t, err, "One or more supervisor preferences are invalid")
	})

	t.Run("not a student", func(t *testing.T) {
		_, err := f.submit(t, f.t1, "S2", "S3")
		assert.ErrorIs(t, err, core.ErrForbidden)
	})

	assert.Empty(t, f.allGroups(t))
}

func TestSubmit_allPreferencesFull(t *testing.T) {
	f := setup(t, 0, 0, 0)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")

	res, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)

	assert.Equal(t, group.StatusPending, res.Group.State.Status())
	assert.True(t, res.Group.State.Flagged())
	assert.Equal(t, group.ReasonNoCapacity, res.Group.State.FlagReason())
	assert.Empty(t, res.Group.Supervisor())
	for _, teacher := range []user.User{f.t1, f.t2, f.t3} {
		assert.Zero(t, f.count(t, teacher))
	}

	flagged, err := f.Groups.ListFlaggedGroups(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, res.Group.ID, flagged[0].ID)
}

func TestSubmit_resubmission(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	synopsis := &group.FileRef{OriginalName: "synopsis.pdf", Filename: "1-synopsis.pdf", Path: "/uploads/1-synopsis.pdf"}

	first, err := f.submit(t, s1, "S2", "S3", group.Files{Synopsis: synopsis})
	require.NoError(t, err)

	second, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)
	assert.Equal(t, first.SubmissionID, second.SubmissionID, "the row is updated in place")

	subs, err := f.Groups.GroupSubmissions(ctx, first.Group.GroupID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, synopsis, subs[0].SynopsisFile)
	assert.Nil(t, subs[0].PresentationFile)

	presentation := &group.FileRef{Filename: "1-slides.pptx"}
	_, err = f.submit(t, s1, "S2", "S3", group.Files{Presentation: presentation})
	require.NoError(t, err)
	latest, err := f.Groups.LatestSubmission(ctx, s1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, synopsis, latest.SynopsisFile)
	assert.Equal(t, presentation, latest.PresentationFile)
}

func TestSubmit_concurrentNeverOversells(t *testing.T) {
	f := setup(t, 3, 2, 1)
	const n = 12

	students := make([]user.User, n)
	for i := range students {
		students[i] = testutil.CreateStudent(t, f.UserRepo, fmt.Sprintf("C%02d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i, s := range students {
		wg.Add(1)
		go func(i int, s user.User) {
			defer wg.Done()
			_, err := f.submit(t, s, fmt.Sprintf("P%02dA", i), fmt.Sprintf("P%02dB", i))
			errs <- err
		}(i, s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	grps := f.allGroups(t)
	assert.Len(t, grps, n)
	assertDisjointMembers(t, grps)

	assert.Equal(t, 3, f.count(t, f.t1))
	assert.Equal(t, 2, f.count(t, f.t2))
	assert.Equal(t, 1, f.count(t, f.t3))

	var flagged int
	for _, g := range grps {
		if g.State.Flagged() {
			flagged++
		}
	}
	assert.Equal(t, n-6, flagged)
}

func TestSubmit_concurrentTeammatesShareOneGroup(t *testing.T) {
	f := setup(t, 5, 5, 5)
	a := testutil.CreateStudent(t, f.UserRepo, "A1")
	b := testutil.CreateStudent(t, f.UserRepo, "B1")
	c := testutil.CreateStudent(t, f.UserRepo, "C1")

	var wg sync.WaitGroup
	for _, s := range []struct {
		usr    user.User
		m1, m2 string
	}{{a, "B1", "C1"}, {b, "A1", "C1"}, {c, "A1", "B1"}} {
		wg.Add(1)
		go func(usr user.User, m1, m2 string) {
			defer wg.Done()
			_, err := f.submit(t, usr, m1, m2)
			assert.NoError(t, err)
		}(s.usr, s.m1, s.m2)
	}
	wg.Wait()

	grps := f.allGroups(t)
	require.Len(t, grps, 1)
	assert.ElementsMatch(t, []string{"A1", "B1", "C1"}, grps[0].MemberRollNumbers)
	assert.Empty(t, grps[0].ExpectedPartnerRollNumbers)
	assert.Equal(t, 1, f.count(t, f.t1))
}
