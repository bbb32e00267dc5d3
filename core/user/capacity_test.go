package user_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/tests"
)

var ctx = context.Background()

func TestTryAllocate(t *testing.T) {
	app := testutil.NewApp(t)
	full := testutil.CreateTeacher(t, app.UserRepo, "T1", 0)
	free := testutil.CreateTeacher(t, app.UserRepo, "T2", 1)
	student := testutil.CreateStudent(t, app.UserRepo, "S1")

	id, ok, err := app.Users.TryAllocate(ctx, "", student.ID, full.ID, free.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, free.ID, id)
	assert.Equal(t, 1, testutil.Reload(t, app.UserRepo, free).AssignedGroupsCount)

	id, ok, err = app.Users.TryAllocate(ctx, full.ID, free.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Zero(t, testutil.Reload(t, app.UserRepo, full).AssignedGroupsCount)
	assert.Zero(t, testutil.Reload(t, app.UserRepo, student).AssignedGroupsCount)
}

func TestTryAllocate_concurrent(t *testing.T) {
	app := testutil.NewApp(t)
	teacher := testutil.CreateTeacher(t, app.UserRepo, "T1", 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := app.Users.TryAllocate(ctx, teacher.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, claimed)
	assert.Equal(t, 5, testutil.Reload(t, app.UserRepo, teacher).AssignedGroupsCount)
}

func TestForceAllocateAndRelease(t *testing.T) {
	app := testutil.NewApp(t)
	teacher := testutil.CreateTeacher(t, app.UserRepo, "T1", 0)
	student := testutil.CreateStudent(t, app.UserRepo, "S1")

	require.NoError(t, app.Users.ForceAllocate(ctx, teacher.ID))
	assert.Equal(t, 1, testutil.Reload(t, app.UserRepo, teacher).AssignedGroupsCount)
	assert.ErrorIs(t, app.Users.ForceAllocate(ctx, student.ID), user.ErrTeacherNotFound)
	assert.ErrorIs(t, app.Users.ForceAllocate(ctx, "missing"), user.ErrTeacherNotFound)

	require.NoError(t, app.Users.Release(ctx, teacher.ID))
	require.NoError(t, app.Users.Release(ctx, teacher.ID))
	assert.Zero(t, testutil.Reload(t, app.UserRepo, teacher).AssignedGroupsCount, "never below 0")
	assert.NoError(t, app.Users.Release(ctx, ""))
	assert.NoError(t, app.Users.Release(ctx, "missing"))
}

func TestReconcileCounts(t *testing.T) {
	app := testutil.NewApp(t)
	t1 := testutil.CreateTeacher(t, app.UserRepo, "T1", 3)
	t2 := testutil.CreateTeacher(t, app.UserRepo, "T2", 3)
	t3 := testutil.CreateTeacher(t, app.UserRepo, "T3", 3)
	require.NoError(t, app.UserRepo.SetAssignedCount(ctx, t1.ID, 2))
	require.NoError(t, app.UserRepo.SetAssignedCount(ctx, t2.ID, 1))

	actual := map[string]int{t1.ID: 1, t2.ID: 1, t3.ID: 2}

	drifts, err := app.Users.ReconcileCounts(ctx, actual, false)
	require.NoError(t, err)
	require.Len(t, drifts, 2)
	assert.Equal(t, user.CountDrift{Teacher: t1.Summary(), Stored: 2, Actual: 1, Capacity: 3}, drifts[0])
	assert.Equal(t, user.CountDrift{Teacher: t3.Summary(), Stored: 0, Actual: 2, Capacity: 3}, drifts[1])
	assert.Equal(t, 2, testutil.Reload(t, app.UserRepo, t1).AssignedGroupsCount, "dry run")

	_, err = app.Users.ReconcileCounts(ctx, actual, true)
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.Reload(t, app.UserRepo, t1).AssignedGroupsCount)
	assert.Equal(t, 2, testutil.Reload(t, app.UserRepo, t3).AssignedGroupsCount)

	drifts, err = app.Users.ReconcileCounts(ctx, actual, false)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}
