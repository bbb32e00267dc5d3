package group_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/tests"
)

func TestResetSupervisor(t *testing.T) {
	f := setup(t)
	s1 := testutil.CreateStudent(t, f.UserRepo, "S1")
	res, err := f.submit(t, s1, "S2", "S3")
	require.NoError(t, err)
	require.Equal(t, 1, f.count(t, f.t1))

	t.Run("default reason", func(t *testing.T) {
		grp, err := f.Groups.ResetSupervisor(ctx, res.Group.ID, "  ")
		require.NoError(t, err)
		assert.Empty(t, grp.Supervisor())
		assert.True(t, grp.State.Flagged())
		assert.Equal(t, group.ReasonSupervisorReset, grp.State.FlagReason())
		assert.Zero(t, f.count(t, f.t1))
	})

	t.Run("by human id, count never negative", func(t *testing.T) {
		grp, err := f.Groups.ResetSupervisor(ctx, res.Group.GroupID, "Wrong domain")
		require.NoError(t, err)
		assert.Equal(t, "Wrong domain", grp.State.FlagReason())
		assert.Zero(t, f.count(t, f.t1))
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := f.Groups.ResetSupervisor(ctx, "G-NOPE", "")
		assert.ErrorIs(t, err, group.ErrNotFound)
	})

	logs, err := f.Groups.ListOverrideLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs, "resets are not audited")
}

func TestOverrideSupervisor(t *testing.T) {
	f := setup(t, 2, 1, 2)
	admin := testutil.CreateAdmin(t, f.UserRepo, "ADM")
	student := testutil.CreateStudent(t, f.UserRepo, "S1")
	res, err := f.submit(t, student, "S2", "S3")
	require.NoError(t, err)
	require.Equal(t, f.t1.ID, res.Group.Supervisor())

	// fill T2
	other := testutil.CreateStudent(t, f.UserRepo, "X1")
	otherRes, err := f.submit(t, other, "X2", "X3")
	require.NoError(t, err)
	_, err = f.Groups.OverrideSupervisor(ctx, admin, otherRes.Group.ID, group.OverrideSupervisor{SupervisorID: f.t2.ID})
	require.NoError(t, err)
	require.Equal(t, 1, f.count(t, f.t2))
	require.Equal(t, 1, f.count(t, f.t1))

	t.Run("forbidden for non admins", func(t *testing.T) {
		_, err := f.Groups.OverrideSupervisor(ctx, student, res.Group.ID, group.OverrideSupervisor{SupervisorID: f.t3.ID})
		assert.ErrorIs(t, err, core.ErrForbidden)
	})

	t.Run("supervisor required", func(t *testing.T) {
		_, err := f.Groups.OverrideSupervisor(ctx, admin, res.Group.ID, group.OverrideSupervisor{})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("target must be a teacher", func(t *testing.T) {
		_, err := f.Groups.OverrideSupervisor(ctx, admin, res.Group.ID, group.OverrideSupervisor{SupervisorID: student.ID})
		assert.EqualError(t, err, "Supervisor must be a Teacher")
	})

	t.Run("same supervisor is a no-op", func(t *testing.T) {
		logsBefore, err := f.Groups.ListOverrideLogs(ctx)
		require.NoError(t, err)

		grp, err := f.Groups.OverrideSupervisor(ctx, admin, res.Group.ID, group.OverrideSupervisor{SupervisorID: f.t1.ID, Force: true})
		require.NoError(t, err)
		assert.Equal(t, f.t1.ID, grp.Supervisor())
		assert.Equal(t, 1, f.count(t, f.t1))

		logsAfter, err := f.Groups.ListOverrideLogs(ctx)
		require.NoError(t, err)
		assert.Equal(t, logsBefore, logsAfter)
	})

	t.Run("full teacher without force", func(t *testing.T) {
		_, err := f.Groups.OverrideSupervisor(ctx, admin, res.Group.ID, group.OverrideSupervisor{SupervisorID: f.t2.ID})
		assert.ErrorIs(t, err, group.ErrNoCapacity)

		grp, err := f.Groups.ListGroups(ctx)
		require.NoError(t, err)
		assert.Equal(t, f.t1.ID, grp[0].Supervisor(), "group keeps its supervisor")
		assert.Equal(t, 1, f.count(t, f.t1), "previous slot is re-claimed")
		assert.Equal(t, 1, f.count(t, f.t2))
	})

	t.Run("full teacher with force", func(t *testing.T) {
		grp, err := f.Groups.OverrideSupervisor(ctx, admin, res.Group.GroupID, group.OverrideSupervisor{SupervisorID: f.t2.ID, Reason: " swap ", Force: true})
		require.NoError(t, err)
		assert.Equal(t, f.t2.ID, grp.Supervisor())
		assert.Equal(t, group.StatusAllocated, grp.State.Status())
		assert.Zero(t, f.count(t, f.t1))
		assert.Equal(t, 2, f.count(t, f.t2), "force may exceed capacity")

		logs, err := f.Groups.ListOverrideLogs(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, logs)
		assert.Equal(t, group.OverrideLog{
			ID:        logs[0].ID,
			AdminID:   admin.ID,
			GroupID:   res.Group.ID,
			Action:    group.ActionOverrideSupervisor,
			From:      group.Snapshot{AssignedSupervisor: f.t1.ID, Status: group.StatusAllocated},
			To:        group.Snapshot{AssignedSupervisor: f.t2.ID, Status: group.StatusAllocated},
			Reason:    "swap",
			CreatedAt: logs[0].CreatedAt,
		}, logs[0])
	})

	t.Run("flagged group gets allocated", func(t *testing.T) {
		_, err := f.Groups.ResetSupervisor(ctx, res.Group.ID, "")
		require.NoError(t, err)
		require.Equal(t, 1, f.count(t, f.t2))

		grp, err := f.Groups.OverrideSupervisor(ctx, admin, res.Group.ID, group.OverrideSupervisor{SupervisorID: f.t3.ID})
		require.NoError(t, err)
		assert.False(t, grp.State.Flagged())
		assert.Equal(t, 1, f.count(t, f.t3))

		logs, err := f.Groups.ListOverrideLogs(ctx)
		require.NoError(t, err)
		assert.Equal(t, group.Snapshot{Status: group.StatusPending, FlaggedForAdmin: true}, logs[0].From)
	})
}
