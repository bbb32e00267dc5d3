package group

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
)

// OverrideSupervisor contains information needed to override the supervisor of a group.
type OverrideSupervisor struct {
	SupervisorID string `json:"supervisor_id"`
	Reason       string `json:"reason"`
	Force        bool   `json:"force"`
}

// ResetSupervisor drops the supervisor of the group, giving their slot back, and flags the group.
func (svc *Service) ResetSupervisor(ctx context.Context, groupParam, reason string) (Group, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		reason = ReasonSupervisorReset
	}

	var grp Group
	err := svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		var err error
		if grp, err = svc.resolveGroup(ctx, groupParam); err != nil {
			return err
		}
		old := grp.Unassign(reason)
		if err = svc.users.Release(ctx, old); err != nil {
			return err
		}
		if grp, err = svc.groups.UpdateGroup(ctx, grp); err != nil {
			return errors.Wrap(err, "saving group")
		}
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	svc.logger.Info("supervisor reset", map[string]interface{}{"group_id": grp.GroupID, "reason": reason})
	return grp, nil
}

// OverrideSupervisor assigns the teacher to the group on behalf of the admin and records an OverrideLog.
// Without force the teacher must have free capacity, else ErrNoCapacity is returned and the group is left as is.
// Assigning the current supervisor again is a no-op.
func (svc *Service) OverrideSupervisor(ctx context.Context, admin user.User, groupParam string, ovr OverrideSupervisor) (Group, error) {
	if !admin.IsAdmin() {
		return Group{}, core.ErrForbidden
	}
	supervisorID := core.CleanString(ovr.SupervisorID)
	if supervisorID == "" {
		return Group{}, errSupervisorRequired
	}

	var (
		grp     Group
		changed bool
	)
	err := svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) (err error) {
		changed = false
		if grp, err = svc.resolveGroup(ctx, groupParam); err != nil {
			return err
		}
		if grp.Supervisor() == supervisorID {
			return nil
		}
		if _, err = svc.users.GetTeacher(ctx, supervisorID); err != nil {
			if errors.Cause(err) == user.ErrTeacherNotFound {
				return errNotTeacher
			}
			return err
		}

		before := grp.State.Snapshot()
		old := grp.Supervisor()
		if err = svc.users.Release(ctx, old); err != nil {
			return err
		}

		if ovr.Force {
			if err = svc.users.ForceAllocate(ctx, supervisorID); err != nil {
				return err
			}
		} else {
			_, ok, err := svc.users.TryAllocate(ctx, supervisorID)
			if err != nil {
				return err
			}
			if !ok {
				// the group still points at the old supervisor: take their slot back
				if old != "" {
					if err = svc.users.ForceAllocate(ctx, old); err != nil {
						return errors.Wrap(err, "re-claiming previous supervisor slot")
					}
				}
				return ErrNoCapacity
			}
		}

		grp.Allocate(supervisorID)
		if grp, err = svc.groups.UpdateGroup(ctx, grp); err != nil {
			return errors.Wrap(err, "saving group")
		}

		_, err = svc.logs.CreateOverrideLog(ctx, OverrideLog{
			ID:        uuid.NewString(),
			AdminID:   admin.ID,
			GroupID:   grp.ID,
			Action:    ActionOverrideSupervisor,
			From:      before,
			To:        grp.State.Snapshot(),
			Reason:    core.CleanString(ovr.Reason),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "saving override log")
		}
		changed = true
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	if changed {
		svc.logger.Info("supervisor overridden", admin, map[string]interface{}{
			"group_id":      grp.GroupID,
			"supervisor_id": supervisorID,
			"force":         ovr.Force,
		})
	}
	return grp, nil
}

// ListOverrideLogs returns the latest override logs, newest first.
func (svc *Service) ListOverrideLogs(ctx context.Context) ([]OverrideLog, error) {
	return svc.logs.ListOverrideLogs(ctx, overrideLogsLimit)
}

const overrideLogsLimit = 200
