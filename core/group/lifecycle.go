package group

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/user"
)

// DeleteGroup removes the group with everything hanging off it, giving the supervisor slot back.
func (svc *Service) DeleteGroup(ctx context.Context, groupParam string) error {
	return svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		grp, err := svc.resolveGroup(ctx, groupParam)
		if err != nil {
			return err
		}
		return svc.deleteGroup(ctx, grp)
	})
}

// deleteGroup runs the cascade as ordered steps; each step is a no-op when there is nothing left to delete.
func (svc *Service) deleteGroup(ctx context.Context, grp Group) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"releasing supervisor", func() error { return svc.users.Release(ctx, grp.Supervisor()) }},
		{"deleting submissions", func() error {
			_, err := svc.subs.DeleteSubmissions(ctx, SubmissionFilter{GroupID: grp.ID})
			return err
		}},
		{"deleting student marks", func() error { return svc.marks.DeleteStudentMarks(ctx, grp.ID) }},
		{"deleting group marks", func() error { return svc.marks.DeleteGroupMarks(ctx, grp.ID) }},
		{"deleting group", func() error { return svc.groups.DeleteGroup(ctx, grp.ID) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			svc.logger.Error("group cascade failed", err, map[string]interface{}{"group_id": grp.GroupID, "step": step.name})
			return errors.Wrap(err, step.name)
		}
	}
	svc.logger.Info("group deleted", map[string]interface{}{"group_id": grp.GroupID})
	return nil
}

// DeleteTeacher flags every group the teacher supervises, pulls them out of every preference list
// and deletes them.
func (svc *Service) DeleteTeacher(ctx context.Context, teacherID string) error {
	return svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		teacher, err := svc.users.GetTeacher(ctx, teacherID)
		if err != nil {
			return err
		}

		grps, err := svc.groups.FilterGroups(ctx, QueryFilter{SupervisorID: teacher.ID})
		if err != nil {
			return errors.Wrap(err, "filtering supervised groups")
		}
		for _, grp := range grps {
			grp.Unassign(ReasonSupervisorRemoved)
			if _, err = svc.groups.UpdateGroup(ctx, grp); err != nil {
				svc.logger.Error("teacher cascade failed", err, map[string]interface{}{"teacher_id": teacher.ID, "group_id": grp.GroupID})
				return errors.Wrapf(err, "unassigning group %s", grp.GroupID)
			}
		}
		if err = svc.groups.RemovePreference(ctx, teacher.ID); err != nil {
			svc.logger.Error("teacher cascade failed", err, map[string]interface{}{"teacher_id": teacher.ID})
			return errors.Wrap(err, "removing teacher preferences")
		}
		if err = svc.users.Delete(ctx, teacher.ID); err != nil {
			return errors.Wrap(err, "deleting teacher")
		}
		svc.logger.Info("teacher deleted", map[string]interface{}{"teacher_id": teacher.ID, "flagged_groups": len(grps)})
		return nil
	})
}

// DeleteStudent removes the student from their groups, deleting the ones left empty,
// then deletes all their submissions and the student.
func (svc *Service) DeleteStudent(ctx context.Context, studentID string) error {
	return svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		student, err := svc.users.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}

		grps, err := svc.groups.FilterGroups(ctx, QueryFilter{MemberRoll: student.RollNumber})
		if err != nil {
			return errors.Wrap(err, "filtering student groups")
		}
		for _, grp := range grps {
			grp.RemoveMember(student.ID, student.RollNumber)
			if grp.IsEmpty() {
				if err = svc.deleteGroup(ctx, grp); err != nil {
					return err
				}
				continue
			}
			if _, err = svc.groups.UpdateGroup(ctx, grp); err != nil {
				return errors.Wrapf(err, "removing student from group %s", grp.GroupID)
			}
		}

		if _, err = svc.subs.DeleteSubmissions(ctx, SubmissionFilter{StudentID: student.ID}); err != nil {
			return errors.Wrap(err, "deleting student submissions")
		}
		if err = svc.users.Delete(ctx, student.ID); err != nil {
			return errors.Wrap(err, "deleting student")
		}
		svc.logger.Info("student deleted", map[string]interface{}{"student_id": student.ID})
		return nil
	})
}

// UpdateStudent applies the update to the student. A new roll number is rewritten in every group
// claiming the old one, so matching keeps working for their teammates.
func (svc *Service) UpdateStudent(ctx context.Context, studentID string, uu user.UpdateUser) (user.User, error) {
	student, err := svc.users.GetStudent(ctx, studentID)
	if err != nil {
		return user.User{}, err
	}
	if err = uu.Validate(student, svc.validate); err != nil {
		return user.User{}, err
	}
	if uu.RollNumber == nil || *uu.RollNumber == student.RollNumber {
		return svc.users.Update(ctx, student, uu)
	}

	oldRoll, newRoll := student.RollNumber, *uu.RollNumber
	err = svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		var err error
		if student, err = svc.users.GetStudent(ctx, studentID); err != nil {
			return err
		}
		if student, err = svc.users.Update(ctx, student, uu); err != nil {
			return err
		}
		grps, err := svc.groups.FilterGroups(ctx, QueryFilter{AnyRoll: []string{oldRoll}})
		if err != nil {
			return errors.Wrap(err, "filtering groups by roll")
		}
		for _, grp := range grps {
			if grp.RenameRoll(oldRoll, newRoll) {
				if _, err = svc.groups.UpdateGroup(ctx, grp); err != nil {
					return errors.Wrapf(err, "renaming roll in group %s", grp.GroupID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return student, nil
}
