package group

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
)

// maxGroupIDAttempts bounds the retries on human group id collisions.
const maxGroupIDAttempts = 5

// SubmitResult is returned by Submit; on a conflict it carries the orphaned submission only.
type SubmitResult struct {
	Group        Group  `json:"group"`
	SubmissionID string `json:"submission_id"`
}

// Submit places the student into a group from their project form and records the submission.
//
// The groups claiming any of the submitter's or teammates' roll numbers are looked up inside a single
// unit of work. Several matches, or a submitter already confirmed elsewhere, leave the group set
// untouched: the form is kept as an orphaned submission and ErrAmbiguousMatch or ErrAlreadyGrouped
// is returned. One match is joined. No match founds a new group, supervised by the first preferred
// teacher with free capacity or flagged for the admin when none has room.
func (svc *Service) Submit(ctx context.Context, student user.User, form SubmissionForm, files Files) (SubmitResult, error) {
	if !student.IsStudent() {
		return SubmitResult{}, core.ErrForbidden
	}
	if err := form.Validate(svc.validate); err != nil {
		return SubmitResult{}, err
	}

	roll := core.NormalizeRoll(student.RollNumber)
	partners := form.Partners()
	if core.ContainsString(partners, roll) {
		return SubmitResult{}, errSelfReference
	}

	prefs := form.Preferences()
	teachers, err := svc.users.GetTeachers(ctx, prefs...)
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "finding preferred teachers")
	}
	if len(teachers) != len(prefs) {
		return SubmitResult{}, errInvalidPreferences
	}

	var (
		res      SubmitResult
		conflict error
	)
	err = svc.tx.RunInTx(ctx, lockKey, func(ctx context.Context) error {
		res, conflict = SubmitResult{}, nil

		key := core.UniqueRolls(append([]string{roll}, partners...)...)
		matched, err := svc.groups.FilterGroups(ctx, QueryFilter{AnyRoll: key})
		if err != nil {
			return errors.Wrap(err, "matching groups")
		}
		if len(matched) > 1 {
			conflict = ErrAmbiguousMatch
			res.SubmissionID, err = svc.saveOrphan(ctx, student.ID, form, files)
			return err
		}

		current, found, err := svc.groupOf(ctx, roll)
		if err != nil {
			return err
		}
		if found && (len(matched) == 0 || current.ID != matched[0].ID) {
			conflict = ErrAlreadyGrouped
			res.SubmissionID, err = svc.saveOrphan(ctx, student.ID, form, files)
			return err
		}

		var grp Group
		if len(matched) == 1 {
			grp = matched[0]
			if grp.Join(student.ID, roll, partners) {
				if grp, err = svc.groups.UpdateGroup(ctx, grp); err != nil {
					return errors.Wrap(err, "joining group")
				}
			}
		} else {
			if grp, err = svc.foundGroup(ctx, student, form); err != nil {
				return err
			}
		}

		sub, err := svc.upsertSubmission(ctx, grp.ID, student.ID, form, files)
		if err != nil {
			return err
		}
		res = SubmitResult{Group: grp, SubmissionID: sub.ID}
		return nil
	})
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "resolving group")
	}
	if conflict != nil {
		svc.logger.Warn("submission orphaned", student, map[string]interface{}{
			"submission_id": res.SubmissionID,
			"reason":        conflict.Error(),
		})
		return res, conflict
	}
	return res, nil
}

// foundGroup creates a group led by the student and claims a supervision slot for it.
// The slot is claimed first and given back if the group cannot be saved.
func (svc *Service) foundGroup(ctx context.Context, student user.User, form SubmissionForm) (Group, error) {
	prefs := form.Preferences()
	teacherID, ok, err := svc.users.TryAllocate(ctx, prefs...)
	if err != nil {
		return Group{}, errors.Wrap(err, "allocating supervisor")
	}

	grp := newGroup(student.ID, core.NormalizeRoll(student.RollNumber), form.Partners(), form.project(), prefs)
	if ok {
		grp.Allocate(teacherID)
	} else {
		grp.Unassign(ReasonNoCapacity)
	}

	for attempt := 1; ; attempt++ {
		created, err := svc.groups.CreateGroup(ctx, grp)
		if err == nil {
			grp = created
			break
		}
		if errors.Cause(err) == ErrDuplicateGroupID && attempt < maxGroupIDAttempts {
			grp.GroupID = NewGroupID()
			continue
		}
		if ok {
			if rerr := svc.users.Release(ctx, teacherID); rerr != nil {
				svc.logger.Error("releasing slot after failed group creation", rerr, map[string]interface{}{"teacher_id": teacherID})
			}
		}
		return Group{}, errors.Wrap(err, "creating group")
	}

	if grp.State.Flagged() {
		svc.logger.Warn("group flagged for admin", map[string]interface{}{"group_id": grp.GroupID, "reason": grp.State.FlagReason()})
	} else {
		svc.logger.Info("group created", map[string]interface{}{"group_id": grp.GroupID, "supervisor_id": teacherID})
	}
	return grp, nil
}

// saveOrphan keeps a conflicting form, without a group, for the admin to review.
func (svc *Service) saveOrphan(ctx context.Context, studentID string, form SubmissionForm, files Files) (string, error) {
	sub, err := svc.subs.CreateSubmission(ctx, form.submission(studentID, "", files))
	if err != nil {
		return "", errors.Wrap(err, "saving orphaned submission")
	}
	return sub.ID, nil
}
