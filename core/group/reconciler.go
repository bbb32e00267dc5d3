package group

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/user"
)

// upsertSubmission keeps a single submission per (group, student).
// Files not attached to this form are carried forward from the latest real submission of the pair.
func (svc *Service) upsertSubmission(ctx context.Context, groupID, studentID string, form SubmissionForm, files Files) (Submission, error) {
	prev, err := svc.subs.GetLatestSubmission(ctx, SubmissionFilter{GroupID: groupID, StudentID: studentID, RealOnly: true})
	switch {
	case err == nil:
		if files.Synopsis == nil {
			files.Synopsis = prev.SynopsisFile
		}
		if files.Presentation == nil {
			files.Presentation = prev.PresentationFile
		}
	case errors.Cause(err) != ErrSubmissionNotFound:
		return Submission{}, errors.Wrap(err, "finding previous submission")
	}

	sub, err := svc.subs.UpsertSubmission(ctx, form.submission(studentID, groupID, files))
	if err != nil {
		return Submission{}, errors.Wrap(err, "upserting submission")
	}

	// clean up duplicates left by older writes
	n, err := svc.subs.DeleteSubmissions(ctx, SubmissionFilter{GroupID: groupID, StudentID: studentID, ExcludeID: sub.ID})
	if err != nil {
		return Submission{}, errors.Wrap(err, "deleting duplicate submissions")
	}
	if n > 0 {
		svc.logger.Info("duplicate submissions removed", map[string]interface{}{"group_id": groupID, "student_id": studentID, "count": n})
	}
	return sub, nil
}

// AttachFiles replaces the provided file slots of the student's latest real submission.
// It never creates a submission.
func (svc *Service) AttachFiles(ctx context.Context, student user.User, files Files) (Submission, error) {
	grp, found, err := svc.groupOf(ctx, student.RollNumber)
	if err != nil {
		return Submission{}, err
	}
	if !found {
		return Submission{}, ErrNoGroupForStudent
	}
	if files.IsEmpty() {
		return Submission{}, errNoFiles
	}

	latest, err := svc.subs.GetLatestSubmission(ctx, SubmissionFilter{GroupID: grp.ID, StudentID: student.ID, RealOnly: true})
	if err != nil {
		if errors.Cause(err) == ErrSubmissionNotFound {
			return Submission{}, ErrNoSubmissionToAttach
		}
		return Submission{}, errors.Wrap(err, "finding latest submission")
	}

	sub, err := svc.subs.UpdateSubmissionFiles(ctx, latest.ID, files)
	if err != nil {
		return Submission{}, errors.Wrap(err, "attaching files")
	}
	return sub, nil
}

