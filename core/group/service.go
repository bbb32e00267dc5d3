package group

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
)

// lockKey serializes every read-modify-write of group documents.
const lockKey = "groups"

var (
	// errors
	ErrNotFound             = errors.New("Group not found")
	ErrDuplicateGroupID     = errors.New("group_id already exists")
	ErrNoGroupForStudent    = errors.New("No group found for this student")
	ErrSubmissionNotFound   = errors.New("Submission not found")
	ErrNoSubmissionToAttach = errors.New("No existing submission found to attach files. Please submit the form first.")
	ErrAmbiguousMatch       = errors.New("Multiple groups matched these rolls. Admin review required.")
	ErrAlreadyGrouped       = errors.New("You are already in another group.")
	ErrNoCapacity           = errors.New("Selected supervisor has no remaining capacity. Use force override.")
	ErrNotSupervisor        = errors.New("You are not the supervisor of this group")
	ErrNotMember            = core.NewFieldError("student_id", "Student is not a member of this group")

	errSelfReference      = core.NewFieldError("member1_roll", "Group member roll numbers cannot include your own roll number")
	errInvalidPreferences = core.NewFieldError("pref1", "One or more supervisor preferences are invalid")
	errNoFiles            = core.NewValidationError(errors.New("Upload at least one file: synopsis or presentation"))
	errSupervisorRequired = core.NewFieldError("supervisor_id", "supervisorId is required")
	errNotTeacher         = core.NewFieldError("supervisor_id", "Supervisor must be a Teacher")
	errInvalidMarks       = core.NewFieldError("marks", "marks must be between 0 and 100")
)

type (
	Repository interface {
		// CreateGroup fails with ErrDuplicateGroupID when the human group id is taken.
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroup(ctx context.Context, filter GetFilter) (Group, error)
		FilterGroups(ctx context.Context, filter QueryFilter) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		DeleteGroup(ctx context.Context, id string) error
		// RemovePreference pulls the teacher out of every group's preference list.
		RemovePreference(ctx context.Context, teacherID string) error
		// CountBySupervisor returns the number of groups supervised by each teacher.
		CountBySupervisor(ctx context.Context) (map[string]int, error)
	}

	SubmissionRepository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		// UpsertSubmission writes `sub` onto the row keyed by (group, student), inserting it when absent.
		UpsertSubmission(ctx context.Context, sub Submission) (Submission, error)
		// GetLatestSubmission fails with ErrSubmissionNotFound when nothing matches.
		GetLatestSubmission(ctx context.Context, filter SubmissionFilter) (Submission, error)
		FilterSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		// UpdateSubmissionFiles replaces the provided file slots only.
		UpdateSubmissionFiles(ctx context.Context, id string, files Files) (Submission, error)
		// DeleteSubmissions refuses an empty filter and returns the number of deleted rows.
		DeleteSubmissions(ctx context.Context, filter SubmissionFilter) (int, error)
	}

	MarkRepository interface {
		UpsertStudentMark(ctx context.Context, mark StudentMark) (StudentMark, error)
		FilterStudentMarks(ctx context.Context, groupID, teacherID string) ([]StudentMark, error)
		UpsertGroupMark(ctx context.Context, mark GroupMark) (GroupMark, error)
		GetGroupMark(ctx context.Context, groupID, teacherID string) (GroupMark, bool, error)
		DeleteStudentMarks(ctx context.Context, groupID string) error
		DeleteGroupMarks(ctx context.Context, groupID string) error
	}

	OverrideLogRepository interface {
		CreateOverrideLog(ctx context.Context, log OverrideLog) (OverrideLog, error)
		// ListOverrideLogs returns the newest logs first.
		ListOverrideLogs(ctx context.Context, limit int) ([]OverrideLog, error)
	}

	// Deps are the collaborators of the group Service.
	Deps struct {
		Tx          core.Transactor
		Groups      Repository
		Submissions SubmissionRepository
		Marks       MarkRepository
		Logs        OverrideLogRepository
		Users       *user.Service
		Logger      core.Logger
		Validate    *validator.Validate
	}

	Service struct {
		tx       core.Transactor
		groups   Repository
		subs     SubmissionRepository
		marks    MarkRepository
		logs     OverrideLogRepository
		users    *user.Service
		logger   core.Logger
		validate *validator.Validate
	}
)

func NewService(deps Deps) *Service {
	return &Service{
		tx:       deps.Tx,
		groups:   deps.Groups,
		subs:     deps.Submissions,
		marks:    deps.Marks,
		logs:     deps.Logs,
		users:    deps.Users,
		logger:   deps.Logger,
		validate: deps.Validate,
	}
}

// resolveGroup finds a group by its internal id, falling back to the human group id.
func (svc *Service) resolveGroup(ctx context.Context, param string) (Group, error) {
	param = core.CleanString(param)
	if param == "" {
		return Group{}, ErrNotFound
	}
	grp, err := svc.groups.GetGroup(ctx, GetFilter{ID: param})
	if err == nil {
		return grp, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Group{}, errors.Wrap(err, "finding group by ID")
	}
	grp, err = svc.groups.GetGroup(ctx, GetFilter{GroupID: core.NormalizeRoll(param)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Group{}, ErrNotFound
		}
		return Group{}, errors.Wrap(err, "finding group by group ID")
	}
	return grp, nil
}

// groupOf returns the group the student is a confirmed member of.
func (svc *Service) groupOf(ctx context.Context, roll string) (Group, bool, error) {
	grps, err := svc.groups.FilterGroups(ctx, QueryFilter{MemberRoll: core.NormalizeRoll(roll)})
	if err != nil {
		return Group{}, false, errors.Wrap(err, "filtering groups by member")
	}
	if len(grps) == 0 {
		return Group{}, false, nil
	}
	return grps[0], true, nil
}

// CountBySupervisor returns the number of groups each teacher actually supervises.
func (svc *Service) CountBySupervisor(ctx context.Context) (map[string]int, error) {
	return svc.groups.CountBySupervisor(ctx)
}
