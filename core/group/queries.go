package group

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
)

type (
	// GroupView is a Group with its users populated.
	GroupView struct {
		Group
		Leader        *user.Summary  `json:"leader"`
		MemberDetails []user.Summary `json:"member_details"`
		SupervisorRef *user.Summary  `json:"supervisor"`
		Preferences   []user.Summary `json:"preferences"`
	}

	// MemberMark is a member of a group with the mark given by the supervisor, if any.
	MemberMark struct {
		Student user.Summary `json:"student"`
		Marks   *float64     `json:"marks"`
	}

	MarksView struct {
		Group     GroupView    `json:"group"`
		Students  []MemberMark `json:"students"`
		GroupMark *GroupMark   `json:"group_mark"`
	}
)

// populate resolves the users referenced by the groups with a single lookup.
func (svc *Service) populate(ctx context.Context, grps ...Group) ([]GroupView, error) {
	ids := make([]string, 0)
	for _, g := range grps {
		ids = append(ids, g.Members...)
		ids = append(ids, g.TeacherPreferences...)
		if g.LeaderID != "" {
			ids = append(ids, g.LeaderID)
		}
		if s := g.Supervisor(); s != "" {
			ids = append(ids, s)
		}
	}

	byID := make(map[string]user.Summary, len(ids))
	if len(ids) > 0 {
		usrs, err := svc.users.Filter(ctx, user.QueryFilter{IDs: core.UniqueIDs(ids...)})
		if err != nil {
			return nil, errors.Wrap(err, "populating group users")
		}
		for _, u := range usrs {
			byID[u.ID] = u.Summary()
		}
	}
	lookup := func(id string) *user.Summary {
		if s, ok := byID[id]; ok {
			return &s
		}
		return nil
	}
	lookupAll := func(ids []string) []user.Summary {
		res := make([]user.Summary, 0, len(ids))
		for _, id := range ids {
			if s, ok := byID[id]; ok {
				res = append(res, s)
			}
		}
		return res
	}

	views := make([]GroupView, 0, len(grps))
	for _, g := range grps {
		views = append(views, GroupView{
			Group:         g,
			Leader:        lookup(g.LeaderID),
			MemberDetails: lookupAll(g.Members),
			SupervisorRef: lookup(g.Supervisor()),
			Preferences:   lookupAll(g.TeacherPreferences),
		})
	}
	return views, nil
}

// View populates a single group.
func (svc *Service) View(ctx context.Context, grp Group) (GroupView, error) {
	views, err := svc.populate(ctx, grp)
	if err != nil {
		return GroupView{}, err
	}
	return views[0], nil
}

// latestPerStudent keeps the first submission of every student; `subs` must be sorted newest first.
func latestPerStudent(subs []Submission) []Submission {
	seen := make(map[string]struct{}, len(subs))
	res := make([]Submission, 0, len(subs))
	for _, s := range subs {
		if _, ok := seen[s.StudentID]; ok {
			continue
		}
		seen[s.StudentID] = struct{}{}
		res = append(res, s)
	}
	return res
}

// Student

// MyGroup returns the group the student is a confirmed member of, or nil.
func (svc *Service) MyGroup(ctx context.Context, student user.User) (*GroupView, error) {
	grp, found, err := svc.groupOf(ctx, student.RollNumber)
	if err != nil || !found {
		return nil, err
	}
	view, err := svc.View(ctx, grp)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// LatestSubmission returns the student's latest real submission in their group, or nil.
func (svc *Service) LatestSubmission(ctx context.Context, student user.User) (*Submission, error) {
	grp, found, err := svc.groupOf(ctx, student.RollNumber)
	if err != nil || !found {
		return nil, err
	}
	return svc.latestSubmission(ctx, SubmissionFilter{GroupID: grp.ID, StudentID: student.ID, RealOnly: true})
}

func (svc *Service) latestSubmission(ctx context.Context, filter SubmissionFilter) (*Submission, error) {
	sub, err := svc.subs.GetLatestSubmission(ctx, filter)
	if err != nil {
		if errors.Cause(err) == ErrSubmissionNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding latest submission")
	}
	return &sub, nil
}

// Teacher

// supervisedGroup resolves the group, which the teacher must supervise.
func (svc *Service) supervisedGroup(ctx context.Context, teacher user.User, groupParam string) (Group, error) {
	grp, err := svc.resolveGroup(ctx, groupParam)
	if err != nil {
		return Group{}, err
	}
	if !teacher.IsTeacher() || grp.Supervisor() != teacher.ID {
		return Group{}, ErrNotSupervisor
	}
	return grp, nil
}

func (svc *Service) ListSupervisedGroups(ctx context.Context, teacher user.User) ([]GroupView, error) {
	grps, err := svc.groups.FilterGroups(ctx, QueryFilter{SupervisorID: teacher.ID})
	if err != nil {
		return nil, errors.Wrap(err, "filtering supervised groups")
	}
	return svc.populate(ctx, grps...)
}

// LatestGroupSubmission returns the latest real submission of any member of the supervised group, or nil.
func (svc *Service) LatestGroupSubmission(ctx context.Context, teacher user.User, groupParam string) (*Submission, error) {
	grp, err := svc.supervisedGroup(ctx, teacher, groupParam)
	if err != nil {
		return nil, err
	}
	return svc.latestSubmission(ctx, SubmissionFilter{GroupID: grp.ID, RealOnly: true})
}

// SupervisedGroupSubmissions returns the latest submission of every member of the supervised group.
func (svc *Service) SupervisedGroupSubmissions(ctx context.Context, teacher user.User, groupParam string) ([]Submission, error) {
	grp, err := svc.supervisedGroup(ctx, teacher, groupParam)
	if err != nil {
		return nil, err
	}
	return svc.groupSubmissions(ctx, grp)
}

func (svc *Service) groupSubmissions(ctx context.Context, grp Group) ([]Submission, error) {
	subs, err := svc.subs.FilterSubmissions(ctx, SubmissionFilter{GroupID: grp.ID})
	if err != nil {
		return nil, errors.Wrap(err, "filtering group submissions")
	}
	return latestPerStudent(subs), nil
}

// GroupMarks lists every member of the supervised group with the teacher's mark, if any.
func (svc *Service) GroupMarks(ctx context.Context, teacher user.User, groupParam string) (MarksView, error) {
	grp, err := svc.supervisedGroup(ctx, teacher, groupParam)
	if err != nil {
		return MarksView{}, err
	}
	view, err := svc.View(ctx, grp)
	if err != nil {
		return MarksView{}, err
	}

	marks, err := svc.marks.FilterStudentMarks(ctx, grp.ID, teacher.ID)
	if err != nil {
		return MarksView{}, errors.Wrap(err, "filtering student marks")
	}
	byStudent := make(map[string]float64, len(marks))
	for _, m := range marks {
		byStudent[m.StudentID] = m.Marks
	}

	res := MarksView{Group: view, Students: make([]MemberMark, 0, len(view.MemberDetails))}
	for _, s := range view.MemberDetails {
		mm := MemberMark{Student: s}
		if m, ok := byStudent[s.ID]; ok {
			mm.Marks = &m
		}
		res.Students = append(res.Students, mm)
	}

	gm, found, err := svc.marks.GetGroupMark(ctx, grp.ID, teacher.ID)
	if err != nil {
		return MarksView{}, errors.Wrap(err, "finding group mark")
	}
	if found {
		res.GroupMark = &gm
	}
	return res, nil
}

func validMarks(marks float64) bool { return marks >= 0 && marks <= 100 }

// UpsertStudentMark sets the teacher's mark for a member of the supervised group.
func (svc *Service) UpsertStudentMark(ctx context.Context, teacher user.User, groupParam, studentID string, marks float64) (StudentMark, error) {
	if !validMarks(marks) {
		return StudentMark{}, errInvalidMarks
	}
	grp, err := svc.supervisedGroup(ctx, teacher, groupParam)
	if err != nil {
		return StudentMark{}, err
	}
	if !grp.HasMemberID(studentID) {
		return StudentMark{}, ErrNotMember
	}
	now := time.Now().UTC()
	mark, err := svc.marks.UpsertStudentMark(ctx, StudentMark{
		GroupID:   grp.ID,
		StudentID: studentID,
		TeacherID: teacher.ID,
		Marks:     marks,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return StudentMark{}, errors.Wrap(err, "saving student mark")
	}
	return mark, nil
}

// UpsertGroupMark sets the teacher's mark for the supervised group as a whole.
func (svc *Service) UpsertGroupMark(ctx context.Context, teacher user.User, groupParam string, marks float64, remarks string) (GroupMark, error) {
	if !validMarks(marks) {
		return GroupMark{}, errInvalidMarks
	}
	grp, err := svc.supervisedGroup(ctx, teacher, groupParam)
	if err != nil {
		return GroupMark{}, err
	}
	now := time.Now().UTC()
	mark, err := svc.marks.UpsertGroupMark(ctx, GroupMark{
		GroupID:   grp.ID,
		TeacherID: teacher.ID,
		Marks:     marks,
		Remarks:   core.CleanString(remarks),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return GroupMark{}, errors.Wrap(err, "saving group mark")
	}
	return mark, nil
}

// Admin

func (svc *Service) ListGroups(ctx context.Context) ([]GroupView, error) {
	return svc.listGroups(ctx, QueryFilter{})
}

func (svc *Service) ListFlaggedGroups(ctx context.Context) ([]GroupView, error) {
	return svc.listGroups(ctx, QueryFilter{FlaggedOnly: true})
}

func (svc *Service) listGroups(ctx context.Context, filter QueryFilter) ([]GroupView, error) {
	grps, err := svc.groups.FilterGroups(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "filtering groups")
	}
	return svc.populate(ctx, grps...)
}

// GroupSubmissions returns the latest submission of every member of the group.
func (svc *Service) GroupSubmissions(ctx context.Context, groupParam string) ([]Submission, error) {
	grp, err := svc.resolveGroup(ctx, groupParam)
	if err != nil {
		return nil, err
	}
	return svc.groupSubmissions(ctx, grp)
}

// AllSubmissions returns the latest real submission of every student, orphans included, newest first.
func (svc *Service) AllSubmissions(ctx context.Context) ([]Submission, error) {
	subs, err := svc.subs.FilterSubmissions(ctx, SubmissionFilter{RealOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "filtering submissions")
	}
	return latestPerStudent(subs), nil
}

// OrphanedSubmissions returns the submissions kept for admin review after a matching conflict.
func (svc *Service) OrphanedSubmissions(ctx context.Context) ([]Submission, error) {
	subs, err := svc.subs.FilterSubmissions(ctx, SubmissionFilter{OrphansOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "filtering orphaned submissions")
	}
	return subs, nil
}
