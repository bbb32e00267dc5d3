package group

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
)

type Status string

// Statuses
const (
	StatusPending   Status = "Pending"
	StatusAllocated Status = "Allocated"
)

// Flag reasons
const (
	ReasonNoCapacity        = "No preferred teacher had available capacity."
	ReasonSupervisorReset   = "Supervisor reset by admin. Reassign required."
	ReasonSupervisorRemoved = "Supervisor removed. Reassign required."
)

var errInvalidState = errors.New("invalid group state")

// State is the allocation state of a Group. It is one of:
//   - Pending(reason): no supervisor, flagged for admin iff reason is set;
//   - Allocated(supervisor): supervised, never flagged.
type State struct {
	status     Status
	supervisor string
	reason     string
}

func Pending(reason string) State {
	return State{status: StatusPending, reason: reason}
}

func Allocated(supervisorID string) State {
	return State{status: StatusAllocated, supervisor: supervisorID}
}

// RestoreState rebuilds a State read back from a store, rejecting impossible combinations.
func RestoreState(status Status, supervisorID string, flagged bool, reason string) (State, error) {
	switch status {
	case StatusAllocated:
		if supervisorID == "" || flagged {
			return State{}, errors.Wrapf(errInvalidState, "allocated (supervisor=%q, flagged=%v)", supervisorID, flagged)
		}
		return Allocated(supervisorID), nil
	case StatusPending:
		if supervisorID != "" {
			return State{}, errors.Wrapf(errInvalidState, "pending with supervisor %q", supervisorID)
		}
		if flagged && reason == "" {
			reason = "Flagged for admin review."
		} else if !flagged {
			reason = ""
		}
		return Pending(reason), nil
	default:
		return State{}, errors.Wrapf(errInvalidState, "unknown status %q", status)
	}
}

func (s State) Status() Status { return s.status }
func (s State) Supervisor() string { return s.supervisor }
func (s State) Flagged() bool { return s.status == StatusPending && s.reason != "" }
func (s State) FlagReason() string { return s.reason }
func (s State) IsAllocated() bool { return s.status == StatusAllocated }
func (s State) Snapshot() Snapshot { return Snapshot{AssignedSupervisor: s.supervisor, Status: s.status, FlaggedForAdmin: s.Flagged()} }
func (s State) IsZero() bool { return s.status == "" }

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Status:             s.status,
		AssignedSupervisor: s.supervisor,
		FlaggedForAdmin:    s.Flagged(),
		FlagReason:         s.reason,
	})
}

type stateJSON struct {
	Status             Status `json:"status"`
	AssignedSupervisor string `json:"assigned_supervisor,omitempty"`
	FlaggedForAdmin    bool   `json:"flagged_for_admin"`
	FlagReason         string `json:"flag_reason,omitempty"`
}

// Snapshot captures the supervisor-related state of a group for audit logs.
type Snapshot struct {
	AssignedSupervisor string `json:"assigned_supervisor,omitempty"`
	Status             Status `json:"status"`
	FlaggedForAdmin    bool   `json:"flagged_for_admin"`
}

// Project is the project metadata locked onto a group by its founding submission.
type Project struct {
	Title            string `json:"title"`
	Domain           string `json:"domain"`
	DomainOther      string `json:"domain_other,omitempty"`
	TechStack        string `json:"tech_stack"`
	Description      string `json:"description"`
	ExpectedOutcomes string `json:"expected_outcomes"`
	SDGMapping       string `json:"sdg_mapping"`
}

type Group struct {
	ID                         string    `json:"id"`
	GroupID                    string    `json:"group_id"`
	LeaderID                   string    `json:"leader_id,omitempty"`
	Members                    []string  `json:"members"`
	MemberRollNumbers          []string  `json:"member_roll_numbers"`
	ExpectedPartnerRollNumbers []string  `json:"expected_partner_roll_numbers"`
	Project                    Project   `json:"project"`
	TeacherPreferences         []string  `json:"teacher_preferences"`
	State                      State     `json:"state"`
	CreatedAt                  time.Time `json:"created_at"` // UTC
	UpdatedAt                  time.Time `json:"updated_at"` // UTC
}

// NewGroupID generates a human readable group identifier: "G-" followed by 8 upper-case hex chars.
func NewGroupID() string {
	id := uuid.New() // random bytes; version bits live past the first 4 bytes
	return fmt.Sprintf("G-%X", id[:4])
}

// newGroup founds a group led by the submitting student.
func newGroup(leaderID, leaderRoll string, partners []string, project Project, prefs []string) Group {
	now := time.Now().UTC()
	expected := make([]string, 0, len(partners))
	for _, r := range partners {
		if r != leaderRoll && !core.ContainsString(expected, r) {
			expected = append(expected, r)
		}
	}
	return Group{
		ID:                         uuid.NewString(),
		GroupID:                    NewGroupID(),
		LeaderID:                   leaderID,
		Members:                    []string{leaderID},
		MemberRollNumbers:          []string{leaderRoll},
		ExpectedPartnerRollNumbers: expected,
		Project:                    project,
		TeacherPreferences:         append([]string(nil), prefs...),
		State:                      Pending(""),
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

func (g *Group) Supervisor() string { return g.State.Supervisor() }

// Allocate assigns the supervisor, whose slot must already have been claimed.
func (g *Group) Allocate(supervisorID string) {
	g.State = Allocated(supervisorID)
	g.touch()
}

// Unassign drops the supervisor and flags the group with `reason`.
// It returns the former supervisor, whose slot the caller is responsible for.
func (g *Group) Unassign(reason string) string {
	old := g.State.Supervisor()
	g.State = Pending(reason)
	g.touch()
	return old
}

// HasMember reports whether the roll number is a confirmed member.
func (g *Group) HasMember(roll string) bool {
	return core.ContainsString(g.MemberRollNumbers, roll)
}

// HasMemberID reports whether the user id is a confirmed member.
func (g *Group) HasMemberID(id string) bool {
	return core.ContainsString(g.Members, id)
}

// MatchingKey returns every roll number the group claims: confirmed members and expected partners.
func (g *Group) MatchingKey() []string {
	return core.UniqueRolls(append(append([]string(nil), g.MemberRollNumbers...), g.ExpectedPartnerRollNumbers...)...)
}

// Join confirms the student as a member and records their newly named teammates as expected partners.
// It is idempotent. Returns whether the group changed.
func (g *Group) Join(studentID, roll string, partners []string) bool {
	var changed bool
	if !g.HasMemberID(studentID) {
		g.Members = append(g.Members, studentID)
		changed = true
	}
	if !g.HasMember(roll) {
		g.MemberRollNumbers = append(g.MemberRollNumbers, roll)
		changed = true
	}
	if core.ContainsString(g.ExpectedPartnerRollNumbers, roll) {
		g.ExpectedPartnerRollNumbers = core.RemoveString(g.ExpectedPartnerRollNumbers, roll)
		changed = true
	}
	for _, r := range partners {
		if !g.HasMember(r) && !core.ContainsString(g.ExpectedPartnerRollNumbers, r) {
			g.ExpectedPartnerRollNumbers = append(g.ExpectedPartnerRollNumbers, r)
			changed = true
		}
	}
	if changed {
		g.touch()
	}
	return changed
}

// RemoveMember drops the student from the confirmed membership.
// A removed leader is replaced by the first remaining member, if any.
func (g *Group) RemoveMember(studentID, roll string) {
	g.Members = core.RemoveString(g.Members, studentID)
	g.MemberRollNumbers = core.RemoveString(g.MemberRollNumbers, roll)
	if g.LeaderID == studentID {
		g.LeaderID = ""
		if len(g.Members) > 0 {
			g.LeaderID = g.Members[0]
		}
	}
	g.touch()
}

// RenameRoll replaces a roll number in both the member and the expected partner lists.
func (g *Group) RenameRoll(oldRoll, newRoll string) bool {
	var changed bool
	for i, r := range g.MemberRollNumbers {
		if r == oldRoll {
			g.MemberRollNumbers[i] = newRoll
			changed = true
		}
	}
	for i, r := range g.ExpectedPartnerRollNumbers {
		if r == oldRoll {
			g.ExpectedPartnerRollNumbers[i] = newRoll
			changed = true
		}
	}
	if changed {
		g.touch()
	}
	return changed
}

func (g *Group) IsEmpty() bool { return len(g.Members) == 0 }

func (g *Group) touch() { g.UpdatedAt = time.Now().UTC() }

// GetFilter selects a single Group; the first non-empty field wins.
type GetFilter struct {
	ID      string
	GroupID string
}

// QueryFilter applies AND on its set fields. Results are ordered by creation date, oldest first.
type QueryFilter struct {
	// AnyRoll matches groups whose members or expected partners include any of the roll numbers.
	AnyRoll      []string
	MemberRoll   string
	SupervisorID string
	PreferenceID string
	FlaggedOnly  bool
}

// OverrideLog is an immutable audit entry of an admin supervisor override.
type OverrideLog struct {
	ID        string    `json:"id"`
	AdminID   string    `json:"admin_id"`
	GroupID   string    `json:"group_id"`
	Action    string    `json:"action"`
	From      Snapshot  `json:"from"`
	To        Snapshot  `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

const ActionOverrideSupervisor = "override-supervisor"

// StudentMark is a teacher's private score for one student of a group.
type StudentMark struct {
	GroupID   string    `json:"group_id"`
	StudentID string    `json:"student_id"`
	TeacherID string    `json:"teacher_id"`
	Marks     float64   `json:"marks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupMark is a teacher's private score for a whole group.
type GroupMark struct {
	GroupID   string    `json:"group_id"`
	TeacherID string    `json:"teacher_id"`
	Marks     float64   `json:"marks"`
	Remarks   string    `json:"remarks,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
