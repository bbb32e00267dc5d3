package user

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// TryAllocate claims one supervision slot from the first teacher in `candidateIDs` that has room.
// Each claim is a single conditional increment in the repository, so concurrent callers
// can never push a teacher beyond their capacity.
// Returns the claimed teacher's id and true, or "" and false when every candidate is full.
func (svc *Service) TryAllocate(ctx context.Context, candidateIDs ...string) (string, bool, error) {
	for _, id := range candidateIDs {
		if id == "" {
			continue
		}
		ok, err := svc.repo.IncrementAssignedCount(ctx, id, true)
		if err != nil {
			return "", false, errors.Wrapf(err, "claiming slot from teacher %s", id)
		}
		if ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

// ForceAllocate claims a slot from the teacher regardless of their capacity.
// It still fails with ErrTeacherNotFound when `teacherID` is not a Teacher.
func (svc *Service) ForceAllocate(ctx context.Context, teacherID string) error {
	ok, err := svc.repo.IncrementAssignedCount(ctx, teacherID, false)
	if err != nil {
		return errors.Wrapf(err, "force claiming slot from teacher %s", teacherID)
	}
	if !ok {
		return ErrTeacherNotFound
	}
	return nil
}

// Release gives back one slot to the teacher. The count never goes below 0.
// Releasing a slot of a teacher that no longer exists is a no-op.
func (svc *Service) Release(ctx context.Context, teacherID string) error {
	if teacherID == "" {
		return nil
	}
	if err := svc.repo.DecrementAssignedCount(ctx, teacherID); err != nil {
		return errors.Wrapf(err, "releasing slot of teacher %s", teacherID)
	}
	return nil
}

// CountDrift reports a teacher whose stored assigned groups count differs from
// the number of groups they actually supervise.
type CountDrift struct {
	Teacher  Summary `json:"teacher"`
	Stored   int     `json:"stored"`
	Actual   int     `json:"actual"`
	Capacity int     `json:"capacity"`
}

// ReconcileCounts compares every teacher's stored count with `actual` (teacher id -> supervised groups).
// With apply, drifted counts are overwritten with the actual value.
func (svc *Service) ReconcileCounts(ctx context.Context, actual map[string]int, apply bool) ([]CountDrift, error) {
	teachers, err := svc.repo.FilterUsers(ctx, QueryFilter{Role: RoleTeacher})
	if err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}

	var drifts []CountDrift
	for _, t := range teachers {
		n := actual[t.ID]
		if n == t.AssignedGroupsCount {
			continue
		}
		drifts = append(drifts, CountDrift{Teacher: t.Summary(), Stored: t.AssignedGroupsCount, Actual: n, Capacity: t.TeacherCapacity})
		if apply {
			if err = svc.repo.SetAssignedCount(ctx, t.ID, n); err != nil {
				return drifts, errors.Wrapf(err, "setting count of teacher %s", t.ID)
			}
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Teacher.RollNumber < drifts[j].Teacher.RollNumber })

	if len(drifts) > 0 {
		svc.logger.Warn("assigned groups count drift", map[string]interface{}{"teachers": len(drifts), "applied": apply})
	}
	return drifts, nil
}
