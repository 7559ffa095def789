// Package evaluator scores candidate schedules against a constraint set.
// Evaluate is a pure function: identical inputs produce bit-identical
// results regardless of the enumeration order of activities or slots.
package evaluator

import (
	"github.com/noah-isme/uni-timetable-api/internal/domain"
)

// Result breaks an evaluation into hard-violation counts per category, a
// normalized soft score, and the unassigned-activity metric. Unassigned
// activities are never converted into hard violations so partial solutions
// stay comparable.
type Result struct {
	RoomConflicts         int     `json:"room_conflicts"`
	TeacherConflicts      int     `json:"teacher_conflicts"`
	StudentConflicts      int     `json:"student_conflicts"`
	CapacityViolations    int     `json:"capacity_violations"`
	IntervalViolations    int     `json:"interval_violations"`
	DistributionConflicts int     `json:"distribution_conflicts"`
	Unassigned            int     `json:"unassigned"`
	SoftScore             float64 `json:"soft_score"`
}

// HardViolations is the total across all hard categories.
func (r Result) HardViolations() int {
	return r.RoomConflicts + r.TeacherConflicts + r.StudentConflicts +
		r.CapacityViolations + r.IntervalViolations + r.DistributionConflicts
}

// Compare orders results lexicographically: fewer hard violations always
// outranks any soft-score difference; ties break on soft score descending,
// then on fewer unassigned activities. Returns <0 when a is better.
func Compare(a, b Result) int {
	if a.HardViolations() != b.HardViolations() {
		if a.HardViolations() < b.HardViolations() {
			return -1
		}
		return 1
	}
	if a.SoftScore != b.SoftScore {
		if a.SoftScore > b.SoftScore {
			return -1
		}
		return 1
	}
	if a.Unassigned != b.Unassigned {
		if a.Unassigned < b.Unassigned {
			return -1
		}
		return 1
	}
	return 0
}

type cellKey struct {
	slot domain.TimeSlot
	id   string
}

// Evaluate scores the schedule against the dataset's constraints. It
// iterates activities in sorted id order and aggregates symmetric counts,
// so the outcome is independent of input ordering.
func Evaluate(d *domain.Dataset, s *domain.CandidateSchedule) Result {
	var res Result

	roomUse := make(map[cellKey]int)
	teacherUse := make(map[cellKey]int)
	groupUse := make(map[cellKey]int)

	ids := d.SortedActivityIDs()
	for _, id := range ids {
		activity, _ := d.Activity(id)
		placement, ok := s.Placement(id)
		if !ok {
			res.Unassigned++
			continue
		}

		space, spaceKnown := d.Space(placement.SpaceID)
		if spaceKnown && space.Capacity < d.Enrollment(activity) {
			res.CapacityViolations++
		}

		for _, slot := range placement.Slots(activity.Duration) {
			if slot.Period >= len(d.Calendar.Periods) || d.Calendar.Periods[slot.Period].IsInterval {
				res.IntervalViolations++
				continue
			}
			roomUse[cellKey{slot, placement.SpaceID}]++
			for _, tid := range activity.TeacherIDs {
				teacherUse[cellKey{slot, tid}]++
			}
			for _, gid := range activity.GroupIDs {
				groupUse[cellKey{slot, gid}]++
			}
		}
	}

	for _, n := range roomUse {
		if n > 1 {
			res.RoomConflicts += n - 1
		}
	}
	for _, n := range teacherUse {
		if n > 1 {
			res.TeacherConflicts += n - 1
		}
	}
	for _, n := range groupUse {
		if n > 1 {
			res.StudentConflicts += n - 1
		}
	}

	res.DistributionConflicts = distributionConflicts(d, s)
	res.SoftScore = softScore(d, s)
	return res
}

// distributionConflicts counts min-gap breaches between sessions of the
// same subject. Days are compared pairwise so the count does not depend on
// assignment order.
func distributionConflicts(d *domain.Dataset, s *domain.CandidateSchedule) int {
	conflicts := 0
	for _, c := range d.Constraints {
		if c.Kind != domain.ConstraintHard || c.Type != domain.ConstraintMinGap {
			continue
		}
		for _, id := range d.SortedActivityIDs() {
			if !c.AppliesTo(id) {
				continue
			}
			activity, _ := d.Activity(id)
			placement, ok := s.Placement(id)
			if !ok {
				continue
			}
			for _, otherID := range d.SortedActivityIDs() {
				if otherID <= id || !c.AppliesTo(otherID) {
					continue
				}
				other, _ := d.Activity(otherID)
				if other.Subject != activity.Subject {
					continue
				}
				otherPlacement, ok := s.Placement(otherID)
				if !ok {
					continue
				}
				gap := placement.Day - otherPlacement.Day
				if gap < 0 {
					gap = -gap
				}
				if gap < c.Settings.MinGapDays {
					conflicts++
				}
			}
		}
	}
	return conflicts
}

// softScore is the weighted share of satisfied soft preferences in [0,1].
// Every (constraint, scoped activity) pair contributes its weight to the
// denominator; unassigned activities count as unsatisfied.
func softScore(d *domain.Dataset, s *domain.CandidateSchedule) float64 {
	var total, satisfied float64
	for _, c := range d.Constraints {
		if c.Kind != domain.ConstraintSoft {
			continue
		}
		for _, id := range d.SortedActivityIDs() {
			if !c.AppliesTo(id) {
				continue
			}
			total += c.Weight
			placement, ok := s.Placement(id)
			if !ok {
				continue
			}
			if softSatisfied(c, placement) {
				satisfied += c.Weight
			}
		}
	}
	if total == 0 {
		return 1
	}
	return satisfied / total
}

func softSatisfied(c domain.Constraint, p domain.Placement) bool {
	switch c.Type {
	case domain.ConstraintPreferredSlot:
		return p.Day == c.Settings.Day && p.StartPeriod == c.Settings.Period
	case domain.ConstraintPreferredSpace:
		return p.SpaceID == c.Settings.SpaceID
	case domain.ConstraintMorningBias:
		return p.StartPeriod < c.Settings.Period
	default:
		return false
	}
}
