package domain

import "sort"

// Placement anchors one activity at a space and a contiguous block of
// periods starting at (Day, StartPeriod). The block length equals the
// activity's duration, so contiguity holds by construction.
type Placement struct {
	Day         int    `json:"day"`
	StartPeriod int    `json:"start_period"`
	SpaceID     string `json:"space_id"`
}

// Slots expands the placement into its covered time slots.
func (p Placement) Slots(duration int) []TimeSlot {
	slots := make([]TimeSlot, 0, duration)
	for i := 0; i < duration; i++ {
		slots = append(slots, TimeSlot{Day: p.Day, Period: p.StartPeriod + i})
	}
	return slots
}

// CandidateSchedule is a partial assignment of activities to placements.
// Unassigned activities are tracked explicitly, never dropped. A candidate
// is owned exclusively by the run that produced it.
type CandidateSchedule struct {
	placements map[string]Placement
}

// NewCandidateSchedule returns an empty candidate.
func NewCandidateSchedule() *CandidateSchedule {
	return &CandidateSchedule{placements: make(map[string]Placement)}
}

// Assign places or replaces the activity's placement.
func (s *CandidateSchedule) Assign(activityID string, p Placement) {
	s.placements[activityID] = p
}

// Unassign removes the activity's placement if present.
func (s *CandidateSchedule) Unassign(activityID string) {
	delete(s.placements, activityID)
}

// Placement looks up the activity's placement.
func (s *CandidateSchedule) Placement(activityID string) (Placement, bool) {
	p, ok := s.placements[activityID]
	return p, ok
}

// Len is the number of assigned activities.
func (s *CandidateSchedule) Len() int {
	return len(s.placements)
}

// AssignedIDs returns the assigned activity ids in lexicographic order.
func (s *CandidateSchedule) AssignedIDs() []string {
	ids := make([]string, 0, len(s.placements))
	for id := range s.placements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnassignedIDs lists dataset activities without a placement, in
// lexicographic order.
func (s *CandidateSchedule) UnassignedIDs(d *Dataset) []string {
	var ids []string
	for _, id := range d.SortedActivityIDs() {
		if _, ok := s.placements[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns an independent copy so concurrent runs never share
// mutable search state.
func (s *CandidateSchedule) Clone() *CandidateSchedule {
	clone := &CandidateSchedule{placements: make(map[string]Placement, len(s.placements))}
	for id, p := range s.placements {
		clone.placements[id] = p
	}
	return clone
}
