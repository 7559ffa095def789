package strategy

import (
	"sort"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
)

// feasiblePairs enumerates every (slot block, space) placement for the
// activity that respects the calendar, capacity, and required attributes.
// The order is deterministic: days ascending, block starts ascending,
// spaces by id.
func feasiblePairs(d *domain.Dataset, a domain.Activity) []domain.Placement {
	starts := d.Calendar.BlockStarts(a.Duration)
	spaces := make([]domain.Space, len(d.Spaces))
	copy(spaces, d.Spaces)
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].ID < spaces[j].ID })

	enrollment := d.Enrollment(a)
	var pairs []domain.Placement
	for day := range d.Calendar.Days {
		for _, start := range starts {
			for _, space := range spaces {
				if space.Capacity < enrollment {
					continue
				}
				if !space.HasAttributes(a.RequiredAttributes) {
					continue
				}
				pairs = append(pairs, domain.Placement{Day: day, StartPeriod: start, SpaceID: space.ID})
			}
		}
	}
	return pairs
}

// pairTable precomputes feasible placements per activity id once per run.
type pairTable struct {
	pairs map[string][]domain.Placement
}

func newPairTable(d *domain.Dataset) *pairTable {
	t := &pairTable{pairs: make(map[string][]domain.Placement, len(d.Activities))}
	for _, a := range d.Activities {
		t.pairs[a.ID] = feasiblePairs(d, a)
	}
	return t
}

func (t *pairTable) For(activityID string) []domain.Placement {
	return t.pairs[activityID]
}

type cell struct {
	slot domain.TimeSlot
	id   string
}

// occupancy tracks room, teacher, and group usage per slot for incremental
// conflict checks during construction and repair. Each run owns its own
// occupancy; nothing here is shared between runs.
type occupancy struct {
	room    map[cell]int
	teacher map[cell]int
	group   map[cell]int
}

func newOccupancy() *occupancy {
	return &occupancy{
		room:    make(map[cell]int),
		teacher: make(map[cell]int),
		group:   make(map[cell]int),
	}
}

// conflicts counts the overlaps that placing the activity would introduce
// against current occupancy.
func (o *occupancy) conflicts(a domain.Activity, p domain.Placement) int {
	n := 0
	for _, slot := range p.Slots(a.Duration) {
		if o.room[cell{slot, p.SpaceID}] > 0 {
			n++
		}
		for _, tid := range a.TeacherIDs {
			if o.teacher[cell{slot, tid}] > 0 {
				n++
			}
		}
		for _, gid := range a.GroupIDs {
			if o.group[cell{slot, gid}] > 0 {
				n++
			}
		}
	}
	return n
}

func (o *occupancy) place(a domain.Activity, p domain.Placement) {
	for _, slot := range p.Slots(a.Duration) {
		o.room[cell{slot, p.SpaceID}]++
		for _, tid := range a.TeacherIDs {
			o.teacher[cell{slot, tid}]++
		}
		for _, gid := range a.GroupIDs {
			o.group[cell{slot, gid}]++
		}
	}
}

func (o *occupancy) remove(a domain.Activity, p domain.Placement) {
	for _, slot := range p.Slots(a.Duration) {
		o.room[cell{slot, p.SpaceID}]--
		for _, tid := range a.TeacherIDs {
			o.teacher[cell{slot, tid}]--
		}
		for _, gid := range a.GroupIDs {
			o.group[cell{slot, gid}]--
		}
	}
}

// resolveOverlaps enforces the no-double-booking invariant on a final
// candidate. Activities are visited in lexicographic id order; any
// placement that overlaps an already kept one on a space, teacher, or
// student group is dropped to the unassigned metric. When demand exceeds
// capacity the surplus shows up as unassigned activities rather than
// conflicting ones.
func resolveOverlaps(d *domain.Dataset, schedule *domain.CandidateSchedule) {
	occ := newOccupancy()
	for _, id := range schedule.AssignedIDs() {
		activity, ok := d.Activity(id)
		if !ok {
			schedule.Unassign(id)
			continue
		}
		placement, _ := schedule.Placement(id)
		if occ.conflicts(activity, placement) > 0 {
			schedule.Unassign(id)
			continue
		}
		occ.place(activity, placement)
	}
}

// conflictFreeCount is the number of feasible pairs that would introduce
// no new overlap. Used for most-constrained-first ordering.
func (o *occupancy) conflictFreeCount(a domain.Activity, pairs []domain.Placement) int {
	n := 0
	for _, p := range pairs {
		if o.conflicts(a, p) == 0 {
			n++
		}
	}
	return n
}
