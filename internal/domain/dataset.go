package domain

import (
	"fmt"
	"sort"
)

// Dataset bundles the read-only reference data for one optimization run:
// the calendar plus id-indexed arenas of activities, groups, spaces, and
// constraints. Cross references between entities resolve through the
// lookup maps, never through embedded pointers.
type Dataset struct {
	Calendar    Calendar
	Activities  []Activity
	Groups      []StudentGroup
	Spaces      []Space
	Constraints []Constraint

	activityByID map[string]int
	groupByID    map[string]int
	spaceByID    map[string]int
}

// NewDataset builds the lookup indexes over the provided arenas.
func NewDataset(cal Calendar, activities []Activity, groups []StudentGroup, spaces []Space, constraints []Constraint) *Dataset {
	d := &Dataset{
		Calendar:     cal,
		Activities:   activities,
		Groups:       groups,
		Spaces:       spaces,
		Constraints:  constraints,
		activityByID: make(map[string]int, len(activities)),
		groupByID:    make(map[string]int, len(groups)),
		spaceByID:    make(map[string]int, len(spaces)),
	}
	for i, a := range activities {
		d.activityByID[a.ID] = i
	}
	for i, g := range groups {
		d.groupByID[g.ID] = i
	}
	for i, s := range spaces {
		d.spaceByID[s.ID] = i
	}
	return d
}

// Activity resolves an activity by id.
func (d *Dataset) Activity(id string) (Activity, bool) {
	i, ok := d.activityByID[id]
	if !ok {
		return Activity{}, false
	}
	return d.Activities[i], true
}

// Space resolves a space by id.
func (d *Dataset) Space(id string) (Space, bool) {
	i, ok := d.spaceByID[id]
	if !ok {
		return Space{}, false
	}
	return d.Spaces[i], true
}

// GroupSize returns the cohort size for a group id, zero when unknown.
func (d *Dataset) GroupSize(id string) int {
	i, ok := d.groupByID[id]
	if !ok {
		return 0
	}
	return d.Groups[i].Size
}

// Enrollment is the combined size of every group attending the activity.
func (d *Dataset) Enrollment(a Activity) int {
	total := 0
	for _, gid := range a.GroupIDs {
		total += d.GroupSize(gid)
	}
	return total
}

// SortedActivityIDs returns all activity ids in lexicographic order. The
// evaluator and strategies iterate this to stay independent of input order.
func (d *Dataset) SortedActivityIDs() []string {
	ids := make([]string, 0, len(d.Activities))
	for _, a := range d.Activities {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids
}

// Validate rejects datasets no strategy could work with. Infeasible demand
// is not an error; structural impossibilities and malformed constraint
// settings are.
func (d *Dataset) Validate() error {
	if len(d.Calendar.Days) == 0 {
		return fmt.Errorf("calendar has no operating days")
	}
	if len(d.Calendar.TeachingPeriods()) == 0 {
		return fmt.Errorf("calendar has no teaching periods")
	}
	if len(d.Spaces) == 0 {
		return fmt.Errorf("dataset has no spaces")
	}
	longest := d.Calendar.LongestTeachingBlock()
	seen := make(map[string]bool, len(d.Activities))
	for _, a := range d.Activities {
		if a.ID == "" {
			return fmt.Errorf("activity with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate activity id %s", a.ID)
		}
		seen[a.ID] = true
		if a.Duration <= 0 {
			return fmt.Errorf("activity %s: duration must be positive", a.ID)
		}
		if a.Duration > longest {
			return fmt.Errorf("activity %s: duration %d exceeds longest teaching block %d", a.ID, a.Duration, longest)
		}
		for _, gid := range a.GroupIDs {
			if _, ok := d.groupByID[gid]; !ok {
				return fmt.Errorf("activity %s: unknown group %s", a.ID, gid)
			}
		}
	}
	for _, c := range d.Constraints {
		if err := c.Validate(d.Calendar); err != nil {
			return err
		}
		for _, id := range c.ActivityIDs {
			if _, ok := d.activityByID[id]; !ok {
				return fmt.Errorf("constraint %s: unknown activity %s", c.ID, id)
			}
		}
	}
	return nil
}
