package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalendar() Calendar {
	return Calendar{
		Days: []Day{
			{Code: "MON", Name: "Monday", Order: 0},
			{Code: "TUE", Name: "Tuesday", Order: 1},
			{Code: "WED", Name: "Wednesday", Order: 2},
		},
		Periods: []Period{
			{Code: "P1", Order: 0},
			{Code: "P2", Order: 1},
			{Code: "BRK", Order: 2, IsInterval: true},
			{Code: "P3", Order: 3},
			{Code: "P4", Order: 4},
			{Code: "P5", Order: 5},
		},
	}
}

func TestCalendarTeachingPeriods(t *testing.T) {
	cal := testCalendar()
	assert.Equal(t, []int{0, 1, 3, 4, 5}, cal.TeachingPeriods())
	assert.Equal(t, 15, cal.TeachingSlotCount())
	assert.Equal(t, 3, cal.LongestTeachingBlock())
}

func TestCalendarBlockStarts(t *testing.T) {
	cal := testCalendar()

	assert.Equal(t, []int{0, 1, 3, 4, 5}, cal.BlockStarts(1))
	assert.Equal(t, []int{0, 3, 4}, cal.BlockStarts(2))
	assert.Equal(t, []int{3}, cal.BlockStarts(3))
	assert.Empty(t, cal.BlockStarts(4))
	assert.Nil(t, cal.BlockStarts(0))
}

func TestTimeSlotBefore(t *testing.T) {
	assert.True(t, TimeSlot{Day: 0, Period: 5}.Before(TimeSlot{Day: 1, Period: 0}))
	assert.True(t, TimeSlot{Day: 1, Period: 0}.Before(TimeSlot{Day: 1, Period: 1}))
	assert.False(t, TimeSlot{Day: 1, Period: 1}.Before(TimeSlot{Day: 1, Period: 1}))
}

func TestPlacementSlotsAreContiguous(t *testing.T) {
	p := Placement{Day: 2, StartPeriod: 3, SpaceID: "room-a"}
	slots := p.Slots(3)
	require.Len(t, slots, 3)
	for i, slot := range slots {
		assert.Equal(t, 2, slot.Day)
		assert.Equal(t, 3+i, slot.Period)
	}
}

func TestCandidateScheduleAssignTracking(t *testing.T) {
	d := NewDataset(testCalendar(),
		[]Activity{
			{ID: "act-b", Subject: "math", Duration: 1},
			{ID: "act-a", Subject: "math", Duration: 1},
		},
		nil,
		[]Space{{ID: "room-a", Capacity: 30}},
		nil,
	)

	s := NewCandidateSchedule()
	assert.Equal(t, []string{"act-a", "act-b"}, s.UnassignedIDs(d))

	s.Assign("act-a", Placement{Day: 0, StartPeriod: 0, SpaceID: "room-a"})
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"act-b"}, s.UnassignedIDs(d))

	clone := s.Clone()
	clone.Assign("act-b", Placement{Day: 1, StartPeriod: 0, SpaceID: "room-a"})
	assert.Equal(t, 1, s.Len(), "clone mutation must not leak into the original")
	assert.Equal(t, 2, clone.Len())

	s.Unassign("act-a")
	_, ok := s.Placement("act-a")
	assert.False(t, ok)
}

func TestDatasetValidate(t *testing.T) {
	cal := testCalendar()
	groups := []StudentGroup{{ID: "grp-1", Size: 25}}
	spaces := []Space{{ID: "room-a", Capacity: 30}}

	tests := []struct {
		name       string
		dataset    *Dataset
		wantErrSub string
	}{
		{
			name: "valid",
			dataset: NewDataset(cal,
				[]Activity{{ID: "act-1", Subject: "math", Duration: 2, GroupIDs: []string{"grp-1"}}},
				groups, spaces, nil),
		},
		{
			name:       "no spaces",
			dataset:    NewDataset(cal, nil, nil, nil, nil),
			wantErrSub: "no spaces",
		},
		{
			name: "no operating days",
			dataset: NewDataset(Calendar{Periods: cal.Periods},
				nil, nil, spaces, nil),
			wantErrSub: "no operating days",
		},
		{
			name: "duplicate activity id",
			dataset: NewDataset(cal,
				[]Activity{
					{ID: "act-1", Duration: 1},
					{ID: "act-1", Duration: 1},
				}, groups, spaces, nil),
			wantErrSub: "duplicate activity id",
		},
		{
			name: "duration exceeds longest block",
			dataset: NewDataset(cal,
				[]Activity{{ID: "act-1", Duration: 4}},
				groups, spaces, nil),
			wantErrSub: "exceeds longest teaching block",
		},
		{
			name: "unknown group reference",
			dataset: NewDataset(cal,
				[]Activity{{ID: "act-1", Duration: 1, GroupIDs: []string{"grp-missing"}}},
				groups, spaces, nil),
			wantErrSub: "unknown group",
		},
		{
			name: "constraint scopes unknown activity",
			dataset: NewDataset(cal,
				[]Activity{{ID: "act-1", Duration: 1}},
				groups, spaces,
				[]Constraint{{
					ID: "c1", Kind: ConstraintHard, Type: ConstraintMinGap,
					Settings:    ConstraintSettings{MinGapDays: 1},
					ActivityIDs: []string{"act-missing"},
				}}),
			wantErrSub: "unknown activity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dataset.Validate()
			if tt.wantErrSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrSub)
		})
	}
}

func TestConstraintValidate(t *testing.T) {
	cal := testCalendar()

	tests := []struct {
		name    string
		c       Constraint
		wantErr bool
	}{
		{
			name: "valid min gap",
			c: Constraint{ID: "c1", Kind: ConstraintHard, Type: ConstraintMinGap,
				Settings: ConstraintSettings{MinGapDays: 2}},
		},
		{
			name:    "min gap without days",
			c:       Constraint{ID: "c1", Kind: ConstraintHard, Type: ConstraintMinGap},
			wantErr: true,
		},
		{
			name: "soft constraint without weight",
			c: Constraint{ID: "c2", Kind: ConstraintSoft, Type: ConstraintPreferredSpace,
				Settings: ConstraintSettings{SpaceID: "room-a"}},
			wantErr: true,
		},
		{
			name: "preferred slot outside calendar",
			c: Constraint{ID: "c3", Kind: ConstraintSoft, Type: ConstraintPreferredSlot, Weight: 1,
				Settings: ConstraintSettings{Day: 9, Period: 0}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			c:       Constraint{ID: "c4", Kind: "fuzzy", Type: ConstraintMinGap, Settings: ConstraintSettings{MinGapDays: 1}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			c:       Constraint{ID: "c5", Kind: ConstraintHard, Type: "lunar_phase"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate(cal)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConstraintAppliesTo(t *testing.T) {
	global := Constraint{ID: "c1"}
	assert.True(t, global.AppliesTo("anything"))

	scoped := Constraint{ID: "c2", ActivityIDs: []string{"act-1", "act-2"}}
	assert.True(t, scoped.AppliesTo("act-2"))
	assert.False(t, scoped.AppliesTo("act-3"))
}

func TestSpaceHasAttributes(t *testing.T) {
	lab := Space{ID: "lab-1", Capacity: 20, Attributes: []string{"lab", "projector"}}
	assert.True(t, lab.HasAttributes(nil))
	assert.True(t, lab.HasAttributes([]string{"lab"}))
	assert.True(t, lab.HasAttributes([]string{"projector", "lab"}))
	assert.False(t, lab.HasAttributes([]string{"piano"}))
}

func TestDatasetEnrollment(t *testing.T) {
	d := NewDataset(testCalendar(),
		[]Activity{{ID: "act-1", Duration: 1, GroupIDs: []string{"grp-1", "grp-2"}}},
		[]StudentGroup{{ID: "grp-1", Size: 18}, {ID: "grp-2", Size: 12}},
		[]Space{{ID: "room-a", Capacity: 30}},
		nil,
	)
	a, ok := d.Activity("act-1")
	require.True(t, ok)
	assert.Equal(t, 30, d.Enrollment(a))
	assert.Equal(t, 0, d.GroupSize("grp-missing"))
}
