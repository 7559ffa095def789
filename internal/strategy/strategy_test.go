package strategy

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/evaluator"
)

func smallDataset() *domain.Dataset {
	cal := domain.Calendar{
		Days: []domain.Day{
			{Code: "MON", Order: 0},
			{Code: "TUE", Order: 1},
			{Code: "WED", Order: 2},
			{Code: "THU", Order: 3},
			{Code: "FRI", Order: 4},
		},
		Periods: []domain.Period{
			{Code: "P1", Order: 0},
			{Code: "P2", Order: 1},
			{Code: "BRK", Order: 2, IsInterval: true},
			{Code: "P3", Order: 3},
			{Code: "P4", Order: 4},
		},
	}
	return domain.NewDataset(cal,
		[]domain.Activity{
			{ID: "act-1", Subject: "math", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-1"}},
			{ID: "act-2", Subject: "math", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-1"}},
			{ID: "act-3", Subject: "physics", Duration: 2, TeacherIDs: []string{"t-2"}, GroupIDs: []string{"grp-1"}, RequiredAttributes: []string{"lab"}},
			{ID: "act-4", Subject: "history", Duration: 1, TeacherIDs: []string{"t-3"}, GroupIDs: []string{"grp-2"}},
		},
		[]domain.StudentGroup{
			{ID: "grp-1", Size: 22},
			{ID: "grp-2", Size: 18},
		},
		[]domain.Space{
			{ID: "room-a", Capacity: 30},
			{ID: "room-b", Capacity: 25},
			{ID: "lab-1", Capacity: 24, Attributes: []string{"lab"}},
		},
		[]domain.Constraint{
			{
				ID: "gap-math", Kind: domain.ConstraintHard, Type: domain.ConstraintMinGap,
				ActivityIDs: []string{"act-1", "act-2"},
				Settings:    domain.ConstraintSettings{MinGapDays: 1},
			},
			{
				ID: "morning", Kind: domain.ConstraintSoft, Type: domain.ConstraintMorningBias, Weight: 1,
				Settings: domain.ConstraintSettings{Period: 3},
			},
		},
	)
}

func discard(ProgressEvent) {}

func collect(events *[]ProgressEvent, mu *sync.Mutex) Emitter {
	return func(ev ProgressEvent) {
		mu.Lock()
		*events = append(*events, ev)
		mu.Unlock()
	}
}

func TestByName(t *testing.T) {
	for _, name := range Algorithms() {
		s, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, s.Name())
	}
	_, ok := ByName("gradient_descent")
	assert.False(t, ok)
}

func TestStrategiesSolveSmallDataset(t *testing.T) {
	d := smallDataset()
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			s, _ := ByName(name)
			res, err := s.Run(context.Background(), d, Params{Seed: 7}, discard)
			require.NoError(t, err)
			require.NotNil(t, res)
			require.NotNil(t, res.Schedule)

			assert.Equal(t, 0, res.Evaluation.Unassigned)
			assert.Equal(t, 0, res.Evaluation.HardViolations())

			// The reported evaluation matches a fresh scoring of the schedule.
			assert.Equal(t, res.Evaluation, evaluator.Evaluate(d, res.Schedule))
		})
	}
}

func TestConstraintOptimizerTightDataset(t *testing.T) {
	cal := domain.Calendar{
		Days:    []domain.Day{{Code: "MON", Order: 0}},
		Periods: []domain.Period{{Code: "P1", Order: 0}, {Code: "P2", Order: 1}},
	}
	// Three activities compete for two rooms across two slots. Tight but
	// solvable with zero hard violations.
	d := domain.NewDataset(cal,
		[]domain.Activity{
			{ID: "act-1", Subject: "math", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-1"}},
			{ID: "act-2", Subject: "physics", Duration: 1, TeacherIDs: []string{"t-2"}, GroupIDs: []string{"grp-2"}},
			{ID: "act-3", Subject: "history", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-2"}},
		},
		[]domain.StudentGroup{{ID: "grp-1", Size: 20}, {ID: "grp-2", Size: 20}},
		[]domain.Space{{ID: "room-a", Capacity: 30}, {ID: "room-b", Capacity: 30}},
		nil,
	)

	s := &ConstraintOptimizer{}
	res, err := s.Run(context.Background(), d, Params{Seed: 11}, discard)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluation.Unassigned)
	assert.Equal(t, 0, res.Evaluation.HardViolations())
}

func TestOversubscribedDatasetLeavesUnassigned(t *testing.T) {
	cal := domain.Calendar{
		Days:    []domain.Day{{Code: "MON", Order: 0}},
		Periods: []domain.Period{{Code: "P1", Order: 0}, {Code: "P2", Order: 1}},
	}
	activities := []domain.Activity{
		{ID: "act-1", Subject: "math", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-1"}},
		{ID: "act-2", Subject: "physics", Duration: 1, TeacherIDs: []string{"t-2"}, GroupIDs: []string{"grp-2"}},
		{ID: "act-3", Subject: "history", Duration: 1, TeacherIDs: []string{"t-3"}, GroupIDs: []string{"grp-3"}},
		{ID: "act-4", Subject: "biology", Duration: 1, TeacherIDs: []string{"t-4"}, GroupIDs: []string{"grp-4"}},
		{ID: "act-5", Subject: "art", Duration: 1, TeacherIDs: []string{"t-5"}, GroupIDs: []string{"grp-5"}},
	}
	groups := []domain.StudentGroup{
		{ID: "grp-1", Size: 10}, {ID: "grp-2", Size: 10}, {ID: "grp-3", Size: 10},
		{ID: "grp-4", Size: 10}, {ID: "grp-5", Size: 10},
	}
	// A single room and two teaching slots can host at most two of the
	// five activities.
	d := domain.NewDataset(cal, activities, groups,
		[]domain.Space{{ID: "room-a", Capacity: 30}}, nil)

	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			s, _ := ByName(name)
			res, err := s.Run(context.Background(), d, Params{Seed: 5}, discard)
			require.NoError(t, err)
			require.NotNil(t, res.Schedule)
			assert.GreaterOrEqual(t, res.Evaluation.Unassigned, 3)
			assert.Equal(t, 0, res.Evaluation.HardViolations())
		})
	}
}

func TestFeasiblePairsRespectAttributesAndCapacity(t *testing.T) {
	d := smallDataset()
	labActivity, _ := d.Activity("act-3")
	for _, p := range feasiblePairs(d, labActivity) {
		assert.Equal(t, "lab-1", p.SpaceID, "only the lab carries the lab attribute")
	}

	big, _ := d.Activity("act-1")
	big.GroupIDs = []string{"grp-1", "grp-2"}
	assert.Empty(t, feasiblePairs(d, big), "combined enrollment of 40 fits no room")
}

func TestGeneticSeedDeterminism(t *testing.T) {
	d := smallDataset()
	s := &GeneticSearch{}

	run := func() *Result {
		res, err := s.Run(context.Background(), d, Params{Seed: 42, Generations: 20}, discard)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.Evaluation, b.Evaluation)
	assert.Equal(t, a.Iterations, b.Iterations)
	require.Equal(t, a.Schedule.AssignedIDs(), b.Schedule.AssignedIDs())
	for _, id := range a.Schedule.AssignedIDs() {
		pa, _ := a.Schedule.Placement(id)
		pb, _ := b.Schedule.Placement(id)
		assert.Equal(t, pa, pb, "activity %s placed differently across identical seeds", id)
	}
}

func TestGeneticUnknownCrossover(t *testing.T) {
	s := &GeneticSearch{}
	_, err := s.Run(context.Background(), smallDataset(), Params{Crossover: "triple_point"}, discard)
	assert.Error(t, err)
}

func TestTabuRepairAcceptsNonImprovingMoves(t *testing.T) {
	cal := domain.Calendar{
		Days:    []domain.Day{{Code: "MON", Order: 0}},
		Periods: []domain.Period{{Code: "P1", Order: 0}, {Code: "P2", Order: 1}},
	}
	// Three activities share a teacher with only one room and two slots:
	// every move away from a conflict lands on an equally conflicted slot.
	d := domain.NewDataset(cal,
		[]domain.Activity{
			{ID: "act-1", Subject: "math", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-1"}},
			{ID: "act-2", Subject: "physics", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-2"}},
			{ID: "act-3", Subject: "history", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-3"}},
		},
		[]domain.StudentGroup{{ID: "grp-1", Size: 10}, {ID: "grp-2", Size: 10}, {ID: "grp-3", Size: 10}},
		[]domain.Space{{ID: "room-a", Capacity: 30}},
		nil,
	)
	pairs := newPairTable(d)
	schedule := domain.NewCandidateSchedule()
	schedule.Assign("act-1", domain.Placement{Day: 0, StartPeriod: 0, SpaceID: "room-a"})
	schedule.Assign("act-2", domain.Placement{Day: 0, StartPeriod: 0, SpaceID: "room-a"})
	schedule.Assign("act-3", domain.Placement{Day: 0, StartPeriod: 1, SpaceID: "room-a"})
	occ := newOccupancy()
	for _, id := range schedule.AssignedIDs() {
		a, _ := d.Activity(id)
		p, _ := schedule.Placement(id)
		occ.place(a, p)
	}

	c := &ConstraintOptimizer{}
	params := coDefaults(Params{RepairMode: RepairTabu})
	rng := rand.New(rand.NewSource(3))
	var tabu []tabuMove

	moved := c.repairStep(d, schedule, occ, pairs, rng, params, 0, &tabu)
	assert.True(t, moved, "tabu moves to the best admissible neighbor even without improvement")
	require.Len(t, tabu, 1)
	assert.True(t, isTabu(tabu, tabu[0].activityID, tabu[0].placement),
		"the vacated placement is forbidden for its tenure")

	res, err := c.Run(context.Background(), smallDataset(), Params{Seed: 2, RepairMode: RepairTabu}, discard)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluation.HardViolations())
}

func TestConstraintOptimizerUnknownRepairMode(t *testing.T) {
	s := &ConstraintOptimizer{}
	_, err := s.Run(context.Background(), smallDataset(), Params{RepairMode: "voodoo"}, discard)
	assert.Error(t, err)
}

func TestReinforcementUnknownPolicy(t *testing.T) {
	s := &ReinforcementLearner{}
	_, err := s.Run(context.Background(), smallDataset(), Params{Policy: "deep"}, discard)
	assert.Error(t, err)
}

func TestCancelledContextReturnsBestSoFar(t *testing.T) {
	d := smallDataset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			s, _ := ByName(name)
			start := time.Now()
			res, err := s.Run(ctx, d, Params{Seed: 1}, discard)
			require.NoError(t, err, "cancellation is not a strategy error")
			require.NotNil(t, res, "a cancelled run still yields its best-so-far candidate")
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestWallClockBudgetMarksIncomplete(t *testing.T) {
	d := smallDataset()
	s := &GeneticSearch{}
	res, err := s.Run(context.Background(), d, Params{Seed: 1, WallClock: time.Nanosecond}, discard)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Incomplete)
}

func TestStrategiesEmitStageEvents(t *testing.T) {
	d := smallDataset()
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			var events []ProgressEvent
			var mu sync.Mutex
			s, _ := ByName(name)
			_, err := s.Run(context.Background(), d, Params{Seed: 3}, collect(&events, &mu))
			require.NoError(t, err)
			require.NotEmpty(t, events)

			stages := 0
			for _, ev := range events {
				assert.Equal(t, name, ev.Algorithm)
				assert.NotEmpty(t, ev.Level)
				if ev.Level == LevelStage {
					stages++
				}
			}
			assert.Greater(t, stages, 0)
		})
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	d := smallDataset()
	s := &GeneticSearch{}

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Run(context.Background(), d, Params{Seed: 42, Generations: 15}, discard)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0].Evaluation, results[i].Evaluation,
			"identical seeds must converge identically even when run concurrently")
	}
}
