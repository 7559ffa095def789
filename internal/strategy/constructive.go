package strategy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/evaluator"
)

// Repair mode identifiers.
const (
	RepairAnnealing = "annealing"
	RepairTabu      = "tabu"
)

// ConstraintOptimizer places activities most-constrained-first, then runs
// a local-search repair phase (simulated annealing by default, tabu as an
// alternative) to drive hard violations toward zero.
type ConstraintOptimizer struct{}

// Name implements Strategy.
func (c *ConstraintOptimizer) Name() string { return AlgorithmConstraint }

func coDefaults(p Params) Params {
	if p.MaxIterations <= 0 {
		p.MaxIterations = 400
	}
	if p.PlateauWindow <= 0 {
		p.PlateauWindow = 60
	}
	if p.InitialTemp <= 0 {
		p.InitialTemp = 4.0
	}
	if p.Cooling <= 0 || p.Cooling >= 1 {
		p.Cooling = 0.97
	}
	if p.RepairMode == "" {
		p.RepairMode = RepairAnnealing
	}
	if p.TabuTenure <= 0 {
		p.TabuTenure = 12
	}
	return p
}

type tabuMove struct {
	activityID string
	placement  domain.Placement
}

// Run implements Strategy.
func (c *ConstraintOptimizer) Run(ctx context.Context, d *domain.Dataset, params Params, emit Emitter) (*Result, error) {
	params = coDefaults(params)
	if params.RepairMode != RepairAnnealing && params.RepairMode != RepairTabu {
		return nil, fmt.Errorf("unknown repair mode %q", params.RepairMode)
	}
	deadline := deadlineFor(params)
	rng := rand.New(rand.NewSource(params.Seed))
	pairs := newPairTable(d)

	emit(event(AlgorithmConstraint, "construct", LevelStage, "placing activities most-constrained-first", nil))
	schedule, occ := construct(d, pairs)

	best := schedule.Clone()
	bestEval := evaluator.Evaluate(d, best)
	emit(event(AlgorithmConstraint, "construct", LevelStage, "construction complete", violationMetrics(bestEval)))

	emit(event(AlgorithmConstraint, "repair", LevelStage, fmt.Sprintf("starting %s repair", params.RepairMode), nil))
	currentEval := bestEval
	temperature := params.InitialTemp
	var tabu []tabuMove
	sinceImprovement := 0
	iteration := 0
	incomplete := false

	for iteration = 0; iteration < params.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			break
		}
		if pastDeadline(deadline) {
			incomplete = true
			break
		}
		if bestEval.HardViolations() == 0 {
			break
		}

		moved := c.repairStep(d, schedule, occ, pairs, rng, params, temperature, &tabu)
		temperature *= params.Cooling

		if moved {
			currentEval = evaluator.Evaluate(d, schedule)
			if evaluator.Compare(currentEval, bestEval) < 0 {
				best = schedule.Clone()
				bestEval = currentEval
				sinceImprovement = 0
			} else {
				sinceImprovement++
			}
		} else {
			sinceImprovement++
		}

		if (iteration+1)%20 == 0 {
			metrics := violationMetrics(bestEval)
			metrics["iteration"] = float64(iteration + 1)
			metrics["temperature"] = temperature
			emit(event(AlgorithmConstraint, "repair", LevelInfo,
				fmt.Sprintf("iteration %d checkpoint", iteration+1), metrics))
		}
		if sinceImprovement >= params.PlateauWindow {
			break
		}
	}

	resolveOverlaps(d, best)
	bestEval = evaluator.Evaluate(d, best)

	if iteration >= params.MaxIterations && bestEval.HardViolations() > 0 {
		incomplete = true
	}

	emit(event(AlgorithmConstraint, "finish", LevelStage, "repair complete", violationMetrics(bestEval)))
	return &Result{
		Schedule:   best,
		Evaluation: bestEval,
		Iterations: iteration,
		Incomplete: incomplete,
	}, nil
}

// construct assigns activities in scarcity order: the activity with the
// fewest remaining conflict-free options goes first, each to its least
// violating feasible option. Activities with no feasible pair stay
// unassigned.
func construct(d *domain.Dataset, pairs *pairTable) (*domain.CandidateSchedule, *occupancy) {
	schedule := domain.NewCandidateSchedule()
	occ := newOccupancy()
	remaining := d.SortedActivityIDs()

	for len(remaining) > 0 {
		// Re-rank each round: every placement changes scarcity.
		sort.SliceStable(remaining, func(i, j int) bool {
			ai, _ := d.Activity(remaining[i])
			aj, _ := d.Activity(remaining[j])
			ci := occ.conflictFreeCount(ai, pairs.For(remaining[i]))
			cj := occ.conflictFreeCount(aj, pairs.For(remaining[j]))
			if ci != cj {
				return ci < cj
			}
			return remaining[i] < remaining[j]
		})

		id := remaining[0]
		remaining = remaining[1:]
		activity, _ := d.Activity(id)
		options := pairs.For(id)
		if len(options) == 0 {
			continue
		}

		bestIdx, bestConflicts := -1, math.MaxInt
		for i, p := range options {
			if n := occ.conflicts(activity, p); n < bestConflicts {
				bestIdx, bestConflicts = i, n
			}
		}
		placement := options[bestIdx]
		schedule.Assign(id, placement)
		occ.place(activity, placement)
	}
	return schedule, occ
}

// repairStep picks a violating activity and reassigns it. Annealing
// samples a random neighbor and accepts worse moves with probability
// exp(-delta/T); tabu always moves to the best non-tabu neighbor, even
// uphill, and forbids undoing recent moves so the search cannot cycle
// back into the minimum it just left.
func (c *ConstraintOptimizer) repairStep(
	d *domain.Dataset,
	schedule *domain.CandidateSchedule,
	occ *occupancy,
	pairs *pairTable,
	rng *rand.Rand,
	params Params,
	temperature float64,
	tabu *[]tabuMove,
) bool {
	violating := violatingActivities(d, schedule, occ)
	if len(violating) == 0 {
		return false
	}
	id := violating[rng.Intn(len(violating))]
	activity, _ := d.Activity(id)
	current, _ := schedule.Placement(id)
	options := pairs.For(id)
	if len(options) <= 1 {
		return false
	}

	occ.remove(activity, current)

	var candidate domain.Placement
	switch params.RepairMode {
	case RepairTabu:
		bestCost := math.MaxInt
		for _, p := range options {
			if p == current || isTabu(*tabu, id, p) {
				continue
			}
			if cost := occ.conflicts(activity, p) + gapViolations(d, schedule, id, p); cost < bestCost {
				candidate, bestCost = p, cost
			}
		}
		if bestCost == math.MaxInt {
			occ.place(activity, current)
			return false
		}
	default:
		candidate = options[rng.Intn(len(options))]
		if candidate == current {
			occ.place(activity, current)
			return false
		}
		before := occ.conflicts(activity, current) + gapViolations(d, schedule, id, current)
		after := occ.conflicts(activity, candidate) + gapViolations(d, schedule, id, candidate)
		delta := float64(after - before)
		if delta >= 0 && !(temperature > 0 && rng.Float64() < math.Exp(-delta/temperature)) {
			occ.place(activity, current)
			return false
		}
	}

	schedule.Assign(id, candidate)
	occ.place(activity, candidate)
	if params.RepairMode == RepairTabu {
		*tabu = append(*tabu, tabuMove{activityID: id, placement: current})
		if len(*tabu) > params.TabuTenure {
			*tabu = (*tabu)[len(*tabu)-params.TabuTenure:]
		}
	}
	return true
}

func isTabu(tabu []tabuMove, activityID string, p domain.Placement) bool {
	for _, move := range tabu {
		if move.activityID == activityID && move.placement == p {
			return true
		}
	}
	return false
}

// violatingActivities lists assigned activities that currently overlap
// with another assignment or breach a min-gap rule, in lexicographic order.
func violatingActivities(d *domain.Dataset, schedule *domain.CandidateSchedule, occ *occupancy) []string {
	var out []string
	for _, id := range schedule.AssignedIDs() {
		activity, _ := d.Activity(id)
		placement, _ := schedule.Placement(id)
		occ.remove(activity, placement)
		n := occ.conflicts(activity, placement)
		occ.place(activity, placement)
		if n == 0 {
			n = gapViolations(d, schedule, id, placement)
		}
		if n > 0 {
			out = append(out, id)
		}
	}
	return out
}

// gapViolations counts min-gap breaches the activity would have at the
// given placement against the other assigned sessions of its subject.
func gapViolations(d *domain.Dataset, schedule *domain.CandidateSchedule, id string, p domain.Placement) int {
	activity, _ := d.Activity(id)
	violations := 0
	for _, c := range d.Constraints {
		if c.Kind != domain.ConstraintHard || c.Type != domain.ConstraintMinGap || !c.AppliesTo(id) {
			continue
		}
		for _, otherID := range schedule.AssignedIDs() {
			if otherID == id || !c.AppliesTo(otherID) {
				continue
			}
			other, _ := d.Activity(otherID)
			if other.Subject != activity.Subject {
				continue
			}
			otherPlacement, _ := schedule.Placement(otherID)
			gap := p.Day - otherPlacement.Day
			if gap < 0 {
				gap = -gap
			}
			if gap < c.Settings.MinGapDays {
				violations++
			}
		}
	}
	return violations
}
