package strategy

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/evaluator"
)

// Policy representation identifiers.
const (
	PolicyTabular = "tabular"
	PolicyLinear  = "linear"
)

// stateKey identifies a decision point: which activity is next and how
// conflicted the partial schedule already is (capped so the table stays
// small).
type stateKey struct {
	step      int
	conflicts int
}

const maxStateConflicts = 8

// Policy is the pluggable value representation behind the learner. Select
// returns an action index for the state; Update applies the observed
// reward.
type Policy interface {
	Select(state stateKey, actions int, epsilon float64, rng *rand.Rand) int
	Update(state stateKey, action int, reward float64, next stateKey, nextActions int)
}

// tabularQ is the default Q-table policy with standard temporal-difference
// updates.
type tabularQ struct {
	table map[stateKey][]float64
	alpha float64
	gamma float64
}

func newTabularQ(alpha, gamma float64) *tabularQ {
	return &tabularQ{table: make(map[stateKey][]float64), alpha: alpha, gamma: gamma}
}

func (q *tabularQ) values(state stateKey, actions int) []float64 {
	v, ok := q.table[state]
	if !ok || len(v) < actions {
		grown := make([]float64, actions)
		copy(grown, v)
		q.table[state] = grown
		v = grown
	}
	return v
}

func (q *tabularQ) Select(state stateKey, actions int, epsilon float64, rng *rand.Rand) int {
	if actions <= 0 {
		return -1
	}
	if rng.Float64() < epsilon {
		return rng.Intn(actions)
	}
	values := q.values(state, actions)
	best := 0
	for i := 1; i < actions; i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func (q *tabularQ) Update(state stateKey, action int, reward float64, next stateKey, nextActions int) {
	values := q.values(state, action+1)
	nextMax := 0.0
	if nextActions > 0 {
		nextValues := q.values(next, nextActions)
		nextMax = nextValues[0]
		for _, v := range nextValues[1:] {
			if v > nextMax {
				nextMax = v
			}
		}
	}
	values[action] += q.alpha * (reward + q.gamma*nextMax - values[action])
}

// linearV is a light function-approximation policy: it scores actions by a
// learned weight over the action index position, useful when the state
// space is too large for a table.
type linearV struct {
	weights map[int]float64
	alpha   float64
}

func newLinearV(alpha float64) *linearV {
	return &linearV{weights: make(map[int]float64), alpha: alpha}
}

func (l *linearV) Select(state stateKey, actions int, epsilon float64, rng *rand.Rand) int {
	if actions <= 0 {
		return -1
	}
	if rng.Float64() < epsilon {
		return rng.Intn(actions)
	}
	best, bestScore := 0, l.weights[0]
	for i := 1; i < actions; i++ {
		if score := l.weights[i]; score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (l *linearV) Update(state stateKey, action int, reward float64, next stateKey, nextActions int) {
	l.weights[action] += l.alpha * (reward - l.weights[action])
}

// ReinforcementLearner treats scheduling as a sequential decision process:
// each step assigns the next unassigned activity to a feasible pair, the
// reward is the negative incremental violation plus a terminal bonus for
// completing all activities. The best rollout seen across training (by
// evaluator score) is returned, not the final episode's.
type ReinforcementLearner struct{}

// Name implements Strategy.
func (r *ReinforcementLearner) Name() string { return AlgorithmReinforcement }

func rlDefaults(p Params) Params {
	if p.Episodes <= 0 {
		p.Episodes = 150
	}
	if p.Epsilon <= 0 {
		p.Epsilon = 0.4
	}
	if p.EpsilonDecay <= 0 || p.EpsilonDecay >= 1 {
		p.EpsilonDecay = 0.97
	}
	if p.EpsilonMin <= 0 {
		p.EpsilonMin = 0.02
	}
	if p.Alpha <= 0 {
		p.Alpha = 0.2
	}
	if p.Gamma <= 0 {
		p.Gamma = 0.9
	}
	if p.StepPenalty <= 0 {
		p.StepPenalty = 1.0
	}
	if p.TerminalBonus <= 0 {
		p.TerminalBonus = 10.0
	}
	if p.Policy == "" {
		p.Policy = PolicyTabular
	}
	return p
}

// Run implements Strategy.
func (r *ReinforcementLearner) Run(ctx context.Context, d *domain.Dataset, params Params, emit Emitter) (*Result, error) {
	params = rlDefaults(params)
	var policy Policy
	switch params.Policy {
	case PolicyTabular:
		policy = newTabularQ(params.Alpha, params.Gamma)
	case PolicyLinear:
		policy = newLinearV(params.Alpha)
	default:
		return nil, fmt.Errorf("unknown policy representation %q", params.Policy)
	}

	deadline := deadlineFor(params)
	rng := rand.New(rand.NewSource(params.Seed))
	pairs := newPairTable(d)
	ids := d.SortedActivityIDs()

	emit(event(AlgorithmReinforcement, "train", LevelStage,
		fmt.Sprintf("training %s policy over %d episodes", params.Policy, params.Episodes), nil))

	var best *domain.CandidateSchedule
	var bestEval evaluator.Result
	epsilon := params.Epsilon
	episode := 0
	incomplete := false

	for episode = 0; episode < params.Episodes; episode++ {
		if ctx.Err() != nil {
			break
		}
		if pastDeadline(deadline) {
			incomplete = true
			break
		}

		schedule := r.rollout(d, ids, pairs, policy, epsilon, params, rng)
		eval := evaluator.Evaluate(d, schedule)
		if best == nil || evaluator.Compare(eval, bestEval) < 0 {
			best = schedule
			bestEval = eval
		}

		// Epsilon decays monotonically across episodes.
		epsilon *= params.EpsilonDecay
		if epsilon < params.EpsilonMin {
			epsilon = params.EpsilonMin
		}

		if (episode+1)%10 == 0 {
			metrics := violationMetrics(bestEval)
			metrics["episodes_completed"] = float64(episode + 1)
			metrics["epsilon"] = epsilon
			emit(event(AlgorithmReinforcement, "train", LevelInfo,
				fmt.Sprintf("episode %d complete", episode+1), metrics))
		}
	}

	if best == nil {
		best = domain.NewCandidateSchedule()
	}
	resolveOverlaps(d, best)
	bestEval = evaluator.Evaluate(d, best)

	emit(event(AlgorithmReinforcement, "finish", LevelStage, "training complete", violationMetrics(bestEval)))
	return &Result{
		Schedule:   best,
		Evaluation: bestEval,
		Iterations: episode,
		Incomplete: incomplete,
	}, nil
}

// rollout runs one episode of sequential assignment under the current
// policy and exploration rate.
func (r *ReinforcementLearner) rollout(
	d *domain.Dataset,
	ids []string,
	pairs *pairTable,
	policy Policy,
	epsilon float64,
	params Params,
	rng *rand.Rand,
) *domain.CandidateSchedule {
	schedule := domain.NewCandidateSchedule()
	occ := newOccupancy()
	conflicts := 0

	for step, id := range ids {
		activity, _ := d.Activity(id)
		actions := pairs.For(id)
		if len(actions) == 0 {
			continue
		}
		state := stateKey{step: step, conflicts: capConflicts(conflicts)}
		action := policy.Select(state, len(actions), epsilon, rng)
		placement := actions[action]

		introduced := occ.conflicts(activity, placement)
		reward := -float64(introduced) * params.StepPenalty

		schedule.Assign(id, placement)
		occ.place(activity, placement)
		conflicts += introduced

		nextActions := 0
		next := stateKey{step: step + 1, conflicts: capConflicts(conflicts)}
		if step+1 < len(ids) {
			nextActions = len(pairs.For(ids[step+1]))
		} else if schedule.Len() == len(ids) {
			reward += params.TerminalBonus
		}
		policy.Update(state, action, reward, next, nextActions)
	}
	return schedule
}

func capConflicts(n int) int {
	if n > maxStateConflicts {
		return maxStateConflicts
	}
	return n
}
