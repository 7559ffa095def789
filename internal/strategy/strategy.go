// Package strategy implements the pluggable search strategies behind the
// optimizer: genetic search, constructive constraint optimization with
// local repair, and reinforcement-learning sequential assignment. All
// strategies share one contract and one deterministic feasibility model.
package strategy

import (
	"context"
	"time"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/evaluator"
)

// Algorithm identifiers.
const (
	AlgorithmGenetic       = "genetic"
	AlgorithmConstraint    = "constraint"
	AlgorithmReinforcement = "reinforcement"
)

// Event levels govern the orchestrator's drop policy: info events may be
// dropped under backpressure, stage and terminal events never are.
const (
	LevelInfo     = "info"
	LevelStage    = "stage"
	LevelTerminal = "terminal"
)

// ProgressEvent is one entry in a run's ordered progress stream.
type ProgressEvent struct {
	Timestamp time.Time          `json:"timestamp"`
	Algorithm string             `json:"algorithm"`
	Stage     string             `json:"stage"`
	Level     string             `json:"level"`
	Message   string             `json:"message"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Emitter receives progress events from a running strategy.
type Emitter func(ProgressEvent)

// Result carries a strategy's best candidate and its evaluation.
// Incomplete marks runs that hit an iteration or wall-clock budget before
// converging; such runs still succeed with their best-so-far candidate.
type Result struct {
	Schedule   *domain.CandidateSchedule
	Evaluation evaluator.Result
	Iterations int
	Incomplete bool
}

// Strategy is the closed contract every search algorithm implements.
// Run honours ctx cancellation at safe checkpoints (generation, iteration,
// or episode boundaries) and returns its best-so-far result in that case.
type Strategy interface {
	Name() string
	Run(ctx context.Context, d *domain.Dataset, params Params, emit Emitter) (*Result, error)
}

// Params bundles tunables for all strategies; each strategy reads its own
// fields and applies defaults for the rest.
type Params struct {
	Seed      int64         `json:"seed"`
	WallClock time.Duration `json:"wall_clock,omitempty"`

	// Genetic search.
	PopulationSize int     `json:"population_size,omitempty"`
	Generations    int     `json:"generations,omitempty"`
	CrossoverRate  float64 `json:"crossover_rate,omitempty"`
	MutationRate   float64 `json:"mutation_rate,omitempty"`
	TournamentSize int     `json:"tournament_size,omitempty"`
	Elitism        int     `json:"elitism,omitempty"`
	PlateauWindow  int     `json:"plateau_window,omitempty"`
	Crossover      string  `json:"crossover,omitempty"`

	// Constraint optimizer.
	MaxIterations int     `json:"max_iterations,omitempty"`
	InitialTemp   float64 `json:"initial_temp,omitempty"`
	Cooling       float64 `json:"cooling,omitempty"`
	RepairMode    string  `json:"repair_mode,omitempty"`
	TabuTenure    int     `json:"tabu_tenure,omitempty"`

	// Reinforcement learner.
	Episodes      int     `json:"episodes,omitempty"`
	Epsilon       float64 `json:"epsilon,omitempty"`
	EpsilonDecay  float64 `json:"epsilon_decay,omitempty"`
	EpsilonMin    float64 `json:"epsilon_min,omitempty"`
	Alpha         float64 `json:"alpha,omitempty"`
	Gamma         float64 `json:"gamma,omitempty"`
	StepPenalty   float64 `json:"step_penalty,omitempty"`
	TerminalBonus float64 `json:"terminal_bonus,omitempty"`
	Policy        string  `json:"policy,omitempty"`
}

// ByName resolves a strategy from its algorithm identifier.
func ByName(name string) (Strategy, bool) {
	switch name {
	case AlgorithmGenetic:
		return &GeneticSearch{}, true
	case AlgorithmConstraint:
		return &ConstraintOptimizer{}, true
	case AlgorithmReinforcement:
		return &ReinforcementLearner{}, true
	default:
		return nil, false
	}
}

// Algorithms lists the supported identifiers.
func Algorithms() []string {
	return []string{AlgorithmGenetic, AlgorithmConstraint, AlgorithmReinforcement}
}

// deadlineFor derives the wall-clock cutoff, zero when unlimited.
func deadlineFor(params Params) time.Time {
	if params.WallClock <= 0 {
		return time.Time{}
	}
	return time.Now().Add(params.WallClock)
}

func pastDeadline(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func event(algorithm, stage, level, message string, metrics map[string]float64) ProgressEvent {
	return ProgressEvent{
		Timestamp: time.Now().UTC(),
		Algorithm: algorithm,
		Stage:     stage,
		Level:     level,
		Message:   message,
		Metrics:   metrics,
	}
}

func violationMetrics(res evaluator.Result) map[string]float64 {
	return map[string]float64{
		"hard_violations":        float64(res.HardViolations()),
		"room_conflicts":         float64(res.RoomConflicts),
		"teacher_conflicts":      float64(res.TeacherConflicts),
		"student_conflicts":      float64(res.StudentConflicts),
		"capacity_violations":    float64(res.CapacityViolations),
		"distribution_conflicts": float64(res.DistributionConflicts),
		"unassigned":             float64(res.Unassigned),
		"soft_score":             res.SoftScore,
	}
}
