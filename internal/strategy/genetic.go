package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/evaluator"
)

// Crossover operator identifiers. The operator is configurable because no
// single choice dominates across datasets.
const (
	CrossoverUniform  = "uniform"
	CrossoverOnePoint = "one_point"
)

// GeneticSearch evolves a population of per-activity assignment vectors.
// Fitness comparison is lexicographic: fewer hard violations always wins,
// soft score breaks ties. With a fixed seed the full sequence of random
// draws, and therefore the final candidate, is reproducible.
type GeneticSearch struct{}

// Name implements Strategy.
func (g *GeneticSearch) Name() string { return AlgorithmGenetic }

// gene is one activity's assignment; an activity with no feasible pair
// stays unplaced and is reported through the unassigned metric.
type gene struct {
	placed    bool
	placement domain.Placement
}

type individual struct {
	genes []gene
	eval  evaluator.Result
}

type gaRun struct {
	d      *domain.Dataset
	ids    []string
	pairs  *pairTable
	rng    *rand.Rand
	params Params
}

func gaDefaults(p Params) Params {
	if p.PopulationSize <= 0 {
		p.PopulationSize = 40
	}
	if p.Generations <= 0 {
		p.Generations = 80
	}
	if p.CrossoverRate <= 0 {
		p.CrossoverRate = 0.8
	}
	if p.MutationRate <= 0 {
		p.MutationRate = 0.25
	}
	if p.TournamentSize <= 0 {
		p.TournamentSize = 3
	}
	if p.Elitism <= 0 {
		p.Elitism = 2
	}
	if p.PlateauWindow <= 0 {
		p.PlateauWindow = 15
	}
	if p.Crossover == "" {
		p.Crossover = CrossoverUniform
	}
	return p
}

// Run implements Strategy.
func (g *GeneticSearch) Run(ctx context.Context, d *domain.Dataset, params Params, emit Emitter) (*Result, error) {
	params = gaDefaults(params)
	if params.Crossover != CrossoverUniform && params.Crossover != CrossoverOnePoint {
		return nil, fmt.Errorf("unknown crossover operator %q", params.Crossover)
	}
	deadline := deadlineFor(params)

	run := &gaRun{
		d:      d,
		ids:    d.SortedActivityIDs(),
		pairs:  newPairTable(d),
		rng:    rand.New(rand.NewSource(params.Seed)),
		params: params,
	}

	emit(event(AlgorithmGenetic, "initialize", LevelStage, fmt.Sprintf("seeding population of %d", params.PopulationSize), nil))

	population := make([]individual, params.PopulationSize)
	for i := range population {
		population[i] = run.randomIndividual()
	}
	sortPopulation(population)

	best := population[0]
	sinceImprovement := 0
	generation := 0
	incomplete := false

	for generation = 0; generation < params.Generations; generation++ {
		if ctx.Err() != nil {
			break
		}
		if pastDeadline(deadline) {
			incomplete = true
			break
		}

		population = run.nextGeneration(population)
		sortPopulation(population)

		if evaluator.Compare(population[0].eval, best.eval) < 0 {
			best = population[0]
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}

		metrics := violationMetrics(best.eval)
		metrics["generation"] = float64(generation + 1)
		metrics["population_size"] = float64(len(population))
		emit(event(AlgorithmGenetic, "generation", LevelInfo,
			fmt.Sprintf("generation %d complete", generation+1), metrics))

		if sinceImprovement >= params.PlateauWindow {
			emit(event(AlgorithmGenetic, "plateau", LevelStage,
				fmt.Sprintf("no improvement for %d generations", sinceImprovement), nil))
			break
		}
	}

	schedule := run.decode(best)
	resolveOverlaps(d, schedule)
	eval := evaluator.Evaluate(d, schedule)

	if generation >= params.Generations {
		incomplete = eval.HardViolations() > 0
	}

	emit(event(AlgorithmGenetic, "finish", LevelStage, "evolution complete", violationMetrics(eval)))
	return &Result{
		Schedule:   schedule,
		Evaluation: eval,
		Iterations: generation,
		Incomplete: incomplete,
	}, nil
}

func (r *gaRun) randomIndividual() individual {
	ind := individual{genes: make([]gene, len(r.ids))}
	for i, id := range r.ids {
		pairs := r.pairs.For(id)
		if len(pairs) == 0 {
			continue
		}
		ind.genes[i] = gene{placed: true, placement: pairs[r.rng.Intn(len(pairs))]}
	}
	ind.eval = r.evaluate(ind)
	return ind
}

func (r *gaRun) decode(ind individual) *domain.CandidateSchedule {
	s := domain.NewCandidateSchedule()
	for i, g := range ind.genes {
		if g.placed {
			s.Assign(r.ids[i], g.placement)
		}
	}
	return s
}

func (r *gaRun) evaluate(ind individual) evaluator.Result {
	return evaluator.Evaluate(r.d, r.decode(ind))
}

func (r *gaRun) nextGeneration(population []individual) []individual {
	next := make([]individual, 0, len(population))
	// Elites survive unmutated.
	for i := 0; i < r.params.Elitism && i < len(population); i++ {
		next = append(next, population[i])
	}
	for len(next) < len(population) {
		a := r.tournament(population)
		b := r.tournament(population)
		child := r.crossover(a, b)
		r.mutate(&child)
		child.eval = r.evaluate(child)
		next = append(next, child)
	}
	return next
}

func (r *gaRun) tournament(population []individual) individual {
	best := population[r.rng.Intn(len(population))]
	for i := 1; i < r.params.TournamentSize; i++ {
		challenger := population[r.rng.Intn(len(population))]
		if evaluator.Compare(challenger.eval, best.eval) < 0 {
			best = challenger
		}
	}
	return best
}

// crossover inherits each activity's full placement as a unit, so an
// activity's contiguous slot block is never split between parents.
func (r *gaRun) crossover(a, b individual) individual {
	child := individual{genes: make([]gene, len(a.genes))}
	if r.rng.Float64() >= r.params.CrossoverRate {
		copy(child.genes, a.genes)
		return child
	}
	switch r.params.Crossover {
	case CrossoverOnePoint:
		point := r.rng.Intn(len(a.genes) + 1)
		copy(child.genes[:point], a.genes[:point])
		copy(child.genes[point:], b.genes[point:])
	default: // uniform
		for i := range a.genes {
			if r.rng.Intn(2) == 0 {
				child.genes[i] = a.genes[i]
			} else {
				child.genes[i] = b.genes[i]
			}
		}
	}
	return child
}

// mutate reassigns one randomly chosen activity to a random feasible pair.
func (r *gaRun) mutate(ind *individual) {
	if r.rng.Float64() >= r.params.MutationRate || len(ind.genes) == 0 {
		return
	}
	i := r.rng.Intn(len(ind.genes))
	pairs := r.pairs.For(r.ids[i])
	if len(pairs) == 0 {
		return
	}
	ind.genes[i] = gene{placed: true, placement: pairs[r.rng.Intn(len(pairs))]}
}

func sortPopulation(population []individual) {
	sort.SliceStable(population, func(i, j int) bool {
		return evaluator.Compare(population[i].eval, population[j].eval) < 0
	})
}
