package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	"mdvrp/internal/problem"
)

// Stop reasons reported in Result.
const (
	StopTimeBudget  = "time_budget"
	StopTarget      = "fitness_target"
	StopGenerations = "generations"
	StopCancelled   = "cancelled"
)

// Stats summarizes the population fitness after one generation.
type Stats struct {
	Generation   int           `json:"generation"`
	Best         float64       `json:"best"`
	Mean         float64       `json:"mean"`
	StdDev       float64       `json:"stdDev"`
	HasFeasible  bool          `json:"hasFeasible"`
	BestFeasible float64       `json:"bestFeasible,omitempty"`
	Elapsed      time.Duration `json:"elapsedNs"`
}

// Metrics counts what the search did.
type Metrics struct {
	OperatorSelects [4]int `json:"operatorSelects"` // reroute, reverse, swap, migrate
	Mutations       int    `json:"mutations"`
	Crossovers      int    `json:"crossovers"`
	Improvements    int    `json:"improvements"`
}

type Result struct {
	Best        *Solution
	Feasible    bool
	Generations int
	Elapsed     time.Duration
	StopReason  string
	Seed        int64
	Metrics     Metrics
	History     []Stats
}

// Observer is called synchronously after every generation.
type Observer func(Stats)

// GA is the population manager. It is not safe for concurrent use; each
// run owns its own GA and random source.
type GA struct {
	inst   *problem.Instance
	params Parameters
	rng    *rand.Rand
	swaps  []problem.Swap

	population []*Solution
	parents    []*Solution
	best       *Solution
	metrics    Metrics
	observer   Observer
}

func NewGA(inst *problem.Instance, params Parameters, rng *rand.Rand) (*GA, error) {
	if inst == nil {
		return nil, errors.New("ga: nil instance")
	}
	if rng == nil {
		return nil, errors.New("ga: nil random source")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &GA{
		inst:   inst,
		params: params,
		rng:    rng,
		swaps:  inst.Swappable(params.SecondDepotSwapBound),
	}, nil
}

func (g *GA) OnGeneration(fn Observer) { g.observer = fn }

// Run evolves the population until the time budget, the generation cap or the
// fitness target stops it, or ctx is cancelled. On cancellation the partial
// result is returned together with ctx.Err().
func (g *GA) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var deadline time.Time
	if b := g.params.TimeBudget(); b > 0 {
		deadline = start.Add(b)
	}

	g.initPopulation()
	g.evaluate()

	res := Result{}
	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			res.StopReason, runErr = StopCancelled, err
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			res.StopReason = StopTimeBudget
			break
		}
		if g.targetReached() {
			res.StopReason = StopTarget
			break
		}
		if g.params.Generations > 0 && res.Generations >= g.params.Generations {
			res.StopReason = StopGenerations
			break
		}

		g.resetPopulation()
		g.elitism()
		g.tournamentSelection()
		g.recombine()
		g.shuffle()
		st := g.evaluate()
		res.Generations++
		g.trackBestFeasible(g.sortedByFitness(g.population))

		st.Generation = res.Generations
		st.Elapsed = time.Since(start)
		if g.best != nil {
			st.HasFeasible, st.BestFeasible = true, g.best.Fitness()
		}
		res.History = append(res.History, st)
		if g.observer != nil {
			g.observer(st)
		}
	}

	g.trackBestFeasible(g.sortedByFitness(g.population))
	res.Best, res.Feasible = g.best, g.best != nil
	if res.Best == nil {
		res.Best = g.fittest().Clone()
	}
	res.Elapsed = time.Since(start)
	res.Metrics = g.metrics
	return res, runErr
}

func (g *GA) initPopulation() {
	g.population = make([]*Solution, 0, g.params.PopulationSize)
	for i := 0; i < g.params.PopulationSize; i++ {
		s := NewSolution(g.inst, &g.params, g.rng)
		s.ScheduleRoutes()
		g.population = append(g.population, s)
	}
}

// resetPopulation moves the current population into the parent pool.
func (g *GA) resetPopulation() {
	g.parents = g.population
	g.population = make([]*Solution, 0, g.params.PopulationSize)
}

// elitism carries the best parents over unchanged.
func (g *GA) elitism() {
	sort.SliceStable(g.parents, func(i, j int) bool { return g.parents[i].Fitness() < g.parents[j].Fitness() })
	g.population = append(g.population, g.parents[:g.params.ElitismCount]...)
}

func (g *GA) tournamentSelection() {
	n := len(g.parents)
	for len(g.population) < g.params.PopulationSize {
		p1 := g.parents[g.rng.Intn(n)]
		p2 := g.parents[g.rng.Intn(n)]
		if g.rng.Float64() < g.params.TournamentKeepBest {
			if p1.Better(p2) {
				g.population = append(g.population, p1.Clone())
			} else {
				g.population = append(g.population, p2.Clone())
			}
			continue
		}
		g.population = append(g.population, p1.Clone())
	}
}

// recombine walks the non-elite slots in pairs. A trailing odd member only
// gets a mutation chance.
func (g *GA) recombine() {
	n := len(g.population)
	for i := g.params.ElitismCount; i < n; i += 2 {
		a := g.population[i]
		if i+1 >= n {
			g.maybeMutate(a)
			break
		}
		b := g.population[i+1]
		if g.rng.Float64() < g.params.CrossoverProbability {
			if Crossover(a, b, g.rng) {
				g.metrics.Crossovers++
			}
		}
		g.maybeMutate(a)
		g.maybeMutate(b)
	}
}

func (g *GA) maybeMutate(s *Solution) {
	if g.rng.Float64() >= g.params.MutationProbability {
		return
	}
	op := g.params.MutationWeights.pick(g.rng)
	g.metrics.OperatorSelects[op]++
	if s.Mutate(op, g.rng, g.swaps) {
		g.metrics.Mutations++
	}
}

func (g *GA) shuffle() {
	g.rng.Shuffle(len(g.population), func(i, j int) {
		g.population[i], g.population[j] = g.population[j], g.population[i]
	})
}

// evaluate refreshes every fitness cache and summarizes the population.
// Members are independent, so with Workers > 1 the caches are filled
// concurrently; no random numbers are drawn here.
func (g *GA) evaluate() Stats {
	fit := make([]float64, len(g.population))
	if g.params.Workers > 1 {
		p := pool.New().WithMaxGoroutines(g.params.Workers)
		for i, s := range g.population {
			i, s := i, s
			p.Go(func() { fit[i] = s.Fitness() })
		}
		p.Wait()
	} else {
		for i, s := range g.population {
			fit[i] = s.Fitness()
		}
	}
	best := math.Inf(1)
	for _, f := range fit {
		best = math.Min(best, f)
	}
	return Stats{Best: best, Mean: stat.Mean(fit, nil), StdDev: stat.StdDev(fit, nil)}
}

func (g *GA) sortedByFitness(pop []*Solution) []*Solution {
	out := append([]*Solution(nil), pop...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Fitness() < out[j].Fitness() })
	return out
}

// trackBestFeasible keeps a private copy of the best feasible solution seen.
func (g *GA) trackBestFeasible(sorted []*Solution) {
	for _, s := range sorted {
		if !s.Feasible() {
			continue
		}
		if g.best == nil || s.Fitness() < g.best.Fitness() {
			g.best = s.Clone()
			g.metrics.Improvements++
		}
		return
	}
}

func (g *GA) targetReached() bool {
	return g.params.FitnessTarget != nil && g.best != nil && g.best.Fitness() <= *g.params.FitnessTarget
}

func (g *GA) fittest() *Solution {
	best := g.population[0]
	for _, s := range g.population[1:] {
		if s.Better(best) {
			best = s
		}
	}
	return best
}

// Solve runs one GA over inst. A zero params.Seed draws a time-based seed;
// the seed used is reported in the result.
func Solve(ctx context.Context, inst *problem.Instance, params Parameters, observer Observer) (Result, error) {
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g, err := NewGA(inst, params, rand.New(rand.NewSource(seed)))
	if err != nil {
		return Result{}, fmt.Errorf("solve %s: %w", inst.Name, err)
	}
	g.OnGeneration(observer)
	res, err := g.Run(ctx)
	res.Seed = seed
	return res, err
}
