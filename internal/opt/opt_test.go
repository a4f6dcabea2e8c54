package opt

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdvrp/internal/problem"
)

func toyInstance(t *testing.T) *problem.Instance {
	t.Helper()
	inst, err := problem.New("toy",
		[]problem.Point{{X: 0, Y: 0}, {X: -20, Y: 0}},
		[]problem.Customer{
			{Point: problem.Point{X: 10, Y: 0}, Demand: 10},
			{Point: problem.Point{X: 12, Y: 2}, Demand: 20},
			{Point: problem.Point{X: -10, Y: 0}, Demand: 10},
			{Point: problem.Point{X: -11, Y: -3}, Demand: 30},
		}, 2, 100, 0)
	require.NoError(t, err)
	return inst
}

// gridInstance spreads customers around three depots with tight capacity so
// that every operator has something to do.
func gridInstance(t *testing.T, lengthCap float64) *problem.Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	depots := []problem.Point{{X: 0, Y: 0}, {X: 50, Y: 50}, {X: -40, Y: 30}}
	customers := make([]problem.Customer, 40)
	for i := range customers {
		customers[i] = problem.Customer{
			Point:  problem.Point{X: rng.Float64()*120 - 60, Y: rng.Float64()*100 - 30},
			Demand: float64(1 + rng.Intn(20)),
		}
	}
	inst, err := problem.New("grid", depots, customers, 3, 80, lengthCap)
	require.NoError(t, err)
	return inst
}

func testParams() Parameters {
	p := DefaultParameters()
	p.PopulationSize = 20
	p.Generations = 15
	p.ElitismCount = 2
	p.TimeBudgetSeconds = 0
	p.MutationWeights = MutationWeights{Reroute: 0.4, Reverse: 0.2, Swap: 0.2, Migrate: 0.2}
	p.Seed = 42
	return p
}

func TestBestInsertionEmptyRoute(t *testing.T) {
	inst := toyInstance(t)
	r := newRoute(0)
	ins := r.BestInsertion(inst, 0)
	assert.Equal(t, 0, ins.Index)
	assert.InDelta(t, 2*inst.DepotDistance(0, 0), ins.Delta, 1e-12)
	assert.True(t, ins.Feasible)
}

func TestBestInsertionFullRoute(t *testing.T) {
	inst, err := problem.New("full",
		[]problem.Point{{}},
		[]problem.Customer{
			{Point: problem.Point{X: 3}, Demand: 6},
			{Point: problem.Point{X: 0, Y: 4}, Demand: 4},
			{Point: problem.Point{X: 1, Y: 1}, Demand: 1},
		}, 1, 10, 0)
	require.NoError(t, err)

	r := newRoute(0)
	r.append(inst, 0)
	r.append(inst, 1)
	require.Equal(t, 10.0, r.Load())

	ins := r.BestInsertion(inst, 2)
	assert.False(t, ins.Feasible)

	// Delta is still the cheapest detour over the three slots.
	d := func(a, b int) float64 { return inst.Distance(a, b) }
	depot, c0, c1, c2 := 0, entity(inst, 0), entity(inst, 1), entity(inst, 2)
	want := math.Min(d(depot, c2)+d(c2, c0)-d(depot, c0),
		math.Min(d(c0, c2)+d(c2, c1)-d(c0, c1), d(c1, c2)+d(c2, depot)-d(c1, depot)))
	assert.InDelta(t, want, ins.Delta, 1e-12)
}

func TestBestInsertionHonoursLengthCap(t *testing.T) {
	inst, err := problem.New("capped",
		[]problem.Point{{}},
		[]problem.Customer{
			{Point: problem.Point{X: 10}, Demand: 1},
			{Point: problem.Point{X: -10}, Demand: 1},
		}, 1, 100, 25)
	require.NoError(t, err)
	r := newRoute(0)
	r.append(inst, 0)
	assert.InDelta(t, 20, r.Cost(inst), 1e-12)
	assert.False(t, r.BestInsertion(inst, 1).Feasible)
}

func TestRouteCostSingleCustomer(t *testing.T) {
	inst := toyInstance(t)
	r := newRoute(1)
	r.append(inst, 2)
	assert.InDelta(t, 2*inst.DepotDistance(1, 2), r.Cost(inst), 1e-12)
	empty := newRoute(0)
	assert.Zero(t, empty.Cost(inst))
}

func TestPenaltyWeights(t *testing.T) {
	inst, err := problem.New("pen",
		[]problem.Point{{}},
		[]problem.Customer{{Point: problem.Point{X: 10}, Demand: 12}},
		1, 10, 15)
	require.NoError(t, err)
	p := DefaultParameters()
	r := newRoute(0)
	r.append(inst, 0)
	// 2 units over capacity, 5 units over length.
	assert.InDelta(t, 2*10+5*15, r.Penalty(inst, &p), 1e-9)
	assert.InDelta(t, 20+95, r.Fitness(inst, &p), 1e-9)
	assert.False(t, r.Feasible(inst))
}

func TestScheduleRoutesStrictCapacity(t *testing.T) {
	inst, err := problem.New("sched",
		[]problem.Point{{}},
		[]problem.Customer{
			{Point: problem.Point{X: 1}, Demand: 5},
			{Point: problem.Point{X: 2}, Demand: 5},
			{Point: problem.Point{X: 3}, Demand: 5},
		}, 2, 10, 0)
	require.NoError(t, err)
	d := newDepot(0, 2, []int{0, 1, 2})
	d.ScheduleRoutes(inst)
	// 5+5 reaches capacity, so customer 1 opens the second vehicle.
	assert.Equal(t, []int{0}, d.Routes[0].Customers())
	assert.Equal(t, []int{1, 2}, d.Routes[1].Customers())
}

func TestScheduleRoutesLastVehicleOverflows(t *testing.T) {
	inst, err := problem.New("overflow",
		[]problem.Point{{}},
		[]problem.Customer{
			{Point: problem.Point{X: 1}, Demand: 8},
			{Point: problem.Point{X: 2}, Demand: 8},
			{Point: problem.Point{X: 3}, Demand: 8},
		}, 1, 10, 0)
	require.NoError(t, err)
	d := newDepot(0, 1, []int{0, 1, 2})
	d.ScheduleRoutes(inst)
	assert.Equal(t, 3, d.Routes[0].Len())
	assert.False(t, d.Feasible(inst))
}

func TestRebalanceMovesTailForward(t *testing.T) {
	// Customer 1 sits next to customer 2, far from customer 0.
	inst, err := problem.New("rebalance",
		[]problem.Point{{}},
		[]problem.Customer{
			{Point: problem.Point{X: -10}, Demand: 1},
			{Point: problem.Point{X: 10}, Demand: 1},
			{Point: problem.Point{X: 11}, Demand: 1},
		}, 2, 100, 0)
	require.NoError(t, err)
	d := newDepot(0, 2, nil)
	d.Routes[0].append(inst, 0)
	d.Routes[0].append(inst, 1)
	d.Routes[1].append(inst, 2)
	before := d.Cost(inst)
	d.rebalance(inst)
	assert.Equal(t, []int{0}, d.Routes[0].Customers())
	assert.Equal(t, []int{1, 2}, d.Routes[1].Customers())
	assert.Less(t, d.Cost(inst), before)
}

func TestRebalanceRespectsLengthCap(t *testing.T) {
	// Moving customer 1 ahead of customer 2 stretches route 1 from 22.36 to 26.18.
	cases := []struct {
		name   string
		maxLen float64
		moved  bool
	}{
		{"uncapped", 0, true},
		{"room to grow", 30, true},
		{"cap blocks move", 25, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst, err := problem.New("capped",
				[]problem.Point{{}},
				[]problem.Customer{
					{Point: problem.Point{X: -10}, Demand: 1},
					{Point: problem.Point{X: 10}, Demand: 1},
					{Point: problem.Point{X: 10, Y: 5}, Demand: 1},
				}, 2, 100, tc.maxLen)
			require.NoError(t, err)
			d := newDepot(0, 2, nil)
			d.Routes[0].append(inst, 0)
			d.Routes[0].append(inst, 1)
			d.Routes[1].append(inst, 2)
			d.rebalance(inst)
			if tc.moved {
				assert.Equal(t, []int{0}, d.Routes[0].Customers())
				assert.Equal(t, []int{1, 2}, d.Routes[1].Customers())
				return
			}
			assert.Equal(t, []int{0, 1}, d.Routes[0].Customers())
			assert.Equal(t, []int{2}, d.Routes[1].Customers())
			assert.LessOrEqual(t, d.Routes[1].Cost(inst), tc.maxLen)
		})
	}
}

func TestBestRouteForPrefersFeasibleClass(t *testing.T) {
	// Customer 2 is free to add after customer 0 but overflows that route
	// when capacity is tight; next to customer 1 it costs about one unit.
	cases := []struct {
		name    string
		maxLoad float64
		swapped bool // route 0 holds customer 1, route 1 holds customer 0
		want    int
	}{
		{"feasible beats cheaper infeasible", 10, false, 1},
		{"infeasible never replaces feasible", 10, true, 0},
		{"lower delta among feasible", 100, false, 0},
		{"lower delta among infeasible", 5.5, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst, err := problem.New("tiebreak",
				[]problem.Point{{}},
				[]problem.Customer{
					{Point: problem.Point{X: 2}, Demand: 9},
					{Point: problem.Point{Y: 50}, Demand: 1},
					{Point: problem.Point{X: 1}, Demand: 5},
				}, 2, tc.maxLoad, 0)
			require.NoError(t, err)
			d := newDepot(0, 2, nil)
			first, second := 0, 1
			if tc.swapped {
				first, second = 1, 0
			}
			d.Routes[0].append(inst, first)
			d.Routes[1].append(inst, second)
			got, ins := d.bestRouteFor(inst, 2)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, d.Routes[got].BestInsertion(inst, 2), ins)
		})
	}
}

func TestRouteReverse(t *testing.T) {
	inst := gridInstance(t, 0)
	cases := []struct {
		i, k int
		want []int
	}{
		{1, 3, []int{0, 3, 2, 1, 4}},
		{0, 4, []int{4, 3, 2, 1, 0}},
		{3, 4, []int{0, 1, 2, 4, 3}},
		{2, 2, []int{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		r := newRoute(0)
		for c := 0; c < 5; c++ {
			r.append(inst, c)
		}
		_ = r.Cost(inst)
		r.reverse(tc.i, tc.k)
		assert.Equal(t, tc.want, r.Customers(), "reverse(%d,%d)", tc.i, tc.k)
		assert.InDelta(t, pathDistance(inst, 0, tc.want), r.Cost(inst), 1e-9)
	}
}

func TestMutateReverseReversesDrawnSegment(t *testing.T) {
	customers := make([]problem.Customer, 6)
	for i := range customers {
		customers[i] = problem.Customer{Point: problem.Point{X: float64(i + 1), Y: float64(i % 2)}, Demand: 1}
	}
	inst, err := problem.New("line", []problem.Point{{}}, customers, 1, 100, 0)
	require.NoError(t, err)
	p := testParams()

	for seed := int64(1); seed <= 20; seed++ {
		s := NewSolution(inst, &p, rand.New(rand.NewSource(99)))
		s.ScheduleRoutes()
		before := s.Depots[0].Routes[0].Customers()
		require.Len(t, before, 6)

		// Replay the draws: depot, route, then the two cut points.
		replay := rand.New(rand.NewSource(seed))
		replay.Intn(1)
		replay.Intn(1)
		i, k := replay.Intn(6), replay.Intn(6)
		if i > k {
			i, k = k, i
		}
		want := append([]int(nil), before...)
		reverseSegment(want, i, k)

		changed := s.Mutate(OpReverse, rand.New(rand.NewSource(seed)), nil)
		assert.Equal(t, i != k, changed, "seed %d", seed)
		assert.Equal(t, want, s.Depots[0].Routes[0].Customers(), "seed %d", seed)
		require.NoError(t, s.Check())
	}
}

func TestNewSolutionClustersToClosestDepot(t *testing.T) {
	inst := toyInstance(t)
	p := DefaultParameters()
	s := NewSolution(inst, &p, rand.New(rand.NewSource(1)))
	// Customer 2 is equidistant from both depots and goes to the lower id.
	assert.ElementsMatch(t, []int{0, 1, 2}, s.Depots[0].Assigned)
	assert.ElementsMatch(t, []int{3}, s.Depots[1].Assigned)
	s.ScheduleRoutes()
	require.NoError(t, s.Check())
	assert.True(t, s.Feasible())
}

func TestCloneIsIndependent(t *testing.T) {
	inst := gridInstance(t, 0)
	p := testParams()
	rng := rand.New(rand.NewSource(3))
	s := NewSolution(inst, &p, rng)
	s.ScheduleRoutes()
	before := s.Fitness()

	c := s.Clone()
	for i := 0; i < 50; i++ {
		c.Mutate(OpSwap, rng, nil)
		c.Mutate(OpReverse, rng, nil)
	}
	require.NoError(t, c.Check())
	require.NoError(t, s.Check())
	assert.InDelta(t, before, s.Fitness(), 1e-9)
}

func TestOperatorsConserveCustomersAndCaches(t *testing.T) {
	for _, capLen := range []float64{0, 180} {
		inst := gridInstance(t, capLen)
		p := testParams()
		rng := rand.New(rand.NewSource(11))
		swaps := inst.Swappable(2)
		require.NotEmpty(t, swaps)

		a := NewSolution(inst, &p, rng)
		a.ScheduleRoutes()
		b := NewSolution(inst, &p, rng)
		b.ScheduleRoutes()
		for i := 0; i < 300; i++ {
			op := Operator(i % 4)
			a.Mutate(op, rng, swaps)
			_ = a.Fitness() // populate caches so later edits must invalidate them
			require.NoError(t, a.Check(), "after %s", op)
			if i%10 == 0 {
				Crossover(a, b, rng)
				require.NoError(t, a.Check(), "crossover a")
				require.NoError(t, b.Check(), "crossover b")
			}
		}
		assert.Equal(t, inst.NumCustomers, a.NumCustomers())
	}
}

func TestDegenerateOperatorsAreNoOps(t *testing.T) {
	inst, err := problem.New("lonely",
		[]problem.Point{{}},
		[]problem.Customer{{Point: problem.Point{X: 1}, Demand: 1}},
		1, 10, 0)
	require.NoError(t, err)
	p := testParams()
	rng := rand.New(rand.NewSource(5))
	s := NewSolution(inst, &p, rng)
	s.ScheduleRoutes()
	assert.False(t, s.Mutate(OpReverse, rng, nil))
	assert.False(t, s.Mutate(OpSwap, rng, nil))
	assert.False(t, s.Mutate(OpMigrate, rng, nil))
	require.NoError(t, s.Check())
}

func TestCrossoverIdenticalParentsUnchanged(t *testing.T) {
	inst := gridInstance(t, 0)
	p := testParams()
	rng := rand.New(rand.NewSource(9))
	a := NewSolution(inst, &p, rng)
	a.ScheduleRoutes()
	b := a.Clone()
	cost := a.Cost()

	for d := range a.Depots {
		for r := range a.Depots[d].Routes {
			assert.False(t, exchangeRoutes(a, b, d, r, r, rng))
		}
	}
	assert.InDelta(t, cost, a.Cost(), 1e-9)
	assert.InDelta(t, cost, b.Cost(), 1e-9)
	for d := range a.Depots {
		for r := range a.Depots[d].Routes {
			assert.Equal(t, a.Depots[d].Routes[r].Customers(), b.Depots[d].Routes[r].Customers())
		}
	}
}

func TestBestCostInsertionsPrefersFeasible(t *testing.T) {
	inst, err := problem.New("pick",
		[]problem.Point{{}},
		[]problem.Customer{
			{Point: problem.Point{X: 2}, Demand: 9},
			{Point: problem.Point{Y: 50}, Demand: 1},
			{Point: problem.Point{X: 1}, Demand: 5},
		}, 2, 10, 0)
	require.NoError(t, err)
	p := testParams()
	p.InsertBestProbability = 1
	d := newDepot(0, 2, nil)
	d.Routes[0].append(inst, 0)
	d.Routes[1].append(inst, 1)
	// Route 0 is cheaper but would overflow, so route 1 must take it.
	d.BestCostInsertions(inst, &p, rand.New(rand.NewSource(1)), []int{2})
	assert.Equal(t, 1, d.Routes[0].Len())
	assert.Equal(t, 2, d.Routes[1].Len())
}

func TestMutationWeightsPick(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w := MutationWeights{Reverse: 1}
	for i := 0; i < 100; i++ {
		assert.Equal(t, OpReverse, w.pick(rng))
	}
}

func TestParametersValidate(t *testing.T) {
	require.NoError(t, DefaultParameters().Validate())

	p := DefaultParameters()
	p.ElitismCount = p.PopulationSize
	assert.Error(t, p.Validate())

	p = DefaultParameters()
	p.CrossoverProbability = 1.5
	assert.Error(t, p.Validate())

	p = DefaultParameters()
	p.MutationWeights = MutationWeights{}
	assert.Error(t, p.Validate())

	p = DefaultParameters()
	p.Generations, p.TimeBudgetSeconds, p.FitnessTarget = 0, 0, nil
	assert.ErrorIs(t, p.Validate(), ErrNoStopCondition)

	for _, stop := range []func(*Parameters){
		func(p *Parameters) { p.Generations = 1 },
		func(p *Parameters) { p.TimeBudgetSeconds = 1 },
		func(p *Parameters) { target := 100.0; p.FitnessTarget = &target },
	} {
		p = DefaultParameters()
		p.Generations, p.TimeBudgetSeconds, p.FitnessTarget = 0, 0, nil
		stop(&p)
		assert.NoError(t, p.Validate())
	}
}

func TestRunIsDeterministic(t *testing.T) {
	inst := gridInstance(t, 0)
	run := func(workers int) Result {
		p := testParams()
		p.Workers = workers
		res, err := Solve(context.Background(), inst, p, nil)
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(4)
	assert.Equal(t, StopGenerations, a.StopReason)
	assert.Equal(t, a.Generations, b.Generations)
	assert.Equal(t, a.Best.Fitness(), b.Best.Fitness())
	for d := range a.Best.Depots {
		for r := range a.Best.Depots[d].Routes {
			assert.Equal(t, a.Best.Depots[d].Routes[r].Customers(), b.Best.Depots[d].Routes[r].Customers())
		}
	}
	require.NoError(t, a.Best.Check())
}

func TestElitismKeepsBestNonIncreasing(t *testing.T) {
	inst := gridInstance(t, 0)
	p := testParams()
	p.Generations = 30
	var history []Stats
	res, err := Solve(context.Background(), inst, p, func(s Stats) { history = append(history, s) })
	require.NoError(t, err)
	require.Len(t, history, res.Generations)
	for i := 1; i < len(history); i++ {
		assert.LessOrEqual(t, history[i].Best, history[i-1].Best, "generation %d", history[i].Generation)
	}
}

func TestRunStopsOnFitnessTarget(t *testing.T) {
	inst := toyInstance(t)
	p := testParams()
	p.Generations = 0
	target := math.Inf(1)
	p.FitnessTarget = &target
	res, err := Solve(context.Background(), inst, p, nil)
	require.NoError(t, err)
	assert.Equal(t, StopTarget, res.StopReason)
	assert.True(t, res.Feasible)
}

func TestRunCancelled(t *testing.T) {
	inst := gridInstance(t, 0)
	p := testParams()
	p.Generations = 0
	p.TimeBudgetSeconds = 60
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Solve(ctx, inst, p, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, res.StopReason)
	require.NotNil(t, res.Best)
	require.NoError(t, res.Best.Check())
}

func TestRunInfeasibleFallsBackToFittest(t *testing.T) {
	// A single customer heavier than any vehicle can carry.
	inst, err := problem.New("heavy",
		[]problem.Point{{}},
		[]problem.Customer{{Point: problem.Point{X: 1}, Demand: 20}, {Point: problem.Point{X: 2}, Demand: 1}},
		1, 10, 0)
	require.NoError(t, err)
	p := testParams()
	res, err := Solve(context.Background(), inst, p, nil)
	require.NoError(t, err)
	assert.False(t, res.Feasible)
	require.NotNil(t, res.Best)
	assert.Greater(t, res.Best.Fitness(), res.Best.Cost())
}
