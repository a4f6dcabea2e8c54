package opt

import (
	"math/rand"

	"mdvrp/internal/problem"
)

type Operator int

const (
	OpReroute Operator = iota
	OpReverse
	OpSwap
	OpMigrate
)

func (o Operator) String() string {
	switch o {
	case OpReroute:
		return "reroute"
	case OpReverse:
		return "reverse"
	case OpSwap:
		return "swap"
	case OpMigrate:
		return "migrate"
	}
	return "unknown"
}

// pick draws an operator by roulette over the weights.
func (w MutationWeights) pick(rng *rand.Rand) Operator {
	ws := [...]float64{w.Reroute, w.Reverse, w.Swap, w.Migrate}
	total := 0.0
	for _, x := range ws {
		total += x
	}
	if total <= 0 {
		return OpReroute
	}
	r := rng.Float64() * total
	acc := 0.0
	for i, x := range ws {
		acc += x
		if r < acc {
			return Operator(i)
		}
	}
	for i := len(ws) - 1; i >= 0; i-- {
		if ws[i] > 0 {
			return Operator(i)
		}
	}
	return OpReroute
}

// Mutate applies op in place and reports whether the solution changed.
// swaps is only consulted by OpMigrate.
func (s *Solution) Mutate(op Operator, rng *rand.Rand, swaps []problem.Swap) bool {
	switch op {
	case OpReroute:
		return s.mutateReroute(rng)
	case OpReverse:
		return s.mutateReverse(rng)
	case OpSwap:
		return s.mutateSwap(rng)
	case OpMigrate:
		return s.mutateMigrate(rng, swaps)
	}
	return false
}

func (s *Solution) mutateReroute(rng *rand.Rand) bool {
	return s.Depots[rng.Intn(len(s.Depots))].reroute(s.inst, rng)
}

// mutateReverse reverses a random sub-segment of one route.
func (s *Solution) mutateReverse(rng *rand.Rand) bool {
	dep := &s.Depots[rng.Intn(len(s.Depots))]
	route := &dep.Routes[rng.Intn(len(dep.Routes))]
	n := route.Len()
	if n < 2 {
		return false
	}
	i, k := rng.Intn(n), rng.Intn(n)
	if i > k {
		i, k = k, i
	}
	if i == k {
		return false
	}
	route.reverse(i, k)
	dep.dirty = true
	return true
}

// mutateSwap exchanges two customers picked from two random routes, which
// may belong to different depots.
func (s *Solution) mutateSwap(rng *rand.Rand) bool {
	d1 := &s.Depots[rng.Intn(len(s.Depots))]
	r1 := &d1.Routes[rng.Intn(len(d1.Routes))]
	d2 := &s.Depots[rng.Intn(len(s.Depots))]
	r2 := &d2.Routes[rng.Intn(len(d2.Routes))]
	if r1.Len() == 0 || r2.Len() == 0 {
		return false
	}
	i, j := rng.Intn(r1.Len()), rng.Intn(r2.Len())
	if r1 == r2 && i == j {
		return false
	}
	a := r1.At(i)
	b := r2.set(s.inst, j, a)
	r1.set(s.inst, i, b)
	d1.dirty = true
	d2.dirty = true
	return true
}

// mutateMigrate moves a swappable customer between its closest and second
// closest depot, reinserting it with BestCostInsertions.
func (s *Solution) mutateMigrate(rng *rand.Rand, swaps []problem.Swap) bool {
	if len(swaps) == 0 {
		return false
	}
	sw := swaps[rng.Intn(len(swaps))]
	from, _, _, ok := s.Locate(sw.Customer)
	if !ok {
		return false
	}
	to := sw.Closest
	if from == sw.Closest {
		to = sw.Second
	}
	s.Depots[from].removeCustomer(s.inst, sw.Customer)
	s.Depots[to].BestCostInsertions(s.inst, s.params, rng, []int{sw.Customer})
	return true
}
