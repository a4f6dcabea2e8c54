package opt

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"mdvrp/internal/problem"
)

// ErrIntegrity is returned by Check when a solution lost, duplicated or
// mis-accounted a customer.
var ErrIntegrity = errors.New("solution integrity")

// Solution is one chromosome: every customer sits in exactly one route of
// exactly one depot.
type Solution struct {
	inst   *problem.Instance
	params *Parameters
	Depots []Depot
}

// NewSolution clusters each customer to its closest depot and shuffles every
// depot's list. Routes stay empty until ScheduleRoutes runs.
func NewSolution(inst *problem.Instance, p *Parameters, rng *rand.Rand) *Solution {
	clusters := make([][]int, inst.NumDepots)
	for c := 0; c < inst.NumCustomers; c++ {
		d := inst.ClosestDepot(c)
		clusters[d] = append(clusters[d], c)
	}
	s := &Solution{inst: inst, params: p, Depots: make([]Depot, inst.NumDepots)}
	for d := range clusters {
		list := clusters[d]
		rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
		s.Depots[d] = newDepot(d, inst.MaxVehicles, list)
	}
	return s
}

func (s *Solution) Instance() *problem.Instance { return s.inst }

func (s *Solution) ScheduleRoutes() {
	for d := range s.Depots {
		s.Depots[d].ScheduleRoutes(s.inst)
	}
}

// Fitness is cost plus weighted penalties; lower is better.
func (s *Solution) Fitness() float64 {
	total := 0.0
	for d := range s.Depots {
		total += s.Depots[d].Fitness(s.inst, s.params)
	}
	return total
}

func (s *Solution) Cost() float64 {
	total := 0.0
	for d := range s.Depots {
		total += s.Depots[d].Cost(s.inst)
	}
	return total
}

func (s *Solution) Feasible() bool {
	for d := range s.Depots {
		if !s.Depots[d].Feasible(s.inst) {
			return false
		}
	}
	return true
}

// Better reports whether s has strictly lower fitness than o.
func (s *Solution) Better(o *Solution) bool { return s.Fitness() < o.Fitness() }

func (s *Solution) NumCustomers() int {
	n := 0
	for d := range s.Depots {
		n += s.Depots[d].NumCustomers()
	}
	return n
}

// Clone is a deep copy; no route or depot storage is shared with s.
func (s *Solution) Clone() *Solution {
	out := &Solution{inst: s.inst, params: s.params, Depots: make([]Depot, len(s.Depots))}
	for d := range s.Depots {
		out.Depots[d] = s.Depots[d].clone()
	}
	return out
}

// Locate finds the depot, route and position serving customer.
func (s *Solution) Locate(customer int) (depot, route, pos int, ok bool) {
	for d := range s.Depots {
		if r, i := s.Depots[d].locate(customer); r >= 0 {
			return d, r, i, true
		}
	}
	return -1, -1, -1, false
}

// removeCustomers takes each customer out of the solution, looking in the
// given depot first. It returns the customers actually removed, in order.
func (s *Solution) removeCustomers(depot int, customers []int) []int {
	removed := make([]int, 0, len(customers))
	for _, c := range customers {
		if s.Depots[depot].removeCustomer(s.inst, c) {
			removed = append(removed, c)
			continue
		}
		for d := range s.Depots {
			if d != depot && s.Depots[d].removeCustomer(s.inst, c) {
				removed = append(removed, c)
				break
			}
		}
	}
	return removed
}

// Check verifies that every customer is served exactly once by a route of
// the right depot, that loads match demands, and that cached costs match a
// fresh recomputation.
func (s *Solution) Check() error {
	seen := make([]bool, s.inst.NumCustomers)
	for d := range s.Depots {
		dep := &s.Depots[d]
		if dep.ID != d {
			return fmt.Errorf("%w: depot %d carries id %d", ErrIntegrity, d, dep.ID)
		}
		if len(dep.Routes) != s.inst.MaxVehicles {
			return fmt.Errorf("%w: depot %d has %d routes, want %d", ErrIntegrity, d, len(dep.Routes), s.inst.MaxVehicles)
		}
		fitness := 0.0
		for r := range dep.Routes {
			route := &dep.Routes[r]
			if route.Depot != d {
				return fmt.Errorf("%w: route %d/%d points at depot %d", ErrIntegrity, d, r, route.Depot)
			}
			load := 0.0
			for _, c := range route.customers {
				if c < 0 || c >= len(seen) {
					return fmt.Errorf("%w: unknown customer %d", ErrIntegrity, c)
				}
				if seen[c] {
					return fmt.Errorf("%w: customer %d served twice", ErrIntegrity, c)
				}
				seen[c] = true
				load += s.inst.Demand(c)
			}
			if !almostEqual(load, route.load) {
				return fmt.Errorf("%w: route %d/%d load %v, want %v", ErrIntegrity, d, r, route.load, load)
			}
			if want := pathDistance(s.inst, d, route.customers); !almostEqual(want, route.Cost(s.inst)) {
				return fmt.Errorf("%w: route %d/%d cost %v, want %v", ErrIntegrity, d, r, route.Cost(s.inst), want)
			}
			fitness += route.Fitness(s.inst, s.params)
		}
		if !almostEqual(fitness, dep.Fitness(s.inst, s.params)) {
			return fmt.Errorf("%w: depot %d fitness %v, want %v", ErrIntegrity, d, dep.Fitness(s.inst, s.params), fitness)
		}
	}
	for c, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: customer %d not served", ErrIntegrity, c)
		}
	}
	return nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
