package opt

import (
	"math/rand"

	"mdvrp/internal/problem"
)

// Depot owns a fixed number of routes and the customers clustered to it.
type Depot struct {
	ID int
	// Assigned is the shuffled clustering order used by ScheduleRoutes.
	Assigned []int
	Routes   []Route

	fitness float64
	dirty   bool
}

func newDepot(id, vehicles int, assigned []int) Depot {
	d := Depot{ID: id, Assigned: assigned, Routes: make([]Route, vehicles), dirty: true}
	for i := range d.Routes {
		d.Routes[i] = newRoute(id)
	}
	return d
}

func (d *Depot) Fitness(inst *problem.Instance, p *Parameters) float64 {
	if d.dirty {
		total := 0.0
		for i := range d.Routes {
			total += d.Routes[i].Fitness(inst, p)
		}
		d.fitness = total
		d.dirty = false
	}
	return d.fitness
}

func (d *Depot) Cost(inst *problem.Instance) float64 {
	total := 0.0
	for i := range d.Routes {
		total += d.Routes[i].Cost(inst)
	}
	return total
}

func (d *Depot) Feasible(inst *problem.Instance) bool {
	for i := range d.Routes {
		if !d.Routes[i].Feasible(inst) {
			return false
		}
	}
	return true
}

func (d *Depot) NumCustomers() int {
	n := 0
	for i := range d.Routes {
		n += d.Routes[i].Len()
	}
	return n
}

// ScheduleRoutes fills the routes greedily in Assigned order, then runs a
// single rebalancing pass over adjacent route pairs.
func (d *Depot) ScheduleRoutes(inst *problem.Instance) {
	for i := range d.Routes {
		d.Routes[i].clear()
	}
	v := 0
	for _, c := range d.Assigned {
		if d.Routes[v].load+inst.Demand(c) < inst.MaxLoad {
			d.Routes[v].append(inst, c)
			continue
		}
		if v < len(d.Routes)-1 {
			v++
		}
		d.Routes[v].append(inst, c)
	}
	d.rebalance(inst)
	d.dirty = true
}

// rebalance moves the last customer of each route to the front of the next
// route when that shortens the pair and the next route can take it.
func (d *Depot) rebalance(inst *problem.Instance) {
	depot := d.ID
	for i := 0; i+1 < len(d.Routes); i++ {
		cur, next := &d.Routes[i], &d.Routes[i+1]
		if cur.Len() == 0 || next.Len() == 0 {
			continue
		}
		last := cur.Last()
		if next.load+inst.Demand(last) > inst.MaxLoad {
			continue
		}
		l := entity(inst, last)
		f := entity(inst, next.First())
		sl := depot
		if cur.Len() > 1 {
			sl = entity(inst, cur.SecondLast())
		}
		if inst.LengthCapped() {
			grow := inst.Distance(depot, l) + inst.Distance(l, f) - inst.Distance(depot, f)
			if next.Cost(inst)+grow > inst.MaxLength {
				continue
			}
		}
		delta := -inst.Distance(sl, l) + inst.Distance(depot, sl) - inst.Distance(depot, f) + inst.Distance(l, f)
		if delta < 0 {
			cur.removeAt(inst, cur.Len()-1)
			next.insert(inst, 0, last)
		}
	}
}

// locate returns the route and position of customer, or -1, -1.
func (d *Depot) locate(customer int) (int, int) {
	for r := range d.Routes {
		if i := d.Routes[r].index(customer); i >= 0 {
			return r, i
		}
	}
	return -1, -1
}

func (d *Depot) removeCustomer(inst *problem.Instance, customer int) bool {
	r, i := d.locate(customer)
	if r < 0 {
		return false
	}
	d.Routes[r].removeAt(inst, i)
	d.dirty = true
	return true
}

// bestRouteFor prefers any feasible slot over infeasible ones and the
// smaller delta within the same class; earlier routes win ties.
func (d *Depot) bestRouteFor(inst *problem.Instance, customer int) (int, Insertion) {
	best := 0
	bestIns := d.Routes[0].BestInsertion(inst, customer)
	for r := 1; r < len(d.Routes); r++ {
		ins := d.Routes[r].BestInsertion(inst, customer)
		switch {
		case ins.Feasible && !bestIns.Feasible:
			best, bestIns = r, ins
		case ins.Feasible == bestIns.Feasible && ins.Delta < bestIns.Delta:
			best, bestIns = r, ins
		}
	}
	return best, bestIns
}

// BestCostInsertions places each customer in turn. With probability
// InsertBestProbability it takes the cheapest feasible slot across routes
// (the cheapest overall when none is feasible); otherwise it picks a route
// uniformly and uses that route's best slot.
func (d *Depot) BestCostInsertions(inst *problem.Instance, p *Parameters, rng *rand.Rand, customers []int) {
	opts := make([]Insertion, len(d.Routes))
	for _, c := range customers {
		bestFeasible, bestAny := -1, 0
		for r := range d.Routes {
			ins := d.Routes[r].BestInsertion(inst, c)
			opts[r] = ins
			if ins.Feasible && (bestFeasible < 0 || ins.Delta < opts[bestFeasible].Delta) {
				bestFeasible = r
			}
			if ins.Delta < opts[bestAny].Delta {
				bestAny = r
			}
		}
		pick := bestAny
		if rng.Float64() < p.InsertBestProbability {
			if bestFeasible >= 0 {
				pick = bestFeasible
			}
		} else {
			pick = rng.Intn(len(d.Routes))
		}
		d.Routes[pick].insert(inst, opts[pick].Index, c)
		d.dirty = true
	}
}

// reroute pulls a random customer out of a random route and reinserts it
// at the best slot of this depot. It reports whether anything moved.
func (d *Depot) reroute(inst *problem.Instance, rng *rand.Rand) bool {
	r := rng.Intn(len(d.Routes))
	route := &d.Routes[r]
	if route.Len() == 0 {
		return false
	}
	c := route.removeAt(inst, rng.Intn(route.Len()))
	to, ins := d.bestRouteFor(inst, c)
	d.Routes[to].insert(inst, ins.Index, c)
	d.dirty = true
	return true
}

func (d *Depot) clone() Depot {
	out := Depot{
		ID:       d.ID,
		Assigned: append([]int(nil), d.Assigned...),
		Routes:   make([]Route, len(d.Routes)),
		fitness:  d.fitness,
		dirty:    d.dirty,
	}
	for i := range d.Routes {
		out.Routes[i] = d.Routes[i].clone()
	}
	return out
}
