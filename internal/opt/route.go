package opt

import "mdvrp/internal/problem"

// Route is one vehicle's ordered customer sequence, closed at its depot.
// Load is kept exact on every edit; cost is recomputed lazily.
type Route struct {
	Depot     int
	customers []int
	load      float64
	cost      float64
	dirty     bool
}

func newRoute(depot int) Route { return Route{Depot: depot} }

func (r *Route) Len() int        { return len(r.customers) }
func (r *Route) At(i int) int    { return r.customers[i] }
func (r *Route) Load() float64   { return r.load }
func (r *Route) First() int      { return r.customers[0] }
func (r *Route) Last() int       { return r.customers[len(r.customers)-1] }
func (r *Route) SecondLast() int { return r.customers[len(r.customers)-2] }

// Customers returns a copy of the visiting order.
func (r *Route) Customers() []int { return append([]int(nil), r.customers...) }

func (r *Route) index(customer int) int {
	for i, c := range r.customers {
		if c == customer {
			return i
		}
	}
	return -1
}

func (r *Route) Cost(inst *problem.Instance) float64 {
	if r.dirty {
		r.cost = pathDistance(inst, r.Depot, r.customers)
		r.dirty = false
	}
	return r.cost
}

func (r *Route) Penalty(inst *problem.Instance, p *Parameters) float64 {
	pen := 0.0
	if over := r.load - inst.MaxLoad; over > 0 {
		pen += over * p.DemandPenaltyWeight
	}
	if inst.LengthCapped() {
		if over := r.Cost(inst) - inst.MaxLength; over > 0 {
			pen += over * p.LengthPenaltyWeight
		}
	}
	return pen
}

func (r *Route) Fitness(inst *problem.Instance, p *Parameters) float64 {
	return r.Cost(inst) + r.Penalty(inst, p)
}

func (r *Route) Feasible(inst *problem.Instance) bool {
	if r.load > inst.MaxLoad {
		return false
	}
	return !inst.LengthCapped() || r.Cost(inst) <= inst.MaxLength
}

func (r *Route) insert(inst *problem.Instance, pos, customer int) {
	r.customers = append(r.customers, 0)
	copy(r.customers[pos+1:], r.customers[pos:])
	r.customers[pos] = customer
	r.load += inst.Demand(customer)
	r.dirty = true
}

func (r *Route) append(inst *problem.Instance, customer int) {
	r.insert(inst, len(r.customers), customer)
}

func (r *Route) removeAt(inst *problem.Instance, pos int) int {
	c := r.customers[pos]
	r.customers = append(r.customers[:pos], r.customers[pos+1:]...)
	r.load -= inst.Demand(c)
	if len(r.customers) == 0 {
		r.load = 0
	}
	r.dirty = true
	return c
}

func (r *Route) remove(inst *problem.Instance, customer int) bool {
	i := r.index(customer)
	if i < 0 {
		return false
	}
	r.removeAt(inst, i)
	return true
}

// set replaces the customer at pos and returns the previous occupant.
func (r *Route) set(inst *problem.Instance, pos, customer int) int {
	old := r.customers[pos]
	r.customers[pos] = customer
	r.load += inst.Demand(customer) - inst.Demand(old)
	r.dirty = true
	return old
}

func (r *Route) reverse(i, k int) {
	reverseSegment(r.customers, i, k)
	r.dirty = true
}

func (r *Route) clear() {
	r.customers = r.customers[:0]
	r.load = 0
	r.cost = 0
	r.dirty = false
}

func (r *Route) clone() Route {
	out := *r
	out.customers = append([]int(nil), r.customers...)
	return out
}

// Insertion describes the cheapest slot for a customer in one route.
type Insertion struct {
	Index    int
	Delta    float64
	Feasible bool
}

// BestInsertion scans every slot 0..Len() and keeps the first minimum.
// Feasibility accounts for capacity and, when capped, route length.
func (r *Route) BestInsertion(inst *problem.Instance, customer int) Insertion {
	c := entity(inst, customer)
	n := len(r.customers)
	best := Insertion{Index: 0}
	for i := 0; i <= n; i++ {
		prev, next := r.Depot, r.Depot
		if i > 0 {
			prev = entity(inst, r.customers[i-1])
		}
		if i < n {
			next = entity(inst, r.customers[i])
		}
		delta := inst.Distance(prev, c) + inst.Distance(c, next) - inst.Distance(prev, next)
		if i == 0 || delta < best.Delta {
			best.Index, best.Delta = i, delta
		}
	}
	best.Feasible = r.load+inst.Demand(customer) <= inst.MaxLoad
	if best.Feasible && inst.LengthCapped() {
		best.Feasible = r.Cost(inst)+best.Delta <= inst.MaxLength
	}
	return best
}
