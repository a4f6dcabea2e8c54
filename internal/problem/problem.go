// Package problem holds the immutable MDVRP instance and its distance model.
package problem

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed marks instance data that cannot be turned into an Instance.
var ErrMalformed = errors.New("malformed instance")

type Point struct {
	X, Y float64
}

type Customer struct {
	ID     int
	Point  Point
	Demand float64
}

// Instance is shared read-only by every solution of a run.
type Instance struct {
	Name         string
	NumDepots    int
	NumCustomers int
	MaxVehicles  int
	MaxLoad      float64
	// MaxLength caps route distance; 0 means unconstrained.
	MaxLength float64

	Depots    []Point
	Customers []Customer

	size int
	dist []float64 // (D+C)x(D+C), depots first
}

// Swap records a customer that may be served from either of two depots.
type Swap struct {
	Customer int
	Closest  int
	Second   int
}

// New validates the tables and precomputes the distance matrix.
func New(name string, depots []Point, customers []Customer, maxVehicles int, maxLoad, maxLength float64) (*Instance, error) {
	if len(depots) == 0 {
		return nil, fmt.Errorf("%w: no depots", ErrMalformed)
	}
	if len(customers) == 0 {
		return nil, fmt.Errorf("%w: no customers", ErrMalformed)
	}
	if maxVehicles < 1 {
		return nil, fmt.Errorf("%w: vehicles per depot must be >= 1, got %d", ErrMalformed, maxVehicles)
	}
	if !finite(maxLoad) || maxLoad <= 0 {
		return nil, fmt.Errorf("%w: max load must be > 0, got %v", ErrMalformed, maxLoad)
	}
	if !finite(maxLength) || maxLength < 0 {
		return nil, fmt.Errorf("%w: max route length must be >= 0, got %v", ErrMalformed, maxLength)
	}
	for i, d := range depots {
		if !finite(d.X) || !finite(d.Y) {
			return nil, fmt.Errorf("%w: depot %d has invalid coordinates", ErrMalformed, i)
		}
	}
	cs := make([]Customer, len(customers))
	for i, c := range customers {
		if !finite(c.Point.X) || !finite(c.Point.Y) {
			return nil, fmt.Errorf("%w: customer %d has invalid coordinates", ErrMalformed, i)
		}
		if !finite(c.Demand) || c.Demand < 0 {
			return nil, fmt.Errorf("%w: customer %d has invalid demand %v", ErrMalformed, i, c.Demand)
		}
		c.ID = i
		cs[i] = c
	}
	inst := &Instance{
		Name:         name,
		NumDepots:    len(depots),
		NumCustomers: len(cs),
		MaxVehicles:  maxVehicles,
		MaxLoad:      maxLoad,
		MaxLength:    maxLength,
		Depots:       append([]Point(nil), depots...),
		Customers:    cs,
	}
	inst.initDistances()
	return inst, nil
}

func (in *Instance) initDistances() {
	n := in.NumDepots + in.NumCustomers
	in.size = n
	in.dist = make([]float64, n*n)
	for a := 0; a < n; a++ {
		pa := in.point(a)
		for b := 0; b < a; b++ {
			d := Euclidean(pa, in.point(b))
			in.dist[a*n+b] = d
			in.dist[b*n+a] = d
		}
	}
}

func (in *Instance) point(entity int) Point {
	if entity < in.NumDepots {
		return in.Depots[entity]
	}
	return in.Customers[entity-in.NumDepots].Point
}

// Size is the matrix dimension, depots plus customers.
func (in *Instance) Size() int { return in.size }

// Distance looks up two entity indexes (depots first, then customers).
func (in *Instance) Distance(a, b int) float64 { return in.dist[a*in.size+b] }

func (in *Instance) DepotDistance(depot, customer int) float64 {
	return in.dist[depot*in.size+customer+in.NumDepots]
}

func (in *Instance) CustomerDistance(c1, c2 int) float64 {
	return in.dist[(c1+in.NumDepots)*in.size+c2+in.NumDepots]
}

func (in *Instance) Demand(customer int) float64 { return in.Customers[customer].Demand }

// LengthCapped reports whether routes are bounded by MaxLength.
func (in *Instance) LengthCapped() bool { return in.MaxLength > 0 }

// ClosestDepot breaks ties towards the lowest depot id.
func (in *Instance) ClosestDepot(customer int) int {
	best, bestDist := 0, math.Inf(1)
	for d := 0; d < in.NumDepots; d++ {
		if dist := in.DepotDistance(d, customer); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}

// SecondClosestDepot returns the nearest other depot whose relative excess
// over the closest one stays within bound.
func (in *Instance) SecondClosestDepot(customer, closest int, bound float64) (int, bool) {
	closestDist := in.DepotDistance(closest, customer)
	second, secondDist := -1, math.Inf(1)
	for d := 0; d < in.NumDepots; d++ {
		if d == closest {
			continue
		}
		dist := in.DepotDistance(d, customer)
		excess := math.Inf(1)
		if closestDist > 0 {
			excess = (dist - closestDist) / closestDist
		} else if dist == 0 {
			excess = 0
		}
		if dist < secondDist && excess <= bound {
			second, secondDist = d, dist
		}
	}
	return second, second >= 0
}

// Swappable lists every customer that has a second feasible depot.
func (in *Instance) Swappable(bound float64) []Swap {
	var out []Swap
	for c := 0; c < in.NumCustomers; c++ {
		closest := in.ClosestDepot(c)
		if second, ok := in.SecondClosestDepot(c, closest, bound); ok {
			out = append(out, Swap{Customer: c, Closest: closest, Second: second})
		}
	}
	return out
}

// TotalDemand sums every customer's demand.
func (in *Instance) TotalDemand() float64 {
	total := 0.0
	for _, c := range in.Customers {
		total += c.Demand
	}
	return total
}

func Euclidean(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
