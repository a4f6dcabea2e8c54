package opt

import (
	"math/rand"
	"slices"
)

// Crossover exchanges route content between two parents in place. One depot
// and one route index per parent are drawn; each parent loses the customers
// of the other's route and gets them back through BestCostInsertions on the
// same depot. Routes with identical customer sets leave both parents as-is.
func Crossover(a, b *Solution, rng *rand.Rand) bool {
	depot := rng.Intn(len(a.Depots))
	ra := rng.Intn(len(a.Depots[depot].Routes))
	rb := rng.Intn(len(b.Depots[depot].Routes))
	return exchangeRoutes(a, b, depot, ra, rb, rng)
}

func exchangeRoutes(a, b *Solution, depot, ra, rb int, rng *rand.Rand) bool {
	fromA := a.Depots[depot].Routes[ra].Customers()
	fromB := b.Depots[depot].Routes[rb].Customers()
	if sameCustomers(fromA, fromB) {
		return false
	}

	movedA := a.removeCustomers(depot, fromB)
	movedB := b.removeCustomers(depot, fromA)
	a.Depots[depot].BestCostInsertions(a.inst, a.params, rng, movedA)
	b.Depots[depot].BestCostInsertions(b.inst, b.params, rng, movedB)
	return true
}

func sameCustomers(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	xs := slices.Clone(x)
	ys := slices.Clone(y)
	slices.Sort(xs)
	slices.Sort(ys)
	return slices.Equal(xs, ys)
}
