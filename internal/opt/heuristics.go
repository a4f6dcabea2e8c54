package opt

import "mdvrp/internal/problem"

// reverseSegment reverses ord[i..k] in place.
func reverseSegment(ord []int, i, k int) {
	for i < k {
		ord[i], ord[k] = ord[k], ord[i]
		i++
		k--
	}
}

// pathDistance is the closed tour depot -> order... -> depot.
func pathDistance(inst *problem.Instance, depot int, order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := inst.DepotDistance(depot, order[0])
	for i := 0; i < len(order)-1; i++ {
		total += inst.CustomerDistance(order[i], order[i+1])
	}
	return total + inst.DepotDistance(depot, order[len(order)-1])
}

// entity maps a customer id onto the distance matrix index space.
func entity(inst *problem.Instance, customer int) int { return inst.NumDepots + customer }
