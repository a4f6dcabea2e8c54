// Package instances resolves benchmark instance names to parsed problems.
package instances

import (
    "context"
    "errors"
    "fmt"

    "mdvrp/internal/model"
    "mdvrp/internal/problem"
)

// ErrUnknown is returned for names the source does not hold.
var ErrUnknown = errors.New("unknown instance")

// Source defines the minimal interface for instance providers.
type Source interface {
    Name() string
    List(ctx context.Context) ([]string, error)
    Load(ctx context.Context, name string) (*problem.Instance, error)
}

// Suite is the classic Cordeau benchmark set run by the bench command.
func Suite() []string {
    out := make([]string, 0, 23)
    for i := 1; i <= 23; i++ {
        out = append(out, fmt.Sprintf("p%02d", i))
    }
    return out
}

func Describe(inst *problem.Instance) model.InstanceInfo {
    return model.InstanceInfo{
        Name:        inst.Name,
        Depots:      inst.NumDepots,
        Customers:   inst.NumCustomers,
        Vehicles:    inst.MaxVehicles,
        MaxLoad:     inst.MaxLoad,
        MaxLength:   inst.MaxLength,
        TotalDemand: inst.TotalDemand(),
    }
}
