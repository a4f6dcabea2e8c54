package opt

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrNoStopCondition rejects parameter sets that would evolve forever.
var ErrNoStopCondition = errors.New("invalid parameters: one of generations, timeBudgetSeconds or fitnessTarget must be set")

// MutationWeights is the probability table used to pick a mutation operator.
type MutationWeights struct {
	Reroute float64 `yaml:"reroute" json:"reroute" validate:"gte=0"`
	Reverse float64 `yaml:"reverse" json:"reverse" validate:"gte=0"`
	Swap    float64 `yaml:"swap" json:"swap" validate:"gte=0"`
	Migrate float64 `yaml:"migrate" json:"migrate" validate:"gte=0"`
}

func (w MutationWeights) sum() float64 { return w.Reroute + w.Reverse + w.Swap + w.Migrate }

// Parameters is read-only for the duration of a run.
type Parameters struct {
	PopulationSize        int     `yaml:"populationSize" json:"populationSize" validate:"gte=2"`
	Generations           int     `yaml:"generations" json:"generations" validate:"gte=0"`
	ElitismCount          int     `yaml:"elitismCount" json:"elitismCount" validate:"gte=0,ltfield=PopulationSize"`
	TournamentKeepBest    float64 `yaml:"tournamentKeepBestProbability" json:"tournamentKeepBestProbability" validate:"gte=0,lte=1"`
	CrossoverProbability  float64 `yaml:"crossoverProbability" json:"crossoverProbability" validate:"gte=0,lte=1"`
	MutationProbability   float64 `yaml:"mutationProbability" json:"mutationProbability" validate:"gte=0,lte=1"`
	InsertBestProbability float64 `yaml:"insertBestProbability" json:"insertBestProbability" validate:"gte=0,lte=1"`
	SecondDepotSwapBound  float64 `yaml:"secondDepotSwapBound" json:"secondDepotSwapBound" validate:"gte=0"`
	DemandPenaltyWeight   float64 `yaml:"demandPenaltyWeight" json:"demandPenaltyWeight" validate:"gte=0"`
	LengthPenaltyWeight   float64 `yaml:"lengthPenaltyWeight" json:"lengthPenaltyWeight" validate:"gte=0"`
	// TimeBudgetSeconds of 0 disables the wall-clock limit.
	TimeBudgetSeconds float64 `yaml:"timeBudgetSeconds" json:"timeBudgetSeconds" validate:"gte=0"`
	// FitnessTarget stops the run once a feasible solution reaches it; nil means no target.
	FitnessTarget   *float64        `yaml:"fitnessTarget,omitempty" json:"fitnessTarget,omitempty"`
	MutationWeights MutationWeights `yaml:"mutationWeights" json:"mutationWeights"`
	// Seed of 0 draws a time-based seed.
	Seed    int64 `yaml:"seed" json:"seed"`
	Workers int   `yaml:"workers" json:"workers" validate:"gte=0,lte=256"`
}

// DefaultParameters mirrors the tuning the benchmark results were produced with.
func DefaultParameters() Parameters {
	return Parameters{
		PopulationSize:        400,
		Generations:           3000,
		ElitismCount:          4,
		TournamentKeepBest:    0.8,
		CrossoverProbability:  0.6,
		MutationProbability:   0.4,
		InsertBestProbability: 0.8,
		SecondDepotSwapBound:  0.5,
		DemandPenaltyWeight:   10,
		LengthPenaltyWeight:   15,
		TimeBudgetSeconds:     300,
		MutationWeights: MutationWeights{
			Reroute: 0.5,
			Reverse: 0.25,
			Swap:    0.25,
		},
		Workers: 1,
	}
}

func (p Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid parameters: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if p.Generations == 0 && p.TimeBudgetSeconds == 0 && p.FitnessTarget == nil {
		return ErrNoStopCondition
	}
	if p.MutationProbability > 0 && p.MutationWeights.sum() <= 0 {
		return fmt.Errorf("invalid parameters: mutationWeights must have a positive entry when mutationProbability > 0")
	}
	return nil
}

func (p Parameters) TimeBudget() time.Duration {
	return time.Duration(p.TimeBudgetSeconds * float64(time.Second))
}
