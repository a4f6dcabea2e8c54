package model

import (
    "encoding/json"
    "time"

    "mdvrp/internal/buildinfo"
    "mdvrp/internal/opt"
)

type RunStatus string

const (
    RunQueued    RunStatus = "queued"
    RunRunning   RunStatus = "running"
    RunCompleted RunStatus = "completed"
    RunFailed    RunStatus = "failed"
    RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run will not change any more.
func (s RunStatus) Terminal() bool {
    return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// RunRequest submits one GA run. Exactly one of InstanceName and Instance is set.
type RunRequest struct {
    InstanceName string          `json:"instanceName,omitempty" validate:"omitempty,max=64,excludesall=/\\"`
    Instance     string          `json:"instance,omitempty" validate:"omitempty,max=4194304"`
    Parameters   json.RawMessage `json:"parameters,omitempty"`
    Seed         *int64          `json:"seed,omitempty"`
}

type Run struct {
    ID           string            `json:"id"`
    Instance     string            `json:"instance"`
    Status       RunStatus         `json:"status"`
    Parameters   opt.Parameters    `json:"parameters"`
    Seed         int64             `json:"seed"`
    Fitness      *float64          `json:"fitness,omitempty"`
    Cost         *float64          `json:"cost,omitempty"`
    Feasible     bool              `json:"feasible"`
    Generations  int               `json:"generations"`
    StopReason   string            `json:"stopReason,omitempty"`
    ElapsedMs    int64             `json:"elapsedMs"`
    Metrics      *opt.Metrics      `json:"metrics,omitempty"`
    Report       string            `json:"-"`
    Error        string            `json:"error,omitempty"`
    System       buildinfo.SysInfo `json:"system"`
    CreatedAt    time.Time         `json:"createdAt"`
    StartedAt    *time.Time        `json:"startedAt,omitempty"`
    FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}

// GenerationStat is one persisted row of a run's progress history.
type GenerationStat struct {
    Generation   int      `json:"generation"`
    Best         float64  `json:"best"`
    Mean         float64  `json:"mean"`
    StdDev       float64  `json:"stdDev"`
    BestFeasible *float64 `json:"bestFeasible,omitempty"`
    ElapsedMs    int64    `json:"elapsedMs"`
}

func GenerationFromStats(s opt.Stats) GenerationStat {
    g := GenerationStat{Generation: s.Generation, Best: s.Best, Mean: s.Mean, StdDev: s.StdDev, ElapsedMs: s.Elapsed.Milliseconds()}
    if s.HasFeasible {
        v := s.BestFeasible
        g.BestFeasible = &v
    }
    return g
}

// RunEvent is pushed to stream subscribers and webhook receivers.
type RunEvent struct {
    Type  string         `json:"type"` // run.progress, run.completed, run.failed
    RunID string         `json:"runId"`
    TS    string         `json:"ts"`
    Data  map[string]any `json:"data,omitempty"`
}

const (
    EventRunProgress  = "run.progress"
    EventRunCompleted = "run.completed"
    EventRunFailed    = "run.failed"
)

type InstanceInfo struct {
    Name        string  `json:"name"`
    Depots      int     `json:"depots"`
    Customers   int     `json:"customers"`
    Vehicles    int     `json:"vehiclesPerDepot"`
    MaxLoad     float64 `json:"maxLoad"`
    MaxLength   float64 `json:"maxRouteLength"`
    TotalDemand float64 `json:"totalDemand"`
}

type SubscriptionRequest struct {
    URL    string   `json:"url" validate:"required,url"`
    Events []string `json:"events" validate:"required,min=1,dive,oneof=run.progress run.completed run.failed"`
    Secret string   `json:"secret" validate:"omitempty,min=8"`
}

type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}
