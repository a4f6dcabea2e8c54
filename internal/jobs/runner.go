// Package jobs executes GA runs in the background for the API.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mdvrp/internal/buildinfo"
	"mdvrp/internal/instances"
	"mdvrp/internal/metrics"
	"mdvrp/internal/model"
	"mdvrp/internal/notify"
	"mdvrp/internal/opt"
	"mdvrp/internal/problem"
	"mdvrp/internal/report"
	"mdvrp/internal/store"
)

// ErrInvalidInstance wraps instance text that does not parse.
var ErrInvalidInstance = errors.New("invalid instance")

// EventSink fans run events out to stream subscribers.
type EventSink interface {
	Publish(runID string, ev model.RunEvent)
}

// Emitter queues webhook deliveries for an event type.
type Emitter interface {
	Emit(ctx context.Context, eventType string, data any)
}

type Config struct {
	Store       store.Store
	Source      instances.Source
	Events      EventSink
	Hooks       Emitter
	Notifier    notify.Notifier
	Log         *slog.Logger
	MaxRuns     int
	ProgressRPS float64
	// FlushEvery bounds how many generation rows are buffered before a store write.
	FlushEvery int
}

// Runner owns the goroutines of in-flight runs. At most MaxRuns evolve at
// once; the rest wait in queued state.
type Runner struct {
	cfg  Config
	sem  chan struct{}
	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(cfg Config) *Runner {
	if cfg.MaxRuns < 1 {
		cfg.MaxRuns = 1
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 50
	}
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxRuns),
		base:    base,
		stop:    stop,
		cancels: map[string]context.CancelFunc{},
	}
}

// Resolve turns a request into a parsed instance, either from inline text
// or by suite name.
func (r *Runner) Resolve(ctx context.Context, req model.RunRequest) (*problem.Instance, error) {
	if strings.TrimSpace(req.Instance) != "" {
		inst, err := problem.Parse(strings.NewReader(req.Instance), "inline")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInstance, err)
		}
		return inst, nil
	}
	return r.cfg.Source.Load(ctx, req.InstanceName)
}

// Submit records a queued run and starts it in the background.
func (r *Runner) Submit(ctx context.Context, inst *problem.Instance, params opt.Parameters) (model.Run, error) {
	if err := params.Validate(); err != nil {
		return model.Run{}, err
	}
	if params.Seed == 0 {
		params.Seed = time.Now().UnixNano()
	}
	run, err := r.cfg.Store.CreateRun(ctx, model.Run{
		Instance:   inst.Name,
		Status:     model.RunQueued,
		Parameters: params,
		Seed:       params.Seed,
		System:     buildinfo.System(),
	})
	if err != nil {
		return model.Run{}, err
	}
	runCtx, cancel := context.WithCancel(r.base)
	r.mu.Lock()
	r.cancels[run.ID] = cancel
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.forget(run.ID)
		r.execute(runCtx, run, inst)
	}()
	return run, nil
}

// Cancel stops a queued or running run. It reports whether the run was live.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every run and waits for them to record their final state.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop()
	done := make(chan struct{})
	go func() { r.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted run has finished.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) forget(id string) {
	r.mu.Lock()
	if c, ok := r.cancels[id]; ok {
		c()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, run model.Run, inst *problem.Instance) {
	log := r.cfg.Log.With("run", run.ID, "instance", run.Instance)
	// Store writes must outlive the run's own cancellation.
	bg := context.WithoutCancel(ctx)

	acquired := false
	select {
	case r.sem <- struct{}{}:
		acquired = true
	case <-ctx.Done():
	}
	if acquired && ctx.Err() != nil {
		<-r.sem
		acquired = false
	}
	if !acquired {
		now := time.Now().UTC()
		run.Status, run.FinishedAt, run.Error = model.RunCancelled, &now, "cancelled before start"
		r.persist(bg, log, run)
		r.finish(bg, run)
		return
	}
	defer func() { <-r.sem }()

	now := time.Now().UTC()
	run.Status, run.StartedAt = model.RunRunning, &now
	r.persist(bg, log, run)
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()
	log.Info("run started", "seed", run.Seed, "population", run.Parameters.PopulationSize)

	var (
		limiter = rate.NewLimiter(rate.Limit(r.progressRPS()), 1)
		buf     []model.GenerationStat
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		if err := r.cfg.Store.AppendGenerations(bg, run.ID, buf); err != nil {
			log.Warn("append generations failed", "err", err)
		}
		buf = buf[:0]
	}
	observer := func(st opt.Stats) {
		metrics.Generations.WithLabelValues(run.Instance).Inc()
		g := model.GenerationFromStats(st)
		buf = append(buf, g)
		if len(buf) >= r.cfg.FlushEvery {
			flush()
		}
		if limiter.Allow() {
			r.publish(run.ID, model.EventRunProgress, progressData(g))
		}
	}

	res, err := opt.Solve(ctx, inst, run.Parameters, observer)
	flush()

	fin := time.Now().UTC()
	run.FinishedAt = &fin
	run.Generations = res.Generations
	run.StopReason = res.StopReason
	run.ElapsedMs = res.Elapsed.Milliseconds()
	metrics.RunDuration.WithLabelValues(run.Instance).Observe(res.Elapsed.Seconds())

	switch {
	case err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
		run.Status, run.Error = model.RunFailed, err.Error()
	default:
		if res.Best != nil {
			rep := report.FromSolution(res.Best)
			fit, cost := res.Best.Fitness(), res.Best.Cost()
			run.Fitness, run.Cost, run.Feasible = &fit, &cost, res.Feasible
			run.Report = rep.String()
			m := res.Metrics
			run.Metrics = &m
			if res.Feasible {
				metrics.BestFitness.WithLabelValues(run.Instance).Set(fit)
			}
		}
		run.Status = model.RunCompleted
		if err != nil {
			run.Status = model.RunCancelled
		}
	}
	r.persist(bg, log, run)
	r.finish(bg, run)
	log.Info("run finished", "status", run.Status, "generations", run.Generations, "stop", run.StopReason, "elapsed_ms", run.ElapsedMs)
}

func (r *Runner) persist(ctx context.Context, log *slog.Logger, run model.Run) {
	if err := r.cfg.Store.UpdateRun(ctx, run); err != nil {
		log.Error("update run failed", "status", run.Status, "err", err)
	}
}

// finish publishes the terminal event to every channel.
func (r *Runner) finish(ctx context.Context, run model.Run) {
	metrics.Runs.WithLabelValues(run.Instance, string(run.Status)).Inc()
	ev := TerminalEvent(run)
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(run.ID, ev)
	}
	if r.cfg.Hooks != nil {
		r.cfg.Hooks.Emit(ctx, ev.Type, ev)
	}
	if ev.Type == model.EventRunCompleted {
		if err := r.cfg.Notifier.Notify(ctx, ev); err != nil {
			r.cfg.Log.Warn("notify failed", "run", run.ID, "err", err)
		}
	}
}

// TerminalEvent summarizes a finished run. Cancelled and failed runs are
// both reported as run.failed with their status in the data.
func TerminalEvent(run model.Run) model.RunEvent {
	typ := model.EventRunCompleted
	if run.Status != model.RunCompleted {
		typ = model.EventRunFailed
	}
	data := map[string]any{
		"status":      string(run.Status),
		"instance":    run.Instance,
		"generations": run.Generations,
		"stopReason":  run.StopReason,
		"feasible":    run.Feasible,
		"elapsedMs":   run.ElapsedMs,
	}
	if run.Fitness != nil {
		data["fitness"] = *run.Fitness
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	ts := time.Now().UTC()
	if run.FinishedAt != nil {
		ts = *run.FinishedAt
	}
	return model.RunEvent{Type: typ, RunID: run.ID, TS: ts.Format(time.RFC3339Nano), Data: data}
}

func (r *Runner) publish(runID, typ string, data map[string]any) {
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(runID, model.RunEvent{Type: typ, RunID: runID, TS: time.Now().UTC().Format(time.RFC3339Nano), Data: data})
	}
}

func (r *Runner) progressRPS() float64 {
	if r.cfg.ProgressRPS <= 0 {
		return float64(rate.Inf)
	}
	return r.cfg.ProgressRPS
}

func progressData(g model.GenerationStat) map[string]any {
	d := map[string]any{
		"generation": g.Generation,
		"best":       g.Best,
		"mean":       g.Mean,
		"stdDev":     g.StdDev,
		"elapsedMs":  g.ElapsedMs,
	}
	if g.BestFeasible != nil {
		d["bestFeasible"] = *g.BestFeasible
	}
	return d
}
