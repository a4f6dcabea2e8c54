package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdvrp/internal/instances"
	"mdvrp/internal/model"
	"mdvrp/internal/opt"
	"mdvrp/internal/store"
)

const toy = `2 4 2
100 0
100 0
1 10 0 0 10
2 12 2 0 20
3 -10 0 0 10
4 -11 -3 0 30
5 0 0
6 -20 0
`

type sink struct {
	mu     sync.Mutex
	events []model.RunEvent
	notify chan string
}

func newSink() *sink { return &sink{notify: make(chan string, 1024)} }

func (s *sink) Publish(runID string, ev model.RunEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	select {
	case s.notify <- ev.Type:
	default:
	}
}

func (s *sink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type hooks struct {
	mu    sync.Mutex
	types []string
}

func (h *hooks) Emit(ctx context.Context, eventType string, data any) {
	h.mu.Lock()
	h.types = append(h.types, eventType)
	h.mu.Unlock()
}

type notes struct {
	mu   sync.Mutex
	runs []string
}

func (n *notes) Notify(ctx context.Context, ev model.RunEvent) error {
	n.mu.Lock()
	n.runs = append(n.runs, ev.RunID)
	n.mu.Unlock()
	return nil
}
func (n *notes) Close() error { return nil }

func smallParams() opt.Parameters {
	p := opt.DefaultParameters()
	p.PopulationSize = 12
	p.ElitismCount = 2
	p.Generations = 15
	p.TimeBudgetSeconds = 0
	p.Seed = 42
	return p
}

func newRunner(t *testing.T, maxRuns int) (*Runner, *store.Memory, *sink, *hooks, *notes) {
	t.Helper()
	st := store.NewMemory()
	sk, hk, nt := newSink(), &hooks{}, &notes{}
	r := NewRunner(Config{
		Store:      st,
		Source:     instances.NewDirSource(t.TempDir()),
		Events:     sk,
		Hooks:      hk,
		Notifier:   nt,
		MaxRuns:    maxRuns,
		FlushEvery: 4,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, st, sk, hk, nt
}

func TestRunnerCompletesRun(t *testing.T) {
	r, st, sk, hk, nt := newRunner(t, 1)
	ctx := context.Background()
	inst, err := r.Resolve(ctx, model.RunRequest{Instance: toy})
	require.NoError(t, err)

	run, err := r.Submit(ctx, inst, smallParams())
	require.NoError(t, err)
	assert.Equal(t, model.RunQueued, run.Status)
	r.Wait()

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	assert.Equal(t, 15, got.Generations)
	assert.Equal(t, opt.StopGenerations, got.StopReason)
	require.NotNil(t, got.Fitness)
	assert.True(t, got.Feasible)
	assert.NotEmpty(t, got.Report)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, int64(42), got.Seed)

	gens, err := st.ListGenerations(ctx, run.ID, 0, 100)
	require.NoError(t, err)
	assert.Len(t, gens, 15)

	types := sk.types()
	require.NotEmpty(t, types)
	assert.Equal(t, model.EventRunCompleted, types[len(types)-1])
	assert.Contains(t, types, model.EventRunProgress)
	assert.Equal(t, []string{model.EventRunCompleted}, hk.types)
	assert.Equal(t, []string{run.ID}, nt.runs)
}

func TestRunnerCancelRunning(t *testing.T) {
	r, st, sk, hk, nt := newRunner(t, 1)
	ctx := context.Background()
	inst, err := r.Resolve(ctx, model.RunRequest{Instance: toy})
	require.NoError(t, err)
	p := smallParams()
	p.Generations = 0
	p.TimeBudgetSeconds = 60

	run, err := r.Submit(ctx, inst, p)
	require.NoError(t, err)
	select {
	case <-sk.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress event")
	}
	assert.True(t, r.Cancel(run.ID))
	r.Wait()
	assert.False(t, r.Cancel(run.ID))

	got, _ := st.GetRun(ctx, run.ID)
	assert.Equal(t, model.RunCancelled, got.Status)
	assert.Equal(t, opt.StopCancelled, got.StopReason)
	assert.NotNil(t, got.Fitness)
	assert.Equal(t, []string{model.EventRunFailed}, hk.types)
	assert.Empty(t, nt.runs)
}

func TestRunnerCancelQueued(t *testing.T) {
	r, st, sk, _, _ := newRunner(t, 1)
	ctx := context.Background()
	inst, err := r.Resolve(ctx, model.RunRequest{Instance: toy})
	require.NoError(t, err)
	p := smallParams()
	p.Generations = 0
	p.TimeBudgetSeconds = 60

	first, err := r.Submit(ctx, inst, p)
	require.NoError(t, err)
	<-sk.notify
	second, err := r.Submit(ctx, inst, p)
	require.NoError(t, err)

	assert.True(t, r.Cancel(second.ID))
	assert.True(t, r.Cancel(first.ID))
	r.Wait()

	got, _ := st.GetRun(ctx, second.ID)
	assert.Equal(t, model.RunCancelled, got.Status)
	assert.Nil(t, got.StartedAt)
}

func TestRunnerResolveErrors(t *testing.T) {
	r, _, _, _, _ := newRunner(t, 1)
	ctx := context.Background()
	_, err := r.Resolve(ctx, model.RunRequest{Instance: "not an instance"})
	assert.True(t, errors.Is(err, ErrInvalidInstance))
	_, err = r.Resolve(ctx, model.RunRequest{InstanceName: "p99"})
	assert.True(t, errors.Is(err, instances.ErrUnknown))

	inst, err := r.Resolve(ctx, model.RunRequest{Instance: toy})
	require.NoError(t, err)
	assert.Equal(t, "inline", inst.Name)
}

func TestRunnerRejectsInvalidParameters(t *testing.T) {
	r, _, _, _, _ := newRunner(t, 1)
	ctx := context.Background()
	inst, err := r.Resolve(ctx, model.RunRequest{Instance: toy})
	require.NoError(t, err)
	p := smallParams()
	p.PopulationSize = 1
	_, err = r.Submit(ctx, inst, p)
	assert.Error(t, err)

	p = smallParams()
	p.Generations, p.TimeBudgetSeconds = 0, 0
	_, err = r.Submit(ctx, inst, p)
	assert.ErrorIs(t, err, opt.ErrNoStopCondition)
}
