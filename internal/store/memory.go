package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "mdvrp/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    runs   map[string]model.Run                // id -> run
    order  []string                            // run ids in creation order
    gens   map[string][]model.GenerationStat   // run id -> history
    subs   []model.Subscription
    // Webhooks queue state
    deliveries map[string]*WebhookDelivery     // id -> delivery state
    dorder     []string
    solverCfg  map[string]any
}

func NewMemory() *Memory {
    return &Memory{
        runs: map[string]model.Run{},
        gens: map[string][]model.GenerationStat{},
        deliveries: map[string]*WebhookDelivery{},
    }
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    if run.Status == "" { run.Status = model.RunQueued }
    m.runs[run.ID] = run
    m.order = append(m.order, run.ID)
    return run, nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[id]
    if !ok { return model.Run{}, ErrNotFound }
    return r, nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[run.ID]; !ok { return ErrNotFound }
    m.runs[run.ID] = run
    return nil
}

// ListRuns pages newest first; the cursor is the last id of the previous page.
func (m *Memory) ListRuns(ctx context.Context, status, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > 500 { limit = 100 }
    start := len(m.order) - 1
    if cursor != "" {
        // an unknown cursor yields an empty page, as in Postgres
        start = -1
        for i := len(m.order) - 1; i >= 0; i-- {
            if m.order[i] == cursor { start = i - 1; break }
        }
    }
    out := []model.Run{}
    var next string
    for i := start; i >= 0 && len(out) < limit; i-- {
        r := m.runs[m.order[i]]
        if status == "" || string(r.Status) == status { out = append(out, r) }
        next = r.ID
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) AppendGenerations(ctx context.Context, runID string, stats []model.GenerationStat) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[runID]; !ok { return ErrNotFound }
    m.gens[runID] = append(m.gens[runID], stats...)
    return nil
}

// ListGenerations returns rows with Generation > after.
func (m *Memory) ListGenerations(ctx context.Context, runID string, after, limit int) ([]model.GenerationStat, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[runID]; !ok { return nil, ErrNotFound }
    all := m.gens[runID]
    i := sort.Search(len(all), func(i int) bool { return all[i].Generation > after })
    if limit <= 0 { limit = 1000 }
    end := i + limit
    if end > len(all) { end = len(all) }
    return append([]model.GenerationStat{}, all[i:end]...), nil
}

func (m *Memory) GetSolverConfig(ctx context.Context) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.solverCfg == nil { return nil, nil }
    out := make(map[string]any, len(m.solverCfg))
    for k, v := range m.solverCfg { out[k] = v }
    return out, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, cfg map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.solverCfg = cfg
    return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription{}, list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Subscription, 0, len(m.subs))
    found := false
    for _, s := range m.subs { if s.ID != id { out = append(out, s) } else { found = true } }
    if !found { return ErrNotFound }
    m.subs = out
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    m.deliveries[id] = &WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", NextAttemptAt: time.Now()}
    m.dorder = append(m.dorder, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.dorder {
        d := m.deliveries[id]
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []WebhookDelivery{}
    for i := len(m.dorder) - 1; i >= 0 && len(out) < limit; i-- {
        d := m.deliveries[m.dorder[i]]
        if status == "" || d.Status == status { out = append(out, *d) }
    }
    return out, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Status = "pending"
    d.NextAttemptAt = time.Now()
    return nil
}
