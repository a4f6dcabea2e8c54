package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "embed"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "mdvrp/internal/model"
    "mdvrp/internal/opt"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Every statement is
// idempotent so it is safe on each start.
func (p *Postgres) Migrate(ctx context.Context) error {
    names, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, n := range names {
        b, err := migrations.ReadFile(n)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", n, err)
        }
    }
    return nil
}

const runColumns = `id::text, instance, status, parameters, seed, fitness, cost, feasible, generations, COALESCE(stop_reason,''), elapsed_ms, metrics, COALESCE(report,''), COALESCE(error,''), system, created_at, started_at, finished_at`

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    if run.Status == "" { run.Status = model.RunQueued }
    params, err := json.Marshal(run.Parameters)
    if err != nil { return model.Run{}, err }
    sys, _ := json.Marshal(run.System)
    _, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, instance, status, parameters, seed, system, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
        run.ID, run.Instance, string(run.Status), params, run.Seed, sys, run.CreatedAt)
    if err != nil { return model.Run{}, err }
    return run, nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Run{}, ErrNotFound }
    row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id)
    r, err := scanRun(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
    params, err := json.Marshal(run.Parameters)
    if err != nil { return err }
    sys, _ := json.Marshal(run.System)
    var metrics any
    if run.Metrics != nil {
        b, _ := json.Marshal(run.Metrics)
        metrics = b
    }
    res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$2, parameters=$3, seed=$4, fitness=$5, cost=$6, feasible=$7, generations=$8, stop_reason=$9,
        elapsed_ms=$10, metrics=$11, report=$12, error=$13, system=$14, started_at=$15, finished_at=$16 WHERE id=$1`,
        run.ID, string(run.Status), params, run.Seed, run.Fitness, run.Cost, run.Feasible, run.Generations, nullIfEmpty(run.StopReason),
        run.ElapsedMs, metrics, nullIfEmpty(run.Report), nullIfEmpty(run.Error), sys, run.StartedAt, run.FinishedAt)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// ListRuns pages newest first. The cursor is the id of the last run of the
// previous page.
func (p *Postgres) ListRuns(ctx context.Context, status, cursor string, limit int) ([]model.Run, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + runColumns + ` FROM runs WHERE ($1 = '' OR status = $1)`
    args := []any{status}
    if cursor != "" {
        q += ` AND seq < (SELECT seq FROM runs WHERE id::text = $2)`
        args = append(args, cursor)
    }
    q += fmt.Sprintf(` ORDER BY seq DESC LIMIT %d`, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    var last string
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
        last = r.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(row scanner) (model.Run, error) {
    var r model.Run
    var status string
    var params, metrics, sys []byte
    var fitness, cost sql.NullFloat64
    var started, finished sql.NullTime
    if err := row.Scan(&r.ID, &r.Instance, &status, &params, &r.Seed, &fitness, &cost, &r.Feasible, &r.Generations, &r.StopReason,
        &r.ElapsedMs, &metrics, &r.Report, &r.Error, &sys, &r.CreatedAt, &started, &finished); err != nil {
        return r, err
    }
    r.Status = model.RunStatus(status)
    if err := json.Unmarshal(params, &r.Parameters); err != nil { return r, fmt.Errorf("run %s parameters: %w", r.ID, err) }
    if len(metrics) > 0 {
        r.Metrics = new(opt.Metrics)
        _ = json.Unmarshal(metrics, r.Metrics)
    }
    if len(sys) > 0 { _ = json.Unmarshal(sys, &r.System) }
    if fitness.Valid { v := fitness.Float64; r.Fitness = &v }
    if cost.Valid { v := cost.Float64; r.Cost = &v }
    if started.Valid { t := started.Time; r.StartedAt = &t }
    if finished.Valid { t := finished.Time; r.FinishedAt = &t }
    return r, nil
}

func (p *Postgres) AppendGenerations(ctx context.Context, runID string, stats []model.GenerationStat) error {
    if len(stats) == 0 { return nil }
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, g := range stats {
        _, err = tx.ExecContext(ctx, `INSERT INTO run_generations (run_id, generation, best, mean, std_dev, best_feasible, elapsed_ms) VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (run_id, generation) DO NOTHING`, runID, g.Generation, g.Best, g.Mean, g.StdDev, g.BestFeasible, g.ElapsedMs)
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *Postgres) ListGenerations(ctx context.Context, runID string, after, limit int) ([]model.GenerationStat, error) {
    if _, err := p.GetRun(ctx, runID); err != nil { return nil, err }
    if limit <= 0 || limit > 10000 { limit = 1000 }
    rows, err := p.db.QueryContext(ctx, `SELECT generation, best, mean, std_dev, best_feasible, elapsed_ms FROM run_generations
        WHERE run_id=$1 AND generation > $2 ORDER BY generation LIMIT $3`, runID, after, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.GenerationStat{}
    for rows.Next() {
        var g model.GenerationStat
        var bf sql.NullFloat64
        if err := rows.Scan(&g.Generation, &g.Best, &g.Mean, &g.StdDev, &bf, &g.ElapsedMs); err != nil { return nil, err }
        if bf.Valid { v := bf.Float64; g.BestFeasible = &v }
        out = append(out, g)
    }
    return out, rows.Err()
}

func (p *Postgres) GetSolverConfig(ctx context.Context) (map[string]any, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM solver_config WHERE id=1`)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, cfg map[string]any) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO solver_config (id, config, updated_at) VALUES (1, $1, now())
        ON CONFLICT (id) DO UPDATE SET config=$1, updated_at=now()`, js)
    return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    ev, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE events @> $1::jsonb`, string(ev))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at
        FROM webhook_deliveries WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`, status, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var delivered sql.NullTime
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil { return nil, err }
        if delivered.Valid { t := delivered.Time; d.DeliveredAt = &t }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
