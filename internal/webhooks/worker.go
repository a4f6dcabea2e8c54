package webhooks

import (
    "bytes"
    "context"
    "log/slog"
    "net/http"
    "strconv"
    "time"

    "mdvrp/internal/metrics"
    "mdvrp/internal/store"
)

// Worker polls due deliveries and POSTs them with exponential backoff.
type Worker struct {
    Store store.Store
    HTTP  *http.Client
    Stop  chan struct{}
    MaxAttempts int
    Log   *slog.Logger
}

func NewWorker(s store.Store, maxAttempts int, log *slog.Logger) *Worker {
    if maxAttempts <= 0 { maxAttempts = 10 }
    if log == nil { log = slog.Default() }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Log: log}
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(1 * time.Second)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil {
        w.logger().Warn("fetch due webhooks", "err", err)
        return
    }
    for _, it := range items {
        success := false
        next := time.Now().Add(nextBackoff(it.Attempts))
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
        if err != nil {
            _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
            w.observe(it.EventType, "failed", 0)
            continue
        }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        if it.Secret != "" {
            req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload, time.Now()))
        }
        start := time.Now()
        resp, err := w.HTTP.Do(req)
        latency := int(time.Since(start).Milliseconds())
        code := 0
        if err == nil && resp != nil {
            code = resp.StatusCode
            if resp.Body != nil { _ = resp.Body.Close() }
            if code >= 200 && code < 300 { success = true }
        }
        lastErr := ""
        if !success {
            if err != nil { lastErr = err.Error() } else { lastErr = "status " + strconv.Itoa(code) }
        }
        if !success && it.Attempts+1 >= w.MaxAttempts {
            _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
            w.observe(it.EventType, "failed", latency)
            w.logger().Warn("webhook delivery failed permanently", "id", it.ID, "url", it.URL, "attempts", it.Attempts+1, "err", lastErr)
            continue
        }
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency)
        if success { w.observe(it.EventType, "delivered", latency) } else { w.observe(it.EventType, "retry", latency) }
    }
}

func (w *Worker) observe(eventType, status string, latencyMs int) {
    metrics.WebhookDeliveries.WithLabelValues(eventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(eventType, status).Observe(float64(latencyMs))
}

func (w *Worker) logger() *slog.Logger {
    if w.Log == nil { return slog.Default() }
    return w.Log
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
