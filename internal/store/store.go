package store

import (
    "context"
    "errors"
    "time"

    "mdvrp/internal/model"
)

// Store is the persistence interface used by the API server and job runner.
type Store interface {
    // Runs
    CreateRun(ctx context.Context, run model.Run) (model.Run, error)
    GetRun(ctx context.Context, id string) (model.Run, error)
    UpdateRun(ctx context.Context, run model.Run) error
    ListRuns(ctx context.Context, status, cursor string, limit int) (items []model.Run, nextCursor string, err error)
    AppendGenerations(ctx context.Context, runID string, stats []model.GenerationStat) error
    ListGenerations(ctx context.Context, runID string, after, limit int) ([]model.GenerationStat, error)

    // Solver config overlay (admin)
    GetSolverConfig(ctx context.Context) (map[string]any, error)
    SaveSolverConfig(ctx context.Context, cfg map[string]any) error

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)
    RetryWebhookDelivery(ctx context.Context, id string) error
}

var ErrNotFound = errors.New("not found")
