package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"mdvrp/internal/store"
)

type Publisher struct {
	Store store.Store
	Log   *slog.Logger
}

func NewPublisher(s store.Store, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{Store: s, Log: log}
}

// Emit queues one delivery per subscription listening for eventType.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		p.Log.Warn("webhook subscriptions lookup failed", "event", eventType, "err", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn("webhook enqueue failed", "subscription", s.ID, "err", err)
		}
	}
}
