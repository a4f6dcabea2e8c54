package store

import "time"

type WebhookDelivery struct {
    ID             string     `json:"id"`
    SubscriptionID string     `json:"subscriptionId,omitempty"`
    EventType      string     `json:"eventType"`
    URL            string     `json:"url"`
    Secret         string     `json:"-"`
    Payload        []byte     `json:"-"`
    Status         string     `json:"status"` // pending, retry, delivered, failed
    Attempts       int        `json:"attempts"`
    NextAttemptAt  time.Time  `json:"nextAttemptAt,omitempty"`
    LastError      string     `json:"lastError,omitempty"`
    ResponseCode   int        `json:"responseCode,omitempty"`
    LatencyMs      int        `json:"latencyMs,omitempty"`
    DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}
