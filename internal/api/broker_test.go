package api

import (
    "testing"
    "time"

    "mdvrp/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    rid := "r1"
    ch := b.Subscribe(rid)

    evt := model.RunEvent{Type: model.EventRunProgress, RunID: rid, Data: map[string]any{"generation": 1}}
    b.Publish(rid, evt)
    b.Publish("other", model.RunEvent{Type: model.EventRunFailed})

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["generation"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(rid, ch)
    b.Unsubscribe(rid, ch) // second call is a no-op
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    b.Publish(rid, evt)
}

func TestBrokerDropsWhenFull(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("r")
    defer b.Unsubscribe("r", ch)
    for i := 0; i < 100; i++ {
        b.Publish("r", model.RunEvent{Type: model.EventRunProgress})
    }
    if len(ch) != cap(ch) { t.Fatalf("expected full buffer, got %d/%d", len(ch), cap(ch)) }
}

func TestBrokerKeepsTerminalEventWhenFull(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("r")
    defer b.Unsubscribe("r", ch)
    for i := 0; i < cap(ch); i++ {
        b.Publish("r", model.RunEvent{Type: model.EventRunProgress})
    }
    b.Publish("r", model.RunEvent{Type: model.EventRunCompleted})
    var last model.RunEvent
    for len(ch) > 0 { last = <-ch }
    if last.Type != model.EventRunCompleted { t.Fatalf("terminal event dropped, last=%s", last.Type) }
}
