package api

import (
    "sync"

    "mdvrp/internal/model"
)

// EventBroker fans run events out to stream subscribers keyed by run id.
type EventBroker interface {
    Subscribe(runID string) chan model.RunEvent
    Unsubscribe(runID string, ch chan model.RunEvent)
    Publish(runID string, evt model.RunEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan model.RunEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan model.RunEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan model.RunEvent {
    ch := make(chan model.RunEvent, 16)
    b.mu.Lock()
    if b.subs[runID] == nil { b.subs[runID] = map[chan model.RunEvent]struct{}{} }
    b.subs[runID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan model.RunEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[runID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, runID) }
    close(ch)
}

func (b *Broker) Publish(runID string, evt model.RunEvent) {
    b.mu.Lock()
    m := b.subs[runID]
    for ch := range m {
        select {
        case ch <- evt:
        default:
            if !terminalEvent(evt) { continue }
            // make room: a stream must always see how its run ended
            select { case <-ch: default: }
            select { case ch <- evt: default: }
        }
    }
    b.mu.Unlock()
}

func terminalEvent(evt model.RunEvent) bool {
    return evt.Type == model.EventRunCompleted || evt.Type == model.EventRunFailed
}
