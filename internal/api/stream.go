package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mdvrp/internal/jobs"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	writeWait  = 5 * time.Second
)

// RunStreamHandler handles GET /v1/runs/{id}/stream. Every event is a JSON
// RunEvent; the socket is closed after the terminal event.
func (s *Server) RunStreamHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(run.ID)
	defer s.Broker.Unsubscribe(run.ID, ch)

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}

	// Re-read after subscribing so a run that finished in between is not missed.
	if cur, err := s.Store.GetRun(r.Context(), run.ID); err == nil && cur.Status.Terminal() {
		_ = write(jobs.TerminalEvent(cur))
		closeNormal()
		return
	}

	// Read loop keeps pong deadlines moving and notices client close.
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				return
			}
			if terminalEvent(evt) {
				closeNormal()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
