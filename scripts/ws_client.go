// Package main submits a demo run and follows its progress stream.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type runEvent struct {
	Type  string         `json:"type"`
	RunID string         `json:"runId"`
	TS    string         `json:"ts"`
	Data  map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	instance := "p01"
	if len(os.Args) > 1 {
		instance = os.Args[1]
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Submit a short run
	body, _ := json.Marshal(map[string]any{
		"instanceName": instance,
		"parameters":   map[string]any{"populationSize": 100, "generations": 300, "timeBudgetSeconds": 30},
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		log.Fatalf("submit failed: %s %s", resp.Status, b)
	}
	var created struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", created.RunID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + created.RunID + "/stream"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
		var ev runEvent
		if err := c.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Fatalf("read: %v", err)
		}
		switch ev.Type {
		case "run.progress":
			log.Printf("gen %v best=%.2f mean=%.2f", ev.Data["generation"], ev.Data["best"], ev.Data["mean"])
		default:
			log.Printf("%s: %v", ev.Type, ev.Data)
		}
	}
}
