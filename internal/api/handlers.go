package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"

    "mdvrp/internal/config"
    "mdvrp/internal/instances"
    "mdvrp/internal/jobs"
    "mdvrp/internal/model"
    "mdvrp/internal/opt"
    "mdvrp/internal/store"
)

// CreateRunHandler handles POST /v1/runs
func (s *Server) CreateRunHandler(w http.ResponseWriter, r *http.Request) {
    var req model.RunRequest
    r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateRunRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid run request", err.Error(), r.URL.Path)
        return
    }
    params, err := s.effectiveParameters(r.Context())
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Solver config unavailable", err.Error(), r.URL.Path)
        return
    }
    params, err = config.OverlayJSON(params, req.Parameters)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid parameters", err.Error(), r.URL.Path)
        return
    }
    if req.Seed != nil { params.Seed = *req.Seed }

    inst, err := s.Runner.Resolve(r.Context(), req)
    switch {
    case errors.Is(err, instances.ErrUnknown):
        writeProblem(w, http.StatusNotFound, "Unknown instance", req.InstanceName, r.URL.Path)
        return
    case errors.Is(err, jobs.ErrInvalidInstance):
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid instance", err.Error(), r.URL.Path)
        return
    case err != nil:
        writeProblem(w, http.StatusInternalServerError, "Load instance failed", err.Error(), r.URL.Path)
        return
    }
    run, err := s.Runner.Submit(r.Context(), inst, params)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Submit run failed", err.Error(), r.URL.Path)
        return
    }
    w.Header().Set("Location", "/v1/runs/"+run.ID)
    writeJSON(w, http.StatusAccepted, map[string]any{"runId": run.ID, "status": run.Status, "seed": run.Seed})
}

// ListRunsHandler handles GET /v1/runs
func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
    status := r.URL.Query().Get("status")
    if status != "" {
        switch model.RunStatus(status) {
        case model.RunQueued, model.RunRunning, model.RunCompleted, model.RunFailed, model.RunCancelled:
        default:
            writeProblem(w, http.StatusBadRequest, "Invalid status", status, r.URL.Path)
            return
        }
    }
    items, next, err := s.Store.ListRuns(r.Context(), status, r.URL.Query().Get("cursor"), queryInt(r, "limit", 100))
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (model.Run, bool) {
    run, err := s.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
        return run, false
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
        return run, false
    }
    return run, true
}

// GetRunHandler handles GET /v1/runs/{id}
func (s *Server) GetRunHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadRun(w, r)
    if !ok { return }
    writeJSON(w, http.StatusOK, run)
}

// CancelRunHandler handles DELETE /v1/runs/{id}
func (s *Server) CancelRunHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadRun(w, r)
    if !ok { return }
    if run.Status.Terminal() || !s.Runner.Cancel(run.ID) {
        writeProblem(w, http.StatusConflict, "Run already finished", string(run.Status), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]any{"runId": run.ID, "status": "cancelling"})
}

// RunReportHandler handles GET /v1/runs/{id}/report
func (s *Server) RunReportHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadRun(w, r)
    if !ok { return }
    if run.Report == "" {
        writeProblem(w, http.StatusConflict, "Report not available", "run status is "+string(run.Status), r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", run.Instance+".res"))
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte(run.Report))
}

// RunGenerationsHandler handles GET /v1/runs/{id}/generations?after=&limit=
func (s *Server) RunGenerationsHandler(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    after := queryInt(r, "after", 0)
    items, err := s.Store.ListGenerations(r.Context(), id, after, queryInt(r, "limit", 1000))
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List generations failed", err.Error(), r.URL.Path)
        return
    }
    next := 0
    if len(items) > 0 { next = items[len(items)-1].Generation }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextAfter": next})
}

// ListInstancesHandler handles GET /v1/instances
func (s *Server) ListInstancesHandler(w http.ResponseWriter, r *http.Request) {
    names, err := s.Source.List(r.Context())
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
        return
    }
    items := make([]model.InstanceInfo, 0, len(names))
    var broken []string
    for _, n := range names {
        inst, err := s.Source.Load(r.Context(), n)
        if err != nil {
            broken = append(broken, n)
            continue
        }
        items = append(items, instances.Describe(inst))
    }
    resp := map[string]any{"items": items, "suite": instances.Suite()}
    if len(broken) > 0 { resp["unreadable"] = broken }
    writeJSON(w, http.StatusOK, resp)
}

// GetInstanceHandler handles GET /v1/instances/{name}
func (s *Server) GetInstanceHandler(w http.ResponseWriter, r *http.Request) {
    name := chi.URLParam(r, "name")
    inst, err := s.Source.Load(r.Context(), name)
    if errors.Is(err, instances.ErrUnknown) {
        writeProblem(w, http.StatusNotFound, "Unknown instance", name, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid instance", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, instances.Describe(inst))
}

// effectiveParameters merges the stored admin overlay over the base set.
func (s *Server) effectiveParameters(ctx context.Context) (opt.Parameters, error) {
    cfg, err := s.Store.GetSolverConfig(ctx)
    if err != nil { return s.Base, err }
    if len(cfg) == 0 { return s.Base, nil }
    raw, err := json.Marshal(cfg)
    if err != nil { return s.Base, err }
    return config.OverlayJSON(s.Base, raw)
}

// SolverConfigHandler returns the parameters a run gets without overrides.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    params, err := s.effectiveParameters(r.Context())
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Solver config unavailable", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"defaults": params})
}

// Admin get/set of the solver parameter overlay
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    cfg, err := s.Store.GetSolverConfig(r.Context())
    if err != nil { writeProblem(w, 500, "Get config failed", err.Error(), r.URL.Path); return }
    if cfg == nil { cfg = map[string]any{} }
    writeJSON(w, 200, map[string]any{"config": cfg})
}

func (s *Server) AdminSaveSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    var body struct{ Config map[string]any `json:"config"` }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
    if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
    raw, _ := json.Marshal(body.Config)
    if _, err := config.OverlayJSON(s.Base, raw); err != nil { writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path); return }
    if err := s.Store.SaveSolverConfig(r.Context(), body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]bool{"ok": true})
}

// Subscriptions (admin)
func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    var req model.SubscriptionRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateSubscription(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
        return
    }
    sub, err := s.Store.CreateSubscription(r.Context(), req)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    items, next, err := s.Store.ListSubscriptions(r.Context(), r.URL.Query().Get("cursor"), queryInt(r, "limit", 100))
    if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
    for i := range items { items[i].Secret = "" }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    err := s.Store.DeleteSubscription(r.Context(), chi.URLParam(r, "id"))
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Subscription not found", "", r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit", 100))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    err := s.Store.RetryWebhookDelivery(r.Context(), chi.URLParam(r, "id"))
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Delivery not found", "", r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
