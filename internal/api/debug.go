package api

import (
    "net/http"
    "time"

    "mdvrp/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    cfg := s.Settings
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT": cfg.Port,
            "AUTH_MODE": cfg.AuthMode,
            "RATE_RPS": cfg.RateRPS,
            "RATE_BURST": cfg.RateBurst,
            "PROGRESS_RPS": cfg.ProgressRPS,
            "MAX_CONCURRENT_RUNS": cfg.MaxConcurrentRuns,
            "WEBHOOK_MAX_ATTEMPTS": cfg.WebhookMaxAttempts,
            "DATA_DIR": cfg.DataDir,
            "HAS_DATABASE_URL": cfg.DatabaseURL != "",
            "HAS_REDIS_URL": cfg.RedisURL != "",
            "HAS_AMQP_URL": cfg.AMQPURL != "",
        },
    }
    writeJSON(w, http.StatusOK, info)
}
