// Package api implements the HTTP surface of the MDVRP solver service.
package api

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "strings"

    "github.com/go-chi/chi/v5"
    "golang.org/x/time/rate"

    "mdvrp/internal/auth"
    "mdvrp/internal/config"
    "mdvrp/internal/instances"
    "mdvrp/internal/jobs"
    "mdvrp/internal/metrics"
    "mdvrp/internal/notify"
    "mdvrp/internal/opt"
    "mdvrp/internal/store"
    "mdvrp/internal/webhooks"
)

type Server struct {
    Store    store.Store
    Pub      *webhooks.Publisher
    Auth     *auth.Verifier
    Broker   EventBroker
    Runner   *jobs.Runner
    Source   instances.Source
    Settings *config.Settings
    // Base is the parameter set every run starts from before overlays.
    Base     opt.Parameters
    Log      *slog.Logger

    notifier notify.Notifier
    limiter  *rate.Limiter
}

// NewServer wires the service from settings. Without DATABASE_URL the
// in-memory store is used; without REDIS_URL or AMQP_URL the in-process
// broker and a no-op notifier are used.
func NewServer(ctx context.Context, cfg *config.Settings, log *slog.Logger) (*Server, error) {
    if log == nil { log = slog.Default() }
    base, err := config.LoadParameters(cfg.ParamsFile)
    if err != nil { return nil, err }

    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil { return nil, err }
        if cfg.DBMigrate {
            if err := sp.Migrate(ctx); err != nil { return nil, err }
        }
        s = sp
    }

    var broker EventBroker = NewBroker()
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
            broker = rb
        } else {
            log.Warn("redis broker unavailable, using in-process broker", "err", err)
        }
    }

    var notifier notify.Notifier = notify.Nop{}
    if cfg.AMQPURL != "" {
        n, err := notify.NewAMQP(cfg.AMQPURL, cfg.AMQPQueue)
        if err != nil { return nil, err }
        notifier = n
    }

    srv := &Server{
        Store:    s,
        Pub:      webhooks.NewPublisher(s, log),
        Auth:     auth.NewVerifier(cfg.AuthMode, cfg.JWTSecret),
        Broker:   broker,
        Source:   instances.NewDirSource(cfg.DataDir),
        Settings: cfg,
        Base:     base,
        Log:      log,
        notifier: notifier,
    }
    if cfg.RateRPS > 0 {
        srv.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), max(cfg.RateBurst, 1))
    }
    srv.Runner = jobs.NewRunner(jobs.Config{
        Store:       s,
        Source:      srv.Source,
        Events:      broker,
        Hooks:       srv.Pub,
        Notifier:    notifier,
        Log:         log,
        MaxRuns:     cfg.MaxConcurrentRuns,
        ProgressRPS: cfg.ProgressRPS,
    })
    return srv, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    r := chi.NewRouter()
    r.Use(s.recoverer)
    r.Use(s.logger)

    r.Get("/healthz", s.HealthHandler)
    r.Get("/readyz", s.ReadyHandler)
    r.Handle("/metrics", metrics.Handler())
    r.Get("/debug/info", s.DebugJSON)
    r.Get("/openapi.yaml", s.OpenAPIHandler)
    r.Get("/openapi.json", s.OpenAPIHandler)

    r.Route("/v1", func(r chi.Router) {
        r.Use(s.rateLimit)

        r.Get("/instances", s.ListInstancesHandler)
        r.Get("/instances/{name}", s.GetInstanceHandler)

        r.Route("/runs", func(r chi.Router) {
            r.Post("/", s.CreateRunHandler)
            r.Get("/", s.ListRunsHandler)
            r.Route("/{id}", func(r chi.Router) {
                r.Get("/", s.GetRunHandler)
                r.Delete("/", s.CancelRunHandler)
                r.Get("/report", s.RunReportHandler)
                r.Get("/generations", s.RunGenerationsHandler)
                r.Get("/stream", s.RunStreamHandler)
            })
        })

        r.Get("/solver/config", s.SolverConfigHandler)

        r.Group(func(r chi.Router) {
            r.Use(s.requireAdmin)
            r.Get("/admin/solver/config", s.AdminSolverConfigHandler)
            r.Put("/admin/solver/config", s.AdminSaveSolverConfigHandler)
            r.Get("/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
            r.Post("/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)

            r.Post("/subscriptions", s.CreateSubscriptionHandler)
            r.Get("/subscriptions", s.ListSubscriptionsHandler)
            r.Delete("/subscriptions/{id}", s.DeleteSubscriptionHandler)
        })
    })
    return r
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Settings.WebhookMaxAttempts, s.Log)
}

// Close cancels in-flight runs and releases external connections.
func (s *Server) Close(ctx context.Context) error {
    var errs []error
    if s.Runner != nil { errs = append(errs, s.Runner.Shutdown(ctx)) }
    if s.notifier != nil { errs = append(errs, s.notifier.Close()) }
    if c, ok := s.Broker.(interface{ Close() error }); ok { errs = append(errs, c.Close()) }
    if c, ok := s.Store.(interface{ Close() error }); ok { errs = append(errs, c.Close()) }
    return errors.Join(errs...)
}
