package main

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "mdvrp/internal/api"
    "mdvrp/internal/config"
)

func main() {
    log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
    slog.SetDefault(log)
    if err := godotenv.Load(); err != nil {
        log.Info("no .env file found, using environment variables")
    }

    cfg, err := config.LoadSettings()
    if err != nil {
        log.Error("invalid settings", "err", err)
        os.Exit(1)
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg, log)
    if err != nil {
        log.Error("failed to init server", "err", err)
        os.Exit(1)
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    // Start webhook worker
    worker := srvDeps.NewWebhookWorker()
    worker.Start()

    go func() {
        log.Info("API listening", "addr", srv.Addr, "auth", cfg.AuthMode, "maxConcurrentRuns", cfg.MaxConcurrentRuns)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Error("server error", "err", err)
            stop()
        }
    }()

    <-ctx.Done()
    log.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    close(worker.Stop)
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Error("http shutdown", "err", err)
    }
    if err := srvDeps.Close(shutdownCtx); err != nil {
        log.Error("close", "err", err)
    }
}
