//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "mdvrp/internal/model"
    "mdvrp/internal/opt"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }

    run, err := p.CreateRun(t.Context(), model.Run{Instance: "p01", Parameters: opt.DefaultParameters()})
    if err != nil { t.Fatalf("CreateRun: %v", err) }
    run.Status = model.RunCompleted
    f := 576.87
    run.Fitness = &f
    if err := p.UpdateRun(t.Context(), run); err != nil { t.Fatalf("UpdateRun: %v", err) }
    got, err := p.GetRun(t.Context(), run.ID)
    if err != nil { t.Fatalf("GetRun: %v", err) }
    if got.Status != model.RunCompleted || got.Fitness == nil || *got.Fitness != f { t.Fatalf("unexpected run %+v", got) }
    if err := p.AppendGenerations(t.Context(), run.ID, []model.GenerationStat{{Generation: 1, Best: 600}}); err != nil { t.Fatalf("AppendGenerations: %v", err) }
    gens, err := p.ListGenerations(t.Context(), run.ID, 0, 10)
    if err != nil || len(gens) != 1 { t.Fatalf("ListGenerations: %v %d", err, len(gens)) }
}
