// Command solver runs the MDVRP genetic algorithm from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"mdvrp/internal/buildinfo"
	"mdvrp/internal/config"
	"mdvrp/internal/instances"
	"mdvrp/internal/opt"
	"mdvrp/internal/report"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp()
	app.Name = "solver"
	app.Usage = "multi-depot vehicle routing with a genetic algorithm"
	app.Version = buildinfo.Version

	dataFlag := cli.StringFlag{Name: "data, d", Value: envOr("DATA_DIR", "data"), Usage: "directory holding instance files"}
	paramsFlag := cli.StringFlag{Name: "params", Value: os.Getenv("PARAMS_FILE"), Usage: "YAML parameter file merged over the defaults"}
	tuneFlags := []cli.Flag{
		cli.IntFlag{Name: "generations, g", Usage: "override the generation cap (0 = unlimited)"},
		cli.Float64Flag{Name: "time, t", Usage: "override the time budget in seconds (0 = unlimited)"},
		cli.IntFlag{Name: "workers, w", Usage: "parallel fitness evaluation workers"},
		cli.IntFlag{Name: "every", Value: 100, Usage: "log progress every N generations (0 = quiet)"},
	}

	app.Commands = []cli.Command{
		{
			Name:  "solve",
			Usage: "solve one instance and print its report",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "problem, p", Value: "p01", Usage: "instance name inside the data directory"},
				dataFlag,
				paramsFlag,
				cli.Int64Flag{Name: "seed, s", Usage: "random seed (0 = time based)"},
				cli.StringFlag{Name: "out, o", Usage: "write the report to this file instead of stdout"},
			}, tuneFlags...),
			Action: func(c *cli.Context) error { return solve(ctx, c, log) },
		},
		{
			Name:  "bench",
			Usage: "solve every suite instance and write <name>.res files",
			Flags: append([]cli.Flag{
				dataFlag,
				paramsFlag,
				cli.StringFlag{Name: "solutions", Value: envOr("SOLUTIONS_DIR", "solutions"), Usage: "output directory for reports"},
				cli.Int64Flag{Name: "seed, s", Usage: "random seed shared by every instance (0 = time based)"},
			}, tuneFlags...),
			Action: func(c *cli.Context) error { return bench(ctx, c, log) },
		},
		{
			Name:  "version",
			Usage: "print build and host information",
			Action: func(c *cli.Context) error {
				info := buildinfo.Info()
				keys := make([]string, 0, len(info))
				for k := range info {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%-9s %s\n", k+":", info[k])
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("solver failed", "err", err)
		os.Exit(1)
	}
}

// parameters loads the YAML file and applies command-line overrides.
func parameters(c *cli.Context) (opt.Parameters, error) {
	p, err := config.LoadParameters(c.String("params"))
	if err != nil {
		return p, err
	}
	if c.IsSet("seed") {
		p.Seed = c.Int64("seed")
	}
	if c.IsSet("generations") {
		p.Generations = c.Int("generations")
	}
	if c.IsSet("time") {
		p.TimeBudgetSeconds = c.Float64("time")
	}
	if c.IsSet("workers") {
		p.Workers = c.Int("workers")
	}
	return p, p.Validate()
}

func progress(log *slog.Logger, name string, every int) opt.Observer {
	if every <= 0 {
		return nil
	}
	return func(st opt.Stats) {
		if st.Generation%every != 0 {
			return
		}
		args := []any{"instance", name, "generation", st.Generation, "best", st.Best, "mean", st.Mean, "elapsed", st.Elapsed.Round(time.Millisecond)}
		if st.HasFeasible {
			args = append(args, "bestFeasible", st.BestFeasible)
		}
		log.Info("progress", args...)
	}
}

func solve(ctx context.Context, c *cli.Context, log *slog.Logger) error {
	params, err := parameters(c)
	if err != nil {
		return err
	}
	src := instances.NewDirSource(c.String("data"))
	inst, err := src.Load(ctx, c.String("problem"))
	if err != nil {
		return fmt.Errorf("load %s: %w", c.String("problem"), err)
	}
	log.Info("solving", "instance", inst.Name, "depots", inst.NumDepots, "customers", inst.NumCustomers, "population", params.PopulationSize)

	res, err := opt.Solve(ctx, inst, params, progress(log, inst.Name, c.Int("every")))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("finished", "instance", inst.Name, "fitness", res.Best.Fitness(), "feasible", res.Feasible,
		"generations", res.Generations, "stop", res.StopReason, "seed", res.Seed, "elapsed", res.Elapsed)

	rep := report.FromSolution(res.Best)
	if out := c.String("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := rep.Write(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return rep.Write(os.Stdout)
}

func bench(ctx context.Context, c *cli.Context, log *slog.Logger) error {
	params, err := parameters(c)
	if err != nil {
		return err
	}
	src := instances.NewDirSource(c.String("data"))
	outDir := c.String("solutions")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	sys := buildinfo.System()
	log.Info("benchmark", "platform", sys.Platform, "cpu", sys.CPU, "cores", sys.Cores, "ram", sys.RAM)

	var failed int
	for _, name := range instances.Suite() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		inst, err := src.Load(ctx, name)
		if err != nil {
			log.Warn("skipping instance", "instance", name, "err", err)
			failed++
			continue
		}
		res, err := opt.Solve(ctx, inst, params, progress(log, name, c.Int("every")))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("solve failed", "instance", name, "err", err)
			failed++
			continue
		}
		path, err := report.WriteFile(outDir, name, report.FromSolution(res.Best))
		if err != nil {
			return err
		}
		log.Info("solved", "instance", name, "fitness", res.Best.Fitness(), "feasible", res.Feasible,
			"generations", res.Generations, "elapsed", res.Elapsed, "report", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instances not solved", failed, len(instances.Suite()))
	}
	return nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
