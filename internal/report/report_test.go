package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mdvrp/internal/opt"
	"mdvrp/internal/problem"
)

func TestWriteFormat(t *testing.T) {
	rep := Report{
		Fitness: 123.5,
		Routes: []Route{
			{Depot: 0, Vehicle: 1, Cost: 40.004, Load: 30, Customers: []int{0, 2}},
			{Depot: 1, Vehicle: 0, Cost: 12.5, Load: 7.5, Customers: []int{1}},
		},
	}
	want := "123.50\n1 2 40.00 30 0 1 3 0\n2 1 12.50 7.5 0 2 0\n"
	if got := rep.String(); got != want {
		t.Fatalf("report =\n%q\nwant\n%q", got, want)
	}
}

func TestParseRoundTripsSolution(t *testing.T) {
	inst, err := problem.New("rt",
		[]problem.Point{{}, {X: 30}},
		[]problem.Customer{
			{Point: problem.Point{X: 1}, Demand: 3},
			{Point: problem.Point{X: 2, Y: 2}, Demand: 4},
			{Point: problem.Point{X: 29}, Demand: 5},
			{Point: problem.Point{X: 31, Y: -1}, Demand: 6},
		}, 2, 10, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := opt.DefaultParameters()
	p.PopulationSize, p.ElitismCount, p.Generations, p.TimeBudgetSeconds, p.Seed = 6, 1, 3, 0, 1
	res, err := opt.Solve(context.Background(), inst, p, nil)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	rep := FromSolution(res.Best)

	back, err := Parse(strings.NewReader(rep.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(back.Routes) != len(rep.Routes) {
		t.Fatalf("routes = %d, want %d", len(back.Routes), len(rep.Routes))
	}
	served := 0
	for i, rt := range back.Routes {
		if rt.Depot != rep.Routes[i].Depot || rt.Vehicle != rep.Routes[i].Vehicle {
			t.Fatalf("route %d ids = %d/%d", i, rt.Depot, rt.Vehicle)
		}
		served += len(rt.Customers)
	}
	if served != inst.NumCustomers {
		t.Fatalf("served %d customers, want %d", served, inst.NumCustomers)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "abc\n", "1.0\n1 1 2.0 3 0 4\n", "1.0\n1 1 x 3 0 4 0\n"} {
		if _, err := Parse(strings.NewReader(in)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) = %v, want ErrMalformed", in, err)
		}
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "solutions")
	path, err := WriteFile(dir, "p01", Report{Fitness: 1})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "1.00\n" || filepath.Base(path) != "p01.res" {
		t.Fatalf("wrote %q to %s", b, path)
	}
}
