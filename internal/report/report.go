// Package report renders solutions in the benchmark result format:
//
//	<fitness>
//	<depot> <vehicle> <cost> <load> 0 <customer>... 0
//
// Ids in the text are 1-based; the Go values are 0-based.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mdvrp/internal/opt"
)

var ErrMalformed = errors.New("malformed report")

type Route struct {
	Depot     int     `json:"depot"`
	Vehicle   int     `json:"vehicle"`
	Cost      float64 `json:"cost"`
	Load      float64 `json:"load"`
	Customers []int   `json:"customers"`
}

type Report struct {
	Fitness  float64 `json:"fitness"`
	Feasible bool    `json:"feasible"`
	Routes   []Route `json:"routes"`
}

// FromSolution lists the non-empty routes depot by depot.
func FromSolution(s *opt.Solution) Report {
	inst := s.Instance()
	rep := Report{Fitness: s.Fitness(), Feasible: s.Feasible()}
	for d := range s.Depots {
		for v := range s.Depots[d].Routes {
			r := &s.Depots[d].Routes[v]
			if r.Len() == 0 {
				continue
			}
			rep.Routes = append(rep.Routes, Route{
				Depot:     d,
				Vehicle:   v,
				Cost:      r.Cost(inst),
				Load:      r.Load(),
				Customers: r.Customers(),
			})
		}
	}
	return rep
}

func (r Report) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%.2f\n", r.Fitness)
	for _, rt := range r.Routes {
		fmt.Fprintf(bw, "%d %d %.2f %s 0", rt.Depot+1, rt.Vehicle+1, rt.Cost, strconv.FormatFloat(rt.Load, 'f', -1, 64))
		for _, c := range rt.Customers {
			fmt.Fprintf(bw, " %d", c+1)
		}
		bw.WriteString(" 0\n")
	}
	return bw.Flush()
}

func (r Report) String() string {
	var b strings.Builder
	_ = r.Write(&b)
	return b.String()
}

// WriteFile writes the report to dir/<name>.res, creating dir if needed.
func WriteFile(dir, name string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	path := filepath.Join(dir, name+".res")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

// Parse reads a report back. Feasibility is not part of the text format and
// is left false.
func Parse(rd io.Reader) (Report, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	var rep Report
	no, seenHeader := 0, false
	for sc.Scan() {
		no++
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		if !seenHeader {
			v, err := strconv.ParseFloat(f[0], 64)
			if err != nil {
				return Report{}, fmt.Errorf("%w: line %d: fitness: %v", ErrMalformed, no, err)
			}
			rep.Fitness, seenHeader = v, true
			continue
		}
		rt, err := parseRoute(f)
		if err != nil {
			return Report{}, fmt.Errorf("%w: line %d: %v", ErrMalformed, no, err)
		}
		rep.Routes = append(rep.Routes, rt)
	}
	if err := sc.Err(); err != nil {
		return Report{}, fmt.Errorf("read report: %w", err)
	}
	if !seenHeader {
		return Report{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	return rep, nil
}

func parseRoute(f []string) (Route, error) {
	if len(f) < 6 {
		return Route{}, fmt.Errorf("route needs at least 6 fields, got %d", len(f))
	}
	depot, err := strconv.Atoi(f[0])
	if err != nil {
		return Route{}, fmt.Errorf("depot: %v", err)
	}
	vehicle, err := strconv.Atoi(f[1])
	if err != nil {
		return Route{}, fmt.Errorf("vehicle: %v", err)
	}
	cost, err := strconv.ParseFloat(f[2], 64)
	if err != nil {
		return Route{}, fmt.Errorf("cost: %v", err)
	}
	load, err := strconv.ParseFloat(f[3], 64)
	if err != nil {
		return Route{}, fmt.Errorf("load: %v", err)
	}
	if f[4] != "0" || f[len(f)-1] != "0" {
		return Route{}, errors.New("customer list must be wrapped in 0 markers")
	}
	rt := Route{Depot: depot - 1, Vehicle: vehicle - 1, Cost: cost, Load: load}
	for _, s := range f[5 : len(f)-1] {
		c, err := strconv.Atoi(s)
		if err != nil {
			return Route{}, fmt.Errorf("customer: %v", err)
		}
		rt.Customers = append(rt.Customers, c-1)
	}
	return rt, nil
}
