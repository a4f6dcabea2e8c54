package problem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Parse reads the whitespace separated instance format:
//
//	<vehiclesPerDepot> <customers> <depots>
//	<maxLoad> [<maxRouteLength>]          (one line per depot)
//	<id> <x> <y> <serviceTime> <demand>   (one line per customer)
//	<id> <x> <y>                          (one line per depot)
func Parse(r io.Reader, name string) (*Instance, error) {
	type line struct {
		no     int
		fields []string
	}
	var lines []line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	no := 0
	for sc.Scan() {
		no++
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		lines = append(lines, line{no: no, fields: f})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("parse %s: %w: empty input", name, ErrMalformed)
	}

	bad := func(l line, format string, args ...any) error {
		return fmt.Errorf("parse %s line %d: %w: %s", name, l.no, ErrMalformed, fmt.Sprintf(format, args...))
	}

	head := lines[0]
	if len(head.fields) < 3 {
		return nil, bad(head, "header needs 3 fields, got %d", len(head.fields))
	}
	vehicles, err := strconv.Atoi(head.fields[0])
	if err != nil {
		return nil, bad(head, "vehicles per depot: %v", err)
	}
	numCustomers, err := strconv.Atoi(head.fields[1])
	if err != nil {
		return nil, bad(head, "customer count: %v", err)
	}
	numDepots, err := strconv.Atoi(head.fields[2])
	if err != nil {
		return nil, bad(head, "depot count: %v", err)
	}
	if numCustomers <= 0 || numDepots <= 0 {
		return nil, bad(head, "counts must be positive")
	}
	want := 1 + numDepots + numCustomers + numDepots
	if len(lines) < want {
		return nil, fmt.Errorf("parse %s: %w: expected %d non-empty lines, got %d", name, ErrMalformed, want, len(lines))
	}

	limits := lines[1]
	maxLoad, err := strconv.ParseFloat(limits.fields[0], 64)
	if err != nil {
		return nil, bad(limits, "max load: %v", err)
	}
	maxLength := 0.0
	if len(limits.fields) > 1 {
		if maxLength, err = strconv.ParseFloat(limits.fields[1], 64); err != nil {
			return nil, bad(limits, "max route length: %v", err)
		}
	}

	customers := make([]Customer, 0, numCustomers)
	for _, l := range lines[1+numDepots : 1+numDepots+numCustomers] {
		if len(l.fields) < 5 {
			return nil, bad(l, "customer needs 5 fields, got %d", len(l.fields))
		}
		v, err := parseFloats(l.fields[1], l.fields[2], l.fields[4])
		if err != nil {
			return nil, bad(l, "customer: %v", err)
		}
		customers = append(customers, Customer{Point: Point{X: v[0], Y: v[1]}, Demand: v[2]})
	}

	depots := make([]Point, 0, numDepots)
	for _, l := range lines[1+numDepots+numCustomers : want] {
		if len(l.fields) < 3 {
			return nil, bad(l, "depot needs 3 fields, got %d", len(l.fields))
		}
		v, err := parseFloats(l.fields[1], l.fields[2])
		if err != nil {
			return nil, bad(l, "depot: %v", err)
		}
		depots = append(depots, Point{X: v[0], Y: v[1]})
	}

	inst, err := New(name, depots, customers, vehicles, maxLoad, maxLength)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return inst, nil
}

// Load parses the instance file at path, naming it after the file.
func Load(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Base(path))
}

func parseFloats(fields ...string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
