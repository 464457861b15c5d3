// Package benchcheck compares two `go test -bench` outputs and reports
// tracked metrics whose median regressed past a threshold.
package benchcheck

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// DefaultThreshold allows a 30% slowdown.
const DefaultThreshold = 0.30

// DefaultTracked lists the hot paths guarded in CI: stateless token checks,
// session lookups, refresh rotation and the OTP round trip.
var DefaultTracked = map[string][]string{
	"BenchmarkVerifyAccessToken":  {"ns/op", "allocs/op"},
	"BenchmarkValidateSession":    {"ns/op", "allocs/op"},
	"BenchmarkRefresh":            {"ns/op"},
	"BenchmarkCreateAndVerifyOTP": {"ns/op"},
}

// Samples maps benchmark name to unit to every observed value.
type Samples map[string]map[string][]float64

// Delta is one compared metric.
type Delta struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
	// Ratio is (candidate - baseline) / baseline.
	Ratio float64
}

// Report is the outcome of Compare.
type Report struct {
	Deltas   []Delta
	Failures []string
}

// Failed reports whether any tracked metric regressed or was missing.
func (r Report) Failed() bool { return len(r.Failures) > 0 }

// Parse reads benchmark lines from r, keeping only tracked benchmarks. The
// -N GOMAXPROCS suffix is stripped from names.
func Parse(r io.Reader, tracked map[string][]string) (Samples, error) {
	samples := Samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeName(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if _, ok := samples[name]; !ok {
			samples[name] = map[string][]float64{}
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			samples[name][fields[i+1]] = append(samples[name][fields[i+1]], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Compare checks every tracked metric's median against threshold.
func Compare(baseline, candidate Samples, tracked map[string][]string, threshold float64) Report {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var rep Report
	for _, name := range names {
		for _, unit := range tracked[name] {
			base, cand := baseline[name][unit], candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				rep.Failures = append(rep.Failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}
			bm, cm := Median(base), Median(cand)
			if bm <= 0 {
				// 0 allocs/op baselines can only stay at zero.
				if cm > 0 {
					rep.Failures = append(rep.Failures, fmt.Sprintf("%s %s rose from 0 to %.3f", name, unit, cm))
				}
				rep.Deltas = append(rep.Deltas, Delta{Benchmark: name, Unit: unit, Baseline: bm, Candidate: cm})
				continue
			}

			d := Delta{Benchmark: name, Unit: unit, Baseline: bm, Candidate: cm, Ratio: (cm - bm) / bm}
			rep.Deltas = append(rep.Deltas, d)
			if d.Ratio > threshold {
				rep.Failures = append(rep.Failures,
					fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, d.Ratio*100, threshold*100))
			}
		}
	}
	return rep
}

// Median returns the median of values, 0 when empty.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func normalizeName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}
