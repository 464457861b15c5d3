// Command goOTP-benchcheck fails when a candidate benchmark run regresses
// against a baseline run on the tracked hot paths.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MrEthical07/goOTP/internal/benchcheck"
)

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)
	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", benchcheck.DefaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := parseFile(baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseFile(candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rep := benchcheck.Compare(baseline, candidate, benchcheck.DefaultTracked, threshold)
	fmt.Println("benchmark metric baseline candidate delta")
	for _, d := range rep.Deltas {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", d.Benchmark, d.Unit, d.Baseline, d.Candidate, d.Ratio*100)
	}
	if rep.Failed() {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, f := range rep.Failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
}

func parseFile(path string) (benchcheck.Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return benchcheck.Parse(f, benchcheck.DefaultTracked)
}
