package internaldefs

import (
	"strings"
	"testing"

	goOTP "github.com/MrEthical07/goOTP"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	seen := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if def.ID == goOTP.MetricValidateLatency {
			t.Fatalf("histogram metric listed as counter")
		}
		if !strings.HasPrefix(def.Name, Namespace+"_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate counter name %q", def.Name)
		}
		seen[def.Name] = true
	}
	if len(CounterDefs) != len(goOTP.MetricIDs())-1 {
		t.Fatalf("expected %d counters, got %d", len(goOTP.MetricIDs())-1, len(CounterDefs))
	}
}

func TestBoundLabels(t *testing.T) {
	want := []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}
	if len(BoundLabels) != len(want) {
		t.Fatalf("expected %d labels, got %v", len(want), BoundLabels)
	}
	for i := range want {
		if BoundLabels[i] != want[i] {
			t.Fatalf("label %d = %q, want %q", i, BoundLabels[i], want[i])
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	if got[0] != 1 || got[2] != 6 || got[BucketCount-1] != 6 {
		t.Fatalf("unexpected cumulative buckets %v", got)
	}
}
