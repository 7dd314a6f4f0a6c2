package metrics_test

import (
	"testing"

	"github.com/botgate/botgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricCollectorsNonNil verifies all package-level metric variables are
// non-nil and pass Prometheus linting rules.
func TestMetricCollectorsNonNil(t *testing.T) {
	tests := []struct {
		name string
		c    prometheus.Collector
	}{
		{"RequestsTotal", metrics.RequestsTotal},
		{"BansTotal", metrics.BansTotal},
		{"BlocksTotal", metrics.BlocksTotal},
		{"ChallengesTotal", metrics.ChallengesTotal},
		{"WhitelistedTotal", metrics.WhitelistedTotal},
		{"TestModeActions", metrics.TestModeActions},
		{"MazeHits", metrics.MazeHits},
		{"AutomationDetections", metrics.AutomationDetections},
		{"AutomationAutoBans", metrics.AutomationAutoBans},
		{"StoreErrors", metrics.StoreErrors},
		{"ActiveBans", metrics.ActiveBans},
		{"DBSizeBytes", metrics.DBSizeBytes},
		{"TestModeEnabled", metrics.TestModeEnabled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.c == nil {
				t.Fatal("collector is nil")
			}
			lintErrs, err := testutil.CollectAndLint(tc.c)
			if err != nil {
				t.Errorf("CollectAndLint gather error: %v", err)
			}
			if len(lintErrs) > 0 {
				t.Errorf("prometheus lint errors: %v", lintErrs)
			}
		})
	}
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(metrics.BlocksTotal)
	metrics.BlocksTotal.Inc()
	after := testutil.ToFloat64(metrics.BlocksTotal)
	if after != before+1 {
		t.Fatalf("BlocksTotal: got %v, want %v", after, before+1)
	}

	metrics.BansTotal.WithLabelValues("honeypot").Inc()
	if v := testutil.ToFloat64(metrics.BansTotal.WithLabelValues("honeypot")); v < 1 {
		t.Fatalf("BansTotal{honeypot}: got %v, want >= 1", v)
	}
}
