package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersNoopBeforeRegister(t *testing.T) {
	if regOK.Load() {
		t.Skip("metrics already registered by another test")
	}
	IncLaunch("pre")
	IncRestart("pre")
	SetServerUp("pre", true)
	if got := testutil.CollectAndCount(serverLaunches); got != 0 {
		t.Fatalf("expected no series before Register, got %d", got)
	}
}

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Second call is a no-op.
	if err := Register(reg); err != nil {
		t.Fatalf("Register again: %v", err)
	}

	IncLaunch("s1")
	IncLaunch("s1")
	IncRestart("s1")
	IncStop("s1")
	IncHealthCheckFailure("s1")
	ObserveReadinessWait("s1", 1.5)
	SetServerUp("s1", true)
	SetSessionState("s1", "running", true)

	if got := testutil.ToFloat64(serverLaunches.WithLabelValues("s1")); got != 2 {
		t.Fatalf("launches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(serverRestarts.WithLabelValues("s1")); got != 1 {
		t.Fatalf("restarts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(serverUp.WithLabelValues("s1")); got != 1 {
		t.Fatalf("up = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sessionStates.WithLabelValues("s1", "running")); got != 1 {
		t.Fatalf("state gauge = %v, want 1", got)
	}

	SetServerUp("s1", false)
	if got := testutil.ToFloat64(serverUp.WithLabelValues("s1")); got != 0 {
		t.Fatalf("up after clear = %v, want 0", got)
	}
}
