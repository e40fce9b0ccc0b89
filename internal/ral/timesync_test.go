package ral

import (
	"testing"
	"time"
)

func TestExtendXTimeRollover(t *testing.T) {
	ts := NewTimeSync(7)

	x1 := ts.ExtendXTime(0xFFFFFFF0)
	x2 := ts.ExtendXTime(0x00000010)

	if SessionFromXTime(x1) != 7 || SessionFromXTime(x2) != 7 {
		t.Fatalf("expected session tag 7 on both samples")
	}
	if x2 <= x1 {
		t.Fatalf("xtime must be monotonically increasing across a counter rollover: x1=%d x2=%d", x1, x2)
	}
}

func TestIsStaleSession(t *testing.T) {
	ts := NewTimeSync(3)
	x := ts.ExtendXTime(100)
	if ts.IsStaleSession(x) {
		t.Fatalf("own session must not be stale")
	}

	otherSession := uint64(9)<<48 | 100
	if !ts.IsStaleSession(otherSession) {
		t.Fatalf("a different session tag must be detected as stale")
	}
}

func TestPPSLostBeforeThreshold(t *testing.T) {
	ts := NewTimeSync(1)
	now := time.Now()
	ts.OnPPS(now, 0)

	shouldExit, _ := ts.PPSLost(now.Add(10 * time.Second))
	if shouldExit {
		t.Fatalf("must not exit before the 90s loss threshold")
	}
}

func TestPPSLostExitsAfterMaxFailures(t *testing.T) {
	ts := NewTimeSync(1)
	now := time.Now()
	ts.OnPPS(now, 0)

	lost := now.Add(ppsLossThreshold + time.Second)
	var shouldExit bool
	for i := 0; i < ppsMaxFailures; i++ {
		shouldExit, _ = ts.PPSLost(lost)
	}
	if !shouldExit {
		t.Fatalf("must exit after ppsMaxFailures consecutive failures past the loss threshold")
	}
}

func TestCheckDriftNominal(t *testing.T) {
	ts := NewTimeSync(1)
	if sev := ts.CheckDrift(); sev != DriftNominal {
		t.Fatalf("fresh tracker must report nominal drift, got %v", sev)
	}
}

func TestCheckDriftEscalatesToFatalAfterQuickRetries(t *testing.T) {
	ts := NewTimeSync(1)
	ts.driftEMA = nominalToleranceMs * (driftFatalFactor + 1)

	var sev DriftSeverity
	for i := 0; i < quickRetries; i++ {
		sev = ts.CheckDrift()
	}
	if sev != DriftFatal {
		t.Fatalf("expected DriftFatal after %d consecutive bad samples, got %v", quickRetries, sev)
	}
}

func TestSetGPSOffsetRejectsStaleSession(t *testing.T) {
	ts := NewTimeSync(1)
	staleXTime := uint64(2)<<48 | 42
	if err := ts.SetGPSOffset(staleXTime, 0); err == nil {
		t.Fatalf("expected error for a GPS time ref against a stale session")
	}
}
