package txpipeline

import (
	"testing"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/dutycycle"
	"github.com/MultiTechSystems/basicstation/internal/region"
)

func TestAdmitRejectsWhenHalfDuplexBusy(t *testing.T) {
	a := &Admitter{HalfDuplex: func() bool { return true }}
	job := &Job{Bandwidth: 125000, SF: 7, PhyPayload: make([]byte, 20)}

	d := a.Admit(job, region.DataRate{}, time.Now())
	if d.Admit {
		t.Fatalf("expected rejection while half-duplex busy")
	}
}

func TestAdmitRejectsWhenDutyCycleExhausted(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	ledger := dutycycle.NewLedger(map[string]uint32{"P": 10})
	// Exhaust band P (869.4-869.65MHz).
	ledger.Record("P", uint32(time.Hour.Milliseconds())/10)

	a := &Admitter{Region: eu868, Ledger: ledger}
	job := &Job{Freq: 869525000, Bandwidth: 125000, SF: 7, PhyPayload: make([]byte, 20)}

	d := a.Admit(job, region.DataRate{}, time.Now())
	if d.Admit {
		t.Fatalf("expected rejection when duty-cycle band is exhausted")
	}
}

func TestAdmitRejectsWhenCCABusy(t *testing.T) {
	as923, _ := region.Get(region.AS923)
	a := &Admitter{Region: as923, LBTEnabled: true, CCAProbe: func(uint32, uint32, time.Time) bool { return false }}
	job := &Job{Freq: 923200000, Bandwidth: 125000, SF: 7, PhyPayload: make([]byte, 20)}

	d := a.Admit(job, region.DataRate{}, time.Now())
	if d.Admit {
		t.Fatalf("expected rejection when CCA reports channel busy")
	}
}

func TestAdmitAllowsWhenCCAClear(t *testing.T) {
	as923, _ := region.Get(region.AS923)
	a := &Admitter{Region: as923, LBTEnabled: true, CCAProbe: func(uint32, uint32, time.Time) bool { return true }}
	job := &Job{Freq: 923200000, Bandwidth: 125000, SF: 7, Power: 20, PhyPayload: make([]byte, 20)}

	d := a.Admit(job, region.DataRate{}, time.Now())
	if !d.Admit {
		t.Fatalf("expected admission when CCA reports channel clear, got reason: %s", d.Reason)
	}
}

func TestAdmitClampsPowerToRegionMax(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	a := &Admitter{Region: eu868}
	// Band P's own cap is above the region max, so only the region clamp applies.
	job := &Job{Freq: 869525000, Bandwidth: 125000, SF: 7, Power: 30, PhyPayload: make([]byte, 20)}

	d := a.Admit(job, region.DataRate{}, time.Now())
	if !d.Admit {
		t.Fatalf("expected admission, got reason: %s", d.Reason)
	}
	if d.ClampedEIRP != eu868.MaxEIRPdBm {
		t.Fatalf("ClampedEIRP = %d, want %d", d.ClampedEIRP, eu868.MaxEIRPdBm)
	}
}

func TestAdmitSkipsCCAAboveBandwidthCutoff(t *testing.T) {
	as923, _ := region.Get(region.AS923)
	probed := false
	a := &Admitter{Region: as923, LBTEnabled: true, CCAProbe: func(uint32, uint32, time.Time) bool {
		probed = true
		return false
	}}
	job := &Job{Freq: 923200000, Bandwidth: 500000, SF: 7, Power: 10, PhyPayload: make([]byte, 20)}

	d := a.Admit(job, region.DataRate{}, time.Now())
	if probed {
		t.Fatalf("CCA probe must not run above the LBT bandwidth cutoff")
	}
	if !d.Admit {
		t.Fatalf("expected admission since CCA is skipped, got reason: %s", d.Reason)
	}
}
