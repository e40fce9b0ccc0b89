package engine

import (
	"testing"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/codec"
	"github.com/MultiTechSystems/basicstation/internal/config"
	"github.com/MultiTechSystems/basicstation/internal/txpipeline"
)

func testConfig() config.Station {
	cfg := config.DefaultStation()
	cfg.Gateway.EUI = "00-01-02-03-04-05-06-07"
	cfg.Gateway.Region = "EU868"
	cfg.LNS.URI = "wss://lns.example.net/router-0001"
	return cfg
}

func TestNewBuildsEngineForKnownRegion(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.region == nil || e.region.Name != "EU868" {
		t.Fatalf("unexpected region: %+v", e.region)
	}
	if e.scheduler == nil || e.session == nil || e.transport == nil {
		t.Fatalf("expected engine subsystems to be wired")
	}
}

func TestNewRejectsUnknownRegion(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.Region = "NARNIA"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error constructing engine for an unknown region")
	}
}

func TestIsHalfDuplexBusyAfterSend(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if e.isHalfDuplexBusy() {
		t.Fatalf("a fresh engine must not report half-duplex busy")
	}

	e.mu.Lock()
	e.halfDuplexUntil = time.Now().Add(time.Hour)
	e.mu.Unlock()

	if !e.isHalfDuplexBusy() {
		t.Fatalf("expected half-duplex busy while halfDuplexUntil is in the future")
	}
}

func TestDataRateForJobUsesJobBandwidthAndSF(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	job := &txpipeline.Job{Bandwidth: 250000, SF: 9}
	dr := e.dataRateForJob(job)
	if dr.Bandwidth != 250000 || dr.SpreadingFactor != 9 {
		t.Fatalf("unexpected data rate: %+v", dr)
	}
}

func TestOnSchedulerResultSkipsReportWhenNotSent(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Must not panic even though the transport is not connected.
	e.onSchedulerResult(&txpipeline.Job{DIID: 1}, false, "half-duplex: radio busy")
}

func TestHandleTimeSyncIgnoresZeroGPSTime(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Must not attempt to reach the (unconnected) RAL backend.
	e.handleTimeSync(&codec.TimeSync{MsgType: codec.MsgTimeSync, XTime: 100})
}

func TestForwardUplinkDoesNotPanicWhenDisconnected(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.forwardUplink(codec.MsgUplinkData, []byte(`{"msgtype":"updf"}`))
}

func TestOnFatalDeliversOnFatalChannel(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.onFatal("pps loss threshold exceeded")

	select {
	case reason := <-e.Fatal():
		if reason != "pps loss threshold exceeded" {
			t.Fatalf("unexpected fatal reason: %s", reason)
		}
	default:
		t.Fatalf("expected Fatal() to report the reason onFatal was called with")
	}
}

func TestHandleRouterConfigRejectsConfigWithNoDRTable(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Must not panic even though the transport is not connected: Disconnect
	// is a no-op on a client that never dialed.
	e.handleRouterConfig(&codec.RouterConfig{MsgType: codec.MsgRouterConfig, Region: "EU868"})
	if e.admitter.LBTEnabled {
		t.Fatalf("expected a rejected router_config to leave admitter state untouched")
	}
}

func TestHandleRouterConfigWiresAdmitterFromSession(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	eu868DRs := [][3]int{{12, 125, 0}, {11, 125, 0}, {10, 125, 0}, {9, 125, 0}, {8, 125, 0}, {7, 125, 0}}
	e.handleRouterConfig(&codec.RouterConfig{
		MsgType:    codec.MsgRouterConfig,
		Region:     "EU868",
		DRs:        eu868DRs,
		LBTEnabled: true,
		MaxEIRP:    14,
	})

	if !e.admitter.LBTEnabled {
		t.Fatalf("expected admitter.LBTEnabled to be set from the applied router_config")
	}
	if e.admitter.MaxEIRPdBm != 14 {
		t.Fatalf("admitter.MaxEIRPdBm = %d, want 14", e.admitter.MaxEIRPdBm)
	}
}
