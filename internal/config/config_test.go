package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadStationAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "station.conf", `
gateway:
  eui: "00-01-02-03-04-05-06-07"
  region: EU868
lns:
  uri: "wss://lns.example.net/router-0001"
`)

	cfg, err := LoadStation(path)
	if err != nil {
		t.Fatalf("LoadStation: %v", err)
	}
	if cfg.LNS.ReconnectSecs != 5 {
		t.Fatalf("ReconnectSecs = %d, want default 5", cfg.LNS.ReconnectSecs)
	}
	if cfg.BuildVariant != BuildVariantDev {
		t.Fatalf("BuildVariant = %s, want dev default", cfg.BuildVariant)
	}
	if !cfg.EnforcesAdmissionOverrides() {
		t.Fatalf("dev build variant must honor nocca/nodc/nodwell overrides")
	}
}

func TestLoadStationRequiresGatewayEUI(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "station.conf", `
lns:
  uri: "wss://lns.example.net/router-0001"
`)

	if _, err := LoadStation(path); err == nil {
		t.Fatalf("expected error when gateway.eui is missing")
	}
}

func TestLoadStationRequiresLNSURI(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "station.conf", `
gateway:
  eui: "00-01-02-03-04-05-06-07"
`)

	if _, err := LoadStation(path); err == nil {
		t.Fatalf("expected error when lns.uri is missing")
	}
}

func TestProdVariantIgnoresAdmissionOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "station.conf", `
gateway:
  eui: "00-01-02-03-04-05-06-07"
lns:
  uri: "wss://lns.example.net/router-0001"
build_variant: prod
`)

	cfg, err := LoadStation(path)
	if err != nil {
		t.Fatalf("LoadStation: %v", err)
	}
	if cfg.EnforcesAdmissionOverrides() {
		t.Fatalf("prod build variant must not honor nocca/nodc/nodwell overrides")
	}
}

func TestLoadSlavesDefaultsToSingleImplicitSlave(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "station.conf", "gateway:\n  eui: x\nlns:\n  uri: y\n")

	slaves, err := LoadSlaves(path)
	if err != nil {
		t.Fatalf("LoadSlaves: %v", err)
	}
	if len(slaves) != 1 || slaves[0].Index != 0 || slaves[0].RadioCount != 1 {
		t.Fatalf("unexpected implicit slave list: %+v", slaves)
	}
}

func TestLoadSlavesReadsNumberedOverlays(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "station.conf", "gateway:\n  eui: x\nlns:\n  uri: y\n")
	writeFile(t, dir, "slave-0.conf", "radio_count: 2\nsub_band_lo_hz: 902300000\nsub_band_hi_hz: 903500000\n")
	writeFile(t, dir, "slave-1.conf", "radio_count: 1\n")

	slaves, err := LoadSlaves(path)
	if err != nil {
		t.Fatalf("LoadSlaves: %v", err)
	}
	if len(slaves) != 2 {
		t.Fatalf("expected 2 slave overlays, got %d", len(slaves))
	}
	if slaves[0].RadioCount != 2 || slaves[0].SubBandLo != 902300000 {
		t.Fatalf("unexpected slave-0 overlay: %+v", slaves[0])
	}
	if slaves[1].Index != 1 {
		t.Fatalf("slave-1 Index = %d, want 1", slaves[1].Index)
	}
}
