package region

import "testing"

func TestGetUnknownRegion(t *testing.T) {
	if _, err := Get("XX000"); err == nil {
		t.Fatalf("expected error for unknown region")
	}
}

func TestGetResolvesLegacyAliases(t *testing.T) {
	for _, alias := range []Name{"AS923-1", "AS923-2", "AS923-3", "AS923-4"} {
		d, err := Get(alias)
		if err != nil {
			t.Fatalf("Get(%s): %v", alias, err)
		}
		if d.Name != AS923 {
			t.Fatalf("Get(%s).Name = %s, want AS923", alias, d.Name)
		}
	}

	d, err := Get("US902")
	if err != nil {
		t.Fatalf("Get(US902): %v", err)
	}
	if d.Name != US915 {
		t.Fatalf("Get(US902).Name = %s, want US915", d.Name)
	}
}

func TestNormalizePassesThroughUnknownNames(t *testing.T) {
	if got := Normalize("XX000"); got != "XX000" {
		t.Fatalf("Normalize(XX000) = %s, want unchanged", got)
	}
}

func TestEU868SymmetricDataRate(t *testing.T) {
	d, err := Get(EU868)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	up, err := d.DataRateFor(5, true)
	if err != nil {
		t.Fatalf("DataRateFor: %v", err)
	}
	down, err := d.DataRateFor(5, false)
	if err != nil {
		t.Fatalf("DataRateFor: %v", err)
	}
	if up != down {
		t.Fatalf("EU868 must use the same DR table for uplink and downlink")
	}
}

func TestEU868RX1Offset(t *testing.T) {
	d, _ := Get(EU868)
	dr, err := d.RX1DataRate(5, 2)
	if err != nil {
		t.Fatalf("RX1DataRate: %v", err)
	}
	if dr != 3 {
		t.Fatalf("RX1DataRate(5,2) = %d, want 3", dr)
	}
}

func TestUS915AsymmetricTables(t *testing.T) {
	d, err := Get(US915)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.DRTable != nil {
		t.Fatalf("US915 must not populate the symmetric DRTable")
	}
	up, err := d.DataRateFor(3, true)
	if err != nil {
		t.Fatalf("DataRateFor uplink: %v", err)
	}
	if up.Bandwidth != 125000 {
		t.Fatalf("US915 uplink DR3 bandwidth = %d, want 125000", up.Bandwidth)
	}
	down, err := d.DataRateFor(10, false)
	if err != nil {
		t.Fatalf("DataRateFor downlink: %v", err)
	}
	if down.Bandwidth != 500000 {
		t.Fatalf("US915 downlink DR10 bandwidth = %d, want 500000", down.Bandwidth)
	}
}

func TestUS915RX1OffsetTableAuthoritative(t *testing.T) {
	d, _ := Get(US915)
	dr, err := d.RX1DataRate(0, 0)
	if err != nil {
		t.Fatalf("RX1DataRate: %v", err)
	}
	if dr != 10 {
		t.Fatalf("US915 RX1DataRate(0,0) = %d, want 10 (must not be derived by arithmetic)", dr)
	}
}

func TestEU868DutyCycleBands(t *testing.T) {
	d, _ := Get(EU868)
	band, ok := d.DutyCycleBandFor(869525000)
	if !ok {
		t.Fatalf("869.525MHz must resolve to band P")
	}
	if band.Name != "P" || band.Divisor != 10 {
		t.Fatalf("got band %+v, want P/10", band)
	}
}

func TestAS923RequiresCCA(t *testing.T) {
	d, _ := Get(AS923)
	if !d.CCAEnabled {
		t.Fatalf("AS923 must require CCA/LBT")
	}
}

func TestDefaultChannelPlanRestrictToSubBand(t *testing.T) {
	d, _ := Get(US915)
	plan := DefaultChannelPlan(d)
	if len(plan.Uplink) != 72 {
		t.Fatalf("US915 default plan uplink channels = %d, want 72", len(plan.Uplink))
	}
	plan.RestrictToSubBand(903000000, 904200000)
	for _, ch := range plan.Uplink {
		if ch.Frequency < 903000000 || ch.Frequency > 904200000 {
			t.Fatalf("channel %d outside restricted sub-band", ch.Frequency)
		}
	}
}
