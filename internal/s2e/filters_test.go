package s2e

import (
	"testing"

	"github.com/MultiTechSystems/basicstation/internal/codec"
	"github.com/MultiTechSystems/basicstation/internal/phy"
	"github.com/MultiTechSystems/basicstation/internal/region"
)

func TestNewSessionDefaultsToAcceptAllFilters(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	if !s.JoinFilter.Accepts(0xDEADBEEF) {
		t.Fatalf("a fresh session must accept any JoinEUI until router_config narrows it")
	}
	if !s.NetIDFilter.Accepts(0x01020304) {
		t.Fatalf("a fresh session must accept any DevAddr until router_config narrows it")
	}
}

func TestApplyRouterConfigNarrowsFilters(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	s.ApplyRouterConfig(&codec.RouterConfig{
		JoinEUI: [][2]uint64{{0x1000000000000000, 0x1FFFFFFFFFFFFFFF}},
		NetID:   []uint32{0x000013},
		DRs:     eu868TestDRs,
	})

	if s.JoinFilter.Accepts(0x2000000000000000) {
		t.Fatalf("JoinEUI outside the configured range must be rejected")
	}
	if !s.JoinFilter.Accepts(0x1500000000000000) {
		t.Fatalf("JoinEUI inside the configured range must be accepted")
	}

	netID := uint32(0x000013)
	devAddr := netID << 25
	if !s.NetIDFilter.Accepts(devAddr) {
		t.Fatalf("DevAddr with configured NetID must be accepted")
	}
	if s.NetIDFilter.Accepts(0) {
		t.Fatalf("DevAddr with an unconfigured NetID must be rejected once filters are narrowed")
	}
}

func TestApplyRouterConfigIgnoresEmptyFields(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	s.ApplyRouterConfig(&codec.RouterConfig{DRs: eu868TestDRs})

	if !s.JoinFilter.Accepts(0x1) || !s.NetIDFilter.Accepts(0x1) {
		t.Fatalf("an empty router_config must leave the accept-all defaults in place")
	}
}

func TestBypassesFiltersOnlyForRejoin(t *testing.T) {
	cases := []struct {
		mtype phy.MType
		want  bool
	}{
		{phy.MTypeJoinRequest, false},
		{phy.MTypeRejoinRequest, true},
		{phy.MTypeUnconfirmedDataUp, false},
		{phy.MTypeProprietary, false},
	}
	for _, c := range cases {
		f := phy.Frame{MType: c.mtype}
		if got := f.BypassesFilters(); got != c.want {
			t.Fatalf("BypassesFilters(%s) = %v, want %v", c.mtype, got, c.want)
		}
	}
}
