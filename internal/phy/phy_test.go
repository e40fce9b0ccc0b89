package phy

import (
	"encoding/hex"
	"testing"
)

func TestParseJoinRequest(t *testing.T) {
	payload := make([]byte, 23)
	payload[0] = byte(MTypeJoinRequest) << 5
	for i := 1; i < 9; i++ {
		payload[i] = 0xAA
	}
	for i := 9; i < 17; i++ {
		payload[i] = 0xBB
	}
	payload[17] = 0x01
	payload[18] = 0x02

	f, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.MType != MTypeJoinRequest {
		t.Fatalf("MType = %v, want JoinRequest", f.MType)
	}
	if f.DevNonce != 0x0201 {
		t.Fatalf("DevNonce = %#x, want 0x0201", f.DevNonce)
	}
	if f.BypassesFilters() {
		t.Fatalf("join-request must not bypass filters")
	}
}

func TestParseRejoinBypassesFilters(t *testing.T) {
	payload := make([]byte, 19)
	payload[0] = byte(MTypeRejoinRequest) << 5

	f, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.BypassesFilters() {
		t.Fatalf("rejoin-request must bypass filters")
	}
}

func TestParseRejoinRejectsBadLength(t *testing.T) {
	payload := make([]byte, 20)
	payload[0] = byte(MTypeRejoinRequest) << 5

	if _, err := Parse(payload); err == nil {
		t.Fatalf("expected error for 20-byte rejoin frame")
	}
}

func TestParseDataFrameTooShort(t *testing.T) {
	payload := []byte{byte(MTypeUnconfirmedDataUp) << 5, 0x01, 0x02}
	if _, err := Parse(payload); err == nil {
		t.Fatalf("expected error for short data frame")
	}
}

func TestMTypeIsUplink(t *testing.T) {
	cases := []struct {
		mt   MType
		want bool
	}{
		{MTypeJoinRequest, true},
		{MTypeJoinAccept, false},
		{MTypeUnconfirmedDataUp, true},
		{MTypeUnconfirmedDataDown, false},
		{MTypeRejoinRequest, true},
	}
	for _, c := range cases {
		if got := c.mt.IsUplink(); got != c.want {
			t.Errorf("%v.IsUplink() = %v, want %v", c.mt, got, c.want)
		}
	}
}

func TestJoinFilterAcceptsAllWhenEmpty(t *testing.T) {
	f := NewJoinFilter(nil)
	if !f.Accepts(0x1234) {
		t.Fatalf("empty filter must accept everything")
	}
}

func TestJoinFilterRange(t *testing.T) {
	f := NewJoinFilter([][2]uint64{{0x100, 0x200}})
	if !f.Accepts(0x150) {
		t.Fatalf("expected 0x150 to be accepted")
	}
	if f.Accepts(0x300) {
		t.Fatalf("expected 0x300 to be rejected")
	}
}

func TestParseDataFrameMICAndFPort(t *testing.T) {
	// MHdr | DevAddr(4) | FCtrl=0x00 | FCnt(2) | FPort=0x01 | FRMPayload(2) | MIC(4)
	payload := mustHexPayload(t, "40"+"01020304"+"00"+"0500"+"01"+"AABB"+"A0A1A2A3")

	f, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.DevAddr != 0x04030201 {
		t.Fatalf("DevAddr = %#x, want 0x04030201", f.DevAddr)
	}
	if f.FCnt != 5 {
		t.Fatalf("FCnt = %d, want 5", f.FCnt)
	}
	if f.FPort != 1 {
		t.Fatalf("FPort = %d, want 1", f.FPort)
	}
	if len(f.FRMPayload) != 2 {
		t.Fatalf("FRMPayload = %x, want 2 bytes", f.FRMPayload)
	}
	if !f.HasMIC() {
		t.Fatalf("expected MIC to be populated")
	}
	if f.MIC != -1549622880 {
		t.Fatalf("MIC = %d, want -1549622880", f.MIC)
	}
}

func TestParseDataFrameNoFPort(t *testing.T) {
	payload := mustHexPayload(t, "40"+"01020304"+"00"+"0500"+"A0A1A2A3")

	f, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.FPort != FPortAbsent {
		t.Fatalf("FPort = %d, want FPortAbsent", f.FPort)
	}
	if len(f.FRMPayload) != 0 {
		t.Fatalf("FRMPayload = %x, want empty", f.FRMPayload)
	}
}

func mustHexPayload(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad test payload %q: %v", s, err)
	}
	return b
}

func TestNetIDFromDevAddr(t *testing.T) {
	// Type-0 address: top bit 0, next 7 bits are the NetID.
	devAddr := uint32(0b0_0000101) << 25
	if got := NetIDFromDevAddr(devAddr); got != 5 {
		t.Fatalf("NetIDFromDevAddr = %d, want 5", got)
	}
}
