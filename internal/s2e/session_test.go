package s2e

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/MultiTechSystems/basicstation/internal/codec"
	"github.com/MultiTechSystems/basicstation/internal/ral"
	"github.com/MultiTechSystems/basicstation/internal/region"
)

// eu868TestDRs mirrors EU868's real DR0-DR5 table (SF12..SF7, all 125kHz),
// the minimum a router_config needs to pass ApplyRouterConfig's validation.
var eu868TestDRs = [][3]int{{12, 125, 0}, {11, 125, 0}, {10, 125, 0}, {9, 125, 0}, {8, 125, 0}, {7, 125, 0}}

func mustPayload(t *testing.T, hexStr string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return b
}

func TestHandleUplinkForwardsJoinRequest(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	var got []byte
	var gotType codec.MsgType
	s.OnUplinkJSON = func(mt codec.MsgType, data []byte) {
		gotType = mt
		got = data
	}

	// MHdr 0x00 (join-request) + 8 JoinEUI + 8 DevEUI + 2 DevNonce + 4 MIC = 23 bytes.
	payload := mustPayload(t, "00"+"0102030405060708"+"1112131415161718"+"2122"+"31323334")
	s.HandleUplink(ral.RxJob{PhyPayload: payload, Freq: 868100000, DR: 5, RSSI: -80, SNR: 7.5})

	if gotType != codec.MsgJoinRequest {
		t.Fatalf("msgtype = %s, want jreq", gotType)
	}
	var jr codec.JoinRequest
	if err := json.Unmarshal(got, &jr); err != nil {
		t.Fatalf("unmarshal forwarded jreq: %v", err)
	}
	if jr.DR != 5 || jr.Freq != 868100000 {
		t.Fatalf("unexpected jreq fields: %+v", jr)
	}
}

func TestHandleUplinkRejectedByJoinFilter(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)
	s.ApplyRouterConfig(&codec.RouterConfig{
		JoinEUI: [][2]uint64{{0xFFFFFFFFFFFFFFF0, 0xFFFFFFFFFFFFFFFF}},
		DRs:     eu868TestDRs,
	})

	called := false
	s.OnUplinkJSON = func(codec.MsgType, []byte) { called = true }

	payload := mustPayload(t, "00"+"0102030405060708"+"1112131415161718"+"2122"+"31323334")
	s.HandleUplink(ral.RxJob{PhyPayload: payload, Freq: 868100000, DR: 0})

	if called {
		t.Fatalf("expected join-request outside configured JoinEUI range to be dropped")
	}
}

func TestHandleUplinkRejoinBypassesFilters(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)
	// NetID filter accepting only NetID 1; rejoin must still be forwarded.
	s.ApplyRouterConfig(&codec.RouterConfig{NetID: []uint32{0x000001}, DRs: eu868TestDRs})

	called := false
	s.OnUplinkJSON = func(mt codec.MsgType, _ []byte) {
		called = true
		if mt != codec.MsgRejoin {
			t.Fatalf("msgtype = %s, want rejoin", mt)
		}
	}

	payload := make([]byte, 19)
	payload[0] = 0x06 << 5 // rejoin-request MType
	s.HandleUplink(ral.RxJob{PhyPayload: payload, Freq: 868100000, DR: 0})

	if !called {
		t.Fatalf("expected rejoin-request to bypass NetID filtering")
	}
}

func TestHandleUplinkDropsUnparseablePayload(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	called := false
	s.OnUplinkJSON = func(codec.MsgType, []byte) { called = true }

	s.HandleUplink(ral.RxJob{PhyPayload: nil})

	if called {
		t.Fatalf("expected empty payload to be dropped without a callback")
	}
}

func TestHandleDownlinkBuildsSchedulableJob(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	dl := &codec.Downlink{
		MsgType: codec.MsgDownlink,
		DevEUI:  "00-00-00-00-00-00-00-01",
		DIID:    42,
		PDU:     "0102030405",
		RX1DR:   3,
		RX1Freq: 868300000,
		RxDelay: 1,
	}

	job, err := s.HandleDownlink(dl)
	if err != nil {
		t.Fatalf("HandleDownlink: %v", err)
	}
	if job.DIID != 42 || job.Freq != 868300000 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Deadline.IsZero() {
		t.Fatalf("expected RxDelay to set a deadline")
	}
	if job.Power != eu868.MaxEIRPdBm {
		t.Fatalf("job.Power = %d, want region max %d", job.Power, eu868.MaxEIRPdBm)
	}
}

func TestHandleDownlinkCarriesDeviceClassAndGPSTime(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	dl := &codec.Downlink{
		MsgType:     codec.MsgDownlink,
		DevEUI:      "00-00-00-00-00-00-00-01",
		DIID:        1,
		PDU:         "0102",
		RX1DR:       3,
		RX1Freq:     868300000,
		DeviceClass: 2,
		MuxTime:     1234.5,
	}

	job, err := s.HandleDownlink(dl)
	if err != nil {
		t.Fatalf("HandleDownlink: %v", err)
	}
	if job.DeviceClass != 2 {
		t.Fatalf("job.DeviceClass = %d, want 2", job.DeviceClass)
	}
	if job.GPSTime != int64(1234.5*1e9) {
		t.Fatalf("job.GPSTime = %d, want %d", job.GPSTime, int64(1234.5*1e9))
	}
}

func TestHandleDownlinkRejectsBadPDU(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	_, err := s.HandleDownlink(&codec.Downlink{PDU: "not-hex"})
	if err == nil {
		t.Fatalf("expected error decoding invalid pdu hex")
	}
}

func TestApplyRouterConfigRejectsMissingDRTable(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	if err := s.ApplyRouterConfig(&codec.RouterConfig{Region: "EU868"}); err == nil {
		t.Fatalf("expected error applying router_config with no DR table")
	}
	// Session config must be left at its pre-call defaults (atomicity).
	if s.Asymmetric {
		t.Fatalf("expected untouched session to remain symmetric")
	}
}

func TestApplyRouterConfigDerivesLBTChannels(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)

	err := s.ApplyRouterConfig(&codec.RouterConfig{
		Region:     "EU868",
		DRs:        eu868TestDRs,
		LBTEnabled: true,
	})
	if err != nil {
		t.Fatalf("ApplyRouterConfig: %v", err)
	}
	if !s.LBTEnabled {
		t.Fatalf("expected LBTEnabled to be set")
	}
	if len(s.LBTChannels) != 3 {
		t.Fatalf("LBTChannels = %d, want 3 (EU868's default plan, all 125kHz)", len(s.LBTChannels))
	}
	if c, ok := s.LBTChannelFor(868100000); !ok || c.RSSITarget != -80 || c.ScanTimeUs != 5000 {
		t.Fatalf("unexpected derived LBT channel: %+v, ok=%v", c, ok)
	}
}

func TestHandleUplinkPDUOnlyModeSkipsMACFields(t *testing.T) {
	eu868, _ := region.Get(region.EU868)
	s := NewSession(eu868)
	if err := s.ApplyRouterConfig(&codec.RouterConfig{Region: "EU868", DRs: eu868TestDRs, PDUOnly: true}); err != nil {
		t.Fatalf("ApplyRouterConfig: %v", err)
	}

	var got []byte
	s.OnUplinkJSON = func(_ codec.MsgType, data []byte) { got = data }

	payload := mustPayload(t, "40"+"01020304"+"00"+"0500"+"01"+"AABB"+"A0A1A2A3")
	s.HandleUplink(ral.RxJob{PhyPayload: payload, Freq: 868100000, DR: 5})

	var up codec.Uplink
	if err := json.Unmarshal(got, &up); err != nil {
		t.Fatalf("unmarshal forwarded updf: %v", err)
	}
	if up.PDU == "" {
		t.Fatalf("expected pdu field to be populated in PDU-only mode")
	}
	if up.DevAddr != 0 || up.FCnt != 0 {
		t.Fatalf("expected MAC fields to stay zero-valued in PDU-only mode, got %+v", up)
	}
}
