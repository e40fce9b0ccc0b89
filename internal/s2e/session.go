// Package s2e implements the session and protocol engine: session
// lifecycle, uplink/downlink dispatch, outbound filtering, router_config
// materialization, and the DR mapping invariant described in spec §4.1.
package s2e

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/airtime"
	"github.com/MultiTechSystems/basicstation/internal/codec"
	"github.com/MultiTechSystems/basicstation/internal/phy"
	"github.com/MultiTechSystems/basicstation/internal/ral"
	"github.com/MultiTechSystems/basicstation/internal/ral/gw"
	"github.com/MultiTechSystems/basicstation/internal/region"
	"github.com/MultiTechSystems/basicstation/internal/txpipeline"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LBTChannel is one Listen-Before-Talk-eligible channel, either supplied
// explicitly by the LNS's router_config or derived from the uplink channel
// plan (spec §4.3 admission check 3).
type LBTChannel struct {
	Freq       uint32
	RSSITarget int
	ScanTimeUs int
}

// Session holds the state of one LNS connection: the negotiated region,
// filters, channel plan, and the downlink queue the TX pipeline drains. The
// engine creates one Session; it has no internal locking.
type Session struct {
	ID uuid.UUID

	Region      *region.Descriptor
	ChannelPlan region.ChannelPlan
	JoinFilter  phy.JoinFilter
	NetIDFilter phy.NetIDFilter

	Queue *txpipeline.Queue

	// OnUplinkJSON is called with the JSON-encoded message to forward to
	// the LNS for every accepted (non-filtered) uplink.
	OnUplinkJSON func(msgType codec.MsgType, data []byte)

	// OnRawConfig is called with router_config's opaque concentrator
	// configuration blob (sx130x_conf/sx1301_conf/sx1302_conf), so the
	// engine can hand it to the RAL backend verbatim.
	OnRawConfig func(raw []byte)

	rxDelaySecs int

	// Asymmetric is true once a router_config with separate DRs_up/DRs_dn
	// tables has been applied (US915/AU915-style regions).
	Asymmetric      bool
	UplinkDRTable   map[uint8]region.DataRate
	DownlinkDRTable map[uint8]region.DataRate
	ChannelAlloc    ral.ChannelAllocation
	MaxEIRPdBm      int32

	DutyCycleEnabled bool
	GPSEnable        bool

	// PDUOnly, when true, makes HandleUplink skip MAC-field population and
	// filtering for data frames, emitting the opaque PDU instead (spec §6
	// "pdu_only"). Join/rejoin/proprietary frames are unaffected: they
	// already forward their payload largely opaquely.
	PDUOnly     bool
	PDUEncoding string // "hex" (default) or "base64"/"b64"

	LBTEnabled  bool
	LBTChannels []LBTChannel
}

// NewSession creates a session for the given region, with the region's full
// default channel plan and accept-all filters (narrowed once router_config
// arrives from the LNS).
func NewSession(desc *region.Descriptor) *Session {
	return &Session{
		ID:          uuid.New(),
		Region:      desc,
		ChannelPlan: region.DefaultChannelPlan(desc),
		Queue:       txpipeline.NewQueue(),
		rxDelaySecs: 1,
		PDUEncoding: "hex",
	}
}

// ApplyRouterConfig narrows the session's filters, channel plan, DR tables,
// and LBT/PDU/duty-cycle toggles from the LNS's router_config message. Per
// spec §5's ordering guarantee, application is atomic: every field needed
// to materialize the new configuration is validated and computed into
// local variables first, and the session is mutated only once all of them
// succeed. A validation or channel-allocation failure returns an error and
// leaves the session's existing configuration completely untouched; the
// caller (the engine) is expected to treat that as spec §4.1 step 3's
// "terminate the session" outcome.
func (s *Session) ApplyRouterConfig(rc *codec.RouterConfig) error {
	upDR, dnDR, asymmetric, err := parseDRTables(rc)
	if err != nil {
		return fmt.Errorf("s2e: %w", err)
	}

	plan := s.ChannelPlan
	if len(rc.Upchannels) > 0 {
		plan = region.ChannelPlan{Region: s.ChannelPlan.Region, Downlink: s.ChannelPlan.Downlink}
		for _, uc := range rc.Upchannels {
			plan.Uplink = append(plan.Uplink, region.Channel{
				Frequency: uc[0],
				MinDR:     uint8(uc[1]),
				MaxDR:     uint8(uc[2]),
			})
		}
	}

	alloc, err := ral.Allocate(plan, upDR)
	if err != nil {
		return fmt.Errorf("s2e: %w", err)
	}

	newJoinFilter := s.JoinFilter
	if len(rc.JoinEUI) > 0 {
		newJoinFilter = phy.NewJoinFilter(rc.JoinEUI)
	}
	newNetIDFilter := s.NetIDFilter
	if len(rc.NetID) > 0 {
		newNetIDFilter = phy.NewNetIDFilter(rc.NetID)
	}

	maxEIRP := s.MaxEIRPdBm
	if rc.MaxEIRP != 0 {
		maxEIRP = int32(rc.MaxEIRP)
	}

	pduEncoding := rc.PDUEncoding
	if pduEncoding == "" {
		pduEncoding = "hex"
	}

	lbtChannels := deriveLBTChannels(plan, rc, upDR)

	// Everything above is validated and computed; commit atomically.
	s.JoinFilter = newJoinFilter
	s.NetIDFilter = newNetIDFilter
	s.ChannelPlan = plan
	s.Asymmetric = asymmetric
	s.UplinkDRTable = upDR
	s.DownlinkDRTable = dnDR
	s.ChannelAlloc = alloc
	s.MaxEIRPdBm = maxEIRP
	s.DutyCycleEnabled = rc.DutyCycleEnabled
	s.GPSEnable = rc.GPSEnable
	s.PDUOnly = rc.PDUOnly
	s.PDUEncoding = pduEncoding
	s.LBTEnabled = rc.LBTEnabled
	s.LBTChannels = lbtChannels

	if len(rc.SX130xConf) > 0 && s.OnRawConfig != nil {
		s.OnRawConfig(rc.SX130xConf)
	}

	return nil
}

// LBTChannelFor returns the derived or LNS-supplied LBT parameters for a
// frequency, if the session's router_config carries one.
func (s *Session) LBTChannelFor(freqHz uint32) (LBTChannel, bool) {
	for _, c := range s.LBTChannels {
		if c.Freq == freqHz {
			return c, true
		}
	}
	return LBTChannel{}, false
}

// parseDRTables resolves router_config's DR table fields into uplink and
// downlink DR maps, honoring the rule that DRs_up/DRs_dn must both be
// present if either is (spec §6's field table); a symmetric "DRs" table is
// used for both directions.
func parseDRTables(rc *codec.RouterConfig) (up, dn map[uint8]region.DataRate, asymmetric bool, err error) {
	switch {
	case len(rc.DRsUp) > 0 || len(rc.DRsDn) > 0:
		if len(rc.DRsUp) == 0 || len(rc.DRsDn) == 0 {
			return nil, nil, false, fmt.Errorf("DRs_up and DRs_dn must both be present in asymmetric mode")
		}
		up = parseDRTable(rc.DRsUp)
		dn = parseDRTable(rc.DRsDn)
		return up, dn, true, nil
	case len(rc.DRs) > 0:
		up = parseDRTable(rc.DRs)
		return up, up, false, nil
	default:
		return nil, nil, false, fmt.Errorf("router_config carries no DR table (DRs or DRs_up/DRs_dn required)")
	}
}

// parseDRTable decodes the wire DR entry convention [SpreadingFactor,
// BandwidthKHz, _] (SF 0 meaning FSK, where the second field is the bit
// rate in kbit/s instead) into the region package's DataRate shape. Entry
// index i is DR index i.
func parseDRTable(entries [][3]int) map[uint8]region.DataRate {
	table := make(map[uint8]region.DataRate, len(entries))
	for i, e := range entries {
		sf, bwOrRate := e[0], e[1]
		if sf == 0 {
			table[uint8(i)] = region.DataRate{Modulation: region.ModFSK, BitRate: uint32(bwOrRate) * 1000}
			continue
		}
		table[uint8(i)] = region.DataRate{
			Modulation:      region.ModLoRa,
			SpreadingFactor: uint8(sf),
			Bandwidth:       uint32(bwOrRate) * 1000,
		}
	}
	return table
}

// deriveLBTChannels returns the LBT-eligible channel list: the LNS's
// explicit lbt_channels if it sent one, else every uplink channel whose DR
// range includes a LoRa entry of at most 250kHz (spec §4.3 admission check
// 3's bandwidth cutoff), each tagged with the configured or default
// rssi_target/scan_time_us.
func deriveLBTChannels(plan region.ChannelPlan, rc *codec.RouterConfig, upDR map[uint8]region.DataRate) []LBTChannel {
	rssi := rc.LBTRSSITarget
	if rssi == 0 {
		rssi = -80
	}
	scanUs := rc.LBTScanTimeUs
	if scanUs == 0 {
		scanUs = 5000
	}

	if len(rc.LBTChannels) > 0 {
		out := make([]LBTChannel, 0, len(rc.LBTChannels))
		for _, c := range rc.LBTChannels {
			out = append(out, LBTChannel{Freq: c.Freq, RSSITarget: rssi, ScanTimeUs: scanUs})
		}
		return out
	}

	var out []LBTChannel
	for _, ch := range plan.Uplink {
		eligible := false
		for dr := int(ch.MinDR); dr <= int(ch.MaxDR); dr++ {
			if rate, ok := upDR[uint8(dr)]; ok && rate.Modulation == region.ModLoRa && rate.Bandwidth <= 250000 {
				eligible = true
				break
			}
		}
		if eligible {
			out = append(out, LBTChannel{Freq: ch.Frequency, RSSITarget: rssi, ScanTimeUs: scanUs})
		}
	}
	return out
}

// HandleUplink parses a received radio frame and, unless it is rejected by
// the session's filters, forwards it to the LNS as the appropriate JSON
// message. Rejoin-request frames always bypass filtering per spec §8's
// invariant on rejoin handling. In PDU-only mode (spec §6 "pdu_only"), data
// frames skip MAC-field population and NetID filtering entirely, forwarding
// the opaque PHYPayload instead.
func (s *Session) HandleUplink(job ral.RxJob) {
	frame, err := phy.Parse(job.PhyPayload)
	if err != nil {
		log.WithFields(log.Fields{"subsys": "S2E"}).WithError(err).Warn("dropping unparseable uplink")
		return
	}

	isData := frame.MType.IsData()
	pduOnly := s.PDUOnly && isData

	if !frame.BypassesFilters() && !pduOnly {
		switch frame.MType {
		case phy.MTypeJoinRequest:
			if !s.JoinFilter.Accepts(frame.JoinEUI) {
				log.WithFields(log.Fields{"subsys": "S2E", "joineui": frame.JoinEUI}).Debug("join-request rejected by JoinEUI filter")
				return
			}
		case phy.MTypeUnconfirmedDataUp, phy.MTypeConfirmedDataUp:
			if !s.NetIDFilter.Accepts(frame.DevAddr) {
				log.WithFields(log.Fields{"subsys": "S2E", "devaddr": frame.DevAddr}).Debug("uplink rejected by NetID filter")
				return
			}
		}
	}

	dr, err := s.dataRateIndexFor(job)
	if err != nil {
		log.WithFields(log.Fields{"subsys": "S2E"}).WithError(err).Warn("dropping uplink with unresolvable data rate")
		return
	}

	upinfo := codec.UpInfo{
		RSSI:      float64(job.RSSI),
		SNR:       float64(job.SNR),
		RxContext: codec.RxContext{RCtx: job.RCtx, XTime: int64(job.XTime)},
	}

	switch frame.MType {
	case phy.MTypeJoinRequest:
		msg := &codec.JoinRequest{
			MsgType:  codec.MsgJoinRequest,
			MHdr:     uint8(frame.MHdr),
			JoinEUI:  formatEUI(frame.JoinEUI),
			DevEUI:   formatEUI(frame.DevEUI),
			DevNonce: frame.DevNonce,
			MIC:      frame.MIC,
			DR:       dr,
			Freq:     int(job.Freq),
			UpInfo:   upinfo,
		}
		s.emit(codec.MsgJoinRequest, msg)

	case phy.MTypeRejoinRequest:
		msg := &codec.Rejoin{
			MsgType: codec.MsgRejoin,
			MHdr:    uint8(frame.MHdr),
			PDU:     encodePDU(frame.RawPayload, "hex"),
			MIC:     frame.MIC,
			DR:      dr,
			Freq:    int(job.Freq),
			UpInfo:  upinfo,
		}
		s.emit(codec.MsgRejoin, msg)

	case phy.MTypeUnconfirmedDataUp, phy.MTypeConfirmedDataUp:
		msg := &codec.Uplink{
			MsgType: codec.MsgUplinkData,
			MHdr:    uint8(frame.MHdr),
			DR:      dr,
			Freq:    int(job.Freq),
			UpInfo:  upinfo,
		}
		if pduOnly {
			msg.PDU = encodePDU(frame.RawPayload, s.PDUEncoding)
		} else {
			msg.DevAddr = int32(frame.DevAddr)
			msg.FCtrl = frame.FCtrl
			msg.FCnt = frame.FCnt
			msg.FOpts = hex.EncodeToString(frame.FOpts)
			msg.FPort = frame.FPort
			msg.FRMPayload = hex.EncodeToString(frame.FRMPayload)
			msg.MIC = frame.MIC
		}
		s.emit(codec.MsgUplinkData, msg)

	case phy.MTypeProprietary:
		msg := &codec.Uplink{
			MsgType:    codec.MsgProprietary,
			MHdr:       uint8(frame.MHdr),
			FRMPayload: hex.EncodeToString(frame.RawPayload),
			MIC:        frame.MIC,
			DR:         dr,
			Freq:       int(job.Freq),
			UpInfo:     upinfo,
		}
		s.emit(codec.MsgProprietary, msg)

	default:
		log.WithFields(log.Fields{"subsys": "S2E", "mtype": frame.MType}).Debug("ignoring uplink of unsupported type")
	}
}

func (s *Session) emit(mt codec.MsgType, msg interface{}) {
	if s.OnUplinkJSON == nil {
		return
	}
	data, err := codec.Encode(msg)
	if err != nil {
		log.WithFields(log.Fields{"subsys": "S2E"}).WithError(err).Error("failed to encode uplink for LNS")
		return
	}
	s.OnUplinkJSON(mt, data)
}

// dataRateIndexFor returns the DR index the RAL reported in job.DR, never
// one inferred from the frame's MIC or payload length. It does not look the
// frame's frequency or modulation up in the region's DR table.
func (s *Session) dataRateIndexFor(job ral.RxJob) (int, error) {
	if job.DR >= 0 {
		return job.DR, nil
	}
	return 0, fmt.Errorf("s2e: no data rate reported for uplink")
}

// HandleDownlink converts an LNS dnmsg into a scheduled TX pipeline job,
// decoding its PDU with the session's negotiated encoding (spec §6
// "pdu_encoding"; hex unless router_config said otherwise).
func (s *Session) HandleDownlink(dl *codec.Downlink) (*txpipeline.Job, error) {
	encoding := s.PDUEncoding
	if encoding == "" {
		encoding = "hex"
	}
	pdu, err := decodePDU(dl.PDU, encoding)
	if err != nil {
		return nil, fmt.Errorf("s2e: decode pdu: %w", err)
	}

	var dr region.DataRate
	if s.Region != nil {
		dr, err = s.Region.DataRateFor(uint8(dl.RX1DR), false)
		if err != nil {
			return nil, fmt.Errorf("s2e: resolve downlink data rate: %w", err)
		}
	}

	job := &txpipeline.Job{
		DIID:       dl.DIID,
		DevEUI:     dl.DevEUI,
		PhyPayload: pdu,
		Freq:       uint32(dl.RX1Freq),
		Bandwidth:  dr.Bandwidth,
		SF:         uint32(dr.SpreadingFactor),
		CodeRate:   gw.CodeRate4_5,
		XTime:      uint64(dl.XTime),
		Priority:    txpipeline.Priority(dl.Priority),
		Antenna:     uint32(dl.RCtx),
		DeviceClass: dl.DeviceClass,
		GPSTime:     int64(dl.MuxTime * 1e9),
	}

	if s.Region != nil {
		job.Power = s.Region.MaxEIRPdBm
	}
	if s.MaxEIRPdBm != 0 && s.MaxEIRPdBm < job.Power {
		job.Power = s.MaxEIRPdBm
	}

	if dl.RxDelay > 0 {
		job.Deadline = time.Now().Add(time.Duration(dl.RxDelay) * time.Second)
	}

	return job, nil
}

// AirtimeMs estimates a job's on-air duration before the job reaches the
// scheduler, with the same parameters the admitter uses.
func (s *Session) AirtimeMs(job *txpipeline.Job) uint32 {
	return airtime.DurationMillis(airtime.Params{
		Bandwidth:       job.Bandwidth,
		SpreadingFactor: uint8(job.SF),
		CodingRate:      airtime.CR4_5,
		ExplicitHeader:  true,
		PayloadLen:      len(job.PhyPayload),
	})
}

// encodePDU renders raw bytes per router_config's negotiated pdu_encoding:
// hex by default, base64/b64 when requested.
func encodePDU(raw []byte, encoding string) string {
	if encoding == "base64" || encoding == "b64" {
		return base64.StdEncoding.EncodeToString(raw)
	}
	return hex.EncodeToString(raw)
}

// decodePDU is encodePDU's inverse, used to decode a dnmsg's pdu field.
func decodePDU(s, encoding string) ([]byte, error) {
	if encoding == "base64" || encoding == "b64" {
		return base64.StdEncoding.DecodeString(s)
	}
	return hex.DecodeString(s)
}

func formatEUI(eui uint64) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, eui)
	out := make([]byte, 0, 23)
	for i, by := range b {
		if i > 0 {
			out = append(out, '-')
		}
		out = append(out, []byte(hex.EncodeToString([]byte{by}))...)
	}
	return string(out)
}
