// Package codec implements the station<->LNS wire formats: the mandatory
// JSON protocol and an optional binary TLV codec, advertised in the
// "features" field of the version message and selected by router_config's
// protocol_format.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MsgType is the "msgtype" discriminator carried by every station<->LNS
// JSON message.
type MsgType string

const (
	MsgVersion      MsgType = "version"
	MsgRouterConfig MsgType = "router_config"
	MsgJoinRequest  MsgType = "jreq"
	MsgRejoin       MsgType = "rejoin"
	MsgUplinkData   MsgType = "updf"
	MsgProprietary  MsgType = "propdf"
	MsgDownlink     MsgType = "dnmsg"
	MsgDownlinkSent MsgType = "dntxed"
	MsgDownlinkSched MsgType = "dnsched"
	MsgTimeSync     MsgType = "timesync"
	MsgRunCommand   MsgType = "runcmd"
	MsgRemoteShell  MsgType = "rmtsh"
)

// RxContext carries the fields common to every radio-timestamped message:
// the xtime counter sample, the receive-context token (antenna/rf-chain, in
// the low bits), and the GPS time when available.
type RxContext struct {
	RCtx    int64   `json:"rctx"`
	XTime   int64   `json:"xtime"`
	GPSTime float64 `json:"gpstime,omitempty"`
}

// UpInfo carries signal-quality metadata present on every uplink frame.
type UpInfo struct {
	RSSI float64 `json:"rssi"`
	SNR  float64 `json:"snr"`
	RxContext
}

// Version is the station's self-identification, sent immediately after the
// WebSocket upgrade completes.
type Version struct {
	MsgType  MsgType `json:"msgtype"`
	Station  string  `json:"station"`
	Firmware string  `json:"firmware"`
	Package  string  `json:"package"`
	Model    string  `json:"model"`
	Protocol uint    `json:"protocol"`
	Features string  `json:"features"`
}

// SX1301Conf describes one concentrator chip's channel assignment within a
// router_config message.
type SX1301Conf struct {
	Radio0        Radio        `json:"radio_0"`
	Radio1        Radio        `json:"radio_1"`
	ChanMultiSF   [8]RadioChan `json:"-"`
	ChanLoraStd   LoraStdChan  `json:"chan_Lora_std"`
	ChanFSK       FSKChan      `json:"chan_FSK"`
}

// Radio is one physical radio front-end's center frequency.
type Radio struct {
	Enable bool   `json:"enable"`
	Freq   uint32 `json:"freq"`
}

// RadioChan is one IF chain assigned to a radio.
type RadioChan struct {
	Enable bool `json:"enable"`
	Radio  uint `json:"radio"`
	IF     int  `json:"if"`
}

// LoraStdChan is the wide single-SF LoRa channel.
type LoraStdChan struct {
	RadioChan
	Bandwidth       int `json:"bandwidth"`
	SpreadingFactor int `json:"spread_factor"`
}

// FSKChan is the FSK channel.
type FSKChan struct {
	RadioChan
	Bandwidth int `json:"bandwidth"`
	Datarate  int `json:"datarate"`
}

// LBTChannel is one entry of the LNS-supplied Listen-Before-Talk channel
// list (spec §6's "lbt_channels" field).
type LBTChannel struct {
	Freq uint32 `json:"freq"`
}

// RouterConfig is the LNS's reply to version: region, DR table, filters,
// channel plan, and the LBT/PDU/duty-cycle toggles it carries (spec §6's
// field table).
type RouterConfig struct {
	MsgType   MsgType     `json:"msgtype"`
	DRs       [][3]int    `json:"DRs,omitempty"`
	DRsUp     [][3]int    `json:"DRs_up,omitempty"`
	DRsDn     [][3]int    `json:"DRs_dn,omitempty"`
	NetID     []uint32    `json:"NetID,omitempty"`
	JoinEUI   [][2]uint64 `json:"JoinEui,omitempty"`
	Region    string      `json:"region"`
	HWSpec    string      `json:"hwspec"`
	FreqRange [2]uint32   `json:"freq_range,omitempty"`
	MaxEIRP   float64     `json:"max_eirp,omitempty"`

	Upchannels [][3]uint32 `json:"upchannels,omitempty"`

	// SX130xConf is the opaque concentrator configuration blob, passed
	// through to the RAL backend untouched. The LNS may send it under any
	// of "sx130x_conf", "sx1301_conf", or "sx1302_conf"; UnmarshalJSON
	// folds whichever is present into this field.
	SX130xConf json.RawMessage `json:"-"`

	NoCCA   bool `json:"nocca,omitempty"`
	NoDC    bool `json:"nodc,omitempty"`
	NoDwell bool `json:"nodwell,omitempty"`

	DutyCycleEnabled bool `json:"duty_cycle_enabled,omitempty"`
	GPSEnable        bool `json:"gps_enable,omitempty"`

	PDUOnly     bool   `json:"pdu_only,omitempty"`
	PDUEncoding string `json:"pdu_encoding,omitempty"`

	LBTEnabled    bool         `json:"lbt_enabled,omitempty"`
	LBTChannels   []LBTChannel `json:"lbt_channels,omitempty"`
	LBTRSSITarget int          `json:"lbt_rssi_target,omitempty"`
	LBTScanTimeUs int          `json:"lbt_scan_time_us,omitempty"`

	ProtocolFormat string `json:"protocol_format,omitempty"`
}

// routerConfigAlias avoids infinite recursion through UnmarshalJSON while
// still picking up sx1301_conf/sx1302_conf as aliases of sx130x_conf.
type routerConfigAlias RouterConfig

// UnmarshalJSON decodes a RouterConfig, folding whichever of
// sx130x_conf/sx1301_conf/sx1302_conf the LNS sent into SX130xConf.
func (rc *RouterConfig) UnmarshalJSON(data []byte) error {
	var aux struct {
		routerConfigAlias
		SX130x json.RawMessage `json:"sx130x_conf,omitempty"`
		SX1301 json.RawMessage `json:"sx1301_conf,omitempty"`
		SX1302 json.RawMessage `json:"sx1302_conf,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*rc = RouterConfig(aux.routerConfigAlias)
	switch {
	case len(aux.SX130x) > 0:
		rc.SX130xConf = aux.SX130x
	case len(aux.SX1301) > 0:
		rc.SX130xConf = aux.SX1301
	case len(aux.SX1302) > 0:
		rc.SX130xConf = aux.SX1302
	}
	return nil
}

// JoinRequest is a parsed join-request uplink, forwarded to the LNS
// verbatim (the station never decrypts or validates the MIC).
type JoinRequest struct {
	MsgType  MsgType `json:"msgtype"`
	MHdr     uint8   `json:"MHdr"`
	JoinEUI  string  `json:"JoinEui"`
	DevEUI   string  `json:"DevEui"`
	DevNonce uint16  `json:"DevNonce"`
	MIC      int32   `json:"MIC"`
	DR       int     `json:"DR"`
	Freq     int     `json:"Freq"`
	UpInfo   UpInfo  `json:"upinfo"`
}

// Uplink is a parsed data-frame uplink.
type Uplink struct {
	MsgType    MsgType `json:"msgtype"`
	MHdr       uint8   `json:"MHdr"`
	DevAddr    int32   `json:"DevAddr"`
	FCtrl      uint8   `json:"FCtrl"`
	FCnt       uint16  `json:"FCnt"`
	FOpts      string  `json:"FOpts"`
	FPort      int     `json:"FPort"`
	FRMPayload string  `json:"FRMPayload"`
	MIC        int32   `json:"MIC"`
	DR         int     `json:"DR"`
	Freq       int     `json:"Freq"`
	UpInfo     UpInfo  `json:"upinfo"`

	// PDU carries the entire hex- or base64-encoded PHYPayload when the
	// session is running in PDU-only mode (spec §6 "pdu_only"): MAC fields
	// above are left zero-valued and this field is populated instead.
	PDU string `json:"pdu,omitempty"`
}

// Rejoin is a parsed rejoin-request uplink. Rejoin requests are forwarded
// as their own message type, bypassing JoinEUI/NetID filtering, and carry
// only the raw PDU plus MHdr/MIC: the station has no DevAddr/FCnt/etc. to
// report for a frame whose device identity the LNS has not yet confirmed.
type Rejoin struct {
	MsgType MsgType `json:"msgtype"`
	MHdr    uint8   `json:"MHdr"`
	PDU     string  `json:"pdu"`
	MIC     int32   `json:"MIC"`
	DR      int     `json:"DR"`
	Freq    int     `json:"Freq"`
	UpInfo  UpInfo  `json:"upinfo"`
}

// Downlink is a downlink job scheduled by the LNS, per spec §4.3's downlink
// job data model and the dnmsg field set.
type Downlink struct {
	MsgType     MsgType `json:"msgtype"`
	DevEUI      string  `json:"DevEui"`
	DeviceClass int     `json:"dC"`
	DIID        int64   `json:"diid"`
	PDU         string  `json:"pdu"`
	RxDelay     int     `json:"RxDelay"`
	RX1DR       int     `json:"RX1DR,omitempty"`
	RX1Freq     int     `json:"RX1Freq,omitempty"`
	RX2DR       int     `json:"RX2DR,omitempty"`
	RX2Freq     int     `json:"RX2Freq,omitempty"`
	Priority    int     `json:"priority"`
	XTime       int64   `json:"xtime"`
	RCtx        int64   `json:"rctx"`
	MuxTime     float64 `json:"MuxTime,omitempty"`
}

// DownlinkSent confirms a downlink transmission actually occurred.
type DownlinkSent struct {
	MsgType MsgType   `json:"msgtype"`
	DIID    int64     `json:"diid"`
	DevEUI  string    `json:"DevEui"`
	TxTime  float64   `json:"txtime"`
	RCtx    RxContext `json:"-"`
}

// DownlinkScheduled reports that a downlink has been queued but not yet
// transmitted (sent when the job is queued, ahead of the eventual dntxed).
type DownlinkScheduled struct {
	MsgType MsgType `json:"msgtype"`
	DIID    int64   `json:"diid"`
	DevEUI  string  `json:"DevEui"`
}

// TimeSync carries the station's notion of xtime/GPS time for the LNS's
// clock-correlation use, and the LNS's reply with its own reference time.
type TimeSync struct {
	MsgType  MsgType `json:"msgtype"`
	TxTime   float64 `json:"txtime,omitempty"`
	GPSTime  int64   `json:"gpstime,omitempty"`
	XTime    int64   `json:"xtime,omitempty"`
	MuxTime  float64 `json:"MuxTime,omitempty"`
}

// Decode reads one JSON station<->LNS message from r and returns the
// concrete message type its "msgtype" field names.
func Decode(r io.Reader) (MsgType, interface{}, error) {
	var peek struct {
		MsgType MsgType `json:"msgtype"`
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("codec: read: %w", err)
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return "", nil, fmt.Errorf("codec: peek msgtype: %w", err)
	}

	var out interface{}
	switch peek.MsgType {
	case MsgVersion:
		out = &Version{}
	case MsgRouterConfig:
		out = &RouterConfig{}
	case MsgJoinRequest:
		out = &JoinRequest{}
	case MsgRejoin:
		out = &Rejoin{}
	case MsgUplinkData:
		out = &Uplink{}
	case MsgDownlink:
		out = &Downlink{}
	case MsgDownlinkSent:
		out = &DownlinkSent{}
	case MsgDownlinkSched:
		out = &DownlinkScheduled{}
	case MsgTimeSync:
		out = &TimeSync{}
	case MsgProprietary:
		return peek.MsgType, json.RawMessage(data), nil
	default:
		return "", nil, fmt.Errorf("codec: unsupported msgtype %q", peek.MsgType)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return "", nil, fmt.Errorf("codec: decode %s: %w", peek.MsgType, err)
	}
	return peek.MsgType, out, nil
}

// Encode marshals a message to its JSON wire representation.
func Encode(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
