// Package region holds the static LoRaWAN regional-parameter data a gateway
// needs: data-rate tables, default channel plans, and duty-cycle/CCA/dwell
// policy flags. It intentionally omits everything an LNS-side ADR engine
// would need (no LinkADRReq construction, no per-device channel mask
// tracking) since that is a network-server concern, not a gateway concern.
package region

import "fmt"

// Name identifies a LoRaWAN region.
type Name string

const (
	EU868 Name = "EU868"
	US915 Name = "US915"
	AU915 Name = "AU915"
	AS923 Name = "AS923"
	KR920 Name = "KR920"
	IN865 Name = "IN865"
)

// Modulation distinguishes LoRa from FSK data rates.
type Modulation uint8

const (
	ModLoRa Modulation = iota
	ModFSK
)

// DataRate describes one DR table entry.
type DataRate struct {
	Modulation      Modulation
	SpreadingFactor uint8
	Bandwidth       uint32 // Hz
	BitRate         uint32 // FSK only, bits/sec
	MaxPayloadSize  uint16 // bytes, repeater-compatible (N), per spec §3
}

// Channel is a fixed-frequency uplink or downlink channel.
type Channel struct {
	Frequency uint32 // Hz
	MinDR     uint8
	MaxDR     uint8
}

// DutyCycleBand is one duty-cycle-restricted ISM sub-band (EU868-style).
type DutyCycleBand struct {
	Name        string
	LoFreq      uint32
	HiFreq      uint32
	Divisor     uint32 // 1/divisor airtime budget, e.g. 100 for 1%
	MaxEIRPdBm  int32
}

// Descriptor is the full set of regional parameters for one region.
type Descriptor struct {
	Name Name

	// DRTable maps DR index -> DataRate. Symmetric regions (EU868, AS923,
	// KR920, IN865) use the same table for uplink and downlink; asymmetric
	// regions (US915, AU915) populate UplinkDRTable/DownlinkDRTable instead
	// and leave DRTable empty.
	DRTable map[uint8]DataRate

	// Asymmetric regions only.
	UplinkDRTable   map[uint8]DataRate
	DownlinkDRTable map[uint8]DataRate
	// RX1DROffsetTable[uplinkDR][offset] = downlink DR, per spec §3's
	// asymmetric RX1 data-rate mapping invariant.
	RX1DROffsetTable map[uint8][]uint8

	UplinkChannels   []Channel
	DownlinkChannels []Channel

	DutyCycleBands []DutyCycleBand

	CCAEnabled     bool // listen-before-talk required (AS923-x, KR920)
	DwellTimeLimit bool // 400ms uplink/downlink dwell limit may apply
	MaxEIRPdBm     int32
	FreqRangeHz    [2]uint32
}

var registry = map[Name]*Descriptor{}

func register(d *Descriptor) {
	registry[d.Name] = d
}

// legacyNames maps router_config region spellings this registry doesn't
// carry a distinct descriptor for onto the descriptor that covers them, so
// a station pointed at an LNS using the older naming still resolves.
var legacyNames = map[Name]Name{
	"AS923-1": AS923,
	"AS923-2": AS923,
	"AS923-3": AS923,
	"AS923-4": AS923,
	"US902":   US915,
}

// Normalize resolves a region name's legacy aliases to the name this
// registry actually keys descriptors by. Names with no alias pass through
// unchanged.
func Normalize(name Name) Name {
	if canonical, ok := legacyNames[name]; ok {
		return canonical
	}
	return name
}

// Get returns the descriptor for a region name, normalizing legacy aliases
// first.
func Get(name Name) (*Descriptor, error) {
	d, ok := registry[Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("region: unknown region %q", name)
	}
	return d, nil
}

// DataRateFor resolves a DR index to its DataRate, honoring asymmetric
// regions where uplink and downlink tables differ.
func (d *Descriptor) DataRateFor(dr uint8, uplink bool) (DataRate, error) {
	if d.DRTable != nil {
		rate, ok := d.DRTable[dr]
		if !ok {
			return DataRate{}, fmt.Errorf("region: %s has no DR%d", d.Name, dr)
		}
		return rate, nil
	}

	table := d.DownlinkDRTable
	if uplink {
		table = d.UplinkDRTable
	}
	rate, ok := table[dr]
	if !ok {
		return DataRate{}, fmt.Errorf("region: %s has no DR%d (uplink=%v)", d.Name, dr, uplink)
	}
	return rate, nil
}

// RX1DataRate applies the spec's uplink-DR-to-downlink-DR mapping
// invariant: for symmetric regions RX1 uses the same table at
// max(0, uplinkDR-offset); for asymmetric regions the explicit
// RX1DROffsetTable is authoritative and must be consulted directly,
// never derived by arithmetic on DR index.
func (d *Descriptor) RX1DataRate(uplinkDR uint8, rx1DROffset uint8) (uint8, error) {
	if d.RX1DROffsetTable != nil {
		offsets, ok := d.RX1DROffsetTable[uplinkDR]
		if !ok {
			return 0, fmt.Errorf("region: %s has no RX1 offset row for uplink DR%d", d.Name, uplinkDR)
		}
		if int(rx1DROffset) >= len(offsets) {
			return 0, fmt.Errorf("region: %s RX1 offset %d out of range for uplink DR%d", d.Name, rx1DROffset, uplinkDR)
		}
		return offsets[rx1DROffset], nil
	}

	dr := int(uplinkDR) - int(rx1DROffset)
	if dr < 0 {
		dr = 0
	}
	return uint8(dr), nil
}

// DutyCycleBandFor returns the band a frequency falls in, if the region
// defines duty-cycle-restricted bands at all (EU868-style). ok is false for
// regions with no banded duty-cycle restrictions or frequencies outside any
// defined band.
func (d *Descriptor) DutyCycleBandFor(freqHz uint32) (DutyCycleBand, bool) {
	for _, b := range d.DutyCycleBands {
		if freqHz >= b.LoFreq && freqHz <= b.HiFreq {
			return b, true
		}
	}
	return DutyCycleBand{}, false
}
