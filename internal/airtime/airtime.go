// Package airtime computes LoRa on-air transmission time, grounded on the
// closed-form formula from the LoRaWAN regional parameters specification.
package airtime

import "math"

// CodingRate is the LoRa forward error correction coding rate denominator
// (4/5 through 4/8), encoded as the denominator minus 4.
type CodingRate uint8

const (
	CR4_5 CodingRate = 1
	CR4_6 CodingRate = 2
	CR4_7 CodingRate = 3
	CR4_8 CodingRate = 4
)

// Params describes the modulation of a single LoRa transmission.
type Params struct {
	Bandwidth       uint32 // Hz
	SpreadingFactor uint8  // 7..12
	CodingRate      CodingRate
	PreambleSymbols uint32 // typically 8
	LowDataRateOptimize bool
	ExplicitHeader  bool
	PayloadLen      int // bytes
}

// SymbolDuration returns the duration, in seconds, of one LoRa symbol.
func SymbolDuration(bandwidth uint32, sf uint8) float64 {
	return math.Pow(2, float64(sf)) / float64(bandwidth)
}

// PreambleDuration returns the duration, in seconds, of the preamble.
func PreambleDuration(bandwidth uint32, sf uint8, preambleSymbols uint32) float64 {
	return (float64(preambleSymbols) + 4.25) * SymbolDuration(bandwidth, sf)
}

// PayloadSymbolCount returns the number of symbols the payload occupies,
// following the floor/ceil closed-form given in the LoRaWAN regional
// parameters specification.
func PayloadSymbolCount(p Params) float64 {
	de := 0.0
	if p.LowDataRateOptimize {
		de = 1.0
	}
	ih := 0.0
	if !p.ExplicitHeader {
		ih = 1.0
	}

	numerator := 8*float64(p.PayloadLen) - 4*float64(p.SpreadingFactor) + 28 + 16 - 20*ih
	denominator := 4 * (float64(p.SpreadingFactor) - 2*de)

	n := math.Ceil(numerator/denominator) * float64(p.CodingRate+4)
	if n < 0 {
		n = 0
	}
	return 8 + n
}

// Duration returns the total on-air time, in seconds, for a single LoRa
// transmission with the given parameters.
func Duration(p Params) float64 {
	if p.PreambleSymbols == 0 {
		p.PreambleSymbols = 8
	}
	symDur := SymbolDuration(p.Bandwidth, p.SpreadingFactor)
	preamble := PreambleDuration(p.Bandwidth, p.SpreadingFactor, p.PreambleSymbols)
	payload := PayloadSymbolCount(p) * symDur
	return preamble + payload
}

// DurationMillis is Duration expressed in whole milliseconds, rounded up,
// the unit the duty-cycle ledger and admission checks work in.
func DurationMillis(p Params) uint32 {
	return uint32(math.Ceil(Duration(p) * 1000))
}
