package ral

import (
	"fmt"

	"github.com/MultiTechSystems/basicstation/internal/region"
)

// IFChain assigns one IF chain on a concentrator radio to a fixed-frequency
// channel, the shape sx1301_conf's chan_multiSF_N entries describe.
type IFChain struct {
	Enable bool
	Radio  uint
	IF     int // offset from the radio's center frequency, Hz
}

// RadioFrontEnd is one physical radio chip's center frequency.
type RadioFrontEnd struct {
	Enable bool
	Freq   uint32
}

// ChannelAllocation is the concentrator configuration derived from a
// region's channel plan: which IF chains are assigned to which radios at
// what offsets, per spec §4.2's channel allocation responsibility. FastLoRa
// and FSK, when present, describe the single wideband/FSK slot a router_config
// DR table may require alongside the multi-SF IF chains (US915/AU915's DR4
// "fast-LoRa" 500kHz channel, EU868/IN865's FSK channel).
type ChannelAllocation struct {
	Radios   []RadioFrontEnd
	IFChains []IFChain

	FastLoRa   *IFChain
	FastLoRaBW uint32
	FSK        *IFChain
}

// maxIFChainsPerRadio bounds allocation to 8 multi-SF IF chains per radio
// front-end, so at most 16 across the two radios Allocate uses.
const maxIFChainsPerRadio = 8

// Is125kHzChannel reports whether any DR a channel's [MinDR,MaxDR] range
// permits uses a 125kHz LoRa bandwidth, the predicate spec §4.1's critical
// invariant and §8 invariant 5 require be evaluated against the (possibly
// asymmetric) uplink DR table, never inferred from the channel's nominal
// class. A nil drTable means "no DR awareness available"; every channel is
// then treated as 125kHz-capable, matching the plain multi-SF allocator's
// historical behavior.
func Is125kHzChannel(ch region.Channel, drTable map[uint8]region.DataRate) bool {
	if drTable == nil {
		return true
	}
	for dr := ch.MinDR; dr <= ch.MaxDR; dr++ {
		if rate, ok := drTable[dr]; ok && rate.Modulation == region.ModLoRa && rate.Bandwidth == 125000 {
			return true
		}
		if dr == ch.MaxDR {
			break // avoid uint8 wraparound when MaxDR == 255
		}
	}
	return false
}

// classifyChannel splits plan.Uplink into the channels a multi-SF IF chain
// serves, the single fast-LoRa (wideband, single-SF) channel if one exists,
// and the single FSK channel if one exists, per the DR-entry convention
// [SpreadingFactor, BandwidthHz-ish, _] with SF==0 meaning FSK.
func classifyChannel(ch region.Channel, drTable map[uint8]region.DataRate) (multiSF, fastLoRa, fsk bool, bandwidth uint32) {
	if drTable == nil {
		return true, false, false, 0
	}
	if Is125kHzChannel(ch, drTable) {
		return true, false, false, 0
	}
	for dr := ch.MinDR; dr <= ch.MaxDR; dr++ {
		rate, ok := drTable[dr]
		if !ok {
			if dr == ch.MaxDR {
				break
			}
			continue
		}
		if rate.Modulation == region.ModFSK {
			return false, false, true, rate.BitRate
		}
		if rate.Bandwidth != 0 {
			return false, true, false, rate.Bandwidth
		}
		if dr == ch.MaxDR {
			break
		}
	}
	return false, false, false, 0
}

// Allocate assigns a channel plan's uplink channels to IF chains across up
// to two radio front-ends, centering each radio on the mean frequency of
// the channels it carries. When drTable is non-nil, channels that resolve
// to a fast-LoRa or FSK data rate (rather than any 125kHz multi-SF DR) are
// pulled out of the IF-chain allocation and reported as the dedicated
// FastLoRa/FSK slot instead, matching how a real SX130x concentrator
// configures chan_Lora_std and chan_FSK distinctly from chan_multiSF_N.
// It returns an error if the plan needs more IF chains than the concentrator
// has.
func Allocate(plan region.ChannelPlan, drTable map[uint8]region.DataRate) (ChannelAllocation, error) {
	if len(plan.Uplink) == 0 {
		return ChannelAllocation{}, fmt.Errorf("ral: channel plan has no uplink channels")
	}

	var multiSF []region.Channel
	var fastLoRaChannel *region.Channel
	var fastLoRaBW uint32
	var fskChannel *region.Channel

	for i := range plan.Uplink {
		ch := plan.Uplink[i]
		isMultiSF, isFastLoRa, isFSK, bw := classifyChannel(ch, drTable)
		switch {
		case isFastLoRa:
			c := ch
			fastLoRaChannel = &c
			fastLoRaBW = bw
		case isFSK:
			c := ch
			fskChannel = &c
		case isMultiSF:
			multiSF = append(multiSF, ch)
		default:
			// Channel resolves to no usable DR at all; drop it rather than
			// reserve an IF chain nothing can ever use.
		}
	}

	if len(multiSF) > maxIFChainsPerRadio*2 {
		return ChannelAllocation{}, fmt.Errorf("ral: channel plan needs %d IF chains, concentrator has %d", len(multiSF), maxIFChainsPerRadio*2)
	}

	alloc := ChannelAllocation{}

	if len(multiSF) > 0 {
		mid := (len(multiSF) + 1) / 2
		if mid > maxIFChainsPerRadio {
			mid = maxIFChainsPerRadio
		}
		group0 := multiSF[:mid]
		group1 := multiSF[mid:]

		radio0Center := centerFreq(group0)
		alloc.Radios = append(alloc.Radios, RadioFrontEnd{Enable: true, Freq: radio0Center})
		for _, ch := range group0 {
			alloc.IFChains = append(alloc.IFChains, IFChain{
				Enable: true,
				Radio:  0,
				IF:     int(ch.Frequency) - int(radio0Center),
			})
		}

		if len(group1) > 0 {
			radio1Center := centerFreq(group1)
			alloc.Radios = append(alloc.Radios, RadioFrontEnd{Enable: true, Freq: radio1Center})
			for _, ch := range group1 {
				alloc.IFChains = append(alloc.IFChains, IFChain{
					Enable: true,
					Radio:  1,
					IF:     int(ch.Frequency) - int(radio1Center),
				})
			}
		}
	}

	if fastLoRaChannel != nil {
		radio := ensureRadioFor(&alloc, fastLoRaChannel.Frequency)
		chain := IFChain{Enable: true, Radio: radio, IF: int(fastLoRaChannel.Frequency) - int(alloc.Radios[radio].Freq)}
		alloc.FastLoRa = &chain
		alloc.FastLoRaBW = fastLoRaBW
	}

	if fskChannel != nil {
		radio := ensureRadioFor(&alloc, fskChannel.Frequency)
		chain := IFChain{Enable: true, Radio: radio, IF: int(fskChannel.Frequency) - int(alloc.Radios[radio].Freq)}
		alloc.FSK = &chain
	}

	if len(alloc.Radios) == 0 {
		return ChannelAllocation{}, fmt.Errorf("ral: channel plan resolved to no usable radio front-end")
	}

	return alloc, nil
}

// ensureRadioFor returns radio 0, first creating it centered on freq if the
// allocation has no radio yet. It does not check that freq lies within the
// existing radio's range and never creates a second radio.
func ensureRadioFor(alloc *ChannelAllocation, freq uint32) uint {
	if len(alloc.Radios) == 0 {
		alloc.Radios = append(alloc.Radios, RadioFrontEnd{Enable: true, Freq: freq})
		return 0
	}
	return 0
}

func centerFreq(channels []region.Channel) uint32 {
	if len(channels) == 0 {
		return 0
	}
	var sum uint64
	for _, ch := range channels {
		sum += uint64(ch.Frequency)
	}
	return uint32(sum / uint64(len(channels)))
}
