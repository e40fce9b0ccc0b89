package txpipeline

import (
	"fmt"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/airtime"
	"github.com/MultiTechSystems/basicstation/internal/dutycycle"
	"github.com/MultiTechSystems/basicstation/internal/region"
)

// lbtBandwidthCutoffHz is the bandwidth above which CCA/LBT no longer
// applies cleanly to a single sub-channel scan, per spec §4.3's admission
// check 3 (LBT derived from the uplink channel plan).
const lbtBandwidthCutoffHz = 250000

// Admitter runs the admission checks in the fixed order spec §4.3
// mandates: half-duplex, duty-cycle, CCA/LBT, dwell time, power clamp.
// Order matters: a later check must never run (and therefore never
// spuriously reject) a job that an earlier check already rejects.
type Admitter struct {
	Region     *region.Descriptor
	Ledger     *dutycycle.Ledger
	CCAProbe   func(freqHz uint32, bandwidthHz uint32, at time.Time) (clear bool)
	HalfDuplex func() bool // true while the radio is mid-receive or mid-transmit

	// LBTEnabled mirrors router_config's lbt_enabled: CCA only runs when
	// both the region mandates it and the LNS has turned it on.
	LBTEnabled bool

	// NoCCA/NoDC/NoDwell mirror router_config's nocca/nodc/nodwell, honored
	// only when the running build variant allows the LNS to override
	// regulatory admission checks (spec §6, config.EnforcesAdmissionOverrides).
	NoCCA   bool
	NoDC    bool
	NoDwell bool

	// MaxEIRPdBm, when nonzero, further clamps the region's MaxEIRPdBm per
	// router_config's max_eirp field.
	MaxEIRPdBm int32
}

// Decision is the admission verdict for one job.
type Decision struct {
	Admit       bool
	Reason      string
	ClampedEIRP int32 // valid only when Admit is true
}

// Admit runs the ordered admission checks against job. The dwell-time and
// duty-cycle checks use an airtime computed from the job's own SF,
// bandwidth and payload length; dr is not consulted.
func (a *Admitter) Admit(job *Job, dr region.DataRate, now time.Time) Decision {
	if a.HalfDuplex != nil && a.HalfDuplex() {
		return Decision{Admit: false, Reason: "half-duplex: radio busy"}
	}

	airtimeMs := airtime.DurationMillis(airtime.Params{
		Bandwidth:       job.Bandwidth,
		SpreadingFactor: uint8(job.SF),
		CodingRate:      airtime.CR4_5,
		ExplicitHeader:  true,
		PayloadLen:      len(job.PhyPayload),
	})

	if !a.NoDC && a.Region != nil && len(a.Region.DutyCycleBands) > 0 {
		band, ok := a.Region.DutyCycleBandFor(job.Freq)
		if ok && a.Ledger != nil && !a.Ledger.Allows(band.Name, airtimeMs) {
			return Decision{Admit: false, Reason: fmt.Sprintf("duty-cycle: band %s budget exhausted", band.Name)}
		}
	}

	if !a.NoCCA && a.LBTEnabled && a.Region != nil && a.Region.CCAEnabled && job.Bandwidth <= lbtBandwidthCutoffHz {
		if a.CCAProbe != nil && !a.CCAProbe(job.Freq, job.Bandwidth, now) {
			return Decision{Admit: false, Reason: "cca: channel occupied"}
		}
	}

	if !a.NoDwell && a.Region != nil && a.Region.DwellTimeLimit {
		const dwellLimitMs = 400
		if airtimeMs > dwellLimitMs {
			return Decision{Admit: false, Reason: fmt.Sprintf("dwell-time: %dms exceeds 400ms limit", airtimeMs)}
		}
	}

	eirp := job.Power
	regionMax := int32(0)
	if a.Region != nil {
		regionMax = a.Region.MaxEIRPdBm
	}
	if a.MaxEIRPdBm != 0 && (regionMax == 0 || a.MaxEIRPdBm < regionMax) {
		regionMax = a.MaxEIRPdBm
	}
	if regionMax != 0 && eirp > regionMax {
		eirp = regionMax
	}

	if a.Region != nil && len(a.Region.DutyCycleBands) > 0 {
		if band, ok := a.Region.DutyCycleBandFor(job.Freq); ok && band.MaxEIRPdBm != 0 && eirp > band.MaxEIRPdBm {
			eirp = band.MaxEIRPdBm
		}
	}

	if a.Ledger != nil && a.Region != nil {
		if band, ok := a.Region.DutyCycleBandFor(job.Freq); ok {
			a.Ledger.Record(band.Name, airtimeMs)
		}
	}

	return Decision{Admit: true, ClampedEIRP: eirp}
}
