package ral

import (
	"fmt"
	"sync"
	"time"
)

// Time-domain recovery constants, per spec §4.2.
const (
	ppsLossThreshold = 90 * time.Second
	ppsRetryInterval = 5 * time.Second
	ppsMaxFailures   = 6

	quickRetries      = 6
	driftWarnFactor   = 2
	driftFatalFactor  = 5
)

// TimeSync maintains the mapping between the radio's free-running 32-bit
// counter (extended to a 64-bit xtime tagged with a session id), PPS
// latches, and UTC/GPS time, per spec §3's Time-domain state and §4.2's PPS
// loop, loss/drift recovery, and session-restart detection.
type TimeSync struct {
	mu sync.Mutex

	sessionID      uint16
	lastPPS        time.Time
	lastPPSCounter uint32 // 32-bit counter value latched at the previous PPS pulse
	lastLatched    uint32 // 32-bit counter value at last PPS latch
	xtimeHigh      uint32 // rollover-extended high word

	gpsOffset time.Duration // UTC = radio-counter-derived time + gpsOffset
	driftEMA  float64       // exponential moving average of per-PPS drift, ms

	consecutivePPSFailures int
	consecutiveBigDrift    int
}

// NewTimeSync creates a time-domain tracker for a fresh session.
func NewTimeSync(sessionID uint16) *TimeSync {
	return &TimeSync{sessionID: sessionID}
}

// SessionID returns the tag xtime values for this run carry in their top
// 16 bits, used to detect a concentrator restart (spec §4.2's session
// restart detection: an xtime with an unrecognized session tag means the
// counter reset and RX/TX scheduling state must be discarded).
func (t *TimeSync) SessionID() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// ExtendXTime combines a 32-bit radio counter sample with the tracked
// session id and rollover-extension high word to produce the 64-bit xtime
// value the wire protocol carries.
func (t *TimeSync) ExtendXTime(counter32 uint32) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	high := uint64(t.xtimeHigh)
	if counter32 < t.lastLatched {
		// Counter rolled over since the last latch.
		high++
		t.xtimeHigh = uint32(high)
	}
	t.lastLatched = counter32

	return uint64(t.sessionID)<<48 | high<<32 | uint64(counter32)
}

// SessionFromXTime extracts the session tag from a wire xtime value.
func SessionFromXTime(xtime uint64) uint16 {
	return uint16(xtime >> 48)
}

// IsStaleSession reports whether xtime carries a session tag different from
// the currently tracked session, meaning the concentrator restarted and any
// outstanding RX/TX scheduling referencing the old session must be dropped.
func (t *TimeSync) IsStaleSession(xtime uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SessionFromXTime(xtime) != t.sessionID
}

// OnPPS records a PPS pulse and its correlated counter latch, updating the
// drift EMA against the previous pulse's expected one-second interval.
func (t *TimeSync) OnPPS(now time.Time, counterAtPulse uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastPPS.IsZero() {
		elapsedUs := counterAtPulse - t.lastPPSCounter // wraps correctly across a 32-bit rollover
		driftMs := (float64(elapsedUs) - 1e6) / 1000
		if t.driftEMA == 0 {
			t.driftEMA = driftMs
		} else {
			t.driftEMA = 0.9*t.driftEMA + 0.1*driftMs
		}
	}

	t.lastPPS = now
	t.lastPPSCounter = counterAtPulse
	t.consecutivePPSFailures = 0
}

// PPSLost is called when an expected PPS pulse does not arrive. It reports
// whether the station should give up and exit per spec §4.2's recovery
// state machine: retry every 5s, and if no PPS returns within the 90s loss
// threshold after ppsMaxFailures retries, the station must exit rather than
// silently run on an unsynchronized clock.
func (t *TimeSync) PPSLost(now time.Time) (shouldExit bool, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastPPS.IsZero() || now.Sub(t.lastPPS) < ppsLossThreshold {
		return false, ppsRetryInterval
	}

	t.consecutivePPSFailures++
	if t.consecutivePPSFailures >= ppsMaxFailures {
		return true, 0
	}
	return false, ppsRetryInterval
}

// DriftSeverity classifies the current drift EMA against the quick-retry
// thresholds spec §4.2 defines: a warn threshold at 2x the nominal
// per-pulse tolerance and a fatal threshold at 5x. Warn is reported as soon
// as the EMA reaches 2x; fatal only after quickRetries consecutive checks at
// or above 5x (the earlier of those checks report warn), to avoid exiting on
// a single noisy measurement.
type DriftSeverity int

const (
	DriftNominal DriftSeverity = iota
	DriftWarn
	DriftFatal
)

// nominalToleranceMs is the acceptable per-PPS drift before any escalation.
const nominalToleranceMs = 1.0

// CheckDrift evaluates the tracked drift EMA and returns the current
// severity: warn as soon as the EMA is at or above the warn threshold, and
// fatal only after quickRetries consecutive checks at or above the fatal
// threshold.
func (t *TimeSync) CheckDrift() DriftSeverity {
	t.mu.Lock()
	defer t.mu.Unlock()

	abs := t.driftEMA
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= nominalToleranceMs*driftFatalFactor:
		t.consecutiveBigDrift++
		if t.consecutiveBigDrift >= quickRetries {
			return DriftFatal
		}
		return DriftWarn
	case abs >= nominalToleranceMs*driftWarnFactor:
		t.consecutiveBigDrift = 0
		return DriftWarn
	default:
		t.consecutiveBigDrift = 0
		return DriftNominal
	}
}

// SetGPSOffset applies the LNS-provided GPS time correlated with an xtime
// sample, per spec §4.2's LNS GPS control.
func (t *TimeSync) SetGPSOffset(xtimeSample uint64, gpsTimeNanos int64) error {
	if t.IsStaleSession(xtimeSample) {
		return fmt.Errorf("ral: gps time ref references a stale session")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	counter := uint32(xtimeSample)
	radioElapsed := time.Duration(counter) * time.Microsecond
	t.gpsOffset = time.Unix(0, gpsTimeNanos).Sub(time.Unix(0, 0).Add(radioElapsed))
	return nil
}

// UTC converts an xtime sample to an estimated UTC time using the tracked
// GPS offset.
func (t *TimeSync) UTC(xtimeSample uint64) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	counter := uint32(xtimeSample)
	radioElapsed := time.Duration(counter) * time.Microsecond
	return time.Unix(0, 0).Add(radioElapsed).Add(t.gpsOffset)
}
