// Package dutycycle tracks per-band airtime budgets for regions whose duty
// cycle is enforced by the station itself (EU868-style banded ETSI limits),
// as distinguished from regions that rely on LBT/CCA instead (spec §3's
// duty-cycle ledger, §4.3's admission check ordering).
package dutycycle

import (
	"sync"
	"time"
)

// window is the rolling accounting period banded duty-cycle limits are
// defined over.
const window = time.Hour

type bandState struct {
	divisor  uint32
	usedMs   uint32
	entries  []entry
}

type entry struct {
	at       time.Time
	usedMs   uint32
}

// Ledger tracks airtime spent per duty-cycle band over a rolling one-hour
// window, owned by a single reactor goroutine per spec §5's concurrency
// model (no internal locking is required by that model, but a mutex is kept
// here since the ledger is also read from test code and admission checks
// that may run on a different goroutine during startup).
type Ledger struct {
	mu    sync.Mutex
	bands map[string]*bandState
	now   func() time.Time
}

// NewLedger creates an empty ledger. bandDivisors maps a band name (as
// produced by region.DutyCycleBandFor) to its 1/divisor airtime fraction.
func NewLedger(bandDivisors map[string]uint32) *Ledger {
	l := &Ledger{
		bands: make(map[string]*bandState, len(bandDivisors)),
		now:   time.Now,
	}
	for name, divisor := range bandDivisors {
		l.bands[name] = &bandState{divisor: divisor}
	}
	return l
}

func (l *Ledger) prune(b *bandState, now time.Time) {
	cutoff := now.Add(-window)
	kept := b.entries[:0]
	var used uint32
	for _, e := range b.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
			used += e.usedMs
		}
	}
	b.entries = kept
	b.usedMs = used
}

// Allows reports whether transmitting an airtimeMs-long frame in the named
// band stays within its 1/divisor budget over the rolling window.
func (l *Ledger) Allows(band string, airtimeMs uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bands[band]
	if !ok {
		// No banded restriction defined for this band: duty cycle is not
		// enforced by the station for it (e.g. the region uses LBT instead).
		return true
	}

	now := l.now()
	l.prune(b, now)

	budgetMs := uint32(window.Milliseconds()) / b.divisor
	return b.usedMs+airtimeMs <= budgetMs
}

// Record accounts airtimeMs of transmission against the named band. Callers
// must have already confirmed Allows returned true; Record does not itself
// enforce the budget.
func (l *Ledger) Record(band string, airtimeMs uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bands[band]
	if !ok {
		return
	}
	now := l.now()
	l.prune(b, now)
	b.entries = append(b.entries, entry{at: now, usedMs: airtimeMs})
	b.usedMs += airtimeMs
}
