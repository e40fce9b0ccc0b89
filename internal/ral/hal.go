// Package ral implements the radio abstraction layer: the HAL trait and its
// concentratord-backed implementation, channel allocation, and time-domain
// synchronization (xtime, PPS latch, UTC/GPS mapping, drift tracking).
package ral

import (
	"context"

	"github.com/MultiTechSystems/basicstation/internal/ral/gw"
)

// RxJob is one received radio frame, tagged with the xtime/antenna/session
// metadata the rest of the station needs to build an uplink message.
type RxJob struct {
	PhyPayload []byte
	Freq       uint32
	DR         int
	RSSI       int32
	SNR        float32
	XTime      uint64
	RCtx       int64
	Antenna    uint32
}

// TxJob is one downlink frame ready to hand to the concentrator.
type TxJob struct {
	PhyPayload []byte
	Freq       uint32
	Power      int32
	Bandwidth  uint32
	SF         uint32
	CodeRate   gw.CodeRate
	XTime      uint64 // scheduling reference; 0 means "immediately"
	Antenna    uint32
}

// TxResult reports what the concentrator actually did with a TxJob.
type TxResult struct {
	Status gw.TxAckStatus
}

// HAL is the build-time-swappable radio backend. The only implementation
// this module ships is the zmq4-based Concentratord client in
// concentratord.go; the interface exists so a hardware SPI driver or an
// in-memory simulator can be substituted without touching RAL's session or
// time-domain logic, per the compile-time-flags-as-interfaces design note.
type HAL interface {
	// Start connects to the radio backend and begins delivering RxJobs to
	// onReceive until ctx is canceled or Stop is called.
	Start(ctx context.Context, onReceive func(RxJob)) error
	Stop() error

	// Send schedules a downlink transmission and blocks for its TX
	// acknowledgment.
	Send(job TxJob) (TxResult, error)

	// GatewayEUI returns the concentrator's identity, used in the station's
	// version message.
	GatewayEUI() (uint64, error)

	// SetGPSTimeRef reports the LNS's authoritative GPS time correlated with
	// an xtime sample, used to steer the PPS-derived UTC/GPS mapping per
	// spec §4.2's LNS GPS control.
	SetGPSTimeRef(xtime uint64, gpsTimeNanos int64) error

	// SetFatalHandler registers the callback invoked when the time-domain
	// state machine hits an unrecoverable fault (PPS loss past threshold,
	// fatal drift): the engine must exit the process rather than continue
	// scheduling against an unsynchronized clock, per spec §4.2.
	SetFatalHandler(fn func(reason string))

	// ScanChannel performs a CCA/LBT energy scan on freqHz for durationUs
	// microseconds and reports the measured channel energy in dBm, backing
	// the admission CCA check (spec §4.3 check 3).
	ScanChannel(freqHz uint32, durationUs uint32) (rssiDBm int32, err error)

	// ApplyRawConfig pushes an opaque concentrator configuration blob
	// (router_config's sx130x_conf/sx1301_conf/sx1302_conf) straight
	// through to the backend.
	ApplyRawConfig(raw []byte) error
}
