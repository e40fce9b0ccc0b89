// Package engine wires the station's subsystems together: configuration,
// the radio abstraction layer, the session/protocol engine, the TX
// pipeline, and the LNS transport. It owns the single-threaded reactor
// loop described in spec §5: RAL delivers uplinks and TX acks via
// callback, the scheduler is driven by a periodic Tick, and the LNS
// transport delivers downlinks and control messages via callback — all
// from goroutines that funnel back into one dispatch path guarded by a
// single mutex, never a worker pool.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/codec"
	"github.com/MultiTechSystems/basicstation/internal/config"
	"github.com/MultiTechSystems/basicstation/internal/dutycycle"
	"github.com/MultiTechSystems/basicstation/internal/lnstransport"
	"github.com/MultiTechSystems/basicstation/internal/ral"
	"github.com/MultiTechSystems/basicstation/internal/region"
	"github.com/MultiTechSystems/basicstation/internal/s2e"
	"github.com/MultiTechSystems/basicstation/internal/txpipeline"
	log "github.com/sirupsen/logrus"
)

const (
	schedulerTickInterval = 10 * time.Millisecond
	timeSyncInterval      = 30 * time.Second
)

// Station identification reported in the version message.
const (
	stationName    = "station"
	firmwareVer    = "1.0.0"
	protocolVer    = 2
)

// Engine is the top-level process. cmd/station builds a single Engine for
// one concentrator; slave-N.conf overlays are loaded and counted but do not
// start further Engines.
type Engine struct {
	config config.Station
	region *region.Descriptor

	hal       ral.HAL
	session   *s2e.Session
	scheduler *txpipeline.Scheduler
	transport *lnstransport.Client
	admitter  *txpipeline.Admitter

	stopChan  chan struct{}
	fatalChan chan string
	wg        sync.WaitGroup
	mu        sync.Mutex

	halfDuplexUntil time.Time
}

// New builds an Engine from a loaded station configuration. It does not
// connect to anything; call Start to bring the engine up.
func New(cfg config.Station) (*Engine, error) {
	desc, err := region.Get(region.Name(cfg.Gateway.Region))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	halCfg := ral.DefaultConcentratordConfig()
	if cfg.RAL.EventURL != "" {
		halCfg.EventURL = cfg.RAL.EventURL
	}
	if cfg.RAL.CommandURL != "" {
		halCfg.CommandURL = cfg.RAL.CommandURL
	}
	hal := ral.NewConcentratordDriver(halCfg)

	session := s2e.NewSession(desc)

	ledger := dutycycle.NewLedger(bandDivisors(desc))

	e := &Engine{
		config:    cfg,
		region:    desc,
		hal:       hal,
		session:   session,
		stopChan:  make(chan struct{}),
		fatalChan: make(chan string, 1),
	}

	e.admitter = &txpipeline.Admitter{
		Region:     desc,
		Ledger:     ledger,
		HalfDuplex: e.isHalfDuplexBusy,
		CCAProbe:   e.ccaProbe,
	}
	e.scheduler = &txpipeline.Scheduler{
		Queue:       session.Queue,
		Admitter:    e.admitter,
		Send:        e.send,
		DataRateFor: e.dataRateForJob,
		OnResult:    e.onSchedulerResult,
	}

	tcCfg := lnstransport.DefaultConfig()
	tcCfg.URL = cfg.LNS.URI
	tcCfg.GatewayEUI = cfg.Gateway.EUI
	if cfg.LNS.ReconnectSecs > 0 {
		tcCfg.ReconnectDelay = cfg.ReconnectInterval()
	}
	if cfg.LNS.PingSecs > 0 {
		tcCfg.PingInterval = cfg.PingInterval()
	}
	e.transport = lnstransport.New(tcCfg)
	e.transport.OnRouterConfig(e.handleRouterConfig)
	e.transport.OnDownlink(e.handleDownlink)
	e.transport.OnTimeSync(e.handleTimeSync)

	session.OnUplinkJSON = e.forwardUplink
	session.OnRawConfig = e.applyRawConfig

	e.hal.SetFatalHandler(e.onFatal)

	return e, nil
}

// Fatal reports the reason string when the time-domain state machine hits
// an unrecoverable fault (PPS loss past threshold, fatal drift). cmd/station
// selects on it alongside the process signal channel and exits nonzero,
// since scheduling downlinks against an unsynchronized clock would violate
// every regional duty-cycle and dwell-time guarantee.
func (e *Engine) Fatal() <-chan string {
	return e.fatalChan
}

func (e *Engine) onFatal(reason string) {
	select {
	case e.fatalChan <- reason:
	default:
	}
}

// ccaProbe backs the admitter's LBT check with the RAL's scan primitive,
// reporting the channel clear only when the measured energy is below the
// session's configured rssi_target for that channel (spec §4.3 check 3).
func (e *Engine) ccaProbe(freqHz uint32, bandwidthHz uint32, _ time.Time) bool {
	rssiTarget := -80
	scanTimeUs := 5000
	if lbt, ok := e.session.LBTChannelFor(freqHz); ok {
		rssiTarget = lbt.RSSITarget
		scanTimeUs = lbt.ScanTimeUs
	}

	rssi, err := e.hal.ScanChannel(freqHz, uint32(scanTimeUs))
	if err != nil {
		log.WithFields(log.Fields{"subsys": "RAL", "freq": freqHz}).WithError(err).Warn("CCA scan failed, treating channel as busy")
		return false
	}
	return int(rssi) < rssiTarget
}

// applyRawConfig is the session's OnRawConfig callback, pushing
// router_config's opaque sx130x_conf/sx1301_conf/sx1302_conf blob straight
// to the RAL backend.
func (e *Engine) applyRawConfig(raw []byte) {
	if err := e.hal.ApplyRawConfig(raw); err != nil {
		log.WithFields(log.Fields{"subsys": "RAL"}).WithError(err).Warn("failed to apply concentrator config from router_config")
	}
}

func bandDivisors(d *region.Descriptor) map[string]uint32 {
	m := make(map[string]uint32, len(d.DutyCycleBands))
	for _, b := range d.DutyCycleBands {
		m[b.Name] = b.Divisor
	}
	return m
}

// Start connects the RAL backend and the LNS transport and begins the
// scheduler tick loop. It returns once both connections have been
// initiated; failures after that point are handled by each subsystem's own
// reconnect loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.hal.Start(ctx, e.handleRxJob); err != nil {
		return fmt.Errorf("engine: start RAL: %w", err)
	}

	if err := e.transport.Start(ctx); err != nil {
		return fmt.Errorf("engine: start LNS transport: %w", err)
	}

	gatewayEUI, err := e.hal.GatewayEUI()
	if err != nil {
		log.WithFields(log.Fields{"subsys": "SYS"}).WithError(err).Warn("could not read gateway EUI from RAL at startup")
	} else {
		e.sendVersion(gatewayEUI)
	}

	e.wg.Add(1)
	go e.schedulerLoop(ctx)

	e.wg.Add(1)
	go e.timeSyncLoop(ctx)

	log.WithFields(log.Fields{"subsys": "SYS"}).Info("engine started")
	return nil
}

// Stop shuts down the scheduler loop, the LNS transport, and the RAL
// backend, in that order, and blocks until all goroutines exit.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	if err := e.transport.Stop(); err != nil {
		log.WithFields(log.Fields{"subsys": "SYS"}).WithError(err).Warn("error stopping LNS transport")
	}
	if err := e.hal.Stop(); err != nil {
		log.WithFields(log.Fields{"subsys": "SYS"}).WithError(err).Warn("error stopping RAL")
	}

	log.WithFields(log.Fields{"subsys": "SYS"}).Info("engine stopped")
	return nil
}

func (e *Engine) sendVersion(gatewayEUI uint64) {
	v := &codec.Version{
		MsgType:  codec.MsgVersion,
		Station:  stationName,
		Firmware: firmwareVer,
		Package:  fmt.Sprintf("%016x", gatewayEUI),
		Model:    string(e.region.Name),
		Protocol: protocolVer,
		Features: "rmtsh bin",
	}
	if err := e.transport.SendVersion(v); err != nil {
		log.WithFields(log.Fields{"subsys": "TC"}).WithError(err).Warn("failed to send version")
	}
}

// handleRxJob is the RAL callback for every received radio frame.
func (e *Engine) handleRxJob(job ral.RxJob) {
	e.session.HandleUplink(job)
}

// forwardUplink is the session-engine callback that ships an encoded
// uplink message to the LNS.
func (e *Engine) forwardUplink(mt codec.MsgType, data []byte) {
	if err := e.transport.SendUplink(mt, data); err != nil {
		log.WithFields(log.Fields{"subsys": "S2E"}).WithError(err).Warn("failed to forward uplink to LNS")
	}
}

// handleRouterConfig narrows the session's filters and channel plan once
// the LNS replies to the station's version message. A failure here means
// router_config carried a configuration this station cannot materialize
// (no DR table, an unallocatable channel plan); spec §5 step 3 requires the
// session be torn down rather than run with whatever partial state existed
// before the attempt, so the transport is disconnected and reconnects fresh.
func (e *Engine) handleRouterConfig(rc *codec.RouterConfig) {
	if err := e.session.ApplyRouterConfig(rc); err != nil {
		log.WithFields(log.Fields{"subsys": "S2E", "region": rc.Region}).WithError(err).Error("rejecting router_config, terminating session")
		e.transport.Disconnect()
		return
	}

	e.mu.Lock()
	e.admitter.LBTEnabled = e.session.LBTEnabled
	e.admitter.MaxEIRPdBm = e.session.MaxEIRPdBm
	if e.config.EnforcesAdmissionOverrides() {
		e.admitter.NoCCA = rc.NoCCA
		e.admitter.NoDC = rc.NoDC
		e.admitter.NoDwell = rc.NoDwell
	}
	e.mu.Unlock()

	e.transport.SetBinaryCodec(rc.ProtocolFormat != "" && rc.ProtocolFormat != "json")

	log.WithFields(log.Fields{"subsys": "S2E", "region": rc.Region}).Info("applied router_config from LNS")
}

// handleDownlink converts an LNS dnmsg into a scheduled TX job and enqueues
// it. A dnsched acknowledgment is sent back immediately, decoupled from the
// eventual dntxed that confirms actual transmission.
func (e *Engine) handleDownlink(dl *codec.Downlink) {
	job, err := e.session.HandleDownlink(dl)
	if err != nil {
		log.WithFields(log.Fields{"subsys": "S2E"}).WithError(err).Warn("dropping unschedulable downlink")
		return
	}

	e.session.Queue.Push(job)

	sched := &codec.DownlinkScheduled{MsgType: codec.MsgDownlinkSched, DIID: dl.DIID, DevEUI: dl.DevEUI}
	if data, err := codec.Encode(sched); err == nil {
		_ = e.transport.SendUplink(codec.MsgDownlinkSched, data)
	}
}

// handleTimeSync stores the LNS's GPS time reference, correlated to the
// station's xtime, steering the RAL's UTC/GPS mapping per spec §4.2.
func (e *Engine) handleTimeSync(ts *codec.TimeSync) {
	if ts.GPSTime == 0 {
		return
	}
	if err := e.hal.SetGPSTimeRef(uint64(ts.XTime), ts.GPSTime*int64(time.Millisecond)); err != nil {
		log.WithFields(log.Fields{"subsys": "SYN"}).WithError(err).Warn("failed to apply LNS time sync")
	}
}

// schedulerLoop drives the TX pipeline's admission and send logic on a
// fixed tick, the reactor's only periodic, non-event-driven concern.
func (e *Engine) schedulerLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(schedulerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.scheduler.Tick(now)
		}
	}
}

// timeSyncLoop periodically reports the station's xtime to the LNS so it
// can maintain its own correlation to the station's clock, independent of
// the LNS-initiated timesync replies handleTimeSync processes.
func (e *Engine) timeSyncLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(timeSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.broadcastTimeSync()
		}
	}
}

func (e *Engine) broadcastTimeSync() {
	msg := &codec.TimeSync{
		MsgType: codec.MsgTimeSync,
		TxTime:  float64(time.Now().UnixNano()) / 1e9,
	}
	if err := e.transport.SendTimeSync(msg); err != nil {
		log.WithFields(log.Fields{"subsys": "SYN"}).WithError(err).Warn("failed to send timesync")
	}
}

// send is the scheduler's SendFunc, handing an admitted job to the radio
// and marking the half-duplex window busy for the frame's approximate
// airtime.
func (e *Engine) send(job ral.TxJob) (ral.TxResult, error) {
	e.mu.Lock()
	e.halfDuplexUntil = time.Now().Add(250 * time.Millisecond)
	e.mu.Unlock()

	return e.hal.Send(job)
}

func (e *Engine) isHalfDuplexBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Now().Before(e.halfDuplexUntil)
}

func (e *Engine) dataRateForJob(job *txpipeline.Job) region.DataRate {
	dr, err := e.region.DataRateFor(0, false)
	if err != nil {
		return region.DataRate{Bandwidth: job.Bandwidth, SpreadingFactor: uint8(job.SF)}
	}
	dr.Bandwidth = job.Bandwidth
	dr.SpreadingFactor = uint8(job.SF)
	return dr
}

func (e *Engine) onSchedulerResult(job *txpipeline.Job, sent bool, reason string) {
	l := log.WithFields(log.Fields{"subsys": "S2E", "diid": job.DIID, "devEui": job.DevEUI})
	if !sent {
		l.WithFields(log.Fields{"reason": reason}).Debug("downlink not sent this tick")
		return
	}

	l.Info("downlink transmitted")
	msg := &codec.DownlinkSent{
		MsgType: codec.MsgDownlinkSent,
		DIID:    job.DIID,
		DevEUI:  job.DevEUI,
		TxTime:  float64(time.Now().UnixNano()) / 1e9,
	}
	if err := e.transport.SendDownlinkSent(msg); err != nil {
		l.WithError(err).Warn("failed to report dntxed to LNS")
	}
}
