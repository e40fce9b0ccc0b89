package ral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/ral/gw"
	"github.com/go-zeromq/zmq4"
	log "github.com/sirupsen/logrus"
)

// ppsPollInterval is how often the driver latches the PPS-correlated
// counter from the concentrator backend, per spec §4.2's PPS loop.
const ppsPollInterval = 128 * time.Millisecond

// ConcentratordConfig holds the connection parameters for a concentrator
// abstraction process speaking the ChirpStack-Concentratord-shaped ZMQ API.
type ConcentratordConfig struct {
	EventURL   string // SUB socket for receiving uplink/stats events
	CommandURL string // REQ socket for sending downlink/config commands
}

// DefaultConcentratordConfig returns the conventional local IPC endpoints.
func DefaultConcentratordConfig() ConcentratordConfig {
	return ConcentratordConfig{
		EventURL:   "ipc:///tmp/concentratord_event",
		CommandURL: "ipc:///tmp/concentratord_command",
	}
}

// ConcentratordDriver is the HAL implementation backed by a ZeroMQ
// concentrator abstraction process. This is the only HAL backend this
// module ships; a hardware SPI driver or simulator would implement the same
// HAL interface without touching any session or scheduling logic.
type ConcentratordDriver struct {
	config ConcentratordConfig

	eventSock zmq4.Socket
	cmdSock   zmq4.Socket
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu         sync.Mutex
	running    bool
	downlinkID uint32
	gatewayEUI uint64

	// dedup suppresses a duplicate RxJob delivered by a second antenna
	// receiving the same frame within the same xtime session, per the
	// mirror-frame handling spec §3 names as an RX job invariant.
	lastXTime uint64

	// timeSync is owned here, not by the engine: the PPS poll loop and the
	// concentrator command socket it drives both live in this package, per
	// spec §4.2 making RAL exclusively responsible for time-domain state.
	timeSync *TimeSync

	onFatal   func(reason string)
	fatalOnce sync.Once
}

var _ HAL = (*ConcentratordDriver)(nil)

// NewConcentratordDriver creates a driver that has not yet connected.
func NewConcentratordDriver(config ConcentratordConfig) *ConcentratordDriver {
	return &ConcentratordDriver{config: config, timeSync: NewTimeSync(0)}
}

// SetFatalHandler registers the callback invoked when the PPS loss or drift
// recovery state machine gives up, per spec §4.2.
func (d *ConcentratordDriver) SetFatalHandler(fn func(reason string)) {
	d.mu.Lock()
	d.onFatal = fn
	d.mu.Unlock()
}

func (d *ConcentratordDriver) fail(reason string) {
	log.WithFields(log.Fields{"subsys": "SYN"}).WithField("reason", reason).Error("unrecoverable time-domain fault")
	d.fatalOnce.Do(func() {
		d.mu.Lock()
		onFatal := d.onFatal
		d.mu.Unlock()
		if onFatal != nil {
			onFatal(reason)
		}
	})
}

// Start connects to the concentrator process and begins the event loop.
func (d *ConcentratordDriver) Start(ctx context.Context, onReceive func(RxJob)) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("ral: concentratord driver already running")
	}
	d.running = true
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	d.ctx = runCtx
	d.cancel = cancel

	d.eventSock = zmq4.NewSub(runCtx)
	if err := d.eventSock.Dial(d.config.EventURL); err != nil {
		return fmt.Errorf("ral: connect event socket: %w", err)
	}
	if err := d.eventSock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("ral: subscribe event socket: %w", err)
	}

	d.cmdSock = zmq4.NewReq(runCtx)
	if err := d.cmdSock.Dial(d.config.CommandURL); err != nil {
		d.eventSock.Close()
		return fmt.Errorf("ral: connect command socket: %w", err)
	}

	if _, err := d.GatewayEUI(); err != nil {
		log.WithFields(log.Fields{"subsys": "RAL"}).WithError(err).Warn("failed to fetch gateway EUI at startup")
	}

	d.wg.Add(1)
	go d.eventLoop(onReceive)

	d.wg.Add(1)
	go d.pollPPSLoop()

	log.WithFields(log.Fields{
		"subsys": "RAL", "event_url": d.config.EventURL, "command_url": d.config.CommandURL,
	}).Info("concentratord driver started")

	return nil
}

// Stop disconnects from the concentrator process.
func (d *ConcentratordDriver) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	if d.eventSock != nil {
		d.eventSock.Close()
	}
	if d.cmdSock != nil {
		d.cmdSock.Close()
	}

	log.WithFields(log.Fields{"subsys": "RAL"}).Info("concentratord driver stopped")
	return nil
}

// GatewayEUI retrieves the concentrator's identity.
func (d *ConcentratordDriver) GatewayEUI() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := zmq4.NewMsgFrom([]byte("gateway_id"), []byte{})
	if err := d.cmdSock.Send(msg); err != nil {
		return 0, fmt.Errorf("ral: send gateway_id command: %w", err)
	}

	resp, err := d.cmdSock.Recv()
	if err != nil {
		return 0, fmt.Errorf("ral: recv gateway_id response: %w", err)
	}

	if len(resp.Frames) == 0 || len(resp.Frames[0]) < 8 {
		return 0, fmt.Errorf("ral: gateway_id response too short")
	}

	gwResp, err := gw.UnmarshalGetGatewayIdResponse(resp.Frames[0])
	if err != nil {
		return 0, err
	}

	var eui uint64
	if _, err := fmt.Sscanf(gwResp.GatewayId, "%016x", &eui); err != nil {
		return 0, fmt.Errorf("ral: parse gateway EUI: %w", err)
	}
	d.gatewayEUI = eui
	return eui, nil
}

// SetGPSTimeRef forwards the LNS's GPS time correlation to the concentrator
// so its PPS-derived clock can be steered, per spec §4.2's LNS GPS control.
func (d *ConcentratordDriver) SetGPSTimeRef(xtime uint64, gpsTimeNanos int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, 16)
	putUint64(buf[0:8], xtime)
	putUint64(buf[8:16], uint64(gpsTimeNanos))

	msg := zmq4.NewMsgFrom([]byte("gps_time_ref"), buf)
	if err := d.cmdSock.Send(msg); err != nil {
		return fmt.Errorf("ral: send gps_time_ref command: %w", err)
	}
	if _, err := d.cmdSock.Recv(); err != nil {
		return fmt.Errorf("ral: recv gps_time_ref ack: %w", err)
	}
	return nil
}

// Send schedules a downlink transmission and waits for its TX acknowledgment.
func (d *ConcentratordDriver) Send(job TxJob) (TxResult, error) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return TxResult{}, fmt.Errorf("ral: driver not running")
	}
	d.downlinkID++
	dlID := d.downlinkID
	d.mu.Unlock()

	timing := &gw.Timing{Immediately: &gw.ImmediatelyTimingInfo{}}
	if job.XTime != 0 {
		timing = &gw.Timing{XTime: &gw.XTimeTimingInfo{XTime: job.XTime}}
	}

	frame := &gw.DownlinkFrame{
		DownlinkId: dlID,
		Items: []*gw.DownlinkFrameItem{
			{
				PhyPayload: job.PhyPayload,
				TxInfo: &gw.DownlinkTxInfo{
					Frequency: job.Freq,
					Power:     job.Power,
					Antenna:   job.Antenna,
					Modulation: &gw.Modulation{
						Lora: &gw.LoraModulationInfo{
							Bandwidth:             job.Bandwidth,
							SpreadingFactor:       job.SF,
							CodeRate:              job.CodeRate,
							PolarizationInversion: true,
						},
					},
					Timing: timing,
				},
			},
		},
	}

	data, err := gw.MarshalDownlinkFrame(frame)
	if err != nil {
		return TxResult{}, fmt.Errorf("ral: marshal downlink: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cmdSock.Send(zmq4.NewMsgFrom([]byte("down"), data)); err != nil {
		return TxResult{}, fmt.Errorf("ral: send downlink: %w", err)
	}

	resp, err := d.cmdSock.Recv()
	if err != nil {
		return TxResult{}, fmt.Errorf("ral: recv tx ack: %w", err)
	}

	if len(resp.Frames) == 0 {
		return TxResult{Status: gw.TxAckOK}, nil
	}

	ack, err := gw.UnmarshalDownlinkTxAck(resp.Frames[0])
	if err != nil {
		return TxResult{}, fmt.Errorf("ral: unmarshal tx ack: %w", err)
	}
	if len(ack.Items) == 0 {
		return TxResult{Status: gw.TxAckOK}, nil
	}
	return TxResult{Status: ack.Items[0].Status}, nil
}

func (d *ConcentratordDriver) eventLoop(onReceive func(RxJob)) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		msg, err := d.eventSock.Recv()
		if err != nil {
			if d.ctx.Err() != nil {
				return
			}
			continue
		}

		if len(msg.Frames) < 2 {
			continue
		}

		eventType := string(msg.Frames[0])
		event, err := gw.UnmarshalEvent(eventType, msg.Frames[1])
		if err != nil {
			log.WithFields(log.Fields{"subsys": "RAL"}).WithError(err).Warn("failed to unmarshal event")
			continue
		}

		switch {
		case event.UplinkFrame != nil:
			d.handleUplink(event.UplinkFrame, onReceive)
		case event.GatewayStats != nil:
			d.handleStats(event.GatewayStats)
		}
	}
}

func (d *ConcentratordDriver) handleUplink(frame *gw.UplinkFrame, onReceive func(RxJob)) {
	if frame == nil || len(frame.PhyPayload) == 0 || frame.RxInfo == nil {
		return
	}

	d.mu.Lock()
	duplicate := frame.RxInfo.XTime != 0 && frame.RxInfo.XTime == d.lastXTime
	if !duplicate {
		d.lastXTime = frame.RxInfo.XTime
	}
	d.mu.Unlock()

	if duplicate {
		log.WithFields(log.Fields{"subsys": "RAL", "xtime": frame.RxInfo.XTime}).Debug("dropping mirrored uplink from second antenna")
		return
	}

	var freq uint32
	if frame.TxInfo != nil {
		freq = frame.TxInfo.Frequency
	}

	job := RxJob{
		PhyPayload: frame.PhyPayload,
		Freq:       freq,
		RSSI:       frame.RxInfo.Rssi,
		SNR:        frame.RxInfo.Snr,
		XTime:      frame.RxInfo.XTime,
		Antenna:    frame.RxInfo.Antenna,
		RCtx:       int64(frame.RxInfo.Antenna),
	}

	log.WithFields(log.Fields{
		"subsys": "RAL", "bytes": len(job.PhyPayload), "rssi": job.RSSI, "snr": job.SNR,
	}).Debug("received uplink frame")

	onReceive(job)
}

func (d *ConcentratordDriver) handleStats(stats *gw.GatewayStats) {
	if stats == nil {
		return
	}
	log.WithFields(log.Fields{
		"subsys": "RAL", "rx_ok": stats.RxPacketsReceivedOk, "tx_emitted": stats.TxPacketsEmitted,
	}).Info("gateway stats")
}

// pollPPSLoop latches the PPS-correlated counter every 128ms and drives the
// loss/drift recovery state machine, per spec §4.2's PPS loop. It is the
// driver's own goroutine: RAL owns time-domain state end to end, independent
// of whatever else the engine is doing.
func (d *ConcentratordDriver) pollPPSLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(ppsPollInterval)
	defer ticker.Stop()

	var nextLossCheck time.Time
	for {
		select {
		case <-d.ctx.Done():
			return
		case now := <-ticker.C:
			counter, ok, err := d.queryPPSLatch()
			if err != nil {
				log.WithFields(log.Fields{"subsys": "SYN"}).WithError(err).Debug("pps latch query failed")
				continue
			}
			if !ok {
				if now.Before(nextLossCheck) {
					continue
				}
				shouldExit, retryAfter := d.timeSync.PPSLost(now)
				if shouldExit {
					d.fail("pps loss threshold exceeded")
				}
				nextLossCheck = now.Add(retryAfter)
				continue
			}

			d.timeSync.OnPPS(now, counter)
			if d.timeSync.CheckDrift() == DriftFatal {
				d.fail("pps drift exceeded fatal threshold")
			}
		}
	}
}

// queryPPSLatch asks the concentrator backend for the counter value latched
// at the most recent PPS pulse. ok is false when the backend reports no
// pulse has landed since the last query.
func (d *ConcentratordDriver) queryPPSLatch() (counter uint32, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := zmq4.NewMsgFrom([]byte("pps_latch"), []byte{})
	if err := d.cmdSock.Send(msg); err != nil {
		return 0, false, fmt.Errorf("ral: send pps_latch command: %w", err)
	}

	resp, err := d.cmdSock.Recv()
	if err != nil {
		return 0, false, fmt.Errorf("ral: recv pps_latch response: %w", err)
	}
	if len(resp.Frames) == 0 || len(resp.Frames[0]) < 5 {
		return 0, false, fmt.Errorf("ral: pps_latch response too short")
	}

	valid := resp.Frames[0][0] != 0
	if !valid {
		return 0, false, nil
	}
	counter = getUint32(resp.Frames[0][1:5])
	return counter, true, nil
}

// ScanChannel performs a CCA energy scan, backing the admission CCA/LBT
// check (spec §4.3 check 3).
func (d *ConcentratordDriver) ScanChannel(freqHz uint32, durationUs uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, 8)
	putUint32(buf[0:4], freqHz)
	putUint32(buf[4:8], durationUs)

	msg := zmq4.NewMsgFrom([]byte("cca_scan"), buf)
	if err := d.cmdSock.Send(msg); err != nil {
		return 0, fmt.Errorf("ral: send cca_scan command: %w", err)
	}

	resp, err := d.cmdSock.Recv()
	if err != nil {
		return 0, fmt.Errorf("ral: recv cca_scan response: %w", err)
	}
	if len(resp.Frames) == 0 || len(resp.Frames[0]) < 4 {
		return 0, fmt.Errorf("ral: cca_scan response too short")
	}

	return int32(getUint32(resp.Frames[0][0:4])), nil
}

// ApplyRawConfig pushes an opaque sx130x_conf/sx1301_conf/sx1302_conf blob
// straight through to the concentrator backend.
func (d *ConcentratordDriver) ApplyRawConfig(raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := zmq4.NewMsgFrom([]byte("sx130x_conf"), raw)
	if err := d.cmdSock.Send(msg); err != nil {
		return fmt.Errorf("ral: send sx130x_conf command: %w", err)
	}
	if _, err := d.cmdSock.Recv(); err != nil {
		return fmt.Errorf("ral: recv sx130x_conf ack: %w", err)
	}
	return nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint32(b []byte) uint32 {
	var v uint32
	for i := 3; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}
