// Package lnstransport implements the station's WebSocket session with the
// LoRaWAN Network Server: connect/reconnect, read/write/ping loops, and JSON
// message dispatch, per spec §6.
package lnstransport

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/codec"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Config holds the LNS WebSocket client configuration.
type Config struct {
	URL            string // wss://<lns-host>/router-<eui>
	GatewayEUI     string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig returns the station's default LNS client timings.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 5 * time.Second,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    90 * time.Second,
	}
}

// outbound pairs a message type with its already-encoded JSON body, so the
// write loop never has to re-inspect a concrete message type.
type outbound struct {
	msgType codec.MsgType
	data    []byte
}

// Client manages the station's single WebSocket connection to one LNS. It
// reconnects automatically on any read/write failure, matching the
// station's requirement that a transient network loss never requires
// operator intervention.
type Client struct {
	config    Config
	conn      *websocket.Conn
	sendChan  chan outbound
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	connected bool

	onRouterConfig func(*codec.RouterConfig)
	onDownlink     func(*codec.Downlink)
	onTimeSync     func(*codec.TimeSync)
	onRunCommand   func([]byte)

	// binaryEnabled is set once router_config negotiates protocol_format
	// away from "json" (spec §6), switching inbound decode to the TLV
	// codec. Outbound encoding stays JSON-only: binary.go's TLV schema has
	// no mapping for dnsched/dntxed/timesync, so this module uses binary
	// only to decode inbound LNS-to-station downlinks, never to encode.
	binaryEnabled bool
}

// New creates an LNS client. Call the On* setters before Start to register
// handlers for inbound message types.
func New(config Config) *Client {
	return &Client{
		config:   config,
		sendChan: make(chan outbound, 256),
		stopChan: make(chan struct{}),
	}
}

// OnRouterConfig registers the callback invoked when the LNS sends
// router_config, the reply to the station's version message.
func (c *Client) OnRouterConfig(cb func(*codec.RouterConfig)) {
	c.mu.Lock()
	c.onRouterConfig = cb
	c.mu.Unlock()
}

// OnDownlink registers the callback invoked for every dnmsg.
func (c *Client) OnDownlink(cb func(*codec.Downlink)) {
	c.mu.Lock()
	c.onDownlink = cb
	c.mu.Unlock()
}

// OnTimeSync registers the callback invoked for timesync replies.
func (c *Client) OnTimeSync(cb func(*codec.TimeSync)) {
	c.mu.Lock()
	c.onTimeSync = cb
	c.mu.Unlock()
}

// OnRunCommand registers the callback invoked for runcmd messages, passed
// through as raw JSON since runcmd's shape is LNS-vendor-specific.
func (c *Client) OnRunCommand(cb func([]byte)) {
	c.mu.Lock()
	c.onRunCommand = cb
	c.mu.Unlock()
}

// Start connects to the LNS and runs the connection loop until ctx is
// canceled or Stop is called.
func (c *Client) Start(ctx context.Context) error {
	c.wg.Add(1)
	go c.connectionLoop(ctx)
	return nil
}

// Stop disconnects and stops all loops, blocking until they exit.
func (c *Client) Stop() error {
	close(c.stopChan)
	c.wg.Wait()
	return nil
}

// Disconnect tears down the current WebSocket connection, if any, without
// stopping the client: connectionLoop's own reconnect logic picks it back
// up after ReconnectDelay. ApplyRouterConfig failures use this to terminate
// the session per spec §5 step 3 rather than leaving a half-applied config
// live on a connection the LNS believes succeeded.
func (c *Client) Disconnect() {
	c.disconnect()
}

// SetBinaryCodec toggles whether readLoop decodes inbound binary frames via
// the TLV codec, negotiated through router_config's protocol_format field.
func (c *Client) SetBinaryCodec(enabled bool) {
	c.mu.Lock()
	c.binaryEnabled = enabled
	c.mu.Unlock()
}

// IsConnected reports whether the WebSocket connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendVersion sends the station's self-identification, the first message on
// every new connection.
func (c *Client) SendVersion(v *codec.Version) error {
	return c.send(codec.MsgVersion, v)
}

// SendUplink forwards an already-encoded uplink message (jreq/updf/rejoin/
// propdf) produced by the session engine.
func (c *Client) SendUplink(msgType codec.MsgType, data []byte) error {
	select {
	case c.sendChan <- outbound{msgType: msgType, data: data}:
		return nil
	default:
		return fmt.Errorf("lnstransport: send queue full")
	}
}

// SendDownlinkSent reports that a scheduled downlink actually transmitted.
func (c *Client) SendDownlinkSent(msg *codec.DownlinkSent) error {
	return c.send(codec.MsgDownlinkSent, msg)
}

// SendTimeSync reports the station's xtime/GPS time correlation.
func (c *Client) SendTimeSync(msg *codec.TimeSync) error {
	return c.send(codec.MsgTimeSync, msg)
}

func (c *Client) send(msgType codec.MsgType, msg interface{}) error {
	data, err := codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("lnstransport: encode %s: %w", msgType, err)
	}
	select {
	case c.sendChan <- outbound{msgType: msgType, data: data}:
		return nil
	default:
		return fmt.Errorf("lnstransport: send queue full")
	}
}

func (c *Client) connectionLoop(ctx context.Context) {
	defer c.wg.Done()
	l := log.WithFields(log.Fields{"subsys": "TC"})

	for {
		select {
		case <-c.stopChan:
			c.disconnect()
			return
		case <-ctx.Done():
			c.disconnect()
			return
		default:
		}

		if err := c.connect(); err != nil {
			l.WithError(err).Warn("failed to connect to LNS")
			select {
			case <-time.After(c.config.ReconnectDelay):
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		c.runMessageLoops(ctx)

		l.Info("disconnected from LNS, reconnecting")
		select {
		case <-time.After(c.config.ReconnectDelay):
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.Dial(c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("lnstransport: dial %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	log.WithFields(log.Fields{"subsys": "TC", "url": c.config.URL}).Info("connected to LNS")
	return nil
}

func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

func (c *Client) runMessageLoops(ctx context.Context) {
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.readLoop(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(done)
	}()

	wg.Wait()
}

func (c *Client) readLoop(done chan struct{}) {
	defer close(done)
	l := log.WithFields(log.Fields{"subsys": "TC"})

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l.WithError(err).Warn("websocket read error")
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			c.mu.Lock()
			binaryEnabled := c.binaryEnabled
			c.mu.Unlock()
			if !binaryEnabled {
				l.Debug("dropping binary frame, binary codec not negotiated")
				continue
			}
			c.handleBinaryMessage(data)
			continue
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	l := log.WithFields(log.Fields{"subsys": "TC"})

	mt, msg, err := codec.Decode(bytes.NewReader(data))
	if err != nil {
		l.WithError(err).Warn("failed to decode LNS message")
		return
	}

	c.mu.Lock()
	onRouterConfig := c.onRouterConfig
	onDownlink := c.onDownlink
	onTimeSync := c.onTimeSync
	onRunCommand := c.onRunCommand
	c.mu.Unlock()

	switch mt {
	case codec.MsgRouterConfig:
		if onRouterConfig != nil {
			onRouterConfig(msg.(*codec.RouterConfig))
		}
	case codec.MsgDownlink:
		if onDownlink != nil {
			onDownlink(msg.(*codec.Downlink))
		}
	case codec.MsgTimeSync:
		if onTimeSync != nil {
			onTimeSync(msg.(*codec.TimeSync))
		}
	case codec.MsgRunCommand:
		if onRunCommand != nil {
			onRunCommand(data)
		}
	default:
		l.WithFields(log.Fields{"msgtype": mt}).Debug("ignoring unhandled LNS message type")
	}
}

// handleBinaryMessage decodes a TLV-framed downlink, the only binary shape
// the LNS sends inbound, and dispatches it through the same onDownlink
// callback the JSON path uses. Binary frames with any other DIID/PDU shape
// are treated as malformed dnmsg, matching how handleMessage drops a
// malformed JSON frame.
func (c *Client) handleBinaryMessage(data []byte) {
	l := log.WithFields(log.Fields{"subsys": "TC"})

	bd, err := codec.DecodeBinaryDownlink(data)
	if err != nil {
		l.WithError(err).Warn("failed to decode binary LNS message")
		return
	}

	c.mu.Lock()
	onDownlink := c.onDownlink
	c.mu.Unlock()
	if onDownlink == nil {
		return
	}

	onDownlink(&codec.Downlink{
		MsgType: codec.MsgDownlink,
		DIID:    bd.DIID,
		PDU:     hex.EncodeToString(bd.PDU),
		XTime:   bd.XTime,
		RCtx:    bd.RCtx,
		RxDelay: 0,
	})
}

func (c *Client) writeLoop(ctx context.Context, done chan struct{}) {
	l := log.WithFields(log.Fields{"subsys": "TC"})
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case out := <-c.sendChan:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, out.data); err != nil {
				l.WithError(err).WithFields(log.Fields{"msgtype": out.msgType}).Warn("websocket write error")
				return
			}
		}
	}
}

func (c *Client) pingLoop(done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
