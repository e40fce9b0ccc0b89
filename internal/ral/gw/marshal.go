// Package gw provides marshaling/unmarshaling for the concentrator ZMQ API.
package gw

import (
	"encoding/binary"
	"fmt"
)

// MarshalCommand serializes a command for sending to the concentrator.
func MarshalCommand(cmd *Command) ([]byte, error) {
	if cmd.GetGatewayId != nil {
		return nil, nil
	}
	if cmd.SendDownlinkFrame != nil {
		return MarshalDownlinkFrame(cmd.SendDownlinkFrame)
	}
	return nil, fmt.Errorf("unknown command type")
}

// MarshalDownlinkFrame serializes a downlink frame.
//
// Wire format:
//
//	4 bytes  downlink_id
//	4 bytes  frequency (Hz)
//	4 bytes  power (dBm, signed)
//	4 bytes  bandwidth (Hz)
//	4 bytes  spreading_factor
//	1 byte   coding_rate
//	1 byte   timing (0=immediate, 1=xtime)
//	8 bytes  xtime (valid when timing=1)
//	1 byte   antenna
//	2 bytes  payload length
//	N bytes  payload
func MarshalDownlinkFrame(dl *DownlinkFrame) ([]byte, error) {
	if len(dl.Items) == 0 {
		return nil, fmt.Errorf("no downlink items")
	}

	item := dl.Items[0]
	payload := item.PhyPayload
	txInfo := item.TxInfo

	buf := make([]byte, 33+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], dl.DownlinkId)
	binary.LittleEndian.PutUint32(buf[4:8], txInfo.Frequency)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(txInfo.Power))

	if txInfo.Modulation != nil && txInfo.Modulation.Lora != nil {
		binary.LittleEndian.PutUint32(buf[12:16], txInfo.Modulation.Lora.Bandwidth)
		binary.LittleEndian.PutUint32(buf[16:20], txInfo.Modulation.Lora.SpreadingFactor)
		buf[20] = byte(txInfo.Modulation.Lora.CodeRate)
	}

	if txInfo.Timing != nil && txInfo.Timing.XTime != nil {
		buf[21] = 1
		binary.LittleEndian.PutUint64(buf[22:30], txInfo.Timing.XTime.XTime)
	}

	buf[30] = byte(txInfo.Antenna)
	binary.LittleEndian.PutUint16(buf[31:33], uint16(len(payload)))
	copy(buf[33:], payload)

	return buf, nil
}

// UnmarshalEvent deserializes an event from the concentrator process.
func UnmarshalEvent(eventType string, data []byte) (*Event, error) {
	event := &Event{}

	switch eventType {
	case "up":
		uplink, err := UnmarshalUplinkFrame(data)
		if err != nil {
			return nil, err
		}
		event.UplinkFrame = uplink

	case "stats":
		stats, err := UnmarshalGatewayStats(data)
		if err != nil {
			return nil, err
		}
		event.GatewayStats = stats

	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	return event, nil
}

// UnmarshalUplinkFrame deserializes an uplink frame.
//
// Wire format:
//
//	4 bytes  frequency (Hz)
//	4 bytes  rssi (signed, x10)
//	4 bytes  snr (signed, x10, float encoded as int32)
//	8 bytes  xtime
//	1 byte   antenna
//	1 byte   rf_chain
//	2 bytes  payload length
//	N bytes  PHYPayload
func UnmarshalUplinkFrame(data []byte) (*UplinkFrame, error) {
	const hdr = 24
	if len(data) < hdr {
		return nil, fmt.Errorf("uplink data too short: %d bytes", len(data))
	}

	freq := binary.LittleEndian.Uint32(data[0:4])
	rssi := int32(binary.LittleEndian.Uint32(data[4:8]))
	snrRaw := int32(binary.LittleEndian.Uint32(data[8:12]))
	xtime := binary.LittleEndian.Uint64(data[12:20])
	antenna := data[20]
	rfChain := data[21]
	payloadLen := binary.LittleEndian.Uint16(data[22:24])

	if len(data) < hdr+int(payloadLen) {
		return nil, fmt.Errorf("uplink payload truncated: want %d have %d", payloadLen, len(data)-hdr)
	}

	return &UplinkFrame{
		PhyPayload: data[hdr : hdr+int(payloadLen)],
		TxInfo: &UplinkTxInfo{
			Frequency: freq,
		},
		RxInfo: &UplinkRxInfo{
			Rssi:      rssi / 10,
			Snr:       float32(snrRaw) / 10.0,
			XTime:     xtime,
			Antenna:   uint32(antenna),
			RfChain:   uint32(rfChain),
			CrcStatus: CRCOK,
		},
	}, nil
}

// UnmarshalGatewayStats deserializes gateway statistics.
//
// Wire format: four little-endian uint32 counters, in GatewayStats field order.
func UnmarshalGatewayStats(data []byte) (*GatewayStats, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("stats data too short: %d bytes", len(data))
	}
	return &GatewayStats{
		RxPacketsReceived:   binary.LittleEndian.Uint32(data[0:4]),
		RxPacketsReceivedOk: binary.LittleEndian.Uint32(data[4:8]),
		TxPacketsReceived:   binary.LittleEndian.Uint32(data[8:12]),
		TxPacketsEmitted:    binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// UnmarshalDownlinkTxAck deserializes a TX acknowledgment.
func UnmarshalDownlinkTxAck(data []byte) (*DownlinkTxAck, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("tx ack data too short: %d bytes", len(data))
	}

	ack := &DownlinkTxAck{
		DownlinkId: binary.LittleEndian.Uint32(data[0:4]),
		Items: []*DownlinkTxAckItem{
			{Status: TxAckStatus(binary.LittleEndian.Uint32(data[4:8]))},
		},
	}

	return ack, nil
}

// UnmarshalGetGatewayIdResponse deserializes a gateway ID response.
func UnmarshalGetGatewayIdResponse(data []byte) (*GetGatewayIdResponse, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("gateway id response too short: %d bytes", len(data))
	}

	gatewayId := fmt.Sprintf("%016x", binary.BigEndian.Uint64(data[0:8]))
	return &GetGatewayIdResponse{GatewayId: gatewayId}, nil
}
