package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Binary field numbers for the optional TLV codec (spec §4.4). The station
// advertises "bin" in the version message's features string; the codec is
// switched on per connection when router_config's protocol_format names
// anything but "json", and then only inbound downlinks are decoded with it.
// Otherwise every message is JSON.
const (
	fieldMsgType    protowire.Number = 1
	fieldDevEUI     protowire.Number = 2
	fieldFCnt       protowire.Number = 3
	fieldFRMPayload protowire.Number = 4
	fieldFreq       protowire.Number = 5
	fieldDR         protowire.Number = 6
	fieldRSSI       protowire.Number = 7
	fieldSNR        protowire.Number = 8
	fieldXTime      protowire.Number = 9
	fieldRCtx       protowire.Number = 10
	fieldDIID       protowire.Number = 11
	fieldPDU        protowire.Number = 12
	fieldPriority   protowire.Number = 13
)

// BinaryUplink is the TLV-encoded equivalent of Uplink/JoinRequest, used
// when both ends negotiate the binary codec to cut per-frame overhead on
// constrained backhaul links.
type BinaryUplink struct {
	MsgType    string
	DevEUI     uint64
	FCnt       uint32
	FRMPayload []byte
	Freq       uint32
	DR         uint32
	RSSI       int32
	SNR        int32
	XTime      int64
}

// EncodeBinaryUplink serializes an uplink using length-delimited protobuf
// wire primitives without requiring generated message types.
func EncodeBinaryUplink(u BinaryUplink) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMsgType, protowire.BytesType)
	b = protowire.AppendString(b, u.MsgType)
	b = protowire.AppendTag(b, fieldDevEUI, protowire.VarintType)
	b = protowire.AppendVarint(b, u.DevEUI)
	b = protowire.AppendTag(b, fieldFCnt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.FCnt))
	b = protowire.AppendTag(b, fieldFRMPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, u.FRMPayload)
	b = protowire.AppendTag(b, fieldFreq, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.Freq))
	b = protowire.AppendTag(b, fieldDR, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.DR))
	b = protowire.AppendTag(b, fieldRSSI, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(u.RSSI)))
	b = protowire.AppendTag(b, fieldSNR, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(u.SNR)))
	b = protowire.AppendTag(b, fieldXTime, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(u.XTime))
	return b
}

// DecodeBinaryUplink parses the wire format EncodeBinaryUplink produces.
func DecodeBinaryUplink(b []byte) (BinaryUplink, error) {
	var u BinaryUplink
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return u, fmt.Errorf("codec: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldMsgType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad msgtype field: %w", protowire.ParseError(n))
			}
			u.MsgType = v
			b = b[n:]
		case fieldDevEUI:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad deveui field: %w", protowire.ParseError(n))
			}
			u.DevEUI = v
			b = b[n:]
		case fieldFCnt:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad fcnt field: %w", protowire.ParseError(n))
			}
			u.FCnt = uint32(v)
			b = b[n:]
		case fieldFRMPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad frmpayload field: %w", protowire.ParseError(n))
			}
			u.FRMPayload = append([]byte(nil), v...)
			b = b[n:]
		case fieldFreq:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad freq field: %w", protowire.ParseError(n))
			}
			u.Freq = uint32(v)
			b = b[n:]
		case fieldDR:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad dr field: %w", protowire.ParseError(n))
			}
			u.DR = uint32(v)
			b = b[n:]
		case fieldRSSI:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad rssi field: %w", protowire.ParseError(n))
			}
			u.RSSI = int32(protowire.DecodeZigZag(v))
			b = b[n:]
		case fieldSNR:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad snr field: %w", protowire.ParseError(n))
			}
			u.SNR = int32(protowire.DecodeZigZag(v))
			b = b[n:]
		case fieldXTime:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad xtime field: %w", protowire.ParseError(n))
			}
			u.XTime = protowire.DecodeZigZag(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return u, fmt.Errorf("codec: bad unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return u, nil
}

// BinaryDownlink is the TLV-encoded equivalent of Downlink.
type BinaryDownlink struct {
	DIID     int64
	PDU      []byte
	XTime    int64
	RCtx     int64
	Priority uint32
}

// EncodeBinaryDownlink serializes a downlink job in TLV form.
func EncodeBinaryDownlink(d BinaryDownlink) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDIID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(d.DIID))
	b = protowire.AppendTag(b, fieldPDU, protowire.BytesType)
	b = protowire.AppendBytes(b, d.PDU)
	b = protowire.AppendTag(b, fieldXTime, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(d.XTime))
	b = protowire.AppendTag(b, fieldRCtx, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(d.RCtx))
	b = protowire.AppendTag(b, fieldPriority, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Priority))
	return b
}

// DecodeBinaryDownlink parses the wire format EncodeBinaryDownlink produces.
func DecodeBinaryDownlink(b []byte) (BinaryDownlink, error) {
	var d BinaryDownlink
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("codec: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldDIID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("codec: bad diid field: %w", protowire.ParseError(n))
			}
			d.DIID = protowire.DecodeZigZag(v)
			b = b[n:]
		case fieldPDU:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("codec: bad pdu field: %w", protowire.ParseError(n))
			}
			d.PDU = append([]byte(nil), v...)
			b = b[n:]
		case fieldXTime:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("codec: bad xtime field: %w", protowire.ParseError(n))
			}
			d.XTime = protowire.DecodeZigZag(v)
			b = b[n:]
		case fieldRCtx:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("codec: bad rctx field: %w", protowire.ParseError(n))
			}
			d.RCtx = protowire.DecodeZigZag(v)
			b = b[n:]
		case fieldPriority:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("codec: bad priority field: %w", protowire.ParseError(n))
			}
			d.Priority = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("codec: bad unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return d, nil
}
