// Package phy parses the leading bytes of a LoRaWAN PHYPayload far enough to
// route it through the session engine without depending on MAC-layer
// decryption, which is the LNS's responsibility, not this module's.
package phy

import "fmt"

// MType is the LoRaWAN message type carried in the top 3 bits of MHdr.
type MType uint8

const (
	MTypeJoinRequest         MType = 0x00
	MTypeJoinAccept          MType = 0x01
	MTypeUnconfirmedDataUp   MType = 0x02
	MTypeUnconfirmedDataDown MType = 0x03
	MTypeConfirmedDataUp     MType = 0x04
	MTypeConfirmedDataDown   MType = 0x05
	MTypeRejoinRequest       MType = 0x06
	MTypeProprietary         MType = 0x07
)

func (t MType) String() string {
	switch t {
	case MTypeJoinRequest:
		return "JoinRequest"
	case MTypeJoinAccept:
		return "JoinAccept"
	case MTypeUnconfirmedDataUp:
		return "UnconfirmedDataUp"
	case MTypeUnconfirmedDataDown:
		return "UnconfirmedDataDown"
	case MTypeConfirmedDataUp:
		return "ConfirmedDataUp"
	case MTypeConfirmedDataDown:
		return "ConfirmedDataDown"
	case MTypeRejoinRequest:
		return "RejoinRequest"
	case MTypeProprietary:
		return "Proprietary"
	default:
		return "Unknown"
	}
}

// IsUplink reports whether frames of this type originate at a device.
func (t MType) IsUplink() bool {
	switch t {
	case MTypeJoinRequest, MTypeUnconfirmedDataUp, MTypeConfirmedDataUp, MTypeRejoinRequest:
		return true
	default:
		return false
	}
}

// IsData reports whether frames of this type carry the FCtrl/FCnt/FOpts/
// FPort/FRMPayload MAC frame layout.
func (t MType) IsData() bool {
	switch t {
	case MTypeUnconfirmedDataUp, MTypeConfirmedDataUp, MTypeUnconfirmedDataDown, MTypeConfirmedDataDown:
		return true
	default:
		return false
	}
}

// MHdr is the first byte of every LoRaWAN PHYPayload.
type MHdr uint8

// MType extracts the message type from the top 3 bits.
func (h MHdr) MType() MType {
	return MType(h >> 5)
}

// FPortAbsent is the sentinel Frame.FPort value for data frames carrying no
// FPort octet (zero-length FRMPayload with no MAC commands in FRMPayload).
const FPortAbsent = -1

// Frame is the minimal parse of a PHYPayload needed for dispatch, filtering,
// and MIC reporting to the LNS. The MAC payload (FRMPayload) is carried
// opaquely: decrypting it is the LNS's job, not this module's.
type Frame struct {
	MHdr       MHdr
	MType      MType
	RawPayload []byte

	// MIC is the last 4 bytes of RawPayload, interpreted as a little-endian
	// signed 32-bit integer, matching the wire encoding the LNS expects in
	// every uplink message's "MIC" field. Populated for every frame type
	// that carries a trailing MIC (everything except bare proprietary
	// frames too short to hold one).
	MIC    int32
	hasMIC bool

	// Populated for join-request frames.
	JoinEUI  uint64
	DevEUI   uint64
	DevNonce uint16

	// Populated for data frames (MTypeUnconfirmedDataUp/Down,
	// MTypeConfirmedDataUp/Down).
	DevAddr    uint32
	FCtrl      uint8
	FCnt       uint16
	FOpts      []byte
	FPort      int // FPortAbsent when the frame carries no FPort octet.
	FRMPayload []byte
}

// HasMIC reports whether MIC was populated from the payload.
func (f Frame) HasMIC() bool {
	return f.hasMIC
}

// ErrTooShort is returned when a PHYPayload is shorter than its MType requires.
var ErrTooShort = fmt.Errorf("phy: payload too short")

// Parse reads MHdr and, for join-request and data frames, enough of the
// header to route and filter the frame. Rejoin-request frames are parsed
// only far enough to detect their length variant (19 or 24 bytes); rejoin
// frames bypass JoinEUI/NetID filtering entirely per the LoRaWAN
// specification, since a rejoining device may present a fresh identity.
func Parse(payload []byte) (Frame, error) {
	if len(payload) < 1 {
		return Frame{}, ErrTooShort
	}

	f := Frame{
		MHdr:       MHdr(payload[0]),
		RawPayload: payload,
		FPort:      FPortAbsent,
	}
	f.MType = f.MHdr.MType()

	switch f.MType {
	case MTypeJoinRequest:
		if len(payload) != 23 {
			return Frame{}, fmt.Errorf("phy: join-request must be 23 bytes, got %d", len(payload))
		}
		f.JoinEUI = le64(payload[1:9])
		f.DevEUI = le64(payload[9:17])
		f.DevNonce = uint16(payload[17]) | uint16(payload[18])<<8

	case MTypeRejoinRequest:
		if len(payload) != 19 && len(payload) != 24 {
			return Frame{}, fmt.Errorf("phy: rejoin-request must be 19 or 24 bytes, got %d", len(payload))
		}

	case MTypeUnconfirmedDataUp, MTypeConfirmedDataUp, MTypeUnconfirmedDataDown, MTypeConfirmedDataDown:
		// MHdr(1) | DevAddr(4) | FCtrl(1) | FCnt(2) | FOpts(FCtrl&0x0F bytes) | [FPort(1)] | FRMPayload | MIC(4)
		if len(payload) < 12 {
			return Frame{}, fmt.Errorf("phy: data frame must be at least 12 bytes, got %d", len(payload))
		}
		f.DevAddr = uint32(payload[1]) | uint32(payload[2])<<8 | uint32(payload[3])<<16 | uint32(payload[4])<<24
		f.FCtrl = payload[5]
		f.FCnt = uint16(payload[6]) | uint16(payload[7])<<8

		foptsLen := int(f.FCtrl & 0x0F)
		fheaderEnd := 8 + foptsLen
		if fheaderEnd+4 > len(payload) {
			return Frame{}, fmt.Errorf("phy: data frame FOpts length %d overruns payload of %d bytes", foptsLen, len(payload))
		}
		if foptsLen > 0 {
			f.FOpts = append([]byte(nil), payload[8:fheaderEnd]...)
		}

		macPayload := payload[fheaderEnd : len(payload)-4]
		if len(macPayload) > 0 {
			f.FPort = int(macPayload[0])
			if len(macPayload) > 1 {
				f.FRMPayload = append([]byte(nil), macPayload[1:]...)
			}
		}

	case MTypeProprietary:
		// No mandated minimum length; forwarded opaquely.

	default:
		return Frame{}, fmt.Errorf("phy: unsupported MType %d", f.MType)
	}

	if len(payload) >= 4 {
		tail := payload[len(payload)-4:]
		f.MIC = int32(uint32(tail[0]) | uint32(tail[1])<<8 | uint32(tail[2])<<16 | uint32(tail[3])<<24)
		f.hasMIC = true
	}

	return f, nil
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// BypassesFilters reports whether the frame type must be forwarded to the
// LNS regardless of the station's JoinEUI/NetID filter configuration. Rejoin
// requests bypass filters per the LoRaWAN specification.
func (f Frame) BypassesFilters() bool {
	return f.MType == MTypeRejoinRequest
}
