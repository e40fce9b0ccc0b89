package phy

// JoinFilter decides whether a join-request's JoinEUI is accepted locally
// before being forwarded to the LNS. An empty filter accepts everything.
type JoinFilter struct {
	ranges []euiRange
}

type euiRange struct{ lo, hi uint64 }

// NewJoinFilter builds a filter from a list of [lo, hi] inclusive JoinEUI
// ranges, the representation router_config's "JoinEui" field uses.
func NewJoinFilter(ranges [][2]uint64) JoinFilter {
	f := JoinFilter{ranges: make([]euiRange, 0, len(ranges))}
	for _, r := range ranges {
		f.ranges = append(f.ranges, euiRange{lo: r[0], hi: r[1]})
	}
	return f
}

// Accepts reports whether joinEUI falls within any configured range, or
// whether the filter has no ranges at all (accept-all default).
func (f JoinFilter) Accepts(joinEUI uint64) bool {
	if len(f.ranges) == 0 {
		return true
	}
	for _, r := range f.ranges {
		if joinEUI >= r.lo && joinEUI <= r.hi {
			return true
		}
	}
	return false
}

// NetIDFilter decides whether a data frame's DevAddr, whose top bits encode
// a NetID, is accepted locally before being forwarded.
type NetIDFilter struct {
	netIDs map[uint32]struct{}
}

// NewNetIDFilter builds a filter from router_config's "NetID" field.
func NewNetIDFilter(netIDs []uint32) NetIDFilter {
	f := NetIDFilter{netIDs: make(map[uint32]struct{}, len(netIDs))}
	for _, id := range netIDs {
		f.netIDs[id] = struct{}{}
	}
	return f
}

// NetIDFromDevAddr extracts the NetID prefix from a DevAddr. The prefix
// length depends on the type-bit pattern in the address's top bits, per the
// LoRaWAN NetID/DevAddr addressing scheme.
func NetIDFromDevAddr(devAddr uint32) uint32 {
	switch {
	case devAddr>>31 == 0b0:
		return (devAddr >> 25) & 0x7f
	case devAddr>>30 == 0b10:
		return (devAddr >> 24) & 0x3f
	case devAddr>>29 == 0b110:
		return (devAddr >> 22) & 0x3ff
	case devAddr>>28 == 0b1110:
		return (devAddr >> 20) & 0xfff
	case devAddr>>27 == 0b11110:
		return (devAddr >> 18) & 0x3fff
	case devAddr>>26 == 0b111110:
		return (devAddr >> 15) & 0x1ffff
	default:
		return (devAddr >> 7) & 0x1ffffff
	}
}

// Accepts reports whether devAddr's NetID prefix is configured, or whether
// the filter has no entries at all (accept-all default).
func (f NetIDFilter) Accepts(devAddr uint32) bool {
	if len(f.netIDs) == 0 {
		return true
	}
	_, ok := f.netIDs[NetIDFromDevAddr(devAddr)]
	return ok
}
