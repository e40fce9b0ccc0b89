package region

// ChannelPlan is the mutable, per-station subset of a region's channels that
// router_config actually enables, as distinguished from the region's full
// default channel list (spec §3's Channel plan data model). A station may
// run with fewer channels than the region defines, and (for US915/AU915)
// typically does: one 125kHz sub-band plus its paired 500kHz channel.
type ChannelPlan struct {
	Region   Name
	Uplink   []Channel
	Downlink []Channel
}

// DefaultChannelPlan returns a plan seeded with every channel the region
// descriptor defines, the starting point before router_config narrows it.
func DefaultChannelPlan(d *Descriptor) ChannelPlan {
	return ChannelPlan{
		Region:   d.Name,
		Uplink:   append([]Channel(nil), d.UplinkChannels...),
		Downlink: append([]Channel(nil), d.DownlinkChannels...),
	}
}

// RestrictToSubBand keeps only uplink channels within [loHz, hiHz] plus all
// downlink channels, the shape of a US915/AU915 single-sub-band deployment.
func (p *ChannelPlan) RestrictToSubBand(loHz, hiHz uint32) {
	kept := p.Uplink[:0]
	for _, ch := range p.Uplink {
		if ch.Frequency >= loHz && ch.Frequency <= hiHz {
			kept = append(kept, ch)
		}
	}
	p.Uplink = kept
}
