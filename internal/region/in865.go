package region

// IN865 is symmetric with no CCA/LBT or dwell-time restriction.
func init() {
	register(&Descriptor{
		Name: IN865,
		DRTable: map[uint8]DataRate{
			0: {Modulation: ModLoRa, SpreadingFactor: 12, Bandwidth: 125000, MaxPayloadSize: 59},
			1: {Modulation: ModLoRa, SpreadingFactor: 11, Bandwidth: 125000, MaxPayloadSize: 59},
			2: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 125000, MaxPayloadSize: 59},
			3: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 125000, MaxPayloadSize: 123},
			4: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 125000, MaxPayloadSize: 230},
			5: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 125000, MaxPayloadSize: 230},
			7: {Modulation: ModFSK, BitRate: 50000, MaxPayloadSize: 230},
		},
		UplinkChannels: []Channel{
			{Frequency: 865062500, MinDR: 0, MaxDR: 5},
			{Frequency: 865402500, MinDR: 0, MaxDR: 5},
			{Frequency: 865985000, MinDR: 0, MaxDR: 5},
		},
		DownlinkChannels: []Channel{
			{Frequency: 865062500, MinDR: 0, MaxDR: 5},
			{Frequency: 865402500, MinDR: 0, MaxDR: 5},
			{Frequency: 865985000, MinDR: 0, MaxDR: 5},
		},
		CCAEnabled:     false,
		DwellTimeLimit: false,
		MaxEIRPdBm:     30,
		FreqRangeHz:    [2]uint32{865000000, 867000000},
	})
}
