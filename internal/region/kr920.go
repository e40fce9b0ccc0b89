package region

// KR920 is symmetric and, like AS923, requires listen-before-talk.
func init() {
	register(&Descriptor{
		Name: KR920,
		DRTable: map[uint8]DataRate{
			0: {Modulation: ModLoRa, SpreadingFactor: 12, Bandwidth: 125000, MaxPayloadSize: 59},
			1: {Modulation: ModLoRa, SpreadingFactor: 11, Bandwidth: 125000, MaxPayloadSize: 59},
			2: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 125000, MaxPayloadSize: 59},
			3: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 125000, MaxPayloadSize: 123},
			4: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 125000, MaxPayloadSize: 230},
			5: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 125000, MaxPayloadSize: 230},
		},
		UplinkChannels: []Channel{
			{Frequency: 922100000, MinDR: 0, MaxDR: 5},
			{Frequency: 922300000, MinDR: 0, MaxDR: 5},
			{Frequency: 922500000, MinDR: 0, MaxDR: 5},
		},
		DownlinkChannels: []Channel{
			{Frequency: 922100000, MinDR: 0, MaxDR: 5},
			{Frequency: 922300000, MinDR: 0, MaxDR: 5},
			{Frequency: 922500000, MinDR: 0, MaxDR: 5},
		},
		CCAEnabled:     true,
		DwellTimeLimit: false,
		MaxEIRPdBm:     14,
		FreqRangeHz:    [2]uint32{920900000, 923300000},
	})
}
