package region

// AS923 is symmetric but requires CCA/LBT and, in its "-1" dwell-time
// variant, a 400ms dwell limit on both uplink and downlink, per spec §4.1's
// CCA/LBT and dwell-time admission checks.
func init() {
	register(&Descriptor{
		Name: AS923,
		DRTable: map[uint8]DataRate{
			0: {Modulation: ModLoRa, SpreadingFactor: 12, Bandwidth: 125000, MaxPayloadSize: 59},
			1: {Modulation: ModLoRa, SpreadingFactor: 11, Bandwidth: 125000, MaxPayloadSize: 59},
			2: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 125000, MaxPayloadSize: 59},
			3: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 125000, MaxPayloadSize: 123},
			4: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 125000, MaxPayloadSize: 230},
			5: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 125000, MaxPayloadSize: 230},
			6: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 250000, MaxPayloadSize: 230},
			7: {Modulation: ModFSK, BitRate: 50000, MaxPayloadSize: 230},
		},
		UplinkChannels: []Channel{
			{Frequency: 923200000, MinDR: 0, MaxDR: 5},
			{Frequency: 923400000, MinDR: 0, MaxDR: 5},
		},
		DownlinkChannels: []Channel{
			{Frequency: 923200000, MinDR: 0, MaxDR: 5},
			{Frequency: 923400000, MinDR: 0, MaxDR: 5},
		},
		CCAEnabled:     true,
		DwellTimeLimit: true,
		MaxEIRPdBm:     16,
		FreqRangeHz:    [2]uint32{915000000, 928000000},
	})
}
