package region

func init() {
	register(&Descriptor{
		Name: EU868,
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
			{Frequency: 868100000, MinDR: 0, MaxDR: 5},
			{Frequency: 868300000, MinDR: 0, MaxDR: 5},
			{Frequency: 868500000, MinDR: 0, MaxDR: 5},
		},
		DownlinkChannels: []Channel{
			{Frequency: 868100000, MinDR: 0, MaxDR: 5},
			{Frequency: 868300000, MinDR: 0, MaxDR: 5},
			{Frequency: 868500000, MinDR: 0, MaxDR: 5},
		},
		// Bands K/L/M/N/P/Q per ETSI EN 300.220 sub-band allocation.
		DutyCycleBands: []DutyCycleBand{
			{Name: "K", LoFreq: 863000000, HiFreq: 865000000, Divisor: 1000, MaxEIRPdBm: 14},
			{Name: "L", LoFreq: 865000000, HiFreq: 868000000, Divisor: 100, MaxEIRPdBm: 14},
			{Name: "M", LoFreq: 868000000, HiFreq: 868600000, Divisor: 100, MaxEIRPdBm: 14},
			{Name: "N", LoFreq: 868700000, HiFreq: 869200000, Divisor: 1000, MaxEIRPdBm: 14},
			{Name: "P", LoFreq: 869400000, HiFreq: 869650000, Divisor: 10, MaxEIRPdBm: 27},
			{Name: "Q", LoFreq: 869700000, HiFreq: 870000000, Divisor: 100, MaxEIRPdBm: 14},
		},
		CCAEnabled:     false,
		DwellTimeLimit: false,
		MaxEIRPdBm:     16,
		FreqRangeHz:    [2]uint32{863000000, 870000000},
	})
}
