package region

// US915 is an asymmetric region per RP002-1.0.5: 64 uplink 125kHz channels +
// 8 uplink 500kHz channels map onto 8 downlink 500kHz channels, so uplink
// and downlink data-rate tables and the RX1 DR offset mapping are distinct
// and must never be derived by arithmetic.
func init() {
	uplink := map[uint8]DataRate{
		0: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 125000, MaxPayloadSize: 19},
		1: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 125000, MaxPayloadSize: 61},
		2: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 125000, MaxPayloadSize: 133},
		3: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 125000, MaxPayloadSize: 250},
		4: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 500000, MaxPayloadSize: 250},
	}
	downlink := map[uint8]DataRate{
		8:  {Modulation: ModLoRa, SpreadingFactor: 12, Bandwidth: 500000, MaxPayloadSize: 61},
		9:  {Modulation: ModLoRa, SpreadingFactor: 11, Bandwidth: 500000, MaxPayloadSize: 137},
		10: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 500000, MaxPayloadSize: 250},
		11: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 500000, MaxPayloadSize: 250},
		12: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 500000, MaxPayloadSize: 250},
		13: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 500000, MaxPayloadSize: 250},
	}

	// RX1DROffsetTable[uplinkDR] = downlink DR per offset 0..3, per the
	// RP002-1.0.5 US915 RX1 data rate table.
	rx1 := map[uint8][]uint8{
		0: {10, 9, 8, 8},
		1: {11, 10, 9, 8},
		2: {12, 11, 10, 9},
		3: {13, 12, 11, 10},
		4: {13, 13, 12, 11},
	}

	uplinkChannels := make([]Channel, 0, 72)
	for i := 0; i < 64; i++ {
		uplinkChannels = append(uplinkChannels, Channel{
			Frequency: 902300000 + uint32(i)*200000,
			MinDR:     0, MaxDR: 3,
		})
	}
	for i := 0; i < 8; i++ {
		uplinkChannels = append(uplinkChannels, Channel{
			Frequency: 903000000 + uint32(i)*1600000,
			MinDR:     4, MaxDR: 4,
		})
	}

	downlinkChannels := make([]Channel, 0, 8)
	for i := 0; i < 8; i++ {
		downlinkChannels = append(downlinkChannels, Channel{
			Frequency: 923300000 + uint32(i)*600000,
			MinDR:     8, MaxDR: 13,
		})
	}

	register(&Descriptor{
		Name:             US915,
		UplinkDRTable:    uplink,
		DownlinkDRTable:  downlink,
		RX1DROffsetTable: rx1,
		UplinkChannels:   uplinkChannels,
		DownlinkChannels: downlinkChannels,
		CCAEnabled:       false,
		DwellTimeLimit:   false,
		MaxEIRPdBm:       30,
		FreqRangeHz:      [2]uint32{902000000, 928000000},
	})
}
