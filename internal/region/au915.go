package region

// AU915 mirrors US915's asymmetric 64+8/8 channel plan but on a different
// frequency plan and with a distinct DR table (AU915's uplink DR0-5 are
// SF12-SF7 at 125kHz with DR6 as SF8/500kHz, where US915 stops at DR4).
func init() {
	uplink := map[uint8]DataRate{
		0: {Modulation: ModLoRa, SpreadingFactor: 12, Bandwidth: 125000, MaxPayloadSize: 51},
		1: {Modulation: ModLoRa, SpreadingFactor: 11, Bandwidth: 125000, MaxPayloadSize: 51},
		2: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 125000, MaxPayloadSize: 51},
		3: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 125000, MaxPayloadSize: 115},
		4: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 125000, MaxPayloadSize: 242},
		5: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 125000, MaxPayloadSize: 242},
		6: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 500000, MaxPayloadSize: 242},
	}
	downlink := map[uint8]DataRate{
		8:  {Modulation: ModLoRa, SpreadingFactor: 12, Bandwidth: 500000, MaxPayloadSize: 51},
		9:  {Modulation: ModLoRa, SpreadingFactor: 11, Bandwidth: 500000, MaxPayloadSize: 115},
		10: {Modulation: ModLoRa, SpreadingFactor: 10, Bandwidth: 500000, MaxPayloadSize: 242},
		11: {Modulation: ModLoRa, SpreadingFactor: 9, Bandwidth: 500000, MaxPayloadSize: 242},
		12: {Modulation: ModLoRa, SpreadingFactor: 8, Bandwidth: 500000, MaxPayloadSize: 242},
		13: {Modulation: ModLoRa, SpreadingFactor: 7, Bandwidth: 500000, MaxPayloadSize: 242},
	}
	rx1 := map[uint8][]uint8{
		0: {8, 8, 8, 8},
		1: {9, 8, 8, 8},
		2: {10, 9, 8, 8},
		3: {11, 10, 9, 8},
		4: {12, 11, 10, 9},
		5: {13, 12, 11, 10},
		6: {13, 13, 12, 11},
	}

	uplinkChannels := make([]Channel, 0, 72)
	for i := 0; i < 64; i++ {
		uplinkChannels = append(uplinkChannels, Channel{
			Frequency: 915200000 + uint32(i)*200000,
			MinDR:     0, MaxDR: 5,
		})
	}
	for i := 0; i < 8; i++ {
		uplinkChannels = append(uplinkChannels, Channel{
			Frequency: 915900000 + uint32(i)*1600000,
			MinDR:     6, MaxDR: 6,
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
		Name:             AU915,
		UplinkDRTable:    uplink,
		DownlinkDRTable:  downlink,
		RX1DROffsetTable: rx1,
		UplinkChannels:   uplinkChannels,
		DownlinkChannels: downlinkChannels,
		CCAEnabled:       false,
		DwellTimeLimit:   true,
		MaxEIRPdBm:       30,
		FreqRangeHz:      [2]uint32{915000000, 928000000},
	})
}
